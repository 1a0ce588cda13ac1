package api

import "github.com/soaringjerry/hitlrate/internal/services"

// Store is everything the HTTP layer needs from persistence. Both the
// in-memory store and db.SQLiteStore implement it.
type Store interface {
	services.UserStore
	services.ProjectStore
	services.QuestionStore
	services.SessionStore
	services.RatingStore
	services.MediaStore
	services.ExampleStore
	services.ExportStore
}

var _ Store = (*memoryStore)(nil)
