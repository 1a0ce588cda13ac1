package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/soaringjerry/hitlrate/internal/middleware"
	"github.com/soaringjerry/hitlrate/internal/services"
)

type Options struct {
	Store          Store
	Storage        services.MediaStorage
	Auth           *middleware.Authenticator
	CORS           *middleware.CORS
	Logger         *zap.Logger
	TokenTTL       time.Duration
	SchemaTTL      time.Duration
	CookieSecure   bool
	UploadMaxBytes int64
	Development    bool
}

type Router struct {
	log          *zap.Logger
	auth         *middleware.Authenticator
	cors         *middleware.CORS
	cookieSecure bool
	uploadMax    int64
	development  bool

	users     *services.AuthService
	projects  *services.ProjectService
	questions *services.QuestionService
	sessions  *services.SessionService
	ratings   *services.RatingService
	media     *services.MediaService
	examples  *services.ExampleService
	exports   *services.ExportService
}

func NewRouter(opts Options) *Router {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	cors := opts.CORS
	if cors == nil {
		cors = middleware.NewCORS([]string{"*"})
	}
	uploadMax := opts.UploadMaxBytes
	if uploadMax <= 0 {
		uploadMax = 50 << 20
	}
	schemas := services.NewSchemaLoader(opts.Store, opts.SchemaTTL)
	return &Router{
		log:          log,
		auth:         opts.Auth,
		cors:         cors,
		cookieSecure: opts.CookieSecure,
		uploadMax:    uploadMax,
		development:  opts.Development,
		users:        services.NewAuthService(opts.Store, opts.Auth.SignToken, opts.TokenTTL),
		projects:     services.NewProjectService(opts.Store, opts.Storage, schemas),
		questions:    services.NewQuestionService(opts.Store, schemas),
		sessions:     services.NewSessionService(opts.Store),
		ratings:      services.NewRatingService(opts.Store, schemas),
		media:        services.NewMediaService(opts.Store, opts.Storage),
		examples:     services.NewExampleService(opts.Store),
		exports:      services.NewExportService(opts.Store, schemas),
	}
}

// Handler assembles the chi mux with the middleware chain and every route.
func (rt *Router) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(rt.log))
	r.Use(chimw.Recoverer)
	r.Use(middleware.SecureHeaders(rt.development))
	r.Use(rt.cors.Handler)
	r.Use(middleware.NoStore)
	r.Use(rt.auth.WithAuth)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "name": "hitlrate"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/register", rt.handleRegister)
		r.Post("/auth/login", rt.handleLogin)
		r.Post("/auth/logout", rt.handleLogout)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth)
			r.Get("/auth/me", rt.handleMe)
			r.With(middleware.RequireRole(services.RoleRequester)).Get("/users/raters", rt.handleListRaters)

			r.Get("/templates", rt.handleListTemplates)

			r.Route("/projects", func(r chi.Router) {
				r.Get("/", rt.handleListProjects)
				r.Post("/", rt.handleCreateProject)
				r.Route("/{projectID}", func(r chi.Router) {
					r.Get("/", rt.handleGetProject)
					r.Put("/", rt.handleUpdateProject)
					r.Delete("/", rt.handleDeleteProject)
					r.Get("/stats", rt.handleProjectStats)
					r.Post("/assign", rt.handleAssignRaters)
					r.Delete("/assign/{raterID}", rt.handleRemoveRater)

					r.Get("/questions", rt.handleListQuestions)
					r.Post("/questions", rt.handleCreateQuestion)
					r.Post("/questions/bulk", rt.handleBulkQuestions)
					r.Put("/questions/reorder", rt.handleReorderQuestions)
					r.Post("/questions/from-template/{name}", rt.handleApplyTemplate)
					r.Get("/questions/{questionID}", rt.handleGetQuestion)
					r.Put("/questions/{questionID}", rt.handleUpdateQuestion)
					r.Delete("/questions/{questionID}", rt.handleDeleteQuestion)

					r.Get("/examples", rt.handleListExamples)
					r.Post("/examples", rt.handleCreateExample)
					r.Post("/examples/bulk", rt.handleBulkExamples)
					r.Put("/examples/reorder", rt.handleReorderExamples)

					r.Post("/upload", rt.handleUploadSession)
					r.Get("/sessions", rt.handleListSessions)

					r.Get("/media", rt.handleListMedia)
					r.Post("/media", rt.handleUploadMedia)
				})
			})

			r.Put("/examples/{exampleID}", rt.handleUpdateExample)
			r.Delete("/examples/{exampleID}", rt.handleDeleteExample)

			r.Route("/sessions/{sessionID}", func(r chi.Router) {
				r.Get("/", rt.handleGetSession)
				r.Delete("/", rt.handleDeleteSession)
				r.Get("/rows", rt.handleListRows)
				r.Get("/export", rt.handleExport)
			})

			r.Post("/ratings", rt.handleUpsertRating)
			r.Get("/rows/{rowID}/rating", rt.handleMyRating)
			r.Delete("/rows/{rowID}/rating", rt.handleDeleteRating)

			r.Get("/media/{mediaID}", rt.handleGetMedia)
			r.Get("/media/{mediaID}/file", rt.handleServeMedia)
			r.Delete("/media/{mediaID}", rt.handleDeleteMedia)
		})
	})
	return r
}
