package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/soaringjerry/hitlrate/internal/media"
)

// MediaStorage persists raw file bytes. Only the returned metadata is kept in
// the database.
type MediaStorage interface {
	Save(projectID, originalName string, r io.Reader) (*media.Stored, error)
	Open(relativePath string) (io.ReadSeekCloser, error)
	Delete(relativePath string) error
	DeleteProject(projectID string) error
}

type MediaStore interface {
	AccessStore
	InsertMedia(ctx context.Context, m *MediaFile) error
	GetMedia(ctx context.Context, id string) (*MediaFile, error)
	ListMedia(ctx context.Context, projectID string) ([]*MediaFile, error)
	DeleteMedia(ctx context.Context, id string) (bool, error)
}

// Upload is one file of a bulk media upload.
type Upload struct {
	Name string
	Body io.Reader
}

type MediaUploadResult struct {
	Files   []*MediaFile    `json:"files"`
	Errors  []BulkItemError `json:"errors,omitempty"`
	Message string          `json:"message"`
}

type MediaService struct {
	store       MediaStore
	storage     MediaStorage
	now         func() time.Time
	idGenerator func() string
}

func NewMediaService(store MediaStore, storage MediaStorage) *MediaService {
	return &MediaService{
		store:       store,
		storage:     storage,
		now:         func() time.Time { return time.Now().UTC() },
		idGenerator: newID,
	}
}

// UploadBulk stores each file independently. It fails only when every file
// failed.
func (s *MediaService) UploadBulk(ctx context.Context, who Principal, projectID string, files []Upload) (*MediaUploadResult, error) {
	if _, err := projectForWrite(ctx, s.store, who, projectID); err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, NewInvalidError("no files provided")
	}
	res := &MediaUploadResult{Files: []*MediaFile{}}
	for i, f := range files {
		mf, err := s.uploadOne(ctx, projectID, f)
		if err != nil {
			res.Errors = append(res.Errors, bulkItemError(i, f.Name, err))
			continue
		}
		res.Files = append(res.Files, mf)
	}
	if len(res.Files) == 0 {
		return nil, newBulkError("All uploads failed", res.Errors)
	}
	res.Message = fmt.Sprintf("Uploaded %d file(s)", len(res.Files))
	if len(res.Errors) > 0 {
		res.Message += fmt.Sprintf(" with %d error(s)", len(res.Errors))
	}
	return res, nil
}

func (s *MediaService) uploadOne(ctx context.Context, projectID string, f Upload) (*MediaFile, error) {
	stored, err := s.storage.Save(projectID, f.Name, f.Body)
	if err != nil {
		if errors.Is(err, media.ErrUnsupportedType) || errors.Is(err, media.ErrTooLarge) {
			return nil, NewInvalidError(err.Error())
		}
		return nil, err
	}
	mf := &MediaFile{
		ID:           s.idGenerator(),
		ProjectID:    projectID,
		Filename:     stored.Filename,
		OriginalName: f.Name,
		MimeType:     stored.MimeType,
		SizeBytes:    stored.SizeBytes,
		StoragePath:  stored.RelativePath,
		CreatedAt:    s.now(),
	}
	if err := s.store.InsertMedia(ctx, mf); err != nil {
		_ = s.storage.Delete(stored.RelativePath)
		return nil, fmt.Errorf("insert media: %w", err)
	}
	return mf, nil
}

func (s *MediaService) List(ctx context.Context, who Principal, projectID string) ([]*MediaFile, error) {
	if _, err := projectForRead(ctx, s.store, who, projectID); err != nil {
		return nil, err
	}
	return s.store.ListMedia(ctx, projectID)
}

// Get returns the metadata of a media file the caller may read.
func (s *MediaService) Get(ctx context.Context, who Principal, id string) (*MediaFile, error) {
	mf, err := s.store.GetMedia(ctx, id)
	if err != nil {
		return nil, err
	}
	if mf == nil {
		return nil, NewNotFoundError("media file not found: " + id)
	}
	if _, err := projectForRead(ctx, s.store, who, mf.ProjectID); err != nil {
		return nil, err
	}
	return mf, nil
}

// Open returns the metadata and a reader over the stored bytes.
func (s *MediaService) Open(ctx context.Context, who Principal, id string) (*MediaFile, io.ReadSeekCloser, error) {
	mf, err := s.Get(ctx, who, id)
	if err != nil {
		return nil, nil, err
	}
	rc, err := s.storage.Open(mf.StoragePath)
	if err != nil {
		return nil, nil, NewNotFoundError("file not found on storage: " + id)
	}
	return mf, rc, nil
}

func (s *MediaService) Delete(ctx context.Context, who Principal, id string) error {
	mf, err := s.store.GetMedia(ctx, id)
	if err != nil {
		return err
	}
	if mf == nil {
		return NewNotFoundError("media file not found: " + id)
	}
	if _, err := projectForWrite(ctx, s.store, who, mf.ProjectID); err != nil {
		return err
	}
	if _, err := s.store.DeleteMedia(ctx, id); err != nil {
		return err
	}
	return s.storage.Delete(mf.StoragePath)
}
