package media

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// Supported maps accepted MIME types to their broad category.
var Supported = map[string]string{
	"image/png":       "image",
	"image/jpeg":      "image",
	"image/gif":       "image",
	"image/webp":      "image",
	"image/svg+xml":   "image",
	"video/mp4":       "video",
	"video/webm":      "video",
	"video/ogg":       "video",
	"audio/mpeg":      "audio",
	"audio/wav":       "audio",
	"audio/ogg":       "audio",
	"application/pdf": "pdf",
}

var (
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrTooLarge        = errors.New("file too large")
)

// Stored describes a file written by DiskStorage.
type Stored struct {
	Filename     string
	RelativePath string
	SizeBytes    int64
	MimeType     string
}

// DiskStorage keeps media files under base/<project id>/<uuid><ext>.
type DiskStorage struct {
	base     string
	maxBytes int64
}

func NewDiskStorage(base string, maxBytes int64) (*DiskStorage, error) {
	if strings.TrimSpace(base) == "" {
		return nil, errors.New("media dir is required")
	}
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, fmt.Errorf("create media dir: %w", err)
	}
	return &DiskStorage{base: base, maxBytes: maxBytes}, nil
}

// Sniff reads the head of r and returns the detected MIME type together with
// a reader replaying the consumed bytes.
func Sniff(r io.Reader) (string, io.Reader, error) {
	head := make([]byte, 3072)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", nil, fmt.Errorf("read file head: %w", err)
	}
	head = head[:n]
	mt := mimetype.Detect(head)
	return canonicalMIME(mt), io.MultiReader(bytes.NewReader(head), r), nil
}

// canonicalMIME walks the detected type's parents until it hits a supported
// type, so aliases like audio/x-wav resolve to audio/wav.
func canonicalMIME(mt *mimetype.MIME) string {
	for m := mt; m != nil; m = m.Parent() {
		if _, ok := Supported[m.String()]; ok {
			return m.String()
		}
		for alias := range Supported {
			if m.Is(alias) {
				return alias
			}
		}
	}
	return mt.String()
}

// Save validates and stores r for projectID.
func (d *DiskStorage) Save(projectID, originalName string, r io.Reader) (*Stored, error) {
	mimeType, body, err := Sniff(r)
	if err != nil {
		return nil, err
	}
	if _, ok := Supported[mimeType]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, mimeType)
	}
	dir := filepath.Join(d.base, projectID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create project media dir: %w", err)
	}
	name := uuid.NewString() + strings.ToLower(filepath.Ext(originalName))
	full := filepath.Join(dir, name)
	f, err := os.Create(full)
	if err != nil {
		return nil, fmt.Errorf("create media file: %w", err)
	}
	src := body
	if d.maxBytes > 0 {
		src = io.LimitReader(body, d.maxBytes+1)
	}
	n, err := io.Copy(f, src)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && d.maxBytes > 0 && n > d.maxBytes {
		err = fmt.Errorf("%w: limit is %d bytes", ErrTooLarge, d.maxBytes)
	}
	if err != nil {
		_ = os.Remove(full)
		return nil, err
	}
	return &Stored{
		Filename:     name,
		RelativePath: filepath.ToSlash(filepath.Join(projectID, name)),
		SizeBytes:    n,
		MimeType:     mimeType,
	}, nil
}

func (d *DiskStorage) path(rel string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(rel))
	if filepath.IsAbs(clean) || strings.HasPrefix(clean, "..") {
		return "", fmt.Errorf("invalid storage path %q", rel)
	}
	return filepath.Join(d.base, clean), nil
}

func (d *DiskStorage) Open(rel string) (io.ReadSeekCloser, error) {
	p, err := d.path(rel)
	if err != nil {
		return nil, err
	}
	return os.Open(p)
}

// Delete removes one stored file. A missing file is not an error.
func (d *DiskStorage) Delete(rel string) error {
	p, err := d.path(rel)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// DeleteProject removes every stored file of a project.
func (d *DiskStorage) DeleteProject(projectID string) error {
	if strings.TrimSpace(projectID) == "" || strings.ContainsAny(projectID, `/\`) {
		return fmt.Errorf("invalid project id %q", projectID)
	}
	return os.RemoveAll(filepath.Join(d.base, projectID))
}
