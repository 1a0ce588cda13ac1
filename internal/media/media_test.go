package media

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDetectContentType(t *testing.T) {
	cases := map[string]ContentType{
		"":                                  ContentText,
		"media://abc":                       ContentMediaRef,
		"https://youtu.be/xyz":              ContentYouTube,
		"https://vimeo.com/123":             ContentVimeo,
		"https://cdn.example.com/a.PNG":     ContentImageURL,
		"http://x.org/clip.mp4?t=3":         ContentVideoURL,
		"https://x.org/voice.wav":           ContentAudioURL,
		"https://x.org/paper.pdf":           ContentPDFURL,
		"https://x.org/page":                ContentURL,
		"data:image/png;base64,AAAA":        ContentImageData,
		"data:audio/mpeg;base64,AAAA":       ContentAudioData,
		"data:text/plain;base64,AAAA":       ContentDataURL,
		"just some words about youtube.com": ContentYouTube,
		"plain prompt":                      ContentText,
	}
	for in, want := range cases {
		if got := DetectContentType(in); got != want {
			t.Fatalf("DetectContentType(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestRefID(t *testing.T) {
	if id, ok := RefID(" media://f1 "); !ok || id != "f1" {
		t.Fatalf("RefID = %q, %v", id, ok)
	}
	for _, bad := range []string{"media://", "https://x", "f1"} {
		if _, ok := RefID(bad); ok {
			t.Fatalf("RefID(%q) accepted", bad)
		}
	}
}

var pngHead = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")

func TestDiskStorageRoundTrip(t *testing.T) {
	dir := t.TempDir()
	ds, err := NewDiskStorage(dir, 1<<20)
	if err != nil {
		t.Fatalf("NewDiskStorage: %v", err)
	}
	st, err := ds.Save("proj", "Photo.PNG", bytes.NewReader(pngHead))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if st.MimeType != "image/png" || st.SizeBytes != int64(len(pngHead)) || !strings.HasSuffix(st.Filename, ".png") {
		t.Fatalf("stored = %+v", st)
	}
	f, err := ds.Open(st.RelativePath)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	got, _ := io.ReadAll(f)
	f.Close()
	if !bytes.Equal(got, pngHead) {
		t.Fatalf("read back %d bytes, want %d", len(got), len(pngHead))
	}

	if err := ds.Delete(st.RelativePath); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := ds.Delete(st.RelativePath); err != nil {
		t.Fatalf("second Delete: %v", err)
	}
	if _, err := ds.Open("../outside"); err == nil {
		t.Fatal("path escaping the base dir was opened")
	}
	if err := ds.DeleteProject("proj"); err != nil {
		t.Fatalf("DeleteProject: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "proj")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("project dir still present: %v", err)
	}
}

func TestDiskStorageRejects(t *testing.T) {
	ds, err := NewDiskStorage(t.TempDir(), int64(len(pngHead)-1))
	if err != nil {
		t.Fatalf("NewDiskStorage: %v", err)
	}
	if _, err := ds.Save("p", "notes.txt", strings.NewReader("hello there")); !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("text upload err = %v, want ErrUnsupportedType", err)
	}
	if _, err := ds.Save("p", "big.png", bytes.NewReader(pngHead)); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("oversized upload err = %v, want ErrTooLarge", err)
	}
	if err := ds.DeleteProject("../p"); err == nil {
		t.Fatal("DeleteProject accepted a path")
	}
}
