package media

import "strings"

// ContentType classifies a single cell value of an uploaded row.
type ContentType string

const (
	ContentMediaRef  ContentType = "media_ref"
	ContentYouTube   ContentType = "youtube"
	ContentVimeo     ContentType = "vimeo"
	ContentImageURL  ContentType = "image_url"
	ContentVideoURL  ContentType = "video_url"
	ContentAudioURL  ContentType = "audio_url"
	ContentPDFURL    ContentType = "pdf_url"
	ContentURL       ContentType = "url"
	ContentImageData ContentType = "image_data"
	ContentVideoData ContentType = "video_data"
	ContentAudioData ContentType = "audio_data"
	ContentDataURL   ContentType = "data_url"
	ContentText      ContentType = "text"
)

const refPrefix = "media://"

var (
	imageExts = []string{".png", ".jpg", ".jpeg", ".gif", ".webp", ".svg"}
	videoExts = []string{".mp4", ".webm", ".ogg"}
	audioExts = []string{".mp3", ".wav"}
)

// DetectContentType is a pure prefix/substring classifier; it never fetches
// anything.
func DetectContentType(value string) ContentType {
	v := strings.TrimSpace(value)
	if v == "" {
		return ContentText
	}
	if strings.HasPrefix(v, refPrefix) {
		return ContentMediaRef
	}
	if strings.Contains(v, "youtube.com") || strings.Contains(v, "youtu.be") {
		return ContentYouTube
	}
	if strings.Contains(v, "vimeo.com") {
		return ContentVimeo
	}
	if strings.HasPrefix(v, "http://") || strings.HasPrefix(v, "https://") {
		lower := strings.ToLower(v)
		switch {
		case containsAny(lower, imageExts):
			return ContentImageURL
		case containsAny(lower, videoExts):
			return ContentVideoURL
		case containsAny(lower, audioExts):
			return ContentAudioURL
		case strings.Contains(lower, ".pdf"):
			return ContentPDFURL
		}
		return ContentURL
	}
	if strings.HasPrefix(v, "data:") {
		switch {
		case strings.HasPrefix(v, "data:image/"):
			return ContentImageData
		case strings.HasPrefix(v, "data:video/"):
			return ContentVideoData
		case strings.HasPrefix(v, "data:audio/"):
			return ContentAudioData
		}
		return ContentDataURL
	}
	return ContentText
}

// RefID extracts the media id from a media://<id> reference.
func RefID(value string) (string, bool) {
	v := strings.TrimSpace(value)
	if !strings.HasPrefix(v, refPrefix) {
		return "", false
	}
	id := strings.TrimPrefix(v, refPrefix)
	return id, id != ""
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
