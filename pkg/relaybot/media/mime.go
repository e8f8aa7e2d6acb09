package media

import (
	"mime"
	"path/filepath"
	"strings"
)

// VideoExtensions are sent as streamable videos instead of documents.
var VideoExtensions = []string{"mp4", "mov", "avi", "mkv", "flv", "wmv", "webm"}

// IsVideo reports whether a file name or MIME type denotes a video.
func IsVideo(nameOrMIME string) bool {
	s := strings.ToLower(nameOrMIME)
	if strings.HasPrefix(s, "video/") {
		return true
	}
	ext := strings.TrimPrefix(filepath.Ext(s), ".")
	for _, v := range VideoExtensions {
		if ext == v {
			return true
		}
	}
	return false
}

// IsImage reports whether a file name or MIME type denotes an image.
func IsImage(nameOrMIME string) bool {
	s := strings.ToLower(nameOrMIME)
	if strings.HasPrefix(s, "image/") {
		return true
	}
	switch filepath.Ext(s) {
	case ".jpg", ".jpeg", ".png", ".webp":
		return true
	}
	return false
}

// MIMEFromName guesses a MIME type from the extension.
func MIMEFromName(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	switch ext {
	case ".mkv":
		return "video/x-matroska"
	case ".mp4":
		return "video/mp4"
	case "":
		return "application/octet-stream"
	}
	if t := mime.TypeByExtension(ext); t != "" {
		if i := strings.IndexByte(t, ';'); i > 0 {
			t = t[:i]
		}
		return t
	}
	return "application/octet-stream"
}

// SanitizeFilename removes path separators and control characters.
func SanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))

	var result strings.Builder
	for _, r := range name {
		if r >= 32 && r != 127 && r != '/' {
			result.WriteRune(r)
		}
	}

	sanitized := strings.TrimSpace(result.String())
	if len(sanitized) > 255 {
		ext := filepath.Ext(sanitized)
		sanitized = sanitized[:255-len(ext)] + ext
	}
	return sanitized
}

// ExtFromMIME returns a file extension for common MIME types.
func ExtFromMIME(mimeType string) string {
	switch {
	case strings.HasPrefix(mimeType, "image/jpeg"):
		return ".jpg"
	case strings.HasPrefix(mimeType, "image/png"):
		return ".png"
	case strings.HasPrefix(mimeType, "image/webp"):
		return ".webp"
	case strings.HasPrefix(mimeType, "video/mp4"):
		return ".mp4"
	case strings.HasPrefix(mimeType, "video/x-matroska"):
		return ".mkv"
	case strings.HasPrefix(mimeType, "video/quicktime"):
		return ".mov"
	case strings.HasPrefix(mimeType, "video/webm"):
		return ".webm"
	case strings.HasPrefix(mimeType, "audio/mpeg"):
		return ".mp3"
	case strings.HasPrefix(mimeType, "audio/ogg"):
		return ".ogg"
	case strings.HasPrefix(mimeType, "audio/mp4"):
		return ".m4a"
	case strings.HasPrefix(mimeType, "application/pdf"):
		return ".pdf"
	case strings.HasPrefix(mimeType, "application/zip"):
		return ".zip"
	case strings.HasPrefix(mimeType, "text/plain"):
		return ".txt"
	default:
		return ""
	}
}
