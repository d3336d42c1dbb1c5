// Package media classifies media files and decodes images into pixel samples.
package media

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Type is the kind of media a file holds.
type Type string

const (
	TypeImage   Type = "image"
	TypeVideo   Type = "video"
	TypeUnknown Type = "unknown"
)

var imageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true,
	".webp": true, ".bmp": true, ".tif": true, ".tiff": true,
}

var videoExtensions = map[string]bool{
	".mkv": true, ".mp4": true, ".avi": true, ".mov": true, ".wmv": true, ".flv": true,
	".webm": true, ".m4v": true, ".mpeg": true, ".mpg": true, ".m2ts": true, ".ts": true,
	".3gp": true,
}

// Classify returns the media type implied by the file extension.
func Classify(path string) Type {
	ext := strings.ToLower(filepath.Ext(path))
	switch {
	case imageExtensions[ext]:
		return TypeImage
	case videoExtensions[ext]:
		return TypeVideo
	default:
		return TypeUnknown
	}
}

// IsImageFile returns true if the file extension suggests a decodable image
func IsImageFile(path string) bool {
	return Classify(path) == TypeImage
}

// IsVideoFile returns true if the file extension suggests a video file
func IsVideoFile(path string) bool {
	return Classify(path) == TypeVideo
}

// IsMediaFile returns true for images and videos.
func IsMediaFile(path string) bool {
	return Classify(path) != TypeUnknown
}

// Resolution formats dimensions as "W×H", or "" when either is unknown.
func Resolution(w, h int) string {
	if w <= 0 || h <= 0 {
		return ""
	}
	return fmt.Sprintf("%d×%d", w, h)
}
