package utils

import (
	"fmt"
	"strings"
)

// DefaultImageExtension is used when neither the URL nor the content type names a format
const DefaultImageExtension = ".jpg"

var urlImageExtensions = []string{".jpg", ".jpeg", ".png", ".webp", ".gif"}

// ImageExtension infers a file extension (with the dot) for an image from its
// URL suffix, then from the response content type.
func ImageExtension(url, contentType string) string {
	lower := strings.ToLower(url)
	for _, ext := range urlImageExtensions {
		if strings.HasSuffix(lower, ext) {
			return ext
		}
	}

	contentType = strings.ToLower(contentType)
	switch {
	case strings.Contains(contentType, "jpeg"), strings.Contains(contentType, "jpg"):
		return ".jpg"
	case strings.Contains(contentType, "png"):
		return ".png"
	case strings.Contains(contentType, "webp"):
		return ".webp"
	case strings.Contains(contentType, "gif"):
		return ".gif"
	}

	return DefaultImageExtension
}

// ImageFileName returns the stored name of the image at index, e.g. image_03.png
func ImageFileName(index int, ext string) string {
	return fmt.Sprintf("image_%02d%s", index, ext)
}
