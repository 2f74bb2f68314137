package content

import (
	"fmt"
	"net/http"
	"slices"

	agroerr "github.com/mrz1836/agrosync/pkg/errors"
)

// Upload limits.
const (
	MaxImageSize    = 10 << 20
	MinImageSize    = 1 << 10
	MaxDocumentSize = 5 << 20
)

//nolint:gochecknoglobals // Fixed allow-lists
var (
	imageTypes    = []string{"image/jpeg", "image/png", "image/webp", "image/gif"}
	documentTypes = []string{"application/pdf", "application/msword", "text/plain", "application/octet-stream"}
)

// ValidateImage checks an image's size and sniffed type.
func ValidateImage(data []byte) error {
	return validate(data, MinImageSize, MaxImageSize, imageTypes)
}

// ValidateDocument checks a document's size and sniffed type.
func ValidateDocument(data []byte) error {
	return validate(data, 1, MaxDocumentSize, documentTypes)
}

// DetectType returns the sniffed media type without parameters.
func DetectType(data []byte) string {
	ct := http.DetectContentType(data)
	for i, c := range ct {
		if c == ';' {
			return ct[:i]
		}
	}
	return ct
}

func validate(data []byte, minSize, maxSize int, allowed []string) error {
	switch {
	case len(data) == 0:
		return agroerr.WithMessage(agroerr.ErrInvalidInput, "no file provided")
	case len(data) < minSize:
		return agroerr.WithMessage(agroerr.ErrInvalidInput, fmt.Sprintf("file too small: minimum size is %d bytes", minSize))
	case len(data) > maxSize:
		return agroerr.WithMessage(agroerr.ErrInvalidInput, fmt.Sprintf("file too large: maximum size is %dMB", maxSize>>20))
	}
	if ct := DetectType(data); !slices.Contains(allowed, ct) {
		return agroerr.WithDetails(
			agroerr.WithMessage(agroerr.ErrInvalidInput, "invalid file type"),
			map[string]string{"type": ct},
		)
	}
	return nil
}
