package content

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	agroerr "github.com/mrz1836/agrosync/pkg/errors"
)

func TestValidateImage(t *testing.T) {
	t.Parallel()

	gif := make([]byte, 4096)
	copy(gif, "GIF89a")

	tests := []struct {
		name    string
		data    []byte
		wantErr string
	}{
		{"png", pngBytes(MinImageSize), ""},
		{"gif", gif, ""},
		{"empty", nil, "no file provided"},
		{"too small", pngBytes(100), "too small"},
		{"too large", pngBytes(MaxImageSize + 1), "too large"},
		{"text", bytes.Repeat([]byte("hello "), 400), "invalid file type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := ValidateImage(tt.data)
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, agroerr.ErrInvalidInput)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateDocument(t *testing.T) {
	t.Parallel()
	require.NoError(t, ValidateDocument([]byte("%PDF-1.7 body")))
	require.NoError(t, ValidateDocument([]byte("plain notes")))
	require.Error(t, ValidateDocument(make([]byte, MaxDocumentSize+1)))
	require.Error(t, ValidateDocument(pngBytes(2048)))
}

func TestDetectType(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "image/png", DetectType(pngBytes(16)))
	assert.Equal(t, "text/plain", DetectType([]byte("hello")))
}
