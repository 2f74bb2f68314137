package content

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	agroerr "github.com/mrz1836/agrosync/pkg/errors"
)

func fixedNow() time.Time { return time.UnixMilli(1_700_000_000_123) }

func pngBytes(size int) []byte {
	data := make([]byte, size)
	copy(data, "\x89PNG\r\n\x1a\n")
	return data
}

func newPinServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, PinOptions) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv, PinOptions{
		FileURL: srv.URL + "/pinning/pinFileToIPFS",
		JSONURL: srv.URL + "/pinning/pinJSONToIPFS",
		JWT:     "test-jwt",
		Gateway: "https://gateway.example/ipfs/",
		Now:     fixedNow,
	}
}

func TestPinningClient_Ready(t *testing.T) {
	t.Parallel()
	assert.False(t, NewPinningClient(PinOptions{}).Ready())
	assert.False(t, NewPinningClient(PinOptions{APIKey: "k"}).Ready())
	assert.True(t, NewPinningClient(PinOptions{APIKey: "k", SecretKey: "s"}).Ready())
	assert.True(t, NewPinningClient(PinOptions{JWT: "j"}).Ready())
}

func TestPinningClient_NotConfigured(t *testing.T) {
	t.Parallel()
	c := NewPinningClient(PinOptions{})

	_, err := c.PinJSON(context.Background(), "", map[string]string{})
	require.ErrorIs(t, err, ErrPinningNotConfigured)
	_, err = c.PinFile(context.Background(), "a.txt", strings.NewReader("x"))
	require.ErrorIs(t, err, ErrPinningNotConfigured)
}

func TestPinningClient_PinJSON(t *testing.T) {
	t.Parallel()
	_, opts := newPinServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/pinning/pinJSONToIPFS", r.URL.Path)
		assert.Equal(t, "Bearer test-jwt", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req pinJSONRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "data-1700000000123.json", req.Metadata.Name)
		assert.Equal(t, "AgroYield", req.Metadata.KeyValues["project"])
		assert.Equal(t, "json", req.Metadata.KeyValues["type"])
		assert.Equal(t, 1, req.Options.CIDVersion)
		assert.Equal(t, map[string]any{"hello": "world"}, req.Content)

		_, _ = w.Write([]byte(`{"IpfsHash":"bafyresult","PinSize":12}`))
	})

	res, err := NewPinningClient(opts).PinJSON(context.Background(), "", map[string]string{"hello": "world"})
	require.NoError(t, err)
	assert.Equal(t, "bafyresult", res.CID)
	assert.Equal(t, "https://gateway.example/ipfs/bafyresult", res.URL)
}

func TestPinningClient_PinFileKeyAuth(t *testing.T) {
	t.Parallel()
	_, opts := newPinServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		assert.Equal(t, "key", r.Header.Get("pinata_api_key"))
		assert.Equal(t, "secret", r.Header.Get("pinata_secret_api_key"))

		require.NoError(t, r.ParseMultipartForm(1<<20))
		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer func() { _ = file.Close() }()
		data, _ := io.ReadAll(file)
		assert.Equal(t, "report contents", string(data))
		assert.Equal(t, "report.txt", header.Filename)
		assert.JSONEq(t, `{"cidVersion":1}`, r.FormValue("pinataOptions"))
		assert.Contains(t, r.FormValue("pinataMetadata"), `"name":"report.txt"`)

		_, _ = w.Write([]byte(`{"IpfsHash":"QmFile"}`))
	})
	opts.JWT = ""
	opts.APIKey = "key"
	opts.SecretKey = "secret"

	res, err := NewPinningClient(opts).PinFile(context.Background(), "report.txt", strings.NewReader("report contents"))
	require.NoError(t, err)
	assert.Equal(t, "QmFile", res.CID)
	assert.Equal(t, "report.txt", res.Name)
}

func TestPinningClient_PinImage(t *testing.T) {
	t.Parallel()
	_, opts := newPinServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		_, header, err := r.FormFile("file")
		require.NoError(t, err)
		assert.Equal(t, "project-image-1700000000123.png", header.Filename)
		_, _ = w.Write([]byte(`{"IpfsHash":"bafyimage"}`))
	})
	c := NewPinningClient(opts)

	res, err := c.PinImage(context.Background(), "farm.png", pngBytes(2048))
	require.NoError(t, err)
	assert.Equal(t, "bafyimage", res.CID)

	_, err = c.PinImage(context.Background(), "notes.txt", bytes.Repeat([]byte("a"), 2048))
	require.ErrorIs(t, err, agroerr.ErrInvalidInput)
}

func TestPinningClient_PinProfile(t *testing.T) {
	t.Parallel()
	_, opts := newPinServer(t, func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Content  map[string]any `json:"pinataContent"`
			Metadata pinMetadata    `json:"pinataMetadata"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "profile-1700000000123.json", req.Metadata.Name)
		assert.Equal(t, "farmer", req.Content["role"])
		assert.Equal(t, "1.0", req.Content["version"])
		assert.InDelta(t, 1_700_000_000_123, req.Content["uploadedAt"], 0)
		_, _ = w.Write([]byte(`{"IpfsHash":"bafyprofile"}`))
	})

	res, err := NewPinningClient(opts).PinProfile(context.Background(), ProfileDocument{Name: "Ana", Role: "farmer"})
	require.NoError(t, err)
	assert.Equal(t, "bafyprofile", res.CID)
}

func TestPinningClient_ErrorMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		body   string
		want   error
		text   string
	}{
		{"unauthorized", http.StatusUnauthorized, `{}`, ErrPinningUnauthorized, ""},
		{"rate limited", http.StatusTooManyRequests, `{}`, ErrPinningRateLimited, ""},
		{"error string", http.StatusBadRequest, `{"error":"Invalid file"}`, ErrPinningFailed, "Invalid file"},
		{"error reason", http.StatusBadRequest, `{"error":{"reason":"KEY_REVOKED"}}`, ErrPinningFailed, "KEY_REVOKED"},
		{"message", http.StatusInternalServerError, `{"message":"down"}`, ErrPinningFailed, "down"},
		{"no hash", http.StatusOK, `{}`, ErrPinningFailed, "no content address"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, opts := newPinServer(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			_, err := NewPinningClient(opts).PinJSON(context.Background(), "x.json", map[string]string{})
			require.ErrorIs(t, err, tt.want)
			if tt.text != "" {
				assert.Contains(t, err.Error(), tt.text)
			}
		})
	}
}

func TestPinningClient_RetryAfter(t *testing.T) {
	t.Parallel()
	_, opts := newPinServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := NewPinningClient(opts).PinJSON(context.Background(), "x.json", map[string]string{})
	require.ErrorIs(t, err, ErrPinningRateLimited)
	var ae *agroerr.AgroError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "30s", ae.Details["retry_after"])
}

func TestPinningClient_NetworkError(t *testing.T) {
	t.Parallel()
	srv, opts := newPinServer(t, func(http.ResponseWriter, *http.Request) {})
	srv.Close()

	_, err := NewPinningClient(opts).PinJSON(context.Background(), "x.json", map[string]string{})
	require.ErrorIs(t, err, agroerr.ErrNetworkError)
}
