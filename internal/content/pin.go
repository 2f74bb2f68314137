package content

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/mrz1836/agrosync/internal/chain"
	"github.com/mrz1836/agrosync/internal/config"
	agroerr "github.com/mrz1836/agrosync/pkg/errors"
)

const (
	// maxPinResponse caps how much of a pinning response is read (1 MB).
	maxPinResponse = 1 << 20

	pinProject = "AgroYield"
)

// Pinning errors.
var (
	ErrPinningNotConfigured = &agroerr.AgroError{
		Code:       "PINNING_NOT_CONFIGURED",
		Message:    "pinning service credentials are not configured",
		Suggestion: "set AGROSYNC_PINATA_JWT, or AGROSYNC_PINATA_API_KEY and AGROSYNC_PINATA_SECRET_KEY",
		ExitCode:   agroerr.ExitInput,
	}

	ErrPinningUnauthorized = &agroerr.AgroError{
		Code:       "PINNING_UNAUTHORIZED",
		Message:    "pinning service rejected the credentials",
		Suggestion: "check the pinning API credentials",
		ExitCode:   agroerr.ExitAuth,
	}

	ErrPinningRateLimited = &agroerr.AgroError{
		Code:       "PINNING_RATE_LIMITED",
		Message:    "pinning service rate limit exceeded",
		Suggestion: "try again in a few minutes",
		ExitCode:   agroerr.ExitGeneral,
	}

	ErrPinningFailed = &agroerr.AgroError{
		Code:     "PINNING_FAILED",
		Message:  "upload to pinning service failed",
		ExitCode: agroerr.ExitGeneral,
	}
)

// PinResult is an uploaded piece of content.
type PinResult struct {
	CID  string `json:"cid"`
	Name string `json:"name"`
	URL  string `json:"url"`
}

// PinOptions configures a PinningClient.
type PinOptions struct {
	FileURL    string
	JSONURL    string
	JWT        string
	APIKey     string
	SecretKey  string
	Gateway    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Now        func() time.Time
	Logger     *config.Logger
}

// PinOptionsFromConfig builds pinning options. gateway is used to build
// result URLs.
func PinOptionsFromConfig(c config.PinningConfig, gateway string) PinOptions {
	return PinOptions{
		FileURL:   c.FileURL,
		JSONURL:   c.JSONURL,
		JWT:       c.JWT,
		APIKey:    c.APIKey,
		SecretKey: c.SecretKey,
		Gateway:   gateway,
		Timeout:   c.Timeout,
	}
}

// PinningClient uploads files and JSON documents to a Pinata-compatible
// pinning service.
type PinningClient struct {
	opts       PinOptions
	httpClient *http.Client
	now        func() time.Time
	logger     *config.Logger
}

// NewPinningClient creates a pinning client.
func NewPinningClient(opts PinOptions) *PinningClient {
	c := &PinningClient{opts: opts, httpClient: opts.HTTPClient, now: opts.Now, logger: opts.Logger}
	if c.opts.FileURL == "" {
		c.opts.FileURL = config.DefaultPinFileURL
	}
	if c.opts.JSONURL == "" {
		c.opts.JSONURL = config.DefaultPinJSONURL
	}
	if c.opts.Gateway == "" {
		c.opts.Gateway = config.DefaultJSONGateways[0]
	}
	if c.opts.Timeout <= 0 {
		c.opts.Timeout = config.DefaultPinTimeout
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{
			Timeout: c.opts.Timeout,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
			},
		}
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.logger == nil {
		c.logger = config.NullLogger()
	}
	return c
}

// Ready reports whether credentials are configured.
func (c *PinningClient) Ready() bool {
	return c.opts.JWT != "" || (c.opts.APIKey != "" && c.opts.SecretKey != "")
}

// PinFile uploads a file. An empty name gets a timestamped one.
func (c *PinningClient) PinFile(ctx context.Context, name string, r io.Reader) (*PinResult, error) {
	if !c.Ready() {
		return nil, ErrPinningNotConfigured
	}
	ts := c.timestamp()
	if name == "" {
		name = ts + "-upload"
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", name)
	if err != nil {
		return nil, fmt.Errorf("creating form file: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}

	meta, err := json.Marshal(pinMetadata{
		Name:      name,
		KeyValues: map[string]string{"project": pinProject, "timestamp": ts},
	})
	if err != nil {
		return nil, err
	}
	if err := w.WriteField("pinataMetadata", string(meta)); err != nil {
		return nil, err
	}
	if err := w.WriteField("pinataOptions", `{"cidVersion":1}`); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	cid, err := c.post(ctx, c.opts.FileURL, w.FormDataContentType(), &body)
	if err != nil {
		return nil, err
	}
	c.logger.Info("pinning: uploaded %s as %s", name, cid)
	return &PinResult{CID: cid, Name: name, URL: GatewayURL(c.opts.Gateway, cid)}, nil
}

// PinImage validates and uploads a project image.
func (c *PinningClient) PinImage(ctx context.Context, filename string, data []byte) (*PinResult, error) {
	if err := ValidateImage(data); err != nil {
		return nil, err
	}
	ext := strings.TrimPrefix(filepath.Ext(filename), ".")
	if ext == "" {
		ext = "img"
	}
	return c.PinFile(ctx, fmt.Sprintf("project-image-%s.%s", c.timestamp(), ext), bytes.NewReader(data))
}

// PinDocument validates and uploads a project document.
func (c *PinningClient) PinDocument(ctx context.Context, filename string, data []byte) (*PinResult, error) {
	if err := ValidateDocument(data); err != nil {
		return nil, err
	}
	ext := strings.TrimPrefix(filepath.Ext(filename), ".")
	if ext == "" {
		ext = "bin"
	}
	return c.PinFile(ctx, fmt.Sprintf("document-1-%s.%s", c.timestamp(), ext), bytes.NewReader(data))
}

// PinJSON uploads a JSON document.
func (c *PinningClient) PinJSON(ctx context.Context, name string, v any) (*PinResult, error) {
	if !c.Ready() {
		return nil, ErrPinningNotConfigured
	}
	ts := c.timestamp()
	if name == "" {
		name = "data-" + ts + ".json"
	}

	payload, err := json.Marshal(pinJSONRequest{
		Content: v,
		Metadata: pinMetadata{
			Name:      name,
			KeyValues: map[string]string{"project": pinProject, "type": "json", "timestamp": ts},
		},
		Options: pinOptions{CIDVersion: 1},
	})
	if err != nil {
		return nil, fmt.Errorf("encoding document: %w", err)
	}

	cid, err := c.post(ctx, c.opts.JSONURL, "application/json", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	c.logger.Info("pinning: uploaded %s as %s", name, cid)
	return &PinResult{CID: cid, Name: name, URL: GatewayURL(c.opts.Gateway, cid)}, nil
}

// PinProfile uploads a profile document stamped with its upload time and
// document version.
func (c *PinningClient) PinProfile(ctx context.Context, doc ProfileDocument) (*PinResult, error) {
	ts := c.timestamp()
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	fields := map[string]any{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	ms, _ := strconv.ParseInt(ts, 10, 64)
	fields["uploadedAt"] = ms
	fields["version"] = "1.0"
	return c.PinJSON(ctx, "profile-"+ts+".json", fields)
}

func (c *PinningClient) post(ctx context.Context, url, contentType string, body io.Reader) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	if c.opts.JWT != "" {
		req.Header.Set("Authorization", "Bearer "+c.opts.JWT)
	} else {
		req.Header.Set("pinata_api_key", c.opts.APIKey)
		req.Header.Set("pinata_secret_api_key", c.opts.SecretKey)
	}

	resp, err := c.httpClient.Do(req) //nolint:gosec // G704: URL is from validated config
	if err != nil {
		return "", agroerr.WithCause(agroerr.ErrNetworkError, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxPinResponse))
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return "", ErrPinningUnauthorized
	case resp.StatusCode == http.StatusTooManyRequests:
		if wait := chain.ParseRetryAfter(resp.Header.Get("Retry-After")); wait > 0 {
			return "", agroerr.WithDetails(ErrPinningRateLimited, map[string]string{"retry_after": wait.String()})
		}
		return "", ErrPinningRateLimited
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return "", agroerr.WithDetails(ErrPinningFailed, map[string]string{
			"status":  strconv.Itoa(resp.StatusCode),
			"message": errorMessage(data),
		})
	}

	var out pinResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("parsing response: %w", err)
	}
	if out.IpfsHash == "" {
		return "", agroerr.WithDetails(ErrPinningFailed, map[string]string{"message": "response carried no content address"})
	}
	return out.IpfsHash, nil
}

func (c *PinningClient) timestamp() string {
	return strconv.FormatInt(c.now().UnixMilli(), 10)
}

type pinMetadata struct {
	Name      string            `json:"name"`
	KeyValues map[string]string `json:"keyvalues"`
}

type pinOptions struct {
	CIDVersion int `json:"cidVersion"`
}

type pinJSONRequest struct {
	Content  any         `json:"pinataContent"`
	Metadata pinMetadata `json:"pinataMetadata"`
	Options  pinOptions  `json:"pinataOptions"`
}

type pinResponse struct {
	IpfsHash  string `json:"IpfsHash"`
	PinSize   int64  `json:"PinSize"`
	Timestamp string `json:"Timestamp"`
}

// errorMessage pulls "error" or "message" out of a failure body.
func errorMessage(body []byte) string {
	var e struct {
		Error   any    `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &e) == nil {
		if s, ok := e.Error.(string); ok && s != "" {
			return s
		}
		if m, ok := e.Error.(map[string]any); ok {
			if s, ok := m["reason"].(string); ok {
				return s
			}
		}
		if e.Message != "" {
			return e.Message
		}
	}
	if len(body) > 256 {
		return string(body[:256]) + "..."
	}
	return string(body)
}
