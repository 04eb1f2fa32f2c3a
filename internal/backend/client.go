package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mmcdole/marquee/internal/domain"
)

const (
	defaultTimeout   = 30 * time.Second
	defaultLoginPath = "/api/devices/login/"
	userAgent        = "Marquee/1.0"
)

// Client implements domain.Backend over HTTP
type Client struct {
	baseURL    string
	loginPath  string
	httpClient *http.Client
	blobClient *http.Client // No client timeout; callers bound downloads by context
	logger     *slog.Logger
}

// NewClient creates a backend client. A zero timeout uses the default;
// an empty loginPath uses /api/devices/login/.
func NewClient(baseURL, loginPath string, timeout time.Duration, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if loginPath == "" {
		loginPath = defaultLoginPath
	}
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		loginPath: loginPath,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		blobClient: &http.Client{},
		logger:     logger,
	}
}

// BaseURL returns the backend root used to resolve media paths
func (c *Client) BaseURL() string {
	return c.baseURL
}

// doRequest performs a GET and returns status and body.
// Transport failures map to domain.ErrServerOffline.
func (c *Client) doRequest(ctx context.Context, client *http.Client, reqURL string, accept string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}

	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		c.logger.Error("backend request failed", "error", err)
		return 0, nil, fmt.Errorf("%w: %v", domain.ErrServerOffline, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("%w: failed to read response: %v", domain.ErrServerOffline, err)
	}
	return resp.StatusCode, body, nil
}

// Authenticate exchanges the device password for the summary and content set
func (c *Client) Authenticate(ctx context.Context, password string) (*domain.AuthResponse, error) {
	if password == "" {
		return nil, domain.ErrAuthFailed
	}

	reqURL := c.baseURL + c.loginPath + url.PathEscape(password)
	c.logger.Debug("login request", "path", c.loginPath)

	status, body, err := c.doRequest(ctx, c.httpClient, reqURL, "application/json")
	if err != nil {
		return nil, err
	}

	switch {
	case status >= 500:
		c.logger.Error("login request error", "status", status)
		return nil, fmt.Errorf("%w: unexpected status code: %d", domain.ErrServerOffline, status)
	case status < 200 || status > 299:
		c.logger.Warn("login rejected", "status", status)
		return nil, domain.ErrAuthFailed
	}

	var resp LoginResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		c.logger.Error("JSON parse error", "error", err, "bodyLen", len(body))
		return nil, fmt.Errorf("failed to parse login response: %w", err)
	}

	// Missing payload fields mean the backend does not know the password
	if resp.Summary == nil || resp.Content == nil {
		c.logger.Warn("login response missing summary or content")
		return nil, domain.ErrAuthFailed
	}

	return &domain.AuthResponse{
		Summary: MapSummary(*resp.Summary),
		Content: MapContent(resp.Content, c.baseURL),
	}, nil
}

// FetchBlob downloads the raw bytes behind rawURL
func (c *Client) FetchBlob(ctx context.Context, rawURL string) ([]byte, error) {
	status, body, err := c.doRequest(ctx, c.blobClient, rawURL, "")
	if err != nil {
		return nil, err
	}
	if status < 200 || status > 299 {
		return nil, fmt.Errorf("unexpected status code: %d", status)
	}
	return body, nil
}
