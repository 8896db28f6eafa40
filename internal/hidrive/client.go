package hidrive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

// Default HiDrive endpoints.
const (
	DefaultBaseURL   = "https://api.hidrive.strato.com/2.1"
	DefaultNotifyURL = "wss://api.hidrive.strato.com/2.1/subscribe"
	defaultUserAgent = "hidrive-go/0.1"
)

// TokenSource provides OAuth2 bearer tokens. *TokenManager implements it.
// Refresh replaces stale, the token the server just rejected.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	Refresh(ctx context.Context, stale string) (string, error)
}

// Client is an HTTP client for the HiDrive API. It attaches bearer tokens,
// dispatches parameterized calls, and classifies failures. A single Client is
// safe for concurrent use.
type Client struct {
	baseURL    string
	notifyURL  string
	httpClient *http.Client
	token      TokenSource
	logger     *slog.Logger
	userAgent  string
	limiter    *BandwidthLimiter
}

// NewClient creates a HiDrive API client.
// baseURL is typically DefaultBaseURL. The notification URL is derived from it
// (https→wss, plus "/subscribe") unless overridden with SetNotifyURL.
func NewClient(baseURL string, httpClient *http.Client, token TokenSource, logger *slog.Logger, userAgent string) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	baseURL = strings.TrimRight(baseURL, "/")

	return &Client{
		baseURL:    baseURL,
		notifyURL:  deriveNotifyURL(baseURL),
		httpClient: httpClient,
		token:      token,
		logger:     logger,
		userAgent:  userAgent,
	}
}

// SetNotifyURL overrides the WebSocket notification endpoint.
func (c *Client) SetNotifyURL(u string) {
	c.notifyURL = u
}

// SetBandwidthLimiter throttles all uploads and downloads through bl.
// A nil limiter means unlimited.
func (c *Client) SetBandwidthLimiter(bl *BandwidthLimiter) {
	c.limiter = bl
}

// deriveNotifyURL maps the REST base to its subscribe endpoint.
func deriveNotifyURL(baseURL string) string {
	switch {
	case strings.HasPrefix(baseURL, "https://"):
		return "wss://" + strings.TrimPrefix(baseURL, "https://") + "/subscribe"
	case strings.HasPrefix(baseURL, "http://"):
		return "ws://" + strings.TrimPrefix(baseURL, "http://") + "/subscribe"
	default:
		return DefaultNotifyURL
	}
}

// Call is a pending request. Nothing is sent until a terminal method
// (Do, Decode, DownloadTo) runs, so the caller can attach a body first.
// A Call is not safe for concurrent use and should be sent once.
type Call struct {
	c        *Client
	method   string
	path     string
	query    string
	body     io.Reader
	size     int64
	progress ProgressFunc
}

// NewCall prepares method on path (relative to the base URL). mandatory
// parameters come first on the wire, then optional ones; either may be nil.
func (c *Client) NewCall(method, path string, mandatory, optional *Params) *Call {
	return &Call{
		c:      c,
		method: method,
		path:   path,
		query:  Merge(mandatory, optional),
		size:   -1,
	}
}

// URL returns the full request URL.
func (r *Call) URL() string {
	if r.query == "" {
		return r.c.baseURL + r.path
	}

	return r.c.baseURL + r.path + "?" + r.query
}

// Do sends the call and returns the 2xx response. The caller closes the body.
// A 401 is answered with one forced token refresh and one resend; any other
// non-2xx status is returned as an *APIError or *HTTPError.
func (r *Call) Do(ctx context.Context) (*http.Response, error) {
	c := r.c

	tok, err := c.bearer(ctx, func(ctx context.Context) (string, error) {
		return c.token.Token(ctx)
	})
	if err != nil {
		return nil, err
	}

	start, err := bodyOffset(r.body)
	if err != nil {
		return nil, fmt.Errorf("hidrive: recording body offset: %w", err)
	}

	resp, err := r.send(ctx, tok)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusUnauthorized {
		return r.finish(resp)
	}

	firstErr := classifyResponse(resp)

	c.logger.Info("request unauthorized, refreshing token",
		slog.String("method", r.method),
		slog.String("path", r.path),
	)

	tok, err = c.bearer(ctx, func(ctx context.Context) (string, error) {
		return c.token.Refresh(ctx, tok)
	})
	if err != nil {
		return nil, err
	}

	if !rewindable(r.body) {
		return nil, &AuthError{Op: r.method + " " + r.path, Err: firstErr}
	}

	if err := rewindBody(r.body, start); err != nil {
		return nil, fmt.Errorf("hidrive: rewinding request body: %w", err)
	}

	resp, err = r.send(ctx, tok)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		retryErr := classifyResponse(resp)

		c.logger.Warn("request unauthorized after token refresh",
			slog.String("method", r.method),
			slog.String("path", r.path),
		)

		return nil, &AuthError{Op: r.method + " " + r.path, Err: retryErr}
	}

	return r.finish(resp)
}

// send performs one attempt with the given bearer token.
func (r *Call) send(ctx context.Context, tok string) (*http.Response, error) {
	c := r.c

	var body io.Reader
	if r.body != nil {
		body = &progressReader{
			r:        c.limiter.wrapReader(ctx, r.body),
			progress: r.progress,
		}
	}

	req, err := http.NewRequestWithContext(ctx, r.method, r.URL(), body)
	if err != nil {
		return nil, fmt.Errorf("hidrive: creating request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	if body != nil {
		req.Header.Set("Content-Type", "application/octet-stream")

		if r.size >= 0 {
			req.ContentLength = r.size
		}

		if r.size == 0 {
			req.Body = http.NoBody
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("request failed",
			slog.String("method", r.method),
			slog.String("path", r.path),
			slog.String("error", err.Error()),
		)

		return nil, &TransportError{Op: r.method + " " + r.path, Err: err}
	}

	return resp, nil
}

// finish turns a non-401 response into either the response itself or an error.
func (r *Call) finish(resp *http.Response) (*http.Response, error) {
	if isSuccess(resp.StatusCode) {
		r.c.logger.Debug("request succeeded",
			slog.String("method", r.method),
			slog.String("path", r.path),
			slog.Int("status", resp.StatusCode),
		)

		return resp, nil
	}

	err := classifyResponse(resp)

	r.c.logger.Debug("request returned error status",
		slog.String("method", r.method),
		slog.String("path", r.path),
		slog.Int("status", resp.StatusCode),
	)

	return nil, err
}

// bearer runs get and normalizes its failure into the error taxonomy.
func (c *Client) bearer(ctx context.Context, get func(context.Context) (string, error)) (string, error) {
	tok, err := get(ctx)
	if err == nil {
		return tok, nil
	}

	var authErr *AuthError
	if errors.As(err, &authErr) {
		return "", err
	}

	if ctx.Err() != nil {
		return "", &TransportError{Op: "obtaining token", Err: err}
	}

	return "", &AuthError{Op: "obtaining token", Err: err}
}

func isSuccess(code int) bool {
	return code >= http.StatusOK && code < http.StatusMultipleChoices
}

// bodyOffset records where a seekable body starts so a retry can rewind to it.
func bodyOffset(body io.Reader) (int64, error) {
	s, ok := body.(io.Seeker)
	if !ok {
		return 0, nil
	}

	return s.Seek(0, io.SeekCurrent)
}

// rewindable reports whether body can be sent a second time.
func rewindable(body io.Reader) bool {
	if body == nil {
		return true
	}

	_, ok := body.(io.Seeker)

	return ok
}

// rewindBody seeks a seekable body back to offset. Nil bodies are a no-op.
func rewindBody(body io.Reader, offset int64) error {
	s, ok := body.(io.Seeker)
	if !ok {
		return nil
	}

	_, err := s.Seek(offset, io.SeekStart)

	return err
}
