package hidrive

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// staticToken is a test TokenSource that always returns the same token.
type staticToken string

func (t staticToken) Token(context.Context) (string, error) {
	return string(t), nil
}

func (t staticToken) Refresh(context.Context, string) (string, error) {
	return string(t), nil
}

// rotatingToken hands out "tok-0" until Refresh is called, then "tok-N".
type rotatingToken struct {
	refreshes atomic.Int32
	failWith  error
}

func (r *rotatingToken) Token(context.Context) (string, error) {
	return "tok-" + itoa(r.refreshes.Load()), nil
}

func (r *rotatingToken) Refresh(context.Context, string) (string, error) {
	if r.failWith != nil {
		return "", r.failWith
	}

	return "tok-" + itoa(r.refreshes.Add(1)), nil
}

func itoa(n int32) string {
	return strconv.Itoa(int(n))
}

// failingToken is a test TokenSource that never produces a token.
type failingToken struct{}

func (failingToken) Token(context.Context) (string, error) {
	return "", errors.New("token error")
}

func (failingToken) Refresh(context.Context, string) (string, error) {
	return "", errors.New("token error")
}

// nonSeekable hides any Seek method of the wrapped reader.
type nonSeekable struct {
	r io.Reader
}

func (n nonSeekable) Read(p []byte) (int, error) {
	return n.r.Read(p)
}

// newTestClient creates a Client pointing at the given httptest server.
func newTestClient(t *testing.T, url string) *Client {
	t.Helper()

	return NewClient(url, http.DefaultClient, staticToken("test-token"), slog.Default(), "test-agent")
}

func TestCall_URL(t *testing.T) {
	c := NewClient("https://api.example.com/2.1/", nil, staticToken("x"), nil, "")

	call := c.NewCall(http.MethodGet, "/dir", NewParams().AddString("pid", "p1"), NewParams().AddString("members", "all"))
	assert.Equal(t, "https://api.example.com/2.1/dir?pid=p1&members=all", call.URL())

	assert.Equal(t, "https://api.example.com/2.1/user/me", c.NewCall(http.MethodGet, "/user/me", nil, nil).URL())
}

func TestDeriveNotifyURL(t *testing.T) {
	assert.Equal(t, "wss://api.example.com/2.1/subscribe", deriveNotifyURL("https://api.example.com/2.1"))
	assert.Equal(t, "ws://127.0.0.1:8080/subscribe", deriveNotifyURL("http://127.0.0.1:8080"))
	assert.Equal(t, DefaultNotifyURL, deriveNotifyURL("ftp://x"))
}

func TestDo_SendsHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		assert.Equal(t, "pid=p1&fields=id", r.URL.RawQuery)

		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)

	resp, err := c.NewCall(http.MethodGet, "/meta", NewParams().AddString("pid", "p1"), NewParams().AddString("fields", "id")).
		Do(context.Background())
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestDo_ErrorClassification(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		sentinel error
	}{
		{"bad request", http.StatusBadRequest, ErrBadRequest},
		{"forbidden", http.StatusForbidden, ErrForbidden},
		{"not found", http.StatusNotFound, ErrNotFound},
		{"conflict", http.StatusConflict, ErrConflict},
		{"gone", http.StatusGone, ErrGone},
		{"too large", http.StatusRequestEntityTooLarge, ErrTooLarge},
		{"locked", http.StatusLocked, ErrLocked},
		{"throttled", http.StatusTooManyRequests, ErrThrottled},
		{"server error", http.StatusServiceUnavailable, ErrServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte("nope"))
			}))
			defer srv.Close()

			c := newTestClient(t, srv.URL)

			_, err := c.NewCall(http.MethodGet, "/x", nil, nil).Do(context.Background())
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.sentinel)
			assert.Equal(t, tt.status, StatusCode(err))

			var httpErr *HTTPError
			require.ErrorAs(t, err, &httpErr)
			assert.Equal(t, "nope", httpErr.Body)
		})
	}
}

func TestDo_TokenFailureIsAuthError(t *testing.T) {
	var hits atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil, failingToken{}, nil, "")

	_, err := c.NewCall(http.MethodGet, "/user/me", nil, nil).Do(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAuth)
	assert.Equal(t, int32(0), hits.Load(), "no request without a token")
}

func TestDo_Unauthorized_RefreshesOnce(t *testing.T) {
	var hits atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)

		if r.Header.Get("Authorization") == "Bearer tok-0" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"msg":"token expired","code":"401","auth":"expired"}`))

			return
		}

		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"account":"alice"}`))
	}))
	defer srv.Close()

	ts := &rotatingToken{}
	c := NewClient(srv.URL, nil, ts, nil, "")

	u, err := c.Me(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Account)
	assert.Equal(t, int32(2), hits.Load())
	assert.Equal(t, int32(1), ts.refreshes.Load())
}

func TestDo_UnauthorizedTwice_IsAuthError(t *testing.T) {
	var hits atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"msg":"invalid token","code":401}`))
	}))
	defer srv.Close()

	ts := &rotatingToken{}
	c := NewClient(srv.URL, nil, ts, nil, "")

	_, err := c.NewCall(http.MethodGet, "/user/me", nil, nil).Do(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAuth)
	assert.False(t, IsTransient(err))
	assert.Equal(t, int32(2), hits.Load(), "exactly one retry")
	assert.Equal(t, int32(1), ts.refreshes.Load())

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "401", apiErr.Code)
}

func TestDo_Unauthorized_RefreshFails(t *testing.T) {
	var hits atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	ts := &rotatingToken{failWith: &AuthError{Op: "refresh", Err: errors.New("invalid_grant")}}
	c := NewClient(srv.URL, nil, ts, nil, "")

	_, err := c.NewCall(http.MethodGet, "/user/me", nil, nil).Do(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAuth)
	assert.Contains(t, err.Error(), "invalid_grant")
	assert.Equal(t, int32(1), hits.Load())
}

func TestDo_Unauthorized_RewindsSeekableBody(t *testing.T) {
	var (
		mu     sync.Mutex
		bodies []string
	)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)

		mu.Lock()
		bodies = append(bodies, string(b))
		mu.Unlock()

		if r.Header.Get("Authorization") == "Bearer tok-0" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		_, _ = w.Write([]byte(`{"id":"f1","name":"a.txt"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil, &rotatingToken{}, nil, "")

	item, err := c.UploadFile(context.Background(), ByPath("/dir"), "a.txt",
		Upload{Body: strings.NewReader("payload"), Size: 7}, nil)
	require.NoError(t, err)
	assert.Equal(t, "f1", item.ID)

	mu.Lock()
	defer mu.Unlock()

	assert.Equal(t, []string{"payload", "payload"}, bodies)
}

func TestDo_Unauthorized_NonSeekableBody(t *testing.T) {
	var hits atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	ts := &rotatingToken{}
	c := NewClient(srv.URL, nil, ts, nil, "")

	_, err := c.UploadFile(context.Background(), ByPath("/dir"), "a.txt",
		Upload{Body: nonSeekable{bytes.NewReader([]byte("payload"))}, Size: 7}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAuth)
	assert.Equal(t, int32(1), hits.Load(), "a consumed stream is not resent")
	assert.Equal(t, int32(1), ts.refreshes.Load(), "the token is still refreshed for later calls")
}

func TestDo_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := newTestClient(t, url)

	_, err := c.NewCall(http.MethodGet, "/user/me", nil, nil).Do(context.Background())
	require.Error(t, err)

	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.True(t, IsTransient(err))
	assert.Equal(t, 0, StatusCode(err))
}

func TestDo_ContextCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := newTestClient(t, srv.URL)

	_, err := c.NewCall(http.MethodGet, "/user/me", nil, nil).Do(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDo_UploadSetsContentHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/octet-stream", r.Header.Get("Content-Type"))
		assert.Equal(t, int64(5), r.ContentLength)
		assert.Equal(t, "dir_id=d1&name=hello.txt&on_exist=autoname", r.URL.RawQuery)

		_, _ = w.Write([]byte(`{"id":"new","name":"hello.txt","size":5}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)

	var last atomic.Int64

	item, err := c.UploadFileNoOverwrite(context.Background(), ByPID("d1"), "hello.txt",
		Upload{
			Body:     strings.NewReader("hello"),
			Size:     5,
			Progress: func(n int64) { last.Store(n) },
		},
		NewParams().AddString("on_exist", "autoname"))
	require.NoError(t, err)
	assert.Equal(t, int64(5), item.Size)
	assert.Equal(t, int64(5), last.Load())
}

func TestUpload_RejectsEmptyName(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", nil, staticToken("x"), nil, "")

	_, err := c.UploadFile(context.Background(), ByPath("/d"), "", Upload{Body: strings.NewReader("")}, nil)
	assert.ErrorIs(t, err, ErrEmptyName)
}
