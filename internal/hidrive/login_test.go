package hidrive

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func newLoginTokenManager(t *testing.T) *TokenManager {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /token", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		if r.PostForm.Get("code") != "good-code" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))

			return
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"fresh","refresh_token":"r","token_type":"Bearer","expires_in":3600}`))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return NewTokenManager(Credentials{ClientID: "id"}, oauth2.Endpoint{
		AuthURL:   srv.URL + "/authorize",
		TokenURL:  srv.URL + "/token",
		AuthStyle: oauth2.AuthStyleInParams,
	}, nil)
}

// fakeBrowser follows the authorization URL straight to the redirect URI.
func fakeBrowser(t *testing.T, code string, tamperState bool) func(string) error {
	t.Helper()

	return func(authURL string) error {
		u, err := url.Parse(authURL)
		if err != nil {
			return err
		}

		q := u.Query()

		state := q.Get("state")
		if tamperState {
			state = "forged"
		}

		cb := q.Get("redirect_uri") + "?" + url.Values{"code": {code}, "state": {state}}.Encode()

		go func() {
			resp, err := http.Get(cb) //nolint:noctx // test helper
			if err == nil {
				resp.Body.Close()
			}
		}()

		return nil
	}
}

func TestLoginWithBrowser_Success(t *testing.T) {
	tm := newLoginTokenManager(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	require.NoError(t, LoginWithBrowser(ctx, tm, 0, fakeBrowser(t, "good-code", false), nil, nil))

	tok, err := tm.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, "fresh", tok)
}

func TestLoginWithBrowser_StateMismatch(t *testing.T) {
	tm := newLoginTokenManager(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := LoginWithBrowser(ctx, tm, 0, fakeBrowser(t, "good-code", true), nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "state mismatch")
}

func TestLoginWithBrowser_ExchangeRejected(t *testing.T) {
	tm := newLoginTokenManager(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := LoginWithBrowser(ctx, tm, 0, fakeBrowser(t, "bad-code", false), nil, nil)
	require.ErrorIs(t, err, ErrAuth)
}

func TestLoginWithBrowser_OpenFailsUsesFallback(t *testing.T) {
	tm := newLoginTokenManager(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var shown string

	browser := fakeBrowser(t, "good-code", false)

	err := LoginWithBrowser(ctx, tm, 0,
		func(string) error { return errors.New("no display") },
		func(u string) {
			shown = u
			_ = browser(u)
		},
		nil)
	require.NoError(t, err)
	assert.Contains(t, shown, "/authorize?")
}

func TestLoginWithBrowser_Canceled(t *testing.T) {
	tm := newLoginTokenManager(t)

	ctx, cancel := context.WithCancel(context.Background())

	err := LoginWithBrowser(ctx, tm, 0, func(string) error {
		cancel()
		return nil
	}, nil, nil)
	require.ErrorIs(t, err, context.Canceled)
}
