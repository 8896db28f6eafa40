package hidrive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

// Endpoint is the HiDrive OAuth2 authorization server.
var Endpoint = oauth2.Endpoint{
	AuthURL:   "https://my.hidrive.com/client/authorize",
	TokenURL:  "https://my.hidrive.com/oauth2/token",
	AuthStyle: oauth2.AuthStyleInParams,
}

// DefaultScopes requests user-level read/write access.
var DefaultScopes = []string{"user,rw"}

const (
	// DefaultRefreshMargin is how long before expiry a cached token stops
	// being handed out.
	DefaultRefreshMargin = 60 * time.Second

	// defaultRefreshTimeout bounds a single refresh round trip. Refreshes run
	// detached from the requesting caller, so this is their only deadline.
	defaultRefreshTimeout = 30 * time.Second
)

// ErrNoRefreshToken is wrapped in an AuthError when a refresh is needed but
// the credentials carry no refresh token.
var ErrNoRefreshToken = errors.New("hidrive: no refresh token available (login required)")

// Credentials seed a TokenManager. Token may hold only a refresh token; the
// first Token call then performs a refresh.
type Credentials struct {
	ClientID     string
	ClientSecret string
	Scopes       []string
	Token        *oauth2.Token
}

// TokenManager owns the OAuth2 credentials and the cached access token.
// Concurrent callers needing a refresh share a single token endpoint call.
type TokenManager struct {
	cfg    *oauth2.Config
	logger *slog.Logger

	// RefreshMargin, RefreshTimeout, HTTPClient and OnTokenChange must be set
	// before the manager is shared between goroutines.
	RefreshMargin  time.Duration
	RefreshTimeout time.Duration
	HTTPClient     *http.Client

	// OnTokenChange receives a copy of every token obtained by refresh or
	// code exchange. It runs outside the cache lock. Callers use it to
	// persist the refresh token.
	OnTokenChange func(*oauth2.Token)

	mu  sync.RWMutex
	tok *oauth2.Token
	gen uint64 // bumped on every cache replacement

	refreshMu sync.Mutex // serializes token endpoint calls
	group     singleflight.Group

	nowFunc func() time.Time
}

// NewTokenManager creates a manager for the given credentials and endpoint.
// Pass hidrive.Endpoint for the production authorization server.
func NewTokenManager(creds Credentials, endpoint oauth2.Endpoint, logger *slog.Logger) *TokenManager {
	if logger == nil {
		logger = slog.Default()
	}

	scopes := creds.Scopes
	if len(scopes) == 0 {
		scopes = DefaultScopes
	}

	var tok *oauth2.Token
	if creds.Token != nil {
		cp := *creds.Token
		tok = &cp
	}

	return &TokenManager{
		cfg: &oauth2.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			Endpoint:     endpoint,
			Scopes:       scopes,
		},
		logger:         logger,
		RefreshMargin:  DefaultRefreshMargin,
		RefreshTimeout: defaultRefreshTimeout,
		tok:            tok,
		nowFunc:        time.Now,
	}
}

// Token returns an access token valid for immediate use, refreshing first
// when the cached one is missing or inside the refresh margin.
func (m *TokenManager) Token(ctx context.Context) (string, error) {
	tok, gen := m.snapshot()
	if m.usable(tok) {
		return tok.AccessToken, nil
	}

	m.logger.Debug("cached token unusable, refreshing",
		slog.Bool("present", tok != nil),
	)

	return m.refresh(ctx, gen)
}

// Refresh forces a new access token after the server rejected stale. When
// another caller already replaced stale, the cached token is returned
// without contacting the token endpoint.
func (m *TokenManager) Refresh(ctx context.Context, stale string) (string, error) {
	tok, gen := m.snapshot()
	if m.usable(tok) && tok.AccessToken != stale {
		return tok.AccessToken, nil
	}

	return m.refresh(ctx, gen)
}

// AuthCodeURL returns the authorization URL for the code flow.
func (m *TokenManager) AuthCodeURL(state string, opts ...oauth2.AuthCodeOption) string {
	return m.cfg.AuthCodeURL(state, opts...)
}

// SetRedirectURL sets the redirect URI sent with AuthCodeURL and Exchange.
func (m *TokenManager) SetRedirectURL(u string) {
	m.cfg.RedirectURL = u
}

// Exchange trades an authorization code for a token and replaces the cache.
func (m *TokenManager) Exchange(ctx context.Context, code string, opts ...oauth2.AuthCodeOption) error {
	m.refreshMu.Lock()
	defer m.refreshMu.Unlock()

	tok, err := m.cfg.Exchange(m.oauthContext(ctx), code, opts...)
	if err != nil {
		return &AuthError{Op: "code exchange", Err: err}
	}

	m.logger.Info("authorization code exchanged",
		slog.Time("expiry", tok.Expiry),
	)

	m.store(tok)

	return nil
}

// refresh joins or starts the single in-flight refresh for generation gen.
// The refresh itself is detached from ctx: a caller whose ctx ends stops
// waiting, but the refresh completes for everyone else.
func (m *TokenManager) refresh(ctx context.Context, gen uint64) (string, error) {
	ch := m.group.DoChan(strconv.FormatUint(gen, 10), func() (any, error) {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.RefreshTimeout)
		defer cancel()

		return m.doRefresh(rctx, gen)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}

		tok, ok := res.Val.(*oauth2.Token)
		if !ok || tok == nil {
			return "", &AuthError{Op: "refresh", Err: errors.New("empty token")}
		}

		return tok.AccessToken, nil
	case <-ctx.Done():
		return "", fmt.Errorf("hidrive: waiting for token refresh: %w", ctx.Err())
	}
}

// doRefresh performs the token endpoint call unless the cache already moved
// past gen, in which case the newer token is returned as is.
func (m *TokenManager) doRefresh(ctx context.Context, gen uint64) (*oauth2.Token, error) {
	m.refreshMu.Lock()
	defer m.refreshMu.Unlock()

	cur, curGen := m.snapshot()
	if curGen != gen && cur != nil {
		return cur, nil
	}

	if cur == nil || cur.RefreshToken == "" {
		return nil, &AuthError{Op: "refresh", Err: ErrNoRefreshToken}
	}

	m.logger.Info("refreshing access token",
		slog.Time("old_expiry", cur.Expiry),
	)

	start := m.nowFunc()

	src := m.cfg.TokenSource(m.oauthContext(ctx), &oauth2.Token{RefreshToken: cur.RefreshToken})

	tok, err := src.Token()
	if err != nil {
		m.logger.Warn("token refresh failed",
			slog.String("error", err.Error()),
			slog.Duration("elapsed", m.nowFunc().Sub(start)),
		)

		return nil, &AuthError{Op: "refresh", Err: err}
	}

	if tok.RefreshToken == "" {
		tok.RefreshToken = cur.RefreshToken
	}

	m.logger.Info("access token refreshed",
		slog.Time("new_expiry", tok.Expiry),
		slog.Duration("elapsed", m.nowFunc().Sub(start)),
	)

	m.store(tok)

	return tok, nil
}

func (m *TokenManager) store(tok *oauth2.Token) {
	cp := *tok

	m.mu.Lock()
	m.tok = &cp
	m.gen++
	m.mu.Unlock()

	if m.OnTokenChange != nil {
		out := cp
		m.OnTokenChange(&out)
	}
}

func (m *TokenManager) snapshot() (*oauth2.Token, uint64) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.tok, m.gen
}

// usable reports whether tok can be sent now. A zero expiry never expires.
func (m *TokenManager) usable(tok *oauth2.Token) bool {
	if tok == nil || tok.AccessToken == "" {
		return false
	}

	if tok.Expiry.IsZero() {
		return true
	}

	return m.nowFunc().Add(m.RefreshMargin).Before(tok.Expiry)
}

func (m *TokenManager) oauthContext(ctx context.Context) context.Context {
	if m.HTTPClient == nil {
		return ctx
	}

	return context.WithValue(ctx, oauth2.HTTPClient, m.HTTPClient)
}
