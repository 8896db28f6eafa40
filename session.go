package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/tonimelisma/hidrive-go/internal/config"
	"github.com/tonimelisma/hidrive-go/internal/hidrive"
	"github.com/tonimelisma/hidrive-go/internal/tokenfile"
)

// errNotLoggedIn is returned when a command needs a saved token and none exists.
var errNotLoggedIn = errors.New("not logged in, run 'hidrive-go login' first")

// meFields selects the /user/me fields the CLI caches and displays.
const meFields = "account,alias,email,home,home_id,language,is_admin,is_owner,encrypted"

// session bundles everything a command needs to talk to HiDrive.
type session struct {
	cfg    *config.Resolved
	logger *slog.Logger
	tokens *hidrive.TokenManager
	client *hidrive.Client
	meta   map[string]string
}

// newSession loads the saved token and builds the token manager and API
// client from cfg. requireLogin makes a missing token file an error.
// Every token the manager obtains is written back to cfg.TokenFile.
func newSession(cfg *config.Resolved, logger *slog.Logger, requireLogin bool) (*session, error) {
	tok, meta, err := tokenfile.Load(cfg.TokenFile)
	if err != nil {
		return nil, err
	}

	if tok == nil && requireLogin {
		return nil, errNotLoggedIn
	}

	httpClient := newHTTPClient(cfg)

	tm := hidrive.NewTokenManager(hidrive.Credentials{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Scopes:       cfg.Scopes,
		Token:        tok,
	}, hidrive.Endpoint, logger)
	tm.RefreshMargin = cfg.RefreshMargin
	tm.HTTPClient = httpClient
	tm.OnTokenChange = tokenfile.Persister(cfg.TokenFile, logger)

	client := hidrive.NewClient(cfg.BaseURL, httpClient, tm, logger, userAgent(cfg))
	client.SetBandwidthLimiter(hidrive.NewBandwidthLimiter(cfg.BandwidthLimit, logger))

	if meta == nil {
		meta = map[string]string{}
	}

	return &session{
		cfg:    cfg,
		logger: logger,
		tokens: tm,
		client: client,
		meta:   meta,
	}, nil
}

// newCommandSession is newSession for the resolved global config.
func newCommandSession() (*session, error) {
	return newSession(resolvedCfg, buildLogger(), true)
}

// cacheUser stores the account name and home directory id next to the token.
func (s *session) cacheUser(u *hidrive.User) {
	s.meta[tokenfile.MetaAccount] = u.Account
	s.meta[tokenfile.MetaHomeID] = u.HomeID

	if err := tokenfile.MergeMeta(s.cfg.TokenFile, map[string]string{
		tokenfile.MetaAccount: u.Account,
		tokenfile.MetaHomeID:  u.HomeID,
	}); err != nil {
		s.logger.Warn("caching account metadata",
			slog.String("path", s.cfg.TokenFile),
			slog.String("error", err.Error()),
		)
	}
}

// homeID returns the id of the user's home directory, asking the server
// once and caching the answer in the token file.
func (s *session) homeID(ctx context.Context) (string, error) {
	if id := s.meta[tokenfile.MetaHomeID]; id != "" {
		return id, nil
	}

	u, err := s.client.Me(ctx, hidrive.NewParams().AddString("fields", meFields))
	if err != nil {
		return "", fmt.Errorf("looking up home directory: %w", err)
	}

	if u.HomeID == "" {
		return "", errors.New("server did not report a home directory")
	}

	s.cacheUser(u)

	return u.HomeID, nil
}

// resolve turns a command-line remote path into an Identifier. Absolute
// paths are used as given. Relative paths (and "" for the home directory
// itself) are resolved against the home directory id.
func (s *session) resolve(ctx context.Context, remote string) (hidrive.Identifier, error) {
	if strings.HasPrefix(remote, "/") {
		return hidrive.ByPath(path.Clean(remote)), nil
	}

	home, err := s.homeID(ctx)
	if err != nil {
		return hidrive.Identifier{}, err
	}

	rel := cleanRelative(remote)
	if rel == "" {
		return hidrive.ByPID(home), nil
	}

	return hidrive.ByPIDAndPath(home, rel), nil
}

// cleanRelative normalizes a relative remote path. "", "." and "./" all
// name the base directory and return "".
func cleanRelative(remote string) string {
	clean := path.Clean(strings.TrimRight(remote, "/"))
	if clean == "." {
		return ""
	}

	return clean
}
