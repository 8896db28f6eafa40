package hidrive

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"
)

// stateTokenBytes is the number of random bytes in the OAuth2 state parameter.
const stateTokenBytes = 16

// callbackPath is the path the authorization server redirects to.
const callbackPath = "/callback"

// shutdownTimeout bounds draining the callback server.
const shutdownTimeout = 5 * time.Second

type callbackResult struct {
	code string
	err  error
}

// LoginWithBrowser runs the authorization code flow against tm's endpoint:
// it listens on localhost:port (0 picks a free port), hands the authorization URL to
// openURL, waits for the redirect and exchanges the code. The new token is
// stored in tm (and reaches tm.OnTokenChange).
//
// When openURL fails the URL is passed to fallback so the user can open it by
// hand. fallback may be nil.
func LoginWithBrowser(
	ctx context.Context,
	tm *TokenManager,
	port int,
	openURL func(string) error,
	fallback func(string),
	logger *slog.Logger,
) error {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("starting browser authorization")

	resultCh := make(chan callbackResult, 1)
	mux := http.NewServeMux()

	srv, port, err := startCallbackServer(ctx, port, mux, resultCh, logger)
	if err != nil {
		return err
	}

	defer shutdownCallbackServer(srv, logger)

	tm.SetRedirectURL(fmt.Sprintf("http://127.0.0.1:%d%s", port, callbackPath))

	state, err := generateState()
	if err != nil {
		return fmt.Errorf("hidrive: generating state token: %w", err)
	}

	mux.HandleFunc("GET "+callbackPath, func(w http.ResponseWriter, r *http.Request) {
		handleOAuthCallback(w, r, state, resultCh)
	})

	authURL := tm.AuthCodeURL(state)

	logger.Info("opening browser for authorization")

	if openErr := openURL(authURL); openErr != nil {
		logger.Warn("failed to open browser",
			slog.String("error", openErr.Error()),
		)

		if fallback != nil {
			fallback(authURL)
		}
	}

	code, err := waitForCallback(ctx, resultCh)
	if err != nil {
		return err
	}

	logger.Info("received authorization code, exchanging for token")

	return tm.Exchange(ctx, code)
}

func startCallbackServer(
	ctx context.Context,
	port int,
	mux *http.ServeMux,
	resultCh chan<- callbackResult,
	logger *slog.Logger,
) (*http.Server, int, error) {
	lc := net.ListenConfig{}

	listener, err := lc.Listen(ctx, "tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return nil, 0, fmt.Errorf("hidrive: binding localhost listener: %w", err)
	}

	tcpAddr, ok := listener.Addr().(*net.TCPAddr)
	if !ok {
		listener.Close()
		return nil, 0, errors.New("hidrive: listener address is not TCP")
	}

	logger.Info("callback server listening", slog.Int("port", tcpAddr.Port))

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: shutdownTimeout,
	}

	go func() {
		if serveErr := srv.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			select {
			case resultCh <- callbackResult{err: fmt.Errorf("hidrive: callback server error: %w", serveErr)}:
			default:
			}
		}
	}()

	return srv, tcpAddr.Port, nil
}

// handleOAuthCallback validates state and forwards the code or the
// authorization server's error. Only the first result is delivered.
func handleOAuthCallback(w http.ResponseWriter, r *http.Request, state string, resultCh chan<- callbackResult) {
	q := r.URL.Query()

	var res callbackResult

	switch {
	case q.Get("state") != state:
		http.Error(w, "Invalid state parameter", http.StatusBadRequest)
		res.err = errors.New("hidrive: OAuth2 state mismatch")
	case q.Get("error") != "":
		http.Error(w, "Authorization failed: "+q.Get("error"), http.StatusBadRequest)
		res.err = fmt.Errorf("hidrive: authorization failed: %s: %s", q.Get("error"), q.Get("error_description"))
	case q.Get("code") == "":
		http.Error(w, "Missing authorization code", http.StatusBadRequest)
		res.err = errors.New("hidrive: callback missing authorization code")
	default:
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, "<html><body><h1>Authentication successful</h1>"+
			"<p>You can close this window and return to the terminal.</p></body></html>")

		res.code = q.Get("code")
	}

	select {
	case resultCh <- res:
	default:
	}
}

func shutdownCallbackServer(srv *http.Server, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("callback server shutdown error", slog.String("error", err.Error()))
	}
}

func waitForCallback(ctx context.Context, resultCh <-chan callbackResult) (string, error) {
	select {
	case res := <-resultCh:
		if res.err != nil {
			return "", res.err
		}

		return res.code, nil
	case <-ctx.Done():
		return "", fmt.Errorf("hidrive: browser authorization canceled: %w", ctx.Err())
	}
}

// generateState returns a random hex string for the OAuth2 state parameter.
func generateState() (string, error) {
	b := make([]byte, stateTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}

	return hex.EncodeToString(b), nil
}
