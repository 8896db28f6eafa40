package hidrive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"

	"github.com/coder/websocket"
)

// notifyReadLimit bounds a single notification frame.
const notifyReadLimit = 1 << 20

// SessionState is the lifecycle state of a Subscription.
type SessionState int

// Subscription states. Closed and Failed are terminal.
const (
	StateConnecting SessionState = iota
	StateOpen
	StateClosed
	StateFailed
)

func (s SessionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("SessionState(%d)", int(s))
	}
}

// Notification is one decoded JSON message from the notification stream.
type Notification struct {
	Raw    json.RawMessage
	Fields map[string]json.RawMessage
}

// Decode unmarshals the raw message into v.
func (n *Notification) Decode(v any) error {
	return json.Unmarshal(n.Raw, v)
}

// String returns the string value of a top-level field, or "" when the field
// is absent or not a string.
func (n *Notification) String(key string) string {
	raw, ok := n.Fields[key]
	if !ok {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}

	return s
}

// Subscription is an open notification session. Events are pulled with Next;
// the subscription never reconnects on its own.
type Subscription struct {
	conn   *websocket.Conn
	logger *slog.Logger

	readMu sync.Mutex // serializes Next

	mu    sync.Mutex
	state SessionState
}

// Subscribe opens the notification WebSocket. The access token is passed as
// the access_token query parameter because the handshake cannot rely on
// custom headers surviving every intermediary.
func (c *Client) Subscribe(ctx context.Context) (*Subscription, error) {
	tok, err := c.bearer(ctx, func(ctx context.Context) (string, error) {
		return c.token.Token(ctx)
	})
	if err != nil {
		return nil, err
	}

	u, err := url.Parse(c.notifyURL)
	if err != nil {
		return nil, fmt.Errorf("hidrive: parsing notify URL: %w", err)
	}

	q := u.Query()
	q.Set("access_token", tok)
	u.RawQuery = q.Encode()

	// Never log u: it carries the token.
	c.logger.Info("opening notification session",
		slog.String("host", u.Host),
		slog.String("path", u.Path),
	)

	conn, resp, err := websocket.Dial(ctx, u.String(), &websocket.DialOptions{
		HTTPClient: c.httpClient,
	})
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, &AuthError{Op: "subscribe", Err: err}
		}

		return nil, &TransportError{Op: "subscribe", Err: err}
	}

	conn.SetReadLimit(notifyReadLimit)

	c.logger.Debug("notification session open")

	return &Subscription{conn: conn, logger: c.logger, state: StateOpen}, nil
}

// State returns the current lifecycle state.
func (s *Subscription) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state
}

// Next blocks until the next text frame and returns it decoded. Binary
// frames are skipped. A close frame or clean end of stream returns io.EOF
// and moves the session to StateClosed; any other read failure returns a
// *TransportError and moves it to StateFailed. Once terminal, Next returns
// io.EOF immediately. Canceling ctx closes the underlying connection.
func (s *Subscription) Next(ctx context.Context) (*Notification, error) {
	s.readMu.Lock()
	defer s.readMu.Unlock()

	for {
		if s.State() != StateOpen {
			return nil, io.EOF
		}

		typ, data, err := s.conn.Read(ctx)
		if err != nil {
			return nil, s.terminate(err)
		}

		if typ != websocket.MessageText {
			s.logger.Debug("skipping non-text notification frame",
				slog.Int("bytes", len(data)),
			)

			continue
		}

		var fields map[string]json.RawMessage
		if err := json.Unmarshal(data, &fields); err != nil {
			return nil, &DecodeError{Err: fmt.Errorf("notification: %w", err)}
		}

		return &Notification{Raw: json.RawMessage(data), Fields: fields}, nil
	}
}

// terminate records the terminal state for a read failure and returns what
// Next reports to its caller.
func (s *Subscription) terminate(err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateOpen {
		// Close was called locally while Read was blocked.
		return io.EOF
	}

	if websocket.CloseStatus(err) != -1 || errors.Is(err, io.EOF) {
		s.state = StateClosed
		s.logger.Info("notification session closed by server",
			slog.Int("status", int(websocket.CloseStatus(err))),
		)

		return io.EOF
	}

	s.state = StateFailed
	_ = s.conn.CloseNow()

	s.logger.Warn("notification session failed",
		slog.String("error", err.Error()),
	)

	return &TransportError{Op: "reading notification", Err: err}
}

// Close ends the session with a normal closure. Safe to call more than once.
func (s *Subscription) Close() error {
	s.mu.Lock()
	wasOpen := s.state == StateOpen
	if wasOpen {
		s.state = StateClosed
	}
	s.mu.Unlock()

	if !wasOpen {
		return nil
	}

	return s.conn.Close(websocket.StatusNormalClosure, "")
}
