package hidrive

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type frame struct {
	typ  websocket.MessageType
	data string
}

// newNotifyServer accepts one WebSocket session, writes frames, then closes
// normally unless hold is set.
func newNotifyServer(t *testing.T, frames []frame, hold bool) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/subscribe" || r.URL.Query().Get("access_token") != "test-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		conn, err := websocket.Accept(w, r, nil)
		if !assert.NoError(t, err) {
			return
		}

		ctx := r.Context()

		for _, f := range frames {
			if err := conn.Write(ctx, f.typ, []byte(f.data)); err != nil {
				return
			}
		}

		if hold {
			// Wait for the client to close.
			_, _, _ = conn.Read(ctx)
			return
		}

		_ = conn.Close(websocket.StatusNormalClosure, "bye")
	}))
	t.Cleanup(srv.Close)

	return srv
}

func TestSubscribe_DeliversTextFramesInOrder(t *testing.T) {
	srv := newNotifyServer(t, []frame{
		{websocket.MessageText, `{"type":"change","path":"/a"}`},
		{websocket.MessageBinary, "\x00\x01"},
		{websocket.MessageText, `{"type":"change","path":"/b"}`},
	}, false)

	c := newTestClient(t, srv.URL)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sub, err := c.Subscribe(ctx)
	require.NoError(t, err)
	defer sub.Close()

	assert.Equal(t, StateOpen, sub.State())

	n1, err := sub.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "/a", n1.String("path"))

	n2, err := sub.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "/b", n2.String("path"))

	var decoded struct {
		Type string `json:"type"`
	}
	require.NoError(t, n2.Decode(&decoded))
	assert.Equal(t, "change", decoded.Type)

	_, err = sub.Next(ctx)
	require.ErrorIs(t, err, io.EOF)
	assert.Equal(t, StateClosed, sub.State())

	// Terminal: returns immediately.
	_, err = sub.Next(ctx)
	require.ErrorIs(t, err, io.EOF)
}

func TestSubscribe_NonObjectFrameIsDecodeError(t *testing.T) {
	srv := newNotifyServer(t, []frame{
		{websocket.MessageText, `[1,2,3]`},
		{websocket.MessageText, `{"ok":true}`},
	}, false)

	c := newTestClient(t, srv.URL)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sub, err := c.Subscribe(ctx)
	require.NoError(t, err)
	defer sub.Close()

	_, err = sub.Next(ctx)

	var decErr *DecodeError
	require.ErrorAs(t, err, &decErr)

	n, err := sub.Next(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(n.Raw))
}

func TestSubscribe_CloseIsIdempotent(t *testing.T) {
	srv := newNotifyServer(t, nil, true)

	c := newTestClient(t, srv.URL)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sub, err := c.Subscribe(ctx)
	require.NoError(t, err)

	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())
	assert.Equal(t, StateClosed, sub.State())

	_, err = sub.Next(ctx)
	assert.ErrorIs(t, err, io.EOF)
}

func TestSubscribe_HandshakeUnauthorized(t *testing.T) {
	srv := newNotifyServer(t, nil, false)

	c := NewClient(srv.URL, nil, staticToken("wrong"), nil, "")

	_, err := c.Subscribe(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAuth)
}

func TestSubscribe_Unreachable(t *testing.T) {
	c := newTestClient(t, "http://127.0.0.1:1")

	_, err := c.Subscribe(context.Background())

	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)
}

func TestSessionState_String(t *testing.T) {
	assert.Equal(t, "connecting", StateConnecting.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "failed", StateFailed.String())
	assert.Equal(t, "SessionState(9)", SessionState(9).String())
}
