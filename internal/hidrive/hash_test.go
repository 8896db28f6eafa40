package hidrive

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatRanges(t *testing.T) {
	assert.Equal(t, "-", formatRanges(nil))
	assert.Equal(t, "0-255", formatRanges([]ByteRange{{0, 255}}))
	assert.Equal(t, "0-255,256-511", formatRanges([]ByteRange{{0, 255}, {256, 511}}))
}

func TestFileHash_Params(t *testing.T) {
	var gotQuery string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/file/hash", r.URL.Path)
		gotQuery = r.URL.RawQuery

		assert.Equal(t, "0-255,256-511", r.URL.Query().Get("ranges"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"level":1,"chash":"abc","list":[["x"]]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)

	h, err := c.FileHash(context.Background(), ByPath("/f"), 1, []ByteRange{{0, 255}, {256, 511}}, nil)
	require.NoError(t, err)

	assert.Equal(t, "level=1&path=%2Ff&ranges=0-255%2C256-511", gotQuery)
	assert.Equal(t, uint(1), h.Level)
	assert.Equal(t, "abc", h.CHash)
	assert.JSONEq(t, `[["x"]]`, string(h.List))
}

func TestFileHash_WholeObject(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "-", r.URL.Query().Get("ranges"))
		assert.Equal(t, "0", r.URL.Query().Get("level"))
		assert.Equal(t, "b1", r.URL.Query().Get("pid"))

		_, _ = w.Write([]byte(`{"level":0,"chash":"z"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)

	h, err := c.FileHash(context.Background(), ByPID("b1"), 0, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "z", h.CHash)
}
