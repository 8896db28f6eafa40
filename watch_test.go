package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/hidrive-go/internal/hidrive"
)

// scriptedSource returns its results in order, then io.EOF forever.
type scriptedSource struct {
	results []scriptedResult
}

type scriptedResult struct {
	raw string
	err error
}

func (s *scriptedSource) Next(context.Context) (*hidrive.Notification, error) {
	if len(s.results) == 0 {
		return nil, io.EOF
	}

	r := s.results[0]
	s.results = s.results[1:]

	if r.err != nil {
		return nil, r.err
	}

	return &hidrive.Notification{Raw: json.RawMessage(r.raw)}, nil
}

func quietStatus(t *testing.T) {
	t.Helper()

	old := statusWriter
	statusWriter = io.Discard

	t.Cleanup(func() { statusWriter = old })
}

func TestPrintNotifications_UntilEOF(t *testing.T) {
	quietStatus(t)

	src := &scriptedSource{results: []scriptedResult{
		{raw: `{"event":"create","path":"/a"}`},
		{err: &hidrive.DecodeError{Err: errors.New("not an object")}},
		{raw: `{"event":"delete","path":"/b"}`},
	}}

	var out bytes.Buffer
	require.NoError(t, printNotifications(context.Background(), src, &out))

	assert.Equal(t, "{\"event\":\"create\",\"path\":\"/a\"}\n{\"event\":\"delete\",\"path\":\"/b\"}\n", out.String())
}

func TestPrintNotifications_TransportError(t *testing.T) {
	quietStatus(t)

	src := &scriptedSource{results: []scriptedResult{
		{raw: `{"event":"create"}`},
		{err: &hidrive.TransportError{Op: "reading notification", Err: errors.New("reset")}},
	}}

	var out bytes.Buffer
	err := printNotifications(context.Background(), src, &out)

	var te *hidrive.TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "{\"event\":\"create\"}\n", out.String())
}

func TestPrintNotifications_CanceledIsClean(t *testing.T) {
	quietStatus(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	src := &scriptedSource{results: []scriptedResult{{err: context.Canceled}}}

	require.NoError(t, printNotifications(ctx, src, io.Discard))
}
