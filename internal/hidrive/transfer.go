package hidrive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
)

// MaxUploadSize is the largest payload HiDrive accepts in one upload (2 GiB).
// The client does not enforce it; larger uploads fail with the server's
// rejection status.
const MaxUploadSize = 2 << 30

// ProgressFunc receives the cumulative number of bytes transferred so far.
type ProgressFunc func(transferred int64)

// WithBody attaches a streamed request body. size is the exact length in
// bytes, or -1 when unknown (the request is then sent chunked). The body is
// never buffered in full. If body implements io.Seeker it can be resent once
// after a token refresh; otherwise a 401 on upload surfaces as *AuthError.
func (r *Call) WithBody(body io.Reader, size int64) *Call {
	r.body = body
	r.size = size

	return r
}

// WithProgress reports bytes sent (uploads) or written to the sink (downloads).
func (r *Call) WithProgress(fn ProgressFunc) *Call {
	r.progress = fn

	return r
}

// DownloadTo sends the call and streams a 2xx body into w, returning the
// number of bytes written to w. A connection failure, cancellation, or a
// bandwidth wait that outlasts ctx returns a *TransportError; bytes already
// written are not rolled back.
func (r *Call) DownloadTo(ctx context.Context, w io.Writer) (int64, error) {
	resp, err := r.Do(ctx)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	sink := &sinkWriter{
		w:        r.c.limiter.wrapWriter(ctx, w),
		progress: r.progress,
	}

	n, copyErr := io.Copy(sink, resp.Body)
	if copyErr != nil {
		r.c.logger.Error("streaming download content failed",
			slog.String("path", r.path),
			slog.String("error", copyErr.Error()),
			slog.Int64("bytes_before_error", n),
		)

		var transportErr *TransportError

		switch {
		case errors.As(copyErr, &transportErr):
			return n, copyErr
		case ctx.Err() != nil:
			return n, &TransportError{Op: "streaming " + r.path, Err: fmt.Errorf("%w (%v)", ctx.Err(), copyErr)}
		case sink.err != nil:
			return n, fmt.Errorf("hidrive: writing download content: %w", copyErr)
		default:
			return n, &TransportError{Op: "streaming " + r.path, Err: copyErr}
		}
	}

	r.c.logger.Debug("download complete",
		slog.String("path", r.path),
		slog.Int64("bytes_written", n),
	)

	return n, nil
}

// progressReader counts bytes read from an upload body. It also hides any
// io.Closer on the caller's reader so net/http never closes it.
type progressReader struct {
	r        io.Reader
	n        int64
	progress ProgressFunc
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.n += int64(n)

		if p.progress != nil {
			p.progress(p.n)
		}
	}

	return n, err
}

// sinkWriter counts bytes written to a download sink and remembers whether a
// failure came from the sink rather than the response body.
type sinkWriter struct {
	w        io.Writer
	n        int64
	err      error
	progress ProgressFunc
}

func (s *sinkWriter) Write(b []byte) (int, error) {
	n, err := s.w.Write(b)
	if n > 0 {
		s.n += int64(n)

		if s.progress != nil {
			s.progress(s.n)
		}
	}

	if err == nil && n < len(b) {
		err = io.ErrShortWrite
	}

	if err != nil {
		s.err = err
	}

	return n, err
}
