package hidrive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// maxErrorBody caps how much of a failure response is read for diagnostics.
const maxErrorBody = 1 << 20

// errorEnvelope mirrors the HiDrive error JSON.
type errorEnvelope struct {
	Message string     `json:"msg"`
	Code    flexString `json:"code"`
	Auth    flexString `json:"auth"`
}

// flexString accepts a JSON string or number. HiDrive sends error codes as
// either depending on the endpoint.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}

	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}

		*f = flexString(s)

		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("code is neither string nor number: %w", err)
	}

	*f = flexString(n.String())

	return nil
}

// Decode sends the call and decodes a 2xx JSON body into v. A nil v means
// the caller wants no value: any 2xx body is drained and ignored.
func (r *Call) Decode(ctx context.Context, v any) error {
	resp, err := r.Do(ctx)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return decodeSuccess(resp, v)
}

// decodeSuccess decodes a 2xx response body into v, or discards it when v is nil.
func decodeSuccess(resp *http.Response, v any) error {
	if v == nil {
		if _, err := io.Copy(io.Discard, resp.Body); err != nil {
			return &TransportError{Op: "draining response body", Err: err}
		}

		return nil
	}

	body := &errRecorder{r: resp.Body}

	if err := json.NewDecoder(body).Decode(v); err != nil {
		if body.err != nil {
			return &TransportError{Op: "reading response body", Err: body.err}
		}

		return &DecodeError{StatusCode: resp.StatusCode, Err: err}
	}

	return nil
}

// errRecorder remembers the first non-EOF read error so a connection dying
// mid-body is reported as a transport failure rather than malformed JSON.
type errRecorder struct {
	r   io.Reader
	err error
}

func (e *errRecorder) Read(p []byte) (int, error) {
	n, err := e.r.Read(p)
	if err != nil && !errors.Is(err, io.EOF) && e.err == nil {
		e.err = err
	}

	return n, err
}

// classifyResponse reads and closes a non-2xx response and returns the
// matching *APIError or *HTTPError.
func classifyResponse(resp *http.Response) error {
	defer resp.Body.Close()

	body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if readErr != nil {
		body = []byte("(failed to read response body)")
	}

	sentinel := classifyStatus(resp.StatusCode)

	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err == nil && (env.Message != "" || env.Code != "") {
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    env.Message,
			Code:       string(env.Code),
			Auth:       string(env.Auth),
			Err:        sentinel,
		}
	}

	return &HTTPError{
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(body)),
		Err:        sentinel,
	}
}
