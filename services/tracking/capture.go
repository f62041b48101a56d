package tracking

import (
	"bytes"
	"io"
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/upb/outbound-request-tracker/models"
	"github.com/upb/outbound-request-tracker/services"
)

// Capture builds a log record from a completed exchange. The response body is
// read to completion and replaced with a replayable copy, so resp.Body stays
// fully readable whether or not capture succeeds.
func Capture(req *http.Request, body []byte, resp *http.Response) (*models.OutboundRequestLog, error) {
	if req == nil || resp == nil {
		return nil, services.Wrap(services.ErrNothingToCapture, nil)
	}

	respBody, err := bufferBody(resp)
	if err != nil {
		return nil, services.Wrap(services.ErrBodyUnreadable, err)
	}
	if !utf8.Valid(respBody) {
		return nil, services.Wrap(services.ErrBodyNotText, nil).
			WithDetail("content_type", resp.Header.Get("Content-Type"))
	}

	record := models.NewOutboundRequestLog().
		WithRequest(req.URL.String(), req.Method, ExtractHeaders(req.Header), strings.ToValidUTF8(string(body), "\uFFFD")).
		WithResponse(resp.StatusCode, statusText(resp), ExtractHeaders(resp.Header), string(respBody))

	return record, nil
}

// bufferBody drains and closes resp.Body, then installs a replayable view of
// what was read. On a read error the view yields the bytes read so far
// followed by that same error.
func bufferBody(resp *http.Response) ([]byte, error) {
	if resp.Body == nil || resp.Body == http.NoBody {
		return nil, nil
	}

	data, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()

	resp.Body = replayableBody(data, err)
	if err != nil {
		return nil, err
	}
	return data, nil
}

func replayableBody(data []byte, readErr error) io.ReadCloser {
	if readErr == nil {
		return io.NopCloser(bytes.NewReader(data))
	}
	return io.NopCloser(io.MultiReader(bytes.NewReader(data), errReader{readErr}))
}

type errReader struct {
	err error
}

func (r errReader) Read([]byte) (int, error) {
	return 0, r.err
}

// statusText returns the reason phrase, e.g. "Not Found" for "404 Not Found".
func statusText(resp *http.Response) string {
	text, ok := strings.CutPrefix(resp.Status, strconv.Itoa(resp.StatusCode))
	if !ok {
		text = resp.Status
	}
	if text = strings.TrimSpace(text); text != "" {
		return text
	}
	return http.StatusText(resp.StatusCode)
}
