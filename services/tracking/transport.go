package tracking

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
)

// Transport is an http.RoundTripper that tracks every exchange made through Base
type Transport struct {
	Base        http.RoundTripper
	Interceptor *Interceptor
}

// NewTransport wraps base. A nil base uses http.DefaultTransport.
func NewTransport(base http.RoundTripper, interceptor *Interceptor) *Transport {
	return &Transport{
		Base:        base,
		Interceptor: interceptor,
	}
}

// WrapClient returns a copy of client whose transport tracks every request
func WrapClient(client *http.Client, interceptor *Interceptor) *http.Client {
	if client == nil {
		client = &http.Client{}
	}
	wrapped := *client
	wrapped.Transport = NewTransport(client.Transport, interceptor)
	return &wrapped
}

// RoundTrip implements http.RoundTripper. The request body is buffered so it
// can be both sent and recorded; req itself is not modified.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	body, err := drainRequestBody(req)
	if err != nil {
		return nil, err
	}

	out := req.Clone(req.Context())
	if body != nil {
		out.Body = io.NopCloser(bytes.NewReader(body))
		out.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(body)), nil
		}
	}

	return t.Interceptor.Intercept(out, body, t.execute)
}

func (t *Transport) execute(req *http.Request, _ []byte) (*http.Response, error) {
	return t.base().RoundTrip(req)
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

func drainRequestBody(req *http.Request) ([]byte, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	defer req.Body.Close()

	body, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read request body: %w", err)
	}
	return body, nil
}
