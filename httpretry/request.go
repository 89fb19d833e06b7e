package httpretry

import (
	"bytes"
	"context"
	"fmt"
	"net/http"

	json "github.com/goccy/go-json"
)

// Request describes an HTTP call. It is a value: every attempt builds a fresh
// *http.Request from it, and Clone gives an independent copy to modify.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// GET returns a JSON GET request for url.
func GET(url string) Request {
	return Request{
		Method: http.MethodGet,
		URL:    url,
		Header: http.Header{"Accept": {"application/json"}},
	}
}

// POSTJSON returns a POST request for url carrying data encoded as JSON.
func POSTJSON(url string, data any) (Request, error) {
	body, err := json.Marshal(data)
	if err != nil {
		return Request{}, fmt.Errorf("httpretry: encode body: %w", err)
	}
	return Request{
		Method: http.MethodPost,
		URL:    url,
		Header: http.Header{
			"Accept":       {"application/json"},
			"Content-Type": {"application/json"},
		},
		Body: body,
	}, nil
}

// Clone returns a deep copy of r.
func (r Request) Clone() Request {
	c := r
	c.Header = r.Header.Clone()
	if r.Body != nil {
		c.Body = bytes.Clone(r.Body)
	}
	return c
}

func (r Request) build(ctx context.Context) (*http.Request, error) {
	method := r.Method
	if method == "" {
		method = http.MethodGet
	}
	req, err := http.NewRequestWithContext(ctx, method, r.URL, bytes.NewReader(r.Body))
	if err != nil {
		return nil, fmt.Errorf("httpretry: build request: %w", err)
	}
	req.Header = r.Header.Clone()
	if req.Header == nil {
		req.Header = make(http.Header)
	}
	return req, nil
}
