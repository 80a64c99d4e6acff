package http

import (
	"bytes"
	"fmt"
	"io"
	"net/http"

	"github.com/artpar/apiward/app"
	"github.com/artpar/apiward/domain/govern"
)

// Transport is an http.RoundTripper that routes every request through a
// Governor. Installing it on an http.Client governs that client without
// running a local proxy.
//
//	client := &http.Client{Transport: apihttp.NewTransport(gov)}
type Transport struct {
	gov *app.Governor
}

// NewTransport wraps the governor as a RoundTripper.
func NewTransport(gov *app.Governor) *Transport {
	return &Transport{gov: gov}
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	var body []byte
	if req.Body != nil {
		b, err := io.ReadAll(req.Body)
		req.Body.Close()
		if err != nil {
			return nil, err
		}
		body = b
	}

	headers := make(map[string]string, len(req.Header))
	for k := range req.Header {
		if !skipHeaders[k] {
			headers[k] = req.Header.Get(k)
		}
	}

	resp, err := t.gov.Handle(req.Context(), govern.Request{
		Method:  req.Method,
		URL:     req.URL.String(),
		Headers: headers,
		Body:    body,
		TraceID: req.Header.Get("X-Request-Id"),
	})
	if err != nil {
		return nil, err
	}

	header := make(http.Header, len(resp.Headers))
	for k, v := range resp.Headers {
		header.Set(k, v)
	}

	return &http.Response{
		StatusCode:    resp.Status,
		Status:        fmt.Sprintf("%d %s", resp.Status, http.StatusText(resp.Status)),
		Proto:         req.Proto,
		ProtoMajor:    req.ProtoMajor,
		ProtoMinor:    req.ProtoMinor,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(resp.Body)),
		ContentLength: int64(len(resp.Body)),
		Request:       req,
	}, nil
}
