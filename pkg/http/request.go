package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/milan604/feedclient/pkg/apperr"
	"github.com/milan604/feedclient/pkg/version"
)

// maxReplays bounds how often one logical request may be re-sent after a 401.
const maxReplays = 1

// Request describes one API call. It is rebuilt into a fresh *http.Request for every attempt so
// bodies can be replayed.
type Request struct {
	Method    string
	Path      string // relative to the base URL, or absolute
	Query     url.Values
	Body      any // JSON encoded when set
	Multipart *Multipart
	Header    http.Header
	// SkipAuth sends no bearer token and never triggers a refresh.
	SkipAuth bool
	// Upload selects the upload timeout.
	Upload bool

	attempt int
	bearer  string
}

// Attempt is 0 for the original send and 1 for the replay.
func (r *Request) Attempt() int { return r.attempt }

// retry returns the replay of r, or false when r was already replayed.
func (r *Request) retry() (*Request, bool) {
	if r.attempt >= maxReplays {
		return nil, false
	}
	c := *r
	c.Header = r.Header.Clone()
	c.attempt = r.attempt + 1
	c.bearer = ""
	return &c, true
}

func (r *Request) isUpload() bool { return r.Upload || r.Multipart != nil }

func (c *Client) resolve(path string, query url.Values) string {
	var u string
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		u = path
	} else {
		if !strings.HasPrefix(path, "/") {
			path = "/" + path
		}
		u = c.baseURL + path
	}
	if len(query) > 0 {
		sep := "?"
		if strings.Contains(u, "?") {
			sep = "&"
		}
		u += sep + query.Encode()
	}
	return u
}

// newHTTPRequest builds the wire request for one attempt of r.
func (c *Client) newHTTPRequest(ctx context.Context, r *Request) (*http.Request, error) {
	method := r.Method
	if method == "" {
		method = http.MethodGet
	}
	target := c.resolve(r.Path, r.Query)

	var (
		body        io.Reader
		contentType string
	)
	switch {
	case r.Multipart != nil:
		rc, ct, err := r.Multipart.open()
		if err != nil {
			return nil, apperr.New(apperr.ErrorCodeFileUnreadable).WithRequest(method, target).Wrap(err)
		}
		body, contentType = rc, ct
	case r.Body != nil:
		b, err := json.Marshal(r.Body)
		if err != nil {
			return nil, apperr.New(apperr.ErrorCodeInvalidRequest).WithRequest(method, target).
				Wrap(fmt.Errorf("encode request body: %w", err))
		}
		body, contentType = bytes.NewReader(b), "application/json"
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		if closer, ok := body.(io.Closer); ok {
			closer.Close()
		}
		return nil, apperr.New(apperr.ErrorCodeInvalidRequest).WithRequest(method, target).Wrap(err)
	}

	for k, vs := range c.headers {
		req.Header[k] = append([]string(nil), vs...)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	req.Header.Set("X-Request-ID", uuid.NewString())
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for k, vs := range r.Header {
		req.Header[http.CanonicalHeaderKey(k)] = append([]string(nil), vs...)
	}
	return req, nil
}
