package offline

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// capture is a fully read origin response: the explicit result the
// strategies branch on instead of catching transport errors mid-stream.
// A non-nil fetch error always means the transport failed; a capture with
// a non-ok status is an upstream error and is passed through uncached.
type capture struct {
	Status int
	Header http.Header
	Body   []byte
}

func (c capture) ok() bool { return c.Status >= 200 && c.Status < 300 }

// resolveTarget maps an intercepted request to the URL it should be fetched
// from. Absolute-form requests keep their own URL; requests addressed to a
// configured data host are forwarded there; everything else belongs to the
// app origin.
func (s *Service) resolveTarget(r *http.Request) *url.URL {
	if r.URL.IsAbs() {
		return r.URL
	}
	if r.Host != "" && s.classifier.matchesDataHost(r.Host) {
		u := *r.URL
		u.Scheme = "https"
		u.Host = strings.ToLower(r.Host)
		return &u
	}
	return s.originJoin(r.URL.RequestURI())
}

func (s *Service) originJoin(uri string) *url.URL {
	u, err := url.Parse(s.cfg.Server.Origin + uri)
	if err != nil {
		copied := *s.cfg.Server.originURL
		return &copied
	}
	return u
}

// fetchOrigin performs one GET against target with the intercepted request's
// headers. The response body is read to completion before returning so the
// caller holds an atomically storable blob.
func (s *Service) fetchOrigin(ctx context.Context, target *url.URL, header http.Header) (capture, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return capture{}, fmt.Errorf("build origin request: %w", err)
	}
	copyHeaders(req.Header, header)
	req.Header.Set("Accept-Encoding", "identity")
	return s.doCapture(req)
}

// forwardOrigin replays an unhandled request verbatim: method, headers and
// body all pass through.
func (s *Service) forwardOrigin(r *http.Request) (capture, error) {
	target := s.resolveTarget(r)
	req, err := http.NewRequestWithContext(r.Context(), r.Method, target.String(), r.Body)
	if err != nil {
		return capture{}, fmt.Errorf("build origin request: %w", err)
	}
	copyHeaders(req.Header, r.Header)
	req.ContentLength = r.ContentLength
	return s.doCapture(req)
}

func (s *Service) doCapture(req *http.Request) (capture, error) {
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return capture{}, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return capture{}, err
	}

	header := cloneHeader(resp.Header)
	header.Del("Content-Length")
	return capture{Status: resp.StatusCode, Header: header, Body: body}, nil
}

func copyHeaders(dst, src http.Header) {
	for k, vs := range src {
		if strings.EqualFold(k, "Host") {
			continue
		}
		for _, v := range vs {
			dst.Add(k, v)
		}
	}
}
