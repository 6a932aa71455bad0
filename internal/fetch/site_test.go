package fetch

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"
)

// fakeSite serves many virtual hosts from one httptest server. Handlers are
// keyed by "host/path".
type fakeSite struct {
	server   *httptest.Server
	handlers map[string]http.HandlerFunc
	calls    atomic.Int64
}

func newFakeSite(t *testing.T, handlers map[string]http.HandlerFunc) *fakeSite {
	t.Helper()
	site := &fakeSite{handlers: handlers}
	site.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h, ok := site.handlers[r.Host+r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		h(w, r)
	}))
	t.Cleanup(site.server.Close)
	return site
}

func (s *fakeSite) RoundTrip(req *http.Request) (*http.Response, error) {
	s.calls.Add(1)
	target, _ := url.Parse(s.server.URL)
	out := req.Clone(req.Context())
	out.URL.Scheme = target.Scheme
	out.URL.Host = target.Host
	out.Host = req.URL.Host
	resp, err := s.server.Client().Transport.RoundTrip(out)
	if err != nil {
		return nil, err
	}
	resp.Request = req
	return resp, nil
}

func (s *fakeSite) client(t *testing.T) *Client {
	t.Helper()
	c, err := NewClient(ClientOptions{Transport: s, UserAgent: "test-agent"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

func htmlPage(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte("<html><body>" + body + "</body></html>"))
	}
}

func blob(contentType, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", contentType)
		_, _ = w.Write([]byte(body))
	}
}

func status(code int) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(code)
	}
}

// stall holds the response back until d passes or the client gives up.
func stall(d time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(d):
		case <-r.Context().Done():
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("late"))
	}
}

var testTimeouts = Timeouts{Probe: 2 * time.Second, Page: 2 * time.Second, Download: 2 * time.Second}
