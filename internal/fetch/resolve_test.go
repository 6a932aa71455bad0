package fetch

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"testing"
	"time"

	"vk-archive-loader/internal/model"
)

func resolveOK(t *testing.T, r *Resolver, rawURL string) (*Resolution, string) {
	t.Helper()
	res, out := r.Resolve(context.Background(), rawURL)
	if out != nil {
		t.Fatalf("resolve %s: unexpected outcome %#v", rawURL, out)
	}
	defer res.Close()
	body, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, string(body)
}

func resolveFailed(t *testing.T, r *Resolver, rawURL string) model.Failed {
	t.Helper()
	res, out := r.Resolve(context.Background(), rawURL)
	if res != nil {
		res.Close()
		t.Fatalf("resolve %s: expected failure, got resolution %s", rawURL, res.FinalURL)
	}
	failed, ok := out.(model.Failed)
	if !ok {
		t.Fatalf("resolve %s: expected Failed, got %#v", rawURL, out)
	}
	return failed
}

func TestResolveDocumentPageFollowsDocURL(t *testing.T) {
	site := newFakeSite(t, map[string]http.HandlerFunc{
		"site.test/doc": htmlPage(`<script>var cfg = {"docUrl": "https:\/\/cdn.test\/file.pdf", "x": 1};</script>`),
		"cdn.test/file.pdf": blob("application/pdf", "%PDF-1.4"),
	})
	r := NewResolver(site.client(t), testTimeouts)

	res, body := resolveOK(t, r, "https://site.test/doc?id=5")
	if res.FinalURL != "https://cdn.test/file.pdf" {
		t.Fatalf("unexpected final url: %q", res.FinalURL)
	}
	if res.ContentType != "application/pdf" {
		t.Fatalf("unexpected content type: %q", res.ContentType)
	}
	if body != "%PDF-1.4" {
		t.Fatalf("unexpected body: %q", body)
	}
}

func TestResolveDocumentFallsBackToImage(t *testing.T) {
	site := newFakeSite(t, map[string]http.HandlerFunc{
		"site.test/doc12_34": htmlPage(`<img src="data:image/gif;base64,AAA"><img src="/preview/p.jpg">`),
		"site.test/preview/p.jpg": blob("image/jpeg", "jpg"),
	})
	r := NewResolver(site.client(t), testTimeouts)

	res, _ := resolveOK(t, r, "https://site.test/doc12_34")
	if res.FinalURL != "https://site.test/preview/p.jpg" {
		t.Fatalf("unexpected final url: %q", res.FinalURL)
	}
}

func TestResolvePhotoPageUsesOpenGraphImage(t *testing.T) {
	site := newFakeSite(t, map[string]http.HandlerFunc{
		"site.test/photo1_2": func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = w.Write([]byte(`<html><head><meta property="og:image" content="https://img.test/big.jpg"></head><body><img src="/thumb.jpg"></body></html>`))
		},
		"img.test/big.jpg": blob("image/jpeg", "big"),
	})
	r := NewResolver(site.client(t), testTimeouts)

	res, body := resolveOK(t, r, "https://site.test/photo1_2")
	if res.FinalURL != "https://img.test/big.jpg" || body != "big" {
		t.Fatalf("unexpected resolution: %q %q", res.FinalURL, body)
	}
}

func TestResolveDirectImage(t *testing.T) {
	site := newFakeSite(t, map[string]http.HandlerFunc{
		"img.test/a.png": blob("image/png", "png-bytes"),
	})
	r := NewResolver(site.client(t), testTimeouts)

	res, body := resolveOK(t, r, "https://img.test/a.png")
	if res.FinalURL != "https://img.test/a.png" || body != "png-bytes" {
		t.Fatalf("unexpected resolution: %q %q", res.FinalURL, body)
	}
	if site.calls.Load() != 1 {
		t.Fatalf("expected one request, got %d", site.calls.Load())
	}
}

func TestResolveRedirectToNonHTMLDownloadsTarget(t *testing.T) {
	site := newFakeSite(t, map[string]http.HandlerFunc{
		"site.test/away": func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, "https://files.test/archive.zip", http.StatusFound)
		},
		"files.test/archive.zip": blob("application/zip", "PK"),
	})
	r := NewResolver(site.client(t), testTimeouts)

	res, body := resolveOK(t, r, "https://site.test/away")
	if res.FinalURL != "https://files.test/archive.zip" || body != "PK" {
		t.Fatalf("unexpected resolution: %q %q", res.FinalURL, body)
	}
}

func TestResolveHTTPErrorStatus(t *testing.T) {
	site := newFakeSite(t, map[string]http.HandlerFunc{
		"site.test/doc1": status(http.StatusForbidden),
	})
	r := NewResolver(site.client(t), testTimeouts)

	failed := resolveFailed(t, r, "https://site.test/doc1")
	if failed.Kind != model.FailHTTP || failed.Status != http.StatusForbidden {
		t.Fatalf("unexpected failure: %#v", failed)
	}
	if failed.ManifestKey() != "error_http" {
		t.Fatalf("unexpected manifest key: %q", failed.ManifestKey())
	}
	if failed.Retryable() {
		t.Fatalf("403 must not be retryable")
	}
}

func TestResolveSecondHopErrorKeepsSourceURL(t *testing.T) {
	site := newFakeSite(t, map[string]http.HandlerFunc{
		"site.test/doc9": htmlPage(`<iframe src="https://cdn.test/gone.pdf"></iframe>`),
		"cdn.test/gone.pdf": status(http.StatusServiceUnavailable),
	})
	r := NewResolver(site.client(t), testTimeouts)

	failed := resolveFailed(t, r, "https://site.test/doc9")
	if failed.URL != "https://site.test/doc9" {
		t.Fatalf("failure should carry the source url, got %q", failed.URL)
	}
	if failed.Kind != model.FailHTTP || failed.Status != http.StatusServiceUnavailable || !failed.Retryable() {
		t.Fatalf("unexpected failure: %#v", failed)
	}
}

func TestResolveAccessDenied(t *testing.T) {
	site := newFakeSite(t, map[string]http.HandlerFunc{
		"site.test/doc7": htmlPage(`<div class="message_page_title">Ошибка</div><div class="message_page_body">
			Доступ запрещён.
		</div><img src="/x.jpg">`),
	})
	r := NewResolver(site.client(t), testTimeouts)

	failed := resolveFailed(t, r, "https://site.test/doc7")
	if failed.Kind != model.FailAccessDenied {
		t.Fatalf("unexpected failure kind: %#v", failed)
	}
	if failed.Message != "Ошибка: Доступ запрещён." {
		t.Fatalf("unexpected message: %q", failed.Message)
	}
}

func TestResolveUnparsedPages(t *testing.T) {
	site := newFakeSite(t, map[string]http.HandlerFunc{
		"site.test/wall1_1": htmlPage(`<img src="/a.jpg">`),
		"site.test/doc0":    htmlPage(`<p>nothing here</p>`),
		"site.test/data":    blob("application/json", `{}`),
	})
	r := NewResolver(site.client(t), testTimeouts)

	for _, raw := range []string{
		"https://site.test/wall1_1",
		"https://site.test/doc0",
		"https://site.test/data",
	} {
		res, out := r.Resolve(context.Background(), raw)
		if res != nil {
			res.Close()
			t.Fatalf("%s: expected unparsed, got resolution", raw)
		}
		if u, ok := out.(model.Unparsed); !ok || u.URL != raw {
			t.Fatalf("%s: expected Unparsed, got %#v", raw, out)
		}
	}
}

func TestResolveProbeTimeout(t *testing.T) {
	site := newFakeSite(t, map[string]http.HandlerFunc{
		"site.test/slow.png": stall(2 * time.Second),
	})
	r := NewResolver(site.client(t), Timeouts{Probe: 50 * time.Millisecond, Page: time.Second, Download: time.Second})

	started := time.Now()
	failed := resolveFailed(t, r, "https://site.test/slow.png")
	if failed.Kind != model.FailTimeout {
		t.Fatalf("expected timeout, got %#v", failed)
	}
	if time.Since(started) > time.Second {
		t.Fatalf("probe timeout was not enforced")
	}
	if !failed.Retryable() {
		t.Fatalf("timeouts should be retryable")
	}
}

func TestResolveTransportErrorIsHTTP(t *testing.T) {
	c, err := NewClient(ClientOptions{Transport: failingTransport{}})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	r := NewResolver(c, testTimeouts)

	failed := resolveFailed(t, r, "https://site.test/a.png")
	if failed.Kind != model.FailHTTP || failed.Status != 0 {
		t.Fatalf("unexpected failure: %#v", failed)
	}
}

type failingTransport struct{}

func (failingTransport) RoundTrip(*http.Request) (*http.Response, error) {
	return nil, io.ErrUnexpectedEOF
}

func TestResolveOnlyViewerPathsUseStrategies(t *testing.T) {
	site := newFakeSite(t, map[string]http.HandlerFunc{
		"golang.test/documentation/effective": htmlPage(`<img src="/logo.png">`),
		"blog.test/photography/tips":          htmlPage(`<img src="/banner.png">`),
		"site.test/docs":                      htmlPage(`<script>{"docUrl":"https:\/\/cdn.test\/x.pdf"}</script>`),
		"site.test/photos":                    htmlPage(`<meta property="og:image" content="https://img.test/a.jpg">`),
		"golang.test/logo.png":                blob("image/png", "logo"),
		"blog.test/banner.png":                blob("image/png", "banner"),
	})
	r := NewResolver(site.client(t), testTimeouts)

	for _, raw := range []string{
		"https://golang.test/documentation/effective",
		"https://blog.test/photography/tips",
		"https://site.test/docs",
		"https://site.test/photos",
	} {
		res, out := r.Resolve(context.Background(), raw)
		if res != nil {
			res.Close()
			t.Fatalf("%s: expected unparsed, got resolution %s", raw, res.FinalURL)
		}
		if _, ok := out.(model.Unparsed); !ok {
			t.Fatalf("%s: expected Unparsed, got %#v", raw, out)
		}
	}
}

func TestViewerStrategiesMatch(t *testing.T) {
	cases := []struct {
		path  string
		doc   bool
		photo bool
	}{
		{"/doc", true, false},
		{"/doc12_34", true, false},
		{"/doc-5_6", true, false},
		{"/photo1_2", false, true},
		{"/photo-77_8", false, true},
		{"/docs", false, false},
		{"/doctor", false, false},
		{"/documentation/effective", false, false},
		{"/doc12_34/extra", false, false},
		{"/photography/tips", false, false},
		{"/photos", false, false},
	}
	for _, tc := range cases {
		u := &url.URL{Scheme: "https", Host: "vk.com", Path: tc.path}
		if got := DocumentStrategy().Match(u); got != tc.doc {
			t.Fatalf("document match %q = %t; want %t", tc.path, got, tc.doc)
		}
		if got := PhotoStrategy().Match(u); got != tc.photo {
			t.Fatalf("photo match %q = %t; want %t", tc.path, got, tc.photo)
		}
	}
}
