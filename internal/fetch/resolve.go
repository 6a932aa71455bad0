package fetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html/charset"

	"vk-archive-loader/internal/model"
)

const (
	DefaultProbeTimeout    = 45 * time.Second
	DefaultPageTimeout     = 15 * time.Second
	DefaultDownloadTimeout = 900 * time.Second

	maxPageBytes  = 8 << 20
	drainMaxBytes = 64 << 10
)

// Timeouts are per hop. Probe covers connect and response headers, Page the
// read of an indirection page, Download an asset body (and the headers of a
// second-hop request).
type Timeouts struct {
	Probe    time.Duration
	Page     time.Duration
	Download time.Duration
}

func DefaultTimeouts() Timeouts {
	return Timeouts{Probe: DefaultProbeTimeout, Page: DefaultPageTimeout, Download: DefaultDownloadTimeout}
}

func (t Timeouts) withDefaults() Timeouts {
	d := DefaultTimeouts()
	if t.Probe <= 0 {
		t.Probe = d.Probe
	}
	if t.Page <= 0 {
		t.Page = d.Page
	}
	if t.Download <= 0 {
		t.Download = d.Download
	}
	return t
}

// Resolution is an open response whose body is the asset to store.
type Resolution struct {
	FinalURL    string
	ContentType string
	Body        io.ReadCloser
	hop         *hop
}

func (r *Resolution) Close() error {
	err := r.Body.Close()
	r.hop.finish()
	return err
}

// streamFailure classifies an error hit while reading the body.
func (r *Resolution) streamFailure(url string, err error) model.Failed {
	return r.hop.failure(url, err)
}

type Resolver struct {
	client     *Client
	timeouts   Timeouts
	strategies []Strategy
}

func NewResolver(client *Client, timeouts Timeouts, strategies ...Strategy) *Resolver {
	if len(strategies) == 0 {
		strategies = DefaultStrategies()
	}
	return &Resolver{client: client, timeouts: timeouts.withDefaults(), strategies: strategies}
}

func (r *Resolver) strategyFor(u *url.URL) Strategy {
	for _, s := range r.strategies {
		if s.Match(u) {
			return s
		}
	}
	return nil
}

// Resolve fetches rawURL and returns either an open Resolution or a terminal
// outcome (Unparsed or Failed). Exactly one of the two is non-nil.
func (r *Resolver) Resolve(ctx context.Context, rawURL string) (*Resolution, model.Outcome) {
	requested, err := url.Parse(rawURL)
	if err != nil {
		return nil, model.Failed{URL: rawURL, Kind: model.FailParse, Message: err.Error()}
	}

	h := startHop(ctx, r.timeouts.Probe)
	resp, err := r.client.Get(h.ctx, rawURL)
	if err != nil {
		out := h.failure(rawURL, err)
		h.finish()
		return nil, out
	}
	if !isSuccess(resp.StatusCode) {
		drain(resp)
		h.finish()
		return nil, model.Failed{URL: rawURL, Kind: model.FailHTTP, Status: resp.StatusCode, Message: resp.Status}
	}

	contentType := resp.Header.Get("Content-Type")
	mediaType, _ := SplitMediaType(contentType)
	final := resp.Request.URL

	switch {
	case isDirectMedia(mediaType):
		h.arm(r.timeouts.Download)
		return &Resolution{FinalURL: final.String(), ContentType: contentType, Body: resp.Body, hop: h}, nil

	case isHTML(mediaType):
		strategy := r.strategyFor(requested)
		if strategy == nil {
			drain(resp)
			h.finish()
			return nil, model.Unparsed{URL: rawURL}
		}
		h.arm(r.timeouts.Page)
		page, err := readPage(resp, contentType)
		_ = resp.Body.Close()
		if err != nil {
			out := h.failure(rawURL, err)
			h.finish()
			if out.Kind != model.FailTimeout {
				out.Kind = model.FailParse
			}
			return nil, out
		}
		h.finish()
		if msg, denied := accessDenied(page.Doc); denied {
			return nil, model.Failed{URL: rawURL, Kind: model.FailAccessDenied, Message: msg}
		}
		asset := strategy.Extract(page)
		if asset == "" {
			return nil, model.Unparsed{URL: rawURL}
		}
		assetURL, err := final.Parse(asset)
		if err != nil || (assetURL.Scheme != "http" && assetURL.Scheme != "https") {
			return nil, model.Failed{URL: rawURL, Kind: model.FailParse, Message: fmt.Sprintf("bad %s asset url %q", strategy.Name(), asset)}
		}
		return r.fetchAsset(ctx, rawURL, assetURL.String())

	case final.String() != requested.String():
		h.arm(r.timeouts.Download)
		return &Resolution{FinalURL: final.String(), ContentType: contentType, Body: resp.Body, hop: h}, nil

	default:
		drain(resp)
		h.finish()
		return nil, model.Unparsed{URL: rawURL}
	}
}

// fetchAsset is the second hop. Failures are reported against sourceURL so
// the manifest keeps the link the owner actually had.
func (r *Resolver) fetchAsset(ctx context.Context, sourceURL, assetURL string) (*Resolution, model.Outcome) {
	h := startHop(ctx, r.timeouts.Download)
	resp, err := r.client.Get(h.ctx, assetURL)
	if err != nil {
		out := h.failure(sourceURL, err)
		h.finish()
		return nil, out
	}
	if !isSuccess(resp.StatusCode) {
		drain(resp)
		h.finish()
		return nil, model.Failed{
			URL:     sourceURL,
			Kind:    model.FailHTTP,
			Status:  resp.StatusCode,
			Message: fmt.Sprintf("%s (asset %s)", resp.Status, assetURL),
		}
	}
	return &Resolution{
		FinalURL:    resp.Request.URL.String(),
		ContentType: resp.Header.Get("Content-Type"),
		Body:        resp.Body,
		hop:         h,
	}, nil
}

func readPage(resp *http.Response, contentType string) (*Page, error) {
	reader, err := charset.NewReader(io.LimitReader(resp.Body, maxPageBytes), contentType)
	if err != nil {
		return nil, fmt.Errorf("detect page charset: %w", err)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read page body: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse page markup: %w", err)
	}
	return &Page{URL: resp.Request.URL, Raw: string(data), Doc: doc}, nil
}

func isSuccess(status int) bool {
	return status >= 200 && status <= 299
}

func isDirectMedia(mediaType string) bool {
	return strings.HasPrefix(mediaType, "image/") || strings.HasPrefix(mediaType, "audio/")
}

func isHTML(mediaType string) bool {
	return mediaType == "text/html" || mediaType == "application/xhtml+xml"
}

// drain lets the connection be reused for small leftovers, then closes.
func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, drainMaxBytes))
	_ = resp.Body.Close()
}
