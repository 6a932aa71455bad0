package fetch

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/corpix/uarand"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/time/rate"
)

const (
	DefaultAcceptLanguage = "ru"
	defaultCookieHost     = "vk.com"
	maxRedirects          = 10
)

type ClientOptions struct {
	Cookies           []*http.Cookie
	VerifySSL         bool
	Proxy             string
	UserAgent         string
	AcceptLanguage    string
	DialTimeout       time.Duration
	RequestsPerSecond float64
	// Transport replaces the default transport; tests route hosts with it.
	Transport http.RoundTripper
}

// Client issues the GETs for every hop. Timeouts come from the caller's
// context, not from the client, so each hop can carry its own budget.
type Client struct {
	http           *http.Client
	limiter        *rate.Limiter
	userAgent      string
	acceptLanguage string
}

func NewClient(opts ClientOptions) (*Client, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}
	installCookies(jar, opts.Cookies)

	transport := opts.Transport
	if transport == nil {
		t, err := newTransport(opts)
		if err != nil {
			return nil, err
		}
		transport = t
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RequestsPerSecond > 0 {
		burst := int(opts.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}

	userAgent := strings.TrimSpace(opts.UserAgent)
	if userAgent == "" {
		userAgent = uarand.GetRandom()
	}

	return &Client{
		http: &http.Client{
			Transport: transport,
			Jar:       jar,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("stopped after %d redirects", maxRedirects)
				}
				return nil
			},
		},
		limiter:        limiter,
		userAgent:      userAgent,
		acceptLanguage: firstNonEmpty(opts.AcceptLanguage, DefaultAcceptLanguage),
	}, nil
}

func newTransport(opts ClientOptions) (*http.Transport, error) {
	dialTimeout := opts.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 30 * time.Second
	}
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.DialContext = (&net.Dialer{Timeout: dialTimeout, KeepAlive: 30 * time.Second}).DialContext
	t.MaxIdleConnsPerHost = 16
	if !opts.VerifySSL {
		t.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	if p := strings.TrimSpace(opts.Proxy); p != "" {
		proxyURL, err := url.Parse(p)
		if err != nil {
			return nil, fmt.Errorf("parse proxy %q: %w", p, err)
		}
		t.Proxy = http.ProxyURL(proxyURL)
	}
	return t, nil
}

// installCookies files each cookie under its own domain, or under vk.com
// when the cookie carries none.
func installCookies(jar http.CookieJar, cookies []*http.Cookie) {
	byHost := make(map[string][]*http.Cookie)
	order := make([]string, 0)
	for _, c := range cookies {
		if c == nil || c.Name == "" {
			continue
		}
		host := strings.TrimPrefix(strings.TrimSpace(c.Domain), ".")
		if host == "" {
			host = defaultCookieHost
			cc := *c
			cc.Domain = "." + defaultCookieHost
			c = &cc
		}
		if _, seen := byHost[host]; !seen {
			order = append(order, host)
		}
		byHost[host] = append(byHost[host], c)
	}
	for _, host := range order {
		jar.SetCookies(&url.URL{Scheme: "https", Host: host, Path: "/"}, byHost[host])
	}
}

// Get waits for the rate limiter, then issues the request under ctx.
func (c *Client) Get(ctx context.Context, rawURL string) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request %s: %w", rawURL, err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept-Language", c.acceptLanguage)
	return c.http.Do(req)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
