package fetch

import (
	"net/url"
	"strings"

	"vk-archive-loader/internal/model"
)

// Rule maps URLs to a skip category. A rule matches when the URL host is one
// of Hosts (or a subdomain of one), or when the raw URL contains one of
// Contains.
type Rule struct {
	Category string
	Hosts    []string
	Contains []string
}

func (r Rule) matches(raw string, host string) bool {
	for _, s := range r.Contains {
		if s != "" && strings.Contains(raw, s) {
			return true
		}
	}
	for _, h := range r.Hosts {
		h = strings.ToLower(strings.TrimSpace(h))
		if h == "" {
			continue
		}
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}

// DefaultRules is the built-in skip list. Order matters: drive.google.com
// has to be checked before google.com.
func DefaultRules() []Rule {
	return []Rule{
		{Category: "vk_video", Contains: []string{"vk.com/video"}},
		{Category: "vk_contact", Contains: []string{"vk.com/id", "vk.com/public"}},
		{Category: "vk_story", Contains: []string{"vk.com/story"}},
		{Category: "github_link", Hosts: []string{"github.com"}},
		{Category: "aliexpress_link", Hosts: []string{"aliexpress.com", "aliexpress.ru"}},
		{Category: "pastebin_link", Hosts: []string{"pastebin.com"}},
		{Category: "gdrive_link", Hosts: []string{"drive.google.com"}},
		{Category: "google_link", Hosts: []string{"google.com"}},
		{Category: "wikipedia_link", Hosts: []string{"wikipedia.org"}},
		{Category: "adult_link", Hosts: []string{"pornhub.com"}},
		{Category: "telegram_contact", Hosts: []string{"t.me"}},
		{Category: "dns_shop_link", Hosts: []string{"dns-shop.ru"}},
	}
}

type Classifier struct {
	rules []Rule
}

func NewClassifier(rules ...Rule) *Classifier {
	return &Classifier{rules: append([]Rule(nil), rules...)}
}

// Classify settles a URL without network access when it can. It returns a
// Skipped outcome for a rule match, a Failed parse outcome for input that is
// not an absolute http(s) URL, and ok=false when the URL must be resolved.
func (c *Classifier) Classify(raw string) (model.Outcome, bool) {
	trimmed := strings.TrimSpace(raw)
	u, err := url.Parse(trimmed)
	if err != nil {
		return model.Failed{URL: raw, Kind: model.FailParse, Message: err.Error()}, true
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return model.Failed{URL: raw, Kind: model.FailParse, Message: "unsupported scheme " + quoteOrEmpty(u.Scheme)}, true
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return model.Failed{URL: raw, Kind: model.FailParse, Message: "missing host"}, true
	}

	for _, r := range c.rules {
		if r.matches(trimmed, host) {
			return model.Skipped{URL: raw, Category: r.Category}, true
		}
	}
	return nil, false
}

func quoteOrEmpty(s string) string {
	if s == "" {
		return `""`
	}
	return `"` + s + `"`
}
