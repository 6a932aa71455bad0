package fetch

import (
	"encoding/json"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Page is a fetched indirection page, decoded to UTF-8.
type Page struct {
	URL *url.URL
	Raw string
	Doc *goquery.Document
}

// Strategy extracts the direct asset URL from one kind of viewer page.
type Strategy interface {
	Name() string
	Match(u *url.URL) bool
	Extract(p *Page) string
}

type viewerStrategy struct {
	name    string
	path    *regexp.Regexp
	extract func(p *Page) string
}

func (s viewerStrategy) Name() string { return s.name }

func (s viewerStrategy) Match(u *url.URL) bool {
	return s.path.MatchString(strings.ToLower(u.Path))
}

func (s viewerStrategy) Extract(p *Page) string { return s.extract(p) }

// Viewer paths are the bare segment or the segment followed by an owner id,
// as in /doc, /doc12_34 or /photo-5_6. /docs or /photography do not match.
var (
	documentViewerPath = regexp.MustCompile(`^/doc(-?\d[^/]*)?/?$`)
	photoViewerPath    = regexp.MustCompile(`^/photo(-?\d[^/]*)?/?$`)
)

// DocumentStrategy handles document viewer pages (/doc, /doc{owner}_{id}).
func DocumentStrategy() Strategy {
	return viewerStrategy{name: "document", path: documentViewerPath, extract: extractDocument}
}

// PhotoStrategy handles photo viewer pages (/photo, /photo{owner}_{id}).
func PhotoStrategy() Strategy {
	return viewerStrategy{name: "photo", path: photoViewerPath, extract: extractPhoto}
}

func DefaultStrategies() []Strategy {
	return []Strategy{DocumentStrategy(), PhotoStrategy()}
}

var docURLPattern = regexp.MustCompile(`docUrl"\s*:\s*"((?:[^"\\]|\\.)*)"`)

func extractDocument(p *Page) string {
	if m := docURLPattern.FindStringSubmatch(p.Raw); len(m) > 1 {
		if v := unescapeJSONString(m[1]); v != "" {
			return v
		}
	}
	if v := firstAttr(p.Doc, "img", "src"); v != "" {
		return v
	}
	return firstAttr(p.Doc, "iframe", "src")
}

func extractPhoto(p *Page) string {
	if v := firstAttr(p.Doc, `meta[property="og:image"]`, "content"); v != "" {
		return v
	}
	return firstAttr(p.Doc, "img", "src")
}

func firstAttr(doc *goquery.Document, selector, attr string) string {
	var out string
	doc.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if v, ok := s.Attr(attr); ok && strings.TrimSpace(v) != "" && !strings.HasPrefix(v, "data:") {
			out = strings.TrimSpace(v)
			return false
		}
		return true
	})
	return out
}

func unescapeJSONString(s string) string {
	var out string
	if err := json.Unmarshal([]byte(`"`+s+`"`), &out); err != nil {
		return strings.ReplaceAll(s, `\/`, `/`)
	}
	return strings.TrimSpace(out)
}

const accessDeniedMarker = "Ошибка"

// accessDenied reports the site's error banner, with its body text when the
// page carries one.
func accessDenied(doc *goquery.Document) (string, bool) {
	title := strings.TrimSpace(doc.Find("div.message_page_title").First().Text())
	if title == "" || !strings.Contains(title, accessDeniedMarker) {
		return "", false
	}
	body := strings.Join(strings.Fields(doc.Find("div.message_page_body").First().Text()), " ")
	if body == "" {
		return title, true
	}
	return title + ": " + body, true
}
