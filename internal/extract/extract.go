package extract

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"
	"golang.org/x/sync/errgroup"

	"vk-archive-loader/internal/model"
)

const (
	DefaultEncoding = "windows-1251"
	DefaultVKURL    = "https://vk.com/"

	LikesOwnerKey     = "likes"
	DocumentsOwnerKey = "documents"

	dialogFirstPage   = "messages0.html"
	documentsPageName = "documents.html"
	htmlExtension     = ".html"
)

// Folders are category folder names relative to the archive root. An empty
// name disables the category.
type Folders struct {
	Messages string
	Likes    string
	Photos   string
	Profile  string
}

type Options struct {
	ArchiveDir string
	Folders    Folders
	Encoding   string
	CoreCount  int
	VKURL      string
	Logger     logrus.FieldLogger
}

// Extractor reads an unpacked archive export and groups its attachment links
// by owner.
type Extractor struct {
	opts Options
	log  logrus.FieldLogger
}

func New(opts Options) *Extractor {
	if strings.TrimSpace(opts.Encoding) == "" {
		opts.Encoding = DefaultEncoding
	}
	if opts.CoreCount <= 0 {
		opts.CoreCount = runtime.NumCPU()
	}
	if strings.TrimSpace(opts.VKURL) == "" {
		opts.VKURL = DefaultVKURL
	}
	if !strings.HasSuffix(opts.VKURL, "/") {
		opts.VKURL += "/"
	}
	log := opts.Logger
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	return &Extractor{opts: opts, log: log}
}

// Groups walks every enabled category in a fixed order: messages,
// likes_photo, photos, profile. A missing category folder is logged and
// skipped.
func (e *Extractor) Groups(ctx context.Context) ([]model.OwnerGroup, error) {
	steps := []struct {
		category string
		folder   string
		run      func(context.Context, string) ([]model.OwnerGroup, error)
	}{
		{model.CategoryMessages, e.opts.Folders.Messages, e.messages},
		{model.CategoryLikesPhoto, e.opts.Folders.Likes, e.likes},
		{model.CategoryPhotos, e.opts.Folders.Photos, e.photos},
		{model.CategoryProfile, e.opts.Folders.Profile, e.profile},
	}

	var out []model.OwnerGroup
	total := 0
	for _, step := range steps {
		if strings.TrimSpace(step.folder) == "" {
			e.log.WithField("category", step.category).Debug("category disabled")
			continue
		}
		dir := filepath.Join(e.opts.ArchiveDir, step.folder)
		if _, err := os.Stat(dir); err != nil {
			if os.IsNotExist(err) {
				e.log.WithFields(logrus.Fields{"category": step.category, "path": dir}).Warn("category folder not found, skipped")
				continue
			}
			return nil, fmt.Errorf("stat %s folder %s: %w", step.category, dir, err)
		}
		groups, err := step.run(ctx, dir)
		if err != nil {
			return nil, fmt.Errorf("extract %s: %w", step.category, err)
		}
		links := 0
		for _, g := range groups {
			links += g.LinkCount()
		}
		e.log.WithFields(logrus.Fields{"category": step.category, "owners": len(groups), "links": links}).Info("links found")
		total += links
		out = append(out, groups...)
	}
	e.log.WithField("links", total).Info("extraction total")
	return out, nil
}

type datedLink struct {
	date string
	url  string
}

type messagePage struct {
	crumb string
	links []datedLink
}

func (e *Extractor) messages(ctx context.Context, root string) ([]model.OwnerGroup, error) {
	dirs, err := listEntries(root, true, "")
	if err != nil {
		return nil, err
	}
	groups := make([]model.OwnerGroup, 0, len(dirs))
	for _, name := range dirs {
		dialogDir := filepath.Join(root, name)
		files, err := listEntries(dialogDir, false, htmlExtension)
		if err != nil {
			return nil, err
		}
		pages, err := parseFiles(ctx, e, dialogDir, files, parseMessagePage)
		if err != nil {
			return nil, err
		}

		kind := "id"
		if strings.Contains(name, "-") {
			kind = "public"
		}
		id := strings.ReplaceAll(name, "-", "")
		g := model.OwnerGroup{
			Category: model.CategoryMessages,
			Class:    model.ClassSmall,
			Owner:    model.Owner{Key: id, Link: e.opts.VKURL + kind + id},
		}
		for i, p := range pages {
			if p == nil {
				continue
			}
			if files[i] == dialogFirstPage {
				g.Owner.Name = p.crumb
			}
			for _, l := range p.links {
				g.AddLinks(l.date, l.url)
			}
		}
		e.log.WithFields(logrus.Fields{"dialog": g.Owner.Link, "name": g.Owner.Name, "links": g.LinkCount()}).Debug("dialog read")
		if g.LinkCount() == 0 {
			continue
		}
		groups = append(groups, g)
	}
	return groups, nil
}

func parseMessagePage(doc *goquery.Document) *messagePage {
	page := &messagePage{crumb: crumb(doc)}
	doc.Find("div.item__main").Each(func(_ int, item *goquery.Selection) {
		href, ok := item.Find("a.attachment__link").First().Attr("href")
		if !ok || strings.TrimSpace(href) == "" {
			return
		}
		date := model.NoDateBucket
		if header := item.Find("div.message__header").First(); header.Length() > 0 {
			date = messageDate(header.Text())
		}
		page.links = append(page.links, datedLink{date: date, url: strings.TrimSpace(href)})
	})
	return page
}

func (e *Extractor) likes(ctx context.Context, root string) ([]model.OwnerGroup, error) {
	files, err := listEntries(root, false, htmlExtension)
	if err != nil {
		return nil, err
	}
	pages, err := parseFiles(ctx, e, root, files, func(doc *goquery.Document) []string {
		var urls []string
		doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
			href := strings.TrimSpace(a.AttrOr("href", ""))
			if strings.Contains(href, "vk.com") {
				urls = append(urls, href)
			}
		})
		return urls
	})
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	var urls []string
	for _, p := range pages {
		for _, u := range p {
			if _, dup := seen[u]; dup {
				continue
			}
			seen[u] = struct{}{}
			urls = append(urls, u)
		}
	}
	if len(urls) == 0 {
		return nil, nil
	}
	g := model.OwnerGroup{Category: model.CategoryLikesPhoto, Class: model.ClassBig, Owner: model.Owner{Key: LikesOwnerKey}}
	g.AddLinks(model.NoDateBucket, urls...)
	return []model.OwnerGroup{g}, nil
}

type albumPage struct {
	album string
	links []datedLink
}

func (e *Extractor) photos(ctx context.Context, root string) ([]model.OwnerGroup, error) {
	files, err := listEntries(root, false, htmlExtension)
	if err != nil {
		return nil, err
	}
	pages, err := parseFiles(ctx, e, root, files, func(doc *goquery.Document) *albumPage {
		page := &albumPage{album: crumb(doc)}
		doc.Find("div.item").Each(func(_ int, item *goquery.Selection) {
			src := strings.TrimSpace(item.Find("img").First().AttrOr("src", ""))
			if !strings.Contains(src, "http") {
				return
			}
			date := NormalizeDate(item.Find("div.clear_fix").First().Text())
			page.links = append(page.links, datedLink{date: date, url: src})
		})
		return page
	})
	if err != nil {
		return nil, err
	}

	index := make(map[string]int)
	var groups []model.OwnerGroup
	for i, p := range pages {
		if p == nil || len(p.links) == 0 {
			continue
		}
		album := p.album
		if album == "" {
			album = strings.TrimSuffix(files[i], filepath.Ext(files[i]))
		}
		at, ok := index[album]
		if !ok {
			at = len(groups)
			index[album] = at
			groups = append(groups, model.OwnerGroup{
				Category: model.CategoryPhotos,
				Class:    model.ClassSmall,
				Owner:    model.Owner{Key: album},
			})
		}
		for _, l := range p.links {
			groups[at].AddLinks(l.date, l.url)
		}
	}
	return groups, nil
}

func (e *Extractor) profile(ctx context.Context, root string) ([]model.OwnerGroup, error) {
	if _, err := os.Stat(filepath.Join(root, documentsPageName)); err != nil {
		if os.IsNotExist(err) {
			e.log.WithField("path", root).Warn("no documents page in profile folder")
			return nil, nil
		}
		return nil, fmt.Errorf("stat documents page: %w", err)
	}
	pages, err := parseFiles(ctx, e, root, []string{documentsPageName}, func(doc *goquery.Document) []datedLink {
		var links []datedLink
		doc.Find("div.item").Each(func(_ int, item *goquery.Selection) {
			href := strings.TrimSpace(item.Find("a[href]").First().AttrOr("href", ""))
			if href == "" {
				return
			}
			date := NormalizeDate(item.Find("div.item__tertiary").First().Text())
			links = append(links, datedLink{date: date, url: href})
		})
		return links
	})
	if err != nil {
		return nil, err
	}

	g := model.OwnerGroup{Category: model.CategoryProfile, Class: model.ClassBig, Owner: model.Owner{Key: DocumentsOwnerKey}}
	for _, l := range pages[0] {
		g.AddLinks(l.date, l.url)
	}
	if g.LinkCount() == 0 {
		return nil, nil
	}
	return []model.OwnerGroup{g}, nil
}

func crumb(doc *goquery.Document) string {
	return strings.Join(strings.Fields(doc.Find("div.ui_crumb").First().Text()), " ")
}

// parseFiles parses names under dir in parallel, at most CoreCount at a time.
// Results keep the order of names. A file that cannot be read or decoded is
// logged and leaves a zero value in its slot.
func parseFiles[T any](ctx context.Context, e *Extractor, dir string, names []string, parse func(*goquery.Document) T) ([]T, error) {
	out := make([]T, len(names))
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(e.opts.CoreCount)
	for i, name := range names {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			path := filepath.Join(dir, name)
			doc, err := e.load(path)
			if err != nil {
				e.log.WithError(err).WithField("path", path).Error("file skipped")
				return nil
			}
			out[i] = parse(doc)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (e *Extractor) load(path string) (*goquery.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	r, err := charset.NewReaderLabel(e.opts.Encoding, f)
	if err != nil {
		return nil, fmt.Errorf("decode %s as %s: %w", path, e.opts.Encoding, err)
	}
	node, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return goquery.NewDocumentFromNode(node), nil
}

// listEntries returns visible directory or file names in natural order
// (messages50 before messages100). ext filters files by extension.
func listEntries(dir string, dirs bool, ext string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read directory %s: %w", dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, ".") || entry.IsDir() != dirs {
			continue
		}
		if ext != "" && !strings.EqualFold(filepath.Ext(name), ext) {
			continue
		}
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return naturalLess(names[i], names[j]) })
	return names, nil
}
