package model

import (
	"fmt"
	"strings"
)

const (
	CategoryMessages   = "messages"
	CategoryLikesPhoto = "likes_photo"
	CategoryPhotos     = "photos"
	CategoryProfile    = "profile"

	NoDateBucket = "no_date"
)

// ResourceClass selects which governor admits a group's network operations.
type ResourceClass string

const (
	ClassSmall ResourceClass = "small"
	ClassBig   ResourceClass = "big"
)

// Owner is the correlation key an extractor assigns to a batch of links.
type Owner struct {
	Key  string `json:"key"`
	Name string `json:"name,omitempty"`
	Link string `json:"link,omitempty"`
}

// DirName is the owner's directory segment under its category.
func (o Owner) DirName() string {
	if strings.TrimSpace(o.Name) == "" {
		return SanitizeSegment(o.Key)
	}
	return SanitizeSegment(o.Name + "_" + o.Key)
}

type DateBucket struct {
	Date string   `json:"date"`
	URLs []string `json:"urls"`
}

type OwnerGroup struct {
	Category string        `json:"category"`
	Class    ResourceClass `json:"class"`
	Owner    Owner         `json:"owner"`
	Buckets  []DateBucket  `json:"buckets"`
}

func (g OwnerGroup) LinkCount() int {
	n := 0
	for _, b := range g.Buckets {
		n += len(b.URLs)
	}
	return n
}

// LinkTask is one URL scheduled for classification, resolution and download.
type LinkTask struct {
	URL        string
	OwnerKey   string
	DateBucket string
	Ordinal    string
}

// Tasks expands the group into link tasks. Ordinals count up from zero per
// owner, or per owner and date bucket when byDate is set, so fallback file
// names never collide inside one directory.
func (g OwnerGroup) Tasks(byDate bool) []LinkTask {
	tasks := make([]LinkTask, 0, g.LinkCount())
	counters := make(map[string]int)
	for _, b := range g.Buckets {
		scope := ""
		if byDate {
			scope = b.Date
		}
		for _, u := range b.URLs {
			n := counters[scope]
			counters[scope] = n + 1
			tasks = append(tasks, LinkTask{
				URL:        u,
				OwnerKey:   g.Owner.Key,
				DateBucket: b.Date,
				Ordinal:    fmt.Sprintf("%d", n),
			})
		}
	}
	return tasks
}

// AddLinks appends urls to the bucket for date, creating it on first use.
func (g *OwnerGroup) AddLinks(date string, urls ...string) {
	if len(urls) == 0 {
		return
	}
	if strings.TrimSpace(date) == "" {
		date = NoDateBucket
	}
	for i := range g.Buckets {
		if g.Buckets[i].Date == date {
			g.Buckets[i].URLs = append(g.Buckets[i].URLs, urls...)
			return
		}
	}
	g.Buckets = append(g.Buckets, DateBucket{Date: date, URLs: append([]string(nil), urls...)})
}
