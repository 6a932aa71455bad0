package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// OwnerEntry is one owner's slice of the manifest: optional display fields
// plus result URLs grouped by manifest key (media type, skip category,
// not_parse or error_<kind>).
type OwnerEntry struct {
	Name       string
	DialogLink string
	Media      map[string][]string
}

const (
	entryNameKey       = "name"
	entryDialogLinkKey = "dialog_link"
	failedKeyPrefix    = "error_"
)

// ReservedManifestKey reports whether key is taken by an owner entry's
// display fields or by the unparsed and failed buckets, so a skip category
// of that name would be folded into the wrong place.
func ReservedManifestKey(key string) bool {
	switch key {
	case entryNameKey, entryDialogLinkKey, UnparsedKey:
		return true
	}
	return strings.HasPrefix(key, failedKeyPrefix)
}

func NewOwnerEntry(owner Owner) OwnerEntry {
	return OwnerEntry{
		Name:       owner.Name,
		DialogLink: owner.Link,
		Media:      make(map[string][]string),
	}
}

func (e *OwnerEntry) Add(o Outcome) {
	if e.Media == nil {
		e.Media = make(map[string][]string)
	}
	key := o.ManifestKey()
	e.Media[key] = append(e.Media[key], o.ManifestURL())
}

func (e OwnerEntry) Count() int {
	n := 0
	for _, urls := range e.Media {
		n += len(urls)
	}
	return n
}

func (e OwnerEntry) MarshalJSON() ([]byte, error) {
	doc := make(map[string]any, len(e.Media)+2)
	for k, v := range e.Media {
		doc[k] = v
	}
	if e.Name != "" {
		doc[entryNameKey] = e.Name
	}
	if e.DialogLink != "" {
		doc[entryDialogLinkKey] = e.DialogLink
	}
	return json.Marshal(doc)
}

func (e *OwnerEntry) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := OwnerEntry{Media: make(map[string][]string, len(raw))}
	for k, v := range raw {
		switch k {
		case entryNameKey:
			if err := json.Unmarshal(v, &out.Name); err != nil {
				return fmt.Errorf("owner entry name: %w", err)
			}
		case entryDialogLinkKey:
			if err := json.Unmarshal(v, &out.DialogLink); err != nil {
				return fmt.Errorf("owner entry dialog_link: %w", err)
			}
		default:
			var urls []string
			if err := json.Unmarshal(v, &urls); err != nil {
				return fmt.Errorf("owner entry %s: %w", k, err)
			}
			out.Media[k] = urls
		}
	}
	*e = out
	return nil
}

// RunManifest is category -> owner key -> entry, plus the processed-link total.
type RunManifest struct {
	Entries map[string]map[string]OwnerEntry
	Total   int
}

func NewRunManifest() *RunManifest {
	return &RunManifest{Entries: make(map[string]map[string]OwnerEntry)}
}

// Insert stores a settled owner. Owners are only inserted whole.
func (m *RunManifest) Insert(category, ownerKey string, entry OwnerEntry, processed int) {
	owners, ok := m.Entries[category]
	if !ok {
		owners = make(map[string]OwnerEntry)
		m.Entries[category] = owners
	}
	owners[ownerKey] = entry
	m.Total += processed
}

// Document is the value serialized as the manifest file.
func (m *RunManifest) Document() map[string]map[string]OwnerEntry {
	return m.Entries
}
