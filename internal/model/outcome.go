package model

type FailureKind string

const (
	FailTimeout      FailureKind = "timeout"
	FailHTTP         FailureKind = "http"
	FailAccessDenied FailureKind = "access_denied"
	FailParse        FailureKind = "parse"
	FailCancelled    FailureKind = "cancelled"
)

const (
	OutcomeSkipped    = "skipped"
	OutcomeDownloaded = "downloaded"
	OutcomeUnparsed   = "unparsed"
	OutcomeFailed     = "failed"

	UnparsedKey = "not_parse"
)

// Outcome is the closed result of one LinkTask: Skipped, Downloaded,
// Unparsed or Failed.
type Outcome interface {
	// ManifestKey is the key the outcome is folded under in the manifest.
	ManifestKey() string
	// ManifestURL is the URL recorded under that key.
	ManifestURL() string
	outcome()
}

type Skipped struct {
	URL      string `json:"url"`
	Category string `json:"category"`
}

type Downloaded struct {
	FinalURL  string `json:"final_url"`
	MediaType string `json:"media_type"`
	Path      string `json:"path"`
	Bytes     int64  `json:"bytes"`
}

type Unparsed struct {
	URL string `json:"url"`
}

type Failed struct {
	URL     string      `json:"url"`
	Kind    FailureKind `json:"kind"`
	Status  int         `json:"status,omitempty"`
	Message string      `json:"message,omitempty"`
}

func (Skipped) outcome()    {}
func (Downloaded) outcome() {}
func (Unparsed) outcome()   {}
func (Failed) outcome()     {}

func (s Skipped) ManifestKey() string    { return s.Category }
func (d Downloaded) ManifestKey() string { return d.MediaType }
func (Unparsed) ManifestKey() string     { return UnparsedKey }
func (f Failed) ManifestKey() string     { return failedKeyPrefix + string(f.Kind) }

func (s Skipped) ManifestURL() string    { return s.URL }
func (d Downloaded) ManifestURL() string { return d.FinalURL }
func (u Unparsed) ManifestURL() string   { return u.URL }
func (f Failed) ManifestURL() string     { return f.URL }

// Retryable reports whether another attempt could succeed: timeouts and
// server-side 5xx answers only.
func (f Failed) Retryable() bool {
	switch f.Kind {
	case FailTimeout:
		return true
	case FailHTTP:
		return f.Status >= 500 && f.Status <= 599
	default:
		return false
	}
}

func OutcomeKind(o Outcome) string {
	switch o.(type) {
	case Skipped:
		return OutcomeSkipped
	case Downloaded:
		return OutcomeDownloaded
	case Unparsed:
		return OutcomeUnparsed
	case Failed:
		return OutcomeFailed
	default:
		return ""
	}
}
