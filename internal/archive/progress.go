package archive

import (
	"fmt"
	"math"
	"sync"
	"time"

	"vk-archive-loader/internal/model"
)

// Observer receives run progress. Task callbacks arrive from many goroutines
// at once; implementations must be safe for that.
type Observer interface {
	RunStarted(groups []model.OwnerGroup)
	OwnerStarted(index int, group model.OwnerGroup)
	TaskFinished(group model.OwnerGroup, task model.LinkTask, outcome model.Outcome)
	OwnerFinished(index int, group model.OwnerGroup, entry model.OwnerEntry)
}

type nopObserver struct{}

func (nopObserver) RunStarted([]model.OwnerGroup)                               {}
func (nopObserver) OwnerStarted(int, model.OwnerGroup)                          {}
func (nopObserver) TaskFinished(model.OwnerGroup, model.LinkTask, model.Outcome) {}
func (nopObserver) OwnerFinished(int, model.OwnerGroup, model.OwnerEntry)       {}

// Tally is an Observer that keeps running counters for a live view.
type Tally struct {
	mu sync.Mutex

	started    time.Time
	owners     int
	ownersDone int
	owner      string
	total      int
	processed  int
	bytes      int64
	byKind     map[string]int
	events     []string
}

const maxTallyEvents = 6

func NewTally() *Tally {
	return &Tally{byKind: make(map[string]int), events: make([]string, 0, maxTallyEvents)}
}

type TallySnapshot struct {
	Owners     int
	OwnersDone int
	Owner      string
	Total      int
	Processed  int
	Bytes      int64
	ByKind     map[string]int
	Events     []string
	ETA        string
}

func (t *Tally) RunStarted(groups []model.OwnerGroup) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.started = time.Now()
	t.owners = len(groups)
	t.total = 0
	for _, g := range groups {
		t.total += g.LinkCount()
	}
}

func (t *Tally) OwnerStarted(_ int, group model.OwnerGroup) {
	t.mu.Lock()
	t.owner = group.Category + "/" + group.Owner.DirName()
	t.mu.Unlock()
}

func (t *Tally) TaskFinished(_ model.OwnerGroup, _ model.LinkTask, outcome model.Outcome) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.processed++
	t.byKind[model.OutcomeKind(outcome)]++
	if d, ok := outcome.(model.Downloaded); ok {
		t.bytes += d.Bytes
	}
}

func (t *Tally) OwnerFinished(_ int, group model.OwnerGroup, entry model.OwnerEntry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ownersDone++
	event := fmt.Sprintf("done  %s/%s (%d links)", group.Category, group.Owner.DirName(), entry.Count())
	t.events = append([]string{event}, t.events...)
	if len(t.events) > maxTallyEvents {
		t.events = t.events[:maxTallyEvents]
	}
}

func (t *Tally) Snapshot() TallySnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	byKind := make(map[string]int, len(t.byKind))
	for k, v := range t.byKind {
		byKind[k] = v
	}
	return TallySnapshot{
		Owners:     t.owners,
		OwnersDone: t.ownersDone,
		Owner:      t.owner,
		Total:      t.total,
		Processed:  t.processed,
		Bytes:      t.bytes,
		ByKind:     byKind,
		Events:     append([]string(nil), t.events...),
		ETA:        estimateRemaining(t.total, t.processed, time.Since(t.started)),
	}
}

// estimateRemaining extrapolates the link rate seen so far.
func estimateRemaining(total, done int, elapsed time.Duration) string {
	if total <= 0 || done <= 0 || elapsed <= 0 {
		return ""
	}
	remaining := total - done
	if remaining <= 0 {
		return "0m"
	}
	perLink := elapsed.Seconds() / float64(done)
	return formatETASeconds(perLink * float64(remaining))
}

func formatETASeconds(seconds float64) string {
	if seconds <= 0 {
		return ""
	}
	secs := int64(math.Round(seconds))
	if secs < 60 {
		return "<1m"
	}
	minutes := secs / 60
	if minutes < 60 {
		return fmt.Sprintf("%dm", minutes)
	}
	hours := minutes / 60
	remMinutes := minutes % 60
	if hours < 24 {
		if remMinutes == 0 {
			return fmt.Sprintf("%dh", hours)
		}
		return fmt.Sprintf("%dh %dm", hours, remMinutes)
	}
	days := hours / 24
	remHours := hours % 24
	if remHours == 0 {
		return fmt.Sprintf("%dd", days)
	}
	return fmt.Sprintf("%dd %dh", days, remHours)
}

// multiObserver fans callbacks out in order.
type multiObserver []Observer

func (m multiObserver) RunStarted(groups []model.OwnerGroup) {
	for _, o := range m {
		o.RunStarted(groups)
	}
}

func (m multiObserver) OwnerStarted(index int, group model.OwnerGroup) {
	for _, o := range m {
		o.OwnerStarted(index, group)
	}
}

func (m multiObserver) TaskFinished(group model.OwnerGroup, task model.LinkTask, outcome model.Outcome) {
	for _, o := range m {
		o.TaskFinished(group, task, outcome)
	}
}

func (m multiObserver) OwnerFinished(index int, group model.OwnerGroup, entry model.OwnerEntry) {
	for _, o := range m {
		o.OwnerFinished(index, group, entry)
	}
}

// Observers combines several observers; nil entries are dropped.
func Observers(list ...Observer) Observer {
	out := make(multiObserver, 0, len(list))
	for _, o := range list {
		if o != nil {
			out = append(out, o)
		}
	}
	if len(out) == 0 {
		return nopObserver{}
	}
	if len(out) == 1 {
		return out[0]
	}
	return out
}
