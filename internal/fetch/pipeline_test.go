package fetch

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"vk-archive-loader/internal/model"
)

func newTestFetcher(t *testing.T, site *fakeSite, rules []Rule, small int) *Fetcher {
	t.Helper()
	g, err := NewGovernor(small, 1)
	if err != nil {
		t.Fatalf("new governor: %v", err)
	}
	return NewFetcher(NewClassifier(rules...), NewResolver(site.client(t), testTimeouts), g, nil)
}

func TestProcessSkipMakesNoRequests(t *testing.T) {
	site := newFakeSite(t, nil)
	f := newTestFetcher(t, site, []Rule{{Category: "video", Contains: []string{"/video"}}}, 1)

	out, err := f.Process(context.Background(), model.LinkTask{URL: "https://vk.com/video1", Ordinal: "0"}, t.TempDir(), model.ClassSmall)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if s, ok := out.(model.Skipped); !ok || s.Category != "video" {
		t.Fatalf("expected Skipped{video}, got %#v", out)
	}
	if n := site.calls.Load(); n != 0 {
		t.Fatalf("expected zero network calls, got %d", n)
	}
}

func TestProcessDownloadsDocument(t *testing.T) {
	site := newFakeSite(t, map[string]http.HandlerFunc{
		"vk.com/doc1_2": htmlPage(`<script>{"docUrl":"https:\/\/cdn.test\/report.pdf"}</script>`),
		"cdn.test/report.pdf": blob("application/pdf", "%PDF"),
	})
	f := newTestFetcher(t, site, DefaultRules(), 2)
	dir := t.TempDir()

	out, err := f.Process(context.Background(), model.LinkTask{URL: "https://vk.com/doc1_2", Ordinal: "0"}, dir, model.ClassSmall)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	d, ok := out.(model.Downloaded)
	if !ok {
		t.Fatalf("expected Downloaded, got %#v", out)
	}
	if d.FinalURL != "https://cdn.test/report.pdf" || d.MediaType != "application/pdf" {
		t.Fatalf("unexpected outcome: %#v", d)
	}
	if d.Path != filepath.Join(dir, "pdf", "report.pdf") {
		t.Fatalf("unexpected path: %q", d.Path)
	}
	if _, err := os.Stat(d.Path); err != nil {
		t.Fatalf("downloaded file missing: %v", err)
	}
}

func TestProcessStorageFaultIsReturned(t *testing.T) {
	site := newFakeSite(t, map[string]http.HandlerFunc{
		"img.test/a.png": blob("image/png", "png"),
	})
	f := newTestFetcher(t, site, DefaultRules(), 1)
	dir := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(dir, []byte("x"), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}

	out, err := f.Process(context.Background(), model.LinkTask{URL: "https://img.test/a.png", Ordinal: "0"}, dir, model.ClassSmall)
	if !errors.Is(err, ErrOutputDir) {
		t.Fatalf("expected ErrOutputDir, got out=%#v err=%v", out, err)
	}
}

func TestProcessGovernorTimeoutIsFailure(t *testing.T) {
	site := newFakeSite(t, map[string]http.HandlerFunc{
		"img.test/a.png": blob("image/png", "png"),
	})
	f := newTestFetcher(t, site, DefaultRules(), 1)
	hold, err := f.governor.Acquire(context.Background(), model.ClassSmall)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer hold()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	out, err := f.Process(ctx, model.LinkTask{URL: "https://img.test/a.png", Ordinal: "0"}, t.TempDir(), model.ClassSmall)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if failed, ok := out.(model.Failed); !ok || failed.Kind != model.FailTimeout {
		t.Fatalf("expected timeout failure, got %#v", out)
	}
	if site.calls.Load() != 0 {
		t.Fatalf("no request should be made without a slot")
	}
}

func TestProcessSlowBodyTimesOut(t *testing.T) {
	site := newFakeSite(t, map[string]http.HandlerFunc{
		"img.test/slow.jpg": func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "image/jpeg")
			_, _ = w.Write([]byte("head"))
			w.(http.Flusher).Flush()
			select {
			case <-time.After(2 * time.Second):
			case <-r.Context().Done():
			}
		},
	})
	g, err := NewGovernor(1, 1)
	if err != nil {
		t.Fatalf("new governor: %v", err)
	}
	r := NewResolver(site.client(t), Timeouts{Probe: time.Second, Page: time.Second, Download: 100 * time.Millisecond})
	f := NewFetcher(NewClassifier(DefaultRules()...), r, g, nil)

	out, err := f.Process(context.Background(), model.LinkTask{URL: "https://img.test/slow.jpg", Ordinal: "0"}, t.TempDir(), model.ClassSmall)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if failed, ok := out.(model.Failed); !ok || failed.Kind != model.FailTimeout {
		t.Fatalf("expected timeout failure, got %#v", out)
	}
}

func TestProcessSameFileNameFromDifferentURLs(t *testing.T) {
	big := strings.Repeat("a", 1<<20)
	other := strings.Repeat("b", 1<<20)
	site := newFakeSite(t, map[string]http.HandlerFunc{
		"cdn.test/u1/image.png": blob("image/png", big),
		"cdn.test/u2/image.png": blob("image/png", other),
	})
	f := newTestFetcher(t, site, DefaultRules(), 2)
	dir := t.TempDir()

	tasks := []model.LinkTask{
		{URL: "https://cdn.test/u1/image.png", Ordinal: "0"},
		{URL: "https://cdn.test/u2/image.png", Ordinal: "1"},
	}
	outs := make([]model.Outcome, len(tasks))
	var wg sync.WaitGroup
	for i, task := range tasks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := f.Process(context.Background(), task, dir, model.ClassSmall)
			if err != nil {
				t.Errorf("process %s: %v", task.URL, err)
				return
			}
			outs[i] = out
		}()
	}
	wg.Wait()

	paths := make(map[string]string)
	for i, out := range outs {
		d, ok := out.(model.Downloaded)
		if !ok {
			t.Fatalf("task %d: expected Downloaded, got %#v", i, out)
		}
		if prev, dup := paths[d.Path]; dup {
			t.Fatalf("%s and %s share %s", prev, d.FinalURL, d.Path)
		}
		paths[d.Path] = d.FinalURL
	}
	entries, err := os.ReadDir(filepath.Join(dir, "png"))
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 files, got %d", len(entries))
	}
	for p, u := range paths {
		raw, err := os.ReadFile(p)
		if err != nil {
			t.Fatalf("read %s: %v", p, err)
		}
		want := big
		if strings.Contains(u, "/u2/") {
			want = other
		}
		if string(raw) != want {
			t.Fatalf("%s holds the wrong bytes", p)
		}
	}
}

func TestProcessRepeatedURLKeepsItsFileName(t *testing.T) {
	site := newFakeSite(t, map[string]http.HandlerFunc{
		"cdn.test/u1/image.png": blob("image/png", "png"),
	})
	f := newTestFetcher(t, site, DefaultRules(), 1)
	dir := t.TempDir()
	task := model.LinkTask{URL: "https://cdn.test/u1/image.png", Ordinal: "3"}

	for range 2 {
		out, err := f.Process(context.Background(), task, dir, model.ClassSmall)
		if err != nil {
			t.Fatalf("process: %v", err)
		}
		if d, ok := out.(model.Downloaded); !ok || d.Path != filepath.Join(dir, "png", "image.png") {
			t.Fatalf("unexpected outcome: %#v", out)
		}
	}
}

func TestProcessCancelledWaitIsNotRetryable(t *testing.T) {
	site := newFakeSite(t, map[string]http.HandlerFunc{
		"img.test/a.png": blob("image/png", "png"),
	})
	f := newTestFetcher(t, site, DefaultRules(), 1)
	hold, err := f.governor.Acquire(context.Background(), model.ClassSmall)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer hold()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out, err := f.Process(ctx, model.LinkTask{URL: "https://img.test/a.png", Ordinal: "0"}, t.TempDir(), model.ClassSmall)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	failed, ok := out.(model.Failed)
	if !ok || failed.Kind != model.FailCancelled {
		t.Fatalf("expected cancelled failure, got %#v", out)
	}
	if failed.Retryable() {
		t.Fatal("a cancelled link must not be retried")
	}
}
