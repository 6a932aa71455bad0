package model

import (
	"encoding/json"
	"testing"
)

func TestTasksAssignsOrdinalsPerScope(t *testing.T) {
	g := OwnerGroup{Owner: Owner{Key: "42"}}
	g.AddLinks("2021-01-05", "https://a/1", "https://a/2")
	g.AddLinks("2021-02-01", "https://a/3")
	g.AddLinks("2021-01-05", "https://a/4")

	flat := g.Tasks(false)
	if len(flat) != 4 {
		t.Fatalf("expected 4 tasks, got %d", len(flat))
	}
	want := []string{"0", "1", "2", "3"}
	for i, task := range flat {
		if task.OwnerKey != "42" {
			t.Fatalf("task %d lost owner key: %q", i, task.OwnerKey)
		}
		if task.Ordinal != want[i] {
			t.Fatalf("flat ordinal %d: expected %s, got %s", i, want[i], task.Ordinal)
		}
	}

	byDate := g.Tasks(true)
	wantByDate := []string{"0", "1", "2", "0"}
	for i, task := range byDate {
		if task.Ordinal != wantByDate[i] {
			t.Fatalf("dated ordinal %d: expected %s, got %s", i, wantByDate[i], task.Ordinal)
		}
	}
}

func TestTasksKeepsRepeatedURLsDistinct(t *testing.T) {
	g := OwnerGroup{Owner: Owner{Key: "likes"}}
	g.AddLinks("", "https://a/same", "https://a/same")

	tasks := g.Tasks(false)
	if len(tasks) != 2 {
		t.Fatalf("expected duplicates to stay as two tasks, got %d", len(tasks))
	}
	if tasks[0].Ordinal == tasks[1].Ordinal {
		t.Fatalf("expected distinct ordinals, got %q twice", tasks[0].Ordinal)
	}
	if tasks[0].DateBucket != NoDateBucket {
		t.Fatalf("expected empty date to map to %q, got %q", NoDateBucket, tasks[0].DateBucket)
	}
}

func TestSanitizeSegment(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Иван Петров_123", "Иван_Петров_123"},
		{"chat: a/b\\c", "chat_a_b_c"},
		{"album.2020", "album.2020"},
		{"..", "_"},
		{"", "_"},
		{"  ёлка  ", "ёлка"},
		{"a***b", "a_b"},
	}
	for _, tc := range cases {
		if got := SanitizeSegment(tc.in); got != tc.want {
			t.Fatalf("SanitizeSegment(%q): expected %q, got %q", tc.in, tc.want, got)
		}
	}
}

func TestOwnerDirName(t *testing.T) {
	if got := (Owner{Key: "123", Name: "Anna K."}).DirName(); got != "Anna_K._123" {
		t.Fatalf("unexpected dir name %q", got)
	}
	if got := (Owner{Key: "documents"}).DirName(); got != "documents" {
		t.Fatalf("unexpected dir name %q", got)
	}
}

func TestOwnerEntryJSONShape(t *testing.T) {
	entry := NewOwnerEntry(Owner{Key: "7", Name: "Chat", Link: "https://vk.com/id7"})
	entry.Add(Downloaded{FinalURL: "https://cdn/a.jpg", MediaType: "image/jpeg"})
	entry.Add(Skipped{URL: "https://vk.com/video1", Category: "vk_video"})
	entry.Add(Failed{URL: "https://x/y", Kind: FailTimeout})
	entry.Add(Unparsed{URL: "https://x/page"})

	data, err := json.Marshal(entry)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"name", "dialog_link", "image/jpeg", "vk_video", "error_timeout", "not_parse"} {
		if _, ok := raw[key]; !ok {
			t.Fatalf("expected key %q in %s", key, data)
		}
	}

	var back OwnerEntry
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal entry: %v", err)
	}
	if back.Name != "Chat" || back.Count() != 4 {
		t.Fatalf("unexpected decoded entry: %+v", back)
	}
}

func TestFailedRetryable(t *testing.T) {
	cases := []struct {
		f    Failed
		want bool
	}{
		{Failed{Kind: FailTimeout}, true},
		{Failed{Kind: FailHTTP, Status: 503}, true},
		{Failed{Kind: FailHTTP, Status: 403}, false},
		{Failed{Kind: FailHTTP}, false},
		{Failed{Kind: FailAccessDenied}, false},
		{Failed{Kind: FailParse}, false},
		{Failed{Kind: FailCancelled}, false},
	}
	for _, tc := range cases {
		if got := tc.f.Retryable(); got != tc.want {
			t.Fatalf("Retryable(%+v): expected %v, got %v", tc.f, tc.want, got)
		}
	}
}
