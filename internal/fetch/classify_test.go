package fetch

import (
	"testing"

	"vk-archive-loader/internal/model"
)

func TestClassifyDefaultRules(t *testing.T) {
	c := NewClassifier(DefaultRules()...)
	cases := []struct {
		url  string
		want string
	}{
		{"https://vk.com/video-123_456", "vk_video"},
		{"https://vk.com/id42", "vk_contact"},
		{"https://vk.com/public777", "vk_contact"},
		{"https://vk.com/story1_2", "vk_story"},
		{"https://github.com/user/repo", "github_link"},
		{"https://gist.github.com/x", "github_link"},
		{"https://drive.google.com/file/d/1", "gdrive_link"},
		{"https://docs.google.com/a", "google_link"},
		{"https://ru.wikipedia.org/wiki/Go", "wikipedia_link"},
		{"https://t.me/channel", "telegram_contact"},
		{"https://www.dns-shop.ru/product/1", "dns_shop_link"},
		{"https://aliexpress.ru/item/1.html", "aliexpress_link"},
	}
	for _, tc := range cases {
		out, ok := c.Classify(tc.url)
		if !ok {
			t.Fatalf("%s: expected a skip, got network resolution", tc.url)
		}
		skipped, isSkip := out.(model.Skipped)
		if !isSkip || skipped.Category != tc.want || skipped.URL != tc.url {
			t.Fatalf("%s: got %#v want category %q", tc.url, out, tc.want)
		}
	}
}

func TestClassifyLeavesOtherURLsForResolution(t *testing.T) {
	c := NewClassifier(DefaultRules()...)
	for _, raw := range []string{
		"https://vk.com/doc12_34",
		"https://vk.com/photo1_2",
		"https://sun9-1.userapi.com/c1/a.jpg",
		"https://notgithub.com/x",
	} {
		if out, ok := c.Classify(raw); ok {
			t.Fatalf("%s: expected resolution, got %#v", raw, out)
		}
	}
}

func TestClassifyMalformedURLs(t *testing.T) {
	c := NewClassifier(DefaultRules()...)
	for _, raw := range []string{
		"not a url",
		"ftp://files.test/a",
		"https://",
		"http://[::1",
	} {
		out, ok := c.Classify(raw)
		if !ok {
			t.Fatalf("%q: expected settled outcome", raw)
		}
		failed, isFailed := out.(model.Failed)
		if !isFailed || failed.Kind != model.FailParse || failed.URL != raw {
			t.Fatalf("%q: expected parse failure, got %#v", raw, out)
		}
	}
}

func TestClassifyCustomRulesReplaceDefaults(t *testing.T) {
	c := NewClassifier(Rule{Category: "video", Contains: []string{"/video"}})
	out, ok := c.Classify("https://vk.com/video1")
	if !ok || out.ManifestKey() != "video" {
		t.Fatalf("unexpected outcome: %#v ok=%v", out, ok)
	}
	if _, ok := c.Classify("https://github.com/a"); ok {
		t.Fatalf("default rules should not apply to a custom classifier")
	}
}
