package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestReadCookiesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cookies.txt")
	body := "# Netscape HTTP Cookie File\n" +
		"\n" +
		".vk.com\tTRUE\t/\tTRUE\t0\tremixsid\tabc\n" +
		"#HttpOnly_.vk.com\tTRUE\t/\tTRUE\t4102444800\tremixlang\t0\n" +
		".vk.com\tTRUE\t/\tFALSE\t1\told\tgone\r\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	cookies, err := ReadCookiesFile(path)
	if err != nil {
		t.Fatalf("read cookies: %v", err)
	}
	if len(cookies) != 2 {
		t.Fatalf("expected 2 live cookies, got %d", len(cookies))
	}
	if cookies[0].Name != "remixsid" || cookies[0].Domain != ".vk.com" || !cookies[0].Secure || cookies[0].HttpOnly {
		t.Fatalf("first cookie mismatch: %#v", cookies[0])
	}
	if cookies[1].Name != "remixlang" || !cookies[1].HttpOnly {
		t.Fatalf("http-only cookie mismatch: %#v", cookies[1])
	}
}

func TestReadCookiesFileRejectsMalformedLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cookies.txt")
	if err := os.WriteFile(path, []byte("vk.com remixsid abc\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadCookiesFile(path); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestLoadCookies(t *testing.T) {
	cfg := Default()
	cfg.CookieHeader = "remixsid=abc"
	if got, err := LoadCookies(cfg); err != nil || got != nil {
		t.Fatalf("cookies off should yield nil, got %v %v", got, err)
	}

	cfg.UseCookie = true
	cfg.CookieHeader = "remixsid=abc; remixlang=0"
	got, err := LoadCookies(cfg)
	if err != nil {
		t.Fatalf("load cookies: %v", err)
	}
	if len(got) != 2 || got[0].Name != "remixsid" || got[1].Value != "0" {
		t.Fatalf("header cookies mismatch: %#v", got)
	}

	cfg.CookieHeader = ""
	if _, err := LoadCookies(cfg); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("cookies on with no source should fail, got %v", err)
	}
}
