package config

import (
	"bufio"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

const httpOnlyPrefix = "#HttpOnly_"

// LoadCookies returns the session cookies to send, or nil when cookies are
// off. The cookies.txt file is read first; the header value is appended.
func LoadCookies(cfg Config) ([]*http.Cookie, error) {
	if !cfg.UseCookie {
		return nil, nil
	}
	var out []*http.Cookie
	if path := strings.TrimSpace(cfg.CookiesFile); path != "" {
		fromFile, err := ReadCookiesFile(path)
		if err != nil {
			return nil, err
		}
		out = append(out, fromFile...)
	}
	if header := strings.TrimSpace(cfg.CookieHeader); header != "" {
		parsed, err := http.ParseCookie(header)
		if err != nil {
			return nil, fmt.Errorf("%w: cookies: %v", ErrInvalidConfig, err)
		}
		out = append(out, parsed...)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: use_cookie is on but neither cookies_file nor cookies is set", ErrInvalidConfig)
	}
	return out, nil
}

// ReadCookiesFile parses a Netscape cookies.txt export. Expired cookies are
// dropped.
func ReadCookiesFile(path string) ([]*http.Cookie, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open cookies file: %w", err)
	}
	defer f.Close()

	now := time.Now()
	var out []*http.Cookie
	sc := bufio.NewScanner(f)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimRight(sc.Text(), "\r")
		httpOnly := false
		if strings.HasPrefix(line, httpOnlyPrefix) {
			line = strings.TrimPrefix(line, httpOnlyPrefix)
			httpOnly = true
		}
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) != 7 {
			return nil, fmt.Errorf("%w: %s:%d: expected 7 tab-separated fields, got %d", ErrInvalidConfig, path, lineNo, len(fields))
		}
		c := &http.Cookie{
			Domain:   fields[0],
			Path:     fields[2],
			Secure:   strings.EqualFold(fields[3], "TRUE"),
			Name:     fields[5],
			Value:    fields[6],
			HttpOnly: httpOnly,
		}
		if exp, err := strconv.ParseInt(fields[4], 10, 64); err == nil && exp > 0 {
			c.Expires = time.Unix(exp, 0)
			if c.Expires.Before(now) {
				continue
			}
		}
		out = append(out, c)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read cookies file: %w", err)
	}
	return out, nil
}
