package logging

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	DefaultFile     = "logs/vk_archive_loader.log"
	maxFileSizeMB   = 10
	maxFileBackups  = 50
	timestampLayout = "2006-01-02 15:04:05"
	fieldSeparator  = " | "
)

type Options struct {
	Level   string
	File    string
	Console io.Writer
}

// Handle owns the logger and its sinks. Close flushes the rotating file.
type Handle struct {
	*logrus.Logger
	file    *lumberjack.Logger
	console *switchWriter
}

func New(opts Options) (*Handle, error) {
	level, err := logrus.ParseLevel(firstNonEmpty(opts.Level, "debug"))
	if err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", opts.Level, err)
	}

	console := opts.Console
	if console == nil {
		console = os.Stderr
	}
	sw := &switchWriter{w: console}

	h := &Handle{Logger: logrus.New(), console: sw}
	h.SetLevel(level)
	h.SetFormatter(lineFormatter{})

	path := strings.TrimSpace(opts.File)
	if path == "-" {
		h.SetOutput(sw)
		return h, nil
	}
	if path == "" {
		path = DefaultFile
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory for %s: %w", path, err)
	}
	h.file = &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxFileSizeMB,
		MaxBackups: maxFileBackups,
	}
	h.SetOutput(io.MultiWriter(h.file, sw))
	return h, nil
}

// MuteConsole stops console output while a full-screen view owns the
// terminal. Records keep flowing to the log file.
func (h *Handle) MuteConsole(muted bool) {
	h.console.setMuted(muted)
}

func (h *Handle) Close() error {
	if h == nil || h.file == nil {
		return nil
	}
	return h.file.Close()
}

type switchWriter struct {
	mu    sync.Mutex
	w     io.Writer
	muted bool
}

func (s *switchWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.muted {
		return len(p), nil
	}
	return s.w.Write(p)
}

func (s *switchWriter) setMuted(v bool) {
	s.mu.Lock()
	s.muted = v
	s.mu.Unlock()
}

// lineFormatter renders "2006-01-02 15:04:05 | LEVEL | message k=v ...".
type lineFormatter struct{}

func (lineFormatter) Format(e *logrus.Entry) ([]byte, error) {
	var b bytes.Buffer
	b.WriteString(e.Time.Format(timestampLayout))
	b.WriteString(fieldSeparator)
	b.WriteString(strings.ToUpper(e.Level.String()))
	b.WriteString(fieldSeparator)
	b.WriteString(e.Message)

	keys := make([]string, 0, len(e.Data))
	for k := range e.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := fmt.Sprint(e.Data[k])
		if strings.ContainsAny(v, " \t\"") {
			v = fmt.Sprintf("%q", v)
		}
		fmt.Fprintf(&b, " %s=%s", k, v)
	}
	b.WriteByte('\n')
	return b.Bytes(), nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
