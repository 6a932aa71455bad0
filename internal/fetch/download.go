package fetch

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"vk-archive-loader/internal/model"
)

const (
	chunkSize        = 32 << 10
	defaultMediaType = "application/octet-stream"
)

// ErrOutputDir marks a storage fault. The run cannot continue after one.
var ErrOutputDir = errors.New("output directory not writable")

type DownloadResult struct {
	Path      string
	MediaType string
	Bytes     int64
}

// SplitMediaType returns the bare media type of a Content-Type header and
// its subtype. Unparseable or empty headers fall back to
// application/octet-stream.
func SplitMediaType(contentType string) (string, string) {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil || !strings.Contains(mediaType, "/") {
		mediaType = defaultMediaType
	}
	mediaType = strings.ToLower(mediaType)
	_, subtype, _ := strings.Cut(mediaType, "/")
	return mediaType, subtype
}

// FileNameFromURL is the sanitized last path segment of rawURL, without the
// query. It is empty when the path has no usable segment.
func FileNameFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	base := path.Base(u.Path)
	if base == "." || base == "/" || base == "" {
		return ""
	}
	name := model.SanitizeSegment(base)
	if name == "_" {
		return ""
	}
	return name
}

// FileNames tracks which URL each output path was handed to during a run.
// A name already claimed by another URL falls back to {stem}_{ordinal}{ext};
// the same URL always gets its earlier path back.
type FileNames struct {
	mu     sync.Mutex
	byPath map[string]string
}

func NewFileNames() *FileNames {
	return &FileNames{byPath: make(map[string]string)}
}

func (n *FileNames) claim(dir, name, sourceURL, ordinal string) string {
	if n == nil {
		return name
	}
	n.mu.Lock()
	defer n.mu.Unlock()

	candidate := name
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for i := 0; ; i++ {
		key := filepath.Join(dir, candidate)
		holder, taken := n.byPath[key]
		if !taken || holder == sourceURL {
			n.byPath[key] = sourceURL
			return candidate
		}
		suffix := "_" + ordinal
		if i > 0 {
			suffix += fmt.Sprintf("_%d", i)
		}
		candidate = model.SanitizeSegment(stem + suffix + ext)
	}
}

// Download streams res into {dir}/{subtype}/{name}. A repeated call for the
// same URL overwrites the same file; names claims keep different URLs with
// the same last path segment apart (nil disables that). The body is written
// to a temporary file and renamed into place. Storage faults wrap
// ErrOutputDir; a failing body read is returned as a Failed outcome instead.
func Download(res *Resolution, dir, ordinal string, names *FileNames) (DownloadResult, *model.Failed, error) {
	defer res.Close()

	mediaType, subtype := SplitMediaType(res.ContentType)
	name := FileNameFromURL(res.FinalURL)
	if name == "" {
		name = model.SanitizeSegment(ordinal + "." + subtype)
	}
	target := filepath.Join(dir, model.SanitizeSegment(subtype))
	name = names.claim(target, name, res.FinalURL, ordinal)
	if err := os.MkdirAll(target, 0o755); err != nil {
		return DownloadResult{}, nil, fmt.Errorf("%w: mkdir %s: %v", ErrOutputDir, target, err)
	}
	dest := filepath.Join(target, name)
	f, err := os.CreateTemp(target, "."+name+".*.part")
	if err != nil {
		return DownloadResult{}, nil, fmt.Errorf("%w: create %s: %v", ErrOutputDir, dest, err)
	}
	tmp := f.Name()

	n, readErr, writeErr := copyChunks(f, res.Body)
	closeErr := f.Close()
	if writeErr != nil || closeErr != nil || readErr != nil {
		_ = os.Remove(tmp)
	}
	if writeErr != nil {
		return DownloadResult{}, nil, fmt.Errorf("%w: write %s: %v", ErrOutputDir, dest, writeErr)
	}
	if closeErr != nil {
		return DownloadResult{}, nil, fmt.Errorf("%w: close %s: %v", ErrOutputDir, dest, closeErr)
	}
	if readErr != nil {
		failed := res.streamFailure(res.FinalURL, readErr)
		return DownloadResult{}, &failed, nil
	}
	if err := os.Rename(tmp, dest); err != nil {
		_ = os.Remove(tmp)
		return DownloadResult{}, nil, fmt.Errorf("%w: rename %s: %v", ErrOutputDir, dest, err)
	}
	return DownloadResult{Path: dest, MediaType: mediaType, Bytes: n}, nil, nil
}

// copyChunks keeps read and write errors apart: the first is the network's
// fault, the second the disk's.
func copyChunks(dst io.Writer, src io.Reader) (int64, error, error) {
	buf := make([]byte, chunkSize)
	var total int64
	for {
		n, err := src.Read(buf)
		if n > 0 {
			w, werr := dst.Write(buf[:n])
			total += int64(w)
			if werr != nil {
				return total, nil, werr
			}
			if w != n {
				return total, nil, io.ErrShortWrite
			}
		}
		if err == io.EOF {
			return total, nil, nil
		}
		if err != nil {
			return total, err, nil
		}
	}
}
