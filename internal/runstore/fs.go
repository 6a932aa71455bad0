package runstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	ManifestFileName    = "links_info.json"
	RunMetaFileName     = "run.json"
	DirtyLinksFileName  = "dirty_links.json"
	tempFilePattern     = ".vkal-tmp-*"
	hiddenEntryPrefix   = "."
	jsonFileExtension   = ".json"
	defaultDirectoryMod = 0o755
)

func Mkdir(path string) error {
	if err := os.MkdirAll(path, defaultDirectoryMod); err != nil {
		return fmt.Errorf("create directory %s: %w", path, err)
	}
	return nil
}

// WriteBytes replaces path atomically: readers see the old file or the new
// one, never a torn write.
func WriteBytes(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, defaultDirectoryMod); err != nil {
		return fmt.Errorf("create parent for %s: %w", path, err)
	}

	tmp, err := os.CreateTemp(dir, tempFilePattern)
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", path, err)
	}
	tmpPath := tmp.Name()
	fail := func(step string, err error) error {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("%s for %s: %w", step, path, err)
	}

	if _, err := tmp.Write(data); err != nil {
		return fail("write temp file", err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		return fail("chmod temp file", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close temp file for %s: %w", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("atomic rename for %s: %w", path, err)
	}
	return nil
}

// WriteJSON writes v as indented UTF-8 JSON without escaping HTML characters,
// so URLs with '&' stay readable.
func WriteJSON(path string, v any) error {
	var b strings.Builder
	enc := json.NewEncoder(&b)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("marshal JSON for %s: %w", path, err)
	}
	return WriteBytes(path, []byte(b.String()))
}

func ReadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse JSON %s: %w", path, err)
	}
	return nil
}

type ClearResult struct {
	RemovedDirs  int `json:"removed_dirs"`
	RemovedFiles int `json:"removed_files"`
}

// ClearOutput empties an output root before a fresh run: every visible
// subdirectory and every top-level JSON file goes. Hidden entries, including
// the run lock, are left alone. A missing root is not an error.
func ClearOutput(root string) (ClearResult, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return ClearResult{}, nil
		}
		return ClearResult{}, fmt.Errorf("read output directory %s: %w", root, err)
	}

	var res ClearResult
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, hiddenEntryPrefix) {
			continue
		}
		path := filepath.Join(root, name)
		switch {
		case e.IsDir():
			if err := os.RemoveAll(path); err != nil {
				return res, fmt.Errorf("remove directory %s: %w", path, err)
			}
			res.RemovedDirs++
		case strings.EqualFold(filepath.Ext(name), jsonFileExtension):
			if err := os.Remove(path); err != nil {
				return res, fmt.Errorf("remove file %s: %w", path, err)
			}
			res.RemovedFiles++
		}
	}
	return res, nil
}

// RunMeta is the run.json summary written next to the manifest.
type RunMeta struct {
	RunID        string            `json:"run_id"`
	CreatedAt    string            `json:"created_at"`
	UpdatedAt    string            `json:"updated_at,omitempty"`
	State        string            `json:"state"`
	Reason       string            `json:"reason,omitempty"`
	OutputDir    string            `json:"output_dir"`
	ManifestPath string            `json:"manifest_path"`
	Owners       int               `json:"owners"`
	TotalLinks   int               `json:"total_links"`
	Outcomes     map[string]int    `json:"outcomes"`
	Failures     map[string]int    `json:"failures,omitempty"`
	Categories   map[string]int    `json:"categories"`
	Settings     map[string]string `json:"settings,omitempty"`
}

func ManifestPath(outputDir string) string {
	return filepath.Join(outputDir, ManifestFileName)
}

func RunMetaPath(outputDir string) string {
	return filepath.Join(outputDir, RunMetaFileName)
}

func LoadRunMeta(outputDir string) (RunMeta, error) {
	var meta RunMeta
	if err := ReadJSON(RunMetaPath(outputDir), &meta); err != nil {
		return RunMeta{}, err
	}
	return meta, nil
}

func SaveRunMeta(outputDir string, meta RunMeta) error {
	return WriteJSON(RunMetaPath(outputDir), meta)
}
