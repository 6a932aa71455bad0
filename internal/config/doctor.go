package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"vk-archive-loader/internal/runstore"
)

type DoctorOptions struct {
	Config Config
}

type DoctorResult struct {
	OK     bool          `json:"ok"`
	Checks []DoctorCheck `json:"checks"`
}

type DoctorCheck struct {
	Name    string `json:"name"`
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

type InitWorkspaceOptions struct {
	ConfigPath string
	Force      bool
}

type InitWorkspaceResult struct {
	ConfigPath       string       `json:"config_path"`
	OutputDir        string       `json:"output_dir"`
	CreatedConfig    bool         `json:"created_config"`
	CreatedOutputDir bool         `json:"created_output_dir"`
	DoctorResult     DoctorResult `json:"doctor"`
}

// Doctor checks that a run with cfg can start: the archive and its category
// folders are readable, and the output and log locations are writable.
func Doctor(opts DoctorOptions) (DoctorResult, error) {
	cfg := opts.Config
	checks := make([]DoctorCheck, 0, 8)

	cfgMessage := "loaded " + cfg.Path
	if !cfg.Found {
		cfgMessage = cfg.Path + " not found, built-in defaults in use"
	}
	checks = append(checks, DoctorCheck{Name: "config", OK: true, Message: cfgMessage})

	archiveOK, archiveMessage := existingDir(cfg.ArchiveDir)
	checks = append(checks, DoctorCheck{Name: "directory:archive", OK: archiveOK, Message: archiveMessage})
	enabled := cfg.EnabledFolders()
	if len(enabled) == 0 {
		checks = append(checks, DoctorCheck{Name: "categories", OK: false, Message: "every category folder is disabled"})
	}
	for _, f := range enabled {
		ok, msg := existingDir(filepath.Join(cfg.ArchiveDir, f[1]))
		if !ok {
			msg += ", category will be skipped"
		}
		checks = append(checks, DoctorCheck{Name: "category:" + f[0], OK: ok, Message: msg})
	}

	outOK, outMessage := ensureWritableDir(cfg.OutputDir)
	checks = append(checks, DoctorCheck{Name: "directory:output", OK: outOK, Message: outMessage})

	if logFile := strings.TrimSpace(cfg.LogFile); logFile != "" && logFile != "-" {
		logOK, logMessage := ensureWritableDir(filepath.Dir(logFile))
		checks = append(checks, DoctorCheck{Name: "directory:logs", OK: logOK, Message: logMessage})
	}

	if cfg.UseCookie {
		cookies, err := LoadCookies(cfg)
		check := DoctorCheck{Name: "cookies", OK: err == nil}
		if err != nil {
			check.Message = err.Error()
		} else {
			check.Message = fmt.Sprintf("%d cookies loaded", len(cookies))
		}
		checks = append(checks, check)
	}

	ok := true
	for _, c := range checks {
		if !c.OK {
			ok = false
			break
		}
	}
	return DoctorResult{OK: ok, Checks: checks}, nil
}

// InitWorkspace writes a commented config file (kept unless Force) and the
// output directory, then reports Doctor for the result.
func InitWorkspace(opts InitWorkspaceOptions) (InitWorkspaceResult, error) {
	configPath := normalizeConfigPath(opts.ConfigPath)

	createdConfig := false
	if _, err := os.Stat(configPath); os.IsNotExist(err) || opts.Force {
		if err := runstore.WriteBytes(configPath, []byte(defaultConfigINI)); err != nil {
			return InitWorkspaceResult{}, err
		}
		createdConfig = true
	}

	cfg, err := Load(configPath)
	if err != nil {
		return InitWorkspaceResult{}, err
	}

	createdOutputDir := false
	if _, err := os.Stat(cfg.OutputDir); os.IsNotExist(err) {
		createdOutputDir = true
	}
	if err := runstore.Mkdir(cfg.OutputDir); err != nil {
		return InitWorkspaceResult{}, err
	}

	doc, err := Doctor(DoctorOptions{Config: cfg})
	if err != nil {
		return InitWorkspaceResult{}, err
	}
	return InitWorkspaceResult{
		ConfigPath:       configPath,
		OutputDir:        cfg.OutputDir,
		CreatedConfig:    createdConfig,
		CreatedOutputDir: createdOutputDir,
		DoctorResult:     doc,
	}, nil
}

func existingDir(path string) (bool, string) {
	if strings.TrimSpace(path) == "" {
		return false, "empty path"
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, path + " does not exist"
		}
		return false, err.Error()
	}
	if !info.IsDir() {
		return false, path + " is not a directory"
	}
	return true, path
}

func ensureWritableDir(path string) (bool, string) {
	if strings.TrimSpace(path) == "" {
		return false, "empty path"
	}
	if err := runstore.Mkdir(path); err != nil {
		return false, err.Error()
	}
	f, err := os.CreateTemp(path, "vk-archive-loader-check-*.tmp")
	if err != nil {
		return false, err.Error()
	}
	_ = f.Close()
	_ = os.Remove(f.Name())
	return true, "writable"
}
