package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/ini.v1"

	"vk-archive-loader/internal/model"
)

// ErrInvalidConfig marks a malformed config file or value. It is fatal.
var ErrInvalidConfig = errors.New("invalid config")

// Folders are category folder names relative to the archive root. An empty
// name disables the category.
type Folders struct {
	Messages string
	Likes    string
	Photos   string
	Profile  string
}

// SkipRule is an extra classifier rule from [skip_rules].
type SkipRule struct {
	Category string
	Contains []string
}

type Config struct {
	Path  string
	Found bool

	LogLevel          string
	LogFile           string
	UseCookie         bool
	CookiesFile       string
	CookieHeader      string
	CoreCount         int
	SmallLimit        int
	BigLimit          int
	VerifySSL         bool
	SaveByDate        bool
	ProbeTimeout      time.Duration
	PageTimeout       time.Duration
	DownloadTimeout   time.Duration
	Retries           int
	RetryBackoff      time.Duration
	RequestsPerSecond float64
	UserAgent         string
	AcceptLanguage    string
	Proxy             string

	ArchiveDir string
	OutputDir  string
	Folders    Folders
	SkipRules  []SkipRule
}

func Default() Config {
	return Config{
		Path:            DefaultConfigPath,
		LogLevel:        DefaultLogLevel,
		LogFile:         DefaultLogFile,
		SmallLimit:      DefaultSmallLimit,
		BigLimit:        DefaultBigLimit,
		VerifySSL:       DefaultVerifySSL,
		SaveByDate:      DefaultSaveByDate,
		ProbeTimeout:    DefaultProbeTimeout,
		PageTimeout:     DefaultPageTimeout,
		DownloadTimeout: DefaultDownloadTimeout,
		Retries:         DefaultRetries,
		RetryBackoff:    DefaultRetryBackoff,
		AcceptLanguage:  DefaultAcceptLanguage,
		ArchiveDir:      DefaultArchiveDir,
		OutputDir:       DefaultOutputDir,
		Folders: Folders{
			Messages: DefaultMessagesFolder,
			Likes:    DefaultLikesFolder,
			Photos:   DefaultPhotosFolder,
			Profile:  DefaultProfileFolder,
		},
	}
}

func normalizeConfigPath(path string) string {
	if p := strings.TrimSpace(path); p != "" {
		return p
	}
	return DefaultConfigPath
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	cfg.Path = normalizeConfigPath(path)

	if _, err := os.Stat(cfg.Path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("stat config %s: %w", cfg.Path, err)
	}
	// Cookie values carry ';' and '#', so only whole-line comments count.
	file, err := ini.LoadSources(ini.LoadOptions{IgnoreInlineComment: true}, cfg.Path)
	if err != nil {
		return Config{}, fmt.Errorf("%w: read %s: %v", ErrInvalidConfig, cfg.Path, err)
	}
	cfg.Found = true
	if err := apply(&cfg, file); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func apply(cfg *Config, file *ini.File) error {
	p := parser{}

	main := file.Section(sectionMain)
	p.str(main, "log_level", &cfg.LogLevel)
	p.str(main, "log_file", &cfg.LogFile)
	p.boolean(main, "use_coockie", &cfg.UseCookie)
	p.boolean(main, "use_cookie", &cfg.UseCookie)
	p.str(main, "cookies_file", &cfg.CookiesFile)
	p.str(main, "cookies", &cfg.CookieHeader)
	p.integer(main, "core_count", &cfg.CoreCount)
	p.integer(main, "semaphore", &cfg.SmallLimit)
	p.integer(main, "big_semaphore", &cfg.BigLimit)
	p.boolean(main, "verify_ssl", &cfg.VerifySSL)
	p.boolean(main, "save_by_date", &cfg.SaveByDate)
	p.duration(main, "probe_timeout", &cfg.ProbeTimeout)
	p.duration(main, "page_timeout", &cfg.PageTimeout)
	p.duration(main, "download_timeout", &cfg.DownloadTimeout)
	p.integer(main, "retries", &cfg.Retries)
	p.duration(main, "retry_backoff", &cfg.RetryBackoff)
	p.float(main, "requests_per_second", &cfg.RequestsPerSecond)
	p.str(main, "user_agent", &cfg.UserAgent)
	p.str(main, "accept_language", &cfg.AcceptLanguage)
	p.str(main, "proxy", &cfg.Proxy)

	folders := file.Section(sectionFolders)
	p.str(folders, "vk_archive_folder", &cfg.ArchiveDir)
	p.str(folders, "output_folder", &cfg.OutputDir)
	p.folder(folders, "messages_folder", &cfg.Folders.Messages)
	p.folder(folders, "likes_folder", &cfg.Folders.Likes)
	p.folder(folders, "photos_folder", &cfg.Folders.Photos)
	p.folder(folders, "profile_folder", &cfg.Folders.Profile)

	if file.HasSection(sectionSkip) {
		for _, key := range file.Section(sectionSkip).Keys() {
			rule := SkipRule{Category: strings.TrimSpace(key.Name())}
			for _, s := range strings.Split(key.String(), ",") {
				if s = strings.TrimSpace(s); s != "" {
					rule.Contains = append(rule.Contains, s)
				}
			}
			if rule.Category == "" || len(rule.Contains) == 0 {
				p.fail(fmt.Errorf("[%s] %s: needs a category and at least one pattern", sectionSkip, key.Name()))
				continue
			}
			cfg.SkipRules = append(cfg.SkipRules, rule)
		}
	}
	return p.err
}

// parser collects the first conversion error; keys that are absent keep
// their default.
type parser struct {
	err error
}

func (p *parser) fail(err error) {
	if p.err == nil {
		p.err = fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
}

func (p *parser) str(sec *ini.Section, name string, dst *string) {
	if sec.HasKey(name) {
		if v := strings.TrimSpace(sec.Key(name).String()); v != "" {
			*dst = v
		}
	}
}

// folder differs from str: an empty value is kept, so it can disable a
// category.
func (p *parser) folder(sec *ini.Section, name string, dst *string) {
	if sec.HasKey(name) {
		*dst = strings.TrimSpace(sec.Key(name).String())
	}
}

func (p *parser) boolean(sec *ini.Section, name string, dst *bool) {
	if !sec.HasKey(name) || strings.TrimSpace(sec.Key(name).String()) == "" {
		return
	}
	v, err := sec.Key(name).Bool()
	if err != nil {
		p.fail(fmt.Errorf("[%s] %s: %v", sec.Name(), name, err))
		return
	}
	*dst = v
}

func (p *parser) integer(sec *ini.Section, name string, dst *int) {
	if !sec.HasKey(name) || strings.TrimSpace(sec.Key(name).String()) == "" {
		return
	}
	v, err := sec.Key(name).Int()
	if err != nil {
		p.fail(fmt.Errorf("[%s] %s: %v", sec.Name(), name, err))
		return
	}
	*dst = v
}

func (p *parser) float(sec *ini.Section, name string, dst *float64) {
	if !sec.HasKey(name) || strings.TrimSpace(sec.Key(name).String()) == "" {
		return
	}
	v, err := sec.Key(name).Float64()
	if err != nil {
		p.fail(fmt.Errorf("[%s] %s: %v", sec.Name(), name, err))
		return
	}
	*dst = v
}

func (p *parser) duration(sec *ini.Section, name string, dst *time.Duration) {
	if !sec.HasKey(name) || strings.TrimSpace(sec.Key(name).String()) == "" {
		return
	}
	v, err := ParseDuration(sec.Key(name).String())
	if err != nil {
		p.fail(fmt.Errorf("[%s] %s: %v", sec.Name(), name, err))
		return
	}
	*dst = v
}

// ParseDuration accepts Go durations ("1m30s") and bare numbers of seconds.
func ParseDuration(raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", raw, err)
	}
	return d, nil
}

func (c Config) Validate() error {
	var problems []string
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		problems = append(problems, fmt.Sprintf("log_level %q is not a log level", c.LogLevel))
	}
	if c.SmallLimit <= 0 {
		problems = append(problems, "semaphore must be > 0")
	}
	if c.BigLimit <= 0 {
		problems = append(problems, "big_semaphore must be > 0")
	}
	if c.CoreCount < 0 {
		problems = append(problems, "core_count must be >= 0")
	}
	if c.ProbeTimeout <= 0 || c.PageTimeout <= 0 || c.DownloadTimeout <= 0 {
		problems = append(problems, "timeouts must be > 0")
	}
	if c.Retries < 0 {
		problems = append(problems, "retries must be >= 0")
	}
	if c.RetryBackoff < 0 {
		problems = append(problems, "retry_backoff must be >= 0")
	}
	if c.RequestsPerSecond < 0 {
		problems = append(problems, "requests_per_second must be >= 0")
	}
	if strings.TrimSpace(c.OutputDir) == "" {
		problems = append(problems, "output_folder is required")
	}
	if strings.TrimSpace(c.ArchiveDir) == "" {
		problems = append(problems, "vk_archive_folder is required")
	}
	for _, r := range c.SkipRules {
		if model.ReservedManifestKey(r.Category) {
			problems = append(problems, fmt.Sprintf("skip_rules category %q is a reserved manifest key", r.Category))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// EnabledFolders lists category -> folder for every enabled category, in
// extraction order.
func (c Config) EnabledFolders() [][2]string {
	all := [][2]string{
		{model.CategoryMessages, c.Folders.Messages},
		{model.CategoryLikesPhoto, c.Folders.Likes},
		{model.CategoryPhotos, c.Folders.Photos},
		{model.CategoryProfile, c.Folders.Profile},
	}
	out := make([][2]string, 0, len(all))
	for _, f := range all {
		if strings.TrimSpace(f[1]) != "" {
			out = append(out, f)
		}
	}
	return out
}

// Settings is the non-secret subset recorded in run metadata.
func (c Config) Settings() map[string]string {
	return map[string]string{
		"config":              c.Path,
		"use_cookie":          strconv.FormatBool(c.UseCookie),
		"core_count":          strconv.Itoa(c.CoreCount),
		"semaphore":           strconv.Itoa(c.SmallLimit),
		"big_semaphore":       strconv.Itoa(c.BigLimit),
		"verify_ssl":          strconv.FormatBool(c.VerifySSL),
		"save_by_date":        strconv.FormatBool(c.SaveByDate),
		"probe_timeout":       c.ProbeTimeout.String(),
		"page_timeout":        c.PageTimeout.String(),
		"download_timeout":    c.DownloadTimeout.String(),
		"retries":             strconv.Itoa(c.Retries),
		"retry_backoff":       c.RetryBackoff.String(),
		"requests_per_second": strconv.FormatFloat(c.RequestsPerSecond, 'f', -1, 64),
		"archive_dir":         c.ArchiveDir,
		"output_dir":          c.OutputDir,
	}
}
