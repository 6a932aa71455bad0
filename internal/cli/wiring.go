package cli

import (
	"github.com/sirupsen/logrus"

	"vk-archive-loader/internal/config"
	"vk-archive-loader/internal/extract"
	"vk-archive-loader/internal/fetch"
	"vk-archive-loader/internal/logging"
)

func loadConfig(path string) (config.Config, error) {
	return config.Load(firstNonEmpty(path, config.DefaultConfigPath))
}

func openLogger(cfg config.Config) (*logging.Handle, error) {
	return logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})
}

// classifierRules puts the [skip_rules] entries after the built-in list.
func classifierRules(cfg config.Config) []fetch.Rule {
	rules := fetch.DefaultRules()
	for _, r := range cfg.SkipRules {
		rules = append(rules, fetch.Rule{Category: r.Category, Contains: r.Contains})
	}
	return rules
}

func newClassifier(cfg config.Config) *fetch.Classifier {
	return fetch.NewClassifier(classifierRules(cfg)...)
}

func newFetcher(cfg config.Config, log logrus.FieldLogger) (*fetch.Fetcher, error) {
	cookies, err := config.LoadCookies(cfg)
	if err != nil {
		return nil, err
	}
	client, err := fetch.NewClient(fetch.ClientOptions{
		Cookies:           cookies,
		VerifySSL:         cfg.VerifySSL,
		Proxy:             cfg.Proxy,
		UserAgent:         cfg.UserAgent,
		AcceptLanguage:    cfg.AcceptLanguage,
		RequestsPerSecond: cfg.RequestsPerSecond,
	})
	if err != nil {
		return nil, err
	}
	governor, err := fetch.NewGovernor(cfg.SmallLimit, cfg.BigLimit)
	if err != nil {
		return nil, err
	}
	resolver := fetch.NewResolver(client, fetch.Timeouts{
		Probe:    cfg.ProbeTimeout,
		Page:     cfg.PageTimeout,
		Download: cfg.DownloadTimeout,
	})
	return fetch.NewFetcher(newClassifier(cfg), resolver, governor, log), nil
}

func newExtractor(cfg config.Config, log logrus.FieldLogger) *extract.Extractor {
	return extract.New(extract.Options{
		ArchiveDir: cfg.ArchiveDir,
		Folders: extract.Folders{
			Messages: cfg.Folders.Messages,
			Likes:    cfg.Folders.Likes,
			Photos:   cfg.Folders.Photos,
			Profile:  cfg.Folders.Profile,
		},
		CoreCount: cfg.CoreCount,
		Logger:    log,
	})
}
