package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"path/filepath"
	"strings"

	"vk-archive-loader/internal/config"
	"vk-archive-loader/internal/model"
	"vk-archive-loader/internal/runstore"
)

type extractReport struct {
	ArchiveDir string             `json:"archive_dir"`
	Owners     int                `json:"owners"`
	Links      int                `json:"links"`
	Categories map[string]int     `json:"categories"`
	DumpPath   string             `json:"dump_path,omitempty"`
	Groups     []model.OwnerGroup `json:"groups"`
}

func runExtract(args []string) error {
	fs := flag.NewFlagSet("extract", flag.ContinueOnError)
	configPath := fs.String("config", config.DefaultConfigPath, "config file path")
	archiveDir := fs.String("archive", "", "unpacked archive folder (default: config vk_archive_folder)")
	outputDir := fs.String("output", "", "folder for dirty_links.json (default: config output_folder)")
	write := fs.Bool("write", false, "store the raw link groups as dirty_links.json")
	jsonOut := fs.Bool("json", false, "print JSON output")

	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	cfg.ArchiveDir = firstNonEmpty(*archiveDir, cfg.ArchiveDir)
	cfg.OutputDir = firstNonEmpty(*outputDir, cfg.OutputDir)

	logger, err := openLogger(cfg)
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Close()
	}()

	groups, err := newExtractor(cfg, logger).Groups(context.Background())
	if err != nil {
		return err
	}

	report := extractReport{
		ArchiveDir: cfg.ArchiveDir,
		Owners:     len(groups),
		Categories: make(map[string]int),
		Groups:     groups,
	}
	for _, g := range groups {
		report.Links += g.LinkCount()
		report.Categories[g.Category] += g.LinkCount()
	}
	if *write {
		report.DumpPath = filepath.Join(cfg.OutputDir, runstore.DirtyLinksFileName)
		if err := runstore.WriteJSON(report.DumpPath, groups); err != nil {
			return err
		}
	}

	if *jsonOut {
		return printJSON(report)
	}
	fmt.Println(titleStyle.Render("extracted links"))
	for _, g := range groups {
		name := g.Owner.Key
		if g.Owner.Name != "" {
			name += " " + mutedStyle.Render("("+g.Owner.Name+")")
		}
		fmt.Printf("  %s/%s: %d\n", g.Category, name, g.LinkCount())
	}
	fmt.Printf("owners: %d\n", report.Owners)
	fmt.Printf("links: %d\n", report.Links)
	fmt.Println("categories:")
	fmt.Println(indent(countLines(report.Categories)))
	if report.DumpPath != "" {
		fmt.Printf("dump: %s\n", report.DumpPath)
	}
	return nil
}

type classifyVerdict struct {
	URL     string `json:"url"`
	Verdict string `json:"verdict"`
	Reason  string `json:"reason,omitempty"`
}

func runClassify(args []string) error {
	fs := flag.NewFlagSet("classify", flag.ContinueOnError)
	configPath := fs.String("config", config.DefaultConfigPath, "config file path ([skip_rules] are applied)")
	jsonOut := fs.Bool("json", false, "print JSON output")

	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return errors.New("at least one URL is required")
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	verdicts := classifyURLs(cfg, fs.Args())

	if *jsonOut {
		return printJSON(verdicts)
	}
	for _, v := range verdicts {
		line := fmt.Sprintf("%s -> %s", v.URL, v.Verdict)
		if v.Reason != "" {
			line += " " + mutedStyle.Render("("+v.Reason+")")
		}
		fmt.Println(line)
	}
	return nil
}

// classifyURLs reports the manifest key each URL settles under without
// network access, or "resolve" when a fetch is needed.
func classifyURLs(cfg config.Config, urls []string) []classifyVerdict {
	classifier := newClassifier(cfg)
	out := make([]classifyVerdict, 0, len(urls))
	for _, raw := range urls {
		v := classifyVerdict{URL: strings.TrimSpace(raw), Verdict: "resolve"}
		if outcome, ok := classifier.Classify(raw); ok {
			v.Verdict = outcome.ManifestKey()
			if f, isFailed := outcome.(model.Failed); isFailed {
				v.Reason = f.Message
			}
		}
		out = append(out, v)
	}
	return out
}
