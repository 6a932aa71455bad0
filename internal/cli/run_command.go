package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"vk-archive-loader/internal/archive"
	"vk-archive-loader/internal/config"
)

type runReport struct {
	RunID        string         `json:"run_id"`
	State        string         `json:"state"`
	OutputDir    string         `json:"output_dir"`
	ManifestPath string         `json:"manifest_path"`
	Owners       int            `json:"owners"`
	TotalLinks   int            `json:"total_links"`
	Processed    int            `json:"processed"`
	Bytes        int64          `json:"bytes"`
	Outcomes     map[string]int `json:"outcomes"`
	Failures     map[string]int `json:"failures,omitempty"`
	Categories   map[string]int `json:"categories"`
	ClearedDirs  int            `json:"cleared_dirs"`
	ClearedFiles int            `json:"cleared_files"`
}

func newRunReport(res archive.RunResult) runReport {
	return runReport{
		RunID:        res.RunID,
		State:        res.State,
		OutputDir:    res.OutputDir,
		ManifestPath: res.ManifestPath,
		Owners:       res.Owners,
		TotalLinks:   res.TotalLinks,
		Processed:    res.Processed,
		Bytes:        res.Bytes,
		Outcomes:     res.Outcomes,
		Failures:     res.Failures,
		Categories:   res.Categories,
		ClearedDirs:  res.Cleared.RemovedDirs,
		ClearedFiles: res.Cleared.RemovedFiles,
	}
}

func runArchive(args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	configPath := fs.String("config", config.DefaultConfigPath, "config file path")
	outputDir := fs.String("output", "", "output folder (default: config output_folder)")
	archiveDir := fs.String("archive", "", "unpacked archive folder (default: config vk_archive_folder)")
	small := fs.Int("small", 0, "concurrent requests for messages and photos (0 = config)")
	big := fs.Int("big", 0, "concurrent requests for liked photos and documents (0 = config)")
	retries := fs.Int("retries", -1, "extra attempts for timeouts and 5xx answers (-1 = config)")
	saveByDate := fs.Bool("save-by-date", false, "add a date directory under each owner")
	insecure := fs.Bool("insecure", false, "skip TLS certificate verification")
	keepOutput := fs.Bool("keep-output", false, "keep existing output instead of clearing it first")
	runID := fs.String("run-id", "", "run id recorded in run.json (default: random)")
	progress := fs.Bool("progress", true, "show live progress view when stdout is a terminal")
	jsonOut := fs.Bool("json", false, "print JSON output")

	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *retries < -1 {
		return errors.New("--retries must be >= 0, or -1 to keep config")
	}
	if *small < 0 || *big < 0 {
		return errors.New("--small and --big must be > 0, or 0 to keep config")
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	cfg.OutputDir = firstNonEmpty(*outputDir, cfg.OutputDir)
	cfg.ArchiveDir = firstNonEmpty(*archiveDir, cfg.ArchiveDir)
	cfg.SmallLimit = firstNonZero(*small, cfg.SmallLimit)
	cfg.BigLimit = firstNonZero(*big, cfg.BigLimit)
	if *retries >= 0 {
		cfg.Retries = *retries
	}
	if *saveByDate {
		cfg.SaveByDate = true
	}
	if *insecure {
		cfg.VerifySSL = false
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := openLogger(cfg)
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Close()
	}()

	fetcher, err := newFetcher(cfg, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	tally := archive.NewTally()
	opts := archive.RunOptions{
		RunID:        strings.TrimSpace(*runID),
		OutputDir:    cfg.OutputDir,
		Source:       newExtractor(cfg, logger),
		Processor:    fetcher,
		Logger:       logger,
		Observer:     tally,
		SaveByDate:   cfg.SaveByDate,
		KeepOutput:   *keepOutput,
		Retries:      cfg.Retries,
		RetryBackoff: cfg.RetryBackoff,
		Settings:     cfg.Settings(),
	}
	run := func() (archive.RunResult, error) {
		return archive.Run(ctx, opts)
	}

	var result archive.RunResult
	if *progress && !*jsonOut && stdoutIsTTY() {
		logger.MuteConsole(true)
		result, err = runWithProgress(tally, cancel, run)
		logger.MuteConsole(false)
	} else {
		result, err = run()
	}
	if err != nil {
		return err
	}

	if *jsonOut {
		return printJSON(newRunReport(result))
	}
	printRunSummary(result)
	return nil
}

func printRunSummary(res archive.RunResult) {
	header := []string{
		titleStyle.Render("run summary"),
		fmt.Sprintf("run_id: %s", res.RunID),
		fmt.Sprintf("manifest: %s", res.ManifestPath),
		fmt.Sprintf("owners: %d", res.Owners),
		fmt.Sprintf("links: %d/%d", res.Processed, res.TotalLinks),
		fmt.Sprintf("downloaded: %s", formatBytesIEC(res.Bytes)),
	}
	if res.Cleared.RemovedDirs+res.Cleared.RemovedFiles > 0 {
		header = append(header, mutedStyle.Render(fmt.Sprintf("cleared: %d dirs, %d files", res.Cleared.RemovedDirs, res.Cleared.RemovedFiles)))
	}
	fmt.Println(panelStyle.Render(strings.Join(header, "\n")))
	fmt.Println("outcomes:")
	fmt.Println(indent(countLines(res.Outcomes)))
	fmt.Println("categories:")
	fmt.Println(indent(countLines(res.Categories)))
	if len(res.Failures) > 0 {
		fmt.Println(warnStyle.Render("failures:"))
		fmt.Println(indent(countLines(res.Failures)))
		fmt.Println(mutedStyle.Render("failed links are listed under error_* keys in the manifest"))
	}
}
