package cli

import (
	"errors"
	"flag"
	"fmt"

	"vk-archive-loader/internal/config"
)

func runInit(args []string) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	configPath := fs.String("config", config.DefaultConfigPath, "config file path")
	force := fs.Bool("force", false, "overwrite an existing config file")
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	res, err := config.InitWorkspace(config.InitWorkspaceOptions{
		ConfigPath: firstNonEmpty(*configPath, config.DefaultConfigPath),
		Force:      *force,
	})
	if err != nil {
		return err
	}
	if *jsonOut {
		return printJSON(res)
	}

	fmt.Println(titleStyle.Render("workspace initialized"))
	fmt.Printf("config: %s\n", res.ConfigPath)
	fmt.Printf("output_dir: %s\n", res.OutputDir)
	fmt.Printf("created_config: %t\n", res.CreatedConfig)
	fmt.Printf("created_output_dir: %t\n", res.CreatedOutputDir)
	fmt.Println("checks:")
	printChecks("  ", res.DoctorResult.Checks)
	if !res.DoctorResult.OK {
		fmt.Println(mutedStyle.Render("next: unpack the archive into vk_archive_folder, then run doctor again"))
		return nil
	}
	fmt.Println("next: vk-archive-loader run")
	return nil
}

func runDoctor(args []string) error {
	fs := flag.NewFlagSet("doctor", flag.ContinueOnError)
	configPath := fs.String("config", config.DefaultConfigPath, "config file path")
	archiveDir := fs.String("archive", "", "unpacked archive folder (default: config vk_archive_folder)")
	outputDir := fs.String("output", "", "output folder (default: config output_folder)")
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

	res, err := config.Doctor(config.DoctorOptions{Config: cfg})
	if err != nil {
		return err
	}
	if *jsonOut {
		if err := printJSON(res); err != nil {
			return err
		}
	} else {
		printChecks("", res.Checks)
	}
	if !res.OK {
		return errors.New("doctor checks failed")
	}
	if !*jsonOut {
		fmt.Println(okStyle.Render("doctor: all checks passed"))
	}
	return nil
}

func printChecks(prefix string, checks []config.DoctorCheck) {
	for _, c := range checks {
		fmt.Printf("%s%s: %s %s\n", prefix, c.Name, statusLabel(c.OK), mutedStyle.Render("("+c.Message+")"))
	}
}
