package cli

import "fmt"

func Run(args []string) error {
	if len(args) == 0 {
		printRootUsage()
		return nil
	}

	switch args[0] {
	case "run":
		return runArchive(args[1:])
	case "extract":
		return runExtract(args[1:])
	case "classify":
		return runClassify(args[1:])
	case "init":
		return runInit(args[1:])
	case "doctor":
		return runDoctor(args[1:])
	case "help", "-h", "--help":
		printRootUsage()
		return nil
	default:
		printRootUsage()
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func printRootUsage() {
	fmt.Println("vk-archive-loader: download the attachments referenced by a VK data archive")
	fmt.Println()
	fmt.Println("Quick Start:")
	fmt.Println("  vk-archive-loader init")
	fmt.Println("  vk-archive-loader doctor")
	fmt.Println("  vk-archive-loader run")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  init      write a commented config.ini + run environment checks")
	fmt.Println("  doctor    check archive folders, output folder and cookies")
	fmt.Println("  run       extract links, resolve and download them, write links_info.json")
	fmt.Println("  extract   list the links found in the archive without downloading")
	fmt.Println("  classify  show how URLs would be handled, without network access")
	fmt.Println()
	fmt.Println("Notes:")
	fmt.Println("  - Every command reads --config (default config.ini); flags override it")
	fmt.Println("  - Use --json on commands for machine-readable output")
	fmt.Println("  - run clears the output folder first unless --keep-output is set")
}
