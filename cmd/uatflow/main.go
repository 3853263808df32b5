package main

import (
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/ChamsBouzaiene/uatflow/internal/config"
)

func main() {
	// Load .env file if it exists; environment still wins over config.json.
	_ = godotenv.Load()

	// Stdout carries exactly one JSON response per invocation; everything
	// else goes to stderr.
	log.SetOutput(os.Stderr)

	root := &cobra.Command{
		Use:           "uatflow",
		Short:         "UAT hook orchestration engine",
		Long:          "uatflow turns browser-automation tool calls into tracked, reported UAT sessions.\nEach hook subcommand reads one JSON request from stdin and writes one JSON response to stdout.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newPreToolCmd(),
		newPostToolCmd(),
		newSessionEndCmd(),
		newScenariosCmd(),
		newHistoryCmd(),
		newSearchCmd(),
	)

	if err := root.Execute(); err != nil {
		log.Fatalf("command failed: %v", err)
	}
}

// loadConfig resolves the effective configuration for this invocation.
func loadConfig() (*config.Config, error) {
	manager, err := config.NewManager()
	if err != nil {
		return nil, err
	}
	return manager.Load()
}
