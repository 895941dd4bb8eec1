package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/company-research/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "company-research",
	Short: "Company and people research pipeline for private credit prospecting",
	Long: "Researches companies and their people from public web sources, extracts a structured\n" +
		"intelligence profile via LLM analysis, enriches it with Salesforce history and Apollo\n" +
		"contact data, and scores each prospect for fit.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
