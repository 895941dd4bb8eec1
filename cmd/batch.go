package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/company-research/internal/input"
)

var (
	batchInput        string
	batchOutput       string
	batchJSON         bool
	batchForceRefresh bool
	batchSerial       bool
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Research companies through the OpenAI Batch API",
	Long: "Like run, but sends the LLM analysis through the OpenAI Batch API at the batch\n" +
		"discount. Slower end to end; any batch infrastructure failure falls back to the\n" +
		"serial pipeline for the companies that have not finished.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		companies, err := input.ReadCompanies(batchInput)
		if err != nil {
			return err
		}
		zap.L().Info("input loaded",
			zap.String("file", batchInput),
			zap.Int("companies", len(companies)))

		if batchSerial {
			cfg.Batch.Disabled = true
		}

		env, err := initPipeline(nil, batchForceRefresh)
		if err != nil {
			return err
		}
		defer env.Close()

		report := env.Pipeline.RunBatch(ctx, companies)
		env.Tracker.Log()

		return writeReport(report, batchOutput, batchJSON)
	},
}

func init() {
	batchCmd.Flags().StringVarP(&batchInput, "input", "i", "", "contact export file (.csv or .xlsx)")
	batchCmd.Flags().StringVarP(&batchOutput, "output", "o", "", "write the report to this file instead of stdout")
	batchCmd.Flags().BoolVar(&batchJSON, "json", false, "emit JSON instead of markdown")
	batchCmd.Flags().BoolVar(&batchForceRefresh, "force-refresh", false, "ignore cached company and person results")
	batchCmd.Flags().BoolVar(&batchSerial, "serial", false, "skip the Batch API and research serially")
	_ = batchCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(batchCmd)
}
