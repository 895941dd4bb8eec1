package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/company-research/internal/analysis"
	"github.com/sells-group/company-research/internal/input"
	"github.com/sells-group/company-research/internal/model"
)

var (
	runInput        string
	runOutput       string
	runJSON         bool
	runForceRefresh bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Research companies from a contact export",
	Long: "Reads a .csv or .xlsx contact export, researches each company and its people\n" +
		"concurrently, and writes a markdown (or JSON) report.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		companies, err := input.ReadCompanies(runInput)
		if err != nil {
			return err
		}
		zap.L().Info("input loaded",
			zap.String("file", runInput),
			zap.Int("companies", len(companies)))

		env, err := initPipeline(nil, runForceRefresh)
		if err != nil {
			return err
		}
		defer env.Close()

		report := env.Pipeline.Run(ctx, companies)
		env.Tracker.Log()

		return writeReport(report, runOutput, runJSON)
	},
}

func init() {
	runCmd.Flags().StringVarP(&runInput, "input", "i", "", "contact export file (.csv or .xlsx)")
	runCmd.Flags().StringVarP(&runOutput, "output", "o", "", "write the report to this file instead of stdout")
	runCmd.Flags().BoolVar(&runJSON, "json", false, "emit JSON instead of markdown")
	runCmd.Flags().BoolVar(&runForceRefresh, "force-refresh", false, "ignore cached company and person results")
	_ = runCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(runCmd)
}

func writeReport(report model.RunReport, path string, asJSON bool) error {
	var out string
	if asJSON {
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return eris.Wrap(err, "marshal report")
		}
		out = string(data)
	} else {
		out = analysis.RenderRunReport(report)
	}

	if path == "" {
		fmt.Println(out)
		return nil
	}
	if err := os.WriteFile(path, []byte(out), 0o644); err != nil {
		return eris.Wrap(err, "write report")
	}
	zap.L().Info("report written", zap.String("path", path))
	return nil
}
