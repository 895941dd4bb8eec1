package main

import (
	"encoding/json"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/company-research/internal/input"
	"github.com/sells-group/company-research/internal/model"
	"github.com/sells-group/company-research/internal/search"
)

var (
	peopleCompany      string
	peopleDomain       string
	peopleForceRefresh bool
)

var peopleCmd = &cobra.Command{
	Use:   "people [names...]",
	Short: "Research individual people at a company",
	Long: "Researches one or more named people at a company without running full company\n" +
		"research, and prints their profiles as JSON.",
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(nil, peopleForceRefresh)
		if err != nil {
			return err
		}
		defer env.Close()

		searchName := input.SearchName(peopleCompany)
		company := model.CompanyInput{
			Name:       strings.TrimSpace(peopleCompany),
			SearchName: searchName,
			People:     args,
		}
		domain := peopleDomain
		if domain == "" {
			domain = search.GuessDomain(searchName)
		}

		profiles := env.Pipeline.ResearchPeople(ctx, company, domain)
		env.Tracker.Log()

		data, err := json.MarshalIndent(profiles, "", "  ")
		if err != nil {
			return eris.Wrap(err, "marshal profiles")
		}
		fmt.Println(string(data))
		return nil
	},
}

func init() {
	peopleCmd.Flags().StringVarP(&peopleCompany, "company", "c", "", "company the people work at")
	peopleCmd.Flags().StringVar(&peopleDomain, "domain", "", "company website domain (guessed when omitted)")
	peopleCmd.Flags().BoolVar(&peopleForceRefresh, "force-refresh", false, "ignore cached person profiles")
	_ = peopleCmd.MarkFlagRequired("company")
	rootCmd.AddCommand(peopleCmd)
}
