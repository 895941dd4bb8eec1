package main

import (
	"encoding/json"
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/company-research/internal/cache"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and maintain the research cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show per-namespace cache entry counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openCache()
		if err != nil {
			return err
		}
		defer store.Close()

		stats, err := store.Stats(cmd.Context())
		if err != nil {
			return err
		}
		data, err := json.MarshalIndent(stats, "", "  ")
		if err != nil {
			return eris.Wrap(err, "marshal stats")
		}
		fmt.Println(string(data))
		return nil
	},
}

var cacheCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete expired cache entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openCache()
		if err != nil {
			return err
		}
		defer store.Close()

		removed, err := store.Cleanup(cmd.Context())
		if err != nil {
			return err
		}
		zap.L().Info("cache cleanup complete", zap.Int("removed", removed))
		fmt.Printf("removed %d expired entries\n", removed)
		return nil
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear [namespace]",
	Short: "Delete all entries in one namespace, or everywhere",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		namespaces := cache.Namespaces()
		if len(args) == 1 {
			ns := cache.Namespace(args[0])
			if !ns.Valid() {
				return eris.Errorf("unknown namespace %q, expected one of: search, scrape, company, person", args[0])
			}
			namespaces = []cache.Namespace{ns}
		}

		store, err := openCache()
		if err != nil {
			return err
		}
		defer store.Close()

		total := 0
		for _, ns := range namespaces {
			removed, err := store.Clear(cmd.Context(), ns)
			if err != nil {
				return err
			}
			total += removed
		}
		fmt.Printf("removed %d entries\n", total)
		return nil
	},
}

func openCache() (*cache.Store, error) {
	if err := cfg.Validate("cache"); err != nil {
		return nil, err
	}
	return cache.Open(cfg.Cache)
}

func init() {
	cacheCmd.AddCommand(cacheStatsCmd, cacheCleanupCmd, cacheClearCmd)
	rootCmd.AddCommand(cacheCmd)
}
