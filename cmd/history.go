package cmd

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"mspro-labs/map-extractor/internal/config"
	"mspro-labs/map-extractor/internal/db"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List previous scrape runs",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		runHistory(cmd)
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of runs to show (0 for all)")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command) {
	appCfg, err := config.GetAppConfig()
	if err != nil {
		log.Fatalf("Config error: %v", err)
	}
	database, err := db.Connect(appCfg.DBPath)
	if err != nil {
		log.Fatalf("Database error: %v", err)
	}
	defer database.Close()

	runs, err := db.ListRuns(database, historyLimit)
	if err != nil {
		log.Fatalf("Failed to list runs: %v", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "📜 Scrape History")
	fmt.Fprintln(out, "------------------------------------")
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs recorded yet.")
		return
	}
	for _, r := range runs {
		fmt.Fprintf(out, "#%-4d [%s] %-14s %4d unique / %-5d %q\n",
			r.ID, r.StartedAt.Local().Format("2006-01-02 15:04"), r.State, r.Unique, r.Scraped, r.Query)
		if r.OutputPath != "" {
			fmt.Fprintf(out, "      %s\n", r.OutputPath)
		}
	}
}
