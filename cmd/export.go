package cmd

import (
	"fmt"
	"log"
	"strconv"

	"github.com/spf13/cobra"

	"mspro-labs/map-extractor/internal/config"
	"mspro-labs/map-extractor/internal/db"
	"mspro-labs/map-extractor/internal/export"
	"mspro-labs/map-extractor/internal/models"
	"mspro-labs/map-extractor/internal/pipeline"
)

var exportOutDir string

var exportCmd = &cobra.Command{
	Use:   "export <run-id>",
	Short: "Write a journaled run to a new CSV file",
	Long:  `Re-exports the unique listings of a previous run. The file naming rules are the same as for a scrape, so nothing is overwritten.`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runExport(cmd, args[0])
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportOutDir, "out-dir", "", "directory for the CSV file (default from OUTPUT_DIR, then ~/Downloads)")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, rawID string) {
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		log.Fatalf("Invalid run id %q", rawID)
	}

	appCfg, err := config.GetAppConfig()
	if err != nil {
		log.Fatalf("Config error: %v", err)
	}
	siteCfg, err := config.LoadSiteConfig(appCfg.ConfigPath)
	if err != nil {
		log.Fatalf("Failed to load site config: %v", err)
	}
	if exportOutDir != "" {
		appCfg.OutputDir = exportOutDir
	}

	database, err := db.Connect(appCfg.DBPath)
	if err != nil {
		log.Fatalf("Database error: %v", err)
	}
	defer database.Close()

	if _, err := db.GetRun(database, id); err != nil {
		log.Fatalf("Failed to load run: %v", err)
	}
	listings, err := db.GetRunListings(database, id)
	if err != nil {
		log.Fatalf("Failed to load listings: %v", err)
	}

	outcome := saveUnique(appCfg.OutputDir, siteCfg.OutputName, listings, len(listings))
	fmt.Fprintln(cmd.OutOrStdout(), outcome.Message())
}

// saveUnique writes already deduplicated listings and reports it the way a scrape does.
func saveUnique(dir, base string, unique []models.Listing, scraped int) pipeline.Outcome {
	outcome := pipeline.Outcome{State: pipeline.EmptyResult, Scraped: scraped, Unique: len(unique)}
	if len(unique) == 0 {
		return outcome
	}
	outcome.Path, outcome.Err = export.Save(dir, base, unique)
	outcome.State = pipeline.Saved
	if outcome.Err != nil {
		outcome.State = pipeline.SaveFailed
	}
	return outcome
}
