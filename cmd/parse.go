package cmd

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"mspro-labs/map-extractor/internal/browser"
	"mspro-labs/map-extractor/internal/config"
	"mspro-labs/map-extractor/internal/scraper"
)

var parseOutDir string

var parseCmd = &cobra.Command{
	Use:   "parse <results.html>",
	Short: "Extract listings from a saved results page",
	Long: `Runs a single extraction pass over a Google Maps results page saved from a
browser (File > Save Page As), then deduplicates and writes the CSV the same way
a live scrape does. No browser is started.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runParse(cmd, args[0])
	},
}

func init() {
	parseCmd.Flags().StringVar(&parseOutDir, "out-dir", "", "directory for the CSV file (default from OUTPUT_DIR, then ~/Downloads)")
	rootCmd.AddCommand(parseCmd)
}

func runParse(cmd *cobra.Command, path string) {
	appCfg, err := config.GetAppConfig()
	if err != nil {
		log.Fatalf("Config error: %v", err)
	}
	siteCfg, err := config.LoadSiteConfig(appCfg.ConfigPath)
	if err != nil {
		log.Fatalf("Failed to load site config: %v", err)
	}
	if parseOutDir != "" {
		appCfg.OutputDir = parseOutDir
	}

	f, err := os.Open(path)
	if err != nil {
		log.Fatalf("Failed to open page: %v", err)
	}
	defer f.Close()

	snap, err := browser.NewSnapshot(f)
	if err != nil {
		log.Fatalf("Failed to read page: %v", err)
	}
	listings, err := scraper.ExtractCards(context.Background(), snap, siteCfg.Selectors)
	if err != nil {
		log.Fatalf("Extraction failed: %v", err)
	}

	outcome := saveUnique(appCfg.OutputDir, siteCfg.OutputName, scraper.Dedupe(listings), len(listings))
	fmt.Fprintln(cmd.OutOrStdout(), outcome.Message())
}
