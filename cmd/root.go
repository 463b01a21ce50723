package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd without a subcommand runs one interactive scrape.
var rootCmd = &cobra.Command{
	Use:   "map-extractor",
	Short: "Scrape Google Maps search results into a CSV file",
	Long: `Searches Google Maps in a real browser, scrolls the result list until it stops
growing, and saves every unique place (name, phone, category, address, reviews,
rating) to a CSV file in your Downloads folder.

Run without a subcommand to be prompted for a query.`,
	Args: cobra.ArbitraryArgs,
	Run:  runScrape,
}

// Execute adds all child commands to the root command and runs it.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	addScrapeFlags(rootCmd)
}
