package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/spf13/cobra"

	"mspro-labs/map-extractor/internal/ai"
	"mspro-labs/map-extractor/internal/config"
	"mspro-labs/map-extractor/internal/db"
	"mspro-labs/map-extractor/internal/searcher"
)

var searchLimit int

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Semantic search across every scraped place",
	Long: `Uses AI to find journaled places that match the meaning of your query.
Run "map-extractor embed" first so new listings have vectors.
Examples:
  map-extractor search "quiet cafe to work from"
  map-extractor search "late night food near the station"

History commands:
  map-extractor search history
  map-extractor search clear "query string"
  map-extractor search clear all`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		handleSearch(cmd.OutOrStdout(), args)
	},
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", searcher.DefaultLimit, "number of matches to show")
	rootCmd.AddCommand(searchCmd)
}

func handleSearch(out io.Writer, args []string) {
	// 1. Setup
	appCfg, err := config.GetAppConfig()
	if err != nil {
		log.Fatalf("Config error: %v", err)
	}
	database, err := db.Connect(appCfg.DBPath)
	if err != nil {
		log.Fatalf("Database error: %v", err)
	}
	defer database.Close()

	command := strings.ToLower(args[0])

	// 2. Commands
	if command == "history" {
		entries, err := db.ListSearchHistory(database)
		if err != nil {
			log.Fatalf("Failed to list history: %v", err)
		}
		fmt.Fprintln(out, "📜 Search History (Cached Queries)")
		fmt.Fprintln(out, "------------------------------------")
		if len(entries) == 0 {
			fmt.Fprintln(out, "No history found.")
			return
		}
		for _, e := range entries {
			fmt.Fprintf(out, "[%s] %s\n", e.CreatedAt.Format("2006-01-02 15:04"), e.QueryText)
		}
		return
	}

	if command == "clear" {
		if len(args) < 2 {
			log.Fatal("Usage: map-extractor search clear \"query text\" (or 'all')")
		}
		target := strings.TrimSpace(strings.Join(args[1:], " "))
		var affected int64
		if strings.EqualFold(target, "all") {
			affected, err = db.ClearAllSearchHistory(database)
		} else {
			affected, err = db.ClearSearchHistory(database, target)
		}
		if err != nil {
			log.Fatalf("Failed to clear history: %v", err)
		}
		fmt.Fprintf(out, "🗑️ Done. Removed %d entry(s) from cache.\n", affected)
		return
	}

	// 3. Perform regular search
	query := strings.Join(args, " ")
	if err := performSearch(out, database, appCfg, query); err != nil {
		log.Fatalf("Search failed: %v", err)
	}
}

func performSearch(out io.Writer, database *sql.DB, appCfg config.AppConfig, queryText string) error {
	ctx := context.Background()

	// The AI client is only needed on a cache miss; without a key cached queries still work.
	var embedder ai.Embedder
	if appCfg.GeminiAPIKey != "" {
		aiClient, err := ai.NewClient(ctx, appCfg.GeminiAPIKey, appCfg.EmbedModel)
		if err != nil {
			return fmt.Errorf("failed to init AI: %w", err)
		}
		defer aiClient.Close()
		embedder = aiClient
	}

	results, err := searcher.Perform(ctx, database, embedder, queryText, searchLimit)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "\n🔍 Top matches for: \"%s\"\n\n", queryText)
	if len(results) == 0 {
		fmt.Fprintln(out, "No embedded listings yet. Run \"map-extractor embed\" first.")
		return nil
	}
	for i, r := range results {
		l := r.Item.Listing
		fmt.Fprintf(out, "#%d [%.1f%% match] %s (%s, rating %s)\n", i+1, r.Score*100, l.Name, l.Category, l.Rating)
		fmt.Fprintf(out, "   %s  ·  %s  ·  run #%d\n\n", l.Address, l.Phone, r.Item.RunID)
	}
	return nil
}
