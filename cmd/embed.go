package cmd

import (
	"context"
	"log"

	"github.com/spf13/cobra"

	"mspro-labs/map-extractor/internal/ai"
	"mspro-labs/map-extractor/internal/config"
	"mspro-labs/map-extractor/internal/db"
	"mspro-labs/map-extractor/internal/embedder"
)

var embedCmd = &cobra.Command{
	Use:   "embed",
	Short: "Generate AI embeddings for scraped places",
	Long:  `Finds journaled listings that are missing semantic vectors and generates them using the Gemini API.`,
	Run: func(cmd *cobra.Command, args []string) {
		runEmbed()
	},
}

func init() {
	rootCmd.AddCommand(embedCmd)
}

func runEmbed() {
	ctx := context.Background()

	// 1. Config & DB
	appCfg, err := config.GetAppConfig()
	if err != nil {
		log.Fatalf("Config error: %v", err)
	}
	database, err := db.Connect(appCfg.DBPath)
	if err != nil {
		log.Fatalf("Database error: %v", err)
	}
	defer database.Close()

	// 2. Initialize AI
	aiClient, err := ai.NewClient(ctx, appCfg.GeminiAPIKey, appCfg.EmbedModel)
	if err != nil {
		log.Fatalf("Failed to initialize AI client: %v", err)
	}
	defer aiClient.Close()

	// 3. Run Shared Embedder Logic
	if _, err := embedder.Run(ctx, database, aiClient, embedder.DefaultLimiter()); err != nil {
		log.Fatalf("Embedding process failed: %v", err)
	}
}
