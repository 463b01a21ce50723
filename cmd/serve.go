package cmd

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"mspro-labs/map-extractor/internal/ai"
	"mspro-labs/map-extractor/internal/config"
	"mspro-labs/map-extractor/internal/db"
	"mspro-labs/map-extractor/internal/web"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Web UI server",
	Run: func(cmd *cobra.Command, args []string) {
		runServer()
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "listen address")
	rootCmd.AddCommand(serveCmd)
}

func runServer() {
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

	// 2. Initialize AI
	// We need this alive as long as the server is running.
	var embedder ai.Embedder
	aiClient, err := ai.NewClient(context.Background(), appCfg.GeminiAPIKey, appCfg.EmbedModel)
	if err != nil {
		log.Printf("⚠️ Warning: AI unavailable, only cached searches will work: %v", err)
	} else {
		defer aiClient.Close()
		embedder = aiClient
	}

	// 3. Templates & routes
	srv, err := web.NewServer(database, embedder)
	if err != nil {
		log.Fatalf("Failed to parse templates: %v", err)
	}

	// 4. Start Server
	log.Printf("🌐 Web UI started at http://localhost%s", serveAddr)
	server := &http.Server{
		Addr:         serveAddr,
		Handler:      srv.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	log.Fatal(server.ListenAndServe())
}
