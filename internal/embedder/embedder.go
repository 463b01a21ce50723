package embedder

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"golang.org/x/time/rate"

	"mspro-labs/map-extractor/internal/ai"
	"mspro-labs/map-extractor/internal/db"
)

// DefaultLimiter keeps requests near the free tier's 60 per minute.
func DefaultLimiter() *rate.Limiter {
	return rate.NewLimiter(rate.Every(time.Second), 1)
}

// Run embeds every journaled listing that has no vector yet and returns how
// many were stored. Failures on single listings are logged and skipped.
func Run(ctx context.Context, database *sql.DB, embedder ai.Embedder, limiter *rate.Limiter) (int, error) {
	targets, err := db.GetUnembeddedListings(database)
	if err != nil {
		return 0, fmt.Errorf("failed to load listings: %w", err)
	}

	if len(targets) == 0 {
		log.Println("✨ All journaled listings are already embedded.")
		return 0, nil
	}
	log.Printf("Found %d new listings to embed...", len(targets))

	count := 0
	for id, text := range targets {
		if err := limiter.Wait(ctx); err != nil {
			return count, err
		}

		log.Printf("Embedding #%d: %q", id, truncate(text, 40))

		blob, _, err := embedder.EmbedString(ctx, text)
		if err != nil {
			log.Printf("⚠️ Error embedding listing %d: %v", id, err)
			continue
		}
		if err := db.UpdateEmbedding(database, id, blob); err != nil {
			log.Printf("⚠️ Error saving to DB: %v", err)
			continue
		}
		count++
	}

	log.Printf("🎉 Successfully embedded %d listings.", count)
	return count, nil
}

// truncate shortens s to n runes, marking the cut with "...".
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
