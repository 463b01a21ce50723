package searcher

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sort"

	"mspro-labs/map-extractor/internal/ai"
	"mspro-labs/map-extractor/internal/db"
)

// DefaultLimit caps how many matches Perform returns.
const DefaultLimit = 5

// Result holds a single search match.
type Result struct {
	Item  db.ListingVector
	Score float32
}

// Perform ranks every embedded listing against queryText, best match first.
func Perform(ctx context.Context, database *sql.DB, embedder ai.Embedder, queryText string, limit int) ([]Result, error) {
	queryVector, err := getQueryVector(ctx, database, embedder, queryText)
	if err != nil {
		return nil, err
	}

	listings, err := db.GetListingVectors(database)
	if err != nil {
		return nil, fmt.Errorf("failed to load listings: %w", err)
	}

	var results []Result
	for _, l := range listings {
		floats, err := ai.BytesToFloats(l.Vector)
		if err != nil {
			continue
		}
		results = append(results, Result{Item: l, Score: ai.CosineSimilarity(queryVector, floats)})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if limit <= 0 {
		limit = DefaultLimit
	}
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// getQueryVector handles the "cache-aside" logic for query embeddings.
func getQueryVector(ctx context.Context, database *sql.DB, embedder ai.Embedder, text string) ([]float32, error) {
	if blob, err := db.GetCachedQuery(database, text); err == nil {
		return ai.BytesToFloats(blob)
	}

	if embedder == nil {
		return nil, fmt.Errorf("query %q is not cached and no embedder is configured", text)
	}
	log.Printf("🤖 Cache miss for '%s'. Calling Gemini...", text)
	blob, floats, err := embedder.EmbedString(ctx, text)
	if err != nil {
		return nil, err
	}

	// don't fail the request if the cache write fails
	if err := db.SaveCachedQuery(database, text, blob); err != nil {
		log.Printf("Warning: failed to save query to cache: %v", err)
	}
	return floats, nil
}
