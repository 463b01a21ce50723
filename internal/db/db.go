package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // Import for side-effects only

	"mspro-labs/map-extractor/internal/models"
)

// ErrRunNotFound is returned when no run has the requested id.
var ErrRunNotFound = errors.New("run not found")

// Connect opens a connection to the SQLite database and ensures the schema exists.
// It automatically applies recommended settings for concurrency (WAL mode).
func Connect(dbPath string) (*sql.DB, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// Use robust connection settings to prevent "database locked" errors
	dsn := fmt.Sprintf("%s?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on", dbPath)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// every new connection would see its own empty database
		db.SetMaxOpenConns(1)
	}

	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err = createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}

	return db, nil
}

// createSchema is private as it's only called by Connect.
func createSchema(db *sql.DB) error {
	runsTable := `
	CREATE TABLE IF NOT EXISTS runs (
	  id INTEGER PRIMARY KEY AUTOINCREMENT,
	  query TEXT NOT NULL,
	  state TEXT NOT NULL,
	  scraped INTEGER DEFAULT 0,
	  unique_count INTEGER DEFAULT 0,
	  output_path TEXT,
	  error TEXT,
	  started_at TIMESTAMP,
	  finished_at TIMESTAMP
	);
	`
	if _, err := db.Exec(runsTable); err != nil {
		return err
	}

	// Deduplicated listings of each run, in output order
	listingsTable := `
	CREATE TABLE IF NOT EXISTS listings (
	  id INTEGER PRIMARY KEY AUTOINCREMENT,
	  run_id INTEGER NOT NULL REFERENCES runs (id) ON DELETE CASCADE,
	  position INTEGER NOT NULL,
	  name TEXT,
	  phone TEXT,
	  category TEXT,
	  address TEXT,
	  reviews TEXT,
	  rating TEXT,
	  embedding BLOB
	);
	CREATE INDEX IF NOT EXISTS idx_listings_run ON listings(run_id, position);
	`
	if _, err := db.Exec(listingsTable); err != nil {
		return err
	}

	// Search History Table (for local caching of AI queries)
	historyTable := `
	CREATE TABLE IF NOT EXISTS search_history (
		query_text TEXT PRIMARY KEY,
		embedding BLOB,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	`
	if _, err := db.Exec(historyTable); err != nil {
		return err
	}

	return nil
}

// SaveRun records a finished run and its unique listings in one transaction.
// The new id is stored in run.ID.
func SaveRun(db *sql.DB, run *models.Run, listings []models.Listing) (int64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO runs (query, state, scraped, unique_count, output_path, error, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.Query,
		run.State,
		run.Scraped,
		run.Unique,
		sql.NullString{String: run.OutputPath, Valid: run.OutputPath != ""},
		sql.NullString{String: run.Error, Valid: run.Error != ""},
		run.StartedAt.UTC(),
		run.FinishedAt.UTC(),
	)
	if err != nil {
		tx.Rollback()
		return 0, fmt.Errorf("failed to insert run: %w", err)
	}
	runID, err := res.LastInsertId()
	if err != nil {
		tx.Rollback()
		return 0, err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO listings (run_id, position, name, phone, category, address, reviews, rating)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return 0, err
	}
	defer stmt.Close()

	for i, l := range listings {
		if _, err := stmt.ExecContext(ctx, runID, i, l.Name, l.Phone, l.Category, l.Address, l.Reviews, l.Rating); err != nil {
			tx.Rollback()
			return 0, fmt.Errorf("failed to insert listing %q: %w", l.Name, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return 0, err
	}

	run.ID = runID
	return runID, nil
}

const runColumns = `id, query, state, scraped, unique_count, COALESCE(output_path, ''), COALESCE(error, ''), started_at, finished_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (models.Run, error) {
	var r models.Run
	err := s.Scan(&r.ID, &r.Query, &r.State, &r.Scraped, &r.Unique, &r.OutputPath, &r.Error, &r.StartedAt, &r.FinishedAt)
	return r, err
}

// ListRuns returns the most recent runs, newest first. A limit <= 0 returns all.
func ListRuns(db *sql.DB, limit int) ([]models.Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := db.Query(`SELECT `+runColumns+` FROM runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []models.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// GetRun loads a single run by id.
func GetRun(db *sql.DB, id int64) (models.Run, error) {
	r, err := scanRun(db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Run{}, fmt.Errorf("%w: %d", ErrRunNotFound, id)
	}
	return r, err
}

// GetRunListings returns the listings of a run in their original order.
func GetRunListings(db *sql.DB, runID int64) ([]models.Listing, error) {
	rows, err := db.Query(`
		SELECT name, phone, category, address, reviews, rating
		FROM listings
		WHERE run_id = ?
		ORDER BY position
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var listings []models.Listing
	for rows.Next() {
		var l models.Listing
		if err := rows.Scan(&l.Name, &l.Phone, &l.Category, &l.Address, &l.Reviews, &l.Rating); err != nil {
			return nil, fmt.Errorf("failed to scan listing: %w", err)
		}
		listings = append(listings, l)
	}
	return listings, rows.Err()
}

// --- Embedding & Search Helpers ---

// GetUnembeddedListings returns a map of listing id -> text to embed for listings missing vectors.
func GetUnembeddedListings(db *sql.DB) (map[int64]string, error) {
	rows, err := db.Query(`SELECT id, name, phone, category, address, reviews, rating FROM listings WHERE embedding IS NULL`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make(map[int64]string)
	for rows.Next() {
		var id int64
		var l models.Listing
		if err := rows.Scan(&id, &l.Name, &l.Phone, &l.Category, &l.Address, &l.Reviews, &l.Rating); err == nil {
			results[id] = EmbeddingText(l)
		}
	}
	return results, rows.Err()
}

// EmbeddingText combines the descriptive fields of a listing for a richer embedding.
// Fields holding N/A are left out.
func EmbeddingText(l models.Listing) string {
	var b strings.Builder
	add := func(label, v string) {
		if v == "" || v == models.NotAvailable {
			return
		}
		fmt.Fprintf(&b, "%s: %s\n", label, v)
	}
	add("Place", l.Name)
	add("Category", l.Category)
	add("Address", l.Address)
	add("Rating", l.Rating)
	return strings.TrimSuffix(b.String(), "\n")
}

// UpdateEmbedding saves the generated vector blob for a specific listing.
func UpdateEmbedding(db *sql.DB, id int64, embedding []byte) error {
	_, err := db.Exec("UPDATE listings SET embedding = ? WHERE id = ?", embedding, id)
	return err
}

// ListingVector is an embedded listing, ready for similarity scoring.
type ListingVector struct {
	ID      int64
	RunID   int64
	Listing models.Listing
	Vector  []byte
}

// GetListingVectors returns every listing that has an embedding.
func GetListingVectors(db *sql.DB) ([]ListingVector, error) {
	rows, err := db.Query(`
		SELECT id, run_id, name, phone, category, address, reviews, rating, embedding
		FROM listings
		WHERE embedding IS NOT NULL
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []ListingVector
	for rows.Next() {
		var lv ListingVector
		l := &lv.Listing
		if err := rows.Scan(&lv.ID, &lv.RunID, &l.Name, &l.Phone, &l.Category, &l.Address, &l.Reviews, &l.Rating, &lv.Vector); err == nil {
			results = append(results, lv)
		}
	}
	return results, rows.Err()
}

// GetCachedQuery tries to find a previously searched query vector.
func GetCachedQuery(db *sql.DB, text string) ([]byte, error) {
	var blob []byte
	err := db.QueryRow("SELECT embedding FROM search_history WHERE query_text = ?", text).Scan(&blob)
	return blob, err
}

// SaveCachedQuery saves a new query and its vector to the history table.
func SaveCachedQuery(db *sql.DB, text string, blob []byte) error {
	_, err := db.Exec("INSERT OR IGNORE INTO search_history (query_text, embedding) VALUES (?, ?)", text, blob)
	return err
}

// --- History Management for search ---

type HistoryEntry struct {
	QueryText string
	CreatedAt time.Time
}

// ListSearchHistory returns all cached queries, newest first.
func ListSearchHistory(db *sql.DB) ([]HistoryEntry, error) {
	rows, err := db.Query("SELECT query_text, created_at FROM search_history ORDER BY created_at DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		if err := rows.Scan(&e.QueryText, &e.CreatedAt); err == nil {
			entries = append(entries, e)
		}
	}
	return entries, rows.Err()
}

// ClearSearchHistory removes a specific query from the cache.
func ClearSearchHistory(db *sql.DB, queryText string) (int64, error) {
	res, err := db.Exec("DELETE FROM search_history WHERE query_text = ?", queryText)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ClearAllSearchHistory wipes the entire cache.
func ClearAllSearchHistory(db *sql.DB) (int64, error) {
	res, err := db.Exec("DELETE FROM search_history")
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
