package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"strings"
	"time"

	"mspro-labs/map-extractor/internal/browser"
	"mspro-labs/map-extractor/internal/config"
	"mspro-labs/map-extractor/internal/export"
	"mspro-labs/map-extractor/internal/models"
	"mspro-labs/map-extractor/internal/scraper"
)

var logger = log.New(os.Stdout, "PIPELINE: ", log.LstdFlags|log.Lshortfile)

// State is a step of a single run.
type State string

const (
	Idle         State = "idle"
	Rejected     State = "rejected"
	QueryEntered State = "query_entered"
	Scraping     State = "scraping"
	Completed    State = "completed"
	EmptyResult  State = "empty_result"
	Deduplicated State = "deduplicated"
	Saved        State = "saved"
	SaveFailed   State = "save_failed"
)

// Outcome is the terminal result of a run.
type Outcome struct {
	State   State
	Query   string
	Scraped int
	Unique  int
	Path    string

	// Err is the scrape or save failure, if any. A run can end in Saved with
	// a scrape error when partial results were written.
	Err error
}

// Message is the line shown to the user for this outcome.
func (o Outcome) Message() string {
	switch o.State {
	case Rejected:
		return "Search query cannot be empty. Please try again."
	case EmptyResult:
		return "No data was scraped. Please check the script or query."
	case Saved:
		return fmt.Sprintf("Data saved to %s with %d unique records.", o.Path, o.Unique)
	case SaveFailed:
		if errors.Is(o.Err, fs.ErrPermission) {
			return fmt.Sprintf("Permission denied: %v. Please check file permissions or ensure the file isn't open.", o.Err)
		}
		return fmt.Sprintf("Failed to save data: %v.", o.Err)
	}
	return fmt.Sprintf("Run ended in state %s.", o.State)
}

// OpenFunc starts a browser session for one run.
type OpenFunc func(ctx context.Context) (browser.Session, error)

// Journal records finished runs. Errors are logged and never change the outcome.
type Journal interface {
	Record(run *models.Run, unique []models.Listing) error
}

// Pipeline runs query -> scrape -> dedupe -> CSV.
type Pipeline struct {
	Site      *config.SiteConfig
	OutputDir string
	Open      OpenFunc
	Journal   Journal

	// AfterSave runs once a CSV has been written and the run journaled, e.g.
	// to embed the new listings. Its error is logged and never changes the outcome.
	AfterSave func(ctx context.Context) error
}

// Run executes one complete run. It never returns an error; every failure is
// folded into the Outcome.
func (p *Pipeline) Run(ctx context.Context, query string) Outcome {
	started := time.Now()
	out, unique := p.run(ctx, query)
	if out.State != Rejected {
		p.record(out, unique, started)
	}
	if out.State == Saved && p.AfterSave != nil {
		if err := p.AfterSave(ctx); err != nil {
			logger.Printf("⚠️ Warning: post-save step failed: %v", err)
		}
	}
	return out
}

func (p *Pipeline) run(ctx context.Context, query string) (Outcome, []models.Listing) {
	state := Idle
	transition := func(next State) {
		logger.Printf("%s -> %s", state, next)
		state = next
	}

	query = strings.TrimSpace(query)
	if query == "" {
		transition(Rejected)
		return Outcome{State: Rejected}, nil
	}
	transition(QueryEntered)
	out := Outcome{Query: query}

	transition(Scraping)
	results, err := p.scrape(ctx, query)
	out.Scraped = len(results)
	out.Err = err
	if len(results) == 0 {
		transition(EmptyResult)
		out.State = EmptyResult
		return out, nil
	}
	transition(Completed)

	unique := scraper.Dedupe(results)
	out.Unique = len(unique)
	transition(Deduplicated)

	path, err := export.Save(p.OutputDir, p.Site.OutputName, unique)
	if err != nil {
		transition(SaveFailed)
		out.State = SaveFailed
		out.Err = err
		return out, unique
	}
	transition(Saved)
	out.State = Saved
	out.Path = path
	return out, unique
}

func (p *Pipeline) scrape(ctx context.Context, query string) ([]models.Listing, error) {
	sess, err := p.Open(ctx)
	if err != nil {
		logger.Printf("Failed to open browser: %v", err)
		return nil, fmt.Errorf("failed to open browser: %w", err)
	}
	results, err := scraper.Run(ctx, sess, p.Site, query)
	if err != nil {
		logger.Printf("Scrape ended early: %v", err)
	}
	return results, err
}
