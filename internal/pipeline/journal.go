package pipeline

import (
	"database/sql"
	"time"

	"mspro-labs/map-extractor/internal/db"
	"mspro-labs/map-extractor/internal/models"
)

// DBJournal stores runs in the SQLite journal.
type DBJournal struct {
	DB *sql.DB
}

func (j DBJournal) Record(run *models.Run, unique []models.Listing) error {
	_, err := db.SaveRun(j.DB, run, unique)
	return err
}

func (p *Pipeline) record(out Outcome, unique []models.Listing, started time.Time) {
	if p.Journal == nil {
		return
	}
	run := &models.Run{
		Query:      out.Query,
		State:      string(out.State),
		Scraped:    out.Scraped,
		Unique:     out.Unique,
		OutputPath: out.Path,
		StartedAt:  started,
		FinishedAt: time.Now(),
	}
	if out.Err != nil {
		run.Error = out.Err.Error()
	}
	if err := p.Journal.Record(run, unique); err != nil {
		logger.Printf("Failed to journal run: %v", err)
		return
	}
	logger.Printf("Journaled run #%d", run.ID)
}
