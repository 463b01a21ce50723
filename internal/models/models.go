package models

import "time"

// NotAvailable marks a field whose extraction failed.
const NotAvailable = "N/A"

// Listing holds the fields scraped from a single result card.
type Listing struct {
	Name     string
	Phone    string
	Category string
	Address  string
	Reviews  string
	Rating   string
}

// Run is one journaled invocation of the pipeline.
type Run struct {
	ID         int64
	Query      string
	State      string
	Scraped    int
	Unique     int
	OutputPath string
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
}
