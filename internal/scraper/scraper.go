package scraper

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"mspro-labs/map-extractor/internal/browser"
	"mspro-labs/map-extractor/internal/config"
	"mspro-labs/map-extractor/internal/models"
)

var logger = log.New(os.Stdout, "SCRAPER: ", log.LstdFlags|log.Lshortfile)

// ErrEmptyQuery is returned before any browser interaction when the query is blank.
var ErrEmptyQuery = errors.New("search query is empty")

// Start opens the search page, submits query and waits for the results to settle.
func Start(ctx context.Context, sess browser.Session, site *config.SiteConfig, query string) error {
	if strings.TrimSpace(query) == "" {
		return ErrEmptyQuery
	}

	logger.Printf("Navigating to: %s", site.SearchURL)
	if err := sess.Navigate(ctx, site.SearchURL); err != nil {
		return fmt.Errorf("failed to open %s: %w", site.SearchURL, err)
	}
	if err := sess.WaitFor(ctx, site.Selectors.SearchInput, site.Timing.WaitTimeout); err != nil {
		return fmt.Errorf("search input never appeared: %w", err)
	}
	if err := sess.SubmitText(ctx, site.Selectors.SearchInput, query); err != nil {
		return fmt.Errorf("failed to submit query: %w", err)
	}
	return pause(ctx, site.Timing.SearchSettle)
}

// Run performs one complete scrape: start the search, then collect listings
// until the cap is hit or the results stop growing. The session is closed
// before Run returns. Listings gathered before a failure are still returned.
func Run(ctx context.Context, sess browser.Session, site *config.SiteConfig, query string) ([]models.Listing, error) {
	defer func() {
		if err := sess.Close(); err != nil {
			logger.Printf("Failed to close browser session: %v", err)
		}
	}()

	if err := Start(ctx, sess, site, query); err != nil {
		return nil, fmt.Errorf("failed to start search: %w", err)
	}
	return Collect(ctx, sess, site)
}

// Collect runs the extract, scroll and stall-check cycle on an already
// searched page. Any error or panic ends the loop; the partial results are
// returned alongside it.
func Collect(ctx context.Context, sess browser.Session, site *config.SiteConfig) (results []models.Listing, err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Printf("Panic during scraping: %v", r)
			err = fmt.Errorf("scraper panic: %v", r)
		}
		if err != nil {
			logger.Printf("Error during scraping: %v", err)
		}
	}()

	sel := site.Selectors
	lastHeight, stalls := 0, 0

	for len(results) < site.MaxResults {
		if err := sess.WaitFor(ctx, sel.ResultCard, site.Timing.WaitTimeout); err != nil {
			return results, fmt.Errorf("no result cards: %w", err)
		}
		cards, err := sess.FindAll(ctx, sel.ResultCard)
		if err != nil {
			return results, fmt.Errorf("failed to list result cards: %w", err)
		}
		for _, card := range cards {
			results = append(results, ExtractListing(card, sel.Fields))
			if len(results) >= site.MaxResults {
				break
			}
		}
		if len(results) >= site.MaxResults {
			break
		}

		if err := sess.ScrollToBottom(ctx, sel.ResultsFeed); err != nil {
			return results, fmt.Errorf("failed to scroll results: %w", err)
		}
		if err := pause(ctx, site.Timing.ScrollPause); err != nil {
			return results, err
		}

		height, err := sess.ScrollHeight(ctx, sel.ResultsFeed)
		if err != nil {
			return results, fmt.Errorf("failed to read scroll height: %w", err)
		}
		if height == lastHeight {
			stalls++
			if stalls > site.Timing.StallLimit {
				logger.Println("No more results to load.")
				break
			}
		} else {
			stalls = 0
		}
		lastHeight = height
	}

	logger.Printf("Scraped %d listings", len(results))
	return results, nil
}

func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
