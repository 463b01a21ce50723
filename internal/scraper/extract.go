package scraper

import (
	"context"
	"fmt"
	"strings"

	"mspro-labs/map-extractor/internal/browser"
	"mspro-labs/map-extractor/internal/config"
	"mspro-labs/map-extractor/internal/models"
)

// orNA runs one field lookup and turns any failure into the N/A marker.
func orNA(lookup func() (string, error)) string {
	v, err := lookup()
	if err != nil {
		return models.NotAvailable
	}
	return v
}

// readField resolves f inside card and returns its text or attribute value.
func readField(card browser.Element, f config.Field) (string, error) {
	el, err := card.Find(f.Locator)
	if err != nil {
		return "", err
	}

	var v string
	if f.Attr != "" {
		v, err = el.Attribute(f.Attr)
	} else {
		v, err = el.Text()
	}
	if err != nil {
		return "", err
	}

	if f.FirstWord {
		words := strings.Fields(v)
		if len(words) == 0 {
			return "", fmt.Errorf("%w: empty %s", browser.ErrNotFound, f.Attr)
		}
		v = words[0]
	}
	return v, nil
}

// ExtractListing reads the six listing fields from one result card. Fields are
// independent: a missing one becomes N/A and the rest are still read.
func ExtractListing(card browser.Element, f config.Fields) models.Listing {
	field := func(spec config.Field) string {
		return orNA(func() (string, error) { return readField(card, spec) })
	}
	return models.Listing{
		Name:     field(f.Name),
		Phone:    field(f.Phone),
		Category: field(f.Category),
		Address:  field(f.Address),
		Reviews:  field(f.Reviews),
		Rating:   field(f.Rating),
	}
}

// ExtractCards runs a single extraction pass over the rendered result cards.
func ExtractCards(ctx context.Context, sess browser.Session, sel config.Selectors) ([]models.Listing, error) {
	cards, err := sess.FindAll(ctx, sel.ResultCard)
	if err != nil {
		return nil, fmt.Errorf("failed to list result cards: %w", err)
	}
	listings := make([]models.Listing, 0, len(cards))
	for _, card := range cards {
		listings = append(listings, ExtractListing(card, sel.Fields))
	}
	return listings, nil
}
