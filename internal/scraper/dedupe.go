package scraper

import "mspro-labs/map-extractor/internal/models"

type listingKey struct {
	name, address string
}

// Dedupe keeps the first listing for each exact (Name, Address) pair, in order.
// Keys are compared byte for byte; case and whitespace variants stay distinct.
func Dedupe(listings []models.Listing) []models.Listing {
	seen := make(map[listingKey]struct{}, len(listings))
	out := make([]models.Listing, 0, len(listings))
	for _, l := range listings {
		k := listingKey{l.Name, l.Address}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, l)
	}
	return out
}
