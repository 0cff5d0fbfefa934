// Package listing discovers the papers published in a conference year.
package listing

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/paper-harvester/internal/harvest"
	"github.com/JakeFAU/paper-harvester/internal/site"
)

// Fetcher implements harvest.ListingFetcher.
type Fetcher struct {
	fetcher harvest.Fetcher
	parser  site.ListingParser
	urls    site.URLs
	logger  *zap.Logger
}

// New builds a listing Fetcher.
func New(fetcher harvest.Fetcher, parser site.ListingParser, urls site.URLs, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		fetcher: fetcher,
		parser:  parser,
		urls:    urls,
		logger:  logger.Named("listing"),
	}
}

// Fetch returns the paper references on the year's listing page. An empty
// page is a valid empty result; network failures are returned to the caller.
func (f *Fetcher) Fetch(ctx context.Context, year int) ([]harvest.PaperReference, error) {
	listingURL := f.urls.Listing(year)
	resp, err := f.fetcher.Fetch(ctx, harvest.FetchRequest{URL: listingURL, Kind: harvest.KindListing})
	if err != nil {
		return nil, fmt.Errorf("fetch listing %d: %w", year, err)
	}

	entries, err := f.parser.ParseListing(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse listing %d: %w", year, err)
	}

	seen := make(map[string]struct{}, len(entries))
	refs := make([]harvest.PaperReference, 0, len(entries))
	for _, entry := range entries {
		if entry.Title == "" || entry.Href == "" {
			f.logger.Debug("skipping incomplete listing entry",
				zap.Int("year", year),
				zap.String("title", entry.Title),
				zap.String("href", entry.Href),
			)
			continue
		}
		detailURL, err := f.urls.Detail(entry.Href)
		if err != nil {
			f.logger.Warn("skipping malformed listing href", zap.Int("year", year), zap.String("href", entry.Href), zap.Error(err))
			continue
		}
		if _, dup := seen[detailURL]; dup {
			continue
		}
		seen[detailURL] = struct{}{}
		refs = append(refs, harvest.PaperReference{
			Year:      year,
			Title:     entry.Title,
			DetailURL: detailURL,
		})
	}

	f.logger.Info("listing parsed",
		zap.Int("year", year),
		zap.String("url", listingURL),
		zap.Int("papers", len(refs)),
	)
	return refs, nil
}
