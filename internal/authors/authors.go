// Package authors resolves paper authors from the detail page, falling back
// to patterns in the PDF text.
package authors

import (
	"context"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/paper-harvester/internal/harvest"
	"github.com/JakeFAU/paper-harvester/internal/site"
)

type textPattern struct {
	re *regexp.Regexp
	// group is the capture to use; 0 takes the whole match.
	group int
}

// Tried in order; the first non-empty result wins.
var textPatterns = []textPattern{
	{re: regexp.MustCompile(`(?i)Authors?:\s*([\p{L}\p{N}_\s,]+)`), group: 1},
	{re: regexp.MustCompile(`(?i)By:\s*([\p{L}\p{N}_\s,]+)`), group: 1},
	{re: regexp.MustCompile(`(?i)[\p{L}\p{N}_\s,]+\([\p{L}\p{N}_\s,]+\)`), group: 0},
}

// Resolver implements harvest.AuthorResolver.
type Resolver struct {
	fetcher harvest.Fetcher
	parser  site.DetailParser
	logger  *zap.Logger
}

// New builds a Resolver.
func New(fetcher harvest.Fetcher, parser site.DetailParser, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		fetcher: fetcher,
		parser:  parser,
		logger:  logger.Named("authors"),
	}
}

// Resolve fetches the detail page and joins its authors with ", ". It never
// fails; any problem yields harvest.UnknownAuthors.
func (r *Resolver) Resolve(ctx context.Context, detailURL string) string {
	resp, err := r.fetcher.Fetch(ctx, harvest.FetchRequest{URL: detailURL, Kind: harvest.KindDetail})
	if err != nil {
		r.logger.Warn("detail fetch failed",
			zap.String("url", detailURL),
			zap.Int("status", harvest.StatusCode(err)),
			zap.Error(err),
		)
		return harvest.UnknownAuthors
	}

	names, err := r.parser.ParseAuthors(resp.Body)
	if err != nil {
		r.logger.Warn("detail parse failed", zap.String("url", detailURL), zap.Error(err))
		return harvest.UnknownAuthors
	}
	if len(names) == 0 {
		return harvest.UnknownAuthors
	}
	return strings.Join(names, ", ")
}

// FromText scans extracted PDF text for an author line.
func (r *Resolver) FromText(text string) string {
	return FromText(text)
}

// FromText scans extracted PDF text for an author line.
func FromText(text string) string {
	if strings.TrimSpace(text) == "" {
		return harvest.UnknownAuthors
	}
	for _, p := range textPatterns {
		m := p.re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		if found := normalize(m[p.group]); found != "" {
			return found
		}
	}
	return harvest.UnknownAuthors
}

func normalize(s string) string {
	return strings.Trim(strings.Join(strings.Fields(s), " "), " ,")
}
