// Package harvest defines the core types shared across the harvesting pipeline
// and the orchestrator that fans work out per year and per paper.
package harvest

import (
	"net/http"
	"time"
)

// Sentinel values written when a step produced no evidence.
const (
	// UnknownAuthors is recorded when neither the detail page nor the PDF text yields authors.
	UnknownAuthors = "Unknown Authors"
	// UnknownCategory is recorded when classification fails or abstains.
	UnknownCategory = "Unknown"
)

// DefaultCategories is the canonical label set offered to the classifier.
var DefaultCategories = []string{
	"Deep Learning",
	"Reinforcement Learning",
	"NLP",
	"Computer Vision",
	"Optimization",
}

// FetchKind labels a network operation for logs and metrics.
type FetchKind string

// Network operation kinds issued by the pipeline.
const (
	KindListing FetchKind = "listing"
	KindDetail  FetchKind = "detail"
	KindPDF     FetchKind = "pdf"
)

// PaperReference is one entry discovered on a year's listing page.
type PaperReference struct {
	Year      int
	Title     string
	DetailURL string
}

// PdfAsset describes a PDF that was written to storage.
type PdfAsset struct {
	Path   string
	URL    string
	Bytes  int64
	SHA256 string
}

// PaperRecord is the unit of durable output, one per downloaded paper.
type PaperRecord struct {
	Year         int       `json:"year"`
	Title        string    `json:"title"`
	PDFURL       string    `json:"pdf_url"`
	Authors      string    `json:"authors"`
	DownloadedAt time.Time `json:"download_time"`
	Category     string    `json:"annotation"`
}

// FetchRequest captures everything needed to fetch a URL.
type FetchRequest struct {
	URL  string
	Kind FetchKind
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// SinkStats reports what the metadata sink did with the records it received.
type SinkStats struct {
	Enqueued int64
	Written  int64
	Failed   int64
}

// Summary aggregates the outcome of one harvest run.
type Summary struct {
	RunID            string
	Started          time.Time
	Finished         time.Time
	YearsProcessed   int64
	YearsFailed      int64
	PapersDiscovered int64
	PapersDownloaded int64
	DownloadsFailed  int64
	RecordsEmitted   int64
	Sink             SinkStats
}

// Duration returns the wall-clock time of the run.
func (s Summary) Duration() time.Duration {
	return s.Finished.Sub(s.Started)
}
