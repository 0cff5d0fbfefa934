package harvest

import (
	"context"
	"io"
	"time"
)

// Fetcher fetches a URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// ListingFetcher discovers the papers published in a year.
type ListingFetcher interface {
	Fetch(ctx context.Context, year int) ([]PaperReference, error)
}

// AuthorResolver resolves authors from a detail page, with a text fallback.
type AuthorResolver interface {
	Resolve(ctx context.Context, detailURL string) string
	FromText(text string) string
}

// PdfDownloader downloads the PDF behind a paper reference.
type PdfDownloader interface {
	Download(ctx context.Context, ref PaperReference) (PdfAsset, error)
}

// TextExtractor extracts truncated plain text from a stored PDF.
type TextExtractor interface {
	Extract(path string) string
}

// Classifier labels extracted paper text.
type Classifier interface {
	Classify(ctx context.Context, text string) (string, error)
}

// RecordSink accepts records from many producers and persists them with a single writer.
type RecordSink interface {
	Run(ctx context.Context)
	Enqueue(ctx context.Context, record PaperRecord) error
	Close()
	Wait()
	Stats() SinkStats
}

// RecordStore durably appends records. Implementations need not be safe for
// concurrent use; the sink is their only writer.
type RecordStore interface {
	Append(ctx context.Context, record PaperRecord) error
	Close() error
}

// BlobStore writes raw artifacts and returns their location.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher pushes record notifications to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}
