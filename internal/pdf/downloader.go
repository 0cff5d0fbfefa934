// Package pdf downloads paper PDFs and extracts their text.
package pdf

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/paper-harvester/internal/harvest"
	"github.com/JakeFAU/paper-harvester/internal/site"
)

const contentType = "application/pdf"

// ErrEmptyBody is returned when the server answered 2xx with no content.
var ErrEmptyBody = errors.New("empty pdf body")

// Downloader implements harvest.PdfDownloader.
type Downloader struct {
	fetcher harvest.Fetcher
	store   harvest.BlobStore
	mirror  harvest.BlobStore
	logger  *zap.Logger
}

// Option customizes a Downloader.
type Option func(*Downloader)

// WithMirror uploads every PDF to a second store after the primary write.
// Mirror failures are logged and otherwise ignored.
func WithMirror(store harvest.BlobStore) Option {
	return func(d *Downloader) {
		d.mirror = store
	}
}

// NewDownloader builds a Downloader that writes into store.
func NewDownloader(fetcher harvest.Fetcher, store harvest.BlobStore, logger *zap.Logger, opts ...Option) *Downloader {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Downloader{
		fetcher: fetcher,
		store:   store,
		logger:  logger.Named("pdf"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Download fetches the PDF behind ref and stores it at {year}/{sanitized title}.pdf.
func (d *Downloader) Download(ctx context.Context, ref harvest.PaperReference) (harvest.PdfAsset, error) {
	pdfURL := site.PDF(ref.DetailURL)
	resp, err := d.fetcher.Fetch(ctx, harvest.FetchRequest{URL: pdfURL, Kind: harvest.KindPDF})
	if err != nil {
		return harvest.PdfAsset{}, fmt.Errorf("fetch pdf: %w", err)
	}
	if len(resp.Body) == 0 {
		return harvest.PdfAsset{}, fmt.Errorf("fetch pdf %s: %w", pdfURL, ErrEmptyBody)
	}

	objectPath := ObjectPath(ref.Year, ref.Title)
	location, err := d.store.PutObject(ctx, objectPath, contentType, bytes.NewReader(resp.Body))
	if err != nil {
		return harvest.PdfAsset{}, fmt.Errorf("store pdf: %w", err)
	}

	sum := sha256.Sum256(resp.Body)
	asset := harvest.PdfAsset{
		Path:   location,
		URL:    pdfURL,
		Bytes:  int64(len(resp.Body)),
		SHA256: hex.EncodeToString(sum[:]),
	}

	if d.mirror != nil {
		if uri, err := d.mirror.PutObject(ctx, objectPath, contentType, bytes.NewReader(resp.Body)); err != nil {
			d.logger.Warn("pdf mirror upload failed",
				zap.String("title", ref.Title),
				zap.Int("year", ref.Year),
				zap.Error(err),
			)
		} else {
			d.logger.Debug("pdf mirrored", zap.String("uri", uri))
		}
	}

	d.logger.Info("pdf downloaded",
		zap.String("title", ref.Title),
		zap.Int("year", ref.Year),
		zap.String("url", pdfURL),
		zap.String("path", location),
		zap.Int64("bytes", asset.Bytes),
	)
	return asset, nil
}
