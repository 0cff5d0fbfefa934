// Package csvstore persists paper records to the annotated CSV file and reads
// them back for the catalog.
package csvstore

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/JakeFAU/paper-harvester/internal/harvest"
)

// FileName is the CSV file created under the output root.
const FileName = "annotated_papers.csv"

// TimeLayout formats the Download Time column.
const TimeLayout = "2006-01-02 15:04:05"

// Header is the column order of the CSV file.
var Header = []string{"Year", "Title", "PDF Link", "Authors", "Download Time", "Annotation"}

// Store appends records to a CSV file. The header is written once, when the
// file is new or empty.
type Store struct {
	mu   sync.Mutex
	path string
	file *os.File
	w    *csv.Writer
}

// Open opens (or creates) the CSV file at path for appending.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create csv directory: %w", err)
	}
	// #nosec G304 -- path comes from operator configuration.
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat csv: %w", err)
	}

	s := &Store{path: path, file: f, w: csv.NewWriter(f)}
	if info.Size() == 0 {
		if err := s.writeRow(Header); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("write csv header: %w", err)
		}
	}
	return s, nil
}

// Path returns the CSV file location.
func (s *Store) Path() string {
	return s.path
}

// Append writes one row and flushes it.
func (s *Store) Append(_ context.Context, record harvest.PaperRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return errors.New("csv store closed")
	}
	if err := s.writeRow(toRow(record)); err != nil {
		return fmt.Errorf("append csv row: %w", err)
	}
	return nil
}

// Close flushes and closes the file.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	s.w.Flush()
	flushErr := s.w.Error()
	closeErr := s.file.Close()
	s.file = nil
	if flushErr != nil {
		return fmt.Errorf("flush csv: %w", flushErr)
	}
	if closeErr != nil {
		return fmt.Errorf("close csv: %w", closeErr)
	}
	return nil
}

func (s *Store) writeRow(row []string) error {
	if err := s.w.Write(row); err != nil {
		return err
	}
	s.w.Flush()
	return s.w.Error()
}

func toRow(r harvest.PaperRecord) []string {
	return []string{
		strconv.Itoa(r.Year),
		r.Title,
		r.PDFURL,
		r.Authors,
		r.DownloadedAt.Format(TimeLayout),
		r.Category,
	}
}
