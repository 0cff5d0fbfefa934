package csvstore

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/JakeFAU/paper-harvester/internal/harvest"
)

// Filter narrows List results. Zero values match everything.
type Filter struct {
	Year  int
	Title string
}

// Reader reads the CSV file written by Store.
type Reader struct {
	path string
}

// NewReader builds a Reader for the CSV file at path.
func NewReader(path string) *Reader {
	return &Reader{path: path}
}

// List returns the rows matching f in file order. A missing file is empty.
// Title matching is a case-insensitive substring match.
func (r *Reader) List(f Filter) ([]harvest.PaperRecord, error) {
	all, err := r.readAll()
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(strings.TrimSpace(f.Title))
	out := make([]harvest.PaperRecord, 0, len(all))
	for _, rec := range all {
		if f.Year != 0 && rec.Year != f.Year {
			continue
		}
		if needle != "" && !strings.Contains(strings.ToLower(rec.Title), needle) {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// Years returns the distinct years present, newest first.
func (r *Reader) Years() ([]int, error) {
	all, err := r.readAll()
	if err != nil {
		return nil, err
	}
	var years []int
	for _, rec := range all {
		if !slices.Contains(years, rec.Year) {
			years = append(years, rec.Year)
		}
	}
	sort.Sort(sort.Reverse(sort.IntSlice(years)))
	return years, nil
}

func (r *Reader) readAll() ([]harvest.PaperRecord, error) {
	// #nosec G304 -- path comes from operator configuration.
	f, err := os.Open(r.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	cr := csv.NewReader(f)
	cr.FieldsPerRecord = len(Header)
	var out []harvest.PaperRecord
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		if slices.Equal(row, Header) {
			continue
		}
		rec, err := fromRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func fromRow(row []string) (harvest.PaperRecord, error) {
	year, err := strconv.Atoi(row[0])
	if err != nil {
		return harvest.PaperRecord{}, fmt.Errorf("parse year %q: %w", row[0], err)
	}
	downloaded, err := time.Parse(TimeLayout, row[4])
	if err != nil {
		return harvest.PaperRecord{}, fmt.Errorf("parse download time %q: %w", row[4], err)
	}
	return harvest.PaperRecord{
		Year:         year,
		Title:        row[1],
		PDFURL:       row[2],
		Authors:      row[3],
		DownloadedAt: downloaded,
		Category:     row[5],
	}, nil
}
