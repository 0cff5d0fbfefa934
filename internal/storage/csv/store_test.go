package csvstore

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/paper-harvester/internal/harvest"
)

func record(year int, title string) harvest.PaperRecord {
	return harvest.PaperRecord{
		Year:         year,
		Title:        title,
		PDFURL:       "https://papers.nips.cc/" + title + ".pdf",
		Authors:      "Ada Lovelace, Alan Turing",
		DownloadedAt: time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC),
		Category:     "Deep Learning",
	}
}

func TestStore_HeaderWrittenOnce(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), FileName)

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Append(context.Background(), record(2020, "First, with comma")))
	require.NoError(t, s.Close())

	// Reopening an existing file must not repeat the header.
	s, err = Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Append(context.Background(), record(2021, "Second")))
	require.NoError(t, s.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Year,Title,PDF Link,Authors,Download Time,Annotation", lines[0])
	assert.Equal(t, `2020,"First, with comma","https://papers.nips.cc/First, with comma.pdf","Ada Lovelace, Alan Turing",2024-05-06 07:08:09,Deep Learning`, lines[1])
	assert.Equal(t, 1, strings.Count(string(raw), "Year,Title"))
}

func TestStore_EmptyExistingFileGetsHeader(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Year,Title,PDF Link,Authors,Download Time,Annotation\n", string(raw))
}

func TestStore_AppendAfterClose(t *testing.T) {
	t.Parallel()

	s, err := Open(filepath.Join(t.TempDir(), FileName))
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.Error(t, s.Append(context.Background(), record(2020, "late")))
}

func TestReader(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), FileName)
	s, err := Open(path)
	require.NoError(t, err)
	for _, rec := range []harvest.PaperRecord{
		record(2019, "Graph Networks"),
		record(2021, "Deep Graphs"),
		record(2021, "Vision Transformers"),
	} {
		require.NoError(t, s.Append(context.Background(), rec))
	}
	require.NoError(t, s.Close())

	r := NewReader(path)

	all, err := r.List(Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, record(2019, "Graph Networks"), all[0])

	byYear, err := r.List(Filter{Year: 2021})
	require.NoError(t, err)
	assert.Len(t, byYear, 2)

	byTitle, err := r.List(Filter{Title: "graph"})
	require.NoError(t, err)
	assert.Len(t, byTitle, 2)

	both, err := r.List(Filter{Year: 2021, Title: "GRAPH"})
	require.NoError(t, err)
	require.Len(t, both, 1)
	assert.Equal(t, "Deep Graphs", both[0].Title)

	years, err := r.Years()
	require.NoError(t, err)
	assert.Equal(t, []int{2021, 2019}, years)
}

func TestReader_MissingFile(t *testing.T) {
	t.Parallel()

	r := NewReader(filepath.Join(t.TempDir(), "absent.csv"))
	rows, err := r.List(Filter{})
	require.NoError(t, err)
	assert.Empty(t, rows)
}
