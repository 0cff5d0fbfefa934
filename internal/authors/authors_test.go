package authors

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/paper-harvester/internal/harvest"
	"github.com/JakeFAU/paper-harvester/internal/site"
)

type stubFetcher struct {
	body string
	err  error
	urls []string
}

func (s *stubFetcher) Fetch(_ context.Context, req harvest.FetchRequest) (harvest.FetchResponse, error) {
	s.urls = append(s.urls, req.URL)
	if s.err != nil {
		return harvest.FetchResponse{}, s.err
	}
	return harvest.FetchResponse{URL: req.URL, StatusCode: 200, Body: []byte(s.body)}, nil
}

func legacyParser(t *testing.T) site.DetailParser {
	t.Helper()
	p, err := site.Lookup(site.ProfileLegacy)
	require.NoError(t, err)
	return p.Detail
}

func TestResolve(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		fetcher *stubFetcher
		want    string
	}{
		{
			name:    "authors present",
			fetcher: &stubFetcher{body: `<div class="authors"><a>Ada Lovelace</a><a>Alan Turing</a></div>`},
			want:    "Ada Lovelace, Alan Turing",
		},
		{
			name:    "region missing",
			fetcher: &stubFetcher{body: `<div>nothing</div>`},
			want:    harvest.UnknownAuthors,
		},
		{
			name:    "fetch failed",
			fetcher: &stubFetcher{err: &harvest.StatusError{URL: "d", StatusCode: 500}},
			want:    harvest.UnknownAuthors,
		},
		{
			name:    "transport error",
			fetcher: &stubFetcher{err: errors.New("connection refused")},
			want:    harvest.UnknownAuthors,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New(tt.fetcher, legacyParser(t), zap.NewNop())
			assert.Equal(t, tt.want, r.Resolve(context.Background(), "https://example.com/detail"))
			assert.Equal(t, []string{"https://example.com/detail"}, tt.fetcher.urls)
		})
	}
}

func TestFromText(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
		want string
	}{
		{"empty", "", harvest.UnknownAuthors},
		{"authors prefix", "Deep Stuff Authors: John Doe, Jane Smith", "John Doe, Jane Smith"},
		{"author singular", "author:   Solo   Writer", "Solo Writer"},
		{"by prefix", "A Study. By: Grace Hopper", "Grace Hopper"},
		{"authors wins over by", "By: Second Choice. Authors: First Choice", "First Choice"},
		{"parenthetical", "John Doe (University). Abstract follows", "John Doe (University)"},
		{"empty capture falls through", "Authors: . By: Real Name", "Real Name"},
		{"no pattern", "Just an abstract about things.", harvest.UnknownAuthors},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FromText(tt.text))
		})
	}
}
