package api

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/paper-harvester/internal/harvest"
	csvstore "github.com/JakeFAU/paper-harvester/internal/storage/csv"
	"github.com/JakeFAU/paper-harvester/internal/storage/local"
)

func TestServer_Healthz(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, &fakeCatalog{})
	rec := serve(server, "/healthz")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestServer_Metrics(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, &fakeCatalog{})
	rec := serve(server, "/metrics")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestServer_ListYears(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, &fakeCatalog{years: []int{2024, 2020}})
	rec := serve(server, "/v1/years")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"years":[2024,2020]}`, rec.Body.String())
}

func TestServer_ListYears_EmptyCatalog(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, &fakeCatalog{})
	rec := serve(server, "/v1/years")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"years":[]}`, rec.Body.String())
}

func TestServer_ListPapers_PassesFilter(t *testing.T) {
	t.Parallel()

	catalog := &fakeCatalog{papers: []harvest.PaperRecord{{
		Year:         2023,
		Title:        "Scaling Laws",
		PDFURL:       "https://papers.nips.cc/paper_files/paper/2023/file/x-Paper.pdf",
		Authors:      "Grace Hopper",
		DownloadedAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		Category:     "NLP",
	}}}
	server := newTestServer(t, catalog)
	rec := serve(server, "/v1/papers?year=2023&title=scaling")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, csvstore.Filter{Year: 2023, Title: "scaling"}, catalog.lastFilter)

	var body struct {
		Count  int                   `json:"count"`
		Papers []harvest.PaperRecord `json:"papers"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, 1, body.Count)
	assert.Equal(t, "Scaling Laws", body.Papers[0].Title)
	assert.Equal(t, "NLP", body.Papers[0].Category)
}

func TestServer_ListPapers_BadYear(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, &fakeCatalog{})
	rec := serve(server, "/v1/papers?year=next")

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "year")
}

func TestServer_ListPapers_CatalogError(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, &fakeCatalog{err: errors.New("disk gone")})
	rec := serve(server, "/v1/papers")

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "disk gone")
}

func TestServer_DownloadPDF(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	files, err := local.New(local.Config{BaseDir: root})
	require.NoError(t, err)
	_, err = files.PutObject(t.Context(), "2023/What_ A Paper.pdf", "application/pdf", strings.NewReader("%PDF-1.4"))
	require.NoError(t, err)

	server := NewServer(&fakeCatalog{}, files, zap.NewNop())

	rec := serve(server, "/v1/papers/2023/pdf?title=What%3F%20A%20Paper")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "What_ A Paper.pdf")
	assert.Equal(t, "%PDF-1.4", rec.Body.String())

	rec = serve(server, "/v1/papers/2023/pdf?title=Missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(server, "/v1/papers/2023/pdf")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(server, "/v1/papers/abc/pdf?title=x")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_RecoversFromPanic(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, &fakeCatalog{panics: true})
	rec := serve(server, "/v1/years")

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "internal server error")
}

func TestRequestIDMiddlewareKeepsIncomingHeader(t *testing.T) {
	t.Parallel()

	var seen string
	h := requestIDMiddleware(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = RequestID(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "abc-123", seen)
	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))
}

func TestResponseWriterHijackBehavior(t *testing.T) {
	t.Parallel()

	rw := &responseWriter{ResponseWriter: httptest.NewRecorder()}
	_, _, err := rw.Hijack()
	require.EqualError(t, err, "hijacker not supported")

	h := &hijackableRecorder{ResponseRecorder: httptest.NewRecorder()}
	rw = &responseWriter{ResponseWriter: h}
	conn, buf, err := rw.Hijack()
	require.NoError(t, err)
	require.NotNil(t, buf)
	require.NoError(t, conn.Close())
	require.NoError(t, h.CloseClient())
}

// --- helpers/fakes ---

type fakeCatalog struct {
	papers     []harvest.PaperRecord
	years      []int
	err        error
	panics     bool
	lastFilter csvstore.Filter
}

func (c *fakeCatalog) List(f csvstore.Filter) ([]harvest.PaperRecord, error) {
	c.lastFilter = f
	if c.err != nil {
		return nil, c.err
	}
	return c.papers, nil
}

func (c *fakeCatalog) Years() ([]int, error) {
	if c.panics {
		panic("catalog exploded")
	}
	if c.err != nil {
		return nil, c.err
	}
	return c.years, nil
}

type hijackableRecorder struct {
	*httptest.ResponseRecorder
	client net.Conn
}

func (h *hijackableRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	server, client := net.Pipe()
	h.client = client
	return server, bufio.NewReadWriter(bufio.NewReader(client), bufio.NewWriter(client)), nil
}

func (h *hijackableRecorder) CloseClient() error {
	if h.client != nil {
		if err := h.client.Close(); err != nil {
			return fmt.Errorf("close hijacker client: %w", err)
		}
	}
	return nil
}

func newTestServer(t *testing.T, catalog Catalog) *Server {
	t.Helper()
	files, err := local.New(local.Config{BaseDir: filepath.Join(t.TempDir(), "papers")})
	require.NoError(t, err)
	return NewServer(catalog, files, zap.NewNop())
}

func serve(s *Server, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}
