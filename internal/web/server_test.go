package web

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"mspro-labs/map-extractor/internal/ai"
	"mspro-labs/map-extractor/internal/db"
	"mspro-labs/map-extractor/internal/models"
)

type constEmbedder struct{}

func (constEmbedder) EmbedString(_ context.Context, _ string) ([]byte, []float32, error) {
	v := []float32{1, 0}
	blob, err := ai.FloatsToBytes(v)
	return blob, v, err
}

func newTestServer(t *testing.T) (*Server, int64) {
	t.Helper()
	database, err := db.Connect(":memory:")
	if err != nil {
		t.Fatalf("Failed to open in-memory db: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	now := time.Now()
	run := &models.Run{Query: "bakeries", State: "saved", Scraped: 4, Unique: 1, OutputPath: "/tmp/out.csv", StartedAt: now, FinishedAt: now}
	id, err := db.SaveRun(database, run, []models.Listing{{Name: "Green <Bakery>", Address: "1 Oak St, Town"}})
	if err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}
	targets, _ := db.GetUnembeddedListings(database)
	blob, _ := ai.FloatsToBytes([]float32{1, 0})
	for lid := range targets {
		db.UpdateEmbedding(database, lid, blob)
	}

	s, err := NewServer(database, constEmbedder{})
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	return s, id
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestHomeListsRuns(t *testing.T) {
	s, _ := newTestServer(t)
	rec := get(t, s.Handler(), "/")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "bakeries") {
		t.Errorf("home page does not list the run")
	}
}

func TestRunPageEscapesListings(t *testing.T) {
	s, id := newTestServer(t)
	h := s.Handler()

	rec := get(t, h, "/runs/"+strconv.FormatInt(id, 10))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "Green &lt;Bakery&gt;") {
		t.Errorf("listing name missing or unescaped")
	}

	if rec := get(t, h, "/runs/999"); rec.Code != http.StatusNotFound {
		t.Errorf("missing run: expected 404, got %d", rec.Code)
	}
	if rec := get(t, h, "/runs/abc"); rec.Code != http.StatusNotFound {
		t.Errorf("bad id: expected 404, got %d", rec.Code)
	}
}

func TestSearch(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Handler()

	rec := get(t, h, "/search?q=bread")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "100.0%") {
		t.Errorf("search page missing score")
	}

	if rec := get(t, h, "/search"); rec.Code != http.StatusFound {
		t.Errorf("empty query: expected redirect, got %d", rec.Code)
	}
}
