package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"mspro-labs/map-extractor/internal/browser"
	"mspro-labs/map-extractor/internal/config"
	"mspro-labs/map-extractor/internal/db"
	"mspro-labs/map-extractor/internal/models"
)

// Each card appears twice so dedupe has work to do.
const resultsHTML = `
<html><body>
  <input id="searchboxinput" />
  <div role="feed">
    <div class="bfdHYd"><div class="qBF1Pd">Blue Cafe</div>
      <div class="W4Efsd"><span><span>Cafe</span></span><span>12 Main St, Springfield</span></div></div>
    <div class="bfdHYd"><div class="qBF1Pd">Red Diner</div>
      <div class="W4Efsd"><span><span>Diner</span></span><span>40 Elm Rd, Shelbyville</span></div></div>
    <div class="bfdHYd"><div class="qBF1Pd">Blue Cafe</div>
      <div class="W4Efsd"><span><span>Cafe</span></span><span>12 Main St, Springfield</span></div></div>
  </div>
</body></html>`

func testSite() *config.SiteConfig {
	site := config.DefaultSiteConfig()
	site.Timing.WaitTimeout = 0
	site.Timing.SearchSettle = 0
	site.Timing.ScrollPause = 0
	return site
}

type openCounter struct {
	html  string
	calls int
	last  *browser.Snapshot
}

func (o *openCounter) open(context.Context) (browser.Session, error) {
	o.calls++
	s, err := browser.NewSnapshotString(o.html)
	o.last = s
	return s, err
}

type failingJournal struct{ calls int }

func (f *failingJournal) Record(*models.Run, []models.Listing) error {
	f.calls++
	return errors.New("disk full")
}

func TestRunRejectsEmptyQueryWithoutBrowser(t *testing.T) {
	opener := &openCounter{html: resultsHTML}
	journal := &failingJournal{}
	p := &Pipeline{Site: testSite(), OutputDir: t.TempDir(), Open: opener.open, Journal: journal}

	out := p.Run(context.Background(), "   ")
	if out.State != Rejected {
		t.Errorf("State = %s, want %s", out.State, Rejected)
	}
	if opener.calls != 0 {
		t.Errorf("browser opened %d times for empty query", opener.calls)
	}
	if journal.calls != 0 {
		t.Errorf("rejected run was journaled")
	}
	if got := out.Message(); got != "Search query cannot be empty. Please try again." {
		t.Errorf("Message() = %q", got)
	}
}

func TestRunSavesUniqueListings(t *testing.T) {
	dir := t.TempDir()
	opener := &openCounter{html: resultsHTML}
	database, err := db.Connect(":memory:")
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer database.Close()

	p := &Pipeline{Site: testSite(), OutputDir: dir, Open: opener.open, Journal: DBJournal{DB: database}}
	out := p.Run(context.Background(), "  coffee  ")

	if out.State != Saved {
		t.Fatalf("State = %s (err %v), want %s", out.State, out.Err, Saved)
	}
	if !opener.last.Closed {
		t.Error("browser session was not closed")
	}
	if opener.last.Submitted[0] != "coffee" {
		t.Errorf("submitted query = %q, want trimmed", opener.last.Submitted[0])
	}
	// 7 cycles over 3 cards, 2 of them unique.
	if out.Scraped != 21 || out.Unique != 2 {
		t.Errorf("Scraped=%d Unique=%d, want 21 and 2", out.Scraped, out.Unique)
	}
	if want := filepath.Join(dir, "google_maps_data.csv"); out.Path != want {
		t.Errorf("Path = %q, want %q", out.Path, want)
	}
	if want := fmt.Sprintf("Data saved to %s with 2 unique records.", out.Path); out.Message() != want {
		t.Errorf("Message() = %q, want %q", out.Message(), want)
	}

	data, err := os.ReadFile(out.Path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if lines := strings.Split(strings.TrimSpace(string(data)), "\n"); len(lines) != 3 {
		t.Errorf("CSV has %d lines, want header + 2", len(lines))
	}

	runs, err := db.ListRuns(database, 0)
	if err != nil || len(runs) != 1 {
		t.Fatalf("ListRuns = %v, %v", runs, err)
	}
	if runs[0].State != string(Saved) || runs[0].Unique != 2 || runs[0].Query != "coffee" {
		t.Errorf("journaled run = %+v", runs[0])
	}
	listings, _ := db.GetRunListings(database, runs[0].ID)
	if len(listings) != 2 || listings[0].Name != "Blue Cafe" {
		t.Errorf("journaled listings = %+v", listings)
	}

	// A second run never overwrites the first file.
	second := p.Run(context.Background(), "coffee")
	if want := filepath.Join(dir, "google_maps_data1.csv"); second.Path != want {
		t.Errorf("second Path = %q, want %q", second.Path, want)
	}
}

func TestRunEmptyResult(t *testing.T) {
	opener := &openCounter{html: `<html><body><input id="searchboxinput" /></body></html>`}
	journal := &failingJournal{}
	p := &Pipeline{Site: testSite(), OutputDir: t.TempDir(), Open: opener.open, Journal: journal}

	out := p.Run(context.Background(), "nowhere")
	if out.State != EmptyResult {
		t.Errorf("State = %s, want %s", out.State, EmptyResult)
	}
	if got := out.Message(); got != "No data was scraped. Please check the script or query." {
		t.Errorf("Message() = %q", got)
	}
	if journal.calls != 1 {
		t.Errorf("journal calls = %d, want 1", journal.calls)
	}
}

func TestRunBrowserOpenFailure(t *testing.T) {
	p := &Pipeline{
		Site:      testSite(),
		OutputDir: t.TempDir(),
		Open: func(context.Context) (browser.Session, error) {
			return nil, errors.New("chrome not found")
		},
	}

	out := p.Run(context.Background(), "coffee")
	if out.State != EmptyResult || out.Err == nil {
		t.Errorf("State = %s, Err = %v; want empty result with error", out.State, out.Err)
	}
}

func TestRunSaveFailure(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "not-a-dir")
	if err := os.WriteFile(blocker, nil, 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	opener := &openCounter{html: resultsHTML}
	p := &Pipeline{Site: testSite(), OutputDir: blocker, Open: opener.open}

	out := p.Run(context.Background(), "coffee")
	if out.State != SaveFailed || out.Err == nil {
		t.Fatalf("State = %s, Err = %v; want save failure", out.State, out.Err)
	}
	if !strings.HasPrefix(out.Message(), "Failed to save data: ") {
		t.Errorf("Message() = %q", out.Message())
	}
}

func TestPermissionMessage(t *testing.T) {
	err := fmt.Errorf("failed to create out.csv: %w", &fs.PathError{Op: "open", Path: "out.csv", Err: fs.ErrPermission})
	out := Outcome{State: SaveFailed, Err: err}

	want := fmt.Sprintf("Permission denied: %v. Please check file permissions or ensure the file isn't open.", err)
	if got := out.Message(); got != want {
		t.Errorf("Message() = %q, want %q", got, want)
	}
}

func TestRunReportsPermissionDenied(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root ignores directory permissions")
	}
	dir := t.TempDir()
	if err := os.Chmod(dir, 0o500); err != nil {
		t.Fatalf("Chmod failed: %v", err)
	}
	t.Cleanup(func() { os.Chmod(dir, 0o755) })

	opener := &openCounter{html: resultsHTML}
	p := &Pipeline{Site: testSite(), OutputDir: dir, Open: opener.open}

	out := p.Run(context.Background(), "coffee")
	if out.State != SaveFailed || !errors.Is(out.Err, fs.ErrPermission) {
		t.Fatalf("State = %s, Err = %v; want permission save failure", out.State, out.Err)
	}
	if !strings.HasPrefix(out.Message(), "Permission denied: ") {
		t.Errorf("Message() = %q", out.Message())
	}
}

func TestAfterSaveRunsOnlyOnSavedAndNeverFailsRun(t *testing.T) {
	calls := 0
	after := func(context.Context) error {
		calls++
		return errors.New("embedding quota exceeded")
	}

	saved := &Pipeline{Site: testSite(), OutputDir: t.TempDir(), Open: (&openCounter{html: resultsHTML}).open, AfterSave: after}
	if out := saved.Run(context.Background(), "coffee"); out.State != Saved {
		t.Fatalf("State = %s (err %v), want %s", out.State, out.Err, Saved)
	}
	if calls != 1 {
		t.Errorf("AfterSave calls = %d, want 1", calls)
	}

	empty := &Pipeline{Site: testSite(), OutputDir: t.TempDir(), Open: (&openCounter{html: `<html><body></body></html>`}).open, AfterSave: after}
	if out := empty.Run(context.Background(), "coffee"); out.State != EmptyResult {
		t.Fatalf("State = %s, want %s", out.State, EmptyResult)
	}
	if calls != 1 {
		t.Errorf("AfterSave ran for an empty result")
	}
}
