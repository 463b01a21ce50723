package embedder

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"golang.org/x/time/rate"

	"mspro-labs/map-extractor/internal/ai"
	"mspro-labs/map-extractor/internal/db"
	"mspro-labs/map-extractor/internal/models"
)

// keywordEmbedder fails for any text containing "Broken".
type keywordEmbedder struct{ calls int }

func (k *keywordEmbedder) EmbedString(_ context.Context, text string) ([]byte, []float32, error) {
	k.calls++
	if strings.Contains(text, "Broken") {
		return nil, nil, errors.New("quota exceeded")
	}
	v := []float32{1, 0}
	blob, err := ai.FloatsToBytes(v)
	return blob, v, err
}

func TestRunEmbedsMissingVectors(t *testing.T) {
	database, err := db.Connect(":memory:")
	if err != nil {
		t.Fatalf("Failed to open in-memory db: %v", err)
	}
	defer database.Close()

	now := time.Now()
	run := &models.Run{Query: "q", State: "saved", StartedAt: now, FinishedAt: now}
	listings := []models.Listing{{Name: "Blue Cafe"}, {Name: "Broken Sign Bar"}}
	if _, err := db.SaveRun(database, run, listings); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}

	fake := &keywordEmbedder{}
	limiter := rate.NewLimiter(rate.Inf, 1)

	count, err := Run(context.Background(), database, fake, limiter)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if count != 1 || fake.calls != 2 {
		t.Errorf("count=%d calls=%d, want 1 and 2", count, fake.calls)
	}

	// The failed listing is retried on the next pass.
	count, _ = Run(context.Background(), database, fake, limiter)
	if count != 0 || fake.calls != 3 {
		t.Errorf("second pass count=%d calls=%d, want 0 and 3", count, fake.calls)
	}
}

func TestTruncateKeepsRunesWhole(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"Blue Cafe", 40, "Blue Cafe"},
		{"Place: Blue Cafe", 5, "Place..."},
		{"Café Zürich", 4, "Café..."},
		{"Bäckerei Müller Straße", 15, "Bäckerei Müller..."},
	}
	for _, tt := range tests {
		got := truncate(tt.in, tt.n)
		if got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
		if !utf8.ValidString(got) {
			t.Errorf("truncate(%q, %d) = %q is not valid UTF-8", tt.in, tt.n, got)
		}
	}
}
