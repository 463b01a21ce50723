package browser

import (
	"context"
	"errors"
	"testing"
)

const snapshotHTML = `
<html><body>
  <input id="searchboxinput" />
  <div role="feed">
    <div class="card">
      <div class="name">Blue Cafe</div>
      <span class="rating" aria-label="4.6 stars"></span>
      <div class="info"><span><span>Cafe</span></span><span>12 Main St, Springfield</span></div>
    </div>
    <div class="card">
      <div class="name">Red Diner</div>
      <div class="info"><span><span>Diner</span></span><span>No address</span></div>
    </div>
  </div>
</body></html>`

func newTestSnapshot(t *testing.T) *Snapshot {
	t.Helper()
	s, err := NewSnapshotString(snapshotHTML)
	if err != nil {
		t.Fatalf("NewSnapshotString() error = %v", err)
	}
	return s
}

func TestSnapshotFindAllAndScopedFind(t *testing.T) {
	s := newTestSnapshot(t)
	ctx := context.Background()

	cards, err := s.FindAll(ctx, CSSLocator("div.card"))
	if err != nil {
		t.Fatalf("FindAll() error = %v", err)
	}
	if len(cards) != 2 {
		t.Fatalf("FindAll() returned %d cards, want 2", len(cards))
	}

	name, err := cards[1].Find(CSSLocator("div.name"))
	if err != nil {
		t.Fatalf("Find() error = %v", err)
	}
	if got, _ := name.Text(); got != "Red Diner" {
		t.Errorf("Text() = %q, want %q", got, "Red Diner")
	}

	if _, err := cards[1].Find(CSSLocator("span.rating")); !errors.Is(err, ErrNotFound) {
		t.Errorf("Find(missing) error = %v, want ErrNotFound", err)
	}
}

func TestSnapshotMatchLocator(t *testing.T) {
	s := newTestSnapshot(t)
	cards, _ := s.FindAll(context.Background(), CSSLocator("div.card"))

	loc := Locator{CSS: "span:not(:has(span))", Match: ","}
	addr, err := cards[0].Find(loc)
	if err != nil {
		t.Fatalf("Find() error = %v", err)
	}
	if got, _ := addr.Text(); got != "12 Main St, Springfield" {
		t.Errorf("address = %q", got)
	}
	if _, err := cards[1].Find(loc); !errors.Is(err, ErrNotFound) {
		t.Errorf("Find() on card without comma error = %v, want ErrNotFound", err)
	}
}

func TestMatchUsesGoRegexpSyntax(t *testing.T) {
	s := newTestSnapshot(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		match string
		want  []string
	}{
		{"case-insensitive flag", "(?i)main st", []string{"12 Main St, Springfield"}},
		{"unicode class", `^\p{Lu}\p{Ll}+$`, []string{"Cafe", "Diner"}},
		{"anchored trimmed text", "^No address$", []string{"No address"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			els, err := s.FindAll(ctx, Locator{CSS: "span:not(:has(span))", Match: tt.match})
			if err != nil {
				t.Fatalf("FindAll() error = %v", err)
			}
			var got []string
			for _, el := range els {
				text, _ := el.Text()
				got = append(got, text)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("FindAll(%q) = %q, want %q", tt.match, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("FindAll(%q)[%d] = %q, want %q", tt.match, i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestInvalidMatchPattern(t *testing.T) {
	s := newTestSnapshot(t)
	loc := Locator{CSS: "span", Match: "(unclosed"}

	if _, err := s.FindAll(context.Background(), loc); err == nil {
		t.Error("FindAll() error = nil, want invalid pattern error")
	}
	if err := s.WaitFor(context.Background(), loc, 0); err == nil || errors.Is(err, ErrTimeout) {
		t.Errorf("WaitFor() error = %v, want invalid pattern error", err)
	}
}

func TestSnapshotAttribute(t *testing.T) {
	s := newTestSnapshot(t)
	el, err := s.Find(context.Background(), CSSLocator("span.rating"))
	if err != nil {
		t.Fatalf("Find() error = %v", err)
	}
	if got, err := el.Attribute("aria-label"); err != nil || got != "4.6 stars" {
		t.Errorf("Attribute(aria-label) = %q, %v", got, err)
	}
	if _, err := el.Attribute("title"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Attribute(title) error = %v, want ErrNotFound", err)
	}
}

func TestSnapshotWaitAndSubmit(t *testing.T) {
	s := newTestSnapshot(t)
	ctx := context.Background()

	if err := s.WaitFor(ctx, CSSLocator("#searchboxinput"), 0); err != nil {
		t.Errorf("WaitFor(present) error = %v", err)
	}
	if err := s.WaitFor(ctx, CSSLocator("#missing"), 0); !errors.Is(err, ErrTimeout) {
		t.Errorf("WaitFor(missing) error = %v, want ErrTimeout", err)
	}
	if err := s.SubmitText(ctx, CSSLocator("#searchboxinput"), "coffee"); err != nil {
		t.Fatalf("SubmitText() error = %v", err)
	}
	if len(s.Submitted) != 1 || s.Submitted[0] != "coffee" {
		t.Errorf("Submitted = %v", s.Submitted)
	}
}

func TestSnapshotScrollHeightIsStable(t *testing.T) {
	s := newTestSnapshot(t)
	ctx := context.Background()
	feed := CSSLocator(`div[role="feed"]`)

	before, err := s.ScrollHeight(ctx, feed)
	if err != nil {
		t.Fatalf("ScrollHeight() error = %v", err)
	}
	if err := s.ScrollToBottom(ctx, feed); err != nil {
		t.Fatalf("ScrollToBottom() error = %v", err)
	}
	after, _ := s.ScrollHeight(ctx, feed)
	if before != after || before == 0 {
		t.Errorf("ScrollHeight before=%d after=%d, want equal and non-zero", before, after)
	}
}

func TestSnapshotXPathUnsupported(t *testing.T) {
	s := newTestSnapshot(t)
	_, err := s.FindAll(context.Background(), Locator{XPath: "//div"})
	if !errors.Is(err, ErrUnsupported) {
		t.Errorf("FindAll(xpath) error = %v, want ErrUnsupported", err)
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	if _, err := Open(context.Background(), Options{Driver: "lynx"}); err == nil {
		t.Error("Open(lynx) error = nil, want error")
	}
}
