package browser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Snapshot is an offline Session over saved HTML. Navigation, typing and
// scrolling are recorded but do not change the document, so the scroll height
// never moves.
type Snapshot struct {
	doc *goquery.Document

	Visited   []string
	Submitted []string
	Scrolls   int
	Closed    bool
}

// NewSnapshot parses a saved results page.
func NewSnapshot(r io.Reader) (*Snapshot, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse snapshot: %w", err)
	}
	return &Snapshot{doc: doc}, nil
}

// NewSnapshotString is NewSnapshot for inline HTML.
func NewSnapshotString(html string) (*Snapshot, error) {
	return NewSnapshot(strings.NewReader(html))
}

func (s *Snapshot) Navigate(_ context.Context, url string) error {
	s.Visited = append(s.Visited, url)
	return nil
}

func (s *Snapshot) WaitFor(ctx context.Context, loc Locator, _ time.Duration) error {
	_, err := s.Find(ctx, loc)
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrTimeout, loc)
	}
	return err
}

func (s *Snapshot) Find(_ context.Context, loc Locator) (Element, error) {
	return (&snapshotElement{sel: s.doc.Selection}).Find(loc)
}

func (s *Snapshot) FindAll(_ context.Context, loc Locator) ([]Element, error) {
	return (&snapshotElement{sel: s.doc.Selection}).FindAll(loc)
}

func (s *Snapshot) SubmitText(ctx context.Context, loc Locator, text string) error {
	if _, err := s.Find(ctx, loc); err != nil {
		return err
	}
	s.Submitted = append(s.Submitted, text)
	return nil
}

func (s *Snapshot) ScrollToBottom(_ context.Context, _ Locator) error {
	s.Scrolls++
	return nil
}

// ScrollHeight reports the number of nodes under the container, which is
// constant for a static document.
func (s *Snapshot) ScrollHeight(_ context.Context, container Locator) (int, error) {
	root := s.doc.Selection
	if container.CSS != "" {
		if c := s.doc.Find(container.CSS); c.Length() > 0 {
			root = c.First()
		}
	}
	return root.Find("*").Length(), nil
}

func (s *Snapshot) Close() error {
	s.Closed = true
	return nil
}

type snapshotElement struct {
	sel *goquery.Selection
}

func (e *snapshotElement) Find(loc Locator) (Element, error) {
	els, err := e.FindAll(loc)
	if err != nil {
		return nil, err
	}
	if len(els) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, loc)
	}
	return els[0], nil
}

func (e *snapshotElement) FindAll(loc Locator) ([]Element, error) {
	if loc.CSS == "" {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, loc)
	}
	match, err := loc.matcher()
	if err != nil {
		return nil, err
	}

	var out []Element
	e.sel.Find(loc.CSS).Each(func(_ int, s *goquery.Selection) {
		if match != nil && !match(strings.TrimSpace(s.Text())) {
			return
		}
		out = append(out, &snapshotElement{sel: s})
	})
	return out, nil
}

func (e *snapshotElement) Text() (string, error) {
	return strings.TrimSpace(e.sel.Text()), nil
}

func (e *snapshotElement) Attribute(name string) (string, error) {
	v, ok := e.sel.Attr(name)
	if !ok {
		return "", fmt.Errorf("%w: attribute %q", ErrNotFound, name)
	}
	return v, nil
}
