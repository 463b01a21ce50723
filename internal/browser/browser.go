package browser

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"regexp"
	"strings"
	"time"
)

var logger = log.New(os.Stdout, "BROWSER: ", log.LstdFlags|log.Lshortfile)

var (
	// ErrNotFound is returned when a locator matches nothing.
	ErrNotFound = errors.New("element not found")
	// ErrTimeout is returned when a bounded wait expires.
	ErrTimeout = errors.New("timed out waiting for element")
	// ErrUnsupported is returned when a driver cannot evaluate a locator.
	ErrUnsupported = errors.New("locator not supported by driver")
)

// Locator identifies elements either by CSS selector or by XPath. When Match is set
// only elements whose text matches the regular expression are returned.
type Locator struct {
	CSS   string `yaml:"css"`
	XPath string `yaml:"xpath"`
	Match string `yaml:"match"`
}

// CSSLocator is shorthand for a plain CSS locator.
func CSSLocator(sel string) Locator {
	return Locator{CSS: sel}
}

// matcher compiles Match as a Go regular expression. Every driver filters
// element text with it, so a pattern means the same thing on each driver.
// It returns nil when Match is empty.
func (l Locator) matcher() (func(string) bool, error) {
	if l.Match == "" {
		return nil, nil
	}
	re, err := regexp.Compile(l.Match)
	if err != nil {
		return nil, fmt.Errorf("invalid match pattern %q: %w", l.Match, err)
	}
	return re.MatchString, nil
}

// first returns the first element of a FindAll result or ErrNotFound.
func first(els []Element, err error) (Element, error) {
	if err != nil {
		return nil, err
	}
	if len(els) == 0 {
		return nil, ErrNotFound
	}
	return els[0], nil
}

func (l Locator) IsZero() bool {
	return l.CSS == "" && l.XPath == ""
}

func (l Locator) String() string {
	var s string
	if l.XPath != "" {
		s = "xpath:" + l.XPath
	} else {
		s = l.CSS
	}
	if l.Match != "" {
		s += fmt.Sprintf(" =~ /%s/", l.Match)
	}
	return s
}

// Element is a node in the rendered page.
type Element interface {
	Find(loc Locator) (Element, error)
	FindAll(loc Locator) ([]Element, error)
	Text() (string, error)
	Attribute(name string) (string, error)
}

// Session is a controllable browser tab. It is owned by a single goroutine.
type Session interface {
	Navigate(ctx context.Context, url string) error
	// WaitFor blocks until loc is present or timeout elapses.
	WaitFor(ctx context.Context, loc Locator, timeout time.Duration) error
	Find(ctx context.Context, loc Locator) (Element, error)
	FindAll(ctx context.Context, loc Locator) ([]Element, error)
	// SubmitText types text into the element at loc and presses Enter.
	SubmitText(ctx context.Context, loc Locator, text string) error
	// ScrollToBottom scrolls the container (or the document when the container
	// is missing) to its end.
	ScrollToBottom(ctx context.Context, container Locator) error
	ScrollHeight(ctx context.Context, container Locator) (int, error)
	Close() error
}

// Options configures a new Session.
type Options struct {
	Driver      string
	Headless    bool
	DownloadDir string
	UserAgent   string
}

const defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36"

// Open launches a browser with the configured driver.
func Open(ctx context.Context, opts Options) (Session, error) {
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	switch strings.ToLower(opts.Driver) {
	case "", "rod":
		s, err := OpenRod(ctx, opts)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "chromedp":
		s, err := OpenChromedp(ctx, opts)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown browser driver %q", opts.Driver)
	}
}

// scrollScript and heightScript take the container selector as their only
// argument and fall back to the document scroller.
const scrollScript = `(sel) => {
  const feed = (sel && document.querySelector(sel)) || document.scrollingElement || document.body;
  feed.scrollTo(0, feed.scrollHeight);
  return true;
}`

const heightScript = `(sel) => {
  const feed = (sel && document.querySelector(sel)) || document.scrollingElement || document.body;
  return feed.scrollHeight;
}`
