package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// RodSession drives Chromium through go-rod with a stealth page.
type RodSession struct {
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
}

// OpenRod launches Chromium, allows downloads into opts.DownloadDir without
// prompting and opens a stealth page.
func OpenRod(ctx context.Context, opts Options) (*RodSession, error) {
	l := launcher.New().Headless(opts.Headless).NoSandbox(true)
	u, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch chromium: %w", err)
	}

	b := rod.New().ControlURL(u)
	if err := b.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("failed to connect to chromium: %w", err)
	}

	if opts.DownloadDir != "" {
		err = proto.BrowserSetDownloadBehavior{
			Behavior:     proto.BrowserSetDownloadBehaviorBehaviorAllow,
			DownloadPath: opts.DownloadDir,
		}.Call(b.Context(ctx))
		if err != nil {
			logger.Printf("Could not set download directory (ignoring): %v", err)
		}
	}

	page, err := stealth.Page(b)
	if err != nil {
		_ = b.Close()
		l.Kill()
		return nil, fmt.Errorf("failed to open page: %w", err)
	}
	if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: opts.UserAgent}); err != nil {
		logger.Printf("Could not override user agent (ignoring): %v", err)
	}

	return &RodSession{launcher: l, browser: b, page: page}, nil
}

func (s *RodSession) Navigate(ctx context.Context, url string) error {
	p := s.page.Context(ctx)
	if err := p.Navigate(url); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	return p.WaitLoad()
}

func (s *RodSession) WaitFor(ctx context.Context, loc Locator, timeout time.Duration) error {
	p := s.page.Context(ctx)
	if timeout > 0 {
		p = p.Timeout(timeout)
		defer p.CancelTimeout()
	}
	var err error
	switch {
	case loc.Match != "":
		err = s.pollMatch(p, loc)
	case loc.XPath != "":
		_, err = p.ElementX(loc.XPath)
	default:
		_, err = p.Element(loc.CSS)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s", ErrTimeout, loc)
	}
	return err
}

// pollMatch waits until loc's structural part has an element whose text
// passes the Go pattern in loc.Match.
func (s *RodSession) pollMatch(p *rod.Page, loc Locator) error {
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		els, err := rodElements(p, loc)
		if err != nil {
			return err
		}
		if len(els) > 0 {
			return nil
		}
		select {
		case <-p.GetContext().Done():
			return p.GetContext().Err()
		case <-ticker.C:
		}
	}
}

func (s *RodSession) Find(ctx context.Context, loc Locator) (Element, error) {
	p := s.page.Context(ctx)
	if loc.Match != "" {
		return first(rodElements(p, loc))
	}
	var (
		has bool
		el  *rod.Element
		err error
	)
	if loc.XPath != "" {
		has, el, err = p.HasX(loc.XPath)
	} else {
		has, el, err = p.Has(loc.CSS)
	}
	if err != nil {
		return nil, err
	}
	if !has {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, loc)
	}
	return &rodElement{el: el}, nil
}

func (s *RodSession) FindAll(ctx context.Context, loc Locator) ([]Element, error) {
	return rodElements(s.page.Context(ctx), loc)
}

func (s *RodSession) SubmitText(ctx context.Context, loc Locator, text string) error {
	found, err := s.Find(ctx, loc)
	if err != nil {
		return err
	}
	el := found.(*rodElement).el.Context(ctx)
	if err := el.Input(text); err != nil {
		return fmt.Errorf("failed to type query: %w", err)
	}
	return el.Type(input.Enter)
}

func (s *RodSession) ScrollToBottom(ctx context.Context, container Locator) error {
	_, err := s.page.Context(ctx).Eval(scrollScript, container.CSS)
	return err
}

func (s *RodSession) ScrollHeight(ctx context.Context, container Locator) (int, error) {
	res, err := s.page.Context(ctx).Eval(heightScript, container.CSS)
	if err != nil {
		return 0, err
	}
	return res.Value.Int(), nil
}

// Close tears down the page, the browser and the launched process. Errors from
// the individual steps are logged; the process is always killed.
func (s *RodSession) Close() error {
	err := rod.Try(func() {
		s.page.MustClose()
	})
	if err != nil {
		logger.Printf("Page close failed (ignoring): %v", err)
	}
	err = s.browser.Close()
	s.launcher.Kill()
	s.launcher.Cleanup()
	return err
}

type rodElement struct {
	el *rod.Element
}

func (e *rodElement) Find(loc Locator) (Element, error) {
	if loc.Match != "" {
		return first(e.FindAll(loc))
	}
	var (
		has bool
		el  *rod.Element
		err error
	)
	if loc.XPath != "" {
		has, el, err = e.el.HasX(loc.XPath)
	} else {
		has, el, err = e.el.Has(loc.CSS)
	}
	if err != nil {
		return nil, err
	}
	if !has {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, loc)
	}
	return &rodElement{el: el}, nil
}

func (e *rodElement) FindAll(loc Locator) ([]Element, error) {
	var (
		els rod.Elements
		err error
	)
	if loc.XPath != "" {
		els, err = e.el.ElementsX(loc.XPath)
	} else {
		els, err = e.el.Elements(loc.CSS)
	}
	if err != nil {
		return nil, err
	}
	return wrapRod(els, loc)
}

func (e *rodElement) Text() (string, error) {
	text, err := e.el.Text()
	return strings.TrimSpace(text), err
}

func (e *rodElement) Attribute(name string) (string, error) {
	v, err := e.el.Attribute(name)
	if err != nil {
		return "", err
	}
	if v == nil {
		return "", fmt.Errorf("%w: attribute %q", ErrNotFound, name)
	}
	return *v, nil
}

// rodElements lists the page elements for loc, text-filtered by loc.Match.
func rodElements(p *rod.Page, loc Locator) ([]Element, error) {
	var (
		els rod.Elements
		err error
	)
	if loc.XPath != "" {
		els, err = p.ElementsX(loc.XPath)
	} else {
		els, err = p.Elements(loc.CSS)
	}
	if err != nil {
		return nil, err
	}
	return wrapRod(els, loc)
}

func wrapRod(els rod.Elements, loc Locator) ([]Element, error) {
	match, err := loc.matcher()
	if err != nil {
		return nil, err
	}
	out := make([]Element, 0, len(els))
	for _, el := range els {
		e := &rodElement{el: el}
		if match != nil {
			text, err := e.Text()
			if err != nil || !match(text) {
				continue
			}
		}
		out = append(out, e)
	}
	return out, nil
}
