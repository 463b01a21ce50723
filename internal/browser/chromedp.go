package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	cdpbrowser "github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
)

// ChromedpSession drives Chromium through the DevTools protocol with chromedp.
// XPath locators only work at page level; scoped XPath lookups return ErrUnsupported.
type ChromedpSession struct {
	tab         context.Context
	cancelTab   context.CancelFunc
	cancelAlloc context.CancelFunc
}

// OpenChromedp starts a Chromium allocator and a single tab.
func OpenChromedp(ctx context.Context, opts Options) (*ChromedpSession, error) {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.UserAgent(opts.UserAgent),
		chromedp.WindowSize(1440, 900),
	)
	// The allocator outlives ctx so Close can still shut the browser down
	// after the caller's context is cancelled.
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.WithoutCancel(ctx), allocOpts...)
	tab, cancelTab := chromedp.NewContext(allocCtx, chromedp.WithLogf(logger.Printf))

	actions := []chromedp.Action{}
	if opts.DownloadDir != "" {
		actions = append(actions, cdpbrowser.SetDownloadBehavior(cdpbrowser.SetDownloadBehaviorBehaviorAllow).
			WithDownloadPath(opts.DownloadDir))
	}
	// Running an empty task list still starts the browser.
	if err := chromedp.Run(tab, actions...); err != nil {
		cancelTab()
		cancelAlloc()
		return nil, fmt.Errorf("failed to start chromium: %w", err)
	}

	return &ChromedpSession{tab: tab, cancelTab: cancelTab, cancelAlloc: cancelAlloc}, nil
}

// bind derives an action context from the tab that is also cancelled with ctx.
func (s *ChromedpSession) bind(ctx context.Context) (context.Context, context.CancelFunc) {
	runCtx, cancel := context.WithCancel(s.tab)
	stop := context.AfterFunc(ctx, cancel)
	return runCtx, func() {
		stop()
		cancel()
	}
}

func (s *ChromedpSession) Navigate(ctx context.Context, url string) error {
	runCtx, done := s.bind(ctx)
	defer done()
	if err := chromedp.Run(runCtx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	return nil
}

func (s *ChromedpSession) WaitFor(ctx context.Context, loc Locator, timeout time.Duration) error {
	runCtx, done := s.bind(ctx)
	defer done()
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(runCtx, timeout)
		defer cancel()
	}

	var err error
	if loc.Match == "" {
		sel, by := pageQuery(loc)
		err = chromedp.Run(runCtx, chromedp.WaitReady(sel, by))
	} else {
		err = s.pollMatch(runCtx, loc)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s", ErrTimeout, loc)
	}
	return err
}

func (s *ChromedpSession) pollMatch(ctx context.Context, loc Locator) error {
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		els, err := s.findAll(ctx, loc)
		if err != nil {
			return err
		}
		if len(els) > 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *ChromedpSession) Find(ctx context.Context, loc Locator) (Element, error) {
	els, err := s.FindAll(ctx, loc)
	if err != nil {
		return nil, err
	}
	if len(els) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, loc)
	}
	return els[0], nil
}

func (s *ChromedpSession) FindAll(ctx context.Context, loc Locator) ([]Element, error) {
	runCtx, done := s.bind(ctx)
	defer done()
	return s.findAll(runCtx, loc)
}

func (s *ChromedpSession) findAll(runCtx context.Context, loc Locator) ([]Element, error) {
	sel, by := pageQuery(loc)
	if loc.XPath == "" {
		by = chromedp.ByQueryAll
	}
	var nodes []*cdp.Node
	if err := chromedp.Run(runCtx, chromedp.Nodes(sel, &nodes, by, chromedp.AtLeast(0))); err != nil {
		return nil, err
	}
	return wrapNodes(s.tab, nodes, loc)
}

func (s *ChromedpSession) SubmitText(ctx context.Context, loc Locator, text string) error {
	runCtx, done := s.bind(ctx)
	defer done()
	sel, by := pageQuery(loc)
	if err := chromedp.Run(runCtx, chromedp.SendKeys(sel, text+kb.Enter, by)); err != nil {
		return fmt.Errorf("failed to type query: %w", err)
	}
	return nil
}

func (s *ChromedpSession) ScrollToBottom(ctx context.Context, container Locator) error {
	runCtx, done := s.bind(ctx)
	defer done()
	var ok bool
	return chromedp.Run(runCtx, chromedp.Evaluate(callScript(scrollScript, container.CSS), &ok))
}

func (s *ChromedpSession) ScrollHeight(ctx context.Context, container Locator) (int, error) {
	runCtx, done := s.bind(ctx)
	defer done()
	var height int
	if err := chromedp.Run(runCtx, chromedp.Evaluate(callScript(heightScript, container.CSS), &height)); err != nil {
		return 0, err
	}
	return height, nil
}

func (s *ChromedpSession) Close() error {
	err := chromedp.Cancel(s.tab)
	s.cancelTab()
	s.cancelAlloc()
	return err
}

func pageQuery(loc Locator) (string, chromedp.QueryOption) {
	if loc.XPath != "" {
		return loc.XPath, chromedp.BySearch
	}
	return loc.CSS, chromedp.ByQuery
}

func callScript(fn, arg string) string {
	quoted, _ := json.Marshal(arg)
	return fmt.Sprintf("(%s)(%s)", fn, quoted)
}

type cdpElement struct {
	tab  context.Context
	node *cdp.Node
}

func (e *cdpElement) Find(loc Locator) (Element, error) {
	els, err := e.FindAll(loc)
	if err != nil {
		return nil, err
	}
	if len(els) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, loc)
	}
	return els[0], nil
}

func (e *cdpElement) FindAll(loc Locator) ([]Element, error) {
	if loc.XPath != "" {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, loc)
	}
	var nodes []*cdp.Node
	err := chromedp.Run(e.tab, chromedp.Nodes(loc.CSS, &nodes,
		chromedp.ByQueryAll, chromedp.FromNode(e.node), chromedp.AtLeast(0)))
	if err != nil {
		return nil, err
	}
	return wrapNodes(e.tab, nodes, loc)
}

func (e *cdpElement) Text() (string, error) {
	var text string
	err := chromedp.Run(e.tab, chromedp.Text([]cdp.NodeID{e.node.NodeID}, &text, chromedp.ByNodeID))
	return strings.TrimSpace(text), err
}

func (e *cdpElement) Attribute(name string) (string, error) {
	v, ok := e.node.Attribute(name)
	if !ok {
		return "", fmt.Errorf("%w: attribute %q", ErrNotFound, name)
	}
	return v, nil
}

func wrapNodes(tab context.Context, nodes []*cdp.Node, loc Locator) ([]Element, error) {
	match, err := loc.matcher()
	if err != nil {
		return nil, err
	}
	out := make([]Element, 0, len(nodes))
	for _, n := range nodes {
		el := &cdpElement{tab: tab, node: n}
		if match != nil {
			text, err := el.Text()
			if err != nil || !match(text) {
				continue
			}
		}
		out = append(out, el)
	}
	return out, nil
}
