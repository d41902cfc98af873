package cdp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"github.com/dgnsrekt/navtally/internal/config"
	"github.com/dgnsrekt/navtally/internal/tabstate"
)

// Events is the engine-side interface the platform adapter feeds. Handlers
// must not panic; they are invoked from chromedp's event goroutines.
type Events interface {
	OnURLObserved(tabID, url string, source tabstate.Source)
	OnLoadComplete(tabID string)
	OnTabClosed(tabID string)
}

// Client attaches to browser page targets over CDP and fans navigation and
// lifecycle events into the engine.
type Client struct {
	cfg    *config.Config
	events Events

	allocCtx    context.Context
	allocCancel context.CancelFunc
	browserCtx  context.Context
	browserStop context.CancelFunc

	tabsMu sync.RWMutex
	tabs   map[target.ID]*tabContext

	done chan struct{}
}

type tabContext struct {
	id     target.ID
	ctx    context.Context
	cancel context.CancelFunc
}

func NewClient(cfg *config.Config, events Events) *Client {
	return &Client{
		cfg:    cfg,
		events: events,
		tabs:   make(map[target.ID]*tabContext),
		done:   make(chan struct{}),
	}
}

// SetEvents wires the engine after construction. The engine and the adapter
// reference each other, so one side is wired late; call before Connect.
func (c *Client) SetEvents(events Events) { c.events = events }

// Connect dials the browser, attaches to all matching page targets, and
// starts the resync loop that tracks tabs opening and closing afterwards.
func (c *Client) Connect(ctx context.Context) error {
	_ = ctx
	cdpURL := c.cfg.CDPURL()
	slog.Info("connecting to browser", "url", cdpURL)

	c.allocCtx, c.allocCancel = chromedp.NewRemoteAllocator(context.Background(), cdpURL)
	c.browserCtx, c.browserStop = chromedp.NewContext(c.allocCtx)

	if err := chromedp.Run(c.browserCtx); err != nil {
		c.allocCancel()
		return fmt.Errorf("connect to browser: %w", err)
	}

	if err := c.syncTabs(); err != nil {
		c.allocCancel()
		return err
	}

	go c.resyncLoop()

	slog.Info("attached to browser", "tabs", c.TabCount(), "tab_url_filter", c.cfg.TabURLFilter)
	return nil
}

// syncTabs reconciles the attached-tab set against the browser's live page
// targets: new matching tabs are attached, vanished ones reported closed.
func (c *Client) syncTabs() error {
	targets, err := chromedp.Targets(c.browserCtx)
	if err != nil {
		return fmt.Errorf("enumerate targets: %w", err)
	}

	live := make(map[target.ID]bool, len(targets))
	for _, t := range targets {
		if t.Type != "page" || !c.matchesTabURL(t.URL) {
			continue
		}
		live[t.TargetID] = true

		c.tabsMu.RLock()
		_, attached := c.tabs[t.TargetID]
		c.tabsMu.RUnlock()
		if attached {
			continue
		}
		if err := c.attachToTab(t.TargetID, t.URL); err != nil {
			slog.Warn("tab attach failed", "target_id", t.TargetID, "url", truncateURL(t.URL), "error", err)
		}
	}

	var closed []target.ID
	c.tabsMu.Lock()
	for id, tab := range c.tabs {
		if !live[id] {
			tab.cancel()
			delete(c.tabs, id)
			closed = append(closed, id)
		}
	}
	c.tabsMu.Unlock()

	for _, id := range closed {
		slog.Info("tab closed", "target_id", id)
		c.events.OnTabClosed(string(id))
	}
	return nil
}

func (c *Client) resyncLoop() {
	ticker := time.NewTicker(c.cfg.ResyncInterval())
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.syncTabs(); err != nil {
				slog.Debug("tab resync failed", "error", err)
			}
		}
	}
}

func (c *Client) attachToTab(targetID target.ID, url string) error {
	tabCtx, tabCancel := chromedp.NewContext(c.allocCtx, chromedp.WithTargetID(targetID))
	tab := &tabContext{id: targetID, ctx: tabCtx, cancel: tabCancel}

	c.tabsMu.Lock()
	c.tabs[targetID] = tab
	c.tabsMu.Unlock()

	if err := chromedp.Run(tabCtx, page.Enable()); err != nil {
		tabCancel()
		c.tabsMu.Lock()
		delete(c.tabs, targetID)
		c.tabsMu.Unlock()
		return fmt.Errorf("enable page domain: %w", err)
	}

	slog.Info("attached to tab", "target_id", targetID, "url", truncateURL(url))
	chromedp.ListenTarget(tabCtx, c.tabEventHandler(string(targetID)))

	// Seed the engine with the tab's starting location.
	c.events.OnURLObserved(string(targetID), url, tabstate.SourceFull)
	return nil
}

func (c *Client) tabEventHandler(tabID string) func(ev interface{}) {
	return func(ev interface{}) {
		switch e := ev.(type) {
		case *page.EventFrameNavigated:
			// Sub-frame navigations never move the address bar.
			if e.Frame.ParentID == "" {
				c.events.OnURLObserved(tabID, e.Frame.URL, tabstate.SourceFull)
			}
		case *page.EventNavigatedWithinDocument:
			c.events.OnURLObserved(tabID, e.URL, tabstate.SourceSPA)
		case *page.EventLoadEventFired:
			c.events.OnLoadComplete(tabID)
		}
	}
}

// TabURL returns a tab's live URL straight from the browser's target list,
// not from any cached event payload.
func (c *Client) TabURL(ctx context.Context, tabID string) (string, bool) {
	_ = ctx
	targets, err := chromedp.Targets(c.browserCtx)
	if err != nil {
		slog.Debug("live tab lookup failed", "tab_id", tabID, "error", err)
		return "", false
	}
	for _, t := range targets {
		if string(t.TargetID) == tabID {
			return t.URL, true
		}
	}
	return "", false
}

// ActiveTabID returns the most recently focused page target. The DevTools
// target list is MRU-ordered, so the first page entry is the active tab.
func (c *Client) ActiveTabID(ctx context.Context) (string, bool) {
	_ = ctx
	targets, err := chromedp.Targets(c.browserCtx)
	if err != nil {
		slog.Debug("active tab lookup failed", "error", err)
		return "", false
	}
	for _, t := range targets {
		if t.Type == "page" && c.matchesTabURL(t.URL) {
			return string(t.TargetID), true
		}
	}
	return "", false
}

// EvaluateInTab runs a JS expression in the tab's session and returns the
// raw JSON result.
func (c *Client) EvaluateInTab(ctx context.Context, tabID, js string) (json.RawMessage, error) {
	c.tabsMu.RLock()
	tab, ok := c.tabs[target.ID(tabID)]
	c.tabsMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("tab not attached: %s", tabID)
	}

	evalCtx, cancel := context.WithTimeout(tab.ctx, c.cfg.EvalTimeout())
	defer cancel()
	if deadline, ok := ctx.Deadline(); ok {
		var dcancel context.CancelFunc
		evalCtx, dcancel = context.WithDeadline(evalCtx, deadline)
		defer dcancel()
	}

	var raw json.RawMessage
	if err := chromedp.Run(evalCtx, chromedp.Evaluate(js, &raw)); err != nil {
		return nil, fmt.Errorf("evaluate in tab %s: %w", tabID, err)
	}
	return raw, nil
}

func (c *Client) TabCount() int {
	c.tabsMu.RLock()
	defer c.tabsMu.RUnlock()
	return len(c.tabs)
}

func (c *Client) Close() error {
	close(c.done)

	c.tabsMu.Lock()
	for id, tab := range c.tabs {
		tab.cancel()
		delete(c.tabs, id)
	}
	c.tabsMu.Unlock()

	if c.browserStop != nil {
		c.browserStop()
	}
	if c.allocCancel != nil {
		c.allocCancel()
	}
	slog.Info("cdp client closed")
	return nil
}

func (c *Client) matchesTabURL(url string) bool {
	if c.cfg.TabURLFilter == "" {
		return true
	}
	return strings.Contains(strings.ToLower(url), strings.ToLower(c.cfg.TabURLFilter))
}

func truncateURL(url string) string {
	if len(url) > 120 {
		return url[:120] + "..."
	}
	return url
}
