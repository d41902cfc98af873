package probe

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/dgnsrekt/navtally/internal/debounce"
	"github.com/dgnsrekt/navtally/internal/permission"
	"github.com/dgnsrekt/navtally/internal/urlclass"
	"github.com/google/uuid"
)

// Evaluator runs a JS expression inside a tab's session and returns the raw
// JSON result.
type Evaluator interface {
	EvaluateInTab(ctx context.Context, tabID, js string) (json.RawMessage, error)
}

// LiveTabs resolves a tab's live URL from the platform.
type LiveTabs interface {
	TabURL(ctx context.Context, tabID string) (string, bool)
}

// Result is the triple of page identifiers returned by the extractor.
type Result struct {
	Canonical string
	OGURL     string
	JSONLDID  string
}

// Sink receives authenticated probe results for integration.
type Sink interface {
	IntegrateProbe(tabID string, res Result)
}

type session struct {
	nonce  string
	origin string
}

// Coordinator debounces and dispatches metadata probes. Each dispatch is a
// fresh injection: a new nonce is issued, embedded into the extractor, and
// must be echoed by the result. A result carrying a stale nonce, or arriving
// after the tab's origin moved on, is dropped.
type Coordinator struct {
	eval        Evaluator
	tabs        LiveTabs
	oracle      permission.Oracle
	sink        Sink
	deb         *debounce.Debouncer
	evalTimeout time.Duration

	mu       sync.Mutex
	sessions map[string]session
}

func NewCoordinator(eval Evaluator, tabs LiveTabs, oracle permission.Oracle, sink Sink, evalTimeout time.Duration) *Coordinator {
	return &Coordinator{
		eval:        eval,
		tabs:        tabs,
		oracle:      oracle,
		sink:        sink,
		deb:         debounce.New(),
		evalTimeout: evalTimeout,
		sessions:    make(map[string]session),
	}
}

// Schedule coalesces repeated probe requests for a tab into one dispatch
// after delay. A new request resets the pending timer.
func (c *Coordinator) Schedule(tabID string, delay time.Duration) {
	c.deb.Schedule(tabID, delay, func() { c.dispatch(tabID) })
}

// Cancel drops any pending dispatch and forgets the tab's nonce session.
// Called when the tab closes.
func (c *Coordinator) Cancel(tabID string) {
	c.deb.Cancel(tabID)
	c.mu.Lock()
	delete(c.sessions, tabID)
	c.mu.Unlock()
}

// Close cancels every pending dispatch.
func (c *Coordinator) Close() {
	c.deb.CancelAll()
}

type resultEnvelope struct {
	Canonical string `json:"canonical"`
	OGURL     string `json:"og_url"`
	JSONLDID  string `json:"json_ld_id"`
	Nonce     string `json:"nonce"`
}

func (c *Coordinator) dispatch(tabID string) {
	ctx, cancel := context.WithTimeout(context.Background(), c.evalTimeout)
	defer cancel()

	origin, ok := c.probeOrigin(ctx, tabID)
	if !ok {
		return
	}
	if !c.oracle.Enabled(origin) {
		slog.Debug("probe skipped, tracking disabled", "tab_id", tabID, "origin", origin)
		return
	}

	nonce := uuid.NewString()
	c.mu.Lock()
	c.sessions[tabID] = session{nonce: nonce, origin: origin}
	c.mu.Unlock()

	raw, err := c.eval.EvaluateInTab(ctx, tabID, buildExtractorJS(nonce))
	if err != nil {
		slog.Debug("probe eval failed", "tab_id", tabID, "error", err)
		return
	}

	var env resultEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		slog.Debug("probe result unparseable", "tab_id", tabID, "error", err)
		return
	}

	c.Deliver(tabID, env.Canonical, env.OGURL, env.JSONLDID, env.Nonce)
}

// Deliver authenticates an inbound probe result and hands it to the sink.
// Acceptance requires an injection record for the tab, the last-issued nonce,
// the dispatch-time origin still live, and the grant still present. Any
// mismatch drops the result with no response.
func (c *Coordinator) Deliver(tabID, canonical, ogURL, jsonLDID, nonce string) {
	c.mu.Lock()
	sess, ok := c.sessions[tabID]
	c.mu.Unlock()
	if !ok || nonce == "" || nonce != sess.nonce {
		slog.Debug("probe result dropped, nonce mismatch", "tab_id", tabID)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.evalTimeout)
	defer cancel()
	if cur, ok := c.probeOrigin(ctx, tabID); !ok || cur != sess.origin {
		slog.Debug("probe result dropped, origin moved on", "tab_id", tabID, "dispatch_origin", sess.origin)
		return
	}
	if !c.oracle.Enabled(sess.origin) {
		slog.Debug("probe result dropped, grant revoked", "tab_id", tabID, "origin", sess.origin)
		return
	}

	c.sink.IntegrateProbe(tabID, Result{Canonical: canonical, OGURL: ogURL, JSONLDID: jsonLDID})
}

// probeOrigin resolves the tab's live origin when it is probe-eligible.
func (c *Coordinator) probeOrigin(ctx context.Context, tabID string) (string, bool) {
	raw, ok := c.tabs.TabURL(ctx, tabID)
	if !ok {
		return "", false
	}
	u, err := url.Parse(raw)
	if err != nil || !urlclass.ProbeScheme(u.Scheme) {
		return "", false
	}
	return urlclass.Origin(u), true
}
