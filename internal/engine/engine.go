package engine

import (
	"context"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/dgnsrekt/navtally/internal/permission"
	"github.com/dgnsrekt/navtally/internal/probe"
	"github.com/dgnsrekt/navtally/internal/push"
	"github.com/dgnsrekt/navtally/internal/snapshot"
	"github.com/dgnsrekt/navtally/internal/tabstate"
	"github.com/dgnsrekt/navtally/internal/urlclass"
)

// Prober schedules and cancels metadata probes for a tab.
type Prober interface {
	Schedule(tabID string, delay time.Duration)
	Cancel(tabID string)
}

// LiveTabs resolves tab URLs and the active tab from the platform.
type LiveTabs interface {
	TabURL(ctx context.Context, tabID string) (string, bool)
	ActiveTabID(ctx context.Context) (string, bool)
}

// Engine is the baseline/transition state machine. It owns all TabState
// mutation: platform events, UI requests, and probe integrations all funnel
// through here, serialized by a single mutex. Multi-step operations that
// suspend on a live-tab read re-enter the lock afterwards rather than trust
// state captured before the read.
type Engine struct {
	store       *tabstate.Store
	perms       *permission.Allowlist
	tabs        LiveTabs
	broker      *push.Broker
	probeDelay  time.Duration
	liveTimeout time.Duration

	mu     sync.Mutex
	prober Prober
}

func New(store *tabstate.Store, perms *permission.Allowlist, tabs LiveTabs, broker *push.Broker, probeDelay, liveTimeout time.Duration) *Engine {
	return &Engine{
		store:       store,
		perms:       perms,
		tabs:        tabs,
		broker:      broker,
		probeDelay:  probeDelay,
		liveTimeout: liveTimeout,
	}
}

// SetProber wires the probe coordinator. Set once during startup, before any
// platform event is delivered.
func (e *Engine) SetProber(p Prober) { e.prober = p }

// OnURLObserved handles one observed URL change for a tab.
func (e *Engine) OnURLObserved(tabID, rawURL string, source tabstate.Source) {
	u, err := url.Parse(rawURL)
	if err != nil || !urlclass.SupportedScheme(u.Scheme) {
		slog.Debug("url ignored, unsupported scheme", "tab_id", tabID, "url", truncateURL(rawURL))
		return
	}
	origin := urlclass.Origin(u)
	enabled := e.perms.Enabled(origin)

	e.mu.Lock()
	st := e.store.Get(tabID)

	if !enabled {
		// Disabled tracking is fully inert except for passive location
		// display: no counters, no probes.
		st.LastURL = rawURL
		st.Origin = origin
		st.HasBaseline = true
		e.mu.Unlock()
		e.broadcast(tabID)
		return
	}

	if !st.HasBaseline {
		e.mu.Unlock()
		e.rebaseline(tabID)
		return
	}

	if rawURL == st.LastURL {
		// Platform events fire redundantly for the same transition.
		e.mu.Unlock()
		return
	}

	if origin != st.Origin {
		// Origin change starts a new observation window, never counted.
		e.mu.Unlock()
		slog.Info("origin change, re-baselining", "tab_id", tabID, "from", st.Origin, "to", origin)
		e.rebaseline(tabID)
		return
	}

	prev, err := url.Parse(st.LastURL)
	if err != nil {
		// lastUrl passed the same parse on the way in; treat as a lost
		// baseline rather than guess.
		e.mu.Unlock()
		e.rebaseline(tabID)
		return
	}

	delta := urlclass.Classify(prev, u)
	st.Counters.Totals.All++
	if source == tabstate.SourceSPA {
		st.Counters.Totals.SPA++
	} else {
		st.Counters.Totals.Full++
	}
	if delta.PathChanged {
		st.Counters.Dims.Path++
	}
	if delta.QueryChanged {
		st.Counters.Dims.Query++
	}
	if delta.FragmentChanged {
		st.Counters.Dims.Fragment++
	}
	st.LastURL = rawURL
	total := st.Counters.Totals.All
	e.mu.Unlock()

	slog.Debug("transition counted", "tab_id", tabID, "source", source, "total", total, "url", truncateURL(rawURL))
	e.broadcast(tabID)
	if e.prober != nil {
		e.prober.Schedule(tabID, e.probeDelay)
	}
}

// OnLoadComplete schedules a debounced metadata probe after a page finished
// loading. Permission gating happens at dispatch.
func (e *Engine) OnLoadComplete(tabID string) {
	if e.prober != nil {
		e.prober.Schedule(tabID, e.probeDelay)
	}
}

// OnTabActivated re-baselines a focused tab when tracking is enabled for its
// current origin; otherwise it only refreshes the passive location.
func (e *Engine) OnTabActivated(tabID string) {
	ctx, cancel := context.WithTimeout(context.Background(), e.liveTimeout)
	defer cancel()

	rawURL, ok := e.tabs.TabURL(ctx, tabID)
	if !ok {
		return
	}
	u, err := url.Parse(rawURL)
	if err != nil || !urlclass.SupportedScheme(u.Scheme) {
		return
	}
	origin := urlclass.Origin(u)

	if e.perms.Enabled(origin) {
		e.rebaseline(tabID)
		return
	}

	e.mu.Lock()
	st := e.store.Get(tabID)
	st.LastURL = rawURL
	st.Origin = origin
	st.HasBaseline = true
	e.mu.Unlock()
	e.broadcast(tabID)
}

// OnTabClosed deletes the tab's state and cancels any pending probe timer.
func (e *Engine) OnTabClosed(tabID string) {
	if e.prober != nil {
		e.prober.Cancel(tabID)
	}
	e.mu.Lock()
	e.store.Remove(tabID)
	e.mu.Unlock()
	slog.Debug("tab state removed", "tab_id", tabID)
}

// IntegrateProbe folds an authenticated probe result into tab state. Counter
// accrual requires a live grant, an established baseline, and no pending
// baseline suppression; the suppression phase is consumed exactly once
// whether or not any field differed.
func (e *Engine) IntegrateProbe(tabID string, res probe.Result) {
	e.mu.Lock()
	st, ok := e.store.Lookup(tabID)
	if !ok {
		e.mu.Unlock()
		return
	}

	counting := st.HasBaseline && st.Phase == tabstate.PhaseIdle && e.perms.Enabled(st.Origin)

	changed := false
	if res.Canonical != "" && res.Canonical != st.Metadata.Canonical {
		st.Metadata.Canonical = res.Canonical
		changed = true
		if counting {
			st.Counters.IDs.Canonical++
		}
	}
	if res.OGURL != "" && res.OGURL != st.Metadata.OGURL {
		st.Metadata.OGURL = res.OGURL
		changed = true
		if counting {
			st.Counters.IDs.OGURL++
		}
	}
	if res.JSONLDID != "" && res.JSONLDID != st.Metadata.JSONLDID {
		st.Metadata.JSONLDID = res.JSONLDID
		changed = true
		if counting {
			st.Counters.IDs.JSONLDID++
		}
	}

	if st.Phase == tabstate.PhaseAwaitingBaselineProbe {
		st.Phase = tabstate.PhaseIdle
	}
	e.mu.Unlock()

	if changed {
		e.broadcast(tabID)
	}
}

// rebaseline establishes a fresh baseline from the tab's live URL. The live
// read is a suspension point: state is re-fetched under the lock afterwards,
// since interleaved events may have mutated it. An absent or unsupported
// live URL fully clears the tab and broadcasts the no-data snapshot.
func (e *Engine) rebaseline(tabID string) {
	ctx, cancel := context.WithTimeout(context.Background(), e.liveTimeout)
	defer cancel()

	rawURL, ok := e.tabs.TabURL(ctx, tabID)
	var u *url.URL
	if ok {
		var err error
		if u, err = url.Parse(rawURL); err != nil || !urlclass.SupportedScheme(u.Scheme) {
			u = nil
		}
	}

	e.mu.Lock()
	st := e.store.Get(tabID)
	if u == nil {
		st.Clear()
		e.mu.Unlock()
		slog.Debug("baseline cleared, no usable live url", "tab_id", tabID)
		e.broadcast(tabID)
		return
	}

	st.ResetCounters()
	st.LastURL = rawURL
	st.Origin = urlclass.Origin(u)
	st.HasBaseline = true
	st.Phase = tabstate.PhaseAwaitingBaselineProbe
	e.mu.Unlock()

	slog.Info("baseline established", "tab_id", tabID, "url", truncateURL(rawURL))
	e.broadcast(tabID)
	if e.prober != nil {
		// Immediate probe so the UI gets baseline metadata without a
		// visible delay; its results are suppressed from counting.
		e.prober.Schedule(tabID, 0)
	}
}

// broadcast assembles the tab's snapshot and pushes it to all listeners.
// Delivery failures are the listeners' problem; nothing surfaces here.
func (e *Engine) broadcast(tabID string) {
	e.broker.Publish(push.Event{Type: push.TypeStateChange, Data: e.assemble(tabID)})
}

func (e *Engine) assemble(tabID string) snapshot.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.store.Lookup(tabID)
	if !ok {
		return snapshot.Assemble(tabID, nil, false)
	}
	copied := *st
	return snapshot.Assemble(tabID, &copied, e.perms.Enabled(copied.Origin))
}

func truncateURL(u string) string {
	if len(u) > 120 {
		return u[:120] + "..."
	}
	return u
}
