package engine

import (
	"context"
	"net/url"
	"sort"
	"strings"

	"github.com/dgnsrekt/navtally/internal/push"
	"github.com/dgnsrekt/navtally/internal/snapshot"
	"github.com/dgnsrekt/navtally/internal/urlclass"
)

// TrackingResult reports the outcome of a set-tracking request. A refused or
// failed grant surfaces as Enabled=false with a reason, never as an error
// leaking past the UI boundary.
type TrackingResult struct {
	Origin  string `json:"origin"`
	Enabled bool   `json:"enabled"`
	Reason  string `json:"reason,omitempty"`
}

// GetState returns the snapshot for a tab, defaulting to the active tab.
// With no state yet it falls back to the platform's live tab URL.
func (e *Engine) GetState(ctx context.Context, tabID string) (snapshot.Snapshot, error) {
	tabID, err := e.resolveTab(ctx, tabID)
	if err != nil {
		return snapshot.Snapshot{}, err
	}

	e.mu.Lock()
	st, ok := e.store.Lookup(tabID)
	if ok {
		copied := *st
		e.mu.Unlock()
		return snapshot.Assemble(tabID, &copied, e.perms.Enabled(copied.Origin)), nil
	}
	e.mu.Unlock()

	// First query before any navigation event fired: show the live location.
	rawURL, ok := e.tabs.TabURL(ctx, tabID)
	if !ok {
		return snapshot.Snapshot{}, newError(CodeTabNotFound, "tab not found: "+tabID, nil)
	}
	snap := snapshot.Assemble(tabID, nil, false)
	snap.URL = rawURL
	if u, err := url.Parse(rawURL); err == nil && urlclass.SupportedScheme(u.Scheme) {
		snap.Origin = urlclass.Origin(u)
		snap.TrackingEnabled = e.perms.Enabled(snap.Origin)
	}
	return snap, nil
}

// ManualReset forces a fresh baseline for a tab at the user's request.
func (e *Engine) ManualReset(ctx context.Context, tabID string) (snapshot.Snapshot, error) {
	tabID, err := e.resolveTab(ctx, tabID)
	if err != nil {
		return snapshot.Snapshot{}, err
	}
	e.rebaseline(tabID)
	return e.assemble(tabID), nil
}

// SetTracking grants or revokes tracking for an origin, persists the
// allow-list, and broadcasts the result. Tabs currently on the origin get a
// fresh snapshot so their tracking flag and badge update immediately.
func (e *Engine) SetTracking(ctx context.Context, origin string, enabled bool) (TrackingResult, error) {
	_ = ctx
	normalized, ok := normalizeOrigin(origin)
	if !ok {
		return TrackingResult{}, newError(CodeValidation, "origin must be http(s)://host", nil)
	}

	result := TrackingResult{Origin: normalized, Enabled: enabled}
	if err := e.perms.Set(normalized, enabled); err != nil {
		// Ambiguous persistence failures resolve to tracking-disabled.
		result.Enabled = false
		result.Reason = "grant not persisted"
	}

	e.broker.Publish(push.Event{Type: push.TypeTrackingResult, Data: result})

	for _, tabID := range e.sameOriginTabs(normalized) {
		e.broadcast(tabID)
	}
	return result, nil
}

// TabActivated is the UI's focus report for a tab.
func (e *Engine) TabActivated(ctx context.Context, tabID string) error {
	tabID, err := e.resolveTab(ctx, tabID)
	if err != nil {
		return err
	}
	e.OnTabActivated(tabID)
	return nil
}

// ListTabs returns snapshots for every tracked tab, sorted by tab ID.
func (e *Engine) ListTabs(ctx context.Context) ([]snapshot.Snapshot, error) {
	_ = ctx
	e.mu.Lock()
	ids := e.store.TabIDs()
	e.mu.Unlock()
	sort.Strings(ids)

	snaps := make([]snapshot.Snapshot, 0, len(ids))
	for _, id := range ids {
		snaps = append(snaps, e.assemble(id))
	}
	return snaps, nil
}

func (e *Engine) resolveTab(ctx context.Context, tabID string) (string, error) {
	if tabID != "" {
		return tabID, nil
	}
	id, ok := e.tabs.ActiveTabID(ctx)
	if !ok {
		return "", newError(CodeTabNotFound, "no active tab", nil)
	}
	return id, nil
}

func (e *Engine) sameOriginTabs(origin string) []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []string
	for _, id := range e.store.TabIDs() {
		if st, ok := e.store.Lookup(id); ok && st.Origin == origin {
			out = append(out, id)
		}
	}
	return out
}

// normalizeOrigin canonicalizes a user-supplied origin to lowercased
// scheme://host. Only http and https origins are grantable.
func normalizeOrigin(origin string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(origin))
	if err != nil || u.Host == "" || !urlclass.ProbeScheme(u.Scheme) {
		return "", false
	}
	if u.Path != "" && u.Path != "/" {
		return "", false
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return "", false
	}
	return urlclass.Origin(u), true
}
