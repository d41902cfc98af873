package snapshot

import (
	"strconv"

	"github.com/dgnsrekt/navtally/internal/tabstate"
)

// Snapshot is the observable view of one tab's navigation state, pushed to
// UI listeners on every change.
type Snapshot struct {
	TabID           string            `json:"tab_id"`
	URL             string            `json:"url"`
	Origin          string            `json:"origin"`
	HasData         bool              `json:"has_data"`
	TrackingEnabled bool              `json:"tracking_enabled"`
	Badge           string            `json:"badge"`
	Counters        tabstate.Counters `json:"counters"`
	Metadata        tabstate.Metadata `json:"metadata"`
}

// Assemble builds a snapshot from tab state. A nil state yields the no-data
// form with only the identifiers filled in.
func Assemble(tabID string, st *tabstate.TabState, trackingEnabled bool) Snapshot {
	if st == nil {
		return Snapshot{TabID: tabID, TrackingEnabled: trackingEnabled}
	}
	return Snapshot{
		TabID:           tabID,
		URL:             st.LastURL,
		Origin:          st.Origin,
		HasData:         st.HasBaseline,
		TrackingEnabled: trackingEnabled,
		Badge:           BadgeText(st.Counters.Totals.All, trackingEnabled),
		Counters:        st.Counters,
		Metadata:        st.Metadata,
	}
}

// BadgeText derives the short toolbar label from the total change count.
// Empty when tracking is disabled or nothing has been counted yet.
func BadgeText(all int, trackingEnabled bool) string {
	if !trackingEnabled || all <= 0 {
		return ""
	}
	if all > 999 {
		return "999+"
	}
	return strconv.Itoa(all)
}
