package tabstate

// Source distinguishes how a URL change was observed.
type Source string

const (
	// SourceFull is a committed full navigation (new document load).
	SourceFull Source = "full"
	// SourceSPA is a same-document history-API mutation.
	SourceSPA Source = "spa"
)

// Phase models the one-shot suppression contract around baseline probes.
// The integration immediately following a baseline must not increment
// identifier counters; the phase is consumed exactly once.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseAwaitingBaselineProbe
)

// Totals are the headline navigation counters. All == Full + SPA always.
type Totals struct {
	All  int `json:"all"`
	Full int `json:"full"`
	SPA  int `json:"spa"`
}

// Dims count within-origin transitions whose URL component differed from the
// prior position.
type Dims struct {
	Path     int `json:"path"`
	Query    int `json:"query"`
	Fragment int `json:"fragment"`
}

// IDs count metadata-probe results whose value differed from the previously
// stored one.
type IDs struct {
	Canonical int `json:"canonical"`
	OGURL     int `json:"og_url"`
	JSONLDID  int `json:"json_ld_id"`
}

type Counters struct {
	Totals Totals `json:"totals"`
	Dims   Dims   `json:"dims"`
	IDs    IDs    `json:"ids"`
}

// Metadata holds the last-seen page identifier strings. Empty string means
// not observed or not present.
type Metadata struct {
	Canonical string `json:"canonical"`
	OGURL     string `json:"og_url"`
	JSONLDID  string `json:"json_ld_id"`
}

// TabState is the per-tab navigation/metadata state. Origin is always
// recomputed from LastURL; the two never diverge. Mutation is funneled
// through the transition engine.
type TabState struct {
	LastURL     string
	Origin      string
	HasBaseline bool
	Phase       Phase
	Counters    Counters
	Metadata    Metadata
}

// Clear resets a state to its zeroed pre-baseline form.
func (s *TabState) Clear() {
	*s = TabState{}
}

// ResetCounters zeroes counters and metadata without touching the location
// fields. Used when a fresh baseline keeps the tab visible.
func (s *TabState) ResetCounters() {
	s.Counters = Counters{}
	s.Metadata = Metadata{}
}
