package urlclass

import (
	"net/url"
	"strings"
)

// Delta reports which components of a URL differ from the previous one.
type Delta struct {
	OriginChanged   bool
	PathChanged     bool
	QueryChanged    bool
	FragmentChanged bool
}

// Classify compares two well-formed absolute URLs. A nil prev yields the zero
// Delta: with no reference point there is nothing to differ from.
func Classify(prev, next *url.URL) Delta {
	if prev == nil || next == nil {
		return Delta{}
	}
	return Delta{
		OriginChanged:   Origin(prev) != Origin(next),
		PathChanged:     prev.Path != next.Path,
		QueryChanged:    prev.RawQuery != next.RawQuery,
		FragmentChanged: prev.Fragment != next.Fragment,
	}
}

// Origin returns the lowercased scheme://host of a URL. The host keeps any
// explicit port; this is the unit at which tracking permission and baselines
// are scoped.
func Origin(u *url.URL) string {
	return strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host)
}

// SupportedScheme reports whether a scheme is in the supported core protocol
// set. file is supported for local-page testing but never for probing.
func SupportedScheme(scheme string) bool {
	switch strings.ToLower(scheme) {
	case "http", "https", "file":
		return true
	}
	return false
}

// ProbeScheme reports whether a scheme is eligible for permission-gated
// metadata probing.
func ProbeScheme(scheme string) bool {
	switch strings.ToLower(scheme) {
	case "http", "https":
		return true
	}
	return false
}
