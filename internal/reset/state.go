package reset

import (
	"encoding/json"
	"fmt"
	"strings"
)

type State int

const (
	StateUnknown State = iota
	StateVerifiedFresh
	StateStaleDetected
	StateClearing
)

func (s State) String() string {
	switch s {
	case StateVerifiedFresh:
		return "VERIFIED_FRESH"
	case StateStaleDetected:
		return "STALE_DETECTED"
	case StateClearing:
		return "CLEARING"
	default:
		return "UNKNOWN"
	}
}

func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// Policy selects how staleness is detected when the marker alone cannot tell
type Policy string

const (
	// PolicyMarker trusts the marker only. An absent marker is initialized without clearing.
	PolicyMarker Policy = "marker"
	// PolicyMarkerScan also scans record timestamps when the marker is absent or ahead of today
	PolicyMarkerScan Policy = "marker+scan"
)

func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(s))) {
	case PolicyMarker:
		return PolicyMarker, nil
	case PolicyMarkerScan, "":
		return PolicyMarkerScan, nil
	}
	return "", fmt.Errorf("unknown staleness policy %q", s)
}

// Outcome is what a single check concluded
type Outcome string

const (
	OutcomeFresh       Outcome = "fresh"
	OutcomeInitialized Outcome = "initialized"
	OutcomeCleared     Outcome = "cleared"
	OutcomeSkipped     Outcome = "skipped" // marker ahead of today and nothing stale found
	OutcomeError       Outcome = "error"
)
