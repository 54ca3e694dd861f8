package domain

import "time"

const (
	ScanModeUpstream = "upstream"
	ScanModeEmpty    = "empty"
	ScanModeNoKey    = "no-key"
	ScanModeError    = "error"
)

// ScanEvent records the outcome of one classification request.
type ScanEvent struct {
	PK         string
	SK         string
	EventID    string
	ObjectID   string
	Confidence float64
	Mode       string
	Provider   string
	CreatedAt  time.Time
	TTL        int64
}

// ScanStats are the per-day counters kept next to the scan events.
type ScanStats struct {
	Day      string
	Total    int
	ByMode   map[string]int
	ByObject map[string]int
}
