package domain

import "time"

// Data source labels recorded in reading provenance. SourceManualEntry is
// matched exactly by the replacement precedence rule.
const (
	SourceManualEntry = "Manual User Entry"
	SourceCCR         = "Consumer Confidence Report"
)

// Reading is a cached chlorine residual result for one water system.
// One logical row per PWSID; AveragePPM is always set, MinPPM/MaxPPM and
// SampleCount are optional. Invariant when all three concentrations are
// present: min ≤ average ≤ max.
type Reading struct {
	PWSID       string
	UtilityName string

	AveragePPM  float64
	MinPPM      *float64
	MaxPPM      *float64
	SampleCount *int

	// EstimatedRange marks min/max that were derived from a single value
	// rather than observed in the source document.
	EstimatedRange bool

	Confidence       int
	DataSource       string
	SourceURL        string
	ExtractionMethod string
	Notes            string

	ObservedAt time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// IsManual reports whether the reading was entered by a human rather than
// extracted automatically.
func (r Reading) IsManual() bool {
	return r.DataSource == SourceManualEntry
}

// Age returns how old the reading is relative to the package clock, based
// on its observation date.
func (r Reading) Age() time.Duration {
	if r.ObservedAt.IsZero() {
		return 0
	}
	return clock.Now().Sub(r.ObservedAt)
}
