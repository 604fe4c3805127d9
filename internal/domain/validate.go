package domain

import "fmt"

// Regulatory limits and typical operating bands for chlorine residual, in ppm.
const (
	MaxAllowablePPM  = 4.0 // MRDL ceiling
	MinDetectablePPM = 0.1 // below this is effectively zero
	TypicalMinPPM    = 0.2 // required minimum at distribution entry
	TypicalMaxPPM    = 2.5 // most systems stay well below the ceiling
	PoolRangeMinPPM  = 1.0 // recreational-water treatment band, for comparison
	PoolRangeMaxPPM  = 3.0
)

// Sample count bounds outside which an annual average is suspect.
const (
	minTrustedSamples = 4
	maxAnnualSamples  = 365
)

// CandidateReading is the numeric tuple handed to range validation before a
// reading is persisted.
type CandidateReading struct {
	AveragePPM  float64
	MinPPM      *float64
	MaxPPM      *float64
	SampleCount *int
}

// ValidationResult classifies a candidate reading. Errors make it invalid;
// warnings reduce confidence and quality but keep it acceptable.
type ValidationResult struct {
	Valid        bool
	Confidence   int // 0–100
	QualityScore int // 0–100
	Warnings     []string
	Errors       []string
}

// ValidateReading checks a candidate chlorine tuple against regulatory
// bounds and internal consistency. Pure; no I/O.
func ValidateReading(c CandidateReading) ValidationResult {
	r := ValidationResult{Valid: true, Confidence: 100, QualityScore: 100}

	fail := func(format string, args ...any) {
		r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
		r.Valid = false
	}
	warn := func(confPenalty, qualPenalty int, format string, args ...any) {
		r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
		r.Confidence -= confPenalty
		r.QualityScore -= qualPenalty
	}

	if c.AveragePPM < MinDetectablePPM {
		fail("average chlorine %.2f ppm is below detectable limits (%.1f ppm)", c.AveragePPM, MinDetectablePPM)
	}
	if c.AveragePPM > MaxAllowablePPM {
		fail("average chlorine %.2f ppm exceeds maximum allowable limit (%.1f ppm)", c.AveragePPM, MaxAllowablePPM)
	}

	if c.MinPPM != nil {
		if *c.MinPPM < 0 {
			fail("minimum chlorine cannot be negative: %.2f ppm", *c.MinPPM)
		}
		if *c.MinPPM > MaxAllowablePPM {
			fail("minimum chlorine %.2f ppm exceeds maximum allowable limit (%.1f ppm)", *c.MinPPM, MaxAllowablePPM)
		}
		if c.AveragePPM < *c.MinPPM {
			fail("average chlorine (%.2f) cannot be less than minimum (%.2f)", c.AveragePPM, *c.MinPPM)
		}
	}

	if c.MaxPPM != nil {
		if *c.MaxPPM > MaxAllowablePPM {
			fail("maximum chlorine %.2f ppm exceeds maximum allowable limit (%.1f ppm)", *c.MaxPPM, MaxAllowablePPM)
		}
		if c.MinPPM != nil && *c.MaxPPM < *c.MinPPM {
			fail("maximum chlorine (%.2f) cannot be less than minimum (%.2f)", *c.MaxPPM, *c.MinPPM)
		}
		if c.AveragePPM > *c.MaxPPM {
			fail("average chlorine (%.2f) cannot be greater than maximum (%.2f)", c.AveragePPM, *c.MaxPPM)
		}
	}

	if c.AveragePPM < TypicalMinPPM {
		warn(20, 15, "average chlorine %.2f ppm is below typical municipal range (%.1f–%.1f ppm)", c.AveragePPM, TypicalMinPPM, TypicalMaxPPM)
	}
	if c.AveragePPM > TypicalMaxPPM {
		warn(15, 10, "average chlorine %.2f ppm is above typical municipal range (%.1f–%.1f ppm)", c.AveragePPM, TypicalMinPPM, TypicalMaxPPM)
	}
	// Overlap with recreational-water treatment levels suggests the source
	// document may not be a drinking-water disclosure.
	if c.AveragePPM >= PoolRangeMinPPM && c.AveragePPM <= PoolRangeMaxPPM {
		warn(10, 0, "chlorine level %.2f ppm is in swimming pool range - verify this is drinking water data", c.AveragePPM)
	}

	if c.SampleCount != nil {
		if *c.SampleCount < minTrustedSamples {
			warn(10, 5, "low sample count (%d) may be insufficient for a reliable average", *c.SampleCount)
		}
		if *c.SampleCount > maxAnnualSamples {
			warn(5, 0, "very high sample count (%d) - verify this is annual data", *c.SampleCount)
		}
	}

	r.Confidence = clampScore(r.Confidence)
	r.QualityScore = clampScore(r.QualityScore)
	return r
}

func clampScore(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
