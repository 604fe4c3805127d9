package acquire

import (
	"context"
	"regexp"
	"strconv"
)

// Disclosure documents rarely state a sample count; annual reports are
// typically built from monthly sampling.
const defaultSampleCount = 12

// Coarse sanity bounds applied before regulatory validation. Values outside
// are table artifacts (years, percentages), not concentrations.
const (
	sanityLowPPM  = 0.0
	sanityHighPPM = 10.0
)

// Extraction is the numeric tuple recovered from a document.
type Extraction struct {
	AveragePPM     float64
	MinPPM         *float64
	MaxPPM         *float64
	SampleCount    *int
	EstimatedRange bool
	Method         string
	Notes          string
}

// Extractor recovers a chlorine tuple from document text. Implementations
// return ok=false when the document holds no usable value; errors are
// reserved for collaborator failures.
type Extractor interface {
	Name() string
	Extract(ctx context.Context, text string) (Extraction, bool, error)
}

// regexExtractor tries an ordered pattern list whose first capture group is
// the average concentration.
type regexExtractor struct {
	name     string
	patterns []*regexp.Regexp
}

func (e *regexExtractor) Name() string { return e.name }

func (e *regexExtractor) Extract(_ context.Context, text string) (Extraction, bool, error) {
	for _, p := range e.patterns {
		m := p.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		avg, err := strconv.ParseFloat(m[1], 64)
		if err != nil || avg <= sanityLowPPM || avg >= sanityHighPPM {
			continue
		}
		return completeExtraction(text, avg, e.name), true, nil
	}
	return Extraction{}, false, nil
}

var rangeRe = regexp.MustCompile(`(\d+\.?\d*)\s*-\s*(\d+\.?\d*)`)

// completeExtraction fills in the range around an average: an explicit
// low-high pair in the document when one exists, otherwise a tagged
// ×0.7/×1.3 estimate.
func completeExtraction(text string, avg float64, method string) Extraction {
	ext := Extraction{
		AveragePPM:  avg,
		SampleCount: intPtr(defaultSampleCount),
		Method:      method,
	}

	if m := rangeRe.FindStringSubmatch(text); m != nil {
		lo, errLo := strconv.ParseFloat(m[1], 64)
		hi, errHi := strconv.ParseFloat(m[2], 64)
		if errLo == nil && errHi == nil && lo < hi {
			ext.MinPPM, ext.MaxPPM = &lo, &hi
			return ext
		}
	}

	lo, hi := avg*0.7, avg*1.3
	ext.MinPPM, ext.MaxPPM = &lo, &hi
	ext.EstimatedRange = true
	ext.Notes = "range estimated from average, not measured"
	return ext
}

// rangeMeanExtractor handles disclosures that report only a low-high band.
// The recorded average is the arithmetic mean of the band.
type rangeMeanExtractor struct {
	patterns []*regexp.Regexp
}

func (e *rangeMeanExtractor) Name() string { return MethodRangeMean }

func (e *rangeMeanExtractor) Extract(_ context.Context, text string) (Extraction, bool, error) {
	for _, p := range e.patterns {
		m := p.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		lo, errLo := strconv.ParseFloat(m[1], 64)
		hi, errHi := strconv.ParseFloat(m[2], 64)
		if errLo != nil || errHi != nil || lo >= hi {
			continue
		}
		avg := (lo + hi) / 2
		if avg <= sanityLowPPM || avg >= sanityHighPPM {
			continue
		}
		return Extraction{
			AveragePPM:  avg,
			MinPPM:      &lo,
			MaxPPM:      &hi,
			SampleCount: intPtr(defaultSampleCount),
			Method:      MethodRangeMean,
			Notes:       "average computed as mean of reported range",
		}, true, nil
	}
	return Extraction{}, false, nil
}

// Extraction method labels recorded in reading provenance.
const (
	MethodLabeledAverage = "labeled-average"
	MethodLabeledValue   = "labeled-value"
	MethodCompoundName   = "compound-name"
	MethodRangeMean      = "range-mean"
	MethodLLM            = "llm-structured"
)

// NewLabeledAverageExtractor matches tabular disclosure rows that carry an
// explicit "Avg." column next to the chlorine entry.
func NewLabeledAverageExtractor() Extractor {
	return &regexExtractor{
		name: MethodLabeledAverage,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)Chlorine\s*\|\s*NO\s*\|\s*(\d+\.?\d*)\s*Avg\.\s*\|\s*[\d.\s-]+`),
			regexp.MustCompile(`(?i)Chlorine[\s|]*NO[\s|]*(\d+\.?\d*)\s*Avg\.`),
			regexp.MustCompile(`(?i)Chlorine[\s|]*\w*[\s|]*(\d+\.?\d*)\s*(?:ppm|mg/l|Avg\.)`),
		},
	}
}

// NewLabeledValueExtractor matches a plain "chlorine: N ppm" statement.
func NewLabeledValueExtractor() Extractor {
	return &regexExtractor{
		name: MethodLabeledValue,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)chlorine[:\s]*(\d+\.?\d*)\s*(?:ppm|mg/l)`),
		},
	}
}

// NewCompoundNameExtractor matches disclosures that report the disinfectant
// under its compound or generic name rather than "chlorine".
func NewCompoundNameExtractor() Extractor {
	return &regexExtractor{
		name: MethodCompoundName,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)sodium\s*hypochlorite[:\s]*(\d+\.?\d*)\s*(?:ppm|mg/l)`),
			regexp.MustCompile(`(?i)hypochlorite[:\s]*(\d+\.?\d*)\s*(?:ppm|mg/l)`),
			regexp.MustCompile(`(?i)disinfectant\s*residual[:\s]*(\d+\.?\d*)\s*(?:ppm|mg/l)`),
			regexp.MustCompile(`(?i)disinfectant[:\s]*(\d+\.?\d*)\s*(?:ppm|mg/l)`),
		},
	}
}

// NewRangeMeanExtractor matches disclosures that report a low-high chlorine
// band with no average column. Runs after the average-bearing strategies so
// an explicit average always wins.
func NewRangeMeanExtractor() Extractor {
	return &rangeMeanExtractor{
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)chlorine[^0-9\n]{0,40}(\d+\.?\d*)\s*-\s*(\d+\.?\d*)\s*(?:ppm|mg/l)`),
			regexp.MustCompile(`(?i)disinfectant\s*residual[^0-9\n]{0,40}(\d+\.?\d*)\s*-\s*(\d+\.?\d*)\s*(?:ppm|mg/l)`),
		},
	}
}

func intPtr(v int) *int { return &v }
