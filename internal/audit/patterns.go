package audit

import "regexp"

// Severity orders findings for remediation. Critical patterns are known to
// produce wrong data with high confidence.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// WildcardState marks a pattern as suspicious for every jurisdiction.
const WildcardState = "ALL"

// Pattern is one named cross-jurisdiction contamination signature. A reading
// matches when its source URL (or utility name) hits the regex and its PWSID
// jurisdiction is in the suspicious set.
type Pattern struct {
	Name             string
	Description      string
	URLPattern       *regexp.Regexp
	UtilityPattern   *regexp.Regexp
	SuspiciousStates []string
	AutoCleanup      bool
	Severity         Severity
}

const patternDomainMismatch = "State Government Domain Mismatch"

// stateDomainRe extracts the jurisdiction a government domain belongs to.
var stateDomainRe = regexp.MustCompile(`(?i)\.(mi|me|oh|ca|ny|fl|tx)\.gov`)

// Catalogue returns the fixed contamination pattern set, ordered by how
// reliably each one indicates wrong data.
func Catalogue() []Pattern {
	return []Pattern{
		{
			Name:             "Franklin Michigan Contamination",
			Description:      "Franklin Michigan water quality data assigned to Franklin Tennessee utilities",
			URLPattern:       regexp.MustCompile(`(?i)franklin.*michigan|michigan.*franklin|/franklin.*mi\.|\.mi\..*franklin`),
			UtilityPattern:   regexp.MustCompile(`(?i)franklin.*michigan|michigan.*franklin`),
			SuspiciousStates: []string{"TN", "KY", "GA", "AL", "NC", "VA"},
			AutoCleanup:      true,
			Severity:         SeverityCritical,
		},
		{
			Name:             "Nashville Metro Cross-contamination",
			Description:      "Nashville Metro Water data contaminating other utilities",
			URLPattern:       regexp.MustCompile(`(?i)nashville\.gov|metro.*nashville|nashville.*metro`),
			SuspiciousStates: []string{"MI", "OH", "KY", "GA"},
			AutoCleanup:      false,
			Severity:         SeverityWarning,
		},
		{
			Name:             patternDomainMismatch,
			Description:      "Reading sourced from another state's government domain",
			URLPattern:       stateDomainRe,
			SuspiciousStates: []string{WildcardState},
			AutoCleanup:      false,
			Severity:         SeverityWarning,
		},
		{
			Name:             "Common City Name Confusion",
			Description:      "Data from same-named cities crossing state lines",
			URLPattern:       regexp.MustCompile(`(?i)columbus|springfield|franklin|georgetown|clinton|madison|washington`),
			SuspiciousStates: []string{WildcardState},
			AutoCleanup:      false,
			Severity:         SeverityWarning,
		},
		{
			Name:             "Third-party Site Contamination",
			Description:      "Data from third-party utility management sites with mixed geographic data",
			URLPattern:       regexp.MustCompile(`(?i)noviams\.com|utilitymanager\.com|civicplus\.com`),
			SuspiciousStates: []string{WildcardState},
			AutoCleanup:      false,
			Severity:         SeverityWarning,
		},
	}
}

func suspiciousFor(p Pattern, state string) bool {
	for _, s := range p.SuspiciousStates {
		if s == WildcardState || s == state {
			return true
		}
	}
	return false
}
