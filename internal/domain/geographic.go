package domain

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// GeographicResult reports whether an extracted reading plausibly belongs to
// the jurisdiction its PWSID encodes.
type GeographicResult struct {
	Consistent bool
	Confidence int // 0–100
	Warnings   []string
}

// Utility names that recur across states and have historically pulled in the
// wrong system's disclosure documents.
var collisionPatterns = []struct {
	re      *regexp.Regexp
	warning string
}{
	{regexp.MustCompile(`(?i)franklin.*michigan|michigan.*franklin`), "Franklin Michigan data may be contaminating Franklin Tennessee"},
	{regexp.MustCompile(`(?i)metro.*nashville|nashville.*metro`), "Nashville Metro Water data detected - verify correct utility"},
	{regexp.MustCompile(`(?i)columbus|cleveland|cincinnati`), "Ohio utility names detected - verify state consistency"},
	{regexp.MustCompile(`(?i)portland.*maine|maine.*portland`), "Maine utility data detected - verify state consistency"},
}

var wrongStateDomains = []struct {
	re      *regexp.Regexp
	label   string
	penalty int
}{
	{regexp.MustCompile(`(?i)\.mi\.gov|michigan\.gov|\.mi\.us`), "Michigan", 40},
	{regexp.MustCompile(`(?i)\.me\.gov|maine\.gov|\.me\.us`), "Maine", 40},
	{regexp.MustCompile(`(?i)\.oh\.gov|ohio\.gov|\.oh\.us`), "Ohio", 40},
	{regexp.MustCompile(`(?i)\.ca\.gov|california\.gov|\.ca\.us`), "California", 40},
	{regexp.MustCompile(`(?i)nashville\.gov`), "Nashville (if not Nashville utility)", 30},
}

var thirdPartyDomains = []struct {
	re      *regexp.Regexp
	warning string
	penalty int
}{
	{regexp.MustCompile(`(?i)noviams\.com`), "Third-party utility management site - may contain mixed data", 15},
	{regexp.MustCompile(`(?i)awwa\.org`), "AWWA site may contain sample/template data", 10},
	{regexp.MustCompile(`(?i)epa\.gov`), "EPA site may contain aggregate/sample data", 5},
}

// ValidateGeographicConsistency cross-checks the jurisdiction encoded in a
// PWSID against the state, utility name, and source URL that came back with
// an extracted reading. A result below the consistency floor means the
// document most likely describes a different system.
func ValidateGeographicConsistency(pwsid, utilityName, city, state, sourceURL string) GeographicResult {
	r := GeographicResult{Confidence: 100}

	pwsidState := JurisdictionFromPWSID(pwsid)

	if state != "" && strings.ToUpper(state) != pwsidState {
		r.Warnings = append(r.Warnings, fmt.Sprintf("state mismatch: PWSID indicates %s, but extracted state is %s", pwsidState, state))
		r.Confidence -= 50
	}

	for _, p := range collisionPatterns {
		if p.re.MatchString(utilityName) {
			r.Warnings = append(r.Warnings, p.warning)
			r.Confidence -= 30
		}
	}

	if sourceURL != "" {
		warnings, penalty := inspectSourceDomain(sourceURL)
		r.Warnings = append(r.Warnings, warnings...)
		r.Confidence -= penalty
	}

	r.Consistent = r.Confidence > 50
	r.Confidence = clampScore(r.Confidence)
	return r
}

// inspectSourceDomain flags source URLs whose host belongs to another
// state's government or to a third-party aggregator.
func inspectSourceDomain(sourceURL string) (warnings []string, penalty int) {
	u, err := url.Parse(sourceURL)
	if err != nil || u.Hostname() == "" {
		return []string{fmt.Sprintf("invalid source URL format: %s", sourceURL)}, 20
	}
	domain := strings.ToLower(u.Hostname())

	for _, d := range wrongStateDomains {
		if d.re.MatchString(domain) {
			warnings = append(warnings, fmt.Sprintf("source URL appears to be from %s: %s", d.label, domain))
			penalty += d.penalty
		}
	}
	for _, d := range thirdPartyDomains {
		if d.re.MatchString(domain) {
			warnings = append(warnings, d.warning)
			penalty += d.penalty
		}
	}
	return warnings, penalty
}
