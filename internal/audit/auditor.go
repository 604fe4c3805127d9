// Package audit scans stored readings for cross-jurisdiction contamination
// and data-quality problems, and runs the policy-gated cleanup that removes
// confirmed bad rows.
package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/tapsafe/chlorine-data-service/internal/domain"
	"github.com/tapsafe/chlorine-data-service/internal/observability"
)

// Readings older than this are flagged as outdated in scan reports.
const outdatedAfter = 6 * 30 * 24 * time.Hour

// ErrCleanupNotPermitted means a mutating cleanup was requested for a pattern
// not flagged auto-cleanup-safe, without an override.
var ErrCleanupNotPermitted = errors.New("cleanup not permitted")

// Finding is one suspected problem with a stored reading.
type Finding struct {
	PWSID           string   `json:"pwsid"`
	UtilityName     string   `json:"utility_name"`
	State           string   `json:"state"`
	PatternName     string   `json:"pattern_name"`
	Severity        Severity `json:"severity"`
	Description     string   `json:"description"`
	Evidence        []string `json:"evidence"`
	SourceURL       string   `json:"source_url,omitempty"`
	DataSource      string   `json:"data_source,omitempty"`
	AutoCleanup     bool     `json:"auto_cleanup"`
	Recommendations []string `json:"recommendations"`
}

// Summary aggregates a scan for dashboards and CLI output.
type Summary struct {
	TotalReadings         int            `json:"total_readings"`
	TotalFindings         int            `json:"total_findings"`
	CriticalFindings      int            `json:"critical_findings"`
	AutoCleanupCandidates int            `json:"auto_cleanup_candidates"`
	PatternBreakdown      map[string]int `json:"pattern_breakdown"`
	AffectedStates        map[string]int `json:"affected_states"`
}

// Report is the result of a full scan, findings sorted by severity then
// auto-cleanup eligibility.
type Report struct {
	Findings        []Finding `json:"findings"`
	Summary         Summary   `json:"summary"`
	PatternsScanned []string  `json:"patterns_scanned"`
}

// ScanOptions narrows a scan to a pattern-name substring or to patterns
// eligible for automatic cleanup.
type ScanOptions struct {
	Pattern         string
	AutoCleanupOnly bool
}

// CleanupRequest selects rows to delete: every reading matching a named
// pattern, or an explicit PWSID list. DryRun reports without mutating.
// Override permits cleanup of patterns not flagged auto-cleanup-safe.
type CleanupRequest struct {
	Pattern  string
	PWSIDs   []string
	DryRun   bool
	Override bool
}

// CleanupAction records the outcome for one reading.
type CleanupAction struct {
	PWSID       string `json:"pwsid"`
	UtilityName string `json:"utility_name,omitempty"`
	Action      string `json:"action"` // deleted, would_delete, failed
	Reason      string `json:"reason,omitempty"`
	Error       string `json:"error,omitempty"`
}

// CleanupResult summarizes a cleanup run.
type CleanupResult struct {
	DryRun  bool            `json:"dry_run"`
	Actions []CleanupAction `json:"actions"`
}

// ReadingStore is the slice of the record store the auditor uses.
type ReadingStore interface {
	AllReadings(ctx context.Context) ([]domain.Reading, error)
	DeleteReading(ctx context.Context, pwsid string) error
}

// FindingsPublisher forwards findings to downstream consumers. Optional.
type FindingsPublisher interface {
	PublishFindings(ctx context.Context, findings []Finding) error
}

// Auditor runs contamination scans and gated cleanups over stored readings.
type Auditor struct {
	store     ReadingStore
	publisher FindingsPublisher
	patterns  []Pattern
	logger    *slog.Logger
	metrics   *observability.Metrics
}

func New(store ReadingStore, publisher FindingsPublisher, logger *slog.Logger, metrics *observability.Metrics) *Auditor {
	return &Auditor{
		store:     store,
		publisher: publisher,
		patterns:  Catalogue(),
		logger:    logger,
		metrics:   metrics,
	}
}

// Scan re-validates every stored reading and applies the contamination
// pattern catalogue. Read-only; a delete never happens here.
func (a *Auditor) Scan(ctx context.Context, opts ScanOptions) (Report, error) {
	readings, err := a.store.AllReadings(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("load readings: %w", err)
	}
	a.metrics.AuditScans.Inc()

	patterns := a.selectPatterns(opts)

	var findings []Finding
	for _, r := range readings {
		findings = append(findings, a.auditReading(r, patterns, opts)...)
	}

	sort.SliceStable(findings, func(i, j int) bool {
		if findings[i].Severity != findings[j].Severity {
			return severityRank(findings[i].Severity) < severityRank(findings[j].Severity)
		}
		return findings[i].AutoCleanup && !findings[j].AutoCleanup
	})

	for _, f := range findings {
		a.metrics.AuditFindings.WithLabelValues(string(f.Severity)).Inc()
	}

	report := Report{
		Findings:        findings,
		Summary:         summarize(len(readings), findings),
		PatternsScanned: patternNames(patterns),
	}

	if a.publisher != nil && len(findings) > 0 {
		if err := a.publisher.PublishFindings(ctx, findings); err != nil {
			a.logger.Warn("findings publish failed", "count", len(findings), "error", err)
		} else {
			a.metrics.FindingsQueued.Add(float64(len(findings)))
		}
	}

	a.logger.Info("contamination scan complete",
		"readings", len(readings), "findings", len(findings),
		"critical", report.Summary.CriticalFindings)
	return report, nil
}

// auditReading emits pattern findings plus re-validation findings (invalid
// ranges, geographic mismatches, stale readings) for one row.
func (a *Auditor) auditReading(r domain.Reading, patterns []Pattern, opts ScanOptions) []Finding {
	var findings []Finding
	state := domain.JurisdictionFromPWSID(r.PWSID)

	for _, p := range patterns {
		if evidence, ok := matchPattern(p, r, state); ok {
			findings = append(findings, Finding{
				PWSID:           r.PWSID,
				UtilityName:     r.UtilityName,
				State:           state,
				PatternName:     p.Name,
				Severity:        p.Severity,
				Description:     p.Description,
				Evidence:        evidence,
				SourceURL:       r.SourceURL,
				DataSource:      r.DataSource,
				AutoCleanup:     p.AutoCleanup,
				Recommendations: recommendations(p, state),
			})
		}
	}

	// Pattern-filtered scans skip the general re-validation findings; they
	// answer "does this pattern fire", not "is this row healthy".
	if opts.Pattern != "" || opts.AutoCleanupOnly {
		return findings
	}

	findings = append(findings, a.revalidate(r, state)...)
	return findings
}

func (a *Auditor) revalidate(r domain.Reading, state string) []Finding {
	var findings []Finding

	v := domain.ValidateReading(domain.CandidateReading{
		AveragePPM:  r.AveragePPM,
		MinPPM:      r.MinPPM,
		MaxPPM:      r.MaxPPM,
		SampleCount: r.SampleCount,
	})
	if !v.Valid {
		findings = append(findings, Finding{
			PWSID:       r.PWSID,
			UtilityName: r.UtilityName,
			State:       state,
			PatternName: "Invalid Reading",
			Severity:    SeverityCritical,
			Description: "Stored reading violates regulatory bounds or internal consistency",
			Evidence:    v.Errors,
			SourceURL:   r.SourceURL,
			DataSource:  r.DataSource,
			Recommendations: []string{
				"Remove invalid data entry",
				"Re-extract data from verified source",
			},
		})
	}

	geo := domain.ValidateGeographicConsistency(r.PWSID, r.UtilityName, "", state, r.SourceURL)
	if !geo.Consistent {
		sev := SeverityWarning
		if geo.Confidence < 30 {
			sev = SeverityCritical
		}
		findings = append(findings, Finding{
			PWSID:       r.PWSID,
			UtilityName: r.UtilityName,
			State:       state,
			PatternName: "Geographic Mismatch",
			Severity:    sev,
			Description: "Stored provenance is inconsistent with the system's jurisdiction",
			Evidence:    geo.Warnings,
			SourceURL:   r.SourceURL,
			DataSource:  r.DataSource,
			Recommendations: []string{
				"Verify utility location",
				"Validate source URL domain",
				"Consider removing if cross-state contamination",
			},
		})
	}

	if age := r.Age(); age > outdatedAfter {
		findings = append(findings, Finding{
			PWSID:       r.PWSID,
			UtilityName: r.UtilityName,
			State:       state,
			PatternName: "Outdated Reading",
			Severity:    SeverityInfo,
			Description: "Reading is older than six months",
			Evidence:    []string{fmt.Sprintf("observed %s ago", age.Round(24*time.Hour))},
			SourceURL:   r.SourceURL,
			DataSource:  r.DataSource,
			Recommendations: []string{
				"Re-acquire from the current disclosure report",
			},
		})
	}

	return findings
}

// Cleanup deletes readings matched by a pattern or an explicit PWSID list.
// Patterns not flagged auto-cleanup-safe require an explicit override for a
// mutating run; dry-run is always allowed.
func (a *Auditor) Cleanup(ctx context.Context, req CleanupRequest) (CleanupResult, error) {
	switch {
	case req.Pattern != "":
		return a.cleanupPattern(ctx, req)
	case len(req.PWSIDs) > 0:
		return a.cleanupSpecific(ctx, req)
	default:
		return CleanupResult{}, fmt.Errorf("cleanup requires a pattern name or a pwsid list")
	}
}

func (a *Auditor) cleanupPattern(ctx context.Context, req CleanupRequest) (CleanupResult, error) {
	pattern, ok := a.findPattern(req.Pattern)
	if !ok {
		return CleanupResult{}, fmt.Errorf("unknown contamination pattern %q", req.Pattern)
	}
	if !pattern.AutoCleanup && !req.DryRun && !req.Override {
		return CleanupResult{}, fmt.Errorf("%w: pattern %q is not auto-cleanup-safe; use a dry run or an explicit override", ErrCleanupNotPermitted, pattern.Name)
	}

	readings, err := a.store.AllReadings(ctx)
	if err != nil {
		return CleanupResult{}, fmt.Errorf("load readings: %w", err)
	}

	result := CleanupResult{DryRun: req.DryRun}
	for _, r := range readings {
		state := domain.JurisdictionFromPWSID(r.PWSID)
		if _, matched := matchPattern(pattern, r, state); !matched {
			continue
		}
		reason := fmt.Sprintf("matches %s pattern", pattern.Name)
		result.Actions = append(result.Actions, a.deleteOne(ctx, r.PWSID, r.UtilityName, reason, req.DryRun))
	}
	return result, nil
}

func (a *Auditor) cleanupSpecific(ctx context.Context, req CleanupRequest) (CleanupResult, error) {
	result := CleanupResult{DryRun: req.DryRun}
	for _, pwsid := range req.PWSIDs {
		result.Actions = append(result.Actions, a.deleteOne(ctx, pwsid, "", "explicitly selected", req.DryRun))
	}
	return result, nil
}

func (a *Auditor) deleteOne(ctx context.Context, pwsid, utilityName, reason string, dryRun bool) CleanupAction {
	action := CleanupAction{PWSID: pwsid, UtilityName: utilityName, Reason: reason}
	if dryRun {
		action.Action = "would_delete"
		return action
	}
	if err := a.store.DeleteReading(ctx, pwsid); err != nil {
		a.logger.Error("cleanup delete failed", "pwsid", pwsid, "error", err)
		action.Action = "failed"
		action.Error = err.Error()
		return action
	}
	a.metrics.AuditCleanups.Inc()
	a.logger.Info("contaminated reading removed", "pwsid", pwsid, "reason", reason)
	action.Action = "deleted"
	return action
}

func (a *Auditor) selectPatterns(opts ScanOptions) []Pattern {
	patterns := a.patterns
	if opts.Pattern != "" {
		var filtered []Pattern
		for _, p := range patterns {
			if strings.Contains(strings.ToLower(p.Name), strings.ToLower(opts.Pattern)) {
				filtered = append(filtered, p)
			}
		}
		patterns = filtered
	}
	if opts.AutoCleanupOnly {
		var filtered []Pattern
		for _, p := range patterns {
			if p.AutoCleanup {
				filtered = append(filtered, p)
			}
		}
		patterns = filtered
	}
	return patterns
}

func (a *Auditor) findPattern(name string) (Pattern, bool) {
	needle := strings.ToLower(name)
	for _, p := range a.patterns {
		if strings.Contains(strings.ToLower(p.Name), needle) {
			return p, true
		}
	}
	return Pattern{}, false
}

// matchPattern applies one pattern to one reading. The domain-mismatch
// pattern only fires when the URL's state actually differs from the PWSID's.
func matchPattern(p Pattern, r domain.Reading, state string) ([]string, bool) {
	var evidence []string
	matched := false

	if r.SourceURL != "" && p.URLPattern.MatchString(r.SourceURL) {
		if p.Name == patternDomainMismatch {
			if m := stateDomainRe.FindStringSubmatch(r.SourceURL); m != nil {
				urlState := strings.ToUpper(m[1])
				if urlState != state {
					matched = true
					evidence = append(evidence,
						fmt.Sprintf("source URL matches suspicious pattern: %s", r.SourceURL),
						fmt.Sprintf("PWSID state (%s) does not match URL state (%s)", state, urlState))
				}
			}
		} else if suspiciousFor(p, state) {
			matched = true
			evidence = append(evidence, fmt.Sprintf("source URL matches suspicious pattern: %s", r.SourceURL))
		}
	}

	if p.UtilityPattern != nil && p.UtilityPattern.MatchString(r.UtilityName) {
		evidence = append(evidence, fmt.Sprintf("utility name matches suspicious pattern: %s", r.UtilityName))
		for _, s := range p.SuspiciousStates {
			if s == state {
				matched = true
			}
		}
	}

	if matched && r.SourceURL != "" {
		geo := domain.ValidateGeographicConsistency(r.PWSID, r.UtilityName, "", state, r.SourceURL)
		if !geo.Consistent {
			evidence = append(evidence, geo.Warnings...)
		}
	}

	return evidence, matched
}

func recommendations(p Pattern, state string) []string {
	var recs []string
	if p.AutoCleanup {
		recs = append(recs, "safe to remove automatically")
	} else {
		recs = append(recs, "requires human verification before removal")
	}
	if p.Severity == SeverityCritical {
		recs = append(recs, "remove immediately to prevent user confusion")
	}
	recs = append(recs, fmt.Sprintf("verify correct data exists for %s utilities", state))
	return recs
}

func severityRank(s Severity) int {
	switch s {
	case SeverityCritical:
		return 0
	case SeverityWarning:
		return 1
	default:
		return 2
	}
}

func summarize(totalReadings int, findings []Finding) Summary {
	s := Summary{
		TotalReadings:    totalReadings,
		TotalFindings:    len(findings),
		PatternBreakdown: map[string]int{},
		AffectedStates:   map[string]int{},
	}
	for _, f := range findings {
		if f.Severity == SeverityCritical {
			s.CriticalFindings++
		}
		if f.AutoCleanup {
			s.AutoCleanupCandidates++
		}
		s.PatternBreakdown[f.PatternName]++
		s.AffectedStates[f.State]++
	}
	return s
}

func patternNames(patterns []Pattern) []string {
	names := make([]string, 0, len(patterns))
	for _, p := range patterns {
		names = append(names, p.Name)
	}
	return names
}
