// Package acquire discovers chlorine readings for a water system from public
// disclosure documents: search, extract, validate, and persist, with a
// cache-first short circuit and a manual-entry path.
package acquire

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tapsafe/chlorine-data-service/internal/domain"
	"github.com/tapsafe/chlorine-data-service/internal/observability"
)

// NotFound kinds distinguish "nothing to read" from "nothing readable".
const (
	KindNoDocuments        = "no_documents"
	KindNoExtractableValue = "no_extractable_value"
)

// Request identifies the system to acquire a reading for.
type Request struct {
	PWSID       string
	UtilityName string
	City        string
	State       string
}

// NotFoundReport explains an unsuccessful acquisition so the caller can
// offer a manual-entry path.
type NotFoundReport struct {
	Kind                 string   `json:"kind"`
	TriedURLs            []string `json:"tried_urls"`
	ManualEntryAvailable bool     `json:"manual_entry_available"`
}

// Outcome is the result of an acquisition: a reading (possibly cached) or a
// structured not-found report, never both. Stale carries the last known
// reading when a staleness-forced re-acquisition came up empty, so callers
// can show what they have alongside why it was not refreshed.
type Outcome struct {
	Reading   *domain.Reading
	FromCache bool
	NotFound  *NotFoundReport
	Stale     *domain.Reading
}

// SearchResult is one candidate document from the search collaborator.
type SearchResult struct {
	URL   string
	Title string
}

// DocumentSearcher finds and renders public disclosure documents.
type DocumentSearcher interface {
	Search(ctx context.Context, query string, limit int) ([]SearchResult, error)
	Scrape(ctx context.Context, url string) (string, error)
}

// TextExtractor converts a binary document URL to plain text. The
// orchestrator holds an ordered list and tries the next method when one
// fails or comes back empty.
type TextExtractor interface {
	ExtractText(ctx context.Context, url string) (string, error)
}

// ReadingStore is the slice of the record store the orchestrator uses.
type ReadingStore interface {
	ReadingByPWSID(ctx context.Context, pwsid string) (domain.Reading, error)
	UpsertReading(ctx context.Context, r domain.Reading) (domain.Reading, error)
}

// Orchestrator runs the acquisition chain for one system at a time.
type Orchestrator struct {
	store      ReadingStore
	searcher   DocumentSearcher
	extractors []TextExtractor
	strategies []Extractor
	logger     *slog.Logger
	metrics    *observability.Metrics

	maxCandidates int
	maxReadingAge time.Duration // 0 keeps cached readings forever
}

// Options tunes the orchestrator. Zero values fall back to defaults.
type Options struct {
	MaxCandidateDocs int
	MaxReadingAge    time.Duration
}

func New(store ReadingStore, searcher DocumentSearcher, extractors []TextExtractor,
	strategies []Extractor, logger *slog.Logger, metrics *observability.Metrics, opts Options) *Orchestrator {
	maxDocs := opts.MaxCandidateDocs
	if maxDocs <= 0 {
		maxDocs = 3
	}
	return &Orchestrator{
		store:         store,
		searcher:      searcher,
		extractors:    extractors,
		strategies:    strategies,
		logger:        logger,
		metrics:       metrics,
		maxCandidates: maxDocs,
		maxReadingAge: opts.MaxReadingAge,
	}
}

// Acquire returns the stored reading for a system or discovers one from
// public documents. Collaborator failures advance the candidate chain; only
// store failures surface as errors.
func (o *Orchestrator) Acquire(ctx context.Context, req Request) (Outcome, error) {
	existing, lookupErr := o.store.ReadingByPWSID(ctx, req.PWSID)
	haveExisting := lookupErr == nil
	switch {
	case lookupErr == nil:
		if o.maxReadingAge == 0 || existing.Age() <= o.maxReadingAge {
			return Outcome{Reading: &existing, FromCache: true}, nil
		}
		o.logger.Info("cached reading is stale, re-acquiring",
			"pwsid", req.PWSID, "age", existing.Age())
	case errors.Is(lookupErr, domain.ErrNotFound):
		// fall through to discovery
	default:
		return Outcome{}, fmt.Errorf("reading lookup for %s: %w", req.PWSID, lookupErr)
	}

	// Keeps the stale reading visible on outcomes that could not refresh it.
	var stale *domain.Reading
	if haveExisting {
		stale = &existing
	}

	candidates, err := o.findCandidates(ctx, req)
	if err != nil {
		return Outcome{}, err
	}
	if len(candidates) == 0 {
		return Outcome{NotFound: &NotFoundReport{
			Kind:                 KindNoDocuments,
			ManualEntryAvailable: true,
		}, Stale: stale}, nil
	}

	var tried []string
	for _, c := range candidates {
		tried = append(tried, c.URL)

		text, ok := o.documentText(ctx, c.URL)
		if !ok {
			continue
		}

		reading, ok := o.extractReading(ctx, req, c, text)
		if !ok {
			continue
		}
		return o.persist(ctx, existing, haveExisting, reading)
	}

	return Outcome{NotFound: &NotFoundReport{
		Kind:                 KindNoExtractableValue,
		TriedURLs:            tried,
		ManualEntryAvailable: true,
	}, Stale: stale}, nil
}

// ManualEntry is a human-supplied reading. It is validated for feedback but
// recorded even when soft warnings fire.
type ManualEntry struct {
	PWSID       string
	UtilityName string
	AveragePPM  float64
	MinPPM      *float64
	MaxPPM      *float64
	SampleCount *int
	Notes       string
}

// RecordManual persists a manual entry with manual provenance. Hard range
// violations are rejected; warnings only reduce the stored confidence.
func (o *Orchestrator) RecordManual(ctx context.Context, entry ManualEntry) (domain.Reading, error) {
	v := domain.ValidateReading(domain.CandidateReading{
		AveragePPM:  entry.AveragePPM,
		MinPPM:      entry.MinPPM,
		MaxPPM:      entry.MaxPPM,
		SampleCount: entry.SampleCount,
	})
	if !v.Valid {
		o.metrics.ReadingsRejected.WithLabelValues("range").Inc()
		return domain.Reading{}, fmt.Errorf("manual entry for %s rejected: %s", entry.PWSID, strings.Join(v.Errors, "; "))
	}

	reading := domain.Reading{
		PWSID:       entry.PWSID,
		UtilityName: entry.UtilityName,
		AveragePPM:  entry.AveragePPM,
		MinPPM:      entry.MinPPM,
		MaxPPM:      entry.MaxPPM,
		SampleCount: entry.SampleCount,
		Confidence:  v.Confidence,
		DataSource:  domain.SourceManualEntry,
		Notes:       entry.Notes,
		ObservedAt:  domain.Now(),
	}

	stored, err := o.store.UpsertReading(ctx, reading)
	if err != nil {
		return domain.Reading{}, fmt.Errorf("store manual entry for %s: %w", entry.PWSID, err)
	}
	o.metrics.ManualEntries.Inc()
	o.logger.Info("manual reading recorded",
		"pwsid", entry.PWSID, "average_ppm", entry.AveragePPM, "warnings", len(v.Warnings))
	return stored, nil
}

// findCandidates searches for disclosure documents and keeps the ones whose
// title or URL suggests an official water-quality report.
func (o *Orchestrator) findCandidates(ctx context.Context, req Request) ([]SearchResult, error) {
	query := buildSearchQuery(req)
	results, err := o.searcher.Search(ctx, query, o.maxCandidates)
	if err != nil {
		o.metrics.SearchRequests.WithLabelValues("error").Inc()
		o.logger.Warn("document search failed", "pwsid", req.PWSID, "error", err)
		return nil, nil
	}
	if len(results) == 0 {
		o.metrics.SearchRequests.WithLabelValues("empty").Inc()
		return nil, nil
	}
	o.metrics.SearchRequests.WithLabelValues("success").Inc()

	var candidates []SearchResult
	for _, r := range results {
		if isDisclosureCandidate(r) {
			candidates = append(candidates, r)
		}
		if len(candidates) == o.maxCandidates {
			break
		}
	}
	return candidates, nil
}

// documentText renders a candidate URL to plain text. HTML goes straight to
// the scrape endpoint. Binary documents walk the extraction methods in order,
// falling back to the scrape endpoint as the last method before the URL is
// abandoned; it renders many PDFs itself.
func (o *Orchestrator) documentText(ctx context.Context, url string) (string, bool) {
	if isBinaryDocument(url) {
		for _, ex := range o.extractors {
			text, err := ex.ExtractText(ctx, url)
			if err != nil {
				o.logger.Warn("text extraction failed, trying next method", "url", url, "error", err)
				continue
			}
			if text != "" {
				return text, true
			}
		}
	}
	text, err := o.searcher.Scrape(ctx, url)
	if err != nil {
		o.logger.Warn("document rendering failed", "url", url, "error", err)
		return "", false
	}
	return text, text != ""
}

// extractReading walks the strategy list over one document and validates the
// first hit. A tuple failing range or geographic validation rejects the
// whole document.
func (o *Orchestrator) extractReading(ctx context.Context, req Request, c SearchResult, text string) (domain.Reading, bool) {
	for _, s := range o.strategies {
		start := time.Now()
		ext, ok, err := s.Extract(ctx, text)
		o.metrics.ExtractionDuration.WithLabelValues(s.Name()).Observe(time.Since(start).Seconds())
		if err != nil {
			o.metrics.ExtractionAttempts.WithLabelValues(s.Name(), "error").Inc()
			o.logger.Warn("extraction strategy failed", "strategy", s.Name(), "url", c.URL, "error", err)
			continue
		}
		if !ok {
			o.metrics.ExtractionAttempts.WithLabelValues(s.Name(), "miss").Inc()
			continue
		}
		o.metrics.ExtractionAttempts.WithLabelValues(s.Name(), "hit").Inc()

		reading, ok := o.validate(req, c, ext)
		return reading, ok
	}
	return domain.Reading{}, false
}

func (o *Orchestrator) validate(req Request, c SearchResult, ext Extraction) (domain.Reading, bool) {
	v := domain.ValidateReading(domain.CandidateReading{
		AveragePPM:  ext.AveragePPM,
		MinPPM:      ext.MinPPM,
		MaxPPM:      ext.MaxPPM,
		SampleCount: ext.SampleCount,
	})
	if !v.Valid {
		o.metrics.ReadingsRejected.WithLabelValues("range").Inc()
		o.logger.Warn("extracted reading failed range validation",
			"pwsid", req.PWSID, "url", c.URL, "errors", strings.Join(v.Errors, "; "))
		return domain.Reading{}, false
	}

	geo := domain.ValidateGeographicConsistency(req.PWSID, req.UtilityName, req.City, req.State, c.URL)
	if !geo.Consistent {
		o.metrics.ReadingsRejected.WithLabelValues("geographic").Inc()
		o.logger.Warn("extracted reading failed geographic validation",
			"pwsid", req.PWSID, "url", c.URL, "warnings", strings.Join(geo.Warnings, "; "))
		return domain.Reading{}, false
	}

	confidence := v.Confidence
	if geo.Confidence < confidence {
		confidence = geo.Confidence
	}

	notes := fmt.Sprintf("extracted from %s", c.Title)
	if ext.Notes != "" {
		notes += "; " + ext.Notes
	}

	return domain.Reading{
		PWSID:            req.PWSID,
		UtilityName:      req.UtilityName,
		AveragePPM:       ext.AveragePPM,
		MinPPM:           ext.MinPPM,
		MaxPPM:           ext.MaxPPM,
		SampleCount:      ext.SampleCount,
		EstimatedRange:   ext.EstimatedRange,
		Confidence:       confidence,
		DataSource:       domain.SourceCCR,
		SourceURL:        c.URL,
		ExtractionMethod: ext.Method,
		Notes:            notes,
		ObservedAt:       domain.Now(),
	}, true
}

// persist writes the new reading unless precedence keeps the stale one.
func (o *Orchestrator) persist(ctx context.Context, existing domain.Reading, haveExisting bool, reading domain.Reading) (Outcome, error) {
	if haveExisting {
		if replace, reason := domain.ShouldReplaceReading(existing, reading); !replace {
			o.metrics.ReadingsRejected.WithLabelValues("precedence").Inc()
			o.logger.Info("keeping existing reading", "pwsid", reading.PWSID, "reason", reason)
			return Outcome{Reading: &existing, FromCache: true}, nil
		}
	}

	stored, err := o.store.UpsertReading(ctx, reading)
	if err != nil {
		return Outcome{}, fmt.Errorf("store reading for %s: %w", reading.PWSID, err)
	}
	o.metrics.ReadingsAcquired.Inc()
	o.logger.Info("reading acquired",
		"pwsid", stored.PWSID, "average_ppm", stored.AveragePPM,
		"method", stored.ExtractionMethod, "source_url", stored.SourceURL)
	return Outcome{Reading: &stored}, nil
}

func buildSearchQuery(req Request) string {
	parts := []string{req.UtilityName}
	if req.City != "" {
		parts = append(parts, req.City)
	}
	if req.State != "" {
		parts = append(parts, req.State)
	}
	parts = append(parts, "Consumer Confidence Report CCR water quality chlorine sodium hypochlorite disinfectant residual levels")
	return strings.Join(parts, " ")
}

func isDisclosureCandidate(r SearchResult) bool {
	title := strings.ToLower(r.Title)
	url := strings.ToLower(r.URL)
	return strings.Contains(url, "ccr") ||
		strings.Contains(title, "water quality") ||
		strings.Contains(title, "consumer confidence")
}

func isBinaryDocument(url string) bool {
	return strings.Contains(strings.ToLower(url), "pdf")
}
