package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/tapsafe/chlorine-data-service/internal/acquire"
	"github.com/tapsafe/chlorine-data-service/internal/audit"
	"github.com/tapsafe/chlorine-data-service/internal/domain"
)

var zipRe = regexp.MustCompile(`^\d{5}$`)

func (s *Server) handleResolveUtilities(w http.ResponseWriter, r *http.Request) {
	zip := r.URL.Query().Get("zip")
	if !zipRe.MatchString(zip) {
		writeError(w, http.StatusBadRequest, "zip must be a 5-digit postal code")
		return
	}

	utilities, err := s.resolver.Resolve(r.Context(), zip)
	if err != nil {
		s.logger.Error("resolve failed", "zip", zip, "error", err)
		writeError(w, http.StatusInternalServerError, "resolution failed")
		return
	}

	out := make([]utilityJSON, 0, len(utilities))
	for _, u := range utilities {
		out = append(out, toUtilityJSON(u))
	}
	writeJSON(w, http.StatusOK, resolveResponse{Zip: zip, Utilities: out})
}

func (s *Server) handleAcquireReading(w http.ResponseWriter, r *http.Request) {
	var req acquireRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.PWSID == "" || req.UtilityName == "" || req.State == "" {
		writeError(w, http.StatusBadRequest, "pwsid, utility_name, and state are required")
		return
	}

	outcome, err := s.acquirer.Acquire(r.Context(), acquire.Request{
		PWSID:       req.PWSID,
		UtilityName: req.UtilityName,
		City:        req.City,
		State:       strings.ToUpper(req.State),
	})
	if err != nil {
		s.logger.Error("acquisition failed", "pwsid", req.PWSID, "error", err)
		writeError(w, http.StatusInternalServerError, "acquisition failed")
		return
	}

	if outcome.NotFound != nil {
		resp := acquireResponse{NotFound: outcome.NotFound}
		if outcome.Stale != nil {
			stale := toReadingJSON(*outcome.Stale)
			resp.Stale = &stale
		}
		writeJSON(w, http.StatusNotFound, resp)
		return
	}
	reading := toReadingJSON(*outcome.Reading)
	writeJSON(w, http.StatusOK, acquireResponse{
		Reading:   &reading,
		FromCache: outcome.FromCache,
	})
}

func (s *Server) handleManualEntry(w http.ResponseWriter, r *http.Request) {
	var req manualEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.PWSID == "" || req.UtilityName == "" {
		writeError(w, http.StatusBadRequest, "pwsid and utility_name are required")
		return
	}

	stored, err := s.acquirer.RecordManual(r.Context(), acquire.ManualEntry{
		PWSID:       req.PWSID,
		UtilityName: req.UtilityName,
		AveragePPM:  req.AveragePPM,
		MinPPM:      req.MinPPM,
		MaxPPM:      req.MaxPPM,
		SampleCount: req.SampleCount,
		Notes:       req.Notes,
	})
	if err != nil {
		if strings.Contains(err.Error(), "rejected") {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		s.logger.Error("manual entry failed", "pwsid", req.PWSID, "error", err)
		writeError(w, http.StatusInternalServerError, "manual entry failed")
		return
	}
	writeJSON(w, http.StatusCreated, toReadingJSON(stored))
}

func (s *Server) handleAuditScan(w http.ResponseWriter, r *http.Request) {
	opts := audit.ScanOptions{
		Pattern:         r.URL.Query().Get("pattern"),
		AutoCleanupOnly: r.URL.Query().Get("auto_cleanup_only") == "true",
	}

	report, err := s.auditor.Scan(r.Context(), opts)
	if err != nil {
		s.logger.Error("audit scan failed", "error", err)
		writeError(w, http.StatusInternalServerError, "audit scan failed")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleAuditCleanup(w http.ResponseWriter, r *http.Request) {
	var req cleanupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Pattern == "" && len(req.PWSIDs) == 0 {
		writeError(w, http.StatusBadRequest, "pattern or pwsids is required")
		return
	}

	// Mutation is opt-in: an absent dry_run means dry run.
	dryRun := true
	if req.DryRun != nil {
		dryRun = *req.DryRun
	}

	result, err := s.auditor.Cleanup(r.Context(), audit.CleanupRequest{
		Pattern:  req.Pattern,
		PWSIDs:   req.PWSIDs,
		DryRun:   dryRun,
		Override: req.Override,
	})
	if err != nil {
		if errors.Is(err, audit.ErrCleanupNotPermitted) {
			writeError(w, http.StatusForbidden, err.Error())
			return
		}
		s.logger.Error("audit cleanup failed", "error", err)
		writeError(w, http.StatusInternalServerError, "audit cleanup failed")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Request and response shapes. Domain types stay transport-agnostic; JSON
// tags live here.

type resolveResponse struct {
	Zip       string        `json:"zip"`
	Utilities []utilityJSON `json:"utilities"`
}

type utilityJSON struct {
	Source           string `json:"source"`
	PWSID            string `json:"pwsid"`
	Name             string `json:"name"`
	City             string `json:"city,omitempty"`
	StateCode        string `json:"state_code"`
	ZipCode          string `json:"zip_code,omitempty"`
	PopulationServed int    `json:"population_served,omitempty"`
	Ownership        string `json:"ownership"`
	SystemType       string `json:"system_type"`
}

func toUtilityJSON(u domain.Utility) utilityJSON {
	return utilityJSON{
		Source:           string(u.Source),
		PWSID:            u.PWSID,
		Name:             u.Name,
		City:             u.City,
		StateCode:        u.StateCode,
		ZipCode:          u.ZipCode,
		PopulationServed: u.PopulationServed,
		Ownership:        string(u.Ownership),
		SystemType:       string(u.SystemType),
	}
}

type acquireRequest struct {
	PWSID       string `json:"pwsid"`
	UtilityName string `json:"utility_name"`
	City        string `json:"city"`
	State       string `json:"state"`
}

type acquireResponse struct {
	Reading   *readingJSON            `json:"reading,omitempty"`
	FromCache bool                    `json:"from_cache,omitempty"`
	NotFound  *acquire.NotFoundReport `json:"not_found,omitempty"`
	Stale     *readingJSON            `json:"stale_reading,omitempty"`
}

type manualEntryRequest struct {
	PWSID       string   `json:"pwsid"`
	UtilityName string   `json:"utility_name"`
	AveragePPM  float64  `json:"average_ppm"`
	MinPPM      *float64 `json:"min_ppm"`
	MaxPPM      *float64 `json:"max_ppm"`
	SampleCount *int     `json:"sample_count"`
	Notes       string   `json:"notes"`
}

type cleanupRequest struct {
	Pattern  string   `json:"pattern"`
	PWSIDs   []string `json:"pwsids"`
	DryRun   *bool    `json:"dry_run"`
	Override bool     `json:"override"`
}

type readingJSON struct {
	PWSID            string    `json:"pwsid"`
	UtilityName      string    `json:"utility_name"`
	AveragePPM       float64   `json:"average_ppm"`
	MinPPM           *float64  `json:"min_ppm,omitempty"`
	MaxPPM           *float64  `json:"max_ppm,omitempty"`
	SampleCount      *int      `json:"sample_count,omitempty"`
	EstimatedRange   bool      `json:"estimated_range,omitempty"`
	Confidence       int       `json:"confidence"`
	DataSource       string    `json:"data_source"`
	SourceURL        string    `json:"source_url,omitempty"`
	ExtractionMethod string    `json:"extraction_method,omitempty"`
	Notes            string    `json:"notes,omitempty"`
	ObservedAt       time.Time `json:"observed_at"`
	UpdatedAt        time.Time `json:"updated_at,omitempty"`
}

func toReadingJSON(r domain.Reading) readingJSON {
	return readingJSON{
		PWSID:            r.PWSID,
		UtilityName:      r.UtilityName,
		AveragePPM:       r.AveragePPM,
		MinPPM:           r.MinPPM,
		MaxPPM:           r.MaxPPM,
		SampleCount:      r.SampleCount,
		EstimatedRange:   r.EstimatedRange,
		Confidence:       r.Confidence,
		DataSource:       r.DataSource,
		SourceURL:        r.SourceURL,
		ExtractionMethod: r.ExtractionMethod,
		Notes:            r.Notes,
		ObservedAt:       r.ObservedAt,
		UpdatedAt:        r.UpdatedAt,
	}
}
