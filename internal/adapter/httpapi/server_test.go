package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tapsafe/chlorine-data-service/internal/acquire"
	"github.com/tapsafe/chlorine-data-service/internal/audit"
	"github.com/tapsafe/chlorine-data-service/internal/domain"
)

type fakeResolver struct {
	utilities []domain.Utility
	err       error
	gotZip    string
}

func (f *fakeResolver) Resolve(_ context.Context, zip string) ([]domain.Utility, error) {
	f.gotZip = zip
	return f.utilities, f.err
}

type fakeAcquirer struct {
	outcome   acquire.Outcome
	acquErr   error
	stored    domain.Reading
	manualErr error
	gotReq    acquire.Request
	gotEntry  acquire.ManualEntry
}

func (f *fakeAcquirer) Acquire(_ context.Context, req acquire.Request) (acquire.Outcome, error) {
	f.gotReq = req
	return f.outcome, f.acquErr
}

func (f *fakeAcquirer) RecordManual(_ context.Context, entry acquire.ManualEntry) (domain.Reading, error) {
	f.gotEntry = entry
	return f.stored, f.manualErr
}

type fakeAuditor struct {
	report     audit.Report
	scanErr    error
	result     audit.CleanupResult
	cleanupErr error
	gotScan    audit.ScanOptions
	gotCleanup audit.CleanupRequest
}

func (f *fakeAuditor) Scan(_ context.Context, opts audit.ScanOptions) (audit.Report, error) {
	f.gotScan = opts
	return f.report, f.scanErr
}

func (f *fakeAuditor) Cleanup(_ context.Context, req audit.CleanupRequest) (audit.CleanupResult, error) {
	f.gotCleanup = req
	return f.result, f.cleanupErr
}

type fakePinger struct {
	err error
}

func (f *fakePinger) Ping(_ context.Context) error { return f.err }

func newTestServer(resolver *fakeResolver, acquirer *fakeAcquirer, auditor *fakeAuditor, pinger *fakePinger) *Server {
	if resolver == nil {
		resolver = &fakeResolver{}
	}
	if acquirer == nil {
		acquirer = &fakeAcquirer{}
	}
	if auditor == nil {
		auditor = &fakeAuditor{}
	}
	if pinger == nil {
		pinger = &fakePinger{}
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewServer(":0", resolver, acquirer, auditor, pinger, logger)
}

func doRequest(t *testing.T, s *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, target, nil)
	} else {
		r = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	w := httptest.NewRecorder()
	s.ServeHTTP(w, r)
	return w
}

func TestHandleResolveUtilities(t *testing.T) {
	t.Run("returns normalized candidates", func(t *testing.T) {
		resolver := &fakeResolver{utilities: []domain.Utility{
			{
				Source:           domain.SourceCurated,
				PWSID:            "TN0000125",
				Name:             "City of Franklin Water",
				City:             "Franklin",
				StateCode:        "TN",
				PopulationServed: 85000,
				Ownership:        domain.OwnershipMunicipal,
				SystemType:       domain.SystemTypeCommunity,
				Active:           true,
			},
		}}
		s := newTestServer(resolver, nil, nil, nil)

		w := doRequest(t, s, http.MethodGet, "/api/utilities?zip=37064", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "37064", resolver.gotZip)

		var resp resolveResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.Len(t, resp.Utilities, 1)
		assert.Equal(t, "TN0000125", resp.Utilities[0].PWSID)
		assert.Equal(t, "curated", resp.Utilities[0].Source)
	})

	t.Run("rejects malformed zip", func(t *testing.T) {
		s := newTestServer(nil, nil, nil, nil)
		for _, zip := range []string{"", "1234", "123456", "abcde"} {
			w := doRequest(t, s, http.MethodGet, "/api/utilities?zip="+zip, "")
			assert.Equal(t, http.StatusBadRequest, w.Code, "zip %q", zip)
		}
	})

	t.Run("resolver failure maps to 500", func(t *testing.T) {
		resolver := &fakeResolver{err: errors.New("db down")}
		s := newTestServer(resolver, nil, nil, nil)

		w := doRequest(t, s, http.MethodGet, "/api/utilities?zip=37064", "")
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})

	t.Run("no candidates is an empty list, not an error", func(t *testing.T) {
		s := newTestServer(&fakeResolver{}, nil, nil, nil)

		w := doRequest(t, s, http.MethodGet, "/api/utilities?zip=99999", "")
		require.Equal(t, http.StatusOK, w.Code)

		var resp resolveResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Empty(t, resp.Utilities)
	})
}

func TestHandleAcquireReading(t *testing.T) {
	reading := domain.Reading{
		PWSID:       "TN0000125",
		UtilityName: "City of Franklin Water",
		AveragePPM:  0.84,
		Confidence:  85,
		DataSource:  domain.SourceCCR,
		ObservedAt:  time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
	}

	t.Run("fresh reading", func(t *testing.T) {
		acquirer := &fakeAcquirer{outcome: acquire.Outcome{Reading: &reading}}
		s := newTestServer(nil, acquirer, nil, nil)

		w := doRequest(t, s, http.MethodPost, "/api/readings/acquire",
			`{"pwsid":"TN0000125","utility_name":"City of Franklin Water","city":"Franklin","state":"tn"}`)
		require.Equal(t, http.StatusOK, w.Code)

		assert.Equal(t, "TN", acquirer.gotReq.State)

		var resp acquireResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.NotNil(t, resp.Reading)
		assert.Equal(t, 0.84, resp.Reading.AveragePPM)
		assert.False(t, resp.FromCache)
	})

	t.Run("cached reading flagged", func(t *testing.T) {
		acquirer := &fakeAcquirer{outcome: acquire.Outcome{Reading: &reading, FromCache: true}}
		s := newTestServer(nil, acquirer, nil, nil)

		w := doRequest(t, s, http.MethodPost, "/api/readings/acquire",
			`{"pwsid":"TN0000125","utility_name":"City of Franklin Water","state":"TN"}`)
		require.Equal(t, http.StatusOK, w.Code)

		var resp acquireResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.True(t, resp.FromCache)
	})

	t.Run("not found maps to 404 with report", func(t *testing.T) {
		acquirer := &fakeAcquirer{outcome: acquire.Outcome{NotFound: &acquire.NotFoundReport{
			Kind:                 acquire.KindNoExtractableValue,
			TriedURLs:            []string{"https://example.com/ccr.pdf"},
			ManualEntryAvailable: true,
		}}}
		s := newTestServer(nil, acquirer, nil, nil)

		w := doRequest(t, s, http.MethodPost, "/api/readings/acquire",
			`{"pwsid":"TN0000125","utility_name":"City of Franklin Water","state":"TN"}`)
		require.Equal(t, http.StatusNotFound, w.Code)

		var resp acquireResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.NotNil(t, resp.NotFound)
		assert.Equal(t, acquire.KindNoExtractableValue, resp.NotFound.Kind)
		assert.True(t, resp.NotFound.ManualEntryAvailable)
		assert.Nil(t, resp.Stale)
	})

	t.Run("stale reading carried alongside the report", func(t *testing.T) {
		acquirer := &fakeAcquirer{outcome: acquire.Outcome{
			NotFound: &acquire.NotFoundReport{
				Kind:                 acquire.KindNoDocuments,
				ManualEntryAvailable: true,
			},
			Stale: &reading,
		}}
		s := newTestServer(nil, acquirer, nil, nil)

		w := doRequest(t, s, http.MethodPost, "/api/readings/acquire",
			`{"pwsid":"TN0000125","utility_name":"City of Franklin Water","state":"TN"}`)
		require.Equal(t, http.StatusNotFound, w.Code)

		var resp acquireResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.NotNil(t, resp.NotFound)
		require.NotNil(t, resp.Stale)
		assert.Equal(t, 0.84, resp.Stale.AveragePPM)
	})

	t.Run("missing fields rejected", func(t *testing.T) {
		s := newTestServer(nil, nil, nil, nil)
		w := doRequest(t, s, http.MethodPost, "/api/readings/acquire", `{"pwsid":"TN0000125"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("invalid body rejected", func(t *testing.T) {
		s := newTestServer(nil, nil, nil, nil)
		w := doRequest(t, s, http.MethodPost, "/api/readings/acquire", "{not json")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestHandleManualEntry(t *testing.T) {
	t.Run("stores and returns 201", func(t *testing.T) {
		acquirer := &fakeAcquirer{stored: domain.Reading{
			PWSID:      "TN0000125",
			AveragePPM: 1.2,
			Confidence: 90,
			DataSource: domain.SourceManualEntry,
		}}
		s := newTestServer(nil, acquirer, nil, nil)

		w := doRequest(t, s, http.MethodPost, "/api/readings/manual",
			`{"pwsid":"TN0000125","utility_name":"City of Franklin Water","average_ppm":1.2,"sample_count":24}`)
		require.Equal(t, http.StatusCreated, w.Code)

		assert.Equal(t, 1.2, acquirer.gotEntry.AveragePPM)
		require.NotNil(t, acquirer.gotEntry.SampleCount)
		assert.Equal(t, 24, *acquirer.gotEntry.SampleCount)

		var resp readingJSON
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, domain.SourceManualEntry, resp.DataSource)
	})

	t.Run("validation rejection maps to 422", func(t *testing.T) {
		acquirer := &fakeAcquirer{manualErr: errors.New("manual entry for TN0000125 rejected: exceeds EPA maximum")}
		s := newTestServer(nil, acquirer, nil, nil)

		w := doRequest(t, s, http.MethodPost, "/api/readings/manual",
			`{"pwsid":"TN0000125","utility_name":"City of Franklin Water","average_ppm":5.5}`)
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	})

	t.Run("store failure maps to 500", func(t *testing.T) {
		acquirer := &fakeAcquirer{manualErr: errors.New("store manual entry for TN0000125: timeout")}
		s := newTestServer(nil, acquirer, nil, nil)

		w := doRequest(t, s, http.MethodPost, "/api/readings/manual",
			`{"pwsid":"TN0000125","utility_name":"City of Franklin Water","average_ppm":1.2}`)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}

func TestHandleAuditScan(t *testing.T) {
	auditor := &fakeAuditor{report: audit.Report{
		Findings: []audit.Finding{{
			PWSID:       "TN0000125",
			PatternName: "Franklin Michigan Contamination",
			Severity:    audit.SeverityCritical,
			AutoCleanup: true,
		}},
		Summary: audit.Summary{TotalReadings: 10, TotalFindings: 1, CriticalFindings: 1},
	}}
	s := newTestServer(nil, nil, auditor, nil)

	w := doRequest(t, s, http.MethodGet, "/api/audit/scan?pattern=franklin&auto_cleanup_only=true", "")
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, "franklin", auditor.gotScan.Pattern)
	assert.True(t, auditor.gotScan.AutoCleanupOnly)

	var resp audit.Report
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Findings, 1)
	assert.Equal(t, audit.SeverityCritical, resp.Findings[0].Severity)
}

func TestHandleAuditCleanup(t *testing.T) {
	t.Run("defaults to dry run", func(t *testing.T) {
		auditor := &fakeAuditor{result: audit.CleanupResult{DryRun: true}}
		s := newTestServer(nil, nil, auditor, nil)

		w := doRequest(t, s, http.MethodPost, "/api/audit/cleanup", `{"pattern":"franklin"}`)
		require.Equal(t, http.StatusOK, w.Code)
		assert.True(t, auditor.gotCleanup.DryRun)
	})

	t.Run("explicit dry_run false is honored", func(t *testing.T) {
		auditor := &fakeAuditor{}
		s := newTestServer(nil, nil, auditor, nil)

		w := doRequest(t, s, http.MethodPost, "/api/audit/cleanup", `{"pattern":"franklin","dry_run":false}`)
		require.Equal(t, http.StatusOK, w.Code)
		assert.False(t, auditor.gotCleanup.DryRun)
	})

	t.Run("gating refusal maps to 403", func(t *testing.T) {
		auditor := &fakeAuditor{cleanupErr: audit.ErrCleanupNotPermitted}
		s := newTestServer(nil, nil, auditor, nil)

		w := doRequest(t, s, http.MethodPost, "/api/audit/cleanup", `{"pattern":"nashville","dry_run":false}`)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("missing selector rejected", func(t *testing.T) {
		s := newTestServer(nil, nil, nil, nil)
		w := doRequest(t, s, http.MethodPost, "/api/audit/cleanup", `{"dry_run":true}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("explicit pwsid list forwarded", func(t *testing.T) {
		auditor := &fakeAuditor{}
		s := newTestServer(nil, nil, auditor, nil)

		w := doRequest(t, s, http.MethodPost, "/api/audit/cleanup", `{"pwsids":["MI0000125","MI0000126"],"dry_run":true}`)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, []string{"MI0000125", "MI0000126"}, auditor.gotCleanup.PWSIDs)
	})
}

func TestHealthEndpoints(t *testing.T) {
	t.Run("healthz always healthy", func(t *testing.T) {
		s := newTestServer(nil, nil, nil, nil)
		w := doRequest(t, s, http.MethodGet, "/healthz", "")
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("readyz reflects store ping", func(t *testing.T) {
		s := newTestServer(nil, nil, nil, &fakePinger{})
		w := doRequest(t, s, http.MethodGet, "/readyz", "")
		assert.Equal(t, http.StatusOK, w.Code)

		s = newTestServer(nil, nil, nil, &fakePinger{err: errors.New("pool exhausted")})
		w = doRequest(t, s, http.MethodGet, "/readyz", "")
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})
}
