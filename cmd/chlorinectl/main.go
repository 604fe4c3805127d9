// chlorinectl is the maintenance CLI: curated-directory seeding, postal
// mappings, bulk acquisition, and audit scans/cleanups against the same
// database the service uses.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/tapsafe/chlorine-data-service/internal/acquire"
	"github.com/tapsafe/chlorine-data-service/internal/adapter/docextract"
	"github.com/tapsafe/chlorine-data-service/internal/adapter/postgres"
	"github.com/tapsafe/chlorine-data-service/internal/adapter/websearch"
	"github.com/tapsafe/chlorine-data-service/internal/audit"
	"github.com/tapsafe/chlorine-data-service/internal/config"
	"github.com/tapsafe/chlorine-data-service/internal/domain"
	"github.com/tapsafe/chlorine-data-service/internal/observability"
)

func main() {
	root := &cobra.Command{
		Use:           "chlorinectl",
		Short:         "Maintenance tooling for the chlorine data service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newSeedUtilityCmd())
	root.AddCommand(newMapZipCmd())
	root.AddCommand(newBulkAcquireCmd())
	root.AddCommand(newAuditCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// env holds the shared wiring every command needs.
type env struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *observability.Metrics
	pool    *pgxpool.Pool
	store   *postgres.Store
}

func setup(ctx context.Context) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := observability.NewLogger(cfg)
	// CLI runs are short-lived; nothing scrapes these counters.
	metrics := observability.NewMetricsForTesting()

	pool, err := postgres.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	return &env{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
		pool:    pool,
		store:   postgres.NewStore(pool),
	}, nil
}

func (e *env) close() {
	e.pool.Close()
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func newSeedUtilityCmd() *cobra.Command {
	var (
		name       string
		city       string
		state      string
		zip        string
		population int
		ownership  string
		systemType string
		inactive   bool
		notes      string
	)
	cmd := &cobra.Command{
		Use:   "seed-utility <pwsid>",
		Short: "Insert or update a curated utility row",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			e, err := setup(ctx)
			if err != nil {
				return err
			}
			defer e.close()

			stored, err := e.store.UpsertCuratedUtility(ctx, domain.CuratedUtility{
				PWSID:            strings.ToUpper(args[0]),
				Name:             name,
				City:             city,
				StateCode:        strings.ToUpper(state),
				ZipCode:          zip,
				PopulationServed: population,
				Ownership:        domain.Ownership(ownership),
				SystemType:       domain.SystemType(systemType),
				IsActive:         !inactive,
				Notes:            notes,
			})
			if err != nil {
				return fmt.Errorf("seed utility: %w", err)
			}
			fmt.Printf("seeded %s (%s, %s %s)\n", stored.PWSID, stored.Name, stored.City, stored.StateCode)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&name, "name", "", "Utility name (required)")
	f.StringVar(&city, "city", "", "City served")
	f.StringVar(&state, "state", "", "Two-letter state code (required)")
	f.StringVar(&zip, "zip", "", "Primary zip code")
	f.IntVar(&population, "population", 0, "Population served")
	f.StringVar(&ownership, "ownership", string(domain.OwnershipMunicipal), "Ownership: municipal, private, or other")
	f.StringVar(&systemType, "system-type", string(domain.SystemTypeCommunity), "System type: community or other")
	f.BoolVar(&inactive, "inactive", false, "Mark the utility inactive")
	f.StringVar(&notes, "notes", "", "Curation notes")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("state")

	return cmd
}

func newMapZipCmd() *cobra.Command {
	var primary bool
	cmd := &cobra.Command{
		Use:   "map-zip <zip> <pwsid>",
		Short: "Associate a zip code with a water system",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			e, err := setup(ctx)
			if err != nil {
				return err
			}
			defer e.close()

			m := domain.PostalMapping{
				ZipCode:   args[0],
				PWSID:     strings.ToUpper(args[1]),
				IsPrimary: primary,
			}
			if err := e.store.InsertMapping(ctx, m); err != nil {
				return fmt.Errorf("map zip: %w", err)
			}
			fmt.Printf("mapped %s -> %s (primary=%v)\n", m.ZipCode, m.PWSID, m.IsPrimary)
			return nil
		},
	}
	cmd.Flags().BoolVar(&primary, "primary", false, "Mark this mapping as the primary system for the zip")
	return cmd
}

func newBulkAcquireCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bulk-acquire",
		Short: "Run the acquisition chain for every curated utility",
		Long: "Iterates the curated directory sequentially, acquiring a reading for each " +
			"utility. Per-utility failures are reported and skipped; the command exits " +
			"non-zero only when the directory itself cannot be read.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			e, err := setup(ctx)
			if err != nil {
				return err
			}
			defer e.close()

			orchestrator := buildOrchestrator(e)
			utilities, err := e.store.CuratedUtilities(ctx)
			if err != nil {
				return fmt.Errorf("load curated utilities: %w", err)
			}
			if len(utilities) == 0 {
				fmt.Println("no curated utilities to acquire for")
				return nil
			}

			var acquired, cached, notFound, failed int
			for _, u := range utilities {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				outcome, err := orchestrator.Acquire(ctx, acquire.Request{
					PWSID:       u.PWSID,
					UtilityName: u.Name,
					City:        u.City,
					State:       u.StateCode,
				})
				switch {
				case err != nil:
					failed++
					fmt.Printf("%-12s %-40s FAILED: %v\n", u.PWSID, u.Name, err)
				case outcome.NotFound != nil:
					notFound++
					fmt.Printf("%-12s %-40s not found (%s, %d urls tried)\n",
						u.PWSID, u.Name, outcome.NotFound.Kind, len(outcome.NotFound.TriedURLs))
				case outcome.FromCache:
					cached++
					fmt.Printf("%-12s %-40s cached %.2f ppm (confidence %d)\n",
						u.PWSID, u.Name, outcome.Reading.AveragePPM, outcome.Reading.Confidence)
				default:
					acquired++
					fmt.Printf("%-12s %-40s acquired %.2f ppm (confidence %d, %s)\n",
						u.PWSID, u.Name, outcome.Reading.AveragePPM, outcome.Reading.Confidence,
						outcome.Reading.ExtractionMethod)
				}
			}

			fmt.Printf("\n%d utilities: %d acquired, %d cached, %d not found, %d failed\n",
				len(utilities), acquired, cached, notFound, failed)
			return nil
		},
	}
	return cmd
}

func buildOrchestrator(e *env) *acquire.Orchestrator {
	searcher := websearch.NewClient(e.cfg.SearchAPIKey, e.cfg.SearchBaseURL, e.cfg.SearchTimeout, e.logger)
	extractor := docextract.NewClient(e.cfg.ExtractBaseURL, e.cfg.ExtractTimeout, e.logger)

	var strategies []acquire.Extractor
	if e.cfg.LLMEnabled {
		strategies = append(strategies, docextract.NewLLMExtractor(e.cfg.AnthropicAPIKey, e.cfg.LLMModel, e.logger))
	}
	strategies = append(strategies,
		acquire.NewLabeledAverageExtractor(),
		acquire.NewLabeledValueExtractor(),
		acquire.NewCompoundNameExtractor(),
		acquire.NewRangeMeanExtractor(),
	)

	return acquire.New(e.store, searcher, []acquire.TextExtractor{extractor}, strategies, e.logger, e.metrics, acquire.Options{
		MaxCandidateDocs: e.cfg.MaxCandidateDocs,
		MaxReadingAge:    e.cfg.MaxReadingAge,
	})
}

func newAuditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Scan stored readings for contamination and clean up confirmed bad rows",
	}
	cmd.AddCommand(newAuditScanCmd())
	cmd.AddCommand(newAuditCleanupCmd())
	return cmd
}

func newAuditScanCmd() *cobra.Command {
	var (
		pattern         string
		autoCleanupOnly bool
	)
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Report suspected contamination across stored readings",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			e, err := setup(ctx)
			if err != nil {
				return err
			}
			defer e.close()

			auditor := audit.New(e.store, nil, e.logger, e.metrics)
			report, err := auditor.Scan(ctx, audit.ScanOptions{
				Pattern:         pattern,
				AutoCleanupOnly: autoCleanupOnly,
			})
			if err != nil {
				return fmt.Errorf("audit scan: %w", err)
			}
			return printJSON(report)
		},
	}
	cmd.Flags().StringVar(&pattern, "pattern", "", "Restrict the scan to patterns whose name contains this substring")
	cmd.Flags().BoolVar(&autoCleanupOnly, "auto-cleanup-only", false, "Scan only patterns eligible for automatic cleanup")
	return cmd
}

func newAuditCleanupCmd() *cobra.Command {
	var (
		pattern  string
		pwsids   []string
		noDryRun bool
		override bool
	)
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete readings matching a contamination pattern (dry run by default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if pattern == "" && len(pwsids) == 0 {
				return fmt.Errorf("either --pattern or --pwsid is required")
			}

			ctx, stop := signalContext()
			defer stop()

			e, err := setup(ctx)
			if err != nil {
				return err
			}
			defer e.close()

			auditor := audit.New(e.store, nil, e.logger, e.metrics)
			result, err := auditor.Cleanup(ctx, audit.CleanupRequest{
				Pattern:  pattern,
				PWSIDs:   pwsids,
				DryRun:   !noDryRun,
				Override: override,
			})
			if err != nil {
				return fmt.Errorf("audit cleanup: %w", err)
			}
			return printJSON(result)
		},
	}
	cmd.Flags().StringVar(&pattern, "pattern", "", "Contamination pattern name (substring match)")
	cmd.Flags().StringArrayVar(&pwsids, "pwsid", nil, "Specific PWSID to delete (may be repeated)")
	cmd.Flags().BoolVar(&noDryRun, "no-dry-run", false, "Actually delete matching readings")
	cmd.Flags().BoolVar(&override, "override", false, "Permit cleanup of patterns not flagged auto-cleanup-safe")
	return cmd
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
