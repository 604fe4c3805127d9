package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tapsafe/chlorine-data-service/internal/domain"
	"github.com/tapsafe/chlorine-data-service/internal/resolve"
)

// Store exposes the directories, mappings, and readings tables. It satisfies
// the store interfaces of the resolve, acquire, and audit packages.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// MappingsForPostalCode returns explicit zip-to-system mappings, primary
// mappings first.
func (s *Store) MappingsForPostalCode(ctx context.Context, zip string) ([]domain.PostalMapping, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT zip_code, pwsid, is_primary
		 FROM zip_code_mappings
		 WHERE zip_code = $1
		 ORDER BY is_primary DESC, pwsid`, zip)
	if err != nil {
		return nil, fmt.Errorf("query zip mappings: %w", err)
	}
	defer rows.Close()

	var mappings []domain.PostalMapping
	for rows.Next() {
		var m domain.PostalMapping
		if err := rows.Scan(&m.ZipCode, &m.PWSID, &m.IsPrimary); err != nil {
			return nil, fmt.Errorf("scan zip mapping: %w", err)
		}
		mappings = append(mappings, m)
	}
	return mappings, rows.Err()
}

// CuratedByPWSID returns one curated utility or domain.ErrNotFound.
func (s *Store) CuratedByPWSID(ctx context.Context, pwsid string) (domain.CuratedUtility, error) {
	var u domain.CuratedUtility
	err := s.pool.QueryRow(ctx,
		`SELECT pwsid, utility_name, city, state_code, zip_code, population_served,
		        ownership, system_type, is_active, notes, created_at, updated_at
		 FROM water_utilities
		 WHERE pwsid = $1`, pwsid).Scan(
		&u.PWSID, &u.Name, &u.City, &u.StateCode, &u.ZipCode, &u.PopulationServed,
		&u.Ownership, &u.SystemType, &u.IsActive, &u.Notes, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.CuratedUtility{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.CuratedUtility{}, fmt.Errorf("query curated utility %s: %w", pwsid, err)
	}
	return u, nil
}

// CuratedUtilities returns every curated utility, ordered by PWSID.
func (s *Store) CuratedUtilities(ctx context.Context) ([]domain.CuratedUtility, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT pwsid, utility_name, city, state_code, zip_code, population_served,
		        ownership, system_type, is_active, notes, created_at, updated_at
		 FROM water_utilities
		 ORDER BY pwsid`)
	if err != nil {
		return nil, fmt.Errorf("query curated utilities: %w", err)
	}
	defer rows.Close()

	var utilities []domain.CuratedUtility
	for rows.Next() {
		var u domain.CuratedUtility
		if err := rows.Scan(
			&u.PWSID, &u.Name, &u.City, &u.StateCode, &u.ZipCode, &u.PopulationServed,
			&u.Ownership, &u.SystemType, &u.IsActive, &u.Notes, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan curated utility: %w", err)
		}
		utilities = append(utilities, u)
	}
	return utilities, rows.Err()
}

// UpsertCuratedUtility inserts or refreshes a curated row by PWSID.
func (s *Store) UpsertCuratedUtility(ctx context.Context, u domain.CuratedUtility) (domain.CuratedUtility, error) {
	now := domain.Now()
	err := s.pool.QueryRow(ctx,
		`INSERT INTO water_utilities
		   (pwsid, utility_name, city, state_code, zip_code, population_served,
		    ownership, system_type, is_active, notes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)
		 ON CONFLICT (pwsid) DO UPDATE SET
		   utility_name = EXCLUDED.utility_name,
		   city = EXCLUDED.city,
		   state_code = EXCLUDED.state_code,
		   zip_code = EXCLUDED.zip_code,
		   population_served = EXCLUDED.population_served,
		   ownership = EXCLUDED.ownership,
		   system_type = EXCLUDED.system_type,
		   is_active = EXCLUDED.is_active,
		   notes = EXCLUDED.notes,
		   updated_at = EXCLUDED.updated_at
		 RETURNING pwsid, utility_name, city, state_code, zip_code, population_served,
		           ownership, system_type, is_active, notes, created_at, updated_at`,
		u.PWSID, u.Name, u.City, u.StateCode, u.ZipCode, u.PopulationServed,
		u.Ownership, u.SystemType, u.IsActive, u.Notes, now).Scan(
		&u.PWSID, &u.Name, &u.City, &u.StateCode, &u.ZipCode, &u.PopulationServed,
		&u.Ownership, &u.SystemType, &u.IsActive, &u.Notes, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return domain.CuratedUtility{}, fmt.Errorf("upsert curated utility %s: %w", u.PWSID, err)
	}
	return u, nil
}

// InsertMapping records a zip-to-system mapping. Inserting a pair that
// already exists is a no-op so seeding scripts stay idempotent.
func (s *Store) InsertMapping(ctx context.Context, m domain.PostalMapping) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO zip_code_mappings (zip_code, pwsid, is_primary)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (zip_code, pwsid) DO NOTHING`,
		m.ZipCode, m.PWSID, m.IsPrimary)
	if err != nil {
		return fmt.Errorf("insert zip mapping %s -> %s: %w", m.ZipCode, m.PWSID, err)
	}
	return nil
}

// SystemsByPostalCode searches the reference directory by exact zip code.
func (s *Store) SystemsByPostalCode(ctx context.Context, zip string, f resolve.SystemFilter) ([]domain.RegulatedSystem, error) {
	query := `SELECT pwsid, pws_name, city_name, state_code, zip_code,
	                 population_served_count, owner_type_code, pws_type_code, pws_activity_code
	          FROM water_systems
	          WHERE zip_code = $1`
	args := []any{zip}
	query, args = applyFilter(query, args, f)

	return s.querySystems(ctx, query, args)
}

// SystemsByCity searches the reference directory by city and state.
func (s *Store) SystemsByCity(ctx context.Context, city, state string, f resolve.SystemFilter) ([]domain.RegulatedSystem, error) {
	query := `SELECT pwsid, pws_name, city_name, state_code, zip_code,
	                 population_served_count, owner_type_code, pws_type_code, pws_activity_code
	          FROM water_systems
	          WHERE city_name ILIKE $1 AND state_code = $2`
	args := []any{city, state}
	query, args = applyFilter(query, args, f)

	return s.querySystems(ctx, query, args)
}

func applyFilter(query string, args []any, f resolve.SystemFilter) (string, []any) {
	if f.MinPopulation > 0 {
		args = append(args, f.MinPopulation)
		query += fmt.Sprintf(" AND population_served_count >= $%d", len(args))
	}
	if f.MunicipalOnly {
		query += " AND owner_type_code IN ('L', 'M')"
	}
	if f.CommunityOnly {
		query += " AND pws_type_code = 'CWS'"
	}
	if f.ActiveOnly {
		query += " AND pws_activity_code = 'A'"
	}
	if f.OrderByPopDesc {
		query += " ORDER BY population_served_count DESC"
	}
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}
	return query, args
}

func (s *Store) querySystems(ctx context.Context, query string, args []any) ([]domain.RegulatedSystem, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query water systems: %w", err)
	}
	defer rows.Close()

	var systems []domain.RegulatedSystem
	for rows.Next() {
		var sys domain.RegulatedSystem
		if err := rows.Scan(
			&sys.PWSID, &sys.Name, &sys.City, &sys.StateCode, &sys.ZipCode,
			&sys.PopulationServed, &sys.OwnerTypeCode, &sys.SystemTypeCode, &sys.ActivityCode); err != nil {
			return nil, fmt.Errorf("scan water system: %w", err)
		}
		systems = append(systems, sys)
	}
	return systems, rows.Err()
}

// ReadingByPWSID returns the stored reading for a system or domain.ErrNotFound.
func (s *Store) ReadingByPWSID(ctx context.Context, pwsid string) (domain.Reading, error) {
	var r domain.Reading
	err := s.pool.QueryRow(ctx,
		`SELECT pwsid, utility_name, average_ppm, min_ppm, max_ppm, sample_count,
		        estimated_range, confidence, data_source, source_url,
		        extraction_method, notes, observed_at, created_at, updated_at
		 FROM chlorine_readings
		 WHERE pwsid = $1`, pwsid).Scan(
		&r.PWSID, &r.UtilityName, &r.AveragePPM, &r.MinPPM, &r.MaxPPM, &r.SampleCount,
		&r.EstimatedRange, &r.Confidence, &r.DataSource, &r.SourceURL,
		&r.ExtractionMethod, &r.Notes, &r.ObservedAt, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Reading{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Reading{}, fmt.Errorf("query reading %s: %w", pwsid, err)
	}
	return r, nil
}

// UpsertReading writes one reading per system, last writer wins. The caller
// is responsible for precedence checks before overwriting.
func (s *Store) UpsertReading(ctx context.Context, r domain.Reading) (domain.Reading, error) {
	now := domain.Now()
	err := s.pool.QueryRow(ctx,
		`INSERT INTO chlorine_readings
		   (pwsid, utility_name, average_ppm, min_ppm, max_ppm, sample_count,
		    estimated_range, confidence, data_source, source_url,
		    extraction_method, notes, observed_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $14)
		 ON CONFLICT (pwsid) DO UPDATE SET
		   utility_name = EXCLUDED.utility_name,
		   average_ppm = EXCLUDED.average_ppm,
		   min_ppm = EXCLUDED.min_ppm,
		   max_ppm = EXCLUDED.max_ppm,
		   sample_count = EXCLUDED.sample_count,
		   estimated_range = EXCLUDED.estimated_range,
		   confidence = EXCLUDED.confidence,
		   data_source = EXCLUDED.data_source,
		   source_url = EXCLUDED.source_url,
		   extraction_method = EXCLUDED.extraction_method,
		   notes = EXCLUDED.notes,
		   observed_at = EXCLUDED.observed_at,
		   updated_at = EXCLUDED.updated_at
		 RETURNING pwsid, utility_name, average_ppm, min_ppm, max_ppm, sample_count,
		           estimated_range, confidence, data_source, source_url,
		           extraction_method, notes, observed_at, created_at, updated_at`,
		r.PWSID, r.UtilityName, r.AveragePPM, r.MinPPM, r.MaxPPM, r.SampleCount,
		r.EstimatedRange, r.Confidence, r.DataSource, r.SourceURL,
		r.ExtractionMethod, r.Notes, r.ObservedAt, now).Scan(
		&r.PWSID, &r.UtilityName, &r.AveragePPM, &r.MinPPM, &r.MaxPPM, &r.SampleCount,
		&r.EstimatedRange, &r.Confidence, &r.DataSource, &r.SourceURL,
		&r.ExtractionMethod, &r.Notes, &r.ObservedAt, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return domain.Reading{}, fmt.Errorf("upsert reading %s: %w", r.PWSID, err)
	}
	return r, nil
}

// AllReadings returns every stored reading, ordered by PWSID.
func (s *Store) AllReadings(ctx context.Context) ([]domain.Reading, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT pwsid, utility_name, average_ppm, min_ppm, max_ppm, sample_count,
		        estimated_range, confidence, data_source, source_url,
		        extraction_method, notes, observed_at, created_at, updated_at
		 FROM chlorine_readings
		 ORDER BY pwsid`)
	if err != nil {
		return nil, fmt.Errorf("query readings: %w", err)
	}
	defer rows.Close()

	var readings []domain.Reading
	for rows.Next() {
		var r domain.Reading
		if err := rows.Scan(
			&r.PWSID, &r.UtilityName, &r.AveragePPM, &r.MinPPM, &r.MaxPPM, &r.SampleCount,
			&r.EstimatedRange, &r.Confidence, &r.DataSource, &r.SourceURL,
			&r.ExtractionMethod, &r.Notes, &r.ObservedAt, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan reading: %w", err)
		}
		readings = append(readings, r)
	}
	return readings, rows.Err()
}

// DeleteReading removes the reading for a system. Deleting a missing row is
// not an error.
func (s *Store) DeleteReading(ctx context.Context, pwsid string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM chlorine_readings WHERE pwsid = $1`, pwsid)
	if err != nil {
		return fmt.Errorf("delete reading %s: %w", pwsid, err)
	}
	return nil
}
