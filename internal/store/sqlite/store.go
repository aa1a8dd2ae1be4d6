// Package sqlite provides the SQLite-backed durable temperature cache.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/i474232898/temperature-history/internal/store/sqlite/migrations"
	"github.com/i474232898/temperature-history/internal/temperature"
)

// Store persists daily temperature records and per-city coverage metadata in
// SQLite. It implements temperature.Cache.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens the cache database and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One writer at a time; SQLite serializes writes anyway, and a single
	// pooled connection keeps concurrent transactions from tripping over
	// SQLITE_BUSY.
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// DailyRecords returns cached records for the city in [start, end], inclusive,
// ordered by date. Unknown cities yield an empty result.
func (s *Store) DailyRecords(ctx context.Context, location string, start, end time.Time) ([]temperature.DailyRecord, error) {
	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT td.record_date, td.max_temperature_c, td.min_temperature_c, td.provider_id
		 FROM temperature_data td
		 JOIN cities c ON c.city_id = td.city_id
		 WHERE c.city_name = ? AND td.record_date >= ? AND td.record_date <= ?
		 ORDER BY td.record_date`,
		location,
		start.UTC().Format(temperature.DateLayout),
		end.UTC().Format(temperature.DateLayout),
	)
	if err != nil {
		return nil, fmt.Errorf("read daily records: %w", err)
	}
	defer rows.Close()

	var records []temperature.DailyRecord
	for rows.Next() {
		var day string
		var record temperature.DailyRecord
		if err := rows.Scan(&day, &record.MaxTemperatureC, &record.MinTemperatureC, &record.ProviderID); err != nil {
			return nil, fmt.Errorf("read daily records: %w", err)
		}
		record.Date, err = time.ParseInLocation(temperature.DateLayout, day, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("parse stored date %q: %w", day, err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read daily records: %w", err)
	}

	return records, nil
}

// StoreDailyRecords persists records for the city, creating the city row on
// first use. Already-stored (date, provider) pairs are skipped via one bulk
// key read; the city upsert, the insert of new rows, and the metadata refresh
// run in a single transaction.
func (s *Store) StoreDailyRecords(ctx context.Context, location string, lat, lon float64, records []temperature.DailyRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin store transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	cityID, err := findOrCreateCity(ctx, tx, location, lat, lon)
	if err != nil {
		return err
	}

	existing, err := existingKeys(ctx, tx, cityID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	for _, record := range records {
		key := record.Key()
		if _, ok := existing[key]; ok {
			continue
		}

		// INSERT OR IGNORE keeps a concurrent writer's duplicate benign: the
		// unique (city, date, provider) index is the final arbiter.
		if _, err := tx.ExecContext(
			ctx,
			`INSERT OR IGNORE INTO temperature_data
			 (city_id, record_date, max_temperature_c, min_temperature_c, provider_id, created_utc)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			cityID,
			key.Date,
			record.MaxTemperatureC,
			record.MinTemperatureC,
			record.ProviderID,
			toMillis(now),
		); err != nil {
			return fmt.Errorf("insert record %s: %w", key.Date, err)
		}
		existing[key] = struct{}{}
	}

	if err := refreshMetadata(ctx, tx, cityID); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit store transaction: %w", err)
	}
	return nil
}

// CityMetadata returns the coverage summary for the city, or
// temperature.ErrNotFound when the city has never been stored.
func (s *Store) CityMetadata(ctx context.Context, location string) (temperature.CityMetadata, error) {
	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT city_id, city_name, latitude, longitude,
		        oldest_data_date, newest_data_date,
		        min_temperature_c, max_temperature_c, last_updated_utc
		 FROM cities WHERE city_name = ?`,
		location,
	)

	var meta temperature.CityMetadata
	var oldest, newest sql.NullString
	var minTemp, maxTemp sql.NullFloat64
	var lastUpdated int64
	err := row.Scan(
		&meta.CityID,
		&meta.CityName,
		&meta.Latitude,
		&meta.Longitude,
		&oldest,
		&newest,
		&minTemp,
		&maxTemp,
		&lastUpdated,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return temperature.CityMetadata{}, fmt.Errorf("%w: %q", temperature.ErrNotFound, location)
		}
		return temperature.CityMetadata{}, fmt.Errorf("read city metadata: %w", err)
	}

	meta.LastUpdatedUTC = fromMillis(lastUpdated)
	if oldest.Valid {
		if d, err := time.ParseInLocation(temperature.DateLayout, oldest.String, time.UTC); err == nil {
			meta.OldestDate = &d
		}
	}
	if newest.Valid {
		if d, err := time.ParseInLocation(temperature.DateLayout, newest.String, time.UTC); err == nil {
			meta.NewestDate = &d
		}
	}
	if minTemp.Valid {
		v := minTemp.Float64
		meta.MinTemperatureC = &v
	}
	if maxTemp.Valid {
		v := maxTemp.Float64
		meta.MaxTemperatureC = &v
	}

	return meta, nil
}

// findOrCreateCity resolves the city row for (name, lat, lon), creating it on
// first use. A concurrent creator losing the unique-index race falls back to a
// lookup instead of failing.
func findOrCreateCity(ctx context.Context, tx *sql.Tx, name string, lat, lon float64) (int64, error) {
	id, err := lookupCity(ctx, tx, name, lat, lon)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("lookup city %q: %w", name, err)
	}

	res, err := tx.ExecContext(
		ctx,
		`INSERT INTO cities (city_name, latitude, longitude, last_updated_utc) VALUES (?, ?, ?, ?)`,
		name, lat, lon, toMillis(time.Now()),
	)
	if err != nil {
		if isUniqueViolation(err) {
			id, err := lookupCity(ctx, tx, name, lat, lon)
			if err != nil {
				return 0, fmt.Errorf("lookup city %q after conflict: %w", name, err)
			}
			return id, nil
		}
		return 0, fmt.Errorf("create city %q: %w", name, err)
	}

	return res.LastInsertId()
}

func lookupCity(ctx context.Context, tx *sql.Tx, name string, lat, lon float64) (int64, error) {
	var id int64
	row := tx.QueryRowContext(
		ctx,
		`SELECT city_id FROM cities WHERE city_name = ? AND latitude = ? AND longitude = ?`,
		name, lat, lon,
	)
	if err := row.Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

// existingKeys loads every stored (date, provider) pair for the city in one
// query, so deduplication is a set lookup instead of a round-trip per record.
func existingKeys(ctx context.Context, tx *sql.Tx, cityID int64) (map[temperature.RecordKey]struct{}, error) {
	rows, err := tx.QueryContext(
		ctx,
		`SELECT record_date, provider_id FROM temperature_data WHERE city_id = ?`,
		cityID,
	)
	if err != nil {
		return nil, fmt.Errorf("read existing keys: %w", err)
	}
	defer rows.Close()

	keys := make(map[temperature.RecordKey]struct{})
	for rows.Next() {
		var key temperature.RecordKey
		if err := rows.Scan(&key.Date, &key.ProviderID); err != nil {
			return nil, fmt.Errorf("read existing keys: %w", err)
		}
		keys[key] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read existing keys: %w", err)
	}

	return keys, nil
}

// refreshMetadata recomputes the city's date range and temperature extremes
// from its stored records. A city with no records keeps NULL metadata.
func refreshMetadata(ctx context.Context, tx *sql.Tx, cityID int64) error {
	row := tx.QueryRowContext(
		ctx,
		`SELECT COUNT(*), MIN(record_date), MAX(record_date),
		        MIN(min_temperature_c), MAX(max_temperature_c)
		 FROM temperature_data WHERE city_id = ?`,
		cityID,
	)

	var count int64
	var oldest, newest sql.NullString
	var minTemp, maxTemp sql.NullFloat64
	if err := row.Scan(&count, &oldest, &newest, &minTemp, &maxTemp); err != nil {
		return fmt.Errorf("aggregate city %d: %w", cityID, err)
	}

	now := toMillis(time.Now())
	if count == 0 {
		_, err := tx.ExecContext(
			ctx,
			`UPDATE cities
			 SET oldest_data_date = NULL, newest_data_date = NULL,
			     min_temperature_c = NULL, max_temperature_c = NULL,
			     last_updated_utc = ?
			 WHERE city_id = ?`,
			now, cityID,
		)
		if err != nil {
			return fmt.Errorf("refresh metadata for city %d: %w", cityID, err)
		}
		return nil
	}

	_, err := tx.ExecContext(
		ctx,
		`UPDATE cities
		 SET oldest_data_date = ?, newest_data_date = ?,
		     min_temperature_c = ?, max_temperature_c = ?,
		     last_updated_utc = ?
		 WHERE city_id = ?`,
		oldest.String, newest.String, minTemp.Float64, maxTemp.Float64, now, cityID,
	)
	if err != nil {
		return fmt.Errorf("refresh metadata for city %d: %w", cityID, err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

var _ temperature.Cache = (*Store)(nil)
