package database

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/jgoulah/homeenergy/pkg/models"
)

// DB wraps the database connection
type DB struct {
	conn   *sql.DB
	driver string
}

// New opens a sqlite or postgres database and initializes the schema
func New(driver, dsn string) (*DB, error) {
	switch driver {
	case "sqlite", "postgres":
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	conn, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if driver == "sqlite" {
		// one writer at a time; avoids SQLITE_BUSY under concurrent imports
		conn.SetMaxOpenConns(1)
	}

	db := &DB{conn: conn, driver: driver}
	if err := db.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}

	return db, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping checks the connection
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// initSchema creates the necessary tables
func (db *DB) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS readings (
		id TEXT PRIMARY KEY,
		household_id TEXT NOT NULL,
		appliance_type TEXT NOT NULL,
		energy_kwh DOUBLE PRECISION NOT NULL,
		date TEXT NOT NULL,
		season TEXT,
		household_size INTEGER,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_readings_household_date ON readings(household_id, date);
	CREATE INDEX IF NOT EXISTS idx_readings_date ON readings(date);
	`

	_, err := db.conn.Exec(schema)
	return err
}

// rebind rewrites ? placeholders as $1, $2, ... for postgres
func (db *DB) rebind(query string) string {
	if db.driver != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// InsertReadings stores readings in one transaction, skipping ids that
// already exist. It returns the number of rows actually inserted.
func (db *DB) InsertReadings(ctx context.Context, readings []models.Reading) (int, error) {
	if len(readings) == 0 {
		return 0, nil
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, db.rebind(`
	INSERT INTO readings (id, household_id, appliance_type, energy_kwh, date, season, household_size, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO NOTHING
	`))
	if err != nil {
		return 0, fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	createdAt := time.Now().UTC().Format(time.RFC3339)
	inserted := 0
	for _, r := range readings {
		var season sql.NullString
		if r.Season != "" {
			season = sql.NullString{String: r.Season, Valid: true}
		}
		var size sql.NullInt64
		if r.HouseholdSize != nil {
			size = sql.NullInt64{Int64: int64(*r.HouseholdSize), Valid: true}
		}

		res, err := stmt.ExecContext(ctx, r.ID, r.HouseholdID, r.ApplianceType, r.EnergyKWh,
			r.Date.Format(models.DateLayout), season, size, createdAt)
		if err != nil {
			return 0, fmt.Errorf("inserting reading %s: %w", r.ID, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += int(n)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing readings: %w", err)
	}
	return inserted, nil
}

// Readings returns the readings matching filter, ordered by household then date
func (db *DB) Readings(ctx context.Context, filter models.ReadingFilter) ([]models.Reading, error) {
	query := `
	SELECT id, household_id, appliance_type, energy_kwh, date, season, household_size
	FROM readings
	WHERE 1=1`
	var args []any

	if filter.HouseholdID != "" {
		query += " AND household_id = ?"
		args = append(args, filter.HouseholdID)
	}
	// ISO dates compare correctly as text
	if filter.Start != nil {
		query += " AND date >= ?"
		args = append(args, filter.Start.Format(models.DateLayout))
	}
	if filter.End != nil {
		query += " AND date <= ?"
		args = append(args, filter.End.Format(models.DateLayout))
	}
	query += " ORDER BY household_id, date, appliance_type"

	rows, err := db.conn.QueryContext(ctx, db.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("querying readings: %w", err)
	}
	defer rows.Close()

	results := []models.Reading{}
	for rows.Next() {
		var r models.Reading
		var dateStr string
		var season sql.NullString
		var size sql.NullInt64

		if err := rows.Scan(&r.ID, &r.HouseholdID, &r.ApplianceType, &r.EnergyKWh, &dateStr, &season, &size); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}

		r.Date, err = models.ParseDate(dateStr)
		if err != nil {
			return nil, fmt.Errorf("parsing date: %w", err)
		}
		r.Season = season.String
		if size.Valid {
			n := int(size.Int64)
			r.HouseholdSize = &n
		}

		results = append(results, r)
	}

	return results, rows.Err()
}

// Households returns every distinct household id in ascending order
func (db *DB) Households(ctx context.Context) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT DISTINCT household_id FROM readings ORDER BY household_id`)
	if err != nil {
		return nil, fmt.Errorf("querying households: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Count returns the number of stored readings
func (db *DB) Count(ctx context.Context) (int, error) {
	var n int
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM readings`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting readings: %w", err)
	}
	return n, nil
}
