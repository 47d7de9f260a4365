package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/john-huang-121/D3-globe/internal/airports"
	"github.com/john-huang-121/D3-globe/pkg/logger"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when an airport key is not in the catalog
var ErrNotFound = errors.New("airport not found")

// AirportCatalog is an in-memory SQLite index over the loaded airport list.
// It backs the lookup endpoints; the renderer keeps its own ordered slice.
type AirportCatalog struct {
	db     *sql.DB
	logger *logger.Logger
}

// NewAirportCatalog opens the catalog database
func NewAirportCatalog(dsn string, log *logger.Logger) (*AirportCatalog, error) {
	catalogLogger := log.Named("sqlite")

	catalogLogger.Info("Initializing airport catalog", logger.String("dsn", dsn))

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// An in-memory database lives as long as one connection holds it
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if err := initDatabase(db, catalogLogger); err != nil {
		db.Close()
		return nil, err
	}

	return &AirportCatalog{db: db, logger: catalogLogger}, nil
}

// Close closes the database connection
func (c *AirportCatalog) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// initDatabase initializes the database schema
func initDatabase(db *sql.DB, log *logger.Logger) error {
	log.Debug("Initializing database schema")

	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS airports (
			key TEXT PRIMARY KEY,
			seq INTEGER NOT NULL,
			id TEXT,
			name TEXT,
			type TEXT,
			lat REAL NOT NULL,
			lon REAL NOT NULL,
			declination REAL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create airports table: %w", err)
	}

	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_airports_name ON airports(name)`); err != nil {
		return fmt.Errorf("failed to create name index: %w", err)
	}
	return nil
}

// SetAirports replaces the whole catalog with list. Later duplicates of a key are ignored.
func (c *AirportCatalog) SetAirports(ctx context.Context, list []airports.Airport) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM airports`); err != nil {
		return fmt.Errorf("failed to clear airports: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO airports (key, seq, id, name, type, lat, lon, declination)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, a := range list {
		if _, err := stmt.ExecContext(ctx, a.Key(), i, a.ID, a.Name, a.Type, a.Lat, a.Lon, a.Declination); err != nil {
			return fmt.Errorf("failed to insert airport %s: %w", a.Key(), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit airports: %w", err)
	}

	c.logger.Info("Airport catalog updated", logger.Int("count", len(list)))
	return nil
}

// Get returns the airport with the given marker key
func (c *AirportCatalog) Get(ctx context.Context, key string) (*airports.Airport, error) {
	row := c.db.QueryRowContext(ctx, `
		SELECT id, name, type, lat, lon, declination FROM airports WHERE key = ?
	`, key)

	var a airports.Airport
	var id, name, kind sql.NullString
	var declination sql.NullFloat64
	if err := row.Scan(&id, &name, &kind, &a.Lat, &a.Lon, &declination); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to query airport: %w", err)
	}
	a.ID, a.Name, a.Type, a.Declination = id.String, name.String, kind.String, declination.Float64
	return &a, nil
}

// Search returns airports whose key or name contains query, in list order
func (c *AirportCatalog) Search(ctx context.Context, query string, limit int) ([]airports.Airport, error) {
	if limit <= 0 {
		limit = 50
	}
	pattern := "%" + escapeLike(strings.TrimSpace(query)) + "%"

	rows, err := c.db.QueryContext(ctx, `
		SELECT id, name, type, lat, lon, declination FROM airports
		WHERE key LIKE ? ESCAPE '\' OR name LIKE ? ESCAPE '\'
		ORDER BY seq
		LIMIT ?
	`, pattern, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search airports: %w", err)
	}
	defer rows.Close()

	result := make([]airports.Airport, 0)
	for rows.Next() {
		var a airports.Airport
		var id, name, kind sql.NullString
		var declination sql.NullFloat64
		if err := rows.Scan(&id, &name, &kind, &a.Lat, &a.Lon, &declination); err != nil {
			return nil, fmt.Errorf("failed to scan airport: %w", err)
		}
		a.ID, a.Name, a.Type, a.Declination = id.String, name.String, kind.String, declination.Float64
		result = append(result, a)
	}
	return result, rows.Err()
}

// Count returns the number of airports in the catalog
func (c *AirportCatalog) Count(ctx context.Context) (int, error) {
	var n int
	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM airports`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count airports: %w", err)
	}
	return n, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
