package venue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS venues (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	address    TEXT NOT NULL DEFAULT '',
	lat        REAL NOT NULL,
	lng        REAL NOT NULL,
	radius     REAL NOT NULL,
	created_at INTEGER NOT NULL
)`

// SQLiteStore persists venues in a SQLite database.
type SQLiteStore struct {
	db            *sql.DB
	defaultRadius float64
}

// OpenSQLite opens (and if needed creates) the venue database at path.
// ":memory:" is accepted for tests.
func OpenSQLite(path string, defaultRadius float64) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	if defaultRadius <= 0 {
		defaultRadius = DefaultRadius
	}

	dsn := path
	if path != ":memory:" {
		dsn = filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and
	// serializes the read-check-insert in Create.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create venue schema: %w", err)
	}
	return &SQLiteStore{db: db, defaultRadius: defaultRadius}, nil
}

// Close closes the database handle.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Resolve implements Directory.
func (s *SQLiteStore) Resolve(ctx context.Context, id string) (Venue, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, address, lat, lng, radius FROM venues WHERE id = ?`, id)
	var v Venue
	if err := row.Scan(&v.ID, &v.Name, &v.Address, &v.Lat, &v.Lng, &v.Radius); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Venue{}, ErrNotFound
		}
		return Venue{}, fmt.Errorf("resolve venue %q: %w", id, err)
	}
	return v, nil
}

// List returns all venues in creation order.
func (s *SQLiteStore) List(ctx context.Context) ([]Venue, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, address, lat, lng, radius FROM venues ORDER BY created_at, rowid`)
	if err != nil {
		return nil, fmt.Errorf("list venues: %w", err)
	}
	defer rows.Close()

	venues := []Venue{}
	for rows.Next() {
		var v Venue
		if err := rows.Scan(&v.ID, &v.Name, &v.Address, &v.Lat, &v.Lng, &v.Radius); err != nil {
			return nil, fmt.Errorf("scan venue: %w", err)
		}
		venues = append(venues, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list venues: %w", err)
	}
	return venues, nil
}

// Create stores v under a fresh id derived from its name.
func (s *SQLiteStore) Create(ctx context.Context, v Venue) (Venue, error) {
	v, err := normalize(v, s.defaultRadius)
	if err != nil {
		return Venue{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Venue{}, fmt.Errorf("begin create venue: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var lookupErr error
	v.ID = uniqueID(Slugify(v.Name), func(id string) bool {
		var one int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM venues WHERE id = ?`, id).Scan(&one)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			lookupErr = err
			return false
		}
		return err == nil
	})
	if lookupErr != nil {
		return Venue{}, fmt.Errorf("check venue id: %w", lookupErr)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO venues (id, name, address, lat, lng, radius, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		v.ID, v.Name, v.Address, v.Lat, v.Lng, v.Radius, time.Now().UTC().UnixMilli())
	if err != nil {
		return Venue{}, fmt.Errorf("insert venue: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Venue{}, fmt.Errorf("commit venue: %w", err)
	}
	return v, nil
}

// Delete removes the venue with id.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM venues WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete venue %q: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete venue %q: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Import inserts venues that already carry an id, skipping ids that
// exist. It seeds a fresh database from a venue file.
func (s *SQLiteStore) Import(ctx context.Context, venues []Venue) (int, error) {
	imported := 0
	for _, v := range venues {
		nv, err := normalize(v, s.defaultRadius)
		if err != nil {
			return imported, fmt.Errorf("import venue %q: %w", v.ID, err)
		}
		if nv.ID == "" {
			return imported, fmt.Errorf("import venue: %w: id is required", ErrInvalid)
		}
		res, err := s.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO venues (id, name, address, lat, lng, radius, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			nv.ID, nv.Name, nv.Address, nv.Lat, nv.Lng, nv.Radius, time.Now().UTC().UnixMilli())
		if err != nil {
			return imported, fmt.Errorf("import venue %q: %w", nv.ID, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			imported++
		}
	}
	return imported, nil
}
