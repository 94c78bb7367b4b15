package ledger

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const defaultSnapshotName = "default"

// SQLiteBackend stores ledger snapshots as rows of a SQLite table, one row per ledger name.
type SQLiteBackend struct {
	db   *sqlx.DB
	dsn  string
	name string
}

// snapshotRow mirrors a ledger_snapshots row.
type snapshotRow struct {
	Name      string `db:"name"`
	Body      string `db:"body"`
	UpdatedAt string `db:"updated_at"`
}

// NewSQLiteBackend opens dsn, runs migrations and returns a backend for the named ledger.
func NewSQLiteBackend(dsn, name string) (*SQLiteBackend, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("ledger.sqlite.dsn must be set for sqlite backend")
	}
	if strings.TrimSpace(name) == "" {
		name = defaultSnapshotName
	}

	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, &BackendError{Op: "open", Backend: "sqlite:" + dsn, Err: err}
	}
	// A single connection keeps ":memory:" databases alive across calls.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, &BackendError{Op: "open", Backend: "sqlite:" + dsn, Err: err}
	}
	if err := runMigrations(db.DB); err != nil {
		_ = db.Close()
		return nil, &BackendError{Op: "migrate", Backend: "sqlite:" + dsn, Err: err}
	}

	return &SQLiteBackend{db: db, dsn: dsn, name: name}, nil
}

// runMigrations applies the embedded schema migrations.
func runMigrations(db *sql.DB) error {
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// Read implements Backend.
func (b *SQLiteBackend) Read(ctx context.Context) ([]byte, error) {
	var row snapshotRow
	err := b.db.GetContext(ctx, &row, `SELECT name, body, updated_at FROM ledger_snapshots WHERE name = ?`, b.name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, &BackendError{Op: "read", Backend: b.Describe(), Err: err}
	}
	return []byte(row.Body), nil
}

// Write implements Backend.
func (b *SQLiteBackend) Write(ctx context.Context, data []byte) error {
	row := snapshotRow{
		Name:      b.name,
		Body:      string(data),
		UpdatedAt: time.Now().UTC().Format(time.RFC3339),
	}
	_, err := b.db.NamedExecContext(ctx, `
		INSERT INTO ledger_snapshots (name, body, updated_at)
		VALUES (:name, :body, :updated_at)
		ON CONFLICT(name) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at`, row)
	if err != nil {
		return &BackendError{Op: "write", Backend: b.Describe(), Err: err}
	}
	return nil
}

// Describe implements Backend.
func (b *SQLiteBackend) Describe() string {
	return fmt.Sprintf("sqlite:%s#%s", b.dsn, b.name)
}

// Close closes the database connection.
func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}
