// Package sqlite provides a SQLite-backed content repository.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/dreamware/lectern/internal/content"
	"github.com/dreamware/lectern/internal/content/sqlite/migrations"
)

const migrationTable = "schema_migrations"

// Store implements content.Repository on a SQLite database.
type Store struct {
	sqlDB *sql.DB
}

var _ content.Repository = (*Store)(nil)

// Open opens a SQLite content store and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := "file:" + cleanPath + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
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

// ImportCatalog validates cat and replaces the stored catalog with it in one
// transaction.
func (s *Store) ImportCatalog(ctx context.Context, cat content.Catalog) error {
	resolved, err := cat.Resolve()
	if err != nil {
		return fmt.Errorf("validate catalog: %w", err)
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin import: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range []string{"bani_lines", "banis", "lines", "shabads"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	for _, sh := range resolved.Shabads {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO shabads (id, order_id, source) VALUES (?, ?, ?)",
			sh.ID, sh.OrderID, sh.Source,
		); err != nil {
			return fmt.Errorf("insert shabad %s: %w", sh.ID, err)
		}
		for _, l := range sh.Lines {
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO lines (id, shabad_id, order_id, text) VALUES (?, ?, ?, ?)",
				l.ID, sh.ID, l.OrderID, l.Text,
			); err != nil {
				return fmt.Errorf("insert line %s: %w", l.ID, err)
			}
		}
	}

	for _, b := range resolved.Banis {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO banis (id, name) VALUES (?, ?)", b.ID, b.Name,
		); err != nil {
			return fmt.Errorf("insert bani %s: %w", b.ID, err)
		}
		for pos, l := range b.Lines {
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO bani_lines (bani_id, position, line_id, order_id, text, shabad_id) VALUES (?, ?, ?, ?, ?, ?)",
				b.ID, pos, l.ID, l.OrderID, l.Text, l.ShabadID,
			); err != nil {
				return fmt.Errorf("insert bani %s line %s: %w", b.ID, l.ID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit import: %w", err)
	}
	return nil
}

// ShabadByID returns the shabad with the given id.
func (s *Store) ShabadByID(ctx context.Context, id string) (content.Shabad, error) {
	return s.shabadWhere(ctx, "id = ?", id)
}

// ShabadByOrderID returns the shabad at the given ordinal.
func (s *Store) ShabadByOrderID(ctx context.Context, orderID int) (content.Shabad, error) {
	return s.shabadWhere(ctx, "order_id = ?", orderID)
}

func (s *Store) shabadWhere(ctx context.Context, cond string, arg any) (content.Shabad, error) {
	if err := ctx.Err(); err != nil {
		return content.Shabad{}, err
	}
	if s == nil || s.sqlDB == nil {
		return content.Shabad{}, fmt.Errorf("storage is not configured")
	}

	var sh content.Shabad
	row := s.sqlDB.QueryRowContext(ctx, "SELECT id, order_id, source FROM shabads WHERE "+cond, arg)
	if err := row.Scan(&sh.ID, &sh.OrderID, &sh.Source); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return content.Shabad{}, content.ErrNotFound
		}
		return content.Shabad{}, fmt.Errorf("query shabad: %w", err)
	}

	rows, err := s.sqlDB.QueryContext(ctx,
		"SELECT id, order_id, text FROM lines WHERE shabad_id = ? ORDER BY order_id", sh.ID)
	if err != nil {
		return content.Shabad{}, fmt.Errorf("query lines: %w", err)
	}
	defer rows.Close()

	sh.Lines = []content.Line{}
	for rows.Next() {
		var l content.Line
		if err := rows.Scan(&l.ID, &l.OrderID, &l.Text); err != nil {
			return content.Shabad{}, fmt.Errorf("scan line: %w", err)
		}
		sh.Lines = append(sh.Lines, l)
	}
	if err := rows.Err(); err != nil {
		return content.Shabad{}, fmt.Errorf("iterate lines: %w", err)
	}
	return sh, nil
}

// BaniLines returns the bani's lines in reading order.
func (s *Store) BaniLines(ctx context.Context, id string) ([]content.Line, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var exists int
	if err := s.sqlDB.QueryRowContext(ctx, "SELECT 1 FROM banis WHERE id = ?", id).Scan(&exists); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, content.ErrNotFound
		}
		return nil, fmt.Errorf("query bani: %w", err)
	}

	rows, err := s.sqlDB.QueryContext(ctx,
		"SELECT line_id, order_id, text, shabad_id FROM bani_lines WHERE bani_id = ? ORDER BY position", id)
	if err != nil {
		return nil, fmt.Errorf("query bani lines: %w", err)
	}
	defer rows.Close()

	lines := []content.Line{}
	for rows.Next() {
		var l content.Line
		if err := rows.Scan(&l.ID, &l.OrderID, &l.Text, &l.ShabadID); err != nil {
			return nil, fmt.Errorf("scan bani line: %w", err)
		}
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bani lines: %w", err)
	}
	return lines, nil
}

// ShabadOrderRange returns the inclusive ordinal range of stored shabads.
func (s *Store) ShabadOrderRange(ctx context.Context) (int, int, error) {
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}

	var min, max sql.NullInt64
	if err := s.sqlDB.QueryRowContext(ctx, "SELECT MIN(order_id), MAX(order_id) FROM shabads").Scan(&min, &max); err != nil {
		return 0, 0, fmt.Errorf("query order range: %w", err)
	}
	if !min.Valid || !max.Valid {
		return 0, 0, content.ErrEmptyCatalog
	}
	return int(min.Int64), int(max.Int64), nil
}

// applyMigrations executes embedded migrations at most once per file.
func applyMigrations(sqlDB *sql.DB, migrationFS fs.FS) error {
	entries, err := fs.ReadDir(migrationFS, ".")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	var sqlFiles []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			sqlFiles = append(sqlFiles, entry.Name())
		}
	}
	sort.Strings(sqlFiles)

	if _, err := sqlDB.Exec(fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
    name TEXT PRIMARY KEY,
    applied_at INTEGER NOT NULL
);`, migrationTable)); err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}

	for _, file := range sqlFiles {
		var applied int
		err := sqlDB.QueryRow(
			fmt.Sprintf("SELECT COUNT(1) FROM %s WHERE name = ?", migrationTable), file,
		).Scan(&applied)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", file, err)
		}
		if applied > 0 {
			continue
		}

		raw, err := fs.ReadFile(migrationFS, file)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", file, err)
		}
		upSQL := extractUpMigration(string(raw))
		if strings.TrimSpace(upSQL) == "" {
			continue
		}

		tx, err := sqlDB.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %s: %w", file, err)
		}
		if _, err := tx.Exec(upSQL); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("exec migration %s: %w", file, err)
		}
		if _, err := tx.Exec(
			fmt.Sprintf("INSERT INTO %s (name, applied_at) VALUES (?, ?)", migrationTable),
			file, time.Now().UTC().UnixMilli(),
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %s: %w", file, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", file, err)
		}
	}
	return nil
}

// extractUpMigration returns the SQL in the -- +migrate Up section.
func extractUpMigration(raw string) string {
	const up, down = "-- +migrate Up", "-- +migrate Down"
	upIdx := strings.Index(raw, up)
	if upIdx == -1 {
		return raw
	}
	body := raw[upIdx+len(up):]
	if downIdx := strings.Index(body, down); downIdx != -1 {
		body = body[:downIdx]
	}
	return body
}
