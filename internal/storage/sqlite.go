package storage

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"boxoffice/pkg/database"
)

// SQLite keeps every table as one CSV blob row. Commit runs in a single
// transaction, so it needs no generation layer.
type SQLite struct {
	DB *sql.DB
}

func NewSQLite(db *sql.DB) (*SQLite, error) {
	if err := database.Migrate(db); err != nil {
		return nil, err
	}
	return &SQLite{DB: db}, nil
}

func (s *SQLite) Load(ctx context.Context, name string) (Table, error) {
	return loadRow(ctx, s.DB, name)
}

func (s *SQLite) Save(ctx context.Context, name string, t Table) error {
	return s.Commit(ctx, map[string]Table{name: t})
}

func (s *SQLite) List(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT name FROM tables WHERE substr(name, 1, ?) = ? ORDER BY name`,
		len(prefix), prefix,
	)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("scan table name: %w", err)
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

func (s *SQLite) Delete(ctx context.Context, name string) error {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM tables WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("delete %s: %w", name, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("delete %s: %w", name, ErrNotFound)
	}
	return nil
}

// Commit upserts all tables and records a commits row in one transaction.
func (s *SQLite) Commit(ctx context.Context, tables map[string]Table) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO tables (name, columns, body, row_count, updated_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(name) DO UPDATE SET
		  columns = excluded.columns,
		  body = excluded.body,
		  row_count = excluded.row_count,
		  updated_at = excluded.updated_at
	`)
	if err != nil {
		return fmt.Errorf("prepare stmt: %w", err)
	}
	defer stmt.Close()

	names := sortedKeys(tables)
	for _, name := range names {
		t := tables[name]
		body, err := MarshalCSV(t)
		if err != nil {
			return fmt.Errorf("encode %s: %w", name, err)
		}
		if _, err := stmt.ExecContext(ctx, name, strings.Join(t.Columns, ","), body, len(t.Rows)); err != nil {
			return fmt.Errorf("exec upsert for %s: %w", name, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO commits (tables) VALUES (?)`, strings.Join(names, ",")); err != nil {
		return fmt.Errorf("record commit: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// LoadSet reads all names inside one transaction.
func (s *SQLite) LoadSet(ctx context.Context, names []string) (map[string]Table, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	out := make(map[string]Table, len(names))
	for _, name := range names {
		t, err := loadRow(ctx, tx, name)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out[name] = t
	}
	return out, tx.Commit()
}

// Commits returns how many commits have been recorded.
func (s *SQLite) Commits(ctx context.Context) (int, error) {
	var n int
	if err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM commits`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count commits: %w", err)
	}
	return n, nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func loadRow(ctx context.Context, q queryer, name string) (Table, error) {
	var body []byte
	err := q.QueryRowContext(ctx, `SELECT body FROM tables WHERE name = ?`, name).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return Table{}, fmt.Errorf("load %s: %w", name, ErrNotFound)
	}
	if err != nil {
		return Table{}, fmt.Errorf("load %s: %w", name, err)
	}
	return DecodeCSV(bytes.NewReader(body))
}
