// File path: internal/source/sqlite.go
package source

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

const previewRows = 10

// SQLiteExecutor runs sqlite sources in-process instead of round-tripping
// through the sidecar. Connections are opened read-only per call; sources
// are processed one at a time so no pool is kept.
type SQLiteExecutor struct{}

// NewSQLiteExecutor returns the in-process sqlite executor.
func NewSQLiteExecutor() *SQLiteExecutor {
	return &SQLiteExecutor{}
}

func (e *SQLiteExecutor) open(src Source) (*sqlx.DB, error) {
	path := strings.TrimSpace(src.StringOption("path"))
	if path == "" {
		return nil, fmt.Errorf("sqlite source %s: path required", src.Name)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve sqlite path: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?mode=ro&_pragma=busy_timeout(5000)", abs)
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", src.Name, err)
	}
	return db, nil
}

// Introspect reads the table catalog of a sqlite database: table names from
// sqlite_master, columns from PRAGMA table_info, row counts, and preview
// rows. SQLite has a single schema, reported as "main".
func (e *SQLiteExecutor) Introspect(ctx context.Context, src Source) (*Introspection, error) {
	db, err := e.open(src)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	var names []string
	const listTables = `SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`
	if err := db.SelectContext(ctx, &names, listTables); err != nil {
		return nil, fmt.Errorf("list tables for %s: %w", src.Name, err)
	}

	schema := Schema{Name: "main"}
	for _, name := range names {
		table, err := e.describeTable(ctx, db, name)
		if err != nil {
			schema.Tables = append(schema.Tables, Table{
				Name:     name,
				Columns:  []Column{},
				RowCount: -1,
				Preview:  []map[string]interface{}{},
				Error:    err.Error(),
			})
			continue
		}
		schema.Tables = append(schema.Tables, table)
	}
	if len(schema.Tables) == 0 {
		return &Introspection{Schemas: []Schema{}}, nil
	}
	return &Introspection{Schemas: []Schema{schema}}, nil
}

func (e *SQLiteExecutor) describeTable(ctx context.Context, db *sqlx.DB, name string) (Table, error) {
	type pragmaColumn struct {
		CID     int     `db:"cid"`
		Name    string  `db:"name"`
		Type    string  `db:"type"`
		NotNull int     `db:"notnull"`
		Default *string `db:"dflt_value"`
		PK      int     `db:"pk"`
	}
	var pragma []pragmaColumn
	if err := db.SelectContext(ctx, &pragma, fmt.Sprintf(`PRAGMA table_info(%q)`, name)); err != nil {
		return Table{}, fmt.Errorf("describe table %s: %w", name, err)
	}
	columns := make([]Column, 0, len(pragma))
	for _, col := range pragma {
		columns = append(columns, Column{Name: col.Name, Type: col.Type, Nullable: col.NotNull == 0})
	}

	var rowCount int64
	if err := db.GetContext(ctx, &rowCount, fmt.Sprintf(`SELECT COUNT(*) FROM %q`, name)); err != nil {
		rowCount = -1
	}

	preview := []map[string]interface{}{}
	result, err := e.runQuery(ctx, db, fmt.Sprintf(`SELECT * FROM %q LIMIT %d`, name, previewRows))
	if err == nil {
		preview = result.Rows
	}

	return Table{
		Name:        name,
		Columns:     columns,
		RowCount:    rowCount,
		ColumnCount: len(columns),
		Preview:     preview,
	}, nil
}

// Query executes SQL against a sqlite source, preserving select-list column
// order in the result.
func (e *SQLiteExecutor) Query(ctx context.Context, src Source, sql string) (*Result, error) {
	db, err := e.open(src)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	result, err := e.runQuery(ctx, db, sql)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", src.Name, err)
	}
	return result, nil
}

func (e *SQLiteExecutor) runQuery(ctx context.Context, db *sqlx.DB, sql string) (*Result, error) {
	rows, err := db.QueryxContext(ctx, sql)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	result := &Result{Columns: columns, Rows: []map[string]interface{}{}}
	for rows.Next() {
		row := make(map[string]interface{}, len(columns))
		if err := rows.MapScan(row); err != nil {
			return nil, err
		}
		for key, value := range row {
			if raw, ok := value.([]byte); ok {
				row[key] = string(raw)
			}
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
