// Package recordlite implements backend.RecordStore on an SQLite database.
//
// Uniqueness is delegated to the schema's UNIQUE and PRIMARY KEY
// constraints; constraint violations surface as unwind.ErrConflict so a
// precheck race and a duplicate-key insert classify identically.
package recordlite

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"sort"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/voltfin/unwind"
	"github.com/voltfin/unwind/backend"
)

// Store is an SQLite-backed RecordStore.
type Store struct {
	db    *sql.DB
	idCol string
}

// New wraps an already-opened database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db, idCol: "id"}
}

// Open opens an SQLite database at dsn and wraps it. The handle is limited
// to a single connection so in-memory databases behave predictably.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, unwind.AdapterFailed("open database", err)
	}
	db.SetMaxOpenConns(1)
	return New(db), nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle, for schema setup.
func (s *Store) DB() *sql.DB {
	return s.db
}

// FindOne returns the first row of table matching every column in where.
func (s *Store) FindOne(ctx context.Context, table string, where backend.Row) (backend.Row, error) {
	if err := validIdent(table); err != nil {
		return nil, err
	}
	clause, args, err := whereClause(where)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`SELECT * FROM %q %s LIMIT 1`, table, clause)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, unwind.AdapterFailed("query "+table, err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, unwind.AdapterFailed("query "+table, err)
		}
		return nil, fmt.Errorf("%s: %w", table, unwind.ErrNotFound)
	}

	cols, err := rows.Columns()
	if err != nil {
		return nil, unwind.AdapterFailed("query "+table, err)
	}
	values := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, unwind.AdapterFailed("scan "+table, err)
	}

	row := make(backend.Row, len(cols))
	for i, col := range cols {
		if b, ok := values[i].([]byte); ok {
			row[col] = string(b)
			continue
		}
		row[col] = values[i]
	}
	return row, nil
}

// Insert adds row to table and returns it. A UNIQUE or PRIMARY KEY
// violation is reported as unwind.ErrConflict.
func (s *Store) Insert(ctx context.Context, table string, row backend.Row) (backend.Row, error) {
	if err := validIdent(table); err != nil {
		return nil, err
	}
	if len(row) == 0 {
		return nil, unwind.AdapterFailed("insert "+table, fmt.Errorf("empty row"))
	}

	cols := sortedColumns(row)
	quoted := make([]string, len(cols))
	marks := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, col := range cols {
		if err := validIdent(col); err != nil {
			return nil, err
		}
		quoted[i] = fmt.Sprintf("%q", col)
		marks[i] = "?"
		args[i] = row[col]
	}

	query := fmt.Sprintf(`INSERT INTO %q (%s) VALUES (%s)`,
		table, strings.Join(quoted, ", "), strings.Join(marks, ", "))
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%s: %w", table, unwind.ErrConflict)
		}
		return nil, unwind.AdapterFailed("insert "+table, err)
	}
	return row.Clone(), nil
}

// Update applies patch to the row of table identified by id.
func (s *Store) Update(ctx context.Context, table string, id any, patch backend.Row) error {
	if err := validIdent(table); err != nil {
		return err
	}
	if len(patch) == 0 {
		return nil
	}

	cols := sortedColumns(patch)
	sets := make([]string, len(cols))
	args := make([]any, 0, len(cols)+1)
	for i, col := range cols {
		if err := validIdent(col); err != nil {
			return err
		}
		sets[i] = fmt.Sprintf("%q = ?", col)
		args = append(args, patch[col])
	}
	args = append(args, id)

	query := fmt.Sprintf(`UPDATE %q SET %s WHERE %q = ?`, table, strings.Join(sets, ", "), s.idCol)
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return unwind.AdapterFailed("update "+table, err)
	}
	return requireAffected(res, table, id)
}

// Delete removes the row of table identified by id.
func (s *Store) Delete(ctx context.Context, table string, id any) error {
	if err := validIdent(table); err != nil {
		return err
	}
	query := fmt.Sprintf(`DELETE FROM %q WHERE %q = ?`, table, s.idCol)
	res, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return unwind.AdapterFailed("delete "+table, err)
	}
	return requireAffected(res, table, id)
}

func requireAffected(res sql.Result, table string, id any) error {
	n, err := res.RowsAffected()
	if err != nil {
		return unwind.AdapterFailed("rows affected", err)
	}
	if n == 0 {
		return fmt.Errorf("%s[%v]: %w", table, id, unwind.ErrNotFound)
	}
	return nil
}

func whereClause(where backend.Row) (string, []any, error) {
	if len(where) == 0 {
		return "", nil, nil
	}
	cols := sortedColumns(where)
	conds := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, col := range cols {
		if err := validIdent(col); err != nil {
			return "", nil, err
		}
		conds[i] = fmt.Sprintf("%q = ?", col)
		args[i] = where[col]
	}
	return "WHERE " + strings.Join(conds, " AND "), args, nil
}

func sortedColumns(row backend.Row) []string {
	cols := make([]string, 0, len(row))
	for col := range row {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	return cols
}

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func validIdent(name string) error {
	if !identPattern.MatchString(name) {
		return unwind.AdapterFailed("identifier", fmt.Errorf("invalid identifier %q", name))
	}
	return nil
}

// isUniqueViolation matches SQLite's duplicate-key messages only. Other
// constraint classes (NOT NULL, CHECK, FOREIGN KEY) are data bugs, not
// natural-key collisions, and must not classify as a conflict. Message
// matching is the accepted trade-off for a single-dialect store; the text
// is stable across modernc.org/sqlite releases.
func isUniqueViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint failed") ||
		strings.Contains(msg, "primary key constraint failed")
}
