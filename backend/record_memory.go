package backend

import (
	"context"
	"fmt"
	"sync"

	"github.com/voltfin/unwind"
)

// MemRecordStore is an in-memory RecordStore. It enforces the unique
// columns declared per table, surfacing collisions as unwind.ErrConflict
// exactly like a relational store's duplicate-key constraint would.
type MemRecordStore struct {
	mu     sync.RWMutex
	tables map[string][]Row
	unique map[string][]string
	idCol  string
}

// NewMemRecordStore creates an empty store. unique maps a table name to the
// columns that must be unique within it; the "id" column is always unique.
func NewMemRecordStore(unique map[string][]string) *MemRecordStore {
	if unique == nil {
		unique = map[string][]string{}
	}
	return &MemRecordStore{
		tables: make(map[string][]Row),
		unique: unique,
		idCol:  "id",
	}
}

// FindOne returns the first row matching every column of where.
func (s *MemRecordStore) FindOne(ctx context.Context, table string, where Row) (Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, row := range s.tables[table] {
		if rowMatches(row, where) {
			return row.Clone(), nil
		}
	}
	return nil, fmt.Errorf("%s: %w", table, unwind.ErrNotFound)
}

// Insert appends row to table after checking the table's unique columns.
func (s *MemRecordStore) Insert(ctx context.Context, table string, row Row) (Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cols := append([]string{s.idCol}, s.unique[table]...)
	for _, col := range cols {
		val, ok := row[col]
		if !ok {
			continue
		}
		for _, existing := range s.tables[table] {
			if existing[col] == val {
				return nil, fmt.Errorf("%s.%s=%v: %w", table, col, val, unwind.ErrConflict)
			}
		}
	}

	stored := row.Clone()
	s.tables[table] = append(s.tables[table], stored)
	return stored.Clone(), nil
}

// Update applies patch to the row identified by id.
func (s *MemRecordStore) Update(ctx context.Context, table string, id any, patch Row) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, row := range s.tables[table] {
		if row[s.idCol] == id {
			for k, v := range patch {
				row[k] = v
			}
			return nil
		}
	}
	return fmt.Errorf("%s[%v]: %w", table, id, unwind.ErrNotFound)
}

// Delete removes the row identified by id.
func (s *MemRecordStore) Delete(ctx context.Context, table string, id any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rows := s.tables[table]
	for i, row := range rows {
		if row[s.idCol] == id {
			s.tables[table] = append(rows[:i:i], rows[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%s[%v]: %w", table, id, unwind.ErrNotFound)
}

// Count reports the number of rows in table.
func (s *MemRecordStore) Count(table string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tables[table])
}

func rowMatches(row, where Row) bool {
	for k, v := range where {
		if row[k] != v {
			return false
		}
	}
	return true
}
