package memstore

import (
	"context"
	"fmt"
	"github.com/ValentinKolb/dSync/lib/store"
	"sync"
)

// Store keeps the rows of every table in process memory
type Store struct {
	mu     sync.RWMutex
	tables map[string]map[string]store.Fields
}

// NewMemoryStore creates a new, empty memory store.
// This store implementation is not shared between processes. Nodes only observe
// each other's writes when they run in the same process and share the instance.
func NewMemoryStore() *Store {
	return &Store{
		tables: make(map[string]map[string]store.Fields),
	}
}

// rowKey renders the key parts as map key
func rowKey(key []any) string {
	return fmt.Sprint(key...)
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store.IStore)
// --------------------------------------------------------------------------

func (s *Store) FetchRow(ctx context.Context, table store.Table, key []any) (store.Fields, bool, error) {
	if err := store.CheckKey(table, key); err != nil {
		return nil, false, err
	}
	if err := ctx.Err(); err != nil {
		return nil, false, store.WrapError(store.RetCUnavailable, "fetch cancelled", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.tables[table.Name][rowKey(key)]
	if !ok {
		return nil, false, nil
	}
	return row.Clone(), true, nil
}

func (s *Store) Upsert(ctx context.Context, table store.Table, key []any, changes store.Fields) error {
	if err := store.CheckKey(table, key); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return store.WrapError(store.RetCUnavailable, "upsert cancelled", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	rows, ok := s.tables[table.Name]
	if !ok {
		rows = make(map[string]store.Fields)
		s.tables[table.Name] = rows
	}

	k := rowKey(key)
	row, ok := rows[k]
	if !ok {
		row = make(store.Fields, len(key)+len(changes))
		for i, c := range table.KeyColumns {
			row[c] = key[i]
		}
		rows[k] = row
	}
	for c, v := range changes {
		row[c] = v
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, table store.Table, key []any) error {
	if err := store.CheckKey(table, key); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return store.WrapError(store.RetCUnavailable, "delete cancelled", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tables[table.Name], rowKey(key))
	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// Len returns the number of rows of a table
func (s *Store) Len(table string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tables[table])
}
