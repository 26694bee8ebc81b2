package pgstore

import (
	"context"
	"errors"
	"fmt"
	"github.com/ValentinKolb/dSync/lib/store"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lni/dragonboat/v4/logger"
	"sort"
	"strconv"
	"strings"
)

var Logger = logger.GetLogger("store")

// Store implements store.IStore on top of a pgx connection pool
type Store struct {
	pool *pgxpool.Pool
}

// New connects to the database at url and verifies the connection.
// The pool size (pool_max_conns in url) bounds how many upserts of one flush
// tick run at the same time.
func New(ctx context.Context, url string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, store.WrapError(store.RetCUnavailable, "invalid database url", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, store.WrapError(store.RetCUnavailable, "failed to create connection pool", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, store.WrapError(store.RetCUnavailable, "failed to reach database", err)
	}
	Logger.Infof("Connected to postgres at %s:%d/%s (max %d connections)",
		cfg.ConnConfig.Host, cfg.ConnConfig.Port, cfg.ConnConfig.Database, cfg.MaxConns)
	return &Store{pool: pool}, nil
}

// Close closes every connection of the pool
func (s *Store) Close() {
	s.pool.Close()
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store.IStore)
// --------------------------------------------------------------------------

func (s *Store) FetchRow(ctx context.Context, table store.Table, key []any) (store.Fields, bool, error) {
	if err := store.CheckKey(table, key); err != nil {
		return nil, false, err
	}
	rows, err := s.pool.Query(ctx, table.Select, key...)
	if err != nil {
		return nil, false, store.WrapError(store.RetCInternalError, "select on "+table.Name+" failed", err)
	}
	row, err := pgx.CollectOneRow(rows, pgx.RowToMap)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, store.WrapError(store.RetCInternalError, "select on "+table.Name+" failed", err)
	}
	return store.Fields(row), true, nil
}

func (s *Store) Upsert(ctx context.Context, table store.Table, key []any, changes store.Fields) error {
	query, args, err := RenderUpsert(table, key, changes)
	if err != nil {
		return err
	}
	Logger.Debugf("query: %s %v", query, args)
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return store.WrapError(store.RetCInternalError, "upsert on "+table.Name+" failed", err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, table store.Table, key []any) error {
	if err := store.CheckKey(table, key); err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx, table.Delete, key...); err != nil {
		return store.WrapError(store.RetCInternalError, "delete on "+table.Name+" failed", err)
	}
	return nil
}

// --------------------------------------------------------------------------
// Statement rendering
// --------------------------------------------------------------------------

// RenderUpsert fills the four holes of the table's insert statement.
//
// The inserted columns are the key columns followed by the changed columns in
// sorted order, the updated columns are the changed columns only. Values are bound
// as $n parameters, column names are quoted identifiers. Changed columns which are
// key columns are ignored. Without any changed column the key columns are updated
// to themselves, so the statement still creates a missing row.
func RenderUpsert(table store.Table, key []any, changes store.Fields) (string, []any, error) {
	if err := table.Validate(); err != nil {
		return "", nil, err
	}
	if err := store.CheckKey(table, key); err != nil {
		return "", nil, err
	}

	isKey := make(map[string]bool, len(table.KeyColumns))
	for _, c := range table.KeyColumns {
		isKey[c] = true
	}
	changed := make([]string, 0, len(changes))
	for c := range changes {
		if !isKey[c] {
			changed = append(changed, c)
		}
	}
	sort.Strings(changed)

	args := make([]any, 0, len(key)+len(changed))
	columns := make([]string, 0, len(key)+len(changed))
	values := make([]string, 0, len(key)+len(changed))
	for i, c := range table.KeyColumns {
		args = append(args, key[i])
		columns = append(columns, quote(c))
		values = append(values, "$"+strconv.Itoa(len(args)))
	}
	keyColumns, keyValues := columns[:len(key)], values[:len(key)]

	for _, c := range changed {
		args = append(args, changes[c])
		columns = append(columns, quote(c))
		values = append(values, "$"+strconv.Itoa(len(args)))
	}

	updateColumns, updateValues := columns[len(key):], values[len(key):]
	if len(changed) == 0 {
		updateColumns, updateValues = keyColumns, keyValues
	}

	holes := []string{
		strings.Join(columns, ", "),
		strings.Join(values, ", "),
		strings.Join(updateColumns, ", "),
		strings.Join(updateValues, ", "),
	}
	parts := strings.Split(table.Insert, "{}")
	var sb strings.Builder
	for i, part := range parts {
		sb.WriteString(part)
		if i < len(holes) {
			sb.WriteString(holes[i])
		}
	}
	return sb.String(), args, nil
}

func quote(column string) string {
	return pgx.Identifier{column}.Sanitize()
}

// String returns a short description for logging
func (s *Store) String() string {
	stat := s.pool.Stat()
	return fmt.Sprintf("postgres (%d/%d connections in use)", stat.AcquiredConns(), stat.MaxConns())
}
