package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// --------------------------------------------------------------------------
// Table Definition
// --------------------------------------------------------------------------

// Fields is one row of a table, keyed by column name.
type Fields map[string]any

// Clone returns a shallow copy of the fields.
func (f Fields) Clone() Fields {
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Table describes one logical entity table and the statement shapes used to access it.
//
// Select and Delete bind the key parts to $1..$n in the order of KeyColumns.
// Insert is an upsert statement with four {} holes, filled in this order with
// the inserted columns, their values, the updated columns and their values, e.g.
//
//	INSERT INTO guilds({}) VALUES({}) ON CONFLICT (guild_id) DO UPDATE SET ({}) = ROW({})
type Table struct {
	Name       string
	KeyColumns []string
	Select     string
	Insert     string
	Delete     string
}

// InsertHoles is the number of {} placeholders an Insert statement must contain
const InsertHoles = 4

// Validate checks that the table can be used by a store.
func (t Table) Validate() error {
	switch {
	case t.Name == "":
		return NewError(RetCInvalidTable, "table has no name")
	case len(t.KeyColumns) == 0:
		return NewError(RetCInvalidTable, fmt.Sprintf("table %s has no key columns", t.Name))
	case t.Select == "" || t.Insert == "" || t.Delete == "":
		return NewError(RetCInvalidTable, fmt.Sprintf("table %s is missing a statement", t.Name))
	case strings.Count(t.Insert, "{}") != InsertHoles:
		return NewError(RetCInvalidTable, fmt.Sprintf("insert statement of table %s must contain %d {} holes", t.Name, InsertHoles))
	}
	return nil
}

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// IStore is the relational backing store the table cache sits in front of.
// key always holds one value per key column of the table, in order.
type IStore interface {
	// FetchRow returns the row with the given key. The boolean indicates whether a row exists.
	FetchRow(ctx context.Context, table Table, key []any) (row Fields, found bool, err error)
	// Upsert inserts the row or updates the given columns of the existing row.
	// Columns not in changes are left untouched.
	Upsert(ctx context.Context, table Table, key []any, changes Fields) (err error)
	// Delete removes the row. Deleting a missing row is not an error.
	Delete(ctx context.Context, table Table, key []any) (err error)
}

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error is a backing store failure. It wraps a return code (of type RetCode),
// a message and the underlying driver error, if any.
type Error struct {
	Code RetCode // The return code
	Msg  string  // The error message
	Err  error   // The cause
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("store error (%s): %s: %v", e.Code, e.Msg, e.Err)
	}
	return fmt.Sprintf("store error (%s): %s", e.Code, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a new store error with the given code and message.
func NewError(code RetCode, msg string) *Error {
	return &Error{
		Code: code,
		Msg:  msg,
	}
}

// WrapError creates a new store error for a failed driver call.
func WrapError(code RetCode, msg string, err error) *Error {
	return &Error{
		Code: code,
		Msg:  msg,
		Err:  err,
	}
}

// CodeOf returns the return code of err, RetCSuccess for nil
// and RetCInternalError for errors not raised by a store.
func CodeOf(err error) RetCode {
	if err == nil {
		return RetCSuccess
	}
	var storeErr *Error
	if errors.As(err, &storeErr) {
		return storeErr.Code
	}
	return RetCInternalError
}

// --------------------------------------------------------------------------
// Return Codes
// --------------------------------------------------------------------------

type RetCode uint64

const (
	RetCSuccess       RetCode = iota // 0: Command executed successfully.
	RetCInternalError                // 1: Command failed due to an internal error.
	RetCInvalidTable                 // 2: The table definition cannot be used.
	RetCInvalidKey                   // 3: The key does not match the key columns.
	RetCUnavailable                  // 4: The store could not be reached.
)

func (c RetCode) String() string {
	switch c {
	case RetCSuccess:
		return "Success"
	case RetCInternalError:
		return "InternalError"
	case RetCInvalidTable:
		return "InvalidTable"
	case RetCInvalidKey:
		return "InvalidKey"
	case RetCUnavailable:
		return "Unavailable"
	default:
		return "Unknown"
	}
}

// CheckKey verifies that key has one part per key column of table.
func CheckKey(table Table, key []any) error {
	if len(key) != len(table.KeyColumns) {
		return NewError(RetCInvalidKey, fmt.Sprintf("table %s expects %d key parts, got %d", table.Name, len(table.KeyColumns), len(key)))
	}
	return nil
}
