package cache

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// MaxArity is the largest number of parts an identifier can have
const MaxArity = 4

// Identifier is the primary key of a cache entry: a scalar id such as a guild id,
// or a fixed-arity tuple such as (guild id, user id).
//
// Identifiers are comparable and can be used as map keys. On the wire an identifier
// of arity 1 is a plain number, larger ones are arrays.
type Identifier struct {
	n     uint8
	parts [MaxArity]int64
}

// ID creates an identifier from its parts. It panics on an invalid arity,
// use NewIdentifier for untrusted input.
func ID(parts ...int64) Identifier {
	id, err := NewIdentifier(parts...)
	if err != nil {
		panic(err)
	}
	return id
}

// NewIdentifier creates an identifier from 1 to MaxArity parts
func NewIdentifier(parts ...int64) (Identifier, error) {
	if len(parts) == 0 || len(parts) > MaxArity {
		return Identifier{}, fmt.Errorf("identifier must have 1 to %d parts, got %d", MaxArity, len(parts))
	}
	id := Identifier{n: uint8(len(parts))}
	copy(id.parts[:], parts)
	return id, nil
}

// Arity returns the number of parts, 0 for the zero identifier
func (id Identifier) Arity() int {
	return int(id.n)
}

// IsZero reports whether id is the zero value (no parts)
func (id Identifier) IsZero() bool {
	return id.n == 0
}

// Parts returns a copy of the parts
func (id Identifier) Parts() []int64 {
	return append([]int64(nil), id.parts[:id.n]...)
}

// Key returns the parts as statement arguments, in key column order
func (id Identifier) Key() []any {
	key := make([]any, id.n)
	for i := range key {
		key[i] = id.parts[i]
	}
	return key
}

func (id Identifier) String() string {
	if id.n == 1 {
		return strconv.FormatInt(id.parts[0], 10)
	}
	s := make([]string, id.n)
	for i := range s {
		s[i] = strconv.FormatInt(id.parts[i], 10)
	}
	return "(" + strings.Join(s, ", ") + ")"
}

// --------------------------------------------------------------------------
// JSON encoding
// --------------------------------------------------------------------------

func (id Identifier) MarshalJSON() ([]byte, error) {
	if id.n == 0 {
		return nil, fmt.Errorf("cannot encode zero identifier")
	}
	if id.n == 1 {
		return []byte(strconv.FormatInt(id.parts[0], 10)), nil
	}
	return json.Marshal(id.Parts())
}

func (id *Identifier) UnmarshalJSON(data []byte) error {
	// numbers stay json.Number, 64 bit ids do not survive a float64
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	parsed, err := ParseIdentifier(raw)
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// ParseIdentifier converts a decoded envelope argument into an identifier.
// It accepts integers, json.Number, numeric strings and lists of those.
func ParseIdentifier(v any) (Identifier, error) {
	switch t := v.(type) {
	case Identifier:
		return t, nil
	case []any:
		parts := make([]int64, len(t))
		for i, p := range t {
			n, err := parsePart(p)
			if err != nil {
				return Identifier{}, fmt.Errorf("identifier part %d: %w", i, err)
			}
			parts[i] = n
		}
		return NewIdentifier(parts...)
	case []int64:
		return NewIdentifier(t...)
	default:
		n, err := parsePart(v)
		if err != nil {
			return Identifier{}, err
		}
		return NewIdentifier(n)
	}
}

func parsePart(v any) (int64, error) {
	switch t := v.(type) {
	case int64:
		return t, nil
	case int:
		return int64(t), nil
	case int32:
		return int64(t), nil
	case uint64:
		if t > math.MaxInt64 {
			return 0, fmt.Errorf("%d overflows int64", t)
		}
		return int64(t), nil
	case float64:
		if t != math.Trunc(t) || math.Abs(t) > 1<<53 {
			return 0, fmt.Errorf("%v is not an exact integer", t)
		}
		return int64(t), nil
	case json.Number:
		return strconv.ParseInt(t.String(), 10, 64)
	case string:
		return strconv.ParseInt(strings.TrimSpace(t), 10, 64)
	default:
		return 0, fmt.Errorf("unsupported identifier value %v (%T)", v, v)
	}
}
