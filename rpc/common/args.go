package common

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// --------------------------------------------------------------------------
// Ordered Arguments
// --------------------------------------------------------------------------

// Arg is a single named argument of an envelope.
type Arg struct {
	Name  string
	Value any
}

// Args is an ordered mapping of argument names to values.
// Order matters: handlers on the receiving side consume the values positionally.
//
// JSON objects nested inside values are decoded as Args as well, so the order of
// nested mappings (e.g. the inner envelope of a SEND) survives a relay hop.
// Numbers are decoded as json.Number to keep 64 bit ids intact.
type Args []Arg

// NewArgs builds Args from alternating name/value pairs.
// It panics if a name is not a string or a value is missing.
func NewArgs(pairs ...any) Args {
	if len(pairs)%2 != 0 {
		panic("common.NewArgs: odd number of arguments")
	}
	args := make(Args, 0, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		name, ok := pairs[i].(string)
		if !ok {
			panic(fmt.Sprintf("common.NewArgs: argument %d is not a string", i))
		}
		args = append(args, Arg{Name: name, Value: pairs[i+1]})
	}
	return args
}

// Get returns the value for name and whether it was present.
func (a Args) Get(name string) (any, bool) {
	for _, arg := range a {
		if arg.Name == name {
			return arg.Value, true
		}
	}
	return nil, false
}

// With returns a copy of the args with name set to value.
// An existing argument keeps its position, a new one is appended.
func (a Args) With(name string, value any) Args {
	out := make(Args, len(a), len(a)+1)
	copy(out, a)
	for i := range out {
		if out[i].Name == name {
			out[i].Value = value
			return out
		}
	}
	return append(out, Arg{Name: name, Value: value})
}

// Names returns the argument names in order.
func (a Args) Names() []string {
	names := make([]string, len(a))
	for i, arg := range a {
		names[i] = arg.Name
	}
	return names
}

// Values returns the argument values in order.
func (a Args) Values() []any {
	values := make([]any, len(a))
	for i, arg := range a {
		values[i] = arg.Value
	}
	return values
}

// Map flattens the args into an unordered map, converting nested Args recursively.
func (a Args) Map() map[string]any {
	m := make(map[string]any, len(a))
	for _, arg := range a {
		m[arg.Name] = plain(arg.Value)
	}
	return m
}

// plain converts nested Args into maps so that the value can be handed to code
// which does not care about ordering.
func plain(v any) any {
	switch t := v.(type) {
	case Args:
		return t.Map()
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = plain(t[i])
		}
		return out
	default:
		return v
	}
}

// --------------------------------------------------------------------------
// JSON encoding
// --------------------------------------------------------------------------

// MarshalJSON writes the args as a JSON object in insertion order.
func (a Args) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, arg := range a {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(arg.Name)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(arg.Value)
		if err != nil {
			return nil, fmt.Errorf("arg %q: %w", arg.Name, err)
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a JSON object keeping the order of its keys.
func (a *Args) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*a = nil
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("args: expected object, got %v", tok)
	}
	args, err := decodeObject(dec)
	if err != nil {
		return err
	}
	*a = args
	return nil
}

// decodeObject decodes the remainder of an object whose opening brace was consumed.
func decodeObject(dec *json.Decoder) (Args, error) {
	args := Args{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		name, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("args: expected key, got %v", tok)
		}
		value, err := decodeValue(dec)
		if err != nil {
			return nil, err
		}
		args = append(args, Arg{Name: name, Value: value})
	}
	// closing brace
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return args, nil
}

// decodeValue decodes one JSON value, turning objects into Args.
func decodeValue(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err == io.EOF {
		return nil, io.ErrUnexpectedEOF
	}
	if err != nil {
		return nil, err
	}
	delim, ok := tok.(json.Delim)
	if !ok {
		return tok, nil
	}
	switch delim {
	case '{':
		return decodeObject(dec)
	case '[':
		list := []any{}
		for dec.More() {
			v, err := decodeValue(dec)
			if err != nil {
				return nil, err
			}
			list = append(list, v)
		}
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		return list, nil
	default:
		return nil, fmt.Errorf("args: unexpected delimiter %v", delim)
	}
}
