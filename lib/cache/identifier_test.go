package cache

import (
	"encoding/json"
	"github.com/ValentinKolb/dSync/rpc/common"
	"github.com/stretchr/testify/require"
	"testing"
)

func TestIdentifierJSON(t *testing.T) {
	data, err := json.Marshal(ID(9007199254740993))
	require.NoError(t, err)
	require.Equal(t, "9007199254740993", string(data))

	var id Identifier
	require.NoError(t, json.Unmarshal(data, &id))
	require.Equal(t, ID(9007199254740993), id)

	data, err = json.Marshal(ID(1, 2))
	require.NoError(t, err)
	require.Equal(t, "[1,2]", string(data))
	require.NoError(t, json.Unmarshal(data, &id))
	require.Equal(t, ID(1, 2), id)

	_, err = json.Marshal(Identifier{})
	require.Error(t, err)
}

func TestParseIdentifier(t *testing.T) {
	cases := map[string]struct {
		in   any
		want Identifier
	}{
		"json number":  {json.Number("42"), ID(42)},
		"int":          {42, ID(42)},
		"float":        {float64(42), ID(42)},
		"string":       {"42", ID(42)},
		"list":         {[]any{json.Number("1"), json.Number("2")}, ID(1, 2)},
		"int64 slice":  {[]int64{1, 2, 3}, ID(1, 2, 3)},
		"identifier":   {ID(5, 6), ID(5, 6)},
		"single tuple": {[]any{json.Number("7")}, ID(7)},
	}
	for name, tc := range cases {
		got, err := ParseIdentifier(tc.in)
		require.NoError(t, err, name)
		require.Equal(t, tc.want, got, name)
	}

	for _, bad := range []any{nil, 1.5, "abc", []any{}, []any{1, 2, 3, 4, 5}, common.Args{}} {
		_, err := ParseIdentifier(bad)
		require.Error(t, err, "%v", bad)
	}
}

func TestIdentifierAsMapKey(t *testing.T) {
	m := map[Identifier]int{ID(1, 2): 1}
	m[ID(1, 2)]++
	m[ID(1)]++
	require.Equal(t, 2, m[ID(1, 2)])
	require.Equal(t, 1, m[ID(1)])
	require.Equal(t, "(1, 2)", ID(1, 2).String())
	require.Equal(t, []any{int64(1), int64(2)}, ID(1, 2).Key())
}
