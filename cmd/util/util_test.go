package util

import (
	"encoding/json"
	"github.com/ValentinKolb/dSync/lib/cache"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"os"
	"path/filepath"
	"testing"
)

func TestParseArgs(t *testing.T) {
	args, err := ParseArgs([]string{"identifier=1234", "table=guilds", "ids=[1,2]", "enabled=true", "empty="})
	require.NoError(t, err)
	assert.Equal(t, []string{"identifier", "table", "ids", "enabled", "empty"}, args.Names())
	assert.Equal(t, []any{json.Number("1234"), "guilds", []any{json.Number("1"), json.Number("2")}, true, ""}, args.Values())

	_, err = ParseArgs([]string{"novalue"})
	assert.Error(t, err)
	_, err = ParseArgs([]string{"=1"})
	assert.Error(t, err)
}

func TestGetTablesDefaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	tables, err := GetTables()
	require.NoError(t, err)
	names := make([]string, len(tables))
	for i, tc := range tables {
		names[i] = tc.Name
	}
	assert.Equal(t, []string{"guilds", "userinfo", "nicknames"}, names)
}

func TestGetTablesFromFile(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	path := filepath.Join(t.TempDir(), "tables.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
tables:
  - name: reminders
    key_columns: [guild_id, reminder_id]
    select: 'SELECT * FROM reminders WHERE guild_id = $1 AND reminder_id = $2'
    delete: 'DELETE FROM reminders WHERE guild_id = $1 AND reminder_id = $2'
    insert: 'INSERT INTO reminders({}) VALUES({}) ON CONFLICT (guild_id, reminder_id) DO UPDATE SET ({}) = ROW({})'
    broadcast: true
`), 0o600))
	viper.Set("config", path)

	tables, err := GetTables()
	require.NoError(t, err)
	require.Len(t, tables, 1)
	assert.Equal(t, "reminders", tables[0].Name)
	assert.Equal(t, []string{"guild_id", "reminder_id"}, tables[0].KeyColumns)
	assert.Equal(t, cache.ID(0, 0), tables[0].DefaultID)
	assert.True(t, tables[0].Broadcast)
}

func TestGetTablesRejectsInvalidInsert(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	path := filepath.Join(t.TempDir(), "tables.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
tables:
  - name: broken
    key_columns: [id]
    select: 'SELECT * FROM broken WHERE id = $1'
    delete: 'DELETE FROM broken WHERE id = $1'
    insert: 'INSERT INTO broken({}) VALUES({})'
`), 0o600))
	viper.Set("config", path)

	_, err := GetTables()
	assert.Error(t, err)
}
