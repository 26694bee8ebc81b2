package node

import (
	"github.com/ValentinKolb/dSync/lib/cache"
	"github.com/ValentinKolb/dSync/lib/store"
)

// DefaultTables returns the tables a node serves when no other tables are configured.
// Only guild settings are announced to the other nodes on write.
func DefaultTables() []cache.TableConfig {
	return []cache.TableConfig{
		{
			Table: store.Table{
				Name:       "guilds",
				KeyColumns: []string{"guild_id"},
				Select:     "SELECT * FROM guilds WHERE guild_id = $1",
				Delete:     "DELETE FROM guilds WHERE guild_id = $1",
				Insert:     "INSERT INTO guilds({}) VALUES({}) ON CONFLICT (guild_id) DO UPDATE SET ({}) = ROW({})",
			},
			DefaultID: cache.ID(0),
			Broadcast: true,
		},
		{
			Table: store.Table{
				Name:       "userinfo",
				KeyColumns: []string{"user_id"},
				Select:     "SELECT * FROM userinfo WHERE user_id = $1",
				Delete:     "DELETE FROM userinfo WHERE user_id = $1",
				Insert:     "INSERT INTO userinfo({}) VALUES({}) ON CONFLICT (user_id) DO UPDATE SET ({}) = ROW({})",
			},
			DefaultID: cache.ID(0),
		},
		{
			Table: store.Table{
				Name:       "nicknames",
				KeyColumns: []string{"guild_id", "user_id"},
				Select:     "SELECT * FROM nicknames WHERE guild_id = $1 AND user_id = $2",
				Delete:     "DELETE FROM nicknames WHERE guild_id = $1 AND user_id = $2",
				Insert:     "INSERT INTO nicknames({}) VALUES({}) ON CONFLICT (guild_id, user_id) DO UPDATE SET ({}) = ROW({})",
			},
			DefaultID: cache.ID(0, 0),
		},
	}
}
