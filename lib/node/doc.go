// Package node wires one member of a dSync cluster.
//
// A node owns the cached tables (lib/cache) of the process. With a cluster id it also
// connects to the relay and reacts to the commands of the other nodes:
//
//	request           evaluate local facts and answer the requester
//	invalidate_cache  evict an identifier from the named table
//	reload            reset the cached state of a table, or of all tables for "*"
//	change_log_level  change the level of every logger
//	restart           stop with ExitRestartCluster
//	close             stop with ExitKillEverything
//
// Losing the relay for good (the single reconnect failed) also ends Run with
// ExitRestartCluster, so a supervisor can restart the node.
//
// Without a cluster id the node runs standalone: reads and coalesced writes work as
// usual, but writes are not announced and no facts are answered.
//
// Usage:
//
//	st, err := pgstore.New(ctx, databaseURL)
//	if err != nil {
//		return err
//	}
//	n, err := node.New(cfg, st, node.DefaultTables())
//	if err != nil {
//		return err
//	}
//	guilds, _ := n.Tables().Table("guilds")
//	code, err := n.Run(ctx)
package node
