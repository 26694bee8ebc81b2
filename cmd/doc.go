// Package cmd implements the command-line interface of dSync. It provides commands
// to run the processes of a cluster and to talk to a running cluster as a client.
//
// The package is organized into several subpackages:
//
//   - node: Runs one cluster node (cached tables, write coalescer, bus connection)
//   - relay: Runs the relay every node connects to
//   - query: Asks one or all nodes for facts (query node_id cache_stats)
//   - send: Sends a command to one or all nodes (send reload table=guilds)
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// Every flag can also be set through the environment as DSYNC_<FLAG>, with dashes
// replaced by underscores (e.g. DSYNC_RELAY_ENDPOINT). .env and .env.local files in the
// working directory are loaded first.
//
// See dsync -help for a list of all commands.
package cmd
