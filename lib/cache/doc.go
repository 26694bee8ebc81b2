// Package cache implements the per-table cache and write coalescer of a dSync node.
//
// Every logical entity table (guild settings, user info, nicknames, ...) gets one
// TableHandler, constructed at startup and passed to whoever needs it. A handler keeps
// the rows it has seen in memory, keyed by Identifier, and sits in front of a
// store.IStore.
//
// Reading:
//
//	Get serves fully fetched entries from memory. A miss fetches the row by primary
//	key; concurrent misses on one identifier share a single fetch. When no row exists
//	the table's default template (the row stored under TableConfig.DefaultID) is
//	returned instead. The template is fetched once per table and memoised, and the
//	result is cached under the requested identifier. Such an entry is treated like a
//	confirmed row afterwards: if another node inserts the row later, this node keeps
//	serving the defaults until the entry is invalidated or the table is reset.
//
// Writing:
//
//	Set merges the changes into memory right away and hands them to the write
//	coalescer. All changes to one identifier made before the next flush tick end up in
//	one write task and one upsert. Set returns once that upsert succeeded. A failed
//	upsert is reported to the error hook and discarded; callers of Set on that
//	identifier are not released and only return when their context ends.
//
//	Delete drops the entry and deletes the row in the background without any
//	completion signal. Failures are logged at debug level and otherwise ignored.
//
// Coherence:
//
//	Tables created with Broadcast announce every successful upsert through an
//	Invalidator (the cluster bus) as an invalidate_cache command. Peers evict the
//	entry in Registry.HandleInvalidate and fetch it again on the next Get.
//
// The flush loop only runs while writes are pending; the first tick happens one
// flush interval after the first staged write.
package cache
