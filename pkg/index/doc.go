// Package index maintains OxiDB's secondary index structures in memory.
//
// Each Index is either an ordered key-tuple map (single/composite,
// optionally unique) or a token postings map (text). Indexes are rebuilt
// from a collection's live document map whenever the collection opens —
// cheaper and simpler than replaying a separate sidecar delta log, and
// always correct since the live map is already the recovered source of
// truth (spec.md §4.1 "Recovery"; see DESIGN.md for this Open Question
// resolution).
package index
