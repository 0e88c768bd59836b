// Package l5dedup owns Layer 5 (Deduplication) of the Mode S receiver.
//
// Responsibilities: collapsing repeated decodes of one physical message,
// from one receiver or several, inside a short time window. The first
// decode is forwarded at once; later ones only update bookkeeping.
// Key types: Deduplicator, MessageKey, Entry.
//
// Dependency rule: L5 may depend on L1-L4, but never on L6.
package l5dedup
