// Package eventlog keeps a bounded append-only event history per tenant and
// wakes live subscribers when new events arrive. Sequences are strictly
// increasing per tenant and survive ring eviction, so a subscriber can
// disconnect and resume from its last cursor.
package eventlog
