// Package rules holds the single table mapping each event kind to its
// handler. The in-memory reducer and the storage projector both apply events
// through this table against their own World, so the two interpreters of the
// event vocabulary cannot drift apart.
package rules
