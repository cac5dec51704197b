// Package store provides SQLite-backed durable storage for saga campaigns.
//
// The store holds two kinds of data:
//   - Events: the append-only log, one row per fact, keyed by
//     (campaign_id, turn_number, id). UPDATE and DELETE are rejected by
//     triggers; corrections are new events.
//   - Projections: campaigns, characters, inventory, rendered_turns and
//     turn_recaps. These are the read path for the rest of the application
//     and are only written by projection application and the commit
//     coordinator.
//
// # Turn Numbers
//
// Turn numbers are allocated by ReserveNextTurnNumber with an optimistic
// compare-and-swap on campaigns.version. A lost race is retried from a fresh
// read; exhausting the retry budget returns ErrTurnContention.
//
// # Ordering
//
// Every event query orders by turn_number ASC, id ASC. Timestamps are
// informational and never used for ordering.
//
// # Database Configuration
//
// Settings are carried in the DSN so every pooled connection gets them:
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//   - _txlock=immediate: Transactions take the write lock at BEGIN
package store
