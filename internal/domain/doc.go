// Package domain provides the core value types shared by every saga package.
//
// domain imports nothing internal. Campaigns, characters, inventory, the
// world-state document, rendered turns and snapshots are plain values; they
// are produced by the reducer (in memory) and by the store (from projection
// rows) and compared field by field during replay verification.
//
// Key constraints:
//   - All JSON tags use snake_case
//   - Canonical JSON (sorted keys, NFC strings, no HTML escaping) is the only
//     serialization used for stored payloads and batch hashes
//   - Ordering always uses turn numbers and insertion ids, never wall clocks
package domain
