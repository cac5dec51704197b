// Package event defines the closed vocabulary of turn events.
//
// Every event carries a typed payload; the payload's Kind is the stored
// event_type. Payload types form a closed tagged union with one variant per
// known kind plus Unknown, which keeps the raw fields of kinds this build
// does not recognise so old code never crashes on a newer log.
//
// Events are immutable facts. Once appended they are never updated or
// deleted; corrections are issued as new compensating events.
package event
