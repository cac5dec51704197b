package event

import (
	"encoding/json"
	"fmt"
	"time"
)

// Kind identifies the type of an event (the stored event_type).
type Kind string

// Character state events.
const (
	// KindMove relocates a character, and its region when supplied.
	KindMove Kind = "MOVE"
	// KindDamage subtracts hit points, floored at zero.
	KindDamage Kind = "DAMAGE"
	// KindHeal adds hit points without a cap.
	KindHeal Kind = "HEAL"
	// KindRelationship adds a signed delta to a character's relationship score.
	KindRelationship Kind = "RELATIONSHIP"
	// KindPsychUpdate moves the stress accumulator and derives mood.
	KindPsychUpdate Kind = "PSYCH_UPDATE"
	// KindStatSet sets one entry of a character's stat map.
	KindStatSet Kind = "STAT_SET"
	// KindCreditsChange adds a signed delta to credits, floored at zero.
	KindCreditsChange Kind = "CREDITS_CHANGE"
)

// Inventory events.
const (
	KindItemGet  Kind = "ITEM_GET"
	KindItemLose Kind = "ITEM_LOSE"
)

// Entity lifecycle events.
const (
	// KindEntitySpawn creates a character row; repeated delivery is a no-op.
	KindEntitySpawn Kind = "ENTITY_SPAWN"
	// KindEntityDepart soft-retires a character by clearing its location.
	KindEntityDepart Kind = "ENTITY_DEPART"
)

// World events.
const (
	KindFlagSet          Kind = "FLAG_SET"
	KindWorldTimeAdvance Kind = "WORLD_TIME_ADVANCE"
	// KindWorldEvent is a low-priority world-simulation note kept in a
	// capped buffer on the world-state document.
	KindWorldEvent Kind = "WORLD_EVENT"
)

// Payload is implemented by every event variant.
type Payload interface {
	Kind() Kind
}

// Event is an in-memory fact produced during a turn. It becomes durable
// only when the commit coordinator appends it under a reserved turn number.
type Event struct {
	Payload     Payload
	Hidden      bool
	PublicRumor bool
}

// New wraps a payload into a visible event.
func New(p Payload) Event {
	return Event{Payload: p}
}

// Kind returns the payload's kind, or "" for an empty event.
func (e Event) Kind() Kind {
	if e.Payload == nil {
		return ""
	}
	return e.Payload.Kind()
}

// AsHidden returns a copy flagged hidden from player-facing history.
func (e Event) AsHidden() Event {
	e.Hidden = true
	return e
}

// AsRumor returns a copy flagged as a public rumor.
func (e Event) AsRumor() Event {
	e.PublicRumor = true
	return e
}

// wireEvent is the JSON shape of an event outside the database.
type wireEvent struct {
	Type        Kind            `json:"type"`
	Payload     json.RawMessage `json:"payload"`
	Hidden      bool            `json:"hidden,omitempty"`
	PublicRumor bool            `json:"public_rumor,omitempty"`
}

// MarshalJSON encodes the event as {type, payload, hidden, public_rumor}.
func (e Event) MarshalJSON() ([]byte, error) {
	if e.Payload == nil {
		return nil, fmt.Errorf("marshal event: missing payload")
	}
	data, err := Encode(e.Payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireEvent{
		Type:        e.Kind(),
		Payload:     data,
		Hidden:      e.Hidden,
		PublicRumor: e.PublicRumor,
	})
}

// UnmarshalJSON decodes the wire shape, dispatching on type.
func (e *Event) UnmarshalJSON(data []byte) error {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("unmarshal event: %w", err)
	}
	p, err := Decode(w.Type, w.Payload)
	if err != nil {
		return err
	}
	*e = Event{Payload: p, Hidden: w.Hidden, PublicRumor: w.PublicRumor}
	return nil
}

// Record is an event as stored: stamped with its campaign, turn number and
// insertion id. Records order by (TurnNumber, ID).
type Record struct {
	ID         int64     `json:"id"`
	CampaignID string    `json:"campaign_id"`
	TurnNumber int       `json:"turn_number"`
	Event      Event     `json:"event"`
	CreatedAt  time.Time `json:"created_at"`
}

// Kind returns the stored event type.
func (r Record) Kind() Kind {
	return r.Event.Kind()
}
