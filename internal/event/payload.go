package event

import "github.com/roach88/saga/internal/domain"

// Move relocates a character. Region is only changed when non-empty.
type Move struct {
	CharacterID string `json:"character_id"`
	Location    string `json:"location"`
	Region      string `json:"region,omitempty"`
}

func (Move) Kind() Kind { return KindMove }

// Damage subtracts Amount from current hit points, floored at zero.
type Damage struct {
	CharacterID string `json:"character_id"`
	Amount      int    `json:"amount"`
	Source      string `json:"source,omitempty"`
}

func (Damage) Kind() Kind { return KindDamage }

// Heal adds Amount to current hit points. Healing is not capped at HPMax.
type Heal struct {
	CharacterID string `json:"character_id"`
	Amount      int    `json:"amount"`
}

func (Heal) Kind() Kind { return KindHeal }

// ItemGet adds Quantity of Item to an owner's holdings.
type ItemGet struct {
	OwnerID  string `json:"owner_id"`
	Item     string `json:"item"`
	Quantity int    `json:"quantity"`
}

func (ItemGet) Kind() Kind { return KindItemGet }

// ItemLose removes Quantity of Item; the holding disappears at zero.
type ItemLose struct {
	OwnerID  string `json:"owner_id"`
	Item     string `json:"item"`
	Quantity int    `json:"quantity"`
}

func (ItemLose) Kind() Kind { return KindItemLose }

// FlagSet upserts a world flag. Values are strings, booleans or integers.
type FlagSet struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

func (FlagSet) Kind() Kind { return KindFlagSet }

// Relationship adds Delta to a character's relationship score.
type Relationship struct {
	CharacterID string `json:"character_id"`
	Delta       int    `json:"delta"`
}

func (Relationship) Kind() Kind { return KindRelationship }

// PsychUpdate moves the stress accumulator by StressDelta, or sets it to
// Stress when provided.
type PsychUpdate struct {
	CharacterID string `json:"character_id"`
	StressDelta int    `json:"stress_delta,omitempty"`
	Stress      *int   `json:"stress,omitempty"`
}

func (PsychUpdate) Kind() Kind { return KindPsychUpdate }

// StatSet sets one stat to Value.
type StatSet struct {
	CharacterID string `json:"character_id"`
	Stat        string `json:"stat"`
	Value       int    `json:"value"`
}

func (StatSet) Kind() Kind { return KindStatSet }

// CreditsChange adds Delta to credits, floored at zero.
type CreditsChange struct {
	CharacterID string `json:"character_id"`
	Delta       int    `json:"delta"`
}

func (CreditsChange) Kind() Kind { return KindCreditsChange }

// EntitySpawn creates a character. HPMax defaults to HP when zero.
type EntitySpawn struct {
	CharacterID   string               `json:"character_id"`
	Name          string               `json:"name"`
	CharacterKind domain.CharacterKind `json:"kind,omitempty"`
	Location      string               `json:"location"`
	Region        string               `json:"region,omitempty"`
	HP            int                  `json:"hp"`
	HPMax         int                  `json:"hp_max,omitempty"`
	Stats         map[string]int       `json:"stats,omitempty"`
	Credits       int                  `json:"credits,omitempty"`
	Relationship  *int                 `json:"relationship,omitempty"`
}

func (EntitySpawn) Kind() Kind { return KindEntitySpawn }

// EntityDepart soft-retires a character. The row is kept for audit history.
type EntityDepart struct {
	CharacterID string `json:"character_id"`
	Reason      string `json:"reason,omitempty"`
}

func (EntityDepart) Kind() Kind { return KindEntityDepart }

// TimeMode selects absolute or relative world time updates.
type TimeMode string

const (
	TimeSet TimeMode = "set"
	TimeAdd TimeMode = "add"
)

// WorldTimeAdvance sets or advances campaign world time in minutes.
type WorldTimeAdvance struct {
	Mode    TimeMode `json:"mode"`
	Minutes int      `json:"minutes"`
}

func (WorldTimeAdvance) Kind() Kind { return KindWorldTimeAdvance }

// WorldEvent is a low-priority world-simulation note.
type WorldEvent struct {
	Summary string `json:"summary"`
	Source  string `json:"source,omitempty"`
}

func (WorldEvent) Kind() Kind { return KindWorldEvent }

// Unknown carries an event kind this build does not understand.
type Unknown struct {
	Type   Kind
	Fields map[string]any
}

func (u Unknown) Kind() Kind { return u.Type }
