package event

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/roach88/saga/internal/domain"
)

type decoder func(data []byte) (Payload, error)

func decodeAs[T Payload](data []byte) (Payload, error) {
	var p T
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return p, nil
}

var registry = map[Kind]decoder{
	KindMove:             decodeAs[Move],
	KindDamage:           decodeAs[Damage],
	KindHeal:             decodeAs[Heal],
	KindItemGet:          decodeAs[ItemGet],
	KindItemLose:         decodeAs[ItemLose],
	KindFlagSet:          decodeFlagSet,
	KindRelationship:     decodeAs[Relationship],
	KindPsychUpdate:      decodeAs[PsychUpdate],
	KindStatSet:          decodeAs[StatSet],
	KindCreditsChange:    decodeAs[CreditsChange],
	KindEntitySpawn:      decodeAs[EntitySpawn],
	KindEntityDepart:     decodeAs[EntityDepart],
	KindWorldTimeAdvance: decodeAs[WorldTimeAdvance],
	KindWorldEvent:       decodeAs[WorldEvent],
}

// Known reports whether k is part of this build's vocabulary.
func Known(k Kind) bool {
	_, ok := registry[k]
	return ok
}

// Kinds lists the known vocabulary in sorted order.
func Kinds() []Kind {
	out := make([]Kind, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// Encode serializes a payload to canonical JSON.
func Encode(p Payload) ([]byte, error) {
	var v any = p
	if u, ok := p.(Unknown); ok {
		v = u.Fields
		if u.Fields == nil {
			v = map[string]any{}
		}
	}
	data, err := domain.MarshalCanonical(v)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", p.Kind(), err)
	}
	return data, nil
}

// Decode parses a stored payload. Kinds outside the vocabulary decode to
// Unknown with their raw fields preserved.
func Decode(k Kind, data []byte) (Payload, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		data = []byte("{}")
	}
	dec, ok := registry[k]
	if !ok {
		fields, err := decodeFields(data)
		if err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", k, err)
		}
		return Unknown{Type: k, Fields: fields}, nil
	}
	p, err := dec(data)
	if err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", k, err)
	}
	return p, nil
}

// Typed returns e with a raw payload of a known kind decoded into its typed
// form. Both interpreters only apply typed payloads, so every event must pass
// through here before it is stored.
func Typed(e Event) (Event, error) {
	u, ok := e.Payload.(Unknown)
	if !ok || !Known(u.Type) {
		return e, nil
	}
	data, err := Encode(u)
	if err != nil {
		return Event{}, err
	}
	p, err := Decode(u.Type, data)
	if err != nil {
		return Event{}, err
	}
	e.Payload = p
	return e, nil
}

// TypedBatch applies Typed to every event, reporting the first failure with
// its index. The input slice is not modified.
func TypedBatch(events []Event) ([]Event, error) {
	out := make([]Event, len(events))
	for i, e := range events {
		t, err := Typed(e)
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", i, err)
		}
		out[i] = t
	}
	return out, nil
}

// FromFields builds a payload from a generic field map, as found in YAML
// scenarios and seed files.
func FromFields(k Kind, fields map[string]any) (Payload, error) {
	if fields == nil {
		fields = map[string]any{}
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("encode %s fields: %w", k, err)
	}
	return Decode(k, data)
}

// decodeFlagSet keeps integral flag values as int so both interpreters and
// the canonical encoder see the same Go type.
func decodeFlagSet(data []byte) (Payload, error) {
	var raw struct {
		Key   string `json:"key"`
		Value any    `json:"value"`
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	return FlagSet{Key: raw.Key, Value: NormalizeValue(raw.Value)}, nil
}

func decodeFields(data []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return nil, err
	}
	for k, v := range fields {
		fields[k] = NormalizeValue(v)
	}
	return fields, nil
}

// NormalizeValue converts decoded JSON numbers to int (or float64 when not
// integral) and normalizes nested collections the same way.
func NormalizeValue(v any) any {
	switch val := v.(type) {
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return int(i)
		}
		f, _ := val.Float64()
		return f
	case float64:
		if val == float64(int(val)) {
			return int(val)
		}
		return val
	case int64:
		return int(val)
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = NormalizeValue(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, e := range val {
			out[k] = NormalizeValue(e)
		}
		return out
	default:
		return v
	}
}
