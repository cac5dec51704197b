package event

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schema/events.schema.json
var schemaJSON []byte

const schemaURL = "mem://saga/events.schema.json"

// Validator checks payloads of known kinds against the embedded JSON schema.
// Unknown kinds always pass so producers can extend the vocabulary ahead of
// this build.
type Validator struct {
	schemas map[Kind]*jsonschema.Schema
}

// NewValidator compiles one schema per known kind.
func NewValidator() (*Validator, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft7
	if err := c.AddResource(schemaURL, bytes.NewReader(schemaJSON)); err != nil {
		return nil, fmt.Errorf("load event schema: %w", err)
	}
	v := &Validator{schemas: make(map[Kind]*jsonschema.Schema, len(registry))}
	for _, k := range Kinds() {
		s, err := c.Compile(schemaURL + "#/definitions/" + string(k))
		if err != nil {
			return nil, fmt.Errorf("compile %s schema: %w", k, err)
		}
		v.schemas[k] = s
	}
	return v, nil
}

// MustValidator is NewValidator for package-level initialisation; the schema
// is embedded, so failure means a broken build.
func MustValidator() *Validator {
	v, err := NewValidator()
	if err != nil {
		panic(err)
	}
	return v
}

// Validate checks one event.
func (v *Validator) Validate(e Event) error {
	if e.Payload == nil {
		return fmt.Errorf("event has no payload")
	}
	s, ok := v.schemas[e.Kind()]
	if !ok {
		return nil
	}
	data, err := Encode(e.Payload)
	if err != nil {
		return err
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("validate %s: %w", e.Kind(), err)
	}
	if err := s.Validate(doc); err != nil {
		return fmt.Errorf("invalid %s payload: %w", e.Kind(), err)
	}
	return nil
}

// ValidateBatch checks every event, reporting the first failure with its index.
func (v *Validator) ValidateBatch(events []Event) error {
	for i, e := range events {
		if err := v.Validate(e); err != nil {
			return fmt.Errorf("event %d: %w", i, err)
		}
	}
	return nil
}
