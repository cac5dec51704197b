package testutil

// FixedIDGenerator returns the same campaign id every time.
//
// Scenarios that create exactly one campaign use it so ids in golden
// traces never change between runs.
//
// Thread-safety: FixedIDGenerator is stateless and safe for concurrent use.
type FixedIDGenerator struct {
	id string
}

// NewFixedIDGenerator creates a generator that always returns id.
//
// The id is typically set in the scenario YAML:
//
//	campaign_id: "campaign-test"
//
// If id is empty, Generate() returns "campaign-test".
func NewFixedIDGenerator(id string) *FixedIDGenerator {
	if id == "" {
		id = "campaign-test"
	}
	return &FixedIDGenerator{id: id}
}

// Generate returns the fixed id.
//
// Implements domain.IDGenerator interface.
func (g *FixedIDGenerator) Generate() string {
	return g.id
}
