// Package harness runs scripted turn scenarios against the real pipeline
// and commit path and checks the outcome.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: harbor_skirmish
//	description: "What this scenario validates"
//	campaign_id: harbor
//	genesis:
//	  - type: ENTITY_SPAWN
//	    payload: { character_id: pc, name: Ash, kind: player, location: gate, hp: 20 }
//	turns:
//	  - input: attack the smuggler
//	    seed: 3
//	    mechanic:
//	      time_cost: 5
//	      events:
//	        - type: DAMAGE
//	          payload: { character_id: smuggler, amount: 6 }
//	    narration:
//	      text: "The smuggler falls."
//	    expect:
//	      route: mechanic
//	      turn_number: 1
//	assertions:
//	  - type: character
//	    character: smuggler
//	    expect: { hp_current: 0 }
//
// Instead of inline genesis events a scenario may name a seed file with
// `seed:`, resolved relative to the scenario file.
//
// Each turn's mechanic, encounter, world and narration blocks script the
// collaborators for that turn only. A turn without narration is narrated
// by pipeline.EchoNarrator.
//
// # Assertion Types
//
//   - trace_contains: a stage was visited (in one step, or any step)
//   - trace_order: stages were visited in order
//   - trace_count: how many times a stage was visited across the run
//   - final_state: a projection table row has the expected columns
//   - character: a character in the final snapshot has the expected fields
//   - world: the final world state has the expected fields
//   - verify: replaying the log reproduces the projections
//
// # Deterministic Testing
//
// Every run uses a fresh in-memory store, testutil.DeterministicClock and a
// fixed campaign id, so traces are stable and can be compared against
// golden files.
package harness
