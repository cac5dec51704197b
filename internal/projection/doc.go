// Package projection applies committed events to the queryable tables of
// the store: characters, inventory and the campaign world-state document.
//
// Events are applied strictly in append order through the same handler
// table the reducer uses. Verify replays a campaign's full log through the
// reducer and reports any field where the projection disagrees.
package projection
