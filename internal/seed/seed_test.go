package seed

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/saga/internal/commit"
	"github.com/roach88/saga/internal/event"
	"github.com/roach88/saga/internal/testutil"
)

func TestLoad_AllFormatsAgree(t *testing.T) {
	want, err := Load("testdata/harbor.cue")
	require.NoError(t, err)

	for _, path := range []string{"testdata/harbor.json", "testdata/harbor.yaml"} {
		t.Run(path, func(t *testing.T) {
			got, err := Load(path)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestLoad_DecodesFields(t *testing.T) {
	s, err := Load("testdata/harbor.cue")
	require.NoError(t, err)

	assert.Equal(t, "The Drowned Harbor", s.Title)
	assert.Equal(t, "pc", s.Player.ID)
	assert.Equal(t, map[string]int{"grit": 2}, s.Player.Stats)
	require.Len(t, s.NPCs, 1)
	require.NotNil(t, s.NPCs[0].Relationship)
	assert.Equal(t, 1, *s.NPCs[0].Relationship)
	assert.Equal(t, map[string]any{"gate_open": false, "tide": "low"}, s.Flags)
	assert.Equal(t, 480, s.WorldTimeMinutes)
}

func TestGenesis_OrderAndValidity(t *testing.T) {
	s, err := Load("testdata/harbor.cue")
	require.NoError(t, err)

	events := s.Genesis()
	kinds := make([]event.Kind, len(events))
	for i, e := range events {
		kinds[i] = e.Kind()
	}
	assert.Equal(t, []event.Kind{
		event.KindEntitySpawn,
		event.KindEntitySpawn,
		event.KindItemGet,
		event.KindFlagSet,
		event.KindFlagSet,
		event.KindWorldTimeAdvance,
		event.KindWorldEvent,
	}, kinds)
	assert.Equal(t, "gate_open", events[3].Payload.(event.FlagSet).Key)

	require.NoError(t, event.MustValidator().ValidateBatch(events))
}

func TestGenesis_CreatesCampaign(t *testing.T) {
	s, err := Load("testdata/harbor.yaml")
	require.NoError(t, err)

	st := testutil.NewStore(t)
	c := commit.New(
		commit.WithLogger(testutil.DiscardLogger()),
		commit.WithClock(testutil.NewDeterministicClock()),
		commit.WithIDGenerator(testutil.NewFixedIDGenerator("")),
	)
	ctx := context.Background()
	campaign, err := c.CreateCampaign(ctx, st, s.Title, s.Genesis())
	require.NoError(t, err)

	snap, err := st.LoadSnapshot(ctx, campaign.ID)
	require.NoError(t, err)
	pc, ok := snap.Player()
	require.True(t, ok)
	assert.Equal(t, "Ash", pc.Name)
	assert.Equal(t, 2, snap.Quantity("pc", "rope"))
	assert.Equal(t, 480, snap.Campaign.WorldState.WorldTimeMinutes)
	assert.Equal(t, "low", snap.Campaign.WorldState.Flags["tide"])
	require.Len(t, snap.Campaign.WorldState.RecentWorldEvents, 1)
	assert.Equal(t, "Fog rolls over the harbor.", snap.Campaign.WorldState.RecentWorldEvents[0].Summary)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name   string
		format Format
		data   string
		code   string
	}{
		{"syntax", FormatCUE, `title: "x`, ErrCodeParse},
		{"yaml syntax", FormatYAML, "title: [unclosed", ErrCodeParse},
		{"missing hp", FormatJSON, `{"title":"t","player":{"id":"pc","name":"A","location":"l"}}`, ErrCodeSchema},
		{"zero hp", FormatJSON, `{"title":"t","player":{"id":"pc","name":"A","location":"l","hp":0}}`, ErrCodeSchema},
		{"unknown field", FormatJSON, `{"title":"t","mana":3,"player":{"id":"pc","name":"A","location":"l","hp":1}}`, ErrCodeSchema},
		{"float flag", FormatYAML, "title: t\nplayer: {id: pc, name: A, location: l, hp: 1}\nflags: {luck: 1.5}\n", ErrCodeSchema},
		{"duplicate id", FormatYAML, "title: t\nplayer: {id: pc, name: A, location: l, hp: 1}\nnpcs: [{id: pc, name: B, location: l, hp: 1}]\n", ErrCodeInvalid},
		{"unknown owner", FormatYAML, "title: t\nplayer: {id: pc, name: A, location: l, hp: 1}\nitems: [{owner: ghost, item: x, quantity: 1}]\n", ErrCodeInvalid},
		{"hp_max below hp", FormatYAML, "title: t\nplayer: {id: pc, name: A, location: l, hp: 5, hp_max: 3}\n", ErrCodeInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data), tt.format, "inline")
			require.Error(t, err)
			var le *LoadError
			require.True(t, errors.As(err, &le), "got %T: %v", err, err)
			assert.Equal(t, tt.code, le.Code)
		})
	}
}

func TestLoad_FileErrors(t *testing.T) {
	_, err := Load("testdata/harbor.toml")
	var le *LoadError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, ErrCodeFormat, le.Code)

	_, err = Load("testdata/missing.cue")
	require.True(t, errors.As(err, &le))
	assert.Equal(t, ErrCodeNotFound, le.Code)
}
