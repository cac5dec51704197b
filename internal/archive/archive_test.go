package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/saga/internal/commit"
	"github.com/roach88/saga/internal/domain"
	"github.com/roach88/saga/internal/event"
	"github.com/roach88/saga/internal/projection"
	"github.com/roach88/saga/internal/rules"
	"github.com/roach88/saga/internal/store"
	"github.com/roach88/saga/internal/testutil"
)

func playedCampaign(t *testing.T) (*store.Store, string) {
	t.Helper()
	st := testutil.NewStore(t)
	c := commit.New(
		commit.WithLogger(testutil.DiscardLogger()),
		commit.WithClock(testutil.NewDeterministicClock()),
		commit.WithIDGenerator(testutil.NewFixedIDGenerator("c1")),
	)
	ctx := context.Background()
	_, err := c.CreateCampaign(ctx, st, "Archived", []event.Event{
		event.New(event.EntitySpawn{CharacterID: "pc", Name: "Ash", CharacterKind: domain.KindPlayer, Location: "gate", HP: 12}),
		event.New(event.ItemGet{OwnerID: "pc", Item: "lamp", Quantity: 1}),
	})
	require.NoError(t, err)

	_, err = c.Commit(ctx, st, commit.Batch{
		CampaignID:      "c1",
		Events:          []event.Event{event.New(event.Move{CharacterID: "pc", Location: "quay"})},
		TimeCostMinutes: 15,
		Narration:       commit.Narration{Text: "You walk to the quay."},
	})
	require.NoError(t, err)
	_, err = c.Commit(ctx, st, commit.Batch{
		CampaignID: "c1",
		Events: []event.Event{
			event.New(event.Damage{CharacterID: "pc", Amount: 4}),
			event.New(event.FlagSet{Key: "smuggler_seen", Value: true}).AsHidden(),
		},
		Narration: commit.Narration{Text: "Something cuts you in the dark."},
	})
	require.NoError(t, err)
	return st, "c1"
}

func TestExportRead_RoundTrip(t *testing.T) {
	st, id := playedCampaign(t)
	ctx := context.Background()

	var buf bytes.Buffer
	h, err := Export(ctx, st, id, &buf, testutil.Epoch)
	require.NoError(t, err)
	assert.Equal(t, FormatV1, h.Format)
	assert.Equal(t, 2, h.Campaign.TurnNumber)
	assert.Equal(t, 2, h.RenderedCount)

	a, err := Read(&buf)
	require.NoError(t, err)
	assert.Equal(t, h.EventCount, len(a.Records))

	records, err := st.GetEvents(ctx, id, -1, true)
	require.NoError(t, err)
	assert.Equal(t, records, a.Records)

	rendered, err := st.ListRenderedTurns(ctx, id, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, rendered, a.Rendered)
}

func TestExport_IncludesHiddenEvents(t *testing.T) {
	st, id := playedCampaign(t)

	var buf bytes.Buffer
	_, err := Export(context.Background(), st, id, &buf, testutil.Epoch)
	require.NoError(t, err)
	a, err := Read(&buf)
	require.NoError(t, err)

	hidden := 0
	for _, r := range a.Records {
		if r.Event.Hidden {
			hidden++
		}
	}
	assert.Equal(t, 1, hidden)
}

func TestArchive_FoldMatchesProjection(t *testing.T) {
	st, id := playedCampaign(t)
	ctx := context.Background()

	var buf bytes.Buffer
	_, err := Export(ctx, st, id, &buf, testutil.Epoch)
	require.NoError(t, err)
	a, err := Read(&buf)
	require.NoError(t, err)

	snap, err := st.LoadSnapshot(ctx, id)
	require.NoError(t, err)
	folded := a.Fold(rules.DefaultOptions())
	assert.Empty(t, folded.Unhandled)
	assert.Empty(t, projection.Compare(snap, folded.Snapshot()))
	assert.Equal(t, 8, folded.Characters["pc"].HPCurrent)
}

func TestExport_MissingCampaign(t *testing.T) {
	st := testutil.NewStore(t)
	var buf bytes.Buffer
	_, err := Export(context.Background(), st, "nope", &buf, testutil.Epoch)
	require.Error(t, err)
	assert.True(t, store.IsNotFound(err))
	assert.Zero(t, buf.Len())
}

func compress(t *testing.T, lines ...any) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	enc, err := zstd.NewWriter(&buf)
	require.NoError(t, err)
	for _, l := range lines {
		b, err := json.Marshal(l)
		require.NoError(t, err)
		_, err = enc.Write(append(b, '\n'))
		require.NoError(t, err)
	}
	require.NoError(t, enc.Close())
	return &buf
}

func TestRead_Malformed(t *testing.T) {
	rec := event.Record{ID: 1, CampaignID: "c1", Event: event.New(event.Heal{CharacterID: "pc", Amount: 1})}
	tests := []struct {
		name string
		buf  *bytes.Buffer
	}{
		{"empty", compress(t)},
		{"no header", compress(t, Entry{Type: TypeEvent, Record: &rec})},
		{"wrong format", compress(t, Entry{Type: TypeHeader, Header: &Header{Format: "other"}})},
		{"count mismatch", compress(t, Entry{Type: TypeHeader, Header: &Header{Format: FormatV1, EventCount: 2}}, Entry{Type: TypeEvent, Record: &rec})},
		{"second header", compress(t, Entry{Type: TypeHeader, Header: &Header{Format: FormatV1}}, Entry{Type: TypeHeader, Header: &Header{Format: FormatV1}})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Read(tt.buf)
			require.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestRead_NotZstd(t *testing.T) {
	_, err := Read(bytes.NewBufferString(`{"type":"header"}`))
	require.Error(t, err)
}
