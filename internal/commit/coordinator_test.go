package commit

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/saga/internal/domain"
	"github.com/roach88/saga/internal/event"
	"github.com/roach88/saga/internal/projection"
	"github.com/roach88/saga/internal/store"
	"github.com/roach88/saga/internal/testutil"
)

func newCoordinator(opts ...Option) *Coordinator {
	logger := testutil.DiscardLogger()
	base := []Option{
		WithLogger(logger),
		WithProjector(projection.New(projection.WithLogger(logger))),
		WithClock(testutil.NewDeterministicClock()),
		WithIDGenerator(domain.NewFixedGenerator("c1", "c2", "c3")),
	}
	return New(append(base, opts...)...)
}

func genesis() []event.Event {
	return []event.Event{
		event.New(event.EntitySpawn{CharacterID: "pc", Name: "Ash", CharacterKind: domain.KindPlayer, Location: "gate", HP: 20}),
		event.New(event.EntitySpawn{CharacterID: "npc", Name: "Vera", Location: "dock", HP: 6}),
		event.New(event.ItemGet{OwnerID: "pc", Item: "rope", Quantity: 1}),
	}
}

func createCampaign(t *testing.T, c *Coordinator, st *store.Store) domain.Campaign {
	t.Helper()
	campaign, err := c.CreateCampaign(context.Background(), st, "Test", genesis())
	require.NoError(t, err)
	return campaign
}

func TestCreateCampaign_ProjectsGenesisAtTurnZero(t *testing.T) {
	st := testutil.NewStore(t)
	c := newCoordinator()
	ctx := context.Background()

	campaign := createCampaign(t, c, st)
	assert.Equal(t, "c1", campaign.ID)
	assert.Equal(t, 0, campaign.TurnNumber)

	turn, err := st.GetCurrentTurnNumber(ctx, campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, turn)

	snap, err := st.LoadSnapshot(ctx, campaign.ID)
	require.NoError(t, err)
	assert.Len(t, snap.Characters, 2)
	assert.Equal(t, 1, snap.Quantity("pc", "rope"))
}

func TestCreateCampaign_InvalidGenesisWritesNothing(t *testing.T) {
	st := testutil.NewStore(t)
	c := newCoordinator()

	_, err := c.CreateCampaign(context.Background(), st, "Bad", []event.Event{
		event.New(event.Damage{Amount: 3}),
	})
	require.Error(t, err)

	campaigns, err := st.ListCampaigns(context.Background())
	require.NoError(t, err)
	assert.Empty(t, campaigns)
}

func TestCreateCampaign_SpawnWithoutKindIsNPC(t *testing.T) {
	st := testutil.NewStore(t)
	c := newCoordinator()
	campaign := createCampaign(t, c, st)

	snap, err := st.LoadSnapshot(context.Background(), campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.KindNPC, snap.Characters["npc"].Kind)
}

func TestCommit_EndToEnd(t *testing.T) {
	st := testutil.NewStore(t)
	c := newCoordinator()
	ctx := context.Background()
	campaign := createCampaign(t, c, st)

	committed, err := c.Commit(ctx, st, Batch{
		CampaignID: campaign.ID,
		Events: []event.Event{
			event.New(event.Move{CharacterID: "pc", Location: "harbor"}),
			event.New(event.Damage{CharacterID: "pc", Amount: 5}),
			event.New(event.WorldTimeAdvance{Mode: event.TimeAdd, Minutes: 30}),
		},
		Narration: Narration{Text: "You walk to the harbor and cut your hand."},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, committed.TurnNumber)
	assert.Len(t, committed.Records, 3)
	assert.NotEmpty(t, committed.BatchHash)

	snap, err := st.LoadSnapshot(ctx, campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, snap.Campaign.TurnNumber)
	assert.Equal(t, "harbor", snap.Characters["pc"].Location)
	assert.Equal(t, 15, snap.Characters["pc"].HPCurrent)
	assert.Equal(t, 30, snap.Campaign.WorldState.WorldTimeMinutes)

	n, err := st.CountRenderedTurns(ctx, campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	rt, ok, err := st.GetRenderedTurn(ctx, campaign.ID, 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, committed.BatchHash, rt.BatchHash)

	turn, err := st.GetCurrentTurnNumber(ctx, campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, turn)

	report, err := c.Projector().Verify(ctx, st, campaign.ID)
	require.NoError(t, err)
	assert.True(t, report.OK(), "divergences: %+v", report.Divergences)
}

// storageState captures everything a failed turn must leave untouched.
type storageState struct {
	Snapshot domain.Snapshot
	Events   int
	Rendered int
	Turn     int
}

func captureState(t *testing.T, st *store.Store, campaignID string) storageState {
	t.Helper()
	ctx := context.Background()
	snap, err := st.LoadSnapshot(ctx, campaignID)
	require.NoError(t, err)
	events, err := st.CountEvents(ctx, campaignID)
	require.NoError(t, err)
	rendered, err := st.CountRenderedTurns(ctx, campaignID)
	require.NoError(t, err)
	turn, err := st.GetCurrentTurnNumber(ctx, campaignID)
	require.NoError(t, err)
	return storageState{Snapshot: snap, Events: events, Rendered: rendered, Turn: turn}
}

func TestCommit_FailureAtAnyStepLeavesStorageUnchanged(t *testing.T) {
	failing := []Step{StepValidate, StepBegin, StepReserve, StepImplied, StepAppend, StepProject, StepSetTurn, StepRender}
	for _, failAt := range failing {
		t.Run(string(failAt), func(t *testing.T) {
			st := testutil.NewStore(t)
			ctx := context.Background()
			campaign := createCampaign(t, newCoordinator(), st)
			before := captureState(t, st, campaign.ID)

			c := newCoordinator(WithFaultHook(func(s Step) error {
				if s == failAt {
					return ErrInjected
				}
				return nil
			}))
			_, err := c.Commit(ctx, st, Batch{
				CampaignID: campaign.ID,
				Events: []event.Event{
					event.New(event.Damage{CharacterID: "npc", Amount: 10}),
					event.New(event.ItemLose{OwnerID: "pc", Item: "rope", Quantity: 1}),
					event.New(event.FlagSet{Key: "fought", Value: true}),
				},
				TimeCostMinutes: 15,
				Narration:       Narration{Text: "never seen"},
			})
			require.ErrorIs(t, err, ErrInjected)
			assert.Equal(t, failAt, FailedStep(err))

			assert.Equal(t, before, captureState(t, st, campaign.ID))

			// The failed turn consumed no turn number.
			committed, err := newCoordinator().Commit(ctx, st, Batch{
				CampaignID: campaign.ID,
				Events:     []event.Event{event.New(event.Move{CharacterID: "pc", Location: "dock"})},
			})
			require.NoError(t, err)
			assert.Equal(t, 1, committed.TurnNumber)
		})
	}
}

func TestCommit_InvalidBatchFailsBeforeWrites(t *testing.T) {
	st := testutil.NewStore(t)
	c := newCoordinator()
	campaign := createCampaign(t, c, st)
	before := captureState(t, st, campaign.ID)

	_, err := c.Commit(context.Background(), st, Batch{
		CampaignID: campaign.ID,
		Events:     []event.Event{event.New(event.ItemGet{OwnerID: "pc", Item: "coin", Quantity: 0})},
	})
	require.Error(t, err)
	assert.Equal(t, StepValidate, FailedStep(err))
	assert.Equal(t, before, captureState(t, st, campaign.ID))
}

func TestCommit_MissingCampaign(t *testing.T) {
	st := testutil.NewStore(t)
	_, err := newCoordinator().Commit(context.Background(), st, Batch{CampaignID: "nope"})
	require.Error(t, err)
	assert.Equal(t, StepReserve, FailedStep(err))
	assert.True(t, store.IsNotFound(err))
}

func TestCommit_ImpliedTimeAdvance(t *testing.T) {
	st := testutil.NewStore(t)
	c := newCoordinator()
	ctx := context.Background()
	campaign := createCampaign(t, c, st)

	committed, err := c.Commit(ctx, st, Batch{
		CampaignID:      campaign.ID,
		Events:          []event.Event{event.New(event.Move{CharacterID: "pc", Location: "market"})},
		TimeCostMinutes: 20,
	})
	require.NoError(t, err)
	require.Len(t, committed.Records, 2)
	assert.Equal(t, event.WorldTimeAdvance{Mode: event.TimeAdd, Minutes: 20}, committed.Records[1].Event.Payload)

	// An explicit time event wins over the time cost.
	committed, err = c.Commit(ctx, st, Batch{
		CampaignID:      campaign.ID,
		Events:          []event.Event{event.New(event.WorldTimeAdvance{Mode: event.TimeSet, Minutes: 5})},
		TimeCostMinutes: 20,
	})
	require.NoError(t, err)
	assert.Len(t, committed.Records, 1)

	got, err := st.GetCampaign(ctx, campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, got.WorldState.WorldTimeMinutes)
}

func TestCommit_DefeatedNPCDeparts(t *testing.T) {
	st := testutil.NewStore(t)
	c := newCoordinator()
	ctx := context.Background()
	campaign := createCampaign(t, c, st)

	committed, err := c.Commit(ctx, st, Batch{
		CampaignID: campaign.ID,
		Events: []event.Event{
			event.New(event.Damage{CharacterID: "npc", Amount: 4}),
			event.New(event.Damage{CharacterID: "npc", Amount: 4}),
			event.New(event.Damage{CharacterID: "pc", Amount: 50}),
		},
	})
	require.NoError(t, err)

	last := committed.Records[len(committed.Records)-1]
	assert.Equal(t, event.EntityDepart{CharacterID: "npc", Reason: DepartReasonDefeated}, last.Event.Payload)
	assert.Len(t, committed.Records, 4, "only the NPC departs")

	snap, err := st.LoadSnapshot(ctx, campaign.ID)
	require.NoError(t, err)
	assert.True(t, snap.Characters["npc"].Retired())
	assert.False(t, snap.Characters["pc"].Retired())

	// Further damage to the departed NPC implies nothing new.
	committed, err = c.Commit(ctx, st, Batch{
		CampaignID: campaign.ID,
		Events:     []event.Event{event.New(event.Damage{CharacterID: "npc", Amount: 1})},
	})
	require.NoError(t, err)
	assert.Len(t, committed.Records, 1)
}

func TestCommit_RawPayloadOfKnownKindIsProjected(t *testing.T) {
	st := testutil.NewStore(t)
	c := newCoordinator()
	ctx := context.Background()
	campaign := createCampaign(t, c, st)

	committed, err := c.Commit(ctx, st, Batch{
		CampaignID: campaign.ID,
		Events: []event.Event{
			event.New(event.Unknown{Type: event.KindDamage, Fields: map[string]any{"character_id": "pc", "amount": 5}}),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, event.Damage{CharacterID: "pc", Amount: 5}, committed.Records[0].Event.Payload)

	snap, err := st.LoadSnapshot(ctx, campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, 15, snap.Characters["pc"].HPCurrent)

	report, err := c.Projector().Verify(ctx, st, campaign.ID)
	require.NoError(t, err)
	assert.True(t, report.OK(), "divergences: %v", report.Divergences)
}

func TestCommit_RawPayloadOfKnownKindIsValidated(t *testing.T) {
	st := testutil.NewStore(t)
	c := newCoordinator()
	campaign := createCampaign(t, c, st)

	_, err := c.Commit(context.Background(), st, Batch{
		CampaignID: campaign.ID,
		Events: []event.Event{
			event.New(event.Unknown{Type: event.KindDamage, Fields: map[string]any{"character_id": "pc", "amount": -5}}),
		},
	})
	require.Error(t, err)
	assert.Equal(t, StepValidate, FailedStep(err))
}

func TestCommit_EnricherFailureDoesNotFailTurn(t *testing.T) {
	st := testutil.NewStore(t)
	var calls []string
	c := newCoordinator(
		WithEnricher(EnricherFunc{N: "broken", Fn: func(context.Context, *store.Store, Committed) error {
			calls = append(calls, "broken")
			return errors.New("summary service down")
		}}),
		WithEnricher(RecapEnricher{Clock: testutil.NewDeterministicClock()}),
	)
	ctx := context.Background()
	campaign := createCampaign(t, c, st)

	committed, err := c.Commit(ctx, st, Batch{
		CampaignID: campaign.ID,
		Events:     []event.Event{event.New(event.Move{CharacterID: "pc", Location: "dock"})},
		Narration:  Narration{Text: "You reach the dock."},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, committed.TurnNumber)
	assert.Equal(t, []string{"broken"}, calls)

	recap, ok, err := st.GetRecap(ctx, campaign.ID)
	require.NoError(t, err)
	require.True(t, ok, "later enrichers still run")
	assert.Equal(t, "Turn 1: You reach the dock.\n", recap.Text)
}

func TestCommit_ConcurrentTurnsAreGapless(t *testing.T) {
	const n = 8
	st := testutil.NewStore(t, store.Options{MaxOpenConns: n, ReserveRetryBudget: 32})
	c := newCoordinator()
	campaign := createCampaign(t, c, st)

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		turns []int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			committed, err := c.Commit(context.Background(), st, Batch{
				CampaignID: campaign.ID,
				Events:     []event.Event{event.New(event.Heal{CharacterID: "pc", Amount: 1})},
			})
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			turns = append(turns, committed.TurnNumber)
			mu.Unlock()
		}()
	}
	wg.Wait()

	slices.Sort(turns)
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7, 8}, turns)

	snap, err := st.LoadSnapshot(context.Background(), campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, 28, snap.Characters["pc"].HPCurrent)
	assert.Equal(t, n, snap.Campaign.TurnNumber)
}

func TestBuildRecap_Truncates(t *testing.T) {
	long := make([]rune, 300)
	for i := range long {
		long[i] = 'a'
	}
	got := BuildRecap([]domain.RenderedTurn{{TurnNumber: 3, Text: string(long)}})
	assert.Equal(t, len("Turn 3: ")+recapLineRunes+1, len([]rune(got)))
}
