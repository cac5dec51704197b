package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/roach88/saga/internal/domain"
	"github.com/roach88/saga/internal/event"
)

func TestTx_RollbackDiscardsWrites(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestCampaign(t, s, "c1")

	tx, err := s.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin() failed: %v", err)
	}
	if _, err := tx.AppendEvents(ctx, "c1", 1, []event.Event{event.New(event.WorldEvent{Summary: "x"})}, testNow); err != nil {
		t.Fatalf("AppendEvents() failed: %v", err)
	}
	if err := tx.Rollback(); err != nil {
		t.Fatalf("Rollback() failed: %v", err)
	}

	n, err := s.CountEvents(ctx, "c1")
	if err != nil {
		t.Fatalf("CountEvents() failed: %v", err)
	}
	if n != 0 {
		t.Errorf("event count = %d after rollback, want 0", n)
	}
}

func TestTx_RollbackAfterCommitIsNoop(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	tx, err := s.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin() failed: %v", err)
	}
	if err := tx.InsertCampaign(ctx, "c1", "t", domain.NewWorldState(), testNow); err != nil {
		t.Fatalf("InsertCampaign() failed: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit() failed: %v", err)
	}
	if err := tx.Rollback(); err != nil {
		t.Errorf("Rollback() after Commit() = %v, want nil", err)
	}
	if err := tx.Commit(); !errors.Is(err, ErrTxDone) {
		t.Errorf("second Commit() = %v, want ErrTxDone", err)
	}
	if _, err := s.GetCampaign(ctx, "c1"); err != nil {
		t.Errorf("committed campaign missing: %v", err)
	}
}

func TestWithTx_ErrorRollsBack(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(tx *Tx) error {
		if err := tx.InsertCampaign(ctx, "c1", "t", domain.NewWorldState(), testNow); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("WithTx() = %v, want boom", err)
	}
	if _, err := s.GetCampaign(ctx, "c1"); !errors.Is(err, ErrCampaignNotFound) {
		t.Errorf("campaign visible after rollback: %v", err)
	}
}

func TestLoadSnapshot_DoesNotWaitForWriteLock(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestCampaign(t, s, "c1")

	tx, err := s.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin() failed: %v", err)
	}
	defer tx.Rollback()

	readCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	snap, err := s.LoadSnapshot(readCtx, "c1")
	if err != nil {
		t.Fatalf("LoadSnapshot() while a write transaction is open failed: %v", err)
	}
	if snap.Campaign.ID != "c1" {
		t.Errorf("snapshot campaign = %q, want c1", snap.Campaign.ID)
	}
}

func TestBeginRead_RejectsWrites(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	tx, err := s.BeginRead(ctx)
	if err != nil {
		t.Fatalf("BeginRead() failed: %v", err)
	}
	defer tx.Rollback()

	if err := tx.InsertCampaign(ctx, "c1", "Test", domain.NewWorldState(), testNow); err == nil {
		t.Fatal("InsertCampaign() through a read transaction succeeded")
	}
}

func TestBeginRead_ConsistentSnapshot(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestCampaign(t, s, "c1")

	err := s.WithReadTx(ctx, func(tx *Tx) error {
		before, err := tx.GetEvents(ctx, "c1", -1, true)
		if err != nil {
			return err
		}
		if _, err := s.AppendEvents(ctx, "c1", 1, []event.Event{event.New(event.WorldEvent{Summary: "x"})}, testNow); err != nil {
			return err
		}
		after, err := tx.GetEvents(ctx, "c1", -1, true)
		if err != nil {
			return err
		}
		if len(before) != 0 || len(after) != 0 {
			t.Errorf("read transaction saw %d then %d events, want 0 and 0", len(before), len(after))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithReadTx() failed: %v", err)
	}

	n, err := s.CountEvents(ctx, "c1")
	if err != nil {
		t.Fatalf("CountEvents() failed: %v", err)
	}
	if n != 1 {
		t.Errorf("event count = %d after the read transaction, want 1", n)
	}
}
