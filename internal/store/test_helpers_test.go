package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/saga/internal/domain"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// createTestStore creates a new file-backed store in a temp dir.
func createTestStore(t *testing.T, opts ...Options) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, opts...)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestCampaign inserts an empty campaign row.
func createTestCampaign(t *testing.T, s *Store, id string) {
	t.Helper()
	err := s.WithTx(context.Background(), func(tx *Tx) error {
		return tx.InsertCampaign(context.Background(), id, "Test "+id, domain.NewWorldState(), testNow)
	})
	if err != nil {
		t.Fatalf("InsertCampaign(%s) failed: %v", id, err)
	}
}
