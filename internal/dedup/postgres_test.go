package dedup

import (
	"context"
	"testing"
	"time"
)

type fakeStateStore struct {
	acquired      bool
	acquireCalls  int
	clearCalls    int
	expiredBefore time.Time
}

func (f *fakeStateStore) AcquireAlertState(ctx context.Context, address, chain string, now, expiredBefore time.Time) (bool, error) {
	f.acquireCalls++
	f.expiredBefore = expiredBefore
	return f.acquired, nil
}

func (f *fakeStateStore) ClearAlertState(ctx context.Context, address, chain string) error {
	f.clearCalls++
	return nil
}

func TestPostgresBelowThresholdAcquires(t *testing.T) {
	fake := &fakeStateStore{acquired: true}
	store := NewPostgres(fake, time.Hour)
	now := time.Now()

	dispatch, err := store.Transition(context.Background(), testKey, true, now)
	if err != nil {
		t.Fatalf("transition failed: %v", err)
	}
	if !dispatch {
		t.Fatal("acquired state should permit dispatch")
	}
	if fake.acquireCalls != 1 || fake.clearCalls != 0 {
		t.Fatalf("expected one acquire and no clear, got %d/%d", fake.acquireCalls, fake.clearCalls)
	}
	if want := now.Add(-time.Hour); !fake.expiredBefore.Equal(want) {
		t.Fatalf("expiry horizon should be now minus cooldown, got %s", fake.expiredBefore)
	}
}

func TestPostgresRecoveryClears(t *testing.T) {
	fake := &fakeStateStore{}
	store := NewPostgres(fake, time.Hour)

	dispatch, err := store.Transition(context.Background(), testKey, false, time.Now())
	if err != nil {
		t.Fatalf("transition failed: %v", err)
	}
	if dispatch {
		t.Fatal("recovery never dispatches")
	}
	if fake.clearCalls != 1 || fake.acquireCalls != 0 {
		t.Fatalf("expected one clear and no acquire, got %d/%d", fake.clearCalls, fake.acquireCalls)
	}
}
