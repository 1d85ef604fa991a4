package common

import (
	"errors"
	"testing"

	"dineledger/core/state"
	"dineledger/storage"
)

func TestPausesGuard(t *testing.T) {
	pauses := NewPauses(state.NewManager(storage.NewMemDB()))
	if err := Guard(pauses, "reviews"); err != nil {
		t.Fatalf("fresh module should not be paused: %v", err)
	}
	if err := pauses.SetPaused("reviews", true); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if err := Guard(pauses, "reviews"); !errors.Is(err, ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}
	if err := Guard(pauses, "payments"); err != nil {
		t.Fatalf("pause leaked across modules: %v", err)
	}
	if err := pauses.SetPaused("reviews", false); err != nil {
		t.Fatalf("unpause: %v", err)
	}
	if pauses.IsPaused("reviews") {
		t.Fatalf("expected module to resume")
	}
	if err := Guard(nil, "reviews"); err != nil {
		t.Fatalf("nil view should never block: %v", err)
	}
}
