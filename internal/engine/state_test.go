package engine

import (
	"testing"

	"arbmon/internal/models"
)

func TestPairState_OpenThenClose(t *testing.T) {
	ps := newPairState()
	if ps.State() != models.StateIdle {
		t.Fatalf("new pairState state = %v, want IDLE", ps.State())
	}
	if ps.IsOpen() {
		t.Fatal("new pairState should not be open")
	}

	if !ps.open(models.OpenPosition{Pair: "X/Y"}) {
		t.Fatal("open() on an IDLE state should succeed")
	}
	if ps.State() != models.StateOpen || !ps.IsOpen() {
		t.Fatal("expected OPEN after open()")
	}

	pos, ok := ps.close()
	if !ok {
		t.Fatal("close() on an OPEN state should succeed")
	}
	if pos.Pair != "X/Y" {
		t.Errorf("closed position pair = %s, want X/Y", pos.Pair)
	}
	if ps.State() != models.StateIdle || ps.IsOpen() {
		t.Fatal("expected IDLE after close()")
	}
}

func TestPairState_OpenWhileOpenIsNoOp(t *testing.T) {
	ps := newPairState()
	ps.open(models.OpenPosition{Pair: "first"})

	if ps.open(models.OpenPosition{Pair: "second"}) {
		t.Fatal("open() while already OPEN should return false")
	}

	pos, _ := ps.Position()
	if pos.Pair != "first" {
		t.Errorf("position should still be the first one, got %s", pos.Pair)
	}
}

func TestPairState_CloseWhileIdleFails(t *testing.T) {
	ps := newPairState()
	if _, ok := ps.close(); ok {
		t.Fatal("close() on an IDLE state should fail")
	}
}
