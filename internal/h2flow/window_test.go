package h2flow

import (
	"testing"

	"github.com/albertbausili/celeris/internal/h2wire"
)

func TestNewWindowSize(t *testing.T) {
	w := New(h2wire.DefaultInitialWindowSize)
	if got := w.Size(); got != h2wire.DefaultInitialWindowSize {
		t.Fatalf("Size() = %d, want %d", got, h2wire.DefaultInitialWindowSize)
	}
}

func TestConsumeReducesWindow(t *testing.T) {
	w := New(1000)
	if err := w.Consume(400); err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if got := w.Size(); got != 600 {
		t.Fatalf("Size() = %d, want 600", got)
	}
}

func TestConsumeRejectsUnderflowWithoutMutating(t *testing.T) {
	w := New(h2wire.MinWindowSize + 10)
	if err := w.Consume(11); err == nil {
		t.Fatal("Consume(11) driving the window below MinWindowSize should error")
	}
	if got := w.Size(); got != h2wire.MinWindowSize+10 {
		t.Fatalf("window mutated on rejected consume: Size() = %d, want %d", got, h2wire.MinWindowSize+10)
	}
}

func TestConsumeNegativeRejected(t *testing.T) {
	w := New(10)
	if err := w.Consume(-1); err == nil {
		t.Fatal("Consume(-1) should error")
	}
}

func TestIncreaseGrowsWindow(t *testing.T) {
	w := New(0)
	if err := w.Increase(100); err != nil {
		t.Fatalf("Increase: %v", err)
	}
	if got := w.Size(); got != 100 {
		t.Fatalf("Size() = %d, want 100", got)
	}
}

func TestIncreaseRejectsOverflowWithoutMutating(t *testing.T) {
	w := New(h2wire.MaxWindowSize - 1)
	if err := w.Increase(10); err == nil {
		t.Fatal("Increase should reject overflow past MaxWindowSize")
	}
	if got := w.Size(); got != h2wire.MaxWindowSize-1 {
		t.Fatalf("window mutated on rejected increase: Size() = %d", got)
	}
}

func TestIncreaseRejectsNonPositive(t *testing.T) {
	w := New(10)
	if err := w.Increase(0); err == nil {
		t.Fatal("Increase(0) should error")
	}
	if err := w.Increase(-5); err == nil {
		t.Fatal("Increase(-5) should error")
	}
}

func TestApplyInitialWindowSizeDeltaShrinksAndMayGoNegative(t *testing.T) {
	w := New(100)
	// SETTINGS_INITIAL_WINDOW_SIZE shrinks by 150 while only 100 remain: delta is -150.
	if err := w.ApplyInitialWindowSizeDelta(-150); err != nil {
		t.Fatalf("ApplyInitialWindowSizeDelta: %v", err)
	}
	if got := w.Size(); got != -50 {
		t.Fatalf("Size() = %d, want -50", got)
	}
	if !w.Exhausted() {
		t.Fatal("negative window should report Exhausted")
	}
}

func TestApplyInitialWindowSizeDeltaRejectsOutOfRange(t *testing.T) {
	w := New(h2wire.MinWindowSize + 10)
	if err := w.ApplyInitialWindowSizeDelta(-20); err == nil {
		t.Fatal("delta pushing window below MinWindowSize should error")
	}
}

func TestExhausted(t *testing.T) {
	w := New(1)
	if w.Exhausted() {
		t.Fatal("window of 1 should not be exhausted")
	}
	if err := w.Consume(1); err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if !w.Exhausted() {
		t.Fatal("window of 0 should be exhausted")
	}
}
