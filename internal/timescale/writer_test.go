package timescale

import (
	"context"
	"testing"

	"lp-hedge-bot/internal/config"

	"go.uber.org/zap"
)

func TestNewDisabledReturnsNilWriter(t *testing.T) {
	w, err := New(config.TimescaleConfig{Enabled: false}, zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if w != nil {
		t.Fatalf("expected nil writer when disabled")
	}
}

func TestNewRequiresDSN(t *testing.T) {
	if _, err := New(config.TimescaleConfig{Enabled: true}, zap.NewNop()); err == nil {
		t.Fatalf("expected error for missing dsn")
	}
}

// The engine holds a nil *Writer when persistence is disabled, so every
// exported method must tolerate it.
func TestNilWriterIsSafe(t *testing.T) {
	var w *Writer
	w.Start(context.Background())
	w.EnqueueCycle(CycleRow{Symbol: "SOL"})
	w.EnqueueAction(ActionRow{Symbol: "SOL"})
	if err := w.Close(); err != nil {
		t.Fatalf("nil writer close: %v", err)
	}
}
