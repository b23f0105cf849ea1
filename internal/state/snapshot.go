package state

import (
	"context"
	"encoding/json"
	"strings"
)

const SnapshotKey = "engine:last_snapshot"

// AssetState is what the tracker needs to resume a symbol: the last
// reconciled offset and the cost basis it was acquired at.
type AssetState struct {
	Offset      float64 `json:"offset"`
	CostBasis   float64 `json:"cost_basis"`
	UpdatedAtMS int64   `json:"updated_at_ms"`
}

// Snapshot maps engine symbols to their persisted state.
type Snapshot map[string]AssetState

func LoadSnapshot(ctx context.Context, store Store) (Snapshot, bool, error) {
	if store == nil {
		return nil, false, nil
	}
	raw, ok, err := store.Get(ctx, SnapshotKey)
	if err != nil {
		return nil, false, err
	}
	if !ok || strings.TrimSpace(raw) == "" {
		return nil, false, nil
	}
	var snapshot Snapshot
	if err := json.Unmarshal([]byte(raw), &snapshot); err != nil {
		return nil, false, err
	}
	return snapshot, true, nil
}

func SaveSnapshot(ctx context.Context, store Store, snapshot Snapshot) error {
	if store == nil {
		return nil
	}
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	return store.Set(ctx, SnapshotKey, string(payload))
}
