package hl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

type perpMeta struct {
	Index      int
	SzDecimals int
}

// marketData caches mid prices fed by the allMids stream and the perp
// universe metadata needed to build order wires. REST is the fallback
// whenever the stream has not delivered a symbol yet.
type marketData struct {
	rest *restClient
	ws   *wsClient
	log  *zap.Logger

	mu          sync.RWMutex
	midPrices   map[string]float64
	meta        map[string]perpMeta
	lastRefresh time.Time
}

const metaRefreshWindow = 30 * time.Second

func newMarketData(rest *restClient, ws *wsClient, log *zap.Logger) *marketData {
	return &marketData{
		rest:      rest,
		ws:        ws,
		log:       log,
		midPrices: make(map[string]float64),
		meta:      make(map[string]perpMeta),
	}
}

func (m *marketData) start(ctx context.Context) error {
	if err := m.refreshMeta(ctx, true); err != nil {
		return err
	}
	if m.ws == nil {
		return nil
	}
	sub := map[string]any{"method": "subscribe", "subscription": map[string]any{"type": "allMids"}}
	if err := m.ws.subscribe(ctx, sub); err != nil {
		return err
	}
	go func() {
		if err := m.ws.run(ctx, m.handleMessage); err != nil && ctx.Err() == nil {
			m.log.Warn("market stream stopped", zap.Error(err))
		}
	}()
	return nil
}

func (m *marketData) mid(ctx context.Context, coin string) (float64, error) {
	m.mu.RLock()
	price, ok := m.midPrices[coin]
	m.mu.RUnlock()
	if ok && price > 0 {
		return price, nil
	}
	resp, err := m.rest.info(ctx, infoRequest{Type: "allMids"})
	if err != nil {
		return 0, err
	}
	m.updateMids(resp)
	m.mu.RLock()
	price, ok = m.midPrices[coin]
	m.mu.RUnlock()
	if !ok || price <= 0 {
		return 0, fmt.Errorf("no mid price for %s", coin)
	}
	return price, nil
}

func (m *marketData) assetMeta(ctx context.Context, coin string) (perpMeta, error) {
	m.mu.RLock()
	meta, ok := m.meta[coin]
	m.mu.RUnlock()
	if ok {
		return meta, nil
	}
	if err := m.refreshMeta(ctx, false); err != nil {
		return perpMeta{}, err
	}
	m.mu.RLock()
	meta, ok = m.meta[coin]
	m.mu.RUnlock()
	if !ok {
		return perpMeta{}, fmt.Errorf("unknown perp asset %s", coin)
	}
	return meta, nil
}

func (m *marketData) refreshMeta(ctx context.Context, force bool) error {
	m.mu.RLock()
	last := m.lastRefresh
	m.mu.RUnlock()
	if !force && !last.IsZero() && time.Since(last) < metaRefreshWindow {
		return nil
	}
	resp, err := m.rest.info(ctx, infoRequest{Type: "meta"})
	if err != nil {
		return err
	}
	parsed, err := parsePerpMeta(resp)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.meta = parsed
	m.lastRefresh = time.Now().UTC()
	m.mu.Unlock()
	return nil
}

func parsePerpMeta(payload map[string]any) (map[string]perpMeta, error) {
	raw, ok := payload["universe"].([]any)
	if !ok {
		return nil, errors.New("meta response missing universe")
	}
	meta := make(map[string]perpMeta, len(raw))
	for i, item := range raw {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		name := stringFromAny(entry["name"])
		if name == "" {
			continue
		}
		meta[name] = perpMeta{
			Index:      i,
			SzDecimals: intFromAny(entry["szDecimals"]),
		}
	}
	return meta, nil
}

func (m *marketData) handleMessage(msg json.RawMessage) {
	var payload map[string]any
	if err := json.Unmarshal(msg, &payload); err != nil {
		m.log.Debug("ws decode error", zap.Error(err))
		return
	}
	m.updateMids(payload)
}

func (m *marketData) updateMids(payload map[string]any) {
	var mids map[string]any
	if data, ok := payload["data"].(map[string]any); ok {
		if raw, ok := data["mids"].(map[string]any); ok {
			mids = raw
		}
	}
	if mids == nil {
		if raw, ok := payload["mids"].(map[string]any); ok {
			mids = raw
		}
	}
	if mids == nil {
		// /info allMids returns a flat map of symbol -> mid.
		if _, hasData := payload["data"]; !hasData {
			mids = payload
		}
	}
	if mids == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for coin, v := range mids {
		if f, ok := floatFromAny(v); ok {
			m.midPrices[coin] = f
		}
	}
}
