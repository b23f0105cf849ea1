package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"lp-hedge-bot/internal/alerts"
	"lp-hedge-bot/internal/config"

	"go.uber.org/zap"
)

const operatorOffsetKey = "telegram:operator:last_update_id"

type operatorMeta struct {
	UpdateID int64
	UserID   int64
	Username string
	ChatID   int64
	Raw      string
}

// bandSettings is the operator-adjustable slice of the decision config:
// the USD thresholds plus the close ratio they are paired with.
type bandSettings struct {
	MinUSD        float64 `json:"min_usd"`
	MaxUSD        float64 `json:"max_usd"`
	StepUSD       float64 `json:"step_usd"`
	CloseRatioPct float64 `json:"close_ratio_pct"`
}

type operatorAuditEvent struct {
	UpdateID     int64         `json:"update_id"`
	Time         time.Time     `json:"time"`
	Action       string        `json:"action"`
	Command      string        `json:"command"`
	UserID       int64         `json:"user_id"`
	Username     string        `json:"username,omitempty"`
	ChatID       int64         `json:"chat_id"`
	PausedBefore bool          `json:"paused_before"`
	PausedAfter  bool          `json:"paused_after"`
	BandsBefore  *bandSettings `json:"bands_before,omitempty"`
	BandsAfter   *bandSettings `json:"bands_after,omitempty"`
}

func (a *App) startOperator(ctx context.Context) {
	if a.cfg == nil || a.console == nil || a.log == nil {
		return
	}
	if !a.cfg.Alerts.Telegram.OperatorEnabled {
		return
	}
	chatID, err := strconv.ParseInt(strings.TrimSpace(a.cfg.Alerts.Telegram.ChatID), 10, 64)
	if err != nil {
		a.log.Warn("telegram operator disabled: invalid chat_id", zap.Error(err))
		return
	}
	pollInterval := a.cfg.Alerts.Telegram.OperatorPollInterval
	if pollInterval <= 0 {
		pollInterval = 3 * time.Second
	}
	allowedUsers := make(map[int64]struct{}, len(a.cfg.Alerts.Telegram.OperatorAllowedUserIDs))
	for _, id := range a.cfg.Alerts.Telegram.OperatorAllowedUserIDs {
		allowedUsers[id] = struct{}{}
	}
	go a.operatorLoop(ctx, chatID, allowedUsers, pollInterval)
}

func (a *App) operatorLoop(ctx context.Context, chatID int64, allowedUsers map[int64]struct{}, pollInterval time.Duration) {
	offset := a.loadOperatorOffset(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		updates, err := a.console.GetUpdates(ctx, offset, pollInterval)
		if err != nil {
			a.logOperatorError(err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(pollInterval):
			}
			continue
		}
		if a.operatorWarned {
			a.log.Info("telegram operator recovered")
			a.operatorWarned = false
		}
		for _, upd := range updates {
			if upd.UpdateID >= offset {
				offset = upd.UpdateID + 1
				a.saveOperatorOffset(ctx, offset)
			}
			a.handleOperatorUpdate(ctx, upd, chatID, allowedUsers)
		}
	}
}

func (a *App) handleOperatorUpdate(ctx context.Context, upd alerts.Update, chatID int64, allowedUsers map[int64]struct{}) {
	if upd.Message == nil {
		return
	}
	msg := upd.Message
	if msg.Chat == nil || msg.From == nil {
		return
	}
	if msg.Chat.ID != chatID {
		return
	}
	if len(allowedUsers) > 0 {
		if _, ok := allowedUsers[msg.From.ID]; !ok {
			return
		}
	}
	cmd, args, ok := parseOperatorCommand(msg.Text)
	if !ok {
		return
	}
	meta := operatorMeta{
		UpdateID: upd.UpdateID,
		UserID:   msg.From.ID,
		Username: msg.From.Username,
		ChatID:   msg.Chat.ID,
		Raw:      msg.Text,
	}
	resp, err := a.handleOperatorCommand(ctx, cmd, args, meta)
	if err != nil {
		resp = fmt.Sprintf("command failed: %v", err)
	}
	if resp == "" {
		return
	}
	if err := a.console.Send(ctx, alerts.Message{Body: resp}); err != nil {
		a.log.Warn("operator response failed", zap.Error(err))
	}
}

func parseOperatorCommand(text string) (string, []string, bool) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "", nil, false
	}
	if !strings.HasPrefix(trimmed, "/") {
		return "", nil, false
	}
	fields := strings.Fields(trimmed)
	if len(fields) == 0 {
		return "", nil, false
	}
	cmd := strings.ToLower(strings.TrimPrefix(fields[0], "/"))
	return cmd, fields[1:], true
}

func (a *App) handleOperatorCommand(ctx context.Context, cmd string, args []string, meta operatorMeta) (string, error) {
	switch cmd {
	case "status":
		return a.operatorStatus(), nil
	case "pause":
		before := a.isPaused()
		after := a.setPaused(true)
		a.auditOperatorEvent(ctx, operatorAuditEvent{
			UpdateID:     meta.UpdateID,
			Time:         time.Now().UTC(),
			Action:       "pause",
			Command:      meta.Raw,
			UserID:       meta.UserID,
			Username:     meta.Username,
			ChatID:       meta.ChatID,
			PausedBefore: before,
			PausedAfter:  after,
		})
		if before {
			return "trading already paused", nil
		}
		return "trading paused", nil
	case "resume":
		before := a.isPaused()
		after := a.setPaused(false)
		a.auditOperatorEvent(ctx, operatorAuditEvent{
			UpdateID:     meta.UpdateID,
			Time:         time.Now().UTC(),
			Action:       "resume",
			Command:      meta.Raw,
			UserID:       meta.UserID,
			Username:     meta.Username,
			ChatID:       meta.ChatID,
			PausedBefore: before,
			PausedAfter:  after,
		})
		if !before {
			return "trading already active", nil
		}
		return "trading resumed", nil
	case "bands":
		return a.handleBandsCommand(ctx, args, meta)
	case "help":
		return operatorHelpText(), nil
	default:
		return operatorHelpText(), nil
	}
}

func (a *App) handleBandsCommand(ctx context.Context, args []string, meta operatorMeta) (string, error) {
	if len(args) == 0 || strings.EqualFold(args[0], "show") {
		return a.bandsStatus(), nil
	}
	switch strings.ToLower(args[0]) {
	case "reset":
		before := a.bandsOverrideSnapshot()
		a.clearBandsOverride()
		a.auditOperatorEvent(ctx, operatorAuditEvent{
			UpdateID:    meta.UpdateID,
			Time:        time.Now().UTC(),
			Action:      "bands_reset",
			Command:     meta.Raw,
			UserID:      meta.UserID,
			Username:    meta.Username,
			ChatID:      meta.ChatID,
			BandsBefore: before,
		})
		return "band override cleared", nil
	case "set":
		overrides, err := parseBandOverrides(args[1:])
		if err != nil {
			return "", err
		}
		before := a.bandsOverrideSnapshot()
		next, err := applyBandOverrides(a.effectiveBands(), overrides)
		if err != nil {
			return "", err
		}
		if bandsEqual(next, a.configBands()) {
			a.clearBandsOverride()
		} else {
			a.setBandsOverride(next)
		}
		after := a.bandsOverrideSnapshot()
		a.auditOperatorEvent(ctx, operatorAuditEvent{
			UpdateID:    meta.UpdateID,
			Time:        time.Now().UTC(),
			Action:      "bands_set",
			Command:     meta.Raw,
			UserID:      meta.UserID,
			Username:    meta.Username,
			ChatID:      meta.ChatID,
			BandsBefore: before,
			BandsAfter:  after,
		})
		return "band override updated", nil
	default:
		return "", errors.New("unknown bands command: use /bands show|set|reset")
	}
}

func parseBandOverrides(args []string) (map[string]string, error) {
	if len(args) == 0 {
		return nil, errors.New("bands set requires key=value pairs")
	}
	out := make(map[string]string)
	for _, arg := range args {
		parts := strings.SplitN(arg, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid band setting: %s", arg)
		}
		key := strings.ToLower(strings.TrimSpace(parts[0]))
		val := strings.TrimSpace(parts[1])
		if key == "" || val == "" {
			return nil, fmt.Errorf("invalid band setting: %s", arg)
		}
		out[key] = val
	}
	return out, nil
}

func applyBandOverrides(base bandSettings, overrides map[string]string) (bandSettings, error) {
	next := base
	for key, val := range overrides {
		parsed, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return bandSettings{}, fmt.Errorf("%s: %w", key, err)
		}
		switch key {
		case "min_usd":
			next.MinUSD = parsed
		case "max_usd":
			next.MaxUSD = parsed
		case "step_usd":
			next.StepUSD = parsed
		case "close_ratio_pct":
			next.CloseRatioPct = parsed
		default:
			return bandSettings{}, fmt.Errorf("unknown band key: %s", key)
		}
	}
	if err := validateBandOverride(next); err != nil {
		return bandSettings{}, err
	}
	return next, nil
}

func validateBandOverride(bands bandSettings) error {
	if bands.MinUSD < 0 {
		return errors.New("min_usd must be >= 0")
	}
	if bands.MaxUSD <= bands.MinUSD {
		return errors.New("max_usd must be greater than min_usd")
	}
	if bands.StepUSD <= 0 {
		return errors.New("step_usd must be > 0")
	}
	if bands.CloseRatioPct <= 0 || bands.CloseRatioPct > 100 {
		return errors.New("close_ratio_pct must be in (0, 100]")
	}
	return nil
}

func (a *App) operatorStatus() string {
	if a.cfg == nil {
		return "status unavailable"
	}
	a.opsMu.RLock()
	paused := a.paused
	reports := make(map[string]symbolStatus, len(a.reports))
	for symbol, rep := range a.reports {
		reports[symbol] = rep
	}
	a.opsMu.RUnlock()
	thresholds, orders := a.bandsConfig()
	lines := []string{
		fmt.Sprintf("paused: %t", paused),
		fmt.Sprintf("dry_run: %t", a.cfg.Engine.DryRun),
		fmt.Sprintf("bands: min_usd=%.2f max_usd=%.2f step_usd=%.2f close_ratio_pct=%.1f",
			thresholds.MinUSD, thresholds.MaxUSD, thresholds.StepUSD, orders.CloseRatioPct),
	}
	merged := make(map[string]symbolStatus, len(reports))
	for _, symbol := range a.cfg.Engine.Symbols {
		merged[symbol] = reports[symbol]
	}
	for symbol, rep := range reports {
		merged[symbol] = rep
	}
	for _, symbol := range sortedSymbols(merged) {
		rep := merged[symbol]
		if rep.UpdatedAt.IsZero() {
			lines = append(lines, fmt.Sprintf("%s: no data yet", symbol))
			continue
		}
		lines = append(lines, fmt.Sprintf("%s: offset=%.6f (%.2f USD) zone=%s cooldown=%s open_orders=%d",
			symbol, rep.Offset, rep.OffsetUSD, rep.Zone, rep.Cooldown, rep.OpenOrders))
	}
	return strings.Join(lines, "\n")
}

func (a *App) bandsStatus() string {
	effective := a.effectiveBands()
	override := a.bandsOverrideSnapshot()
	lines := []string{
		fmt.Sprintf("bands effective: min_usd=%.2f max_usd=%.2f step_usd=%.2f close_ratio_pct=%.2f",
			effective.MinUSD, effective.MaxUSD, effective.StepUSD, effective.CloseRatioPct),
	}
	if override != nil {
		lines = append(lines, fmt.Sprintf("bands override: min_usd=%.2f max_usd=%.2f step_usd=%.2f close_ratio_pct=%.2f",
			override.MinUSD, override.MaxUSD, override.StepUSD, override.CloseRatioPct))
	} else {
		lines = append(lines, "bands override: none")
	}
	return strings.Join(lines, "\n")
}

func operatorHelpText() string {
	return strings.Join([]string{
		"commands:",
		"/status - offsets, zones and open orders per symbol",
		"/pause - pause reconciliation cycles",
		"/resume - resume reconciliation cycles",
		"/bands show - show active band settings",
		"/bands set key=value ... - override bands (keys: min_usd, max_usd, step_usd, close_ratio_pct)",
		"/bands reset - clear band override",
	}, "\n")
}

func (a *App) isPaused() bool {
	a.opsMu.RLock()
	defer a.opsMu.RUnlock()
	return a.paused
}

func (a *App) setPaused(paused bool) bool {
	a.opsMu.Lock()
	defer a.opsMu.Unlock()
	a.paused = paused
	return a.paused
}

// bandsConfig returns the threshold and order settings the decision
// engine should use this cycle, with any operator override applied.
func (a *App) bandsConfig() (config.ThresholdConfig, config.OrderConfig) {
	thresholds := a.cfg.Thresholds
	orders := a.cfg.Orders
	bands := a.effectiveBands()
	thresholds.MinUSD = bands.MinUSD
	thresholds.MaxUSD = bands.MaxUSD
	thresholds.StepUSD = bands.StepUSD
	orders.CloseRatioPct = bands.CloseRatioPct
	return thresholds, orders
}

func (a *App) configBands() bandSettings {
	return bandSettings{
		MinUSD:        a.cfg.Thresholds.MinUSD,
		MaxUSD:        a.cfg.Thresholds.MaxUSD,
		StepUSD:       a.cfg.Thresholds.StepUSD,
		CloseRatioPct: a.cfg.Orders.CloseRatioPct,
	}
}

func (a *App) effectiveBands() bandSettings {
	a.opsMu.RLock()
	override := a.bandsOverride
	a.opsMu.RUnlock()
	if override != nil {
		return *override
	}
	return a.configBands()
}

func (a *App) bandsOverrideSnapshot() *bandSettings {
	a.opsMu.RLock()
	defer a.opsMu.RUnlock()
	if a.bandsOverride == nil {
		return nil
	}
	copy := *a.bandsOverride
	return &copy
}

func (a *App) setBandsOverride(bands bandSettings) {
	a.opsMu.Lock()
	defer a.opsMu.Unlock()
	a.bandsOverride = &bands
}

func (a *App) clearBandsOverride() {
	a.opsMu.Lock()
	defer a.opsMu.Unlock()
	a.bandsOverride = nil
}

func (a *App) logOperatorError(err error) {
	if a.log == nil {
		return
	}
	if a.operatorWarned {
		return
	}
	a.operatorWarned = true
	a.log.Warn("telegram operator failed", zap.Error(err))
}

func (a *App) loadOperatorOffset(ctx context.Context) int64 {
	if a.store == nil {
		return 0
	}
	raw, ok, err := a.store.Get(ctx, operatorOffsetKey)
	if err != nil || !ok {
		return 0
	}
	val, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0
	}
	if val < 0 {
		return 0
	}
	return val
}

func (a *App) saveOperatorOffset(ctx context.Context, offset int64) {
	if a.store == nil {
		return
	}
	_ = a.store.Set(ctx, operatorOffsetKey, strconv.FormatInt(offset, 10))
}

func (a *App) auditOperatorEvent(ctx context.Context, event operatorAuditEvent) {
	if a.store == nil {
		return
	}
	key := fmt.Sprintf("ops:audit:%d:%d", time.Now().UTC().UnixNano(), event.UpdateID)
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	_ = a.store.Set(ctx, key, string(payload))
}

func bandsEqual(x, y bandSettings) bool {
	return x.MinUSD == y.MinUSD &&
		x.MaxUSD == y.MaxUSD &&
		x.StepUSD == y.StepUSD &&
		x.CloseRatioPct == y.CloseRatioPct
}
