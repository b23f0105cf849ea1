package hl

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"lp-hedge-bot/internal/config"
	"lp-hedge-bot/internal/exchange"
)

// marketSlippagePct prices synthetic market orders: an IOC limit this
// far through the mid fills like a market order without accepting an
// unbounded print.
const marketSlippagePct = 5.0

// Gateway implements exchange.Gateway against the Hyperliquid perp
// API. Signing is optional; without a private key the read-only calls
// work and order placement fails, which is all a dry run needs.
type Gateway struct {
	rest    *restClient
	ws      *wsClient
	market  *marketData
	actions *actionClient
	log     *zap.Logger
	user    string

	symbolToCoin map[string]string
	coinToSymbol map[string]string
}

func New(cfg config.ExchangeConfig, store NonceStore, log *zap.Logger) (*Gateway, error) {
	rest := newRESTClient(cfg.BaseURL, cfg.Timeout)
	ws := newWSClient(cfg.WSURL, log)

	g := &Gateway{
		rest:         rest,
		ws:           ws,
		market:       newMarketData(rest, ws, log),
		log:          log,
		user:         strings.ToLower(strings.TrimSpace(cfg.WalletAddress)),
		symbolToCoin: make(map[string]string),
		coinToSymbol: make(map[string]string),
	}
	for symbol, coin := range cfg.SymbolMap {
		g.symbolToCoin[symbol] = coin
		g.coinToSymbol[coin] = symbol
	}

	if strings.TrimSpace(cfg.PrivateKey) != "" {
		isMainnet := !strings.Contains(cfg.BaseURL, "testnet")
		signer, err := NewSigner(cfg.PrivateKey, isMainnet)
		if err != nil {
			return nil, fmt.Errorf("exchange signer: %w", err)
		}
		if g.user == "" {
			g.user = strings.ToLower(signer.Address().Hex())
		}
		actions, err := newActionClient(rest, signer, "", log)
		if err != nil {
			return nil, err
		}
		if err := actions.initNonceStore(context.Background(), store); err != nil {
			return nil, fmt.Errorf("nonce store: %w", err)
		}
		g.actions = actions
	}
	return g, nil
}

// Start warms the perp metadata cache and begins streaming mids.
func (g *Gateway) Start(ctx context.Context) error {
	return g.market.start(ctx)
}

func (g *Gateway) Close() error {
	if g.ws != nil {
		g.ws.close()
	}
	return nil
}

func (g *Gateway) Price(ctx context.Context, symbol string) (float64, error) {
	return g.market.mid(ctx, g.coin(symbol))
}

func (g *Gateway) Position(ctx context.Context, symbol string) (float64, error) {
	resp, err := g.rest.info(ctx, infoRequest{Type: "clearinghouseState", User: g.user})
	if err != nil {
		return 0, err
	}
	return parsePositions(resp)[g.coin(symbol)], nil
}

func (g *Gateway) OpenOrders(ctx context.Context, symbol string) ([]exchange.Order, error) {
	resp, err := g.rest.infoAny(ctx, infoRequest{Type: "openOrders", User: g.user})
	if err != nil {
		return nil, err
	}
	coin := g.coin(symbol)
	var orders []exchange.Order
	for _, entry := range parseOpenOrders(resp) {
		order := orderFromMap(entry)
		if order.Symbol != coin {
			continue
		}
		order.Symbol = symbol
		orders = append(orders, order)
	}
	return orders, nil
}

func (g *Gateway) RecentFills(ctx context.Context, symbol string, lookback time.Duration) ([]exchange.Fill, error) {
	req := map[string]any{
		"type":      "userFillsByTime",
		"user":      g.user,
		"startTime": time.Now().Add(-lookback).UnixMilli(),
	}
	resp, err := g.rest.infoAny(ctx, req)
	if err != nil {
		return nil, err
	}
	coin := g.coin(symbol)
	var fills []exchange.Fill
	for _, fill := range parseFills(resp) {
		if fill.Symbol != coin {
			continue
		}
		fill.Symbol = symbol
		fills = append(fills, fill)
	}
	return fills, nil
}

func (g *Gateway) PlaceLimit(ctx context.Context, symbol, side string, size, price float64) (string, error) {
	return g.place(ctx, symbol, side, size, price, TifGtc)
}

// PlaceMarket submits an IOC limit order priced through the mid.
// Closing an offset can legitimately extend the exchange position past
// zero, so the order is never reduce-only.
func (g *Gateway) PlaceMarket(ctx context.Context, symbol, side string, size float64) (string, error) {
	mid, err := g.market.mid(ctx, g.coin(symbol))
	if err != nil {
		return "", err
	}
	price := mid * (1 + marketSlippagePct/100)
	if side == exchange.SideSell {
		price = mid * (1 - marketSlippagePct/100)
	}
	return g.place(ctx, symbol, side, size, price, TifIoc)
}

func (g *Gateway) place(ctx context.Context, symbol, side string, size, price float64, tif Tif) (string, error) {
	if g.actions == nil {
		return "", errors.New("order signing not configured")
	}
	coin := g.coin(symbol)
	meta, err := g.market.assetMeta(ctx, coin)
	if err != nil {
		return "", err
	}
	size = normalizeSize(size, meta.SzDecimals)
	if size <= 0 {
		return "", fmt.Errorf("size %v rounds to zero for %s", size, symbol)
	}
	price = normalizePrice(price, meta.SzDecimals)

	wire, err := LimitOrderWire(meta.Index, side == exchange.SideBuy, size, price, false, tif, newCloid())
	if err != nil {
		return "", err
	}
	resp, err := g.actions.placeOrder(ctx, wire)
	if err != nil {
		return "", err
	}
	if msg := ResponseError(resp); msg != "" {
		return "", fmt.Errorf("order rejected: %s", msg)
	}
	return OrderIDFromResponse(resp), nil
}

func (g *Gateway) Cancel(ctx context.Context, symbol, orderID string) error {
	if g.actions == nil {
		return errors.New("order signing not configured")
	}
	oid, err := strconv.ParseInt(strings.TrimSpace(orderID), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid order id %q: %w", orderID, err)
	}
	meta, err := g.market.assetMeta(ctx, g.coin(symbol))
	if err != nil {
		return err
	}
	resp, err := g.actions.cancelOrder(ctx, meta.Index, oid)
	if err != nil {
		return err
	}
	if msg := ResponseError(resp); msg != "" && !orderAlreadyGone(msg) {
		return fmt.Errorf("cancel rejected: %s", msg)
	}
	return nil
}

func (g *Gateway) OrderStatus(ctx context.Context, orderID string) (exchange.Status, error) {
	oid, err := strconv.ParseInt(strings.TrimSpace(orderID), 10, 64)
	if err != nil {
		return exchange.StatusUnknown, fmt.Errorf("invalid order id %q: %w", orderID, err)
	}
	resp, err := g.rest.info(ctx, map[string]any{
		"type": "orderStatus",
		"user": g.user,
		"oid":  oid,
	})
	if err != nil {
		return exchange.StatusUnknown, err
	}
	if stringFromAny(resp["status"]) == "unknownOid" {
		return exchange.StatusUnknown, exchange.ErrOrderNotFound
	}
	if order, ok := resp["order"].(map[string]any); ok {
		return statusFromWire(stringFromAny(order["status"])), nil
	}
	return exchange.StatusUnknown, nil
}

func (g *Gateway) coin(symbol string) string {
	if coin, ok := g.symbolToCoin[symbol]; ok {
		return coin
	}
	return symbol
}

// orderAlreadyGone matches the rejection the exchange returns when a
// cancel races a fill or targets an order that no longer rests.
// Cancelling those is a success for reconciliation purposes.
func orderAlreadyGone(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "never placed") ||
		strings.Contains(lower, "already canceled") ||
		strings.Contains(lower, "canceled or filled")
}

func newCloid() string {
	id := uuid.New()
	return "0x" + strings.ReplaceAll(id.String(), "-", "")
}
