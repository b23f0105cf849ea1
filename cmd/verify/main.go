// Command verify is a deployment preflight: it checks that the signer
// matches the configured wallet, that the exchange and the Solana RPC
// answer, and prints the order the engine would derive from the live
// position. With -place it round-trips a far-from-mid limit order
// through the signing path and cancels it.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"
	"time"

	"lp-hedge-bot/internal/config"
	"lp-hedge-bot/internal/exchange"
	"lp-hedge-bot/internal/exchange/hl"
	"lp-hedge-bot/internal/hedge"
	"lp-hedge-bot/internal/logging"
	"lp-hedge-bot/internal/pool"
	"lp-hedge-bot/internal/pool/alp"
	"lp-hedge-bot/internal/pool/jlp"
	"lp-hedge-bot/internal/solana"
	"lp-hedge-bot/internal/state/sqlite"
)

// placeNotionalUSD sizes the -place probe order. Small enough to be
// harmless, large enough to clear the venue's minimum notional.
const placeNotionalUSD = 12.0

func main() {
	configPath := flag.String("config", "internal/config/config.yaml", "path to config file")
	symbol := flag.String("symbol", "", "symbol to verify (default: first configured)")
	place := flag.Bool("place", false, "place and cancel a far-from-mid probe order")
	flag.Parse()

	if err := config.LoadEnv(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		fatal(err)
	}
	log := logging.New(cfg.Log)
	defer func() { _ = log.Sync() }()

	target := strings.TrimSpace(*symbol)
	if target == "" {
		if len(cfg.Engine.Symbols) == 0 {
			fatal(errors.New("no symbols configured and -symbol not given"))
		}
		target = cfg.Engine.Symbols[0]
	}
	fmt.Printf("symbol: %s\n", target)

	if cfg.Exchange.PrivateKey != "" {
		isMainnet := !strings.Contains(cfg.Exchange.BaseURL, "testnet")
		signer, err := hl.NewSigner(cfg.Exchange.PrivateKey, isMainnet)
		if err != nil {
			fatal(err)
		}
		derived := signer.Address().Hex()
		if cfg.Exchange.WalletAddress != "" && !strings.EqualFold(cfg.Exchange.WalletAddress, derived) {
			fatal(fmt.Errorf("wallet address %s does not match signer %s", cfg.Exchange.WalletAddress, derived))
		}
		fmt.Printf("signer: %s (matches wallet)\n", derived)
	} else {
		fmt.Println("signer: not configured (read-only checks)")
		if *place {
			fatal(errors.New("-place requires exchange.private_key"))
		}
	}

	store, err := sqlite.New(cfg.State.SQLitePath)
	if err != nil {
		fatal(err)
	}
	defer store.Close()

	gateway, err := hl.New(cfg.Exchange, store, log)
	if err != nil {
		fatal(err)
	}
	defer gateway.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	if err := gateway.Start(ctx); err != nil {
		fatal(fmt.Errorf("exchange start: %w", err))
	}

	price, err := gateway.Price(ctx, target)
	if err != nil {
		fatal(fmt.Errorf("price: %w", err))
	}
	fmt.Printf("price: %.6f\n", price)

	position, err := gateway.Position(ctx, target)
	if err != nil {
		fatal(fmt.Errorf("position: %w", err))
	}
	fmt.Printf("position: %.6f\n", position)

	orders, err := gateway.OpenOrders(ctx, target)
	if err != nil {
		fatal(fmt.Errorf("open orders: %w", err))
	}
	fmt.Printf("open orders: %d\n", len(orders))
	for _, o := range orders {
		fmt.Printf("  %s %s %.6f @ %.6f (age %s)\n",
			o.ID, o.Side, o.Size, o.Price, time.Since(o.CreatedAt).Round(time.Second))
	}

	chain := solana.NewClient(cfg.Solana.RPCURL, solana.WithTimeout(cfg.Solana.Timeout))
	sources := []pool.Source{jlp.New(chain, log), alp.New(chain, log)}
	amounts := map[string]float64{
		"jlp": cfg.Pools.JLP.Amount,
		"alp": cfg.Pools.ALP.Amount,
	}
	ideals, err := pool.Fetch(ctx, sources, amounts, log)
	if err != nil {
		fatal(fmt.Errorf("pool fetch: %w", err))
	}
	for _, sym := range sortedKeys(ideals) {
		fmt.Printf("ideal hedge %s: %.6f\n", sym, ideals[sym])
	}

	printSampleOrder(cfg, target, position, ideals[target], price)

	if *place {
		probe(ctx, gateway, target, price)
	}
}

// printSampleOrder derives the order the engine would place right now,
// using the current mark as the cost basis since no tracked basis is
// available outside the running engine.
func printSampleOrder(cfg *config.Config, symbol string, position, ideal, price float64) {
	actual := position + cfg.Engine.InitialOffsets[symbol]
	offset := actual - ideal
	offsetUSD := math.Abs(offset) * price
	zone := hedge.Classify(offsetUSD, cfg.Thresholds)
	fmt.Printf("offset: %.6f (%.2f USD, %s)\n", offset, offsetUSD, zone)
	switch {
	case zone == hedge.ZoneBelow:
		fmt.Println("sample order: none, within threshold")
	case zone == hedge.ZoneAlert:
		fmt.Println("sample order: none, above max threshold (engine would cancel and alert)")
	default:
		fmt.Printf("sample order: %s %.6f @ %.6f\n",
			hedge.CloseSide(offset),
			hedge.CloseSize(offset, cfg.Orders.CloseRatioPct),
			hedge.LimitPrice(offset, price, cfg.Orders.PriceOffsetPct),
		)
	}
}

// probe places a resting buy at half the mid, far enough from the book
// that it cannot fill, then cancels it.
func probe(ctx context.Context, gateway *hl.Gateway, symbol string, price float64) {
	probePrice := price * 0.5
	size := placeNotionalUSD / probePrice
	orderID, err := gateway.PlaceLimit(ctx, symbol, exchange.SideBuy, size, probePrice)
	if err != nil {
		fatal(fmt.Errorf("probe place: %w", err))
	}
	fmt.Printf("probe order placed: %s (%s %.6f @ %.6f)\n", orderID, exchange.SideBuy, size, probePrice)
	if err := gateway.Cancel(ctx, symbol, orderID); err != nil {
		fatal(fmt.Errorf("probe cancel: %w", err))
	}
	fmt.Println("probe order canceled")
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
