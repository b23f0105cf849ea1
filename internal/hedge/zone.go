package hedge

import (
	"math"

	"lp-hedge-bot/internal/config"
)

// Classify maps absolute USD exposure onto the configured threshold
// band. Below the minimum nothing is worth doing, above the maximum the
// engine stops trading and alerts, in between exposure lands in a
// numbered zone of width StepUSD.
func Classify(offsetUSD float64, cfg config.ThresholdConfig) Zone {
	abs := math.Abs(offsetUSD)
	if abs < cfg.MinUSD {
		return ZoneBelow
	}
	if abs > cfg.MaxUSD {
		return ZoneAlert
	}
	return Zone((abs - cfg.MinUSD) / cfg.StepUSD)
}

// ZoneRange returns the USD band a numbered zone covers. Sentinel zones
// have no finite band and report ok false.
func ZoneRange(z Zone, cfg config.ThresholdConfig) (low, high float64, ok bool) {
	if !z.InBand() {
		return 0, 0, false
	}
	low = cfg.MinUSD + float64(z)*cfg.StepUSD
	return low, low + cfg.StepUSD, true
}
