// Package predictor implements the Adaptive Predictor (§4.B): an online
// per-suffix throughput estimate driven by exponential smoothing, seeded
// from live CPU/memory signals at construction.
package predictor

import (
	"strings"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
)

const (
	baseRateBytesPerSec = 10 * 1000 * 1000 // 10 MB/s (§4.B)
	memFactorCeiling    = 2 * 1024 * 1024 * 1024
	smoothingAlpha      = 0.25
	epsilon             = 1e-6
)

// Predictor holds the per-suffix throughput map described in §3's
// "Throughput State" and implements the update rule of §4.B. Safe for
// concurrent use.
type Predictor struct {
	mu       sync.Mutex
	baseRate float64
	rates    map[string]float64
}

// New constructs a Predictor, estimating the initial base rate from
// system signals (§4.B). If the signals are unavailable the initial rate
// falls back to the plain 10 MB/s base.
func New() *Predictor {
	return &Predictor{
		baseRate: estimateInitialRate(),
		rates:    make(map[string]float64),
	}
}

// estimateInitialRate implements §4.B's
// `base * cpu_factor * (0.8 + 0.4*mem_factor)`, returning the plain base
// rate if either signal cannot be read.
func estimateInitialRate() float64 {
	percents, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil || len(percents) == 0 {
		return baseRateBytesPerSec
	}
	load := percents[0] / 100.0
	cpuFactor := maxFloat(0.5, 1.0-load/2.0)

	stat, err := mem.VirtualMemory()
	if err != nil {
		return baseRateBytesPerSec
	}
	memFactor := minFloat(1.0, float64(stat.Available)/float64(memFactorCeiling))

	return baseRateBytesPerSec * cpuFactor * (0.8 + 0.4*memFactor)
}

// Predict returns the predicted seconds to process size bytes of the
// given suffix (§4.B): `size / max(1, rate[suffix])`.
func (p *Predictor) Predict(size int64, suffix string) float64 {
	p.mu.Lock()
	rate := p.rateFor(normalizeSuffix(suffix))
	p.mu.Unlock()

	return float64(size) / maxFloat(1.0, rate)
}

// Observe updates the throughput estimate for suffix via exponential
// smoothing (§4.B): `rate ← (1-α)·rate + α·(size/max(ε, actual_seconds))`.
func (p *Predictor) Observe(size int64, suffix string, actualSeconds float64) {
	key := normalizeSuffix(suffix)

	p.mu.Lock()
	defer p.mu.Unlock()

	prior := p.rateFor(key)
	sample := float64(size) / maxFloat(epsilon, actualSeconds)
	p.rates[key] = (1-smoothingAlpha)*prior + smoothingAlpha*sample
}

// rateFor returns the current rate for a normalized suffix, seeding it
// from the global base rate on first use. Callers must hold p.mu.
func (p *Predictor) rateFor(key string) float64 {
	if rate, ok := p.rates[key]; ok {
		return rate
	}
	return p.baseRate
}

func normalizeSuffix(suffix string) string {
	return strings.ToLower(suffix)
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
