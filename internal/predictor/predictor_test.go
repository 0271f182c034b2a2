package predictor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPredict_UnknownSuffixUsesBaseRate(t *testing.T) {
	p := New()
	p.baseRate = 1_000_000 // 1 MB/s, fixed for a deterministic assertion

	got := p.Predict(1_000_000, ".bin")
	assert.InDelta(t, 1.0, got, 1e-9)
}

func TestObserve_FasterThanPredictedLowersPrediction(t *testing.T) {
	p := New()
	p.baseRate = 1_000_000

	before := p.Predict(1_000_000, ".bin")
	// actual_seconds is far smaller than size/rate: 1MB at 1MB/s implies ~1s,
	// but we observe it completing in 0.01s -- a much higher throughput sample.
	p.Observe(1_000_000, ".bin", 0.01)
	after := p.Predict(1_000_000, ".bin")

	assert.Less(t, after, before, "predicted seconds should drop after a faster-than-expected observation")
}

func TestObserve_SlowerThanPredictedRaisesPrediction(t *testing.T) {
	p := New()
	p.baseRate = 1_000_000

	before := p.Predict(1_000_000, ".bin")
	// actual_seconds is far larger than size/rate: a much lower throughput sample.
	p.Observe(1_000_000, ".bin", 100)
	after := p.Predict(1_000_000, ".bin")

	assert.Greater(t, after, before, "predicted seconds should rise after a slower-than-expected observation")
}

func TestObserve_ExactSmoothingFormula(t *testing.T) {
	p := New()
	p.baseRate = 1_000_000 // prior rate for ".bin" before any observation

	p.Observe(1_000_000, ".bin", 0.01) // sample rate = 1_000_000/0.01 = 1e8 B/s
	want := 0.75*1_000_000 + 0.25*1e8
	got := p.rates[".bin"]
	assert.InDelta(t, want, got, 1e-3)
}

func TestSuffixIsCaseInsensitive(t *testing.T) {
	p := New()
	p.baseRate = 1_000_000

	p.Observe(1_000_000, ".TXT", 0.01)
	lower := p.Predict(1_000_000, ".txt")
	upper := p.Predict(1_000_000, ".TXT")

	assert.Equal(t, lower, upper)
}

func TestPredict_ZeroRateNeverDividesByZero(t *testing.T) {
	p := New()
	p.rates[".bin"] = 0

	assert.NotPanics(t, func() {
		got := p.Predict(100, ".bin")
		assert.Equal(t, 100.0, got) // max(1, 0) == 1
	})
}
