package autotune

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCandidateWorkerCounts_Deduplicated(t *testing.T) {
	counts := candidateWorkerCounts(1)
	assert.Equal(t, []int{1}, counts, "C=1 collapses every candidate to 1")
}

func TestCandidateWorkerCounts_FourCPUs(t *testing.T) {
	counts := candidateWorkerCounts(4)
	assert.Equal(t, []int{1, 2, 4, 6}, counts)
}

func TestSplitIntoChunks_LastChunkShort(t *testing.T) {
	data := make([]byte, 100)
	chunks := splitIntoChunks(data, 30)

	require.Len(t, chunks, 4)
	assert.Len(t, chunks[0], 30)
	assert.Len(t, chunks[3], 10)
}

func TestTune_ReturnsAWinnerAndAllScores(t *testing.T) {
	outcome, err := Tune(context.Background())
	require.NoError(t, err)

	require.NotEmpty(t, outcome.AllScores)
	assert.Greater(t, outcome.BestChunkSize, 0)
	assert.Greater(t, outcome.BestWorkers, 0)

	var maxSeen float64
	for _, r := range outcome.AllScores {
		if r.MBPerSec > maxSeen {
			maxSeen = r.MBPerSec
		}
	}
	for _, r := range outcome.AllScores {
		if r.ChunkSize == outcome.BestChunkSize && r.Workers == outcome.BestWorkers {
			assert.Equal(t, maxSeen, r.MBPerSec)
		}
	}
}

func TestRunTrial_CancelledContextYieldsZero(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	data := make([]byte, 1024*1024)
	mbps := runTrial(ctx, data, 1024, 2)
	assert.Equal(t, 0.0, mbps)
}
