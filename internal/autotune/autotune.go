// Package autotune implements the Autotuner (§4.D): an offline
// micro-benchmark that picks the best (chunk-size, worker-count) pair for
// the Chunked CTR Engine by measuring SHA-256 throughput over a worker
// pool at each candidate configuration.
package autotune

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"
)

const sampleSize = 16 * 1024 * 1024 // 16 MiB benchmark payload (§4.D)

var defaultChunkSizesMiB = []int{1, 4, 8, 16}

// Result is a single (chunk, workers) trial's measured throughput.
type Result struct {
	ChunkSize int
	Workers   int
	MBPerSec  float64
}

// Outcome is the Autotuner's final answer (§4.D): `{best_chunk,
// best_workers, all_scores}`.
type Outcome struct {
	BestChunkSize int
	BestWorkers   int
	AllScores     []Result
}

// Tune runs the grid search over candidate chunk sizes and worker counts,
// returning the configuration with maximum measured MB/s. A failed trial
// records throughput 0 and the search continues (§4.D).
func Tune(ctx context.Context) (Outcome, error) {
	payload := make([]byte, sampleSize)
	if _, err := rand.Read(payload); err != nil {
		return Outcome{}, err
	}

	var scores []Result
	var best Result

	for _, chunkMiB := range defaultChunkSizesMiB {
		chunkSize := chunkMiB * 1024 * 1024
		for _, workers := range candidateWorkerCounts(runtime.NumCPU()) {
			mbps := runTrial(ctx, payload, chunkSize, workers)
			result := Result{ChunkSize: chunkSize, Workers: workers, MBPerSec: mbps}
			scores = append(scores, result)
			if result.MBPerSec > best.MBPerSec {
				best = result
			}
		}
	}

	return Outcome{
		BestChunkSize: best.ChunkSize,
		BestWorkers:   best.Workers,
		AllScores:     scores,
	}, nil
}

// candidateWorkerCounts builds §4.D's default set
// `{1, C/2, C, floor(1.5*C)}`, deduplicated and sorted ascending.
func candidateWorkerCounts(cpuCount int) []int {
	if cpuCount < 1 {
		cpuCount = 1
	}
	raw := []int{1, cpuCount / 2, cpuCount, (cpuCount * 3) / 2}

	seen := make(map[int]bool, len(raw))
	var out []int
	for _, w := range raw {
		if w < 1 || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1] > out[j]; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}

// runTrial splits payload into chunkSize slices, submits a SHA-256 hash
// of each slice to a worker pool capped at workers, and measures
// wall-clock throughput. Oversubscribed configurations are penalized by
// the pool's own scheduling overhead relative to the CPU-bound hash work.
// A trial that errors records 0 MB/s rather than aborting the search.
func runTrial(ctx context.Context, payload []byte, chunkSize, workers int) float64 {
	slices := splitIntoChunks(payload, chunkSize)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	start := time.Now()
	for _, slice := range slices {
		slice := slice
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			sum := sha256.Sum256(slice)
			_ = sum
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return 0
	}
	elapsed := time.Since(start)
	if elapsed <= 0 {
		return 0
	}

	mb := float64(len(payload)) / (1024 * 1024)
	return mb / elapsed.Seconds()
}

func splitIntoChunks(data []byte, chunkSize int) [][]byte {
	if chunkSize <= 0 {
		return [][]byte{data}
	}
	var chunks [][]byte
	for offset := 0; offset < len(data); offset += chunkSize {
		end := offset + chunkSize
		if end > len(data) {
			end = len(data)
		}
		chunks = append(chunks, data[offset:end])
	}
	return chunks
}
