// Package driver implements the Driver (§4.G): it enumerates input
// files, asks the Scheduler for a plan, generates one file key and
// key_id per run, classifies each file to the Chunked CTR Engine or the
// Whole-file Engine, and dispatches work through the shared worker pool.
package driver

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ironveil/cryptgrid/internal/autotune"
	"github.com/ironveil/cryptgrid/internal/chunked"
	"github.com/ironveil/cryptgrid/internal/config"
	"github.com/ironveil/cryptgrid/internal/cryptoerr"
	"github.com/ironveil/cryptgrid/internal/logger"
	"github.com/ironveil/cryptgrid/internal/model"
	"github.com/ironveil/cryptgrid/internal/pool"
	"github.com/ironveil/cryptgrid/internal/scheduler"
	"github.com/ironveil/cryptgrid/internal/vault"
	"github.com/ironveil/cryptgrid/internal/wholefile"
)

const (
	keySize         = 32
	minElasticChunk = 1 * 1024 * 1024
	maxElasticChunk = 64 * 1024 * 1024
	elasticAlign    = 16
)

// FileOutcome records the per-file result of a batch run (§7: "Batch-level
// driver errors are per-file isolated: a single file's failure does not
// abort the batch").
type FileOutcome struct {
	Path string
	Err  error
}

// RunResult is the outcome of one Driver run over a directory.
type RunResult struct {
	KeyID     string
	Succeeded []FileOutcome
	Failed    []FileOutcome
}

// Driver wires the Vault, Scheduler, Chunked engine, and Whole-file
// engine together around the shared worker pool (§5).
type Driver struct {
	vault     *vault.Vault
	scheduler *scheduler.Scheduler
	chunked   *chunked.Engine
	wholefile *wholefile.Engine
	poolMgr   *pool.Manager
	cfg       *config.Config
	log       logger.Logger
	workers   int
}

// New builds a Driver. If cfg.Engine.Workers is 0, the Autotuner runs
// once to pick a worker count (§4.D, §4.G).
func New(ctx context.Context, cfg *config.Config, v *vault.Vault, log logger.Logger) (*Driver, error) {
	workers := cfg.Engine.Workers
	if workers <= 0 {
		outcome, err := autotune.Tune(ctx)
		if err != nil {
			return nil, cryptoerr.New(cryptoerr.KindPool, "driver.autotune", "", err)
		}
		workers = outcome.BestWorkers
		if log != nil {
			log.Info("autotuner selected worker count", "workers", workers, "chunk_size", outcome.BestChunkSize)
		}
	}

	var poolMgr pool.Manager

	return &Driver{
		vault:     v,
		scheduler: scheduler.New(scheduler.Policy(cfg.Engine.Policy)),
		chunked:   chunked.New(poolMgr.GetOrInit(workers), log),
		wholefile: wholefile.New(log),
		poolMgr:   &poolMgr,
		cfg:       cfg,
		log:       log,
		workers:   workers,
	}, nil
}

// EncryptDir runs one encryption pass over every regular file under
// inDir, writing ciphertext (and sidecar manifests) under outDir,
// preserving inDir's relative file layout (§4.G, §2's data-flow summary).
func (d *Driver) EncryptDir(ctx context.Context, inDir, outDir, masterSecret string, mode model.Mode) (*RunResult, error) {
	if masterSecret == "" {
		return nil, cryptoerr.New(cryptoerr.KindInput, "encrypt_dir", inDir, cryptoerr.MissingMasterSecret)
	}

	tasks, err := enumerate(inDir)
	if err != nil {
		return nil, cryptoerr.New(cryptoerr.KindInput, "encrypt_dir", inDir, err)
	}
	if len(tasks) == 0 {
		return nil, cryptoerr.New(cryptoerr.KindInput, "encrypt_dir", inDir, cryptoerr.MissingInputs)
	}

	plan := d.scheduler.Plan(tasks)

	key := make([]byte, keySize)
	if _, err := rand.Read(key); err != nil {
		return nil, cryptoerr.New(cryptoerr.KindCrypto, "encrypt_dir", inDir, err)
	}
	keyID := newKeyID(inDir, mode)

	if err := os.MkdirAll(outDir, 0750); err != nil {
		return nil, cryptoerr.New(cryptoerr.KindIO, "encrypt_dir", outDir, err)
	}

	result := &RunResult{KeyID: keyID}

	heavy, light := partition(plan, mode, d.cfg.Engine.HeavyThreshold)

	for _, task := range heavy {
		relDest := relativeDestPath(inDir, outDir, task.Path)
		if err := os.MkdirAll(filepath.Dir(relDest), 0750); err != nil {
			result.Failed = append(result.Failed, FileOutcome{Path: task.Path, Err: err})
			continue
		}
		chunkSize := elasticChunkSize(task.Size, d.workers)
		start := time.Now()
		_, err := d.chunked.Encrypt(ctx, d.vault, task.Path, relDest, key, keyID, masterSecret, chunkSize)
		d.scheduler.Observe(task, time.Since(start))
		if err != nil {
			result.Failed = append(result.Failed, FileOutcome{Path: task.Path, Err: err})
			continue
		}
		result.Succeeded = append(result.Succeeded, FileOutcome{Path: task.Path})
	}

	d.runLight(light, func(task model.Task) error {
		relDest := relativeDestPath(inDir, outDir, task.Path)
		if err := os.MkdirAll(filepath.Dir(relDest), 0750); err != nil {
			return err
		}
		start := time.Now()
		_, err := d.wholefile.Encrypt(d.vault, task.Path, relDest, key, keyID, masterSecret, mode)
		d.scheduler.Observe(task, time.Since(start))
		return err
	}, result)

	return result, nil
}

// DecryptDir reverses EncryptDir, reading each ciphertext's manifest to
// decide between the Chunked CTR Engine and the Whole-file Engine
// (§2: "Decryption reverses this, reading the manifest to choose F or E").
func (d *Driver) DecryptDir(ctx context.Context, inDir, outDir, masterSecret string) (*RunResult, error) {
	if masterSecret == "" {
		return nil, cryptoerr.New(cryptoerr.KindInput, "decrypt_dir", inDir, cryptoerr.MissingMasterSecret)
	}

	paths, err := enumerateCiphertexts(inDir)
	if err != nil {
		return nil, cryptoerr.New(cryptoerr.KindInput, "decrypt_dir", inDir, err)
	}
	if len(paths) == 0 {
		return nil, cryptoerr.New(cryptoerr.KindInput, "decrypt_dir", inDir, cryptoerr.MissingInputs)
	}

	if err := os.MkdirAll(outDir, 0750); err != nil {
		return nil, cryptoerr.New(cryptoerr.KindIO, "decrypt_dir", outDir, err)
	}

	result := &RunResult{}
	var heavy, light []string
	for _, p := range paths {
		manifest, err := model.ReadManifest(p)
		if err != nil {
			result.Failed = append(result.Failed, FileOutcome{Path: p, Err: cryptoerr.New(cryptoerr.KindFormat, "decrypt_dir", p, cryptoerr.ManifestMissing)})
			continue
		}
		if manifest.Chunked {
			heavy = append(heavy, p)
		} else {
			light = append(light, p)
		}
	}

	for _, p := range heavy {
		relDest := relativeDestPath(inDir, outDir, p)
		if err := os.MkdirAll(filepath.Dir(relDest), 0750); err != nil {
			result.Failed = append(result.Failed, FileOutcome{Path: p, Err: err})
			continue
		}
		if err := d.chunked.Decrypt(ctx, d.vault, p, relDest, masterSecret); err != nil {
			result.Failed = append(result.Failed, FileOutcome{Path: p, Err: err})
			continue
		}
		result.Succeeded = append(result.Succeeded, FileOutcome{Path: p})
	}

	tasks := make([]model.Task, len(light))
	for i, p := range light {
		tasks[i] = model.NewTask(p, 0)
	}
	d.runLight(tasks, func(task model.Task) error {
		relDest := relativeDestPath(inDir, outDir, task.Path)
		if err := os.MkdirAll(filepath.Dir(relDest), 0750); err != nil {
			return err
		}
		return d.wholefile.Decrypt(d.vault, task.Path, relDest, masterSecret)
	}, result)

	return result, nil
}

// runLight dispatches fn over light-weight whole-file tasks per §4.G's
// "Pool discipline for F": a single small file is run inline; multiple
// small files share a thread pool sized 4·W.
func (d *Driver) runLight(tasks []model.Task, fn func(model.Task) error, result *RunResult) {
	if len(tasks) == 0 {
		return
	}
	if len(tasks) == 1 {
		task := tasks[0]
		if err := fn(task); err != nil {
			result.Failed = append(result.Failed, FileOutcome{Path: task.Path, Err: err})
		} else {
			result.Succeeded = append(result.Succeeded, FileOutcome{Path: task.Path})
		}
		return
	}

	lightPool := pool.New(4 * d.workers)
	outcomes := make([]FileOutcome, len(tasks))
	jobs := make([]func(context.Context) error, len(tasks))
	for i, task := range tasks {
		i, task := i, task
		jobs[i] = func(ctx context.Context) error {
			err := fn(task)
			outcomes[i] = FileOutcome{Path: task.Path, Err: err}
			return nil // per-file isolation: a single file's failure never aborts the batch
		}
	}
	_ = lightPool.Run(context.Background(), jobs)

	for _, o := range outcomes {
		if o.Err != nil {
			result.Failed = append(result.Failed, o)
		} else {
			result.Succeeded = append(result.Succeeded, o)
		}
	}
}

// partition splits plan into files routed to the Chunked CTR Engine
// (size >= heavyThreshold and mode == CTR) and files routed to the
// Whole-file Engine (§4.G).
func partition(plan []model.Task, mode model.Mode, heavyThreshold int) (heavy, light []model.Task) {
	for _, task := range plan {
		if task.Size >= int64(heavyThreshold) && mode == model.ModeCTR {
			heavy = append(heavy, task)
		} else {
			light = append(light, task)
		}
	}
	return heavy, light
}

// elasticChunkSize computes the per-file elastic chunk size (§4.G,
// invariant 10): target 4·W chunks per file, clamped to [1 MiB, 64 MiB]
// and floored to a 16-byte multiple, minimum 16.
func elasticChunkSize(size int64, workers int) int {
	if workers < 1 {
		workers = 1
	}
	ideal := size / int64(4*workers)
	if ideal < minElasticChunk {
		ideal = minElasticChunk
	}
	if ideal > maxElasticChunk {
		ideal = maxElasticChunk
	}
	aligned := (ideal / elasticAlign) * elasticAlign
	if aligned < elasticAlign {
		aligned = elasticAlign
	}
	return int(aligned)
}

// newKeyID derives the once-per-run key_id (§3): `<sha256(indir)[0:16]>-
// <mode>-<unix_seconds>`.
func newKeyID(inDir string, mode model.Mode) string {
	sum := sha256.Sum256([]byte(inDir))
	prefix := hex.EncodeToString(sum[:])[:16]
	return fmt.Sprintf("%s-%s-%d", prefix, mode, time.Now().Unix())
}

// enumerate walks inDir and builds one Task per regular file.
func enumerate(inDir string) ([]model.Task, error) {
	var tasks []model.Task
	err := filepath.WalkDir(inDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		tasks = append(tasks, model.NewTask(path, info.Size()))
		return nil
	})
	return tasks, err
}

// enumerateCiphertexts walks inDir and collects every ciphertext path
// that has a sidecar manifest (manifest sidecars themselves are skipped).
func enumerateCiphertexts(inDir string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(inDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Ext(path) == ".json" {
			return nil
		}
		if _, statErr := os.Stat(model.ManifestPath(path)); statErr == nil {
			paths = append(paths, path)
		}
		return nil
	})
	return paths, err
}

// relativeDestPath mirrors a source path's location under inDir into
// outDir, preserving subdirectory structure.
func relativeDestPath(inDir, outDir, srcPath string) string {
	rel, err := filepath.Rel(inDir, srcPath)
	if err != nil {
		rel = filepath.Base(srcPath)
	}
	return filepath.Join(outDir, rel)
}
