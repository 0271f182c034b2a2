package driver

import (
	"context"
	"crypto/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironveil/cryptgrid/internal/config"
	"github.com/ironveil/cryptgrid/internal/model"
	"github.com/ironveil/cryptgrid/internal/vault"
)

func testDriver(t *testing.T, workers int) *Driver {
	t.Helper()
	v, err := vault.Open(filepath.Join(t.TempDir(), "keyvault.db"), 1000, 10*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = v.Close() })

	cfg := &config.Config{
		Engine: config.EngineConfig{
			Workers:        workers,
			Policy:         "priority",
			HeavyThreshold: 16 * 1024 * 1024,
		},
	}

	d, err := New(context.Background(), cfg, v, nil)
	require.NoError(t, err)
	return d
}

func TestEncryptDecryptDir_MixedSmallAndLargeFiles(t *testing.T) {
	d := testDriver(t, 2)

	inDir := t.TempDir()
	outDir := t.TempDir()
	finalDir := t.TempDir()

	small := []byte("tiny file content")
	require.NoError(t, os.WriteFile(filepath.Join(inDir, "a.txt"), small, 0600))

	large := make([]byte, 20*1024*1024)
	_, err := rand.Read(large)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(inDir, "b.bin"), large, 0600))

	encResult, err := d.EncryptDir(context.Background(), inDir, outDir, "pw", model.ModeCTR)
	require.NoError(t, err)
	assert.Len(t, encResult.Failed, 0)
	assert.Len(t, encResult.Succeeded, 2)

	decResult, err := d.DecryptDir(context.Background(), outDir, finalDir, "pw")
	require.NoError(t, err)
	assert.Len(t, decResult.Failed, 0)
	assert.Len(t, decResult.Succeeded, 2)

	gotSmall, err := os.ReadFile(filepath.Join(finalDir, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, small, gotSmall)

	gotLarge, err := os.ReadFile(filepath.Join(finalDir, "b.bin"))
	require.NoError(t, err)
	assert.Equal(t, large, gotLarge)
}

func TestEncryptDir_EmptyMasterSecretFails(t *testing.T) {
	d := testDriver(t, 2)
	inDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(inDir, "a.txt"), []byte("x"), 0600))

	_, err := d.EncryptDir(context.Background(), inDir, t.TempDir(), "", model.ModeCTR)
	require.Error(t, err)
}

func TestEncryptDir_EmptyDirectoryFails(t *testing.T) {
	d := testDriver(t, 2)
	_, err := d.EncryptDir(context.Background(), t.TempDir(), t.TempDir(), "pw", model.ModeCTR)
	require.Error(t, err)
}

func TestElasticChunkSize_WithinBoundsAndAligned(t *testing.T) {
	sizes := []int64{0, 1024, 20 * 1024 * 1024, 10 * 1024 * 1024 * 1024}
	for _, size := range sizes {
		cs := elasticChunkSize(size, 4)
		assert.GreaterOrEqual(t, cs, minElasticChunk)
		assert.LessOrEqual(t, cs, maxElasticChunk)
		assert.Equal(t, 0, cs%elasticAlign)
	}
}

func TestPartition_RoutesBySizeAndMode(t *testing.T) {
	tasks := []model.Task{
		model.NewTask("small.txt", 1024),
		model.NewTask("large.bin", 20*1024*1024),
	}
	heavy, light := partition(tasks, model.ModeCTR, 16*1024*1024)
	require.Len(t, heavy, 1)
	require.Len(t, light, 1)
	assert.Equal(t, "large.bin", heavy[0].Path)
	assert.Equal(t, "small.txt", light[0].Path)

	// GCM never routes to the chunked engine, regardless of size (§4.G).
	heavy, light = partition(tasks, model.ModeGCM, 16*1024*1024)
	assert.Len(t, heavy, 0)
	assert.Len(t, light, 2)
}
