package wholefile

import (
	"bytes"
	"crypto/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironveil/cryptgrid/internal/model"
	"github.com/ironveil/cryptgrid/internal/vault"
)

func testVault(t *testing.T) *vault.Vault {
	t.Helper()
	v, err := vault.Open(filepath.Join(t.TempDir(), "keyvault.db"), 1000, 10*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = v.Close() })
	return v
}

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0600))
	return path
}

func TestEncryptDecrypt_CTR_ZeroBytesRoundTrip(t *testing.T) {
	e := New(nil)
	v := testVault(t)
	dir := t.TempDir()

	plain := make([]byte, 1024) // S1: 1 KiB of zeros
	src := writeFile(t, dir, "zeros.bin", plain)

	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)

	encPath := filepath.Join(dir, "out.ctr")
	manifest, err := e.Encrypt(v, src, encPath, key, "key-1", "pw", model.ModeCTR)
	require.NoError(t, err)
	assert.Equal(t, model.ModeCTR, manifest.Mode)
	assert.NotEmpty(t, manifest.Nonce)

	raw, err := os.ReadFile(encPath)
	require.NoError(t, err)
	assert.Equal(t, "CTR", string(raw[:3]))
	assert.Len(t, raw, 3+ctrNonceSize+len(plain))

	outPath := filepath.Join(dir, "out.bin")
	require.NoError(t, e.Decrypt(v, encPath, outPath, "pw"))
	got, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Equal(t, plain, got)
}

func TestEncryptDecrypt_GCM_RoundTrip(t *testing.T) {
	e := New(nil)
	v := testVault(t)
	dir := t.TempDir()

	plain := make([]byte, 50*1024)
	_, _ = rand.Read(plain)
	src := writeFile(t, dir, "plain.bin", plain)

	key := make([]byte, 32)
	_, _ = rand.Read(key)

	encPath := filepath.Join(dir, "out.gcm")
	_, err := e.Encrypt(v, src, encPath, key, "key-2", "pw", model.ModeGCM)
	require.NoError(t, err)

	outPath := filepath.Join(dir, "out.bin")
	require.NoError(t, e.Decrypt(v, encPath, outPath, "pw"))
	got, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(plain, got))
}

func TestEncryptDecrypt_CBC_RoundTrip(t *testing.T) {
	e := New(nil)
	v := testVault(t)
	dir := t.TempDir()

	plain := make([]byte, 12345) // not block-aligned, exercises PKCS7 padding
	_, _ = rand.Read(plain)
	src := writeFile(t, dir, "plain.bin", plain)

	key := make([]byte, 32)
	_, _ = rand.Read(key)

	encPath := filepath.Join(dir, "out.cbc")
	_, err := e.Encrypt(v, src, encPath, key, "key-3", "pw", model.ModeCBC)
	require.NoError(t, err)

	outPath := filepath.Join(dir, "out.bin")
	require.NoError(t, e.Decrypt(v, encPath, outPath, "pw"))
	got, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(plain, got))
}

func TestDecrypt_GCMTamperedCiphertextFailsIntegrity(t *testing.T) {
	e := New(nil)
	v := testVault(t)
	dir := t.TempDir()

	plain := make([]byte, 1024)
	_, _ = rand.Read(plain)
	src := writeFile(t, dir, "plain.bin", plain)

	key := make([]byte, 32)
	_, _ = rand.Read(key)

	encPath := filepath.Join(dir, "out.gcm")
	_, err := e.Encrypt(v, src, encPath, key, "key-4", "pw", model.ModeGCM)
	require.NoError(t, err)

	f, err := os.OpenFile(encPath, os.O_RDWR, 0600)
	require.NoError(t, err)
	buf := make([]byte, 1)
	_, err = f.ReadAt(buf, 20)
	require.NoError(t, err)
	buf[0] ^= 0xFF
	_, err = f.WriteAt(buf, 20)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	outPath := filepath.Join(dir, "out.bin")
	err = e.Decrypt(v, encPath, outPath, "pw")
	require.Error(t, err)

	_, statErr := os.Stat(outPath)
	assert.True(t, os.IsNotExist(statErr))
}

func TestDecrypt_WrongMasterFails(t *testing.T) {
	e := New(nil)
	v := testVault(t)
	dir := t.TempDir()

	src := writeFile(t, dir, "plain.bin", []byte("hello world"))
	key := make([]byte, 32)
	_, _ = rand.Read(key)

	encPath := filepath.Join(dir, "out.ctr")
	_, err := e.Encrypt(v, src, encPath, key, "key-5", "right", model.ModeCTR)
	require.NoError(t, err)

	err = e.Decrypt(v, encPath, filepath.Join(dir, "out.bin"), "wrong")
	require.Error(t, err)
}
