package vault

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironveil/cryptgrid/internal/cryptoerr"
	"github.com/ironveil/cryptgrid/internal/model"
)

func openTestVault(t *testing.T) *Vault {
	t.Helper()
	path := filepath.Join(t.TempDir(), "keyvault.db")
	v, err := Open(path, 1000, 10*time.Second) // low iteration count keeps tests fast
	require.NoError(t, err)
	t.Cleanup(func() { _ = v.Close() })
	return v
}

func TestStoreLoadRoundTrip(t *testing.T) {
	v := openTestVault(t)

	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}

	require.NoError(t, v.Store("file-1", key, model.ModeCTR, "correct horse"))

	loaded, mode, err := v.Load("file-1", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, key, loaded)
	assert.Equal(t, model.ModeCTR, mode)
}

func TestLoad_WrongMaster(t *testing.T) {
	v := openTestVault(t)

	key := []byte("0123456789abcdef0123456789abcdef")[:32]
	require.NoError(t, v.Store("file-1", key, model.ModeGCM, "a"))

	_, _, err := v.Load("file-1", "b")
	require.Error(t, err)
	assert.ErrorIs(t, err, cryptoerr.VaultAuthFailure)
}

func TestLoad_MissingID(t *testing.T) {
	v := openTestVault(t)

	_, _, err := v.Load("does-not-exist", "a")
	require.Error(t, err)

	var cerr *cryptoerr.Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, cryptoerr.KindVault, cerr.Kind)
}

func TestStore_EmptyMaster(t *testing.T) {
	v := openTestVault(t)

	err := v.Store("file-1", make([]byte, 32), model.ModeCTR, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, cryptoerr.MissingMasterSecret)
}

func TestLoad_EmptyMaster(t *testing.T) {
	v := openTestVault(t)

	_, _, err := v.Load("file-1", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, cryptoerr.MissingMasterSecret)
}

func TestStore_UpsertLastWriterWins(t *testing.T) {
	v := openTestVault(t)

	key1 := make([]byte, 32)
	key2 := make([]byte, 32)
	for i := range key2 {
		key2[i] = byte(255 - i)
	}

	require.NoError(t, v.Store("file-1", key1, model.ModeCTR, "pw"))
	require.NoError(t, v.Store("file-1", key2, model.ModeGCM, "pw"))

	loaded, mode, err := v.Load("file-1", "pw")
	require.NoError(t, err)
	assert.Equal(t, key2, loaded)
	assert.Equal(t, model.ModeGCM, mode)
}

func TestPKCS7PadUnpad_RoundTrip(t *testing.T) {
	for size := 0; size < 64; size++ {
		data := make([]byte, size)
		for i := range data {
			data[i] = byte(i)
		}
		padded := pkcs7Pad(data, 16)
		assert.Equal(t, 0, len(padded)%16)

		unpadded, err := pkcs7Unpad(padded, 16)
		require.NoError(t, err)
		assert.Equal(t, data, unpadded)
	}
}

func TestPKCS7Unpad_Invalid(t *testing.T) {
	_, err := pkcs7Unpad([]byte{1, 2, 3}, 16)
	assert.Error(t, err)

	_, err = pkcs7Unpad(make([]byte, 16), 16) // all-zero padding byte is invalid
	assert.Error(t, err)
}
