package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecureZero(t *testing.T) {
	data := []byte("sensitive data that should be zeroed")
	originalLen := len(data)

	SecureZero(data)

	assert.Equal(t, originalLen, len(data))

	for i, b := range data {
		assert.Equal(t, byte(0), b, "byte at index %d should be zero", i)
	}
}

func TestSecureZeroNil(t *testing.T) {
	// Should not panic
	SecureZero(nil)
}

func TestSecureZeroEmpty(t *testing.T) {
	data := []byte{}
	SecureZero(data)
	assert.Equal(t, 0, len(data))
}

func TestSecureBuffer_DestroyZeroesAndNils(t *testing.T) {
	// Simulates the lifecycle of a File Key (§3): created at run start,
	// used for a single run, then destroyed before the function returns.
	fileKey := make([]byte, 32)
	for i := range fileKey {
		fileKey[i] = byte(i + 1)
	}

	buf, err := NewSecureBufferFromBytes(fileKey)
	require.NoError(t, err)

	data := buf.Data()
	func() {
		defer buf.Destroy()
		require.Len(t, data, 32)
	}()

	assert.Equal(t, make([]byte, 32), data, "Destroy must zero the key bytes")
	assert.Nil(t, buf.Data())
}
