// Package vault implements the Key Vault (§3, §4.A): a single-file
// embedded relational store that binds per-file AES keys to file identity,
// wrapped under a secret-derived key-encryption key.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/crypto/pbkdf2"

	_ "modernc.org/sqlite"

	"github.com/ironveil/cryptgrid/internal/cryptoerr"
	"github.com/ironveil/cryptgrid/internal/model"
)

const (
	saltSize = 16
	ivSize   = 16
	keySize  = 32
)

// Vault persists VaultRecords in a local SQLite database (§6: table
// `keys(id TEXT PRIMARY KEY, created_at INT NOT NULL, salt BLOB, iv BLOB,
// wrapped_key BLOB, mode TEXT)`). Writes are serialized by writeMu so
// concurrent store() calls observe last-writer-wins on id (§4.A); Load does
// not take writeMu.
type Vault struct {
	db         *sql.DB
	iterations int
	lockWait   time.Duration

	writeMu sync.Mutex
}

// Open opens (creating if necessary) the vault database at path and
// ensures its schema exists. iterations is the PBKDF2 iteration count;
// changing it from a prior run's value is a format break (§4.A) — callers
// should pass config.DefaultVaultIterations unless testing.
func Open(path string, iterations int, lockWait time.Duration) (*Vault, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, cryptoerr.New(cryptoerr.KindVault, "open", path, err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite + single-file store: serialize at the driver too

	v := &Vault{db: db, iterations: iterations, lockWait: lockWait}
	if err := v.init(); err != nil {
		db.Close()
		return nil, err
	}
	return v, nil
}

// init creates the keys table if it does not already exist. Idempotent
// per §4.A.
func (v *Vault) init() error {
	const schema = `
CREATE TABLE IF NOT EXISTS keys (
	id TEXT PRIMARY KEY,
	created_at INTEGER NOT NULL,
	salt BLOB NOT NULL,
	iv BLOB NOT NULL,
	wrapped_key BLOB NOT NULL,
	mode TEXT NOT NULL
);`
	if _, err := v.db.Exec(schema); err != nil {
		return cryptoerr.New(cryptoerr.KindVault, "init", "", err)
	}
	return nil
}

// Close closes the underlying database handle.
func (v *Vault) Close() error {
	return v.db.Close()
}

// Store wraps rawKey under a KEK derived from masterSecret and upserts it
// by id (§4.A). Acquires the write lock with a bounded wait of at least
// v.lockWait before giving up.
func (v *Vault) Store(id string, rawKey []byte, mode model.Mode, masterSecret string) error {
	if masterSecret == "" {
		return cryptoerr.New(cryptoerr.KindInput, "store", id, cryptoerr.MissingMasterSecret)
	}
	if len(rawKey) == 0 {
		return cryptoerr.New(cryptoerr.KindInput, "store", id, cryptoerr.MissingInputs)
	}

	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return cryptoerr.New(cryptoerr.KindIO, "store", id, err)
	}
	iv := make([]byte, ivSize)
	if _, err := rand.Read(iv); err != nil {
		return cryptoerr.New(cryptoerr.KindIO, "store", id, err)
	}

	kek := deriveKEK(masterSecret, salt, v.iterations)
	wrapped, err := wrapKey(kek, iv, rawKey)
	if err != nil {
		return cryptoerr.New(cryptoerr.KindCrypto, "store", id, err)
	}

	record := &model.VaultRecord{
		ID:         id,
		CreatedAt:  time.Now().Unix(),
		Salt:       salt,
		IV:         iv,
		WrappedKey: wrapped,
		Mode:       mode,
	}

	return v.withWriteLock(func() error {
		const upsert = `
INSERT INTO keys (id, created_at, salt, iv, wrapped_key, mode)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	created_at = excluded.created_at,
	salt = excluded.salt,
	iv = excluded.iv,
	wrapped_key = excluded.wrapped_key,
	mode = excluded.mode;`
		_, err := v.db.Exec(upsert, record.ID, record.CreatedAt, record.Salt, record.IV, record.WrappedKey, string(record.Mode))
		if err != nil {
			return cryptoerr.New(cryptoerr.KindVault, "store", id, err)
		}
		return nil
	})
}

// Load retrieves and unwraps the file key stored under id. A missing id is
// a not-found *cryptoerr.Error with Kind KindVault; a wrong master secret
// surfaces as cryptoerr.VaultAuthFailure rather than garbage plaintext
// (§4.A, invariant 7, scenario S6).
func (v *Vault) Load(id string, masterSecret string) ([]byte, model.Mode, error) {
	if masterSecret == "" {
		return nil, "", cryptoerr.New(cryptoerr.KindInput, "load", id, cryptoerr.MissingMasterSecret)
	}

	var record model.VaultRecord
	var modeStr string
	row := v.db.QueryRow(`SELECT id, created_at, salt, iv, wrapped_key, mode FROM keys WHERE id = ?`, id)
	if err := row.Scan(&record.ID, &record.CreatedAt, &record.Salt, &record.IV, &record.WrappedKey, &modeStr); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, "", cryptoerr.New(cryptoerr.KindVault, "load", id, fmt.Errorf("key_id not found"))
		}
		return nil, "", cryptoerr.New(cryptoerr.KindVault, "load", id, err)
	}
	record.Mode = model.Mode(modeStr)

	kek := deriveKEK(masterSecret, record.Salt, v.iterations)
	raw, err := unwrapKey(kek, record.IV, record.WrappedKey)
	if err != nil {
		return nil, "", cryptoerr.New(cryptoerr.KindCrypto, "load", id, cryptoerr.VaultAuthFailure)
	}

	return raw, record.Mode, nil
}

// withWriteLock serializes writers in-process and applies a bounded
// exponential-backoff wait (§4.A, §5: "at least 10 seconds, fail loudly on
// timeout") before giving up on acquiring the lock.
func (v *Vault) withWriteLock(fn func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 10 * time.Millisecond
	b.MaxInterval = 500 * time.Millisecond
	b.MaxElapsedTime = 0 // bounded by deadline below, so the wait is never shorter than lockWait

	deadline := time.Now().Add(v.lockWait)
	_, err := backoff.RetryWithData(func() (struct{}, error) {
		if v.writeMu.TryLock() {
			return struct{}{}, nil
		}
		if time.Now().After(deadline) {
			return struct{}{}, backoff.Permanent(fmt.Errorf("write lock busy"))
		}
		return struct{}{}, fmt.Errorf("write lock busy")
	}, b)
	if err != nil {
		return cryptoerr.New(cryptoerr.KindVault, "store", "", fmt.Errorf("acquire write lock within %s: %w", v.lockWait, err))
	}
	defer v.writeMu.Unlock()

	return fn()
}

// deriveKEK runs PBKDF2-HMAC-SHA256 over the master secret (§3, §4.A). The
// iteration count is part of the on-disk format; changing it for an
// existing database breaks every record wrapped under the old count.
func deriveKEK(masterSecret string, salt []byte, iterations int) []byte {
	return pbkdf2.Key([]byte(masterSecret), salt, iterations, keySize, sha256.New)
}

// wrapKey encrypts rawKey with AES-CBC(PKCS7) under kek/iv (§3).
func wrapKey(kek, iv, rawKey []byte) ([]byte, error) {
	block, err := aes.NewCipher(kek)
	if err != nil {
		return nil, err
	}
	padded := pkcs7Pad(rawKey, block.BlockSize())
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, padded)
	return out, nil
}

// unwrapKey reverses wrapKey. A wrong kek (wrong master secret) either
// fails PKCS7 unpadding or yields the wrong key length — both are treated
// as authentication failure by the caller.
func unwrapKey(kek, iv, wrapped []byte) ([]byte, error) {
	block, err := aes.NewCipher(kek)
	if err != nil {
		return nil, err
	}
	if len(wrapped) == 0 || len(wrapped)%block.BlockSize() != 0 {
		return nil, fmt.Errorf("wrapped key length %d is not block-aligned", len(wrapped))
	}
	out := make([]byte, len(wrapped))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, wrapped)
	plain, err := pkcs7Unpad(out, block.BlockSize())
	if err != nil {
		return nil, err
	}
	if len(plain) != keySize {
		return nil, fmt.Errorf("unwrapped key length %d != %d", len(plain), keySize)
	}
	return plain, nil
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	padding := make([]byte, padLen)
	for i := range padding {
		padding[i] = byte(padLen)
	}
	return append(append([]byte(nil), data...), padding...)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, fmt.Errorf("invalid padded data length %d", len(data))
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > blockSize || padLen > len(data) {
		return nil, fmt.Errorf("invalid padding length %d", padLen)
	}
	for _, b := range data[len(data)-padLen:] {
		if int(b) != padLen {
			return nil, fmt.Errorf("invalid padding bytes")
		}
	}
	return data[:len(data)-padLen], nil
}
