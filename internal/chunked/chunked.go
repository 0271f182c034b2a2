// Package chunked implements the Chunked CTR Engine (§4.E): a parallel
// out-of-order encrypt path and a sequential-verify, parallel-decrypt
// path over a sparse grid file format with per-chunk HMAC-SHA256 tags.
// This is the central algorithm of the system — see §2's component table.
package chunked

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"

	cryptoutil "github.com/ironveil/cryptgrid/internal/crypto"
	"github.com/ironveil/cryptgrid/internal/cryptoerr"
	"github.com/ironveil/cryptgrid/internal/logger"
	"github.com/ironveil/cryptgrid/internal/model"
	"github.com/ironveil/cryptgrid/internal/pool"
	"github.com/ironveil/cryptgrid/internal/vault"
)

// Magic identifies a chunked ciphertext file (§3, §6).
const Magic = "CTRCH"

const (
	headerMagicLen = 5  // len(Magic)
	headerNonceLen = 16 // BASE_NONCE
	headerSizeLen  = 8  // CHUNK_SIZE, big-endian u64
	headerLen      = headerMagicLen + headerNonceLen + headerSizeLen
	lengthPrefix   = 8 // per-chunk CIPHERTEXT_LEN_i, big-endian u64
)

// authKeySuffix is appended to the raw file key before SHA-256 to derive
// the HMAC key for chunk authentication (§3: `auth_key = SHA256(file_key
// || "auth_key")`), keeping the MAC key distinct from the encryption key.
var authKeySuffix = []byte("auth_key")

// Engine runs the chunked encrypt/decrypt algorithm against a shared
// worker pool (§5: "a persistent, lazily-initialized process-level worker
// pool ... used by E").
type Engine struct {
	pool *pool.Pool
	log  logger.Logger
}

// New builds an Engine dispatching work to p. log may be nil, in which
// case non-fatal events (§4.E.3: VAULT_FAILED) are silently dropped.
func New(p *pool.Pool, log logger.Logger) *Engine {
	return &Engine{pool: p, log: log}
}

func (e *Engine) logError(msg string, kv ...interface{}) {
	if e.log != nil {
		e.log.Error(msg, kv...)
	}
}

// chunkResult is a typed result envelope from an encrypt/decrypt worker
// (§9: "typed result envelopes carrying either (i, ciphertext) or (i,
// ErrorKind)").
type chunkResult struct {
	index int
	data  []byte
	err   error
}

// Encrypt runs §4.E.1 end to end: it reads srcPath under key, writes the
// chunked grid file to destPath, writes the sidecar manifest, and invokes
// vault to wrap key under keyID/masterSecret. A VAULT_FAILED outcome
// (ciphertext already committed, wrap failed) is logged and does not
// return an error (§4.E.3, §7: "the default policy is to log and
// continue").
func (e *Engine) Encrypt(ctx context.Context, v *vault.Vault, srcPath, destPath string, key []byte, keyID, masterSecret string, chunkSize int) (*model.Manifest, error) {
	secureKey, err := cryptoutil.NewSecureBufferFromBytes(key)
	if err != nil {
		return nil, cryptoerr.New(cryptoerr.KindCrypto, "encrypt.key", srcPath, err)
	}
	defer secureKey.Destroy()
	key = secureKey.Data()

	src, err := os.Open(srcPath) // #nosec G304 - path supplied by the driver's own enumeration
	if err != nil {
		return nil, cryptoerr.New(cryptoerr.KindIO, "encrypt.open", srcPath, err)
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return nil, cryptoerr.New(cryptoerr.KindIO, "encrypt.stat", srcPath, err)
	}
	fileSize := info.Size()

	n := int(fileSize / int64(chunkSize))
	if fileSize%int64(chunkSize) != 0 || n == 0 {
		n++
	}

	baseNonce := make([]byte, headerNonceLen)
	if _, err := rand.Read(baseNonce); err != nil {
		return nil, cryptoerr.New(cryptoerr.KindCrypto, "encrypt.nonce", srcPath, err)
	}
	authKey := deriveAuthKey(key)

	destDir := filepath.Dir(destPath)
	tmp, err := os.CreateTemp(destDir, ".cryptgrid-*.tmp")
	if err != nil {
		return nil, cryptoerr.New(cryptoerr.KindIO, "encrypt.tmp", destPath, err)
	}
	tmpPath := tmp.Name()
	abort := func() {
		tmp.Close()
		os.Remove(tmpPath)
	}

	if err := writeHeader(tmp, baseNonce, chunkSize); err != nil {
		abort()
		return nil, cryptoerr.New(cryptoerr.KindIO, "encrypt.header", destPath, err)
	}

	tasks := make([]func(context.Context) error, n)
	results := make(chan chunkResult, e.pool.Workers())
	for i := 0; i < n; i++ {
		i := i
		offset := int64(i) * int64(chunkSize)
		length := int(min64(int64(chunkSize), fileSize-offset))
		tasks[i] = func(ctx context.Context) error {
			plaintext := make([]byte, length)
			if length > 0 {
				if _, err := src.ReadAt(plaintext, offset); err != nil {
					results <- chunkResult{index: i, err: err}
					return err
				}
			}
			ciphertext := make([]byte, length)
			stream := cipher.NewCTR(mustBlock(key), chunkNonce(baseNonce, i))
			stream.XORKeyStream(ciphertext, plaintext)
			select {
			case results <- chunkResult{index: i, data: ciphertext}:
			case <-ctx.Done():
				return ctx.Err()
			}
			return nil
		}
	}

	runErr := make(chan error, 1)
	go func() {
		err := e.pool.Run(ctx, tasks)
		close(results)
		runErr <- err
	}()

	// Pause GC for the duration of the drain loop (§4.E.1, §5: "an
	// implementation may suspend automatic memory reclamation ... it must
	// re-enable it in all exit paths").
	prevGC := debug.SetGCPercent(-1)
	defer debug.SetGCPercent(prevGC)

	chunkHMACs := make([]string, n)
	var drainErr error
	for r := range results {
		if r.err != nil {
			if drainErr == nil {
				drainErr = cryptoerr.NewChunk(cryptoerr.KindPool, "encrypt.worker", srcPath, r.index, r.err)
			}
			continue
		}
		if drainErr != nil {
			continue
		}
		mac := hmac.New(sha256.New, authKey)
		mac.Write(r.data)
		chunkHMACs[r.index] = hex.EncodeToString(mac.Sum(nil))

		writePos := int64(headerLen) + int64(r.index)*int64(lengthPrefix+chunkSize)
		if err := writeChunk(tmp, writePos, r.data); err != nil {
			drainErr = cryptoerr.NewChunk(cryptoerr.KindIO, "encrypt.write", destPath, r.index, err)
		}
	}

	if err := <-runErr; err != nil && drainErr == nil {
		drainErr = cryptoerr.New(cryptoerr.KindPool, "encrypt.pool", srcPath, err)
	}
	if drainErr != nil {
		abort()
		return nil, drainErr
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return nil, cryptoerr.New(cryptoerr.KindIO, "encrypt.close", destPath, err)
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return nil, cryptoerr.New(cryptoerr.KindIO, "encrypt.rename", destPath, err)
	}

	manifest := model.NewChunkedManifest(hex.EncodeToString(baseNonce), chunkSize, chunkHMACs, keyID, srcPath)
	if err := model.WriteManifest(destPath, manifest); err != nil {
		return nil, cryptoerr.New(cryptoerr.KindFormat, "encrypt.manifest", destPath, err)
	}

	// VAULT_FAILED (§4.E.3): ciphertext and manifest are already committed;
	// a wrap failure here is logged, not surfaced as a fatal Encrypt error.
	if err := v.Store(keyID, key, model.ModeCTRChunked, masterSecret); err != nil {
		e.logError("vault store failed after ciphertext commit", "key_id", keyID, "path", destPath, "err", err)
	}

	return manifest, nil
}

// Decrypt runs §4.E.2: it requires and parses the sidecar manifest,
// loads the file key from vault, verifies the header against the
// manifest, verifies every chunk's HMAC before decrypting anything, then
// decrypts in parallel and scatter-writes the plaintext. Any failure
// listed in §4.E.2 aborts before the destination is created or touched.
func (e *Engine) Decrypt(ctx context.Context, v *vault.Vault, encPath, outPath, masterSecret string) error {
	manifest, err := model.ReadManifest(encPath)
	if err != nil {
		return cryptoerr.New(cryptoerr.KindFormat, "decrypt.manifest", encPath, fmt.Errorf("%w: %v", cryptoerr.ManifestMissing, err))
	}
	if manifest.Mode != model.ModeCTRChunked || !manifest.Chunked {
		return cryptoerr.New(cryptoerr.KindFormat, "decrypt.manifest", encPath, cryptoerr.ManifestCorrupt)
	}
	baseNonce, err := hex.DecodeString(manifest.BaseNonce)
	if err != nil || len(baseNonce) != headerNonceLen || len(manifest.ChunkHMACs) != manifest.ChunkCount {
		return cryptoerr.New(cryptoerr.KindFormat, "decrypt.manifest", encPath, cryptoerr.ManifestCorrupt)
	}

	key, _, err := v.Load(manifest.KeyID, masterSecret)
	if err != nil {
		return err
	}
	secureKey, err := cryptoutil.NewSecureBufferFromBytes(key)
	if err != nil {
		return cryptoerr.New(cryptoerr.KindCrypto, "decrypt.key", encPath, err)
	}
	defer secureKey.Destroy()
	key = secureKey.Data()
	authKey := deriveAuthKey(key)

	enc, err := os.Open(encPath) // #nosec G304 - path supplied by the driver's own enumeration
	if err != nil {
		return cryptoerr.New(cryptoerr.KindIO, "decrypt.open", encPath, err)
	}
	defer enc.Close()

	magic, headerChunkSize, err := readHeader(enc)
	if err != nil {
		return cryptoerr.New(cryptoerr.KindIO, "decrypt.header", encPath, err)
	}
	if magic != Magic || headerChunkSize != manifest.ChunkSize {
		return cryptoerr.New(cryptoerr.KindFormat, "decrypt.header", encPath, cryptoerr.HeaderMismatch)
	}
	chunkSize := manifest.ChunkSize
	n := manifest.ChunkCount

	// Phase 1 (sequential): read and authenticate every chunk before any
	// plaintext is written (invariant 5, Open Question (a): verification
	// is mandatory).
	ciphertexts := make([][]byte, n)
	readPos := int64(headerLen)
	for i := 0; i < n; i++ {
		length, ct, err := readChunk(enc, readPos)
		if err != nil {
			return cryptoerr.NewChunk(cryptoerr.KindIO, "decrypt.read", encPath, i, err)
		}
		mac := hmac.New(sha256.New, authKey)
		mac.Write(ct)
		if hex.EncodeToString(mac.Sum(nil)) != manifest.ChunkHMACs[i] {
			return cryptoerr.NewChunk(cryptoerr.KindCrypto, "decrypt.verify", encPath, i, cryptoerr.IntegrityFailure)
		}
		ciphertexts[i] = ct
		readPos += int64(lengthPrefix) + int64(length)
	}

	// Phase 2 (parallel): every chunk authenticated, safe to decrypt and
	// scatter-write.
	outDir := filepath.Dir(outPath)
	tmp, err := os.CreateTemp(outDir, ".cryptgrid-*.tmp")
	if err != nil {
		return cryptoerr.New(cryptoerr.KindIO, "decrypt.tmp", outPath, err)
	}
	tmpPath := tmp.Name()
	abort := func() {
		tmp.Close()
		os.Remove(tmpPath)
	}

	tasks := make([]func(context.Context) error, n)
	for i := 0; i < n; i++ {
		i := i
		ct := ciphertexts[i]
		offset := int64(i) * int64(chunkSize)
		tasks[i] = func(ctx context.Context) error {
			plaintext := make([]byte, len(ct))
			stream := cipher.NewCTR(mustBlock(key), chunkNonce(baseNonce, i))
			stream.XORKeyStream(plaintext, ct)
			if len(plaintext) == 0 {
				return nil
			}
			_, err := tmp.WriteAt(plaintext, offset)
			return err
		}
	}

	if err := e.pool.Run(ctx, tasks); err != nil {
		abort()
		return cryptoerr.New(cryptoerr.KindIO, "decrypt.write", outPath, err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return cryptoerr.New(cryptoerr.KindIO, "decrypt.close", outPath, err)
	}
	if err := os.Rename(tmpPath, outPath); err != nil {
		os.Remove(tmpPath)
		return cryptoerr.New(cryptoerr.KindIO, "decrypt.rename", outPath, err)
	}
	return nil
}

// chunkNonce builds the i-th chunk's CTR nonce: the 8-byte random prefix
// of baseNonce followed by a big-endian u64 counter (§3, invariant 4).
func chunkNonce(baseNonce []byte, i int) []byte {
	nonce := make([]byte, 16)
	copy(nonce[:8], baseNonce[:8])
	binary.BigEndian.PutUint64(nonce[8:], uint64(i))
	return nonce
}

func deriveAuthKey(key []byte) []byte {
	sum := sha256.Sum256(append(append([]byte(nil), key...), authKeySuffix...))
	return sum[:]
}

func mustBlock(key []byte) cipher.Block {
	block, err := aes.NewCipher(key)
	if err != nil {
		// key is always exactly 32 bytes by the time it reaches this
		// engine; a construction error here means the vault or driver
		// violated that contract.
		panic(fmt.Sprintf("chunked: invalid key for AES cipher: %v", err))
	}
	return block
}

func writeHeader(f *os.File, baseNonce []byte, chunkSize int) error {
	header := make([]byte, headerLen)
	copy(header[:headerMagicLen], Magic)
	copy(header[headerMagicLen:headerMagicLen+headerNonceLen], baseNonce)
	binary.BigEndian.PutUint64(header[headerMagicLen+headerNonceLen:], uint64(chunkSize))
	_, err := f.WriteAt(header, 0)
	return err
}

func readHeader(f *os.File) (string, int, error) {
	header := make([]byte, headerLen)
	if _, err := f.ReadAt(header, 0); err != nil {
		return "", 0, err
	}
	magic := string(header[:headerMagicLen])
	chunkSize := binary.BigEndian.Uint64(header[headerMagicLen+headerNonceLen:])
	return magic, int(chunkSize), nil
}

func writeChunk(f *os.File, pos int64, data []byte) error {
	lenPrefix := make([]byte, lengthPrefix)
	binary.BigEndian.PutUint64(lenPrefix, uint64(len(data)))
	if _, err := f.WriteAt(lenPrefix, pos); err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	_, err := f.WriteAt(data, pos+lengthPrefix)
	return err
}

// readChunk reads the length-prefixed ciphertext record at pos, returning
// the declared length and the ciphertext bytes.
func readChunk(f *os.File, pos int64) (int, []byte, error) {
	lenPrefix := make([]byte, lengthPrefix)
	if _, err := f.ReadAt(lenPrefix, pos); err != nil {
		return 0, nil, err
	}
	length := int(binary.BigEndian.Uint64(lenPrefix))
	if length == 0 {
		return 0, []byte{}, nil
	}
	data := make([]byte, length)
	if _, err := f.ReadAt(data, pos+lengthPrefix); err != nil {
		return 0, nil, err
	}
	return length, data, nil
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
