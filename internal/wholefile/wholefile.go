// Package wholefile implements the Whole-file Engine (§4.F): single-pass
// CTR/GCM/CBC encryption for files too small to justify the Chunked CTR
// Engine's parallel grid format.
package wholefile

import (
	"bufio"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ironveil/cryptgrid/internal/cryptoerr"
	cryptoutil "github.com/ironveil/cryptgrid/internal/crypto"
	"github.com/ironveil/cryptgrid/internal/logger"
	"github.com/ironveil/cryptgrid/internal/model"
	"github.com/ironveil/cryptgrid/internal/vault"
)

const (
	ctrNonceSize = 16
	gcmNonceSize = 12
	cbcIVSize    = 16
	streamBufLen = 64 * 1024
)

var magics = map[model.Mode]string{
	model.ModeCTR: "CTR",
	model.ModeGCM: "GCM",
	model.ModeCBC: "CBC",
}

// Engine runs the three whole-file modes. log may be nil.
type Engine struct {
	log logger.Logger
}

// New builds a whole-file Engine.
func New(log logger.Logger) *Engine {
	return &Engine{log: log}
}

// Encrypt runs the mode-appropriate single-shot algorithm (§4.F), writes
// the sidecar manifest, and invokes vault to wrap key under
// keyID/masterSecret (same VAULT_FAILED-is-non-fatal policy as §4.E.3).
func (e *Engine) Encrypt(v *vault.Vault, srcPath, destPath string, key []byte, keyID, masterSecret string, mode model.Mode) (*model.Manifest, error) {
	secureKey, err := cryptoutil.NewSecureBufferFromBytes(key)
	if err != nil {
		return nil, cryptoerr.New(cryptoerr.KindCrypto, "encrypt.key", srcPath, err)
	}
	defer secureKey.Destroy()

	src, err := os.Open(srcPath) // #nosec G304 - path supplied by the driver's own enumeration
	if err != nil {
		return nil, cryptoerr.New(cryptoerr.KindIO, "encrypt.open", srcPath, err)
	}
	defer src.Close()

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

	var nonceOrIV []byte
	switch mode {
	case model.ModeCTR:
		nonceOrIV, err = e.encryptCTR(secureKey.Data(), src, tmp)
	case model.ModeGCM:
		nonceOrIV, err = e.encryptGCM(secureKey.Data(), src, tmp)
	case model.ModeCBC:
		nonceOrIV, err = e.encryptCBC(secureKey.Data(), src, tmp)
	default:
		err = fmt.Errorf("unsupported whole-file mode %q", mode)
	}
	if err != nil {
		abort()
		return nil, cryptoerr.New(cryptoerr.KindCrypto, "encrypt", srcPath, err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return nil, cryptoerr.New(cryptoerr.KindIO, "encrypt.close", destPath, err)
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return nil, cryptoerr.New(cryptoerr.KindIO, "encrypt.rename", destPath, err)
	}

	manifest := model.NewWholeFileManifest(mode, hex.EncodeToString(nonceOrIV), keyID, srcPath)
	if err := model.WriteManifest(destPath, manifest); err != nil {
		return nil, cryptoerr.New(cryptoerr.KindFormat, "encrypt.manifest", destPath, err)
	}

	if err := v.Store(keyID, key, mode, masterSecret); err != nil {
		if e.log != nil {
			e.log.Error("vault store failed after ciphertext commit", "key_id", keyID, "path", destPath, "err", err)
		}
	}
	return manifest, nil
}

// Decrypt requires the sidecar manifest, loads the key via vault, and
// reverses the mode-appropriate algorithm.
func (e *Engine) Decrypt(v *vault.Vault, encPath, outPath, masterSecret string) error {
	manifest, err := model.ReadManifest(encPath)
	if err != nil {
		return cryptoerr.New(cryptoerr.KindFormat, "decrypt.manifest", encPath, fmt.Errorf("%w: %v", cryptoerr.ManifestMissing, err))
	}
	if manifest.Chunked {
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

	src, err := os.Open(encPath) // #nosec G304 - path supplied by the driver's own enumeration
	if err != nil {
		return cryptoerr.New(cryptoerr.KindIO, "decrypt.open", encPath, err)
	}
	defer src.Close()

	wantMagic, ok := magics[manifest.Mode]
	if !ok {
		return cryptoerr.New(cryptoerr.KindFormat, "decrypt.manifest", encPath, cryptoerr.ManifestCorrupt)
	}
	magicBuf := make([]byte, len(wantMagic))
	if _, err := io.ReadFull(src, magicBuf); err != nil {
		return cryptoerr.New(cryptoerr.KindIO, "decrypt.header", encPath, err)
	}
	if string(magicBuf) != wantMagic {
		return cryptoerr.New(cryptoerr.KindFormat, "decrypt.header", encPath, cryptoerr.HeaderMismatch)
	}
	// Skip the header's nonce/IV; the manifest carries the same value.
	headerNonceLen := ctrNonceSize
	switch manifest.Mode {
	case model.ModeGCM:
		headerNonceLen = gcmNonceSize
	case model.ModeCBC:
		headerNonceLen = cbcIVSize
	}
	if _, err := io.ReadFull(src, make([]byte, headerNonceLen)); err != nil {
		return cryptoerr.New(cryptoerr.KindIO, "decrypt.header", encPath, err)
	}

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

	switch manifest.Mode {
	case model.ModeCTR:
		err = e.decryptCTR(secureKey.Data(), manifest, src, tmp)
	case model.ModeGCM:
		err = e.decryptGCM(secureKey.Data(), manifest, src, tmp)
	case model.ModeCBC:
		err = e.decryptCBC(secureKey.Data(), manifest, src, tmp)
	}
	if err != nil {
		abort()
		return err
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

// --- CTR: streaming, fixed block size (§4.F) ---

func (e *Engine) encryptCTR(key []byte, src *os.File, dst *os.File) ([]byte, error) {
	nonce := make([]byte, ctrNonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	if _, err := dst.Write([]byte(magics[model.ModeCTR])); err != nil {
		return nil, err
	}
	if _, err := dst.Write(nonce); err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	stream := cipher.NewCTR(block, nonce)

	r := bufio.NewReaderSize(src, streamBufLen)
	w := bufio.NewWriterSize(dst, streamBufLen)
	buf := make([]byte, streamBufLen)
	out := make([]byte, streamBufLen)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			stream.XORKeyStream(out[:n], buf[:n])
			if _, werr := w.Write(out[:n]); werr != nil {
				return nil, werr
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
	}
	return nonce, w.Flush()
}

func (e *Engine) decryptCTR(key []byte, manifest *model.Manifest, src *os.File, dst *os.File) error {
	nonce, err := hex.DecodeString(manifest.Nonce)
	if err != nil || len(nonce) != ctrNonceSize {
		return cryptoerr.New(cryptoerr.KindFormat, "decrypt.ctr", "", cryptoerr.ManifestCorrupt)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return cryptoerr.New(cryptoerr.KindCrypto, "decrypt.ctr", "", err)
	}
	stream := cipher.NewCTR(block, nonce)

	r := bufio.NewReaderSize(src, streamBufLen)
	w := bufio.NewWriterSize(dst, streamBufLen)
	buf := make([]byte, streamBufLen)
	out := make([]byte, streamBufLen)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			stream.XORKeyStream(out[:n], buf[:n])
			if _, werr := w.Write(out[:n]); werr != nil {
				return cryptoerr.New(cryptoerr.KindIO, "decrypt.ctr", "", werr)
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return cryptoerr.New(cryptoerr.KindIO, "decrypt.ctr", "", err)
		}
	}
	return w.Flush()
}

// --- GCM: buffered-whole AEAD (§4.F) ---

func (e *Engine) encryptGCM(key []byte, src *os.File, dst *os.File) ([]byte, error) {
	plaintext, err := io.ReadAll(src)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcmNonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	ciphertext := gcm.Seal(nil, nonce, plaintext, nil)

	if _, err := dst.Write([]byte(magics[model.ModeGCM])); err != nil {
		return nil, err
	}
	if _, err := dst.Write(nonce); err != nil {
		return nil, err
	}
	if _, err := dst.Write(ciphertext); err != nil {
		return nil, err
	}
	return nonce, nil
}

func (e *Engine) decryptGCM(key []byte, manifest *model.Manifest, src *os.File, dst *os.File) error {
	nonce, err := hex.DecodeString(manifest.Nonce)
	if err != nil || len(nonce) != gcmNonceSize {
		return cryptoerr.New(cryptoerr.KindFormat, "decrypt.gcm", "", cryptoerr.ManifestCorrupt)
	}
	ciphertext, err := io.ReadAll(src)
	if err != nil {
		return cryptoerr.New(cryptoerr.KindIO, "decrypt.gcm", "", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return cryptoerr.New(cryptoerr.KindCrypto, "decrypt.gcm", "", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return cryptoerr.New(cryptoerr.KindCrypto, "decrypt.gcm", "", err)
	}
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return cryptoerr.New(cryptoerr.KindCrypto, "decrypt.gcm", "", cryptoerr.IntegrityFailure)
	}
	_, err = dst.Write(plaintext)
	return err
}

// --- CBC: PKCS7 padding over the whole plaintext (§4.F) ---

func (e *Engine) encryptCBC(key []byte, src *os.File, dst *os.File) ([]byte, error) {
	plaintext, err := io.ReadAll(src)
	if err != nil {
		return nil, err
	}
	iv := make([]byte, cbcIVSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	padded := pkcs7Pad(plaintext, block.BlockSize())
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	if _, err := dst.Write([]byte(magics[model.ModeCBC])); err != nil {
		return nil, err
	}
	if _, err := dst.Write(iv); err != nil {
		return nil, err
	}
	if _, err := dst.Write(ciphertext); err != nil {
		return nil, err
	}
	return iv, nil
}

func (e *Engine) decryptCBC(key []byte, manifest *model.Manifest, src *os.File, dst *os.File) error {
	iv, err := hex.DecodeString(manifest.IV)
	if err != nil || len(iv) != cbcIVSize {
		return cryptoerr.New(cryptoerr.KindFormat, "decrypt.cbc", "", cryptoerr.ManifestCorrupt)
	}
	ciphertext, err := io.ReadAll(src)
	if err != nil {
		return cryptoerr.New(cryptoerr.KindIO, "decrypt.cbc", "", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return cryptoerr.New(cryptoerr.KindCrypto, "decrypt.cbc", "", err)
	}
	if len(ciphertext) == 0 || len(ciphertext)%block.BlockSize() != 0 {
		return cryptoerr.New(cryptoerr.KindFormat, "decrypt.cbc", "", cryptoerr.IntegrityFailure)
	}
	padded := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(padded, ciphertext)
	plaintext, err := pkcs7Unpad(padded, block.BlockSize())
	if err != nil {
		return cryptoerr.New(cryptoerr.KindCrypto, "decrypt.cbc", "", cryptoerr.IntegrityFailure)
	}
	_, err = dst.Write(plaintext)
	return err
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
