package model

import (
	"encoding/json"
	"os"
)

// Mode names the cipher family used for a ciphertext payload (§6).
type Mode string

const (
	ModeCTR        Mode = "CTR"
	ModeGCM        Mode = "GCM"
	ModeCBC        Mode = "CBC"
	ModeCTRChunked Mode = "CTR_CHUNKED"
)

// ManifestVersion is the current on-disk manifest format version (§6).
const ManifestVersion = 1

// Manifest is the sidecar record written next to every ciphertext file,
// `<ciphertext>.meta.json` (§3, §4.F, §6). The same struct covers both the
// chunked and whole-file shapes; unused fields are zero-valued and omitted
// on encode.
type Manifest struct {
	Mode    Mode   `json:"mode"`
	KeyID   string `json:"key_id"`
	Src     string `json:"src"`
	Version int    `json:"version"`

	// Whole-file fields (§4.F).
	Chunked bool   `json:"chunked"`
	Nonce   string `json:"nonce,omitempty"`
	IV      string `json:"iv,omitempty"`

	// Chunked fields (§3).
	BaseNonce  string   `json:"base_nonce,omitempty"`
	ChunkSize  int      `json:"chunk_size,omitempty"`
	ChunkCount int      `json:"chunk_count,omitempty"`
	ChunkHMACs []string `json:"chunk_hmacs,omitempty"`
}

// NewWholeFileManifest builds the manifest for a single-shot CTR/GCM/CBC
// output (§4.F).
func NewWholeFileManifest(mode Mode, nonceOrIV, keyID, src string) *Manifest {
	m := &Manifest{
		Mode:    mode,
		KeyID:   keyID,
		Src:     src,
		Version: ManifestVersion,
		Chunked: false,
	}
	if mode == ModeCBC {
		m.IV = nonceOrIV
	} else {
		m.Nonce = nonceOrIV
	}
	return m
}

// NewChunkedManifest builds the manifest for a CTR_CHUNKED output (§3).
func NewChunkedManifest(baseNonce string, chunkSize int, chunkHMACs []string, keyID, src string) *Manifest {
	return &Manifest{
		Mode:       ModeCTRChunked,
		KeyID:      keyID,
		Src:        src,
		Version:    ManifestVersion,
		Chunked:    true,
		BaseNonce:  baseNonce,
		ChunkSize:  chunkSize,
		ChunkCount: len(chunkHMACs),
		ChunkHMACs: chunkHMACs,
	}
}

// ManifestPath returns the sidecar manifest path for a ciphertext file
// (§6: `<ciphertext>.meta.json`).
func ManifestPath(ciphertextPath string) string {
	return ciphertextPath + ".meta.json"
}

// WriteManifest writes m as the sidecar manifest for ciphertextPath.
func WriteManifest(ciphertextPath string, m *Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(ManifestPath(ciphertextPath), data, 0600)
}

// ReadManifest reads and parses the sidecar manifest for ciphertextPath.
func ReadManifest(ciphertextPath string) (*Manifest, error) {
	data, err := os.ReadFile(ManifestPath(ciphertextPath))
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}
