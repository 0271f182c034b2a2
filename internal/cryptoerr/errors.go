// Package cryptoerr defines the typed error taxonomy used across the
// engine (§7): every fallible operation returns (or wraps) an *Error
// tagged with a Kind, so callers can branch with errors.Is/errors.As
// instead of matching on string messages.
package cryptoerr

import (
	"errors"
	"fmt"
)

// Kind classifies the failure domain of an Error (§7).
type Kind string

const (
	// KindInput covers missing files, empty master secret, bad arguments.
	KindInput Kind = "input"
	// KindCrypto covers wrong master, HMAC mismatch, AEAD tag mismatch.
	KindCrypto Kind = "crypto"
	// KindFormat covers magic/header/manifest mismatch, length inconsistency.
	KindFormat Kind = "format"
	// KindIO covers read/write/rename failure, mmap/positional-read failure.
	KindIO Kind = "io"
	// KindVault covers schema, timeout, not-found.
	KindVault Kind = "vault"
	// KindPool covers worker start failure, task exception.
	KindPool Kind = "pool"
)

// Sentinel errors surfaced to Driver-level callers (§6).
var (
	MissingInputs       = errors.New("missing inputs")
	MissingMasterSecret = errors.New("missing master secret")
	VaultAuthFailure    = errors.New("vault authentication failure")
	ManifestMissing     = errors.New("manifest missing")
	ManifestCorrupt     = errors.New("manifest corrupt")
	HeaderMismatch      = errors.New("header mismatch")
	IntegrityFailure    = errors.New("integrity failure")
	IOFailure           = errors.New("i/o failure")
)

// Error carries a Kind plus enough context (operation, path, chunk index)
// to diagnose a failure without parsing a message string.
type Error struct {
	Kind       Kind
	Op         string
	Path       string
	ChunkIndex int // -1 if not a chunk-level failure
	Err        error
}

func (e *Error) Error() string {
	if e.ChunkIndex >= 0 {
		return fmt.Sprintf("%s: %s %s (chunk %d): %v", e.Kind, e.Op, e.Path, e.ChunkIndex, e.Err)
	}
	return fmt.Sprintf("%s: %s %s: %v", e.Kind, e.Op, e.Path, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New builds a file-level (non-chunk) Error.
func New(kind Kind, op, path string, err error) *Error {
	return &Error{Kind: kind, Op: op, Path: path, ChunkIndex: -1, Err: err}
}

// NewChunk builds a chunk-level Error, for failures attributable to a
// specific chunk index within the Chunked CTR Engine.
func NewChunk(kind Kind, op, path string, chunkIndex int, err error) *Error {
	return &Error{Kind: kind, Op: op, Path: path, ChunkIndex: chunkIndex, Err: err}
}
