package config

import "time"

// Default timeout, duration and sizing constants
const (
	// DefaultVaultIterations is the PBKDF2-HMAC-SHA256 iteration count (§3)
	// used to derive the key-encryption-key from the master secret.
	DefaultVaultIterations = 200000

	// DefaultVaultWriteLockTimeout is the minimum bounded wait for the Key
	// Vault's write lock before giving up (§4.A, §5).
	DefaultVaultWriteLockTimeout = 10 * time.Second

	// DefaultChunkSize is the chunk size used when neither the caller nor
	// the Driver's elastic sizing (§4.G) overrides it.
	DefaultChunkSize = 8 * 1024 * 1024

	// DefaultHeavyThreshold is the size (§4.G) at or above which a file is
	// routed to the Chunked CTR Engine instead of the Whole-file Engine.
	DefaultHeavyThreshold = 16 * 1024 * 1024

	// DefaultBaseDelay is the default initial retry delay for backoff-based
	// waits. The vault's write-lock wait uses its own intervals, not this.
	DefaultBaseDelay = 100 * time.Millisecond

	// DefaultMaxDelay is the default maximum retry delay.
	DefaultMaxDelay = 2 * time.Second

	// DefaultMaxRetries is the default maximum number of retry attempts.
	DefaultMaxRetries = 5
)
