package model

// VaultRecord is the row shape of the Key Vault's `keys` table (§3, §6):
// `(id, created_at, salt, iv, wrapped_key, mode)`. `wrapped_key` is
// AES-CBC(PKCS7) over the raw file key under a PBKDF2-derived KEK; `mode`
// records the cipher family the key was issued for.
type VaultRecord struct {
	ID         string
	CreatedAt  int64
	Salt       []byte
	IV         []byte
	WrappedKey []byte
	Mode       Mode
}
