// Package keys implements Ed25519 keypair primitives for kerigo: seed,
// mnemonic, and numeric-entropy derivation, and qb64-encoded sign/verify.
package keys

import "errors"

var (
	// ErrInvalidSeedLength indicates a seed that is not exactly 32 bytes.
	ErrInvalidSeedLength = errors.New("keys: seed must be 32 bytes")

	// ErrInvalidMnemonic indicates a mnemonic that fails BIP-39 wordlist
	// or checksum validation.
	ErrInvalidMnemonic = errors.New("keys: invalid mnemonic")

	// ErrInvalidSignatureFormat indicates a malformed qb64 signature.
	ErrInvalidSignatureFormat = errors.New("keys: invalid signature format")

	// ErrVerificationFailed indicates Ed25519 verification returned false.
	ErrVerificationFailed = errors.New("keys: signature verification failed")
)
