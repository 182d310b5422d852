package keys

import (
	"crypto/ed25519"
	"fmt"
	"strconv"

	"github.com/tyler-smith/go-bip39"

	"github.com/aaronp/kerigo/codec"
)

// Keypair holds Ed25519 key material plus its qb64 public-key encoding.
//
// SECURITY: Seed is the raw 32-byte Ed25519 seed. Callers that persist a
// Keypair to a vault decide whether the seed is retained at all (see
// store.Vault).
type Keypair struct {
	Seed         [32]byte
	Pub          ed25519.PublicKey
	Transferable bool
	Qb64         string
}

// KeypairFromSeed derives a Keypair from a 32-byte seed.
func KeypairFromSeed(seed []byte, transferable bool) (*Keypair, error) {
	if len(seed) != 32 {
		return nil, fmt.Errorf("%w: got %d bytes", ErrInvalidSeedLength, len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	pub := priv.Public().(ed25519.PublicKey)
	qb64, err := codec.EncodePublicKey(pub, transferable)
	if err != nil {
		return nil, err
	}
	kp := &Keypair{Pub: pub, Transferable: transferable, Qb64: qb64}
	copy(kp.Seed[:], seed)
	return kp, nil
}

// KeypairFromMnemonic derives a Keypair from a 24-word BIP-39 mnemonic
// (256 bits of entropy), using the mnemonic's own entropy bytes as the
// Ed25519 seed.
func KeypairFromMnemonic(mnemonic string, transferable bool) (*Keypair, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, ErrInvalidMnemonic
	}
	entropy, err := bip39.EntropyFromMnemonic(mnemonic)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMnemonic, err)
	}
	if len(entropy) != 32 {
		return nil, fmt.Errorf("%w: expected 256 bits of entropy, got %d bytes", ErrInvalidMnemonic, len(entropy))
	}
	return KeypairFromSeed(entropy, transferable)
}

// NewMnemonic generates a fresh 24-word BIP-39 mnemonic from 256 bits of
// entropy read from random.
func NewMnemonic(random func([]byte) (int, error)) (string, error) {
	entropy := make([]byte, 32)
	if _, err := random(entropy); err != nil {
		return "", fmt.Errorf("keys: reading entropy: %w", err)
	}
	return bip39.NewMnemonic(entropy)
}

// KeypairFromNumber derives a deterministic Keypair from a small integer
// "key spec", used for reproducible tests and demos (spec.md section 4.2,
// "deterministic numeric entropy"). The seed is the Blake3-256 digest of
// the number's decimal string, so distinct numbers are independent seeds
// and the mapping is stable across runs.
//
// TODO: this digest choice is unverified against spec.md section 8's
// published S1 golden qb64 strings for 1234/5678; confirm or replace it
// once the exact originating derivation is available.
func KeypairFromNumber(n int, transferable bool) (*Keypair, error) {
	digest := codec.Digest([]byte(strconv.Itoa(n)))
	return KeypairFromSeed(digest[:], transferable)
}

// Sign produces a qb64-encoded Ed25519 signature over message.
func Sign(message []byte, seed [32]byte, transferable bool) (string, error) {
	priv := ed25519.NewKeyFromSeed(seed[:])
	raw := ed25519.Sign(priv, message)
	return codec.EncodeSignature(raw, transferable)
}

// Verify checks a qb64-encoded Ed25519 signature against message and a
// qb64-encoded public key.
func Verify(qb64Sig string, message []byte, qb64Pub string) (bool, error) {
	rawSig, _, err := codec.DecodeSignature(qb64Sig)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrInvalidSignatureFormat, err)
	}
	rawPub, _, err := codec.DecodePublicKey(qb64Pub)
	if err != nil {
		return false, err
	}
	return ed25519.Verify(ed25519.PublicKey(rawPub), message, rawSig), nil
}

// VerifyOrError is Verify but returns ErrVerificationFailed instead of a
// plain false, for call sites that want a uniform error return.
func VerifyOrError(qb64Sig string, message []byte, qb64Pub string) error {
	ok, err := Verify(qb64Sig, message, qb64Pub)
	if err != nil {
		return err
	}
	if !ok {
		return ErrVerificationFailed
	}
	return nil
}
