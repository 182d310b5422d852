package codec

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// qb64 code prefixes (CESR-style, see spec.md section 6).
const (
	CodeTransferablePub    = "D"
	CodeNonTransferablePub = "B"
	CodeSAID               = "E"
	CodeTransferableSig    = "0B"
	CodeNonTransferableSig = "0A"
)

// ToQb64 encodes raw bytes as unpadded base64url.
func ToQb64(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}

// FromQb64 decodes a base64url payload, tolerating padding and the
// classic `+`/`/` alphabet in place of `-`/`_`.
func FromQb64(s string) ([]byte, error) {
	s = strings.NewReplacer("+", "-", "/", "_").Replace(s)
	s = strings.TrimRight(s, "=")
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	return b, nil
}

// EncodePublicKey qb64-encodes a 32-byte Ed25519 public key with the
// transferable (`D`) or non-transferable (`B`) code.
func EncodePublicKey(raw32 []byte, transferable bool) (string, error) {
	if len(raw32) != 32 {
		return "", fmt.Errorf("%w: public key must be 32 bytes, got %d", ErrInvalidKey, len(raw32))
	}
	code := CodeNonTransferablePub
	if transferable {
		code = CodeTransferablePub
	}
	return code + ToQb64(raw32), nil
}

// DecodePublicKey validates the code prefix and returns the raw key bytes
// along with whether the key is transferable.
func DecodePublicKey(qb64 string) (raw []byte, transferable bool, err error) {
	if len(qb64) < 2 {
		return nil, false, fmt.Errorf("%w: public key too short", ErrInvalidFormat)
	}
	code := qb64[:1]
	switch code {
	case CodeTransferablePub:
		transferable = true
	case CodeNonTransferablePub:
		transferable = false
	default:
		return nil, false, fmt.Errorf("%w: unexpected public key code %q", ErrInvalidFormat, code)
	}
	raw, err = FromQb64(qb64[1:])
	if err != nil {
		return nil, false, err
	}
	if len(raw) != 32 {
		return nil, false, fmt.Errorf("%w: decoded public key must be 32 bytes, got %d", ErrInvalidFormat, len(raw))
	}
	return raw, transferable, nil
}

// EncodeSignature qb64-encodes a 64-byte Ed25519 signature with the
// transferable (`0B`) or non-transferable (`0A`) code.
func EncodeSignature(raw64 []byte, transferable bool) (string, error) {
	if len(raw64) != 64 {
		return "", fmt.Errorf("%w: signature must be 64 bytes, got %d", ErrInvalidKey, len(raw64))
	}
	code := CodeNonTransferableSig
	if transferable {
		code = CodeTransferableSig
	}
	return code + ToQb64(raw64), nil
}

// DecodeSignature validates the code prefix and returns the raw signature
// bytes along with whether it is a transferable-key signature.
func DecodeSignature(qb64 string) (raw []byte, transferable bool, err error) {
	if len(qb64) < 2 {
		return nil, false, fmt.Errorf("%w: signature too short", ErrInvalidFormat)
	}
	code := qb64[:2]
	switch code {
	case CodeTransferableSig:
		transferable = true
	case CodeNonTransferableSig:
		transferable = false
	default:
		return nil, false, fmt.Errorf("%w: unexpected signature code %q", ErrInvalidFormat, code)
	}
	raw, err = FromQb64(qb64[2:])
	if err != nil {
		return nil, false, err
	}
	if len(raw) != 64 {
		return nil, false, fmt.Errorf("%w: decoded signature must be 64 bytes, got %d", ErrInvalidFormat, len(raw))
	}
	return raw, transferable, nil
}

// IsSAID reports whether s has the shape of a SAID: `E` followed by 43
// base64url characters.
func IsSAID(s string) bool {
	if len(s) != 44 || s[0] != 'E' {
		return false
	}
	_, err := FromQb64(s[1:])
	return err == nil
}
