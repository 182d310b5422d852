// Package codec implements the canonical byte representation used across
// kerigo: deterministic JSON serialization, Blake3-256 self-addressing
// identifiers (SAIDs), and the CESR-style qb64 prefix encoding for keys,
// signatures, and digests.
package codec

import "errors"

var (
	// ErrInvalidFormat indicates a malformed qb64 code, wrong length, or
	// invalid base64url payload.
	ErrInvalidFormat = errors.New("codec: invalid format")

	// ErrInvalidKey indicates a seed of the wrong length or other key
	// material that cannot be encoded.
	ErrInvalidKey = errors.New("codec: invalid key")

	// ErrUnserializable indicates the input contains a value canonical
	// JSON cannot represent deterministically (e.g. a non-integral number or a map with
	// non-string keys nested inside raw interface{} data).
	ErrUnserializable = errors.New("codec: unserializable value")
)
