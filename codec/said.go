package codec

import "github.com/zeebo/blake3"

// SAIDPlaceholder is the fixed-length placeholder used for the `d` field
// while computing a self-addressing identifier. Its length must equal the
// length of a final SAID (1 code byte + 43 base64url chars = 44) so that
// canonical byte length is invariant under the placeholder substitution.
const SAIDPlaceholder = "############################################"

// DigestSize is the Blake3-256 output size in bytes.
const DigestSize = 32

func init() {
	if len(SAIDPlaceholder) != 44 {
		panic("codec: SAIDPlaceholder must be 44 characters")
	}
}

// Digest computes the Blake3-256 digest of b.
func Digest(b []byte) [DigestSize]byte {
	h := blake3.New()
	h.Write(b)
	var out [DigestSize]byte
	h.Digest().Read(out[:])
	return out
}

// ComputeSAID computes the self-addressing identifier of canonical bytes:
// the Blake3-256 digest, qb64-encoded with the `E` prefix.
func ComputeSAID(canonicalBytes []byte) string {
	d := Digest(canonicalBytes)
	return "E" + ToQb64(d[:])
}
