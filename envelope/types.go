package envelope

import (
	"fmt"

	"github.com/aaronp/kerigo/event"
)

// SignerSetKind disambiguates which key array a signature's KeyIndex
// refers into (spec.md section 3, "signerSet disambiguates...").
type SignerSetKind string

const (
	SignerSetCurrent SignerSetKind = "current"
	SignerSetPrior   SignerSetKind = "prior"
	SignerSetWitness SignerSetKind = "witness"
)

// signerSetRank gives the sort order used when persisting signatures:
// (signerSet.kind, sn, keyIndex).
func signerSetRank(k SignerSetKind) int {
	switch k {
	case SignerSetCurrent:
		return 0
	case SignerSetPrior:
		return 1
	case SignerSetWitness:
		return 2
	default:
		return 99
	}
}

// SignerSet is a tagged union: {current, sn}, {prior, sn}, or {witness, aid}.
// Modeled as a struct with a Kind discriminant (spec.md section 9 calls for
// "a sum type with three cases; avoid sentinel values") rather than a
// sentinel int, so callers must branch on Kind explicitly.
type SignerSet struct {
	Kind SignerSetKind
	Sn   int    // sequence number of the referenced establishment event; set for current/prior
	AID  string // witness AID; set for witness
}

func (s SignerSet) String() string {
	switch s.Kind {
	case SignerSetWitness:
		return fmt.Sprintf("witness(%s)", s.AID)
	default:
		return fmt.Sprintf("%s(sn=%d)", s.Kind, s.Sn)
	}
}

// Signature is one signer's contribution to an envelope.
type Signature struct {
	KeyIndex  int
	Qb64Sig   string
	SignerSet SignerSet
}

// Envelope is an event plus its canonical qb64 bytes (the portable source
// of truth) plus an ordered list of signatures.
type Envelope struct {
	Event      *event.Event `json:"event"`
	EventCesr  string       `json:"eventCesr"`
	Signatures []Signature  `json:"signatures"`
}

// SigResult is the per-signature outcome of envelope/proof verification.
type SigResult struct {
	KeyIndex  int
	SignerSet SignerSet
	Valid     bool
	Reason    string
}

// VerifyResult is the structured outcome of VerifyEnvelope/VerifyEventProof.
type VerifyResult struct {
	Valid              bool
	ValidSignatures    int
	RequiredSignatures int
	PerSignatureResult []SigResult
}

// WitnessResolver resolves a witness AID to its qb64 public key. The
// engine treats witness receipts as a pass-through field (spec.md section
// 9); a nil resolver makes any witness-signed signature unresolvable.
type WitnessResolver interface {
	ResolveWitness(aid string) (qb64Pub string, ok bool)
}
