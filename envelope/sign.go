package envelope

import (
	"sort"

	"github.com/aaronp/kerigo/codec"
	"github.com/aaronp/kerigo/event"
	"github.com/aaronp/kerigo/keys"
)

// SigningKey pairs a key index with the seed and transferability used to
// produce one signature.
type SigningKey struct {
	KeyIndex     int
	Seed         [32]byte
	Transferable bool
}

// DefaultSignerSet returns the signer set an event's own signatures use by
// default (spec.md section 4.4): current for icp/dip, prior for rot/ixn/drt.
// priorEstablishment is required (and its sequence used as Sn) for every
// kind except icp/dip.
func DefaultSignerSet(e *event.Event, priorEstablishment *event.Event) (SignerSet, error) {
	switch e.T {
	case event.TypeInception, event.TypeDelegatedInception:
		return SignerSet{Kind: SignerSetCurrent, Sn: 0}, nil
	case event.TypeRotation, event.TypeInteraction, event.TypeDelegatedRotation:
		if priorEstablishment == nil {
			return SignerSet{}, ErrMissingPriorEvent
		}
		sn, err := priorEstablishment.SequenceInt()
		if err != nil {
			return SignerSet{}, err
		}
		return SignerSet{Kind: SignerSetPrior, Sn: sn}, nil
	default:
		return SignerSet{}, ErrUnknownSignerSet
	}
}

// CanonicalBytes returns the canonical byte representation of e, the
// message every signature in its envelope is computed over.
func CanonicalBytes(e *event.Event) ([]byte, error) {
	return codec.Canonicalize(e.ToMap())
}

// SignEnvelope builds an envelope for e, producing one signature per
// signingKey, all tagged with signerSet.
func SignEnvelope(e *event.Event, signerSet SignerSet, signingKeys []SigningKey) (*Envelope, error) {
	canonical, err := CanonicalBytes(e)
	if err != nil {
		return nil, err
	}

	sigs := make([]Signature, 0, len(signingKeys))
	for _, sk := range signingKeys {
		qb64Sig, err := keys.Sign(canonical, sk.Seed, sk.Transferable)
		if err != nil {
			return nil, err
		}
		sigs = append(sigs, Signature{
			KeyIndex:  sk.KeyIndex,
			Qb64Sig:   qb64Sig,
			SignerSet: signerSet,
		})
	}
	sortSignatures(sigs)

	return &Envelope{
		Event:      e,
		EventCesr:  codec.ToQb64(canonical),
		Signatures: sigs,
	}, nil
}

// AddSignatures appends more signatures to an existing envelope and
// re-sorts them.
func AddSignatures(env *Envelope, sigs ...Signature) {
	env.Signatures = append(env.Signatures, sigs...)
	sortSignatures(env.Signatures)
}

// sortSignatures orders signatures by (signerSet.kind, sn, keyIndex) for
// deterministic storage (spec.md section 4.4).
func sortSignatures(sigs []Signature) {
	sort.Slice(sigs, func(i, j int) bool {
		a, b := sigs[i], sigs[j]
		ra, rb := signerSetRank(a.SignerSet.Kind), signerSetRank(b.SignerSet.Kind)
		if ra != rb {
			return ra < rb
		}
		if a.SignerSet.Sn != b.SignerSet.Sn {
			return a.SignerSet.Sn < b.SignerSet.Sn
		}
		return a.KeyIndex < b.KeyIndex
	})
}
