package envelope

import (
	"fmt"
	"strconv"

	"github.com/aaronp/kerigo/codec"
	"github.com/aaronp/kerigo/event"
	"github.com/aaronp/kerigo/keys"
)

// ProofSigner is one signer's contribution, enriched with its resolved
// public key (and, if known, AID) so a proof can be verified without any
// access to the producer's chain.
type ProofSigner struct {
	KeyIndex  int       `json:"keyIndex"`
	SignerSet SignerSet `json:"signerSet"`
	Signature string    `json:"signature"`
	PublicKey string    `json:"publicKey"`
	SignerAid string    `json:"signerAid,omitempty"`
}

// EventProof is a self-contained record enabling third-party verification
// of an event without querying the producer's stores. RequiredThreshold
// is carried explicitly (beyond spec.md section 4.4's minimal field list)
// because a rot/ixn envelope's threshold source is the *prior* event,
// which a proof by definition does not include — without embedding the
// resolved count, "verify without access to the producer's chain" would
// not otherwise hold for those event types.
type EventProof struct {
	Said               string        `json:"said"`
	EventCesr          string        `json:"eventCesr"`
	Event              *event.Event  `json:"event"`
	Signers            []ProofSigner `json:"signers"`
	RequiredThreshold  int           `json:"requiredThreshold"`
}

// BuildEventProof resolves every signature in env against priorEvent (may
// be nil for icp/dip) and the witness registry, embedding the results.
func BuildEventProof(env *Envelope, priorEvent *event.Event, witnesses WitnessResolver, signerAids map[string]string) (*EventProof, error) {
	var requiredThresholdStr string
	switch env.Event.T {
	case event.TypeInception, event.TypeDelegatedInception:
		requiredThresholdStr = env.Event.Kt
	case event.TypeRotation, event.TypeDelegatedRotation, event.TypeInteraction:
		if priorEvent == nil {
			return nil, ErrMissingPriorEvent
		}
		requiredThresholdStr = priorEvent.Kt
	default:
		return nil, fmt.Errorf("envelope: unknown event type %q", env.Event.T)
	}
	required, err := strconv.Atoi(requiredThresholdStr)
	if err != nil {
		return nil, fmt.Errorf("envelope: parsing threshold %q: %w", requiredThresholdStr, err)
	}

	signers := make([]ProofSigner, 0, len(env.Signatures))
	for _, sig := range env.Signatures {
		pub, err := resolveSignerKey(sig.SignerSet, sig.KeyIndex, env.Event, priorEvent, witnesses)
		if err != nil {
			return nil, err
		}
		signers = append(signers, ProofSigner{
			KeyIndex:  sig.KeyIndex,
			SignerSet: sig.SignerSet,
			Signature: sig.Qb64Sig,
			PublicKey: pub,
			SignerAid: signerAids[signerSetKey(sig.SignerSet, sig.KeyIndex)],
		})
	}

	return &EventProof{
		Said:              env.Event.D,
		EventCesr:         env.EventCesr,
		Event:             env.Event,
		Signers:           signers,
		RequiredThreshold: required,
	}, nil
}

// VerifyEventProof verifies proof entirely from its own contents: it
// recomputes the SAID from eventCesr, verifies every embedded signature
// against its embedded public key, and compares the valid count against
// the embedded required threshold. No producer store access is needed.
func VerifyEventProof(proof *EventProof) (*VerifyResult, error) {
	rawCesr, err := codec.FromQb64(proof.EventCesr)
	if err != nil {
		return nil, err
	}
	if got := codec.ComputeSAID(rawCesr); got != proof.Said {
		return nil, fmt.Errorf("%w: got %s, proof.said is %s", ErrSaidMismatch, got, proof.Said)
	}

	results := make([]SigResult, 0, len(proof.Signers))
	validCount := 0
	for _, s := range proof.Signers {
		ok, verr := keys.Verify(s.Signature, rawCesr, s.PublicKey)
		switch {
		case verr != nil:
			results = append(results, SigResult{KeyIndex: s.KeyIndex, SignerSet: s.SignerSet, Valid: false, Reason: verr.Error()})
		case !ok:
			results = append(results, SigResult{KeyIndex: s.KeyIndex, SignerSet: s.SignerSet, Valid: false,
				Reason: fmt.Sprintf("bad sig @%d (%s)", s.KeyIndex, s.SignerSet)})
		default:
			results = append(results, SigResult{KeyIndex: s.KeyIndex, SignerSet: s.SignerSet, Valid: true})
			validCount++
		}
	}

	if validCount < proof.RequiredThreshold {
		// Surface a summary reason alongside the per-signature detail.
		results = append(results, SigResult{Valid: false,
			Reason: fmt.Sprintf("Insufficient signatures: %d/%d", validCount, proof.RequiredThreshold)})
	}

	return &VerifyResult{
		Valid:              validCount >= proof.RequiredThreshold,
		ValidSignatures:    validCount,
		RequiredSignatures: proof.RequiredThreshold,
		PerSignatureResult: results,
	}, nil
}

// signerSetKey builds a lookup key for the signerAids map passed to
// BuildEventProof: distinct per (kind, sn, keyIndex) for current/prior
// signer sets, and per witness AID alone for witness signer sets.
func signerSetKey(ss SignerSet, keyIndex int) string {
	if ss.Kind == SignerSetWitness {
		return fmt.Sprintf("witness:%s", ss.AID)
	}
	return fmt.Sprintf("%s:%d:%d", ss.Kind, ss.Sn, keyIndex)
}
