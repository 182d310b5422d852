package envelope

import (
	"fmt"
	"strconv"

	"github.com/aaronp/kerigo/codec"
	"github.com/aaronp/kerigo/event"
	"github.com/aaronp/kerigo/keys"
)

// VerifyEnvelope recomputes the SAID, resolves each signature's signer set
// against priorEvent (required for rot/ixn/drt, ignored for icp/dip), and
// verifies every signature plus — for rotations — the next-key commitment
// and threshold carry-over (spec.md section 4.4).
func VerifyEnvelope(env *Envelope, priorEvent *event.Event, witnesses WitnessResolver) (*VerifyResult, error) {
	rawCesr, err := codec.FromQb64(env.EventCesr)
	if err != nil {
		return nil, err
	}
	if got := codec.ComputeSAID(rawCesr); got != env.Event.D {
		return nil, fmt.Errorf("%w: got %s, event.d is %s", ErrSaidMismatch, got, env.Event.D)
	}

	var requiredThresholdStr string
	switch env.Event.T {
	case event.TypeInception, event.TypeDelegatedInception:
		requiredThresholdStr = env.Event.Kt
	case event.TypeRotation, event.TypeDelegatedRotation:
		if priorEvent == nil {
			return nil, ErrMissingPriorEvent
		}
		commit, err := event.ComputeNextCommitment(env.Event.K, env.Event.Kt)
		if err != nil {
			return nil, err
		}
		if commit != priorEvent.N {
			return nil, fmt.Errorf("%w: recomputed %s, prior.n is %s", ErrCommitmentMismatch, commit, priorEvent.N)
		}
		if env.Event.Kt != priorEvent.Nt {
			return nil, fmt.Errorf("%w: reveal kt %s, prior.nt is %s", ErrThresholdMismatch, env.Event.Kt, priorEvent.Nt)
		}
		requiredThresholdStr = priorEvent.Kt
	case event.TypeInteraction:
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

	results := make([]SigResult, 0, len(env.Signatures))
	validCount := 0
	for _, sig := range env.Signatures {
		qb64Pub, resolveErr := resolveSignerKey(sig.SignerSet, sig.KeyIndex, env.Event, priorEvent, witnesses)
		if resolveErr != nil {
			results = append(results, SigResult{KeyIndex: sig.KeyIndex, SignerSet: sig.SignerSet, Valid: false, Reason: resolveErr.Error()})
			continue
		}
		ok, verr := keys.Verify(sig.Qb64Sig, rawCesr, qb64Pub)
		if verr != nil {
			results = append(results, SigResult{KeyIndex: sig.KeyIndex, SignerSet: sig.SignerSet, Valid: false, Reason: verr.Error()})
			continue
		}
		if !ok {
			results = append(results, SigResult{KeyIndex: sig.KeyIndex, SignerSet: sig.SignerSet, Valid: false,
				Reason: fmt.Sprintf("bad sig @%d (%s)", sig.KeyIndex, sig.SignerSet)})
			continue
		}
		results = append(results, SigResult{KeyIndex: sig.KeyIndex, SignerSet: sig.SignerSet, Valid: true})
		validCount++
	}

	return &VerifyResult{
		Valid:              validCount >= required,
		ValidSignatures:    validCount,
		RequiredSignatures: required,
		PerSignatureResult: results,
	}, nil
}

// resolveSignerKey resolves the qb64 public key a signature's signer set
// and key index refer to.
func resolveSignerKey(ss SignerSet, keyIndex int, ev, priorEvent *event.Event, witnesses WitnessResolver) (string, error) {
	switch ss.Kind {
	case SignerSetCurrent:
		if keyIndex < 0 || keyIndex >= len(ev.K) {
			return "", fmt.Errorf("%w: index %d, current keys has %d", ErrInvalidKeyIndex, keyIndex, len(ev.K))
		}
		return ev.K[keyIndex], nil
	case SignerSetPrior:
		if priorEvent == nil {
			return "", ErrMissingPriorEvent
		}
		if keyIndex < 0 || keyIndex >= len(priorEvent.K) {
			return "", fmt.Errorf("%w: index %d, prior keys has %d", ErrInvalidKeyIndex, keyIndex, len(priorEvent.K))
		}
		return priorEvent.K[keyIndex], nil
	case SignerSetWitness:
		if witnesses == nil {
			return "", fmt.Errorf("%w: no witness registry configured", ErrUnknownSignerSet)
		}
		pub, ok := witnesses.ResolveWitness(ss.AID)
		if !ok {
			return "", fmt.Errorf("%w: unknown witness %s", ErrUnknownSignerSet, ss.AID)
		}
		return pub, nil
	default:
		return "", fmt.Errorf("%w: kind %q", ErrUnknownSignerSet, ss.Kind)
	}
}
