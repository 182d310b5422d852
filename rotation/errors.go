// Package rotation implements the threshold rotation coordinator (spec.md
// section 4.6): collecting cosigner signatures on a single proposed
// rotation durably, under loss and replay, and publishing exactly one
// finalized envelope.
package rotation

import "errors"

var (
	// ErrUnknownAID indicates the coordinator was asked to operate on a
	// rotation whose controller AID it has no record for.
	ErrUnknownAID = errors.New("rotation: unknown controller AID")

	// ErrIncompleteCosigners indicates the cosigner map passed at preflight
	// does not cover every external key index in the prior event's k[].
	ErrIncompleteCosigners = errors.New("rotation: cosigner map incomplete or has duplicate indices")

	// ErrRotationNotFinalizable indicates tryFinalize was invoked while the
	// rotation's phase was not `finalizable`.
	ErrRotationNotFinalizable = errors.New("rotation: not in finalizable phase")

	// ErrRotationTimedOut indicates awaitAll's deadline elapsed before the
	// rotation reached a terminal phase.
	ErrRotationTimedOut = errors.New("rotation: timed out waiting for terminal phase")

	// ErrRotationAborted indicates the rotation was aborted.
	ErrRotationAborted = errors.New("rotation: aborted")

	// ErrDuplicateSignature indicates a cosigner submitted a signature
	// string another signer already recorded (value-level replay guard).
	ErrDuplicateSignature = errors.New("rotation: duplicate signature value")

	// ErrDuplicateMessage indicates a message id the replay cache has
	// already seen.
	ErrDuplicateMessage = errors.New("rotation: duplicate message")

	// ErrInvalidKeyIndex indicates a signature message's keyIndex is out
	// of range for the prior event's key array.
	ErrInvalidKeyIndex = errors.New("rotation: signature key index out of range")

	// ErrSignerAidMismatch indicates a message's `from`/`signer` does not
	// match the cosigner AID mapped to that key index.
	ErrSignerAidMismatch = errors.New("rotation: signer AID mismatch")

	// ErrSignerPubMismatch indicates a cosigner mapping's public key does
	// not equal priorEvent.k at that index.
	ErrSignerPubMismatch = errors.New("rotation: cosigner public key mismatch")

	// ErrStaleProposalDigest indicates a signature message's
	// canonicalDigest does not match the persisted proposal's.
	ErrStaleProposalDigest = errors.New("rotation: canonical digest mismatch")

	// ErrRotationWrongID indicates a message's rotationId does not match
	// the coordinator's.
	ErrRotationWrongID = errors.New("rotation: rotation id mismatch")

	// ErrAlreadySigned indicates a signer already has a recorded signature.
	ErrAlreadySigned = errors.New("rotation: signer already signed")

	// ErrUnknownSigner indicates a message's keyIndex has no mapped signer.
	ErrUnknownSigner = errors.New("rotation: no signer mapped to key index")

	// ErrWrongPhase indicates a message arrived while the rotation was not
	// in a phase that accepts signatures.
	ErrWrongPhase = errors.New("rotation: not accepting signatures in current phase")
)
