// Package envelope attaches qb64-encoded signatures to events, tagged by
// which key array ("signer set") each signature's key index refers to, and
// verifies envelopes and the self-contained event proofs derived from them.
package envelope

import "errors"

var (
	// ErrSaidMismatch indicates the recomputed SAID does not match event.D.
	ErrSaidMismatch = errors.New("envelope: recomputed SAID does not match event.d")

	// ErrCommitmentMismatch indicates a rotation's revealed keys do not
	// hash to the prior establishment event's next-key commitment.
	ErrCommitmentMismatch = errors.New("envelope: rotation reveal does not match prior commitment")

	// ErrThresholdMismatch indicates a rotation's revealed threshold does
	// not equal the prior establishment event's next threshold.
	ErrThresholdMismatch = errors.New("envelope: rotation threshold does not match prior next threshold")

	// ErrMissingPriorEvent indicates a rot/ixn/drt envelope was submitted
	// for verification without the required prior establishment event.
	ErrMissingPriorEvent = errors.New("envelope: prior establishment event required")

	// ErrUnknownSignerSet indicates a signer set this package cannot
	// resolve (e.g. a witness signer set with no witness registry).
	ErrUnknownSignerSet = errors.New("envelope: cannot resolve signer set")

	// ErrInvalidKeyIndex indicates a signature's keyIndex is out of range
	// for the resolved key array.
	ErrInvalidKeyIndex = errors.New("envelope: signature key index out of range")
)
