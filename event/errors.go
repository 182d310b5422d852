// Package event implements pure constructors for KERI key events:
// inception, rotation, interaction, and their delegated variants. Builders
// never touch storage; they compute next-key commitments and self-filling
// SAIDs from their inputs alone.
package event

import "errors"

var (
	// ErrThresholdRange indicates a threshold outside [1, len(keys)].
	ErrThresholdRange = errors.New("event: threshold out of range")

	// ErrNoKeys indicates an inception or rotation with zero current keys.
	ErrNoKeys = errors.New("event: at least one current key is required")

	// ErrMissingDelegator indicates a delegated inception (dip) without di.
	ErrMissingDelegator = errors.New("event: delegated inception requires a delegator AID")

	// ErrWeightedThreshold indicates a threshold given as a weighted array,
	// which this implementation does not exercise (spec.md section 9).
	ErrWeightedThreshold = errors.New("event: weighted array thresholds are out of scope")
)
