package event

import (
	"fmt"
	"strconv"

	"github.com/aaronp/kerigo/codec"
)

// ValidateThreshold checks that threshold is a decimal integer in
// [1, len(keys)]. Weighted array thresholds (spec.md section 9) are
// rejected as out of scope.
func ValidateThreshold(threshold string, keyCount int) error {
	n, err := strconv.Atoi(threshold)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWeightedThreshold, err)
	}
	if n < 1 || n > keyCount {
		return fmt.Errorf("%w: threshold %d not in [1,%d]", ErrThresholdRange, n, keyCount)
	}
	return nil
}

// ComputeNextCommitment computes `n = digest(canonical({k: nextKeys, kt:
// nextThreshold}))`, the next-key commitment hidden until revealed by a
// later rotation.
func ComputeNextCommitment(nextKeys []string, nextThreshold string) (string, error) {
	m := map[string]interface{}{
		"k":  stringsToIface(nextKeys),
		"kt": nextThreshold,
	}
	b, err := codec.Canonicalize(m)
	if err != nil {
		return "", err
	}
	return codec.ComputeSAID(b), nil
}

// defaultThreshold returns strconv.Itoa(len(keys)), the default threshold
// when callers do not specify one.
func defaultThreshold(keys []string) string {
	return strconv.Itoa(len(keys))
}
