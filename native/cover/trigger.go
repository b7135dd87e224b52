package cover

import "fmt"

// Trigger evaluation reasons recorded on the policy as the decision rationale.
const (
	ReasonBothSatisfy    = "Both sources satisfy trigger condition"
	ReasonNeitherSatisfy = "Both sources do not satisfy trigger condition"
	ReasonTieBreak       = "Sources disagreed; tie-break used average rainfall"
)

// EvaluateTrigger decides whether the insured event occurred given two
// independently measured rainfall values.
//
// When the sources agree on which side of the threshold they fall, their
// verdict stands. When they straddle the threshold but differ by at most
// toleranceMM, the integer average of the two readings decides (division
// truncates toward zero, which is the floor for non-negative rainfall).
// A larger disagreement fails with ErrSourcesDisagree.
func EvaluateTrigger(operator string, thresholdMM, sourceAMM, sourceBMM, toleranceMM int64) (bool, string, error) {
	if operator != OperatorLess && operator != OperatorLessOrEqual {
		return false, "", fmt.Errorf("%w: %q", ErrUnsupportedOperator, operator)
	}
	compare := func(value int64) bool {
		if operator == OperatorLess {
			return value < thresholdMM
		}
		return value <= thresholdMM
	}

	sourceAMatch := compare(sourceAMM)
	sourceBMatch := compare(sourceBMM)

	if sourceAMatch && sourceBMatch {
		return true, ReasonBothSatisfy, nil
	}
	if !sourceAMatch && !sourceBMatch {
		return false, ReasonNeitherSatisfy, nil
	}

	diff := sourceAMM - sourceBMM
	if diff < 0 {
		diff = -diff
	}
	if diff <= toleranceMM {
		averageMM := (sourceAMM + sourceBMM) / 2
		return compare(averageMM), ReasonTieBreak, nil
	}

	return false, "", fmt.Errorf("%w: readings %dmm and %dmm with tolerance %dmm", ErrSourcesDisagree, sourceAMM, sourceBMM, toleranceMM)
}
