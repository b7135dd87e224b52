package cover

import "errors"

// Error taxonomy for the settlement core. Every failure aborts the operation
// before any ledger credit or status change; callers match with errors.Is.
var (
	// ErrInvalidInput covers empty identifiers, malformed dates,
	// non-positive amounts, mismatched collateral, empty proof hashes,
	// out-of-range tolerances and untrusted source URLs.
	ErrInvalidInput = errors.New("cover: invalid input")

	// ErrPolicyNotFound is returned for unknown policy identifiers.
	ErrPolicyNotFound = errors.New("cover: policy not found")

	// ErrUnauthorized is returned when the caller is not the owner,
	// provider or buyer the operation requires.
	ErrUnauthorized = errors.New("cover: unauthorized caller")

	// ErrInvalidState is returned when the policy status does not permit
	// the attempted transition.
	ErrInvalidState = errors.New("cover: invalid policy state")

	// ErrUnsupportedOperator is returned by the trigger evaluator for
	// comparison operators other than "<" and "<=".
	ErrUnsupportedOperator = errors.New("cover: unsupported trigger operator")

	// ErrSourcesDisagree is returned when the two readings straddle the
	// threshold and differ by more than the tolerance; settlement must not
	// proceed and the operator has to retry or escalate.
	ErrSourcesDisagree = errors.New("cover: sources disagree beyond tolerance, manual review required")

	// ErrOracleFailure wraps failures of the external extraction and
	// agreement collaborator.
	ErrOracleFailure = errors.New("cover: oracle extraction failed")
)
