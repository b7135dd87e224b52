package cover

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

// PolicyStatus tracks the lifecycle of a drought-cover policy. FUNDED and
// ACTIVE are the only non-terminal states; every transition moves forward.
type PolicyStatus uint8

const (
	PolicyFunded PolicyStatus = iota + 1
	PolicyActive
	PolicyPaid
	PolicyExpired
	PolicyCancelled
)

// Valid reports whether the status value is within the supported range.
func (s PolicyStatus) Valid() bool {
	switch s {
	case PolicyFunded, PolicyActive, PolicyPaid, PolicyExpired, PolicyCancelled:
		return true
	default:
		return false
	}
}

// Terminal reports whether the status permits no further transitions.
func (s PolicyStatus) Terminal() bool {
	switch s {
	case PolicyPaid, PolicyExpired, PolicyCancelled:
		return true
	default:
		return false
	}
}

func (s PolicyStatus) String() string {
	switch s {
	case PolicyFunded:
		return "FUNDED"
	case PolicyActive:
		return "ACTIVE"
	case PolicyPaid:
		return "PAID"
	case PolicyExpired:
		return "EXPIRED"
	case PolicyCancelled:
		return "CANCELLED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint8(s))
	}
}

// SettlementResult records the adjudicated trigger outcome on a policy.
type SettlementResult uint8

const (
	SettlementPending SettlementResult = iota
	SettlementYes
	SettlementNo
)

// Valid reports whether the result value is within the supported range.
func (r SettlementResult) Valid() bool {
	switch r {
	case SettlementPending, SettlementYes, SettlementNo:
		return true
	default:
		return false
	}
}

func (r SettlementResult) String() string {
	switch r {
	case SettlementYes:
		return "YES"
	case SettlementNo:
		return "NO"
	default:
		return "PENDING"
	}
}

const (
	// MetricRainfallMM is the only metric this instrument covers.
	MetricRainfallMM = "rainfall_mm"

	// OperatorLess and OperatorLessOrEqual are the supported trigger
	// comparison operators.
	OperatorLess        = "<"
	OperatorLessOrEqual = "<="
)

// SourceReading captures one independent rainfall measurement recorded on the
// policy during settlement: where it came from, what was read, and an opaque
// audit payload hash from the oracle collaborator.
type SourceReading struct {
	URL       string `json:"url"`
	ValueMM   string `json:"valueMm"`
	AuditHash string `json:"auditHash"`
}

// Policy is one parametric drought-insurance contract between a buyer and a
// provider over a single region and date window. The provider's collateral
// always equals the payout amount; exactly one of the two escrowed sums is
// credited out when the policy reaches a terminal state.
type Policy struct {
	ID               string   `json:"id"`
	Buyer            [20]byte `json:"buyer"`
	Provider         [20]byte `json:"provider"`
	Region           string   `json:"region"`
	StartDate        string   `json:"startDate"`
	EndDate          string   `json:"endDate"`
	Metric           string   `json:"metric"`
	TriggerOperator  string   `json:"triggerOperator"`
	ThresholdMM      int64    `json:"thresholdMm"`
	PayoutAmount     *big.Int `json:"payoutAmount"`
	PremiumAmount    *big.Int `json:"premiumAmount"`
	CollateralAmount *big.Int `json:"collateralAmount"`
	PremiumPaid      bool     `json:"premiumPaid"`
	PremiumPayer     string   `json:"premiumPayer"`
	Status           PolicyStatus `json:"status"`

	SourceA SourceReading `json:"sourceA"`
	SourceB SourceReading `json:"sourceB"`

	ResolvedBy          string           `json:"resolvedBy"`
	SettlementResult    SettlementResult `json:"settlementResult"`
	SettlementProofHash string           `json:"settlementProofHash"`
	DecisionReason      string           `json:"decisionReason"`
}

// Clone returns a deep copy of the policy so callers can safely mutate the
// copy without affecting the stored instance.
func (p *Policy) Clone() *Policy {
	if p == nil {
		return nil
	}
	clone := *p
	clone.PayoutAmount = cloneBigInt(p.PayoutAmount)
	clone.PremiumAmount = cloneBigInt(p.PremiumAmount)
	clone.CollateralAmount = cloneBigInt(p.CollateralAmount)
	return &clone
}

// OpenOffer reports whether the policy has no committed buyer yet.
func (p *Policy) OpenOffer() bool {
	return p.Buyer == ([20]byte{})
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

// SanitizePolicy validates and normalises the supplied policy, returning a
// cloned instance with non-nil amount fields. The function does not mutate
// the original value.
func SanitizePolicy(p *Policy) (*Policy, error) {
	if p == nil {
		return nil, fmt.Errorf("nil policy")
	}
	clone := p.Clone()
	if strings.TrimSpace(clone.ID) == "" {
		return nil, fmt.Errorf("policy id cannot be empty")
	}
	if !clone.Status.Valid() {
		return nil, fmt.Errorf("invalid policy status: %d", clone.Status)
	}
	if !clone.SettlementResult.Valid() {
		return nil, fmt.Errorf("invalid settlement result: %d", clone.SettlementResult)
	}
	if clone.PayoutAmount.Sign() < 0 || clone.PremiumAmount.Sign() < 0 || clone.CollateralAmount.Sign() < 0 {
		return nil, fmt.Errorf("policy amounts must be non-negative")
	}
	if clone.CollateralAmount.Cmp(clone.PayoutAmount) != 0 {
		return nil, fmt.Errorf("provider collateral must equal payout amount")
	}
	return clone, nil
}

// ValidateDate checks a YYYY-MM-DD string by component ranges only: year in
// [2020, 2100], month in [1, 12], day in [1, 31]. Calendar validity beyond
// the ranges is deliberately not checked, so "2026-02-31" passes; tightening
// this would reject policies the deployed instrument accepts.
func ValidateDate(dateStr string) error {
	parts := strings.Split(dateStr, "-")
	if len(parts) != 3 {
		return fmt.Errorf("%w: date must use YYYY-MM-DD format", ErrInvalidInput)
	}
	year, err := strconv.Atoi(parts[0])
	if err != nil {
		return fmt.Errorf("%w: date year is not numeric", ErrInvalidInput)
	}
	month, err := strconv.Atoi(parts[1])
	if err != nil {
		return fmt.Errorf("%w: date month is not numeric", ErrInvalidInput)
	}
	day, err := strconv.Atoi(parts[2])
	if err != nil {
		return fmt.Errorf("%w: date day is not numeric", ErrInvalidInput)
	}
	if year < 2020 || year > 2100 {
		return fmt.Errorf("%w: date year out of accepted range", ErrInvalidInput)
	}
	if month < 1 || month > 12 {
		return fmt.Errorf("%w: date month is invalid", ErrInvalidInput)
	}
	if day < 1 || day > 31 {
		return fmt.Errorf("%w: date day is invalid", ErrInvalidInput)
	}
	return nil
}

// ValidatePeriod validates both dates and requires end >= start. The
// comparison is lexicographic, which is exact for fixed-width zero-padded
// ISO dates.
func ValidatePeriod(startDate, endDate string) error {
	if err := ValidateDate(startDate); err != nil {
		return err
	}
	if err := ValidateDate(endDate); err != nil {
		return err
	}
	if endDate < startDate {
		return fmt.Errorf("%w: end date must be after start date", ErrInvalidInput)
	}
	return nil
}

// trustedSourceDomains lists the weather-data providers settlement evidence
// may be fetched from.
var trustedSourceDomains = []string{
	"open-meteo.com",
	"weatherapi.com",
	"openweathermap.org",
}

// ValidateSourceURL requires an HTTPS URL pointing at one of the trusted
// weather-data domains.
func ValidateSourceURL(sourceURL string) error {
	if !strings.HasPrefix(sourceURL, "https://") {
		return fmt.Errorf("%w: source URL must be HTTPS", ErrInvalidInput)
	}
	for _, domain := range trustedSourceDomains {
		if strings.Contains(sourceURL, domain) {
			return nil
		}
	}
	return fmt.Errorf("%w: source URL is not trusted", ErrInvalidInput)
}
