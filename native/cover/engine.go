package cover

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"droughtcover/core/events"
	"droughtcover/core/types"
)

var (
	errNilState  = errors.New("cover engine: state not configured")
	errNilOracle = errors.New("cover engine: rainfall oracle not configured")
)

// CancelledReason is recorded on every policy cancelled before activation.
const CancelledReason = "Cancelled before buyer premium payment"

// Tolerance bounds accepted by the automated settlement paths, in millimetres.
const (
	MinToleranceMM int64 = 0
	MaxToleranceMM int64 = 100
)

type engineState interface {
	PolicyPut(*Policy) error
	PolicyGet(id string) (*Policy, bool)
	Policies() []*Policy
	BalanceGet(addr [20]byte) *big.Int
	BalancePut(addr [20]byte, amount *big.Int) error
}

// RainfallSource is the external oracle/agreement collaborator. The returned
// value must be deterministic across independent invocations for the same
// inputs; the engine treats it as an already-agreed opaque result and performs
// no consensus logic of its own.
type RainfallSource interface {
	ExtractRainfall(ctx context.Context, sourceURL, region, startDate, endDate string) (int64, string, error)
}

type coverEvent struct {
	evt *types.Event
}

func (e coverEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e coverEvent) Event() *types.Event { return e.evt }

// Engine wires the policy lifecycle and settlement logic with external state,
// the rainfall oracle and an event emitter. Every operation is a synchronous
// read-modify-write over one policy record plus at most two ledger entries.
type Engine struct {
	state   engineState
	emitter events.Emitter
	oracle  RainfallSource
	owner   [20]byte
}

// NewEngine creates a cover engine with a no-op emitter. Callers can override
// the emitter via SetEmitter.
func NewEngine() *Engine {
	return &Engine{emitter: events.NoopEmitter{}}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetOwner configures the service-owner address that guards settlement and
// cancellation. It corresponds to the contract deployer in the original
// instrument and is fixed at startup.
func (e *Engine) SetOwner(addr [20]byte) { e.owner = addr }

// Owner returns the configured service-owner address.
func (e *Engine) Owner() [20]byte { return e.owner }

// SetOracle configures the external rainfall extraction collaborator.
func (e *Engine) SetOracle(source RainfallSource) { e.oracle = source }

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(coverEvent{evt: event})
}

func (e *Engine) requireOwner(caller [20]byte) error {
	if caller != e.owner {
		return fmt.Errorf("%w: only owner can execute this action", ErrUnauthorized)
	}
	return nil
}

func (e *Engine) requirePolicy(id string) (*Policy, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	policy, ok := e.state.PolicyGet(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPolicyNotFound, id)
	}
	return policy, nil
}

func requireAfterEndDate(policy *Policy, currentDate string) error {
	if err := ValidateDate(currentDate); err != nil {
		return err
	}
	// Lexicographic comparison is exact for zero-padded ISO dates.
	if currentDate < policy.EndDate {
		return fmt.Errorf("%w: settlement allowed only after policy end date", ErrInvalidState)
	}
	return nil
}

func requireTolerance(toleranceMM int64) error {
	if toleranceMM < MinToleranceMM || toleranceMM > MaxToleranceMM {
		return fmt.Errorf("%w: tolerance must be between %d and %dmm", ErrInvalidInput, MinToleranceMM, MaxToleranceMM)
	}
	return nil
}

// credit accrues amount to the party's withdrawable balance. Non-positive
// amounts are a no-op; balances only ever grow from the engine's side.
func (e *Engine) credit(addr [20]byte, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil
	}
	balance := e.state.BalanceGet(addr)
	if balance == nil {
		balance = big.NewInt(0)
	}
	return e.state.BalancePut(addr, new(big.Int).Add(balance, amount))
}

func (e *Engine) storePolicy(policy *Policy) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	return e.state.PolicyPut(policy)
}

// CreateOfferParams carries the caller-supplied terms of a new policy offer.
// A zero Buyer creates an open offer claimable by the first premium payer.
type CreateOfferParams struct {
	PolicyID         string
	Buyer            [20]byte
	Region           string
	StartDate        string
	EndDate          string
	ThresholdMM      int64
	PayoutAmount     *big.Int
	PremiumAmount    *big.Int
	CollateralAmount *big.Int
}

// CreateOffer inserts a new policy in FUNDED state with the caller as
// provider. The provider's collateral is assumed committed by the enclosing
// value transfer; no ledger entry moves here.
func (e *Engine) CreateOffer(caller [20]byte, params CreateOfferParams) (*Policy, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if strings.TrimSpace(params.PolicyID) == "" {
		return nil, fmt.Errorf("%w: policy id cannot be empty", ErrInvalidInput)
	}
	if strings.TrimSpace(params.Region) == "" {
		return nil, fmt.Errorf("%w: region cannot be empty", ErrInvalidInput)
	}
	if _, exists := e.state.PolicyGet(params.PolicyID); exists {
		return nil, fmt.Errorf("%w: policy id already exists", ErrInvalidInput)
	}
	if err := ValidatePeriod(params.StartDate, params.EndDate); err != nil {
		return nil, err
	}
	if params.ThresholdMM <= 0 {
		return nil, fmt.Errorf("%w: threshold must be greater than zero", ErrInvalidInput)
	}
	if params.PayoutAmount == nil || params.PayoutAmount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: payout amount must be greater than zero", ErrInvalidInput)
	}
	if params.PremiumAmount == nil || params.PremiumAmount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: premium amount must be greater than zero", ErrInvalidInput)
	}
	if params.CollateralAmount == nil || params.CollateralAmount.Cmp(params.PayoutAmount) != 0 {
		return nil, fmt.Errorf("%w: provider collateral must equal payout amount", ErrInvalidInput)
	}

	policy := &Policy{
		ID:               params.PolicyID,
		Buyer:            params.Buyer,
		Provider:         caller,
		Region:           params.Region,
		StartDate:        params.StartDate,
		EndDate:          params.EndDate,
		Metric:           MetricRainfallMM,
		TriggerOperator:  OperatorLess,
		ThresholdMM:      params.ThresholdMM,
		PayoutAmount:     cloneBigInt(params.PayoutAmount),
		PremiumAmount:    cloneBigInt(params.PremiumAmount),
		CollateralAmount: cloneBigInt(params.CollateralAmount),
		Status:           PolicyFunded,
		SettlementResult: SettlementPending,
	}
	if err := e.storePolicy(policy); err != nil {
		return nil, err
	}
	e.emit(NewPolicyCreatedEvent(policy))
	return policy.Clone(), nil
}

// PayPremium activates a FUNDED policy. On an open offer the first payer
// becomes the buyer; otherwise only the committed buyer may pay. The payment
// must match the premium exactly.
func (e *Engine) PayPremium(caller [20]byte, policyID string, payment *big.Int) (*Policy, error) {
	policy, err := e.requirePolicy(policyID)
	if err != nil {
		return nil, err
	}
	if policy.Status != PolicyFunded {
		return nil, fmt.Errorf("%w: policy cannot accept premium in status %s", ErrInvalidState, policy.Status)
	}
	if policy.OpenOffer() {
		policy.Buyer = caller
	} else if caller != policy.Buyer {
		return nil, fmt.Errorf("%w: only buyer can pay premium", ErrUnauthorized)
	}
	if payment == nil || payment.Cmp(policy.PremiumAmount) != 0 {
		return nil, fmt.Errorf("%w: incorrect premium amount", ErrInvalidInput)
	}
	return e.activate(policy, caller)
}

// PayPremiumForBuyer lets the provider sponsor the committed buyer's premium.
// Open offers cannot be sponsored: there is no buyer to cover for.
func (e *Engine) PayPremiumForBuyer(caller [20]byte, policyID string, payment *big.Int) (*Policy, error) {
	policy, err := e.requirePolicy(policyID)
	if err != nil {
		return nil, err
	}
	if policy.Status != PolicyFunded {
		return nil, fmt.Errorf("%w: policy cannot accept premium in status %s", ErrInvalidState, policy.Status)
	}
	if caller != policy.Provider {
		return nil, fmt.Errorf("%w: only provider can sponsor buyer premium", ErrUnauthorized)
	}
	if policy.OpenOffer() {
		return nil, fmt.Errorf("%w: cannot sponsor an open offer without a buyer", ErrInvalidState)
	}
	if payment == nil || payment.Cmp(policy.PremiumAmount) != 0 {
		return nil, fmt.Errorf("%w: incorrect premium amount", ErrInvalidInput)
	}
	return e.activate(policy, caller)
}

func (e *Engine) activate(policy *Policy, payer [20]byte) (*Policy, error) {
	policy.PremiumPaid = true
	policy.PremiumPayer = hex.EncodeToString(payer[:])
	policy.Status = PolicyActive
	if err := e.storePolicy(policy); err != nil {
		return nil, err
	}
	e.emit(NewPolicyActivatedEvent(policy))
	return policy.Clone(), nil
}

// Cancel refunds the provider's collateral and terminates a policy that was
// never activated. Only the provider or the service owner may cancel.
func (e *Engine) Cancel(caller [20]byte, policyID string) (*Policy, error) {
	policy, err := e.requirePolicy(policyID)
	if err != nil {
		return nil, err
	}
	if policy.Status != PolicyFunded {
		return nil, fmt.Errorf("%w: only FUNDED policies can be cancelled", ErrInvalidState)
	}
	if caller != policy.Provider && caller != e.owner {
		return nil, fmt.Errorf("%w: only provider or owner can cancel", ErrUnauthorized)
	}
	if err := e.credit(policy.Provider, policy.CollateralAmount); err != nil {
		return nil, err
	}
	policy.Status = PolicyCancelled
	policy.DecisionReason = CancelledReason
	if err := e.storePolicy(policy); err != nil {
		return nil, err
	}
	e.emit(NewPolicyCancelledEvent(policy))
	return policy.Clone(), nil
}

// applySettlement is the single primitive every settlement path routes
// through. Exactly one of the two escrowed sums leaves the ledger: a
// triggered policy returns the collateral to the buyer and the premium to the
// provider; an untriggered one releases both to the provider.
func (e *Engine) applySettlement(caller [20]byte, policy *Policy, triggered bool, proofHash, reason string) (*Policy, error) {
	if policy.Status != PolicyActive {
		return nil, fmt.Errorf("%w: only ACTIVE policies can be settled", ErrInvalidState)
	}
	if strings.TrimSpace(proofHash) == "" {
		return nil, fmt.Errorf("%w: proof hash cannot be empty", ErrInvalidInput)
	}

	policy.ResolvedBy = hex.EncodeToString(caller[:])
	policy.SettlementProofHash = proofHash
	policy.DecisionReason = reason

	if triggered {
		policy.SettlementResult = SettlementYes
		if err := e.credit(policy.Buyer, policy.CollateralAmount); err != nil {
			return nil, err
		}
		if err := e.credit(policy.Provider, policy.PremiumAmount); err != nil {
			return nil, err
		}
		policy.Status = PolicyPaid
	} else {
		policy.SettlementResult = SettlementNo
		total := new(big.Int).Add(policy.CollateralAmount, policy.PremiumAmount)
		if err := e.credit(policy.Provider, total); err != nil {
			return nil, err
		}
		policy.Status = PolicyExpired
	}
	if err := e.storePolicy(policy); err != nil {
		return nil, err
	}
	e.emit(NewPolicySettledEvent(policy))
	return policy.Clone(), nil
}

// Settle applies an externally adjudicated settlement result. Owner only;
// the policy must be ACTIVE and the coverage window elapsed. No trigger
// evaluation happens here, the supplied result is trusted as attested.
func (e *Engine) Settle(caller [20]byte, policyID string, result bool, proofHash, reason, currentDate string) (*Policy, error) {
	if err := e.requireOwner(caller); err != nil {
		return nil, err
	}
	policy, err := e.requirePolicy(policyID)
	if err != nil {
		return nil, err
	}
	if policy.Status != PolicyActive {
		return nil, fmt.Errorf("%w: policy is not active", ErrInvalidState)
	}
	if err := requireAfterEndDate(policy, currentDate); err != nil {
		return nil, err
	}
	return e.applySettlement(caller, policy, result, proofHash, reason)
}

// VerifyAndSettle fetches rainfall readings from two trusted sources through
// the oracle collaborator, evaluates the trigger and settles. Both readings
// and their audit hashes are persisted on the policy before evaluation, so a
// disagreement beyond tolerance still leaves the extracted evidence attached
// to the (still ACTIVE) policy for audit and retry.
func (e *Engine) VerifyAndSettle(ctx context.Context, caller [20]byte, policyID, sourceAURL, sourceBURL string, toleranceMM int64, currentDate string) (*Policy, error) {
	if err := e.requireOwner(caller); err != nil {
		return nil, err
	}
	policy, err := e.requirePolicy(policyID)
	if err != nil {
		return nil, err
	}
	if policy.Status != PolicyActive {
		return nil, fmt.Errorf("%w: policy is not active", ErrInvalidState)
	}
	if err := requireTolerance(toleranceMM); err != nil {
		return nil, err
	}
	if err := requireAfterEndDate(policy, currentDate); err != nil {
		return nil, err
	}
	if err := ValidateSourceURL(sourceAURL); err != nil {
		return nil, err
	}
	if err := ValidateSourceURL(sourceBURL); err != nil {
		return nil, err
	}
	if e.oracle == nil {
		return nil, errNilOracle
	}

	sourceAMM, sourceAHash, err := e.oracle.ExtractRainfall(ctx, sourceAURL, policy.Region, policy.StartDate, policy.EndDate)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOracleFailure, err)
	}
	sourceBMM, sourceBHash, err := e.oracle.ExtractRainfall(ctx, sourceBURL, policy.Region, policy.StartDate, policy.EndDate)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOracleFailure, err)
	}

	policy.SourceA = SourceReading{URL: sourceAURL, ValueMM: strconv.FormatInt(sourceAMM, 10), AuditHash: sourceAHash}
	policy.SourceB = SourceReading{URL: sourceBURL, ValueMM: strconv.FormatInt(sourceBMM, 10), AuditHash: sourceBHash}
	if err := e.storePolicy(policy); err != nil {
		return nil, err
	}

	triggered, reason, err := EvaluateTrigger(policy.TriggerOperator, policy.ThresholdMM, sourceAMM, sourceBMM, toleranceMM)
	if err != nil {
		return nil, err
	}

	proofHash := settlementProofHash(policyID, sourceAURL, sourceBURL, sourceAMM, sourceBMM, toleranceMM)
	return e.applySettlement(caller, policy, triggered, proofHash, reason)
}

// ResolveWithValues settles using caller-supplied readings instead of fetched
// ones. It shares the date and tolerance preconditions with VerifyAndSettle
// and records synthetic manual:// evidence entries.
func (e *Engine) ResolveWithValues(caller [20]byte, policyID string, sourceAMM, sourceBMM, toleranceMM int64, currentDate string) (*Policy, error) {
	if err := e.requireOwner(caller); err != nil {
		return nil, err
	}
	policy, err := e.requirePolicy(policyID)
	if err != nil {
		return nil, err
	}
	if policy.Status != PolicyActive {
		return nil, fmt.Errorf("%w: policy is not active", ErrInvalidState)
	}
	if err := requireTolerance(toleranceMM); err != nil {
		return nil, err
	}
	if err := requireAfterEndDate(policy, currentDate); err != nil {
		return nil, err
	}

	policy.SourceA = SourceReading{
		URL:       "manual://source-a",
		ValueMM:   strconv.FormatInt(sourceAMM, 10),
		AuditHash: fmt.Sprintf("manual-a:%d", sourceAMM),
	}
	policy.SourceB = SourceReading{
		URL:       "manual://source-b",
		ValueMM:   strconv.FormatInt(sourceBMM, 10),
		AuditHash: fmt.Sprintf("manual-b:%d", sourceBMM),
	}
	if err := e.storePolicy(policy); err != nil {
		return nil, err
	}

	triggered, reason, err := EvaluateTrigger(policy.TriggerOperator, policy.ThresholdMM, sourceAMM, sourceBMM, toleranceMM)
	if err != nil {
		return nil, err
	}

	proofHash := manualProofHash(policyID, sourceAMM, sourceBMM, toleranceMM, currentDate)
	return e.applySettlement(caller, policy, triggered, proofHash, reason)
}

// Policy returns a copy of the stored policy record.
func (e *Engine) Policy(policyID string) (*Policy, error) {
	policy, err := e.requirePolicy(policyID)
	if err != nil {
		return nil, err
	}
	return policy.Clone(), nil
}

// Policies returns copies of every stored policy.
func (e *Engine) Policies() []*Policy {
	if e == nil || e.state == nil {
		return nil
	}
	stored := e.state.Policies()
	out := make([]*Policy, 0, len(stored))
	for _, p := range stored {
		out = append(out, p.Clone())
	}
	return out
}

// WithdrawableBalance returns the accrued balance for an address, zero for
// unknown parties.
func (e *Engine) WithdrawableBalance(addr [20]byte) *big.Int {
	if e == nil || e.state == nil {
		return big.NewInt(0)
	}
	balance := e.state.BalanceGet(addr)
	if balance == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(balance)
}

// settlementProofHash derives a deterministic proof for an oracle-backed
// settlement so any auditor can recompute it from the recorded evidence.
func settlementProofHash(policyID, sourceAURL, sourceBURL string, sourceAMM, sourceBMM, toleranceMM int64) string {
	preimage := fmt.Sprintf("%s:%s:%s:%d:%d:%d", policyID, sourceAURL, sourceBURL, sourceAMM, sourceBMM, toleranceMM)
	return hex.EncodeToString(ethcrypto.Keccak256([]byte(preimage)))
}

func manualProofHash(policyID string, sourceAMM, sourceBMM, toleranceMM int64, currentDate string) string {
	preimage := fmt.Sprintf("manual:%s:%d:%d:%d:%s", policyID, sourceAMM, sourceBMM, toleranceMM, currentDate)
	return hex.EncodeToString(ethcrypto.Keccak256([]byte(preimage)))
}
