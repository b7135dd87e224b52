package cover

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"testing"

	"droughtcover/core/events"
)

type mockState struct {
	policies map[string]*Policy
	balances map[[20]byte]*big.Int
}

func newMockState() *mockState {
	return &mockState{
		policies: make(map[string]*Policy),
		balances: make(map[[20]byte]*big.Int),
	}
}

func (m *mockState) PolicyPut(p *Policy) error {
	sanitized, err := SanitizePolicy(p)
	if err != nil {
		return err
	}
	m.policies[sanitized.ID] = sanitized
	return nil
}

func (m *mockState) PolicyGet(id string) (*Policy, bool) {
	p, ok := m.policies[id]
	if !ok {
		return nil, false
	}
	return p.Clone(), true
}

func (m *mockState) Policies() []*Policy {
	ids := make([]string, 0, len(m.policies))
	for id := range m.policies {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]*Policy, 0, len(ids))
	for _, id := range ids {
		out = append(out, m.policies[id].Clone())
	}
	return out
}

func (m *mockState) BalanceGet(addr [20]byte) *big.Int {
	balance, ok := m.balances[addr]
	if !ok {
		return big.NewInt(0)
	}
	return new(big.Int).Set(balance)
}

func (m *mockState) BalancePut(addr [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("negative balance")
	}
	m.balances[addr] = new(big.Int).Set(amount)
	return nil
}

type stubOracle struct {
	readings map[string]int64
	err      error
}

func (s *stubOracle) ExtractRainfall(_ context.Context, sourceURL, region, startDate, endDate string) (int64, string, error) {
	if s.err != nil {
		return 0, "", s.err
	}
	value, ok := s.readings[sourceURL]
	if !ok {
		return 0, "", fmt.Errorf("no reading for %s", sourceURL)
	}
	audit := fmt.Sprintf("url=%s|region=%s|start=%s|end=%s|result=%d", sourceURL, region, startDate, endDate, value)
	return value, audit, nil
}

var (
	owner    = [20]byte{0x01}
	provider = [20]byte{0x02}
	buyer    = [20]byte{0x03}
	stranger = [20]byte{0x04}
)

const (
	sourceAURL = "https://api.open-meteo.com/v1/archive?loc=nakuru"
	sourceBURL = "https://api.weatherapi.com/v1/history.json?q=nakuru"
)

func newTestEngine(t *testing.T) (*Engine, *mockState) {
	t.Helper()
	state := newMockState()
	engine := NewEngine()
	engine.SetState(state)
	engine.SetOwner(owner)
	return engine, state
}

func offerParams(id string) CreateOfferParams {
	return CreateOfferParams{
		PolicyID:         id,
		Buyer:            buyer,
		Region:           "Nakuru",
		StartDate:        "2026-06-01",
		EndDate:          "2026-08-31",
		ThresholdMM:      20,
		PayoutAmount:     big.NewInt(500),
		PremiumAmount:    big.NewInt(25),
		CollateralAmount: big.NewInt(500),
	}
}

func createActivePolicy(t *testing.T, engine *Engine, id string) {
	t.Helper()
	if _, err := engine.CreateOffer(provider, offerParams(id)); err != nil {
		t.Fatalf("create offer: %v", err)
	}
	if _, err := engine.PayPremium(buyer, id, big.NewInt(25)); err != nil {
		t.Fatalf("pay premium: %v", err)
	}
}

func requireBalance(t *testing.T, engine *Engine, addr [20]byte, want int64) {
	t.Helper()
	got := engine.WithdrawableBalance(addr)
	if got.Int64() != want {
		t.Fatalf("balance mismatch: got %s, want %d", got, want)
	}
}

func TestCreateOffer(t *testing.T) {
	engine, _ := newTestEngine(t)
	policy, err := engine.CreateOffer(provider, offerParams("policy-1"))
	if err != nil {
		t.Fatalf("create offer: %v", err)
	}
	if policy.Status != PolicyFunded {
		t.Fatalf("expected FUNDED status, got %s", policy.Status)
	}
	if policy.Provider != provider {
		t.Fatalf("caller must become the provider")
	}
	if policy.Metric != MetricRainfallMM || policy.TriggerOperator != OperatorLess {
		t.Fatalf("unexpected trigger terms: %s %s", policy.Metric, policy.TriggerOperator)
	}
	if policy.SettlementResult != SettlementPending {
		t.Fatalf("new policy must start with a pending settlement result")
	}
}

func TestCreateOfferValidation(t *testing.T) {
	engine, _ := newTestEngine(t)

	cases := []struct {
		name   string
		mutate func(*CreateOfferParams)
	}{
		{"empty id", func(p *CreateOfferParams) { p.PolicyID = " " }},
		{"empty region", func(p *CreateOfferParams) { p.Region = "" }},
		{"inverted period", func(p *CreateOfferParams) { p.StartDate, p.EndDate = p.EndDate, p.StartDate }},
		{"bad date", func(p *CreateOfferParams) { p.StartDate = "2026-13-01" }},
		{"zero threshold", func(p *CreateOfferParams) { p.ThresholdMM = 0 }},
		{"zero payout", func(p *CreateOfferParams) { p.PayoutAmount = big.NewInt(0) }},
		{"nil premium", func(p *CreateOfferParams) { p.PremiumAmount = nil }},
		{"collateral mismatch", func(p *CreateOfferParams) { p.CollateralAmount = big.NewInt(499) }},
	}
	for _, tc := range cases {
		params := offerParams("policy-1")
		tc.mutate(&params)
		if _, err := engine.CreateOffer(provider, params); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("%s: expected ErrInvalidInput, got %v", tc.name, err)
		}
	}
}

func TestCreateOfferDuplicateID(t *testing.T) {
	engine, _ := newTestEngine(t)
	if _, err := engine.CreateOffer(provider, offerParams("policy-1")); err != nil {
		t.Fatalf("create offer: %v", err)
	}
	if _, err := engine.CreateOffer(provider, offerParams("policy-1")); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected duplicate id rejection, got %v", err)
	}
}

func TestPayPremiumActivates(t *testing.T) {
	engine, _ := newTestEngine(t)
	if _, err := engine.CreateOffer(provider, offerParams("policy-1")); err != nil {
		t.Fatalf("create offer: %v", err)
	}
	policy, err := engine.PayPremium(buyer, "policy-1", big.NewInt(25))
	if err != nil {
		t.Fatalf("pay premium: %v", err)
	}
	if policy.Status != PolicyActive {
		t.Fatalf("expected ACTIVE status, got %s", policy.Status)
	}
	if !policy.PremiumPaid {
		t.Fatalf("premium must be marked paid")
	}
	// No funds are withdrawable while escrow is held.
	requireBalance(t, engine, buyer, 0)
	requireBalance(t, engine, provider, 0)
}

func TestPayPremiumOpenOfferClaimsBuyerSeat(t *testing.T) {
	engine, _ := newTestEngine(t)
	params := offerParams("policy-1")
	params.Buyer = [20]byte{}
	if _, err := engine.CreateOffer(provider, params); err != nil {
		t.Fatalf("create offer: %v", err)
	}
	policy, err := engine.PayPremium(stranger, "policy-1", big.NewInt(25))
	if err != nil {
		t.Fatalf("pay premium on open offer: %v", err)
	}
	if policy.Buyer != stranger {
		t.Fatalf("first payer must claim the buyer seat")
	}
}

func TestPayPremiumRejectsWrongCallerAndAmount(t *testing.T) {
	engine, _ := newTestEngine(t)
	if _, err := engine.CreateOffer(provider, offerParams("policy-1")); err != nil {
		t.Fatalf("create offer: %v", err)
	}
	if _, err := engine.PayPremium(stranger, "policy-1", big.NewInt(25)); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for non-buyer, got %v", err)
	}
	if _, err := engine.PayPremium(buyer, "policy-1", big.NewInt(24)); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for short payment, got %v", err)
	}
	if _, err := engine.PayPremium(buyer, "policy-1", big.NewInt(26)); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for overpayment, got %v", err)
	}
	if _, err := engine.PayPremium(buyer, "missing", big.NewInt(25)); !errors.Is(err, ErrPolicyNotFound) {
		t.Fatalf("expected ErrPolicyNotFound, got %v", err)
	}
}

func TestPayPremiumTwiceFails(t *testing.T) {
	engine, _ := newTestEngine(t)
	createActivePolicy(t, engine, "policy-1")
	if _, err := engine.PayPremium(buyer, "policy-1", big.NewInt(25)); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState on double activation, got %v", err)
	}
}

func TestPayPremiumForBuyer(t *testing.T) {
	engine, _ := newTestEngine(t)
	if _, err := engine.CreateOffer(provider, offerParams("policy-1")); err != nil {
		t.Fatalf("create offer: %v", err)
	}
	if _, err := engine.PayPremiumForBuyer(buyer, "policy-1", big.NewInt(25)); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for non-provider sponsor, got %v", err)
	}
	policy, err := engine.PayPremiumForBuyer(provider, "policy-1", big.NewInt(25))
	if err != nil {
		t.Fatalf("sponsor premium: %v", err)
	}
	if policy.Status != PolicyActive || policy.Buyer != buyer {
		t.Fatalf("sponsoring must activate while keeping the committed buyer")
	}
}

func TestPayPremiumForBuyerRejectsOpenOffer(t *testing.T) {
	engine, _ := newTestEngine(t)
	params := offerParams("policy-1")
	params.Buyer = [20]byte{}
	if _, err := engine.CreateOffer(provider, params); err != nil {
		t.Fatalf("create offer: %v", err)
	}
	if _, err := engine.PayPremiumForBuyer(provider, "policy-1", big.NewInt(25)); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState sponsoring an open offer, got %v", err)
	}
}

func TestCancelRefundsCollateral(t *testing.T) {
	engine, _ := newTestEngine(t)
	if _, err := engine.CreateOffer(provider, offerParams("policy-1")); err != nil {
		t.Fatalf("create offer: %v", err)
	}
	policy, err := engine.Cancel(provider, "policy-1")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if policy.Status != PolicyCancelled {
		t.Fatalf("expected CANCELLED status, got %s", policy.Status)
	}
	if policy.DecisionReason != CancelledReason {
		t.Fatalf("unexpected cancel reason: %q", policy.DecisionReason)
	}
	requireBalance(t, engine, provider, 500)
	requireBalance(t, engine, buyer, 0)
}

func TestCancelByOwner(t *testing.T) {
	engine, _ := newTestEngine(t)
	if _, err := engine.CreateOffer(provider, offerParams("policy-1")); err != nil {
		t.Fatalf("create offer: %v", err)
	}
	if _, err := engine.Cancel(owner, "policy-1"); err != nil {
		t.Fatalf("owner cancel: %v", err)
	}
	requireBalance(t, engine, provider, 500)
}

func TestCancelAuthorizationAndState(t *testing.T) {
	engine, _ := newTestEngine(t)
	if _, err := engine.CreateOffer(provider, offerParams("policy-1")); err != nil {
		t.Fatalf("create offer: %v", err)
	}
	if _, err := engine.Cancel(stranger, "policy-1"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if _, err := engine.Cancel(buyer, "policy-1"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("buyer must not cancel, got %v", err)
	}

	createActivePolicy(t, engine, "policy-2")
	if _, err := engine.Cancel(provider, "policy-2"); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState cancelling an active policy, got %v", err)
	}
}

func TestSettleTriggeredPaysBuyer(t *testing.T) {
	engine, _ := newTestEngine(t)
	createActivePolicy(t, engine, "policy-1")

	policy, err := engine.Settle(owner, "policy-1", true, "attested-hash", "drought confirmed", "2026-09-01")
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if policy.Status != PolicyPaid {
		t.Fatalf("expected PAID status, got %s", policy.Status)
	}
	if policy.SettlementResult != SettlementYes {
		t.Fatalf("expected YES result, got %s", policy.SettlementResult)
	}
	// Buyer receives the escrowed collateral, provider keeps the premium:
	// total released equals the 525 escrowed at activation.
	requireBalance(t, engine, buyer, 500)
	requireBalance(t, engine, provider, 25)
}

func TestSettleNotTriggeredPaysProvider(t *testing.T) {
	engine, _ := newTestEngine(t)
	createActivePolicy(t, engine, "policy-1")

	policy, err := engine.Settle(owner, "policy-1", false, "attested-hash", "rainfall above threshold", "2026-09-01")
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if policy.Status != PolicyExpired {
		t.Fatalf("expected EXPIRED status, got %s", policy.Status)
	}
	if policy.SettlementResult != SettlementNo {
		t.Fatalf("expected NO result, got %s", policy.SettlementResult)
	}
	requireBalance(t, engine, buyer, 0)
	requireBalance(t, engine, provider, 525)
}

func TestSettleGuards(t *testing.T) {
	engine, _ := newTestEngine(t)
	createActivePolicy(t, engine, "policy-1")

	if _, err := engine.Settle(provider, "policy-1", true, "h", "r", "2026-09-01"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected owner-only settle, got %v", err)
	}
	if _, err := engine.Settle(owner, "missing", true, "h", "r", "2026-09-01"); !errors.Is(err, ErrPolicyNotFound) {
		t.Fatalf("expected ErrPolicyNotFound, got %v", err)
	}
	if _, err := engine.Settle(owner, "policy-1", true, "h", "r", "2026-08-30"); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected settlement before end date to fail, got %v", err)
	}
	if _, err := engine.Settle(owner, "policy-1", true, "h", "r", "not-a-date"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected bad date to fail, got %v", err)
	}
	if _, err := engine.Settle(owner, "policy-1", true, "  ", "r", "2026-09-01"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected empty proof hash to fail, got %v", err)
	}
}

func TestSettleOnEndDateAllowed(t *testing.T) {
	engine, _ := newTestEngine(t)
	createActivePolicy(t, engine, "policy-1")
	if _, err := engine.Settle(owner, "policy-1", false, "h", "r", "2026-08-31"); err != nil {
		t.Fatalf("settlement on the end date must be allowed: %v", err)
	}
}

func TestSettleIsTerminal(t *testing.T) {
	engine, _ := newTestEngine(t)
	createActivePolicy(t, engine, "policy-1")
	if _, err := engine.Settle(owner, "policy-1", true, "h", "r", "2026-09-01"); err != nil {
		t.Fatalf("settle: %v", err)
	}
	if _, err := engine.Settle(owner, "policy-1", true, "h", "r", "2026-09-01"); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected second settlement to fail, got %v", err)
	}
	// Balances are unchanged by the failed retry.
	requireBalance(t, engine, buyer, 500)
	requireBalance(t, engine, provider, 25)
}

func TestVerifyAndSettleTriggered(t *testing.T) {
	engine, state := newTestEngine(t)
	engine.SetOracle(&stubOracle{readings: map[string]int64{
		sourceAURL: 12,
		sourceBURL: 18,
	}})
	createActivePolicy(t, engine, "policy-1")

	policy, err := engine.VerifyAndSettle(context.Background(), owner, "policy-1", sourceAURL, sourceBURL, 5, "2026-09-01")
	if err != nil {
		t.Fatalf("verify and settle: %v", err)
	}
	if policy.Status != PolicyPaid || policy.SettlementResult != SettlementYes {
		t.Fatalf("expected triggered settlement, got %s/%s", policy.Status, policy.SettlementResult)
	}
	if policy.SourceA.ValueMM != "12" || policy.SourceB.ValueMM != "18" {
		t.Fatalf("readings not recorded: %+v %+v", policy.SourceA, policy.SourceB)
	}
	if policy.SourceA.AuditHash == "" || policy.SourceB.AuditHash == "" {
		t.Fatalf("audit hashes must be recorded")
	}
	want := settlementProofHash("policy-1", sourceAURL, sourceBURL, 12, 18, 5)
	if policy.SettlementProofHash != want {
		t.Fatalf("proof hash mismatch: got %s, want %s", policy.SettlementProofHash, want)
	}
	requireBalance(t, engine, buyer, 500)
	requireBalance(t, engine, provider, 25)

	stored := state.policies["policy-1"]
	if stored.Status != PolicyPaid {
		t.Fatalf("stored policy not settled: %s", stored.Status)
	}
}

func TestVerifyAndSettleDisagreementKeepsEvidence(t *testing.T) {
	engine, state := newTestEngine(t)
	engine.SetOracle(&stubOracle{readings: map[string]int64{
		sourceAURL: 10,
		sourceBURL: 40,
	}})
	createActivePolicy(t, engine, "policy-1")

	_, err := engine.VerifyAndSettle(context.Background(), owner, "policy-1", sourceAURL, sourceBURL, 5, "2026-09-01")
	if !errors.Is(err, ErrSourcesDisagree) {
		t.Fatalf("expected ErrSourcesDisagree, got %v", err)
	}

	stored := state.policies["policy-1"]
	if stored.Status != PolicyActive {
		t.Fatalf("disagreement must leave the policy ACTIVE, got %s", stored.Status)
	}
	if stored.SourceA.ValueMM != "10" || stored.SourceB.ValueMM != "40" {
		t.Fatalf("extracted evidence must persist for audit: %+v %+v", stored.SourceA, stored.SourceB)
	}
	if stored.SettlementResult != SettlementPending || stored.SettlementProofHash != "" {
		t.Fatalf("no settlement fields may be set on disagreement")
	}
	requireBalance(t, engine, buyer, 0)
	requireBalance(t, engine, provider, 0)
}

func TestVerifyAndSettleGuards(t *testing.T) {
	engine, _ := newTestEngine(t)
	engine.SetOracle(&stubOracle{readings: map[string]int64{sourceAURL: 10, sourceBURL: 12}})
	createActivePolicy(t, engine, "policy-1")
	ctx := context.Background()

	if _, err := engine.VerifyAndSettle(ctx, provider, "policy-1", sourceAURL, sourceBURL, 5, "2026-09-01"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected owner-only verify, got %v", err)
	}
	if _, err := engine.VerifyAndSettle(ctx, owner, "policy-1", sourceAURL, sourceBURL, 101, "2026-09-01"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected out-of-range tolerance to fail, got %v", err)
	}
	if _, err := engine.VerifyAndSettle(ctx, owner, "policy-1", sourceAURL, sourceBURL, -1, "2026-09-01"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected negative tolerance to fail, got %v", err)
	}
	if _, err := engine.VerifyAndSettle(ctx, owner, "policy-1", "https://example.com/x", sourceBURL, 5, "2026-09-01"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected untrusted source to fail, got %v", err)
	}
	if _, err := engine.VerifyAndSettle(ctx, owner, "policy-1", sourceAURL, sourceBURL, 5, "2026-07-01"); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected pre-end-date verify to fail, got %v", err)
	}
}

func TestVerifyAndSettleOracleFailure(t *testing.T) {
	engine, state := newTestEngine(t)
	engine.SetOracle(&stubOracle{err: fmt.Errorf("upstream timeout")})
	createActivePolicy(t, engine, "policy-1")

	_, err := engine.VerifyAndSettle(context.Background(), owner, "policy-1", sourceAURL, sourceBURL, 5, "2026-09-01")
	if !errors.Is(err, ErrOracleFailure) {
		t.Fatalf("expected ErrOracleFailure, got %v", err)
	}
	if !strings.Contains(err.Error(), "upstream timeout") {
		t.Fatalf("oracle failure must carry the cause: %v", err)
	}
	stored := state.policies["policy-1"]
	if stored.Status != PolicyActive || stored.SourceA.URL != "" {
		t.Fatalf("failed extraction must not mutate the policy")
	}
}

func TestVerifyAndSettleWithoutOracle(t *testing.T) {
	engine, _ := newTestEngine(t)
	createActivePolicy(t, engine, "policy-1")
	if _, err := engine.VerifyAndSettle(context.Background(), owner, "policy-1", sourceAURL, sourceBURL, 5, "2026-09-01"); err == nil {
		t.Fatalf("expected error when no oracle is configured")
	}
}

func TestResolveWithValues(t *testing.T) {
	engine, _ := newTestEngine(t)
	createActivePolicy(t, engine, "policy-1")

	policy, err := engine.ResolveWithValues(owner, "policy-1", 12, 18, 5, "2026-09-01")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if policy.Status != PolicyPaid {
		t.Fatalf("expected PAID status, got %s", policy.Status)
	}
	if policy.SourceA.URL != "manual://source-a" || policy.SourceB.URL != "manual://source-b" {
		t.Fatalf("manual evidence URLs not recorded: %+v %+v", policy.SourceA, policy.SourceB)
	}
	if policy.SourceA.AuditHash != "manual-a:12" || policy.SourceB.AuditHash != "manual-b:18" {
		t.Fatalf("manual audit hashes not recorded: %+v %+v", policy.SourceA, policy.SourceB)
	}
	want := manualProofHash("policy-1", 12, 18, 5, "2026-09-01")
	if policy.SettlementProofHash != want {
		t.Fatalf("proof hash mismatch: got %s, want %s", policy.SettlementProofHash, want)
	}
	requireBalance(t, engine, buyer, 500)
	requireBalance(t, engine, provider, 25)
}

func TestResolveWithValuesGuards(t *testing.T) {
	engine, _ := newTestEngine(t)
	createActivePolicy(t, engine, "policy-1")

	if _, err := engine.ResolveWithValues(provider, "policy-1", 12, 18, 5, "2026-09-01"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected owner-only resolve, got %v", err)
	}
	if _, err := engine.ResolveWithValues(owner, "policy-1", 10, 40, 5, "2026-09-01"); !errors.Is(err, ErrSourcesDisagree) {
		t.Fatalf("expected ErrSourcesDisagree, got %v", err)
	}
	if _, err := engine.ResolveWithValues(owner, "policy-1", 12, 18, 200, "2026-09-01"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected tolerance bound check, got %v", err)
	}
}

func TestPolicyQueriesReturnCopies(t *testing.T) {
	engine, state := newTestEngine(t)
	if _, err := engine.CreateOffer(provider, offerParams("policy-1")); err != nil {
		t.Fatalf("create offer: %v", err)
	}

	fetched, err := engine.Policy("policy-1")
	if err != nil {
		t.Fatalf("get policy: %v", err)
	}
	fetched.Region = "mutated"
	fetched.PayoutAmount.SetInt64(1)
	if state.policies["policy-1"].Region != "Nakuru" || state.policies["policy-1"].PayoutAmount.Int64() != 500 {
		t.Fatalf("query result must be a deep copy")
	}

	if _, err := engine.Policy("missing"); !errors.Is(err, ErrPolicyNotFound) {
		t.Fatalf("expected ErrPolicyNotFound, got %v", err)
	}
}

func TestPoliciesListsAllInOrder(t *testing.T) {
	engine, _ := newTestEngine(t)
	for _, id := range []string{"policy-c", "policy-a", "policy-b"} {
		if _, err := engine.CreateOffer(provider, offerParams(id)); err != nil {
			t.Fatalf("create offer %s: %v", id, err)
		}
	}
	policies := engine.Policies()
	if len(policies) != 3 {
		t.Fatalf("expected 3 policies, got %d", len(policies))
	}
	for i, want := range []string{"policy-a", "policy-b", "policy-c"} {
		if policies[i].ID != want {
			t.Fatalf("policies out of order at %d: got %s, want %s", i, policies[i].ID, want)
		}
	}
}

func TestWithdrawableBalanceUnknownAddress(t *testing.T) {
	engine, _ := newTestEngine(t)
	requireBalance(t, engine, stranger, 0)
}

type eventRecorder struct {
	types []string
}

func (r *eventRecorder) Emit(evt events.Event) {
	r.types = append(r.types, evt.EventType())
}

func TestLifecycleEmitsEvents(t *testing.T) {
	engine, _ := newTestEngine(t)
	recorder := &eventRecorder{}
	engine.SetEmitter(recorder)

	createActivePolicy(t, engine, "policy-1")
	if _, err := engine.Settle(owner, "policy-1", true, "h", "r", "2026-09-01"); err != nil {
		t.Fatalf("settle: %v", err)
	}

	want := []string{EventTypePolicyCreated, EventTypePolicyActivated, EventTypePolicySettled}
	if len(recorder.types) != len(want) {
		t.Fatalf("expected %d events, got %d", len(want), len(recorder.types))
	}
	for i := range want {
		if recorder.types[i] != want[i] {
			t.Fatalf("event %d: got %s, want %s", i, recorder.types[i], want[i])
		}
	}
}
