package core

import (
	"context"
	"math/big"
	"sync"

	"droughtcover/core/events"
	"droughtcover/core/state"
	"droughtcover/native/cover"
	"droughtcover/storage"
)

// Node binds the persistent state and the cover engine into the operation
// surface the RPC and gateway layers call. A single mutex serialises every
// operation, giving the engine the one-global-ordering execution model it
// assumes: no operation ever observes a partially applied effect of another.
type Node struct {
	mu     sync.Mutex
	db     storage.Database
	state  *state.Manager
	engine *cover.Engine
}

// NewNode wires a node over the supplied database with the given service
// owner and rainfall oracle collaborator.
func NewNode(db storage.Database, owner [20]byte, oracle cover.RainfallSource) *Node {
	manager := state.NewManager(db)
	engine := cover.NewEngine()
	engine.SetState(manager)
	engine.SetOwner(owner)
	engine.SetOracle(oracle)
	return &Node{
		db:     db,
		state:  manager,
		engine: engine,
	}
}

// SetEventEmitter forwards engine events to the given emitter.
func (n *Node) SetEventEmitter(emitter events.Emitter) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.engine.SetEmitter(emitter)
}

// Owner returns the configured service-owner address.
func (n *Node) Owner() [20]byte {
	return n.engine.Owner()
}

// CreatePolicyOffer inserts a new FUNDED policy with caller as provider.
func (n *Node) CreatePolicyOffer(caller [20]byte, params cover.CreateOfferParams) (*cover.Policy, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.engine.CreateOffer(caller, params)
}

// PayPremium activates a FUNDED policy with the caller as (or on behalf of)
// the buyer.
func (n *Node) PayPremium(caller [20]byte, policyID string, payment *big.Int) (*cover.Policy, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.engine.PayPremium(caller, policyID, payment)
}

// PayPremiumForBuyer activates a FUNDED policy with the provider sponsoring
// the committed buyer's premium.
func (n *Node) PayPremiumForBuyer(caller [20]byte, policyID string, payment *big.Int) (*cover.Policy, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.engine.PayPremiumForBuyer(caller, policyID, payment)
}

// CancelPolicy terminates a FUNDED policy and refunds the provider's
// collateral.
func (n *Node) CancelPolicy(caller [20]byte, policyID string) (*cover.Policy, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.engine.Cancel(caller, policyID)
}

// SettlePolicy applies an externally adjudicated result.
func (n *Node) SettlePolicy(caller [20]byte, policyID string, result bool, proofHash, reason, currentDate string) (*cover.Policy, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.engine.Settle(caller, policyID, result, proofHash, reason, currentDate)
}

// VerifyAndSettlePolicy fetches readings from both sources through the oracle
// collaborator and settles. The oracle round-trip happens under the operation
// lock: settlement attempts are serialised like every other mutation.
func (n *Node) VerifyAndSettlePolicy(ctx context.Context, caller [20]byte, policyID, sourceAURL, sourceBURL string, toleranceMM int64, currentDate string) (*cover.Policy, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.engine.VerifyAndSettle(ctx, caller, policyID, sourceAURL, sourceBURL, toleranceMM, currentDate)
}

// ResolvePolicyWithValues settles from caller-supplied readings.
func (n *Node) ResolvePolicyWithValues(caller [20]byte, policyID string, sourceAMM, sourceBMM, toleranceMM int64, currentDate string) (*cover.Policy, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.engine.ResolveWithValues(caller, policyID, sourceAMM, sourceBMM, toleranceMM, currentDate)
}

// GetPolicy returns a copy of the stored policy record.
func (n *Node) GetPolicy(policyID string) (*cover.Policy, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.engine.Policy(policyID)
}

// ListPolicies returns copies of every stored policy in ascending id order.
func (n *Node) ListPolicies() []*cover.Policy {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.engine.Policies()
}

// WithdrawableBalance returns the accrued balance for a party, zero for
// unknown addresses.
func (n *Node) WithdrawableBalance(addr [20]byte) *big.Int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.engine.WithdrawableBalance(addr)
}
