package state

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"droughtcover/native/cover"
	"droughtcover/storage"
)

// Key prefixes for the two record families. The underlying store iterates
// prefixes in ascending byte order, so policy listings are sorted by id.
const (
	policyPrefix  = "cover/policy/"
	balancePrefix = "cover/balance/"
)

// Manager persists policy records and withdrawable balances in the ordered
// key-value store. Records are replaced as whole units; there is no partial
// field visibility mid-operation.
type Manager struct {
	db storage.Database
}

// NewManager wraps a database handle.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

func policyKey(id string) []byte {
	return []byte(policyPrefix + id)
}

func balanceKey(addr [20]byte) []byte {
	return []byte(balancePrefix + hex.EncodeToString(addr[:]))
}

// PolicyPut sanitises and stores a policy record, replacing any previous
// version atomically at the store level.
func (m *Manager) PolicyPut(policy *cover.Policy) error {
	sanitized, err := cover.SanitizePolicy(policy)
	if err != nil {
		return err
	}
	encoded, err := json.Marshal(sanitized)
	if err != nil {
		return fmt.Errorf("encode policy %s: %w", sanitized.ID, err)
	}
	return m.db.Put(policyKey(sanitized.ID), encoded)
}

// PolicyGet loads a policy by id. The boolean is false when the id is absent.
func (m *Manager) PolicyGet(id string) (*cover.Policy, bool) {
	raw, err := m.db.Get(policyKey(id))
	if err != nil {
		return nil, false
	}
	policy := new(cover.Policy)
	if err := json.Unmarshal(raw, policy); err != nil {
		return nil, false
	}
	return policy, true
}

// Policies returns every stored policy in ascending id order.
func (m *Manager) Policies() []*cover.Policy {
	out := make([]*cover.Policy, 0)
	_ = m.db.Iterate([]byte(policyPrefix), func(key, value []byte) error {
		policy := new(cover.Policy)
		if err := json.Unmarshal(value, policy); err != nil {
			return fmt.Errorf("decode policy %s: %w", string(key), err)
		}
		out = append(out, policy)
		return nil
	})
	return out
}

// BalanceGet returns the withdrawable balance for an address, zero when no
// entry exists yet.
func (m *Manager) BalanceGet(addr [20]byte) *big.Int {
	raw, err := m.db.Get(balanceKey(addr))
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			return big.NewInt(0)
		}
		return big.NewInt(0)
	}
	balance, ok := new(big.Int).SetString(string(raw), 10)
	if !ok {
		return big.NewInt(0)
	}
	return balance
}

// BalancePut stores the withdrawable balance for an address. Negative values
// are rejected; the ledger never goes below zero.
func (m *Manager) BalancePut(addr [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("balance must be non-negative")
	}
	return m.db.Put(balanceKey(addr), []byte(amount.String()))
}
