package cover

import (
	"encoding/hex"
	"strconv"

	"droughtcover/core/types"
)

const (
	EventTypePolicyCreated   = "cover.policy.created"
	EventTypePolicyActivated = "cover.policy.activated"
	EventTypePolicyCancelled = "cover.policy.cancelled"
	EventTypePolicySettled   = "cover.policy.settled"
)

// NewPolicyCreatedEvent returns the canonical payload for a new policy offer.
func NewPolicyCreatedEvent(p *Policy) *types.Event {
	return newPolicyEvent(EventTypePolicyCreated, p)
}

// NewPolicyActivatedEvent returns the canonical payload emitted when the
// premium is paid and coverage begins.
func NewPolicyActivatedEvent(p *Policy) *types.Event {
	return newPolicyEvent(EventTypePolicyActivated, p)
}

// NewPolicyCancelledEvent returns the canonical payload emitted when a policy
// is cancelled before activation.
func NewPolicyCancelledEvent(p *Policy) *types.Event {
	return newPolicyEvent(EventTypePolicyCancelled, p)
}

// NewPolicySettledEvent returns the canonical payload emitted on settlement,
// whether the trigger fired or not.
func NewPolicySettledEvent(p *Policy) *types.Event {
	evt := newPolicyEvent(EventTypePolicySettled, p)
	if p != nil {
		evt.Attributes["result"] = p.SettlementResult.String()
		evt.Attributes["proofHash"] = p.SettlementProofHash
		evt.Attributes["reason"] = p.DecisionReason
	}
	return evt
}

func newPolicyEvent(eventType string, p *Policy) *types.Event {
	attrs := make(map[string]string)
	if p == nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	sanitized, err := SanitizePolicy(p)
	if err != nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	attrs["id"] = sanitized.ID
	attrs["buyer"] = hex.EncodeToString(sanitized.Buyer[:])
	attrs["provider"] = hex.EncodeToString(sanitized.Provider[:])
	attrs["region"] = sanitized.Region
	attrs["startDate"] = sanitized.StartDate
	attrs["endDate"] = sanitized.EndDate
	attrs["thresholdMm"] = strconv.FormatInt(sanitized.ThresholdMM, 10)
	attrs["payoutAmount"] = sanitized.PayoutAmount.String()
	attrs["premiumAmount"] = sanitized.PremiumAmount.String()
	attrs["status"] = sanitized.Status.String()
	return &types.Event{Type: eventType, Attributes: attrs}
}
