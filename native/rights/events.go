package rights

import (
	"math/big"
	"strconv"

	"github.com/SynapseMedia/protocol-core-v1/core/events"
	"github.com/SynapseMedia/protocol-core-v1/core/types"
)

const (
	// EventTypeCustodyGranted is emitted when a holder reassigns custody.
	EventTypeCustodyGranted = "rights.custody.granted"
	// EventTypePolicyAuthorized is emitted when a holder delegates a policy.
	EventTypePolicyAuthorized = "rights.policy.authorized"
	// EventTypePolicyRevoked is emitted when a holder revokes a policy.
	EventTypePolicyRevoked = "rights.policy.revoked"
	// EventTypeAccessGranted is emitted when a settlement completes.
	EventTypeAccessGranted = "rights.access.granted"
	// EventTypeWithdrawn is emitted when a beneficiary pulls ledger funds.
	EventTypeWithdrawn = "rights.ledger.withdrawn"
	// EventTypeFeesDisbursed is emitted when governance moves treasury fees.
	EventTypeFeesDisbursed = "rights.fees.disbursed"
	// EventTypeFeesUpdated is emitted when governance configures a fee.
	EventTypeFeesUpdated = "rights.fees.updated"
)

type eventEnvelope struct {
	evt *types.Event
}

func (e eventEnvelope) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e eventEnvelope) Event() *types.Event { return e.evt }

// WrapEvent converts a raw event payload into the emitter-friendly envelope.
func WrapEvent(evt *types.Event) events.Event { return eventEnvelope{evt: evt} }

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// NewCustodyGrantedEvent captures a custody reassignment.
func NewCustodyGrantedEvent(contentID [32]byte, holder, distributor, previous [20]byte) *types.Event {
	return &types.Event{
		Type: EventTypeCustodyGranted,
		Attributes: map[string]string{
			"contentId":   types.HexHash(contentID),
			"holder":      types.HexAddress(holder),
			"distributor": types.HexAddress(distributor),
			"previous":    types.HexAddress(previous),
		},
	}
}

// NewPolicyAuthorizedEvent captures a policy delegation.
func NewPolicyAuthorizedEvent(holder, policy [20]byte) *types.Event {
	return &types.Event{
		Type: EventTypePolicyAuthorized,
		Attributes: map[string]string{
			"holder": types.HexAddress(holder),
			"policy": types.HexAddress(policy),
		},
	}
}

// NewPolicyRevokedEvent captures a policy revocation.
func NewPolicyRevokedEvent(holder, policy [20]byte) *types.Event {
	return &types.Event{
		Type: EventTypePolicyRevoked,
		Attributes: map[string]string{
			"holder": types.HexAddress(holder),
			"policy": types.HexAddress(policy),
		},
	}
}

// NewAccessGrantedEvent captures a completed settlement.
func NewAccessGrantedEvent(s *Settlement) *types.Event {
	if s == nil {
		return nil
	}
	return &types.Event{
		Type: EventTypeAccessGranted,
		Attributes: map[string]string{
			"contentId":        types.HexHash(s.ContentID),
			"account":          types.HexAddress(s.Account),
			"policy":           types.HexAddress(s.Policy),
			"holder":           types.HexAddress(s.Holder),
			"distributor":      types.HexAddress(s.Distributor),
			"currency":         types.HexAddress(s.Currency),
			"total":            amountString(s.Total),
			"treasuryCut":      amountString(s.TreasuryCut),
			"distributorShare": amountString(s.DistributorShare),
			"holderRemainder":  amountString(s.HolderRemainder),
			"splits":           strconv.Itoa(len(s.Splits)),
		},
	}
}

// NewWithdrawnEvent captures a ledger withdrawal.
func NewWithdrawnEvent(beneficiary, currency [20]byte, amount *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeWithdrawn,
		Attributes: map[string]string{
			"beneficiary": types.HexAddress(beneficiary),
			"currency":    types.HexAddress(currency),
			"amount":      amountString(amount),
		},
	}
}

// NewFeesDisbursedEvent captures a treasury disbursement.
func NewFeesDisbursedEvent(treasury, currency [20]byte, amount *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeFeesDisbursed,
		Attributes: map[string]string{
			"treasury": types.HexAddress(treasury),
			"currency": types.HexAddress(currency),
			"amount":   amountString(amount),
		},
	}
}

// NewFeesUpdatedEvent captures a fee schedule change.
func NewFeesUpdatedEvent(currency [20]byte, bps uint32) *types.Event {
	return &types.Event{
		Type: EventTypeFeesUpdated,
		Attributes: map[string]string{
			"currency": types.HexAddress(currency),
			"bps":      strconv.FormatUint(uint64(bps), 10),
		},
	}
}
