package rights

import (
	"math/big"

	"github.com/SynapseMedia/protocol-core-v1/native/access"
)

// Capability sentinels returned by trusted contracts. A resolved policy or
// distributor whose Capability call fails, panics, or answers anything else
// is untrusted and never handed money.
const (
	PolicyCapability      = "rights/policy/v1"
	DistributorCapability = "rights/distributor/v1"
)

// MaxSplits bounds the number of payout splits a policy may request.
const MaxSplits = 100

// Split is one basis-point share of a payout remainder.
type Split struct {
	Target [20]byte `json:"target"`
	Bps    uint32   `json:"bps"`
}

// Payout is the allocation descriptor a policy produces for a grant. It is
// untrusted data: the engine enforces structural bounds and never settles
// more than the amount actually received.
type Payout struct {
	Amount   *big.Int `json:"amount"`
	Currency [20]byte `json:"currency"`
	Splits   []Split  `json:"splits"`
}

// Clone returns a deep copy of the payout.
func (p *Payout) Clone() *Payout {
	if p == nil {
		return nil
	}
	clone := Payout{Currency: p.Currency}
	if p.Amount != nil {
		clone.Amount = new(big.Int).Set(p.Amount)
	}
	clone.Splits = append([]Split(nil), p.Splits...)
	return &clone
}

// PolicyContract is the interface the engine consumes from an authorized
// policy. Policies double as access validators for the grants they settled.
type PolicyContract interface {
	access.Validator
	Capability() string
	Payouts(contentID [32]byte, account [20]byte) (*Payout, error)
}

// DistributorContract is the interface the engine consumes from a custodian
// distributor.
type DistributorContract interface {
	Capability() string
	Manager() [20]byte
	Negotiate(total *big.Int, currency [20]byte, custodyCount uint64) (*big.Int, error)
}

// ContractResolver maps addresses to the contracts behind them.
type ContractResolver interface {
	ResolvePolicy(addr [20]byte) (PolicyContract, bool)
	ResolveDistributor(addr [20]byte) (DistributorContract, bool)
}

// ContentView reports whether content is currently active per the external
// referendum registry.
type ContentView interface {
	IsActive(contentID [32]byte) bool
}

// SplitResult records the settled amount for one payout split target.
type SplitResult struct {
	Target [20]byte `json:"target"`
	Amount *big.Int `json:"amount"`
}

// Settlement summarises a successful GrantAccess: every unit of Total is
// accounted for across the treasury cut, the distributor share, the split
// amounts, and the holder remainder.
type Settlement struct {
	ContentID        [32]byte      `json:"contentId"`
	Account          [20]byte      `json:"account"`
	Policy           [20]byte      `json:"policy"`
	Holder           [20]byte      `json:"holder"`
	Distributor      [20]byte      `json:"distributor"`
	Currency         [20]byte      `json:"currency"`
	Total            *big.Int      `json:"total"`
	TreasuryCut      *big.Int      `json:"treasuryCut"`
	DistributorShare *big.Int      `json:"distributorShare"`
	Splits           []SplitResult `json:"splits"`
	HolderRemainder  *big.Int      `json:"holderRemainder"`
}
