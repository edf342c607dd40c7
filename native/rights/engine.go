package rights

import (
	"fmt"
	"math/big"
	"sync/atomic"

	"github.com/SynapseMedia/protocol-core-v1/core/events"
	"github.com/SynapseMedia/protocol-core-v1/core/state"
	"github.com/SynapseMedia/protocol-core-v1/core/types"
	"github.com/SynapseMedia/protocol-core-v1/native/access"
	"github.com/SynapseMedia/protocol-core-v1/native/custody"
	"github.com/SynapseMedia/protocol-core-v1/native/fees"
	"github.com/SynapseMedia/protocol-core-v1/native/ledger"
	"github.com/SynapseMedia/protocol-core-v1/native/policy"
	"github.com/SynapseMedia/protocol-core-v1/native/treasury"
)

// Engine is the rights settlement orchestrator. It owns the ledger, fee
// schedule, vault, custody registry, policy authorizer, and access controller
// as explicit composable parts, and drives them through the GrantAccess
// pipeline, withdrawals, and treasury disbursements.
//
// Money-moving entry points stage every state write in an overlay and commit
// only on success, so a failed call leaves no partial effects. BankView
// implementations are expected to share that atomic scope: the in-process
// bank writes through the same state manager, and an on-chain host reverts
// external transfers together with engine state.
type Engine struct {
	state      *state.Manager
	bank       treasury.BankView
	owners     custody.OwnershipView
	enrollment custody.EnrollmentView
	contents   ContentView
	audit      policy.AuditView
	resolver   ContractResolver
	emitter    events.Emitter

	vaultAddr    [20]byte
	governance   [20]byte
	treasuryAddr [20]byte

	ledger    *ledger.Ledger
	fees      *fees.Schedule
	vault     *treasury.Vault
	custody   *custody.Registry
	policies  *policy.Authorizer
	access    *access.Controller
	entered   atomic.Bool
	maxSplits int
}

// NewEngine constructs an engine with a no-op emitter. Dependencies are
// supplied through the setters before use.
func NewEngine() *Engine {
	return &Engine{
		emitter:   events.NoopEmitter{},
		maxSplits: MaxSplits,
	}
}

// SetState configures the state backend and rebuilds the owned modules.
func (e *Engine) SetState(m *state.Manager) { e.state = m; e.rebuild() }

// SetBank configures the currency rail used for deposits and payouts.
func (e *Engine) SetBank(b treasury.BankView) { e.bank = b; e.rebuild() }

// SetVaultAccount configures the engine's fund-holding address.
func (e *Engine) SetVaultAccount(addr [20]byte) { e.vaultAddr = addr; e.rebuild() }

// SetOwnership configures the external content ownership registry.
func (e *Engine) SetOwnership(v custody.OwnershipView) { e.owners = v; e.rebuild() }

// SetEnrollment configures the external distributor enrollment registry.
func (e *Engine) SetEnrollment(v custody.EnrollmentView) { e.enrollment = v; e.rebuild() }

// SetContentRegistry configures the external content referendum view.
func (e *Engine) SetContentRegistry(v ContentView) { e.contents = v }

// SetAuditOracle configures the external policy audit oracle.
func (e *Engine) SetAuditOracle(v policy.AuditView) { e.audit = v; e.rebuild() }

// SetResolver configures the address-to-contract resolver for policies and
// distributors.
func (e *Engine) SetResolver(r ContractResolver) { e.resolver = r; e.rebuild() }

// SetGovernance configures the address allowed to call SetFees and Disburse.
func (e *Engine) SetGovernance(addr [20]byte) { e.governance = addr }

// SetTreasury configures the address receiving disbursed fees.
func (e *Engine) SetTreasury(addr [20]byte) { e.treasuryAddr = addr }

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) rebuild() {
	if e.state == nil {
		return
	}
	e.ledger = ledger.New(e.state)
	e.fees = fees.NewSchedule(e.state)
	if e.bank != nil {
		e.vault = treasury.NewVault(e.state, e.bank, e.vaultAddr)
	}
	if e.owners != nil && e.enrollment != nil {
		e.custody = custody.NewRegistry(e.state, e.owners, e.enrollment)
	}
	if e.audit != nil {
		e.policies = policy.NewAuthorizer(e.state, e.audit)
	}
	if e.resolver != nil {
		e.access = access.NewController(e.state, policyValidatorResolver{resolver: e.resolver})
	}
}

func (e *Engine) emit(evt *types.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(WrapEvent(evt))
}

// policyValidatorResolver lets settled policies act as access validators.
type policyValidatorResolver struct {
	resolver ContractResolver
}

func (r policyValidatorResolver) ResolveValidator(addr [20]byte) (access.Validator, bool) {
	if r.resolver == nil {
		return nil, false
	}
	contract, ok := r.resolver.ResolvePolicy(addr)
	if !ok || contract == nil {
		return nil, false
	}
	return contract, true
}

// GrantCustody reassigns custody of the content to the distributor on behalf
// of its holder and returns the previous custodian.
func (e *Engine) GrantCustody(caller [20]byte, contentID [32]byte, distributor [20]byte) ([20]byte, error) {
	if e == nil || e.state == nil {
		return [20]byte{}, errNilState
	}
	if e.custody == nil {
		return [20]byte{}, errNotConfigured
	}
	e.state.Begin()
	previous, err := e.custody.Grant(caller, contentID, distributor)
	if err != nil {
		e.state.Discard()
		return [20]byte{}, err
	}
	if err := e.state.Commit(); err != nil {
		return [20]byte{}, err
	}
	e.emit(NewCustodyGrantedEvent(contentID, caller, distributor, previous))
	return previous, nil
}

// AuthorizePolicy adds the policy to the caller's delegation set.
func (e *Engine) AuthorizePolicy(holder [20]byte, policyAddr [20]byte) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.policies == nil {
		return errNotConfigured
	}
	if err := e.policies.Authorize(holder, policyAddr); err != nil {
		return err
	}
	e.emit(NewPolicyAuthorizedEvent(holder, policyAddr))
	return nil
}

// RevokePolicy removes the policy from the caller's delegation set.
func (e *Engine) RevokePolicy(holder [20]byte, policyAddr [20]byte) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.policies == nil {
		return errNotConfigured
	}
	if err := e.policies.Revoke(holder, policyAddr); err != nil {
		return err
	}
	e.emit(NewPolicyRevokedEvent(holder, policyAddr))
	return nil
}

// IsPolicyAuthorized reports whether the policy currently holds an effective
// delegation from the holder.
func (e *Engine) IsPolicyAuthorized(holder [20]byte, policyAddr [20]byte) (bool, error) {
	if e == nil || e.policies == nil {
		return false, errNotConfigured
	}
	return e.policies.IsAuthorized(holder, policyAddr)
}

// SetFees configures the basis-point fee for a currency, admitting it into
// the valid-currency set. Governance only.
func (e *Engine) SetFees(caller [20]byte, currency [20]byte, bps uint32) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.fees == nil {
		return errNotConfigured
	}
	if caller != e.governance || types.IsZeroAddress(e.governance) {
		return ErrNotGovernance
	}
	if err := e.fees.SetFee(currency, bps); err != nil {
		return err
	}
	e.emit(NewFeesUpdatedEvent(currency, bps))
	return nil
}

// IsEligibleForDistribution reports whether the content has an active
// custodian and is itself active.
func (e *Engine) IsEligibleForDistribution(contentID [32]byte) (bool, error) {
	if e == nil || e.custody == nil || e.enrollment == nil || e.contents == nil {
		return false, errNotConfigured
	}
	custodian, ok, err := e.custody.CustodianOf(contentID)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	return e.enrollment.IsActive(custodian) && e.contents.IsActive(contentID), nil
}

// GrantAccess settles a paid access grant. The caller is the authorized
// policy acting for the account; attached carries the native value sent along
// with the call. On success every unit of the received amount is accounted
// for: treasury cut, distributor share, split credits, holder remainder.
func (e *Engine) GrantAccess(caller [20]byte, contentID [32]byte, account [20]byte, attached *big.Int) (*Settlement, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if e.custody == nil || e.policies == nil || e.vault == nil || e.fees == nil || e.ledger == nil || e.access == nil || e.contents == nil {
		return nil, errNotConfigured
	}
	if !e.entered.CompareAndSwap(false, true) {
		return nil, ErrReentrantCall
	}
	defer e.entered.Store(false)

	holder, err := e.custody.HolderOf(contentID)
	if err != nil {
		return nil, err
	}
	authorized, err := e.policies.IsAuthorized(holder, caller)
	if err != nil {
		return nil, err
	}
	if !authorized {
		return nil, ErrPolicyNotAuthorized
	}
	custodian, ok, err := e.custody.CustodianOf(contentID)
	if err != nil {
		return nil, err
	}
	if !ok || !e.enrollment.IsActive(custodian) || !e.contents.IsActive(contentID) {
		return nil, ErrContentNotEligible
	}

	policyContract, err := e.trustedPolicy(caller)
	if err != nil {
		return nil, err
	}
	payout, err := requestPayout(policyContract, contentID, account)
	if err != nil {
		return nil, fmt.Errorf("rights: payout request: %w", err)
	}
	if err := validatePayout(payout, e.maxSplits); err != nil {
		return nil, err
	}
	if err := e.fees.RequireValidCurrency(payout.Currency); err != nil {
		return nil, err
	}
	distributorContract, err := e.trustedDistributor(custodian)
	if err != nil {
		return nil, err
	}

	e.state.Begin()
	settlement, err := e.settle(caller, contentID, account, holder, custodian, distributorContract, payout, attached)
	if err != nil {
		e.state.Discard()
		return nil, err
	}
	if err := e.state.Commit(); err != nil {
		return nil, err
	}
	e.emit(NewAccessGrantedEvent(settlement))
	return settlement, nil
}

func (e *Engine) settle(policyAddr [20]byte, contentID [32]byte, account [20]byte, holder, custodian [20]byte, distributorContract DistributorContract, payout *Payout, attached *big.Int) (*Settlement, error) {
	currency := payout.Currency

	// All downstream math uses the amount actually received, never the
	// requested amount.
	received, err := e.vault.SafeDeposit(policyAddr, currency, payout.Amount, attached)
	if err != nil {
		return nil, err
	}

	feeBps, err := e.fees.FeeBps(currency)
	if err != nil {
		return nil, err
	}
	treasuryCut := fees.Cut(received, feeBps)

	custodyCount, err := e.custody.CustodyCount(custodian)
	if err != nil {
		return nil, err
	}
	share, err := negotiate(distributorContract, received, currency, custodyCount)
	if err != nil {
		return nil, fmt.Errorf("rights: negotiation: %w", err)
	}
	if share == nil || share.Sign() < 0 {
		return nil, fmt.Errorf("%w: negative distributor share", errInvalidPayout)
	}

	deductions := new(big.Int).Add(treasuryCut, share)
	if deductions.Cmp(received) > 0 {
		return nil, fmt.Errorf("%w: cut %s + share %s > received %s", ErrDealTooExpensive, treasuryCut, share, received)
	}
	remainder := new(big.Int).Sub(received, deductions)

	splits := make([]SplitResult, 0, len(payout.Splits))
	distributed := big.NewInt(0)
	for _, split := range payout.Splits {
		amount := fees.Cut(remainder, split.Bps)
		if amount.Sign() > 0 {
			if _, err := e.ledger.Credit(split.Target, currency, amount); err != nil {
				return nil, err
			}
		}
		distributed.Add(distributed, amount)
		splits = append(splits, SplitResult{Target: split.Target, Amount: amount})
	}
	// Truncation dust and unconsumed basis points flow back to the holder.
	holderRemainder := new(big.Int).Sub(remainder, distributed)

	if share.Sign() > 0 {
		if _, err := e.ledger.Credit(distributorContract.Manager(), currency, share); err != nil {
			return nil, err
		}
	}
	if holderRemainder.Sign() > 0 {
		if _, err := e.ledger.Credit(holder, currency, holderRemainder); err != nil {
			return nil, err
		}
	}
	if err := e.vault.AccrueFees(currency, treasuryCut); err != nil {
		return nil, err
	}
	if err := e.access.Register(account, contentID, policyAddr); err != nil {
		return nil, err
	}

	return &Settlement{
		ContentID:        contentID,
		Account:          account,
		Policy:           policyAddr,
		Holder:           holder,
		Distributor:      custodian,
		Currency:         currency,
		Total:            received,
		TreasuryCut:      treasuryCut,
		DistributorShare: share,
		Splits:           splits,
		HolderRemainder:  holderRemainder,
	}, nil
}

// Withdraw debits the caller's own ledger entry and pushes the funds out.
func (e *Engine) Withdraw(caller [20]byte, currency [20]byte, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.ledger == nil || e.vault == nil {
		return errNotConfigured
	}
	if !e.entered.CompareAndSwap(false, true) {
		return ErrReentrantCall
	}
	defer e.entered.Store(false)

	e.state.Begin()
	if _, err := e.ledger.Debit(caller, currency, amount); err != nil {
		e.state.Discard()
		return err
	}
	if err := e.vault.Transfer(caller, currency, amount); err != nil {
		e.state.Discard()
		return err
	}
	if err := e.state.Commit(); err != nil {
		return err
	}
	e.emit(NewWithdrawnEvent(caller, currency, amount))
	return nil
}

// Disburse moves accrued treasury fees to the configured treasury address.
// Governance only; the fee pot is the only source, so ledger balances can
// never be disbursed.
func (e *Engine) Disburse(caller [20]byte, currency [20]byte, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.vault == nil {
		return errNotConfigured
	}
	if caller != e.governance || types.IsZeroAddress(e.governance) {
		return ErrNotGovernance
	}
	if !e.entered.CompareAndSwap(false, true) {
		return ErrReentrantCall
	}
	defer e.entered.Store(false)

	e.state.Begin()
	if err := e.vault.Disburse(e.treasuryAddr, currency, amount); err != nil {
		e.state.Discard()
		return err
	}
	if err := e.state.Commit(); err != nil {
		return err
	}
	e.emit(NewFeesDisbursedEvent(e.treasuryAddr, currency, amount))
	return nil
}

// BalanceOf returns the caller-visible ledger balance for a beneficiary.
func (e *Engine) BalanceOf(beneficiary [20]byte, currency [20]byte) (*big.Int, error) {
	if e == nil || e.ledger == nil {
		return nil, errNotConfigured
	}
	return e.ledger.BalanceOf(beneficiary, currency)
}

// FeesAccrued returns the treasury fees accumulated in the currency.
func (e *Engine) FeesAccrued(currency [20]byte) (*big.Int, error) {
	if e == nil || e.vault == nil {
		return nil, errNotConfigured
	}
	return e.vault.FeesAccrued(currency)
}

// CustodianOf returns the current custodian for the content, if any.
func (e *Engine) CustodianOf(contentID [32]byte) ([20]byte, bool, error) {
	if e == nil || e.custody == nil {
		return [20]byte{}, false, errNotConfigured
	}
	return e.custody.CustodianOf(contentID)
}

// CustodyCount returns the number of content items custodied to the
// distributor.
func (e *Engine) CustodyCount(distributor [20]byte) (uint64, error) {
	if e == nil || e.custody == nil {
		return 0, errNotConfigured
	}
	return e.custody.CustodyCount(distributor)
}

// IsAccessGranted evaluates the registered validators for the pair.
func (e *Engine) IsAccessGranted(account [20]byte, contentID [32]byte) (bool, error) {
	if e == nil || e.access == nil {
		return false, errNotConfigured
	}
	return e.access.IsAccessGranted(account, contentID)
}

// LookupFee exposes the fee schedule read with an explicit configured flag.
func (e *Engine) LookupFee(currency [20]byte) (uint32, bool, error) {
	if e == nil || e.fees == nil {
		return 0, false, errNotConfigured
	}
	return e.fees.LookupFee(currency)
}

func (e *Engine) trustedPolicy(addr [20]byte) (PolicyContract, error) {
	if e.resolver == nil {
		return nil, errNilResolver
	}
	contract, ok := e.resolver.ResolvePolicy(addr)
	if !ok || contract == nil {
		return nil, fmt.Errorf("%w: policy %s", ErrUntrustedContract, types.HexAddress(addr))
	}
	if !probeCapability(contract.Capability, PolicyCapability) {
		return nil, fmt.Errorf("%w: policy %s", ErrUntrustedContract, types.HexAddress(addr))
	}
	return contract, nil
}

func (e *Engine) trustedDistributor(addr [20]byte) (DistributorContract, error) {
	if e.resolver == nil {
		return nil, errNilResolver
	}
	contract, ok := e.resolver.ResolveDistributor(addr)
	if !ok || contract == nil {
		return nil, fmt.Errorf("%w: distributor %s", ErrUntrustedContract, types.HexAddress(addr))
	}
	if !probeCapability(contract.Capability, DistributorCapability) {
		return nil, fmt.Errorf("%w: distributor %s", ErrUntrustedContract, types.HexAddress(addr))
	}
	return contract, nil
}

// probeCapability runs the capability call defensively: a panic reads as a
// failed probe, never as a crash.
func probeCapability(fn func() string, want string) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	return fn() == want
}

func requestPayout(contract PolicyContract, contentID [32]byte, account [20]byte) (payout *Payout, err error) {
	defer func() {
		if r := recover(); r != nil {
			payout = nil
			err = fmt.Errorf("policy panicked: %v", r)
		}
	}()
	return contract.Payouts(contentID, account)
}

func negotiate(contract DistributorContract, total *big.Int, currency [20]byte, custodyCount uint64) (share *big.Int, err error) {
	defer func() {
		if r := recover(); r != nil {
			share = nil
			err = fmt.Errorf("distributor panicked: %v", r)
		}
	}()
	return contract.Negotiate(new(big.Int).Set(total), currency, custodyCount)
}

func validatePayout(payout *Payout, maxSplits int) error {
	if payout == nil || payout.Amount == nil || payout.Amount.Sign() < 0 {
		return errInvalidPayout
	}
	if len(payout.Splits) > maxSplits {
		return fmt.Errorf("%w: %d > %d", ErrTooManySplits, len(payout.Splits), maxSplits)
	}
	var totalBps uint64
	for _, split := range payout.Splits {
		totalBps += uint64(split.Bps)
	}
	if totalBps > uint64(fees.MaxBasisPoints) {
		return fmt.Errorf("%w: %d bps", ErrSplitOverflow, totalBps)
	}
	return nil
}
