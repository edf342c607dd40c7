package rights

import "errors"

var (
	// ErrReentrantCall is returned when a money-moving entry point is
	// re-entered while another one is still executing.
	ErrReentrantCall = errors.New("rights: reentrant call rejected")
	// ErrPolicyNotAuthorized is returned when the calling policy is not in
	// the holder's delegation set or its audit has lapsed.
	ErrPolicyNotAuthorized = errors.New("rights: policy not authorized by holder")
	// ErrContentNotEligible is returned when the content has no active
	// custodian or the content itself is inactive.
	ErrContentNotEligible = errors.New("rights: content not eligible for distribution")
	// ErrDealTooExpensive is returned when the treasury cut plus the
	// negotiated distributor share exceed the amount actually received.
	ErrDealTooExpensive = errors.New("rights: aggregate fees exceed received amount")
	// ErrTooManySplits is returned when a payout requests more than
	// MaxSplits split targets.
	ErrTooManySplits = errors.New("rights: too many payout splits")
	// ErrSplitOverflow is returned when the payout split basis points sum
	// beyond the full scale.
	ErrSplitOverflow = errors.New("rights: split basis points exceed maximum")
	// ErrUntrustedContract is returned when a resolved policy or distributor
	// fails the capability probe.
	ErrUntrustedContract = errors.New("rights: contract failed capability probe")
	// ErrNotGovernance is returned when a governance-only entry point is
	// invoked by anyone else.
	ErrNotGovernance = errors.New("rights: caller is not governance")

	errNilState      = errors.New("rights: engine state not configured")
	errNilResolver   = errors.New("rights: contract resolver not configured")
	errNotConfigured = errors.New("rights: engine dependencies not configured")
	errInvalidPayout = errors.New("rights: invalid payout descriptor")
)
