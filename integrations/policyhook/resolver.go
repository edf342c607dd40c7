// Package policyhook resolves policy and distributor contracts to remote HTTP
// services. A standalone deployment has no host-chain contract runtime, so
// the engine's untrusted collaborators live behind JSON endpoints instead:
// each configured address maps to a base URL exposing the contract surface.
//
// The remote side is treated exactly like an on-chain contract: a timeout,
// transport failure, or malformed answer reads as a failed capability probe
// or an errored call, never as a crash.
package policyhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/SynapseMedia/protocol-core-v1/core/types"
	"github.com/SynapseMedia/protocol-core-v1/native/rights"
)

const defaultTimeout = 10 * time.Second

// Resolver maps contract addresses to remote endpoints and satisfies the
// engine's contract resolver interface.
type Resolver struct {
	mu           sync.RWMutex
	client       *http.Client
	policies     map[[20]byte]string
	distributors map[[20]byte]string
}

// Option customises resolver construction.
type Option func(*Resolver)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(r *Resolver) {
		if client != nil {
			r.client = client
		}
	}
}

// NewResolver constructs an empty resolver.
func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{
		client:       &http.Client{Timeout: defaultTimeout},
		policies:     make(map[[20]byte]string),
		distributors: make(map[[20]byte]string),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RegisterPolicy binds a policy address to its endpoint base URL.
func (r *Resolver) RegisterPolicy(addr [20]byte, endpoint string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.policies[addr] = strings.TrimRight(endpoint, "/")
}

// RegisterDistributor binds a distributor address to its endpoint base URL.
func (r *Resolver) RegisterDistributor(addr [20]byte, endpoint string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.distributors[addr] = strings.TrimRight(endpoint, "/")
}

// ResolvePolicy returns the remote policy contract bound to the address.
func (r *Resolver) ResolvePolicy(addr [20]byte) (rights.PolicyContract, bool) {
	r.mu.RLock()
	endpoint, ok := r.policies[addr]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return &remotePolicy{remote: remote{client: r.client, base: endpoint}}, true
}

// ResolveDistributor returns the remote distributor contract bound to the
// address.
func (r *Resolver) ResolveDistributor(addr [20]byte) (rights.DistributorContract, bool) {
	r.mu.RLock()
	endpoint, ok := r.distributors[addr]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return &remoteDistributor{remote: remote{client: r.client, base: endpoint}}, true
}

type remote struct {
	client *http.Client
	base   string
}

func (r remote) get(path string, out interface{}) error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.base+path, nil)
	if err != nil {
		return err
	}
	return r.do(req, out)
}

func (r remote) post(path string, in, out interface{}) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.base+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return r.do(req, out)
}

func (r remote) do(req *http.Request, out interface{}) error {
	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("policyhook: endpoint returned %s", resp.Status)
	}
	return json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(out)
}

type capabilityResponse struct {
	Capability string `json:"capability"`
}

type payoutRequest struct {
	ContentID string `json:"contentId"`
	Account   string `json:"account"`
}

type payoutSplit struct {
	Target string `json:"target"`
	Bps    uint32 `json:"bps"`
}

type payoutResponse struct {
	Amount   *big.Int      `json:"amount"`
	Currency string        `json:"currency"`
	Splits   []payoutSplit `json:"splits"`
}

type accessRequest struct {
	Account   string `json:"account"`
	ContentID string `json:"contentId"`
}

type accessResponse struct {
	Granted bool `json:"granted"`
}

type negotiateRequest struct {
	Total        *big.Int `json:"total"`
	Currency     string   `json:"currency"`
	CustodyCount uint64   `json:"custodyCount"`
}

type negotiateResponse struct {
	Share *big.Int `json:"share"`
}

type managerResponse struct {
	Manager string `json:"manager"`
}

type remotePolicy struct {
	remote
}

// Capability answers the engine's trust probe. Any transport failure reads as
// an empty capability, which the engine rejects.
func (p *remotePolicy) Capability() string {
	var resp capabilityResponse
	if err := p.get("/capability", &resp); err != nil {
		return ""
	}
	return resp.Capability
}

func (p *remotePolicy) Payouts(contentID [32]byte, account [20]byte) (*rights.Payout, error) {
	var resp payoutResponse
	req := payoutRequest{ContentID: types.HexHash(contentID), Account: types.HexAddress(account)}
	if err := p.post("/payouts", req, &resp); err != nil {
		return nil, err
	}
	currency, err := types.ParseAddress(resp.Currency)
	if err != nil {
		return nil, fmt.Errorf("policyhook: payout currency: %w", err)
	}
	payout := &rights.Payout{Amount: resp.Amount, Currency: currency}
	for _, split := range resp.Splits {
		target, err := types.ParseAddress(split.Target)
		if err != nil {
			return nil, fmt.Errorf("policyhook: split target: %w", err)
		}
		payout.Splits = append(payout.Splits, rights.Split{Target: target, Bps: split.Bps})
	}
	return payout, nil
}

func (p *remotePolicy) IsAccessGranted(account [20]byte, contentID [32]byte) (bool, error) {
	var resp accessResponse
	req := accessRequest{Account: types.HexAddress(account), ContentID: types.HexHash(contentID)}
	if err := p.post("/access", req, &resp); err != nil {
		return false, err
	}
	return resp.Granted, nil
}

type remoteDistributor struct {
	remote
}

func (d *remoteDistributor) Capability() string {
	var resp capabilityResponse
	if err := d.get("/capability", &resp); err != nil {
		return ""
	}
	return resp.Capability
}

// Manager returns the remote distributor's payout beneficiary. A transport
// failure reads as the zero address, which never accumulates a ledger entry
// because the engine credits shares only after a successful negotiation.
func (d *remoteDistributor) Manager() [20]byte {
	var resp managerResponse
	if err := d.get("/manager", &resp); err != nil {
		return [20]byte{}
	}
	manager, err := types.ParseAddress(resp.Manager)
	if err != nil {
		return [20]byte{}
	}
	return manager
}

func (d *remoteDistributor) Negotiate(total *big.Int, currency [20]byte, custodyCount uint64) (*big.Int, error) {
	var resp negotiateResponse
	req := negotiateRequest{Total: total, Currency: types.HexAddress(currency), CustodyCount: custodyCount}
	if err := d.post("/negotiate", req, &resp); err != nil {
		return nil, err
	}
	return resp.Share, nil
}
