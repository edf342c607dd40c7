package policyhook

import (
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/SynapseMedia/protocol-core-v1/core/types"
	"github.com/SynapseMedia/protocol-core-v1/native/rights"
)

func testAddr(last byte) [20]byte {
	var out [20]byte
	out[19] = last
	return out
}

func TestResolverUnknownAddress(t *testing.T) {
	resolver := NewResolver()
	if _, ok := resolver.ResolvePolicy(testAddr(0x01)); ok {
		t.Fatalf("expected unregistered policy to be unresolvable")
	}
	if _, ok := resolver.ResolveDistributor(testAddr(0x01)); ok {
		t.Fatalf("expected unregistered distributor to be unresolvable")
	}
}

func TestRemotePolicy(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/capability", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(capabilityResponse{Capability: rights.PolicyCapability})
	})
	mux.HandleFunc("/payouts", func(w http.ResponseWriter, r *http.Request) {
		var req payoutRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(payoutResponse{
			Amount:   big.NewInt(1000),
			Currency: types.HexAddress([20]byte{}),
			Splits:   []payoutSplit{{Target: types.HexAddress(testAddr(0x06)), Bps: 2000}},
		})
	})
	mux.HandleFunc("/access", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(accessResponse{Granted: true})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	resolver := NewResolver()
	resolver.RegisterPolicy(testAddr(0x03), server.URL)
	contract, ok := resolver.ResolvePolicy(testAddr(0x03))
	if !ok {
		t.Fatalf("expected registered policy to resolve")
	}
	if got := contract.Capability(); got != rights.PolicyCapability {
		t.Fatalf("unexpected capability: %q", got)
	}
	payout, err := contract.Payouts([32]byte{}, testAddr(0x02))
	if err != nil {
		t.Fatalf("payouts call failed: %v", err)
	}
	if payout.Amount.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("unexpected payout amount: %s", payout.Amount)
	}
	if len(payout.Splits) != 1 || payout.Splits[0].Bps != 2000 || payout.Splits[0].Target != testAddr(0x06) {
		t.Fatalf("unexpected splits: %+v", payout.Splits)
	}
	granted, err := contract.IsAccessGranted(testAddr(0x02), [32]byte{})
	if err != nil {
		t.Fatalf("access call failed: %v", err)
	}
	if !granted {
		t.Fatalf("expected access to be granted")
	}
}

func TestRemoteDistributor(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/capability", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(capabilityResponse{Capability: rights.DistributorCapability})
	})
	mux.HandleFunc("/manager", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(managerResponse{Manager: types.HexAddress(testAddr(0x05))})
	})
	mux.HandleFunc("/negotiate", func(w http.ResponseWriter, r *http.Request) {
		var req negotiateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if req.CustodyCount != 3 {
			http.Error(w, "unexpected custody count", http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(negotiateResponse{Share: big.NewInt(100)})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	resolver := NewResolver()
	resolver.RegisterDistributor(testAddr(0x04), server.URL)
	contract, ok := resolver.ResolveDistributor(testAddr(0x04))
	if !ok {
		t.Fatalf("expected registered distributor to resolve")
	}
	if got := contract.Capability(); got != rights.DistributorCapability {
		t.Fatalf("unexpected capability: %q", got)
	}
	if got := contract.Manager(); got != testAddr(0x05) {
		t.Fatalf("unexpected manager: %x", got)
	}
	share, err := contract.Negotiate(big.NewInt(1000), [20]byte{}, 3)
	if err != nil {
		t.Fatalf("negotiate call failed: %v", err)
	}
	if share.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("unexpected share: %s", share)
	}
}

func TestRemoteFailuresReadAsUntrusted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	resolver := NewResolver()
	resolver.RegisterPolicy(testAddr(0x03), server.URL)
	resolver.RegisterDistributor(testAddr(0x04), server.URL)

	policy, _ := resolver.ResolvePolicy(testAddr(0x03))
	if got := policy.Capability(); got != "" {
		t.Fatalf("expected failed probe to answer empty, got %q", got)
	}
	if _, err := policy.Payouts([32]byte{}, testAddr(0x02)); err == nil {
		t.Fatalf("expected payout failure to propagate")
	}
	distributor, _ := resolver.ResolveDistributor(testAddr(0x04))
	if got := distributor.Manager(); got != ([20]byte{}) {
		t.Fatalf("expected failed manager lookup to answer zero, got %x", got)
	}
	if _, err := distributor.Negotiate(big.NewInt(1), [20]byte{}, 0); err == nil {
		t.Fatalf("expected negotiate failure to propagate")
	}
}
