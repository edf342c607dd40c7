package rpc

import (
	"bytes"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/SynapseMedia/protocol-core-v1/core/events"
	"github.com/SynapseMedia/protocol-core-v1/core/state"
	"github.com/SynapseMedia/protocol-core-v1/core/types"
	"github.com/SynapseMedia/protocol-core-v1/native/bank"
	"github.com/SynapseMedia/protocol-core-v1/native/registry"
	"github.com/SynapseMedia/protocol-core-v1/native/rights"
	"github.com/SynapseMedia/protocol-core-v1/storage"
)

var (
	testHolder      = testAddr(0x01)
	testAccount     = testAddr(0x02)
	testPolicy      = testAddr(0x03)
	testDistributor = testAddr(0x04)
	testManager     = testAddr(0x05)
	testSplit       = testAddr(0x06)
	testGovernance  = testAddr(0xF0)
	testContent     = testHash(0x01)
)

func testAddr(last byte) [20]byte {
	var out [20]byte
	out[19] = last
	return out
}

func testHash(last byte) [32]byte {
	var out [32]byte
	out[31] = last
	return out
}

type stubPolicy struct{}

func (stubPolicy) Capability() string { return rights.PolicyCapability }

func (stubPolicy) Payouts(contentID [32]byte, account [20]byte) (*rights.Payout, error) {
	return &rights.Payout{
		Amount:   big.NewInt(1000),
		Currency: [20]byte{},
		Splits:   []rights.Split{{Target: testSplit, Bps: 2000}},
	}, nil
}

func (stubPolicy) IsAccessGranted(account [20]byte, contentID [32]byte) (bool, error) {
	return true, nil
}

type stubDistributor struct{}

func (stubDistributor) Capability() string { return rights.DistributorCapability }
func (stubDistributor) Manager() [20]byte  { return testManager }

func (stubDistributor) Negotiate(total *big.Int, currency [20]byte, custodyCount uint64) (*big.Int, error) {
	return big.NewInt(100), nil
}

type stubResolver struct{}

func (stubResolver) ResolvePolicy(addr [20]byte) (rights.PolicyContract, bool) {
	if addr == testPolicy {
		return stubPolicy{}, true
	}
	return nil, false
}

func (stubResolver) ResolveDistributor(addr [20]byte) (rights.DistributorContract, bool) {
	if addr == testDistributor {
		return stubDistributor{}, true
	}
	return nil, false
}

func newTestServer(t *testing.T) (*Server, *rights.Engine) {
	t.Helper()
	manager := state.NewManager(storage.NewMemDB())
	bankModule := bank.New(manager)
	reg := registry.New()
	reg.SetOwner(testContent, testHolder)
	reg.SetDistributorActive(testDistributor, true)
	reg.SetContentActive(testContent, true)
	reg.SetAudited(testPolicy, true)

	engine := rights.NewEngine()
	engine.SetState(manager)
	engine.SetBank(bankModule)
	engine.SetVaultAccount(testAddr(0xE0))
	engine.SetOwnership(reg.Ownership())
	engine.SetEnrollment(reg.Enrollment())
	engine.SetContentRegistry(reg.Contents())
	engine.SetAuditOracle(reg.Audit())
	engine.SetResolver(stubResolver{})
	engine.SetGovernance(testGovernance)
	engine.SetTreasury(testAddr(0xF1))

	require.NoError(t, engine.SetFees(testGovernance, [20]byte{}, 500))
	require.NoError(t, engine.AuthorizePolicy(testHolder, testPolicy))
	_, err := engine.GrantCustody(testHolder, testContent, testDistributor)
	require.NoError(t, err)
	require.NoError(t, bankModule.Mint(testPolicy, [20]byte{}, big.NewInt(1000)))

	return NewServer(engine), engine
}

func postRPC(t *testing.T, ts *httptest.Server, method string, params interface{}) (*http.Response, RPCResponse) {
	t.Helper()
	body := map[string]interface{}{
		"jsonrpc": jsonRPCVersion,
		"method":  method,
		"id":      1,
	}
	if params != nil {
		body["params"] = params
	}
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(ts.URL+"/rpc", "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	defer resp.Body.Close()
	var decoded RPCResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func TestHealthz(t *testing.T) {
	server, _ := newTestServer(t)
	ts := httptest.NewServer(server.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMethodNotFound(t *testing.T) {
	server, _ := newTestServer(t)
	ts := httptest.NewServer(server.Router())
	defer ts.Close()

	resp, decoded := postRPC(t, ts, "rights_noSuchMethod", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.NotNil(t, decoded.Error)
	require.Equal(t, codeMethodNotFound, decoded.Error.Code)
}

func TestGrantAccessOverRPC(t *testing.T) {
	server, engine := newTestServer(t)
	ts := httptest.NewServer(server.Router())
	defer ts.Close()

	resp, decoded := postRPC(t, ts, "rights_grantAccess", map[string]string{
		"caller":    types.HexAddress(testPolicy),
		"contentId": types.HexHash(testContent),
		"account":   types.HexAddress(testAccount),
		"attached":  "1000",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Nil(t, decoded.Error)

	encoded, err := json.Marshal(decoded.Result)
	require.NoError(t, err)
	var settlement settlementJSON
	require.NoError(t, json.Unmarshal(encoded, &settlement))
	require.Equal(t, "1000", settlement.Total)
	require.Equal(t, "50", settlement.TreasuryCut)
	require.Equal(t, "100", settlement.DistributorShare)
	require.Equal(t, "680", settlement.HolderRemainder)
	require.Len(t, settlement.Splits, 1)
	require.Equal(t, "170", settlement.Splits[0].Amount)

	balance, err := engine.BalanceOf(testHolder, [20]byte{})
	require.NoError(t, err)
	require.Equal(t, "680", balance.String())
}

func TestGrantAccessErrorsMapToCodes(t *testing.T) {
	server, engine := newTestServer(t)
	ts := httptest.NewServer(server.Router())
	defer ts.Close()

	require.NoError(t, engine.RevokePolicy(testHolder, testPolicy))
	resp, decoded := postRPC(t, ts, "rights_grantAccess", map[string]string{
		"caller":    types.HexAddress(testPolicy),
		"contentId": types.HexHash(testContent),
		"account":   types.HexAddress(testAccount),
		"attached":  "1000",
	})
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	require.NotNil(t, decoded.Error)
	require.Equal(t, codeServerError, decoded.Error.Code)
}

func TestInvalidParams(t *testing.T) {
	server, _ := newTestServer(t)
	ts := httptest.NewServer(server.Router())
	defer ts.Close()

	resp, decoded := postRPC(t, ts, "rights_balanceOf", map[string]string{
		"beneficiary": "nonsense",
		"currency":    types.HexAddress([20]byte{}),
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.NotNil(t, decoded.Error)
	require.Equal(t, codeInvalidParams, decoded.Error.Code)
}

func TestQueryMethods(t *testing.T) {
	server, _ := newTestServer(t)
	ts := httptest.NewServer(server.Router())
	defer ts.Close()

	_, decoded := postRPC(t, ts, "rights_isEligibleForDistribution", map[string]string{
		"contentId": types.HexHash(testContent),
	})
	require.Nil(t, decoded.Error)
	result, ok := decoded.Result.(map[string]interface{})
	require.True(t, ok)
	require.Equal(t, true, result["eligible"])

	_, decoded = postRPC(t, ts, "rights_lookupFee", map[string]string{
		"currency": types.HexAddress([20]byte{}),
	})
	require.Nil(t, decoded.Error)
	result, ok = decoded.Result.(map[string]interface{})
	require.True(t, ok)
	require.Equal(t, float64(500), result["feeBps"])
	require.Equal(t, true, result["configured"])

	_, decoded = postRPC(t, ts, "rights_custodianOf", map[string]string{
		"contentId": types.HexHash(testContent),
	})
	require.Nil(t, decoded.Error)
	result, ok = decoded.Result.(map[string]interface{})
	require.True(t, ok)
	require.Equal(t, types.HexAddress(testDistributor), result["custodian"])
}

func TestGovernanceAuthToken(t *testing.T) {
	t.Setenv("RIGHTS_RPC_TOKEN", "secret")
	server, _ := newTestServer(t)
	ts := httptest.NewServer(server.Router())
	defer ts.Close()

	resp, decoded := postRPC(t, ts, "rights_setFees", map[string]interface{}{
		"caller":   types.HexAddress(testGovernance),
		"currency": types.HexAddress([20]byte{}),
		"feeBps":   250,
	})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.NotNil(t, decoded.Error)
	require.Equal(t, codeUnauthorized, decoded.Error.Code)

	body, err := json.Marshal(map[string]interface{}{
		"jsonrpc": jsonRPCVersion,
		"method":  "rights_setFees",
		"id":      2,
		"params": map[string]interface{}{
			"caller":   types.HexAddress(testGovernance),
			"currency": types.HexAddress([20]byte{}),
			"feeBps":   250,
		},
	})
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, ts.URL+"/rpc", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer secret")
	authResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer authResp.Body.Close()
	require.Equal(t, http.StatusOK, authResp.StatusCode)
}

func TestRecentEvents(t *testing.T) {
	_, engine := newTestServer(t)
	recorder := events.NewRecorder(16)
	engine.SetEmitter(recorder)
	withEvents := NewServer(engine, WithEvents(recorder))
	ts := httptest.NewServer(withEvents.Router())
	defer ts.Close()

	_, granted := postRPC(t, ts, "rights_grantAccess", map[string]string{
		"caller":    types.HexAddress(testPolicy),
		"contentId": types.HexHash(testContent),
		"account":   types.HexAddress(testAccount),
		"attached":  "1000",
	})
	require.Nil(t, granted.Error)

	_, decoded := postRPC(t, ts, "rights_recentEvents", nil)
	require.Nil(t, decoded.Error)
	encoded, err := json.Marshal(decoded.Result)
	require.NoError(t, err)
	var recorded []eventJSON
	require.NoError(t, json.Unmarshal(encoded, &recorded))
	require.Len(t, recorded, 1)
	require.Equal(t, rights.EventTypeAccessGranted, recorded[0].Type)
	require.Equal(t, "1000", recorded[0].Attributes["total"])
}

func TestRateLimit(t *testing.T) {
	engineServer, _ := newTestServer(t)
	limited := NewServer(engineServer.engine, WithRateLimit(1, 1))
	ts := httptest.NewServer(limited.Router())
	defer ts.Close()

	_, first := postRPC(t, ts, "rights_lookupFee", map[string]string{
		"currency": types.HexAddress([20]byte{}),
	})
	require.Nil(t, first.Error)

	resp, decoded := postRPC(t, ts, "rights_lookupFee", map[string]string{
		"currency": types.HexAddress([20]byte{}),
	})
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	require.NotNil(t, decoded.Error)
	require.Equal(t, codeRateLimited, decoded.Error.Code)
}
