package rpc

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"strings"

	"github.com/SynapseMedia/protocol-core-v1/core/types"
	"github.com/SynapseMedia/protocol-core-v1/native/rights"
)

func decodeParams(req *RPCRequest, out interface{}) error {
	if len(req.Params) == 0 {
		return fmt.Errorf("params required")
	}
	return json.Unmarshal(req.Params, out)
}

func parseAmount(raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("amount required")
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", raw)
	}
	return amount, nil
}

type splitResultJSON struct {
	Target string `json:"target"`
	Amount string `json:"amount"`
}

type settlementJSON struct {
	ContentID        string            `json:"contentId"`
	Account          string            `json:"account"`
	Policy           string            `json:"policy"`
	Holder           string            `json:"holder"`
	Distributor      string            `json:"distributor"`
	Currency         string            `json:"currency"`
	Total            string            `json:"total"`
	TreasuryCut      string            `json:"treasuryCut"`
	DistributorShare string            `json:"distributorShare"`
	Splits           []splitResultJSON `json:"splits"`
	HolderRemainder  string            `json:"holderRemainder"`
}

func renderSettlement(s *rights.Settlement) settlementJSON {
	out := settlementJSON{
		ContentID:        types.HexHash(s.ContentID),
		Account:          types.HexAddress(s.Account),
		Policy:           types.HexAddress(s.Policy),
		Holder:           types.HexAddress(s.Holder),
		Distributor:      types.HexAddress(s.Distributor),
		Currency:         types.HexAddress(s.Currency),
		Total:            s.Total.String(),
		TreasuryCut:      s.TreasuryCut.String(),
		DistributorShare: s.DistributorShare.String(),
		HolderRemainder:  s.HolderRemainder.String(),
	}
	for _, split := range s.Splits {
		out.Splits = append(out.Splits, splitResultJSON{
			Target: types.HexAddress(split.Target),
			Amount: split.Amount.String(),
		})
	}
	return out
}

func (s *Server) handleGrantAccess(w http.ResponseWriter, req *RPCRequest, logger *slog.Logger) string {
	var params struct {
		Caller    string `json:"caller"`
		ContentID string `json:"contentId"`
		Account   string `json:"account"`
		Attached  string `json:"attached"`
	}
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid params", err.Error())
		return "invalid_params"
	}
	caller, err := types.ParseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller", err.Error())
		return "invalid_params"
	}
	contentID, err := types.ParseHash(params.ContentID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid contentId", err.Error())
		return "invalid_params"
	}
	account, err := types.ParseAddress(params.Account)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid account", err.Error())
		return "invalid_params"
	}
	attached := big.NewInt(0)
	if strings.TrimSpace(params.Attached) != "" {
		if attached, err = parseAmount(params.Attached); err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid attached value", err.Error())
			return "invalid_params"
		}
	}

	settlement, err := s.engine.GrantAccess(caller, contentID, account, attached)
	if err != nil {
		logger.Warn("grant access failed", "error", err)
		s.metrics.ObserveSettlement("failed", "", 0)
		status, code := errorStatus(err)
		writeError(w, status, req.ID, code, err.Error(), nil)
		return "error"
	}
	total, _ := new(big.Float).SetInt(settlement.Total).Float64()
	s.metrics.ObserveSettlement("settled", types.HexAddress(settlement.Currency), total)
	logger.Info("access granted",
		"contentId", types.HexHash(settlement.ContentID),
		"account", types.HexAddress(settlement.Account),
		"total", settlement.Total.String())
	writeResult(w, req.ID, renderSettlement(settlement))
	return "ok"
}

func (s *Server) handleGrantCustody(w http.ResponseWriter, req *RPCRequest, logger *slog.Logger) string {
	var params struct {
		Caller      string `json:"caller"`
		ContentID   string `json:"contentId"`
		Distributor string `json:"distributor"`
	}
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid params", err.Error())
		return "invalid_params"
	}
	caller, err := types.ParseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller", err.Error())
		return "invalid_params"
	}
	contentID, err := types.ParseHash(params.ContentID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid contentId", err.Error())
		return "invalid_params"
	}
	distributor, err := types.ParseAddress(params.Distributor)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid distributor", err.Error())
		return "invalid_params"
	}

	previous, err := s.engine.GrantCustody(caller, contentID, distributor)
	if err != nil {
		logger.Warn("grant custody failed", "error", err)
		status, code := errorStatus(err)
		writeError(w, status, req.ID, code, err.Error(), nil)
		return "error"
	}
	writeResult(w, req.ID, map[string]string{
		"previous":    types.HexAddress(previous),
		"distributor": types.HexAddress(distributor),
	})
	return "ok"
}

func (s *Server) handleAuthorizePolicy(w http.ResponseWriter, req *RPCRequest) string {
	holder, policy, status := s.parseDelegation(w, req)
	if status != "" {
		return status
	}
	if err := s.engine.AuthorizePolicy(holder, policy); err != nil {
		httpStatus, code := errorStatus(err)
		writeError(w, httpStatus, req.ID, code, err.Error(), nil)
		return "error"
	}
	writeResult(w, req.ID, map[string]bool{"authorized": true})
	return "ok"
}

func (s *Server) handleRevokePolicy(w http.ResponseWriter, req *RPCRequest) string {
	holder, policy, status := s.parseDelegation(w, req)
	if status != "" {
		return status
	}
	if err := s.engine.RevokePolicy(holder, policy); err != nil {
		httpStatus, code := errorStatus(err)
		writeError(w, httpStatus, req.ID, code, err.Error(), nil)
		return "error"
	}
	writeResult(w, req.ID, map[string]bool{"revoked": true})
	return "ok"
}

func (s *Server) handleIsPolicyAuthorized(w http.ResponseWriter, req *RPCRequest) string {
	holder, policy, status := s.parseDelegation(w, req)
	if status != "" {
		return status
	}
	authorized, err := s.engine.IsPolicyAuthorized(holder, policy)
	if err != nil {
		httpStatus, code := errorStatus(err)
		writeError(w, httpStatus, req.ID, code, err.Error(), nil)
		return "error"
	}
	writeResult(w, req.ID, map[string]bool{"authorized": authorized})
	return "ok"
}

func (s *Server) parseDelegation(w http.ResponseWriter, req *RPCRequest) ([20]byte, [20]byte, string) {
	var params struct {
		Holder string `json:"holder"`
		Policy string `json:"policy"`
	}
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid params", err.Error())
		return [20]byte{}, [20]byte{}, "invalid_params"
	}
	holder, err := types.ParseAddress(params.Holder)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid holder", err.Error())
		return [20]byte{}, [20]byte{}, "invalid_params"
	}
	policy, err := types.ParseAddress(params.Policy)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid policy", err.Error())
		return [20]byte{}, [20]byte{}, "invalid_params"
	}
	return holder, policy, ""
}

func (s *Server) handleSetFees(w http.ResponseWriter, req *RPCRequest, logger *slog.Logger) string {
	var params struct {
		Caller   string `json:"caller"`
		Currency string `json:"currency"`
		FeeBps   uint32 `json:"feeBps"`
	}
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid params", err.Error())
		return "invalid_params"
	}
	caller, err := types.ParseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller", err.Error())
		return "invalid_params"
	}
	currency, err := types.ParseAddress(params.Currency)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid currency", err.Error())
		return "invalid_params"
	}
	if err := s.engine.SetFees(caller, currency, params.FeeBps); err != nil {
		logger.Warn("set fees failed", "error", err)
		status, code := errorStatus(err)
		writeError(w, status, req.ID, code, err.Error(), nil)
		return "error"
	}
	writeResult(w, req.ID, map[string]interface{}{
		"currency": types.HexAddress(currency),
		"feeBps":   params.FeeBps,
	})
	return "ok"
}

func (s *Server) handleWithdraw(w http.ResponseWriter, req *RPCRequest, logger *slog.Logger) string {
	var params struct {
		Caller   string `json:"caller"`
		Currency string `json:"currency"`
		Amount   string `json:"amount"`
	}
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid params", err.Error())
		return "invalid_params"
	}
	caller, err := types.ParseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller", err.Error())
		return "invalid_params"
	}
	currency, err := types.ParseAddress(params.Currency)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid currency", err.Error())
		return "invalid_params"
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid amount", err.Error())
		return "invalid_params"
	}
	if err := s.engine.Withdraw(caller, currency, amount); err != nil {
		logger.Warn("withdraw failed", "error", err)
		status, code := errorStatus(err)
		writeError(w, status, req.ID, code, err.Error(), nil)
		return "error"
	}
	s.metrics.ObserveWithdrawal()
	writeResult(w, req.ID, map[string]string{
		"beneficiary": types.HexAddress(caller),
		"amount":      amount.String(),
	})
	return "ok"
}

func (s *Server) handleDisburse(w http.ResponseWriter, req *RPCRequest, logger *slog.Logger) string {
	var params struct {
		Caller   string `json:"caller"`
		Currency string `json:"currency"`
		Amount   string `json:"amount"`
	}
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid params", err.Error())
		return "invalid_params"
	}
	caller, err := types.ParseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller", err.Error())
		return "invalid_params"
	}
	currency, err := types.ParseAddress(params.Currency)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid currency", err.Error())
		return "invalid_params"
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid amount", err.Error())
		return "invalid_params"
	}
	if err := s.engine.Disburse(caller, currency, amount); err != nil {
		logger.Warn("disburse failed", "error", err)
		status, code := errorStatus(err)
		writeError(w, status, req.ID, code, err.Error(), nil)
		return "error"
	}
	s.metrics.ObserveDisbursement()
	writeResult(w, req.ID, map[string]string{"amount": amount.String()})
	return "ok"
}

func (s *Server) handleIsEligible(w http.ResponseWriter, req *RPCRequest) string {
	var params struct {
		ContentID string `json:"contentId"`
	}
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid params", err.Error())
		return "invalid_params"
	}
	contentID, err := types.ParseHash(params.ContentID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid contentId", err.Error())
		return "invalid_params"
	}
	eligible, err := s.engine.IsEligibleForDistribution(contentID)
	if err != nil {
		status, code := errorStatus(err)
		writeError(w, status, req.ID, code, err.Error(), nil)
		return "error"
	}
	writeResult(w, req.ID, map[string]bool{"eligible": eligible})
	return "ok"
}

func (s *Server) handleBalanceOf(w http.ResponseWriter, req *RPCRequest) string {
	var params struct {
		Beneficiary string `json:"beneficiary"`
		Currency    string `json:"currency"`
	}
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid params", err.Error())
		return "invalid_params"
	}
	beneficiary, err := types.ParseAddress(params.Beneficiary)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid beneficiary", err.Error())
		return "invalid_params"
	}
	currency, err := types.ParseAddress(params.Currency)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid currency", err.Error())
		return "invalid_params"
	}
	balance, err := s.engine.BalanceOf(beneficiary, currency)
	if err != nil {
		status, code := errorStatus(err)
		writeError(w, status, req.ID, code, err.Error(), nil)
		return "error"
	}
	writeResult(w, req.ID, map[string]string{
		"beneficiary": types.HexAddress(beneficiary),
		"currency":    types.HexAddress(currency),
		"balance":     balance.String(),
	})
	return "ok"
}

func (s *Server) handleFeesAccrued(w http.ResponseWriter, req *RPCRequest) string {
	var params struct {
		Currency string `json:"currency"`
	}
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid params", err.Error())
		return "invalid_params"
	}
	currency, err := types.ParseAddress(params.Currency)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid currency", err.Error())
		return "invalid_params"
	}
	accrued, err := s.engine.FeesAccrued(currency)
	if err != nil {
		status, code := errorStatus(err)
		writeError(w, status, req.ID, code, err.Error(), nil)
		return "error"
	}
	writeResult(w, req.ID, map[string]string{
		"currency": types.HexAddress(currency),
		"accrued":  accrued.String(),
	})
	return "ok"
}

func (s *Server) handleCustodianOf(w http.ResponseWriter, req *RPCRequest) string {
	var params struct {
		ContentID string `json:"contentId"`
	}
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid params", err.Error())
		return "invalid_params"
	}
	contentID, err := types.ParseHash(params.ContentID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid contentId", err.Error())
		return "invalid_params"
	}
	custodian, ok, err := s.engine.CustodianOf(contentID)
	if err != nil {
		status, code := errorStatus(err)
		writeError(w, status, req.ID, code, err.Error(), nil)
		return "error"
	}
	writeResult(w, req.ID, map[string]interface{}{
		"custodian": types.HexAddress(custodian),
		"assigned":  ok,
	})
	return "ok"
}

func (s *Server) handleLookupFee(w http.ResponseWriter, req *RPCRequest) string {
	var params struct {
		Currency string `json:"currency"`
	}
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid params", err.Error())
		return "invalid_params"
	}
	currency, err := types.ParseAddress(params.Currency)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid currency", err.Error())
		return "invalid_params"
	}
	bps, configured, err := s.engine.LookupFee(currency)
	if err != nil {
		status, code := errorStatus(err)
		writeError(w, status, req.ID, code, err.Error(), nil)
		return "error"
	}
	writeResult(w, req.ID, map[string]interface{}{
		"currency":   types.HexAddress(currency),
		"feeBps":     bps,
		"configured": configured,
	})
	return "ok"
}

type eventJSON struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

func (s *Server) handleRecentEvents(w http.ResponseWriter, req *RPCRequest) string {
	if s.recorder == nil {
		writeResult(w, req.ID, []eventJSON{})
		return "ok"
	}
	recorded := s.recorder.List()
	out := make([]eventJSON, 0, len(recorded))
	for _, evt := range recorded {
		entry := eventJSON{Type: evt.EventType()}
		if payload, ok := evt.(interface{ Event() *types.Event }); ok {
			if raw := payload.Event(); raw != nil {
				entry.Attributes = raw.Attributes
			}
		}
		out = append(out, entry)
	}
	writeResult(w, req.ID, out)
	return "ok"
}

func (s *Server) handleIsAccessGranted(w http.ResponseWriter, req *RPCRequest) string {
	var params struct {
		Account   string `json:"account"`
		ContentID string `json:"contentId"`
	}
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid params", err.Error())
		return "invalid_params"
	}
	account, err := types.ParseAddress(params.Account)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid account", err.Error())
		return "invalid_params"
	}
	contentID, err := types.ParseHash(params.ContentID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid contentId", err.Error())
		return "invalid_params"
	}
	granted, err := s.engine.IsAccessGranted(account, contentID)
	if err != nil {
		status, code := errorStatus(err)
		writeError(w, status, req.ID, code, err.Error(), nil)
		return "error"
	}
	writeResult(w, req.ID, map[string]bool{"granted": granted})
	return "ok"
}
