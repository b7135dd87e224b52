package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"

	"droughtcover/crypto"
	"droughtcover/native/cover"
)

const (
	codeCoverInvalidParams  = -32061
	codeCoverNotFound       = -32062
	codeCoverForbidden      = -32063
	codeCoverInvalidState   = -32064
	codeCoverUnsupportedOp  = -32065
	codeCoverSourcesDiverge = -32066
	codeCoverOracleFailure  = -32067
)

type createPolicyOfferParams struct {
	Caller           string `json:"caller"`
	PolicyID         string `json:"policyId"`
	Buyer            string `json:"buyer,omitempty"`
	Region           string `json:"region"`
	StartDate        string `json:"startDate"`
	EndDate          string `json:"endDate"`
	ThresholdMM      int64  `json:"thresholdMm"`
	PayoutAmount     string `json:"payoutAmount"`
	PremiumAmount    string `json:"premiumAmount"`
	CollateralAmount string `json:"collateralAmount"`
}

type payPremiumParams struct {
	Caller   string `json:"caller"`
	PolicyID string `json:"policyId"`
	Amount   string `json:"amount"`
}

type cancelPolicyParams struct {
	Caller   string `json:"caller"`
	PolicyID string `json:"policyId"`
}

type settlePolicyParams struct {
	Caller      string `json:"caller"`
	PolicyID    string `json:"policyId"`
	Result      bool   `json:"result"`
	ProofHash   string `json:"proofHash"`
	Reason      string `json:"reason"`
	CurrentDate string `json:"currentDate"`
}

type verifySettleParams struct {
	Caller      string `json:"caller"`
	PolicyID    string `json:"policyId"`
	SourceAURL  string `json:"sourceAUrl"`
	SourceBURL  string `json:"sourceBUrl"`
	ToleranceMM int64  `json:"toleranceMm"`
	CurrentDate string `json:"currentDate"`
}

type resolveValuesParams struct {
	Caller      string `json:"caller"`
	PolicyID    string `json:"policyId"`
	SourceAMM   int64  `json:"sourceAMm"`
	SourceBMM   int64  `json:"sourceBMm"`
	ToleranceMM int64  `json:"toleranceMm"`
	CurrentDate string `json:"currentDate"`
}

type policyIDParams struct {
	ID string `json:"id"`
}

type balanceParams struct {
	Address string `json:"address"`
}

type sourceReadingJSON struct {
	URL       string `json:"url"`
	ValueMM   string `json:"valueMm"`
	AuditHash string `json:"auditHash"`
}

type policyJSON struct {
	ID                  string            `json:"id"`
	Buyer               string            `json:"buyer"`
	Provider            string            `json:"provider"`
	Region              string            `json:"region"`
	StartDate           string            `json:"startDate"`
	EndDate             string            `json:"endDate"`
	Metric              string            `json:"metric"`
	TriggerOperator     string            `json:"triggerOperator"`
	ThresholdMM         int64             `json:"thresholdMm"`
	PayoutAmount        string            `json:"payoutAmount"`
	PremiumAmount       string            `json:"premiumAmount"`
	CollateralAmount    string            `json:"collateralAmount"`
	PremiumPaid         bool              `json:"premiumPaid"`
	PremiumPayer        string            `json:"premiumPayer"`
	Status              string            `json:"status"`
	SourceA             sourceReadingJSON `json:"sourceA"`
	SourceB             sourceReadingJSON `json:"sourceB"`
	ResolvedBy          string            `json:"resolvedBy"`
	SettlementResult    string            `json:"settlementResult"`
	SettlementProofHash string            `json:"settlementProofHash"`
	DecisionReason      string            `json:"decisionReason"`
}

type balanceResult struct {
	Address string `json:"address"`
	Balance string `json:"balance"`
}

func policyToJSON(p *cover.Policy) policyJSON {
	return policyJSON{
		ID:               p.ID,
		Buyer:            crypto.FromBytes20(p.Buyer).String(),
		Provider:         crypto.FromBytes20(p.Provider).String(),
		Region:           p.Region,
		StartDate:        p.StartDate,
		EndDate:          p.EndDate,
		Metric:           p.Metric,
		TriggerOperator:  p.TriggerOperator,
		ThresholdMM:      p.ThresholdMM,
		PayoutAmount:     p.PayoutAmount.String(),
		PremiumAmount:    p.PremiumAmount.String(),
		CollateralAmount: p.CollateralAmount.String(),
		PremiumPaid:      p.PremiumPaid,
		PremiumPayer:     p.PremiumPayer,
		Status:           p.Status.String(),
		SourceA:          sourceReadingJSON(p.SourceA),
		SourceB:          sourceReadingJSON(p.SourceB),
		ResolvedBy:       p.ResolvedBy,
		SettlementResult: p.SettlementResult.String(),
		SettlementProofHash: p.SettlementProofHash,
		DecisionReason:      p.DecisionReason,
	}
}

func decodeParams(req *RPCRequest, out interface{}) error {
	if len(req.Params) != 1 {
		return fmt.Errorf("exactly one parameter object expected")
	}
	return json.Unmarshal(req.Params[0], out)
}

func parseCallerAddress(value string) ([20]byte, error) {
	addr, err := crypto.DecodeAddress(strings.TrimSpace(value))
	if err != nil {
		return [20]byte{}, fmt.Errorf("invalid address: %w", err)
	}
	return addr.Array(), nil
}

func parsePositiveBigInt(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, fmt.Errorf("amount required")
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount: %s", value)
	}
	if amount.Sign() <= 0 {
		return nil, fmt.Errorf("amount must be positive")
	}
	return amount, nil
}

// writeCoverError maps the engine's error taxonomy onto JSON-RPC codes.
func writeCoverError(w http.ResponseWriter, id interface{}, err error) {
	switch {
	case errors.Is(err, cover.ErrPolicyNotFound):
		writeError(w, http.StatusNotFound, id, codeCoverNotFound, "not_found", err.Error())
	case errors.Is(err, cover.ErrUnauthorized):
		writeError(w, http.StatusForbidden, id, codeCoverForbidden, "forbidden", err.Error())
	case errors.Is(err, cover.ErrInvalidState):
		writeError(w, http.StatusConflict, id, codeCoverInvalidState, "invalid_state", err.Error())
	case errors.Is(err, cover.ErrUnsupportedOperator):
		writeError(w, http.StatusBadRequest, id, codeCoverUnsupportedOp, "unsupported_operator", err.Error())
	case errors.Is(err, cover.ErrSourcesDisagree):
		writeError(w, http.StatusConflict, id, codeCoverSourcesDiverge, "sources_disagree", err.Error())
	case errors.Is(err, cover.ErrOracleFailure):
		writeError(w, http.StatusBadGateway, id, codeCoverOracleFailure, "oracle_failure", err.Error())
	case errors.Is(err, cover.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, id, codeCoverInvalidParams, "invalid_params", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, id, codeServerError, "internal_error", err.Error())
	}
}

func (s *Server) handleCreatePolicyOffer(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params createPolicyOfferParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeCoverInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseCallerAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeCoverInvalidParams, "invalid_params", err.Error())
		return
	}
	var buyer [20]byte
	if strings.TrimSpace(params.Buyer) != "" {
		buyer, err = parseCallerAddress(params.Buyer)
		if err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeCoverInvalidParams, "invalid_params", err.Error())
			return
		}
	}
	payout, err := parsePositiveBigInt(params.PayoutAmount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeCoverInvalidParams, "invalid_params", err.Error())
		return
	}
	premium, err := parsePositiveBigInt(params.PremiumAmount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeCoverInvalidParams, "invalid_params", err.Error())
		return
	}
	collateral, err := parsePositiveBigInt(params.CollateralAmount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeCoverInvalidParams, "invalid_params", err.Error())
		return
	}
	policy, err := s.node.CreatePolicyOffer(caller, cover.CreateOfferParams{
		PolicyID:         params.PolicyID,
		Buyer:            buyer,
		Region:           params.Region,
		StartDate:        params.StartDate,
		EndDate:          params.EndDate,
		ThresholdMM:      params.ThresholdMM,
		PayoutAmount:     payout,
		PremiumAmount:    premium,
		CollateralAmount: collateral,
	})
	if err != nil {
		writeCoverError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, policyToJSON(policy))
}

func (s *Server) handlePayPremium(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params payPremiumParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeCoverInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseCallerAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeCoverInvalidParams, "invalid_params", err.Error())
		return
	}
	amount, err := parsePositiveBigInt(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeCoverInvalidParams, "invalid_params", err.Error())
		return
	}
	policy, err := s.node.PayPremium(caller, params.PolicyID, amount)
	if err != nil {
		writeCoverError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, policyToJSON(policy))
}

func (s *Server) handlePayPremiumForBuyer(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params payPremiumParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeCoverInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseCallerAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeCoverInvalidParams, "invalid_params", err.Error())
		return
	}
	amount, err := parsePositiveBigInt(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeCoverInvalidParams, "invalid_params", err.Error())
		return
	}
	policy, err := s.node.PayPremiumForBuyer(caller, params.PolicyID, amount)
	if err != nil {
		writeCoverError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, policyToJSON(policy))
}

func (s *Server) handleCancelPolicy(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params cancelPolicyParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeCoverInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseCallerAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeCoverInvalidParams, "invalid_params", err.Error())
		return
	}
	policy, err := s.node.CancelPolicy(caller, params.PolicyID)
	if err != nil {
		writeCoverError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, policyToJSON(policy))
}

func (s *Server) handleSettlePolicy(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params settlePolicyParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeCoverInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseCallerAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeCoverInvalidParams, "invalid_params", err.Error())
		return
	}
	policy, err := s.node.SettlePolicy(caller, params.PolicyID, params.Result, params.ProofHash, params.Reason, params.CurrentDate)
	if err != nil {
		writeCoverError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, policyToJSON(policy))
}

func (s *Server) handleVerifyAndSettlePolicy(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params verifySettleParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeCoverInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseCallerAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeCoverInvalidParams, "invalid_params", err.Error())
		return
	}
	policy, err := s.node.VerifyAndSettlePolicy(r.Context(), caller, params.PolicyID, params.SourceAURL, params.SourceBURL, params.ToleranceMM, params.CurrentDate)
	if err != nil {
		writeCoverError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, policyToJSON(policy))
}

func (s *Server) handleResolvePolicyWithValues(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params resolveValuesParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeCoverInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseCallerAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeCoverInvalidParams, "invalid_params", err.Error())
		return
	}
	policy, err := s.node.ResolvePolicyWithValues(caller, params.PolicyID, params.SourceAMM, params.SourceBMM, params.ToleranceMM, params.CurrentDate)
	if err != nil {
		writeCoverError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, policyToJSON(policy))
}

func (s *Server) handleGetPolicy(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params policyIDParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeCoverInvalidParams, "invalid_params", err.Error())
		return
	}
	policy, err := s.node.GetPolicy(params.ID)
	if err != nil {
		writeCoverError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, policyToJSON(policy))
}

func (s *Server) handleListPolicies(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	policies := s.node.ListPolicies()
	out := make(map[string]policyJSON, len(policies))
	for _, p := range policies {
		out[p.ID] = policyToJSON(p)
	}
	writeResult(w, req.ID, out)
}

func (s *Server) handleGetWithdrawableBalance(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params balanceParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeCoverInvalidParams, "invalid_params", err.Error())
		return
	}
	addr, err := parseCallerAddress(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeCoverInvalidParams, "invalid_params", err.Error())
		return
	}
	balance := s.node.WithdrawableBalance(addr)
	writeResult(w, req.ID, balanceResult{
		Address: crypto.FromBytes20(addr).String(),
		Balance: balance.String(),
	})
}
