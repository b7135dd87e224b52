package routes

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"droughtcover/core"
	"droughtcover/crypto"
	gwconfig "droughtcover/gateway/config"
	"droughtcover/gateway/middleware"
	"droughtcover/native/cover"
)

// New assembles the read-only gateway: policy and balance queries, health and
// prometheus endpoints. All routes are side-effect free; mutations go through
// the JSON-RPC surface.
func New(node *core.Node, cfg gwconfig.Config) http.Handler {
	auth := middleware.NewAuthenticator(middleware.AuthConfig{
		Enabled:    cfg.Auth.Enabled,
		HMACSecret: cfg.Auth.HMACSecret,
		Issuer:     cfg.Auth.Issuer,
		Audience:   cfg.Auth.Audience,
		ClockSkew:  cfg.ClockSkew.Duration,
	}, nil)

	limits := make(map[string]middleware.RateLimit, len(cfg.RateLimits))
	for key, limit := range cfg.RateLimits {
		limits[key] = middleware.RateLimit{
			RequestsPerMinute: limit.RequestsPerMinute,
			Burst:             limit.Burst,
		}
	}
	limiter := middleware.NewRateLimiter(limits, nil)

	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(v1 chi.Router) {
		v1.Use(auth.Middleware())

		v1.With(limiter.Middleware("policies")).Get("/policies", func(w http.ResponseWriter, req *http.Request) {
			policies := node.ListPolicies()
			out := make(map[string]policyView, len(policies))
			for _, p := range policies {
				out[p.ID] = toPolicyView(p)
			}
			writeJSON(w, http.StatusOK, out)
		})

		v1.With(limiter.Middleware("policies")).Get("/policies/{id}", func(w http.ResponseWriter, req *http.Request) {
			policy, err := node.GetPolicy(chi.URLParam(req, "id"))
			if err != nil {
				if errors.Is(err, cover.ErrPolicyNotFound) {
					writeJSON(w, http.StatusNotFound, errorView{Error: "policy not found"})
					return
				}
				writeJSON(w, http.StatusInternalServerError, errorView{Error: err.Error()})
				return
			}
			writeJSON(w, http.StatusOK, toPolicyView(policy))
		})

		v1.With(limiter.Middleware("balances")).Get("/balances/{address}", func(w http.ResponseWriter, req *http.Request) {
			addr, err := crypto.DecodeAddress(chi.URLParam(req, "address"))
			if err != nil {
				writeJSON(w, http.StatusBadRequest, errorView{Error: "invalid address"})
				return
			}
			balance := node.WithdrawableBalance(addr.Array())
			writeJSON(w, http.StatusOK, balanceView{
				Address: addr.String(),
				Balance: balance.String(),
			})
		})
	})

	return r
}

type errorView struct {
	Error string `json:"error"`
}

type balanceView struct {
	Address string `json:"address"`
	Balance string `json:"balance"`
}

type sourceView struct {
	URL       string `json:"url"`
	ValueMM   string `json:"valueMm"`
	AuditHash string `json:"auditHash"`
}

type policyView struct {
	ID                  string     `json:"id"`
	Buyer               string     `json:"buyer"`
	Provider            string     `json:"provider"`
	Region              string     `json:"region"`
	StartDate           string     `json:"startDate"`
	EndDate             string     `json:"endDate"`
	Metric              string     `json:"metric"`
	TriggerOperator     string     `json:"triggerOperator"`
	ThresholdMM         int64      `json:"thresholdMm"`
	PayoutAmount        string     `json:"payoutAmount"`
	PremiumAmount       string     `json:"premiumAmount"`
	CollateralAmount    string     `json:"collateralAmount"`
	PremiumPaid         bool       `json:"premiumPaid"`
	Status              string     `json:"status"`
	SourceA             sourceView `json:"sourceA"`
	SourceB             sourceView `json:"sourceB"`
	SettlementResult    string     `json:"settlementResult"`
	SettlementProofHash string     `json:"settlementProofHash"`
	DecisionReason      string     `json:"decisionReason"`
}

func toPolicyView(p *cover.Policy) policyView {
	return policyView{
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
		Status:           p.Status.String(),
		SourceA:          sourceView(p.SourceA),
		SourceB:          sourceView(p.SourceB),
		SettlementResult: p.SettlementResult.String(),
		SettlementProofHash: p.SettlementProofHash,
		DecisionReason:      p.DecisionReason,
	}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
