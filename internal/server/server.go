package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"escrowgate/internal/apikey"
	"escrowgate/internal/config"
	"escrowgate/internal/custodian"
	"escrowgate/internal/escrow"
	"escrowgate/internal/gateway"
	"escrowgate/internal/tokengate"
)

// Server exposes the gateway over HTTP.
type Server struct {
	cfg          *config.AppConfig
	orchestrator *gateway.Orchestrator
	ledger       *escrow.Ledger
	oracle       tokengate.Oracle
	auth         *apikey.Verifier
	metrics      *metricsRegistry
	logger       *zap.Logger
	httpServer   *http.Server
	dbHealthFn   func(context.Context) error
	rpcHealthFn  func(context.Context) error
}

func NewServer(cfg *config.AppConfig, orch *gateway.Orchestrator, ledger *escrow.Ledger, oracle tokengate.Oracle, store escrow.Store, logger *zap.Logger) *Server {
	s := &Server{
		cfg:          cfg,
		orchestrator: orch,
		ledger:       ledger,
		oracle:       oracle,
		auth:         &apikey.Verifier{Key: cfg.APIKey},
		metrics:      newMetricsRegistry(),
		logger:       logger,
	}

	if checker, ok := store.(interface{ Ping(context.Context) error }); ok {
		s.dbHealthFn = checker.Ping
	}
	if checker, ok := oracle.(interface{ Ping(context.Context) error }); ok {
		s.rpcHealthFn = checker.Ping
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", s.metrics.handler())
	r.Post("/api/web3/check", s.handleWeb3Check)

	r.Group(func(pr chi.Router) {
		pr.Use(s.auth.Middleware)
		pr.Post("/api/checkout", s.handleCheckout)
		pr.Post("/api/escrow/release/fee", s.handleReleaseFee)
		pr.Post("/api/escrow/release/product", s.handleReleaseProduct)
		pr.Get("/api/escrow/{code}", s.handleGetEscrow)
	})

	s.httpServer = &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Server.HTTPPort),
		Handler:           r,
		ReadHeaderTimeout: 15 * time.Second,
	}
	return s
}

func (s *Server) Start() error {
	s.logger.Info("API listening", zap.String("addr", s.httpServer.Addr))
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

type checkoutRequest struct {
	CardToken       string          `json:"card_token"`
	PaymentMethodID string          `json:"payment_method_id"`
	PayerEmail      string          `json:"payer_email"`
	PayerDocType    string          `json:"payer_doc_type"`
	PayerDocNumber  string          `json:"payer_doc_number"`
	ProductAmount   decimal.Decimal `json:"product_amount"`
	SupplierID      string          `json:"supplier_id"`
	Description     string          `json:"description"`
	WalletAddress   string          `json:"wallet_address"`
}

type checkoutOutcome struct {
	Success            bool   `json:"success"`
	Status             string `json:"status"`
	EscrowCode         string `json:"escrow_code,omitempty"`
	TransactionID      string `json:"transaction_id,omitempty"`
	Acquirer           string `json:"acquirer,omitempty"`
	CustodianConfirmed bool   `json:"custodian_confirmed"`
	Error              string `json:"error,omitempty"`
}

type checkoutAmounts struct {
	Product    string `json:"product"`
	Fee        string `json:"fee"`
	FeePercent string `json:"fee_percent"`
	Total      string `json:"total"`
	FeeReason  string `json:"fee_reason"`
}

type checkoutWeb3 struct {
	Verified    bool   `json:"verified"`
	TokenHolder bool   `json:"token_holder"`
	Balance     string `json:"balance,omitempty"`
}

type checkoutResponse struct {
	Checkout checkoutOutcome `json:"checkout"`
	Amounts  checkoutAmounts `json:"amounts"`
	Web3     checkoutWeb3    `json:"web3"`
}

func (s *Server) handleCheckout(w http.ResponseWriter, r *http.Request) {
	var payload checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.metrics.incCheckout("rejected")
		s.writeError(w, http.StatusBadRequest, "invalid json payload")
		return
	}

	res, err := s.orchestrator.ProcessPayment(r.Context(), gateway.CheckoutRequest{
		CardToken:       payload.CardToken,
		PaymentMethodID: payload.PaymentMethodID,
		PayerEmail:      payload.PayerEmail,
		PayerDocType:    payload.PayerDocType,
		PayerDocNumber:  payload.PayerDocNumber,
		ProductAmount:   payload.ProductAmount,
		SupplierID:      payload.SupplierID,
		Description:     payload.Description,
		WalletAddress:   payload.WalletAddress,
	})
	if err != nil {
		if errors.Is(err, gateway.ErrValidation) {
			s.metrics.incCheckout("rejected")
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.metrics.incCheckout("error")
		s.logger.Error("checkout failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "checkout failed")
		return
	}

	resp := checkoutResponse{
		Checkout: checkoutOutcome{
			Success:            res.Success,
			Status:             res.Status,
			EscrowCode:         res.EscrowCode,
			TransactionID:      res.TransactionID,
			Acquirer:           res.AcquirerName,
			CustodianConfirmed: res.CustodianConfirmed,
			Error:              res.DenialReason,
		},
		Amounts: checkoutAmounts{
			Product:    res.Fee.ProductAmount.StringFixed(2),
			Fee:        res.Fee.FeeAmount.StringFixed(2),
			FeePercent: res.Fee.Percent.String(),
			Total:      res.Fee.TotalAmount.StringFixed(2),
			FeeReason:  res.Fee.Reason,
		},
		Web3: checkoutWeb3{
			Verified:    res.Holder.Verified,
			TokenHolder: res.Holder.IsHolder,
		},
	}
	if res.Holder.Detail != nil {
		resp.Web3.Balance = res.Holder.Detail.Balance.String()
	}

	if !res.Success {
		s.metrics.incCheckout("denied")
		s.writeJSON(w, http.StatusPaymentRequired, resp)
		return
	}

	s.metrics.incCheckout("approved")
	s.metrics.incPayment(res.AcquirerName)
	s.writeJSON(w, http.StatusOK, resp)
}

type web3CheckRequest struct {
	WalletAddress string `json:"wallet_address"`
}

type web3CheckResponse struct {
	TokenHolder     bool   `json:"token_holder"`
	Balance         string `json:"balance,omitempty"`
	MinimumRequired string `json:"minimum_required,omitempty"`
	Address         string `json:"address,omitempty"`
	Error           string `json:"error,omitempty"`
}

func (s *Server) handleWeb3Check(w http.ResponseWriter, r *http.Request) {
	var payload web3CheckRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid json payload")
		return
	}
	if payload.WalletAddress == "" {
		s.writeError(w, http.StatusBadRequest, "wallet_address is required")
		return
	}

	check, err := s.oracle.CheckHolder(r.Context(), payload.WalletAddress)
	if err != nil {
		// Fail closed, not fail the request: a broken oracle means the
		// wallet is treated as a non-holder.
		s.writeJSON(w, http.StatusOK, web3CheckResponse{TokenHolder: false, Error: err.Error()})
		return
	}

	s.writeJSON(w, http.StatusOK, web3CheckResponse{
		TokenHolder:     check.IsHolder,
		Balance:         check.Balance.String(),
		MinimumRequired: check.MinimumRequired.String(),
		Address:         check.Address,
	})
}

type releaseRequest struct {
	EscrowCode string `json:"escrow_code"`
}

type releaseResponse struct {
	Success        bool   `json:"success"`
	EscrowCode     string `json:"escrow_code"`
	ReleasedTo     string `json:"released_to"`
	ReleasedAmount string `json:"released_amount"`
	NewStatus      string `json:"new_status"`
	OutOfOrder     bool   `json:"out_of_order,omitempty"`
}

func (s *Server) handleReleaseFee(w http.ResponseWriter, r *http.Request) {
	s.handleRelease(w, r, "fee", s.ledger.ReleaseFee)
}

func (s *Server) handleReleaseProduct(w http.ResponseWriter, r *http.Request) {
	s.handleRelease(w, r, "product", s.ledger.ReleaseProduct)
}

func (s *Server) handleRelease(w http.ResponseWriter, r *http.Request, kind string, release func(context.Context, string) (*escrow.ReleaseResult, error)) {
	var payload releaseRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid json payload")
		return
	}
	if payload.EscrowCode == "" {
		s.writeError(w, http.StatusBadRequest, "escrow_code is required")
		return
	}

	res, err := release(r.Context(), payload.EscrowCode)
	if err != nil {
		status, label := releaseErrorStatus(err)
		s.metrics.incRelease(kind, label)
		s.writeError(w, status, err.Error())
		return
	}

	s.metrics.incRelease(kind, "released")
	s.writeJSON(w, http.StatusOK, releaseResponse{
		Success:        true,
		EscrowCode:     res.EscrowCode,
		ReleasedTo:     res.Recipient,
		ReleasedAmount: res.ReleasedAmount.StringFixed(2),
		NewStatus:      string(res.NewStatus),
		OutOfOrder:     res.OutOfOrder,
	})
}

func releaseErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, escrow.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, escrow.ErrInvalidTransition):
		return http.StatusConflict, "invalid_transition"
	case errors.Is(err, escrow.ErrReleaseOrder):
		return http.StatusConflict, "release_order"
	case errors.Is(err, custodian.ErrUnavailable):
		return http.StatusBadGateway, "custodian_error"
	default:
		return http.StatusInternalServerError, "error"
	}
}

type escrowResponse struct {
	ID                 string `json:"id"`
	EscrowCode         string `json:"escrow_code"`
	TransactionID      string `json:"transaction_id"`
	SupplierID         string `json:"supplier_id"`
	FeeAmount          string `json:"fee_amount"`
	ProductAmount      string `json:"product_amount"`
	Status             string `json:"status"`
	CustodianConfirmed bool   `json:"custodian_confirmed"`
	CreatedAt          string `json:"created_at"`
	UpdatedAt          string `json:"updated_at"`
}

func (s *Server) handleGetEscrow(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	rec, err := s.ledger.Get(r.Context(), code)
	if err != nil {
		if errors.Is(err, escrow.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "escrow not found")
			return
		}
		s.logger.Error("escrow lookup failed", zap.String("escrow_code", code), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "escrow lookup failed")
		return
	}

	s.writeJSON(w, http.StatusOK, escrowResponse{
		ID:                 rec.ID,
		EscrowCode:         rec.EscrowCode,
		TransactionID:      rec.TransactionID,
		SupplierID:         rec.SupplierID,
		FeeAmount:          rec.FeeAmount.StringFixed(2),
		ProductAmount:      rec.ProductAmount.StringFixed(2),
		Status:             string(rec.Status),
		CustodianConfirmed: rec.CustodianConfirmed,
		CreatedAt:          rec.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:          rec.UpdatedAt.UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	overallHealthy := true

	rpcInfo := struct {
		Connected bool   `json:"connected"`
		Error     string `json:"error,omitempty"`
	}{Connected: true}

	if s.rpcHealthFn != nil {
		rpcCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := s.rpcHealthFn(rpcCtx); err != nil {
			rpcInfo.Connected = false
			rpcInfo.Error = err.Error()
			overallHealthy = false
		}
	}

	dbInfo := struct {
		Connected bool   `json:"connected"`
		Error     string `json:"error,omitempty"`
	}{Connected: true}

	if s.dbHealthFn != nil {
		dbCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := s.dbHealthFn(dbCtx); err != nil {
			dbInfo.Connected = false
			dbInfo.Error = err.Error()
			overallHealthy = false
		}
	}

	status := "healthy"
	code := http.StatusOK
	if !overallHealthy {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	s.writeJSON(w, code, map[string]any{
		"status":   status,
		"rpc":      rpcInfo,
		"database": dbInfo,
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
