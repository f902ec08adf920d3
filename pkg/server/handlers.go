package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/getsentry/sentry-go"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/savefi/ledger/pkg/metrics"
	"github.com/savefi/ledger/pkg/protocol"
)

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type statusResponse struct {
	Status string `json:"status"`
}

// httpStatus maps protocol error codes to HTTP statuses. Validation failures
// are 400, authorization 403, state conflicts 409.
var httpStatus = map[string]int{
	"invalid_save_rate":            http.StatusBadRequest,
	"invalid_fee_rate":             http.StatusBadRequest,
	"invalid_lock_period":          http.StatusBadRequest,
	"invalid_delegation_amount":    http.StatusBadRequest,
	"invalid_save_amount":          http.StatusBadRequest,
	"trade_too_small":              http.StatusBadRequest,
	"trade_too_large":              http.StatusBadRequest,
	"arithmetic_overflow":          http.StatusBadRequest,
	"arithmetic_underflow":         http.StatusBadRequest,
	"unauthorized":                 http.StatusForbidden,
	"not_found":                    http.StatusNotFound,
	"vault_locked":                 http.StatusConflict,
	"empty_vault":                  http.StatusConflict,
	"vault_already_initialized":    http.StatusConflict,
	"vault_inactive":               http.StatusConflict,
	"protocol_paused":              http.StatusConflict,
	"emergency_mode_active":        http.StatusConflict,
	"reentrancy_detected":          http.StatusConflict,
	"delegation_expired":           http.StatusConflict,
	"daily_savings_limit_exceeded": http.StatusConflict,
	"collection_cooldown":          http.StatusConflict,
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	code := protocol.ErrorCode(err)
	status, ok := httpStatus[code]
	if !ok {
		status = http.StatusInternalServerError
		s.log.Error("handler: internal error", "error", err)
	}
	s.writeErrorCode(w, status, code, err.Error())
}

func (s *Server) writeErrorCode(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(errorResponse{Error: code, Message: message}); err != nil {
		s.log.Error("failed to write error response", "error", err)
	}
}

func (s *Server) respond(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("failed to write response", "error", err)
	}
}

// decode parses the JSON request body. An empty body decodes into the zero
// request so operations without parameters can post nothing.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return true
		}
		s.writeErrorCode(w, http.StatusBadRequest, "invalid_body", "malformed JSON request body")
		return false
	}
	return true
}

func (s *Server) caller(w http.ResponseWriter, r *http.Request) (solana.PublicKey, bool) {
	caller, ok := Identity(r.Context())
	if !ok {
		s.writeErrorCode(w, http.StatusUnauthorized, "missing_identity", "no authenticated identity")
	}
	return caller, ok
}

func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		metrics.HTTPRequestsTotal.WithLabelValues(route, strconv.Itoa(ww.Status())).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

type initializeProtocolRequest struct {
	SavingsToken string `json:"savings_token"`
	FeeRate      uint8  `json:"fee_rate"`
}

func (s *Server) handleInitializeProtocol(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req initializeProtocolRequest
	if !s.decode(w, r, &req) {
		return
	}

	token, err := solana.PublicKeyFromBase58(req.SavingsToken)
	if err != nil {
		s.writeErrorCode(w, http.StatusBadRequest, "invalid_token", "savings_token must be a base58 public key")
		return
	}

	if err := s.engine.InitializeProtocol(r.Context(), caller, token, req.FeeRate); err != nil {
		s.writeError(w, err)
		return
	}
	s.respond(w, statusResponse{Status: "ok"})
}

type setPausedRequest struct {
	Paused bool `json:"paused"`
}

func (s *Server) handleSetPaused(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req setPausedRequest
	if !s.decode(w, r, &req) {
		return
	}

	if err := s.engine.SetPaused(r.Context(), caller, req.Paused); err != nil {
		s.writeError(w, err)
		return
	}
	s.respond(w, statusResponse{Status: "ok"})
}

type setFeeRateRequest struct {
	Rate uint8 `json:"rate"`
}

func (s *Server) handleSetFeeRate(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req setFeeRateRequest
	if !s.decode(w, r, &req) {
		return
	}

	if err := s.engine.SetFeeRate(r.Context(), caller, req.Rate); err != nil {
		s.writeError(w, err)
		return
	}
	s.respond(w, statusResponse{Status: "ok"})
}

type collectFeesResponse struct {
	Collected uint64 `json:"collected"`
}

func (s *Server) handleCollectFees(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}

	collected, err := s.engine.CollectFees(r.Context(), caller)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.respond(w, collectFeesResponse{Collected: collected})
}

type emergencyModeResponse struct {
	EmergencyMode bool `json:"emergency_mode"`
}

func (s *Server) handleToggleEmergencyMode(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}

	enabled, err := s.engine.ToggleEmergencyMode(r.Context(), caller)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.respond(w, emergencyModeResponse{EmergencyMode: enabled})
}

type vaultPolicyRequest struct {
	SavingsRate    uint8 `json:"savings_rate"`
	LockPeriodDays uint8 `json:"lock_period_days"`
}

func (s *Server) handleInitializeVault(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req vaultPolicyRequest
	if !s.decode(w, r, &req) {
		return
	}

	if err := s.engine.InitializeVault(r.Context(), caller, req.SavingsRate, req.LockPeriodDays); err != nil {
		s.writeError(w, err)
		return
	}
	s.respond(w, statusResponse{Status: "ok"})
}

func (s *Server) handleUpdateVaultPolicy(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req vaultPolicyRequest
	if !s.decode(w, r, &req) {
		return
	}

	if err := s.engine.UpdateVaultPolicy(r.Context(), caller, req.SavingsRate, req.LockPeriodDays); err != nil {
		s.writeError(w, err)
		return
	}
	s.respond(w, statusResponse{Status: "ok"})
}

type withdrawResponse struct {
	Amount uint64 `json:"amount"`
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}

	amount, err := s.engine.Withdraw(r.Context(), caller)
	if err != nil {
		metrics.WithdrawalsTotal.WithLabelValues("regular", "error").Inc()
		s.writeError(w, err)
		return
	}
	metrics.WithdrawalsTotal.WithLabelValues("regular", "ok").Inc()
	s.respond(w, withdrawResponse{Amount: amount})
}

type emergencyWithdrawRequest struct {
	Amount uint64 `json:"amount"`
}

type emergencyWithdrawResponse struct {
	Payout uint64 `json:"payout"`
}

func (s *Server) handleEmergencyWithdraw(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req emergencyWithdrawRequest
	if !s.decode(w, r, &req) {
		return
	}

	payout, err := s.engine.EmergencyWithdraw(r.Context(), caller, req.Amount)
	if err != nil {
		metrics.WithdrawalsTotal.WithLabelValues("emergency", "error").Inc()
		s.writeError(w, err)
		return
	}
	metrics.WithdrawalsTotal.WithLabelValues("emergency", "ok").Inc()
	s.respond(w, emergencyWithdrawResponse{Payout: payout})
}

func (s *Server) handleRenewSubscription(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}

	if err := s.engine.RenewSubscription(r.Context(), caller); err != nil {
		s.writeError(w, err)
		return
	}
	s.respond(w, statusResponse{Status: "ok"})
}

type delegateFundsRequest struct {
	Amount   uint64 `json:"amount"`
	LockDays uint8  `json:"lock_days"`
}

func (s *Server) handleDelegateFunds(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req delegateFundsRequest
	if !s.decode(w, r, &req) {
		return
	}

	if err := s.engine.DelegateFunds(r.Context(), caller, req.Amount, req.LockDays); err != nil {
		s.writeError(w, err)
		return
	}
	s.respond(w, statusResponse{Status: "ok"})
}

type revokeDelegationResponse struct {
	Refunded uint64 `json:"refunded"`
}

func (s *Server) handleRevokeDelegation(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}

	refunded, err := s.engine.RevokeDelegation(r.Context(), caller)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.respond(w, revokeDelegationResponse{Refunded: refunded})
}

type processTradeRequest struct {
	Destination string `json:"destination"`
	Amount      uint64 `json:"amount"`
}

func (s *Server) handleProcessTrade(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req processTradeRequest
	if !s.decode(w, r, &req) {
		return
	}

	destination, err := solana.PublicKeyFromBase58(req.Destination)
	if err != nil {
		s.writeErrorCode(w, http.StatusBadRequest, "invalid_destination", "destination must be a base58 public key")
		return
	}

	span := sentry.StartSpan(r.Context(), "trade.process")
	start := time.Now()
	receipt, err := s.engine.ProcessTrade(span.Context(), caller, destination, req.Amount)
	span.Finish()
	metrics.TradeDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.TradesTotal.WithLabelValues(protocol.ErrorCode(err)).Inc()
		s.writeError(w, err)
		return
	}

	metrics.TradesTotal.WithLabelValues("ok").Inc()
	metrics.SavingsSkimmedTotal.Add(float64(receipt.SaveAmount))
	metrics.FeesAccruedTotal.Add(float64(receipt.FeeAmount))
	s.respond(w, receipt)
}
