package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/streamtip/sponsord/internal/sponsor"
	"github.com/streamtip/sponsord/pkg/logger"
)

// DonationService is the sponsorship pipeline behind the HTTP boundary.
type DonationService interface {
	Prepare(ctx context.Context, intent sponsor.TransferIntent) (*sponsor.PreparedDonation, error)
	Submit(ctx context.Context, txBytes []byte, sponsorSig, payerSig string) (*sponsor.SubmitResult, error)
	PrepareAndSubmit(ctx context.Context, intent sponsor.TransferIntent, payer *sponsor.Keypair) (*sponsor.SubmitResult, error)
}

// CustodialSigner resolves a server-held payer key by address. Returns nil
// when the address has no custodial key.
type CustodialSigner func(address string) *sponsor.Keypair

// Config captures the dependencies required to construct the server.
type Config struct {
	Service   DonationService
	Custodial CustodialSigner
	Version   string
	Timeout   time.Duration
}

// Server is the sponsorship protocol's request/response boundary.
type Server struct {
	service   DonationService
	custodial CustodialSigner
	version   string
	timeout   time.Duration

	router http.Handler
}

func New(cfg Config) *Server {
	if cfg.Version == "" {
		cfg.Version = "1.0.0"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	srv := &Server{
		service:   cfg.Service,
		custodial: cfg.Custodial,
		version:   cfg.Version,
		timeout:   cfg.Timeout,
	}
	srv.router = srv.buildRouter()
	return srv
}

// Handler exposes the configured HTTP router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(s.timeout))

	r.Get("/health", s.handleHealth)
	r.Route("/api/v1", func(api chi.Router) {
		api.Post("/donations/sponsor", s.handleSponsor)
		api.Post("/donations/submit", s.handleSubmit)
		api.Post("/donations/sponsor-and-submit", s.handleSponsorAndSubmit)
	})
	return r
}

type healthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
}

type sponsorRequest struct {
	Sender             string `json:"sender"`
	BeneficiaryAddress string `json:"beneficiaryAddress"`
	AmountMinorUnits   uint64 `json:"amountMinorUnits"`
	AssetType          string `json:"assetType"`
	CorrelationRef     string `json:"correlationRef"`
}

func (r sponsorRequest) intent() sponsor.TransferIntent {
	return sponsor.TransferIntent{
		Payer:            r.Sender,
		Beneficiary:      r.BeneficiaryAddress,
		AssetType:        r.AssetType,
		AmountMinorUnits: r.AmountMinorUnits,
		CorrelationRef:   r.CorrelationRef,
	}
}

type sponsorResponse struct {
	TransactionBytes string `json:"transactionBytes"`
	SponsorSignature string `json:"sponsorSignature"`
	Digest           string `json:"digest"`
	CorrelationRef   string `json:"correlationRef"`
}

type submitRequest struct {
	TransactionBytes string `json:"transactionBytes"`
	SponsorSignature string `json:"sponsorSignature"`
	PayerSignature   string `json:"payerSignature"`
}

type submitResponse struct {
	Digest string `json:"digest"`
	Status string `json:"status"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
		Version:   s.version,
	})
}

func (s *Server) handleSponsor(w http.ResponseWriter, r *http.Request) {
	var req sponsorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	prepared, err := s.service.Prepare(r.Context(), req.intent())
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, sponsorResponse{
		TransactionBytes: base64.StdEncoding.EncodeToString(prepared.TxBytes),
		SponsorSignature: prepared.SponsorSignature,
		Digest:           prepared.Digest,
		CorrelationRef:   prepared.CorrelationRef,
	})
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	txBytes, err := base64.StdEncoding.DecodeString(req.TransactionBytes)
	if err != nil || len(txBytes) == 0 {
		writeError(w, http.StatusBadRequest, "transactionBytes must be non-empty base64")
		return
	}

	result, err := s.service.Submit(r.Context(), txBytes, req.SponsorSignature, req.PayerSignature)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, submitResponse{Digest: result.Digest, Status: result.Status})
}

// handleSponsorAndSubmit is the server-driven variant: both signing phases
// happen in-process, for deployments holding custodial payer keys.
func (s *Server) handleSponsorAndSubmit(w http.ResponseWriter, r *http.Request) {
	if s.custodial == nil {
		writeError(w, http.StatusNotFound, "custodial signing is not enabled")
		return
	}

	var req sponsorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	payerKey := s.custodial(req.Sender)
	if payerKey == nil {
		writeError(w, http.StatusBadRequest, "no custodial key for sender")
		return
	}

	result, err := s.service.PrepareAndSubmit(r.Context(), req.intent(), payerKey)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, submitResponse{Digest: result.Digest, Status: result.Status})
}

// statusFor maps the error taxonomy to HTTP: validation-class failures are
// 400 with the literal reason, everything else is an internal/ledger fault.
func statusFor(err error) int {
	switch {
	case errors.Is(err, sponsor.ErrValidation),
		errors.Is(err, sponsor.ErrBelowMinimum),
		errors.Is(err, sponsor.ErrNoCoinsFound),
		errors.Is(err, sponsor.ErrInsufficientBalance),
		errors.Is(err, sponsor.ErrSimulationFailed):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("Failed to encode response", "status", statusCode, "err", err)
	}
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, errorResponse{Error: message})
}
