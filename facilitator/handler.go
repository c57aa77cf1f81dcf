// Package facilitator exposes the engine's verification and settlement
// over HTTP, so resource servers can delegate both without holding a
// chain connection themselves.
package facilitator

import (
	"encoding/json"
	"net/http"

	x402 "github.com/adipundir/aptos-x402"
	"github.com/adipundir/aptos-x402/logger"
	"github.com/adipundir/aptos-x402/types"
)

// VerifyRequest is the body of POST /verify and POST /settle.
type VerifyRequest struct {
	X402Version         int                       `json:"x402Version"`
	PaymentPayload      types.PaymentPayload      `json:"paymentPayload"`
	PaymentRequirements types.PaymentRequirements `json:"paymentRequirements"`
}

// Handler serves the facilitator API: POST /verify, POST /settle and
// GET /supported.
type Handler struct {
	engine *x402.X402
	log    logger.Logger
}

// NewHandler builds a facilitator over an engine.
func NewHandler(engine *x402.X402, log logger.Logger) *Handler {
	if log == nil {
		log = logger.NoopLogger{}
	}
	return &Handler{engine: engine, log: log}
}

// Mux returns a ready-to-serve mux with the facilitator routes.
func (h *Handler) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /verify", h.HandleVerify)
	mux.HandleFunc("POST /settle", h.HandleSettle)
	mux.HandleFunc("GET /supported", h.HandleSupported)
	return mux
}

// HandleVerify checks a payment against requirements without touching
// the chain.
func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}

	result, err := h.engine.Verify(r.Context(), &req.PaymentPayload, &req.PaymentRequirements)
	if err != nil {
		h.log.Error("verify failed", map[string]any{"error": err.Error()})
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "verification unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// HandleSettle submits a payment and reports its terminal outcome. The
// HTTP status stays 200 for chain rejections and timeouts; the outcome
// lives in the body, like the verify endpoint.
func (h *Handler) HandleSettle(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}

	result, err := h.engine.Settle(r.Context(), &req.PaymentPayload, &req.PaymentRequirements)
	if err != nil {
		h.log.Error("settle failed", map[string]any{"error": err.Error()})
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "settlement unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// HandleSupported lists the payment kinds this facilitator accepts.
func (h *Handler) HandleSupported(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.Supported())
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request) (*VerifyRequest, bool) {
	var req VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body: " + err.Error()})
		return nil, false
	}
	if req.PaymentPayload.Payload == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "paymentPayload is required"})
		return nil, false
	}
	if err := validateRequirements(&req.PaymentRequirements); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return nil, false
	}
	return &req, true
}

func validateRequirements(pr *types.PaymentRequirements) error {
	switch {
	case pr.Scheme == "":
		return &types.X402Error{Code: types.ErrInvalidPayload, Message: "paymentRequirements.scheme is required"}
	case pr.Network == "":
		return &types.X402Error{Code: types.ErrInvalidPayload, Message: "paymentRequirements.network is required"}
	case pr.MaxAmountRequired == "":
		return &types.X402Error{Code: types.ErrInvalidPayload, Message: "paymentRequirements.maxAmountRequired is required"}
	case pr.PayTo == "":
		return &types.X402Error{Code: types.ErrInvalidPayload, Message: "paymentRequirements.payTo is required"}
	case pr.Asset == "":
		return &types.X402Error{Code: types.ErrInvalidPayload, Message: "paymentRequirements.asset is required"}
	case pr.MaxTimeoutSeconds <= 0:
		return &types.X402Error{Code: types.ErrInvalidPayload, Message: "paymentRequirements.maxTimeoutSeconds must be greater than 0"}
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
