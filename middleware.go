package x402

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/adipundir/aptos-x402/settlement"
	"github.com/adipundir/aptos-x402/types"
)

type contextKey string

// PaymentContextKey is where the middleware stores the settled payment
// for downstream handlers.
const PaymentContextKey contextKey = "x402-payment"

// PaymentContext is what a downstream handler sees after the gate.
type PaymentContext struct {
	Sender          string
	Amount          string
	Asset           string
	Network         types.Network
	TransactionHash string
	SettledAt       time.Time
}

// PaymentMiddleware gates handlers behind the engine's route table:
// challenge with 402 when no payment is attached, verify without chain
// calls, settle on-chain, then serve the resource with a receipt
// header. Paths outside the route table pass through untouched.
func PaymentMiddleware(engine *X402) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requirements, protected := engine.routes.Match(r.URL.Path)
			if !protected {
				next.ServeHTTP(w, r)
				return
			}

			header := r.Header.Get(types.PaymentHeader)
			if header == "" {
				writeChallenge(w, requirements, "")
				return
			}

			payload, err := types.DecodePaymentHeader(header, r.Header.Get(types.PaymentSignatureHeader))
			if err != nil {
				writeChallenge(w, requirements, "invalid payment header: "+err.Error())
				return
			}

			ctx := r.Context()
			result, err := engine.Verify(ctx, payload, requirements)
			if err != nil {
				engine.log.Error("verification error", map[string]any{"path": r.URL.Path, "error": err.Error()})
				writeError(w, http.StatusInternalServerError, "payment verification unavailable")
				return
			}
			if !result.Valid {
				writeChallenge(w, requirements, string(result.ErrorKind))
				return
			}

			settled, err := engine.Settle(ctx, payload, requirements)
			if err != nil {
				engine.log.Error("settlement error", map[string]any{"path": r.URL.Path, "error": err.Error()})
				writeError(w, http.StatusInternalServerError, "payment settlement unavailable")
				return
			}
			if !settled.Success {
				status := http.StatusBadGateway
				if settled.ErrorKind == types.ErrChainTimeout {
					status = http.StatusGatewayTimeout
				}
				writeError(w, status, settled.Error)
				return
			}

			if receipt, err := types.EncodeReceipt(settlement.Receipt(settled, requirements)); err == nil {
				w.Header().Set(types.PaymentResponseHeader, receipt)
			}

			ctx = context.WithValue(ctx, PaymentContextKey, &PaymentContext{
				Sender:          result.Sender,
				Amount:          result.Amount,
				Asset:           result.Asset,
				Network:         requirements.Network,
				TransactionHash: settled.TxHash,
				SettledAt:       settled.SettledAt,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// PaymentFromContext extracts the settled payment, if any.
func PaymentFromContext(ctx context.Context) (*PaymentContext, bool) {
	payment, ok := ctx.Value(PaymentContextKey).(*PaymentContext)
	return payment, ok
}

// writeChallenge responds 402 with the base64-JSON challenge both as a
// header and as the body.
func writeChallenge(w http.ResponseWriter, requirements *types.PaymentRequirements, reason string) {
	challenge := &types.PaymentRequired{
		X402Version: ProtocolVersion,
		Accepts:     []types.PaymentRequirements{*requirements},
		Error:       reason,
	}
	if encoded, err := types.EncodePaymentRequired(challenge); err == nil {
		w.Header().Set(types.PaymentRequiredHeader, encoded)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusPaymentRequired)
	_ = json.NewEncoder(w).Encode(challenge)
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
