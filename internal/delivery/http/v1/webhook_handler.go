package v1

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"aurika-backend/internal/domain"
	"aurika-backend/internal/infrastructure/carrier"
	"aurika-backend/internal/infrastructure/gateway"
	"aurika-backend/internal/usecase"
	"aurika-backend/pkg/logger"
)

// WebhookHandler terminates the carrier and gateway push endpoints. These
// routes are unauthenticated by JWT; each external system proves itself
// with its own secret.
type WebhookHandler struct {
	reconcileUC   *usecase.ReconcileUsecase
	refundUC      *usecase.RefundUsecase
	carrierSecret string
	gatewaySecret string
}

func NewWebhookHandler(reconcileUC *usecase.ReconcileUsecase, refundUC *usecase.RefundUsecase, carrierSecret, gatewaySecret string) *WebhookHandler {
	return &WebhookHandler{
		reconcileUC:   reconcileUC,
		refundUC:      refundUC,
		carrierSecret: carrierSecret,
		gatewaySecret: gatewaySecret,
	}
}

// CarrierShipment ingests shipment tracking pushes. The carrier retries
// aggressively on non-2xx, so every outcome answers 200; the body says
// whether the event was accepted.
func (h *WebhookHandler) CarrierShipment(w http.ResponseWriter, r *http.Request) {
	h.handleCarrier(w, r, domain.SourceCarrierShipment)
}

// CarrierReturn ingests return shipment tracking pushes.
func (h *WebhookHandler) CarrierReturn(w http.ResponseWriter, r *http.Request) {
	h.handleCarrier(w, r, domain.SourceCarrierReturn)
}

func (h *WebhookHandler) handleCarrier(w http.ResponseWriter, r *http.Request, source domain.EventSource) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeCarrierAck(w, false, "unreadable body")
		return
	}

	// The signature is an HMAC-SHA256 over the raw body, so a leaked header
	// value cannot be replayed against a different payload.
	if h.carrierSecret != "" {
		sig := r.Header.Get("X-Carrier-Signature")
		if !gateway.VerifySignature(body, sig, h.carrierSecret) {
			logger.Warn().Str("source", string(source)).Msg("Carrier webhook rejected: signature mismatch")
			writeCarrierAck(w, false, "invalid signature")
			return
		}
	}

	ev, err := carrier.ParseShipmentWebhook(body, source)
	if err != nil {
		var nerr *domain.NormalizationError
		if errors.As(err, &nerr) {
			logger.Warn().Str("source", string(source)).Str("reason", nerr.Reason).Msg("Carrier webhook not normalizable")
		} else {
			logger.Error().Err(err).Str("source", string(source)).Msg("Carrier webhook parse failed")
		}
		writeCarrierAck(w, false, "unrecognized payload")
		return
	}

	if source == domain.SourceCarrierReturn {
		err = h.reconcileUC.ProcessReturnEvent(r.Context(), ev)
	} else {
		err = h.reconcileUC.ProcessShipmentEvent(r.Context(), ev)
	}
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// Unresolvable identifiers are the carrier's problem to fix,
			// not a reason to make it retry.
			writeCarrierAck(w, false, "no matching record")
			return
		}
		logger.Error().Err(err).Str("source", string(source)).Msg("Carrier webhook processing failed")
		writeCarrierAck(w, false, "processing failed")
		return
	}
	writeCarrierAck(w, true, "")
}

func writeCarrierAck(w http.ResponseWriter, ok bool, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	resp := map[string]interface{}{"success": ok}
	if message != "" {
		resp["message"] = message
	}
	json.NewEncoder(w).Encode(resp)
}

// GatewayRefund ingests payment gateway refund events. Unlike the carrier
// endpoints a bad signature is a hard 400: the gateway signs every delivery
// and an unsigned body is not trustworthy input.
func (h *WebhookHandler) GatewayRefund(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "Unreadable body", http.StatusBadRequest)
		return
	}

	signature := r.Header.Get("X-Razorpay-Signature")
	if !gateway.VerifySignature(body, signature, h.gatewaySecret) {
		logger.Warn().Msg("Gateway webhook rejected: signature mismatch")
		http.Error(w, "Invalid signature", http.StatusBadRequest)
		return
	}

	ev, err := gateway.ParseRefundWebhook(body)
	if err != nil {
		http.Error(w, "Invalid payload", http.StatusBadRequest)
		return
	}

	if err := h.refundUC.ProcessRefundWebhook(r.Context(), ev); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// No return references this refund id. Acknowledge so the
			// gateway stops redelivering; the tx log already has it.
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]string{"status": "ignored"})
			return
		}
		logger.Error().Err(err).Str("refund_id", ev.RefundID).Msg("Gateway webhook processing failed")
		http.Error(w, "Processing failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
