package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"

	"aurika-backend/internal/domain"

	"github.com/goccy/go-json"
)

// VerifySignature checks an HMAC-SHA256 hex signature over the raw request
// body. Used for both the gateway webhook secret and the carrier's optional
// shared-secret header.
func VerifySignature(body []byte, signature, secret string) bool {
	if signature == "" || secret == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// refundEnvelope is the gateway's webhook event shape.
type refundEnvelope struct {
	Event   string `json:"event"`
	Payload struct {
		Refund struct {
			Entity struct {
				ID             string            `json:"id"`
				PaymentID      string            `json:"payment_id"`
				Status         string            `json:"status"`
				SpeedProcessed string            `json:"speed_processed"`
				Amount         int64             `json:"amount"`
				Notes          map[string]string `json:"notes"`
			} `json:"entity"`
		} `json:"refund"`
	} `json:"payload"`
}

// ParseRefundWebhook normalizes a gateway refund webhook body into a
// RefundEvent. Fields missing from the envelope stay unset.
func ParseRefundWebhook(raw []byte) (*domain.RefundEvent, error) {
	var env refundEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, &domain.NormalizationError{Source: domain.SourceGatewayRefund, Reason: "invalid json: " + err.Error()}
	}

	entity := env.Payload.Refund.Entity
	if env.Event == "" || entity.ID == "" {
		return nil, &domain.NormalizationError{Source: domain.SourceGatewayRefund, Reason: "missing event or refund entity"}
	}

	return &domain.RefundEvent{
		Event:         env.Event,
		RefundID:      entity.ID,
		PaymentID:     entity.PaymentID,
		GatewayStatus: entity.Status,
		Speed:         entity.SpeedProcessed,
		AmountPaise:   entity.Amount,
		Notes:         entity.Notes,
	}, nil
}
