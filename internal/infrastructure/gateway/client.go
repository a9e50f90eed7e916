package gateway

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"aurika-backend/internal/domain"

	"github.com/goccy/go-json"
)

// Client talks to the payment gateway's refund API with basic auth.
type Client struct {
	baseURL    string
	keyID      string
	keySecret  string
	httpClient *http.Client
}

func NewClient(baseURL, keyID, keySecret string, timeout time.Duration) *Client {
	return &Client{
		baseURL:   baseURL,
		keyID:     keyID,
		keySecret: keySecret,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// RefundResponse is the gateway's answer to a refund initiation. Initiation
// and confirmation are decoupled: a "processing"/"created" status here only
// means the gateway accepted the request; the final outcome arrives on the
// refund webhook.
type RefundResponse struct {
	ID        string `json:"id"`
	PaymentID string `json:"payment_id"`
	Status    string `json:"status"`
	Speed     string `json:"speed_requested"`
	Amount    int64  `json:"amount"`
}

// CreateRefund initiates a refund of amountPaise against a captured payment.
func (c *Client) CreateRefund(ctx context.Context, paymentID string, amountPaise int64, speed string) (*RefundResponse, error) {
	if paymentID == "" {
		return nil, &domain.ExternalCallFailure{System: "gateway", Op: "refund", Err: fmt.Errorf("empty payment id")}
	}

	payload, _ := json.Marshal(map[string]interface{}{
		"amount": amountPaise,
		"speed":  speed,
	})

	endpoint := c.baseURL + "/v1/payments/" + url.PathEscape(paymentID) + "/refund"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, &domain.ExternalCallFailure{System: "gateway", Op: "refund", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.keyID, c.keySecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &domain.ExternalCallFailure{System: "gateway", Op: "refund", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &domain.ExternalCallFailure{
			System: "gateway", Op: "refund",
			Err: fmt.Errorf("status %d: %s", resp.StatusCode, string(body)),
		}
	}

	var refund RefundResponse
	if err := json.NewDecoder(resp.Body).Decode(&refund); err != nil {
		return nil, &domain.ExternalCallFailure{System: "gateway", Op: "refund", Err: err}
	}
	if refund.ID == "" {
		return nil, &domain.ExternalCallFailure{System: "gateway", Op: "refund", Err: fmt.Errorf("no refund id in response")}
	}

	return &refund, nil
}

// Refund is the narrow form used by the refund orchestrator: it initiates
// the refund and returns only the gateway's refund id.
func (c *Client) Refund(ctx context.Context, paymentID string, amountPaise int64, speed string) (string, error) {
	resp, err := c.CreateRefund(ctx, paymentID, amountPaise, speed)
	if err != nil {
		return "", err
	}
	return resp.ID, nil
}
