package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/DriveMint/DriveMint/app/models"
	"github.com/DriveMint/DriveMint/internal/pkg/env"
)

const defaultCardBaseURL = "https://api.cardlink-pay.com/v1"

// CardClient talks to the hosted card processor. Payer identity is a stored
// card token; raw PANs never reach this service.
type CardClient struct {
	BaseURL   string
	SecretKey string

	HTTPClient *http.Client
}

type cardChargeRequest struct {
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	TxRef     string `json:"tx_ref"`
	CardToken string `json:"card_token"`
	Narration string `json:"narration,omitempty"`
}

type cardChargeResponse struct {
	Data struct {
		Reference string `json:"reference"`
		Status    string `json:"status"`
	} `json:"data"`
	Message string `json:"message"`
}

// NewCardClientFromEnv builds a card processor client from environment
// configuration. The sandbox host is selected via PAYMENT_ENV.
func NewCardClientFromEnv() *CardClient {
	base := strings.TrimRight(env.GetEnv("CARD_BASE_URL", defaultCardBaseURL), "/")
	if env.IsSandbox() && env.GetEnv("CARD_BASE_URL", "") == "" {
		base = strings.Replace(base, "api.", "sandbox-api.", 1)
	}
	return &CardClient{
		BaseURL:   base,
		SecretKey: strings.TrimSpace(env.GetEnv("CARD_SECRET_KEY", "")),
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

func (c *CardClient) Provider() string {
	return models.GatewayProviderCard
}

// ValidatePayer checks that the card token exists and is active.
func (c *CardClient) ValidatePayer(ctx context.Context, payerIdentity string) (bool, error) {
	token := strings.TrimSpace(payerIdentity)
	if token == "" {
		return false, fmt.Errorf("%w: card token is required", ErrInvalidRequest)
	}

	endpoint := fmt.Sprintf("%s/card-tokens/%s", c.BaseURL, token)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Authorization", "Bearer "+c.SecretKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	switch {
	case resp.StatusCode == http.StatusOK:
		var out struct {
			Data struct {
				Active bool `json:"active"`
			} `json:"data"`
		}
		if err := json.Unmarshal(body, &out); err != nil {
			return false, err
		}
		return out.Data.Active, nil
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	case resp.StatusCode >= 500:
		return false, fmt.Errorf("%w: status=%d body=%s", ErrGatewayUnavailable, resp.StatusCode, string(body))
	default:
		return false, fmt.Errorf("%w: status=%d body=%s", ErrInvalidRequest, resp.StatusCode, string(body))
	}
}

// RequestPayment charges the stored card token. The ledger transaction id is
// sent as tx_ref so callbacks can be correlated without a local lookup table.
func (c *CardClient) RequestPayment(ctx context.Context, in PaymentRequest) (string, error) {
	if in.ExternalID == "" || in.PayerIdentity == "" {
		return "", fmt.Errorf("%w: external id and card token are required", ErrInvalidRequest)
	}

	payload := cardChargeRequest{
		Amount:    in.Amount,
		Currency:  strings.ToUpper(in.Currency),
		TxRef:     in.ExternalID,
		CardToken: strings.TrimSpace(in.PayerIdentity),
		Narration: in.Description,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/charges", bytes.NewReader(raw))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.SecretKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if resp.StatusCode >= 500 {
			return "", fmt.Errorf("%w: status=%d body=%s", ErrGatewayUnavailable, resp.StatusCode, string(body))
		}
		return "", fmt.Errorf("%w: status=%d body=%s", ErrInvalidRequest, resp.StatusCode, string(body))
	}

	var out cardChargeResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", err
	}
	if strings.TrimSpace(out.Data.Reference) == "" {
		return "", fmt.Errorf("%w: charge response missing reference", ErrInvalidRequest)
	}
	return out.Data.Reference, nil
}

// GetStatus queries a charge by its provider reference.
func (c *CardClient) GetStatus(ctx context.Context, gatewayRef string) (StatusResult, error) {
	ref := strings.TrimSpace(gatewayRef)
	if ref == "" {
		return StatusResult{}, fmt.Errorf("%w: gateway reference is required", ErrInvalidRequest)
	}

	endpoint := fmt.Sprintf("%s/charges/%s", c.BaseURL, ref)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return StatusResult{}, err
	}
	req.Header.Set("Authorization", "Bearer "+c.SecretKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return StatusResult{}, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode >= 500 {
			return StatusResult{}, fmt.Errorf("%w: status=%d body=%s", ErrGatewayUnavailable, resp.StatusCode, string(body))
		}
		return StatusResult{}, fmt.Errorf("%w: status=%d body=%s", ErrInvalidRequest, resp.StatusCode, string(body))
	}

	var out cardChargeResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return StatusResult{}, err
	}
	return StatusResult{Status: mapCardStatus(out.Data.Status), Raw: json.RawMessage(body)}, nil
}

func mapCardStatus(s string) Status {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "successful", "succeeded":
		return StatusSuccessful
	case "failed", "declined", "cancelled":
		return StatusFailed
	default:
		return StatusPending
	}
}
