package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Status is the provider-neutral payment status reported by a gateway.
// Every provider lifecycle collapses to request -> pending -> terminal.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusSuccessful Status = "SUCCESSFUL"
	StatusFailed     Status = "FAILED"
)

// Sentinel errors shared by all provider clients.
var (
	ErrPayerNotRegistered = errors.New("payer is not registered with the payment provider")
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	ErrInvalidRequest     = errors.New("invalid payment request")
)

// PaymentRequest carries everything a provider needs to issue a payment.
// ExternalID is the ledger transaction id so provider records and local
// records stay correlated.
type PaymentRequest struct {
	Amount        int64 // minor currency units
	Currency      string
	PayerIdentity string
	ExternalID    string
	Description   string
}

// StatusResult is a point-in-time, side-effect-free status snapshot.
type StatusResult struct {
	Status Status
	Raw    json.RawMessage
}

// Client normalizes one payment provider behind the shared lifecycle.
type Client interface {
	// Provider returns the provider key used for webhook event records.
	Provider() string
	// ValidatePayer is the pre-flight check; it must pass before any
	// payment request is issued.
	ValidatePayer(ctx context.Context, payerIdentity string) (bool, error)
	// RequestPayment issues the payment request and returns the gateway
	// reference id used for later status queries.
	RequestPayment(ctx context.Context, req PaymentRequest) (string, error)
	// GetStatus queries the current payment status for a gateway reference.
	GetStatus(ctx context.Context, gatewayRef string) (StatusResult, error)
}

// Registry maps payment methods to their provider clients. It is constructed
// once at startup and injected wherever a gateway is needed; there is no
// module-level client singleton.
type Registry struct {
	clients map[string]Client
}

// NewRegistry creates an empty gateway registry.
func NewRegistry() *Registry {
	return &Registry{clients: make(map[string]Client)}
}

// Register binds a payment method to a provider client.
func (r *Registry) Register(paymentMethod string, client Client) *Registry {
	r.clients[strings.ToLower(strings.TrimSpace(paymentMethod))] = client
	return r
}

// ForMethod resolves the client for a payment method.
func (r *Registry) ForMethod(paymentMethod string) (Client, error) {
	c, ok := r.clients[strings.ToLower(strings.TrimSpace(paymentMethod))]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported payment method %q", ErrInvalidRequest, paymentMethod)
	}
	return c, nil
}

// formatAmount renders minor units as the decimal string providers expect.
func formatAmount(minor int64) string {
	return fmt.Sprintf("%d.%02d", minor/100, minor%100)
}
