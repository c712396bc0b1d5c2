package controllers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/DriveMint/DriveMint/app/models"
	"github.com/DriveMint/DriveMint/app/repository"
	"github.com/DriveMint/DriveMint/internal/pkg/gateway"
	"github.com/DriveMint/DriveMint/internal/pkg/payments"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

var validate = validator.New()

// maxStatusWaitSeconds caps the long-poll budget of the status endpoint.
const maxStatusWaitSeconds = 60

// PaymentController exposes the payment pipeline over HTTP: checkout,
// poll-driven status reconciliation and the gateway callback webhook.
type PaymentController struct {
	svc           *payments.Service
	webhooks      repository.WebhookEventRepository
	webhookSecret string

	// statusPollInterval overrides the poller's retry interval when set.
	statusPollInterval time.Duration
}

// NewPaymentController creates a payment controller with explicit
// dependencies; the gateway adapter lives inside the injected service.
func NewPaymentController(svc *payments.Service, webhooks repository.WebhookEventRepository, webhookSecret string) *PaymentController {
	return &PaymentController{
		svc:           svc,
		webhooks:      webhooks,
		webhookSecret: webhookSecret,
	}
}

type checkoutRequest struct {
	UserID        uint   `json:"user_id" validate:"required"`
	VehicleID     string `json:"vehicle_id" validate:"required,max=36"`
	FeatureID     uint   `json:"feature_id" validate:"required"`
	PaymentMethod string `json:"payment_method" validate:"required,oneof=mobile_money card"`
	PayerIdentity string `json:"payer_identity" validate:"required,max=100"`
	BillingPeriod string `json:"billing_period" validate:"omitempty,oneof=monthly annual"`
}

// HandleCheckout initiates a purchase and returns the tracking handle.
func (pc *PaymentController) HandleCheckout(c *fiber.Ctx) error {
	var req checkoutRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_body"})
	}
	if err := validate.Struct(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_body", "message": err.Error()})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	result, err := pc.svc.Checkout(ctx, payments.CheckoutInput{
		UserID:        req.UserID,
		VehicleID:     req.VehicleID,
		FeatureID:     req.FeatureID,
		PaymentMethod: req.PaymentMethod,
		PayerIdentity: req.PayerIdentity,
		BillingPeriod: req.BillingPeriod,
	})
	if err != nil {
		return pc.mapCheckoutError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(result)
}

func (pc *PaymentController) mapCheckoutError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, payments.ErrFeatureNotFound), errors.Is(err, payments.ErrFeatureInactive):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "feature_not_found"})
	case errors.Is(err, payments.ErrValidation):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "validation_failed", "message": err.Error()})
	case errors.Is(err, gateway.ErrPayerNotRegistered):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "payer_not_registered"})
	case errors.Is(err, gateway.ErrInvalidRequest):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payment_request"})
	case errors.Is(err, gateway.ErrGatewayUnavailable):
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "gateway_unavailable"})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "checkout_failed"})
	}
}

// HandleCheckoutStatus performs a poll-driven reconciliation attempt and
// returns the transaction's current status. A gateway hiccup does not fail
// the request; the stored status is still authoritative. With ?wait=N the
// endpoint long-polls: it keeps reconciling until the transaction settles or
// the wait budget (capped at 60s) runs out, then answers with the latest
// stored state.
func (pc *PaymentController) HandleCheckoutStatus(c *fiber.Ctx) error {
	transactionID := strings.TrimSpace(c.Query("transaction_id"))
	if transactionID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "transaction_id_required"})
	}

	var (
		tx  *models.Transaction
		err error
	)
	if waitSec := c.QueryInt("wait", 0); waitSec > 0 {
		if waitSec > maxStatusWaitSeconds {
			waitSec = maxStatusWaitSeconds
		}
		ctx, cancel := context.WithTimeout(context.Background(), time.Duration(waitSec)*time.Second)
		defer cancel()

		poller := payments.NewPoller(pc.svc)
		if pc.statusPollInterval > 0 {
			poller.Interval = pc.statusPollInterval
		}
		tx, err = poller.WaitForTerminal(ctx, transactionID)
	} else {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()
		tx, err = pc.svc.Reconcile(ctx, transactionID, "poll")
	}
	if err != nil && tx == nil {
		if errors.Is(err, payments.ErrTransactionNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "transaction_not_found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "status_check_failed"})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"transaction_id": tx.ID,
		"status":         tx.Status,
		"completed_at":   formatTimePtr(tx.CompletedAt),
	})
}

type callbackPayload struct {
	Provider    string `json:"provider"`
	EventID     string `json:"event_id"`
	EventType   string `json:"event_type"`
	ReferenceID string `json:"reference_id"`
	TxRef       string `json:"tx_ref"`
	Status      string `json:"status"`
}

// HandleGatewayCallback processes the asynchronous gateway webhook. It
// always answers 200 so the gateway does not retry forever over application
// errors it cannot act on; the body reports what actually happened.
func (pc *PaymentController) HandleGatewayCallback(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	signature := strings.TrimSpace(c.Get("X-Gateway-Signature"))
	signatureValid := gateway.VerifyWebhookSignature(rawBody, signature, pc.webhookSecret)

	var payload callbackPayload
	parseErr := json.Unmarshal(rawBody, &payload)

	provider := strings.ToLower(strings.TrimSpace(payload.Provider))
	if provider == "" {
		provider = "unknown"
	}
	eventID := strings.TrimSpace(payload.EventID)
	if eventID == "" {
		sum := sha256.Sum256(rawBody)
		eventID = "hash:" + hex.EncodeToString(sum[:])
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	created, stored, err := pc.webhooks.CreateIfNotExists(&models.GatewayWebhookEvent{
		Provider:        provider,
		ProviderEventID: eventID,
		EventType:       strings.TrimSpace(payload.EventType),
		PayloadJSON:     string(rawBody),
		SignatureValid:  signatureValid,
	})
	if err != nil {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": false, "error": "webhook_persist_failed"})
	}
	if !created {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "duplicate": true})
	}
	if parseErr != nil {
		_ = pc.webhooks.MarkProcessed(stored.ID, "invalid payload: "+parseErr.Error())
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": false, "error": "invalid_payload"})
	}
	if !signatureValid {
		_ = pc.webhooks.MarkProcessed(stored.ID, "invalid webhook signature")
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": false, "error": "invalid_signature"})
	}

	reference := strings.TrimSpace(payload.ReferenceID)
	if reference == "" {
		reference = strings.TrimSpace(payload.TxRef)
	}
	tx, err := pc.svc.LookupTransaction(reference)
	if err != nil {
		if errors.Is(err, payments.ErrTransactionNotFound) {
			_ = pc.webhooks.MarkProcessed(stored.ID, "no local transaction for reference "+reference)
			return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "ignored": true})
		}
		_ = pc.webhooks.MarkProcessed(stored.ID, err.Error())
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": false, "error": "transaction_lookup_failed"})
	}

	_, completeErr := pc.svc.CompletePayment(ctx, tx.ID, mapCallbackStatus(payload.Status), models.ActivationSourceCallback)
	if completeErr != nil {
		_ = pc.webhooks.MarkProcessed(stored.ID, completeErr.Error())
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": false, "error": "reconciliation_failed"})
	}
	_ = pc.webhooks.MarkProcessed(stored.ID, "")
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true})
}

// HandleUserTransactions lists a user's payment history, newest first.
func (pc *PaymentController) HandleUserTransactions(c *fiber.Ctx) error {
	userID, err := c.ParamsInt("user_id")
	if err != nil || userID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_user_id"})
	}
	offset := c.QueryInt("offset", 0)
	limit := c.QueryInt("limit", 20)

	txs, err := pc.svc.ListUserTransactions(uint(userID), offset, limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "transaction_list_failed"})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"transactions": txs})
}

func mapCallbackStatus(s string) gateway.Status {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "SUCCESSFUL", "COMPLETED", "SUCCESS":
		return gateway.StatusSuccessful
	case "FAILED", "REJECTED", "DECLINED":
		return gateway.StatusFailed
	default:
		return gateway.StatusPending
	}
}
