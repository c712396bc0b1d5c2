package controllers

import (
	"context"
	"sync"
	"time"

	"github.com/DriveMint/DriveMint/app/models"
	"github.com/DriveMint/DriveMint/internal/pkg/gateway"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"gorm.io/gorm"
)

// In-memory repositories and a scripted gateway client for handler tests.
// The transaction store mirrors the real repository's conditional terminal
// transition so handler-level idempotency can be asserted end to end.

type stubFeatureRepo struct {
	mu       sync.Mutex
	features map[uint]models.Feature
}

func (r *stubFeatureRepo) Create(f *models.Feature) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.features[f.ID] = *f
	return nil
}

func (r *stubFeatureRepo) GetByID(id uint) (*models.Feature, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.features[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	out := f
	return &out, nil
}

func (r *stubFeatureRepo) GetByCode(code string) (*models.Feature, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, f := range r.features {
		if f.Code == code {
			out := f
			return &out, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *stubFeatureRepo) Update(f *models.Feature) error { return r.Create(f) }

func (r *stubFeatureRepo) ListActive() ([]models.Feature, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Feature
	for _, f := range r.features {
		if f.IsActive {
			out = append(out, f)
		}
	}
	return out, nil
}

func (r *stubFeatureRepo) List(offset, limit int) ([]models.Feature, error) {
	return r.ListActive()
}

func (r *stubFeatureRepo) Count() (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.features)), nil
}

type stubTransactionRepo struct {
	mu  sync.Mutex
	txs map[string]models.Transaction
}

func (r *stubTransactionRepo) Create(tx *models.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now()
	}
	r.txs[tx.ID] = *tx
	return nil
}

func (r *stubTransactionRepo) GetByID(id string) (*models.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx, ok := r.txs[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	out := tx
	return &out, nil
}

func (r *stubTransactionRepo) GetByGatewayRef(ref string) (*models.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, tx := range r.txs {
		if ref != "" && tx.GatewayRef == ref {
			out := tx
			return &out, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *stubTransactionRepo) SetGatewayRef(id, ref string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx, ok := r.txs[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	tx.GatewayRef = ref
	r.txs[id] = tx
	return nil
}

func (r *stubTransactionRepo) MarkCompleted(id string, completedAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx, ok := r.txs[id]
	if !ok {
		return false, gorm.ErrRecordNotFound
	}
	if tx.Status != models.TransactionStatusPending {
		return false, nil
	}
	tx.Status = models.TransactionStatusCompleted
	tx.CompletedAt = &completedAt
	r.txs[id] = tx
	return true, nil
}

func (r *stubTransactionRepo) MarkFailed(id, reason string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx, ok := r.txs[id]
	if !ok {
		return false, gorm.ErrRecordNotFound
	}
	if tx.Status != models.TransactionStatusPending {
		return false, nil
	}
	tx.Status = models.TransactionStatusFailed
	tx.FailureReason = reason
	r.txs[id] = tx
	return true, nil
}

func (r *stubTransactionRepo) ListPendingOlderThan(cutoff time.Time, limit int) ([]models.Transaction, error) {
	return nil, nil
}

func (r *stubTransactionRepo) ListUnactivatedCompleted(limit int) ([]models.Transaction, error) {
	return nil, nil
}

func (r *stubTransactionRepo) ListByUser(userID uint, offset, limit int) ([]models.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Transaction
	for _, tx := range r.txs {
		if tx.UserID == userID {
			out = append(out, tx)
		}
	}
	return out, nil
}

type stubSubscriptionRepo struct {
	mu   sync.Mutex
	subs map[string]models.Subscription
	acts map[string]models.FeatureActivation
}

func (r *stubSubscriptionRepo) GetByID(id string) (*models.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.subs[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	out := sub
	return &out, nil
}

func (r *stubSubscriptionRepo) GetActiveForVehicleFeature(vehicleID string, featureID uint) (*models.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, sub := range r.subs {
		if sub.VehicleID == vehicleID && sub.FeatureID == featureID && sub.Status == models.SubscriptionStatusActive {
			out := sub
			return &out, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *stubSubscriptionRepo) ActivateEntitlement(sub *models.Subscription, act *models.FeatureActivation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	// Idempotent per payment transaction, like the real repository.
	for _, existing := range r.acts {
		if existing.TransactionID == act.TransactionID {
			return nil
		}
	}
	for id, prior := range r.subs {
		if prior.VehicleID == sub.VehicleID && prior.FeatureID == sub.FeatureID && prior.Status == models.SubscriptionStatusActive {
			prior.Status = models.SubscriptionStatusCancelled
			r.subs[id] = prior
			for actID, priorAct := range r.acts {
				if priorAct.SubscriptionID == id {
					priorAct.Status = models.ActivationStatusDeactivated
					r.acts[actID] = priorAct
				}
			}
		}
	}
	r.subs[sub.ID] = *sub
	r.acts[act.ID] = *act
	return nil
}

func (r *stubSubscriptionRepo) ListByVehicle(vehicleID string) ([]models.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Subscription
	for _, sub := range r.subs {
		if sub.VehicleID == vehicleID {
			out = append(out, sub)
		}
	}
	return out, nil
}

func (r *stubSubscriptionRepo) ListActiveActivationsByVehicle(vehicleID string) ([]models.FeatureActivation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.FeatureActivation
	for _, act := range r.acts {
		if act.VehicleID == vehicleID && act.Status == models.ActivationStatusActive {
			out = append(out, act)
		}
	}
	return out, nil
}

func (r *stubSubscriptionRepo) GetActivationBySubscriptionID(subscriptionID string) (*models.FeatureActivation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, act := range r.acts {
		if act.SubscriptionID == subscriptionID {
			out := act
			return &out, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *stubSubscriptionRepo) CountActivationsByTransactionID(transactionID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, act := range r.acts {
		if act.TransactionID == transactionID {
			n++
		}
	}
	return n, nil
}

type stubWebhookRepo struct {
	mu     sync.Mutex
	nextID uint
	events map[string]models.GatewayWebhookEvent
}

func (r *stubWebhookRepo) CreateIfNotExists(event *models.GatewayWebhookEvent) (bool, *models.GatewayWebhookEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := event.Provider + "|" + event.ProviderEventID
	if existing, ok := r.events[key]; ok {
		out := existing
		return false, &out, nil
	}
	r.nextID++
	event.ID = r.nextID
	r.events[key] = *event
	out := *event
	return true, &out, nil
}

func (r *stubWebhookRepo) MarkProcessed(id uint, processingError string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	for key, event := range r.events {
		if event.ID == id {
			event.ProcessedAt = &now
			event.ProcessingError = processingError
			r.events[key] = event
		}
	}
	return nil
}

// stubGatewayClient answers GetStatus from statusSeq one entry per call when
// set, repeating the last entry, and from status otherwise.
type stubGatewayClient struct {
	mu         sync.Mutex
	registered bool
	requestRef string
	requestErr error
	status     gateway.Status
	statusSeq  []gateway.Status
}

func (c *stubGatewayClient) Provider() string { return "stub" }

func (c *stubGatewayClient) ValidatePayer(ctx context.Context, payerIdentity string) (bool, error) {
	return c.registered, nil
}

func (c *stubGatewayClient) RequestPayment(ctx context.Context, req gateway.PaymentRequest) (string, error) {
	if c.requestErr != nil {
		return "", c.requestErr
	}
	return c.requestRef, nil
}

func (c *stubGatewayClient) GetStatus(ctx context.Context, gatewayRef string) (gateway.StatusResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.statusSeq) > 0 {
		status := c.statusSeq[0]
		if len(c.statusSeq) > 1 {
			c.statusSeq = c.statusSeq[1:]
		}
		return gateway.StatusResult{Status: status}, nil
	}
	return gateway.StatusResult{Status: c.status}, nil
}

func newTestApp() *fiber.App {
	app := fiber.New()
	app.Use(recover.New())
	return app
}
