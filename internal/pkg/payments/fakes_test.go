package payments

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/DriveMint/DriveMint/app/models"
	"github.com/DriveMint/DriveMint/internal/pkg/gateway"
	"gorm.io/gorm"
)

// In-memory repository fakes backing the service tests. The transaction fake
// reproduces the conditional-update semantics of the real repository: Mark*
// only transitions rows that are still pending and reports whether the caller
// won that transition.

type memFeatureRepo struct {
	mu       sync.Mutex
	features map[uint]models.Feature
}

func newMemFeatureRepo(features ...models.Feature) *memFeatureRepo {
	r := &memFeatureRepo{features: make(map[uint]models.Feature)}
	for _, f := range features {
		r.features[f.ID] = f
	}
	return r
}

func (r *memFeatureRepo) Create(f *models.Feature) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.features[f.ID] = *f
	return nil
}

func (r *memFeatureRepo) GetByID(id uint) (*models.Feature, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.features[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	out := f
	return &out, nil
}

func (r *memFeatureRepo) GetByCode(code string) (*models.Feature, error) {
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

func (r *memFeatureRepo) Update(f *models.Feature) error {
	return r.Create(f)
}

func (r *memFeatureRepo) ListActive() ([]models.Feature, error) {
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

func (r *memFeatureRepo) List(offset, limit int) ([]models.Feature, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Feature
	for _, f := range r.features {
		out = append(out, f)
	}
	return out, nil
}

func (r *memFeatureRepo) Count() (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.features)), nil
}

type memTransactionRepo struct {
	mu   sync.Mutex
	txs  map[string]models.Transaction
	subs *memSubscriptionRepo
}

func newMemTransactionRepo() *memTransactionRepo {
	return &memTransactionRepo{txs: make(map[string]models.Transaction)}
}

func (r *memTransactionRepo) Create(tx *models.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now()
	}
	r.txs[tx.ID] = *tx
	return nil
}

func (r *memTransactionRepo) GetByID(id string) (*models.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx, ok := r.txs[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	out := tx
	return &out, nil
}

func (r *memTransactionRepo) GetByGatewayRef(ref string) (*models.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, tx := range r.txs {
		if tx.GatewayRef == ref && ref != "" {
			out := tx
			return &out, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memTransactionRepo) SetGatewayRef(id, ref string) error {
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

func (r *memTransactionRepo) MarkCompleted(id string, completedAt time.Time) (bool, error) {
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

func (r *memTransactionRepo) MarkFailed(id, reason string) (bool, error) {
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

func (r *memTransactionRepo) ListPendingOlderThan(cutoff time.Time, limit int) ([]models.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Transaction
	for _, tx := range r.txs {
		if tx.Status == models.TransactionStatusPending && tx.CreatedAt.Before(cutoff) {
			out = append(out, tx)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (r *memTransactionRepo) ListUnactivatedCompleted(limit int) ([]models.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Transaction
	for _, tx := range r.txs {
		if tx.Status != models.TransactionStatusCompleted {
			continue
		}
		if r.subs != nil {
			if n, _ := r.subs.CountActivationsByTransactionID(tx.ID); n > 0 {
				continue
			}
		}
		out = append(out, tx)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *memTransactionRepo) ListByUser(userID uint, offset, limit int) ([]models.Transaction, error) {
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

func (r *memTransactionRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.txs)
}

type memSubscriptionRepo struct {
	mu   sync.Mutex
	subs map[string]models.Subscription
	acts map[string]models.FeatureActivation

	// failActivations makes the next N ActivateEntitlement calls fail,
	// simulating a store error after the ledger transition.
	failActivations int
}

func newMemSubscriptionRepo() *memSubscriptionRepo {
	return &memSubscriptionRepo{
		subs: make(map[string]models.Subscription),
		acts: make(map[string]models.FeatureActivation),
	}
}

func (r *memSubscriptionRepo) GetByID(id string) (*models.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.subs[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	out := sub
	return &out, nil
}

func (r *memSubscriptionRepo) GetActiveForVehicleFeature(vehicleID string, featureID uint) (*models.Subscription, error) {
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

func (r *memSubscriptionRepo) ActivateEntitlement(sub *models.Subscription, act *models.FeatureActivation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failActivations > 0 {
		r.failActivations--
		return errors.New("entitlement store unavailable")
	}
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
				if priorAct.SubscriptionID == id && priorAct.Status == models.ActivationStatusActive {
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

func (r *memSubscriptionRepo) ListByVehicle(vehicleID string) ([]models.Subscription, error) {
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

func (r *memSubscriptionRepo) ListActiveActivationsByVehicle(vehicleID string) ([]models.FeatureActivation, error) {
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

func (r *memSubscriptionRepo) GetActivationBySubscriptionID(subscriptionID string) (*models.FeatureActivation, error) {
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

func (r *memSubscriptionRepo) CountActivationsByTransactionID(transactionID string) (int64, error) {
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

func (r *memSubscriptionRepo) activeSubscriptions(vehicleID string, featureID uint) []models.Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Subscription
	for _, sub := range r.subs {
		if sub.VehicleID == vehicleID && sub.FeatureID == featureID && sub.Status == models.SubscriptionStatusActive {
			out = append(out, sub)
		}
	}
	return out
}

func (r *memSubscriptionRepo) subscriptionCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}

func (r *memSubscriptionRepo) activationCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.acts)
}

// fakeGatewayClient scripts gateway behavior per test. When statusSeq is set
// GetStatus consumes it one entry per call, repeating the last entry once the
// script runs out.
type fakeGatewayClient struct {
	mu sync.Mutex

	provider    string
	registered  bool
	validateErr error

	requestRef string
	requestErr error

	status    gateway.Status
	statusSeq []gateway.Status
	statusErr error

	requestCalls int
	statusCalls  int
}

func newFakeGatewayClient() *fakeGatewayClient {
	return &fakeGatewayClient{
		provider:   "fake",
		registered: true,
		requestRef: "gw-ref-1",
		status:     gateway.StatusPending,
	}
}

func (c *fakeGatewayClient) Provider() string {
	return c.provider
}

func (c *fakeGatewayClient) ValidatePayer(ctx context.Context, payerIdentity string) (bool, error) {
	if c.validateErr != nil {
		return false, c.validateErr
	}
	return c.registered, nil
}

func (c *fakeGatewayClient) RequestPayment(ctx context.Context, req gateway.PaymentRequest) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requestCalls++
	if c.requestErr != nil {
		return "", c.requestErr
	}
	return c.requestRef, nil
}

func (c *fakeGatewayClient) GetStatus(ctx context.Context, gatewayRef string) (gateway.StatusResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.statusCalls++
	if c.statusErr != nil {
		return gateway.StatusResult{}, c.statusErr
	}
	if len(c.statusSeq) > 0 {
		status := c.statusSeq[0]
		if len(c.statusSeq) > 1 {
			c.statusSeq = c.statusSeq[1:]
		}
		return gateway.StatusResult{Status: status}, nil
	}
	return gateway.StatusResult{Status: c.status}, nil
}

type serviceFixture struct {
	svc      *Service
	features *memFeatureRepo
	txs      *memTransactionRepo
	subs     *memSubscriptionRepo
	client   *fakeGatewayClient
}

func newServiceFixture(features ...models.Feature) *serviceFixture {
	if len(features) == 0 {
		features = []models.Feature{oneTimeFeature()}
	}
	f := &serviceFixture{
		features: newMemFeatureRepo(features...),
		txs:      newMemTransactionRepo(),
		subs:     newMemSubscriptionRepo(),
		client:   newFakeGatewayClient(),
	}
	f.txs.subs = f.subs
	registry := gateway.NewRegistry().
		Register(models.PaymentMethodMobileMoney, f.client).
		Register(models.PaymentMethodCard, f.client)
	f.svc = NewService(f.features, f.txs, f.subs, registry)
	return f
}

func oneTimeFeature() models.Feature {
	return models.Feature{
		ID:           1,
		Code:         "heated_seats",
		Name:         "Heated Seats",
		Price:        49900,
		Currency:     "EUR",
		PricingModel: models.PricingModelOneTime,
		IsActive:     true,
	}
}

func subscriptionFeature() models.Feature {
	return models.Feature{
		ID:           2,
		Code:         "autopilot_plus",
		Name:         "Autopilot Plus",
		Price:        2900,
		Currency:     "EUR",
		PricingModel: models.PricingModelSubscription,
		IsActive:     true,
	}
}

func validCheckoutInput(featureID uint) CheckoutInput {
	return CheckoutInput{
		UserID:        7,
		VehicleID:     "VIN-0001",
		FeatureID:     featureID,
		PaymentMethod: models.PaymentMethodMobileMoney,
		PayerIdentity: "+256772123456",
	}
}
