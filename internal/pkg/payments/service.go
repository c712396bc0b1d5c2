package payments

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/DriveMint/DriveMint/app/models"
	"github.com/DriveMint/DriveMint/app/repository"
	"github.com/DriveMint/DriveMint/internal/pkg/gateway"
	"github.com/DriveMint/DriveMint/internal/pkg/metrics/counter"
	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// msisdnPattern matches E.164-style phone numbers with optional leading plus.
var msisdnPattern = regexp.MustCompile(`^\+?[1-9][0-9]{7,14}$`)

// cardTokenPattern matches processor-issued card tokens.
var cardTokenPattern = regexp.MustCompile(`^tok_[A-Za-z0-9]{8,60}$`)

// Service is the payment pipeline core: purchase initiation and the
// idempotent reconciliation of externally observed payment statuses into
// terminal ledger transitions and entitlement activations.
type Service struct {
	features  repository.FeatureRepository
	txs       repository.TransactionRepository
	activator *Activator
	gateways  *gateway.Registry
	now       func() time.Time
}

// NewService creates a payment service from injected repositories and the
// gateway registry.
func NewService(
	features repository.FeatureRepository,
	txs repository.TransactionRepository,
	subs repository.SubscriptionRepository,
	gateways *gateway.Registry,
) *Service {
	return &Service{
		features:  features,
		txs:       txs,
		activator: NewActivator(features, subs),
		gateways:  gateways,
		now:       time.Now,
	}
}

// NewServiceFromDB creates a payment service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB, gateways *gateway.Registry) *Service {
	repos := repository.NewRepositories(db)
	return NewService(repos.Feature, repos.Transaction, repos.Subscription, gateways)
}

// Checkout validates a purchase request, records the pending ledger row and
// issues the gateway payment request.
//
// Ordering is deliberate: the ledger row is written before the gateway call
// so a crash mid-flight leaves a recoverable pending row instead of an
// orphaned gateway request. A failed gateway call marks the row failed
// immediately so it can never get stuck unresolvable.
func (s *Service) Checkout(ctx context.Context, in CheckoutInput) (*CheckoutResult, error) {
	feature, err := s.features.GetByID(in.FeatureID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrFeatureNotFound
		}
		return nil, err
	}
	if !feature.IsActive {
		return nil, ErrFeatureInactive
	}

	billingPeriod, err := resolveBillingPeriod(feature, in.BillingPeriod)
	if err != nil {
		return nil, err
	}
	if err := validateCheckoutInput(in); err != nil {
		return nil, err
	}

	client, err := s.gateways.ForMethod(in.PaymentMethod)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	// Pre-flight: no ledger row may exist for a payer the provider rejects.
	registered, err := client.ValidatePayer(ctx, in.PayerIdentity)
	if err != nil {
		return nil, err
	}
	if !registered {
		return nil, gateway.ErrPayerNotRegistered
	}

	tx := &models.Transaction{
		ID:            uuid.NewString(),
		UserID:        in.UserID,
		VehicleID:     strings.TrimSpace(in.VehicleID),
		FeatureID:     feature.ID,
		Amount:        feature.Price,
		Currency:      feature.Currency,
		PaymentMethod: in.PaymentMethod,
		PayerIdentity: strings.TrimSpace(in.PayerIdentity),
		BillingPeriod: billingPeriod,
		Status:        models.TransactionStatusPending,
	}
	if err := s.txs.Create(tx); err != nil {
		return nil, err
	}

	ref, err := client.RequestPayment(ctx, gateway.PaymentRequest{
		Amount:        tx.Amount,
		Currency:      tx.Currency,
		PayerIdentity: tx.PayerIdentity,
		ExternalID:    tx.ID,
		Description:   fmt.Sprintf("Feature %s for vehicle %s", feature.Code, tx.VehicleID),
	})
	if err != nil {
		// Do not leave a pending row the gateway knows nothing about.
		if _, markErr := s.txs.MarkFailed(tx.ID, truncateReason(err.Error())); markErr != nil {
			log.Errorf("[Payments] could not mark transaction %s failed after gateway error: %v", tx.ID, markErr)
		}
		return nil, err
	}

	if err := s.txs.SetGatewayRef(tx.ID, ref); err != nil {
		// The request is already out; the sweeper can still resolve the row
		// by external id, so only log here.
		log.Errorf("[Payments] could not store gateway ref %s on transaction %s: %v", ref, tx.ID, err)
	}

	return &CheckoutResult{
		TransactionID: tx.ID,
		GatewayRef:    ref,
		Status:        models.TransactionStatusPending,
	}, nil
}

// CompletePayment converts an externally observed payment status into at most
// one terminal ledger transition and at most one entitlement activation. It
// is the idempotent core invoked from both the poll path and the callback
// path; whichever caller wins the conditional update performs the activation,
// every other caller degrades to a read.
func (s *Service) CompletePayment(ctx context.Context, transactionID string, observed gateway.Status, source string) (*models.Transaction, error) {
	tx, err := s.txs.GetByID(transactionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}

	// Idempotency guard: the first terminal write always wins, even when a
	// later report disagrees. Completed rows are still checked for a missing
	// entitlement so an activation write that failed after the winning
	// transition gets healed on redelivery.
	if tx.IsTerminal() {
		return tx, s.ensureEntitlement(ctx, tx, source)
	}

	switch observed {
	case gateway.StatusSuccessful:
		completedAt := s.now()
		won, err := s.txs.MarkCompleted(tx.ID, completedAt)
		if err != nil {
			return nil, err
		}
		if !won {
			return s.txs.GetByID(tx.ID)
		}
		tx.Status = models.TransactionStatusCompleted
		tx.CompletedAt = &completedAt

		if err := s.activator.Activate(ctx, tx, source); err != nil {
			// The ledger transition is final and never unwound; the
			// missing activation is healed by a later reconciliation
			// or the sweeper's recovery pass.
			log.Errorf("[Payments] activation failed for transaction %s: %v", tx.ID, err)
			return tx, err
		}
		if err := counter.AddFeaturePurchase(tx.FeatureID); err != nil {
			log.Debugf("[Payments] purchase counter increment failed for feature %d: %v", tx.FeatureID, err)
		}
		log.Infof("[Payments] transaction %s completed via %s, entitlement activated", tx.ID, source)
		return tx, nil

	case gateway.StatusFailed:
		won, err := s.txs.MarkFailed(tx.ID, "gateway reported failure")
		if err != nil {
			return nil, err
		}
		if !won {
			return s.txs.GetByID(tx.ID)
		}
		tx.Status = models.TransactionStatusFailed
		log.Infof("[Payments] transaction %s failed via %s", tx.ID, source)
		return tx, nil

	default:
		// Still pending at the gateway; nothing to transition.
		return tx, nil
	}
}

// ensureEntitlement re-runs the activation for a completed transaction whose
// subscription never made it to the store. The ledger transition and the
// entitlement write are separate database transactions, so a crash or store
// error between them leaves a completed row with no activation; every
// reconciliation path funnels through here to close that gap.
func (s *Service) ensureEntitlement(ctx context.Context, tx *models.Transaction, source string) error {
	if tx.Status != models.TransactionStatusCompleted {
		return nil
	}
	repaired, err := s.activator.EnsureActivated(ctx, tx, source)
	if err != nil {
		log.Errorf("[Payments] entitlement recovery failed for transaction %s: %v", tx.ID, err)
		return err
	}
	if repaired {
		if err := counter.AddFeaturePurchase(tx.FeatureID); err != nil {
			log.Debugf("[Payments] purchase counter increment failed for feature %d: %v", tx.FeatureID, err)
		}
		log.Infof("[Payments] recovered missing entitlement for transaction %s via %s", tx.ID, source)
	}
	return nil
}

// Reconcile performs one poll step: query the gateway for the transaction's
// current status and feed it through CompletePayment. Used by the status
// endpoint, the client poller and the background sweeper.
func (s *Service) Reconcile(ctx context.Context, transactionID, source string) (*models.Transaction, error) {
	tx, err := s.txs.GetByID(transactionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	if tx.IsTerminal() {
		return tx, s.ensureEntitlement(ctx, tx, source)
	}
	if tx.GatewayRef == "" {
		// Recoverable pending row from a crash between ledger write and
		// gateway call; there is nothing to query yet.
		return tx, nil
	}

	client, err := s.gateways.ForMethod(tx.PaymentMethod)
	if err != nil {
		return tx, err
	}
	result, err := client.GetStatus(ctx, tx.GatewayRef)
	if err != nil {
		return tx, err
	}
	return s.CompletePayment(ctx, transactionID, result.Status, source)
}

// LookupTransaction resolves a callback reference to a ledger row. Providers
// echo either our transaction id (card tx_ref) or the gateway reference we
// generated (mobile money X-Reference-Id).
func (s *Service) LookupTransaction(ref string) (*models.Transaction, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, ErrTransactionNotFound
	}
	tx, err := s.txs.GetByID(ref)
	if err == nil {
		return tx, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	tx, err = s.txs.GetByGatewayRef(ref)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return tx, nil
}

// ListUserTransactions returns a user's payment history, newest first.
func (s *Service) ListUserTransactions(userID uint, offset, limit int) ([]models.Transaction, error) {
	return s.txs.ListByUser(userID, offset, limit)
}

// GetTransaction loads a ledger row by id.
func (s *Service) GetTransaction(transactionID string) (*models.Transaction, error) {
	tx, err := s.txs.GetByID(transactionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return tx, nil
}

func validateCheckoutInput(in CheckoutInput) error {
	if in.UserID == 0 {
		return fmt.Errorf("%w: user id is required", ErrValidation)
	}
	if strings.TrimSpace(in.VehicleID) == "" {
		return fmt.Errorf("%w: vehicle id is required", ErrValidation)
	}
	if !models.ValidPaymentMethod(in.PaymentMethod) {
		return fmt.Errorf("%w: unknown payment method %q", ErrValidation, in.PaymentMethod)
	}

	identity := strings.TrimSpace(in.PayerIdentity)
	switch in.PaymentMethod {
	case models.PaymentMethodMobileMoney:
		if !msisdnPattern.MatchString(identity) {
			return fmt.Errorf("%w: payer identity is not a valid msisdn", ErrValidation)
		}
	case models.PaymentMethodCard:
		if !cardTokenPattern.MatchString(identity) {
			return fmt.Errorf("%w: payer identity is not a valid card token", ErrValidation)
		}
	}
	return nil
}

// resolveBillingPeriod validates the monthly/annual selection against the
// feature's pricing model.
func resolveBillingPeriod(feature *models.Feature, requested string) (string, error) {
	requested = strings.ToLower(strings.TrimSpace(requested))
	if !feature.IsRecurring() {
		return models.BillingPeriodNone, nil
	}
	switch requested {
	case models.BillingPeriodMonthly, models.BillingPeriodAnnual:
		return requested, nil
	case "":
		return "", fmt.Errorf("%w: billing period is required for subscription features", ErrValidation)
	default:
		return "", fmt.Errorf("%w: unknown billing period %q", ErrValidation, requested)
	}
}

func truncateReason(reason string) string {
	if len(reason) > 255 {
		return reason[:255]
	}
	return reason
}
