package repository

import (
	"time"

	"github.com/DriveMint/DriveMint/app/models"
	"gorm.io/gorm"
)

// FeatureRepository defines the interface for feature catalog database
// operations. The payment pipeline only reads from it.
type FeatureRepository interface {
	Create(feature *models.Feature) error
	GetByID(id uint) (*models.Feature, error)
	GetByCode(code string) (*models.Feature, error)
	Update(feature *models.Feature) error
	ListActive() ([]models.Feature, error)
	List(offset, limit int) ([]models.Feature, error)
	Count() (int64, error)
}

// TransactionRepository defines the interface for payment ledger operations.
// Terminal transitions go through the conditional Mark* methods only; their
// boolean result reports whether this caller won the pending -> terminal
// transition.
type TransactionRepository interface {
	Create(tx *models.Transaction) error
	GetByID(id string) (*models.Transaction, error)
	GetByGatewayRef(ref string) (*models.Transaction, error)
	SetGatewayRef(id, ref string) error
	MarkCompleted(id string, completedAt time.Time) (bool, error)
	MarkFailed(id, reason string) (bool, error)
	ListPendingOlderThan(cutoff time.Time, limit int) ([]models.Transaction, error)
	ListUnactivatedCompleted(limit int) ([]models.Transaction, error)
	ListByUser(userID uint, offset, limit int) ([]models.Transaction, error)
}

// SubscriptionRepository defines the interface for entitlement persistence.
// ActivateEntitlement is the single atomic unit of work that supersedes a
// prior active subscription and writes the new subscription + activation
// pair; it no-ops when the payment transaction already has an activation.
type SubscriptionRepository interface {
	GetByID(id string) (*models.Subscription, error)
	GetActiveForVehicleFeature(vehicleID string, featureID uint) (*models.Subscription, error)
	ActivateEntitlement(sub *models.Subscription, act *models.FeatureActivation) error
	ListByVehicle(vehicleID string) ([]models.Subscription, error)
	ListActiveActivationsByVehicle(vehicleID string) ([]models.FeatureActivation, error)
	GetActivationBySubscriptionID(subscriptionID string) (*models.FeatureActivation, error)
	CountActivationsByTransactionID(transactionID string) (int64, error)
}

// WebhookEventRepository stores gateway callback payloads idempotently.
type WebhookEventRepository interface {
	CreateIfNotExists(event *models.GatewayWebhookEvent) (bool, *models.GatewayWebhookEvent, error)
	MarkProcessed(id uint, processingError string) error
}

// Repositories struct holds all repository instances
type Repositories struct {
	Feature      FeatureRepository
	Transaction  TransactionRepository
	Subscription SubscriptionRepository
	WebhookEvent WebhookEventRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Feature:      NewFeatureRepository(db),
		Transaction:  NewTransactionRepository(db),
		Subscription: NewSubscriptionRepository(db),
		WebhookEvent: NewWebhookEventRepository(db),
	}
}
