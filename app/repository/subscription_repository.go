package repository

import (
	"github.com/DriveMint/DriveMint/app/models"
	"gorm.io/gorm"
)

// subscriptionRepository implements the SubscriptionRepository interface
type subscriptionRepository struct {
	db *gorm.DB
}

// NewSubscriptionRepository creates a new subscription repository instance
func NewSubscriptionRepository(db *gorm.DB) SubscriptionRepository {
	return &subscriptionRepository{db: db}
}

func (r *subscriptionRepository) GetByID(id string) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.Where("id = ?", id).First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *subscriptionRepository) GetActiveForVehicleFeature(vehicleID string, featureID uint) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.
		Where("vehicle_id = ? AND feature_id = ? AND status = ?",
			vehicleID, featureID, models.SubscriptionStatusActive).
		First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// ActivateEntitlement writes the subscription + activation pair in a single
// database transaction, superseding any prior active subscription for the
// same (vehicle, feature). Partial writes are rolled back and never visible.
// The write is idempotent per payment: when an activation already exists for
// the payment transaction, the call is a no-op. The unique index on
// feature_activations.transaction_id backstops racing writers.
func (r *subscriptionRepository) ActivateEntitlement(sub *models.Subscription, act *models.FeatureActivation) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Model(&models.FeatureActivation{}).
			Where("transaction_id = ?", act.TransactionID).
			Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return nil
		}

		// Supersede: cancel prior active subscriptions and deactivate their
		// vehicle-facing activations.
		var priors []models.Subscription
		if err := tx.
			Where("vehicle_id = ? AND feature_id = ? AND status = ?",
				sub.VehicleID, sub.FeatureID, models.SubscriptionStatusActive).
			Find(&priors).Error; err != nil {
			return err
		}
		for _, prior := range priors {
			if err := tx.Model(&models.Subscription{}).Where("id = ?", prior.ID).
				Update("status", models.SubscriptionStatusCancelled).Error; err != nil {
				return err
			}
			if err := tx.Model(&models.FeatureActivation{}).
				Where("subscription_id = ?", prior.ID).
				Update("status", models.ActivationStatusDeactivated).Error; err != nil {
				return err
			}
		}

		if err := tx.Create(sub).Error; err != nil {
			return err
		}
		return tx.Create(act).Error
	})
}

func (r *subscriptionRepository) ListByVehicle(vehicleID string) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := r.db.Where("vehicle_id = ?", vehicleID).
		Order("created_at DESC").Find(&subs).Error
	return subs, err
}

func (r *subscriptionRepository) ListActiveActivationsByVehicle(vehicleID string) ([]models.FeatureActivation, error) {
	var acts []models.FeatureActivation
	err := r.db.
		Where("vehicle_id = ? AND status = ?", vehicleID, models.ActivationStatusActive).
		Order("created_at DESC").Find(&acts).Error
	return acts, err
}

func (r *subscriptionRepository) GetActivationBySubscriptionID(subscriptionID string) (*models.FeatureActivation, error) {
	var act models.FeatureActivation
	err := r.db.Where("subscription_id = ?", subscriptionID).First(&act).Error
	if err != nil {
		return nil, err
	}
	return &act, nil
}

func (r *subscriptionRepository) CountActivationsByTransactionID(transactionID string) (int64, error) {
	var count int64
	err := r.db.Model(&models.FeatureActivation{}).
		Where("transaction_id = ?", transactionID).Count(&count).Error
	return count, err
}
