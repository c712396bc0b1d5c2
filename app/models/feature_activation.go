package models

import "time"

const (
	ActivationStatusActive      = "active"
	ActivationStatusDeactivated = "deactivated"
)

// Activation request sources, recorded for audit.
const (
	ActivationSourceCheckout = "checkout"
	ActivationSourceCallback = "callback"
	ActivationSourceSweep    = "sweep"
)

// FeatureActivation is the vehicle-facing half of an entitlement. The vehicle
// side reads these rows to decide whether a feature is unlocked; their
// lifetime mirrors the owning subscription.
type FeatureActivation struct {
	ID             string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	SubscriptionID string    `gorm:"type:varchar(36);not null;uniqueIndex" json:"subscription_id"`
	VehicleID      string    `gorm:"type:varchar(36);not null;index:idx_activations_vehicle_status,priority:1" json:"vehicle_id"`
	FeatureID      uint      `gorm:"not null;index" json:"feature_id"`
	Status         string    `gorm:"type:varchar(16);not null;default:'active';index:idx_activations_vehicle_status,priority:2" json:"status"`
	TransactionID  string    `gorm:"type:varchar(36);not null;uniqueIndex" json:"transaction_id"`
	RequestedBy    uint      `gorm:"not null" json:"requested_by"`
	Source         string    `gorm:"type:varchar(16);not null" json:"source"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
