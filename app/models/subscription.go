package models

import "time"

const (
	SubscriptionStatusActive    = "active"
	SubscriptionStatusCancelled = "cancelled"
	SubscriptionStatusExpired   = "expired"
)

const (
	SubscriptionPlanLifetime = "lifetime"
	SubscriptionPlanMonthly  = "monthly"
	SubscriptionPlanAnnual   = "annual"
)

// Subscription is one half of an entitlement: the right for a vehicle to use
// a feature, bounded by EndsAt (nil = non-expiring). At most one active
// subscription may exist per (vehicle_id, feature_id); a repurchase cancels
// the previous one inside the same DB transaction that creates the new one.
type Subscription struct {
	ID            string     `gorm:"primaryKey;type:varchar(36)" json:"id"`
	UserID        uint       `gorm:"not null;index" json:"user_id"`
	VehicleID     string     `gorm:"type:varchar(36);not null;index:idx_subscriptions_vehicle_feature,priority:1" json:"vehicle_id"`
	FeatureID     uint       `gorm:"not null;index:idx_subscriptions_vehicle_feature,priority:2" json:"feature_id"`
	Plan          string     `gorm:"type:varchar(16);not null" json:"plan"`
	Status        string     `gorm:"type:varchar(16);not null;default:'active';index" json:"status"`
	AutoRenew     bool       `gorm:"default:false" json:"auto_renew"`
	TransactionID string     `gorm:"type:varchar(36);not null;index" json:"transaction_id"`
	StartsAt      time.Time  `gorm:"not null" json:"starts_at"`
	EndsAt        *time.Time `gorm:"type:timestamp;default:null" json:"ends_at,omitempty"`
	CreatedAt     time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsCurrent reports whether the subscription entitles the vehicle at t.
func (s *Subscription) IsCurrent(t time.Time) bool {
	if s.Status != SubscriptionStatusActive {
		return false
	}
	if s.EndsAt == nil {
		return true
	}
	return s.EndsAt.After(t)
}
