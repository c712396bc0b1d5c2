package models

import (
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	PricingModelOneTime      = "one_time"
	PricingModelSubscription = "subscription"
)

// Feature is a purchasable software feature from the catalog. Prices are
// stored in minor currency units. The payment pipeline only reads features.
type Feature struct {
	ID           uint   `gorm:"primaryKey" json:"id"`
	Code         string `gorm:"type:varchar(50);uniqueIndex;not null" json:"code" validate:"required,min=2,max=50"`
	Name         string `gorm:"type:varchar(150);not null" json:"name" validate:"required,min=2,max=150"`
	Description  string `gorm:"type:text" json:"description" validate:"max=2000"`
	Price        int64  `gorm:"not null" json:"price" validate:"gte=0"`
	Currency     string `gorm:"type:varchar(8);not null;default:'EUR'" json:"currency" validate:"required,len=3"`
	PricingModel string `gorm:"type:varchar(20);not null;default:'one_time'" json:"pricing_model" validate:"oneof=one_time subscription"`
	IsActive     bool   `gorm:"default:true;index" json:"is_active"`
	// PurchaseCount is maintained by the counter flusher, not by writes
	// from the purchase path itself.
	PurchaseCount int64     `gorm:"not null;default:0" json:"purchase_count"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (f *Feature) Validate() error {
	v := validator.New()

	return v.Struct(f)
}

// IsRecurring reports whether purchasing this feature yields a time-boxed
// subscription rather than a lifetime entitlement.
func (f *Feature) IsRecurring() bool {
	return f.PricingModel == PricingModelSubscription
}
