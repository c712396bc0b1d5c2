package models

import "time"

const (
	TransactionStatusPending   = "pending"
	TransactionStatusCompleted = "completed"
	TransactionStatusFailed    = "failed"
)

const (
	PaymentMethodMobileMoney = "mobile_money"
	PaymentMethodCard        = "card"
)

const (
	BillingPeriodNone    = "none"
	BillingPeriodMonthly = "monthly"
	BillingPeriodAnnual  = "annual"
)

// Transaction is the payment ledger entry. Its ID doubles as the idempotency
// key for reconciliation: repeated status reports for the same ID must produce
// at most one terminal transition. Rows only ever move pending -> completed or
// pending -> failed, enforced via a conditional update in the repository.
type Transaction struct {
	ID            string     `gorm:"primaryKey;type:varchar(36)" json:"id"`
	UserID        uint       `gorm:"not null;index" json:"user_id"`
	VehicleID     string     `gorm:"type:varchar(36);not null;index" json:"vehicle_id"`
	FeatureID     uint       `gorm:"not null;index" json:"feature_id"`
	Amount        int64      `gorm:"not null" json:"amount"`
	Currency      string     `gorm:"type:varchar(8);not null" json:"currency"`
	PaymentMethod string     `gorm:"type:varchar(20);not null" json:"payment_method"`
	PayerIdentity string     `gorm:"type:varchar(100);not null" json:"-"`
	BillingPeriod string     `gorm:"type:varchar(10);not null;default:'none'" json:"billing_period"`
	Status        string     `gorm:"type:varchar(16);not null;default:'pending';index" json:"status"`
	GatewayRef    string     `gorm:"type:varchar(64);default:null;index" json:"gateway_ref,omitempty"`
	FailureReason string     `gorm:"type:varchar(255)" json:"failure_reason,omitempty"`
	CreatedAt     time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
	CompletedAt   *time.Time `gorm:"type:timestamp;default:null" json:"completed_at,omitempty"`
}

// IsTerminal reports whether the transaction reached a final state. Terminal
// rows are never mutated again.
func (t *Transaction) IsTerminal() bool {
	return t.Status == TransactionStatusCompleted || t.Status == TransactionStatusFailed
}

// ValidBillingPeriod reports whether p is a known billing period selection.
func ValidBillingPeriod(p string) bool {
	switch p {
	case BillingPeriodNone, BillingPeriodMonthly, BillingPeriodAnnual:
		return true
	default:
		return false
	}
}

// ValidPaymentMethod reports whether m names a supported payment method.
func ValidPaymentMethod(m string) bool {
	switch m {
	case PaymentMethodMobileMoney, PaymentMethodCard:
		return true
	default:
		return false
	}
}
