package payments

// CheckoutInput is the normalized purchase request handed to the initiation
// service after transport-level parsing.
type CheckoutInput struct {
	UserID        uint
	VehicleID     string
	FeatureID     uint
	PaymentMethod string
	PayerIdentity string
	// BillingPeriod is the monthly/annual selection for subscription
	// features; ignored for one-time features.
	BillingPeriod string
}

// CheckoutResult is the tracking handle returned to the purchaser.
type CheckoutResult struct {
	TransactionID string `json:"transaction_id"`
	GatewayRef    string `json:"gateway_ref"`
	Status        string `json:"status"`
}
