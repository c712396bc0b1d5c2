package constants

// Static route constants
const (
	APIRoute   = "/api"
	APIv1Route = "/v1"

	CheckoutRoute            = "/payments/checkout"
	CallbackRoute            = "/payments/callback"
	FeaturesRoute            = "/features"
	FeatureRoute             = "/features/:id"
	UserTransactionsRoute    = "/users/:user_id/transactions"
	VehicleEntitlementsRoute = "/vehicles/:vehicle_id/entitlements"
)
