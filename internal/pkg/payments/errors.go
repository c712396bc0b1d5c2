package payments

import "errors"

var (
	// ErrFeatureNotFound means the requested feature does not exist.
	ErrFeatureNotFound = errors.New("feature not found")
	// ErrFeatureInactive means the feature exists but is not purchasable.
	ErrFeatureInactive = errors.New("feature is not active")
	// ErrValidation covers malformed checkout input; wrapped with detail.
	ErrValidation = errors.New("validation failed")
	// ErrTransactionNotFound means no ledger row exists for the given id.
	ErrTransactionNotFound = errors.New("transaction not found")
	// ErrPollTimeout means the bounded poll loop gave up; the transaction
	// itself stays pending and may still resolve via callback or sweep.
	ErrPollTimeout = errors.New("payment still unresolved after polling")
)
