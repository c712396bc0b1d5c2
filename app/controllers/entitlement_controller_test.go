package controllers

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DriveMint/DriveMint/app/models"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEntitlementFixture() (*fiber.App, *stubSubscriptionRepo) {
	subs := &stubSubscriptionRepo{
		subs: make(map[string]models.Subscription),
		acts: make(map[string]models.FeatureActivation),
	}
	ec := NewEntitlementController(subs)

	app := newTestApp()
	app.Get("/api/v1/vehicles/:vehicle_id/entitlements", ec.HandleVehicleEntitlements)
	return app, subs
}

func seedEntitlement(subs *stubSubscriptionRepo, subID, vehicleID string, featureID uint, endsAt *time.Time, status string) {
	subs.subs[subID] = models.Subscription{
		ID:        subID,
		UserID:    7,
		VehicleID: vehicleID,
		FeatureID: featureID,
		Plan:      models.SubscriptionPlanMonthly,
		Status:    status,
		StartsAt:  time.Now().Add(-time.Hour),
		EndsAt:    endsAt,
	}
	subs.acts["act-"+subID] = models.FeatureActivation{
		ID:             "act-" + subID,
		SubscriptionID: subID,
		VehicleID:      vehicleID,
		FeatureID:      featureID,
		Status:         models.ActivationStatusActive,
		TransactionID:  "tx-" + subID,
		RequestedBy:    7,
		Source:         models.ActivationSourceCallback,
	}
}

func getEntitlements(t *testing.T, app *fiber.App, vehicleID string) (int, map[string]interface{}) {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/vehicles/"+vehicleID+"/entitlements", nil), -1)
	require.NoError(t, err)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	_ = resp.Body.Close()

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &body))
	return resp.StatusCode, body
}

func TestHandleVehicleEntitlements(t *testing.T) {
	app, subs := newEntitlementFixture()

	futureEnd := time.Now().Add(20 * 24 * time.Hour)
	seedEntitlement(subs, "sub-1", "VIN-0001", 1, nil, models.SubscriptionStatusActive)
	seedEntitlement(subs, "sub-2", "VIN-0001", 2, &futureEnd, models.SubscriptionStatusActive)
	seedEntitlement(subs, "sub-3", "VIN-0002", 1, nil, models.SubscriptionStatusActive)

	status, body := getEntitlements(t, app, "VIN-0001")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "VIN-0001", body["vehicle_id"])

	entitlements, ok := body["entitlements"].([]interface{})
	require.True(t, ok)
	assert.Len(t, entitlements, 2)
}

func TestHandleVehicleEntitlements_FiltersLapsedSubscriptions(t *testing.T) {
	app, subs := newEntitlementFixture()

	pastEnd := time.Now().Add(-time.Hour)
	seedEntitlement(subs, "sub-expired", "VIN-0001", 1, &pastEnd, models.SubscriptionStatusActive)
	// Activation still marked active while its subscription is cancelled:
	// the read model must hide it anyway.
	seedEntitlement(subs, "sub-cancelled", "VIN-0001", 2, nil, models.SubscriptionStatusCancelled)

	status, body := getEntitlements(t, app, "VIN-0001")
	assert.Equal(t, fiber.StatusOK, status)

	entitlements, ok := body["entitlements"].([]interface{})
	require.True(t, ok)
	assert.Len(t, entitlements, 0)
}

func TestHandleVehicleEntitlements_EmptyVehicle(t *testing.T) {
	app, _ := newEntitlementFixture()

	status, body := getEntitlements(t, app, "VIN-UNKNOWN")
	assert.Equal(t, fiber.StatusOK, status)

	entitlements, ok := body["entitlements"].([]interface{})
	require.True(t, ok)
	assert.Empty(t, entitlements)
}
