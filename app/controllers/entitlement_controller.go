package controllers

import (
	"strings"
	"time"

	"github.com/DriveMint/DriveMint/app/repository"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
)

// EntitlementController serves the vehicle-facing entitlement read model:
// which features a vehicle is currently allowed to use.
type EntitlementController struct {
	subs repository.SubscriptionRepository
}

// NewEntitlementController creates an entitlement controller.
func NewEntitlementController(subs repository.SubscriptionRepository) *EntitlementController {
	return &EntitlementController{subs: subs}
}

// HandleVehicleEntitlements lists the vehicle's active feature activations
// together with their subscription window. Activations whose subscription
// has run out are filtered; the lifecycle process expires them separately.
func (ec *EntitlementController) HandleVehicleEntitlements(c *fiber.Ctx) error {
	vehicleID := strings.TrimSpace(c.Params("vehicle_id"))
	if vehicleID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "vehicle_id_required"})
	}

	activations, err := ec.subs.ListActiveActivationsByVehicle(vehicleID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "entitlement_list_failed"})
	}

	now := time.Now()
	entitlements := make([]fiber.Map, 0, len(activations))
	for _, act := range activations {
		sub, err := ec.subs.GetByID(act.SubscriptionID)
		if err != nil {
			log.Warnf("[Entitlements] activation %s has no subscription %s: %v", act.ID, act.SubscriptionID, err)
			continue
		}
		if !sub.IsCurrent(now) {
			continue
		}
		entitlements = append(entitlements, fiber.Map{
			"feature_id":      act.FeatureID,
			"subscription_id": sub.ID,
			"plan":            sub.Plan,
			"auto_renew":      sub.AutoRenew,
			"activated_at":    act.CreatedAt.UTC().Format(time.RFC3339),
			"ends_at":         formatTimePtr(sub.EndsAt),
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"vehicle_id":   vehicleID,
		"entitlements": entitlements,
	})
}
