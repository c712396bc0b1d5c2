package controllers

import (
	"time"

	"github.com/DriveMint/DriveMint/app/models"
	"github.com/DriveMint/DriveMint/app/repository"
	"github.com/DriveMint/DriveMint/internal/pkg/cache"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
)

const (
	featureCacheKey = "features:active"
	featureCacheTTL = 5 * time.Minute
)

// FeatureController serves the read-only purchasable feature catalog.
type FeatureController struct {
	features repository.FeatureRepository
}

// NewFeatureController creates a feature catalog controller.
func NewFeatureController(features repository.FeatureRepository) *FeatureController {
	return &FeatureController{features: features}
}

// HandleListFeatures returns all active catalog features, cached for a few
// minutes since the catalog changes rarely and every checkout reads it.
func (fc *FeatureController) HandleListFeatures(c *fiber.Ctx) error {
	var cached []models.Feature
	if err := cache.GetJSON(featureCacheKey, &cached); err == nil {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"features": cached})
	}

	features, err := fc.features.ListActive()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "feature_list_failed"})
	}

	if err := cache.SetJSON(featureCacheKey, features, featureCacheTTL); err != nil {
		log.Warnf("[Features] could not cache catalog: %v", err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"features": features})
}

// HandleGetFeature returns a single catalog feature by id.
func (fc *FeatureController) HandleGetFeature(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_feature_id"})
	}
	feature, err := fc.features.GetByID(uint(id))
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "feature_not_found"})
	}
	return c.Status(fiber.StatusOK).JSON(feature)
}
