package router

import (
	"net"
	"strconv"

	"github.com/DriveMint/DriveMint/internal/pkg/cache"
	"github.com/DriveMint/DriveMint/internal/pkg/constants"
	"github.com/DriveMint/DriveMint/internal/pkg/env"
	"github.com/DriveMint/DriveMint/internal/pkg/middleware"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/storage/redis"
)

type ApiRouter struct {
	controllers Controllers
}

func NewApiRouter(c Controllers) *ApiRouter {
	return &ApiRouter{controllers: c}
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group(constants.APIRoute, limiter.New(limiter.Config{
		Storage: newLimiterStorage(),
	}))
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	// API v1 routes
	v1 := api.Group(constants.APIv1Route)

	v1.Post(constants.CheckoutRoute, h.controllers.Payment.HandleCheckout)
	v1.Get(constants.CheckoutRoute, h.controllers.Payment.HandleCheckoutStatus)
	v1.Post(constants.CallbackRoute, h.controllers.Payment.HandleGatewayCallback)
	v1.Get(constants.UserTransactionsRoute, h.controllers.Payment.HandleUserTransactions)

	v1.Get(constants.FeaturesRoute, h.controllers.Feature.HandleListFeatures)
	v1.Get(constants.FeatureRoute, h.controllers.Feature.HandleGetFeature)

	// Vehicle backends authenticate with the internal API key.
	v1.Get(constants.VehicleEntitlementsRoute, middleware.InternalAPIKeyMiddleware(), h.controllers.Entitlement.HandleVehicleEntitlements)
}

// newLimiterStorage backs the rate limiter with Redis so limits hold across
// instances; it reuses the cache connection settings, on database 1.
func newLimiterStorage() *redis.Storage {
	cacheClient := cache.GetClient()
	host := "localhost"
	port := 6379
	password := env.GetEnv("CACHE_PASSWORD", "")
	if cacheClient != nil {
		addr := cacheClient.Options().Addr
		if h, p, err := net.SplitHostPort(addr); err == nil {
			host = h
			if v, err := strconv.Atoi(p); err == nil {
				port = v
			}
		}
		if p := cacheClient.Options().Password; p != "" {
			password = p
		}
	}

	return redis.New(redis.Config{
		Host:     host,
		Port:     port,
		Password: password,
		Database: 1, // Separate database for rate limiting
		Reset:    false,
	})
}
