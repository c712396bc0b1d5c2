package main

import (
	"fmt"
	"log"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/DriveMint/DriveMint/app/controllers"
	"github.com/DriveMint/DriveMint/app/models"
	"github.com/DriveMint/DriveMint/app/repository"
	"github.com/DriveMint/DriveMint/internal/pkg/cache"
	"github.com/DriveMint/DriveMint/internal/pkg/database"
	"github.com/DriveMint/DriveMint/internal/pkg/env"
	"github.com/DriveMint/DriveMint/internal/pkg/gateway"
	"github.com/DriveMint/DriveMint/internal/pkg/payments"
	"github.com/DriveMint/DriveMint/internal/pkg/router"
)

func main() {
	app, sweeper := NewApplication()
	sweeper.Start()
	defer sweeper.Stop()

	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	log.Fatal(err)
}

func NewApplication() (*fiber.App, *payments.Sweeper) {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()
	repository.InitializeFactory(database.GetDB())
	repos := repository.GetGlobalFactory().GetRepositories()

	// One explicitly constructed gateway adapter per provider, owned here
	// and injected downstream.
	gateways := gateway.NewRegistry().
		Register(models.PaymentMethodMobileMoney, gateway.NewMoMoClientFromEnv()).
		Register(models.PaymentMethodCard, gateway.NewCardClientFromEnv())

	paymentSvc := payments.NewService(repos.Feature, repos.Transaction, repos.Subscription, gateways)
	sweeper := payments.NewSweeperFromEnv(paymentSvc, repos.Transaction)

	app := fiber.New(fiber.Config{
		AppName: "DriveMint",
	})
	app.Use(recover.New(), logger.New())
	app.Get("/metrics", monitor.New())

	// SWAGGER / OPENAPI
	openAPICfg := swagger.Config{
		BasePath: "/docs/api/",
		FilePath: "./public/docs/v1/openapi.yml",
		Path:     "v1",
	}
	app.Use(swagger.New(openAPICfg))

	// ROUTER
	router.InstallRouter(app, router.Controllers{
		Payment: controllers.NewPaymentController(
			paymentSvc,
			repos.WebhookEvent,
			env.GetEnv("GATEWAY_WEBHOOK_SECRET", ""),
		),
		Feature:     controllers.NewFeatureController(repos.Feature),
		Entitlement: controllers.NewEntitlementController(repos.Subscription),
	})

	return app, sweeper
}
