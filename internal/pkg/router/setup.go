package router

import (
	"github.com/DriveMint/DriveMint/app/controllers"
	"github.com/gofiber/fiber/v2"
)

// Router installs a set of routes on the fiber app.
type Router interface {
	InstallRouter(app *fiber.App)
}

// Controllers bundles the controller instances the routers mount. They are
// constructed once at startup with their dependencies and passed in here, so
// nothing route-facing reaches for hidden globals.
type Controllers struct {
	Payment     *controllers.PaymentController
	Feature     *controllers.FeatureController
	Entitlement *controllers.EntitlementController
}

// InstallRouter wires all route groups into the app.
func InstallRouter(app *fiber.App, c Controllers) {
	setup(app, NewApiRouter(c))
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
