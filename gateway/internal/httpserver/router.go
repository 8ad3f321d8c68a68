package httpserver

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/checkout/gateway/internal/middleware"
	auth "github.com/Skotchmaster/checkout/pkg/middleware/auth"
)

const apiPrefix = "/api/v1"

type Deps struct {
	CartURL  string
	OrderURL string

	JWTSecret  []byte
	CSRFConfig middleware.CSRFConfig
	Logger     *slog.Logger
}

func Register(e *echo.Echo, d *Deps) error {
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/health/ready", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	for _, m := range middleware.Common(logger) {
		e.Use(m)
	}
	e.Use(middleware.CSRF(d.CSRFConfig))

	transport := newTransport()
	orders, err := newUpstream("order", d.OrderURL, transport)
	if err != nil {
		return err
	}
	carts, err := newUpstream("cart", d.CartURL, transport)
	if err != nil {
		return err
	}

	// The payment provider authenticates with a body signature, not a token.
	e.POST(apiPrefix+"/payments/webhook", orders.route(apiPrefix))

	authMW := auth.NewJWTAuth(d.JWTSecret)

	api := e.Group(apiPrefix)
	api.Use(authMW.RequireAuth)

	cartProxy := carts.route(apiPrefix)
	orderProxy := orders.route(apiPrefix)
	api.Any("/cart", cartProxy)
	api.Any("/cart/*", cartProxy)
	api.Any("/orders", orderProxy)
	api.Any("/orders/*", orderProxy)

	admin := e.Group(apiPrefix + "/admin")
	admin.Use(authMW.RequireAdmin)
	admin.Any("/*", orderProxy)

	return nil
}
