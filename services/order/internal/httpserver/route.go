package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"

	middleware "github.com/Skotchmaster/checkout/pkg/middleware/auth"
)

type Deps struct {
	OrderHandler   *OrderHTTP
	AdminHandler   *AdminHTTP
	WebhookHandler *WebhookHTTP
	JWTSecret      []byte
}

func Register(e *echo.Echo, d *Deps) {
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/health/ready", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	authMW := middleware.NewJWTAuth(d.JWTSecret)

	orders := e.Group("/orders")
	orders.Use(authMW.RequireAuth)

	orders.POST("/checkout", d.OrderHandler.Checkout)
	orders.GET("", d.OrderHandler.ListOrders)
	orders.GET("/:id", d.OrderHandler.GetOrder)
	orders.POST("/:id/cancel", d.OrderHandler.CancelOrder)
	orders.POST("/:id/payments/verify", d.OrderHandler.VerifyPayment)

	e.POST("/payments/webhook", d.WebhookHandler.Receive)

	admin := e.Group("/admin/orders")
	admin.Use(authMW.RequireAdmin)

	admin.GET("", d.AdminHandler.ListOrders)
	admin.GET("/search", d.AdminHandler.SearchOrders)
	admin.GET("/:id", d.AdminHandler.GetOrder)
	admin.PATCH("/:id/status", d.AdminHandler.UpdateStatus)
	admin.POST("/:id/cancel", d.AdminHandler.CancelOrder)
	admin.PATCH("/:id/payment-status", d.AdminHandler.UpdatePaymentStatus)
}
