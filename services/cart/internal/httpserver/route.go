package httpserver

import (
	"net/http"

	middleware "github.com/Skotchmaster/checkout/pkg/middleware/auth"
	"github.com/labstack/echo/v4"
)

type Deps struct {
	CartHandler *CartHTTP
	JWTSecret   []byte
}

func Register(e *echo.Echo, d *Deps) {
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/health/ready", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	authMW := middleware.NewJWTAuth(d.JWTSecret)

	cart := e.Group("/cart")
	cart.Use(authMW.RequireAuth)

	cart.GET("", d.CartHandler.GetCart)
	cart.DELETE("", d.CartHandler.ClearCart)
	cart.POST("/items", d.CartHandler.AddItem)
	cart.PATCH("/items/:id", d.CartHandler.UpdateItem)
	cart.DELETE("/items/:id", d.CartHandler.RemoveItem)
	cart.POST("/sync", d.CartHandler.SyncGuestCart)
}
