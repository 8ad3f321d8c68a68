package httpserver

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/checkout/pkg/logging"
	middleware "github.com/Skotchmaster/checkout/pkg/middleware/auth"
	"github.com/Skotchmaster/checkout/services/order/internal/service"
	"github.com/Skotchmaster/checkout/services/order/internal/transport"
	"github.com/Skotchmaster/checkout/services/order/internal/util"
)

type OrderHTTP struct {
	Svc *service.OrderService
}

func (h *OrderHTTP) Checkout(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "order.checkout")

	userID, err := middleware.UserID(c)
	if err != nil {
		l.Warn("checkout_error", "status", 401, "error", err)
		return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	var req transport.CheckoutRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("checkout_error", "status", 400, "reason", "invalid body", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	res, err := h.Svc.Checkout(ctx, userID, req)
	if err != nil {
		return fail(l, "checkout_error", err)
	}

	l.Info("order created", "order_id", res.Order.ID, "order_number", res.Order.OrderNumber, "amount_due", res.Order.AmountDue.StringFixed(2))
	return c.JSON(http.StatusCreated, checkoutResponse(res))
}

func (h *OrderHTTP) ListOrders(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "order.list")

	userID, err := middleware.UserID(c)
	if err != nil {
		l.Warn("list_orders_error", "status", 401, "error", err)
		return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	page, size := util.ParsePage(c.QueryParam("page"), c.QueryParam("size"))
	offset, limit := util.Calculate(page, size)

	orders, total, err := h.Svc.ListOrders(ctx, userID, limit, offset)
	if err != nil {
		return fail(l, "list_orders_error", err)
	}
	return c.JSON(http.StatusOK, listResponse(orders, total, page, size))
}

func (h *OrderHTTP) GetOrder(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "order.get")

	userID, err := middleware.UserID(c)
	if err != nil {
		l.Warn("get_order_error", "status", 401, "error", err)
		return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		l.Warn("get_order_error", "status", 400, "reason", "invalid order id", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid order id")
	}

	order, err := h.Svc.GetOrder(ctx, service.Actor{ID: userID}, orderID)
	if err != nil {
		return fail(l, "get_order_error", err)
	}
	return c.JSON(http.StatusOK, orderResponse(order))
}

func (h *OrderHTTP) CancelOrder(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "order.cancel")

	userID, err := middleware.UserID(c)
	if err != nil {
		l.Warn("cancel_order_error", "status", 401, "error", err)
		return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		l.Warn("cancel_order_error", "status", 400, "reason", "invalid order id", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid order id")
	}

	order, err := h.Svc.CancelOrder(ctx, orderID, service.Actor{ID: userID})
	if err != nil {
		return fail(l, "cancel_order_error", err)
	}

	l.Info("order cancelled", "order_id", order.ID)
	return c.JSON(http.StatusOK, orderResponse(order))
}

func (h *OrderHTTP) VerifyPayment(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "order.verify_payment")

	userID, err := middleware.UserID(c)
	if err != nil {
		l.Warn("verify_payment_error", "status", 401, "error", err)
		return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		l.Warn("verify_payment_error", "status", 400, "reason", "invalid order id", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid order id")
	}

	var req transport.VerifyPaymentRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("verify_payment_error", "status", 400, "reason", "invalid body", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	res, err := h.Svc.VerifyPayment(ctx, userID, orderID, req.PaymentReference)
	if err != nil {
		return fail(l, "verify_payment_error", err)
	}

	l.Info("payment verified", "order_id", orderID, "already_processed", res.AlreadyProcessed)
	return c.JSON(http.StatusOK, finalizeResponse(res))
}
