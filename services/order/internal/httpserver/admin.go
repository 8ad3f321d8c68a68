package httpserver

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/checkout/pkg/logging"
	middleware "github.com/Skotchmaster/checkout/pkg/middleware/auth"
	"github.com/Skotchmaster/checkout/services/order/internal/indexer"
	"github.com/Skotchmaster/checkout/services/order/internal/models"
	"github.com/Skotchmaster/checkout/services/order/internal/service"
	"github.com/Skotchmaster/checkout/services/order/internal/transport"
	"github.com/Skotchmaster/checkout/services/order/internal/util"
)

// AdminHTTP serves the back-office order endpoints. Routes are mounted
// behind RequireAdmin.
type AdminHTTP struct {
	Svc *service.OrderService

	// Search is nil when no Elasticsearch is configured.
	Search *indexer.Searcher
}

func (h *AdminHTTP) ListOrders(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "admin.list_orders")

	page, size := util.ParsePage(c.QueryParam("page"), c.QueryParam("size"))
	offset, limit := util.Calculate(page, size)

	orders, total, err := h.Svc.ListByStatus(ctx, models.OrderStatus(c.QueryParam("status")), limit, offset)
	if err != nil {
		return fail(l, "admin_list_orders_error", err)
	}
	return c.JSON(http.StatusOK, listResponse(orders, total, page, size))
}

func (h *AdminHTTP) SearchOrders(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "admin.search_orders")

	if h.Search == nil {
		l.Warn("search_orders_error", "status", 503, "reason", "search not configured")
		return echo.NewHTTPError(http.StatusServiceUnavailable, "search not configured")
	}

	q := c.QueryParam("q")
	if q == "" {
		l.Warn("search_orders_error", "status", 400, "reason", "empty query")
		return echo.NewHTTPError(http.StatusBadRequest, "query required")
	}

	page, size := util.ParsePage(c.QueryParam("page"), c.QueryParam("size"))
	from, size := util.Calculate(page, size)

	total, docs, err := h.Search.Search(ctx, q, from, size)
	if err != nil {
		l.Error("search_orders_error", "status", 502, "error", err)
		return echo.NewHTTPError(http.StatusBadGateway, "search unavailable")
	}
	return c.JSON(http.StatusOK, transport.SearchResponse{Total: total, Orders: docs, Page: page, Size: size})
}

func (h *AdminHTTP) GetOrder(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "admin.get_order")

	actor, orderID, err := adminTarget(c)
	if err != nil {
		l.Warn("admin_get_order_error", "status", 400, "error", err)
		return err
	}

	order, err := h.Svc.GetOrder(ctx, actor, orderID)
	if err != nil {
		return fail(l, "admin_get_order_error", err)
	}
	return c.JSON(http.StatusOK, orderResponse(order))
}

func (h *AdminHTTP) UpdateStatus(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "admin.update_status")

	actor, orderID, err := adminTarget(c)
	if err != nil {
		l.Warn("update_status_error", "status", 400, "error", err)
		return err
	}

	var req transport.UpdateStatusRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("update_status_error", "status", 400, "reason", "invalid body", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	order, err := h.Svc.UpdateOrderStatus(ctx, orderID, actor.ID, req.Status)
	if err != nil {
		return fail(l, "update_status_error", err)
	}

	l.Info("order status updated", "order_id", order.ID, "status", order.OrderStatus, "admin_id", actor.ID)
	return c.JSON(http.StatusOK, orderResponse(order))
}

func (h *AdminHTTP) CancelOrder(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "admin.cancel_order")

	actor, orderID, err := adminTarget(c)
	if err != nil {
		l.Warn("admin_cancel_order_error", "status", 400, "error", err)
		return err
	}

	order, err := h.Svc.CancelOrder(ctx, orderID, actor)
	if err != nil {
		return fail(l, "admin_cancel_order_error", err)
	}

	l.Info("order cancelled by admin", "order_id", order.ID, "admin_id", actor.ID)
	return c.JSON(http.StatusOK, orderResponse(order))
}

func (h *AdminHTTP) UpdatePaymentStatus(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "admin.update_payment_status")

	actor, orderID, err := adminTarget(c)
	if err != nil {
		l.Warn("update_payment_status_error", "status", 400, "error", err)
		return err
	}

	var req transport.UpdatePaymentStatusRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("update_payment_status_error", "status", 400, "reason", "invalid body", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	order, err := h.Svc.UpdatePaymentStatusAfterCancel(ctx, orderID, req.PaymentStatus)
	if err != nil {
		return fail(l, "update_payment_status_error", err)
	}

	l.Info("payment status updated", "order_id", order.ID, "payment_status", order.PaymentStatus, "admin_id", actor.ID)
	return c.JSON(http.StatusOK, orderResponse(order))
}

func adminTarget(c echo.Context) (service.Actor, uuid.UUID, error) {
	adminID, err := middleware.UserID(c)
	if err != nil {
		return service.Actor{}, uuid.Nil, echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return service.Actor{}, uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid order id")
	}
	return service.Actor{ID: adminID, Admin: true}, orderID, nil
}
