package httpserver

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/checkout/pkg/logging"
	middleware "github.com/Skotchmaster/checkout/pkg/middleware/auth"
	"github.com/Skotchmaster/checkout/pkg/money"
	"github.com/Skotchmaster/checkout/services/cart/internal/models"
	"github.com/Skotchmaster/checkout/services/cart/internal/service"
	"github.com/Skotchmaster/checkout/services/cart/internal/transport"
)

type CartHTTP struct {
	Svc *service.CartService
}

func (h *CartHTTP) GetCart(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "get.cart")

	userID, err := middleware.UserID(c)
	if err != nil {
		l.Warn("get_cart_error", "status", 401, "error", err)
		return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	view, err := h.Svc.GetCart(ctx, userID)
	if err != nil {
		return fail(l, "get_cart_error", err)
	}

	return c.JSON(http.StatusOK, cartResponse(view))
}

func (h *CartHTTP) AddItem(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "add.item")

	userID, err := middleware.UserID(c)
	if err != nil {
		l.Warn("add_item_error", "status", 401, "error", err)
		return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	var req transport.AddItemRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("add_item_error", "status", 400, "reason", "invalid body", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	item, err := h.Svc.AddItem(ctx, userID, req.VariantID, req.Quantity)
	if err != nil {
		return fail(l, "add_item_error", err)
	}

	l.Info("item added to cart", "item_id", item.ID, "quantity", item.Quantity)
	return c.JSON(http.StatusCreated, itemResponse(item, false))
}

func (h *CartHTTP) UpdateItem(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "update.item")

	userID, err := middleware.UserID(c)
	if err != nil {
		l.Warn("update_item_error", "status", 401, "error", err)
		return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	itemID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		l.Warn("update_item_error", "status", 400, "reason", "invalid item id", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid item id")
	}

	var req transport.UpdateItemRequest
	if err := c.Bind(&req); err != nil || req.Quantity == nil {
		l.Warn("update_item_error", "status", 400, "reason", "quantity required", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "quantity required")
	}

	item, deleted, err := h.Svc.UpdateItem(ctx, userID, itemID, *req.Quantity)
	if err != nil {
		return fail(l, "update_item_error", err)
	}

	return c.JSON(http.StatusOK, itemResponse(item, deleted))
}

func (h *CartHTTP) RemoveItem(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "remove.item")

	userID, err := middleware.UserID(c)
	if err != nil {
		l.Warn("remove_item_error", "status", 401, "error", err)
		return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	itemID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		l.Warn("remove_item_error", "status", 400, "reason", "invalid item id", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid item id")
	}

	if err := h.Svc.RemoveItem(ctx, userID, itemID); err != nil {
		return fail(l, "remove_item_error", err)
	}

	return c.NoContent(http.StatusNoContent)
}

func (h *CartHTTP) ClearCart(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "clear.cart")

	userID, err := middleware.UserID(c)
	if err != nil {
		l.Warn("clear_cart_error", "status", 401, "error", err)
		return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	if err := h.Svc.ClearCart(ctx, userID); err != nil {
		return fail(l, "clear_cart_error", err)
	}

	l.Info("cart cleared")
	return c.NoContent(http.StatusNoContent)
}

func (h *CartHTTP) SyncGuestCart(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "sync.cart")

	userID, err := middleware.UserID(c)
	if err != nil {
		l.Warn("sync_cart_error", "status", 401, "error", err)
		return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	var req transport.SyncRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("sync_cart_error", "status", 400, "reason", "invalid body", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	res, err := h.Svc.SyncGuestCart(ctx, userID, req.Items)
	if err != nil {
		return fail(l, "sync_cart_error", err)
	}

	view, err := h.Svc.GetCart(ctx, userID)
	if err != nil {
		return fail(l, "sync_cart_error", err)
	}

	l.Info("guest cart merged", "merged", len(res.Merged), "skipped", len(res.Skipped))
	return c.JSON(http.StatusOK, transport.SyncResponse{
		Merged:  res.Merged,
		Skipped: res.Skipped,
		Cart:    cartResponse(view),
	})
}

// fail maps service errors onto HTTP statuses. Only business errors carry
// their message to the client.
func fail(l *slog.Logger, event string, err error) error {
	switch {
	case errors.Is(err, service.ErrValidation):
		l.Warn(event, "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrNotFound):
		l.Warn(event, "status", 404, "error", err)
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrInsufficientStock):
		l.Warn(event, "status", 409, "error", err)
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	default:
		l.Error(event, "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}

func itemResponse(item *models.CartItem, deleted bool) transport.ItemResponse {
	return transport.ItemResponse{
		ItemID:    item.ID,
		VariantID: item.VariantID,
		Quantity:  item.Quantity,
		UnitPrice: money.Fixed(item.UnitPrice),
		Deleted:   deleted,
	}
}

func cartResponse(v *service.CartView) transport.CartResponse {
	out := transport.CartResponse{
		CartID:        v.CartID,
		Items:         make([]transport.CartLine, 0, len(v.Items)),
		Subtotal:      money.Fixed(v.Subtotal),
		DiscountTotal: money.Fixed(v.DiscountTotal),
		TotalPayable:  money.Fixed(v.TotalPayable),
	}
	for _, it := range v.Items {
		out.Items = append(out.Items, transport.CartLine{
			ItemID:          it.ItemID,
			VariantID:       it.Variant.ID,
			ProductID:       it.Product.ID,
			ProductName:     it.Product.Name,
			ProductSlug:     it.Product.Slug,
			ImageURL:        it.Product.ImageURL,
			SKU:             it.Variant.SKU,
			Size:            it.Variant.Size,
			Color:           it.Variant.Color,
			Stock:           it.Variant.Stock,
			BasePrice:       money.Fixed(it.BasePrice),
			DiscountPercent: money.Fixed(it.DiscountPercent),
			SalePrice:       money.Fixed(it.SalePrice),
			Quantity:        it.Quantity,
			LineTotal:       money.Fixed(it.LineTotal),
		})
	}
	return out
}
