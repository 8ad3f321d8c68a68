package httpserver

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/checkout/pkg/money"
	"github.com/Skotchmaster/checkout/services/order/internal/models"
	"github.com/Skotchmaster/checkout/services/order/internal/service"
	"github.com/Skotchmaster/checkout/services/order/internal/transport"
	"github.com/Skotchmaster/checkout/services/order/internal/webhook"
)

func fail(l *slog.Logger, event string, err error) error {
	switch {
	case errors.Is(err, service.ErrValidation):
		l.Warn(event, "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, webhook.ErrInvalidSignature):
		l.Warn(event, "status", 401, "error", err)
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid signature")
	case errors.Is(err, service.ErrPaymentNotConfirmed):
		l.Warn(event, "status", 402, "error", err)
		return echo.NewHTTPError(http.StatusPaymentRequired, "payment not confirmed")
	case errors.Is(err, service.ErrNotFound):
		l.Warn(event, "status", 404, "error", err)
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrInsufficientStock),
		errors.Is(err, service.ErrConflict),
		errors.Is(err, service.ErrAlreadyCancelled),
		errors.Is(err, service.ErrInvalidTransition):
		l.Warn(event, "status", 409, "error", err)
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrCouponRejected):
		l.Warn(event, "status", 422, "error", err)
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	default:
		l.Error(event, "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}

func orderResponse(o *models.Order) transport.OrderResponse {
	resp := transport.OrderResponse{
		ID:               o.ID,
		OrderNumber:      o.OrderNumber,
		UserID:           o.UserID,
		TotalAmount:      money.Fixed(o.TotalAmount),
		DiscountAmount:   money.Fixed(o.DiscountAmount),
		ShippingAmount:   money.Fixed(o.ShippingAmount),
		AmountDue:        money.Fixed(o.AmountDue),
		PaymentStatus:    o.PaymentStatus,
		OrderStatus:      o.OrderStatus,
		ShippingAddress:  o.ShippingAddress,
		BillingAddress:   o.BillingAddress,
		CouponCode:       o.CouponCode,
		PaymentReference: o.PaymentReference,
		PaidAt:           o.PaidAt,
		CancelledAt:      o.CancelledAt,
		CreatedAt:        o.CreatedAt,
	}
	for _, it := range o.Items {
		resp.Items = append(resp.Items, transport.OrderItemResponse{
			ID:          it.ID,
			VariantID:   it.VariantID,
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			SKU:         it.SKU,
			ProductLink: it.ProductLink,
			Price:       money.Fixed(it.Price),
			Quantity:    it.Quantity,
		})
	}
	return resp
}

func listResponse(orders []models.Order, total int64, page, size int) transport.OrderListResponse {
	resp := transport.OrderListResponse{
		Items: make([]transport.OrderResponse, 0, len(orders)),
		Total: total,
		Page:  page,
		Size:  size,
	}
	for i := range orders {
		resp.Items = append(resp.Items, orderResponse(&orders[i]))
	}
	return resp
}

func finalizeResponse(res *service.FinalizeResult) transport.FinalizeResponse {
	return transport.FinalizeResponse{
		Order:            orderResponse(res.Order),
		AlreadyProcessed: res.AlreadyProcessed,
	}
}

func checkoutResponse(res *service.CheckoutResult) transport.CheckoutResponse {
	resp := transport.CheckoutResponse{
		Order:        orderResponse(res.Order),
		PaymentLines: make([]transport.PaymentLine, 0, len(res.Lines)),
	}
	for _, l := range res.Lines {
		resp.PaymentLines = append(resp.PaymentLines, transport.PaymentLine{
			Label:     l.Label,
			VariantID: l.VariantID,
			Quantity:  l.Quantity,
			Amount:    money.Fixed(l.Amount),
		})
	}
	return resp
}
