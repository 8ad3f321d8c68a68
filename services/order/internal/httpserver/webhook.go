package httpserver

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/checkout/pkg/logging"
	"github.com/Skotchmaster/checkout/services/order/internal/service"
	"github.com/Skotchmaster/checkout/services/order/internal/transport"
	"github.com/Skotchmaster/checkout/services/order/internal/webhook"
)

const maxWebhookBody = 1 << 20

type WebhookHTTP struct {
	Svc *service.OrderService
}

// Receive hands the raw body to the service untouched; the signature covers
// the exact bytes sent.
func (h *WebhookHTTP) Receive(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "payments.webhook")

	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody))
	if err != nil {
		l.Warn("webhook_error", "status", 400, "reason", "unreadable body", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	res, err := h.Svc.HandleWebhook(ctx, body, c.Request().Header.Get(webhook.SignatureHeader))
	if err != nil {
		return fail(l, "webhook_error", err)
	}

	if res.Duplicate {
		l.Info("webhook duplicate")
	}
	return c.JSON(http.StatusOK, transport.WebhookResponse{
		Received:  true,
		Duplicate: res.Duplicate,
		Ignored:   res.Ignored,
		Rejected:  res.Rejected,
	})
}
