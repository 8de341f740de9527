package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Dhoini/job-tracker/internal/domain"
	"github.com/Dhoini/job-tracker/internal/integration/stripe"
	"github.com/Dhoini/job-tracker/internal/service"
	"github.com/Dhoini/job-tracker/pkg/logger"
	"github.com/Dhoini/job-tracker/pkg/res"
)

// WebhookHandler обработчик для вебхуков
type WebhookHandler struct {
	verifier *stripe.Verifier
	billing  service.BillingService
	log      *logger.Logger
}

// NewWebhookHandler создает новый обработчик вебхуков
func NewWebhookHandler(verifier *stripe.Verifier, billing service.BillingService, log *logger.Logger) *WebhookHandler {
	return &WebhookHandler{verifier: verifier, billing: billing, log: log}
}

// HandleStripeWebhook проверяет подпись и передает событие в сервис биллинга.
// Неподписанные запросы отклоняются до любой обработки.
func (h *WebhookHandler) HandleStripeWebhook(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, stripe.MaxWebhookBodyBytes)
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		badRequest(c, h.log, "failed to read webhook body")
		return
	}

	event, err := h.verifier.Verify(payload, c.GetHeader(stripe.SignatureHeader))
	if err != nil {
		h.log.Warnw("Failed to verify webhook signature", "error", err)
		res.Error(c, http.StatusBadRequest, domain.ErrWebhookValidationFailed.Message, nil)
		return
	}

	if err := h.billing.HandleEvent(c.Request.Context(), event, payload); err != nil {
		abortWithError(c, h.log, err)
		return
	}
	res.JSON(c, http.StatusOK, gin.H{"received": true})
}
