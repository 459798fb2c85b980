package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/makors/vender/internal/logger"
	"github.com/makors/vender/internal/services"
	"github.com/makors/vender/internal/utils"
)

// Stripe caps event payloads well below this.
const maxWebhookBody = 1 << 20

type WebhookHandler struct {
	issuance *services.IssuanceService
	log      *logger.Logger
}

func NewWebhookHandler(issuance *services.IssuanceService, log *logger.Logger) *WebhookHandler {
	return &WebhookHandler{issuance: issuance, log: log}
}

// HandleStripeWebhook verifies and processes a Stripe delivery. Only transient failures
// answer 500 so Stripe retries; bad deliveries get 400 and everything else 200.
func (h *WebhookHandler) HandleStripeWebhook(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody)
	payload, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse("Failed to read request body", err.Error()))
		return
	}

	result, err := h.issuance.HandleWebhook(c.Request.Context(), payload, c.GetHeader("Stripe-Signature"))
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"received": true, "outcome": result.Outcome})
	case errors.Is(err, services.ErrInvalidSignature):
		h.log.LogSecurity("WEBHOOK_SIGNATURE", fmt.Sprintf("Rejected delivery from %s: %v", c.ClientIP(), err))
		c.JSON(http.StatusBadRequest, utils.ErrorResponse("Invalid signature", ""))
	case errors.Is(err, services.ErrMalformedPayload):
		c.JSON(http.StatusBadRequest, utils.ErrorResponse("Malformed payload", err.Error()))
	default:
		c.Error(err)
		c.JSON(http.StatusInternalServerError, utils.ErrorResponse("Processing failed, retry later", ""))
	}
}
