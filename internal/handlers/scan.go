package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/makors/vender/internal/models"
	"github.com/makors/vender/internal/services"
	"github.com/makors/vender/internal/utils"
)

type ScanHandler struct {
	checkin *services.CheckinService
}

func NewScanHandler(checkin *services.CheckinService) *ScanHandler {
	return &ScanHandler{checkin: checkin}
}

// Scan always answers 200 with a status for a well-formed request, including unknown and
// already used tickets, so the scanner can show why a ticket was refused.
func (h *ScanHandler) Scan(c *gin.Context) {
	if c.ContentType() != gin.MIMEJSON {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse("Content-Type must be application/json", ""))
		return
	}

	var req models.ScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse("Invalid request payload", err.Error()))
		return
	}
	req.TicketID = strings.TrimSpace(req.TicketID)
	req.EventID = strings.TrimSpace(req.EventID)
	if req.TicketID == "" || req.EventID == "" {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse("ticketId and eventId are required", ""))
		return
	}

	result, err := h.checkin.Scan(c.Request.Context(), req.TicketID, req.EventID)
	if err != nil {
		c.Error(err)
		c.JSON(http.StatusInternalServerError, utils.ErrorResponse("Scan failed", ""))
		return
	}

	c.JSON(http.StatusOK, result)
}
