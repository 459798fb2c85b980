package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/makors/vender/internal/services"
	"github.com/makors/vender/internal/utils"
)

type EventsHandler struct {
	events *services.EventService
}

func NewEventsHandler(events *services.EventService) *EventsHandler {
	return &EventsHandler{events: events}
}

func (h *EventsHandler) ListEvents(c *gin.Context) {
	events, err := h.events.List(c.Request.Context())
	if err != nil {
		c.Error(err)
		c.JSON(http.StatusInternalServerError, utils.ErrorResponse("Failed to list events", ""))
		return
	}

	c.JSON(http.StatusOK, gin.H{"events": events})
}
