package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/makors/vender/internal/models"
	"github.com/makors/vender/internal/services"
	"github.com/makors/vender/internal/utils"
)

type LookupHandler struct {
	lookup *services.LookupService
}

func NewLookupHandler(lookup *services.LookupService) *LookupHandler {
	return &LookupHandler{lookup: lookup}
}

func (h *LookupHandler) Lookup(c *gin.Context) {
	results, err := h.lookup.Search(c.Request.Context(), c.Query("q"))
	if err != nil {
		c.Error(err)
		c.JSON(http.StatusInternalServerError, utils.ErrorResponse("Lookup failed", ""))
		return
	}

	c.JSON(http.StatusOK, models.LookupResponse{Results: results})
}
