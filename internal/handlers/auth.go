package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/makors/vender/internal/middleware"
	"github.com/makors/vender/internal/models"
	"github.com/makors/vender/internal/services"
	"github.com/makors/vender/internal/utils"
)

type AuthHandler struct {
	auth *services.AuthService
}

func NewAuthHandler(auth *services.AuthService) *AuthHandler {
	return &AuthHandler{auth: auth}
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse("Invalid request payload", err.Error()))
		return
	}

	token, err := h.auth.Login(c.Request.Context(), req.PrivateCode)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, models.LoginResponse{Token: token})
	case errors.Is(err, services.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, utils.ErrorResponse("Invalid code", ""))
	default:
		c.Error(err)
		c.JSON(http.StatusInternalServerError, utils.ErrorResponse("Login failed", ""))
	}
}

// Logout is mounted behind RequireAuth, so the token is known to be live.
func (h *AuthHandler) Logout(c *gin.Context) {
	if err := h.auth.Logout(c.Request.Context(), middleware.BearerToken(c.GetHeader("Authorization"))); err != nil {
		c.Error(err)
		c.JSON(http.StatusInternalServerError, utils.ErrorResponse("Logout failed", ""))
		return
	}
	c.Status(http.StatusNoContent)
}
