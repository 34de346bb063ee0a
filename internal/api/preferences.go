package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"chathistory/internal/account"
	"chathistory/internal/auth"
	"chathistory/internal/models"
)

func (h *Handler) getTheme(c *gin.Context) {
	theme, err := h.accounts.Theme(c.Request.Context(), auth.ClientIDFromContext(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"theme": theme})
}

func (h *Handler) setTheme(c *gin.Context) {
	var req struct {
		Theme models.Theme `json:"theme"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := h.accounts.SetTheme(c.Request.Context(), auth.ClientIDFromContext(c), req.Theme); err != nil {
		if errors.Is(err, account.ErrInvalidTheme) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"theme": req.Theme})
}

func (h *Handler) toggleTheme(c *gin.Context) {
	theme, err := h.accounts.ToggleTheme(c.Request.Context(), auth.ClientIDFromContext(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"theme": theme})
}

func (h *Handler) authorizedUserID(c *gin.Context) (string, bool) {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authorization required"})
		return "", false
	}
	return userID, true
}

func (h *Handler) listFavorites(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	trucks, err := h.accounts.ListFavorites(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"saved_trucks": trucks})
}

func (h *Handler) toggleFavorite(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	truckID := c.Param("truck_id")
	saved, err := h.accounts.ToggleFavorite(c.Request.Context(), auth.ClientIDFromContext(c), userID, truckID)
	if err != nil {
		if errors.Is(err, account.ErrInvalidTruck) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"truck_id": truckID, "saved": saved})
}

func (h *Handler) removeFavorite(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	if err := h.accounts.RemoveFavorite(c.Request.Context(), auth.ClientIDFromContext(c), userID, c.Param("truck_id")); err != nil {
		if errors.Is(err, account.ErrInvalidTruck) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}
