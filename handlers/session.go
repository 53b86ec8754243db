package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"teamup/identity"
	"teamup/middleware"
	"teamup/session"
)

func isClientRejection(err error) bool {
	var pe *identity.ProviderError
	return errors.As(err, &pe) && pe.Status >= 400 && pe.Status < 500
}

func (h *Handler) Me(c *gin.Context) {
	s := middleware.CurrentSession(c)
	c.JSON(http.StatusOK, gin.H{
		"session": s,
		"pages":   session.Pages(s.IsAdmin),
	})
}

func (h *Handler) Logout(c *gin.Context) {
	s := middleware.CurrentSession(c)
	h.sessions.Delete(s.ID)
	h.disconnect(s.UserID)
	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}

func (h *Handler) Pages(c *gin.Context) {
	s := middleware.CurrentSession(c)
	c.JSON(http.StatusOK, gin.H{
		"pages":       session.Pages(s.IsAdmin),
		"currentPage": s.CurrentPage,
	})
}

type SetPageRequest struct {
	Page string `json:"page" binding:"required"`
}

// SetPage remembers the page the user navigated to.
func (h *Handler) SetPage(c *gin.Context) {
	var req SetPageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		validationError(c, err.Error())
		return
	}

	s, err := h.sessions.SetPage(middleware.CurrentSession(c).ID, session.Page(req.Page))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"currentPage": s.CurrentPage})
}
