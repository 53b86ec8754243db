package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"teamup/logging"
)

// AdminOverview reports content totals and live usage.
func (h *Handler) AdminOverview(c *gin.Context) {
	s, ok := h.loadSummary(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"stats":          s,
		"activeSessions": h.sessions.Len(),
		"connections":    h.connections(),
	})
}

func (h *Handler) AdminDeletePost(c *gin.Context) {
	ctx, cancel := h.ctx(c)
	defer cancel()

	if err := h.store.Posts.Delete(ctx, c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	logging.Logger.WithField("postId", c.Param("id")).WithField("admin", currentEmail(c)).Warn("post removed by admin")
	c.JSON(http.StatusOK, gin.H{"message": "Idea removed"})
}

func (h *Handler) AdminDeleteItem(c *gin.Context) {
	ctx, cancel := h.ctx(c)
	defer cancel()

	if err := h.store.Items.Delete(ctx, c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	logging.Logger.WithField("itemId", c.Param("id")).WithField("admin", currentEmail(c)).Warn("listing removed by admin")
	c.JSON(http.StatusOK, gin.H{"message": "Listing removed"})
}
