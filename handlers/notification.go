package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (h *Handler) ListNotifications(c *gin.Context) {
	ctx, cancel := h.ctx(c)
	defer cancel()

	notes, err := h.store.Notifications.ListForUser(ctx, currentUserID(c))
	if err != nil {
		fail(c, err)
		return
	}

	unread := 0
	for _, n := range notes {
		if !n.Read {
			unread++
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"notifications": notes,
		"unread":        unread,
	})
}

func (h *Handler) MarkNotificationRead(c *gin.Context) {
	ctx, cancel := h.ctx(c)
	defer cancel()

	if err := h.store.Notifications.MarkRead(ctx, c.Param("id"), currentUserID(c)); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Notification marked as read"})
}
