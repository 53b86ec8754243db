package handlers

import (
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"

	"teamup/logging"
	"teamup/models"
)

type SubscribeRequest struct {
	Endpoint string `json:"endpoint" binding:"required,url"`
	Keys     struct {
		P256dh string `json:"p256dh" binding:"required"`
		Auth   string `json:"auth" binding:"required"`
	} `json:"keys" binding:"required"`
}

func (h *Handler) VapidPublicKey(c *gin.Context) {
	if h.vapidKey == "" {
		respondError(c, http.StatusServiceUnavailable, CodePushDisabled, "Web push is not configured")
		return
	}
	c.JSON(http.StatusOK, gin.H{"publicKey": h.vapidKey})
}

// Subscribe stores the browser's push endpoint, replacing any previous one.
func (h *Handler) Subscribe(c *gin.Context) {
	var req SubscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		validationError(c, err.Error())
		return
	}

	ctx, cancel := h.ctx(c)
	defer cancel()

	uid := currentUserID(c)
	err := h.store.PushSubscriptions.Save(ctx, &models.PushSubscription{
		UserID: uid,
		Sub: webpush.Subscription{
			Endpoint: req.Endpoint,
			Keys: webpush.Keys{
				P256dh: req.Keys.P256dh,
				Auth:   req.Keys.Auth,
			},
		},
	})
	if err != nil {
		fail(c, err)
		return
	}

	logging.Logger.WithField("userId", uid).Info("push subscription saved")
	c.JSON(http.StatusOK, gin.H{"message": "Push subscription saved"})
}
