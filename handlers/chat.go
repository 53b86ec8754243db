package handlers

import (
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/gin-gonic/gin"

	"teamup/blob"
	"teamup/logging"
	"teamup/models"
	"teamup/websocket"
)

const (
	maxMessageLength = 2000
	pushPreviewRunes = 100
)

type SendMessageRequest struct {
	Message string `json:"message"`
}

func preview(s string) string {
	if utf8.RuneCountInString(s) <= pushPreviewRunes {
		return s
	}
	r := []rune(s)
	return string(r[:pushPreviewRunes]) + "..."
}

// ListMessages returns the team chat oldest first.
func (h *Handler) ListMessages(c *gin.Context) {
	post, ok := h.memberPost(c)
	if !ok {
		return
	}

	ctx, cancel := h.ctx(c)
	defer cancel()

	messages, err := h.store.Messages.ListByPost(ctx, post.ID.Hex())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"messages": messages,
		"count":    len(messages),
	})
}

// SendMessage accepts a JSON body or a multipart form with an optional
// attachment in the file field.
func (h *Handler) SendMessage(c *gin.Context) {
	post, ok := h.memberPost(c)
	if !ok {
		return
	}

	var (
		text       string
		attachment *blob.Object
	)
	if isMultipart(c) {
		text = c.PostForm("message")
		if attachment, ok = h.formUpload(c, "file", blob.KindAttachment); !ok {
			return
		}
	} else {
		var req SendMessageRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			validationError(c, err.Error())
			return
		}
		text = req.Message
	}

	text = strings.TrimSpace(text)
	if text == "" && attachment == nil {
		validationError(c, "Message cannot be empty")
		return
	}
	if utf8.RuneCountInString(text) > maxMessageLength {
		validationError(c, fmt.Sprintf("Message is limited to %d characters", maxMessageLength))
		return
	}

	uid := currentUserID(c)
	msg := &models.ChatMessage{
		PostID:      post.ID,
		Sender:      uid,
		SenderEmail: currentEmail(c),
		Message:     text,
	}
	if attachment != nil {
		msg.FileURL = attachment.URL
		msg.FileName = attachment.Name
	}

	ctx, cancel := h.ctx(c)
	defer cancel()

	if err := h.store.Messages.Append(ctx, msg); err != nil {
		orphaned(attachment, err)
		fail(c, err)
		return
	}

	h.broadcast(post.ID.Hex(), websocket.EventChatMessage, msg)

	body := text
	if body == "" {
		body = "sent a file: " + msg.FileName
	}
	h.notifier.NotifyMany(ctx, post.Team, uid, models.Notification{
		Kind:    models.NotifyChatMessage,
		Message: fmt.Sprintf("%s in %q: %s", displayName(c), post.Title, preview(body)),
		PostID:  post.ID.Hex(),
	})

	c.JSON(http.StatusCreated, gin.H{
		"message": "Message sent",
		"data":    msg,
	})
}

// DeleteMessage lets the sender remove their own message.
func (h *Handler) DeleteMessage(c *gin.Context) {
	ctx, cancel := h.ctx(c)
	defer cancel()

	msg, err := h.store.Messages.Get(ctx, c.Param("messageId"))
	if err != nil {
		fail(c, err)
		return
	}
	if msg.PostID.Hex() != c.Param("id") {
		respondError(c, http.StatusNotFound, CodeNotFound, "Message not found in this chat")
		return
	}
	if msg.Sender != currentUserID(c) {
		forbidden(c, "You can only delete your own messages")
		return
	}

	if err := h.store.Messages.Delete(ctx, msg.ID.Hex()); err != nil {
		fail(c, err)
		return
	}

	h.broadcast(msg.PostID.Hex(), websocket.EventChatMessageDeleted, gin.H{
		"id":     msg.ID.Hex(),
		"postId": msg.PostID.Hex(),
	})
	logging.Logger.WithField("messageId", msg.ID.Hex()).Debug("message deleted")
	c.JSON(http.StatusOK, gin.H{"message": "Message deleted"})
}
