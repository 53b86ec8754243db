package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"teamup/models"
)

// JoinTeam adds the caller to the idea's team. Joining twice is a no-op and
// only the call that added the user notifies the team.
func (h *Handler) JoinTeam(c *gin.Context) {
	ctx, cancel := h.ctx(c)
	defer cancel()

	uid := currentUserID(c)
	post, added, err := h.store.Posts.JoinTeam(ctx, c.Param("id"), uid)
	if err != nil {
		fail(c, err)
		return
	}
	if !added {
		c.JSON(http.StatusOK, gin.H{"message": "Already a member", "post": post})
		return
	}

	h.notifier.NotifyMany(ctx, post.Team, uid, models.Notification{
		Kind:    models.NotifyTeamJoin,
		Message: fmt.Sprintf("%s joined the team of %q", displayName(c), post.Title),
		PostID:  post.ID.Hex(),
	})

	c.JSON(http.StatusOK, gin.H{"message": "Joined the team", "post": post})
}

func (h *Handler) LeaveTeam(c *gin.Context) {
	ctx, cancel := h.ctx(c)
	defer cancel()

	uid := currentUserID(c)
	post, err := h.store.Posts.LeaveTeam(ctx, c.Param("id"), uid)
	if err != nil {
		fail(c, err)
		return
	}
	h.revokeChat(uid, post.ID.Hex())
	c.JSON(http.StatusOK, gin.H{"message": "Left the team", "post": post})
}

func (h *Handler) ToggleBookmark(c *gin.Context) {
	ctx, cancel := h.ctx(c)
	defer cancel()

	on, err := h.store.Posts.ToggleBookmark(ctx, c.Param("id"), currentUserID(c))
	if err != nil {
		fail(c, err)
		return
	}

	message := "Bookmark removed"
	if on {
		message = "Bookmarked"
	}
	c.JSON(http.StatusOK, gin.H{"message": message, "bookmarked": on})
}

func (h *Handler) ListBookmarks(c *gin.Context) {
	ctx, cancel := h.ctx(c)
	defer cancel()

	posts, err := h.store.Posts.List(ctx)
	if err != nil {
		fail(c, err)
		return
	}

	uid := currentUserID(c)
	bookmarked := make([]*models.Post, 0)
	for _, p := range posts {
		if p.IsBookmarkedBy(uid) {
			bookmarked = append(bookmarked, p)
		}
	}
	c.JSON(http.StatusOK, gin.H{"posts": bookmarked, "count": len(bookmarked)})
}
