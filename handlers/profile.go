package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"teamup/models"
)

// Profile summarises the caller's ideas, teams and bookmarks.
func (h *Handler) Profile(c *gin.Context) {
	ctx, cancel := h.ctx(c)
	defer cancel()

	posts, err := h.store.Posts.List(ctx)
	if err != nil {
		fail(c, err)
		return
	}

	uid := currentUserID(c)
	myIdeas := make([]*models.Post, 0)
	myTeams := make([]*models.Post, 0)
	bookmarks := 0
	for _, p := range posts {
		if p.CreatedBy == uid {
			myIdeas = append(myIdeas, p)
		} else if p.IsMember(uid) {
			myTeams = append(myTeams, p)
		}
		if p.IsBookmarkedBy(uid) {
			bookmarks++
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"userId":         uid,
		"email":          currentEmail(c),
		"isAdmin":        isAdmin(c),
		"myIdeas":        myIdeas,
		"myTeams":        myTeams,
		"bookmarksCount": bookmarks,
	})
}
