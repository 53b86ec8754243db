package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"teamup/identity"
	"teamup/logging"
	"teamup/models"
	"teamup/store"
)

type MilestoneRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
}

type CreatePostRequest struct {
	Title        string             `json:"title" binding:"required"`
	Description  string             `json:"description" binding:"required"`
	Deadline     string             `json:"deadline"`
	Contact      string             `json:"contact"`
	Status       string             `json:"status"`
	Tags         []string           `json:"tags"`
	SkillsNeeded []string           `json:"skillsNeeded"`
	Milestones   []MilestoneRequest `json:"milestones" binding:"dive"`
}

type UpdatePostRequest struct {
	Version      int64     `json:"version" binding:"required,min=1"`
	Title        *string   `json:"title"`
	Description  *string   `json:"description"`
	Deadline     *string   `json:"deadline"`
	Contact      *string   `json:"contact"`
	Status       *string   `json:"status"`
	Tags         *[]string `json:"tags"`
	SkillsNeeded *[]string `json:"skillsNeeded"`
}

func validDeadline(s string) bool {
	if s == "" {
		return true
	}
	_, err := time.Parse("2006-01-02", s)
	return err == nil
}

func cleanLabels(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		key := strings.ToLower(v)
		if v == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, v)
	}
	return out
}

func (h *Handler) CreatePost(c *gin.Context) {
	var req CreatePostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		validationError(c, err.Error())
		return
	}

	title := strings.TrimSpace(req.Title)
	description := strings.TrimSpace(req.Description)
	if title == "" || description == "" {
		validationError(c, "Title and description are required")
		return
	}
	if !validDeadline(req.Deadline) {
		validationError(c, "Deadline must be formatted as YYYY-MM-DD")
		return
	}
	status := models.StatusPlanning
	if req.Status != "" {
		status = models.Status(req.Status)
		if !status.Valid() {
			validationError(c, "Unknown status")
			return
		}
	}

	milestones := make([]models.Milestone, 0, len(req.Milestones))
	for _, m := range req.Milestones {
		name := strings.TrimSpace(m.Name)
		if name == "" {
			continue
		}
		milestones = append(milestones, models.Milestone{Name: name, Description: strings.TrimSpace(m.Description)})
	}

	post := &models.Post{
		Title:          title,
		Description:    description,
		CreatedBy:      currentUserID(c),
		CreatedByEmail: currentEmail(c),
		Deadline:       req.Deadline,
		Contact:        strings.TrimSpace(req.Contact),
		Status:         status,
		Milestones:     milestones,
		Tags:           cleanLabels(req.Tags),
		SkillsNeeded:   cleanLabels(req.SkillsNeeded),
	}

	ctx, cancel := h.ctx(c)
	defer cancel()

	if err := h.store.Posts.Create(ctx, post); err != nil {
		fail(c, err)
		return
	}

	logging.Logger.WithField("postId", post.ID.Hex()).Info("post created")
	c.JSON(http.StatusCreated, gin.H{
		"message": "Idea submitted",
		"post":    post,
	})
}

// ListPosts returns all posts newest first, narrowed by the optional
// q, tag, skill, status and member query parameters. member=me selects
// the caller's teams.
func (h *Handler) ListPosts(c *gin.Context) {
	ctx, cancel := h.ctx(c)
	defer cancel()

	posts, err := h.store.Posts.List(ctx)
	if err != nil {
		fail(c, err)
		return
	}

	member := c.Query("member")
	if member == "me" {
		member = currentUserID(c)
	}
	posts = store.FilterPosts(posts, store.PostQuery{
		Search: strings.TrimSpace(c.Query("q")),
		Tag:    c.Query("tag"),
		Skill:  c.Query("skill"),
		Status: models.Status(c.Query("status")),
		Member: member,
	})

	c.JSON(http.StatusOK, gin.H{
		"posts": posts,
		"count": len(posts),
	})
}

func (h *Handler) GetPost(c *gin.Context) {
	ctx, cancel := h.ctx(c)
	defer cancel()

	post, err := h.store.Posts.Get(ctx, c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"post": post})
}

// UpdatePost overwrites the given fields. The version in the body guards
// against lost updates; when omitted the current version is used.
func (h *Handler) UpdatePost(c *gin.Context) {
	var req UpdatePostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		validationError(c, err.Error())
		return
	}

	ctx, cancel := h.ctx(c)
	defer cancel()

	post, err := h.store.Posts.Get(ctx, c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	if post.CreatedBy != currentUserID(c) {
		forbidden(c, "Only the creator can edit this idea")
		return
	}

	var u store.PostUpdate
	if req.Title != nil {
		t := strings.TrimSpace(*req.Title)
		if t == "" {
			validationError(c, "Title cannot be empty")
			return
		}
		u.Title = &t
	}
	if req.Description != nil {
		d := strings.TrimSpace(*req.Description)
		if d == "" {
			validationError(c, "Description cannot be empty")
			return
		}
		u.Description = &d
	}
	if req.Deadline != nil {
		if !validDeadline(*req.Deadline) {
			validationError(c, "Deadline must be formatted as YYYY-MM-DD")
			return
		}
		u.Deadline = req.Deadline
	}
	if req.Contact != nil {
		contact := strings.TrimSpace(*req.Contact)
		u.Contact = &contact
	}
	if req.Status != nil {
		status := models.Status(*req.Status)
		if !status.Valid() {
			validationError(c, "Unknown status")
			return
		}
		u.Status = &status
	}
	if req.Tags != nil {
		tags := cleanLabels(*req.Tags)
		u.Tags = &tags
	}
	if req.SkillsNeeded != nil {
		skills := cleanLabels(*req.SkillsNeeded)
		u.SkillsNeeded = &skills
	}

	updated, err := h.store.Posts.Update(ctx, c.Param("id"), req.Version, u)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Idea updated",
		"post":    updated,
	})
}

// DeletePost removes an idea. Its chat messages are left in place.
func (h *Handler) DeletePost(c *gin.Context) {
	ctx, cancel := h.ctx(c)
	defer cancel()

	post, err := h.store.Posts.Get(ctx, c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	if post.CreatedBy != currentUserID(c) && !isAdmin(c) {
		forbidden(c, "Only the creator can delete this idea")
		return
	}

	if err := h.store.Posts.Delete(ctx, c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	logging.Logger.WithField("postId", c.Param("id")).Info("post deleted")
	c.JSON(http.StatusOK, gin.H{"message": "Idea deleted"})
}

// Members lists the team with emails when the directory is configured.
func (h *Handler) Members(c *gin.Context) {
	ctx, cancel := h.ctx(c)
	defer cancel()

	post, err := h.store.Posts.Get(ctx, c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}

	members := make([]identity.Member, len(post.Team))
	for i, uid := range post.Team {
		members[i] = identity.Member{UserID: uid}
	}
	if h.directory != nil {
		resolved, err := h.directory.LookupUsers(ctx, post.Team)
		if err != nil {
			logging.Logger.WithError(err).Warn("member lookup failed, returning ids only")
		} else {
			members = resolved
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"members":   members,
		"createdBy": post.CreatedBy,
	})
}
