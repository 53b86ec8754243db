package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"teamup/models"
)

type AddMilestoneRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
}

type ProgressRequest struct {
	Progress *int `json:"progress" binding:"required"`
}

type AddTaskRequest struct {
	Title       string `json:"title" binding:"required"`
	Description string `json:"description"`
	AssignedTo  string `json:"assignedTo"`
	DueDate     string `json:"dueDate"`
}

// memberPost loads the post and rejects callers outside its team.
func (h *Handler) memberPost(c *gin.Context) (*models.Post, bool) {
	ctx, cancel := h.ctx(c)
	defer cancel()

	post, err := h.store.Posts.Get(ctx, c.Param("id"))
	if err != nil {
		fail(c, err)
		return nil, false
	}
	if !post.IsMember(currentUserID(c)) {
		forbidden(c, "Only team members can do this")
		return nil, false
	}
	return post, true
}

func indexParam(c *gin.Context) (int, bool) {
	i, err := strconv.Atoi(c.Param("index"))
	if err != nil || i < 0 {
		validationError(c, "Index must be a non-negative integer")
		return 0, false
	}
	return i, true
}

func (h *Handler) AddMilestone(c *gin.Context) {
	var req AddMilestoneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		validationError(c, err.Error())
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		validationError(c, "Milestone name is required")
		return
	}
	if _, ok := h.memberPost(c); !ok {
		return
	}

	ctx, cancel := h.ctx(c)
	defer cancel()

	post, err := h.store.Posts.AddMilestone(ctx, c.Param("id"), models.Milestone{
		Name:        name,
		Description: strings.TrimSpace(req.Description),
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Milestone added", "post": post})
}

func (h *Handler) CompleteMilestone(c *gin.Context) {
	index, ok := indexParam(c)
	if !ok {
		return
	}
	if _, ok := h.memberPost(c); !ok {
		return
	}

	ctx, cancel := h.ctx(c)
	defer cancel()

	post, err := h.store.Posts.CompleteMilestone(ctx, c.Param("id"), index)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Milestone completed", "post": post})
}

func (h *Handler) SetMilestoneProgress(c *gin.Context) {
	index, ok := indexParam(c)
	if !ok {
		return
	}
	var req ProgressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		validationError(c, err.Error())
		return
	}
	if *req.Progress < 0 || *req.Progress > 100 {
		validationError(c, "Progress must be between 0 and 100")
		return
	}
	if _, ok := h.memberPost(c); !ok {
		return
	}

	ctx, cancel := h.ctx(c)
	defer cancel()

	post, err := h.store.Posts.SetMilestoneProgress(ctx, c.Param("id"), index, *req.Progress)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Progress updated", "post": post})
}

func (h *Handler) AddTask(c *gin.Context) {
	var req AddTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		validationError(c, err.Error())
		return
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		validationError(c, "Task title is required")
		return
	}
	if !validDeadline(req.DueDate) {
		validationError(c, "Due date must be formatted as YYYY-MM-DD")
		return
	}
	post, ok := h.memberPost(c)
	if !ok {
		return
	}
	if req.AssignedTo != "" && !post.IsMember(req.AssignedTo) {
		validationError(c, "Tasks can only be assigned to team members")
		return
	}

	ctx, cancel := h.ctx(c)
	defer cancel()

	updated, err := h.store.Posts.AddTask(ctx, c.Param("id"), models.Task{
		Title:       title,
		Description: strings.TrimSpace(req.Description),
		AssignedTo:  req.AssignedTo,
		DueDate:     req.DueDate,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Task added", "post": updated})
}

func (h *Handler) CompleteTask(c *gin.Context) {
	index, ok := indexParam(c)
	if !ok {
		return
	}
	if _, ok := h.memberPost(c); !ok {
		return
	}

	ctx, cancel := h.ctx(c)
	defer cancel()

	post, err := h.store.Posts.CompleteTask(ctx, c.Param("id"), index)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Task completed", "post": post})
}
