package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"teamup/models"
	"teamup/store"
)

var communityRules = []string{
	"Be respectful to others",
	"No spamming please",
	"Don't just join random teams for no reason",
	"If you join a team, try to stay active",
}

type statsSummary struct {
	Ideas               int                   `json:"ideas"`
	ByStatus            map[models.Status]int `json:"byStatus"`
	TeamMemberships     int                   `json:"teamMemberships"`
	Bookmarks           int                   `json:"bookmarks"`
	Milestones          int                   `json:"milestones"`
	CompletedMilestones int                   `json:"completedMilestones"`
	Tasks               int                   `json:"tasks"`
	CompletedTasks      int                   `json:"completedTasks"`
	Products            int                   `json:"products"`
	Services            int                   `json:"services"`
}

func summarize(posts []*models.Post, items []*models.Item) statsSummary {
	s := statsSummary{
		Ideas:    len(posts),
		ByStatus: make(map[models.Status]int, len(models.Statuses)),
	}
	for _, st := range models.Statuses {
		s.ByStatus[st] = 0
	}
	for _, p := range posts {
		s.ByStatus[p.Status]++
		s.TeamMemberships += len(p.Team)
		s.Bookmarks += len(p.Bookmarks)
		s.Milestones += len(p.Milestones)
		for _, m := range p.Milestones {
			if m.Completed {
				s.CompletedMilestones++
			}
		}
		s.Tasks += len(p.Tasks)
		for _, t := range p.Tasks {
			if t.Completed {
				s.CompletedTasks++
			}
		}
	}
	for _, it := range items {
		switch it.Type {
		case models.ItemProduct:
			s.Products++
		case models.ItemService:
			s.Services++
		}
	}
	return s
}

func (h *Handler) loadSummary(c *gin.Context) (statsSummary, bool) {
	ctx, cancel := h.ctx(c)
	defer cancel()

	posts, err := h.store.Posts.List(ctx)
	if err != nil {
		fail(c, err)
		return statsSummary{}, false
	}
	items, err := h.store.Items.List(ctx, store.ItemFilter{})
	if err != nil {
		fail(c, err)
		return statsSummary{}, false
	}
	return summarize(posts, items), true
}

func (h *Handler) Stats(c *gin.Context) {
	s, ok := h.loadSummary(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"stats": s})
}

func (h *Handler) Rules(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"rules": communityRules})
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
	})
}
