package store

import (
	"sort"
	"strings"

	"teamup/models"
)

// PostQuery filters already-fetched posts. Empty fields match everything.
type PostQuery struct {
	Search string
	Tag    string
	Skill  string
	Status models.Status
	Member string
}

func (q PostQuery) matches(p *models.Post) bool {
	if q.Search != "" {
		needle := strings.ToLower(q.Search)
		if !strings.Contains(strings.ToLower(p.Title), needle) &&
			!strings.Contains(strings.ToLower(p.Description), needle) {
			return false
		}
	}
	if q.Tag != "" && !containsFold(p.Tags, q.Tag) {
		return false
	}
	if q.Skill != "" && !containsFold(p.SkillsNeeded, q.Skill) {
		return false
	}
	if q.Status != "" && p.Status != q.Status {
		return false
	}
	if q.Member != "" && !p.IsMember(q.Member) {
		return false
	}
	return true
}

// FilterPosts keeps the posts matching q, preserving order.
func FilterPosts(posts []*models.Post, q PostQuery) []*models.Post {
	out := make([]*models.Post, 0, len(posts))
	for _, p := range posts {
		if q.matches(p) {
			out = append(out, p)
		}
	}
	return out
}

// SortPostsNewestFirst orders by createdAt descending, ties by id descending.
func SortPostsNewestFirst(posts []*models.Post) {
	sort.SliceStable(posts, func(i, j int) bool {
		if posts[i].CreatedAt.Equal(posts[j].CreatedAt) {
			return posts[i].ID.Hex() > posts[j].ID.Hex()
		}
		return posts[i].CreatedAt.After(posts[j].CreatedAt)
	})
}

func SortItemsNewestFirst(items []*models.Item) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
}

func containsFold(list []string, v string) bool {
	for _, s := range list {
		if strings.EqualFold(strings.TrimSpace(s), strings.TrimSpace(v)) {
			return true
		}
	}
	return false
}
