package store

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"teamup/models"
)

// NewMemory returns a Store held in process memory. It backs the test suites
// and STORE_DRIVER=memory for local development.
func NewMemory() *Store {
	m := &memory{
		posts:    make(map[primitive.ObjectID]*models.Post),
		messages: make(map[primitive.ObjectID]*models.ChatMessage),
		items:    make(map[primitive.ObjectID]*models.Item),
		notes:    make(map[primitive.ObjectID]*models.Notification),
		subs:     make(map[string]*models.PushSubscription),
		now:      now,
	}
	return &Store{
		Posts:             memPosts{m},
		Messages:          memMessages{m},
		Items:             memItems{m},
		Notifications:     memNotifications{m},
		PushSubscriptions: memSubs{m},
	}
}

func now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

type memory struct {
	mu       sync.RWMutex
	posts    map[primitive.ObjectID]*models.Post
	messages map[primitive.ObjectID]*models.ChatMessage
	items    map[primitive.ObjectID]*models.Item
	notes    map[primitive.ObjectID]*models.Notification
	subs     map[string]*models.PushSubscription
	now      func() time.Time
}

// ---- posts ----

type memPosts struct{ m *memory }

func (s memPosts) Create(ctx context.Context, post *models.Post) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()

	preparePost(post, s.m.now())
	s.m.posts[post.ID] = clonePost(post)
	return nil
}

func (s memPosts) List(ctx context.Context) ([]*models.Post, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()

	out := make([]*models.Post, 0, len(s.m.posts))
	for _, p := range s.m.posts {
		out = append(out, clonePost(p))
	}
	SortPostsNewestFirst(out)
	return out, nil
}

func (s memPosts) Get(ctx context.Context, id string) (*models.Post, error) {
	oid, err := parseID(id)
	if err != nil {
		return nil, err
	}
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()

	p, ok := s.m.posts[oid]
	if !ok {
		return nil, ErrNotFound
	}
	return clonePost(p), nil
}

// mutate applies fn to the stored post under the write lock.
func (s memPosts) mutate(id string, fn func(p *models.Post) error) (*models.Post, error) {
	oid, err := parseID(id)
	if err != nil {
		return nil, err
	}
	s.m.mu.Lock()
	defer s.m.mu.Unlock()

	p, ok := s.m.posts[oid]
	if !ok {
		return nil, ErrNotFound
	}
	next := clonePost(p)
	if err := fn(next); err != nil {
		return nil, err
	}
	s.m.posts[oid] = next
	return clonePost(next), nil
}

func (s memPosts) Update(ctx context.Context, id string, version int64, u PostUpdate) (*models.Post, error) {
	return s.mutate(id, func(p *models.Post) error {
		if p.Version != version {
			return ErrConflict
		}
		if u.Title != nil {
			p.Title = *u.Title
		}
		if u.Description != nil {
			p.Description = *u.Description
		}
		if u.Deadline != nil {
			p.Deadline = *u.Deadline
		}
		if u.Contact != nil {
			p.Contact = *u.Contact
		}
		if u.Status != nil {
			p.Status = *u.Status
		}
		if u.Tags != nil {
			p.Tags = append([]string{}, (*u.Tags)...)
		}
		if u.SkillsNeeded != nil {
			p.SkillsNeeded = append([]string{}, (*u.SkillsNeeded)...)
		}
		p.Version++
		p.UpdatedAt = s.m.now()
		return nil
	})
}

func (s memPosts) Delete(ctx context.Context, id string) error {
	oid, err := parseID(id)
	if err != nil {
		return err
	}
	s.m.mu.Lock()
	defer s.m.mu.Unlock()

	if _, ok := s.m.posts[oid]; !ok {
		return ErrNotFound
	}
	delete(s.m.posts, oid)
	return nil
}

func (s memPosts) JoinTeam(ctx context.Context, id, uid string) (*models.Post, bool, error) {
	var added bool
	p, err := s.mutate(id, func(p *models.Post) error {
		if !p.IsMember(uid) {
			p.Team = append(p.Team, uid)
			added = true
		}
		return nil
	})
	return p, added, err
}

func (s memPosts) LeaveTeam(ctx context.Context, id, uid string) (*models.Post, error) {
	return s.mutate(id, func(p *models.Post) error {
		if p.CreatedBy == uid {
			return ErrCreatorCannotLeave
		}
		p.Team = without(p.Team, uid)
		return nil
	})
}

func (s memPosts) ToggleBookmark(ctx context.Context, id, uid string) (bool, error) {
	var on bool
	_, err := s.mutate(id, func(p *models.Post) error {
		if p.IsBookmarkedBy(uid) {
			p.Bookmarks = without(p.Bookmarks, uid)
		} else {
			p.Bookmarks = append(p.Bookmarks, uid)
			on = true
		}
		return nil
	})
	return on, err
}

func (s memPosts) AddMilestone(ctx context.Context, id string, m models.Milestone) (*models.Post, error) {
	return s.mutate(id, func(p *models.Post) error {
		p.Milestones = append(p.Milestones, m)
		p.UpdatedAt = s.m.now()
		return nil
	})
}

func (s memPosts) CompleteMilestone(ctx context.Context, id string, index int) (*models.Post, error) {
	return s.mutate(id, func(p *models.Post) error {
		if index < 0 || index >= len(p.Milestones) {
			return ErrInvalidIndex
		}
		p.Milestones[index].Completed = true
		p.Version++
		p.UpdatedAt = s.m.now()
		return nil
	})
}

func (s memPosts) SetMilestoneProgress(ctx context.Context, id string, index, progress int) (*models.Post, error) {
	return s.mutate(id, func(p *models.Post) error {
		if index < 0 || index >= len(p.Milestones) {
			return ErrInvalidIndex
		}
		p.Milestones[index].Progress = progress
		p.Version++
		p.UpdatedAt = s.m.now()
		return nil
	})
}

func (s memPosts) AddTask(ctx context.Context, id string, t models.Task) (*models.Post, error) {
	return s.mutate(id, func(p *models.Post) error {
		p.Tasks = append(p.Tasks, t)
		p.UpdatedAt = s.m.now()
		return nil
	})
}

func (s memPosts) CompleteTask(ctx context.Context, id string, index int) (*models.Post, error) {
	return s.mutate(id, func(p *models.Post) error {
		if index < 0 || index >= len(p.Tasks) {
			return ErrInvalidIndex
		}
		p.Tasks[index].Completed = true
		p.Version++
		p.UpdatedAt = s.m.now()
		return nil
	})
}

// ---- messages ----

type memMessages struct{ m *memory }

func (s memMessages) Append(ctx context.Context, msg *models.ChatMessage) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()

	if msg.ID.IsZero() {
		msg.ID = primitive.NewObjectID()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = s.m.now()
	}
	cp := *msg
	s.m.messages[msg.ID] = &cp
	return nil
}

func (s memMessages) ListByPost(ctx context.Context, postID string) ([]*models.ChatMessage, error) {
	oid, err := parseID(postID)
	if err != nil {
		return nil, err
	}
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()

	out := []*models.ChatMessage{}
	for _, msg := range s.m.messages {
		if msg.PostID == oid {
			cp := *msg
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].ID.Hex() < out[j].ID.Hex()
		}
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out, nil
}

func (s memMessages) Get(ctx context.Context, id string) (*models.ChatMessage, error) {
	oid, err := parseID(id)
	if err != nil {
		return nil, err
	}
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()

	msg, ok := s.m.messages[oid]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *msg
	return &cp, nil
}

func (s memMessages) Delete(ctx context.Context, id string) error {
	oid, err := parseID(id)
	if err != nil {
		return err
	}
	s.m.mu.Lock()
	defer s.m.mu.Unlock()

	if _, ok := s.m.messages[oid]; !ok {
		return ErrNotFound
	}
	delete(s.m.messages, oid)
	return nil
}

// ---- items ----

type memItems struct{ m *memory }

func (s memItems) Create(ctx context.Context, item *models.Item) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()

	prepareItem(item, s.m.now())
	s.m.items[item.ID] = cloneItem(item)
	return nil
}

func (s memItems) List(ctx context.Context, f ItemFilter) ([]*models.Item, error) {
	var team primitive.ObjectID
	if f.TeamID != "" {
		oid, err := parseID(f.TeamID)
		if err != nil {
			return nil, err
		}
		team = oid
	}
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()

	out := []*models.Item{}
	for _, it := range s.m.items {
		if f.Type != "" && it.Type != f.Type {
			continue
		}
		if !team.IsZero() && it.TeamID != team {
			continue
		}
		out = append(out, cloneItem(it))
	}
	SortItemsNewestFirst(out)
	return out, nil
}

func (s memItems) Get(ctx context.Context, id string) (*models.Item, error) {
	oid, err := parseID(id)
	if err != nil {
		return nil, err
	}
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()

	it, ok := s.m.items[oid]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneItem(it), nil
}

func (s memItems) mutate(id string, fn func(it *models.Item) error) (*models.Item, error) {
	oid, err := parseID(id)
	if err != nil {
		return nil, err
	}
	s.m.mu.Lock()
	defer s.m.mu.Unlock()

	it, ok := s.m.items[oid]
	if !ok {
		return nil, ErrNotFound
	}
	next := cloneItem(it)
	if err := fn(next); err != nil {
		return nil, err
	}
	s.m.items[oid] = next
	return cloneItem(next), nil
}

func (s memItems) Update(ctx context.Context, id string, u ItemUpdate) (*models.Item, error) {
	return s.mutate(id, func(it *models.Item) error {
		if u.Title != nil {
			it.Title = *u.Title
		}
		if u.Description != nil {
			it.Description = *u.Description
		}
		if u.Price != nil {
			it.Price = *u.Price
		}
		if u.Contact != nil {
			it.Contact = *u.Contact
		}
		if u.ImageURL != nil {
			it.ImageURL = *u.ImageURL
		}
		if u.Availability != nil {
			it.Availability = *u.Availability
		}
		it.UpdatedAt = s.m.now()
		return nil
	})
}

func (s memItems) Delete(ctx context.Context, id string) error {
	oid, err := parseID(id)
	if err != nil {
		return err
	}
	s.m.mu.Lock()
	defer s.m.mu.Unlock()

	if _, ok := s.m.items[oid]; !ok {
		return ErrNotFound
	}
	delete(s.m.items, oid)
	return nil
}

func (s memItems) AddReview(ctx context.Context, id string, r models.Review) (*models.Item, error) {
	return s.mutate(id, func(it *models.Item) error {
		if it.Type != models.ItemProduct {
			return ErrWrongItemType
		}
		if it.ReviewedBy(r.User) {
			return ErrAlreadyReviewed
		}
		if r.Timestamp.IsZero() {
			r.Timestamp = s.m.now()
		}
		it.Reviews = append(it.Reviews, r)
		it.Rating = averageRating(it.Reviews)
		return nil
	})
}

func (s memItems) Volunteer(ctx context.Context, id, uid string) (*models.Item, error) {
	return s.mutate(id, func(it *models.Item) error {
		if it.Type != models.ItemService {
			return ErrWrongItemType
		}
		if !it.HasVolunteer(uid) {
			it.Volunteers = append(it.Volunteers, uid)
		}
		return nil
	})
}

func (s memItems) Unvolunteer(ctx context.Context, id, uid string) (*models.Item, error) {
	return s.mutate(id, func(it *models.Item) error {
		if it.Type != models.ItemService {
			return ErrWrongItemType
		}
		it.Volunteers = without(it.Volunteers, uid)
		return nil
	})
}

// ---- notifications ----

type memNotifications struct{ m *memory }

func (s memNotifications) Create(ctx context.Context, n *models.Notification) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()

	if n.ID.IsZero() {
		n.ID = primitive.NewObjectID()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.m.now()
	}
	cp := *n
	s.m.notes[n.ID] = &cp
	return nil
}

func (s memNotifications) ListForUser(ctx context.Context, uid string) ([]*models.Notification, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()

	out := []*models.Notification{}
	for _, n := range s.m.notes {
		if n.UserID == uid {
			cp := *n
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.Hex() > out[j].ID.Hex()
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s memNotifications) MarkRead(ctx context.Context, id, uid string) error {
	oid, err := parseID(id)
	if err != nil {
		return err
	}
	s.m.mu.Lock()
	defer s.m.mu.Unlock()

	n, ok := s.m.notes[oid]
	if !ok || n.UserID != uid {
		return ErrNotFound
	}
	n.Read = true
	return nil
}

// ---- push subscriptions ----

type memSubs struct{ m *memory }

func (s memSubs) Save(ctx context.Context, sub *models.PushSubscription) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()

	if existing, ok := s.m.subs[sub.UserID]; ok {
		sub.ID = existing.ID
	} else if sub.ID.IsZero() {
		sub.ID = primitive.NewObjectID()
	}
	cp := *sub
	s.m.subs[sub.UserID] = &cp
	return nil
}

func (s memSubs) Get(ctx context.Context, uid string) (*models.PushSubscription, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()

	sub, ok := s.m.subs[uid]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *sub
	return &cp, nil
}

func (s memSubs) Delete(ctx context.Context, uid string) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()

	delete(s.m.subs, uid)
	return nil
}

// ---- helpers shared with the mongo implementation ----

// preparePost assigns the store-owned fields of a new post.
func preparePost(p *models.Post, at time.Time) {
	if p.ID.IsZero() {
		p.ID = primitive.NewObjectID()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = at
	}
	p.UpdatedAt = p.CreatedAt
	p.Version = 1
	p.Normalize()
	team := []string{p.CreatedBy}
	for _, uid := range p.Team {
		if uid != "" && !contains(team, uid) {
			team = append(team, uid)
		}
	}
	p.Team = team
	p.Bookmarks = dedupe(p.Bookmarks)
}

func prepareItem(it *models.Item, at time.Time) {
	if it.ID.IsZero() {
		it.ID = primitive.NewObjectID()
	}
	if it.CreatedAt.IsZero() {
		it.CreatedAt = at
	}
	it.UpdatedAt = it.CreatedAt
	it.Volunteers = dedupe(it.Volunteers)
	if it.Type == models.ItemProduct && it.Reviews == nil {
		it.Reviews = []models.Review{}
	}
	if it.Type == models.ItemService && it.Volunteers == nil {
		it.Volunteers = []string{}
	}
}

func averageRating(reviews []models.Review) float64 {
	if len(reviews) == 0 {
		return 0
	}
	sum := 0
	for _, r := range reviews {
		sum += r.Rating
	}
	return math.Round(float64(sum)/float64(len(reviews))*10) / 10
}

func clonePost(p *models.Post) *models.Post {
	cp := *p
	cp.Team = append([]string{}, p.Team...)
	cp.Tags = append([]string{}, p.Tags...)
	cp.SkillsNeeded = append([]string{}, p.SkillsNeeded...)
	cp.Bookmarks = append([]string{}, p.Bookmarks...)
	cp.Milestones = append([]models.Milestone{}, p.Milestones...)
	cp.Tasks = append([]models.Task{}, p.Tasks...)
	return &cp
}

func cloneItem(it *models.Item) *models.Item {
	cp := *it
	if it.Reviews != nil {
		cp.Reviews = append([]models.Review{}, it.Reviews...)
	}
	if it.Volunteers != nil {
		cp.Volunteers = append([]string{}, it.Volunteers...)
	}
	return &cp
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func without(list []string, v string) []string {
	out := make([]string, 0, len(list))
	for _, s := range list {
		if s != v {
			out = append(out, s)
		}
	}
	return out
}

func dedupe(list []string) []string {
	if list == nil {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, s := range list {
		if !contains(out, s) {
			out = append(out, s)
		}
	}
	return out
}
