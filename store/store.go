// Package store is the document store accessor for posts, chat messages,
// marketplace items, notifications and push subscriptions.
//
// List fields on shared documents (team, bookmarks, volunteers, reviews)
// change through atomic set operations. Index-addressed mutations
// (milestones, tasks) use a version compare-and-swap with bounded retry.
package store

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"teamup/models"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidID          = errors.New("invalid id")
	ErrConflict           = errors.New("version conflict")
	ErrInvalidIndex       = errors.New("index out of range")
	ErrAlreadyReviewed    = errors.New("item already reviewed by this user")
	ErrCreatorCannotLeave = errors.New("the creator cannot leave their own team")
	ErrWrongItemType      = errors.New("operation not valid for this item type")
)

// maxCASAttempts bounds compare-and-swap retries on a contended document.
const maxCASAttempts = 5

// PostUpdate carries the editable fields of a post. Nil fields are left alone.
type PostUpdate struct {
	Title        *string
	Description  *string
	Deadline     *string
	Contact      *string
	Status       *models.Status
	Tags         *[]string
	SkillsNeeded *[]string
}

type Posts interface {
	Create(ctx context.Context, post *models.Post) error
	List(ctx context.Context) ([]*models.Post, error)
	Get(ctx context.Context, id string) (*models.Post, error)
	Update(ctx context.Context, id string, version int64, u PostUpdate) (*models.Post, error)
	Delete(ctx context.Context, id string) error

	// JoinTeam reports whether uid was added by this call.
	JoinTeam(ctx context.Context, id, uid string) (*models.Post, bool, error)
	LeaveTeam(ctx context.Context, id, uid string) (*models.Post, error)
	ToggleBookmark(ctx context.Context, id, uid string) (bool, error)

	AddMilestone(ctx context.Context, id string, m models.Milestone) (*models.Post, error)
	CompleteMilestone(ctx context.Context, id string, index int) (*models.Post, error)
	SetMilestoneProgress(ctx context.Context, id string, index, progress int) (*models.Post, error)
	AddTask(ctx context.Context, id string, t models.Task) (*models.Post, error)
	CompleteTask(ctx context.Context, id string, index int) (*models.Post, error)
}

type Messages interface {
	Append(ctx context.Context, msg *models.ChatMessage) error
	ListByPost(ctx context.Context, postID string) ([]*models.ChatMessage, error)
	Get(ctx context.Context, id string) (*models.ChatMessage, error)
	Delete(ctx context.Context, id string) error
}

type ItemFilter struct {
	Type   models.ItemType
	TeamID string
}

// ItemUpdate carries the owner-editable fields of a listing.
type ItemUpdate struct {
	Title        *string
	Description  *string
	Price        *float64
	Contact      *string
	ImageURL     *string
	Availability *string
}

type Items interface {
	Create(ctx context.Context, item *models.Item) error
	List(ctx context.Context, f ItemFilter) ([]*models.Item, error)
	Get(ctx context.Context, id string) (*models.Item, error)
	Update(ctx context.Context, id string, u ItemUpdate) (*models.Item, error)
	Delete(ctx context.Context, id string) error
	AddReview(ctx context.Context, id string, r models.Review) (*models.Item, error)
	Volunteer(ctx context.Context, id, uid string) (*models.Item, error)
	Unvolunteer(ctx context.Context, id, uid string) (*models.Item, error)
}

type Notifications interface {
	Create(ctx context.Context, n *models.Notification) error
	ListForUser(ctx context.Context, uid string) ([]*models.Notification, error)
	MarkRead(ctx context.Context, id, uid string) error
}

type PushSubscriptions interface {
	Save(ctx context.Context, sub *models.PushSubscription) error
	Get(ctx context.Context, uid string) (*models.PushSubscription, error)
	Delete(ctx context.Context, uid string) error
}

type Store struct {
	Posts             Posts
	Messages          Messages
	Items             Items
	Notifications     Notifications
	PushSubscriptions PushSubscriptions
}

func parseID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, ErrInvalidID
	}
	return oid, nil
}

// ParseID validates a hex document id.
func ParseID(id string) (primitive.ObjectID, error) {
	return parseID(id)
}
