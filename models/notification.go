package models

import (
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type NotificationKind string

const (
	NotifyTeamJoin    NotificationKind = "team_join"
	NotifyChatMessage NotificationKind = "chat_message"
	NotifyReview      NotificationKind = "review"
	NotifyVolunteer   NotificationKind = "volunteer"
)

type Notification struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID    string             `bson:"userId" json:"userId"`
	Kind      NotificationKind   `bson:"kind" json:"kind"`
	Message   string             `bson:"message" json:"message"`
	PostID    string             `bson:"postId,omitempty" json:"postId,omitempty"`
	ItemID    string             `bson:"itemId,omitempty" json:"itemId,omitempty"`
	Read      bool               `bson:"read" json:"read"`
	CreatedAt time.Time          `bson:"createdAt" json:"createdAt"`
}

// PushSubscription stores one browser push endpoint per user.
type PushSubscription struct {
	ID     primitive.ObjectID   `bson:"_id,omitempty" json:"id"`
	UserID string               `bson:"userId" json:"userId"`
	Sub    webpush.Subscription `bson:"sub" json:"sub"`
}
