package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type ItemType string

const (
	ItemProduct ItemType = "product"
	ItemService ItemType = "service"
)

func (t ItemType) Valid() bool {
	return t == ItemProduct || t == ItemService
}

// Item is a marketplace listing produced by the team of a post.
type Item struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	TeamID      primitive.ObjectID `bson:"team_id" json:"teamId"`
	TeamTitle   string             `bson:"team_title" json:"teamTitle"`
	Type        ItemType           `bson:"type" json:"type"`
	Title       string             `bson:"title" json:"title"`
	Description string             `bson:"description" json:"description"`
	Price       float64            `bson:"price" json:"price"`
	Contact     string             `bson:"contact,omitempty" json:"contact,omitempty"`
	CreatedBy   string             `bson:"createdBy" json:"createdBy"`
	CreatedAt   time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt   time.Time          `bson:"updatedAt,omitempty" json:"updatedAt"`

	// product only
	ImageURL string   `bson:"image_url,omitempty" json:"imageUrl,omitempty"`
	Rating   float64  `bson:"rating,omitempty" json:"rating,omitempty"`
	Reviews  []Review `bson:"reviews,omitempty" json:"reviews,omitempty"`

	// service only
	Volunteers   []string `bson:"volunteers,omitempty" json:"volunteers,omitempty"`
	Availability string   `bson:"availability,omitempty" json:"availability,omitempty"`
}

type Review struct {
	User      string    `bson:"user" json:"user"`
	Rating    int       `bson:"rating" json:"rating"`
	Comment   string    `bson:"comment" json:"comment"`
	Timestamp time.Time `bson:"timestamp" json:"timestamp"`
}

func (it *Item) ReviewedBy(uid string) bool {
	for _, r := range it.Reviews {
		if r.User == uid {
			return true
		}
	}
	return false
}

func (it *Item) HasVolunteer(uid string) bool {
	return contains(it.Volunteers, uid)
}
