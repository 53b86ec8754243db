package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ChatMessage belongs to the team chat of one post.
type ChatMessage struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	PostID      primitive.ObjectID `bson:"postId" json:"postId"`
	Sender      string             `bson:"sender" json:"sender"`
	SenderEmail string             `bson:"senderEmail,omitempty" json:"senderEmail,omitempty"`
	Message     string             `bson:"message" json:"message"`
	Timestamp   time.Time          `bson:"timestamp" json:"timestamp"`
	FileURL     string             `bson:"file_url,omitempty" json:"fileUrl,omitempty"`
	FileName    string             `bson:"file_name,omitempty" json:"fileName,omitempty"`
}
