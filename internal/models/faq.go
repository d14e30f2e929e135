package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// FAQ is a question/answer pair fed to the shop assistant as context.
type FAQ struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Question  string             `bson:"question" json:"question"`
	Answer    string             `bson:"answer" json:"answer"`
	Category  string             `bson:"category,omitempty" json:"category,omitempty"`
	IsActive  bool               `bson:"is_active" json:"is_active"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time          `bson:"updated_at" json:"updated_at"`
}
