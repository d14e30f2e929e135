package services

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/dukamart/dukapay-gobackend/internal/models"
)

type FAQService struct {
	collection *mongo.Collection
}

func NewFAQService(db *mongo.Database) *FAQService {
	return &FAQService{collection: db.Collection("faq")}
}

func (s *FAQService) CreateFAQ(ctx context.Context, faq *models.FAQ) (string, error) {
	faq.ID = primitive.NewObjectID()
	faq.IsActive = true
	faq.CreatedAt = time.Now()
	faq.UpdatedAt = faq.CreatedAt

	result, err := s.collection.InsertOne(ctx, faq)
	if err != nil {
		return "", err
	}

	return result.InsertedID.(primitive.ObjectID).Hex(), nil
}

func (s *FAQService) FAQList(ctx context.Context) ([]models.FAQ, error) {
	cur, err := s.collection.Find(ctx, bson.D{}, options.Find().SetSort(bson.M{"created_at": -1}))
	if err != nil {
		return nil, err
	}

	var faqs []models.FAQ
	defer cur.Close(ctx)

	if err := cur.All(ctx, &faqs); err != nil {
		return nil, err
	}

	return faqs, nil
}

// ActiveFAQs returns up to limit active entries for assistant context.
func (s *FAQService) ActiveFAQs(ctx context.Context, limit int64) ([]models.FAQ, error) {
	opts := options.Find().SetSort(bson.M{"created_at": -1}).SetLimit(limit)
	cur, err := s.collection.Find(ctx, bson.M{"is_active": true}, opts)
	if err != nil {
		return nil, err
	}

	var faqs []models.FAQ
	defer cur.Close(ctx)

	if err := cur.All(ctx, &faqs); err != nil {
		return nil, err
	}

	return faqs, nil
}

func (s *FAQService) GetFAQByID(ctx context.Context, id primitive.ObjectID) (*models.FAQ, error) {
	var faq models.FAQ
	if err := s.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&faq); err != nil {
		return nil, err
	}
	return &faq, nil
}

func (s *FAQService) UpdateFAQ(ctx context.Context, faq *models.FAQ) error {
	update := bson.M{
		"$set": bson.M{
			"question":   faq.Question,
			"answer":     faq.Answer,
			"category":   faq.Category,
			"is_active":  faq.IsActive,
			"updated_at": time.Now(),
		},
	}
	result, err := s.collection.UpdateOne(ctx, bson.M{"_id": faq.ID}, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}

func (s *FAQService) DeleteFAQ(ctx context.Context, id primitive.ObjectID) error {
	result, err := s.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}
