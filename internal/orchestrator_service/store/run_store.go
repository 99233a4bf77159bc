package store

import (
	"context"

	"GraphMind/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// RunStore defines the interface for run archival.
type RunStore interface {
	SaveRun(ctx context.Context, record *models.RunRecord) error
	GetByID(ctx context.Context, id string) (*models.RunRecord, error)
	GetSessionRuns(ctx context.Context, sessionID string, limit int) ([]*models.RunRecord, error)
}

// MongoRunStore is an implementation of RunStore using MongoDB.
type MongoRunStore struct {
	collection *mongo.Collection
}

// NewMongoRunStore creates a new MongoRunStore.
func NewMongoRunStore(db *mongo.Database, collectionName string) *MongoRunStore {
	return &MongoRunStore{
		collection: db.Collection(collectionName),
	}
}

// SaveRun inserts a finished run record into the database.
func (s *MongoRunStore) SaveRun(ctx context.Context, record *models.RunRecord) error {
	_, err := s.collection.InsertOne(ctx, record)
	return err
}

// GetByID retrieves a run by its ID.
func (s *MongoRunStore) GetByID(ctx context.Context, id string) (*models.RunRecord, error) {
	var record models.RunRecord
	err := s.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&record)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

// GetSessionRuns retrieves the most recent runs of a session, newest first.
func (s *MongoRunStore) GetSessionRuns(ctx context.Context, sessionID string, limit int) ([]*models.RunRecord, error) {
	var records []*models.RunRecord
	opts := options.Find()
	opts.SetSort(bson.D{{Key: "submitted_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := s.collection.Find(ctx, bson.M{"session_id": sessionID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	if err = cursor.All(ctx, &records); err != nil {
		return nil, err
	}
	return records, nil
}
