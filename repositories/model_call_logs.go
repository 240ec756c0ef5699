package repositories

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/kirPoNik/aws-bedrock-log-analytics-rag/models"
)

type ModelCallLogRepository struct {
	col *mongo.Collection
}

func NewModelCallLogRepository(db *mongo.Database) *ModelCallLogRepository {
	return &ModelCallLogRepository{col: db.Collection("model_call_logs")}
}

func (r *ModelCallLogRepository) Insert(ctx context.Context, log models.ModelCallLog) (*mongo.InsertOneResult, error) {
	if log.RequestedAt.IsZero() {
		log.RequestedAt = time.Now()
	}
	if log.CompletedAt.IsZero() {
		log.CompletedAt = time.Now()
	}
	return r.col.InsertOne(ctx, log)
}

// FindRecent returns the latest calls of one type, newest first.
func (r *ModelCallLogRepository) FindRecent(ctx context.Context, callType string, limit int64) ([]models.ModelCallLog, error) {
	filter := bson.M{}
	if callType != "" {
		filter["call_type"] = callType
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "requested_at", Value: -1}}).
		SetLimit(limit)
	cur, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.ModelCallLog
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
