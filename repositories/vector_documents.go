package repositories

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/kirPoNik/aws-bedrock-log-analytics-rag/models"
)

type VectorDocumentRepository struct {
	col *mongo.Collection
}

func NewVectorDocumentRepository(db *mongo.Database) *VectorDocumentRepository {
	return &VectorDocumentRepository{col: db.Collection("vector_documents")}
}

// BulkUpsertResult reports the per-document outcome of one bulk write.
type BulkUpsertResult struct {
	Upserted int
	// Failed maps request_id to the write error message for documents the
	// server rejected. Keys absent from the map were written.
	Failed map[string]string
}

// BulkUpsert writes documents with unordered ReplaceOne upserts keyed by
// request_id. Re-ingesting the same request_id replaces the existing
// document instead of duplicating it, so retries and redelivered batches
// are safe. A partial failure does not abort the remaining writes.
func (r *VectorDocumentRepository) BulkUpsert(ctx context.Context, docs []models.VectorDocument) (BulkUpsertResult, error) {
	res := BulkUpsertResult{Failed: map[string]string{}}
	if len(docs) == 0 {
		return res, nil
	}

	writes := make([]mongo.WriteModel, 0, len(docs))
	for _, doc := range docs {
		writes = append(writes, mongo.NewReplaceOneModel().
			SetFilter(bson.M{"request_id": doc.RequestID}).
			SetReplacement(doc).
			SetUpsert(true))
	}

	opts := options.BulkWrite().SetOrdered(false)
	_, err := r.col.BulkWrite(ctx, writes, opts)
	if err := applyBulkWriteError(&res, docs, err); err != nil {
		return res, err
	}
	res.Upserted = len(docs) - len(res.Failed)
	return res, nil
}

// applyBulkWriteError marks the documents an unordered bulk write rejected.
// The returned error is what the caller should surface: nil when every
// failure was per-document (the rest of the batch was written), the original
// error when the batch as a whole cannot be trusted — a non-bulk failure
// (connection, auth) or a write-concern error.
func applyBulkWriteError(res *BulkUpsertResult, docs []models.VectorDocument, err error) error {
	if err == nil {
		return nil
	}
	var bwe mongo.BulkWriteException
	if !errors.As(err, &bwe) {
		return err
	}
	for _, we := range bwe.WriteErrors {
		if we.Index >= 0 && we.Index < len(docs) {
			res.Failed[docs[we.Index].RequestID] = we.Message
		}
	}
	if bwe.WriteConcernError != nil {
		return err
	}
	return nil
}

// SearchByVector runs an Atlas $vectorSearch over log_embedding and returns
// up to k documents with their cosine similarity scores, best first.
// Results below minScore are dropped.
func (r *VectorDocumentRepository) SearchByVector(ctx context.Context, vector []float32, k int, minScore float64) ([]models.ScoredDocument, error) {
	if k < 1 {
		k = 1
	}
	pipeline := mongo.Pipeline{
		{{Key: "$vectorSearch", Value: bson.M{
			"index":         "vector_index",
			"path":          "log_embedding",
			"queryVector":   vector,
			"numCandidates": k * 10,
			"limit":         k,
		}}},
		{{Key: "$addFields", Value: bson.M{
			"score": bson.M{"$meta": "vectorSearchScore"},
		}}},
	}
	if minScore > 0 {
		pipeline = append(pipeline, bson.D{{Key: "$match", Value: bson.M{
			"score": bson.M{"$gte": minScore},
		}}})
	}

	cur, err := r.col.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.ScoredDocument
	for cur.Next(ctx) {
		var row struct {
			models.VectorDocument `bson:",inline"`
			Score                 float64 `bson:"score"`
		}
		if err := cur.Decode(&row); err != nil {
			return nil, err
		}
		out = append(out, models.ScoredDocument{Document: row.VectorDocument, Score: row.Score})
	}
	return out, cur.Err()
}

// SearchByKeyword runs a $text search over message, newest first. Empty
// service/level filters match everything.
func (r *VectorDocumentRepository) SearchByKeyword(ctx context.Context, query, service, level string, limit int) ([]models.VectorDocument, error) {
	filter := bson.M{"$text": bson.M{"$search": query}}
	if service != "" {
		filter["service"] = service
	}
	if level != "" {
		filter["level"] = level
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}}).
		SetLimit(int64(limit)).
		SetProjection(bson.M{"log_embedding": 0})
	cur, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.VectorDocument
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CountByService returns how many documents each service has ingested.
func (r *VectorDocumentRepository) CountByService(ctx context.Context) (map[string]int64, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.M{
			"_id":   "$service",
			"count": bson.M{"$sum": 1},
		}}},
	}
	cur, err := r.col.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	counts := map[string]int64{}
	for cur.Next(ctx) {
		var row struct {
			Service string `bson:"_id"`
			Count   int64  `bson:"count"`
		}
		if err := cur.Decode(&row); err != nil {
			return nil, err
		}
		counts[row.Service] = row.Count
	}
	return counts, cur.Err()
}
