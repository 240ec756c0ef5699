package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// VectorDocument is an embedded log record as stored in the vector index.
// Collection: vector_documents. Written once per request_id via upsert;
// never mutated afterwards.
type VectorDocument struct {
	ID                 primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	RequestID          string             `bson:"request_id" json:"request_id"`
	Service            string             `bson:"service" json:"service"`
	UserID             string             `bson:"user_id,omitempty" json:"user_id,omitempty"`
	Level              string             `bson:"level" json:"level"`
	Message            string             `bson:"message" json:"message"`
	Attrs              map[string]string  `bson:"attrs,omitempty" json:"attrs,omitempty"`
	Timestamp          time.Time          `bson:"timestamp" json:"timestamp"`
	LogEmbedding       []float32          `bson:"log_embedding" json:"log_embedding,omitempty"`
	EmbeddingModel     string             `bson:"embedding_model" json:"embedding_model"`
	EmbeddingTimestamp int64              `bson:"embedding_timestamp" json:"embedding_timestamp"`
}

// ScoredDocument pairs a retrieved document with its similarity score.
type ScoredDocument struct {
	Document VectorDocument `json:"document"`
	Score    float64        `json:"score"`
}
