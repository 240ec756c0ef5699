package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Call types recorded in model_call_logs.
const (
	CallTypeEmbedding = "embedding"
	CallTypeSynthesis = "synthesis"
)

// ModelCallLog stores upstream model usage (system monitoring purpose).
// Collection: model_call_logs
type ModelCallLog struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	CallType       string             `bson:"call_type" json:"call_type"`
	ModelName      string             `bson:"model_name" json:"model_name"`
	ModelVersion   string             `bson:"model_version,omitempty" json:"model_version,omitempty"`
	InputTokens    int64              `bson:"input_tokens" json:"input_tokens"`
	OutputTokens   int64              `bson:"output_tokens" json:"output_tokens"`
	TotalTokens    int64              `bson:"total_tokens" json:"total_tokens"`
	DurationMs     int64              `bson:"duration_ms" json:"duration_ms"`
	ErrorMessage   *string            `bson:"error_message,omitempty" json:"error_message,omitempty"`
	InputSnippet   string             `bson:"input_snippet" json:"input_snippet"`
	OutputSnippet  string             `bson:"output_snippet,omitempty" json:"output_snippet,omitempty"`
	TraceRequestID string             `bson:"trace_request_id,omitempty" json:"trace_request_id,omitempty"`
	RequestedAt    time.Time          `bson:"requested_at" json:"requested_at"`
	CompletedAt    time.Time          `bson:"completed_at" json:"completed_at"`
}
