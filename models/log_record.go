package models

import (
	"time"
)

// LogRecord is one raw log event as received on the ingestion boundary.
// Records are immutable once accepted; RequestID is the idempotency key
// for everything downstream (a missing one is filled with a UUID at the
// HTTP boundary).
type LogRecord struct {
	RequestID string            `json:"request_id" bson:"request_id"`
	Service   string            `json:"service" bson:"service"`
	Level     string            `json:"level" bson:"level"`
	Message   string            `json:"message" bson:"message"`
	Timestamp time.Time         `json:"timestamp" bson:"timestamp"`
	UserID    string            `json:"user_id,omitempty" bson:"user_id,omitempty"`
	Attrs     map[string]string `json:"attrs,omitempty" bson:"attrs,omitempty"`
}
