package models

import "time"

// TokenUsage mirrors the usage metadata reported by the model APIs.
type TokenUsage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
	TotalTokens  int64 `json:"total_tokens"`
}

// Answer is a synthesized response grounded in retrieved log records.
// Sources lists the request_ids of the records the prompt actually
// contained, so every answer is auditable.
type Answer struct {
	Text        string     `json:"text"`
	Sources     []string   `json:"sources"`
	GeneratedAt time.Time  `json:"generated_at"`
	Usage       TokenUsage `json:"usage"`
}
