package llmclient

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"google.golang.org/genai"

	"github.com/kirPoNik/aws-bedrock-log-analytics-rag/config"
	"github.com/kirPoNik/aws-bedrock-log-analytics-rag/models"
)

// GoogleClient serves both roles against the Gemini API. It exists so
// local development does not need AWS credentials; production runs on
// the bedrock provider.
type GoogleClient struct {
	client     *genai.Client
	embedModel string
	synthModel string
	dimension  int
	timeout    time.Duration
	maxRetries int
}

func NewGoogleClient(ctx context.Context, cfg config.LLMConfig) (*GoogleClient, error) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY environment variable is not set")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, err
	}
	return &GoogleClient{
		client:     client,
		embedModel: cfg.GoogleEmbeddingModel,
		synthModel: cfg.GoogleSynthesisModel,
		dimension:  cfg.EmbeddingDimension,
		timeout:    cfg.Timeout(),
		maxRetries: cfg.BedrockMaxRetries,
	}, nil
}

func (c *GoogleClient) ModelID() string { return c.embedModel }

func (c *GoogleClient) Embed(ctx context.Context, text string) (Embedding, error) {
	if strings.TrimSpace(text) == "" {
		return Embedding{}, &Error{Kind: KindInvalidInput, Op: "google.embed", Err: errors.New("empty input text")}
	}
	return withRetry(ctx, c.maxRetries, func() (Embedding, error) {
		return c.embedOnce(ctx, text)
	})
}

func (c *GoogleClient) embedOnce(ctx context.Context, text string) (Embedding, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.client.Models.EmbedContent(callCtx, c.embedModel, genai.Text(text),
		&genai.EmbedContentConfig{
			OutputDimensionality: genai.Ptr(int32(c.dimension)),
		})
	if err != nil {
		return Embedding{}, classifyGoogle("google.embed", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
		return Embedding{}, &Error{Kind: KindUpstream, Op: "google.embed", Err: errors.New("response contains no embedding")}
	}
	// Gemini 임베딩 응답에는 토큰 사용량이 없으므로 rune 수로 근사한다.
	return Embedding{
		Vector:      resp.Embeddings[0].Values,
		InputTokens: utf8.RuneCountInString(text),
	}, nil
}

func (c *GoogleClient) Generate(ctx context.Context, system, user string) (Completion, error) {
	if strings.TrimSpace(user) == "" {
		return Completion{}, &Error{Kind: KindInvalidInput, Op: "google.generate", Err: errors.New("empty prompt")}
	}
	return withRetry(ctx, c.maxRetries, func() (Completion, error) {
		return c.generateOnce(ctx, system, user)
	})
}

func (c *GoogleClient) generateOnce(ctx context.Context, system, user string) (Completion, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	result, err := c.client.Models.GenerateContent(
		callCtx,
		c.synthModel,
		genai.Text(user),
		&genai.GenerateContentConfig{
			SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: system}}},
		},
	)
	if err != nil {
		return Completion{}, classifyGoogle("google.generate", err)
	}

	text := result.Text()
	if text == "" {
		return Completion{}, &Error{Kind: KindUpstream, Op: "google.generate", Err: errors.New("response contains no text content")}
	}

	completion := Completion{
		Text:         text,
		ModelVersion: result.ModelVersion,
	}
	if result.UsageMetadata != nil {
		completion.Usage = models.TokenUsage{
			InputTokens:  int64(result.UsageMetadata.PromptTokenCount),
			OutputTokens: int64(result.UsageMetadata.CandidatesTokenCount),
			TotalTokens:  int64(result.UsageMetadata.TotalTokenCount),
		}
	}
	return completion, nil
}

func classifyGoogle(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Op: op, Err: err}
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == 429:
			return &Error{Kind: KindRateLimited, Op: op, Err: err}
		case apiErr.Code == 408 || apiErr.Code == 504:
			return &Error{Kind: KindTimeout, Op: op, Err: err}
		case apiErr.Code >= 400 && apiErr.Code < 500:
			return &Error{Kind: KindInvalidInput, Op: op, Err: err}
		}
		return &Error{Kind: KindUpstream, Op: op, Err: err}
	}
	return &Error{Kind: KindUpstream, Op: op, Err: err}
}
