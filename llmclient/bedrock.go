package llmclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/smithy-go"

	"github.com/kirPoNik/aws-bedrock-log-analytics-rag/config"
	"github.com/kirPoNik/aws-bedrock-log-analytics-rag/models"
)

// anthropicVersion is the bedrock-side version tag for the messages API.
const anthropicVersion = "bedrock-2023-05-31"

// BedrockClient serves both roles against AWS Bedrock: Titan for
// embeddings, an Anthropic model for answer synthesis.
type BedrockClient struct {
	rt           *bedrockruntime.Client
	embedModelID string
	synthModelID string
	maxTokens    int
	timeout      time.Duration
	maxRetries   int
}

func NewBedrockClient(ctx context.Context, cfg config.LLMConfig) (*BedrockClient, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.BedrockRegion))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	rt := bedrockruntime.NewFromConfig(awsCfg, func(o *bedrockruntime.Options) {
		// 재시도/백오프는 이 패키지에서 직접 다루므로 SDK 재시도는 끈다.
		o.RetryMaxAttempts = 1
	})
	return &BedrockClient{
		rt:           rt,
		embedModelID: cfg.BedrockModelID,
		synthModelID: cfg.BedrockSynthesisModelID,
		maxTokens:    cfg.MaxSynthesisTokens,
		timeout:      cfg.Timeout(),
		maxRetries:   cfg.BedrockMaxRetries,
	}, nil
}

func (c *BedrockClient) ModelID() string { return c.embedModelID }

// Titan embedding wire format.
type titanEmbedRequest struct {
	InputText string `json:"inputText"`
}

type titanEmbedResponse struct {
	Embedding           []float32 `json:"embedding"`
	InputTextTokenCount int       `json:"inputTextTokenCount"`
}

func (c *BedrockClient) Embed(ctx context.Context, text string) (Embedding, error) {
	if strings.TrimSpace(text) == "" {
		return Embedding{}, &Error{Kind: KindInvalidInput, Op: "bedrock.embed", Err: errors.New("empty input text")}
	}
	return withRetry(ctx, c.maxRetries, func() (Embedding, error) {
		return c.embedOnce(ctx, text)
	})
}

func (c *BedrockClient) embedOnce(ctx context.Context, text string) (Embedding, error) {
	body, err := json.Marshal(titanEmbedRequest{InputText: text})
	if err != nil {
		return Embedding{}, &Error{Kind: KindInvalidInput, Op: "bedrock.embed", Err: err}
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	out, err := c.rt.InvokeModel(callCtx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(c.embedModelID),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return Embedding{}, classify("bedrock.embed", err)
	}

	var resp titanEmbedResponse
	if err := json.Unmarshal(out.Body, &resp); err != nil {
		return Embedding{}, &Error{Kind: KindUpstream, Op: "bedrock.embed", Err: fmt.Errorf("decode response: %w", err)}
	}
	if len(resp.Embedding) == 0 {
		return Embedding{}, &Error{Kind: KindUpstream, Op: "bedrock.embed", Err: errors.New("response contains no embedding")}
	}
	return Embedding{Vector: resp.Embedding, InputTokens: resp.InputTextTokenCount}, nil
}

// Anthropic messages wire format.
type anthropicRequest struct {
	AnthropicVersion string             `json:"anthropic_version"`
	MaxTokens        int                `json:"max_tokens"`
	System           string             `json:"system,omitempty"`
	Messages         []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int64 `json:"input_tokens"`
		OutputTokens int64 `json:"output_tokens"`
	} `json:"usage"`
}

func (c *BedrockClient) Generate(ctx context.Context, system, user string) (Completion, error) {
	if strings.TrimSpace(user) == "" {
		return Completion{}, &Error{Kind: KindInvalidInput, Op: "bedrock.generate", Err: errors.New("empty prompt")}
	}
	return withRetry(ctx, c.maxRetries, func() (Completion, error) {
		return c.generateOnce(ctx, system, user)
	})
}

func (c *BedrockClient) generateOnce(ctx context.Context, system, user string) (Completion, error) {
	body, err := json.Marshal(anthropicRequest{
		AnthropicVersion: anthropicVersion,
		MaxTokens:        c.maxTokens,
		System:           system,
		Messages: []anthropicMessage{
			{Role: "user", Content: user},
		},
	})
	if err != nil {
		return Completion{}, &Error{Kind: KindInvalidInput, Op: "bedrock.generate", Err: err}
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	out, err := c.rt.InvokeModel(callCtx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(c.synthModelID),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return Completion{}, classify("bedrock.generate", err)
	}

	var resp anthropicResponse
	if err := json.Unmarshal(out.Body, &resp); err != nil {
		return Completion{}, &Error{Kind: KindUpstream, Op: "bedrock.generate", Err: fmt.Errorf("decode response: %w", err)}
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return Completion{}, &Error{Kind: KindUpstream, Op: "bedrock.generate", Err: errors.New("response contains no text content")}
	}

	return Completion{
		Text:         sb.String(),
		ModelVersion: c.synthModelID,
		Usage: models.TokenUsage{
			InputTokens:  resp.Usage.InputTokens,
			OutputTokens: resp.Usage.OutputTokens,
			TotalTokens:  resp.Usage.InputTokens + resp.Usage.OutputTokens,
		},
	}, nil
}

// classify maps an SDK failure onto the package taxonomy. Unrecognized
// provider errors count as upstream so they stay within the bounded
// retry budget instead of looping forever.
func classify(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Op: op, Err: err}
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ThrottlingException", "TooManyRequestsException", "ServiceQuotaExceededException":
			return &Error{Kind: KindRateLimited, Op: op, Err: err}
		case "ModelTimeoutException":
			return &Error{Kind: KindTimeout, Op: op, Err: err}
		case "ValidationException":
			return &Error{Kind: KindInvalidInput, Op: op, Err: err}
		}
		return &Error{Kind: KindUpstream, Op: op, Err: err}
	}
	return &Error{Kind: KindUpstream, Op: op, Err: err}
}
