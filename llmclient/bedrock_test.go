package llmclient

import (
	"context"
	"fmt"
	"testing"

	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
)

func TestClassifyBedrockErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Kind
	}{
		{"throttling", &smithy.GenericAPIError{Code: "ThrottlingException"}, KindRateLimited},
		{"too many requests", &smithy.GenericAPIError{Code: "TooManyRequestsException"}, KindRateLimited},
		{"quota", &smithy.GenericAPIError{Code: "ServiceQuotaExceededException"}, KindRateLimited},
		{"model timeout", &smithy.GenericAPIError{Code: "ModelTimeoutException"}, KindTimeout},
		{"validation", &smithy.GenericAPIError{Code: "ValidationException"}, KindInvalidInput},
		{"internal", &smithy.GenericAPIError{Code: "InternalServerException"}, KindUpstream},
		{"unknown api error", &smithy.GenericAPIError{Code: "SomethingNew"}, KindUpstream},
		{"context deadline", context.DeadlineExceeded, KindTimeout},
		{"wrapped deadline", fmt.Errorf("invoke model: %w", context.DeadlineExceeded), KindTimeout},
		{"network", fmt.Errorf("dial tcp: connection refused"), KindUpstream},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := classify("bedrock.embed", tc.err)
			assert.Equal(t, tc.want, KindOf(got))
		})
	}
}

func TestClassifyKeepsCause(t *testing.T) {
	cause := &smithy.GenericAPIError{Code: "ThrottlingException", Message: "slow down"}
	err := classify("bedrock.embed", cause)

	var apiErr smithy.APIError
	assert.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "ThrottlingException", apiErr.ErrorCode())
	assert.Contains(t, err.Error(), "bedrock.embed")
	assert.Contains(t, err.Error(), "rate_limited")
}
