package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"

	"meeting-rag-api/internal/application/retrieval"
	"meeting-rag-api/internal/config"
	"meeting-rag-api/pkg/metrics"
	"meeting-rag-api/pkg/retry"
)

// ResponsesGenerator answers prompts through the OpenAI Responses API.
type ResponsesGenerator struct {
	client    openai.Client
	modelName string
	provider  string
	policy    retry.Policy
}

var _ retrieval.Generator = (*ResponsesGenerator)(nil)

func NewResponsesGenerator(provider string, cfg config.ProviderConfig, policy retry.Policy) (*ResponsesGenerator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("provider %s: api key is required", provider)
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		// retries are handled by retry.Do
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	return &ResponsesGenerator{
		client:    openai.NewClient(opts...),
		modelName: cfg.Model,
		provider:  provider,
		policy:    policy,
	}, nil
}

func (g *ResponsesGenerator) Generate(ctx context.Context, prompt string, maxTokens int, temperature float32) (string, error) {
	params := responses.ResponseNewParams{
		Model:       g.modelName,
		Temperature: openai.Float(float64(temperature)),
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: []responses.ResponseInputItemUnionParam{
				responses.ResponseInputItemParamOfMessage(prompt, responses.EasyInputMessageRoleUser),
			},
		},
	}
	if maxTokens > 0 {
		params.MaxOutputTokens = openai.Int(int64(maxTokens))
	}

	start := time.Now()
	resp, err := retry.Do(ctx, g.policy, func(ctx context.Context) (*responses.Response, error) {
		return g.client.Responses.New(ctx, params)
	})
	metrics.LLMCallDuration.WithLabelValues(g.provider, g.modelName).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.LLMCallTotal.WithLabelValues(g.provider, g.modelName, "error").Inc()
		return "", err
	}
	metrics.LLMCallTotal.WithLabelValues(g.provider, g.modelName, "success").Inc()
	metrics.LLMTokensUsed.WithLabelValues(g.provider, g.modelName, "prompt").Add(float64(resp.Usage.InputTokens))
	metrics.LLMTokensUsed.WithLabelValues(g.provider, g.modelName, "completion").Add(float64(resp.Usage.OutputTokens))

	return strings.TrimSpace(resp.OutputText()), nil
}
