package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"meeting-rag-api/internal/application/retrieval"
	einoobs "meeting-rag-api/internal/observability/eino"
	"meeting-rag-api/pkg/retry"
)

// ChatGenerator answers prompts through an eino chat model.
type ChatGenerator struct {
	model     model.BaseChatModel
	provider  string
	modelName string
	policy    retry.Policy
}

var _ retrieval.Generator = (*ChatGenerator)(nil)

func NewChatGenerator(m model.BaseChatModel, provider, modelName string, policy retry.Policy) *ChatGenerator {
	return &ChatGenerator{model: m, provider: provider, modelName: modelName, policy: policy}
}

// Generate sends prompt as a single user message and returns the reply text.
func (g *ChatGenerator) Generate(ctx context.Context, prompt string, maxTokens int, temperature float32) (string, error) {
	ctx = einoobs.WithProvider(ctx, g.provider, g.modelName)
	ctx = callbacks.InitCallbacks(ctx, &callbacks.RunInfo{
		Name:      "meeting_answer",
		Type:      g.provider,
		Component: components.ComponentOfChatModel,
	})

	opts := []model.Option{model.WithTemperature(temperature)}
	if maxTokens > 0 {
		opts = append(opts, model.WithMaxTokens(maxTokens))
	}
	msgs := []*schema.Message{schema.UserMessage(prompt)}

	out, err := retry.Do(ctx, g.policy, func(ctx context.Context) (*schema.Message, error) {
		return g.model.Generate(ctx, msgs, opts...)
	})
	if err != nil {
		return "", err
	}
	if out == nil {
		return "", fmt.Errorf("chat model returned no message")
	}
	return strings.TrimSpace(out.Content), nil
}
