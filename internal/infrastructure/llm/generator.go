package llm

import (
	"context"
	"fmt"

	"meeting-rag-api/internal/application/retrieval"
	"meeting-rag-api/internal/config"
	"meeting-rag-api/pkg/retry"
)

// NewGenerator builds the generator for the named provider, or the default one.
func NewGenerator(ctx context.Context, cfg *config.LLMConfig, name string) (retrieval.Generator, error) {
	if name == "" {
		name = cfg.DefaultProvider
	}
	providerCfg, ok := cfg.Providers[name]
	if !ok {
		return nil, fmt.Errorf("provider %s not found in LLM config", name)
	}

	policy := retry.DefaultPolicy()
	policy.MaxRetries = providerCfg.MaxRetries

	switch providerCfg.Kind {
	case "", KindEino:
		m, err := NewEinoFactory(cfg).Get(ctx, name)
		if err != nil {
			return nil, err
		}
		return NewChatGenerator(m, name, providerCfg.Model, policy), nil
	case KindResponses:
		return NewResponsesGenerator(name, providerCfg, policy)
	default:
		return nil, fmt.Errorf("provider %s has unknown kind %q", name, providerCfg.Kind)
	}
}
