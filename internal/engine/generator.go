package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/pedaragy/pedaragy-go/internal/provider"
)

// ErrGeneration marks a failure in the LLM call. Surfaced to the caller,
// never retried here.
var ErrGeneration = errors.New("generation failed")

// Generator produces an answer from a fully formatted prompt. The model
// argument selects a per-request model override; empty selects the
// configured default.
type Generator interface {
	Generate(ctx context.Context, prompt, modelName string) (string, error)
}

// ModelGenerator implements Generator over eino chat models. Models are
// constructed lazily per model name and cached, so a per-request override
// costs one construction on first use. Safe for concurrent use.
type ModelGenerator struct {
	baseCfg *provider.Config

	mu     sync.Mutex
	models map[string]model.ToolCallingChatModel
}

// NewModelGenerator constructs a ModelGenerator from the provider config.
func NewModelGenerator(cfg *provider.Config) *ModelGenerator {
	return &ModelGenerator{
		baseCfg: cfg,
		models:  make(map[string]model.ToolCallingChatModel),
	}
}

// Generate sends the prompt to the selected model and returns its reply.
func (g *ModelGenerator) Generate(ctx context.Context, prompt, modelName string) (string, error) {
	if modelName == "" {
		modelName = g.baseCfg.ModelName()
	}

	m, err := g.model(ctx, modelName)
	if err != nil {
		return "", fmt.Errorf("engine: %w: %v", ErrGeneration, err)
	}

	out, err := m.Generate(ctx, []*schema.Message{schema.UserMessage(prompt)})
	if err != nil {
		return "", fmt.Errorf("engine: %w: model %s: %v", ErrGeneration, modelName, err)
	}
	return out.Content, nil
}

// model returns the cached chat model for name, constructing it on first use.
func (g *ModelGenerator) model(ctx context.Context, name string) (model.ToolCallingChatModel, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if m, ok := g.models[name]; ok {
		return m, nil
	}
	m, err := provider.New(ctx, g.baseCfg.WithModel(name))
	if err != nil {
		return nil, err
	}
	g.models[name] = m
	return m, nil
}
