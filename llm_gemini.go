package main

import (
	"context"
	"fmt"
	"sync"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
)

// geminiLLM uses langchaingo's Google AI backend. One client is created per
// model on first use.
type geminiLLM struct {
	apiKey string

	mu      sync.Mutex
	clients map[string]*googleai.GoogleAI
}

func newGeminiLLM(apiKey string) *geminiLLM {
	return &geminiLLM{apiKey: apiKey, clients: make(map[string]*googleai.GoogleAI)}
}

func (g *geminiLLM) client(ctx context.Context, model string) (*googleai.GoogleAI, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if c, ok := g.clients[model]; ok {
		return c, nil
	}
	c, err := googleai.New(ctx, googleai.WithAPIKey(g.apiKey), googleai.WithDefaultModel(model))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	g.clients[model] = c
	return c, nil
}

func (g *geminiLLM) Complete(ctx context.Context, req Request) (string, error) {
	c, err := g.client(ctx, req.Model)
	if err != nil {
		return "", err
	}

	opts := []llms.CallOption{llms.WithTemperature(req.Temperature)}
	if req.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(req.MaxTokens))
	}
	if req.JSON {
		opts = append(opts, llms.WithJSONMode())
	}

	text, err := llms.GenerateFromSinglePrompt(ctx, c, req.Prompt, opts...)
	if err != nil {
		return "", fmt.Errorf("gemini call failed: %w", err)
	}
	return text, nil
}
