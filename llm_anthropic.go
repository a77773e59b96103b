package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/aktagon/llmkit/anthropic"
	"github.com/aktagon/llmkit/anthropic/types"
)

const anthropicSystemPrompt = "You write content for a fantasy adventure game. Follow the requested output format exactly."

type anthropicLLM struct {
	apiKey string
}

func newAnthropicLLM(apiKey string) *anthropicLLM {
	return &anthropicLLM{apiKey: apiKey}
}

// Complete sends a single prompt through llmkit. llmkit does not take a
// context, so cancellation is only observed before the call.
func (a *anthropicLLM) Complete(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	settings := types.RequestSettings{
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	response, err := anthropic.PromptWithSettings(anthropicSystemPrompt, req.Prompt, "", a.apiKey, settings)
	if err != nil {
		return "", fmt.Errorf("anthropic prompt failed: %w", err)
	}

	if len(response.Content) == 0 {
		return "", errors.New("no content in response")
	}
	return response.Content[0].Text, nil
}
