package main

import (
	"context"
	"errors"
	"fmt"

	goopenai "github.com/sashabaranov/go-openai"
)

const defaultOpenRouterBaseURL = "https://openrouter.ai/api/v1"

// openRouterLLM talks to OpenRouter's OpenAI-compatible endpoint
type openRouterLLM struct {
	client *goopenai.Client
}

func newOpenRouterLLM(apiKey, baseURL string) *openRouterLLM {
	config := goopenai.DefaultConfig(apiKey)
	if baseURL == "" {
		baseURL = defaultOpenRouterBaseURL
	}
	config.BaseURL = baseURL
	return &openRouterLLM{client: goopenai.NewClientWithConfig(config)}
}

func (o *openRouterLLM) Complete(ctx context.Context, req Request) (string, error) {
	chatReq := goopenai.ChatCompletionRequest{
		Model: req.Model,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleUser, Content: req.Prompt},
		},
		Temperature: float32(req.Temperature),
		MaxTokens:   req.MaxTokens,
	}
	if req.JSON {
		chatReq.ResponseFormat = &goopenai.ChatCompletionResponseFormat{
			Type: goopenai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := o.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return "", fmt.Errorf("openrouter call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openrouter returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// openRouterStatus reports the HTTP status of a go-openai error
func openRouterStatus(err error) (int, bool) {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode, true
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode, true
	}
	return 0, false
}
