// Package llm asks an OpenAI-compatible endpoint for grading suggestions on
// exam answers. Suggestions are advisory: nothing here writes grades.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/pavelanni/evalhub/internal/llm/prompts"
	"github.com/pavelanni/evalhub/internal/model"
)

// Suggestion is a proposed grade and feedback for one answer.
type Suggestion struct {
	Score    int    `json:"score"`
	Feedback string `json:"feedback"`
}

// Client wraps an OpenAI-compatible API client.
type Client struct {
	api     *openai.Client
	model   string
	variant prompts.PromptVariant
}

// New creates a new LLM client using the given prompt variant.
func New(baseURL, apiKey, modelName, variant string) (*Client, error) {
	if err := prompts.Load(prompts.Files); err != nil {
		return nil, fmt.Errorf("load prompts: %w", err)
	}
	if !prompts.IsValidVariant(variant) {
		return nil, fmt.Errorf("invalid prompt variant %q", variant)
	}
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &Client{
		api:     openai.NewClientWithConfig(config),
		model:   modelName,
		variant: prompts.PromptVariant(variant),
	}, nil
}

// Ping checks that the endpoint is reachable and the key is accepted.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.api.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

// SuggestFeedback proposes a grade and feedback for answer a to question q.
// The score is rounded and clamped to the grade scale.
func (c *Client) SuggestFeedback(ctx context.Context, q model.Question, a model.Answer) (Suggestion, error) {
	prompt, err := prompts.BuildSuggestPrompt(c.variant, q, a, model.MinGrade, model.MaxGrade)
	if err != nil {
		return Suggestion{}, fmt.Errorf("build prompt: %w", err)
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: prompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0.1,
	})
	if err != nil {
		return Suggestion{}, fmt.Errorf("LLM API call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Suggestion{}, errors.New("LLM returned no choices")
	}

	raw := resp.Choices[0].Message.Content
	slog.Debug("LLM response", "raw", raw)
	return parseSuggestion(raw)
}

func parseSuggestion(raw string) (Suggestion, error) {
	var out struct {
		Score    *float64 `json:"score"`
		Feedback string   `json:"feedback"`
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return Suggestion{}, fmt.Errorf("parse LLM response: %w (raw: %s)", err, raw)
	}
	if out.Score == nil {
		return Suggestion{}, fmt.Errorf("LLM response has no score (raw: %s)", raw)
	}
	score := math.Round(max(model.MinGrade, min(model.MaxGrade, *out.Score)))
	return Suggestion{Score: int(score), Feedback: strings.TrimSpace(out.Feedback)}, nil
}
