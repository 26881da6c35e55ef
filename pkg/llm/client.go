// Package llm generates text through OpenAI-compatible chat completion APIs.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/kazz187/agentforge/pkg/cerr"
)

var ErrGeneration = errors.New("text generation failed")

const systemPrompt = "You are a senior software engineer working on a personal portfolio and tools website. " +
	"Answer precisely and follow the requested output format."

type ProviderConfig struct {
	Name    string
	APIKey  string
	BaseURL string // empty: api.openai.com
	Model   string
}

func (c ProviderConfig) configured() bool {
	return c.APIKey != "" && c.Model != ""
}

type Config struct {
	Primary   ProviderConfig
	Secondary ProviderConfig // optional fallback
	MaxTokens int
}

type provider struct {
	name   string
	model  string
	client *openai.Client
}

type Client struct {
	providers []provider
	maxTokens int
}

func NewClient(cfg Config) (*Client, error) {
	if !cfg.Primary.configured() {
		return nil, fmt.Errorf("primary provider requires an api key and a model")
	}
	c := &Client{maxTokens: cfg.MaxTokens}
	c.providers = append(c.providers, newProvider(cfg.Primary, "primary"))
	if cfg.Secondary.configured() {
		c.providers = append(c.providers, newProvider(cfg.Secondary, "secondary"))
	}
	return c, nil
}

func newProvider(cfg ProviderConfig, fallbackName string) provider {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	name := cfg.Name
	if name == "" {
		name = fallbackName
	}
	return provider{name: name, model: cfg.Model, client: openai.NewClientWithConfig(oc)}
}

// Generate sends prompt to the primary provider and falls back to the
// secondary one when the primary fails.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	var errs []error
	for _, p := range c.providers {
		text, err := c.generate(ctx, p, prompt)
		if err == nil {
			return text, nil
		}
		slog.WarnContext(ctx, "text generation provider failed", "provider", p.name, "model", p.model, "error", err)
		errs = append(errs, fmt.Errorf("%s: %w", p.name, err))
		if ctx.Err() != nil {
			break
		}
	}
	return "", cerr.WrapExternalError("llm", fmt.Errorf("%w: %w", ErrGeneration, errors.Join(errs...)))
}

func (c *Client) generate(ctx context.Context, p provider, prompt string) (string, error) {
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens: c.maxTokens,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("empty completion")
	}
	text := resp.Choices[0].Message.Content
	if strings.TrimSpace(text) == "" {
		return "", errors.New("empty completion")
	}
	return text, nil
}
