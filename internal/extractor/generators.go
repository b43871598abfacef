package extractor

import (
	"context"

	"github.com/progwatch/progwatch-cli/pkg/claude"
	"github.com/progwatch/progwatch-cli/pkg/ollama"
)

// OllamaGenerator adapts an Ollama client to the Generator interface.
type OllamaGenerator struct {
	client ollama.Client
	model  string
}

// NewOllamaGenerator creates a Generator backed by a local Ollama server.
func NewOllamaGenerator(client ollama.Client, model string) *OllamaGenerator {
	return &OllamaGenerator{client: client, model: model}
}

func (g *OllamaGenerator) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	chatReq := ollama.ChatRequest{
		Model:  g.model,
		Stream: false,
		Format: "json",
		Messages: []ollama.Message{
			{Role: "system", Content: req.System},
			{Role: "user", Content: req.Prompt},
		},
		Options: &ollama.Options{
			Temperature: &req.Temperature,
		},
	}
	if req.MaxTokens > 0 {
		n := int(req.MaxTokens)
		chatReq.Options.NumPredict = &n
	}

	resp, err := g.client.Chat(ctx, chatReq)
	if err != nil {
		return "", err
	}
	return resp.Message.Content, nil
}

// ClaudeGenerator adapts an Anthropic client to the Generator interface.
type ClaudeGenerator struct {
	client claude.Client
	model  string
}

// NewClaudeGenerator creates a Generator backed by the Anthropic Messages API.
func NewClaudeGenerator(client claude.Client, model string) *ClaudeGenerator {
	return &ClaudeGenerator{client: client, model: model}
}

func (g *ClaudeGenerator) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	msgReq := claude.MessageRequest{
		Model:       g.model,
		MaxTokens:   req.MaxTokens,
		System:      req.System,
		Prompt:      req.Prompt,
		Temperature: &req.Temperature,
	}
	if msgReq.MaxTokens == 0 {
		msgReq.MaxTokens = 1024
	}

	resp, err := g.client.CreateMessage(ctx, msgReq)
	if err != nil {
		return "", err
	}
	resp.Usage.LogCost(g.model)
	return resp.Text, nil
}
