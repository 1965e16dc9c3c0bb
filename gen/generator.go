package gen

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// Request carries what the generator needs to draft an update.
type Request struct {
	DocumentID    string
	CurrentText   string
	TicketID      string
	TicketSummary string
	TicketBody    string
}

// Generator drafts an updated document body in markdown.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

const draftPrompt = `You are a technical writer maintaining operational documentation. A work ticket has been completed and the document below may now be out of date.

Rewrite the document so it reflects the completed work. Rules:
- Keep the document's structure, tone and heading hierarchy.
- Change only what the ticket makes necessary; leave unrelated sections untouched.
- Keep all images and links unless the ticket removed what they refer to.
- Output ONLY the full updated markdown document, no commentary.`

// OpenAIConfig holds configuration for the OpenAI generator.
type OpenAIConfig struct {
	APIKey string
	Model  string
}

// OpenAIGenerator implements Generator with a chat completion model.
type OpenAIGenerator struct {
	client *openai.Client
	model  string
}

// NewOpenAIGenerator creates a new OpenAI-backed generator.
func NewOpenAIGenerator(cfg OpenAIConfig) (*OpenAIGenerator, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("OpenAI API key is required")
	}

	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}

	return &OpenAIGenerator{
		client: openai.NewClient(cfg.APIKey),
		model:  model,
	}, nil
}

func (g *OpenAIGenerator) Generate(ctx context.Context, req Request) (string, error) {
	var input strings.Builder
	fmt.Fprintf(&input, "Ticket %s: %s\n\n", req.TicketID, req.TicketSummary)
	if req.TicketBody != "" {
		fmt.Fprintf(&input, "%s\n\n", req.TicketBody)
	}
	fmt.Fprintf(&input, "Current document (%s):\n\n%s", req.DocumentID, req.CurrentText)

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: draftPrompt},
			{Role: openai.ChatMessageRoleUser, Content: input.String()},
		},
		Temperature: 0.2,
	})
	if err != nil {
		return "", fmt.Errorf("calling OpenAI: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no response from OpenAI")
	}

	return cleanMarkdownFence(resp.Choices[0].Message.Content), nil
}

// cleanMarkdownFence strips a wrapping code fence if the model added one.
func cleanMarkdownFence(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}

	inner := strings.TrimPrefix(trimmed, "```markdown")
	inner = strings.TrimPrefix(inner, "```md")
	inner = strings.TrimPrefix(inner, "```")
	inner = strings.TrimSuffix(strings.TrimSpace(inner), "```")
	return strings.TrimSpace(inner)
}
