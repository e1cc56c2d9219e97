package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/markdown-ticket/mdt/internal/models"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "claude-sonnet-4-5"

// Client wraps the Anthropic API for ticket summarization.
type Client struct {
	api   *anthropic.Client
	model anthropic.Model
}

// NewClient creates an LLM client with the given API key and model.
func NewClient(apiKey, model string) *Client {
	opts := []option.RequestOption{}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	if model == "" {
		model = DefaultModel
	}
	client := anthropic.NewClient(opts...)
	return &Client{
		api:   &client,
		model: anthropic.Model(model),
	}
}

// buildPrompt constructs the system and user prompts for summarizing a ticket.
func buildPrompt(t *models.Ticket) (system string, user string) {
	system = `You summarize change request documents for engineers. Given a ticket's attributes and markdown body, return a summary of at most five sentences covering: what the change is, why it is needed, and its current state. Mention blockers or dependencies only if present. Return plain prose only, no markdown fencing, no headings, no bullet points.`

	var sb strings.Builder
	fmt.Fprintf(&sb, "Code: %s\nTitle: %s\nStatus: %s\nType: %s\nPriority: %s\n", t.Code, t.Title, t.Status, t.Type, t.Priority)
	if len(t.DependsOn) > 0 {
		fmt.Fprintf(&sb, "Depends on: %s\n", strings.Join(t.DependsOn, ", "))
	}
	if len(t.Blocks) > 0 {
		fmt.Fprintf(&sb, "Blocks: %s\n", strings.Join(t.Blocks, ", "))
	}
	sb.WriteString("\n")
	sb.WriteString(t.Content)
	user = sb.String()
	return
}

// SummarizeTicket sends a ticket to the LLM and returns a short prose summary.
func (c *Client) SummarizeTicket(ctx context.Context, t *models.Ticket) (string, error) {
	systemPrompt, userPrompt := buildPrompt(t)

	msg, err := c.api.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: 1024,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic API call: %w", err)
	}

	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text = block.Text
			break
		}
	}
	if text == "" {
		return "", fmt.Errorf("no text content in API response")
	}

	// Strip markdown fencing if the model ignores the instruction
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		lines := strings.SplitN(text, "\n", 2)
		if len(lines) > 1 {
			text = lines[1]
		}
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		text = strings.TrimSpace(text)
	}

	return text, nil
}
