// Package classifier asks a language model to file a message into one of a
// user's categories.
package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/google/uuid"
	"github.com/znz-systems/sortbox/internal/extract"
	"github.com/znz-systems/sortbox/internal/llm"
	"github.com/znz-systems/sortbox/internal/models"
)

const systemPrompt = "You are an email classifier that helps organize emails into categories. Respond only with valid JSON."

const (
	defaultTemperature  = 0.3
	defaultMaxBodyRunes = 8000
)

// Result is the outcome of one classification. A nil CategoryID means the
// message stays uncategorized.
type Result struct {
	CategoryID *uuid.UUID
	Confidence float64
	Summary    string
}

type Options struct {
	Temperature  float32
	MaxBodyRunes int
}

type Classifier struct {
	model        llm.ChatModel
	temperature  float32
	maxBodyRunes int
}

func New(model llm.ChatModel, opts Options) *Classifier {
	temp := opts.Temperature
	if temp <= 0 {
		temp = defaultTemperature
	}
	maxRunes := opts.MaxBodyRunes
	if maxRunes <= 0 {
		maxRunes = defaultMaxBodyRunes
	}
	return &Classifier{model: model, temperature: temp, maxBodyRunes: maxRunes}
}

type response struct {
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
	Summary    string  `json:"summary"`
}

// Classify never fails: any model or parse error yields the zero Result so
// ingestion can store the message uncategorized.
func (c *Classifier) Classify(ctx context.Context, content *extract.Content, categories []models.Category) Result {
	if content == nil || len(categories) == 0 {
		return Result{}
	}

	raw, err := c.model.Complete(ctx, llm.Prompt{
		System:      systemPrompt,
		User:        c.buildPrompt(content, categories),
		Temperature: c.temperature,
	})
	if err != nil {
		slog.Warn("classification request failed", "message_id", content.ID, "error", err)
		return Result{}
	}

	var resp response
	if err := json.Unmarshal([]byte(llm.StripCodeFence(raw)), &resp); err != nil {
		slog.Warn("classification response not valid JSON", "message_id", content.ID, "error", err)
		return Result{}
	}

	result := Result{
		Confidence: clamp(resp.Confidence),
		Summary:    strings.TrimSpace(resp.Summary),
	}
	for _, cat := range categories {
		if cat.Name == resp.Category {
			id := cat.ID
			result.CategoryID = &id
			break
		}
	}
	if result.CategoryID == nil {
		slog.Debug("model named unknown category", "message_id", content.ID, "category", resp.Category)
	}
	return result
}

func (c *Classifier) buildPrompt(content *extract.Content, categories []models.Category) string {
	var b strings.Builder
	b.WriteString("Given these email categories:\n")
	for _, cat := range categories {
		fmt.Fprintf(&b, "Category %q: %s\n", cat.Name, cat.Description)
	}
	b.WriteString("\nAnalyze this email:\n")
	fmt.Fprintf(&b, "Subject: %s\n", content.Subject)
	fmt.Fprintf(&b, "Snippet: %s\n", content.Snippet)
	fmt.Fprintf(&b, "Content: %s\n", c.body(content))
	b.WriteString(`
Tasks:
1. Determine the most appropriate category for this email
2. Provide a brief summary of the email content
3. Rate your confidence in the categorization from 0 to 1

Format your response as JSON with these fields:
- category: The name of the best matching category
- confidence: Your confidence score (0-1)
- summary: A brief summary of the email

Response:`)
	return b.String()
}

// body prefers the plain text part and falls back to the HTML part rendered
// as markdown.
func (c *Classifier) body(content *extract.Content) string {
	text := strings.TrimSpace(content.TextBody)
	if text == "" && strings.TrimSpace(content.HTMLBody) != "" {
		md, err := htmltomarkdown.ConvertString(content.HTMLBody)
		if err != nil {
			text = content.HTMLBody
		} else {
			text = strings.TrimSpace(md)
		}
	}
	return truncateRunes(text, c.maxBodyRunes)
}

func truncateRunes(s string, max int) string {
	if len(s) <= max {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

func clamp(v float64) float64 {
	switch {
	case v != v, v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
