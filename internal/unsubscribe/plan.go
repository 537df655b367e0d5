package unsubscribe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/znz-systems/sortbox/internal/browser"
	"github.com/znz-systems/sortbox/internal/llm"
)

var (
	ErrUnknownAction = errors.New("unknown action type")
	ErrMalformedPlan = errors.New("malformed action plan")
)

type ActionType string

const (
	ActionClick  ActionType = "click"
	ActionInput  ActionType = "input"
	ActionSelect ActionType = "select"
)

// Action is one step of a model-produced plan.
type Action struct {
	Type     ActionType `json:"type"`
	Selector string     `json:"selector"`
	Value    string     `json:"value,omitempty"`
}

const planSystemPrompt = `You are an AI assistant helping to unsubscribe from emails.
Analyze the HTML content and describe the steps needed to unsubscribe.
Return JSON in this format:
{
  "actions": [
    { "type": "click", "selector": "CSS selector" },
    { "type": "input", "selector": "CSS selector", "value": "text to input" },
    { "type": "select", "selector": "CSS selector", "value": "option value" }
  ]
}`

func (a *Agent) plan(ctx context.Context, html string) ([]Action, error) {
	page := trimPage(html, a.opts.MaxPageBytes)
	raw, err := a.model.Complete(ctx, llm.Prompt{
		System:      planSystemPrompt,
		User:        "Here's the unsubscribe page HTML. What steps should I take to unsubscribe?\n" + page,
		Temperature: a.opts.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("ask for action plan: %w", err)
	}
	return ParsePlan(raw)
}

// ParsePlan decodes a model answer into actions. Unknown action types and
// actions without a selector reject the whole plan.
func ParsePlan(raw string) ([]Action, error) {
	var doc struct {
		Actions []Action `json:"actions"`
	}
	if err := json.Unmarshal([]byte(llm.StripCodeFence(raw)), &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPlan, err)
	}
	for i, action := range doc.Actions {
		action.Type = ActionType(strings.ToLower(strings.TrimSpace(string(action.Type))))
		switch action.Type {
		case ActionClick, ActionInput, ActionSelect:
		default:
			return nil, fmt.Errorf("%w %q at step %d", ErrUnknownAction, action.Type, i)
		}
		if strings.TrimSpace(action.Selector) == "" {
			return nil, fmt.Errorf("%w: step %d has no selector", ErrMalformedPlan, i)
		}
		doc.Actions[i] = action
	}
	return doc.Actions, nil
}

func execute(ctx context.Context, s browser.Session, action Action) error {
	if err := s.WaitForSelector(ctx, action.Selector); err != nil {
		return err
	}
	var err error
	switch action.Type {
	case ActionClick:
		err = s.Click(ctx, action.Selector)
	case ActionInput:
		err = s.Type(ctx, action.Selector, action.Value)
	case ActionSelect:
		err = s.Select(ctx, action.Selector, action.Value)
	default:
		err = fmt.Errorf("%w %q", ErrUnknownAction, action.Type)
	}
	if err != nil {
		return err
	}
	return settle(ctx, s)
}

// settle waits for the page's network to go quiet. An idle timeout never
// fails the link, since pages that keep polling would otherwise always fail.
// Only a cancelled ctx is returned.
func settle(ctx context.Context, s browser.Session) error {
	if err := s.WaitForNetworkIdle(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		slog.Debug("network did not settle", "error", err)
	}
	return nil
}

// trimPage drops markup the model cannot act on and caps the result at max
// bytes without splitting a rune.
func trimPage(html string, max int) string {
	if doc, err := goquery.NewDocumentFromReader(strings.NewReader(html)); err == nil {
		doc.Find("script, style, noscript, svg, link, meta").Remove()
		if out, err := doc.Html(); err == nil {
			html = out
		}
	}
	if len(html) <= max {
		return html
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(html[cut]) {
		cut--
	}
	return html[:cut]
}
