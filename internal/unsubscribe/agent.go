// Package unsubscribe tries to take a user off a mailing list using the
// unsubscribe links extracted from one of their messages.
package unsubscribe

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/znz-systems/sortbox/internal/browser"
	"github.com/znz-systems/sortbox/internal/extract"
	"github.com/znz-systems/sortbox/internal/llm"
	"github.com/znz-systems/sortbox/internal/models"
)

const (
	msgNoLinks     = "No unsubscribe links found"
	msgMailPending = "Unsubscribe email will be sent"
	msgSucceeded   = "Successfully unsubscribed"
	msgExhausted   = "Failed to unsubscribe using available links"
)

// MessageStore is the part of persistence the agent reads and updates.
type MessageStore interface {
	GetMessageByID(ctx context.Context, id uuid.UUID) (*models.Message, error)
	UpdateUnsubscribeState(ctx context.Context, id uuid.UUID, state models.UnsubscribeState) error
}

type JobStore interface {
	CreateUnsubscribeJob(ctx context.Context, messageID uuid.UUID, status string, result models.UnsubscribeOutcome) (*models.UnsubscribeJob, error)
}

// Result is what a caller sees of one attempt. Skipped is set when there was
// nothing to try, which is not a failure.
type Result struct {
	Success bool   `json:"success"`
	Skipped bool   `json:"skipped"`
	Message string `json:"message"`
}

type Options struct {
	Temperature float32
	// Grace is how long to wait after the last action before declaring success.
	Grace time.Duration
	// MaxPageBytes caps the page markup sent to the model.
	MaxPageBytes int
}

type Agent struct {
	messages MessageStore
	jobs     JobStore
	launcher browser.Launcher
	model    llm.ChatModel
	opts     Options
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
}

func NewAgent(messages MessageStore, jobs JobStore, launcher browser.Launcher, model llm.ChatModel, opts Options) *Agent {
	if opts.Temperature == 0 {
		opts.Temperature = 0.3
	}
	if opts.Grace <= 0 {
		opts.Grace = 2 * time.Second
	}
	if opts.MaxPageBytes <= 0 {
		opts.MaxPageBytes = 60_000
	}
	return &Agent{
		messages: messages,
		jobs:     jobs,
		launcher: launcher,
		model:    model,
		opts:     opts,
		now:      time.Now,
		sleep:    sleepCtx,
	}
}

// AttemptUnsubscribe walks the message's links in order until one works. A
// mail link ends the attempt right away with the send deferred. Web links are
// driven through a fresh browser session each. Only persistence errors are
// returned; everything else ends up in Result.
func (a *Agent) AttemptUnsubscribe(ctx context.Context, messageID uuid.UUID) (Result, error) {
	msg, err := a.messages.GetMessageByID(ctx, messageID)
	if err != nil {
		return Result{}, fmt.Errorf("load message: %w", err)
	}
	if len(msg.UnsubscribeLinks) == 0 {
		return Result{Success: true, Skipped: true, Message: msgNoLinks}, nil
	}

	var lastErr error
	for _, link := range msg.UnsubscribeLinks {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		switch {
		case extract.IsMailto(link):
			if err := a.setState(ctx, msg, models.MailDeferred()); err != nil {
				return Result{}, fmt.Errorf("record deferred unsubscribe: %w", err)
			}
			slog.Info("unsubscribe deferred to mail", "message_id", msg.ID)
			return Result{Success: true, Message: msgMailPending}, nil

		case extract.IsWeb(link):
			if err := a.tryWebLink(ctx, link); err != nil {
				slog.Warn("unsubscribe link failed", "message_id", msg.ID, "link", link, "error", err)
				lastErr = err
				continue
			}
			return a.recordSuccess(ctx, msg.ID)

		default:
			slog.Debug("skipping unsupported unsubscribe link", "message_id", msg.ID, "link", link)
		}
	}

	return a.recordFailure(ctx, msg, lastErr)
}

// setState stores next unless the message is already unsubscribed. A later
// deferred or failed attempt does not undo a completed one; the job history
// still records it.
func (a *Agent) setState(ctx context.Context, msg *models.Message, next models.UnsubscribeState) error {
	if msg.Unsubscribe.Kind == models.UnsubscribeAutomated {
		slog.Debug("keeping completed unsubscribe state", "message_id", msg.ID, "attempted", next.Kind)
		return nil
	}
	return a.messages.UpdateUnsubscribeState(ctx, msg.ID, next)
}

func (a *Agent) recordSuccess(ctx context.Context, messageID uuid.UUID) (Result, error) {
	if err := a.messages.UpdateUnsubscribeState(ctx, messageID, models.Automated(a.now())); err != nil {
		return Result{}, fmt.Errorf("record unsubscribe: %w", err)
	}
	outcome := models.UnsubscribeOutcome{Success: true, Message: msgSucceeded}
	if _, err := a.jobs.CreateUnsubscribeJob(ctx, messageID, models.UnsubscribeJobCompleted, outcome); err != nil {
		return Result{}, fmt.Errorf("record unsubscribe job: %w", err)
	}
	slog.Info("unsubscribed", "message_id", messageID)
	return Result{Success: true, Message: msgSucceeded}, nil
}

func (a *Agent) recordFailure(ctx context.Context, msg *models.Message, lastErr error) (Result, error) {
	reason := "no usable unsubscribe link"
	if lastErr != nil {
		reason = lastErr.Error()
	}
	if err := a.setState(ctx, msg, models.Failed(reason)); err != nil {
		return Result{}, fmt.Errorf("record failed unsubscribe: %w", err)
	}
	outcome := models.UnsubscribeOutcome{Success: false, Message: msgExhausted}
	if _, err := a.jobs.CreateUnsubscribeJob(ctx, msg.ID, models.UnsubscribeJobFailed, outcome); err != nil {
		return Result{}, fmt.Errorf("record unsubscribe job: %w", err)
	}
	return Result{Success: false, Message: msgExhausted}, nil
}

// tryWebLink owns one browser session; it is closed on every return path.
func (a *Agent) tryWebLink(ctx context.Context, link string) (err error) {
	session, err := a.launcher.Launch(ctx)
	if err != nil {
		return fmt.Errorf("launch browser: %w", err)
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			slog.Debug("browser close failed", "error", cerr)
		}
	}()

	if err := session.Navigate(ctx, link); err != nil {
		return err
	}
	// Script-rendered pages fill in after the load event.
	if err := settle(ctx, session); err != nil {
		return err
	}
	html, err := session.HTML(ctx)
	if err != nil {
		return err
	}

	actions, err := a.plan(ctx, html)
	if err != nil {
		return err
	}
	for i, action := range actions {
		if err := execute(ctx, session, action); err != nil {
			return fmt.Errorf("action %d (%s): %w", i, action.Type, err)
		}
	}

	return a.sleep(ctx, a.opts.Grace)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
