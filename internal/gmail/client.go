package gmail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/znz-systems/sortbox/internal/mailbox"
	"github.com/znz-systems/sortbox/internal/models"
	"golang.org/x/oauth2"
	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
)

const inboxLabel = "INBOX"

// Client is a mailbox.Mailbox for one Gmail account. It checks the access
// credential before every call and refreshes it when expired.
type Client struct {
	conn    *Connector
	account models.Account

	mu  sync.Mutex
	svc *gmailapi.Service
}

func (c *Client) ListCandidates(ctx context.Context, f mailbox.Filter) ([]string, error) {
	var ids []string
	err := c.do(ctx, "list messages", func(ctx context.Context, svc *gmailapi.Service) error {
		call := svc.Users.Messages.List("me").Q(f.Query()).Context(ctx)
		if f.MaxResults > 0 {
			call = call.MaxResults(f.MaxResults)
		}
		resp, err := call.Do()
		if err != nil {
			return err
		}
		for _, m := range resp.Messages {
			if m.Id == "" {
				slog.Warn("gmail returned message without id", "account_id", c.account.ID)
				continue
			}
			ids = append(ids, m.Id)
		}
		return nil
	})
	return ids, err
}

func (c *Client) FetchFull(ctx context.Context, id string) (*mailbox.Payload, error) {
	var payload *mailbox.Payload
	err := c.do(ctx, "get message", func(ctx context.Context, svc *gmailapi.Service) error {
		msg, err := svc.Users.Messages.Get("me", id).Format("full").Context(ctx).Do()
		if err != nil {
			return err
		}
		payload = toPayload(msg)
		return nil
	})
	return payload, err
}

func (c *Client) Archive(ctx context.Context, id string) error {
	return c.do(ctx, "archive message", func(ctx context.Context, svc *gmailapi.Service) error {
		_, err := svc.Users.Messages.Modify("me", id, &gmailapi.ModifyMessageRequest{
			RemoveLabelIds: []string{inboxLabel},
		}).Context(ctx).Do()
		return err
	})
}

// Delete moves the message to the trash. Permanent deletion needs the full
// mail scope, which the linking flow does not request.
func (c *Client) Delete(ctx context.Context, id string) error {
	return c.do(ctx, "trash message", func(ctx context.Context, svc *gmailapi.Service) error {
		_, err := svc.Users.Messages.Trash("me", id).Context(ctx).Do()
		return err
	})
}

func (c *Client) do(ctx context.Context, op string, fn func(ctx context.Context, svc *gmailapi.Service) error) error {
	svc, err := c.service(ctx)
	if err != nil {
		return err
	}
	if c.conn.pacer != nil {
		if err := c.conn.pacer.Wait(ctx, c.account.ID.String()); err != nil {
			return fmt.Errorf("gmail %s: %w", op, err)
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, c.conn.callTimeout)
	defer cancel()

	_, err = c.conn.breaker.Execute(func() (interface{}, error) {
		return nil, fn(callCtx, svc)
	})
	if err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && apiErr.Code == http.StatusUnauthorized {
			return fmt.Errorf("%w: gmail %s: %v", mailbox.ErrCredential, op, err)
		}
		return fmt.Errorf("gmail %s: %w", op, err)
	}
	return nil
}

func (c *Client) service(ctx context.Context) (*gmailapi.Service, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.conn.now()
	if c.account.CredentialExpired(now) {
		if err := c.refresh(ctx, now); err != nil {
			return nil, err
		}
		c.svc = nil
	}
	if c.svc == nil {
		svc, err := c.conn.newService(ctx, c.account.AccessToken)
		if err != nil {
			return nil, fmt.Errorf("create gmail service: %w", err)
		}
		c.svc = svc
	}
	return c.svc, nil
}

// refresh exchanges the refresh token for a new access token and persists it
// before any API call uses it.
func (c *Client) refresh(ctx context.Context, now time.Time) error {
	if c.account.RefreshToken == "" {
		return fmt.Errorf("%w: account %s has no refresh token", mailbox.ErrCredential, c.account.ID)
	}

	slog.Info("refreshing mailbox credential", "account_id", c.account.ID)
	tok, err := c.conn.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: c.account.RefreshToken}).Token()
	if err != nil {
		return fmt.Errorf("%w: refresh for account %s: %v", mailbox.ErrCredential, c.account.ID, err)
	}
	if tok.AccessToken == "" {
		return fmt.Errorf("%w: refresh for account %s returned no access token", mailbox.ErrCredential, c.account.ID)
	}

	expiresAt := now.Add(credentialLookahead)
	if err := c.conn.accounts.UpdateAccountCredentials(ctx, c.account.ID, tok.AccessToken, expiresAt); err != nil {
		return fmt.Errorf("persist refreshed credential: %w", err)
	}
	c.account.AccessToken = tok.AccessToken
	c.account.TokenExpiresAt = &expiresAt
	return nil
}
