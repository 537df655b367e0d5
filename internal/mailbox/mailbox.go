// Package mailbox describes a remote mail provider in terms the ingestion and
// deletion flows need, independent of any one provider's wire format.
package mailbox

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/znz-systems/sortbox/internal/models"
)

// ErrCredential marks failures to obtain a usable access credential. Callers
// treat the account as unusable until the next cycle.
var ErrCredential = errors.New("mailbox credential unavailable")

type Mailbox interface {
	// ListCandidates returns provider message ids matching f, at most
	// f.MaxResults of them.
	ListCandidates(ctx context.Context, f Filter) ([]string, error)
	FetchFull(ctx context.Context, id string) (*Payload, error)
	// Archive removes the message from the inbox without deleting it.
	Archive(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
}

// Connector opens a Mailbox bound to one account's credentials.
type Connector interface {
	Open(ctx context.Context, account *models.Account) (Mailbox, error)
}

type Filter struct {
	Since      time.Time
	UnreadOnly bool
	InboxOnly  bool
	MaxResults int64
}

// Query renders f in provider search syntax, e.g.
// "in:inbox is:unread after:2024/5/17".
func (f Filter) Query() string {
	var terms []string
	if f.InboxOnly {
		terms = append(terms, "in:inbox")
	}
	if f.UnreadOnly {
		terms = append(terms, "is:unread")
	}
	if !f.Since.IsZero() {
		terms = append(terms, fmt.Sprintf("after:%d/%d/%d", f.Since.Year(), int(f.Since.Month()), f.Since.Day()))
	}
	return strings.Join(terms, " ")
}

type Header struct {
	Name  string
	Value string
}

// Part is one node of a message body tree. Data holds the body exactly as
// delivered by the provider, still transfer encoded.
type Part struct {
	MimeType string
	Headers  []Header
	Data     string
	Parts    []*Part
}

func (p *Part) Header(name string) string {
	return headerValue(p.Headers, name)
}

type Payload struct {
	ID       string
	ThreadID string
	Snippet  string
	Headers  []Header
	Root     *Part
}

// Header returns the first header named name, compared case-insensitively.
func (p *Payload) Header(name string) string {
	return headerValue(p.Headers, name)
}

func headerValue(headers []Header, name string) string {
	for _, h := range headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}
