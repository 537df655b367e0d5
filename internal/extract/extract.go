// Package extract turns a provider message payload into the normalized
// content the classifier and store work with.
package extract

import (
	"errors"
	"fmt"
	"strings"

	"github.com/znz-systems/sortbox/internal/mailbox"
)

var ErrMalformedPayload = errors.New("malformed message payload")

type Content struct {
	ID               string
	ThreadID         string
	From             string
	To               string
	Subject          string
	Snippet          string
	TextBody         string
	HTMLBody         string
	UnsubscribeLinks []string
}

// Extract decodes p. When several text/plain or text/html leaves exist, the
// last one met in a depth-first walk wins for each type. A quoted reply
// nested after the main body therefore replaces it.
func Extract(p *mailbox.Payload) (*Content, error) {
	if p == nil || p.Root == nil {
		return nil, fmt.Errorf("%w: missing body", ErrMalformedPayload)
	}
	if strings.TrimSpace(p.ID) == "" {
		return nil, fmt.Errorf("%w: missing message id", ErrMalformedPayload)
	}

	c := &Content{
		ID:       p.ID,
		ThreadID: p.ThreadID,
		From:     NormalizeAddress(p.Header("From")),
		To:       NormalizeAddress(p.Header("To")),
		Subject:  p.Header("Subject"),
		Snippet:  p.Snippet,
	}

	var err error
	if len(p.Root.Parts) == 0 {
		err = c.collectSingle(p.Root)
	} else {
		err = c.collect(p.Root)
	}
	if err != nil {
		return nil, err
	}

	c.UnsubscribeLinks = UnsubscribeLinks(p.Header("List-Unsubscribe"), c.HTMLBody)
	return c, nil
}

func (c *Content) collect(part *mailbox.Part) error {
	if part == nil {
		return nil
	}
	if err := c.collectLeaf(part); err != nil {
		return err
	}
	for _, child := range part.Parts {
		if err := c.collect(child); err != nil {
			return err
		}
	}
	return nil
}

func (c *Content) collectLeaf(part *mailbox.Part) error {
	switch mediaType(part.MimeType) {
	case "text/plain":
		text, err := decodePart(part)
		if err != nil {
			return err
		}
		c.TextBody = text
	case "text/html":
		html, err := decodePart(part)
		if err != nil {
			return err
		}
		c.HTMLBody = html
	}
	return nil
}

// collectSingle handles a payload without sub-parts. Bodies of any type
// other than HTML are kept as plain text.
func (c *Content) collectSingle(root *mailbox.Part) error {
	if root.Data == "" {
		return nil
	}
	body, err := decodePart(root)
	if err != nil {
		return err
	}
	if mediaType(root.MimeType) == "text/html" {
		c.HTMLBody = body
	} else {
		c.TextBody = body
	}
	return nil
}

func mediaType(mimeType string) string {
	mt, _, _ := strings.Cut(mimeType, ";")
	return strings.ToLower(strings.TrimSpace(mt))
}

// NormalizeAddress pulls addr out of `Display Name <addr>`. Input without an
// opening bracket is returned unchanged apart from surrounding space.
func NormalizeAddress(raw string) string {
	i := strings.LastIndex(raw, "<")
	if i < 0 {
		return strings.TrimSpace(raw)
	}
	addr := raw[i+1:]
	if j := strings.Index(addr, ">"); j >= 0 {
		addr = addr[:j]
	}
	return strings.TrimSpace(addr)
}
