package gmail

import (
	"github.com/znz-systems/sortbox/internal/mailbox"
	gmailapi "google.golang.org/api/gmail/v1"
)

func toPayload(m *gmailapi.Message) *mailbox.Payload {
	p := &mailbox.Payload{
		ID:       m.Id,
		ThreadID: m.ThreadId,
		Snippet:  m.Snippet,
	}
	if m.Payload != nil {
		p.Headers = toHeaders(m.Payload.Headers)
		p.Root = toPart(m.Payload)
	}
	return p
}

func toPart(mp *gmailapi.MessagePart) *mailbox.Part {
	part := &mailbox.Part{
		MimeType: mp.MimeType,
		Headers:  toHeaders(mp.Headers),
	}
	if mp.Body != nil {
		part.Data = mp.Body.Data
	}
	for _, child := range mp.Parts {
		if child == nil {
			continue
		}
		part.Parts = append(part.Parts, toPart(child))
	}
	return part
}

func toHeaders(in []*gmailapi.MessagePartHeader) []mailbox.Header {
	out := make([]mailbox.Header, 0, len(in))
	for _, h := range in {
		if h == nil {
			continue
		}
		out = append(out, mailbox.Header{Name: h.Name, Value: h.Value})
	}
	return out
}
