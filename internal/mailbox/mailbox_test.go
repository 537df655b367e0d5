package mailbox

import (
	"testing"
	"time"
)

func TestFilter_Query(t *testing.T) {
	f := Filter{
		Since:      time.Date(2024, time.May, 7, 13, 0, 0, 0, time.UTC),
		UnreadOnly: true,
		InboxOnly:  true,
	}
	if got := f.Query(); got != "in:inbox is:unread after:2024/5/7" {
		t.Fatalf("unexpected query %q", got)
	}

	if got := (Filter{}).Query(); got != "" {
		t.Fatalf("expected empty query, got %q", got)
	}
}

func TestPayload_HeaderIsCaseInsensitive(t *testing.T) {
	p := &Payload{Headers: []Header{
		{Name: "Subject", Value: "hello"},
		{Name: "LIST-UNSUBSCRIBE", Value: "<mailto:a@b>"},
	}}
	if got := p.Header("list-unsubscribe"); got != "<mailto:a@b>" {
		t.Fatalf("unexpected header %q", got)
	}
	if got := p.Header("From"); got != "" {
		t.Fatalf("expected missing header to be empty, got %q", got)
	}
}
