package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

type UnsubscribeKind string

const (
	UnsubscribeNotAttempted UnsubscribeKind = "not_attempted"
	UnsubscribeMailDeferred UnsubscribeKind = "mail_deferred"
	UnsubscribeAutomated    UnsubscribeKind = "automated"
	UnsubscribeFailed       UnsubscribeKind = "failed"
)

// UnsubscribeState records where a message stands in the unsubscribe flow.
// Date is set only for UnsubscribeAutomated and Reason only for
// UnsubscribeFailed. The zero value reads as not attempted.
type UnsubscribeState struct {
	Kind   UnsubscribeKind `json:"kind"`
	Date   *time.Time      `json:"date,omitempty"`
	Reason string          `json:"reason,omitempty"`
}

func NotAttempted() UnsubscribeState {
	return UnsubscribeState{Kind: UnsubscribeNotAttempted}
}

func MailDeferred() UnsubscribeState {
	return UnsubscribeState{Kind: UnsubscribeMailDeferred}
}

func Automated(at time.Time) UnsubscribeState {
	at = at.UTC()
	return UnsubscribeState{Kind: UnsubscribeAutomated, Date: &at}
}

func Failed(reason string) UnsubscribeState {
	return UnsubscribeState{Kind: UnsubscribeFailed, Reason: reason}
}

func (s UnsubscribeState) normalized() UnsubscribeState {
	if s.Kind == "" {
		return NotAttempted()
	}
	return s
}

func (s UnsubscribeState) Validate() error {
	s = s.normalized()
	switch s.Kind {
	case UnsubscribeNotAttempted, UnsubscribeMailDeferred:
		if s.Date != nil || s.Reason != "" {
			return fmt.Errorf("unsubscribe state %s carries no data", s.Kind)
		}
	case UnsubscribeAutomated:
		if s.Date == nil {
			return errors.New("automated unsubscribe state requires a date")
		}
	case UnsubscribeFailed:
		if s.Date != nil {
			return errors.New("failed unsubscribe state carries no date")
		}
	default:
		return fmt.Errorf("unknown unsubscribe state %q", s.Kind)
	}
	return nil
}

// Value stores the state as a JSONB document.
func (s UnsubscribeState) Value() (driver.Value, error) {
	s = s.normalized()
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(s)
}

func (s *UnsubscribeState) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*s = NotAttempted()
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("scan unsubscribe state: unsupported type %T", src)
	}
	var decoded UnsubscribeState
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return fmt.Errorf("scan unsubscribe state: %w", err)
	}
	*s = decoded.normalized()
	return s.Validate()
}
