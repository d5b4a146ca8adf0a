package audit

import (
	"context"
	"strings"
	"time"
)

// Action names a pricing rule transition recorded in the history.
type Action string

const (
	// ActionSubmitted is recorded when a maker creates a rule.
	ActionSubmitted Action = "submitted"
	// ActionResubmitted is recorded when an approved or rejected rule is edited back to pending.
	ActionResubmitted Action = "resubmitted"
	// ActionRevised is recorded when a pending rule is edited.
	ActionRevised Action = "revised"
	ActionApproved Action = "approved"
	ActionRejected Action = "rejected"
	// ActionSuperseded is recorded on the previously active rule when another rule replaces it.
	ActionSuperseded Action = "superseded"
)

// Entry is one append-only history record of a pricing rule.
type Entry struct {
	RuleID     string    `json:"ruleId"`
	Action     Action    `json:"action"`
	ActorID    string    `json:"actorId"`
	ActorRole  string    `json:"actorRole,omitempty"`
	FromStatus string    `json:"fromStatus,omitempty"`
	ToStatus   string    `json:"toStatus"`
	Reason     string    `json:"reason,omitempty"`
	Version    int64     `json:"version"`
	At         time.Time `json:"at"`
	RequestID  string    `json:"requestId,omitempty"`
	ClientIP   string    `json:"clientIp,omitempty"`
}

// NewEntry builds an entry stamped with the request metadata stored on ctx.
func NewEntry(ctx context.Context, action Action, actorID, actorRole string, at time.Time) Entry {
	entry := Entry{
		Action:    action,
		ActorID:   strings.TrimSpace(actorID),
		ActorRole: strings.TrimSpace(actorRole),
		At:        at.UTC(),
	}
	if meta, ok := MetaFrom(ctx); ok {
		entry.RequestID = meta.RequestID
		entry.ClientIP = meta.ClientIP
	}
	return entry
}

// HistoryReader returns the ordered history of a rule.
type HistoryReader interface {
	History(ctx context.Context, ruleID string) ([]Entry, error)
}
