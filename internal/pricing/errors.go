package pricing

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidSlabConfiguration is returned when a slab list fails validation.
	ErrInvalidSlabConfiguration = errors.New("invalid slab configuration")
	// ErrNoMatchingSlab indicates the requested quantity is not covered by any slab.
	ErrNoMatchingSlab = errors.New("no matching slab")
	// ErrNoActiveRule indicates no approved rule is active for the scope.
	ErrNoActiveRule = errors.New("no active pricing rule")
	// ErrRuleNotFound is returned for unknown rule ids.
	ErrRuleNotFound = errors.New("pricing rule not found")
	// ErrForbidden is returned when the actor lacks permission for the operation.
	ErrForbidden = errors.New("forbidden")
	// ErrSelfApprovalForbidden is returned when a checker acts on a rule they created.
	ErrSelfApprovalForbidden = errors.New("maker cannot approve or reject their own rule")
	// ErrDuplicatePendingRule is returned when the maker already has a pending rule for the scope.
	ErrDuplicatePendingRule = errors.New("a pending rule for this scope already exists")
	// ErrStaleVersion is returned when the supplied version no longer matches the stored rule.
	ErrStaleVersion = errors.New("stale rule version")
	// ErrInvariantViolation signals broken registry bookkeeping.
	ErrInvariantViolation = errors.New("registry invariant violation")
	// ErrInvalidTransition is returned when the rule status does not allow the operation.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrInvalidDraft is returned for drafts with missing or malformed fields.
	ErrInvalidDraft = errors.New("invalid rule draft")
)

// Error attaches rule context to one of the sentinel errors above.
type Error struct {
	Kind      error
	RuleID    string
	ScopeKey  string
	Slab      *Slab
	SlabIndex int
	Detail    string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	var b strings.Builder
	if e.Kind != nil {
		b.WriteString(e.Kind.Error())
	} else {
		b.WriteString("pricing error")
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	var ctx []string
	if e.RuleID != "" {
		ctx = append(ctx, "rule="+e.RuleID)
	}
	if e.ScopeKey != "" {
		ctx = append(ctx, "scope="+e.ScopeKey)
	}
	if e.Slab != nil {
		ctx = append(ctx, fmt.Sprintf("slab[%d]=%s", e.SlabIndex, e.Slab.String()))
	}
	if len(ctx) > 0 {
		b.WriteString(" (")
		b.WriteString(strings.Join(ctx, " "))
		b.WriteString(")")
	}
	return b.String()
}

// Unwrap exposes the sentinel kind to errors.Is.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Kind
}

func newError(kind error, detail string) *Error {
	return &Error{Kind: kind, Detail: detail, SlabIndex: -1}
}

func (e *Error) withRule(id string) *Error {
	e.RuleID = id
	return e
}

func (e *Error) withScope(key string) *Error {
	e.ScopeKey = key
	return e
}

func (e *Error) withSlab(index int, s Slab) *Error {
	slab := s
	e.Slab = &slab
	e.SlabIndex = index
	return e
}

// ErrorContext extracts the contextual payload from err, if any.
func ErrorContext(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}
