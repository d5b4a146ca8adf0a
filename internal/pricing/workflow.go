package pricing

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/menumaster-admin/internal/audit"
	"github.com/noah-isme/menumaster-admin/internal/auth"
	"github.com/noah-isme/menumaster-admin/internal/events"
	"github.com/noah-isme/menumaster-admin/internal/obs"
)

// Emitter publishes lifecycle events once a transition is committed.
type Emitter interface {
	Emit(ctx context.Context, topic, aggregateID string, payload any) (events.Event, error)
}

// WorkflowConfig wires the maker-checker workflow.
type WorkflowConfig struct {
	Registry Registry
	Events   Emitter
	Logger   zerolog.Logger
	Now      func() time.Time
	NewID    func() string
}

// Workflow is the maker-checker state machine over the registry.
type Workflow struct {
	registry Registry
	events   Emitter
	logger   zerolog.Logger
	now      func() time.Time
	newID    func() string
}

// NewWorkflow constructs a Workflow with defaults for clock and id generation.
func NewWorkflow(cfg WorkflowConfig) (*Workflow, error) {
	if cfg.Registry == nil {
		return nil, errors.New("pricing: registry is required")
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	newID := cfg.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	return &Workflow{
		registry: cfg.Registry,
		events:   cfg.Events,
		logger:   cfg.Logger,
		now:      now,
		newID:    newID,
	}, nil
}

// Registry exposes the backing registry for read paths.
func (w *Workflow) Registry() Registry { return w.registry }

// Submit creates a pending rule owned by the acting maker.
func (w *Workflow) Submit(ctx context.Context, actor auth.Actor, draft Draft) (PricingRule, error) {
	stored, err := w.submit(ctx, actor, draft)
	w.observe(ctx, "submit", actor, stored, err)
	if err != nil {
		return PricingRule{}, err
	}
	w.emit(ctx, events.TopicRuleSubmitted, actor, stored, audit.ActionSubmitted)
	return stored, nil
}

func (w *Workflow) submit(ctx context.Context, actor auth.Actor, draft Draft) (PricingRule, error) {
	if !actor.HasRole(auth.RoleMaker, auth.RoleAdmin) {
		return PricingRule{}, forbidden(actor, "only makers and admins may submit rules")
	}
	normalized, err := draft.Normalize()
	if err != nil {
		return PricingRule{}, err
	}
	now := w.now().UTC()
	rule := PricingRule{
		ID:        w.newID(),
		Name:      normalized.Name,
		Scope:     normalized.Scope,
		BasePrice: normalized.BasePrice,
		Slabs:     normalized.Slabs,
		Status:      StatusPending,
		CreatedBy:   actor.ID,
		SubmittedBy: actor.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	entry := audit.NewEntry(ctx, audit.ActionSubmitted, actor.ID, string(actor.Role), now)
	entry.ToStatus = string(StatusPending)
	return w.registry.Upsert(ctx, rule, 0, entry)
}

// Edit replaces the rule content and sends it back through approval.
func (w *Workflow) Edit(ctx context.Context, actor auth.Actor, id string, version int64, draft Draft) (PricingRule, error) {
	stored, action, err := w.edit(ctx, actor, id, version, draft)
	w.observe(ctx, "edit", actor, stored, err)
	if err != nil {
		return PricingRule{}, err
	}
	if action == audit.ActionResubmitted {
		w.emit(ctx, events.TopicRuleResubmitted, actor, stored, action)
	}
	return stored, nil
}

func (w *Workflow) edit(ctx context.Context, actor auth.Actor, id string, version int64, draft Draft) (PricingRule, audit.Action, error) {
	current, err := w.registry.Get(ctx, id)
	if err != nil {
		return PricingRule{}, "", err
	}
	if actor.ID != current.CreatedBy && actor.Role != auth.RoleAdmin {
		return PricingRule{}, "", forbidden(actor, "only the creating maker or an admin may edit").withRule(id)
	}
	if current.Version != version {
		return PricingRule{}, "", StaleVersionError(id, version, current.Version)
	}
	normalized, err := draft.Normalize()
	if err != nil {
		if perr, ok := ErrorContext(err); ok {
			perr.RuleID = id
		}
		return PricingRule{}, "", err
	}
	action := audit.ActionResubmitted
	if current.Status == StatusPending {
		if current.sameContent(normalized) {
			return PricingRule{}, "", newError(ErrInvalidTransition, "edit does not change a pending rule").withRule(id)
		}
		action = audit.ActionRevised
	}

	now := w.now().UTC()
	next := current.Clone()
	next.Name = normalized.Name
	next.Scope = normalized.Scope
	next.BasePrice = normalized.BasePrice
	next.Slabs = normalized.Slabs
	next.Status = StatusPending
	next.SubmittedBy = actor.ID
	next.ApprovedBy = nil
	next.RejectionReason = ""
	next.Active = false
	next.Supersedes = nil
	next.SupersededBy = nil
	next.UpdatedAt = now

	entry := audit.NewEntry(ctx, action, actor.ID, string(actor.Role), now)
	entry.FromStatus = string(current.Status)
	entry.ToStatus = string(StatusPending)
	stored, err := w.registry.Upsert(ctx, next, version, entry)
	return stored, action, err
}

// Approve activates a pending rule, superseding the scope's previous active rule.
func (w *Workflow) Approve(ctx context.Context, actor auth.Actor, id string, version int64) (PricingRule, error) {
	stored, err := w.approve(ctx, actor, id, version)
	w.observe(ctx, "approve", actor, stored, err)
	if err != nil {
		return PricingRule{}, err
	}
	w.emit(ctx, events.TopicRuleApproved, actor, stored, audit.ActionApproved)
	if stored.Supersedes != nil {
		w.emitSuperseded(ctx, actor, *stored.Supersedes, stored.ID)
	}
	return stored, nil
}

func (w *Workflow) approve(ctx context.Context, actor auth.Actor, id string, version int64) (PricingRule, error) {
	current, err := w.checkerPrecondition(ctx, actor, id, version)
	if err != nil {
		return PricingRule{}, err
	}
	now := w.now().UTC()
	next := current.Clone()
	checker := actor.ID
	next.Status = StatusApproved
	next.ApprovedBy = &checker
	next.RejectionReason = ""
	next.Active = true
	next.UpdatedAt = now

	entry := audit.NewEntry(ctx, audit.ActionApproved, actor.ID, string(actor.Role), now)
	entry.FromStatus = string(current.Status)
	entry.ToStatus = string(StatusApproved)
	return w.registry.Upsert(ctx, next, version, entry)
}

// Reject closes a pending rule with a mandatory reason.
func (w *Workflow) Reject(ctx context.Context, actor auth.Actor, id string, version int64, reason string) (PricingRule, error) {
	stored, err := w.reject(ctx, actor, id, version, reason)
	w.observe(ctx, "reject", actor, stored, err)
	if err != nil {
		return PricingRule{}, err
	}
	w.emit(ctx, events.TopicRuleRejected, actor, stored, audit.ActionRejected)
	return stored, nil
}

func (w *Workflow) reject(ctx context.Context, actor auth.Actor, id string, version int64, reason string) (PricingRule, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return PricingRule{}, newError(ErrInvalidDraft, "rejection reason is required").withRule(id)
	}
	current, err := w.checkerPrecondition(ctx, actor, id, version)
	if err != nil {
		return PricingRule{}, err
	}
	now := w.now().UTC()
	next := current.Clone()
	checker := actor.ID
	next.Status = StatusRejected
	next.ApprovedBy = &checker
	next.RejectionReason = reason
	next.Active = false
	next.UpdatedAt = now

	entry := audit.NewEntry(ctx, audit.ActionRejected, actor.ID, string(actor.Role), now)
	entry.FromStatus = string(current.Status)
	entry.ToStatus = string(StatusRejected)
	entry.Reason = reason
	return w.registry.Upsert(ctx, next, version, entry)
}

// checkerPrecondition runs the shared approve/reject checks. The version is
// compared before the status so that racing checkers see StaleVersion.
func (w *Workflow) checkerPrecondition(ctx context.Context, actor auth.Actor, id string, version int64) (PricingRule, error) {
	if !actor.HasRole(auth.RoleChecker, auth.RoleAdmin) {
		return PricingRule{}, forbidden(actor, "only checkers and admins may review rules").withRule(id)
	}
	current, err := w.registry.Get(ctx, id)
	if err != nil {
		return PricingRule{}, err
	}
	if current.Version != version {
		return PricingRule{}, StaleVersionError(id, version, current.Version)
	}
	if current.Status != StatusPending {
		return PricingRule{}, newError(ErrInvalidTransition, "rule is "+string(current.Status)+", expected pending").withRule(id)
	}
	if current.CreatedBy == actor.ID || current.SubmittedBy == actor.ID {
		return PricingRule{}, newError(ErrSelfApprovalForbidden, "").withRule(id)
	}
	return current, nil
}

func forbidden(actor auth.Actor, detail string) *Error {
	if actor.Role != "" {
		detail += " (role " + string(actor.Role) + ")"
	}
	return newError(ErrForbidden, detail)
}

type transitionPayload struct {
	Action  audit.Action `json:"action"`
	ActorID string       `json:"actorId"`
	Rule    PricingRule  `json:"rule"`
}

func (w *Workflow) emit(ctx context.Context, topic string, actor auth.Actor, rule PricingRule, action audit.Action) {
	if w.events == nil {
		return
	}
	payload := transitionPayload{Action: action, ActorID: actor.ID, Rule: rule}
	if _, err := w.events.Emit(ctx, topic, rule.ID, payload); err != nil {
		w.logger.Warn().Err(err).Str("topic", topic).Str("rule_id", rule.ID).Msg("publish rule event failed")
	}
}

func (w *Workflow) emitSuperseded(ctx context.Context, actor auth.Actor, displacedID, replacementID string) {
	if w.events == nil {
		return
	}
	payload := map[string]string{
		"action":       string(audit.ActionSuperseded),
		"actorId":      actor.ID,
		"ruleId":       displacedID,
		"supersededBy": replacementID,
	}
	if _, err := w.events.Emit(ctx, events.TopicRuleSuperseded, displacedID, payload); err != nil {
		w.logger.Warn().Err(err).Str("rule_id", displacedID).Msg("publish supersede event failed")
	}
}

func (w *Workflow) observe(ctx context.Context, action string, actor auth.Actor, rule PricingRule, err error) {
	obs.ObserveRuleTransition(action, ResultLabel(err))
	if err == nil {
		w.logger.Info().
			Str("action", action).
			Str("actor_id", actor.ID).
			Str("rule_id", rule.ID).
			Str("status", string(rule.Status)).
			Int64("version", rule.Version).
			Msg("pricing rule transition")
		return
	}
	if errors.Is(err, ErrInvariantViolation) {
		obs.ObserveInvariantViolation()
		w.logger.Error().Err(err).Str("action", action).Str("actor_id", actor.ID).Msg("registry invariant violated")
		return
	}
	if ctx.Err() != nil {
		w.logger.Warn().Err(err).Str("action", action).Msg("pricing rule transition cancelled")
	}
}
