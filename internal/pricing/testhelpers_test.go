package pricing

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/menumaster-admin/internal/auth"
	"github.com/noah-isme/menumaster-admin/internal/events"
)

var (
	alice   = auth.Actor{ID: "alice", Role: auth.RoleMaker}
	bob     = auth.Actor{ID: "bob", Role: auth.RoleMaker}
	charlie = auth.Actor{ID: "charlie", Role: auth.RoleChecker}
	dana    = auth.Actor{ID: "dana", Role: auth.RoleChecker}
	root    = auth.Actor{ID: "root", Role: auth.RoleAdmin}
)

type recordingEmitter struct {
	mu     sync.Mutex
	topics []string
	err    error
}

func (r *recordingEmitter) Emit(_ context.Context, topic, aggregateID string, _ any) (events.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.topics = append(r.topics, topic)
	return events.Event{Topic: topic, AggregateID: aggregateID}, r.err
}

func (r *recordingEmitter) Topics() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.topics...)
}

type fixture struct {
	reg      *MemoryRegistry
	workflow *Workflow
	events   *recordingEmitter
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	reg := NewMemoryRegistry()
	emitter := &recordingEmitter{}
	var seq atomic.Int64
	var tick atomic.Int64
	base := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	wf, err := NewWorkflow(WorkflowConfig{
		Registry: reg,
		Events:   emitter,
		Logger:   zerolog.Nop(),
		Now:      func() time.Time { return base.Add(time.Duration(tick.Add(1)) * time.Second) },
		NewID:    func() string { return fmt.Sprintf("rule-%d", seq.Add(1)) },
	})
	require.NoError(t, err)
	return fixture{reg: reg, workflow: wf, events: emitter}
}

func skuDraft(sku string) Draft {
	return Draft{Name: "Pizza bulk " + sku, Scope: SkuScope(sku), Slabs: menuSlabs()}
}

func flatDraft(name string, scope Scope, price string) Draft {
	return Draft{Name: name, Scope: scope, Slabs: []Slab{{From: 1, PricePerUnit: dec(price)}}}
}

// approved submits d as maker and approves it as checker.
func (f fixture) approved(t *testing.T, maker, checker auth.Actor, d Draft) PricingRule {
	t.Helper()
	ctx := context.Background()
	rule, err := f.workflow.Submit(ctx, maker, d)
	require.NoError(t, err)
	rule, err = f.workflow.Approve(ctx, checker, rule.ID, rule.Version)
	require.NoError(t, err)
	return rule
}

// corrupt writes rule without any bookkeeping.
func (m *MemoryRegistry) corrupt(rule PricingRule) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules[rule.ID] = rule
	key := rule.Scope.Key()
	if m.byScope[key] == nil {
		m.byScope[key] = make(map[string]struct{})
	}
	m.byScope[key][rule.ID] = struct{}{}
}
