package pricing

import (
	"context"
	"sort"
	"sync"

	"github.com/noah-isme/menumaster-admin/internal/audit"
)

// MemoryRegistry is a mutex-guarded Registry kept entirely in process memory.
type MemoryRegistry struct {
	mu      sync.RWMutex
	rules   map[string]PricingRule
	byScope map[string]map[string]struct{}
	history map[string][]audit.Entry
}

// NewMemoryRegistry constructs an empty registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		rules:   make(map[string]PricingRule),
		byScope: make(map[string]map[string]struct{}),
		history: make(map[string][]audit.Entry),
	}
}

// Get returns a copy of the rule.
func (m *MemoryRegistry) Get(_ context.Context, id string) (PricingRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rule, ok := m.rules[id]
	if !ok {
		return PricingRule{}, RuleNotFoundError(id)
	}
	return rule.Clone(), nil
}

// List returns rules newest first together with the unpaged total.
func (m *MemoryRegistry) List(_ context.Context, filter ListFilter) ([]PricingRule, int, error) {
	m.mu.RLock()
	matched := make([]PricingRule, 0, len(m.rules))
	for _, rule := range m.rules {
		if filter.Status != "" && rule.Status != filter.Status {
			continue
		}
		if filter.ScopeKey != "" && rule.Scope.Key() != filter.ScopeKey {
			continue
		}
		if filter.CreatedBy != "" && rule.CreatedBy != filter.CreatedBy {
			continue
		}
		matched = append(matched, rule.Clone())
	}
	m.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID < matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	total := len(matched)
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= total {
		return []PricingRule{}, total, nil
	}
	end := total
	if filter.Limit > 0 && offset+filter.Limit < total {
		end = offset + filter.Limit
	}
	return matched[offset:end], total, nil
}

// Upsert stores rule under the registry lock.
func (m *MemoryRegistry) Upsert(_ context.Context, rule PricingRule, expectedVersion int64, entry audit.Entry) (PricingRule, error) {
	if err := CheckWritable(rule); err != nil {
		return PricingRule{}, err
	}
	next := rule.Clone()

	m.mu.Lock()
	defer m.mu.Unlock()

	current, exists := m.rules[next.ID]
	switch {
	case expectedVersion == 0 && exists:
		return PricingRule{}, StaleVersionError(next.ID, 0, current.Version)
	case expectedVersion == 0:
		next.Version = 1
	case !exists:
		return PricingRule{}, RuleNotFoundError(next.ID)
	case current.Version != expectedVersion:
		return PricingRule{}, StaleVersionError(next.ID, expectedVersion, current.Version)
	default:
		next.Version = current.Version + 1
		next.CreatedAt = current.CreatedAt
	}

	key := next.Scope.Key()
	if next.Status == StatusPending {
		for id := range m.byScope[key] {
			other := m.rules[id]
			if id != next.ID && other.Status == StatusPending && other.CreatedBy == next.CreatedBy {
				return PricingRule{}, DuplicatePendingError(other)
			}
		}
	}

	var displaced *PricingRule
	if next.Active {
		var active []string
		for id := range m.byScope[key] {
			if id != next.ID && m.rules[id].Active {
				active = append(active, id)
			}
		}
		if len(active) > 1 {
			sort.Strings(active)
			return PricingRule{}, MultipleActiveError(key, active)
		}
		if len(active) == 1 {
			prior := m.rules[active[0]].Clone()
			replacement := next.ID
			prior.Active = false
			prior.SupersededBy = &replacement
			prior.Version++
			prior.UpdatedAt = entry.At
			displaced = &prior
			next.Supersedes = cloneString(&prior.ID)
		}
	}

	if exists {
		if oldKey := current.Scope.Key(); oldKey != key {
			delete(m.byScope[oldKey], next.ID)
			if len(m.byScope[oldKey]) == 0 {
				delete(m.byScope, oldKey)
			}
		}
	}
	if m.byScope[key] == nil {
		m.byScope[key] = make(map[string]struct{})
	}
	m.byScope[key][next.ID] = struct{}{}
	m.rules[next.ID] = next

	entry.RuleID = next.ID
	entry.Version = next.Version
	m.history[next.ID] = append(m.history[next.ID], entry)

	if displaced != nil {
		m.rules[displaced.ID] = *displaced
		m.history[displaced.ID] = append(m.history[displaced.ID], SupersessionEntry(entry, *displaced, next.ID))
	}
	return next.Clone(), nil
}

// ActiveRuleFor returns the single active rule for scopeKey.
func (m *MemoryRegistry) ActiveRuleFor(_ context.Context, scopeKey string) (PricingRule, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var (
		found PricingRule
		ids   []string
	)
	for id := range m.byScope[scopeKey] {
		rule := m.rules[id]
		if rule.Active && rule.Status == StatusApproved {
			found = rule
			ids = append(ids, id)
		}
	}
	switch len(ids) {
	case 0:
		return PricingRule{}, false, nil
	case 1:
		return found.Clone(), true, nil
	default:
		sort.Strings(ids)
		return PricingRule{}, false, MultipleActiveError(scopeKey, ids)
	}
}

// History returns the rule's entries in the order they were appended.
func (m *MemoryRegistry) History(_ context.Context, id string) ([]audit.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.rules[id]; !ok {
		return nil, RuleNotFoundError(id)
	}
	entries := m.history[id]
	out := make([]audit.Entry, len(entries))
	copy(out, entries)
	return out, nil
}
