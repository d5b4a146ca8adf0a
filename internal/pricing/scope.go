package pricing

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ScopeKind tags the Scope variant.
type ScopeKind string

const (
	ScopeSku      ScopeKind = "sku"
	ScopeCategory ScopeKind = "category"
	ScopeGlobal   ScopeKind = "global"
)

const globalKey = "global"

// Scope targets a pricing rule at one SKU, one category, or everything.
type Scope struct {
	kind  ScopeKind
	value string
}

// SkuScope targets a single SKU.
func SkuScope(id string) Scope { return Scope{kind: ScopeSku, value: strings.TrimSpace(id)} }

// CategoryScope targets every SKU in a category.
func CategoryScope(name string) Scope {
	return Scope{kind: ScopeCategory, value: strings.TrimSpace(name)}
}

// GlobalScope is the fallback for SKUs without a more specific rule.
func GlobalScope() Scope { return Scope{kind: ScopeGlobal} }

// Kind returns the variant tag.
func (s Scope) Kind() ScopeKind { return s.kind }

// Value returns the SKU id or category name; empty for global scope.
func (s Scope) Value() string { return s.value }

// Key returns the registry index key for the scope.
func (s Scope) Key() string {
	switch s.kind {
	case ScopeSku, ScopeCategory:
		return string(s.kind) + ":" + s.value
	case ScopeGlobal:
		return globalKey
	default:
		return ""
	}
}

func (s Scope) String() string { return s.Key() }

// Validate rejects the zero Scope and blank identifiers.
func (s Scope) Validate() error {
	switch s.kind {
	case ScopeSku, ScopeCategory:
		if s.value == "" {
			return newError(ErrInvalidDraft, fmt.Sprintf("%s scope requires a value", s.kind))
		}
		return nil
	case ScopeGlobal:
		if s.value != "" {
			return newError(ErrInvalidDraft, "global scope takes no value")
		}
		return nil
	default:
		return newError(ErrInvalidDraft, "scope is required")
	}
}

// ParseScopeKey is the inverse of Scope.Key.
func ParseScopeKey(key string) (Scope, error) {
	key = strings.TrimSpace(key)
	if key == globalKey {
		return GlobalScope(), nil
	}
	kind, value, ok := strings.Cut(key, ":")
	if !ok {
		return Scope{}, newError(ErrInvalidDraft, fmt.Sprintf("malformed scope key %q", key))
	}
	var scope Scope
	switch ScopeKind(kind) {
	case ScopeSku:
		scope = SkuScope(value)
	case ScopeCategory:
		scope = CategoryScope(value)
	default:
		return Scope{}, newError(ErrInvalidDraft, fmt.Sprintf("unknown scope type %q", kind))
	}
	if err := scope.Validate(); err != nil {
		return Scope{}, err
	}
	return scope, nil
}

type scopeJSON struct {
	Type  ScopeKind `json:"type"`
	Value string    `json:"value,omitempty"`
}

// MarshalJSON encodes the scope as {"type":..., "value":...}.
func (s Scope) MarshalJSON() ([]byte, error) {
	return json.Marshal(scopeJSON{Type: s.kind, Value: s.value})
}

// UnmarshalJSON decodes a scope object and rejects unknown types. Blank
// values are left to Validate so they surface as ErrInvalidDraft.
func (s *Scope) UnmarshalJSON(data []byte) error {
	var raw scopeJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch raw.Type {
	case ScopeSku:
		*s = SkuScope(raw.Value)
	case ScopeCategory:
		*s = CategoryScope(raw.Value)
	case ScopeGlobal:
		*s = GlobalScope()
	default:
		return fmt.Errorf("unknown scope type %q", raw.Type)
	}
	return nil
}
