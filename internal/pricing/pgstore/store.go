// Package pgstore persists pricing rules and their history in PostgreSQL.
package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/menumaster-admin/internal/audit"
	"github.com/noah-isme/menumaster-admin/internal/pricing"
)

const ruleColumns = `id, name, scope_key, base_price::text, slabs, status, created_by, approved_by,
	rejection_reason, created_at, updated_at, version, active, supersedes, superseded_by, submitted_by`

const insertRule = `INSERT INTO pricing_rules (
	id, name, scope_kind, scope_key, base_price, slabs, status, created_by, approved_by,
	rejection_reason, created_at, updated_at, version, active, supersedes, superseded_by, submitted_by
) VALUES ($1, $2, $3, $4, $5::text::numeric, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`

const updateRule = `UPDATE pricing_rules SET
	name = $2, scope_kind = $3, scope_key = $4, base_price = $5::text::numeric, slabs = $6,
	status = $7, created_by = $8, approved_by = $9, rejection_reason = $10, created_at = $11,
	updated_at = $12, version = $13, active = $14, supersedes = $15, superseded_by = $16,
	submitted_by = $17
WHERE id = $1 AND version = $18`

const insertHistory = `INSERT INTO pricing_rule_history (
	rule_id, action, actor_id, actor_role, from_status, to_status, reason, version, at, request_id, client_ip
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

// Store implements pricing.Registry on a pgx pool. Partial unique indexes
// back the one-active-per-scope and one-pending-per-maker rules; concurrent
// writers that trip them are retried so the losing side sees the winner.
type Store struct {
	pool        *pgxpool.Pool
	maxAttempts int
}

var _ pricing.Registry = (*Store)(nil)

// New constructs a Store on pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, maxAttempts: 3}
}

// Get returns the rule with id.
func (s *Store) Get(ctx context.Context, id string) (pricing.PricingRule, error) {
	rule, err := scanRule(s.pool.QueryRow(ctx, `SELECT `+ruleColumns+` FROM pricing_rules WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return pricing.PricingRule{}, pricing.RuleNotFoundError(id)
	}
	if err != nil {
		return pricing.PricingRule{}, fmt.Errorf("pgstore: get %s: %w", id, err)
	}
	return rule, nil
}

// List returns rules newest first together with the unpaged total.
func (s *Store) List(ctx context.Context, filter pricing.ListFilter) ([]pricing.PricingRule, int, error) {
	var (
		conds []string
		args  []any
	)
	where := func(cond string, value any) {
		args = append(args, value)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if filter.Status != "" {
		where("status = $%d", string(filter.Status))
	}
	if filter.ScopeKey != "" {
		where("scope_key = $%d", filter.ScopeKey)
	}
	if filter.CreatedBy != "" {
		where("created_by = $%d", filter.CreatedBy)
	}
	clause := ""
	if len(conds) > 0 {
		clause = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM pricing_rules`+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgstore: count rules: %w", err)
	}

	query := `SELECT ` + ruleColumns + ` FROM pricing_rules` + clause + ` ORDER BY created_at DESC, id ASC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgstore: list rules: %w", err)
	}
	out, err := collectRules(rows)
	if err != nil {
		return nil, 0, fmt.Errorf("pgstore: list rules: %w", err)
	}
	return out, total, nil
}

// Upsert stores rule inside one transaction, retrying when a concurrent
// writer wins a unique index race.
func (s *Store) Upsert(ctx context.Context, rule pricing.PricingRule, expectedVersion int64, entry audit.Entry) (pricing.PricingRule, error) {
	if err := pricing.CheckWritable(rule); err != nil {
		return pricing.PricingRule{}, err
	}
	var lastErr error
	for attempt := 0; attempt < s.maxAttempts; attempt++ {
		stored, err := s.upsert(ctx, rule.Clone(), expectedVersion, entry)
		if err == nil {
			return stored, nil
		}
		if !isUniqueViolation(err) {
			return pricing.PricingRule{}, err
		}
		lastErr = err
	}
	return pricing.PricingRule{}, fmt.Errorf("pgstore: upsert %s: %w", rule.ID, lastErr)
}

func (s *Store) upsert(ctx context.Context, next pricing.PricingRule, expectedVersion int64, entry audit.Entry) (pricing.PricingRule, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return pricing.PricingRule{}, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var (
		storedVersion int64
		createdAt     time.Time
		exists        = true
	)
	err = tx.QueryRow(ctx, `SELECT version, created_at FROM pricing_rules WHERE id = $1 FOR UPDATE`, next.ID).
		Scan(&storedVersion, &createdAt)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		exists = false
	case err != nil:
		return pricing.PricingRule{}, err
	}

	switch {
	case expectedVersion == 0 && exists:
		return pricing.PricingRule{}, pricing.StaleVersionError(next.ID, 0, storedVersion)
	case expectedVersion == 0:
		next.Version = 1
	case !exists:
		return pricing.PricingRule{}, pricing.RuleNotFoundError(next.ID)
	case storedVersion != expectedVersion:
		return pricing.PricingRule{}, pricing.StaleVersionError(next.ID, expectedVersion, storedVersion)
	default:
		next.Version = storedVersion + 1
		next.CreatedAt = createdAt.UTC()
	}

	key := next.Scope.Key()
	if next.Status == pricing.StatusPending {
		other, err := scanRule(tx.QueryRow(ctx, `SELECT `+ruleColumns+` FROM pricing_rules
			WHERE scope_key = $1 AND created_by = $2 AND status = 'pending' AND id <> $3 LIMIT 1`,
			key, next.CreatedBy, next.ID))
		if err == nil {
			return pricing.PricingRule{}, pricing.DuplicatePendingError(other)
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return pricing.PricingRule{}, err
		}
	}

	var displaced *pricing.PricingRule
	if next.Active {
		rows, err := tx.Query(ctx, `SELECT `+ruleColumns+` FROM pricing_rules
			WHERE scope_key = $1 AND active AND id <> $2 ORDER BY id FOR UPDATE`, key, next.ID)
		if err != nil {
			return pricing.PricingRule{}, err
		}
		active, err := collectRules(rows)
		if err != nil {
			return pricing.PricingRule{}, err
		}
		if len(active) > 1 {
			return pricing.PricingRule{}, pricing.MultipleActiveError(key, ruleIDs(active))
		}
		if len(active) == 1 {
			prior := active[0]
			replacement := next.ID
			prior.Active = false
			prior.SupersededBy = &replacement
			prior.Version++
			prior.UpdatedAt = entry.At
			priorID := prior.ID
			next.Supersedes = &priorID
			if _, err := tx.Exec(ctx, `UPDATE pricing_rules
				SET active = FALSE, superseded_by = $2, version = $3, updated_at = $4 WHERE id = $1`,
				prior.ID, replacement, prior.Version, prior.UpdatedAt); err != nil {
				return pricing.PricingRule{}, err
			}
			displaced = &prior
		}
	}

	args, err := ruleArgs(next)
	if err != nil {
		return pricing.PricingRule{}, err
	}
	if exists {
		tag, err := tx.Exec(ctx, updateRule, append(args, storedVersion)...)
		if err != nil {
			return pricing.PricingRule{}, err
		}
		if tag.RowsAffected() == 0 {
			return pricing.PricingRule{}, pricing.StaleVersionError(next.ID, expectedVersion, storedVersion)
		}
	} else if _, err := tx.Exec(ctx, insertRule, args...); err != nil {
		return pricing.PricingRule{}, err
	}

	entry.RuleID = next.ID
	entry.Version = next.Version
	if err := appendHistory(ctx, tx, entry); err != nil {
		return pricing.PricingRule{}, err
	}
	if displaced != nil {
		if err := appendHistory(ctx, tx, pricing.SupersessionEntry(entry, *displaced, next.ID)); err != nil {
			return pricing.PricingRule{}, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return pricing.PricingRule{}, err
	}
	return next, nil
}

// ActiveRuleFor returns the single active rule for scopeKey.
func (s *Store) ActiveRuleFor(ctx context.Context, scopeKey string) (pricing.PricingRule, bool, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+ruleColumns+` FROM pricing_rules
		WHERE scope_key = $1 AND active AND status = 'approved' ORDER BY id`, scopeKey)
	if err != nil {
		return pricing.PricingRule{}, false, fmt.Errorf("pgstore: active rule: %w", err)
	}
	active, err := collectRules(rows)
	if err != nil {
		return pricing.PricingRule{}, false, fmt.Errorf("pgstore: active rule: %w", err)
	}
	switch len(active) {
	case 0:
		return pricing.PricingRule{}, false, nil
	case 1:
		return active[0], true, nil
	default:
		return pricing.PricingRule{}, false, pricing.MultipleActiveError(scopeKey, ruleIDs(active))
	}
}

// History returns the rule's entries in insertion order.
func (s *Store) History(ctx context.Context, id string) ([]audit.Entry, error) {
	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM pricing_rules WHERE id = $1)`, id).Scan(&exists); err != nil {
		return nil, fmt.Errorf("pgstore: history: %w", err)
	}
	if !exists {
		return nil, pricing.RuleNotFoundError(id)
	}
	rows, err := s.pool.Query(ctx, `SELECT rule_id, action, actor_id, actor_role, from_status, to_status,
		reason, version, at, request_id, client_ip FROM pricing_rule_history WHERE rule_id = $1 ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("pgstore: history: %w", err)
	}
	defer rows.Close()
	out := []audit.Entry{}
	for rows.Next() {
		var (
			e      audit.Entry
			action string
		)
		if err := rows.Scan(&e.RuleID, &action, &e.ActorID, &e.ActorRole, &e.FromStatus, &e.ToStatus,
			&e.Reason, &e.Version, &e.At, &e.RequestID, &e.ClientIP); err != nil {
			return nil, fmt.Errorf("pgstore: history: %w", err)
		}
		e.Action = audit.Action(action)
		e.At = e.At.UTC()
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgstore: history: %w", err)
	}
	return out, nil
}

func appendHistory(ctx context.Context, tx pgx.Tx, e audit.Entry) error {
	_, err := tx.Exec(ctx, insertHistory, e.RuleID, string(e.Action), e.ActorID, e.ActorRole, e.FromStatus,
		e.ToStatus, e.Reason, e.Version, e.At, e.RequestID, e.ClientIP)
	return err
}

func ruleArgs(rule pricing.PricingRule) ([]any, error) {
	slabs, err := json.Marshal(rule.Slabs)
	if err != nil {
		return nil, fmt.Errorf("pgstore: encode slabs: %w", err)
	}
	var basePrice *string
	if rule.BasePrice != nil {
		v := rule.BasePrice.String()
		basePrice = &v
	}
	return []any{
		rule.ID, rule.Name, string(rule.Scope.Kind()), rule.Scope.Key(), basePrice, json.RawMessage(slabs),
		string(rule.Status), rule.CreatedBy, rule.ApprovedBy, rule.RejectionReason, rule.CreatedAt,
		rule.UpdatedAt, rule.Version, rule.Active, rule.Supersedes, rule.SupersededBy, rule.SubmittedBy,
	}, nil
}

func scanRule(row pgx.Row) (pricing.PricingRule, error) {
	var (
		rule      pricing.PricingRule
		scopeKey  string
		basePrice *string
		slabs     []byte
		status    string
	)
	if err := row.Scan(&rule.ID, &rule.Name, &scopeKey, &basePrice, &slabs, &status, &rule.CreatedBy,
		&rule.ApprovedBy, &rule.RejectionReason, &rule.CreatedAt, &rule.UpdatedAt, &rule.Version,
		&rule.Active, &rule.Supersedes, &rule.SupersededBy, &rule.SubmittedBy); err != nil {
		return pricing.PricingRule{}, err
	}
	scope, err := pricing.ParseScopeKey(scopeKey)
	if err != nil {
		return pricing.PricingRule{}, fmt.Errorf("rule %s: %w", rule.ID, err)
	}
	rule.Scope = scope
	if basePrice != nil {
		price, err := decimal.NewFromString(*basePrice)
		if err != nil {
			return pricing.PricingRule{}, fmt.Errorf("rule %s: base price: %w", rule.ID, err)
		}
		rule.BasePrice = &price
	}
	if err := json.Unmarshal(slabs, &rule.Slabs); err != nil {
		return pricing.PricingRule{}, fmt.Errorf("rule %s: slabs: %w", rule.ID, err)
	}
	rule.Status = pricing.Status(status)
	rule.CreatedAt = rule.CreatedAt.UTC()
	rule.UpdatedAt = rule.UpdatedAt.UTC()
	return rule, nil
}

func collectRules(rows pgx.Rows) ([]pricing.PricingRule, error) {
	defer rows.Close()
	out := []pricing.PricingRule{}
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rule)
	}
	return out, rows.Err()
}

func ruleIDs(rules []pricing.PricingRule) []string {
	ids := make([]string, len(rules))
	for i, r := range rules {
		ids[i] = r.ID
	}
	return ids
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}
