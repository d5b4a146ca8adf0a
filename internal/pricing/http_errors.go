package pricing

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/noah-isme/menumaster-admin/internal/catalog"
	"github.com/noah-isme/menumaster-admin/internal/common"
)

type errorMapping struct {
	kind    error
	code    string
	status  int
	message string
}

var errorMappings = []errorMapping{
	{ErrInvalidSlabConfiguration, "INVALID_SLAB_CONFIGURATION", http.StatusUnprocessableEntity, "slab configuration is invalid"},
	{ErrNoMatchingSlab, "NO_MATCHING_SLAB", http.StatusUnprocessableEntity, "quantity is not covered by any slab"},
	{ErrNoActiveRule, "NO_ACTIVE_RULE", http.StatusNotFound, "no approved pricing rule for scope"},
	{ErrRuleNotFound, "RULE_NOT_FOUND", http.StatusNotFound, "pricing rule not found"},
	{catalog.ErrNotFound, "SKU_NOT_FOUND", http.StatusNotFound, "sku not found in catalog"},
	{ErrSelfApprovalForbidden, "SELF_APPROVAL_FORBIDDEN", http.StatusForbidden, "makers cannot review their own rules"},
	{ErrForbidden, "FORBIDDEN", http.StatusForbidden, "operation not permitted"},
	{ErrDuplicatePendingRule, "DUPLICATE_PENDING_RULE", http.StatusConflict, "a pending rule for this scope already exists"},
	{ErrStaleVersion, "STALE_VERSION", http.StatusConflict, "rule was modified, reload and retry"},
	{ErrInvalidTransition, "INVALID_TRANSITION", http.StatusConflict, "rule status does not allow this operation"},
	{ErrInvariantViolation, "INVARIANT_VIOLATION", http.StatusInternalServerError, "pricing registry is inconsistent"},
	{ErrInvalidDraft, "VALIDATION_ERROR", http.StatusBadRequest, "invalid request"},
}

// HTTPError maps a pricing or catalog error to the API error shape. Unknown
// errors become a generic 500.
func HTTPError(err error) *common.AppError {
	if err == nil {
		return nil
	}
	var appErr *common.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	if errors.Is(err, catalog.ErrUnavailable) {
		status := http.StatusBadGateway
		if errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusGatewayTimeout
		}
		return common.NewAppError("CATALOG_UNAVAILABLE", "catalog lookup failed", status, err)
	}
	for _, m := range errorMappings {
		if errors.Is(err, m.kind) {
			out := common.NewAppError(m.code, m.message, m.status, err)
			out.Details = errorDetails(err)
			return out
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return common.NewAppError("TIMEOUT", "operation timed out", http.StatusGatewayTimeout, err)
	}
	return common.NewAppError("INTERNAL", "internal server error", http.StatusInternalServerError, err)
}

// ResultLabel turns err into a low-cardinality metrics label.
func ResultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	return strings.ToLower(HTTPError(err).Code)
}

func errorDetails(err error) map[string]any {
	perr, ok := ErrorContext(err)
	if !ok {
		return nil
	}
	details := map[string]any{}
	if perr.Detail != "" {
		details["reason"] = perr.Detail
	}
	if perr.RuleID != "" {
		details["ruleId"] = perr.RuleID
	}
	if perr.ScopeKey != "" {
		details["scope"] = perr.ScopeKey
	}
	if perr.Slab != nil {
		details["slabIndex"] = perr.SlabIndex
		details["slab"] = *perr.Slab
	}
	if len(details) == 0 {
		return nil
	}
	return details
}
