package audit

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/menumaster-admin/internal/common"
)

// Handler exposes the history of a pricing rule.
type Handler struct {
	Reader HistoryReader
	// MapError translates reader errors such as unknown rule ids.
	MapError func(error) *common.AppError
}

type historyResponse struct {
	RuleID  string  `json:"ruleId"`
	Entries []Entry `json:"entries"`
	Total   int     `json:"total"`
	Limit   int     `json:"limit"`
	Offset  int     `json:"offset"`
}

// List returns a page of history entries for the rule in the {id} URL param.
func (h Handler) List(w http.ResponseWriter, r *http.Request) {
	if h.Reader == nil {
		common.JSONError(w, http.StatusInternalServerError, "AUDIT_NOT_CONFIGURED", "history reader not configured", nil)
		return
	}
	ruleID := chi.URLParam(r, "id")
	limit := common.AtoiDefault(r.URL.Query().Get("limit"), 50)
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := common.AtoiDefault(r.URL.Query().Get("offset"), 0)
	if offset < 0 {
		offset = 0
	}

	entries, err := h.Reader.History(r.Context(), ruleID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	total := len(entries)
	page := []Entry{}
	if offset < total {
		end := offset + limit
		if end > total {
			end = total
		}
		page = entries[offset:end]
	}
	common.JSON(w, http.StatusOK, historyResponse{RuleID: ruleID, Entries: page, Total: total, Limit: limit, Offset: offset})
}

func (h Handler) writeError(w http.ResponseWriter, err error) {
	if h.MapError != nil {
		if appErr := h.MapError(err); appErr != nil {
			common.JSONError(w, appErr.HTTPStatus, appErr.Code, appErr.Message, appErr.Details)
			return
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		common.JSONError(w, http.StatusGatewayTimeout, "AUDIT_TIMEOUT", "history lookup timed out", nil)
		return
	}
	common.JSONError(w, http.StatusInternalServerError, "AUDIT_QUERY_FAILED", "unable to fetch history", nil)
}
