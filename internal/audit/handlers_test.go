package audit

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/menumaster-admin/internal/common"
)

type stubReader struct {
	entries  []Entry
	err      error
	received string
}

func (s *stubReader) History(_ context.Context, ruleID string) ([]Entry, error) {
	s.received = ruleID
	return s.entries, s.err
}

func serve(h Handler, target string) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.Get("/pricing-rules/{id}/history", h.List)
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func TestHandlerListPaginates(t *testing.T) {
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	reader := &stubReader{entries: []Entry{
		{RuleID: "r1", Action: ActionSubmitted, ActorID: "bob", ToStatus: "pending", Version: 1, At: at},
		{RuleID: "r1", Action: ActionRevised, ActorID: "bob", FromStatus: "pending", ToStatus: "pending", Version: 2, At: at},
		{RuleID: "r1", Action: ActionApproved, ActorID: "charlie", FromStatus: "pending", ToStatus: "approved", Version: 3, At: at},
	}}
	rr := serve(Handler{Reader: reader}, "/pricing-rules/r1/history?limit=2&offset=1")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if reader.received != "r1" {
		t.Fatalf("unexpected rule id: %s", reader.received)
	}
	var payload historyResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Total != 3 || len(payload.Entries) != 2 {
		t.Fatalf("unexpected page: total=%d len=%d", payload.Total, len(payload.Entries))
	}
	if payload.Entries[1].Action != ActionApproved {
		t.Fatalf("unexpected last action: %s", payload.Entries[1].Action)
	}
}

func TestHandlerListOffsetPastEnd(t *testing.T) {
	reader := &stubReader{entries: []Entry{{RuleID: "r1", Action: ActionSubmitted}}}
	rr := serve(Handler{Reader: reader}, "/pricing-rules/r1/history?offset=5")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var payload historyResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(payload.Entries) != 0 || payload.Total != 1 {
		t.Fatalf("expected empty page, got %+v", payload)
	}
}

func TestHandlerListMapsErrors(t *testing.T) {
	missing := errors.New("missing")
	reader := &stubReader{err: missing}
	h := Handler{Reader: reader, MapError: func(err error) *common.AppError {
		if errors.Is(err, missing) {
			return common.NewAppError("RULE_NOT_FOUND", "rule not found", http.StatusNotFound, err)
		}
		return nil
	}}
	rr := serve(h, "/pricing-rules/nope/history")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}

	reader.err = errors.New("boom")
	rr = serve(h, "/pricing-rules/nope/history")
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
}
