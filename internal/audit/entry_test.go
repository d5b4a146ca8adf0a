package audit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/require"
)

func TestNewEntryWithoutMeta(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.FixedZone("WIB", 7*3600))
	entry := NewEntry(context.Background(), ActionApproved, " charlie ", "checker", at)
	require.Equal(t, "charlie", entry.ActorID)
	require.Equal(t, ActionApproved, entry.Action)
	require.Equal(t, time.UTC, entry.At.Location())
	require.Empty(t, entry.RequestID)
}

func TestRequestMetaFeedsEntries(t *testing.T) {
	var captured Entry
	handler := middleware.RequestID(RequestMeta(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = NewEntry(r.Context(), ActionSubmitted, "bob", "maker", time.Now())
		w.WriteHeader(http.StatusNoContent)
	})))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/pricing-rules", nil)
	req.Header.Set("X-Request-Id", "req-123")
	req.RemoteAddr = "10.0.0.2:54321"
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusNoContent, rr.Code)
	require.Equal(t, "req-123", captured.RequestID)
	require.Equal(t, "10.0.0.2", captured.ClientIP)
}
