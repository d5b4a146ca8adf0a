package audit

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/noah-isme/menumaster-admin/internal/common"
)

// Meta carries request attributes copied onto history entries.
type Meta struct {
	RequestID string
	ClientIP  string
	UserAgent string
}

type metaKey struct{}

// WithMeta stores request metadata on the context.
func WithMeta(ctx context.Context, meta Meta) context.Context {
	return context.WithValue(ctx, metaKey{}, meta)
}

// MetaFrom extracts request metadata from the context if present.
func MetaFrom(ctx context.Context) (Meta, bool) {
	if ctx == nil {
		return Meta{}, false
	}
	meta, ok := ctx.Value(metaKey{}).(Meta)
	return meta, ok
}

// RequestMeta captures request id and client address for the audit trail.
// It must run after chi's RequestID middleware.
func RequestMeta(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := middleware.GetReqID(r.Context())
		if reqID == "" {
			reqID = strings.TrimSpace(r.Header.Get("X-Request-ID"))
		}
		meta := Meta{
			RequestID: reqID,
			ClientIP:  common.ClientIP(r),
			UserAgent: strings.TrimSpace(r.UserAgent()),
		}
		next.ServeHTTP(w, r.WithContext(WithMeta(r.Context(), meta)))
	})
}
