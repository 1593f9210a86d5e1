package auth

import (
	"crypto/hmac"
	"net/http"
	"strings"
)

// IngestAuthMiddleware validates the shared token vendors present on
// webhook deliveries. Vendors send it either as a bearer token or in
// the X-Ingest-Token header.
type IngestAuthMiddleware struct {
	Token []byte
}

// NewIngestAuthMiddleware constructs ingest auth middleware.
func NewIngestAuthMiddleware(token []byte) *IngestAuthMiddleware {
	return &IngestAuthMiddleware{Token: token}
}

// Wrap enforces ingest token validation.
func (m *IngestAuthMiddleware) Wrap(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(m.Token) == 0 {
			http.Error(w, "ingest auth not configured", http.StatusUnauthorized)
			return
		}
		presented := extractBearer(r)
		if presented == "" {
			presented = strings.TrimSpace(r.Header.Get("X-Ingest-Token"))
		}
		if presented == "" {
			http.Error(w, "missing ingest token", http.StatusUnauthorized)
			return
		}
		if !hmac.Equal([]byte(presented), m.Token) {
			http.Error(w, "invalid ingest token", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
