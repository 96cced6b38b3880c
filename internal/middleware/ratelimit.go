package middleware

import (
	"encoding/json"
	"log"
	"net"
	"net/http"

	"chatrelay/internal/metrics"
	"chatrelay/internal/quota"
)

// RateLimiter rejects clients whose persisted request count has reached
// the ceiling, and counts every allowed request against their quota.
type RateLimiter struct {
	store quota.Store
	limit int
}

func NewRateLimiter(store quota.Store, limit int) *RateLimiter {
	return &RateLimiter{store: store, limit: limit}
}

func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientID := ClientID(r)

		count, err := rl.store.Get(r.Context(), clientID)
		if err != nil {
			// Never bypass the limiter on a broken store
			log.Printf("ERROR: quota lookup for %s failed: %v", clientID, err)
			writeError(w, http.StatusInternalServerError, "Internal server error")
			return
		}

		if count >= rl.limit {
			metrics.QuotaRejections.Inc()
			writeError(w, http.StatusTooManyRequests, "Request limit exceeded")
			return
		}

		if _, err := rl.store.Increment(r.Context(), clientID); err != nil {
			log.Printf("ERROR: quota increment for %s failed: %v", clientID, err)
			writeError(w, http.StatusInternalServerError, "Internal server error")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// ClientID derives the quota key from the remote address. chi's RealIP
// middleware has already rewritten RemoteAddr when the request came
// through a proxy.
func ClientID(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
