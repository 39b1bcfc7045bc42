package middleware

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/phrazzld/genqueue/internal/api/shared"
	"golang.org/x/time/rate"
)

// RateLimit admits requests through a single token bucket refilled at
// perSecond with the given burst. Rejected requests get 429 and a
// Retry-After hint.
func RateLimit(perSecond float64, burst int) func(http.Handler) http.Handler {
	limiter := rate.NewLimiter(rate.Limit(perSecond), burst)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reservation := limiter.Reserve()
			if !reservation.OK() {
				shared.RespondWithError(w, r, http.StatusTooManyRequests, "Rate limit exceeded")
				return
			}
			if delay := reservation.Delay(); delay > 0 {
				reservation.Cancel()
				w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(delay)))
				shared.RespondWithError(w, r, http.StatusTooManyRequests, "Rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func retryAfterSeconds(d time.Duration) int {
	return int(math.Ceil(d.Seconds()))
}
