package middleware

import (
	"net/http"
	"runtime/debug"

	log "github.com/sirupsen/logrus"

	"github.com/2beens/fitjourney/internal/telemetry/metrics"
)

// PanicRecovery keeps a panicking handler from taking the server down
// with it. The panic is logged with its stack and counted.
func PanicRecovery(metricsManager *metrics.Manager) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					log.Errorf("http: panic serving %s: %v\n%s", r.URL.Path, rec, debug.Stack())
					metricsManager.CounterHandleRequestPanic.Inc()
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
