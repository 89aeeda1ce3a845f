package web

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/myersendurance/coachd/internal/catalog"
	"github.com/myersendurance/coachd/internal/checkout"
	"github.com/myersendurance/coachd/internal/logging"
	"github.com/myersendurance/coachd/internal/store"
)

// SessionCreator opens a Stripe Checkout Session for a validated product.
type SessionCreator interface {
	Create(req checkout.SessionRequest) (*checkout.CreatedSession, error)
}

// Deps holds shared dependencies injected into HTTP handlers.
type Deps struct {
	Config    *Config
	Store     *store.Store
	Catalog   *catalog.Catalog
	Sessions  SessionCreator
	Fulfiller *checkout.Fulfiller
	Version   string
}

// RegisterRoutes wires all HTTP handlers onto the given ServeMux.
func RegisterRoutes(mux *http.ServeMux, deps *Deps) {
	// Health / readiness are unauthenticated liveness/readiness probes.
	mux.HandleFunc("/healthz", HandleHealthz)
	mux.HandleFunc("/readyz", HandleReadyz(deps.Store))
	mux.Handle("/metrics", promhttp.Handler())

	// Stripe webhook (signature-authenticated)
	webhookHandler := checkout.NewWebhookHandler(deps.Config.StripeWebhookSecret, deps.Fulfiller)
	webhookLimiter := NewRateLimiter(120, time.Minute)
	mux.Handle("/api/stripe-webhook", webhookLimiter.Middleware(webhookHandler))

	// Public form endpoints share one limiter; checkout gets its own so a
	// burst of intake spam cannot block purchases.
	checkoutLimiter := NewRateLimiter(30, time.Minute)
	mux.Handle("/api/create-checkout-session", checkoutLimiter.Middleware(HandleCreateCheckoutSession(deps)))

	formLimiter := NewRateLimiter(30, time.Minute)
	mux.Handle("/api/intake", formLimiter.Middleware(HandleIntake(deps)))
	mux.Handle("/api/contact", formLimiter.Middleware(HandleContact(deps)))
}

// RequestIDMiddleware tags every request with an ID, honoring one supplied
// by the proxy, and echoes it back to the client.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, id := logging.WithRequestID(r.Context(), r.Header.Get("X-Request-ID"))
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
