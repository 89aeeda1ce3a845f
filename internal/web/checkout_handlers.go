package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/myersendurance/coachd/internal/catalog"
	"github.com/myersendurance/coachd/internal/checkout"
	"github.com/myersendurance/coachd/internal/metrics"
)

const checkoutBodyLimit = 64 * 1024

type checkoutRequest struct {
	ProductType   string `json:"productType"`
	PriceID       string `json:"priceId"`
	BillingType   string `json:"billingType"`
	CustomerEmail string `json:"customerEmail"`
	SuccessURL    string `json:"successUrl"`
	CancelURL     string `json:"cancelUrl"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// HandleCreateCheckoutSession validates the requested product and opens a
// Stripe Checkout Session for it.
func HandleCreateCheckoutSession(deps *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method_not_allowed"})
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, checkoutBodyLimit)
		var req checkoutRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid_request", Message: "request body must be JSON"})
			return
		}

		product, err := deps.Catalog.Validate(req.ProductType)
		if err != nil {
			outcome := validationErrorCode(err)
			metrics.CheckoutSessionsTotal.WithLabelValues(catalog.Normalize(req.ProductType), outcome).Inc()
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: outcome, Message: err.Error()})
			return
		}

		// The catalog's price always wins; a stale client price ID is worth
		// knowing about but must not block the purchase.
		if reqPrice := strings.TrimSpace(req.PriceID); reqPrice != "" && reqPrice != product.PriceID {
			log.Warn().
				Str("product_type", product.Key).
				Str("client_price_id", reqPrice).
				Msg("Client sent a stale price ID, using the catalog price")
		}
		if reqBilling := strings.TrimSpace(req.BillingType); reqBilling != "" && reqBilling != string(product.BillingMode) {
			log.Warn().
				Str("product_type", product.Key).
				Str("client_billing_type", reqBilling).
				Str("billing_mode", string(product.BillingMode)).
				Msg("Client billing type disagrees with the catalog, using the catalog")
		}

		// Redirect fallbacks prefer the calling page's origin so a preview
		// deploy round-trips to itself; the configured base URL is the
		// backstop.
		origin := sanitizeRedirectURL(r.Header.Get("Origin"))
		if origin == "" {
			origin = deps.Config.BaseURL
		}

		created, err := deps.Sessions.Create(checkout.SessionRequest{
			Product:       product,
			CustomerEmail: req.CustomerEmail,
			SuccessURL:    successURL(origin, req.SuccessURL),
			CancelURL:     cancelURL(origin, req.CancelURL),
		})
		if err != nil {
			kind := checkout.ErrKindUnknown
			var sessionErr *checkout.SessionError
			if errors.As(err, &sessionErr) {
				kind = sessionErr.Kind
			}
			log.Error().Err(err).
				Str("product_type", product.Key).
				Msg("Checkout session creation failed")
			metrics.CheckoutSessionsTotal.WithLabelValues(product.Key, string(kind)).Inc()
			writeJSON(w, sessionErrorStatus(kind), errorResponse{Error: string(kind), Message: "unable to create checkout session"})
			return
		}

		metrics.CheckoutSessionsTotal.WithLabelValues(product.Key, "created").Inc()
		log.Info().
			Str("product_type", product.Key).
			Str("session_id", created.SessionID).
			Msg("Checkout session created")
		writeJSON(w, http.StatusOK, created)
	}
}

func validationErrorCode(err error) string {
	switch {
	case errors.Is(err, catalog.ErrNoProductSelected):
		return "no_product_selected"
	case errors.Is(err, catalog.ErrProductUnavailable):
		return "product_unavailable"
	default:
		return "invalid_product"
	}
}

func sessionErrorStatus(kind checkout.SessionErrorKind) int {
	switch kind {
	case checkout.ErrKindInvalidRequest:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// successURL picks the client-supplied success URL when it is usable,
// otherwise the canonical one under origin. Stripe substitutes the session
// ID placeholder after payment.
func successURL(origin, requested string) string {
	if u := sanitizeRedirectURL(requested); u != "" {
		return u
	}
	return strings.TrimRight(origin, "/") + "/success?session_id={CHECKOUT_SESSION_ID}"
}

func cancelURL(origin, requested string) string {
	if u := sanitizeRedirectURL(requested); u != "" {
		return u
	}
	return strings.TrimRight(origin, "/") + "/pricing"
}

func sanitizeRedirectURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !strings.HasPrefix(raw, "https://") && !strings.HasPrefix(raw, "http://") {
		return ""
	}
	return raw
}
