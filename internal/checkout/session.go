// Package checkout creates Stripe Checkout Sessions and fulfils the
// webhook events Stripe sends back once a customer pays.
package checkout

import (
	"fmt"
	"strings"

	stripelib "github.com/stripe/stripe-go/v82"
	stripesession "github.com/stripe/stripe-go/v82/checkout/session"

	"github.com/myersendurance/coachd/internal/catalog"
)

// SessionErrorKind classifies a failed session creation so the HTTP layer
// can pick a status code and a stable machine-readable error string.
type SessionErrorKind string

const (
	ErrKindConfiguration  SessionErrorKind = "configuration_error"
	ErrKindInvalidRequest SessionErrorKind = "invalid_request"
	ErrKindProviderAuth   SessionErrorKind = "provider_auth_error"
	ErrKindUnknown        SessionErrorKind = "unknown"
)

// SessionError wraps a session-creation failure with its classification.
type SessionError struct {
	Kind    SessionErrorKind
	Message string
	cause   error
}

func (e *SessionError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *SessionError) Unwrap() error { return e.cause }

// SessionRequest carries everything needed to open a checkout session for
// one validated product.
type SessionRequest struct {
	Product       catalog.Product
	CustomerEmail string
	SuccessURL    string
	CancelURL     string
}

// CreatedSession is the caller-facing result of session creation.
type CreatedSession struct {
	SessionID string `json:"sessionId"`
	URL       string `json:"url"`
}

// SessionCreator turns a validated product into a Stripe Checkout Session.
// The create function is swappable for tests.
type SessionCreator struct {
	apiKey string
	create func(params *stripelib.CheckoutSessionParams) (*stripelib.CheckoutSession, error)
}

// NewSessionCreator creates a SessionCreator backed by the live Stripe API.
func NewSessionCreator(apiKey string) *SessionCreator {
	return &SessionCreator{
		apiKey: strings.TrimSpace(apiKey),
		create: stripesession.New,
	}
}

// Create opens a checkout session for the product. Recurring products open
// a subscription-mode session and carry the product key on the subscription
// metadata as well, so later subscription events can be traced back to the
// product without another API call.
func (c *SessionCreator) Create(req SessionRequest) (*CreatedSession, error) {
	if c.apiKey == "" {
		return nil, &SessionError{Kind: ErrKindConfiguration, Message: "stripe api key not configured"}
	}
	if strings.TrimSpace(req.Product.PriceID) == "" {
		return nil, &SessionError{Kind: ErrKindConfiguration, Message: "product has no price configured"}
	}
	stripelib.Key = c.apiKey

	params := &stripelib.CheckoutSessionParams{
		SuccessURL: stripelib.String(req.SuccessURL),
		CancelURL:  stripelib.String(req.CancelURL),
		PaymentMethodTypes: stripelib.StringSlice([]string{
			"card",
		}),
		LineItems: []*stripelib.CheckoutSessionLineItemParams{
			{
				Price:    stripelib.String(req.Product.PriceID),
				Quantity: stripelib.Int64(1),
			},
		},
		// Both spellings, so readers from either deployment generation
		// resolve the product.
		Metadata: map[string]string{
			"product_type": req.Product.Key,
			"productType":  req.Product.Key,
		},
	}
	if email := strings.TrimSpace(req.CustomerEmail); email != "" {
		params.CustomerEmail = stripelib.String(email)
	}
	if req.Product.BillingMode == catalog.BillingRecurring {
		params.Mode = stripelib.String(string(stripelib.CheckoutSessionModeSubscription))
		params.SubscriptionData = &stripelib.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{
				"product_type": req.Product.Key,
				"productType":  req.Product.Key,
			},
		}
	} else {
		params.Mode = stripelib.String(string(stripelib.CheckoutSessionModePayment))
	}

	session, err := c.create(params)
	if err != nil {
		return nil, classifySessionError(err)
	}
	if session == nil || strings.TrimSpace(session.URL) == "" {
		return nil, &SessionError{Kind: ErrKindUnknown, Message: "stripe returned no checkout url"}
	}
	return &CreatedSession{SessionID: session.ID, URL: session.URL}, nil
}

func classifySessionError(err error) *SessionError {
	if stripeErr, ok := err.(*stripelib.Error); ok {
		if stripeErr.HTTPStatusCode == 401 {
			return &SessionError{Kind: ErrKindProviderAuth, Message: "stripe rejected the api key", cause: err}
		}
		if stripeErr.Type == stripelib.ErrorTypeInvalidRequest {
			return &SessionError{Kind: ErrKindInvalidRequest, Message: "stripe rejected the request", cause: err}
		}
	}
	return &SessionError{Kind: ErrKindUnknown, Message: "checkout session creation failed", cause: err}
}
