package checkout

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/myersendurance/coachd/internal/catalog"
	"github.com/myersendurance/coachd/internal/email"
	"github.com/myersendurance/coachd/internal/metrics"
	"github.com/myersendurance/coachd/internal/store"
)

// Fulfiller applies the durable side effects of Stripe webhook events:
// order and user rows in the store, plus the owner notification email.
type Fulfiller struct {
	store    *store.Store
	catalog  *catalog.Catalog
	notifier *email.Notifier // nil disables purchase notifications
}

// NewFulfiller creates a Fulfiller.
func NewFulfiller(st *store.Store, cat *catalog.Catalog, notifier *email.Notifier) *Fulfiller {
	return &Fulfiller{
		store:    st,
		catalog:  cat,
		notifier: notifier,
	}
}

// HandleCheckout records a completed checkout session as an order and
// upserts the purchasing user. Persistence failures are returned so the
// webhook responds 500 and Stripe redelivers; the notification email is
// best effort and never fails the event.
func (f *Fulfiller) HandleCheckout(ctx context.Context, session CheckoutSession) error {
	sessionID := strings.TrimSpace(session.ID)
	if sessionID == "" {
		return fmt.Errorf("checkout session has no id")
	}
	productType := metadataProductType(session.Metadata)
	customerEmail := session.EffectiveEmail()

	order := &store.Order{
		ProductType:           productType,
		Status:                store.OrderStatusCompleted,
		StripeSessionID:       sessionID,
		StripeCustomerID:      strings.TrimSpace(session.Customer),
		StripeSubscriptionID:  strings.TrimSpace(session.Subscription),
		StripePaymentIntentID: strings.TrimSpace(session.PaymentIntent),
		AmountTotal:           session.AmountTotal,
		Currency:              session.Currency,
		CustomerEmail:         customerEmail,
	}
	stored, err := f.store.UpsertOrderBySessionID(order)
	if err != nil {
		return fmt.Errorf("record order for session %s: %w", sessionID, err)
	}

	if customerEmail != "" {
		if _, err := f.store.UpsertUserOnPurchase(customerEmail, productType, order.StripeCustomerID); err != nil {
			return fmt.Errorf("record user for session %s: %w", sessionID, err)
		}
	} else {
		log.Warn().
			Str("session_id", sessionID).
			Str("product_type", productType).
			Msg("Checkout completed without a customer email, skipping user upsert")
	}

	metrics.OrdersRecordedTotal.WithLabelValues(productType).Inc()
	log.Info().
		Str("session_id", sessionID).
		Str("order_id", stored.ID).
		Str("product_type", productType).
		Str("customer_email", customerEmail).
		Msg("Checkout fulfilled")

	if f.notifier != nil {
		if err := f.notifier.NotifyPurchase(ctx, customerEmail, productType, session.AmountTotal); err != nil {
			metrics.NotificationEmailsTotal.WithLabelValues("error").Inc()
			log.Error().Err(err).
				Str("session_id", sessionID).
				Msg("Purchase notification email failed")
		} else {
			metrics.NotificationEmailsTotal.WithLabelValues("sent").Inc()
		}
	}
	return nil
}

// HandleSubscriptionUpdated links the subscription to the matching orders
// and moves their status. Failures are logged, never returned: Stripe
// retries would not help a row that does not exist yet.
func (f *Fulfiller) HandleSubscriptionUpdated(ctx context.Context, sub Subscription) error {
	customerID := strings.TrimSpace(sub.Customer)
	productType := f.subscriptionProductType(sub)
	if customerID == "" || productType == "" {
		log.Warn().
			Str("subscription_id", sub.ID).
			Str("customer_id", customerID).
			Str("product_type", productType).
			Msg("Subscription update missing customer or product, ignoring")
		return nil
	}

	status := store.OrderStatusPending
	if sub.Status == "active" {
		status = store.OrderStatusCompleted
	}
	updated, err := f.store.UpdateOrdersForSubscription(customerID, productType, sub.ID, status)
	if err != nil {
		log.Error().Err(err).
			Str("subscription_id", sub.ID).
			Str("customer_id", customerID).
			Msg("Subscription update could not be applied")
		return nil
	}
	log.Info().
		Str("subscription_id", sub.ID).
		Str("customer_id", customerID).
		Str("product_type", productType).
		Str("status", string(status)).
		Int64("orders_updated", updated).
		Msg("Subscription updated")
	return nil
}

// HandleSubscriptionDeleted cancels the orders carrying the subscription.
// Like updates, failures are logged and acknowledged.
func (f *Fulfiller) HandleSubscriptionDeleted(ctx context.Context, sub Subscription) error {
	subscriptionID := strings.TrimSpace(sub.ID)
	if subscriptionID == "" {
		log.Warn().Msg("Subscription delete event has no id, ignoring")
		return nil
	}
	cancelled, err := f.store.CancelOrdersBySubscriptionID(subscriptionID)
	if err != nil {
		log.Error().Err(err).
			Str("subscription_id", subscriptionID).
			Msg("Subscription cancellation could not be applied")
		return nil
	}
	log.Info().
		Str("subscription_id", subscriptionID).
		Int64("orders_cancelled", cancelled).
		Msg("Subscription cancelled")
	return nil
}

// subscriptionProductType resolves the product key for a subscription from
// its own metadata first, falling back to the metadata on the first priced
// item. Both are stamped at session creation.
func (f *Fulfiller) subscriptionProductType(sub Subscription) string {
	if pt := metadataProductType(sub.Metadata); pt != "" {
		return pt
	}
	for _, item := range sub.Items.Data {
		if pt := metadataProductType(item.Price.Metadata); pt != "" {
			return pt
		}
	}
	return ""
}

// metadataProductType reads the product key from Stripe metadata. Sessions
// and subscriptions created by the previous Node deployment stamped the key
// as "productType", so both spellings stay readable.
func metadataProductType(md map[string]string) string {
	if pt := catalog.Normalize(md["product_type"]); pt != "" {
		return pt
	}
	return catalog.Normalize(md["productType"])
}
