package checkout

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	stripewebhook "github.com/stripe/stripe-go/v82/webhook"

	"github.com/myersendurance/coachd/internal/catalog"
	"github.com/myersendurance/coachd/internal/email"
	"github.com/myersendurance/coachd/internal/store"
)

const testWebhookSecret = "whsec_test_secret"

func TestWebhookCheckoutCompletedRecordsOrderAndUser(t *testing.T) {
	st := newTestStore(t)
	sender := &captureSender{}
	handler := newTestHandler(t, st, sender)

	eventJSON := checkoutCompletedEvent("cs_test_abc", "level_2", "runner@example.com", "cus_123", 17900)
	rec := deliver(t, handler, eventJSON)
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d, want=%d, body=%q", rec.Code, http.StatusOK, rec.Body.String())
	}

	order, err := st.GetOrderBySessionID("cs_test_abc")
	if err != nil {
		t.Fatalf("GetOrderBySessionID: %v", err)
	}
	if order == nil {
		t.Fatal("order not recorded")
	}
	if order.Status != store.OrderStatusCompleted {
		t.Errorf("order status=%q, want=%q", order.Status, store.OrderStatusCompleted)
	}
	if order.ProductType != "level_2" {
		t.Errorf("order product=%q, want=level_2", order.ProductType)
	}
	if order.AmountTotal != 17900 {
		t.Errorf("order amount=%d, want=17900", order.AmountTotal)
	}

	user, err := st.GetUserByEmail("runner@example.com")
	if err != nil {
		t.Fatalf("GetUserByEmail: %v", err)
	}
	if user == nil {
		t.Fatal("user not recorded")
	}
	if user.IntakeComplete {
		t.Error("new purchaser should not be marked intake complete")
	}
	if user.StripeCustomerID != "cus_123" {
		t.Errorf("user customer id=%q, want=cus_123", user.StripeCustomerID)
	}

	msgs := sender.Messages()
	if len(msgs) != 1 {
		t.Fatalf("notification emails sent=%d, want=1", len(msgs))
	}
	if !strings.Contains(msgs[0].Subject, "New Purchase") {
		t.Errorf("notification subject=%q", msgs[0].Subject)
	}
}

func TestWebhookCheckoutCompletedAcceptsLegacyMetadataKey(t *testing.T) {
	st := newTestStore(t)
	handler := newTestHandler(t, st, &captureSender{})

	// Sessions created by the Node deployment carry the product key as
	// camelCase "productType".
	eventJSON := `{
		"id": "evt_legacy",
		"object": "event",
		"type": "checkout.session.completed",
		"data": {
			"object": {
				"id": "cs_legacy_1",
				"mode": "subscription",
				"customer": "cus_legacy",
				"amount_total": 17900,
				"currency": "usd",
				"customer_details": {"email": "legacy@example.com"},
				"metadata": {"productType": "level_2"}
			}
		}
	}`
	rec := deliver(t, handler, eventJSON)
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d, want=%d, body=%q", rec.Code, http.StatusOK, rec.Body.String())
	}

	order, err := st.GetOrderBySessionID("cs_legacy_1")
	if err != nil || order == nil {
		t.Fatalf("order missing: %v %v", order, err)
	}
	if order.ProductType != "level_2" {
		t.Errorf("order product=%q, want=level_2", order.ProductType)
	}
	user, err := st.GetUserByEmail("legacy@example.com")
	if err != nil || user == nil {
		t.Fatalf("user missing: %v %v", user, err)
	}
	if user.ProductType != "level_2" {
		t.Errorf("user product=%q, want=level_2", user.ProductType)
	}
}

func TestWebhookDuplicateCheckoutDeliveryIsIdempotent(t *testing.T) {
	st := newTestStore(t)
	handler := newTestHandler(t, st, &captureSender{})

	eventJSON := checkoutCompletedEvent("cs_test_dup", "pdf_5k", "dup@example.com", "", 2900)
	first := deliver(t, handler, eventJSON)
	if first.Code != http.StatusOK {
		t.Fatalf("first delivery status=%d, body=%q", first.Code, first.Body.String())
	}
	before, err := st.GetOrderBySessionID("cs_test_dup")
	if err != nil || before == nil {
		t.Fatalf("order after first delivery: %v %v", before, err)
	}

	second := deliver(t, handler, eventJSON)
	if second.Code != http.StatusOK {
		t.Fatalf("duplicate delivery status=%d, body=%q", second.Code, second.Body.String())
	}

	orders, err := st.ListOrders()
	if err != nil {
		t.Fatalf("ListOrders: %v", err)
	}
	if len(orders) != 1 {
		t.Fatalf("orders after duplicate=%d, want=1", len(orders))
	}
	if orders[0].ID != before.ID {
		t.Errorf("order id changed on replay: %q -> %q", before.ID, orders[0].ID)
	}
	if !orders[0].CreatedAt.Equal(before.CreatedAt) {
		t.Errorf("created_at changed on replay: %v -> %v", before.CreatedAt, orders[0].CreatedAt)
	}

	users, err := st.ListUsers()
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	if len(users) != 1 {
		t.Fatalf("users after duplicate=%d, want=1", len(users))
	}
}

func TestWebhookRejectsTamperedBody(t *testing.T) {
	st := newTestStore(t)
	handler := newTestHandler(t, st, &captureSender{})

	eventJSON := checkoutCompletedEvent("cs_test_tamper", "level_3", "victim@example.com", "", 27900)
	signed := stripewebhook.GenerateTestSignedPayload(&stripewebhook.UnsignedPayload{
		Payload:   []byte(eventJSON),
		Secret:    testWebhookSecret,
		Timestamp: time.Now(),
		Scheme:    "v1",
	})
	tampered := bytes.Replace(signed.Payload, []byte("victim@example.com"), []byte("mallory@example.com"), 1)

	req := httptest.NewRequest(http.MethodPost, "/api/stripe-webhook", bytes.NewReader(tampered))
	req.Header.Set("Stripe-Signature", signed.Header)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status=%d, want=%d", rec.Code, http.StatusBadRequest)
	}
	assertNoWrites(t, st)
}

func TestWebhookRejectsMissingSignature(t *testing.T) {
	st := newTestStore(t)
	handler := newTestHandler(t, st, &captureSender{})

	req := httptest.NewRequest(http.MethodPost, "/api/stripe-webhook", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status=%d, want=%d", rec.Code, http.StatusBadRequest)
	}
	assertNoWrites(t, st)
}

func TestWebhookUnknownEventAcknowledged(t *testing.T) {
	st := newTestStore(t)
	handler := newTestHandler(t, st, &captureSender{})

	eventJSON := `{"id":"evt_unknown","object":"event","type":"invoice.paid","data":{"object":{"id":"in_123"}}}`
	rec := deliver(t, handler, eventJSON)
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d, want=%d, body=%q", rec.Code, http.StatusOK, rec.Body.String())
	}
	assertNoWrites(t, st)
}

func TestWebhookMethodNotAllowed(t *testing.T) {
	handler := newTestHandler(t, newTestStore(t), &captureSender{})
	req := httptest.NewRequest(http.MethodGet, "/api/stripe-webhook", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status=%d, want=%d", rec.Code, http.StatusMethodNotAllowed)
	}
}

func TestWebhookWithoutSecretIsConfigurationError(t *testing.T) {
	st := newTestStore(t)
	handler := NewWebhookHandler("", newTestFulfiller(t, st, &captureSender{}))

	rec := deliver(t, handler, `{}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d, want=%d", rec.Code, http.StatusInternalServerError)
	}
	if !strings.Contains(rec.Body.String(), "configuration_error") {
		t.Errorf("body=%q, want configuration_error", rec.Body.String())
	}
}

func TestWebhookPersistenceFailureReturnsServerError(t *testing.T) {
	st := newTestStore(t)
	handler := newTestHandler(t, st, &captureSender{})

	// With the database gone the order cannot be recorded, so the event
	// must fail with a 5xx and leave Stripe to redeliver it.
	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	eventJSON := checkoutCompletedEvent("cs_test_down", "level_2", "down@example.com", "cus_down", 17900)
	rec := deliver(t, handler, eventJSON)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d, want=%d, body=%q", rec.Code, http.StatusInternalServerError, rec.Body.String())
	}
}

func TestWebhookEmailFailureDoesNotFailEvent(t *testing.T) {
	st := newTestStore(t)
	handler := newTestHandler(t, st, &failingSender{})

	eventJSON := checkoutCompletedEvent("cs_test_mail", "level_1", "mail@example.com", "", 9900)
	rec := deliver(t, handler, eventJSON)
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d, want=%d, body=%q", rec.Code, http.StatusOK, rec.Body.String())
	}
	order, err := st.GetOrderBySessionID("cs_test_mail")
	if err != nil || order == nil {
		t.Fatalf("order should persist despite email failure: %v %v", order, err)
	}
}

func TestWebhookSubscriptionUpdatedLinksOrders(t *testing.T) {
	st := newTestStore(t)
	handler := newTestHandler(t, st, &captureSender{})

	// A pending subscription checkout with no subscription ID yet.
	if _, err := st.UpsertOrderBySessionID(&store.Order{
		ProductType:      "level_2",
		Status:           store.OrderStatusPending,
		StripeSessionID:  "cs_test_sub",
		StripeCustomerID: "cus_sub_1",
		CustomerEmail:    "sub@example.com",
	}); err != nil {
		t.Fatalf("seed order: %v", err)
	}

	eventJSON := subscriptionEvent("customer.subscription.updated", "sub_789", "cus_sub_1", "active", "level_2")
	rec := deliver(t, handler, eventJSON)
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d, want=%d, body=%q", rec.Code, http.StatusOK, rec.Body.String())
	}

	order, err := st.GetOrderBySessionID("cs_test_sub")
	if err != nil {
		t.Fatalf("GetOrderBySessionID: %v", err)
	}
	if order.Status != store.OrderStatusCompleted {
		t.Errorf("order status=%q, want=%q", order.Status, store.OrderStatusCompleted)
	}
	if order.StripeSubscriptionID != "sub_789" {
		t.Errorf("order subscription id=%q, want=sub_789", order.StripeSubscriptionID)
	}
}

func TestWebhookSubscriptionUpdatedAcceptsLegacyMetadataKey(t *testing.T) {
	st := newTestStore(t)
	handler := newTestHandler(t, st, &captureSender{})

	if _, err := st.UpsertOrderBySessionID(&store.Order{
		ProductType:      "level_2",
		Status:           store.OrderStatusPending,
		StripeSessionID:  "cs_legacy_sub",
		StripeCustomerID: "cus_legacy_sub",
		CustomerEmail:    "legacysub@example.com",
	}); err != nil {
		t.Fatalf("seed order: %v", err)
	}

	eventJSON := `{
		"id": "evt_legacy_sub",
		"object": "event",
		"type": "customer.subscription.updated",
		"data": {
			"object": {
				"id": "sub_legacy_1",
				"customer": "cus_legacy_sub",
				"status": "active",
				"metadata": {"productType": "level_2"}
			}
		}
	}`
	rec := deliver(t, handler, eventJSON)
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d, want=%d, body=%q", rec.Code, http.StatusOK, rec.Body.String())
	}

	order, err := st.GetOrderBySessionID("cs_legacy_sub")
	if err != nil {
		t.Fatalf("GetOrderBySessionID: %v", err)
	}
	if order.StripeSubscriptionID != "sub_legacy_1" {
		t.Errorf("order subscription id=%q, want=sub_legacy_1", order.StripeSubscriptionID)
	}
	if order.Status != store.OrderStatusCompleted {
		t.Errorf("order status=%q, want=%q", order.Status, store.OrderStatusCompleted)
	}
}

func TestWebhookSubscriptionCreatedIsHandledLikeUpdated(t *testing.T) {
	st := newTestStore(t)
	handler := newTestHandler(t, st, &captureSender{})

	if _, err := st.UpsertOrderBySessionID(&store.Order{
		ProductType:      "level_1",
		Status:           store.OrderStatusPending,
		StripeSessionID:  "cs_test_created",
		StripeCustomerID: "cus_created_1",
		CustomerEmail:    "created@example.com",
	}); err != nil {
		t.Fatalf("seed order: %v", err)
	}

	eventJSON := subscriptionEvent("customer.subscription.created", "sub_created_1", "cus_created_1", "active", "level_1")
	rec := deliver(t, handler, eventJSON)
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d, body=%q", rec.Code, rec.Body.String())
	}

	order, err := st.GetOrderBySessionID("cs_test_created")
	if err != nil {
		t.Fatalf("GetOrderBySessionID: %v", err)
	}
	if order.StripeSubscriptionID != "sub_created_1" {
		t.Errorf("order subscription id=%q, want=sub_created_1", order.StripeSubscriptionID)
	}
}

func TestWebhookSubscriptionUpdatedWithNoMatchIsAcknowledged(t *testing.T) {
	st := newTestStore(t)
	handler := newTestHandler(t, st, &captureSender{})

	eventJSON := subscriptionEvent("customer.subscription.updated", "sub_none", "cus_ghost", "active", "level_3")
	rec := deliver(t, handler, eventJSON)
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d, want=%d, body=%q", rec.Code, http.StatusOK, rec.Body.String())
	}
}

func TestWebhookSubscriptionDeletedCancelsOrders(t *testing.T) {
	st := newTestStore(t)
	handler := newTestHandler(t, st, &captureSender{})

	if _, err := st.UpsertOrderBySessionID(&store.Order{
		ProductType:          "level_3",
		Status:               store.OrderStatusCompleted,
		StripeSessionID:      "cs_test_del",
		StripeCustomerID:     "cus_del_1",
		StripeSubscriptionID: "sub_del_1",
		CustomerEmail:        "del@example.com",
	}); err != nil {
		t.Fatalf("seed order: %v", err)
	}

	eventJSON := subscriptionEvent("customer.subscription.deleted", "sub_del_1", "cus_del_1", "canceled", "level_3")
	rec := deliver(t, handler, eventJSON)
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d, want=%d, body=%q", rec.Code, http.StatusOK, rec.Body.String())
	}

	order, err := st.GetOrderBySessionID("cs_test_del")
	if err != nil {
		t.Fatalf("GetOrderBySessionID: %v", err)
	}
	if order.Status != store.OrderStatusCancelled {
		t.Errorf("order status=%q, want=%q", order.Status, store.OrderStatusCancelled)
	}
}

func TestWebhookCheckoutWithoutEmailStillRecordsOrder(t *testing.T) {
	st := newTestStore(t)
	handler := newTestHandler(t, st, &captureSender{})

	eventJSON := checkoutCompletedEvent("cs_test_noemail", "level_1", "", "", 9900)
	rec := deliver(t, handler, eventJSON)
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d, want=%d, body=%q", rec.Code, http.StatusOK, rec.Body.String())
	}

	order, err := st.GetOrderBySessionID("cs_test_noemail")
	if err != nil || order == nil {
		t.Fatalf("order missing: %v %v", order, err)
	}
	users, err := st.ListUsers()
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	if len(users) != 0 {
		t.Errorf("users=%d, want=0 when no email is present", len(users))
	}
}

func TestEffectiveEmailPrefersPaymentDetails(t *testing.T) {
	s := CheckoutSession{CustomerEmail: "Created@Example.com"}
	if got := s.EffectiveEmail(); got != "created@example.com" {
		t.Errorf("EffectiveEmail=%q, want created@example.com", got)
	}
	s.CustomerDetails.Email = "Paid@Example.com"
	if got := s.EffectiveEmail(); got != "paid@example.com" {
		t.Errorf("EffectiveEmail=%q, want paid@example.com", got)
	}
}

func checkoutCompletedEvent(sessionID, productType, customerEmail, customerID string, amount int64) string {
	return fmt.Sprintf(`{
		"id": "evt_%s",
		"object": "event",
		"type": "checkout.session.completed",
		"data": {
			"object": {
				"id": %q,
				"mode": "payment",
				"customer": %q,
				"amount_total": %d,
				"currency": "usd",
				"customer_details": {"email": %q},
				"metadata": {"product_type": %q}
			}
		}
	}`, sessionID, sessionID, customerID, amount, customerEmail, productType)
}

func subscriptionEvent(eventType, subscriptionID, customerID, status, productType string) string {
	return fmt.Sprintf(`{
		"id": "evt_%s",
		"object": "event",
		"type": %q,
		"data": {
			"object": {
				"id": %q,
				"customer": %q,
				"status": %q,
				"metadata": {"product_type": %q}
			}
		}
	}`, subscriptionID, eventType, subscriptionID, customerID, status, productType)
}

func deliver(t *testing.T, handler *WebhookHandler, payload string) *httptest.ResponseRecorder {
	t.Helper()
	req := signedWebhookRequest(t, testWebhookSecret, payload)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func signedWebhookRequest(t *testing.T, secret, payload string) *http.Request {
	t.Helper()

	signed := stripewebhook.GenerateTestSignedPayload(&stripewebhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    secret,
		Timestamp: time.Now(),
		Scheme:    "v1",
	})

	req := httptest.NewRequest(http.MethodPost, "/api/stripe-webhook", bytes.NewReader(signed.Payload))
	req.Header.Set("Stripe-Signature", signed.Header)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func newTestHandler(t *testing.T, st *store.Store, sender email.Sender) *WebhookHandler {
	t.Helper()
	return NewWebhookHandler(testWebhookSecret, newTestFulfiller(t, st, sender))
}

func newTestFulfiller(t *testing.T, st *store.Store, sender email.Sender) *Fulfiller {
	t.Helper()
	cat, err := catalog.New(catalog.ModeTest)
	if err != nil {
		t.Fatalf("catalog.New: %v", err)
	}
	notifier := email.NewNotifier(sender, "noreply@example.com", "owner@example.com", cat.DisplayName)
	return NewFulfiller(st, cat, notifier)
}

func assertNoWrites(t *testing.T, st *store.Store) {
	t.Helper()
	orders, err := st.ListOrders()
	if err != nil {
		t.Fatalf("ListOrders: %v", err)
	}
	if len(orders) != 0 {
		t.Errorf("orders=%d, want=0", len(orders))
	}
	users, err := st.ListUsers()
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	if len(users) != 0 {
		t.Errorf("users=%d, want=0", len(users))
	}
}

type captureSender struct {
	mu   sync.Mutex
	msgs []email.Message
}

func (c *captureSender) Send(_ context.Context, msg email.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, msg)
	return nil
}

func (c *captureSender) Messages() []email.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]email.Message, len(c.msgs))
	copy(out, c.msgs)
	return out
}

type failingSender struct{}

func (failingSender) Send(_ context.Context, _ email.Message) error {
	return fmt.Errorf("smtp is down")
}
