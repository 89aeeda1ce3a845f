package store

import (
	"crypto/rand"
	"fmt"
	"strings"
	"time"
)

// OrderStatus is the lifecycle status of an order.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Order represents one purchase attempt/outcome, keyed externally by the
// Stripe checkout session ID. At most one row per session ID.
type Order struct {
	ID                    string      `json:"id"`
	ProductType           string      `json:"product_type"`
	Status                OrderStatus `json:"status"`
	StripeSessionID       string      `json:"stripe_session_id"`
	StripeCustomerID      string      `json:"stripe_customer_id"`
	StripeSubscriptionID  string      `json:"stripe_subscription_id"`
	StripePaymentIntentID string      `json:"stripe_payment_intent_id"`
	AmountTotal           int64       `json:"amount_total"` // minor units
	Currency              string      `json:"currency"`
	CustomerEmail         string      `json:"customer_email"`
	CreatedAt             time.Time   `json:"created_at"`
	UpdatedAt             time.Time   `json:"updated_at"`
}

// User represents a customer or lead, keyed naturally by normalized email.
// At most one row per email.
type User struct {
	ID               string    `json:"id"`
	Email            string    `json:"email"`
	ProductType      string    `json:"product_type"`
	StripeCustomerID string    `json:"stripe_customer_id"`
	IntakeComplete   bool      `json:"intake_complete"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Intake is one questionnaire submission linked to a user. Append-only; a
// user may submit more than once.
type Intake struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	Experience    string    `json:"experience"` // JSON blob
	WeeklyMileage string    `json:"weekly_mileage"`
	Goals         string    `json:"goals"`          // JSON blob
	Availability  string    `json:"availability"`   // JSON blob
	InjuryHistory string    `json:"injury_history"` // JSON blob
	CurrentIssues string    `json:"current_issues"`
	CreatedAt     time.Time `json:"created_at"`
}

// ContactMessage is one contact-form submission. Append-only, unrelated to User.
type ContactMessage struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// NormalizeEmail lowercases and trims an email for use as a natural key.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// crockfordBase32 is the Crockford base32 alphabet (excludes I, L, O, U).
const crockfordBase32 = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

func generateID(prefix string) (string, error) {
	b := make([]byte, 10)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate id: %w", err)
	}
	var sb strings.Builder
	sb.WriteString(prefix)
	for _, v := range b {
		sb.WriteByte(crockfordBase32[int(v)%len(crockfordBase32)])
	}
	return sb.String(), nil
}

// GenerateOrderID returns an order ID of the form "ord_" followed by 10
// random Crockford base32 characters (50 bits of entropy).
func GenerateOrderID() (string, error) { return generateID("ord_") }

// GenerateUserID returns a user ID of the form "usr_" followed by 10 random
// Crockford base32 characters.
func GenerateUserID() (string, error) { return generateID("usr_") }

// GenerateIntakeID returns an intake ID of the form "int_" followed by 10
// random Crockford base32 characters.
func GenerateIntakeID() (string, error) { return generateID("int_") }

// GenerateMessageID returns a contact message ID of the form "msg_" followed
// by 10 random Crockford base32 characters.
func GenerateMessageID() (string, error) { return generateID("msg_") }
