// Package store persists orders, users, intakes, and contact messages in
// SQLite. Uniqueness constraints on orders.stripe_session_id and users.email
// are the concurrency guard for webhook redelivery: upserts are expressed as
// single INSERT ... ON CONFLICT statements, never read-then-branch-then-write.
package store

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Store provides CRUD operations for the coaching commerce records.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the store database in dir.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}

	dbPath := filepath.Join(dir, "coaching.db")
	dsn := dbPath + "?" + url.Values{
		"_pragma": []string{
			"busy_timeout(30000)",
			"journal_mode(WAL)",
			"synchronous(NORMAL)",
			"foreign_keys(ON)",
		},
	}.Encode()

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open store db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS orders (
		id                       TEXT PRIMARY KEY,
		product_type             TEXT NOT NULL DEFAULT '',
		status                   TEXT NOT NULL DEFAULT 'pending',
		stripe_session_id        TEXT NOT NULL UNIQUE,
		stripe_customer_id       TEXT NOT NULL DEFAULT '',
		stripe_subscription_id   TEXT NOT NULL DEFAULT '',
		stripe_payment_intent_id TEXT NOT NULL DEFAULT '',
		amount_total             INTEGER NOT NULL DEFAULT 0,
		currency                 TEXT NOT NULL DEFAULT '',
		customer_email           TEXT NOT NULL DEFAULT '',
		created_at               INTEGER NOT NULL,
		updated_at               INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_orders_customer_product ON orders(stripe_customer_id, product_type);
	CREATE INDEX IF NOT EXISTS idx_orders_subscription ON orders(stripe_subscription_id);

	CREATE TABLE IF NOT EXISTS users (
		id                 TEXT PRIMARY KEY,
		email              TEXT NOT NULL UNIQUE,
		product_type       TEXT NOT NULL DEFAULT '',
		stripe_customer_id TEXT NOT NULL DEFAULT '',
		intake_complete    INTEGER NOT NULL DEFAULT 0,
		created_at         INTEGER NOT NULL,
		updated_at         INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS intakes (
		id             TEXT PRIMARY KEY,
		user_id        TEXT NOT NULL REFERENCES users(id),
		experience     TEXT NOT NULL DEFAULT '{}',
		weekly_mileage TEXT NOT NULL DEFAULT '',
		goals          TEXT NOT NULL DEFAULT '{}',
		availability   TEXT NOT NULL DEFAULT '{}',
		injury_history TEXT NOT NULL DEFAULT '{}',
		current_issues TEXT NOT NULL DEFAULT '',
		created_at     INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_intakes_user ON intakes(user_id);

	CREATE TABLE IF NOT EXISTS contact_messages (
		id         TEXT PRIMARY KEY,
		name       TEXT NOT NULL DEFAULT '',
		email      TEXT NOT NULL DEFAULT '',
		message    TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("init store schema: %w", err)
	}
	return nil
}

// Ping checks database connectivity (used for readiness probes).
func (s *Store) Ping() error {
	return s.db.Ping()
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

const orderColumns = `id, product_type, status, stripe_session_id,
	stripe_customer_id, stripe_subscription_id, stripe_payment_intent_id,
	amount_total, currency, customer_email, created_at, updated_at`

// UpsertOrderBySessionID inserts the order, or updates the existing row with
// the same Stripe session ID. The conflict target is the UNIQUE constraint,
// so two concurrent deliveries of the same event cannot produce two rows.
// created_at of an existing row is preserved. Returns the stored row.
func (s *Store) UpsertOrderBySessionID(o *Order) (*Order, error) {
	if o == nil {
		return nil, fmt.Errorf("order is nil")
	}
	if o.StripeSessionID == "" {
		return nil, fmt.Errorf("order missing stripe session id")
	}
	if o.ID == "" {
		id, err := GenerateOrderID()
		if err != nil {
			return nil, err
		}
		o.ID = id
	}
	now := time.Now().UTC()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	o.UpdatedAt = now

	_, err := s.db.Exec(`
		INSERT INTO orders (`+orderColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(stripe_session_id) DO UPDATE SET
			product_type             = excluded.product_type,
			status                   = excluded.status,
			stripe_customer_id       = excluded.stripe_customer_id,
			stripe_subscription_id   = excluded.stripe_subscription_id,
			stripe_payment_intent_id = excluded.stripe_payment_intent_id,
			amount_total             = excluded.amount_total,
			currency                 = excluded.currency,
			customer_email           = excluded.customer_email,
			updated_at               = excluded.updated_at`,
		o.ID, o.ProductType, string(o.Status), o.StripeSessionID,
		o.StripeCustomerID, o.StripeSubscriptionID, o.StripePaymentIntentID,
		o.AmountTotal, o.Currency, o.CustomerEmail,
		o.CreatedAt.Unix(), o.UpdatedAt.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("upsert order: %w", err)
	}
	return s.GetOrderBySessionID(o.StripeSessionID)
}

// GetOrderBySessionID retrieves an order by Stripe checkout session ID.
// Returns (nil, nil) when no row exists.
func (s *Store) GetOrderBySessionID(sessionID string) (*Order, error) {
	row := s.db.QueryRow(`SELECT `+orderColumns+` FROM orders WHERE stripe_session_id = ?`, sessionID)
	return scanOrder(row)
}

// UpdateOrdersForSubscription sets the subscription ID and status on orders
// matching the customer ID + product key pair. The subscription ID may not
// yet be known to the order at creation, hence the customer+product lookup.
// Returns the number of rows updated.
func (s *Store) UpdateOrdersForSubscription(customerID, productType, subscriptionID string, status OrderStatus) (int64, error) {
	res, err := s.db.Exec(`
		UPDATE orders SET
			stripe_subscription_id = ?,
			status                 = ?,
			updated_at             = ?
		WHERE stripe_customer_id = ? AND product_type = ?`,
		subscriptionID, string(status), time.Now().UTC().Unix(),
		customerID, productType,
	)
	if err != nil {
		return 0, fmt.Errorf("update orders for subscription: %w", err)
	}
	affected, _ := res.RowsAffected()
	return affected, nil
}

// CancelOrdersBySubscriptionID marks orders carrying the subscription ID as
// cancelled. Returns the number of rows updated; zero is not an error.
func (s *Store) CancelOrdersBySubscriptionID(subscriptionID string) (int64, error) {
	res, err := s.db.Exec(`
		UPDATE orders SET
			status     = ?,
			updated_at = ?
		WHERE stripe_subscription_id = ?`,
		string(OrderStatusCancelled), time.Now().UTC().Unix(), subscriptionID,
	)
	if err != nil {
		return 0, fmt.Errorf("cancel orders by subscription: %w", err)
	}
	affected, _ := res.RowsAffected()
	return affected, nil
}

// ListOrders returns all orders, newest first.
func (s *Store) ListOrders() ([]*Order, error) {
	rows, err := s.db.Query(`SELECT ` + orderColumns + ` FROM orders ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()
	return scanOrders(rows)
}

const userColumns = `id, email, product_type, stripe_customer_id, intake_complete, created_at, updated_at`

// UpsertUserOnPurchase records a purchase against the user with the given
// email, inserting the user with intake_complete=false if absent. An empty
// customer ID never clobbers a stored one; intake_complete is untouched on
// update. The email is normalized before use. Returns the stored row.
func (s *Store) UpsertUserOnPurchase(email, productType, customerID string) (*User, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return nil, fmt.Errorf("user missing email")
	}
	id, err := GenerateUserID()
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC().Unix()

	_, err = s.db.Exec(`
		INSERT INTO users (`+userColumns+`)
		VALUES (?, ?, ?, ?, 0, ?, ?)
		ON CONFLICT(email) DO UPDATE SET
			product_type       = excluded.product_type,
			stripe_customer_id = CASE WHEN excluded.stripe_customer_id = ''
				THEN users.stripe_customer_id ELSE excluded.stripe_customer_id END,
			updated_at         = excluded.updated_at`,
		id, email, productType, customerID, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert user on purchase: %w", err)
	}
	return s.GetUserByEmail(email)
}

// UpsertUserOnIntake records an intake submission against the user with the
// given email, inserting with intake_complete=true if absent. An empty
// product key never clobbers a stored one. Returns the stored row.
func (s *Store) UpsertUserOnIntake(email, productType string) (*User, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return nil, fmt.Errorf("user missing email")
	}
	id, err := GenerateUserID()
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC().Unix()

	_, err = s.db.Exec(`
		INSERT INTO users (`+userColumns+`)
		VALUES (?, ?, ?, '', 1, ?, ?)
		ON CONFLICT(email) DO UPDATE SET
			product_type    = CASE WHEN excluded.product_type = ''
				THEN users.product_type ELSE excluded.product_type END,
			intake_complete = 1,
			updated_at      = excluded.updated_at`,
		id, email, productType, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert user on intake: %w", err)
	}
	return s.GetUserByEmail(email)
}

// GetUserByEmail retrieves a user by normalized email. Returns (nil, nil)
// when no row exists.
func (s *Store) GetUserByEmail(email string) (*User, error) {
	row := s.db.QueryRow(`SELECT `+userColumns+` FROM users WHERE email = ?`, NormalizeEmail(email))
	return scanUser(row)
}

// ListUsers returns all users, newest first.
func (s *Store) ListUsers() ([]*User, error) {
	rows, err := s.db.Query(`SELECT ` + userColumns + ` FROM users ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()
	return scanUsers(rows)
}

// InsertIntake appends an intake record. Intakes are never updated or merged;
// each submission is a new row.
func (s *Store) InsertIntake(in *Intake) error {
	if in == nil {
		return fmt.Errorf("intake is nil")
	}
	if in.UserID == "" {
		return fmt.Errorf("intake missing user id")
	}
	if in.ID == "" {
		id, err := GenerateIntakeID()
		if err != nil {
			return err
		}
		in.ID = id
	}
	if in.CreatedAt.IsZero() {
		in.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.Exec(`
		INSERT INTO intakes (
			id, user_id, experience, weekly_mileage, goals,
			availability, injury_history, current_issues, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		in.ID, in.UserID, in.Experience, in.WeeklyMileage, in.Goals,
		in.Availability, in.InjuryHistory, in.CurrentIssues, in.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert intake: %w", err)
	}
	return nil
}

// ListIntakesByUserID returns a user's intake submissions, newest first.
func (s *Store) ListIntakesByUserID(userID string) ([]*Intake, error) {
	rows, err := s.db.Query(`SELECT
		id, user_id, experience, weekly_mileage, goals,
		availability, injury_history, current_issues, created_at
		FROM intakes WHERE user_id = ? ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list intakes: %w", err)
	}
	defer rows.Close()

	var intakes []*Intake
	for rows.Next() {
		var in Intake
		var createdAt int64
		if err := rows.Scan(
			&in.ID, &in.UserID, &in.Experience, &in.WeeklyMileage, &in.Goals,
			&in.Availability, &in.InjuryHistory, &in.CurrentIssues, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan intake: %w", err)
		}
		in.CreatedAt = time.Unix(createdAt, 0).UTC()
		intakes = append(intakes, &in)
	}
	return intakes, rows.Err()
}

// InsertContactMessage appends a contact-form submission.
func (s *Store) InsertContactMessage(m *ContactMessage) error {
	if m == nil {
		return fmt.Errorf("contact message is nil")
	}
	if m.ID == "" {
		id, err := GenerateMessageID()
		if err != nil {
			return err
		}
		m.ID = id
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.Exec(`
		INSERT INTO contact_messages (id, name, email, message, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		m.ID, m.Name, m.Email, m.Message, m.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert contact message: %w", err)
	}
	return nil
}

// ListContactMessages returns all contact messages, newest first.
func (s *Store) ListContactMessages() ([]*ContactMessage, error) {
	rows, err := s.db.Query(`SELECT id, name, email, message, created_at
		FROM contact_messages ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list contact messages: %w", err)
	}
	defer rows.Close()

	var messages []*ContactMessage
	for rows.Next() {
		var m ContactMessage
		var createdAt int64
		if err := rows.Scan(&m.ID, &m.Name, &m.Email, &m.Message, &createdAt); err != nil {
			return nil, fmt.Errorf("scan contact message: %w", err)
		}
		m.CreatedAt = time.Unix(createdAt, 0).UTC()
		messages = append(messages, &m)
	}
	return messages, rows.Err()
}

// scanner is an interface satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanOrder(s scanner) (*Order, error) {
	var o Order
	var status string
	var createdAt, updatedAt int64

	err := s.Scan(
		&o.ID, &o.ProductType, &status, &o.StripeSessionID,
		&o.StripeCustomerID, &o.StripeSubscriptionID, &o.StripePaymentIntentID,
		&o.AmountTotal, &o.Currency, &o.CustomerEmail,
		&createdAt, &updatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan order: %w", err)
	}

	o.Status = OrderStatus(status)
	o.CreatedAt = time.Unix(createdAt, 0).UTC()
	o.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &o, nil
}

func scanOrders(rows *sql.Rows) ([]*Order, error) {
	var orders []*Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

func scanUser(s scanner) (*User, error) {
	var u User
	var intakeComplete int
	var createdAt, updatedAt int64

	err := s.Scan(
		&u.ID, &u.Email, &u.ProductType, &u.StripeCustomerID,
		&intakeComplete, &createdAt, &updatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}

	u.IntakeComplete = intakeComplete != 0
	u.CreatedAt = time.Unix(createdAt, 0).UTC()
	u.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &u, nil
}

func scanUsers(rows *sql.Rows) ([]*User, error) {
	var users []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}
