// Package email sends transactional email for the coaching platform. The
// only outbound mail today is the owner purchase notification; it is always
// best-effort and must never fail the caller's request.
package email

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Notifier sends the owner a notification when a purchase completes.
type Notifier struct {
	sender      Sender
	from        string
	owner       string
	displayName func(productKey string) string
	now         func() time.Time
}

// NewNotifier creates a purchase notifier. displayName maps a product key to
// a human-readable name; it must handle unknown keys itself.
func NewNotifier(sender Sender, from, owner string, displayName func(string) string) *Notifier {
	return &Notifier{
		sender:      sender,
		from:        strings.TrimSpace(from),
		owner:       strings.TrimSpace(owner),
		displayName: displayName,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// NotifyPurchase sends the owner notification for one completed purchase.
// Configuration problems come back as ordinary errors; callers treat every
// error as log-only.
func (n *Notifier) NotifyPurchase(ctx context.Context, customerEmail, productKey string, amountMinorUnits int64) error {
	if n == nil || n.sender == nil {
		return fmt.Errorf("email sender not configured")
	}
	if n.owner == "" {
		return fmt.Errorf("owner notification address not configured")
	}
	if n.from == "" {
		return fmt.Errorf("sender address not configured")
	}

	productName := productKey
	if n.displayName != nil {
		productName = n.displayName(productKey)
	}
	amount := FormatAmount(amountMinorUnits)

	htmlBody, textBody, err := RenderPurchaseEmail(PurchaseData{
		ProductName:   productName,
		ProductKey:    productKey,
		CustomerEmail: customerEmail,
		AmountDollars: amount,
		Date:          formatDate(n.now()),
	})
	if err != nil {
		return fmt.Errorf("render purchase notification: %w", err)
	}

	if err := n.sender.Send(ctx, Message{
		From:    n.from,
		To:      n.owner,
		Subject: fmt.Sprintf("New Purchase: %s - $%s", productName, amount),
		HTML:    htmlBody,
		Text:    textBody,
	}); err != nil {
		return fmt.Errorf("send purchase notification: %w", err)
	}
	return nil
}
