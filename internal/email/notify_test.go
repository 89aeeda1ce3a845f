package email

import (
	"context"
	"strings"
	"testing"
)

type captureSender struct {
	sent []Message
	err  error
}

func (c *captureSender) Send(_ context.Context, msg Message) error {
	if c.err != nil {
		return c.err
	}
	c.sent = append(c.sent, msg)
	return nil
}

func TestNotifyPurchase(t *testing.T) {
	sender := &captureSender{}
	n := NewNotifier(sender, "noreply@myersendurance.com", "coach@myersendurance.com", func(key string) string {
		if key == "level_2" {
			return "Silver - Premium Coaching"
		}
		return key
	})

	err := n.NotifyPurchase(context.Background(), "runner@example.com", "level_2", 17900)
	if err != nil {
		t.Fatalf("NotifyPurchase: %v", err)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("expected 1 message, got %d", len(sender.sent))
	}

	msg := sender.sent[0]
	if msg.To != "coach@myersendurance.com" {
		t.Errorf("to = %s", msg.To)
	}
	if msg.Subject != "New Purchase: Silver - Premium Coaching - $179.00" {
		t.Errorf("subject = %s", msg.Subject)
	}
	if !strings.Contains(msg.HTML, "runner@example.com") {
		t.Error("HTML body missing customer email")
	}
	if !strings.Contains(msg.Text, "$179.00") {
		t.Error("text body missing amount")
	}
	if !strings.Contains(msg.Text, "level_2") {
		t.Error("text body missing raw product key")
	}
}

func TestNotifyPurchaseMissingOwner(t *testing.T) {
	n := NewNotifier(&captureSender{}, "noreply@myersendurance.com", "", nil)
	if err := n.NotifyPurchase(context.Background(), "a@b.com", "pdf_5k", 2900); err == nil {
		t.Fatal("expected configuration error")
	}
}

func TestNotifyPurchaseMissingSender(t *testing.T) {
	n := NewNotifier(nil, "noreply@myersendurance.com", "coach@myersendurance.com", nil)
	if err := n.NotifyPurchase(context.Background(), "a@b.com", "pdf_5k", 2900); err == nil {
		t.Fatal("expected configuration error")
	}
}

func TestFormatAmount(t *testing.T) {
	cases := map[int64]string{
		0:     "0.00",
		5:     "0.05",
		2900:  "29.00",
		17900: "179.00",
		10001: "100.01",
	}
	for in, want := range cases {
		if got := FormatAmount(in); got != want {
			t.Errorf("FormatAmount(%d) = %s, want %s", in, got, want)
		}
	}
}
