package email

import (
	"bytes"
	"fmt"
	"html/template"
	"time"
)

var purchaseTemplate = template.Must(template.New("purchase_notification").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>New Purchase</title>
</head>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px;">
<div style="background-color: #f8f9fa; border-radius: 8px; padding: 24px; margin-bottom: 24px;">
<h1 style="color: #1976d2; margin: 0 0 16px 0; font-size: 24px;">New Purchase Notification</h1>
</div>
<div style="background-color: white; border: 1px solid #e0e0e0; border-radius: 8px; padding: 24px; margin-bottom: 24px;">
<h2 style="color: #333; margin: 0 0 16px 0; font-size: 18px;">Purchase Details</h2>
<table style="width: 100%; border-collapse: collapse;">
<tr><td style="padding: 8px 0; font-weight: 600; color: #666;">Product:</td><td style="padding: 8px 0; color: #333;">{{.ProductName}}</td></tr>
<tr><td style="padding: 8px 0; font-weight: 600; color: #666;">Amount:</td><td style="padding: 8px 0; color: #2e7d32; font-size: 18px; font-weight: 600;">${{.AmountDollars}}</td></tr>
<tr><td style="padding: 8px 0; font-weight: 600; color: #666;">Customer Email:</td><td style="padding: 8px 0; color: #333;">{{.CustomerEmail}}</td></tr>
<tr><td style="padding: 8px 0; font-weight: 600; color: #666;">Product Key:</td><td style="padding: 8px 0; color: #666; font-family: monospace; font-size: 12px;">{{.ProductKey}}</td></tr>
<tr><td style="padding: 8px 0; font-weight: 600; color: #666;">Date:</td><td style="padding: 8px 0; color: #333;">{{.Date}}</td></tr>
</table>
</div>
<div style="background-color: #fff3cd; border: 1px solid #ffc107; border-radius: 8px; padding: 16px; margin-bottom: 24px;">
<p style="margin: 0; color: #856404; font-weight: 600;">Next Steps:</p>
<ul style="margin: 8px 0 0 0; padding-left: 20px; color: #856404;">
<li>Check the Stripe dashboard for payment details</li>
<li>Review the customer intake submission</li>
<li>Reach out to the customer to schedule onboarding</li>
</ul>
</div>
<div style="text-align: center; padding-top: 16px; border-top: 1px solid #e0e0e0;">
<p style="color: #666; font-size: 14px; margin: 0;">Myers Endurance Coaching</p>
<p style="color: #999; font-size: 12px; margin: 8px 0 0 0;">This is an automated notification from your coaching platform.</p>
</div>
</body>
</html>`))

// PurchaseData holds template data for the owner purchase notification.
type PurchaseData struct {
	ProductName   string
	ProductKey    string
	CustomerEmail string
	AmountDollars string
	Date          string
}

// RenderPurchaseEmail renders the owner purchase notification.
func RenderPurchaseEmail(data PurchaseData) (html, text string, err error) {
	var buf bytes.Buffer
	if err := purchaseTemplate.Execute(&buf, data); err != nil {
		return "", "", fmt.Errorf("render purchase template: %w", err)
	}

	textBody := fmt.Sprintf(`New Purchase Notification

Purchase Details:
- Product: %s
- Amount: $%s
- Customer Email: %s
- Product Key: %s
- Date: %s

Next Steps:
- Check the Stripe dashboard for payment details
- Review the customer intake submission
- Reach out to the customer to schedule onboarding

---
Myers Endurance Coaching
This is an automated notification from your coaching platform.`,
		data.ProductName, data.AmountDollars, data.CustomerEmail, data.ProductKey, data.Date)

	return buf.String(), textBody, nil
}

// FormatAmount renders minor units as a dollar string ("17900" -> "179.00").
func FormatAmount(minorUnits int64) string {
	return fmt.Sprintf("%d.%02d", minorUnits/100, minorUnits%100)
}

func formatDate(t time.Time) string {
	return t.UTC().Format("Monday, January 2, 2006 3:04 PM MST")
}
