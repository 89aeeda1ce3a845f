// Package catalog holds the static product catalog for the coaching site and
// the validation rules for raw product keys coming off the wire.
package catalog

import (
	"fmt"
	"strings"
)

// BillingMode describes how a product is billed.
type BillingMode string

const (
	BillingOneTime   BillingMode = "one_time"
	BillingRecurring BillingMode = "recurring"
)

// IntakeKind describes which intake questionnaire a product requires.
type IntakeKind string

const (
	IntakeFull  IntakeKind = "full"
	IntakeAddon IntakeKind = "addon"
)

// Product is one purchasable item. Immutable once the catalog is built.
type Product struct {
	Key          string
	Name         string
	Description  string
	PriceDisplay string
	BillingMode  BillingMode
	PriceID      string
	IntakeKind   IntakeKind
}

// Mode selects which Stripe price-ID set the catalog carries.
type Mode string

const (
	ModeLive Mode = "live"
	ModeTest Mode = "test"
	// ModeAuto resolves to live or test from the Stripe secret key prefix.
	ModeAuto Mode = "auto"
)

// ParseMode validates a catalog mode string. Empty means auto.
func ParseMode(raw string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(raw))) {
	case "", ModeAuto:
		return ModeAuto, nil
	case ModeLive:
		return ModeLive, nil
	case ModeTest:
		return ModeTest, nil
	default:
		return "", fmt.Errorf("invalid catalog mode %q (want live, test, or auto)", raw)
	}
}

// ResolveMode turns ModeAuto into a concrete mode using the Stripe secret key
// prefix. Live and test pass through unchanged.
func ResolveMode(mode Mode, stripeSecretKey string) Mode {
	if mode != ModeAuto {
		return mode
	}
	if strings.HasPrefix(strings.TrimSpace(stripeSecretKey), "sk_test_") {
		return ModeTest
	}
	return ModeLive
}

var livePrices = map[string]string{
	"level_1":             "price_1Sn14bE7DJ6MCdebeEctjoMC",
	"level_2":             "price_1Sn15zE7DJ6MCdebmYntiIuy",
	"level_3":             "price_1Sn16LE7DJ6MCdebeahobebl",
	"strength_addon":      "price_1Sn18dE7DJ6MCdeb1pJJCrOM",
	"race_strategy_addon": "price_1Sn19AE7DJ6MCdebO7yEEHfQ",
	"pdf_5k":              "price_1Sn0ezE7DJ6MCdebdkYAYQLa",
	"pdf_10k":             "price_1Sn11xE7DJ6MCdeb8bIQy2Cu",
	"pdf_half":            "price_1Sn12sE7DJ6MCdebke0eRxFQ",
	"pdf_marathon":        "price_1Sn13WE7DJ6MCdebBoSJvbY0",
}

var testPrices = map[string]string{
	"level_1":             "price_TEST_level1",
	"level_2":             "price_TEST_level2",
	"level_3":             "price_TEST_level3",
	"strength_addon":      "price_TEST_strength",
	"race_strategy_addon": "price_TEST_race_strategy",
	"pdf_5k":              "price_TEST_pdf_5k",
	"pdf_10k":             "price_TEST_pdf_10k",
	"pdf_half":            "price_TEST_pdf_half",
	"pdf_marathon":        "price_TEST_pdf_marathon",
}

// aliases maps legacy product key spellings onto canonical keys. Every alias
// resolves to exactly one canonical key; keys not present pass through as-is.
var aliases = map[string]string{
	"pdf-5k":              "pdf_5k",
	"pdf-10k":             "pdf_10k",
	"pdf-half":            "pdf_half",
	"pdf-marathon":        "pdf_marathon",
	"level1":              "level_1",
	"level2":              "level_2",
	"level3":              "level_3",
	"addon-strength":      "strength_addon",
	"addon-race-strategy": "race_strategy_addon",
}

// Catalog is the full product set for one deployment, with price IDs resolved
// for a single mode at construction time.
type Catalog struct {
	mode     Mode
	products map[string]Product
}

// New builds the catalog for the given concrete mode. Passing ModeAuto is a
// caller bug; resolve it first with ResolveMode.
func New(mode Mode) (*Catalog, error) {
	prices := livePrices
	switch mode {
	case ModeLive:
	case ModeTest:
		prices = testPrices
	default:
		return nil, fmt.Errorf("catalog mode %q is not concrete", mode)
	}

	base := []Product{
		{
			Key:          "level_1",
			Name:         "Bronze - Essential Coaching",
			Description:  "Essential coaching with customized training plan, monthly plan updates, and email support.",
			PriceDisplay: "$99/month",
			BillingMode:  BillingRecurring,
			IntakeKind:   IntakeFull,
		},
		{
			Key:          "level_2",
			Name:         "Silver - Premium Coaching",
			Description:  "Premium coaching with everything in Bronze, plus bi-weekly plan adjustments, weekly phone check-ins, and form analysis & feedback.",
			PriceDisplay: "$179/month",
			BillingMode:  BillingRecurring,
			IntakeKind:   IntakeFull,
		},
		{
			Key:          "level_3",
			Name:         "Gold - Elite Virtual 1-on-1 Coaching",
			Description:  "Elite virtual 1-on-1 coaching with everything in Silver, plus weekly 1-on-1 video calls, real-time plan adjustments, priority support, and nutrition & recovery guidance.",
			PriceDisplay: "$299/month",
			BillingMode:  BillingRecurring,
			IntakeKind:   IntakeFull,
		},
		{
			Key:          "strength_addon",
			Name:         "Strength Training Program",
			Description:  "Comprehensive strength training program designed specifically for runners. Includes exercises, progressions, and mobility work to improve power, prevent injury, and enhance running performance.",
			PriceDisplay: "$49/month",
			BillingMode:  BillingRecurring,
			IntakeKind:   IntakeAddon,
		},
		{
			Key:          "race_strategy_addon",
			Name:         "Race Strategy Consultation",
			Description:  "One-on-one race strategy session to develop a personalized race plan. Includes pacing strategy, nutrition plan, mental preparation, and course-specific tactics for your target race.",
			PriceDisplay: "$99/session",
			BillingMode:  BillingOneTime,
			IntakeKind:   IntakeAddon,
		},
		{
			Key:          "pdf_5k",
			Name:         "5K Training Plan",
			Description:  "12-week structured training plan for beginner to intermediate runners. Self-paced downloadable PDF plan you can follow at your own pace.",
			PriceDisplay: "$29",
			BillingMode:  BillingOneTime,
			IntakeKind:   IntakeFull,
		},
		{
			Key:          "pdf_10k",
			Name:         "10K Training Plan",
			Description:  "12-week structured training plan for beginner to intermediate runners. Self-paced downloadable PDF plan you can follow at your own pace.",
			PriceDisplay: "$35",
			BillingMode:  BillingOneTime,
			IntakeKind:   IntakeFull,
		},
		{
			Key:          "pdf_half",
			Name:         "Half Marathon Plan",
			Description:  "16-week structured training plan for intermediate to advanced runners. Self-paced downloadable PDF plan you can follow at your own pace.",
			PriceDisplay: "$49",
			BillingMode:  BillingOneTime,
			IntakeKind:   IntakeFull,
		},
		{
			Key:          "pdf_marathon",
			Name:         "Marathon Plan",
			Description:  "20-week structured training plan for intermediate to advanced runners. Self-paced downloadable PDF plan you can follow at your own pace.",
			PriceDisplay: "$69",
			BillingMode:  BillingOneTime,
			IntakeKind:   IntakeFull,
		},
	}

	products := make(map[string]Product, len(base))
	for _, p := range base {
		p.PriceID = prices[p.Key]
		products[p.Key] = p
	}
	return &Catalog{mode: mode, products: products}, nil
}

// Mode returns the concrete mode the catalog was built with.
func (c *Catalog) Mode() Mode {
	return c.mode
}

// Normalize maps a legacy product key spelling onto its canonical key.
// Unknown keys pass through unchanged; empty input yields empty output.
func Normalize(raw string) string {
	key := strings.TrimSpace(raw)
	if key == "" {
		return ""
	}
	if canonical, ok := aliases[key]; ok {
		return canonical
	}
	return key
}

// Get returns the product for a canonical key.
func (c *Catalog) Get(key string) (Product, bool) {
	p, ok := c.products[key]
	return p, ok
}

// Keys returns all canonical product keys.
func (c *Catalog) Keys() []string {
	keys := make([]string, 0, len(c.products))
	for k := range c.products {
		keys = append(keys, k)
	}
	return keys
}

// DisplayName returns a human-readable name for a product key. Unknown keys
// fall back to the raw key with separators replaced and uppercased.
func (c *Catalog) DisplayName(key string) string {
	if p, ok := c.products[Normalize(key)]; ok {
		return p.Name
	}
	return Humanize(key)
}

// Humanize renders a raw product key readable: separators become spaces and
// the result is uppercased ("pdf_5k" -> "PDF 5K").
func Humanize(key string) string {
	replaced := strings.NewReplacer("_", " ", "-", " ").Replace(strings.TrimSpace(key))
	return strings.ToUpper(replaced)
}
