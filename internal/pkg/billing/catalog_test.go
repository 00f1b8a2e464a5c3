package billing

import (
	"testing"
	"time"

	"github.com/ManuelReschke/CreditFox/app/models"
	"github.com/ManuelReschke/CreditFox/app/repository"
)

func testCatalog() *Catalog {
	return &Catalog{
		MonthlyPriceID:             "price_monthly",
		YearlyPriceID:              "price_yearly",
		LifetimePriceID:            "price_lifetime",
		CreditPackages:             map[string]int64{"price_pack_s": 100, "price_pack_m": 500},
		FreeMonthlyCredits:         50,
		SubscriptionMonthlyCredits: 500,
		LifetimeMonthlyCredits:     500,
		GrantExpireDays:            45,
	}
}

func TestParsePackages(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want map[string]int64
	}{
		{
			name: "valid pairs",
			raw:  "price_pack_s:100,price_pack_m:500",
			want: map[string]int64{"price_pack_s": 100, "price_pack_m": 500},
		},
		{
			name: "whitespace tolerated",
			raw:  " price_pack_s : 100 , price_pack_m : 500 ",
			want: map[string]int64{"price_pack_s": 100, "price_pack_m": 500},
		},
		{
			name: "malformed entries skipped",
			raw:  "price_pack_s:100,broken,:5,price_bad:abc,price_zero:0,price_neg:-3",
			want: map[string]int64{"price_pack_s": 100},
		},
		{
			name: "empty",
			raw:  "",
			want: map[string]int64{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parsePackages(tt.raw)
			if len(got) != len(tt.want) {
				t.Fatalf("parsePackages(%q) = %v, want %v", tt.raw, got, tt.want)
			}
			for ref, credits := range tt.want {
				if got[ref] != credits {
					t.Fatalf("parsePackages(%q)[%s] = %d, want %d", tt.raw, ref, got[ref], credits)
				}
			}
		})
	}
}

func TestNewCatalogFromEnv(t *testing.T) {
	t.Setenv("BILLING_PRICE_LIFETIME", "price_lt_custom")
	t.Setenv("BILLING_CREDIT_PACKAGES", "price_xl:2500")
	t.Setenv("CREDITS_FREE_MONTHLY", "75")
	t.Setenv("CREDITS_GRANT_EXPIRE_DAYS", "30")

	c := NewCatalogFromEnv()
	if c.LifetimePriceID != "price_lt_custom" {
		t.Fatalf("lifetime price = %q", c.LifetimePriceID)
	}
	if credits, ok := c.PackageCredits("price_xl"); !ok || credits != 2500 {
		t.Fatalf("package credits = %d %v", credits, ok)
	}
	if c.FreeMonthlyCredits != 75 || c.GrantExpireDays != 30 {
		t.Fatalf("free = %d expire = %d", c.FreeMonthlyCredits, c.GrantExpireDays)
	}
	// Unset keys keep their defaults.
	if c.SubscriptionMonthlyCredits != 500 {
		t.Fatalf("subscription credits = %d, want default 500", c.SubscriptionMonthlyCredits)
	}
}

func TestPlanForPrice(t *testing.T) {
	c := testCatalog()
	tests := []struct {
		priceID string
		want    string
	}{
		{"price_monthly", PlanMonthly},
		{"price_yearly", PlanYearly},
		{"price_lifetime", PlanLifetime},
		{"price_unknown", PlanFree},
		{"", PlanFree},
	}
	for _, tt := range tests {
		if got := c.PlanForPrice(tt.priceID); got != tt.want {
			t.Fatalf("PlanForPrice(%q) = %q, want %q", tt.priceID, got, tt.want)
		}
	}
}

func TestPriceClassification(t *testing.T) {
	c := testCatalog()

	if !c.IsLifetimePrice("price_lifetime") || c.IsLifetimePrice("price_monthly") {
		t.Fatal("lifetime classification wrong")
	}
	// An empty configured lifetime price must never match empty input.
	empty := testCatalog()
	empty.LifetimePriceID = ""
	if empty.IsLifetimePrice("") {
		t.Fatal("empty price ref classified as lifetime")
	}

	if !c.IsSubscriptionPrice("price_monthly") || !c.IsSubscriptionPrice("price_yearly") {
		t.Fatal("subscription classification wrong")
	}
	if c.IsSubscriptionPrice("price_lifetime") || c.IsSubscriptionPrice("price_unknown") {
		t.Fatal("non-recurring price classified as subscription")
	}

	if credits, ok := c.PackageCredits("price_pack_m"); !ok || credits != 500 {
		t.Fatalf("PackageCredits = %d %v", credits, ok)
	}
	if _, ok := c.PackageCredits("price_monthly"); ok {
		t.Fatal("subscription price classified as package")
	}
}

func TestPlanGrantsCohorts(t *testing.T) {
	s := NewService(nil, testCatalog())
	ref := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	wantPeriod := models.PeriodKeyFor(ref)

	tests := []struct {
		name       string
		row        repository.UserBillingRow
		wantType   string
		wantAmount int64
		wantNone   bool
	}{
		{
			name:       "free user gets monthly refresh",
			row:        repository.UserBillingRow{UserID: 1},
			wantType:   models.CreditTypeMonthlyRefresh,
			wantAmount: 50,
		},
		{
			name:       "lifetime owner gets plan credits",
			row:        repository.UserBillingRow{UserID: 2, PriceID: "price_lifetime"},
			wantType:   models.CreditTypeLifetimeMonthly,
			wantAmount: 500,
		},
		{
			name:       "yearly subscriber gets monthly share",
			row:        repository.UserBillingRow{UserID: 3, PriceID: "price_yearly"},
			wantType:   models.CreditTypeSubscriptionRenewal,
			wantAmount: 500,
		},
		{
			name:       "package buyer stays on the free refresh",
			row:        repository.UserBillingRow{UserID: 5, PriceID: "price_pack_m"},
			wantType:   models.CreditTypeMonthlyRefresh,
			wantAmount: 50,
		},
		{
			name:     "monthly subscriber is renewal-webhook driven",
			row:      repository.UserBillingRow{UserID: 4, PriceID: "price_monthly"},
			wantNone: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			commands := s.PlanGrants(tt.row, ref)
			if tt.wantNone {
				if len(commands) != 0 {
					t.Fatalf("PlanGrants = %+v, want none", commands)
				}
				return
			}
			if len(commands) != 1 {
				t.Fatalf("PlanGrants = %+v, want one command", commands)
			}
			cmd := commands[0]
			if cmd.UserID != tt.row.UserID || cmd.Type != tt.wantType || cmd.Amount != tt.wantAmount {
				t.Fatalf("command = %+v", cmd)
			}
			if cmd.PeriodKey != wantPeriod || cmd.ExpireDays != 45 {
				t.Fatalf("command scoping = %+v, want period %d expire 45", cmd, wantPeriod)
			}
		})
	}
}
