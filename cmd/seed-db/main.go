// Command seed-db loads a demo set of discounts and codes.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/discount-engine/internal/domain/discount"
	"github.com/xenking/discount-engine/internal/storage/postgres"
)

type seedCode struct {
	discountID string
	code       string
	maxUses    *int
}

func main() {
	var databaseURL string
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.Parse()

	lg, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		lg.Error("Database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, databaseURL); err != nil {
		lg.Error("Seed failed", zap.Error(err))
		os.Exit(1)
	}
	lg.Info("Seed completed")
}

func run(ctx context.Context, lg *zap.Logger, databaseURL string) error {
	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	discounts := postgres.NewDiscountRepository(pool)
	for _, d := range demoDiscounts() {
		if err := discounts.Upsert(ctx, &d); err != nil {
			return errors.Wrapf(err, "upsert discount %s", d.ID)
		}
		lg.Info("Upserted discount", zap.String("id", d.ID), zap.String("name", d.Name))
	}

	codes := postgres.NewCodeRepository(pool)
	for _, c := range demoCodes() {
		n, err := codes.InsertCodes(ctx, c.discountID, []discount.Code{{Code: c.code, MaxUses: c.maxUses}})
		if err != nil {
			return errors.Wrapf(err, "insert code %s", c.code)
		}
		lg.Info("Seeded code", zap.String("code", c.code), zap.Bool("inserted", n == 1))
	}
	return nil
}

func demoDiscounts() []discount.Discount {
	return []discount.Discount{
		{
			ID:             "summer-sale",
			Name:           "Summer sale: 10% off everything",
			Type:           discount.TypePercentage,
			Value:          decimal.NewFromInt(10),
			Status:         discount.StatusActive,
			StackingPolicy: discount.PolicyStack,
			Priority:       10,
			ApplyTo:        discount.ScopeCart,
			Eligibility:    discount.EligibilityAll,
		},
		{
			ID:             "shoes-weekend",
			Name:           "Weekend shoes: 15% off",
			Type:           discount.TypePercentage,
			Value:          decimal.NewFromInt(15),
			Status:         discount.StatusActive,
			StackingPolicy: discount.PolicyHighestOnly,
			Priority:       5,
			ApplyTo:        discount.ScopeCategory,
			Targets:        []string{"shoes"},
			Eligibility:    discount.EligibilityAll,
			WeekdayMask:    1<<0 | 1<<6,
		},
		{
			ID:             "free-shipping-50",
			Name:           "Free shipping over 50",
			Type:           discount.TypeFixed,
			Value:          decimal.Zero,
			Status:         discount.StatusActive,
			StackingPolicy: discount.PolicyStack,
			FreeShipping:   true,
			Priority:       20,
			ApplyTo:        discount.ScopeCart,
			MinRequired:    decimal.NewFromInt(50),
			Eligibility:    discount.EligibilityAll,
		},
		{
			ID:             "welcome",
			Name:           "Welcome: 5 off your first order",
			Type:           discount.TypeFixed,
			Value:          decimal.NewFromInt(5),
			Status:         discount.StatusActive,
			StackingPolicy: discount.PolicyStack,
			FirstOrderOnly: true,
			Priority:       1,
			ApplyTo:        discount.ScopeCart,
			Eligibility:    discount.EligibilityAll,
		},
		{
			ID:             "vip-exclusive",
			Name:           "VIP: 25% off, nothing else",
			Type:           discount.TypePercentage,
			Value:          decimal.NewFromInt(25),
			Status:         discount.StatusActive,
			StackingPolicy: discount.PolicyExclusive,
			Priority:       0,
			ApplyTo:        discount.ScopeCart,
			Eligibility:    discount.EligibilitySpecificGroup,
			CustomerGroups: []string{"vip"},
			Conditions: []discount.Condition{
				{ID: "vip-exclusive-min-qty", Type: discount.ConditionMinQuantity, Value: "2"},
			},
		},
	}
}

func demoCodes() []seedCode {
	once := 1
	return []seedCode{
		{discountID: "welcome", code: "WELCOME5"},
		{discountID: "vip-exclusive", code: "VIP25", maxUses: &once},
	}
}
