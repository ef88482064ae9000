// Command code-ingest bulk-imports gzip-compressed code lists, one code per
// line, for a single discount.
package main

import (
	"context"
	"os"
	"os/signal"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/discount-engine/internal/domain/discount"
	"github.com/xenking/discount-engine/internal/storage/postgres"
)

type config struct {
	DatabaseURL string   `usage:"PostgreSQL connection URL (or DATABASE_URL env)" flag:"database-url"`
	DiscountID  string   `usage:"Discount the codes redeem" flag:"discount-id"`
	Files       []string `usage:"Comma separated list of .gz files" flag:"files"`
	MaxUses     int      `default:"0" usage:"Per-code usage cap; 0 means unlimited" flag:"max-uses"`
	ExpiresAt   string   `usage:"RFC 3339 expiry applied to every code" flag:"expires-at"`
	BatchSize   int      `default:"5000" usage:"Codes per insert batch" flag:"batch-size"`
	Capacity    uint     `default:"10000000" usage:"Expected number of distinct codes" flag:"capacity"`
	FPRate      float64  `default:"0.001" usage:"Bloom filter false positive rate" flag:"fp-rate"`
	MinLen      int      `default:"4" usage:"Minimum code length" flag:"min-len"`
	MaxLen      int      `default:"64" usage:"Maximum code length" flag:"max-len"`
}

func main() {
	lg, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	ctx = zctx.Base(ctx, lg)

	if err := run(ctx, lg); err != nil {
		lg.Error("Code ingest failed", zap.Error(err))
		os.Exit(1)
	}
	lg.Info("Code ingest completed")
}

func loadConfig() (*config, error) {
	var cfg config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "DISCOUNT_INGEST",
		SkipFiles: true,
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	switch {
	case cfg.DatabaseURL == "":
		return nil, errors.New("database URL is required: set --database-url or DATABASE_URL")
	case cfg.DiscountID == "":
		return nil, errors.New("--discount-id is required")
	case len(cfg.Files) == 0:
		return nil, errors.New("--files is required")
	case cfg.BatchSize <= 0:
		return nil, errors.Errorf("batch size %d must be positive", cfg.BatchSize)
	case cfg.MaxUses < 0:
		return nil, errors.Errorf("max uses %d must not be negative", cfg.MaxUses)
	}
	return &cfg, nil
}

// template builds the shared MaxUses and ExpiresAt settings.
func (c *config) template() (discount.Code, error) {
	var t discount.Code
	if c.MaxUses > 0 {
		n := c.MaxUses
		t.MaxUses = &n
	}
	if c.ExpiresAt != "" {
		at, err := time.Parse(time.RFC3339, c.ExpiresAt)
		if err != nil {
			return t, errors.Wrap(err, "parse expires-at")
		}
		t.ExpiresAt = &at
	}
	return t, nil
}

func run(ctx context.Context, lg *zap.Logger) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	tmpl, err := cfg.template()
	if err != nil {
		return err
	}
	for _, f := range cfg.Files {
		if _, err := os.Stat(f); err != nil {
			return errors.Wrapf(err, "check file %s", f)
		}
	}

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if _, err := postgres.NewDiscountRepository(pool).GetByID(ctx, cfg.DiscountID); err != nil {
		return errors.Wrapf(err, "check discount %s", cfg.DiscountID)
	}

	in := &ingester{
		lg:         lg,
		w:          postgres.NewCodeRepository(pool),
		discountID: cfg.DiscountID,
		template:   tmpl,
		batchSize:  cfg.BatchSize,
		minLen:     cfg.MinLen,
		maxLen:     cfg.MaxLen,
		dedupe:     newDeduper(cfg.Capacity, cfg.FPRate),
	}

	start := time.Now()
	stats, err := in.run(ctx, cfg.Files)
	if err != nil {
		return err
	}
	lg.Info("Codes imported",
		zap.String("discount_id", cfg.DiscountID),
		zap.Int64("read", stats.read.Load()),
		zap.Int64("invalid", stats.invalid.Load()),
		zap.Int64("inserted", stats.inserted.Load()),
		zap.Int("suspects", stats.suspects),
		zap.Duration("took", time.Since(start)),
	)
	return nil
}
