package discount

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/xenking/discount-engine/internal/domain/discount"

// Applied is one discount that contributed to an evaluation result.
type Applied struct {
	DiscountID string
	// Code is set when the discount came from a customer-entered code.
	Code              string
	Type              Type
	Amount            decimal.Decimal
	FreeShipping      bool
	AppliesToShipping bool
}

// Result is the outcome of an evaluation.
type Result struct {
	DiscountTotal decimal.Decimal
	Applied       []Applied
	FreeShipping  bool
}

// Evaluator evaluates a cart against the stored discount rules.
type Evaluator interface {
	Evaluate(ctx context.Context, in Input) (*Result, error)
}

type engineOptions struct {
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	now            func() time.Time
}

// EngineOption configures an Engine.
type EngineOption func(*engineOptions)

// WithTracerProvider sets the tracer provider. Defaults to the global one.
func WithTracerProvider(tp trace.TracerProvider) EngineOption {
	return func(o *engineOptions) { o.tracerProvider = tp }
}

// WithMeterProvider sets the meter provider. Defaults to the global one.
func WithMeterProvider(mp metric.MeterProvider) EngineOption {
	return func(o *engineOptions) { o.meterProvider = mp }
}

// WithClock sets the clock used when Input.Now is zero.
func WithClock(now func() time.Time) EngineOption {
	return func(o *engineOptions) { o.now = now }
}

var _ Evaluator = (*Engine)(nil)

// Engine implements Evaluator. It only reads from its repositories; recording
// redemptions is left to the order workflow.
type Engine struct {
	discounts   DiscountRepository
	codes       CodeRepository
	redemptions RedemptionRepository
	now         func() time.Time

	tracer      trace.Tracer
	evaluations metric.Int64Counter
	applied     metric.Int64Counter
}

// NewEngine creates an Engine backed by the given repositories.
func NewEngine(
	discounts DiscountRepository,
	codes CodeRepository,
	redemptions RedemptionRepository,
	opts ...EngineOption,
) (*Engine, error) {
	o := engineOptions{
		tracerProvider: otel.GetTracerProvider(),
		meterProvider:  otel.GetMeterProvider(),
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}

	meter := o.meterProvider.Meter(instrumentationName)
	evaluations, err := meter.Int64Counter("discount.evaluations",
		metric.WithDescription("Number of discount evaluations by outcome"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create evaluations counter")
	}
	applied, err := meter.Int64Counter("discount.applied",
		metric.WithDescription("Number of discounts applied by type and stacking policy"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create applied counter")
	}

	return &Engine{
		discounts:   discounts,
		codes:       codes,
		redemptions: redemptions,
		now:         o.now,
		tracer:      o.tracerProvider.Tracer(instrumentationName),
		evaluations: evaluations,
		applied:     applied,
	}, nil
}

// Evaluate determines which discounts apply to in.Cart and returns the
// rounded total with its breakdown. Bad or exhausted codes and ineligible
// discounts are silently skipped; only invalid input and repository failures
// are returned as errors.
func (e *Engine) Evaluate(ctx context.Context, in Input) (_ *Result, rerr error) {
	ctx, span := e.tracer.Start(ctx, "discount.Evaluate")
	defer func() {
		outcome := "ok"
		if rerr != nil {
			outcome = "error"
			span.RecordError(rerr)
			span.SetStatus(codes.Error, rerr.Error())
		}
		e.evaluations.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
		span.End()
	}()

	cur, err := in.validate()
	if err != nil {
		return nil, err
	}
	if in.Now.IsZero() {
		in.Now = e.now()
	}
	span.SetAttributes(
		attribute.String("discount.currency", cur.code),
		attribute.String("discount.zone", in.ZoneID),
		attribute.Bool("discount.has_code", in.Code != ""),
	)

	cands, err := e.candidates(ctx, &in)
	if err != nil {
		return nil, err
	}

	lg := zctx.From(ctx)
	history := &orderHistory{repo: e.redemptions, userID: in.UserID}
	eligible := make([]candidate, 0, len(cands))
	for _, c := range cands {
		reason, err := exclusionReason(ctx, c.discount, &in, cur, history)
		if err != nil {
			return nil, err
		}
		if reason != "" {
			lg.Debug("Discount excluded",
				zap.String("discount_id", c.discount.ID),
				zap.String("reason", reason),
			)
			continue
		}

		base, _ := scopedBase(c.discount, &in.Cart)
		amount, err := c.discount.CalculateAmount(base)
		if err != nil {
			lg.Warn("Discount skipped", zap.String("discount_id", c.discount.ID), zap.Error(err))
			continue
		}
		c.amount = amount
		eligible = append(eligible, c)
	}

	// Amounts are clamped against the subtotal floored to the currency scale,
	// so their sum is already at that scale and never exceeds the subtotal.
	applied := resolve(eligible, in.Cart.Subtotal.Decimal.RoundFloor(cur.scale), cur.scale)

	res := &Result{DiscountTotal: decimal.Zero, Applied: applied}
	for _, a := range applied {
		res.DiscountTotal = res.DiscountTotal.Add(a.Amount)
		res.FreeShipping = res.FreeShipping || a.FreeShipping
		e.applied.Add(ctx, 1, metric.WithAttributes(
			attribute.String("type", string(a.Type)),
		))
	}
	span.SetAttributes(attribute.Int("discount.applied", len(applied)))

	return res, nil
}

// candidates returns the code-derived discount, if redeemable, followed by
// the automatic discounts. A discount appears at most once.
func (e *Engine) candidates(ctx context.Context, in *Input) ([]candidate, error) {
	var out []candidate
	seen := make(map[string]struct{})

	if in.Code != "" {
		d, err := e.codeDiscount(ctx, in)
		if err != nil {
			return nil, err
		}
		if d != nil {
			out = append(out, candidate{discount: d, code: in.Code})
			seen[d.ID] = struct{}{}
		}
	}

	auto, err := e.discounts.ListAutomatic(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list automatic discounts")
	}
	for i := range auto {
		d := &auto[i]
		if _, ok := seen[d.ID]; ok {
			continue
		}
		seen[d.ID] = struct{}{}
		out = append(out, candidate{discount: d})
	}
	return out, nil
}

// codeDiscount resolves in.Code to its discount. It returns nil without an
// error when the code is unknown, expired, exhausted, or dangling.
func (e *Engine) codeDiscount(ctx context.Context, in *Input) (*Discount, error) {
	lg := zctx.From(ctx).With(zap.String("code", in.Code))

	code, err := e.codes.FindByCode(ctx, in.Code)
	if err != nil {
		if errors.Is(err, ErrCodeNotFound) {
			lg.Debug("Discount code not found")
			return nil, nil
		}
		return nil, errors.Wrap(err, "lookup discount code")
	}
	if !code.Redeemable(in.Now) {
		lg.Debug("Discount code not redeemable",
			zap.Bool("expired", code.IsExpired(in.Now)),
			zap.Bool("limit_reached", code.HasReachedLimit()),
		)
		return nil, nil
	}

	d, err := e.discounts.GetByID(ctx, code.DiscountID)
	if err != nil {
		if errors.Is(err, ErrDiscountNotFound) {
			lg.Warn("Discount code references missing discount", zap.String("discount_id", code.DiscountID))
			return nil, nil
		}
		return nil, errors.Wrap(err, "get discount for code")
	}
	return d, nil
}
