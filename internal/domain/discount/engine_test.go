package discount

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Mock implementations ---

type mockDiscountRepo struct {
	auto    []Discount
	byID    map[string]*Discount
	listErr error
	getErr  error
}

func (m *mockDiscountRepo) ListAutomatic(_ context.Context) ([]Discount, error) {
	return m.auto, m.listErr
}

func (m *mockDiscountRepo) GetByID(_ context.Context, id string) (*Discount, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	found, ok := m.byID[id]
	if !ok {
		return nil, ErrDiscountNotFound
	}
	return found, nil
}

type mockCodeRepo struct {
	codes map[string]*Code
	err   error
}

func (m *mockCodeRepo) FindByCode(_ context.Context, code string) (*Code, error) {
	if m.err != nil {
		return nil, m.err
	}
	c, ok := m.codes[code]
	if !ok {
		return nil, ErrCodeNotFound
	}
	return c, nil
}

type mockRedemptionRepo struct {
	completed map[string]bool
	err       error
	calls     int
}

func (m *mockRedemptionRepo) HasCompletedOrder(_ context.Context, userID string) (bool, error) {
	m.calls++
	return m.completed[userID], m.err
}

// --- Helpers ---

var fixedNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T, discounts *mockDiscountRepo, codes *mockCodeRepo, redemptions *mockRedemptionRepo) *Engine {
	t.Helper()
	if discounts == nil {
		discounts = &mockDiscountRepo{}
	}
	if codes == nil {
		codes = &mockCodeRepo{}
	}
	if redemptions == nil {
		redemptions = &mockRedemptionRepo{}
	}
	e, err := NewEngine(discounts, codes, redemptions, WithClock(func() time.Time { return fixedNow }))
	require.NoError(t, err)
	return e
}

func automatic(id string, typ Type, value string, policy StackingPolicy, priority int) Discount {
	return Discount{
		ID:             id,
		Type:           typ,
		Value:          d(value),
		Status:         StatusActive,
		StackingPolicy: policy,
		Priority:       priority,
		ApplyTo:        ScopeCart,
		Eligibility:    EligibilityAll,
	}
}

func cartInput(subtotal string) Input {
	return Input{
		CurrencyCode: "EUR",
		ZoneID:       "eu",
		Now:          fixedNow,
		Cart: Cart{
			Subtotal: decimal.NewNullDecimal(d(subtotal)),
			Items: []Item{
				{ProductID: "p1", Quantity: 1, UnitPrice: d(subtotal)},
			},
		},
	}
}

func assertAmount(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, d(want).Equal(got), "expected amount %s, got %s", want, got)
}

// --- Tests ---

func TestEvaluate_PercentageDiscount(t *testing.T) {
	repo := &mockDiscountRepo{auto: []Discount{
		automatic("pct10", TypePercentage, "10", PolicyStack, 1),
	}}
	e := newTestEngine(t, repo, nil, nil)

	res, err := e.Evaluate(context.Background(), cartInput("100.00"))
	require.NoError(t, err)

	assertAmount(t, "10.00", res.DiscountTotal)
	require.Len(t, res.Applied, 1)
	assert.Equal(t, "pct10", res.Applied[0].DiscountID)
	assert.Empty(t, res.Applied[0].Code)
	assert.False(t, res.FreeShipping)
}

func TestEvaluate_Idempotent(t *testing.T) {
	repo := &mockDiscountRepo{auto: []Discount{
		automatic("a", TypePercentage, "12.5", PolicyStack, 1),
		automatic("b", TypeFixed, "3.33", PolicyStack, 2),
		automatic("c", TypeFixed, "7", PolicyHighestOnly, 3),
	}}
	e := newTestEngine(t, repo, nil, nil)
	in := cartInput("47.99")

	first, err := e.Evaluate(context.Background(), in)
	require.NoError(t, err)
	second, err := e.Evaluate(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestEvaluate_NeverExceedsSubtotal(t *testing.T) {
	repo := &mockDiscountRepo{auto: []Discount{
		automatic("half", TypePercentage, "60", PolicyStack, 1),
		automatic("flat", TypeFixed, "30", PolicyStack, 2),
		automatic("more", TypePercentage, "50", PolicyStack, 3),
	}}
	e := newTestEngine(t, repo, nil, nil)

	res, err := e.Evaluate(context.Background(), cartInput("50.00"))
	require.NoError(t, err)

	assertAmount(t, "50.00", res.DiscountTotal)
	require.Len(t, res.Applied, 3)
	assertAmount(t, "30.00", res.Applied[0].Amount)
	assertAmount(t, "20.00", res.Applied[1].Amount)
	assertAmount(t, "0", res.Applied[2].Amount)

	sum := decimal.Zero
	for _, a := range res.Applied {
		assert.False(t, a.Amount.IsNegative())
		sum = sum.Add(a.Amount)
	}
	assert.True(t, sum.Equal(res.DiscountTotal))
}

func TestEvaluate_SubtotalFinerThanCurrency(t *testing.T) {
	for _, tt := range []struct {
		currency string
		subtotal string
		want     string
	}{
		{currency: "EUR", subtotal: "10.005", want: "10.00"},
		{currency: "JPY", subtotal: "100.5", want: "100"},
	} {
		t.Run(tt.currency, func(t *testing.T) {
			repo := &mockDiscountRepo{auto: []Discount{
				automatic("flat", TypeFixed, "500", PolicyStack, 1),
			}}
			e := newTestEngine(t, repo, nil, nil)
			in := cartInput(tt.subtotal)
			in.CurrencyCode = tt.currency

			res, err := e.Evaluate(context.Background(), in)
			require.NoError(t, err)

			assertAmount(t, tt.want, res.DiscountTotal)
			assert.True(t, res.DiscountTotal.LessThanOrEqual(d(tt.subtotal)))
			require.Len(t, res.Applied, 1)
			assert.True(t, res.Applied[0].Amount.Equal(res.DiscountTotal))
		})
	}
}

func TestEvaluate_FirstOrderCode(t *testing.T) {
	first := Discount{
		ID:             "first",
		Type:           TypeFixed,
		Value:          d("5"),
		Status:         StatusActive,
		StackingPolicy: PolicyStack,
		ApplyTo:        ScopeCart,
		Eligibility:    EligibilityAll,
		FirstOrderOnly: true,
	}
	discounts := &mockDiscountRepo{byID: map[string]*Discount{"first": &first}}
	codes := &mockCodeRepo{codes: map[string]*Code{
		"FIRST": {ID: "c1", Code: "FIRST", DiscountID: "first"},
	}}
	redemptions := &mockRedemptionRepo{completed: map[string]bool{}}
	e := newTestEngine(t, discounts, codes, redemptions)

	in := cartInput("40.00")
	in.Code = "FIRST"
	in.UserID = "u1"

	res, err := e.Evaluate(context.Background(), in)
	require.NoError(t, err)
	assertAmount(t, "5.00", res.DiscountTotal)
	require.Len(t, res.Applied, 1)
	assert.Equal(t, "FIRST", res.Applied[0].Code)

	// Simulate one completed order for the user.
	redemptions.completed["u1"] = true

	res, err = e.Evaluate(context.Background(), in)
	require.NoError(t, err)
	assertAmount(t, "0", res.DiscountTotal)
	assert.Empty(t, res.Applied)
}

func TestEvaluate_FirstOrderGuestAlwaysEligible(t *testing.T) {
	welcome := automatic("welcome", TypeFixed, "5", PolicyStack, 1)
	welcome.FirstOrderOnly = true
	redemptions := &mockRedemptionRepo{err: errors.New("must not be called")}
	e := newTestEngine(t, &mockDiscountRepo{auto: []Discount{welcome}}, nil, redemptions)

	res, err := e.Evaluate(context.Background(), cartInput("20.00"))
	require.NoError(t, err)
	assertAmount(t, "5.00", res.DiscountTotal)
	assert.Zero(t, redemptions.calls)
}

func TestEvaluate_HistoryQueriedOnce(t *testing.T) {
	a := automatic("a", TypeFixed, "1", PolicyStack, 1)
	a.FirstOrderOnly = true
	b := automatic("b", TypeFixed, "2", PolicyStack, 2)
	b.FirstOrderOnly = true
	redemptions := &mockRedemptionRepo{completed: map[string]bool{}}
	e := newTestEngine(t, &mockDiscountRepo{auto: []Discount{a, b}}, nil, redemptions)

	in := cartInput("20.00")
	in.UserID = "u1"
	res, err := e.Evaluate(context.Background(), in)
	require.NoError(t, err)
	assertAmount(t, "3.00", res.DiscountTotal)
	assert.Equal(t, 1, redemptions.calls)
}

func TestEvaluate_UnredeemableCodeFallsBackToAutomatic(t *testing.T) {
	auto := automatic("auto", TypePercentage, "10", PolicyStack, 1)
	coded := automatic("coded", TypeFixed, "15", PolicyStack, 0)
	discounts := &mockDiscountRepo{
		auto: []Discount{auto},
		byID: map[string]*Discount{"coded": &coded},
	}
	codes := &mockCodeRepo{codes: map[string]*Code{
		"LIMITED":  {Code: "LIMITED", DiscountID: "coded", MaxUses: ptr(1), UsageCount: 1},
		"EXPIRED":  {Code: "EXPIRED", DiscountID: "coded", ExpiresAt: ptr(fixedNow.Add(-time.Second))},
		"DANGLING": {Code: "DANGLING", DiscountID: "gone"},
	}}
	e := newTestEngine(t, discounts, codes, nil)

	without, err := e.Evaluate(context.Background(), cartInput("100.00"))
	require.NoError(t, err)

	for _, code := range []string{"LIMITED", "EXPIRED", "DANGLING", "UNKNOWN"} {
		t.Run(code, func(t *testing.T) {
			in := cartInput("100.00")
			in.Code = code

			res, err := e.Evaluate(context.Background(), in)
			require.NoError(t, err)
			assert.Equal(t, without, res)
			assertAmount(t, "10.00", res.DiscountTotal)
		})
	}
}

func TestEvaluate_CodeAndAutomaticSameDiscountCountedOnce(t *testing.T) {
	shared := automatic("shared", TypeFixed, "4", PolicyStack, 1)
	discounts := &mockDiscountRepo{
		auto: []Discount{shared},
		byID: map[string]*Discount{"shared": &shared},
	}
	codes := &mockCodeRepo{codes: map[string]*Code{
		"SHARED": {Code: "SHARED", DiscountID: "shared"},
	}}
	e := newTestEngine(t, discounts, codes, nil)

	in := cartInput("30.00")
	in.Code = "SHARED"
	res, err := e.Evaluate(context.Background(), in)
	require.NoError(t, err)

	require.Len(t, res.Applied, 1)
	assert.Equal(t, "SHARED", res.Applied[0].Code)
	assertAmount(t, "4.00", res.DiscountTotal)
}

func TestEvaluate_WindowBoundary(t *testing.T) {
	ending := automatic("ending", TypeFixed, "5", PolicyStack, 1)
	ending.EndsAt = ptr(fixedNow)
	e := newTestEngine(t, &mockDiscountRepo{auto: []Discount{ending}}, nil, nil)

	in := cartInput("50.00")
	res, err := e.Evaluate(context.Background(), in)
	require.NoError(t, err)
	assertAmount(t, "5.00", res.DiscountTotal)

	in.Now = fixedNow.Add(time.Microsecond)
	res, err = e.Evaluate(context.Background(), in)
	require.NoError(t, err)
	assertAmount(t, "0", res.DiscountTotal)
}

func TestEvaluate_EngineClockWhenNowUnset(t *testing.T) {
	starting := automatic("starting", TypeFixed, "5", PolicyStack, 1)
	starting.StartsAt = ptr(fixedNow.Add(time.Hour))
	e := newTestEngine(t, &mockDiscountRepo{auto: []Discount{starting}}, nil, nil)

	in := cartInput("50.00")
	in.Now = time.Time{}
	res, err := e.Evaluate(context.Background(), in)
	require.NoError(t, err)
	assert.Empty(t, res.Applied)
}

func TestEvaluate_Stacking(t *testing.T) {
	tests := []struct {
		name      string
		discounts []Discount
		wantTotal string
		wantIDs   []string
	}{
		{
			name: "exclusive evaluated first suppresses stackable",
			discounts: []Discount{
				automatic("stack5", TypeFixed, "5", PolicyStack, 2),
				automatic("excl20", TypeFixed, "20", PolicyExclusive, 1),
			},
			wantTotal: "20.00",
			wantIDs:   []string{"excl20"},
		},
		{
			name: "exclusive after stackable is skipped",
			discounts: []Discount{
				automatic("stack5", TypeFixed, "5", PolicyStack, 1),
				automatic("excl20", TypeFixed, "20", PolicyExclusive, 2),
				automatic("stack3", TypeFixed, "3", PolicyStack, 3),
			},
			wantTotal: "8.00",
			wantIDs:   []string{"stack5", "stack3"},
		},
		{
			name: "first exclusive wins over later exclusive",
			discounts: []Discount{
				automatic("exclB", TypeFixed, "30", PolicyExclusive, 1),
				automatic("exclA", TypeFixed, "10", PolicyExclusive, 1),
			},
			wantTotal: "30.00",
			wantIDs:   []string{"exclB"},
		},
		{
			name: "equal priority orders by descending value",
			discounts: []Discount{
				automatic("small", TypeFixed, "2", PolicyStack, 1),
				automatic("big", TypeFixed, "9", PolicyStack, 1),
			},
			wantTotal: "11.00",
			wantIDs:   []string{"big", "small"},
		},
		{
			name: "highest only keeps largest amount",
			discounts: []Discount{
				automatic("ho-pct", TypePercentage, "10", PolicyHighestOnly, 1),
				automatic("ho-fixed", TypeFixed, "15", PolicyHighestOnly, 2),
				automatic("stack1", TypeFixed, "1", PolicyStack, 3),
			},
			wantTotal: "16.00",
			wantIDs:   []string{"ho-fixed", "stack1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEngine(t, &mockDiscountRepo{auto: tt.discounts}, nil, nil)

			res, err := e.Evaluate(context.Background(), cartInput("100.00"))
			require.NoError(t, err)

			assertAmount(t, tt.wantTotal, res.DiscountTotal)
			ids := make([]string, len(res.Applied))
			for i, a := range res.Applied {
				ids[i] = a.DiscountID
			}
			assert.Equal(t, tt.wantIDs, ids)
		})
	}
}

func TestEvaluate_Restrictions(t *testing.T) {
	base := automatic("r", TypeFixed, "5", PolicyStack, 1)

	tests := []struct {
		name   string
		mutate func(*Discount, *Input)
		want   string
	}{
		{
			name:   "currency restricted to USD with EUR context",
			mutate: func(x *Discount, _ *Input) { x.CurrencyRestrictions = []string{"USD"} },
			want:   "0",
		},
		{
			name:   "currency restriction matches case-insensitively",
			mutate: func(x *Discount, in *Input) { x.CurrencyRestrictions = []string{"usd"}; in.CurrencyCode = "USD" },
			want:   "5.00",
		},
		{
			name:   "zone restricted",
			mutate: func(x *Discount, _ *Input) { x.ZoneRestrictions = []string{"us"} },
			want:   "0",
		},
		{
			name:   "zone allowed",
			mutate: func(x *Discount, _ *Input) { x.ZoneRestrictions = []string{"us", "eu"} },
			want:   "5.00",
		},
		{
			name:   "channel restricted without channel",
			mutate: func(x *Discount, _ *Input) { x.ChannelRestrictions = []string{"app"} },
			want:   "0",
		},
		{
			name:   "channel allowed",
			mutate: func(x *Discount, in *Input) { x.ChannelRestrictions = []string{"app"}; in.Channel = "app" },
			want:   "5.00",
		},
		{
			name:   "inactive",
			mutate: func(x *Discount, _ *Input) { x.Status = StatusInactive },
			want:   "0",
		},
		{
			name:   "below minimum subtotal",
			mutate: func(x *Discount, _ *Input) { x.MinRequired = d("50.01") },
			want:   "0",
		},
		{
			name:   "minimum subtotal reached",
			mutate: func(x *Discount, _ *Input) { x.MinRequired = d("50.00") },
			want:   "5.00",
		},
		{
			// 2025-06-15 is a Sunday.
			name:   "weekday mask excludes sunday",
			mutate: func(x *Discount, _ *Input) { x.WeekdayMask = 1 << uint(time.Monday) },
			want:   "0",
		},
		{
			name:   "weekday mask includes sunday",
			mutate: func(x *Discount, _ *Input) { x.WeekdayMask = 1 << uint(time.Sunday) },
			want:   "5.00",
		},
		{
			name:   "outside time window",
			mutate: func(x *Discount, _ *Input) { x.TimeWindow = &TimeWindow{From: 17 * 60, To: 20 * 60} },
			want:   "0",
		},
		{
			name:   "inside time window",
			mutate: func(x *Discount, _ *Input) { x.TimeWindow = &TimeWindow{From: 11 * 60, To: 13 * 60} },
			want:   "5.00",
		},
		{
			name: "specific group without membership",
			mutate: func(x *Discount, _ *Input) {
				x.Eligibility = EligibilitySpecificGroup
				x.CustomerGroups = []string{"vip"}
			},
			want: "0",
		},
		{
			name: "specific group with membership",
			mutate: func(x *Discount, in *Input) {
				x.Eligibility = EligibilitySpecificGroup
				x.CustomerGroups = []string{"vip"}
				in.CustomerGroups = []string{"vip"}
			},
			want: "5.00",
		},
		{
			name: "all conditions must pass",
			mutate: func(x *Discount, _ *Input) {
				x.Conditions = []Condition{
					{Type: ConditionMinQuantity, Value: "1"},
					{Type: ConditionProduct, Value: "p9"},
				}
			},
			want: "0",
		},
		{
			name: "conditions pass",
			mutate: func(x *Discount, _ *Input) {
				x.Conditions = []Condition{
					{Type: ConditionMinQuantity, Value: "1"},
					{Type: ConditionProduct, Value: "p1"},
				}
			},
			want: "5.00",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			disc := base
			in := cartInput("50.00")
			tt.mutate(&disc, &in)
			e := newTestEngine(t, &mockDiscountRepo{auto: []Discount{disc}}, nil, nil)

			res, err := e.Evaluate(context.Background(), in)
			require.NoError(t, err)
			assertAmount(t, tt.want, res.DiscountTotal)
		})
	}
}

func TestEvaluate_ScopedDiscounts(t *testing.T) {
	in := Input{
		CurrencyCode: "USD",
		ZoneID:       "us",
		Now:          fixedNow,
		Cart: Cart{
			Subtotal: decimal.NewNullDecimal(d("70.00")),
			Items: []Item{
				{ProductID: "shirt", CategoryIDs: []string{"apparel"}, Quantity: 2, UnitPrice: d("15.00")},
				{ProductID: "mug", CategoryIDs: []string{"kitchen"}, CollectionIDs: []string{"gifts"}, Quantity: 1, UnitPrice: d("40.00")},
			},
		},
	}

	tests := []struct {
		name    string
		scope   Scope
		typ     Type
		value   string
		targets []string
		want    string
	}{
		{name: "category percentage", scope: ScopeCategory, typ: TypePercentage, value: "10", targets: []string{"apparel"}, want: "3.00"},
		{name: "collection fixed capped at line total", scope: ScopeCollection, typ: TypeFixed, value: "50", targets: []string{"gifts"}, want: "40.00"},
		{name: "product percentage", scope: ScopeProduct, typ: TypePercentage, value: "50", targets: []string{"mug"}, want: "20.00"},
		{name: "no matching line", scope: ScopeProduct, typ: TypePercentage, value: "50", targets: []string{"lamp"}, want: "0"},
		{name: "cart scope", scope: ScopeCart, typ: TypePercentage, value: "10", want: "7.00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			disc := automatic("scoped", tt.typ, tt.value, PolicyStack, 1)
			disc.ApplyTo = tt.scope
			disc.Targets = tt.targets
			e := newTestEngine(t, &mockDiscountRepo{auto: []Discount{disc}}, nil, nil)

			res, err := e.Evaluate(context.Background(), in)
			require.NoError(t, err)
			assertAmount(t, tt.want, res.DiscountTotal)
		})
	}
}

func TestEvaluate_CurrencyRounding(t *testing.T) {
	disc := automatic("pct", TypePercentage, "15", PolicyStack, 1)
	e := newTestEngine(t, &mockDiscountRepo{auto: []Discount{disc}}, nil, nil)

	in := cartInput("29.97")
	res, err := e.Evaluate(context.Background(), in)
	require.NoError(t, err)
	// 29.97 * 15% = 4.4955
	assertAmount(t, "4.50", res.DiscountTotal)

	in = cartInput("999")
	in.CurrencyCode = "JPY"
	res, err = e.Evaluate(context.Background(), in)
	require.NoError(t, err)
	// 999 * 15% = 149.85, yen has no minor unit
	assertAmount(t, "150", res.DiscountTotal)
}

func TestEvaluate_FreeShipping(t *testing.T) {
	ship := automatic("ship", TypeFixed, "0", PolicyStack, 1)
	ship.FreeShipping = true
	e := newTestEngine(t, &mockDiscountRepo{auto: []Discount{ship}}, nil, nil)

	res, err := e.Evaluate(context.Background(), cartInput("10.00"))
	require.NoError(t, err)
	assert.True(t, res.FreeShipping)
	assertAmount(t, "0", res.DiscountTotal)
	require.Len(t, res.Applied, 1)
	assert.True(t, res.Applied[0].FreeShipping)
}

func TestEvaluate_NoDiscounts(t *testing.T) {
	e := newTestEngine(t, nil, nil, nil)

	res, err := e.Evaluate(context.Background(), cartInput("10.00"))
	require.NoError(t, err)
	assertAmount(t, "0", res.DiscountTotal)
	assert.Empty(t, res.Applied)
	assert.False(t, res.FreeShipping)
}

func TestEvaluate_InvalidInput(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Input)
		want   string
	}{
		{name: "missing currency", mutate: func(in *Input) { in.CurrencyCode = "" }, want: "currency code required"},
		{name: "malformed currency", mutate: func(in *Input) { in.CurrencyCode = "EURO" }, want: "malformed currency code"},
		{name: "missing zone", mutate: func(in *Input) { in.ZoneID = " " }, want: "zone id required"},
		{name: "missing subtotal", mutate: func(in *Input) { in.Cart.Subtotal = decimal.NullDecimal{} }, want: "cart subtotal required"},
		{name: "negative subtotal", mutate: func(in *Input) { in.Cart.Subtotal = decimal.NewNullDecimal(d("-1")) }, want: "negative cart subtotal"},
		{name: "negative quantity", mutate: func(in *Input) { in.Cart.Items[0].Quantity = -1 }, want: "negative quantity"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEngine(t, nil, nil, nil)
			in := cartInput("10.00")
			tt.mutate(&in)

			res, err := e.Evaluate(context.Background(), in)
			require.ErrorIs(t, err, ErrInvalidInput)
			assert.Contains(t, err.Error(), tt.want)
			assert.Nil(t, res)
		})
	}
}

func TestEvaluate_RepositoryErrors(t *testing.T) {
	dbErr := errors.New("db down")
	first := automatic("first", TypeFixed, "5", PolicyStack, 1)
	first.FirstOrderOnly = true

	tests := []struct {
		name        string
		discounts   *mockDiscountRepo
		codes       *mockCodeRepo
		redemptions *mockRedemptionRepo
		code        string
		want        string
	}{
		{
			name:      "list automatic",
			discounts: &mockDiscountRepo{listErr: dbErr},
			want:      "list automatic discounts",
		},
		{
			name:  "code lookup",
			codes: &mockCodeRepo{err: dbErr},
			code:  "ANY",
			want:  "lookup discount code",
		},
		{
			name:      "discount for code",
			discounts: &mockDiscountRepo{getErr: dbErr},
			codes:     &mockCodeRepo{codes: map[string]*Code{"X": {Code: "X", DiscountID: "x"}}},
			code:      "X",
			want:      "get discount for code",
		},
		{
			name:        "order history",
			discounts:   &mockDiscountRepo{auto: []Discount{first}},
			redemptions: &mockRedemptionRepo{err: dbErr},
			want:        "check order history",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEngine(t, tt.discounts, tt.codes, tt.redemptions)
			in := cartInput("10.00")
			in.Code = tt.code
			in.UserID = "u1"

			_, err := e.Evaluate(context.Background(), in)
			require.ErrorIs(t, err, dbErr)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestEvaluate_UnsupportedTypeSkipped(t *testing.T) {
	bad := automatic("bad", Type("bogus"), "10", PolicyExclusive, 0)
	good := automatic("good", TypeFixed, "2", PolicyStack, 1)
	e := newTestEngine(t, &mockDiscountRepo{auto: []Discount{bad, good}}, nil, nil)

	res, err := e.Evaluate(context.Background(), cartInput("10.00"))
	require.NoError(t, err)
	assertAmount(t, "2.00", res.DiscountTotal)
}
