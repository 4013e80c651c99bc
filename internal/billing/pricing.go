package billing

import (
	"fmt"

	"teamnetwork/internal/types"
)

// Seat quantity bounds enforced at the API edge before a selection
// reaches the calculator.
const (
	MinSeats = 1
	MaxSeats = 100
)

// AlumniPerBucket is the alumni capacity covered by one billed bucket.
const AlumniPerBucket = 2500

// IntervalCents holds a price in cents for each billing interval.
// Monthly and yearly figures are never combined; a breakdown is always
// computed for exactly one interval.
type IntervalCents struct {
	Month int64
	Year  int64
}

// For returns the cent amount for the given interval. Unknown intervals
// price as monthly.
func (c IntervalCents) For(interval types.BillingInterval) int64 {
	if interval == types.IntervalYear {
		return c.Year
	}
	return c.Month
}

// PricingConfig is the static price book the calculator operates on.
type PricingConfig struct {
	// FreeSubOrgs is the number of seats included at no charge.
	FreeSubOrgs int

	// SeatUnit is the per-seat price beyond the free allocation.
	SeatUnit IntervalCents

	// AlumniBucket is the price of one alumni-capacity bucket.
	AlumniBucket IntervalCents

	// SalesLedBucketQuantity is the highest selectable bucket index.
	// Selecting it yields no computed price; the caller is routed to
	// manual quoting instead of checkout.
	SalesLedBucketQuantity int
}

// DefaultPricingConfig returns the production price book.
func DefaultPricingConfig() PricingConfig {
	return PricingConfig{
		FreeSubOrgs:            3,
		SeatUnit:               IntervalCents{Month: 500, Year: 5000},
		AlumniBucket:           IntervalCents{Month: 2500, Year: 25000},
		SalesLedBucketQuantity: 8,
	}
}

// PricingSelection is the raw checkout-form input: how many seats, how
// many alumni buckets, and which billing interval.
type PricingSelection struct {
	SeatQuantity   int                   `json:"seat_quantity" validate:"required,min=1,max=100"`
	BucketQuantity int                   `json:"bucket_quantity" validate:"min=0"`
	Interval       types.BillingInterval `json:"interval" validate:"required,oneof=month year"`
}

// PricingBreakdown is the derived cost of one pricing axis. It is
// recomputed on every selection change and never stored.
type PricingBreakdown struct {
	FreeUnits      int    `json:"free_units"`
	BillableUnits  int    `json:"billable_units"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	TotalCents     int64  `json:"total_cents"`
	IntervalSuffix string `json:"interval_suffix"`
}

// Display renders the breakdown total for the UI. A fully-free axis
// reads "Free", not "$0.00".
func (b PricingBreakdown) Display() string {
	if b.BillableUnits == 0 {
		return "Free"
	}
	return FormatCents(b.TotalCents) + b.IntervalSuffix
}

// Quote is the combined outcome of pricing a selection. When SalesLed
// is true no other field is meaningful: the selection has no computed
// price and must be routed to manual quoting. Callers check SalesLed
// explicitly rather than inferring from a zero total.
type Quote struct {
	SalesLed bool                  `json:"sales_led"`
	Seats    PricingBreakdown      `json:"seats"`
	Alumni   PricingBreakdown      `json:"alumni"`
	Interval types.BillingInterval `json:"interval"`

	// TotalCents is the sum of both axes for the single selected
	// interval. Monthly and yearly figures are never added together.
	TotalCents int64 `json:"total_cents"`
}

// Display renders the combined quote total.
func (q Quote) Display() string {
	if q.SalesLed {
		return "Contact sales"
	}
	if q.Seats.BillableUnits == 0 && q.Alumni.BillableUnits == 0 {
		return "Free"
	}
	return FormatCents(q.TotalCents) + intervalSuffix(q.Interval)
}

// Calculator maps pricing selections to cost breakdowns. It is a pure
// function of its config: no I/O, no locks, safe for concurrent use.
type Calculator struct {
	config PricingConfig
}

// NewCalculator returns a Calculator over the given price book.
func NewCalculator(config PricingConfig) *Calculator {
	return &Calculator{config: config}
}

// ValidateSelection checks the selection against the seat and bucket
// bounds. This runs at the API edge; the breakdown methods assume a
// valid selection.
func (c *Calculator) ValidateSelection(sel PricingSelection) error {
	if sel.SeatQuantity < MinSeats || sel.SeatQuantity > MaxSeats {
		return types.NewAppError(types.ErrCodeValidationSeatRange,
			fmt.Sprintf("Seat quantity must be between %d and %d", MinSeats, MaxSeats), nil)
	}
	if sel.BucketQuantity < 0 || sel.BucketQuantity > c.config.SalesLedBucketQuantity {
		return types.NewAppError(types.ErrCodeValidationInvalidBucket,
			fmt.Sprintf("Alumni bucket quantity must be between 0 and %d", c.config.SalesLedBucketQuantity), nil)
	}
	if sel.Interval != types.IntervalMonth && sel.Interval != types.IntervalYear {
		return types.NewAppError(types.ErrCodeValidationFailed,
			"Billing interval must be month or year", nil)
	}
	return nil
}

// SeatBreakdown prices the seat axis: the first FreeSubOrgs seats are
// free, every seat beyond that bills at the per-interval unit price.
func (c *Calculator) SeatBreakdown(seatQuantity int, interval types.BillingInterval) PricingBreakdown {
	freeUnits := seatQuantity
	if freeUnits > c.config.FreeSubOrgs {
		freeUnits = c.config.FreeSubOrgs
	}
	billableUnits := seatQuantity - c.config.FreeSubOrgs
	if billableUnits < 0 {
		billableUnits = 0
	}
	unitCents := c.config.SeatUnit.For(interval)
	return PricingBreakdown{
		FreeUnits:      freeUnits,
		BillableUnits:  billableUnits,
		UnitPriceCents: unitCents,
		TotalCents:     int64(billableUnits) * unitCents,
		IntervalSuffix: intervalSuffix(interval),
	}
}

// AlumniBreakdown prices the alumni-capacity axis: a flat per-bucket
// price with no free allocation. The sales-led bucket has no breakdown;
// callers must consult IsSalesLed before pricing.
func (c *Calculator) AlumniBreakdown(bucketQuantity int, interval types.BillingInterval) PricingBreakdown {
	unitCents := c.config.AlumniBucket.For(interval)
	return PricingBreakdown{
		FreeUnits:      0,
		BillableUnits:  bucketQuantity,
		UnitPriceCents: unitCents,
		TotalCents:     int64(bucketQuantity) * unitCents,
		IntervalSuffix: intervalSuffix(interval),
	}
}

// IsSalesLed reports whether the bucket quantity selects the manual
// quoting path.
func (c *Calculator) IsSalesLed(bucketQuantity int) bool {
	return bucketQuantity == c.config.SalesLedBucketQuantity
}

// ComputeQuote prices a full selection. A sales-led bucket selection
// short-circuits before any arithmetic runs.
func (c *Calculator) ComputeQuote(sel PricingSelection) (Quote, error) {
	if err := c.ValidateSelection(sel); err != nil {
		return Quote{}, err
	}
	if c.IsSalesLed(sel.BucketQuantity) {
		return Quote{SalesLed: true, Interval: sel.Interval}, nil
	}
	seats := c.SeatBreakdown(sel.SeatQuantity, sel.Interval)
	alumni := c.AlumniBreakdown(sel.BucketQuantity, sel.Interval)
	return Quote{
		Seats:      seats,
		Alumni:     alumni,
		Interval:   sel.Interval,
		TotalCents: seats.TotalCents + alumni.TotalCents,
	}, nil
}

// AlumniCapacity returns the alumni headcount covered by the given
// bucket quantity.
func AlumniCapacity(bucketQuantity int) int {
	return bucketQuantity * AlumniPerBucket
}

// FormatCents renders a cent amount as a dollar string, e.g. 2500 ->
// "$25.00".
func FormatCents(cents int64) string {
	return fmt.Sprintf("$%d.%02d", cents/100, cents%100)
}

func intervalSuffix(interval types.BillingInterval) string {
	if interval == types.IntervalYear {
		return "/yr"
	}
	return "/mo"
}
