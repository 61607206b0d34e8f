// Package rules applies the deterministic revenue-leakage rules to a shipment batch.
//
// Numeric fields that failed to parse upstream arrive here as 0.0 (see
// ingest.Lenient). A zero billed total or fuel amount is indistinguishable from a
// real zero charge, so malformed rows bias underbilled amounts upward and can
// raise UNDERBILLED or MISSING_FUEL_SURCHARGE on their own. IngestStats carries
// the per-column coercion counts so callers can tell the two apart.
package rules

import (
	"context"
	"runtime"

	"go.uber.org/zap"

	"github.com/ppiankov/freightaudit/internal/model"
	"github.com/ppiankov/freightaudit/internal/rating"
	"github.com/ppiankov/freightaudit/internal/worker"
)

// Evaluator flags leakage in a shipment batch.
// It holds no mutable state; Evaluate is idempotent.
type Evaluator struct {
	cfg     model.RulesConfig
	rates   *rating.Model
	workers int
	logger  *zap.Logger
}

// Option configures an Evaluator
type Option func(*Evaluator)

// WithWorkers sets the number of per-record workers (0 = NumCPU)
func WithWorkers(n int) Option {
	return func(e *Evaluator) {
		e.workers = n
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(e *Evaluator) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewEvaluator creates an evaluator. rates supplies expected charges for
// shipments that carry no quote.
func NewEvaluator(cfg model.RulesConfig, rates *rating.Model, opts ...Option) *Evaluator {
	if rates == nil {
		rates = rating.NewDefaultModel()
	}
	e := &Evaluator{
		cfg:    cfg,
		rates:  rates,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.workers <= 0 {
		e.workers = runtime.NumCPU()
	}
	return e
}

// Evaluate returns one result per shipment, in input order
func (e *Evaluator) Evaluate(ctx context.Context, shipments []model.Shipment) ([]model.LeakageResult, error) {
	counts := DuplicateCounts(shipments)

	results, err := worker.Map(ctx, e.workers, len(shipments), func(_ context.Context, i int) model.LeakageResult {
		s := shipments[i]
		return e.EvaluateOne(s, e.rates.Expected(s), counts[s.ShipmentID] > 1)
	})
	if err != nil {
		return nil, err
	}

	flagged := 0
	for _, r := range results {
		if r.IsFlagged {
			flagged++
		}
	}
	e.logger.Debug("leakage rules evaluated",
		zap.Int("shipments", len(results)),
		zap.Int("flagged", flagged),
		zap.Int("duplicate_ids", duplicateIDs(counts)))

	return results, nil
}

// EvaluateOne applies every rule to a single shipment. duplicate tells whether
// its id occurs more than once in the batch.
func (e *Evaluator) EvaluateOne(s model.Shipment, expected model.ExpectedCharge, duplicate bool) model.LeakageResult {
	underbilled := expected.Total - s.Billed.Total

	var flags []model.LeakageFlag
	if e.underbilled(underbilled, expected.Total) {
		flags = append(flags, model.FlagUnderbilled)
	}
	if e.missingFuel(s, expected) {
		flags = append(flags, model.FlagMissingFuelSurcharge)
	}
	if e.liftgateNotCharged(s, expected) {
		flags = append(flags, model.FlagLiftgateNotCharged)
	}
	if duplicate {
		flags = append(flags, model.FlagPossibleDuplicate)
	}

	return model.LeakageResult{
		ShipmentID:        s.ShipmentID,
		CustomerID:        s.CustomerID,
		Carrier:           s.Carrier,
		Expected:          expected,
		BilledTotal:       s.Billed.Total,
		UnderbilledAmount: underbilled,
		Flags:             flags,
		FlagReason:        model.JoinLeakageFlags(flags),
		IsFlagged:         len(flags) > 0,
	}
}

// Both floors must be exceeded so rounding noise on small bills stays quiet
func (e *Evaluator) underbilled(amount, expectedTotal float64) bool {
	return amount > e.cfg.RelativeFloor*expectedTotal && amount > e.cfg.AbsoluteFloor
}

func (e *Evaluator) missingFuel(s model.Shipment, expected model.ExpectedCharge) bool {
	return expected.Fuel > e.cfg.FuelExpectedMin && s.Billed.Fuel <= e.cfg.ChargedEpsilon
}

func (e *Evaluator) liftgateNotCharged(s model.Shipment, expected model.ExpectedCharge) bool {
	if s.AccessorialBasis == model.BasisAccessorialTotal {
		return expected.Liftgate-s.Billed.Accessorial > e.cfg.AccessorialGap
	}
	return s.LiftgateRequired && s.Billed.Accessorial <= e.cfg.ChargedEpsilon
}

// DuplicateCounts counts occurrences of every shipment id in the batch
func DuplicateCounts(shipments []model.Shipment) map[string]int {
	counts := make(map[string]int, len(shipments))
	for _, s := range shipments {
		counts[s.ShipmentID]++
	}
	return counts
}

func duplicateIDs(counts map[string]int) int {
	n := 0
	for _, c := range counts {
		if c > 1 {
			n++
		}
	}
	return n
}
