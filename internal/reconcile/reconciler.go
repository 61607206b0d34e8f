// Package reconcile matches carrier invoices against the rate contract table
// and estimates what can be recovered from each deviation.
package reconcile

import (
	"context"
	"errors"
	"runtime"

	"go.uber.org/zap"

	"github.com/ppiankov/freightaudit/internal/model"
	"github.com/ppiankov/freightaudit/internal/worker"
)

// ErrNoContracts is returned when the contract table has no rows
var ErrNoContracts = errors.New("contract table is empty")

// Reconciler compares invoices with a fixed contract table.
// Contracts with a rate per mile of zero or less are never matched, since no
// rate deviation can be computed against them.
type Reconciler struct {
	cfg       model.ReconcileConfig
	contracts []model.RateContract

	lanes   []string // normalised lane per contract
	origins []string
	dests   []string

	memo    *laneMemo
	workers int
	logger  *zap.Logger
}

// Option configures a Reconciler
type Option func(*Reconciler)

// WithWorkers sets the number of per-invoice workers (0 = NumCPU)
func WithWorkers(n int) Option {
	return func(r *Reconciler) {
		r.workers = n
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(r *Reconciler) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewReconciler creates a reconciler over contracts
func NewReconciler(contracts []model.RateContract, cfg model.ReconcileConfig, opts ...Option) (*Reconciler, error) {
	if len(contracts) == 0 {
		return nil, ErrNoContracts
	}

	r := &Reconciler{
		cfg:       cfg,
		contracts: contracts,
		lanes:     make([]string, len(contracts)),
		origins:   make([]string, len(contracts)),
		dests:     make([]string, len(contracts)),
		memo:      newLaneMemo(cfg.MemoTTL),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.workers <= 0 {
		r.workers = runtime.NumCPU()
	}

	skipped := 0
	for i, c := range contracts {
		r.origins[i] = Normalize(c.Origin)
		r.dests[i] = Normalize(c.Destination)
		r.lanes[i] = LaneKey(c.Origin, c.Destination)
		if !usable(c) {
			skipped++
		}
	}
	if skipped > 0 {
		r.logger.Warn("contracts without a positive rate per mile are never matched",
			zap.Int("skipped", skipped),
			zap.Int("contracts", len(contracts)))
	}

	return r, nil
}

func usable(c model.RateContract) bool {
	// NaN fails this too
	return c.ContractRatePerMile > 0
}

// Match returns the index of the best usable contract for an invoice and its
// lane similarity. Ties go to the first contract in table order. The index is
// -1 when no contract is usable.
func (r *Reconciler) Match(inv model.Invoice) (int, float64) {
	lane := LaneKey(inv.Origin, inv.Destination)
	if m, ok := r.memo.get(lane); ok {
		return m.index, m.similarity
	}

	m := r.bestOf(lane, r.candidates(Normalize(inv.Origin), Normalize(inv.Destination)))
	if m.index < 0 && r.cfg.CandidatePrefixLen > 0 {
		m = r.bestOf(lane, nil)
	}

	r.memo.put(lane, m)
	return m.index, m.similarity
}

// candidates pre-filters contracts sharing an origin or destination prefix.
// nil means the full table.
func (r *Reconciler) candidates(origin, dest string) []int {
	n := r.cfg.CandidatePrefixLen
	if n <= 0 {
		return nil
	}

	op, dp := prefix(origin, n), prefix(dest, n)
	var out []int
	for i := range r.contracts {
		if prefix(r.origins[i], n) == op || prefix(r.dests[i], n) == dp {
			out = append(out, i)
		}
	}
	return out
}

func (r *Reconciler) bestOf(lane string, candidates []int) laneMatch {
	best := laneMatch{index: -1}

	consider := func(i int) {
		if !usable(r.contracts[i]) {
			return
		}
		sim := Similarity(lane, r.lanes[i])
		if best.index < 0 || sim > best.similarity {
			best = laneMatch{index: i, similarity: sim}
		}
	}

	if candidates == nil {
		for i := range r.contracts {
			consider(i)
		}
	} else {
		for _, i := range candidates {
			consider(i)
		}
	}
	return best
}

func prefix(s string, n int) string {
	rs := []rune(s)
	if len(rs) <= n {
		return s
	}
	return string(rs[:n])
}

// ReconcileOne compares a single invoice with its best matching contract
func (r *Reconciler) ReconcileOne(inv model.Invoice) model.ReconciliationResult {
	res := model.ReconciliationResult{
		InvoiceID:     inv.InvoiceID,
		LoadID:        inv.LoadID,
		Origin:        inv.Origin,
		Destination:   inv.Destination,
		ContractIndex: -1,
	}

	idx, laneSim := r.Match(inv)
	if idx < 0 {
		r.logger.Debug("no usable contract for invoice",
			zap.String("invoice_id", inv.InvoiceID),
			zap.String("lane", inv.Lane()))
		res.Status = model.StatusUnmatched
		return res
	}

	c := r.contracts[idx]
	res.ContractIndex = idx
	res.Contract = &c
	res.LaneSimilarity = laneSim

	rateDiff := (inv.RateBilledPerMile - c.ContractRatePerMile) / c.ContractRatePerMile * 100
	res.RateDiffPct = &rateDiff
	res.FuelDiffPctPoints = inv.FuelSurchargePct - c.AllowedFuelSurchargePct
	res.AccessorialSimilarity = Similarity(Normalize(inv.AccessorialDesc), Normalize(c.AllowedAccessorialDesc))
	res.ConfidenceScore = (res.LaneSimilarity + res.AccessorialSimilarity) / 2

	if rateDiff > r.cfg.RateTolerancePct {
		res.Flags = append(res.Flags, model.FlagRateOverContract)
	}
	if inv.FuelSurchargePct > c.AllowedFuelSurchargePct {
		res.Flags = append(res.Flags, model.FlagFuelSurchargeOverContract)
	}
	if res.AccessorialSimilarity < r.cfg.AccessorialMinSimilarity {
		res.Flags = append(res.Flags, model.FlagUnrecognizedAccessorialDesc)
	}
	if inv.AccessorialAmount > c.AllowedAccessorialCap {
		res.Flags = append(res.Flags, model.FlagAccessorialOverCap)
	}

	res.RecoverableAmount = Recoverable(inv, c)

	res.Status = model.StatusOK
	if len(res.Flags) > 0 {
		res.Status = model.StatusFlagged
	}
	return res
}

// Recoverable estimates the overcharge on an invoice against contract c.
// Every term is floored at zero so the estimate is never negative.
func Recoverable(inv model.Invoice, c model.RateContract) float64 {
	rateOver := floor0(inv.RateBilledPerMile-c.ContractRatePerMile) * inv.MilesBilled

	var fuelOver float64
	if over := inv.FuelSurchargePct - c.AllowedFuelSurchargePct; over > 0 {
		fuelOver = c.ContractRatePerMile * inv.MilesBilled * over / 100
	}

	accessorialOver := inv.AccessorialAmount - c.AllowedAccessorialCap

	return floor0(rateOver) + floor0(fuelOver) + floor0(accessorialOver)
}

// floor0 also maps NaN to zero
func floor0(v float64) float64 {
	if v > 0 {
		return v
	}
	return 0
}

// Reconcile compares every invoice; results keep input order
func (r *Reconciler) Reconcile(ctx context.Context, invoices []model.Invoice) ([]model.ReconciliationResult, error) {
	results, err := worker.Map(ctx, r.workers, len(invoices), func(_ context.Context, i int) model.ReconciliationResult {
		return r.ReconcileOne(invoices[i])
	})
	if err != nil {
		return nil, err
	}

	r.logger.Debug("invoices reconciled",
		zap.Int("invoices", len(invoices)),
		zap.Int("contracts", len(r.contracts)),
		zap.Int("distinct_lanes", r.memo.len()))

	return results, nil
}

// Summarize aggregates reconciliation results. Unmatched invoices are counted
// separately and are not part of the flagged share.
func Summarize(results []model.ReconciliationResult) model.ReconciliationSummary {
	sum := model.ReconciliationSummary{TotalInvoices: len(results)}

	flagged := 0
	for _, res := range results {
		switch res.Status {
		case model.StatusFlagged:
			flagged++
		case model.StatusUnmatched:
			sum.Unmatched++
		}
		sum.TotalRecoverableUSD += res.RecoverableAmount
	}

	if sum.TotalInvoices > 0 {
		sum.PctFlagged = float64(flagged) / float64(sum.TotalInvoices) * 100
	}
	return sum
}
