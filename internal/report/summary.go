// Package report aggregates audit results into summaries and renders them.
//
// Money and percentages are rounded with decimal arithmetic so that summed
// currency does not drift with float addition order.
package report

import (
	"math"
	"sort"

	"github.com/ppiankov/freightaudit/internal/model"
	"github.com/ppiankov/freightaudit/internal/reconcile"
	"github.com/shopspring/decimal"
)

// DefaultTopCustomers is the number of customers listed in a leakage summary
const DefaultTopCustomers = 5

// Round rounds v half away from zero to the given decimal places.
// NaN and infinities are returned unchanged.
func Round(v float64, places int32) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	f, _ := decimal.NewFromFloat(v).Round(places).Float64()
	return f
}

// NewLeakageReport summarizes rule results. Leakage is the positive part of
// the underbilled amount over flagged shipments; overbilling never offsets it.
func NewLeakageReport(rows []model.LeakageResult, topN int) *model.LeakageReport {
	if topN < 0 {
		topN = 0
	}

	summary := model.LeakageSummary{
		TotalShipments: len(rows),
		TopCustomers:   map[string]float64{},
		FlagCounts:     map[model.LeakageFlag]int{},
	}

	leakage := decimal.Zero
	byCustomer := map[string]decimal.Decimal{}
	for _, r := range rows {
		if !r.IsFlagged {
			continue
		}
		summary.FlaggedShipments++
		for _, f := range r.Flags {
			summary.FlagCounts[f]++
		}

		amount := decimal.NewFromFloat(positive(r.UnderbilledAmount))
		leakage = leakage.Add(amount)
		byCustomer[r.CustomerID] = byCustomer[r.CustomerID].Add(amount)
	}

	if summary.TotalShipments > 0 {
		rate := decimal.NewFromInt(int64(summary.FlaggedShipments)).
			Div(decimal.NewFromInt(int64(summary.TotalShipments))).
			Mul(decimal.NewFromInt(100))
		summary.FlagRatePct, _ = rate.Round(2).Float64()
	}
	summary.EstimatedLeakageUSD, _ = leakage.Round(2).Float64()

	for _, c := range topCustomers(byCustomer, topN) {
		summary.TopCustomers[c.id], _ = c.amount.Round(2).Float64()
	}

	return &model.LeakageReport{Rows: rows, Summary: summary}
}

type customerLeakage struct {
	id     string
	amount decimal.Decimal
}

// topCustomers returns the n largest customers by leakage, ties by id
func topCustomers(byCustomer map[string]decimal.Decimal, n int) []customerLeakage {
	list := make([]customerLeakage, 0, len(byCustomer))
	for id, amount := range byCustomer {
		list = append(list, customerLeakage{id: id, amount: amount})
	}
	sort.Slice(list, func(i, j int) bool {
		if c := list[i].amount.Cmp(list[j].amount); c != 0 {
			return c > 0
		}
		return list[i].id < list[j].id
	})
	if len(list) > n {
		list = list[:n]
	}
	return list
}

func positive(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	return v
}

// NewReconciliationReport rounds each row for presentation and summarizes the batch.
// The summary is computed from unrounded values.
func NewReconciliationReport(rows []model.ReconciliationResult) *model.ReconciliationReport {
	summary := reconcile.Summarize(rows)
	summary.PctFlagged = Round(summary.PctFlagged, 2)
	summary.TotalRecoverableUSD = Round(summary.TotalRecoverableUSD, 2)

	out := make([]model.ReconciliationResult, len(rows))
	for i, r := range rows {
		if r.RateDiffPct != nil {
			v := Round(*r.RateDiffPct, 2)
			r.RateDiffPct = &v
		}
		r.LaneSimilarity = Round(r.LaneSimilarity, 3)
		r.FuelDiffPctPoints = Round(r.FuelDiffPctPoints, 2)
		r.AccessorialSimilarity = Round(r.AccessorialSimilarity, 3)
		r.ConfidenceScore = Round(r.ConfidenceScore, 3)
		r.RecoverableAmount = Round(r.RecoverableAmount, 2)
		out[i] = r
	}

	return &model.ReconciliationReport{Rows: out, Summary: summary}
}

// FlaggedAnomalies returns at most n flagged rows of an anomaly report in
// report order. n <= 0 returns all of them.
func FlaggedAnomalies(r *model.AnomalyReport, n int) []model.AnomalyResult {
	if r == nil {
		return nil
	}
	var out []model.AnomalyResult
	for _, row := range r.Rows {
		if !row.Flag {
			continue
		}
		out = append(out, row)
		if n > 0 && len(out) == n {
			break
		}
	}
	return out
}
