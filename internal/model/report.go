package model

import (
	"strings"
	"time"
)

// AuditReport is the complete output of one audit run
type AuditReport struct {
	RunID       string      `json:"run_id"`
	Source      string      `json:"source"`
	GeneratedAt time.Time   `json:"generated_at"`
	Ingest      IngestStats `json:"ingest"`

	Leakage        *LeakageReport        `json:"leakage,omitempty"`
	Reconciliation *ReconciliationReport `json:"reconciliation,omitempty"`
	Anomaly        *AnomalyReport        `json:"anomaly,omitempty"`

	// Explanations are produced after all decisions and never affect them
	Explanations []Explanation `json:"explanations,omitempty"`
}

// IngestStats describes how the input batch was read
type IngestStats struct {
	Schema string `json:"schema"`
	Rows   int    `json:"rows"`

	// Coercions counts numeric values per column that failed to parse
	// and were defaulted to 0.0 under the lenient policy
	Coercions map[string]int `json:"coercions,omitempty"`

	// InvalidRows counts rows kept despite failing record validation
	InvalidRows int `json:"invalid_rows,omitempty"`
}

// TotalCoercions returns the number of defaulted values across all columns
func (s IngestStats) TotalCoercions() int {
	total := 0
	for _, n := range s.Coercions {
		total += n
	}
	return total
}

// LeakageFlag names a deterministic leakage rule
type LeakageFlag string

const (
	FlagUnderbilled          LeakageFlag = "UNDERBILLED"
	FlagMissingFuelSurcharge LeakageFlag = "MISSING_FUEL_SURCHARGE"
	FlagLiftgateNotCharged   LeakageFlag = "LIFTGATE_NOT_CHARGED"
	FlagPossibleDuplicate    LeakageFlag = "POSSIBLE_DUPLICATE"
)

// LeakageFlagOrder is the fixed order flags appear in a flag reason
var LeakageFlagOrder = []LeakageFlag{
	FlagUnderbilled,
	FlagMissingFuelSurcharge,
	FlagLiftgateNotCharged,
	FlagPossibleDuplicate,
}

// LeakageResult is the rule outcome for one shipment
type LeakageResult struct {
	ShipmentID        string         `json:"shipment_id"`
	CustomerID        string         `json:"customer_id"`
	Carrier           string         `json:"carrier,omitempty"`
	Expected          ExpectedCharge `json:"expected"`
	BilledTotal       float64        `json:"actual_billed_total"`
	UnderbilledAmount float64        `json:"underbilled_amount"` // expected - billed, may be negative
	Flags             []LeakageFlag  `json:"flags,omitempty"`
	FlagReason        string         `json:"flag_reason"`
	IsFlagged         bool           `json:"is_flagged"`
}

// Has reports whether the result carries the given flag
func (r LeakageResult) Has(flag LeakageFlag) bool {
	for _, f := range r.Flags {
		if f == flag {
			return true
		}
	}
	return false
}

// JoinLeakageFlags joins flags with ";" in the order given
func JoinLeakageFlags(flags []LeakageFlag) string {
	parts := make([]string, len(flags))
	for i, f := range flags {
		parts[i] = string(f)
	}
	return strings.Join(parts, ";")
}

// LeakageSummary aggregates a leakage report
type LeakageSummary struct {
	TotalShipments      int                 `json:"total_shipments"`
	FlaggedShipments    int                 `json:"flagged_shipments"`
	FlagRatePct         float64             `json:"flag_rate_pct"`
	EstimatedLeakageUSD float64             `json:"estimated_revenue_leakage_usd"`
	TopCustomers        map[string]float64  `json:"top_customers_by_leakage_usd"`
	FlagCounts          map[LeakageFlag]int `json:"flag_counts,omitempty"`
}

// LeakageReport is the leakage view of a batch
type LeakageReport struct {
	Rows    []LeakageResult `json:"rows"`
	Summary LeakageSummary  `json:"summary"`
}

// ContractFlag names a contract deviation
type ContractFlag string

const (
	FlagRateOverContract            ContractFlag = "RATE_OVER_CONTRACT"
	FlagFuelSurchargeOverContract   ContractFlag = "FUEL_SURCHARGE_OVER_CONTRACT"
	FlagUnrecognizedAccessorialDesc ContractFlag = "UNRECOGNIZED_ACCESSORIAL_DESC"
	FlagAccessorialOverCap          ContractFlag = "ACCESSORIAL_OVER_CAP"
)

// ReconcileStatus classifies a reconciliation outcome
type ReconcileStatus string

const (
	StatusOK        ReconcileStatus = "ok"
	StatusFlagged   ReconcileStatus = "flagged"
	StatusUnmatched ReconcileStatus = "unmatched" // no usable contract
)

// ReconciliationResult is the contract comparison for one invoice
type ReconciliationResult struct {
	InvoiceID   string `json:"invoice_id"`
	LoadID      string `json:"load_id"`
	Origin      string `json:"origin"`
	Destination string `json:"destination"`

	ContractIndex int           `json:"contract_index"` // -1 when unmatched
	Contract      *RateContract `json:"contract,omitempty"`

	LaneSimilarity        float64  `json:"lane_similarity"`
	RateDiffPct           *float64 `json:"rate_diff_pct"` // nil when no deviation is computable
	FuelDiffPctPoints     float64  `json:"fuel_diff_pct_points"`
	AccessorialSimilarity float64  `json:"accessorial_similarity"`
	ConfidenceScore       float64  `json:"confidence_score"`
	RecoverableAmount     float64  `json:"recoverable_amount_est"`

	Flags  []ContractFlag  `json:"flags,omitempty"`
	Status ReconcileStatus `json:"status"`
}

// FlagString joins flags with ";", "OK" when clean and "UNMATCHED" without a contract
func (r ReconciliationResult) FlagString() string {
	if r.Status == StatusUnmatched {
		return "UNMATCHED"
	}
	if len(r.Flags) == 0 {
		return "OK"
	}
	parts := make([]string, len(r.Flags))
	for i, f := range r.Flags {
		parts[i] = string(f)
	}
	return strings.Join(parts, ";")
}

// ReconciliationSummary aggregates a reconciliation report
type ReconciliationSummary struct {
	TotalInvoices       int     `json:"total_invoices"`
	PctFlagged          float64 `json:"pct_flagged"`
	TotalRecoverableUSD float64 `json:"total_recoverable_usd"`
	Unmatched           int     `json:"unmatched"`
}

// ReconciliationReport is the contract view of a batch
type ReconciliationReport struct {
	Rows    []ReconciliationResult `json:"rows"`
	Summary ReconciliationSummary  `json:"summary"`
}

// AnomalyStatus tells whether the anomaly pass ran
type AnomalyStatus string

const (
	AnomalyCompleted AnomalyStatus = "completed"
	AnomalySkipped   AnomalyStatus = "skipped"
)

// AnomalyResult is the outlier score for one shipment
type AnomalyResult struct {
	ShipmentID  string  `json:"shipment_id"`
	CustomerID  string  `json:"customer_id"`
	Carrier     string  `json:"carrier,omitempty"`
	BilledTotal float64 `json:"actual_billed_total"`
	Score       float64 `json:"anomaly_score"` // more negative = more anomalous
	Flag        bool    `json:"anomaly_flag"`
}

// AnomalyReport is the statistical view of a batch, rows sorted by ascending score
type AnomalyReport struct {
	Status        AnomalyStatus   `json:"status"`
	Reason        string          `json:"reason,omitempty"`
	Detector      string          `json:"detector,omitempty"`
	Contamination float64         `json:"contamination"`
	Seed          int64           `json:"seed"`
	Features      []string        `json:"features,omitempty"`
	Flagged       int             `json:"flagged"`
	Rows          []AnomalyResult `json:"rows,omitempty"`
}

// Explanation is human-readable text for a flagged shipment
type Explanation struct {
	ShipmentID string `json:"shipment_id"`
	Text       string `json:"explanation"`
	Model      string `json:"model,omitempty"`
	UsedLLM    bool   `json:"used_llm"`
}
