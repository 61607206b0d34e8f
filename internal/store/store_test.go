package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/ppiankov/freightaudit/internal/model"
)

func sampleReport() *model.AuditReport {
	flags := []model.LeakageFlag{model.FlagUnderbilled}
	return &model.AuditReport{
		RunID:       "6f1d7c1e-8a55-4f3e-9c0e-0d7f5b8e2a11",
		Source:      "shipments.csv",
		GeneratedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Ingest:      model.IngestStats{Schema: "standard", Rows: 2},
		Leakage: &model.LeakageReport{
			Rows: []model.LeakageResult{
				{ShipmentID: "S1", CustomerID: "C1", BilledTotal: 387.2, Expected: model.NewExpectedCharge(352, 35.2, 0)},
				{
					ShipmentID:        "S2",
					CustomerID:        "C2",
					BilledTotal:       300,
					Expected:          model.NewExpectedCharge(352, 35.2, 0),
					UnderbilledAmount: 87.2,
					Flags:             flags,
					FlagReason:        "UNDERBILLED",
					IsFlagged:         true,
				},
			},
			Summary: model.LeakageSummary{TotalShipments: 2, FlaggedShipments: 1, FlagRatePct: 50, EstimatedLeakageUSD: 87.2},
		},
		Reconciliation: &model.ReconciliationReport{
			Summary: model.ReconciliationSummary{TotalInvoices: 3, TotalRecoverableUSD: 450},
		},
		Anomaly: &model.AnomalyReport{Status: model.AnomalySkipped, Reason: "anomaly scoring disabled"},
	}
}

func TestNewRun(t *testing.T) {
	r := sampleReport()
	run, err := NewRun(r)
	require.NoError(t, err)

	assert.Equal(t, r.RunID, run.ID)
	assert.Equal(t, "shipments.csv", run.Source)
	assert.Equal(t, "standard", run.Schema)
	assert.Equal(t, 2, run.Rows)
	assert.Equal(t, 1, run.FlaggedShipments)
	assert.Equal(t, 87.2, run.EstimatedLeakageUSD)
	assert.Equal(t, 3, run.TotalInvoices)
	assert.Equal(t, 450.0, run.TotalRecoverableUSD)
	assert.Equal(t, "skipped", run.AnomalyStatus)

	require.Len(t, run.Findings, 1, "only flagged shipments become findings")
	f := run.Findings[0]
	assert.Equal(t, r.RunID, f.RunID)
	assert.Equal(t, "S2", f.ShipmentID)
	assert.Equal(t, "UNDERBILLED", f.FlagReason)
	assert.Equal(t, 87.2, f.UnderbilledAmount)
	assert.InDelta(t, 387.2, f.ExpectedTotal, 1e-9)
}

func TestNewRun_RoundTripsReport(t *testing.T) {
	r := sampleReport()
	run, err := NewRun(r)
	require.NoError(t, err)

	decoded, err := DecodeReport(run)
	require.NoError(t, err)
	assert.Equal(t, r.RunID, decoded.RunID)
	assert.True(t, r.GeneratedAt.Equal(decoded.GeneratedAt))
	assert.Equal(t, r.Leakage.Summary.FlaggedShipments, decoded.Leakage.Summary.FlaggedShipments)
	assert.Equal(t, r.Anomaly.Reason, decoded.Anomaly.Reason)
}

func TestNewRun_EmptyViews(t *testing.T) {
	run, err := NewRun(&model.AuditReport{RunID: "r1"})
	require.NoError(t, err)
	assert.Empty(t, run.Findings)
	assert.Empty(t, run.AnomalyStatus)
	assert.Zero(t, run.TotalInvoices)
}

func TestDecodeReport_Corrupt(t *testing.T) {
	_, err := DecodeReport(&AuditRun{ID: "r1", Report: []byte("{")})
	assert.Error(t, err)
}

func TestDialector(t *testing.T) {
	d, err := Dialector("postgres", "host=localhost user=audit dbname=audit sslmode=disable")
	require.NoError(t, err)
	assert.Equal(t, "postgres", d.Name())

	d, err = Dialector("MySQL", "audit:secret@tcp(localhost:3306)/audit?parseTime=true")
	require.NoError(t, err)
	assert.Equal(t, "mysql", d.Name())

	_, err = Dialector("sqlite", "file.db")
	assert.ErrorIs(t, err, ErrUnknownDriver)
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open("oracle", "dsn", nil)
	assert.ErrorIs(t, err, ErrUnknownDriver)
}

// dryRunDB builds statements without a database server
func dryRunDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(postgres.Open("host=localhost user=audit dbname=audit sslmode=disable"), &gorm.Config{
		DryRun:               true,
		DisableAutomaticPing: true,
	})
	require.NoError(t, err)
	return db
}

func TestFindings_Query(t *testing.T) {
	db := dryRunDB(t)

	sql := db.ToSQL(func(tx *gorm.DB) *gorm.DB {
		return findingsQuery(tx, "run-1").Find(&[]LeakageFinding{})
	})
	assert.Contains(t, sql, `FROM "leakage_findings"`)
	assert.Contains(t, sql, "run_id = 'run-1'")
	assert.Contains(t, sql, "ORDER BY underbilled_amount DESC, shipment_id")

	findings, err := New(db, nil).Findings(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Empty(t, findings)
}
