package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/freightaudit/internal/ingest"
	"github.com/ppiankov/freightaudit/internal/model"
	"github.com/ppiankov/freightaudit/internal/reconcile"
	"github.com/ppiankov/freightaudit/internal/score"
)

// fakeDetector flags the first row and scores rows by position
type fakeDetector struct {
	err error
}

func (d fakeDetector) Score(ctx context.Context, features [][]float64, contamination float64, seed int64) ([]bool, []float64, error) {
	if d.err != nil {
		return nil, nil, d.err
	}
	flags := make([]bool, len(features))
	scores := make([]float64, len(features))
	for i := range features {
		scores[i] = float64(i) - 0.5
	}
	if len(flags) > 0 {
		flags[0] = true
	}
	return flags, scores, nil
}

type fakeStore struct {
	mu   sync.Mutex
	runs []*model.AuditReport
	err  error
}

func (s *fakeStore) SaveRun(ctx context.Context, r *model.AuditReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.runs = append(s.runs, r)
	return nil
}

var fixedTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testConfig() *model.Config {
	cfg := model.DefaultConfig()
	cfg.Concurrency.Workers = 2
	cfg.Cache.Enabled = false
	return cfg
}

func newTestPipeline(t *testing.T, cfg *model.Config, opts ...Option) *Pipeline {
	t.Helper()
	opts = append([]Option{
		WithDetector("fake", fakeDetector{}),
		WithClock(func() time.Time { return fixedTime }),
	}, opts...)
	p, err := New(cfg, opts...)
	require.NoError(t, err)
	return p
}

// shipment is a 500 mile, 1000 lb, class 70 move: expected 352 + 35.20 = 387.20
func shipment(id string, billedTotal float64) model.Shipment {
	return model.Shipment{
		ShipmentID:       id,
		CustomerID:       "C-" + id,
		DistanceMiles:    500,
		WeightLb:         1000,
		FreightClass:     70,
		Billed:           model.Charges{Linehaul: billedTotal - 35.2, Fuel: 35.2, Total: billedTotal},
		AccessorialBasis: model.BasisLiftgateFee,
	}
}

func shipmentBatch() *ingest.ShipmentBatch {
	shipments := []model.Shipment{
		shipment("S100", 387.2),
		shipment("S100", 387.2),
		shipment("S200", 300),
		shipment("S300", 387.2),
	}
	return &ingest.ShipmentBatch{
		Shipments: shipments,
		Stats:     model.IngestStats{Schema: ingest.SchemaStandard, Rows: len(shipments)},
	}
}

func contractInput() ([]model.RateContract, []model.Invoice) {
	contracts := []model.RateContract{{
		Origin:                  "Dallas, TX",
		Destination:             "Houston, TX",
		ContractRatePerMile:     2.50,
		AllowedFuelSurchargePct: 10,
		AllowedAccessorialDesc:  "Liftgate",
		AllowedAccessorialCap:   75,
	}}
	invoices := []model.Invoice{{
		InvoiceID:         "I1",
		LoadID:            "L1",
		Origin:            "Dallas, TX",
		Destination:       "Houston, TX",
		RateBilledPerMile: 3.00,
		MilesBilled:       900,
		FuelSurchargePct:  10,
		AccessorialDesc:   "Liftgate",
		AccessorialAmount: 50,
	}}
	return contracts, invoices
}

func TestPipeline_Run_AllViews(t *testing.T) {
	store := &fakeStore{}
	p := newTestPipeline(t, testConfig(), WithStore(store))

	contracts, invoices := contractInput()
	out, err := p.Run(context.Background(), Input{
		Source:    "shipments.csv",
		Shipments: shipmentBatch(),
		Contracts: contracts,
		Invoices:  invoices,
	})
	require.NoError(t, err)

	_, err = uuid.Parse(out.RunID)
	assert.NoError(t, err, "run id should be a uuid")
	assert.Equal(t, fixedTime, out.GeneratedAt)
	assert.Equal(t, "shipments.csv", out.Source)
	assert.Equal(t, 4, out.Ingest.Rows)

	require.NotNil(t, out.Leakage)
	rows := out.Leakage.Rows
	require.Len(t, rows, 4)
	assert.InDelta(t, 387.2, rows[0].Expected.Total, 1e-9)
	assert.Equal(t, "POSSIBLE_DUPLICATE", rows[0].FlagReason)
	assert.Equal(t, "POSSIBLE_DUPLICATE", rows[1].FlagReason)
	assert.Equal(t, "UNDERBILLED", rows[2].FlagReason)
	assert.False(t, rows[3].IsFlagged)
	assert.Equal(t, 3, out.Leakage.Summary.FlaggedShipments)
	assert.Equal(t, 75.0, out.Leakage.Summary.FlagRatePct)
	assert.Equal(t, 87.2, out.Leakage.Summary.EstimatedLeakageUSD)

	require.NotNil(t, out.Reconciliation)
	rec := out.Reconciliation.Rows[0]
	require.NotNil(t, rec.RateDiffPct)
	assert.Equal(t, 20.0, *rec.RateDiffPct)
	assert.Equal(t, "RATE_OVER_CONTRACT", rec.FlagString())
	assert.Equal(t, 450.0, rec.RecoverableAmount)
	assert.Equal(t, 100.0, out.Reconciliation.Summary.PctFlagged)

	require.NotNil(t, out.Anomaly)
	assert.Equal(t, model.AnomalyCompleted, out.Anomaly.Status)
	assert.Equal(t, "fake", out.Anomaly.Detector)
	assert.Equal(t, 1, out.Anomaly.Flagged)
	assert.Equal(t, "S100", out.Anomaly.Rows[0].ShipmentID)

	require.Len(t, out.Explanations, 3)
	assert.Equal(t, "S200", out.Explanations[2].ShipmentID)
	assert.Contains(t, out.Explanations[2].Text, "Estimated underbilling: $87.20.")
	assert.False(t, out.Explanations[2].UsedLLM)

	require.Len(t, store.runs, 1)
	assert.Equal(t, out.RunID, store.runs[0].RunID)
}

func TestPipeline_Run_AnomalyFailureDoesNotFailRun(t *testing.T) {
	p := newTestPipeline(t, testConfig(), WithDetector("broken", fakeDetector{err: errors.New("matrix too small")}))

	out, err := p.Run(context.Background(), Input{Shipments: shipmentBatch()})
	require.NoError(t, err)

	require.NotNil(t, out.Leakage)
	require.NotNil(t, out.Anomaly)
	assert.Equal(t, model.AnomalySkipped, out.Anomaly.Status)
	assert.Contains(t, out.Anomaly.Reason, "matrix too small")
	assert.Nil(t, out.Reconciliation)
}

func TestPipeline_Run_DetectorUnavailable(t *testing.T) {
	unavailable := fakeDetector{err: score.ErrDetectorUnavailable}
	p := newTestPipeline(t, testConfig(), WithDetector("onnx", unavailable))

	out, err := p.Run(context.Background(), Input{Shipments: shipmentBatch()})
	require.NoError(t, err)
	assert.Equal(t, model.AnomalySkipped, out.Anomaly.Status)
	assert.Equal(t, 3, out.Leakage.Summary.FlaggedShipments)
}

func TestPipeline_Run_AnomalyDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.Anomaly.Enabled = false
	cfg.Output.Explanations = false
	p := newTestPipeline(t, cfg)

	out, err := p.Run(context.Background(), Input{Shipments: shipmentBatch()})
	require.NoError(t, err)
	assert.Equal(t, model.AnomalySkipped, out.Anomaly.Status)
	assert.Empty(t, out.Explanations)
}

func TestPipeline_Run_ReconcileOnly(t *testing.T) {
	p := newTestPipeline(t, testConfig())

	contracts, invoices := contractInput()
	out, err := p.Run(context.Background(), Input{Contracts: contracts, Invoices: invoices})
	require.NoError(t, err)
	assert.Nil(t, out.Leakage)
	assert.Nil(t, out.Anomaly)
	require.NotNil(t, out.Reconciliation)
	assert.Equal(t, 1, out.Reconciliation.Summary.TotalInvoices)
}

func TestPipeline_Run_NothingToAudit(t *testing.T) {
	p := newTestPipeline(t, testConfig())

	contracts, _ := contractInput()
	_, err := p.Run(context.Background(), Input{Contracts: contracts})
	assert.ErrorContains(t, err, "nothing to audit")
}

func TestPipeline_Run_InvoicesWithoutContracts(t *testing.T) {
	p := newTestPipeline(t, testConfig())
	_, invoices := contractInput()

	_, err := p.Run(context.Background(), Input{Invoices: invoices})
	assert.ErrorIs(t, err, reconcile.ErrNoContracts)

	_, err = p.Run(context.Background(), Input{Shipments: shipmentBatch(), Invoices: invoices})
	assert.ErrorIs(t, err, reconcile.ErrNoContracts)
}

func TestNewLimiter_ProviderOverrides(t *testing.T) {
	l := newLimiter(model.RateLimitConfig{
		RequestsPerSecond: 0.001,
		BurstSize:         1,
		Providers:         map[string]float64{"ollama": 0},
	})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	require.NoError(t, l.Wait(ctx, "openai"))
	assert.Error(t, l.Wait(ctx, "openai"), "default rate must still apply")

	for i := 0; i < 3; i++ {
		require.NoError(t, l.Wait(ctx, "ollama"))
	}
}

func TestPipeline_Run_Cancelled(t *testing.T) {
	p := newTestPipeline(t, testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Run(ctx, Input{Shipments: shipmentBatch()})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPipeline_Run_StoreError(t *testing.T) {
	p := newTestPipeline(t, testConfig(), WithStore(&fakeStore{err: errors.New("db down")}))

	_, err := p.Run(context.Background(), Input{Shipments: shipmentBatch()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")
}

func TestPipeline_Run_Deterministic(t *testing.T) {
	cfg := testConfig()
	cfg.Anomaly.Trees = 50
	p1, err := New(cfg, WithClock(func() time.Time { return fixedTime }))
	require.NoError(t, err)
	p2, err := New(cfg, WithClock(func() time.Time { return fixedTime }))
	require.NoError(t, err)

	batch := shipmentBatch()
	for i := 0; i < 20; i++ {
		batch.Shipments = append(batch.Shipments, shipment("N"+string(rune('a'+i)), 387.2+float64(i)))
	}

	a, err := p1.Run(context.Background(), Input{Shipments: batch})
	require.NoError(t, err)
	b, err := p2.Run(context.Background(), Input{Shipments: batch})
	require.NoError(t, err)

	assert.Equal(t, a.Leakage, b.Leakage)
	assert.Equal(t, a.Anomaly, b.Anomaly)
	assert.Equal(t, a.Explanations, b.Explanations)
	assert.NotEqual(t, a.RunID, b.RunID)
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Anomaly.Contamination = 0.9
	_, err := New(cfg)
	assert.Error(t, err)
}

func TestPipeline_AuditFiles(t *testing.T) {
	dir := t.TempDir()
	shipments := filepath.Join(dir, "shipments.csv")
	contracts := filepath.Join(dir, "contracts.yaml")
	invoices := filepath.Join(dir, "invoices.csv")

	require.NoError(t, os.WriteFile(shipments, []byte(
		"shipment_id,customer_id,ship_date,origin_zip,destination_zip,distance_miles,weight_lb,freight_class,liftgate_required,liftgate_fee_charged,fuel_surcharge_amount,base_linehaul_amount,actual_billed_total\n"+
			"S1,C1,2024-03-01,60601,75201,500,1000,70,no,0,35.2,352,387.2\n"+
			"S2,C2,2024-03-01,60601,75201,500,1000,70,no,0,0,300,300\n"), 0644))
	require.NoError(t, os.WriteFile(contracts, []byte(
		"contracts:\n"+
			"  - origin: Dallas, TX\n"+
			"    destination: Houston, TX\n"+
			"    contract_rate_per_mile: 2.5\n"+
			"    allowed_fuel_surcharge_pct: 10\n"+
			"    allowed_accessorial_desc: Liftgate\n"+
			"    allowed_accessorial_cap: 75\n"), 0644))
	require.NoError(t, os.WriteFile(invoices, []byte(
		"invoice_id,load_id,origin,destination,rate_billed_per_mile,miles_billed,fuel_surcharge_pct,accessorial_desc,accessorial_amount\n"+
			"I1,L1,\"Dallas, TX\",\"Houston, TX\",3.00,900,10,Liftgate,50\n"), 0644))

	p := newTestPipeline(t, testConfig())
	out, err := p.AuditFiles(context.Background(), Files{Shipments: shipments, Contracts: contracts, Invoices: invoices})
	require.NoError(t, err)

	assert.Equal(t, shipments, out.Source)
	assert.Equal(t, "standard", out.Ingest.Schema)
	require.Len(t, out.Leakage.Rows, 2)
	assert.Equal(t, "UNDERBILLED;MISSING_FUEL_SURCHARGE", out.Leakage.Rows[1].FlagReason)
	require.NotNil(t, out.Reconciliation)
	assert.Equal(t, 450.0, out.Reconciliation.Summary.TotalRecoverableUSD)

	paths, err := p.Render(out, filepath.Join(dir, "out"))
	require.NoError(t, err)
	assert.Len(t, paths, 4, "json plus leakage, reconciliation and anomaly CSVs")
}

func TestPipeline_AuditFile_MissingColumns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.csv")
	require.NoError(t, os.WriteFile(path, []byte("shipment_id,customer_id\nS1,C1\n"), 0644))

	p := newTestPipeline(t, testConfig())
	_, err := p.AuditFile(context.Background(), path)

	var schemaErr *ingest.SchemaError
	assert.ErrorAs(t, err, &schemaErr)
}

func TestPipeline_Decode(t *testing.T) {
	p := newTestPipeline(t, testConfig())

	in, err := p.Decode(Streams{
		Source: "upload.csv",
		Invoices: strings.NewReader(
			"invoice_id,load_id,origin,destination,rate_billed_per_mile,miles_billed,fuel_surcharge_pct,accessorial_desc,accessorial_amount\n" +
				"I1,L1,\"Dallas, TX\",\"Houston, TX\",3.00,900,10,Liftgate,50\n"),
		Contracts: strings.NewReader(
			"origin,destination,contract_rate_per_mile,allowed_fuel_surcharge_pct,allowed_accessorial_desc,allowed_accessorial_cap\n" +
				"\"Dallas, TX\",\"Houston, TX\",2.5,10,Liftgate,75\n"),
		ContractsName: "contracts.csv",
	})
	require.NoError(t, err)

	assert.Nil(t, in.Shipments)
	assert.Equal(t, "upload.csv", in.Source)
	require.Len(t, in.Contracts, 1)
	require.Len(t, in.Invoices, 1)
	assert.Equal(t, 2.5, in.Contracts[0].ContractRatePerMile)
}
