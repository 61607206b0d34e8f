// Package store persists audit runs in PostgreSQL or MySQL through gorm.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/ppiankov/freightaudit/internal/model"
)

var (
	// ErrUnknownDriver is returned for a driver other than postgres or mysql
	ErrUnknownDriver = errors.New("unknown store driver")

	// ErrNotFound is returned when a run id does not exist
	ErrNotFound = errors.New("audit run not found")
)

// Store saves and loads audit runs
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

// Dialector returns the gorm dialector for driver without connecting
func Dialector(driver, dsn string) (gorm.Dialector, error) {
	switch strings.ToLower(driver) {
	case "postgres", "postgresql":
		return postgres.Open(dsn), nil
	case "mysql":
		return mysql.Open(dsn), nil
	default:
		return nil, fmt.Errorf("%w: %q (supported: postgres, mysql)", ErrUnknownDriver, driver)
	}
}

// Open connects to the database and migrates the schema
func Open(driver, dsn string, logger *zap.Logger) (*Store, error) {
	dialector, err := Dialector(driver, dsn)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", driver, err)
	}

	s := New(db, logger)
	if err := s.Migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

// New wraps an open gorm connection
func New(db *gorm.DB, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{db: db, logger: logger}
}

// Migrate creates or updates the tables
func (s *Store) Migrate() error {
	if err := s.db.AutoMigrate(&AuditRun{}, &LeakageFinding{}); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// NewRun converts a report into its persisted form. Only flagged shipments
// become findings.
func NewRun(r *model.AuditReport) (*AuditRun, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshal report: %w", err)
	}

	run := &AuditRun{
		ID:          r.RunID,
		Source:      r.Source,
		GeneratedAt: r.GeneratedAt,
		Schema:      r.Ingest.Schema,
		Rows:        r.Ingest.Rows,
		Report:      datatypes.JSON(data),
	}

	if r.Leakage != nil {
		run.FlaggedShipments = r.Leakage.Summary.FlaggedShipments
		run.EstimatedLeakageUSD = r.Leakage.Summary.EstimatedLeakageUSD
		for _, row := range r.Leakage.Rows {
			if !row.IsFlagged {
				continue
			}
			run.Findings = append(run.Findings, LeakageFinding{
				RunID:             r.RunID,
				ShipmentID:        row.ShipmentID,
				CustomerID:        row.CustomerID,
				FlagReason:        row.FlagReason,
				UnderbilledAmount: row.UnderbilledAmount,
				ExpectedTotal:     row.Expected.Total,
				BilledTotal:       row.BilledTotal,
			})
		}
	}
	if r.Reconciliation != nil {
		run.TotalInvoices = r.Reconciliation.Summary.TotalInvoices
		run.TotalRecoverableUSD = r.Reconciliation.Summary.TotalRecoverableUSD
	}
	if r.Anomaly != nil {
		run.AnomalyStatus = string(r.Anomaly.Status)
	}

	return run, nil
}

// SaveRun stores a run and its findings in one transaction
func (s *Store) SaveRun(ctx context.Context, r *model.AuditReport) error {
	run, err := NewRun(r)
	if err != nil {
		return err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(run).Error
	})
	if err != nil {
		return fmt.Errorf("save run %s: %w", r.RunID, err)
	}

	s.logger.Debug("audit run saved",
		zap.String("run_id", run.ID),
		zap.Int("findings", len(run.Findings)))
	return nil
}

// GetRun loads the full report of a run
func (s *Store) GetRun(ctx context.Context, id string) (*model.AuditReport, error) {
	var run AuditRun
	err := s.db.WithContext(ctx).First(&run, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load run %s: %w", id, err)
	}
	return DecodeReport(&run)
}

// DecodeReport restores the report stored with a run
func DecodeReport(run *AuditRun) (*model.AuditReport, error) {
	var r model.AuditReport
	if err := json.Unmarshal(run.Report, &r); err != nil {
		return nil, fmt.Errorf("decode run %s: %w", run.ID, err)
	}
	return &r, nil
}

// ListRuns returns the most recent runs without their report payloads
func (s *Store) ListRuns(ctx context.Context, limit int) ([]AuditRun, error) {
	if limit <= 0 {
		limit = 50
	}
	var runs []AuditRun
	err := s.db.WithContext(ctx).
		Omit("report").
		Order("generated_at DESC").
		Limit(limit).
		Find(&runs).Error
	return runs, err
}

// Findings returns the flagged shipments of a run, largest underbilling first
func (s *Store) Findings(ctx context.Context, runID string) ([]LeakageFinding, error) {
	var findings []LeakageFinding
	if err := findingsQuery(s.db.WithContext(ctx), runID).Find(&findings).Error; err != nil {
		return nil, fmt.Errorf("load findings of run %s: %w", runID, err)
	}
	return findings, nil
}

func findingsQuery(tx *gorm.DB, runID string) *gorm.DB {
	return tx.Model(&LeakageFinding{}).
		Where("run_id = ?", runID).
		Order("underbilled_amount DESC, shipment_id")
}
