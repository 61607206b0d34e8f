// Package score flags statistically unusual shipments with a pluggable
// outlier detector.
package score

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/ppiankov/freightaudit/internal/model"
	"github.com/ppiankov/freightaudit/internal/rating"
)

// Scorer builds the feature matrix for a batch and runs the detector on it
type Scorer struct {
	cfg          model.AnomalyConfig
	rates        *rating.Model
	features     []Feature
	detector     Detector
	detectorName string
	detectorErr  error
	logger       *zap.Logger
}

// Option configures a Scorer
type Option func(*Scorer)

// WithDetector replaces the configured detector
func WithDetector(name string, d Detector) Option {
	return func(s *Scorer) {
		s.detector = d
		s.detectorName = name
		s.detectorErr = nil
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(s *Scorer) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewScorer creates a scorer. An unavailable detector is not an error here;
// Score reports the pass as skipped instead.
func NewScorer(cfg model.AnomalyConfig, rates *rating.Model, opts ...Option) (*Scorer, error) {
	features, err := SelectFeatures(cfg.Features)
	if err != nil {
		return nil, err
	}
	if rates == nil {
		rates = rating.NewDefaultModel()
	}

	s := &Scorer{
		cfg:          cfg,
		rates:        rates,
		features:     features,
		detectorName: cfg.Detector,
		logger:       zap.NewNop(),
	}
	s.detector, s.detectorErr = NewDetector(cfg)

	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Score scores every shipment. Rows come back sorted by ascending score, so
// the most anomalous shipments are first. A disabled or unavailable detector
// yields a skipped report and no error.
func (s *Scorer) Score(ctx context.Context, shipments []model.Shipment) (*model.AnomalyReport, error) {
	report := &model.AnomalyReport{
		Detector:      s.detectorName,
		Contamination: s.cfg.Contamination,
		Seed:          s.cfg.Seed,
		Features:      FeatureNames(s.features),
	}

	if !s.cfg.Enabled {
		return skipped(report, "anomaly scoring disabled"), nil
	}
	if s.detectorErr != nil {
		if errors.Is(s.detectorErr, ErrDetectorUnavailable) {
			s.logger.Warn("anomaly pass skipped", zap.Error(s.detectorErr))
			return skipped(report, s.detectorErr.Error()), nil
		}
		return nil, s.detectorErr
	}
	if err := ValidateContamination(s.cfg.Contamination); err != nil {
		return nil, err
	}

	expected := make([]model.ExpectedCharge, len(shipments))
	for i, sh := range shipments {
		expected[i] = s.rates.Expected(sh)
	}
	matrix := Matrix(shipments, expected, s.features)

	flags, scores, err := s.detector.Score(ctx, matrix, s.cfg.Contamination, s.cfg.Seed)
	if err != nil {
		if errors.Is(err, ErrDetectorUnavailable) {
			s.logger.Warn("anomaly pass skipped", zap.Error(err))
			return skipped(report, err.Error()), nil
		}
		return nil, fmt.Errorf("anomaly detector %s: %w", s.detectorName, err)
	}
	if len(flags) != len(shipments) || len(scores) != len(shipments) {
		return nil, fmt.Errorf("anomaly detector %s returned %d flags and %d scores for %d shipments",
			s.detectorName, len(flags), len(scores), len(shipments))
	}

	rows := make([]model.AnomalyResult, len(shipments))
	for i, sh := range shipments {
		rows[i] = model.AnomalyResult{
			ShipmentID:  sh.ShipmentID,
			CustomerID:  sh.CustomerID,
			Carrier:     sh.Carrier,
			BilledTotal: sh.Billed.Total,
			Score:       scores[i],
			Flag:        flags[i],
		}
		if flags[i] {
			report.Flagged++
		}
	}
	SortByScore(rows)

	report.Status = model.AnomalyCompleted
	report.Rows = rows

	s.logger.Debug("anomaly pass completed",
		zap.String("detector", s.detectorName),
		zap.Int("shipments", len(rows)),
		zap.Int("flagged", report.Flagged))

	return report, nil
}

// SortByScore orders rows by ascending score, ties by shipment id
func SortByScore(rows []model.AnomalyResult) {
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Score != rows[j].Score {
			return rows[i].Score < rows[j].Score
		}
		return rows[i].ShipmentID < rows[j].ShipmentID
	})
}

func skipped(report *model.AnomalyReport, reason string) *model.AnomalyReport {
	report.Status = model.AnomalySkipped
	report.Reason = reason
	return report
}
