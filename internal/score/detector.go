package score

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/ppiankov/freightaudit/internal/model"
)

var (
	// ErrDetectorUnavailable means the configured outlier detector cannot run here
	ErrDetectorUnavailable = errors.New("anomaly detector unavailable")

	// ErrInvalidContamination means contamination is outside (0, 0.5]
	ErrInvalidContamination = errors.New("contamination must be in (0, 0.5]")
)

// Detector scores a feature matrix. Scores are lower for more anomalous rows
// and flags mark roughly a contamination share of the batch.
type Detector interface {
	Score(ctx context.Context, features [][]float64, contamination float64, seed int64) (flags []bool, scores []float64, err error)
}

// DetectorFactory builds a detector from configuration
type DetectorFactory func(cfg model.AnomalyConfig) (Detector, error)

var registry = map[string]DetectorFactory{
	"iforest": func(cfg model.AnomalyConfig) (Detector, error) {
		return NewIsolationForest(cfg.Trees, cfg.MaxSamples), nil
	},
}

// detectorNames lists available detector names
func detectorNames() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewDetector resolves cfg.Detector. Unknown names wrap ErrDetectorUnavailable.
func NewDetector(cfg model.AnomalyConfig) (Detector, error) {
	factory, ok := registry[cfg.Detector]
	if !ok {
		return nil, fmt.Errorf("%w: %q (available: %v)", ErrDetectorUnavailable, cfg.Detector, detectorNames())
	}
	return factory(cfg)
}

// ValidateContamination checks that c lies in (0, 0.5]
func ValidateContamination(c float64) error {
	if !(c > 0 && c <= 0.5) {
		return fmt.Errorf("%w: got %v", ErrInvalidContamination, c)
	}
	return nil
}
