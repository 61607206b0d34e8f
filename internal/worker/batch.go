package worker

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"go.uber.org/atomic"

	"github.com/ppiankov/freightaudit/internal/model"
)

// Auditor runs a full audit over one shipment source
type Auditor interface {
	AuditFile(ctx context.Context, source string) (*model.AuditReport, error)
}

// AuditJob audits one shipment source
type AuditJob struct {
	Index   int
	Source  string
	Auditor Auditor
}

// Execute executes the audit job
func (j *AuditJob) Execute(ctx context.Context) Result {
	report, err := j.Auditor.AuditFile(ctx, j.Source)
	return &AuditResult{
		Index:  j.Index,
		Source: j.Source,
		Report: report,
		Error:  err,
	}
}

// AuditResult represents the result of an audit job
type AuditResult struct {
	Index  int
	Source string
	Report *model.AuditReport
	Error  error
}

// GetError returns the error from the audit result
func (r *AuditResult) GetError() error {
	return r.Error
}

// BatchProcessor audits multiple shipment sources concurrently
type BatchProcessor struct {
	auditor     Auditor
	concurrency int

	processed *atomic.Int64
	failed    *atomic.Int64
}

// NewBatchProcessor creates a new batch processor
func NewBatchProcessor(auditor Auditor, concurrency int) *BatchProcessor {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &BatchProcessor{
		auditor:     auditor,
		concurrency: concurrency,
		processed:   atomic.NewInt64(0),
		failed:      atomic.NewInt64(0),
	}
}

// Progress returns how many sources finished and how many of those failed
func (b *BatchProcessor) Progress() (processed, failed int64) {
	return b.processed.Load(), b.failed.Load()
}

// ProcessSources audits every source; results keep the input order
func (b *BatchProcessor) ProcessSources(ctx context.Context, sources []string) []*AuditResult {
	results := make([]*AuditResult, len(sources))
	if len(sources) == 0 {
		return results
	}

	pool := NewPool(ctx, b.concurrency)
	pool.Start()

	go func() {
		for i, source := range sources {
			if !pool.Submit(&AuditJob{Index: i, Source: source, Auditor: b.auditor}) {
				break
			}
		}
		pool.Close()
	}()

	for result := range pool.Results() {
		r := result.(*AuditResult)
		b.processed.Inc()
		if r.Error != nil {
			b.failed.Inc()
		}
		results[r.Index] = r
	}

	// Sources never picked up because ctx was cancelled
	for i, r := range results {
		if r == nil {
			results[i] = &AuditResult{Index: i, Source: sources[i], Error: ctx.Err()}
		}
	}

	return results
}

// ProcessFile reads sources from a list file and audits them concurrently
func (b *BatchProcessor) ProcessFile(ctx context.Context, filePath string) ([]*AuditResult, error) {
	sources, err := ReadSourcesFromFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("read sources: %w", err)
	}

	return b.ProcessSources(ctx, sources), nil
}

// ReadSourcesFromFile reads shipment sources from a file (one per line)
func ReadSourcesFromFile(filePath string) ([]string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var sources []string
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if !seen[line] {
			seen[line] = true
			sources = append(sources, line)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan file: %w", err)
	}

	return sources, nil
}
