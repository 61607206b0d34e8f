// Package pipeline runs a complete audit: ingest, the leakage, contract and
// anomaly views, explanations and optional persistence.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"runtime"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ppiankov/freightaudit/internal/cache"
	"github.com/ppiankov/freightaudit/internal/ingest"
	"github.com/ppiankov/freightaudit/internal/llm"
	"github.com/ppiankov/freightaudit/internal/model"
	"github.com/ppiankov/freightaudit/internal/rating"
	"github.com/ppiankov/freightaudit/internal/reconcile"
	"github.com/ppiankov/freightaudit/internal/report"
	"github.com/ppiankov/freightaudit/internal/rules"
	"github.com/ppiankov/freightaudit/internal/score"
	"github.com/ppiankov/freightaudit/internal/worker"
)

// Store persists finished audit runs
type Store interface {
	SaveRun(ctx context.Context, r *model.AuditReport) error
}

// Input is everything one audit run looks at. Shipments drive the leakage
// and anomaly views; contracts with invoices drive reconciliation. Either
// side may be absent.
type Input struct {
	Source    string
	Shipments *ingest.ShipmentBatch
	Contracts []model.RateContract
	Invoices  []model.Invoice
}

// Files names the input locations of a run. Each is a path, "-" or a URL.
type Files struct {
	Shipments string
	Contracts string
	Invoices  string
}

// Pipeline orchestrates the complete audit process
type Pipeline struct {
	cfg       *model.Config
	rates     *rating.Model
	evaluator *rules.Evaluator
	scorer    *score.Scorer
	explainer *llm.Explainer
	reader    *ingest.Reader
	source    *ingest.Source
	renderer  *report.Renderer
	store     Store
	workers   int
	logger    *zap.Logger
	now       func() time.Time

	scoreOpts []score.Option
}

// Option configures a Pipeline
type Option func(*Pipeline)

// WithLogger sets the logger used by the pipeline and its components
func WithLogger(logger *zap.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithStore persists every finished run
func WithStore(s Store) Option {
	return func(p *Pipeline) { p.store = s }
}

// WithExplainer replaces the explainer built from configuration
func WithExplainer(e *llm.Explainer) Option {
	return func(p *Pipeline) { p.explainer = e }
}

// WithDetector replaces the configured anomaly detector
func WithDetector(name string, d score.Detector) Option {
	return func(p *Pipeline) { p.scoreOpts = append(p.scoreOpts, score.WithDetector(name, d)) }
}

// WithClock sets the time source for report timestamps
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// New creates a pipeline. The configuration is validated first.
func New(cfg *model.Config, opts ...Option) (*Pipeline, error) {
	if cfg == nil {
		cfg = model.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	p := &Pipeline{
		cfg:    cfg,
		rates:  rating.NewModel(cfg.Tariff),
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}

	p.workers = cfg.Concurrency.Workers
	if p.workers <= 0 {
		p.workers = runtime.NumCPU()
	}

	p.evaluator = rules.NewEvaluator(cfg.Rules, p.rates,
		rules.WithWorkers(p.workers),
		rules.WithLogger(p.logger.Named("rules")))

	scorer, err := score.NewScorer(cfg.Anomaly, p.rates,
		append([]score.Option{score.WithLogger(p.logger.Named("score"))}, p.scoreOpts...)...)
	if err != nil {
		return nil, fmt.Errorf("anomaly scorer: %w", err)
	}
	p.scorer = scorer

	reader, err := ingest.NewReader(cfg.Ingest, p.logger.Named("ingest"))
	if err != nil {
		return nil, fmt.Errorf("ingest: %w", err)
	}
	p.reader = reader
	p.source = ingest.NewSource(cfg.Ingest)
	p.renderer = report.NewRenderer(cfg.Output.IncludeFooter, cfg.Anomaly.TopN)

	if p.explainer == nil {
		p.explainer = p.newExplainer()
	}

	return p, nil
}

// newExplainer builds the explainer from configuration. A provider that
// cannot be created leaves explanations rule-based.
func (p *Pipeline) newExplainer() *llm.Explainer {
	logger := p.logger.Named("llm")
	opts := []llm.ExplainerOption{
		llm.WithLogger(logger),
		llm.WithWorkers(p.workers),
	}

	provider, err := llm.NewProvider(llm.ConfigFromModel(p.cfg.LLM))
	if err != nil {
		logger.Warn("LLM provider unavailable, explanations stay rule-based", zap.Error(err))
		return llm.NewExplainer(opts...)
	}
	if provider == nil {
		return llm.NewExplainer(opts...)
	}

	opts = append(opts,
		llm.WithProvider(provider, p.cfg.LLM.Model),
		llm.WithLimiter(newLimiter(p.cfg.RateLimiting)))
	if p.cfg.Cache.Enabled {
		c := cache.NewLayeredCache(p.cfg.Cache.MemoryTTL, p.cfg.Cache.Dir, p.cfg.Cache.DiskTTL)
		opts = append(opts, llm.WithCache(c, p.cfg.Cache.DiskTTL))
	}
	return llm.NewExplainer(opts...)
}

// newLimiter throttles provider calls, with per-provider overrides
func newLimiter(c model.RateLimitConfig) *worker.Limiter {
	l := worker.NewLimiter(c.RequestsPerSecond, c.BurstSize)
	for name, rps := range c.Providers {
		l.SetKeyRate(name, rps, c.BurstSize)
	}
	return l
}

// Config returns the configuration the pipeline was built with
func (p *Pipeline) Config() *model.Config {
	return p.cfg
}

// Run audits in. The leakage, reconciliation and anomaly views run
// concurrently. Leakage and reconciliation errors fail the run; an anomaly
// failure only marks that view skipped.
func (p *Pipeline) Run(ctx context.Context, in Input) (*model.AuditReport, error) {
	start := p.now()
	out := &model.AuditReport{
		RunID:       uuid.NewString(),
		Source:      in.Source,
		GeneratedAt: start.UTC(),
	}

	var shipments []model.Shipment
	if in.Shipments != nil {
		shipments = in.Shipments.Shipments
		out.Ingest = in.Shipments.Stats
	}
	// Invoices without contracts fail below with reconcile.ErrNoContracts
	reconciling := len(in.Invoices) > 0
	if in.Shipments == nil && !reconciling {
		return nil, errors.New("nothing to audit: need shipments, or contracts with invoices")
	}

	g, gctx := errgroup.WithContext(ctx)

	if in.Shipments != nil {
		g.Go(func() error {
			results, err := p.evaluator.Evaluate(gctx, shipments)
			if err != nil {
				return fmt.Errorf("leakage rules: %w", err)
			}
			out.Leakage = report.NewLeakageReport(results, p.cfg.Output.TopCustomers)
			return nil
		})

		g.Go(func() error {
			a, err := p.scorer.Score(gctx, shipments)
			if err != nil {
				p.logger.Warn("anomaly pass failed, continuing without it", zap.Error(err))
				a = &model.AnomalyReport{
					Status:        model.AnomalySkipped,
					Reason:        err.Error(),
					Contamination: p.cfg.Anomaly.Contamination,
					Seed:          p.cfg.Anomaly.Seed,
				}
			}
			out.Anomaly = a
			return nil
		})
	}

	if reconciling {
		g.Go(func() error {
			r, err := reconcile.NewReconciler(in.Contracts, p.cfg.Reconcile,
				reconcile.WithWorkers(p.workers),
				reconcile.WithLogger(p.logger.Named("reconcile")))
			if err != nil {
				return fmt.Errorf("reconcile: %w", err)
			}
			results, err := r.Reconcile(gctx, in.Invoices)
			if err != nil {
				return fmt.Errorf("reconcile: %w", err)
			}
			out.Reconciliation = report.NewReconciliationReport(results)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	if p.cfg.Output.Explanations && out.Leakage != nil {
		explanations, err := p.explainer.ExplainAll(ctx, shipments, out.Leakage.Rows)
		if err != nil {
			return nil, fmt.Errorf("explanations: %w", err)
		}
		out.Explanations = explanations
	}

	if p.store != nil {
		if err := p.store.SaveRun(ctx, out); err != nil {
			return nil, fmt.Errorf("persist run: %w", err)
		}
	}

	fields := []zap.Field{
		zap.String("run_id", out.RunID),
		zap.String("source", out.Source),
		zap.Duration("elapsed", p.now().Sub(start)),
	}
	if out.Leakage != nil {
		fields = append(fields,
			zap.Int("shipments", out.Leakage.Summary.TotalShipments),
			zap.Int("flagged", out.Leakage.Summary.FlaggedShipments))
	}
	if out.Reconciliation != nil {
		fields = append(fields, zap.Int("invoices", out.Reconciliation.Summary.TotalInvoices))
	}
	p.logger.Info("audit run completed", fields...)

	return out, nil
}

// Load reads the named inputs. Empty names are skipped.
func (p *Pipeline) Load(ctx context.Context, files Files) (Input, error) {
	in := Input{Source: files.Shipments}
	if in.Source == "" {
		in.Source = files.Invoices
	}

	open := func(location string) (io.ReadCloser, error) {
		if location == "" {
			return nil, nil
		}
		return p.source.Open(ctx, location)
	}

	var streams Streams
	var err error
	if streams.Shipments, err = open(files.Shipments); err != nil {
		return in, err
	}
	defer closeStream(streams.Shipments)
	if streams.Contracts, err = open(files.Contracts); err != nil {
		return in, err
	}
	defer closeStream(streams.Contracts)
	if streams.Invoices, err = open(files.Invoices); err != nil {
		return in, err
	}
	defer closeStream(streams.Invoices)

	streams.Source = in.Source
	streams.ContractsName = filepath.Base(files.Contracts)
	return p.Decode(streams)
}

// Streams are already opened inputs. Nil streams are skipped.
type Streams struct {
	Source        string
	Shipments     io.Reader
	Contracts     io.Reader
	ContractsName string // selects CSV or YAML by extension
	Invoices      io.Reader
}

// Decode parses opened inputs into an Input
func (p *Pipeline) Decode(s Streams) (Input, error) {
	in := Input{Source: s.Source}

	if s.Shipments != nil {
		batch, err := p.reader.ReadShipments(s.Shipments)
		if err != nil {
			return in, fmt.Errorf("read shipments %s: %w", s.Source, err)
		}
		in.Shipments = batch
	}

	if s.Contracts != nil {
		contracts, err := p.reader.ReadContracts(s.Contracts, ingest.ContractFormatFor(s.ContractsName))
		if err != nil {
			return in, fmt.Errorf("read contracts %s: %w", s.ContractsName, err)
		}
		in.Contracts = contracts
	}

	if s.Invoices != nil {
		invoices, _, err := p.reader.ReadInvoices(s.Invoices)
		if err != nil {
			return in, fmt.Errorf("read invoices: %w", err)
		}
		in.Invoices = invoices
	}

	return in, nil
}

// closeStream closes r when it is a non-nil io.Closer
func closeStream(r io.Reader) {
	if c, ok := r.(io.Closer); ok {
		_ = c.Close()
	}
}

// AuditFiles loads and audits the named inputs
func (p *Pipeline) AuditFiles(ctx context.Context, files Files) (*model.AuditReport, error) {
	in, err := p.Load(ctx, files)
	if err != nil {
		return nil, err
	}
	return p.Run(ctx, in)
}

// AuditFile audits a single shipment file
func (p *Pipeline) AuditFile(ctx context.Context, source string) (*model.AuditReport, error) {
	return p.AuditFiles(ctx, Files{Shipments: source})
}

// Render writes the report in the configured formats into dir
func (p *Pipeline) Render(r *model.AuditReport, dir string) ([]string, error) {
	if dir == "" {
		dir = p.cfg.Output.Dir
	}
	return p.renderer.WriteAll(r, dir, p.cfg.Output.Formats)
}

// Renderer returns the report renderer
func (p *Pipeline) Renderer() *report.Renderer {
	return p.renderer
}
