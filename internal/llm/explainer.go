package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ppiankov/freightaudit/internal/cache"
	"github.com/ppiankov/freightaudit/internal/model"
	"github.com/ppiankov/freightaudit/internal/worker"
	"go.uber.org/zap"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// RuleModel is the Model value of explanations that were not rewritten
const RuleModel = "rules"

// Explainer turns leakage results into explanations
type Explainer struct {
	provider Provider
	model    string
	limiter  *worker.Limiter
	cache    cache.Cache
	cacheTTL time.Duration
	workers  int
	logger   *zap.Logger
}

// ExplainerOption configures an Explainer
type ExplainerOption func(*Explainer)

// WithProvider enables rewriting through p. model may be empty to use the
// provider's configured model.
func WithProvider(p Provider, model string) ExplainerOption {
	return func(e *Explainer) {
		e.provider = p
		e.model = model
	}
}

// WithLimiter throttles provider calls, keyed by provider name
func WithLimiter(l *worker.Limiter) ExplainerOption {
	return func(e *Explainer) { e.limiter = l }
}

// WithCache stores rewrites keyed by rule text and model
func WithCache(c cache.Cache, ttl time.Duration) ExplainerOption {
	return func(e *Explainer) {
		e.cache = c
		e.cacheTTL = ttl
	}
}

// WithWorkers sets how many explanations are produced concurrently
func WithWorkers(n int) ExplainerOption {
	return func(e *Explainer) { e.workers = n }
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) ExplainerOption {
	return func(e *Explainer) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewExplainer creates an explainer. Without a provider every explanation is rule text.
func NewExplainer(opts ...ExplainerOption) *Explainer {
	e := &Explainer{
		workers: 4,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// UsesLLM reports whether a provider is configured
func (e *Explainer) UsesLLM() bool {
	return e.provider != nil
}

var amounts = message.NewPrinter(language.English)

// RuleText builds the deterministic explanation for one shipment
func RuleText(s model.Shipment, r model.LeakageResult) string {
	var parts []string

	if carrier := strings.TrimSpace(s.Carrier); carrier != "" {
		parts = append(parts, fmt.Sprintf("Carrier: %s.", carrier))
	}
	parts = append(parts, amounts.Sprintf("Actual billed total: $%.2f. Expected total: $%.2f.", r.BilledTotal, r.Expected.Total))

	if r.FlagReason != "" {
		parts = append(parts, fmt.Sprintf("Flags: %s.", r.FlagReason))
	}

	if r.UnderbilledAmount > 0 {
		parts = append(parts, amounts.Sprintf("Estimated underbilling: $%.2f.", r.UnderbilledAmount))
	} else {
		parts = append(parts, "No positive underbilling amount calculated.")
	}

	if r.Has(model.FlagMissingFuelSurcharge) {
		parts = append(parts, amounts.Sprintf("Fuel looks missing for a %.0f mile move (billed fuel: $%.2f, expected fuel: $%.2f).",
			s.DistanceMiles, s.Billed.Fuel, r.Expected.Fuel))
	}

	if r.Has(model.FlagLiftgateNotCharged) {
		required := "no"
		if s.LiftgateRequired {
			required = "yes"
		}
		parts = append(parts, amounts.Sprintf("Liftgate required: %s. Liftgate fee billed: $%.2f.", required, s.Billed.Accessorial))
	}

	return strings.Join(parts, " ")
}

// Explain produces the explanation for one shipment. Provider failures are
// logged and yield the rule text.
func (e *Explainer) Explain(ctx context.Context, s model.Shipment, r model.LeakageResult) model.Explanation {
	text := RuleText(s, r)
	out := model.Explanation{ShipmentID: r.ShipmentID, Text: text, Model: RuleModel}

	if e.provider == nil {
		return out
	}

	rewritten, usedModel, err := e.rewrite(ctx, text)
	if err != nil {
		e.logger.Warn("explanation rewrite failed, using rule text",
			zap.String("shipment_id", r.ShipmentID),
			zap.String("provider", e.provider.Name()),
			zap.Error(err))
		return out
	}

	out.Text = rewritten
	out.Model = usedModel
	out.UsedLLM = true
	return out
}

func (e *Explainer) rewrite(ctx context.Context, text string) (string, string, error) {
	name := e.provider.Name()
	modelName := e.model
	key := cache.Key(text, name, modelName)

	if e.cache != nil {
		if cached, ok := e.cache.Get(key); ok {
			return string(cached), modelLabel(name, modelName), nil
		}
	}

	if e.limiter != nil {
		if err := e.limiter.Wait(ctx, name); err != nil {
			return "", "", err
		}
	}

	resp, err := e.provider.Rewrite(ctx, RewriteRequest{Text: text, Model: modelName})
	if err != nil {
		return "", "", err
	}

	if e.cache != nil {
		if err := e.cache.Set(key, []byte(resp.Text), e.cacheTTL); err != nil {
			e.logger.Debug("explanation cache write failed", zap.Error(err))
		}
	}

	if resp.Model != "" {
		modelName = resp.Model
	}
	return resp.Text, modelLabel(name, modelName), nil
}

func modelLabel(provider, model string) string {
	if model == "" {
		return provider
	}
	return provider + "/" + model
}

// ExplainAll explains every flagged result. results must be aligned with
// shipments. Output order follows the input.
func (e *Explainer) ExplainAll(ctx context.Context, shipments []model.Shipment, results []model.LeakageResult) ([]model.Explanation, error) {
	if len(shipments) != len(results) {
		return nil, fmt.Errorf("explain: %d shipments but %d results", len(shipments), len(results))
	}

	var flagged []int
	for i, r := range results {
		if r.IsFlagged {
			flagged = append(flagged, i)
		}
	}
	if len(flagged) == 0 {
		return nil, nil
	}

	workers := e.workers
	if e.provider == nil {
		workers = 1 // rule text is cheap
	}

	out, err := worker.Map(ctx, workers, len(flagged), func(ctx context.Context, i int) model.Explanation {
		idx := flagged[i]
		return e.Explain(ctx, shipments[idx], results[idx])
	})
	if err != nil {
		return nil, err
	}

	rewritten := 0
	for _, x := range out {
		if x.UsedLLM {
			rewritten++
		}
	}
	e.logger.Debug("explanations generated",
		zap.Int("flagged", len(out)),
		zap.Int("rewritten", rewritten))

	return out, nil
}
