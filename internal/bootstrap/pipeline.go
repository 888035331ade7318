// Package bootstrap assembles the bid compile pipeline from configuration.
package bootstrap

import (
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/crew-bid-api/internal/service"
	"github.com/noah-isme/crew-bid-api/pkg/config"
	"github.com/noah-isme/crew-bid-api/pkg/logger"
)

// Dependencies are the optional collaborators of the compiler.
type Dependencies struct {
	Sessions service.SessionStore
	Pairings service.PairingSource
	Exports  *service.ExportService
	Metrics  *service.MetricsService
}

// NewCompiler loads the rule catalogue and wires every pipeline stage. An
// invalid catalogue is returned as an error and must stop the process.
func NewCompiler(cfg config.BidConfig, deps Dependencies, validate *validator.Validate, log *zap.Logger) (*service.BidCompilerService, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	rules, err := service.LoadRuleCatalogue(cfg.RulesFile, validate)
	if err != nil {
		return nil, err
	}
	engine, err := service.NewRuleEngine(rules, cfg.Concurrency, logger.Component(log, "rules"))
	if err != nil {
		return nil, err
	}
	log.Info("rule catalogue loaded", zap.Int("rules", len(engine.Rules())), zap.String("source", catalogueSource(cfg.RulesFile)))

	normalizer := service.NewPreferenceNormalizer(service.NormalizerConfig{
		ConfidenceThreshold: cfg.ConfidenceThreshold,
		CreditTarget:        cfg.CreditTarget,
		TripLength:          cfg.TripLength,
	}, logger.Component(log, "normalizer"))
	generator := service.NewCandidateGenerator(engine, cfg.CandidateBudget, cfg.Concurrency, logger.Component(log, "generator"))
	layers := service.NewLayerGenerator(engine, service.LayerConfig{MaxLayers: cfg.MaxLayers}, logger.Component(log, "layers"))

	sessions := deps.Sessions
	if sessions == nil {
		sessions = service.NewMemorySessionStore(0, 0, deps.Metrics)
	}

	return service.NewBidCompilerService(
		normalizer,
		engine,
		generator,
		service.NewScorer(),
		layers,
		sessions,
		deps.Pairings,
		deps.Exports,
		deps.Metrics,
		validate,
		logger.Component(log, "compiler"),
		service.CompilerConfig{SearchBudget: cfg.SearchBudget},
	), nil
}

func catalogueSource(path string) string {
	if path == "" {
		return "embedded"
	}
	return path
}
