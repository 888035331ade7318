package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/crew-bid-api/internal/dto"
	"github.com/noah-isme/crew-bid-api/internal/models"
	appErrors "github.com/noah-isme/crew-bid-api/pkg/errors"
)

const (
	operationValidate = "validate"
	operationOptimize = "optimize"
	operationLayers   = "layers"
)

// PairingSource supplies the published trip pool when a request carries none.
type PairingSource interface {
	ListByPeriod(ctx context.Context, airline, base, month string) ([]models.TripPairing, error)
}

type exportArchiver interface {
	Archive(artifact models.ExportArtifact) bool
	DownloadURL(artifact models.ExportArtifact) string
}

// CompilerConfig governs the compile pipeline.
type CompilerConfig struct {
	SearchBudget time.Duration
}

// BidCompilerService runs the normalise, filter, search, rank and layer
// pipeline and retains results for follow-up queries.
type BidCompilerService struct {
	normalizer *PreferenceNormalizer
	engine     *RuleEngine
	generator  *CandidateGenerator
	scorer     *Scorer
	layers     *LayerGenerator
	explainer  *Explainer
	sessions   SessionStore
	pairings   PairingSource
	archiver   exportArchiver
	metrics    *MetricsService
	validator  *validator.Validate
	logger     *zap.Logger
	cfg        CompilerConfig
	now        func() time.Time
	newID      func() string
}

// NewBidCompilerService wires the compile pipeline. pairings, archiver and
// metrics are optional.
func NewBidCompilerService(
	normalizer *PreferenceNormalizer,
	engine *RuleEngine,
	generator *CandidateGenerator,
	scorer *Scorer,
	layers *LayerGenerator,
	sessions SessionStore,
	pairings PairingSource,
	archiver exportArchiver,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
	cfg CompilerConfig,
) *BidCompilerService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SearchBudget <= 0 {
		cfg.SearchBudget = 2 * time.Second
	}
	return &BidCompilerService{
		normalizer: normalizer,
		engine:     engine,
		generator:  generator,
		scorer:     scorer,
		layers:     layers,
		explainer:  NewExplainer(sessions),
		sessions:   sessions,
		pairings:   pairings,
		archiver:   archiver,
		metrics:    metrics,
		validator:  validate,
		logger:     logger,
		cfg:        cfg,
		now:        time.Now,
		newID:      uuid.NewString,
	}
}

type compileInput struct {
	period  bidPeriod
	profile models.PilotProfile
	prefs   models.PreferenceSet
	notes   []string
	pool    []models.TripPairing
	rules   []models.Rule
}

type compileResult struct {
	input      *compileInput
	candidates []models.ScheduleCandidate
	breakdowns map[string]models.ScoreBreakdown
	heuristic  bool
}

// ValidateConstraints checks a preference submission against the rule
// catalogue and the trip pool.
func (s *BidCompilerService) ValidateConstraints(ctx context.Context, req dto.CompileRequest) (*models.ValidationResult, error) {
	start := time.Now()
	in, err := s.prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	budgetCtx, cancel := context.WithTimeout(ctx, s.cfg.SearchBudget)
	defer cancel()
	result := s.engine.ValidatePreferences(budgetCtx, in.prefs, in.notes, in.pool, in.profile, in.period)
	heuristic := budgetCtx.Err() != nil
	if heuristic {
		s.metrics.RecordBudgetOverrun(operationValidate)
	}
	s.metrics.ObserveCompile(operationValidate, heuristic, time.Since(start))
	return &result, nil
}

// Optimize produces ranked candidate schedules and stores them in the session.
func (s *BidCompilerService) Optimize(ctx context.Context, req dto.CompileRequest) (*dto.OptimizeResponse, error) {
	start := time.Now()
	result, err := s.compile(ctx, req)
	if err != nil {
		return nil, err
	}
	session, err := s.store(ctx, req.SessionID, result, nil, nil)
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveCompile(operationOptimize, result.heuristic, time.Since(start))
	s.metrics.ObserveCandidates(len(result.candidates))

	resp := &dto.OptimizeResponse{
		SessionID:  session.ID,
		Month:      session.Month,
		Heuristic:  result.heuristic,
		Candidates: make([]dto.CandidateResponse, 0, len(result.candidates)),
	}
	for _, c := range result.candidates {
		resp.Candidates = append(resp.Candidates, candidateResponse(c, result.breakdowns[c.ID]))
	}
	return resp, nil
}

// GenerateLayers compiles candidates and turns them into a fallback layer
// sequence with a content-addressed export artifact.
func (s *BidCompilerService) GenerateLayers(ctx context.Context, req dto.CompileRequest) (*dto.LayersResponse, error) {
	start := time.Now()
	result, err := s.compile(ctx, req)
	if err != nil {
		return nil, err
	}
	in := result.input
	layers, artifact := s.layers.Generate(result.candidates, in.prefs, in.profile, in.period, in.rules)
	artifact.Layers = layers

	session, err := s.store(ctx, req.SessionID, result, layers, &artifact)
	if err != nil {
		return nil, err
	}
	if s.archiver != nil {
		s.archiver.Archive(artifact)
	}
	s.metrics.ObserveCompile(operationLayers, result.heuristic, time.Since(start))

	return &dto.LayersResponse{
		SessionID:  session.ID,
		Month:      session.Month,
		Heuristic:  result.heuristic,
		Layers:     layers,
		ExportHash: artifact.Hash,
	}, nil
}

// Explain returns the retained score breakdown of a candidate.
func (s *BidCompilerService) Explain(ctx context.Context, sessionID, candidateID string) (*dto.ExplainResponse, error) {
	return s.explainer.Explain(ctx, sessionID, candidateID)
}

// Export returns a retained artifact by hash. The content is identical on
// every call for the life of the session.
func (s *BidCompilerService) Export(ctx context.Context, sessionID, hash string) (*dto.ExportResponse, *models.ExportArtifact, error) {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	artifact, ok := session.Artifacts[hash]
	if !ok {
		return nil, nil, appErrors.Clone(appErrors.ErrExportNotFound, fmt.Sprintf("export %s not found in session", hash))
	}
	resp := &dto.ExportResponse{
		Hash:    artifact.Hash,
		Month:   artifact.Month,
		Content: artifact.Content,
	}
	if s.archiver != nil {
		resp.DownloadURL = s.archiver.DownloadURL(artifact)
	}
	return resp, &artifact, nil
}

func (s *BidCompilerService) compile(ctx context.Context, req dto.CompileRequest) (*compileResult, error) {
	in, err := s.prepare(ctx, req)
	if err != nil {
		return nil, err
	}

	budgetCtx, cancel := context.WithTimeout(ctx, s.cfg.SearchBudget)
	defer cancel()

	filtered := s.engine.FilterPool(budgetCtx, in.pool, in.profile, in.period, in.rules)
	if filtered.Partial {
		s.metrics.RecordBudgetOverrun("filter")
	}
	generated := s.generator.Generate(budgetCtx, filtered.Eligible, in.prefs, in.profile, in.period, in.rules)
	if generated.Heuristic {
		s.metrics.RecordBudgetOverrun("search")
	}

	result := &compileResult{
		input:      in,
		candidates: make([]models.ScheduleCandidate, 0, len(generated.Candidates)),
		breakdowns: make(map[string]models.ScoreBreakdown, len(generated.Candidates)),
		heuristic:  filtered.Partial || generated.Heuristic,
	}
	for _, c := range generated.Candidates {
		scored, breakdown := s.scorer.Score(c, in.prefs, in.period)
		scored.Heuristic = result.heuristic
		result.candidates = append(result.candidates, scored)
		result.breakdowns[scored.ID] = breakdown
	}
	s.scorer.Rank(result.candidates)

	s.logger.Debug("bid compiled",
		zap.String("month", in.period.Month),
		zap.Int("pool", len(in.pool)),
		zap.Int("eligible", len(filtered.Eligible)),
		zap.Int("candidates", len(result.candidates)),
		zap.Bool("heuristic", result.heuristic))
	return result, nil
}

// prepare validates the request envelope, normalises preferences and resolves
// the trip pool. Only a malformed envelope is an error.
func (s *BidCompilerService) prepare(ctx context.Context, req dto.CompileRequest) (*compileInput, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, invalidPayload(err, "invalid bid compile payload")
	}
	period, err := parseBidPeriod(req.Month)
	if err != nil {
		return nil, err
	}
	prefs, notes := s.normalizer.Normalize(req.Preferences)

	pool, poolNotes := s.resolvePool(ctx, req, period)
	notes = append(notes, poolNotes...)

	return &compileInput{
		period:  period,
		profile: req.Profile,
		prefs:   prefs,
		notes:   notes,
		pool:    pool,
		rules:   s.engine.RulesFor(prefs),
	}, nil
}

func (s *BidCompilerService) resolvePool(ctx context.Context, req dto.CompileRequest, period bidPeriod) ([]models.TripPairing, []string) {
	var notes []string
	source := req.Pairings
	if len(source) == 0 && s.pairings != nil {
		start := time.Now()
		loaded, err := s.pairings.ListByPeriod(ctx, req.Profile.Airline, req.Profile.Base, period.Month)
		s.metrics.ObserveDBQuery("trip_pairings.list_by_period", time.Since(start))
		if err != nil {
			s.logger.Warn("trip pool lookup failed; continuing with an empty pool",
				zap.String("airline", req.Profile.Airline),
				zap.String("base", req.Profile.Base),
				zap.String("month", period.Month),
				zap.Error(err))
			notes = append(notes, "trip pool is temporarily unavailable")
		}
		source = loaded
	}

	pool := make([]models.TripPairing, 0, len(source))
	for _, p := range source {
		if err := s.validator.Struct(p); err != nil {
			notes = append(notes, fmt.Sprintf("ignored malformed pairing %q", p.ID))
			continue
		}
		pool = append(pool, p)
	}
	return pool, notes
}

// store saves the compile into its session, keeping artifacts from earlier
// and concurrent compiles of the same session so their hashes stay resolvable.
func (s *BidCompilerService) store(ctx context.Context, sessionID string, result *compileResult, layers []models.BidLayer, artifact *models.ExportArtifact) (*models.BidSession, error) {
	if sessionID == "" {
		sessionID = s.newID()
	}
	now := s.now().UTC()
	session, err := s.sessions.Update(ctx, sessionID, func(previous *models.BidSession) *models.BidSession {
		next := &models.BidSession{
			ID:          sessionID,
			Month:       result.input.period.Month,
			Preferences: result.input.prefs,
			Candidates:  result.candidates,
			Breakdowns:  result.breakdowns,
			Layers:      layers,
			Artifacts:   make(map[string]models.ExportArtifact),
			CreatedAt:   now,
		}
		if previous != nil {
			next.CreatedAt = previous.CreatedAt
			for hash, a := range previous.Artifacts {
				next.Artifacts[hash] = a
			}
			if layers == nil {
				next.Layers = previous.Layers
			}
		}
		if artifact != nil {
			if _, ok := next.Artifacts[artifact.Hash]; !ok {
				next.Artifacts[artifact.Hash] = *artifact
			}
		}
		return next
	})
	if err != nil {
		return nil, err
	}
	if artifact != nil {
		*artifact = session.Artifacts[artifact.Hash]
	}
	return session, nil
}

// invalidPayload maps validator failures to a 400 listing the offending
// fields as namespace:tag pairs.
func invalidPayload(err error, message string) error {
	appErr := appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, message)
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return appErr
	}
	fields := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		fields = append(fields, fe.Namespace()+":"+fe.Tag())
	}
	return appErrors.WithDetail(appErr, "fields", fields)
}

func candidateResponse(c models.ScheduleCandidate, b models.ScoreBreakdown) dto.CandidateResponse {
	breakdown := make(map[string]float64, len(b.Contributions))
	for dimension, value := range b.Contributions {
		breakdown[dimension] = value
	}
	warnings := c.Warnings
	if warnings == nil {
		warnings = []string{}
	}
	return dto.CandidateResponse{
		CandidateID:   c.ID,
		Score:         c.Score,
		SoftBreakdown: breakdown,
		Pairings:      c.PairingIDs(),
		Rationale:     b.Rationale,
		Warnings:      warnings,
		TotalCredit:   c.TotalCredit,
		DutyDays:      c.DutyDays,
		Degenerate:    c.Degenerate,
	}
}
