package service

import (
	"context"
	"fmt"

	"github.com/noah-isme/crew-bid-api/internal/dto"
	"github.com/noah-isme/crew-bid-api/internal/models"
	appErrors "github.com/noah-isme/crew-bid-api/pkg/errors"
)

// Explainer answers why a retained candidate scored as it did. It only reads
// the breakdown stored at compile time.
type Explainer struct {
	sessions SessionStore
}

// NewExplainer constructs an explainer over a session store.
func NewExplainer(sessions SessionStore) *Explainer {
	return &Explainer{sessions: sessions}
}

// Explain returns the retained score breakdown for a candidate.
func (e *Explainer) Explain(ctx context.Context, sessionID, candidateID string) (*dto.ExplainResponse, error) {
	session, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	breakdown, ok := session.Breakdowns[candidateID]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrCandidateNotFound, fmt.Sprintf("candidate %s not found in session", candidateID))
	}
	return &dto.ExplainResponse{Explanation: explanationFrom(breakdown)}, nil
}

func explanationFrom(b models.ScoreBreakdown) dto.Explanation {
	scores := map[string]float64{
		"base_score": b.Score,
		"penalties":  b.Penalties,
	}
	for _, dimension := range models.Dimensions {
		scores[dimension+"_bonus"] = b.Contributions[dimension]
	}

	factors := append([]string(nil), b.Rationale...)
	if worst, lost := largestShortfall(b); worst != "" {
		factors = append(factors, fmt.Sprintf("Largest shortfall: %s preference cost %.2f of the score", worst, lost))
	}
	return dto.Explanation{
		CandidateID:    b.CandidateID,
		ScoreBreakdown: scores,
		KeyFactors:     factors,
	}
}

func largestShortfall(b models.ScoreBreakdown) (string, float64) {
	total := 0.0
	for _, w := range b.Weights {
		total += w
	}
	if total == 0 {
		return "", 0
	}
	worst, lost := "", 0.0
	for _, dimension := range models.Dimensions {
		w, ok := b.Weights[dimension]
		if !ok {
			continue
		}
		if shortfall := round4(w * (1 - b.SubScores[dimension]) / total); shortfall > lost {
			worst, lost = dimension, shortfall
		}
	}
	return worst, lost
}
