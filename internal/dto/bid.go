package dto

import (
	"github.com/noah-isme/crew-bid-api/internal/models"
)

// ParsedPreferences mirrors the output of the natural-language parsing collaborator.
type ParsedPreferences struct {
	ParsedItems []models.ParsedItem `json:"parsed_items"`
}

// PreferenceSubmission is the loosely structured preference input.
type PreferenceSubmission struct {
	HardConstraints   models.HardConstraints    `json:"hard_constraints"`
	SoftPrefs         map[string]float64        `json:"soft_prefs"`
	Targets           *models.PreferenceTargets `json:"targets,omitempty"`
	FreeText          string                    `json:"free_text,omitempty"`
	Persona           string                    `json:"persona,omitempty"`
	ParsedPreferences *ParsedPreferences        `json:"parsed_preferences,omitempty"`
}

// CompileRequest drives validate, optimize and layer generation.
type CompileRequest struct {
	SessionID   string               `json:"session_id" validate:"omitempty,max=64"`
	Month       string               `json:"month" validate:"required,len=7"`
	Profile     models.PilotProfile  `json:"profile"`
	Preferences PreferenceSubmission `json:"preferences"`
	Pairings    []models.TripPairing `json:"pairings" validate:"omitempty,max=2000"`
}

// CandidateResponse is one ranked schedule on the wire.
type CandidateResponse struct {
	CandidateID   string             `json:"candidate_id"`
	Score         float64            `json:"score"`
	SoftBreakdown map[string]float64 `json:"soft_breakdown"`
	Pairings      []string           `json:"pairings"`
	Rationale     []string           `json:"rationale"`
	Warnings      []string           `json:"warnings,omitempty"`
	TotalCredit   float64            `json:"total_credit"`
	DutyDays      int                `json:"duty_days"`
	Degenerate    bool               `json:"degenerate"`
}

// OptimizeResponse lists ranked candidates for a compile request.
type OptimizeResponse struct {
	SessionID  string              `json:"session_id"`
	Month      string              `json:"month"`
	Heuristic  bool                `json:"heuristic"`
	Candidates []CandidateResponse `json:"candidates"`
}

// LayersResponse is the canonical flat layer shape.
type LayersResponse struct {
	SessionID  string            `json:"session_id"`
	Month      string            `json:"month"`
	Heuristic  bool              `json:"heuristic"`
	Layers     []models.BidLayer `json:"layers"`
	ExportHash string            `json:"export_hash"`
}

// Explanation details why a candidate ranked where it did.
type Explanation struct {
	CandidateID    string             `json:"candidate_id"`
	ScoreBreakdown map[string]float64 `json:"score_breakdown"`
	KeyFactors     []string           `json:"key_factors"`
}

// ExplainResponse wraps an explanation.
type ExplainResponse struct {
	Explanation Explanation `json:"explanation"`
}

// ExportResponse returns rendered layer text for download.
type ExportResponse struct {
	Hash        string `json:"hash"`
	Month       string `json:"month"`
	Content     string `json:"content"`
	DownloadURL string `json:"download_url,omitempty"`
}
