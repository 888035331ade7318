package models

import (
	"time"
)

// BidLayer is one command set in the fallback bidding strategy.
type BidLayer struct {
	LayerNumber     int      `json:"layer_number"`
	Commands        []string `json:"pbs_commands"`
	Probability     float64  `json:"probability"`
	Description     string   `json:"description"`
	ExpectedOutcome string   `json:"expected_outcome"`
	Relaxation      int      `json:"relaxation"`
	CandidateID     string   `json:"candidate_id,omitempty"`
}

// ExportArtifact is rendered layer text addressed by the sha256 of its content.
type ExportArtifact struct {
	Hash      string     `json:"hash"`
	Month     string     `json:"month"`
	Content   string     `json:"content"`
	Layers    []BidLayer `json:"layers,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// BidSession retains the most recent compile results for follow-up queries.
type BidSession struct {
	ID          string                    `json:"session_id"`
	Month       string                    `json:"month"`
	Preferences PreferenceSet             `json:"preferences"`
	Candidates  []ScheduleCandidate       `json:"candidates"`
	Breakdowns  map[string]ScoreBreakdown `json:"breakdowns"`
	Layers      []BidLayer                `json:"layers,omitempty"`
	Artifacts   map[string]ExportArtifact `json:"artifacts,omitempty"`
	CreatedAt   time.Time                 `json:"created_at"`
	LastAccess  time.Time                 `json:"last_access"`
}
