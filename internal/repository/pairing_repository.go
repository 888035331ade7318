package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/crew-bid-api/internal/models"
)

// PairingRepository reads the published trip pool.
type PairingRepository struct {
	db *sqlx.DB
}

// NewPairingRepository constructs the repository.
func NewPairingRepository(db *sqlx.DB) *PairingRepository {
	return &PairingRepository{db: db}
}

type pairingRow struct {
	ID            string         `db:"id"`
	Route         pq.StringArray `db:"route"`
	Equipment     string         `db:"equipment"`
	DurationDays  int            `db:"duration_days"`
	BlockHours    float64        `db:"block_hours"`
	CreditHours   float64        `db:"credit_hours"`
	Layovers      pq.StringArray `db:"layovers"`
	ReportAt      time.Time      `db:"report_at"`
	ReleaseAt     time.Time      `db:"release_at"`
	RedEye        bool           `db:"red_eye"`
	International bool           `db:"international"`
}

func (r pairingRow) toModel() models.TripPairing {
	return models.TripPairing{
		ID:            r.ID,
		Route:         []string(r.Route),
		Equipment:     r.Equipment,
		DurationDays:  r.DurationDays,
		BlockHours:    r.BlockHours,
		CreditHours:   r.CreditHours,
		Layovers:      []string(r.Layovers),
		ReportAt:      r.ReportAt.UTC(),
		ReleaseAt:     r.ReleaseAt.UTC(),
		RedEye:        r.RedEye,
		International: r.International,
	}
}

// ListByPeriod returns the pairings an airline base publishes for a bid month
// (YYYY-MM), ordered by report time then id.
func (r *PairingRepository) ListByPeriod(ctx context.Context, airline, base, month string) ([]models.TripPairing, error) {
	const query = `SELECT id, route, equipment, duration_days, block_hours, credit_hours, layovers, report_at, release_at, red_eye, international
		FROM trip_pairings
		WHERE airline = $1 AND base = $2 AND bid_month = $3
		ORDER BY report_at ASC, id ASC`
	var rows []pairingRow
	if err := r.db.SelectContext(ctx, &rows, query, airline, base, month); err != nil {
		return nil, fmt.Errorf("list trip pairings for %s/%s %s: %w", airline, base, month, err)
	}
	pairings := make([]models.TripPairing, 0, len(rows))
	for _, row := range rows {
		pairings = append(pairings, row.toModel())
	}
	return pairings, nil
}
