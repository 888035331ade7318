package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPairingMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

var pairingColumns = []string{"id", "route", "equipment", "duration_days", "block_hours", "credit_hours", "layovers", "report_at", "release_at", "red_eye", "international"}

func TestPairingRepositoryListByPeriod(t *testing.T) {
	db, mock, cleanup := newPairingMock(t)
	defer cleanup()
	repo := NewPairingRepository(db)

	report := time.Date(2026, 3, 3, 6, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows(pairingColumns).
		AddRow("P100", "{DEN,SEA,DEN}", "737", 2, 10.5, 12.0, "{SEA}", report, report.Add(34*time.Hour), false, false).
		AddRow("P200", "{DEN,NRT,DEN}", "787", 4, 28.0, 30.5, "{NRT}", report.Add(48*time.Hour), report.Add(140*time.Hour), true, true)
	mock.ExpectQuery(regexp.QuoteMeta("FROM trip_pairings")).
		WithArgs("UA", "DEN", "2026-03").
		WillReturnRows(rows)

	pairings, err := repo.ListByPeriod(context.Background(), "UA", "DEN", "2026-03")
	require.NoError(t, err)
	require.Len(t, pairings, 2)
	assert.Equal(t, "P100", pairings[0].ID)
	assert.Equal(t, []string{"DEN", "SEA", "DEN"}, pairings[0].Route)
	assert.Equal(t, []string{"SEA"}, pairings[0].Layovers)
	assert.True(t, pairings[1].RedEye)
	assert.True(t, pairings[1].International)
	assert.Equal(t, 30.5, pairings[1].CreditHours)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPairingRepositoryListByPeriodError(t *testing.T) {
	db, mock, cleanup := newPairingMock(t)
	defer cleanup()
	repo := NewPairingRepository(db)

	mock.ExpectQuery("FROM trip_pairings").WillReturnError(errors.New("connection reset"))

	_, err := repo.ListByPeriod(context.Background(), "UA", "DEN", "2026-03")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	assert.NoError(t, mock.ExpectationsWereMet())
}
