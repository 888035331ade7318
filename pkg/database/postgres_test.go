package database

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/crew-bid-api/pkg/config"
)

func TestDSN(t *testing.T) {
	dsn := DSN(config.DatabaseConfig{
		Host:             "db.internal",
		Port:             5432,
		User:             "bids",
		Password:         "p@ss word's",
		Name:             "crew_bids",
		SSLMode:          "require",
		ConnectTimeout:   3 * time.Second,
		StatementTimeout: 1500 * time.Millisecond,
	})

	assert.Equal(t, `host=db.internal port=5432 user=bids password='p@ss word\'s' dbname=crew_bids sslmode=require application_name=crew-bid-api connect_timeout=3 statement_timeout=1500`, dsn)
}

func TestDSNDefaultsAndOmissions(t *testing.T) {
	dsn := DSN(config.DatabaseConfig{Host: "localhost", Port: 5432, Name: "crew_bids"})

	assert.Contains(t, dsn, "connect_timeout=5")
	assert.NotContains(t, dsn, "password=")
	assert.NotContains(t, dsn, "statement_timeout")
}

func TestPingReadinessCheck(t *testing.T) {
	raw, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer raw.Close()
	db := sqlx.NewDb(raw, "sqlmock")

	mock.ExpectPing()
	require.NoError(t, Ping(db, time.Second)())
	require.NoError(t, mock.ExpectationsWereMet())
}
