package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/crew-bid-api/internal/dto"
)

func runBidctl(t *testing.T, args ...string) (string, error) {
	t.Helper()
	outputPath, verbose, layersFormat, determinismRuns = "", false, "json", 5
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestOptimizeCommandExcludesWeekendTrip(t *testing.T) {
	out, err := runBidctl(t, "optimize", "--request", filepath.Join("testdata", "request.json"))
	require.NoError(t, err)

	var resp dto.OptimizeResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.NotEmpty(t, resp.Candidates)
	for _, c := range resp.Candidates {
		assert.NotContains(t, c.Pairings, "P300")
		assert.GreaterOrEqual(t, c.Score, 0.0)
		assert.LessOrEqual(t, c.Score, 1.0)
	}
}

func TestLayersCommandTextFormat(t *testing.T) {
	out, err := runBidctl(t, "layers", "--request", filepath.Join("testdata", "request.json"), "--format", "text")
	require.NoError(t, err)
	assert.Contains(t, out, "# BID LAYERS 2026-03")
	assert.Contains(t, out, "AWARD ANY LEGAL PAIRING")
}

func TestDeterminismCommand(t *testing.T) {
	out, err := runBidctl(t, "determinism", "--request", filepath.Join("testdata", "request.json"), "--runs", "3")
	require.NoError(t, err)
	assert.Contains(t, out, "deterministic across 3 runs")
}

func TestDeterminismCommandRejectsSingleRun(t *testing.T) {
	_, err := runBidctl(t, "determinism", "--request", filepath.Join("testdata", "request.json"), "--runs", "1")
	require.Error(t, err)
}

func TestMissingRequestFile(t *testing.T) {
	_, err := runBidctl(t, "validate", "--request", filepath.Join("testdata", "missing.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read request file")
}
