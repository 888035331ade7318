package main

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var determinismRuns int

var determinismCmd = &cobra.Command{
	Use:   "determinism",
	Short: "Re-run optimize and layers and fail on any difference",
	Long:  "Compiles the same request repeatedly in fresh sessions and compares candidates, scores and the export hash across runs.",
	RunE:  runDeterminism,
}

func init() {
	determinismCmd.Flags().IntVarP(&determinismRuns, "runs", "n", 5, "Number of runs to compare")
	rootCmd.AddCommand(determinismCmd)
}

type runFingerprint struct {
	Candidates json.RawMessage `json:"candidates"`
	Layers     json.RawMessage `json:"layers"`
	ExportHash string          `json:"export_hash"`
}

func runDeterminism(cmd *cobra.Command, _ []string) error {
	if determinismRuns < 2 {
		return fmt.Errorf("--runs must be at least 2, got %d", determinismRuns)
	}
	compiler, err := newCompiler()
	if err != nil {
		return err
	}
	req, err := loadRequest(requestPath)
	if err != nil {
		return err
	}
	req.SessionID = ""

	var baseline []byte
	for run := 1; run <= determinismRuns; run++ {
		optimized, err := compiler.Optimize(cmd.Context(), req)
		if err != nil {
			return fmt.Errorf("run %d optimize failed: %w", run, err)
		}
		layered, err := compiler.GenerateLayers(cmd.Context(), req)
		if err != nil {
			return fmt.Errorf("run %d layers failed: %w", run, err)
		}
		candidates, err := json.Marshal(optimized.Candidates)
		if err != nil {
			return err
		}
		layers, err := json.Marshal(layered.Layers)
		if err != nil {
			return err
		}
		fingerprint, err := json.Marshal(runFingerprint{Candidates: candidates, Layers: layers, ExportHash: layered.ExportHash})
		if err != nil {
			return err
		}
		if baseline == nil {
			baseline = fingerprint
			continue
		}
		if !bytes.Equal(baseline, fingerprint) {
			return fmt.Errorf("run %d differs from run 1", run)
		}
	}
	return writeOutput(cmd.OutOrStdout(), []byte(fmt.Sprintf("deterministic across %d runs\n", determinismRuns)))
}
