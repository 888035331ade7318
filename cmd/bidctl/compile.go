package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/noah-isme/crew-bid-api/internal/bootstrap"
	"github.com/noah-isme/crew-bid-api/internal/dto"
	"github.com/noah-isme/crew-bid-api/internal/service"
	"github.com/noah-isme/crew-bid-api/pkg/config"
	"github.com/noah-isme/crew-bid-api/pkg/logger"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check preferences against work rules and the trip pool",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runCompile(cmd, func(ctx context.Context, c *service.BidCompilerService, req dto.CompileRequest) (interface{}, error) {
			return c.ValidateConstraints(ctx, req)
		})
	},
}

var optimizeCmd = &cobra.Command{
	Use:   "optimize",
	Short: "Rank candidate schedules",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runCompile(cmd, func(ctx context.Context, c *service.BidCompilerService, req dto.CompileRequest) (interface{}, error) {
			return c.Optimize(ctx, req)
		})
	},
}

var layersFormat string

var layersCmd = &cobra.Command{
	Use:   "layers",
	Short: "Generate the layered bid",
	Long:  "Generates bid layers. With --format text the export artifact is printed instead of JSON.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if layersFormat == service.ExportFormatText {
			return runLayersText(cmd)
		}
		return runCompile(cmd, func(ctx context.Context, c *service.BidCompilerService, req dto.CompileRequest) (interface{}, error) {
			return c.GenerateLayers(ctx, req)
		})
	},
}

func init() {
	layersCmd.Flags().StringVarP(&layersFormat, "format", "f", "json", "Output format: json or text")
	rootCmd.AddCommand(validateCmd, optimizeCmd, layersCmd)
}

type compileFunc func(ctx context.Context, c *service.BidCompilerService, req dto.CompileRequest) (interface{}, error)

func runCompile(cmd *cobra.Command, fn compileFunc) error {
	compiler, err := newCompiler()
	if err != nil {
		return err
	}
	req, err := loadRequest(requestPath)
	if err != nil {
		return err
	}
	result, err := fn(cmd.Context(), compiler, req)
	if err != nil {
		return fmt.Errorf("compile failed: %w", err)
	}
	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	return writeOutput(cmd.OutOrStdout(), append(out, '\n'))
}

func runLayersText(cmd *cobra.Command) error {
	compiler, err := newCompiler()
	if err != nil {
		return err
	}
	req, err := loadRequest(requestPath)
	if err != nil {
		return err
	}
	layers, err := compiler.GenerateLayers(cmd.Context(), req)
	if err != nil {
		return fmt.Errorf("compile failed: %w", err)
	}
	export, _, err := compiler.Export(cmd.Context(), layers.SessionID, layers.ExportHash)
	if err != nil {
		return fmt.Errorf("failed to load export: %w", err)
	}
	return writeOutput(cmd.OutOrStdout(), []byte(export.Content))
}

func newCompiler() (*service.BidCompilerService, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	log := zap.NewNop()
	if verbose {
		cfg.Log.Format = "console"
		if log, err = logger.New(cfg); err != nil {
			return nil, fmt.Errorf("failed to init logger: %w", err)
		}
	}
	return bootstrap.NewCompiler(cfg.Bid, bootstrap.Dependencies{}, nil, log)
}

func loadRequest(path string) (dto.CompileRequest, error) {
	var req dto.CompileRequest
	raw, err := os.ReadFile(path)
	if err != nil {
		return req, fmt.Errorf("failed to read request file %s: %w", path, err)
	}
	if err := json.Unmarshal(raw, &req); err != nil {
		return req, fmt.Errorf("failed to unmarshal compile request JSON: %w", err)
	}
	return req, nil
}

func writeOutput(stdout io.Writer, data []byte) error {
	if outputPath == "" {
		_, err := stdout.Write(data)
		return err
	}
	if dir := filepath.Dir(outputPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(outputPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write output file %s: %w", outputPath, err)
	}
	return nil
}
