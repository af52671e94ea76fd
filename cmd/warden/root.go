package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Mindburn-Labs/warden/pkg/audit"
	"github.com/Mindburn-Labs/warden/pkg/capability"
	"github.com/Mindburn-Labs/warden/pkg/config"
	"github.com/Mindburn-Labs/warden/pkg/gate"
	"github.com/Mindburn-Labs/warden/pkg/observability"
)

var (
	// Global flags
	verbose bool
	output  string
)

var rootCmd = &cobra.Command{
	Use:   "warden",
	Short: "Governed execution for autonomous assistants",
	Long: `warden gates side-effecting actions behind capability policy and
explicit human approval.

Core commands:
  propose   Create an action proposal
  approve   Issue an approval token for a proposal
  execute   Run an approved proposal
  revoke    Invalidate approval tokens
  pending   List pending proposals
  status    Show gate status
  tools     Install, list, and run sandboxed tools

Configuration comes from the environment: WARDEN_DATA_DIR, WARDEN_PROFILE,
WARDEN_AUDIT_DB, LOG_LEVEL, OTEL_EXPORTER_OTLP_ENDPOINT.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "json", "Output format (json, text)")
}

func setupLogging(level string) {
	var l slog.Level
	switch strings.ToUpper(level) {
	case "DEBUG":
		l = slog.LevelDebug
	case "WARN", "WARNING":
		l = slog.LevelWarn
	case "ERROR":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	if verbose {
		l = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l})))
}

// buildGate assembles the gate from environment configuration. The returned
// cleanup flushes telemetry and closes the audit sink.
func buildGate(ctx context.Context) (*gate.Gate, func(), error) {
	cfg := config.Load()
	setupLogging(cfg.LogLevel)

	profile, err := config.LoadProfile(cfg.ProfilePath)
	if err != nil {
		return nil, nil, err
	}
	registry, err := loadCapabilities(cfg)
	if err != nil {
		return nil, nil, err
	}

	opts := gate.Options{
		Registry: registry,
		Profile:  profile,
		DataDir:  cfg.DataDir,
	}

	cleanup := func() {}
	if cfg.AuditDBPath != "" {
		sink, err := audit.NewSQLiteSink(cfg.AuditDBPath)
		if err != nil {
			return nil, nil, err
		}
		opts.AuditSink = sink
		prev := cleanup
		cleanup = func() { _ = sink.Close(); prev() }
	}
	if cfg.OTLPTarget != "" {
		obsCfg := observability.DefaultConfig()
		obsCfg.Enabled = true
		obsCfg.OTLPEndpoint = cfg.OTLPTarget
		provider, err := observability.New(ctx, obsCfg)
		if err != nil {
			return nil, nil, err
		}
		opts.Observability = provider
		prev := cleanup
		cleanup = func() { _ = provider.Shutdown(context.Background()); prev() }
	}

	g, err := gate.New(opts)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return g, cleanup, nil
}

// loadCapabilities reads capabilities.json from the data dir, falling back
// to a workspace-scoped default set.
func loadCapabilities(cfg *config.Config) (*capability.Registry, error) {
	path := filepath.Join(cfg.DataDir, "capabilities.json")
	if _, err := os.Stat(path); err == nil {
		return capability.LoadRegistry(path)
	}

	wsRoot, err := filepath.Abs(filepath.Join(cfg.DataDir, "workspace"))
	if err != nil {
		return nil, err
	}
	return capability.NewRegistry(
		capability.Capability{
			ID:           capability.IDFileWriteScoped,
			RiskTier:     "tier2",
			Enabled:      true,
			AllowedRoots: []string{wsRoot},
		},
		capability.Capability{
			ID:           capability.IDShellExecScoped,
			RiskTier:     "tier3",
			Enabled:      true,
			AllowedRoots: []string{wsRoot},
			DenyPatterns: []string{`rm\s+-rf\s+/`, `mkfs`, `dd\s+if=`},
		},
		capability.Capability{
			ID:       capability.IDMessageSendScoped,
			RiskTier: "tier2",
			Enabled:  false,
		},
	)
}

// emit prints v as JSON or, for -o text, as aligned key lines.
func emit(cmd *cobra.Command, v any) error {
	if output == "text" {
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		var m map[string]any
		if err := json.Unmarshal(data, &m); err == nil {
			for k, val := range m {
				fmt.Fprintf(cmd.OutOrStdout(), "%-20s %v\n", k+":", val)
			}
			return nil
		}
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
