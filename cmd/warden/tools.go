package main

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/Mindburn-Labs/warden/pkg/approval"
	"github.com/Mindburn-Labs/warden/pkg/audit"
	"github.com/Mindburn-Labs/warden/pkg/config"
	"github.com/Mindburn-Labs/warden/pkg/privilege"
	"github.com/Mindburn-Labs/warden/pkg/sandbox"
	"github.com/Mindburn-Labs/warden/pkg/ticket"
	"github.com/Mindburn-Labs/warden/pkg/toolreg"
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "Install, list, and run sandboxed tools",
}

var (
	toolInstallSrc     string
	toolInstallName    string
	toolInstallVersion string

	toolRunArgs        string
	toolRunConfirmHash string
)

var toolsInstallCmd = &cobra.Command{
	Use:   "install",
	Short: "Install a tool from a source directory",
	Long: `Stage, hash, and register a tool. The installed tree is content
addressed; any later modification fails verification.

Examples:
  warden tools install --src ./mytool --name mytool --version 1.0.0`,
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, _, toolsDir, err := toolEnv()
		if err != nil {
			return err
		}
		inst := toolreg.NewInstaller(reg, toolsDir)
		pctx := privilege.NewContext(privilege.Active,
			privilege.CapFSRead, privilege.CapFSWrite, privilege.CapToolInstall)
		entry, err := inst.Install(toolInstallSrc, toolInstallName, toolInstallVersion, pctx, newJobID())
		if err != nil {
			return err
		}
		return emit(cmd, entry)
	},
}

var toolsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List installed tools",
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, _, _, err := toolEnv()
		if err != nil {
			return err
		}
		entries, err := reg.List()
		if err != nil {
			return err
		}
		return emit(cmd, entries)
	},
}

var toolsRunCmd = &cobra.Command{
	Use:   "run <tool>",
	Short: "Run an installed tool with approval",
	Long: `Running a tool is two steps. Without --confirm-hash the command
verifies the tool, validates the arguments, and prints the execution ticket
with its hash. Re-run with --confirm-hash <hash> to confirm and execute.

Examples:
  warden tools run greeter --args '{"name":"Ada"}'
  warden tools run greeter --args '{"name":"Ada"}' --confirm-hash <hash>`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, loader, _, err := toolEnv()
		if err != nil {
			return err
		}

		var toolArgs map[string]any
		if toolRunArgs != "" {
			if err := json.Unmarshal([]byte(toolRunArgs), &toolArgs); err != nil {
				return fmt.Errorf("--args must be a JSON object: %w", err)
			}
		}

		jobID := newJobID()
		tk, err := loader.ProposeExec(args[0], toolArgs, jobID)
		if err != nil {
			return err
		}
		hash := ticket.MustHash(tk)

		if toolRunConfirmHash == "" {
			return emit(cmd, map[string]any{
				"ticket":      tk,
				"ticket_hash": hash,
				"next":        "re-run with --confirm-hash " + hash,
			})
		}
		receipt := &approval.Receipt{
			TicketHash:  toolRunConfirmHash,
			ConfirmedAt: time.Now().UTC(),
			Method:      approval.MethodTyped,
			Scope:       jobID,
		}
		out, err := loader.ExecuteWithApproval(cmd.Context(), tk, receipt)
		if err != nil {
			return err
		}
		return emit(cmd, out)
	},
}

func init() {
	toolsInstallCmd.Flags().StringVar(&toolInstallSrc, "src", "", "Source directory (required)")
	toolsInstallCmd.Flags().StringVar(&toolInstallName, "name", "", "Tool name (required)")
	toolsInstallCmd.Flags().StringVar(&toolInstallVersion, "version", "", "Semantic version (required)")
	_ = toolsInstallCmd.MarkFlagRequired("src")
	_ = toolsInstallCmd.MarkFlagRequired("name")
	_ = toolsInstallCmd.MarkFlagRequired("version")

	toolsRunCmd.Flags().StringVar(&toolRunArgs, "args", "", "Tool arguments as a JSON object")
	toolsRunCmd.Flags().StringVar(&toolRunConfirmHash, "confirm-hash", "", "Ticket hash to confirm execution")

	toolsCmd.AddCommand(toolsInstallCmd, toolsListCmd, toolsRunCmd)
	rootCmd.AddCommand(toolsCmd)
}

// toolEnv wires the tool registry and loader from environment configuration.
func toolEnv() (*toolreg.Registry, *toolreg.Loader, string, error) {
	cfg := config.Load()
	setupLogging(cfg.LogLevel)

	profile, err := config.LoadProfile(cfg.ProfilePath)
	if err != nil {
		return nil, nil, "", err
	}
	toolsDir := filepath.Join(cfg.DataDir, "tools")
	reg := toolreg.NewRegistry(filepath.Join(toolsDir, "registry.json"))

	ws, err := sandbox.NewWorkspace(toolsDir)
	if err != nil {
		return nil, nil, "", err
	}
	runner := sandbox.NewRunner(ws)
	log := audit.NewLog(filepath.Join(cfg.DataDir, "audit"))
	loader := toolreg.NewLoader(reg, runner, profile, log, filepath.Join(cfg.DataDir, "staging"))
	return reg, loader, toolsDir, nil
}

func newJobID() string {
	id := uuid.New()
	return "job_" + id.String()[:8]
}
