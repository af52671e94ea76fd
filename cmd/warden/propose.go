package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Mindburn-Labs/warden/pkg/proposal"
)

var (
	proposeCapability string
	proposeSummary    string
	proposeJustify    []string
	proposePath       string
	proposeContent    string
	proposeFile       string
	proposeCommand    []string
	proposeCwd        string
)

var proposeCmd = &cobra.Command{
	Use:   "propose",
	Short: "Create an action proposal",
	Long: `Create a capability-scoped proposal. The proposal ID is derived from
its content; identical proposals get identical IDs.

Examples:
  warden propose --capability file.write_scoped --summary "write notes" \
    --path /data/workspace/notes.txt --content "hello"
  warden propose --capability shell.exec_scoped --summary "list workspace" \
    --command ls --command -la --cwd /data/workspace`,
	RunE: runPropose,
}

func init() {
	proposeCmd.Flags().StringVar(&proposeCapability, "capability", "", "Capability ID (required)")
	proposeCmd.Flags().StringVar(&proposeSummary, "summary", "", "Human-readable summary (required)")
	proposeCmd.Flags().StringArrayVar(&proposeJustify, "justify", nil, "Justification line (repeatable)")
	proposeCmd.Flags().StringVar(&proposePath, "path", "", "Target path for file writes")
	proposeCmd.Flags().StringVar(&proposeContent, "content", "", "File content for file writes")
	proposeCmd.Flags().StringVar(&proposeFile, "content-file", "", "Read file content from this path")
	proposeCmd.Flags().StringArrayVar(&proposeCommand, "command", nil, "Command argv element (repeatable)")
	proposeCmd.Flags().StringVar(&proposeCwd, "cwd", "", "Working directory for command steps")
	_ = proposeCmd.MarkFlagRequired("capability")
	_ = proposeCmd.MarkFlagRequired("summary")
	rootCmd.AddCommand(proposeCmd)
}

func runPropose(cmd *cobra.Command, args []string) error {
	g, cleanup, err := buildGate(cmd.Context())
	if err != nil {
		return err
	}
	defer cleanup()

	in := proposal.BuildInput{
		Capability:    proposeCapability,
		Summary:       proposeSummary,
		Justification: proposeJustify,
	}

	switch {
	case proposePath != "":
		content := proposeContent
		if proposeFile != "" {
			data, err := os.ReadFile(proposeFile)
			if err != nil {
				return err
			}
			content = string(data)
		}
		in.Scope = proposal.Scope{Paths: []string{proposePath}}
		in.Steps = []proposal.Step{{
			StepID:     "s1",
			Action:     "write_file",
			Parameters: proposal.StepParams{Path: proposePath, Content: content},
		}}
	case len(proposeCommand) > 0:
		in.Scope = proposal.Scope{Commands: []string{proposal.NormalizeCommand(proposeCommand)}}
		in.Steps = []proposal.Step{{
			StepID:     "s1",
			Action:     "run_command",
			Parameters: proposal.StepParams{Command: proposeCommand, Cwd: proposeCwd},
		}}
	default:
		return fmt.Errorf("either --path or --command is required")
	}

	p, err := g.Propose(cmd.Context(), in)
	if err != nil {
		return err
	}
	return emit(cmd, p)
}

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List pending proposals",
	RunE: func(cmd *cobra.Command, args []string) error {
		g, cleanup, err := buildGate(cmd.Context())
		if err != nil {
			return err
		}
		defer cleanup()

		list, err := g.ListPending()
		if err != nil {
			return err
		}
		return emit(cmd, list)
	},
}

func init() {
	rootCmd.AddCommand(pendingCmd)
}
