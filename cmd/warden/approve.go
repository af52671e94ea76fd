package main

import (
	"time"

	"github.com/spf13/cobra"
)

var (
	approveTTL     time.Duration
	approveOneTime bool
)

var approveCmd = &cobra.Command{
	Use:   "approve <proposal-id>",
	Short: "Issue an approval token for a proposal",
	Long: `Issue an approval token. The secret is printed exactly once and never
stored; only its digest is persisted.

Examples:
  warden approve 1a2b3c4d5e6f7a8b9c0d --ttl 5m --one-time`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		g, cleanup, err := buildGate(cmd.Context())
		if err != nil {
			return err
		}
		defer cleanup()

		issued, err := g.IssueApproval(cmd.Context(), args[0], approveTTL, approveOneTime)
		if err != nil {
			return err
		}
		return emit(cmd, issued)
	},
}

func init() {
	approveCmd.Flags().DurationVar(&approveTTL, "ttl", 5*time.Minute, "Token lifetime")
	approveCmd.Flags().BoolVar(&approveOneTime, "one-time", true, "Invalidate the token after first use")
	rootCmd.AddCommand(approveCmd)
}
