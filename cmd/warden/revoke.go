package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Mindburn-Labs/warden/pkg/approval"
)

var (
	revokeProposal string
	revokeDigest   string
	revokeAll      bool
	revokeReason   string
)

var revokeCmd = &cobra.Command{
	Use:   "revoke",
	Short: "Invalidate approval tokens",
	Long: `Revoke tokens by proposal, by token digest, or all at once.

Examples:
  warden revoke --proposal 1a2b3c4d5e6f7a8b9c0d
  warden revoke --all --reason incident_response`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if revokeProposal == "" && revokeDigest == "" && !revokeAll {
			return fmt.Errorf("one of --proposal, --token-digest, or --all is required")
		}
		g, cleanup, err := buildGate(cmd.Context())
		if err != nil {
			return err
		}
		defer cleanup()

		revoked, err := g.Revoke(cmd.Context(), approval.RevokeQuery{
			ProposalID:  revokeProposal,
			TokenDigest: revokeDigest,
			All:         revokeAll,
			Reason:      revokeReason,
		})
		if err != nil {
			return err
		}
		return emit(cmd, revoked)
	},
}

func init() {
	revokeCmd.Flags().StringVar(&revokeProposal, "proposal", "", "Revoke every token for this proposal")
	revokeCmd.Flags().StringVar(&revokeDigest, "token-digest", "", "Revoke the token with this digest")
	revokeCmd.Flags().BoolVar(&revokeAll, "all", false, "Revoke every outstanding token")
	revokeCmd.Flags().StringVar(&revokeReason, "reason", "", "Revocation reason for the audit trail")
	rootCmd.AddCommand(revokeCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show gate status",
	RunE: func(cmd *cobra.Command, args []string) error {
		g, cleanup, err := buildGate(cmd.Context())
		if err != nil {
			return err
		}
		defer cleanup()

		st, err := g.Status()
		if err != nil {
			return err
		}
		return emit(cmd, st)
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
