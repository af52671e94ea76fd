package main

import (
	"github.com/spf13/cobra"

	"github.com/Mindburn-Labs/warden/pkg/gate"
)

var (
	executeToken     string
	executeUntrusted bool
	executePreview   bool
)

var executeCmd = &cobra.Command{
	Use:   "execute <proposal-id>",
	Short: "Run an approved proposal",
	Long: `Execute a proposal through the gate. Denials print as a structured
result with a reason and, for policy denials, the violation codes.

Examples:
  warden execute 1a2b3c4d5e6f7a8b9c0d --token <secret>`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		g, cleanup, err := buildGate(cmd.Context())
		if err != nil {
			return err
		}
		defer cleanup()

		trust := gate.TrustTrusted
		if executeUntrusted {
			trust = gate.TrustUntrusted
		}
		res, err := g.Execute(cmd.Context(), gate.ExecuteRequest{
			ProposalID:   args[0],
			TokenSecret:  executeToken,
			Trust:        trust,
			PreviewReady: executePreview,
		})
		if err != nil {
			return err
		}
		return emit(cmd, res)
	},
}

func init() {
	executeCmd.Flags().StringVar(&executeToken, "token", "", "Approval token secret (required)")
	executeCmd.Flags().BoolVar(&executeUntrusted, "untrusted", false, "Present the request as an untrusted principal")
	executeCmd.Flags().BoolVar(&executePreview, "preview-ready", true, "Affirm the diff or command preview was shown")
	_ = executeCmd.MarkFlagRequired("token")
	rootCmd.AddCommand(executeCmd)
}
