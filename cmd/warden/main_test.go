package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/warden/pkg/gate"
	"github.com/Mindburn-Labs/warden/pkg/proposal"
)

func runCLI(t *testing.T, args ...string) []byte {
	t.Helper()
	buf := &bytes.Buffer{}
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	require.NoError(t, rootCmd.Execute(), "warden %v: %s", args, buf.String())
	return buf.Bytes()
}

func TestProposeApproveExecuteFlow(t *testing.T) {
	dataDir := t.TempDir()
	t.Setenv("WARDEN_DATA_DIR", dataDir)

	profilePath := filepath.Join(t.TempDir(), "profile.yaml")
	require.NoError(t, os.WriteFile(profilePath, []byte("mode: GUIDED\n"), 0o644))
	t.Setenv("WARDEN_PROFILE", profilePath)

	target := filepath.Join(dataDir, "workspace", "notes.txt")

	out := runCLI(t, "propose",
		"--capability", "file.write_scoped",
		"--summary", "write notes",
		"--path", target,
		"--content", "hello from the cli")
	var p proposal.Proposal
	require.NoError(t, json.Unmarshal(out, &p))
	require.NotEmpty(t, p.ProposalID)

	out = runCLI(t, "approve", p.ProposalID, "--ttl", "1m")
	var issued struct {
		Secret string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(out, &issued))
	require.NotEmpty(t, issued.Secret)

	out = runCLI(t, "execute", p.ProposalID, "--token", issued.Secret)
	var res gate.ExecuteResult
	require.NoError(t, json.Unmarshal(out, &res))
	assert.Equal(t, gate.StatusExecuted, res.Status)

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "hello from the cli", string(data))

	out = runCLI(t, "status")
	var st gate.Status
	require.NoError(t, json.Unmarshal(out, &st))
	assert.Equal(t, "GUIDED", st.Mode)
	assert.Equal(t, 1, st.PendingProposals)
}
