package proposal

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildInput() BuildInput {
	return BuildInput{
		Capability: "file.write_scoped",
		Summary:    "update notes",
		Scope:      Scope{Paths: []string{"/work/notes.txt"}},
		Steps: []Step{
			{StepID: "s1", Action: "write_file", Parameters: StepParams{Path: "/work/notes.txt", Content: "hello"}},
		},
	}
}

func TestBuildDeterministicID(t *testing.T) {
	a, err := Build(buildInput())
	require.NoError(t, err)
	b, err := Build(buildInput())
	require.NoError(t, err)

	assert.Equal(t, a.ProposalID, b.ProposalID)
	assert.Len(t, a.ProposalID, 20)
	assert.Equal(t, "proposal_action", a.Type)
	assert.True(t, a.RequiresApproval)
	assert.Equal(t, "tier2", a.RiskTier)
	assert.Equal(t, 300, a.ExpiresInSeconds)
}

func TestBuildIDChangesWithContent(t *testing.T) {
	a, err := Build(buildInput())
	require.NoError(t, err)

	in := buildInput()
	in.Summary = "update notes differently"
	b, err := Build(in)
	require.NoError(t, err)

	assert.NotEqual(t, a.ProposalID, b.ProposalID)
}

func TestBuildIDIgnoresJustification(t *testing.T) {
	a, err := Build(buildInput())
	require.NoError(t, err)

	in := buildInput()
	in.Justification = []string{"because the user asked"}
	b, err := Build(in)
	require.NoError(t, err)

	assert.Equal(t, a.ProposalID, b.ProposalID)
}

func TestBuildCapsJustificationAndArtifacts(t *testing.T) {
	in := buildInput()
	for i := 0; i < 12; i++ {
		in.Justification = append(in.Justification, strings.Repeat("x", 500))
	}
	for i := 0; i < 30; i++ {
		in.RelatedArtifacts = append(in.RelatedArtifacts, "artifact")
	}
	p, err := Build(in)
	require.NoError(t, err)

	assert.Len(t, p.Justification, 8)
	for _, j := range p.Justification {
		assert.LessOrEqual(t, len(j), 240)
	}
	assert.Len(t, p.RelatedArtifacts, 20)
}

func TestBuildJustificationCapKeepsRunesWhole(t *testing.T) {
	in := buildInput()
	in.Justification = []string{strings.Repeat("a", 239) + "界"}
	p, err := Build(in)
	require.NoError(t, err)

	require.Len(t, p.Justification, 1)
	assert.True(t, utf8.ValidString(p.Justification[0]))
	assert.Equal(t, strings.Repeat("a", 239), p.Justification[0])
}

func TestBuildPreconditionsPerKind(t *testing.T) {
	fw, err := Build(buildInput())
	require.NoError(t, err)
	assert.Equal(t, []string{"diff preview will be shown"}, fw.Preconditions)

	in := buildInput()
	in.Capability = "shell.exec_scoped"
	sh, err := Build(in)
	require.NoError(t, err)
	assert.Equal(t, []string{"command preview shown"}, sh.Preconditions)
}

func TestNormalizeCommand(t *testing.T) {
	assert.Equal(t, "echo hello", NormalizeCommand([]string{" echo ", "", "hello"}))
	assert.Equal(t, "", NormalizeCommand(nil))
}

func TestStoreAppendAndFind(t *testing.T) {
	s := NewStore(t.TempDir())

	first, err := Build(buildInput())
	require.NoError(t, err)
	require.NoError(t, s.Append(first))

	in := buildInput()
	in.Summary = "second"
	second, err := Build(in)
	require.NoError(t, err)
	require.NoError(t, s.Append(second))

	all, err := s.ListPending()
	require.NoError(t, err)
	assert.Len(t, all, 2)

	got, err := s.Find(second.ProposalID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "second", got.Summary)

	missing, err := s.Find("nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}
