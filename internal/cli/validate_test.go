package cli

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateCommand_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, fullConfig)

	cmd := NewRootCommand()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"validate", configPath})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "valid: 4 participants, 2 conductors, 3 rounds")
}

func TestValidateCommand_OddParticipantsRoundCount(t *testing.T) {
	configPath := writeConfig(t, `
tournament: {
	participants: ["alice", "bob", "carol"]
	conductors: 1
}
`)

	cmd := NewRootCommand()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--format", "json", "validate", configPath})

	require.NoError(t, cmd.Execute())

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	assert.True(t, resp.Data.Valid)
	// Odd field: everyone sits out once, so 3 rounds for 3 players.
	assert.Equal(t, 3, resp.Data.Rounds)
}

func TestValidateCommand_InvalidConfig(t *testing.T) {
	configPath := writeConfig(t, `tournament: {participants: ["alice", "alice"], conductors: 1}`)

	cmd := NewRootCommand()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"validate", configPath})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out.String(), ErrCodeParticipants)
}

func TestValidateCommand_MissingPath(t *testing.T) {
	cmd := NewRootCommand()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"validate", "/nonexistent/tournament.cue"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, out.String(), ErrCodeNotFound)
}
