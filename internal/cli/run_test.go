package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ludus/internal/store"
)

const fastTournament = `
tournament: {
	participants: ["alice", "bob", "carol", "dave"]
	conductors: 2
	unit:       "10ms"
}
`

func TestRunCommand_FullTournament(t *testing.T) {
	configPath := writeConfig(t, fastTournament)
	dbPath := filepath.Join(t.TempDir(), "ludus.db")

	cmd := NewRootCommand()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"run", "--db", dbPath, configPath})

	err := cmd.Execute()
	require.NoError(t, err)

	assert.Contains(t, out.String(), "PARTICIPANT")
	assert.Contains(t, out.String(), "Champions:")

	// The archive holds all 6 outcomes and 3 published rounds.
	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()

	outcomes, err := st.ReadOutcomes(context.Background())
	require.NoError(t, err)
	assert.Len(t, outcomes, 6)

	round, err := st.LatestRound(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, round)
}

func TestRunCommand_JSONSummary(t *testing.T) {
	configPath := writeConfig(t, fastTournament)
	dbPath := filepath.Join(t.TempDir(), "ludus.db")

	cmd := NewRootCommand()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--format", "json", "run", "--db", dbPath, configPath})

	require.NoError(t, cmd.Execute())

	var resp struct {
		Status string     `json:"status"`
		Data   RunSummary `json:"data"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 3, resp.Data.Rounds)
	assert.NotEmpty(t, resp.Data.Champions)
	assert.Len(t, resp.Data.Standings, 4)
}

func TestRunCommand_BadConfigExitsCommandError(t *testing.T) {
	configPath := writeConfig(t, `tournament: {participants: ["alice"], conductors: 1}`)
	dbPath := filepath.Join(t.TempDir(), "ludus.db")

	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"run", "--db", dbPath, configPath})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestStandingsCommand_ReadsArchive(t *testing.T) {
	configPath := writeConfig(t, fastTournament)
	dbPath := filepath.Join(t.TempDir(), "ludus.db")

	runCmd := NewRootCommand()
	runCmd.SetOut(&bytes.Buffer{})
	runCmd.SetErr(&bytes.Buffer{})
	runCmd.SetArgs([]string{"run", "--db", dbPath, configPath})
	require.NoError(t, runCmd.Execute())

	cmd := NewRootCommand()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"standings", "--db", dbPath})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "Round 3")
	assert.Contains(t, out.String(), "alice")
}

func TestResultsCommand_ReadsArchive(t *testing.T) {
	configPath := writeConfig(t, fastTournament)
	dbPath := filepath.Join(t.TempDir(), "ludus.db")

	runCmd := NewRootCommand()
	runCmd.SetOut(&bytes.Buffer{})
	runCmd.SetErr(&bytes.Buffer{})
	runCmd.SetArgs([]string{"run", "--db", dbPath, configPath})
	require.NoError(t, runCmd.Execute())

	cmd := NewRootCommand()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"results", "--db", dbPath})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "FIXTURE")
	assert.Contains(t, out.String(), "r01m01")
	assert.Contains(t, out.String(), "r03m02")
}

func TestResultsCommand_RoundFilterJSON(t *testing.T) {
	configPath := writeConfig(t, fastTournament)
	dbPath := filepath.Join(t.TempDir(), "ludus.db")

	runCmd := NewRootCommand()
	runCmd.SetOut(&bytes.Buffer{})
	runCmd.SetErr(&bytes.Buffer{})
	runCmd.SetArgs([]string{"run", "--db", dbPath, configPath})
	require.NoError(t, runCmd.Execute())

	cmd := NewRootCommand()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--format", "json", "results", "--db", dbPath, "--round", "2"})

	require.NoError(t, cmd.Execute())

	var resp struct {
		Status string        `json:"status"`
		Data   ResultsReport `json:"data"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, resp.Data.Outcomes, 2)
	for _, o := range resp.Data.Outcomes {
		assert.Equal(t, 2, o.Round)
	}
}

func TestResultsCommand_EmptyArchive(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "empty.db")
	st, err := store.Open(dbPath)
	require.NoError(t, err)
	st.Close()

	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"results", "--db", dbPath})

	err = cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestStandingsCommand_EmptyArchive(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "empty.db")
	st, err := store.Open(dbPath)
	require.NoError(t, err)
	st.Close()

	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"standings", "--db", dbPath})

	err = cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
