package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/saga/internal/archive"
	"github.com/roach88/saga/internal/projection"
)

const harborSeed = "../seed/testdata/harbor.yaml"

// isolateEnv points the CLI at a fresh database and keeps logs quiet.
func isolateEnv(t *testing.T) string {
	t.Helper()
	db := filepath.Join(t.TempDir(), "saga.db")
	t.Setenv("SAGA_DB", db)
	t.Setenv("SAGA_LOG_LEVEL", "error")
	t.Setenv("SAGA_OTEL_ENDPOINT", "")
	return db
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// decode unwraps a JSON CLIResponse into data, or into the error details
// for error responses.
func decode[T any](t *testing.T, out string) (CLIResponse, T) {
	t.Helper()
	var raw struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
		Error  *struct {
			Code    string          `json:"code"`
			Message string          `json:"message"`
			Details json.RawMessage `json:"details"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &raw), out)
	resp := CLIResponse{Status: raw.Status}
	body := raw.Data
	if raw.Error != nil {
		resp.Error = &CLIError{Code: raw.Error.Code, Message: raw.Error.Message}
		body = raw.Error.Details
	}
	var data T
	if len(body) > 0 && string(body) != "null" {
		require.NoError(t, json.Unmarshal(body, &data))
	}
	return resp, data
}

func initHarbor(t *testing.T) string {
	t.Helper()
	out, err := execute(t, "init", harborSeed, "--format", "json")
	require.NoError(t, err, out)
	resp, res := decode[InitResult](t, out)
	require.Equal(t, "ok", resp.Status)
	require.NotEmpty(t, res.CampaignID)
	return res.CampaignID
}

func TestInit(t *testing.T) {
	isolateEnv(t)

	out, err := execute(t, "init", harborSeed, "--format", "json")
	require.NoError(t, err)
	_, res := decode[InitResult](t, out)
	assert.Equal(t, "The Drowned Harbor", res.Title)
	assert.Equal(t, 7, res.Genesis)

	out, err = execute(t, "init", harborSeed, "--title", "Night Shift")
	require.NoError(t, err)
	assert.Contains(t, out, "(Night Shift)")
	assert.Contains(t, out, "Fog rolls over the harbor.")
}

func TestInit_SeedErrors(t *testing.T) {
	isolateEnv(t)

	_, err := execute(t, "init", filepath.Join(t.TempDir(), "missing.cue"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("title: x\nplayer: {id: pc, name: Ash, location: gate, hp: 0}\n"), 0o644))
	out, err := execute(t, "init", bad, "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	resp, _ := decode[any](t, out)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeSeed, resp.Error.Code)
}

func TestTurn(t *testing.T) {
	isolateEnv(t)
	id := initHarbor(t)

	out, err := execute(t, "turn", id, "walk", "to", "the", "dock", "--format", "json")
	require.NoError(t, err, out)
	_, res := decode[TurnResult](t, out)
	assert.Equal(t, "mechanic", res.Route)
	assert.Equal(t, "movement", res.ActionClass)
	assert.True(t, res.Committed)
	assert.Equal(t, 1, res.TurnNumber)
	assert.Equal(t, "> walk to the dock", res.Text)
	assert.NotEmpty(t, res.BatchHash)
	assert.Equal(t, []string{"router", "mechanic", "encounter", "world_reaction", "narrative", "commit"}, res.Stages)

	out, err = execute(t, "turn", id, "/status")
	require.NoError(t, err)
	assert.Equal(t, "Turn 1. Ash at gate, HP 20/20, mood neutral.\n", out)

	out, err = execute(t, "turn", id, "look", "around")
	require.NoError(t, err)
	assert.Equal(t, "[turn 2]\n> look around\n", out)
}

func TestTurn_UnknownCampaign(t *testing.T) {
	isolateEnv(t)
	initHarbor(t)

	_, err := execute(t, "turn", "nope", "look")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "campaign not found: nope")
}

func TestHistory(t *testing.T) {
	isolateEnv(t)
	id := initHarbor(t)
	_, err := execute(t, "turn", id, "look", "around")
	require.NoError(t, err)

	out, err := execute(t, "history", id, "--format", "json")
	require.NoError(t, err)
	_, res := decode[HistoryResult](t, out)
	require.Len(t, res.Events, 7)
	assert.Equal(t, "ENTITY_SPAWN", string(res.Events[0].Kind()))
	assert.Equal(t, "WORLD_EVENT", string(res.Events[6].Kind()))

	out, err = execute(t, "history", id, "--since", "0")
	require.NoError(t, err)
	assert.Equal(t, "No events.\n", out)

	out, err = execute(t, "history", id, "--rendered")
	require.NoError(t, err)
	assert.Equal(t, "[turn 1]\n> look around\n\n", out)

	_, err = execute(t, "history", id, "--since", "-5")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestState(t *testing.T) {
	isolateEnv(t)
	id := initHarbor(t)

	out, err := execute(t, "state", id, "--format", "json")
	require.NoError(t, err)
	_, res := decode[StateResult](t, out)
	assert.Equal(t, "The Drowned Harbor", res.Campaign.Title)
	assert.Equal(t, 480, res.Campaign.WorldState.WorldTimeMinutes)
	require.Len(t, res.Characters, 2)
	assert.Equal(t, "pc", res.Characters[0].ID)
	assert.Equal(t, "vera", res.Characters[1].ID)
	require.Len(t, res.Inventory, 1)
	assert.Equal(t, 2, res.Inventory[0].Quantity)

	out, err = execute(t, "state", id)
	require.NoError(t, err)
	assert.Contains(t, out, "The Drowned Harbor (turn 0)")
	assert.Contains(t, out, "World time: day 1, 08:00")
	assert.Contains(t, out, "Flags: gate_open=false tide=low")

	out, err = execute(t, "state")
	require.NoError(t, err)
	assert.Contains(t, out, id)
	assert.Contains(t, out, "The Drowned Harbor")
}

func TestVerify(t *testing.T) {
	db := isolateEnv(t)
	id := initHarbor(t)

	out, err := execute(t, "verify", id, "--format", "json")
	require.NoError(t, err)
	_, report := decode[projection.Report](t, out)
	assert.True(t, report.OK())
	assert.Equal(t, 7, report.EventCount)

	tamper(t, db, "UPDATE characters SET hp_current = 3 WHERE id = 'pc'")

	out, err = execute(t, "verify", id)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ Campaign "+id)
	assert.Contains(t, out, "characters.pc.hp_current: projected 3, replayed 20")

	out, err = execute(t, "verify", id, "--format", "json")
	require.Error(t, err)
	resp, report := decode[projection.Report](t, out)
	assert.Equal(t, CodeDivergence, resp.Error.Code)
	require.Len(t, report.Divergences, 1)
	assert.Equal(t, "characters.pc.hp_current", report.Divergences[0].Path)
}

func TestExport(t *testing.T) {
	isolateEnv(t)
	id := initHarbor(t)
	_, err := execute(t, "turn", id, "look", "around")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "harbor.saga.zst")
	out, err := execute(t, "export", id, "-o", path, "--check", "--format", "json")
	require.NoError(t, err, out)
	_, res := decode[ExportResult](t, out)
	assert.Equal(t, archive.FormatV1, res.Format)
	assert.Equal(t, 7, res.EventCount)
	assert.Equal(t, 1, res.RenderedCount)
	assert.True(t, res.Checked)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	a, err := archive.Read(f)
	require.NoError(t, err)
	assert.Equal(t, id, a.Header.Campaign.ID)
}

func TestExport_CheckDetectsDrift(t *testing.T) {
	db := isolateEnv(t)
	id := initHarbor(t)
	tamper(t, db, "UPDATE inventory SET quantity = 9 WHERE owner_id = 'pc'")

	out, err := execute(t, "export", id, "-o", filepath.Join(t.TempDir(), "a.zst"), "--check")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "archive diverges from projections")
}

func TestScenario(t *testing.T) {
	isolateEnv(t)

	out, err := execute(t, "scenario", "../harness/testdata/scenarios", "--golden", "../harness/testdata/golden")
	require.NoError(t, err, out)
	assert.Contains(t, out, "✓ harbor_skirmish")
	assert.Contains(t, out, "1 passed, 0 failed, 1 total")
}

func TestScenario_FailureAndGoldenUpdate(t *testing.T) {
	isolateEnv(t)
	dir := t.TempDir()
	scenario := `
name: broken
genesis:
  - type: ENTITY_SPAWN
    payload: {character_id: pc, name: Ash, kind: player, location: gate, hp: 10}
turns:
  - input: look
assertions:
  - type: character
    character: pc
    expect: {hp_current: 3}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte(scenario), 0o644))

	out, err := execute(t, "scenario", dir, "--update", "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	resp, res := decode[ScenarioRunResult](t, out)
	assert.Equal(t, CodeScenario, resp.Error.Code)
	assert.Equal(t, 1, res.Failed)

	golden, err := os.ReadFile(filepath.Join(dir, "golden", "broken.golden"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(golden), `{"campaign_id":"campaign-test"`))

	out, err = execute(t, "scenario", dir, "--filter", "nothing*")
	require.NoError(t, err)
	assert.Equal(t, "No scenarios found.\n", out)
}

func TestScenario_MissingPath(t *testing.T) {
	isolateEnv(t)
	_, err := execute(t, "scenario", filepath.Join(t.TempDir(), "absent"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
