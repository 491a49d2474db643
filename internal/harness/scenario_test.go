package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScenario(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadScenario_YAML(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/constraint_abort.yaml")
	require.NoError(t, err)

	assert.Equal(t, "constraint_abort", scenario.Name)
	require.Len(t, scenario.Transactions, 1)
	tx := scenario.Transactions[0]
	assert.Equal(t, "readwrite", tx.Mode)
	assert.Equal(t, []string{"books"}, tx.Scope)
	require.Len(t, tx.Steps, 2)
	assert.Equal(t, OpAdd, tx.Steps[1].Op)
	assert.Equal(t, 1, tx.Steps[1].Key)
	assert.Equal(t, map[string]any{"title": "again"}, tx.Steps[1].Value)
	assert.Len(t, scenario.Assertions, 5)
}

func TestLoadScenario_CUE(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/readers_share.cue")
	require.NoError(t, err)

	assert.Equal(t, "readers_share", scenario.Name)
	require.Len(t, scenario.Transactions, 2)
	assert.Equal(t, "readonly", scenario.Transactions[1].Mode)
	assert.Equal(t, []string{"books"}, scenario.Transactions[1].Scope)
	assert.Equal(t, float64(1), scenario.Seed[0].Key)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario("testdata/scenarios/does_not_exist.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestParseYAML_UnknownField(t *testing.T) {
	_, err := ParseYAML([]byte(`
name: x
description: y
transactions: [{scope: [a], steps: [], bogus: 1}]
assertions: [{type: tx_state, tx: tx1, state: finished}]
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestParseCUE_Errors(t *testing.T) {
	t.Run("syntax", func(t *testing.T) {
		_, err := ParseCUE([]byte(`name: "x`), "bad.cue")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to compile CUE")
	})
	t.Run("not concrete", func(t *testing.T) {
		_, err := ParseCUE([]byte(`name: string`), "open.cue")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not concrete")
	})
	t.Run("unknown field", func(t *testing.T) {
		_, err := ParseCUE([]byte(`name: "x", flow: []`), "extra.cue")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to decode CUE scenario")
	})
}

func TestValidateScenario(t *testing.T) {
	valid := func() *Scenario {
		return &Scenario{
			Name:        "v",
			Description: "d",
			Stores:      []StoreDef{{Name: "books"}},
			Transactions: []TxDef{{
				Scope: []string{"books"},
				Steps: []Step{{Op: OpGet, Key: 1}},
			}},
			Assertions: []Assertion{{Type: AssertTxState, Tx: "tx1", State: "finished"}},
		}
	}
	require.NoError(t, validateScenario(valid()))

	cases := map[string]struct {
		mutate func(*Scenario)
		want   string
	}{
		"missing name":       {func(s *Scenario) { s.Name = "" }, "name is required"},
		"no transactions":    {func(s *Scenario) { s.Transactions = nil }, "transactions list"},
		"no assertions":      {func(s *Scenario) { s.Assertions = nil }, "assertions list"},
		"duplicate store":    {func(s *Scenario) { s.Stores = append(s.Stores, StoreDef{Name: "books"}) }, "duplicate store"},
		"seed unknown store": {func(s *Scenario) { s.Seed = []SeedRecord{{Store: "nope", Key: 1}} }, "unknown store"},
		"bad mode":           {func(s *Scenario) { s.Transactions[0].Mode = "sideways" }, "unknown mode"},
		"versionchange no v": {func(s *Scenario) { s.Transactions[0].Mode = "versionchange" }, "version is required"},
		"empty scope":        {func(s *Scenario) { s.Transactions[0].Scope = nil }, "scope is required"},
		"duplicate tx": {func(s *Scenario) {
			s.Transactions = append(s.Transactions, TxDef{Name: "tx1", Scope: []string{"books"}})
		}, "duplicate name"},
		"unknown op":          {func(s *Scenario) { s.Transactions[0].Steps[0].Op = "jump" }, "unknown op"},
		"get without key":     {func(s *Scenario) { s.Transactions[0].Steps[0].Key = nil }, "key or range"},
		"fail without error":  {func(s *Scenario) { s.Transactions[0].Steps[0] = Step{Op: OpFail} }, "error is required"},
		"bad direction":       {func(s *Scenario) { s.Transactions[0].Steps[0] = Step{Op: OpCursor, Direction: "up"} }, "direction"},
		"nested unknown op":   {func(s *Scenario) { s.Transactions[0].Steps[0].Then = []Step{{Op: "nope"}} }, "then"},
		"unknown assertion":   {func(s *Scenario) { s.Assertions[0].Type = "vibes" }, "unknown assertion type"},
		"later_tick no after": {func(s *Scenario) { s.Assertions[0] = Assertion{Type: AssertLaterTick, Event: "a:b"} }, "later_tick"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			s := valid()
			tc.mutate(s)
			err := validateScenario(s)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}
