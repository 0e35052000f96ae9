package policy

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jomra/internal/domain"
)

var testRoles = map[string]string{
	"writer":     "qa_agent",
	"researcher": "tool_agent",
	"analyst":    "chain_of_thought",
}

func TestDefaultTableLookup(t *testing.T) {
	tbl := Load("", testRoles, slog.Default())
	require.Greater(t, tbl.Len(), 0)

	action := tbl.Lookup(domain.PolicyKey{Environment: "env_coordination", Complexity: "medium", PerfProfile: "high_perf"})
	assert.Equal(t, []string{"writer", "researcher", "analyst"}, action.Roles)
	assert.Equal(t, []string{"qa_agent", "tool_agent", "chain_of_thought"}, action.AgentIDs())
}

func TestLookupUnmappedRole(t *testing.T) {
	tbl := Load("", testRoles, slog.Default())
	action := tbl.Lookup(domain.PolicyKey{Environment: "env_coordination", Complexity: "high", PerfProfile: "high_perf"})
	assert.Contains(t, action.Roles, "planner")
	assert.NotContains(t, action.Agents, "planner")
	assert.Equal(t, []string{"tool_agent", "chain_of_thought", "qa_agent"}, action.AgentIDs())
}

func TestLookupAbsentKey(t *testing.T) {
	tbl := Load("", testRoles, slog.Default())
	action := tbl.Lookup(domain.PolicyKey{Environment: "nowhere", Complexity: "x", PerfProfile: "y"})
	assert.Empty(t, action.Roles)
	assert.Empty(t, action.AgentIDs())
}

func TestLookupNormalizesKey(t *testing.T) {
	tbl := Load("", testRoles, slog.Default())
	action := tbl.Lookup(domain.PolicyKey{Environment: " ENV_Coordination", Complexity: "Medium", PerfProfile: "HIGH_PERF "})
	assert.Len(t, action.Roles, 3)
}

func TestParseInvalid(t *testing.T) {
	cases := map[string]string{
		"syntax":     "policies: [",
		"incomplete": "policies:\n  - environment: a\n    complexity: b\n",
		"duplicate": `policies:
  - {environment: a, complexity: b, perf_profile: c, best_agents: [writer]}
  - {environment: A, complexity: b, perf_profile: c, best_agents: [analyst]}
`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc), testRoles)
			assert.True(t, errors.Is(err, domain.ErrPolicyTableInvalid), "err = %v", err)
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	doc := "policies:\n  - {environment: e, complexity: c, perf_profile: p, best_agents: [analyst]}\n"
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	tbl := Load(path, testRoles, slog.Default())
	assert.Equal(t, []string{"chain_of_thought"}, tbl.Lookup(domain.PolicyKey{Environment: "e", Complexity: "c", PerfProfile: "p"}).AgentIDs())
}

func TestLoadUnusableFileFallsBack(t *testing.T) {
	builtin := Load("", testRoles, slog.Default())
	key := domain.PolicyKey{Environment: "env_coordination", Complexity: "medium", PerfProfile: "high_perf"}

	invalid := filepath.Join(t.TempDir(), "invalid.yaml")
	require.NoError(t, os.WriteFile(invalid, []byte("policies: ["), 0o600))

	for name, path := range map[string]string{
		"missing": filepath.Join(t.TempDir(), "absent.yaml"),
		"invalid": invalid,
	} {
		t.Run(name, func(t *testing.T) {
			tbl := Load(path, testRoles, slog.Default())
			assert.Equal(t, builtin.Len(), tbl.Len())
			assert.Equal(t, []string{"qa_agent", "tool_agent", "chain_of_thought"}, tbl.Lookup(key).AgentIDs())
		})
	}
}
