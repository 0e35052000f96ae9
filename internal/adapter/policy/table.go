// Package policy loads the learned routing table consulted by the supreme
// orchestrator.
package policy

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"jomra/internal/domain"
)

//go:embed default_policy.yaml
var defaultPolicy []byte

type entry struct {
	domain.PolicyKey `yaml:",inline"`
	BestAgents       []string `yaml:"best_agents"`
}

type document struct {
	Policies []entry `yaml:"policies"`
}

// Table is an immutable PolicyTable. Roles resolve to agent ids through the
// role map given at load time; roles without a mapping contribute nothing.
type Table struct {
	entries map[domain.PolicyKey][]string
	roles   map[string]string
}

// Load reads a policy file. An empty path loads the built-in table, and so
// does a file that is missing, unreadable or invalid, with a warning.
func Load(path string, roles map[string]string, logger *slog.Logger) *Table {
	if logger == nil {
		logger = slog.Default()
	}
	if path != "" {
		t, err := loadFile(path, roles)
		if err == nil {
			logger.Info("loaded routing policies", "path", path, "count", t.Len())
			return t
		}
		logger.Warn("policy file unusable, using built-in table", "path", path, "error", err)
	}
	t, err := Parse(defaultPolicy, roles)
	if err != nil {
		logger.Error("built-in policy table invalid", "error", err)
		return newTable(nil, roles)
	}
	logger.Info("loaded routing policies", "count", t.Len())
	return t
}

func loadFile(path string, roles map[string]string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data, roles)
}

// Parse decodes a YAML policy document.
func Parse(data []byte, roles map[string]string) (*Table, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrPolicyTableInvalid, err)
	}
	entries := make(map[domain.PolicyKey][]string, len(doc.Policies))
	for i, e := range doc.Policies {
		if e.Environment == "" || e.Complexity == "" || e.PerfProfile == "" {
			return nil, fmt.Errorf("%w: policies[%d]: incomplete key %q", domain.ErrPolicyTableInvalid, i, e.PolicyKey.String())
		}
		key := normalizeKey(e.PolicyKey)
		if _, dup := entries[key]; dup {
			return nil, fmt.Errorf("%w: policies[%d]: duplicate key %q", domain.ErrPolicyTableInvalid, i, key.String())
		}
		entries[key] = append([]string(nil), e.BestAgents...)
	}
	return newTable(entries, roles), nil
}

func newTable(entries map[domain.PolicyKey][]string, roles map[string]string) *Table {
	if entries == nil {
		entries = map[domain.PolicyKey][]string{}
	}
	r := make(map[string]string, len(roles))
	for k, v := range roles {
		r[strings.ToLower(k)] = v
	}
	return &Table{entries: entries, roles: r}
}

// Lookup implements domain.PolicyTable.
func (t *Table) Lookup(key domain.PolicyKey) domain.PolicyAction {
	best, ok := t.entries[normalizeKey(key)]
	if !ok {
		return domain.PolicyAction{}
	}
	action := domain.PolicyAction{
		Roles:  make([]string, 0, len(best)),
		Agents: make(map[string][]string, len(best)),
	}
	for _, role := range best {
		role = strings.ToLower(role)
		action.Roles = append(action.Roles, role)
		if id, ok := t.roles[role]; ok && id != "" {
			action.Agents[role] = []string{id}
		}
	}
	return action
}

// Len reports the number of policies.
func (t *Table) Len() int { return len(t.entries) }

func normalizeKey(k domain.PolicyKey) domain.PolicyKey {
	return domain.PolicyKey{
		Environment: strings.ToLower(strings.TrimSpace(k.Environment)),
		Complexity:  strings.ToLower(strings.TrimSpace(k.Complexity)),
		PerfProfile: strings.ToLower(strings.TrimSpace(k.PerfProfile)),
	}
}

var _ domain.PolicyTable = (*Table)(nil)
