package domain

import "fmt"

// PolicyKey identifies a learned routing policy.
type PolicyKey struct {
	Environment string `yaml:"environment" json:"environment"`
	Complexity  string `yaml:"complexity"  json:"complexity"`
	PerfProfile string `yaml:"perf_profile" json:"perf_profile"`
}

func (k PolicyKey) String() string {
	return fmt.Sprintf("%s/%s/%s", k.Environment, k.Complexity, k.PerfProfile)
}

// PolicyAction is the routing advice stored for one PolicyKey. Roles keeps
// the learned order of abstract roles; Agents maps each role onto concrete
// agent ids.
type PolicyAction struct {
	Roles  []string
	Agents map[string][]string
}

// AgentIDs flattens the action into agent ids in role order. Duplicates are
// kept; callers dedupe.
func (a PolicyAction) AgentIDs() []string {
	var ids []string
	for _, role := range a.Roles {
		ids = append(ids, a.Agents[role]...)
	}
	return ids
}

// PolicyTable answers routing lookups. Absent keys yield an empty action,
// never an error.
type PolicyTable interface {
	Lookup(key PolicyKey) PolicyAction
}
