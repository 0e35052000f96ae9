package supreme

import (
	"strings"

	"jomra/internal/domain"
)

// route picks the ordered, deduplicated agent ids for query.
func (o *Orchestrator) route(query string) []string {
	lower := strings.ToLower(query)
	var ids []string

	if containsAny(lower, "code", "program") && o.cfg.CoderAgent != "" {
		if _, ok := o.deps.Agents.Get(o.cfg.CoderAgent); ok {
			ids = append(ids, o.cfg.CoderAgent)
		}
	}
	if containsAny(lower, "analyze", "reason") && o.cfg.ReasoningAgent != "" {
		ids = append(ids, o.cfg.ReasoningAgent)
	}
	if o.deps.Policy != nil {
		ids = append(ids, o.deps.Policy.Lookup(o.cfg.PolicyKey).AgentIDs()...)
	}

	ids = dedupe(ids)
	if len(ids) == 0 {
		ids = append(ids, o.cfg.DefaultAgent)
		if strings.ContainsAny(query, "+-") && o.cfg.ArithmeticAgent != "" && o.cfg.ArithmeticAgent != o.cfg.DefaultAgent {
			ids = append(ids, o.cfg.ArithmeticAgent)
		}
	}
	return ids
}

func containsAny(s string, words ...string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// enrich appends recalled memories to the request text.
func enrich(text string, memories []domain.MemoryItem) string {
	if len(memories) == 0 {
		return text
	}
	var b strings.Builder
	b.WriteString(text)
	b.WriteString("\n\nContext from memory:")
	for _, m := range memories {
		b.WriteString("\n- User: ")
		b.WriteString(m.UserText)
		b.WriteString("\n  Agent: ")
		b.WriteString(m.AgentText)
	}
	return b.String()
}
