package orchestration

import "jomra/internal/domain"

// Contribution is one agent's successful response to an ensemble.
type Contribution struct {
	AgentID  string
	Response *domain.AgentResponse
}

// Aggregate combines ensemble contributions. No contributions yields an
// ERROR response and a single one is returned unchanged. Otherwise the most
// confident response wins, first-seen on ties, and the metadata records the
// ensemble size and every contribution.
func Aggregate(contribs []Contribution) *domain.AgentResponse {
	switch len(contribs) {
	case 0:
		return domain.ErrorResponse("No successful responses")
	case 1:
		return contribs[0].Response
	}

	best := contribs[0].Response
	list := make([]map[string]any, 0, len(contribs))
	for _, c := range contribs {
		if c.Response.Confidence > best.Confidence {
			best = c.Response
		}
		entry := map[string]any{
			"text":       c.Response.Text,
			"confidence": c.Response.Confidence,
		}
		if c.AgentID != "" {
			entry[domain.MetaAgentID] = c.AgentID
		}
		list = append(list, entry)
	}

	return domain.NewResponse().
		Status(best.Status).
		Text(best.Text).
		Confidence(best.Confidence).
		Meta(domain.MetaEnsembleSize, len(contribs)).
		Meta(domain.MetaResponses, list).
		Build()
}
