package enginestub

import "github.com/futig/interview-client/internal/entity"

// scriptEntry is one canned interview question. The stub walks the script in
// order; the real engine generates questions from the conversation so far.
type scriptEntry struct {
	Category entity.QuestionCategory
	Text     string
	Required bool
}

var defaultScript = []scriptEntry{
	{
		Category: entity.CategoryFunctional,
		Text:     "What should the system do for its users? Describe the main capabilities.",
		Required: true,
	},
	{
		Category: entity.CategoryUsers,
		Text:     "Who are the primary users and what do they need to accomplish?",
		Required: true,
	},
	{
		Category: entity.CategoryIntegrations,
		Text:     "Which external systems does this need to integrate with?",
		Required: false,
	},
	{
		Category: entity.CategoryNonFunctional,
		Text:     "Are there performance, availability or compliance expectations?",
		Required: false,
	},
	{
		Category: entity.CategoryConstraints,
		Text:     "What technical or organizational constraints apply?",
		Required: false,
	},
}

// buildRequirements derives a canned prioritized list from the collected
// answers: required questions yield MUST items, answered optional questions
// SHOULD, skipped ones COULD.
func buildRequirements(s *stubSession) []entity.RequirementDTO {
	var reqs []entity.RequirementDTO

	for i, entry := range s.script {
		answer, answered := s.answers[s.questionIDs[i]]

		priority := entity.PriorityCould
		rationale := "Question was skipped; revisit during refinement."
		switch {
		case answered && entry.Required:
			priority = entity.PriorityMust
			rationale = "Stated directly by the stakeholder: " + truncate(answer, 120)
		case answered:
			priority = entity.PriorityShould
			rationale = "Derived from optional context: " + truncate(answer, 120)
		}

		reqs = append(reqs, entity.RequirementDTO{
			Title:     "Cover " + string(entry.Category) + " scope for " + s.project,
			Rationale: rationale,
			Priority:  string(priority),
		})
	}

	return reqs
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
