package gateway

import "github.com/futig/interview-client/internal/entity"

func toSession(dto *entity.SessionDTO) *entity.Session {
	return &entity.Session{
		ID:           dto.ID,
		Project:      dto.Project,
		Status:       entity.ConversationStatus(dto.ConversationState),
		Requirements: toRequirements(dto.Requirements),
	}
}

func toQuestion(dto *entity.QuestionDTO) *entity.Question {
	if dto == nil {
		return nil
	}
	return &entity.Question{
		ID:       dto.ID,
		Category: entity.QuestionCategory(dto.Category),
		Text:     dto.Text,
		Required: dto.Required,
	}
}

func toTurn(dto *entity.ContinueResponse) *entity.Turn {
	return &entity.Turn{
		Question: toQuestion(dto.NextQuestion),
		Complete: dto.ConversationComplete,
		Status:   entity.ConversationStatus(dto.ConversationState),
	}
}

func toRequirements(dtos []entity.RequirementDTO) []entity.Requirement {
	if len(dtos) == 0 {
		return nil
	}

	reqs := make([]entity.Requirement, 0, len(dtos))
	for _, dto := range dtos {
		reqs = append(reqs, entity.Requirement{
			Title:     dto.Title,
			Rationale: dto.Rationale,
			Priority:  entity.Priority(dto.Priority),
		})
	}

	return reqs
}
