package entity

// Wire DTOs for the conversation engine REST surface. All JSON over HTTPS
// with cookie credentials.

type CreateSessionRequest struct {
	Project string `json:"project"`
}

type SessionDTO struct {
	ID                string           `json:"id"`
	Project           string           `json:"project"`
	ConversationState string           `json:"conversation_state"`
	Requirements      []RequirementDTO `json:"requirements,omitempty"`
}

type QuestionDTO struct {
	ID       string `json:"id"`
	Category string `json:"category"`
	Text     string `json:"text"`
	Required bool   `json:"required"`
}

type ContinueResponse struct {
	NextQuestion         *QuestionDTO `json:"next_question"`
	ConversationComplete bool         `json:"conversation_complete"`
	ConversationState    string       `json:"conversation_state"`
}

type SubmitAnswerRequest struct {
	QuestionID string `json:"question_id"`
	AnswerText string `json:"answer_text"`
	IsSkipped  bool   `json:"is_skipped,omitempty"`
}

type SubmitAnswerResponse struct {
	Question             QuestionDTO `json:"question"`
	Answer               string      `json:"answer"`
	ConversationComplete bool        `json:"conversation_complete"`
	ConversationState    string      `json:"conversation_state"`
}

type ProgressDTO struct {
	TotalQuestions       int `json:"total_questions"`
	AnsweredQuestions    int `json:"answered_questions"`
	RemainingQuestions   int `json:"remaining_questions"`
	CompletionPercentage int `json:"completion_percentage"`
}

type StatusResponse struct {
	Progress ProgressDTO `json:"progress"`
}

type RequirementDTO struct {
	Title     string `json:"title"`
	Rationale string `json:"rationale"`
	Priority  string `json:"priority"`
}

type RequirementsResponse struct {
	Requirements []RequirementDTO `json:"requirements"`
}
