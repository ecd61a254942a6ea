package enginestub

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"

	"github.com/futig/interview-client/internal/entity"
	"github.com/futig/interview-client/internal/pkg/response"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// CreateSession handles POST /sessions
func (s *Server) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req entity.CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if strings.TrimSpace(req.Project) == "" {
		response.Error(w, http.StatusBadRequest, "project must not be empty")
		return
	}

	if !s.takeQuotaSlot(clientKey(r)) {
		s.logger.Warn("session quota exhausted", zap.String("client", clientKey(r)))
		response.Error(w, http.StatusTooManyRequests, "session quota exceeded, retry after the window resets")
		return
	}

	sess := newStubSession(strings.TrimSpace(req.Project))
	s.putSession(sess)

	s.logger.Info("stub session created",
		zap.String("session_id", sess.id),
		zap.String("project", sess.project),
	)

	response.Created(w, entity.SessionDTO{
		ID:                sess.id,
		Project:           sess.project,
		ConversationState: string(sess.state),
	})
}

// GetSession handles GET /sessions/{id}
func (s *Server) GetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.getSession(chi.URLParam(r, "id"))
	if !ok {
		response.Error(w, http.StatusNotFound, "session not found")
		return
	}

	s.mu.Lock()
	dto := entity.SessionDTO{
		ID:                sess.id,
		Project:           sess.project,
		ConversationState: string(sess.state),
	}
	if sess.state.IsComplete() {
		dto.Requirements = append([]entity.RequirementDTO(nil), sess.requirements...)
	}
	s.mu.Unlock()

	response.Success(w, dto)
}

// ContinueSession handles POST /sessions/{id}/continue
func (s *Server) ContinueSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.getSession(chi.URLParam(r, "id"))
	if !ok {
		response.Error(w, http.StatusNotFound, "session not found")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if sess.state.IsComplete() {
		response.Success(w, entity.ContinueResponse{
			ConversationComplete: true,
			ConversationState:    string(sess.state),
		})
		return
	}

	// Re-deliver the current question if one is outstanding; a reloaded
	// client continuing again must not consume script entries.
	if sess.current != nil {
		response.Success(w, entity.ContinueResponse{
			NextQuestion:      sess.current,
			ConversationState: string(sess.state),
		})
		return
	}

	if sess.nextIndex >= len(sess.script) {
		sess.state = entity.StatusComplete
		sess.requirements = buildRequirements(sess)
		response.Success(w, entity.ContinueResponse{
			ConversationComplete: true,
			ConversationState:    string(sess.state),
		})
		return
	}

	entry := sess.script[sess.nextIndex]
	question := &entity.QuestionDTO{
		ID:       sess.questionIDs[sess.nextIndex],
		Category: string(entry.Category),
		Text:     entry.Text,
		Required: entry.Required,
	}
	sess.current = question
	sess.nextIndex++
	sess.state = entity.StatusCollecting

	response.Success(w, entity.ContinueResponse{
		NextQuestion:      question,
		ConversationState: string(sess.state),
	})
}

// SubmitAnswer handles POST /sessions/{id}/answers
func (s *Server) SubmitAnswer(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.getSession(chi.URLParam(r, "id"))
	if !ok {
		response.Error(w, http.StatusNotFound, "session not found")
		return
	}

	var req entity.SubmitAnswerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if sess.current == nil || sess.current.ID != req.QuestionID {
		response.Error(w, http.StatusBadRequest, "no outstanding question with that id")
		return
	}

	if !req.IsSkipped && strings.TrimSpace(req.AnswerText) == "" {
		response.Error(w, http.StatusBadRequest, "answer_text must not be empty")
		return
	}

	if req.IsSkipped && sess.current.Required {
		response.Error(w, http.StatusBadRequest, "required question cannot be skipped")
		return
	}

	question := *sess.current
	if !req.IsSkipped {
		sess.answers[req.QuestionID] = strings.TrimSpace(req.AnswerText)
	}
	sess.answered++
	sess.current = nil

	complete := sess.nextIndex >= len(sess.script)
	if complete {
		sess.state = entity.StatusComplete
		sess.requirements = buildRequirements(sess)
	} else {
		sess.state = entity.StatusGeneratingQuestions
	}

	response.Success(w, entity.SubmitAnswerResponse{
		Question:             question,
		Answer:               sess.answers[req.QuestionID],
		ConversationComplete: complete,
		ConversationState:    string(sess.state),
	})
}

// GetStatus handles GET /sessions/{id}/status
func (s *Server) GetStatus(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.getSession(chi.URLParam(r, "id"))
	if !ok {
		response.Error(w, http.StatusNotFound, "session not found")
		return
	}

	s.mu.Lock()
	total := len(sess.script)
	answered := sess.answered
	s.mu.Unlock()

	percent := 0
	if total > 0 {
		percent = answered * 100 / total
	}

	response.Success(w, entity.StatusResponse{
		Progress: entity.ProgressDTO{
			TotalQuestions:       total,
			AnsweredQuestions:    answered,
			RemainingQuestions:   total - answered,
			CompletionPercentage: percent,
		},
	})
}

// GetRequirements handles GET /sessions/{id}/requirements
func (s *Server) GetRequirements(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.getSession(chi.URLParam(r, "id"))
	if !ok {
		response.Error(w, http.StatusNotFound, "session not found")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !sess.state.IsComplete() {
		response.Error(w, http.StatusConflict, "conversation is not complete")
		return
	}

	response.Success(w, entity.RequirementsResponse{
		Requirements: append([]entity.RequirementDTO(nil), sess.requirements...),
	})
}

// clientKey identifies the caller for quota accounting: the bearer token when
// present, the remote host otherwise.
func clientKey(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		return auth
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
