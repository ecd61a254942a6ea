package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/futig/interview-client/internal/config"
	"github.com/futig/interview-client/internal/entity"
	pkghttp "github.com/futig/interview-client/pkg/http"
	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	"go.uber.org/zap"
)

// SessionGateway is the typed RPC boundary to the conversation engine. Each
// call has exactly three outcome classes: a typed payload, a recoverable
// failure (entity.ErrNetwork) or a terminal failure (validation, quota,
// not-found). The gateway never retries internally; only the state machine
// knows whether repeating a call would duplicate a side effect.
type SessionGateway struct {
	connector *pkghttp.Connector
	logger    *zap.Logger
}

func NewSessionGateway(cfg config.EngineConnectorConfig, logger *zap.Logger) *SessionGateway {
	connCfg := &pkghttp.ConnectorConfig{
		Logger:  logger,
		BaseURL: cfg.Url,
	}

	connector := pkghttp.NewConnector(
		connCfg,
		pkghttp.WithRequestTimeout(cfg.RequestTimeout),
		pkghttp.WithConnClientTimeout(cfg.ConnTimeout),
		pkghttp.WithClientKeepAlive(cfg.KeepAlive),
		pkghttp.WithIdleConnTimeout(cfg.IdleConnTimeout),
		pkghttp.WithResponseHeaderTimeout(cfg.ResponseHeaderTimeout),
		pkghttp.WithRequestLogging(),
		pkghttp.WithAuthToken(cfg.Token),
		pkghttp.WithCookieJar(),
	)

	return &SessionGateway{
		connector: connector,
		logger:    logger,
	}
}

// CreateSession starts a new engine conversation for the project.
func (g *SessionGateway) CreateSession(ctx context.Context, project string) (*entity.Session, error) {
	ctxzap.Info(ctx, "creating interview session", zap.String("project", project))

	var resp entity.SessionDTO
	err := g.connector.DoRequest(ctx, http.MethodPost, "/sessions",
		&entity.CreateSessionRequest{Project: project}, &resp)
	if err != nil {
		return nil, classify(err)
	}

	ctxzap.Info(ctx, "session created", zap.String("session_id", resp.ID))

	return toSession(&resp), nil
}

// GetSession fetches the full session, including requirements when complete.
func (g *SessionGateway) GetSession(ctx context.Context, sessionID string) (*entity.Session, error) {
	ctxzap.Debug(ctx, "fetching session", zap.String("session_id", sessionID))

	var resp entity.SessionDTO
	err := g.connector.DoRequest(ctx, http.MethodGet, "/sessions/"+sessionID, nil, &resp)
	if err != nil {
		return nil, classify(err)
	}

	return toSession(&resp), nil
}

// Continue asks the engine for the next turn. The engine may report
// completion directly instead of issuing a question.
func (g *SessionGateway) Continue(ctx context.Context, sessionID string) (*entity.Turn, error) {
	ctxzap.Info(ctx, "requesting next question", zap.String("session_id", sessionID))

	var resp entity.ContinueResponse
	err := g.connector.DoRequest(ctx, http.MethodPost, "/sessions/"+sessionID+"/continue", nil, &resp)
	if err != nil {
		return nil, classify(err)
	}

	turn := toTurn(&resp)
	if turn.Question == nil && !turn.Complete {
		return nil, fmt.Errorf("%w: continue returned neither question nor completion", entity.ErrNetwork)
	}

	return turn, nil
}

// SubmitAnswer forwards answer text (or a skip marker) for a question.
func (g *SessionGateway) SubmitAnswer(ctx context.Context, sessionID, questionID, text string, skipped bool) (*entity.SubmitResult, error) {
	ctxzap.Info(ctx, "submitting answer",
		zap.String("session_id", sessionID),
		zap.String("question_id", questionID),
		zap.Bool("is_skipped", skipped),
	)

	req := &entity.SubmitAnswerRequest{
		QuestionID: questionID,
		AnswerText: text,
		IsSkipped:  skipped,
	}

	var resp entity.SubmitAnswerResponse
	err := g.connector.DoRequest(ctx, http.MethodPost, "/sessions/"+sessionID+"/answers", req, &resp)
	if err != nil {
		return nil, classify(err)
	}

	return &entity.SubmitResult{
		Complete: resp.ConversationComplete,
		Status:   entity.ConversationStatus(resp.ConversationState),
	}, nil
}

// GetStatus fetches the engine's progress counters.
func (g *SessionGateway) GetStatus(ctx context.Context, sessionID string) (entity.ProgressDTO, error) {
	var resp entity.StatusResponse
	err := g.connector.DoRequest(ctx, http.MethodGet, "/sessions/"+sessionID+"/status", nil, &resp)
	if err != nil {
		return entity.ProgressDTO{}, classify(err)
	}

	return resp.Progress, nil
}

// GetRequirements fetches (or re-fetches) the generated requirement list
// without re-running the conversation.
func (g *SessionGateway) GetRequirements(ctx context.Context, sessionID string) ([]entity.Requirement, error) {
	ctxzap.Info(ctx, "fetching requirements", zap.String("session_id", sessionID))

	var resp entity.RequirementsResponse
	err := g.connector.DoRequest(ctx, http.MethodGet, "/sessions/"+sessionID+"/requirements", nil, &resp)
	if err != nil {
		err = classify(err)
		if errors.Is(err, entity.ErrNetwork) || errors.Is(err, entity.ErrValidation) {
			// The conversation itself finished; only summarization is broken.
			return nil, fmt.Errorf("%w: %v", entity.ErrRequirementsGeneration, err)
		}
		return nil, err
	}

	return toRequirements(resp.Requirements), nil
}

// classify maps transport errors onto domain failure kinds. Cancellation
// passes through untouched so the caller can discard the call.
func classify(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var netErr *pkghttp.NetworkError
	if errors.As(err, &netErr) {
		return fmt.Errorf("%w: %v", entity.ErrNetwork, err)
	}

	var httpErr *pkghttp.HTTPError
	if errors.As(err, &httpErr) {
		switch {
		case httpErr.StatusCode == http.StatusTooManyRequests:
			return fmt.Errorf("%w: %v", entity.ErrQuotaExceeded, err)
		case httpErr.StatusCode == http.StatusNotFound:
			return fmt.Errorf("%w: %v", entity.ErrSessionNotFound, err)
		case httpErr.StatusCode >= 400 && httpErr.StatusCode < 500:
			return fmt.Errorf("%w: %v", entity.ErrValidation, err)
		default:
			return fmt.Errorf("%w: %v", entity.ErrNetwork, err)
		}
	}

	return err
}
