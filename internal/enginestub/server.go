package enginestub

import (
	"net/http"
	"sync"
	"time"

	"github.com/futig/interview-client/internal/config"
	"github.com/futig/interview-client/internal/entity"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

// Server is a local fake conversation engine. It serves the full REST
// surface the client consumes (sessions, continue, answers, status,
// requirements) with a canned question script and a per-client session quota
// over a rolling window, so the client and its tests can exercise every
// outcome class without the real engine.
type Server struct {
	cfg    config.StubConfig
	logger *zap.Logger

	mu       sync.Mutex
	sessions *gocache.Cache
	quota    *gocache.Cache
}

// stubSession is the engine-side conversation state.
type stubSession struct {
	id           string
	project      string
	state        entity.ConversationStatus
	script       []scriptEntry
	questionIDs  []string
	nextIndex    int
	current      *entity.QuestionDTO
	answered     int
	answers      map[string]string
	requirements []entity.RequirementDTO
}

func newStubSession(project string) *stubSession {
	script := defaultScript
	ids := make([]string, len(script))
	for i := range script {
		ids[i] = uuid.New().String()
	}

	return &stubSession{
		id:          uuid.New().String(),
		project:     project,
		state:       entity.StatusCollecting,
		script:      script,
		questionIDs: ids,
		answers:     make(map[string]string),
	}
}

func NewServer(cfg config.StubConfig, logger *zap.Logger) *Server {
	return &Server{
		cfg:      cfg,
		logger:   logger,
		sessions: gocache.New(cfg.SessionTTL, 10*time.Minute),
		quota:    gocache.New(cfg.QuotaWindow, time.Minute),
	}
}

// Router wires the REST surface with the standard middleware stack.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(Logger(s.logger))
	r.Use(chimiddleware.Timeout(60 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})

	r.Route("/sessions", func(r chi.Router) {
		r.Post("/", s.CreateSession)
		r.Get("/{id}", s.GetSession)
		r.Post("/{id}/continue", s.ContinueSession)
		r.Post("/{id}/answers", s.SubmitAnswer)
		r.Get("/{id}/status", s.GetStatus)
		r.Get("/{id}/requirements", s.GetRequirements)
	})

	return r
}

// takeQuotaSlot counts a new session against the caller's rolling window.
func (s *Server) takeQuotaSlot(clientKey string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	if v, found := s.quota.Get(clientKey); found {
		count = v.(int)
	}

	if count >= s.cfg.SessionQuota {
		return false
	}

	if count == 0 {
		// TTL starts at the first session of the window.
		s.quota.Set(clientKey, 1, gocache.DefaultExpiration)
	} else {
		s.quota.IncrementInt(clientKey, 1)
	}

	return true
}

func (s *Server) getSession(id string) (*stubSession, bool) {
	v, found := s.sessions.Get(id)
	if !found {
		return nil, false
	}
	return v.(*stubSession), true
}

func (s *Server) putSession(sess *stubSession) {
	s.sessions.Set(sess.id, sess, gocache.DefaultExpiration)
}
