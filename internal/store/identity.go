package store

const sessionIDKey = "session_id"

// SessionIdentityStore persists the active session id so a restarted client
// resumes the same conversation. Like the draft store it is a best-effort
// cache; the engine session is always authoritative.
type SessionIdentityStore struct {
	storage Storage
}

func NewSessionIdentityStore(storage Storage) *SessionIdentityStore {
	return &SessionIdentityStore{storage: storage}
}

func (s *SessionIdentityStore) Save(sessionID string) bool {
	if sessionID == "" {
		return false
	}
	return s.storage.Set(sessionIDKey, sessionID)
}

func (s *SessionIdentityStore) Load() (string, bool) {
	id, ok := s.storage.Get(sessionIDKey)
	if !ok || id == "" {
		return "", false
	}
	return id, true
}

func (s *SessionIdentityStore) Clear() {
	s.storage.Clear(sessionIDKey)
}
