package session

import (
	"context"
	"sync"

	"docchat/internal/models"
)

// History records chat turns per session. AppendExchange writes a question and
// its answer as two consecutive turns with increasing sequence numbers.
type History interface {
	AppendExchange(ctx context.Context, sessionID, question, answer string) error
	History(ctx context.Context, sessionID string) ([]models.ChatTurn, error)
	Drop(ctx context.Context, sessionID string) error
}

// Store keeps chat histories in memory, keyed by session id. It is owned by
// the caller and safe for concurrent use.
type Store struct {
	mu        sync.Mutex
	histories map[string][]models.ChatTurn
	seq       map[string]int
}

var _ History = (*Store)(nil)

func NewStore() *Store {
	return &Store{histories: map[string][]models.ChatTurn{}, seq: map[string]int{}}
}

func (s *Store) AppendExchange(_ context.Context, sessionID, question, answer string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendLocked(sessionID, models.RoleUser, question)
	s.appendLocked(sessionID, models.RoleAssistant, answer)
	return nil
}

func (s *Store) appendLocked(sessionID string, role models.Role, content string) {
	s.seq[sessionID]++
	turn := models.ChatTurn{Role: role, Content: content, Seq: s.seq[sessionID]}
	s.histories[sessionID] = append(s.histories[sessionID], turn)
}

// History returns a copy of the session's turns in order.
func (s *Store) History(_ context.Context, sessionID string) ([]models.ChatTurn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := s.histories[sessionID]
	out := make([]models.ChatTurn, len(h))
	copy(out, h)
	return out, nil
}

// Drop forgets a session. Sequence numbers restart if the id is reused.
func (s *Store) Drop(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.histories, sessionID)
	delete(s.seq, sessionID)
	return nil
}
