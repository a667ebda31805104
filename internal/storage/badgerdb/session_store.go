package badgerdb

import (
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/conspectus/internal/interfaces"
	"github.com/ternarybob/conspectus/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// SessionStore implements the SessionStore interface for Badger
type SessionStore struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewSessionStore creates a new SessionStore instance
func NewSessionStore(db *BadgerDB, logger arbor.ILogger) interfaces.SessionStore {
	return &SessionStore{
		db:     db,
		logger: logger,
	}
}

// SaveSession upserts a session, stamping timestamps as bookkeeping.
func (s *SessionStore) SaveSession(session *models.ChatSession) error {
	if session.ID == "" {
		return fmt.Errorf("session ID is required")
	}

	now := time.Now().UTC()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	session.UpdatedAt = now

	if err := s.db.Store().Upsert(session.ID, session); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (s *SessionStore) GetSession(id string) (*models.ChatSession, error) {
	var session models.ChatSession
	if err := s.db.Store().Get(id, &session); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, interfaces.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return &session, nil
}

// ListSessions returns sessions most recently touched first.
func (s *SessionStore) ListSessions(limit int) ([]models.ChatSession, error) {
	query := badgerhold.Where("ID").Ne("").SortBy("UpdatedAt").Reverse()
	if limit > 0 {
		query = query.Limit(limit)
	}

	var sessions []models.ChatSession
	if err := s.db.Store().Find(&sessions, query); err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return sessions, nil
}

func (s *SessionStore) DeleteSession(id string) error {
	if err := s.db.Store().Delete(id, &models.ChatSession{}); err != nil {
		if err == badgerhold.ErrNotFound {
			return interfaces.ErrNotFound
		}
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}
