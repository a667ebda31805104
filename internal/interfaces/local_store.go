package interfaces

import "github.com/ternarybob/conspectus/internal/models"

// SessionStore persists chat sessions in the local key/value store so
// conversation history survives restarts.
type SessionStore interface {
	SaveSession(session *models.ChatSession) error
	GetSession(id string) (*models.ChatSession, error)
	ListSessions(limit int) ([]models.ChatSession, error)
	DeleteSession(id string) error
}

// SyncRunStore records tracker sync outcomes locally.
type SyncRunStore interface {
	SaveRun(run *models.SyncRun) error
	RecentRuns(limit int) ([]models.SyncRun, error)
}
