package badgerdb

import (
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/conspectus/internal/interfaces"
	"github.com/ternarybob/conspectus/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// SyncRunStore implements the SyncRunStore interface for Badger
type SyncRunStore struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewSyncRunStore creates a new SyncRunStore instance
func NewSyncRunStore(db *BadgerDB, logger arbor.ILogger) interfaces.SyncRunStore {
	return &SyncRunStore{
		db:     db,
		logger: logger,
	}
}

func (s *SyncRunStore) SaveRun(run *models.SyncRun) error {
	if run.ID == "" {
		return fmt.Errorf("sync run ID is required")
	}
	if err := s.db.Store().Upsert(run.ID, run); err != nil {
		return fmt.Errorf("failed to save sync run: %w", err)
	}
	return nil
}

// RecentRuns returns the latest runs, newest first.
func (s *SyncRunStore) RecentRuns(limit int) ([]models.SyncRun, error) {
	query := badgerhold.Where("ID").Ne("").SortBy("StartedAt").Reverse()
	if limit > 0 {
		query = query.Limit(limit)
	}

	var runs []models.SyncRun
	if err := s.db.Store().Find(&runs, query); err != nil {
		return nil, fmt.Errorf("failed to list sync runs: %w", err)
	}
	return runs, nil
}
