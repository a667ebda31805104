package badgerdb

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/conspectus/internal/common"
	"github.com/ternarybob/conspectus/internal/interfaces"
	"github.com/ternarybob/conspectus/internal/models"
)

func newTestDB(t *testing.T) *BadgerDB {
	t.Helper()
	db, err := NewBadgerDB(arbor.NewLogger(), &common.BadgerConfig{
		Path: filepath.Join(t.TempDir(), "data"),
	})
	if err != nil {
		t.Fatalf("NewBadgerDB() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSessionRoundTrip(t *testing.T) {
	db := newTestDB(t)
	store := NewSessionStore(db, arbor.NewLogger())

	session := &models.ChatSession{
		ID:        "s1",
		ProgramID: "p1",
		Turns: []models.ChatTurn{
			{Role: "user", Content: "How is Aurora Hub tracking?"},
		},
	}
	if err := store.SaveSession(session); err != nil {
		t.Fatalf("SaveSession() error = %v", err)
	}
	if session.CreatedAt.IsZero() {
		t.Fatal("SaveSession() must stamp CreatedAt")
	}
	createdAt := session.CreatedAt

	got, err := store.GetSession("s1")
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if got.ProgramID != "p1" || len(got.Turns) != 1 {
		t.Errorf("GetSession() = %+v", got)
	}

	got.Turns = append(got.Turns, models.ChatTurn{Role: "assistant", Content: "On track at 60%."})
	if err := store.SaveSession(got); err != nil {
		t.Fatalf("SaveSession() second save error = %v", err)
	}

	again, err := store.GetSession("s1")
	if err != nil {
		t.Fatalf("GetSession() after update error = %v", err)
	}
	if len(again.Turns) != 2 {
		t.Errorf("turns = %d, want 2", len(again.Turns))
	}
	if !again.CreatedAt.Equal(createdAt) {
		t.Errorf("CreatedAt changed on update: %v != %v", again.CreatedAt, createdAt)
	}
	if again.UpdatedAt.Before(again.CreatedAt) {
		t.Errorf("UpdatedAt %v before CreatedAt %v", again.UpdatedAt, again.CreatedAt)
	}
}

func TestSaveSession_RequiresID(t *testing.T) {
	db := newTestDB(t)
	store := NewSessionStore(db, arbor.NewLogger())

	if err := store.SaveSession(&models.ChatSession{}); err == nil {
		t.Error("SaveSession() without an ID must fail")
	}
}

func TestGetSession_NotFound(t *testing.T) {
	db := newTestDB(t)
	store := NewSessionStore(db, arbor.NewLogger())

	if _, err := store.GetSession("missing"); !errors.Is(err, interfaces.ErrNotFound) {
		t.Errorf("GetSession() error = %v, want ErrNotFound", err)
	}
}

func TestListSessions_NewestFirst(t *testing.T) {
	db := newTestDB(t)
	store := NewSessionStore(db, arbor.NewLogger())

	for _, id := range []string{"s1", "s2", "s3"} {
		if err := store.SaveSession(&models.ChatSession{ID: id}); err != nil {
			t.Fatalf("SaveSession(%s) error = %v", id, err)
		}
	}
	// Touch s1 so it becomes the most recently updated.
	s1, err := store.GetSession("s1")
	if err != nil {
		t.Fatalf("GetSession(s1) error = %v", err)
	}
	if err := store.SaveSession(s1); err != nil {
		t.Fatalf("SaveSession(s1) touch error = %v", err)
	}

	sessions, err := store.ListSessions(2)
	if err != nil {
		t.Fatalf("ListSessions() error = %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("ListSessions(2) returned %d sessions", len(sessions))
	}
	if sessions[0].ID != "s1" {
		t.Errorf("sessions[0].ID = %q, want s1 (most recently updated)", sessions[0].ID)
	}

	all, err := store.ListSessions(0)
	if err != nil {
		t.Fatalf("ListSessions(0) error = %v", err)
	}
	if len(all) != 3 {
		t.Errorf("ListSessions(0) returned %d sessions, want all 3", len(all))
	}
}

func TestDeleteSession(t *testing.T) {
	db := newTestDB(t)
	store := NewSessionStore(db, arbor.NewLogger())

	if err := store.SaveSession(&models.ChatSession{ID: "s1"}); err != nil {
		t.Fatalf("SaveSession() error = %v", err)
	}
	if err := store.DeleteSession("s1"); err != nil {
		t.Fatalf("DeleteSession() error = %v", err)
	}
	if _, err := store.GetSession("s1"); !errors.Is(err, interfaces.ErrNotFound) {
		t.Errorf("GetSession() after delete error = %v, want ErrNotFound", err)
	}
	if err := store.DeleteSession("s1"); !errors.Is(err, interfaces.ErrNotFound) {
		t.Errorf("DeleteSession() twice error = %v, want ErrNotFound", err)
	}
}

func TestSyncRunStore_RecentRuns(t *testing.T) {
	db := newTestDB(t)
	store := NewSyncRunStore(db, arbor.NewLogger())

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"run-1", "run-2", "run-3"} {
		run := &models.SyncRun{
			ID:        id,
			Source:    models.SyncSourceLinear,
			Status:    models.SyncRunStatusCompleted,
			StartedAt: base.Add(time.Duration(i) * time.Hour),
		}
		if err := store.SaveRun(run); err != nil {
			t.Fatalf("SaveRun(%s) error = %v", id, err)
		}
	}

	runs, err := store.RecentRuns(2)
	if err != nil {
		t.Fatalf("RecentRuns() error = %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("RecentRuns(2) returned %d runs", len(runs))
	}
	if runs[0].ID != "run-3" || runs[1].ID != "run-2" {
		t.Errorf("RecentRuns(2) order = %s, %s; want run-3, run-2", runs[0].ID, runs[1].ID)
	}

	all, err := store.RecentRuns(0)
	if err != nil {
		t.Fatalf("RecentRuns(0) error = %v", err)
	}
	if len(all) != 3 {
		t.Errorf("RecentRuns(0) returned %d runs, want all 3", len(all))
	}
}

func TestSaveRun_RequiresID(t *testing.T) {
	db := newTestDB(t)
	store := NewSyncRunStore(db, arbor.NewLogger())

	if err := store.SaveRun(&models.SyncRun{Source: models.SyncSourceLinear}); err == nil {
		t.Error("SaveRun() without an ID must fail")
	}
}

func TestResetOnStartup(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")
	logger := arbor.NewLogger()

	db, err := NewBadgerDB(logger, &common.BadgerConfig{Path: dir})
	if err != nil {
		t.Fatalf("NewBadgerDB() error = %v", err)
	}
	store := NewSessionStore(db, logger)
	if err := store.SaveSession(&models.ChatSession{ID: "s1"}); err != nil {
		t.Fatalf("SaveSession() error = %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	db2, err := NewBadgerDB(logger, &common.BadgerConfig{Path: dir, ResetOnStartup: true})
	if err != nil {
		t.Fatalf("NewBadgerDB() reopen error = %v", err)
	}
	t.Cleanup(func() { db2.Close() })

	store2 := NewSessionStore(db2, logger)
	if _, err := store2.GetSession("s1"); !errors.Is(err, interfaces.ErrNotFound) {
		t.Errorf("GetSession() after reset error = %v, want session wiped", err)
	}
}
