package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/alfredjeanlab/chattobot/internal/model"
)

// newMockDB creates a sqlmock database with automatic cleanup and expectation checking.
func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unfulfilled expectations: %v", err)
		}
		db.Close()
	})
	return db, mock
}

var cursorColumns = []string{"space_id", "last_event_id", "last_timestamp"}

func TestLoad(t *testing.T) {
	db, mock := newMockDB(t)
	ts := time.Date(2026, 1, 15, 10, 0, 0, 5000, time.UTC)
	mock.ExpectQuery("SELECT space_id, last_event_id, last_timestamp FROM replay_cursors").
		WillReturnRows(sqlmock.NewRows(cursorColumns).
			AddRow("sp-1", "ev-9", ts).
			AddRow("DM", "ev-2", ts.Add(-time.Hour)))

	got, err := NewWithDB(db).Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Load returned %d cursors, want 2", len(got))
	}
	if c := got["sp-1"]; c.LastEventID != "ev-9" || !c.LastTimestamp.Equal(ts) {
		t.Errorf("sp-1 = %+v", c)
	}
}

func TestLoad_QueryError(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery("SELECT .+ FROM replay_cursors").WillReturnError(errors.New("connection refused"))

	if _, err := NewWithDB(db).Load(context.Background()); err == nil {
		t.Error("Load should fail when the query fails")
	}
}

func TestSave(t *testing.T) {
	db, mock := newMockDB(t)
	ts := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM replay_cursors").WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec("INSERT INTO replay_cursors").WithArgs("a", "ev-1", ts).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO replay_cursors").WithArgs("b", "ev-2", ts).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := NewWithDB(db).Save(context.Background(), model.Cursors{
		"b": {LastEventID: "ev-2", LastTimestamp: ts},
		"a": {LastEventID: "ev-1", LastTimestamp: ts},
	})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
}

func TestSave_RollsBackOnError(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM replay_cursors").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO replay_cursors").WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := NewWithDB(db).Save(context.Background(), model.Cursors{"a": {LastEventID: "ev-1"}})
	if err == nil {
		t.Fatal("Save should fail when an insert fails")
	}
}
