package store

import (
	"errors"
	"testing"
	"time"

	"github.com/i474232898/air-quality-map/internal/airquality"
	"github.com/i474232898/air-quality-map/internal/widget"
)

func newWidget() *widget.Widget {
	return widget.New(nil, airquality.StaticLocations{}, widget.DefaultConfig())
}

func TestSaveGetDelete(t *testing.T) {
	s := NewMemoryStore(0, 0)

	sess, err := s.Save(newWidget())
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if sess.ID == "" {
		t.Fatal("expected a session id")
	}

	got, err := s.Get(sess.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Widget != sess.Widget {
		t.Fatal("expected the saved widget")
	}

	if _, err := s.Delete(sess.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Get(sess.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.Delete(sess.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMaxSessions(t *testing.T) {
	s := NewMemoryStore(1, 0)
	if _, err := s.Save(newWidget()); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := s.Save(newWidget()); !errors.Is(err, ErrFull) {
		t.Fatalf("expected ErrFull, got %v", err)
	}
}

func TestExpiredUsesLastSeen(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	s := NewMemoryStore(0, time.Minute)
	s.now = func() time.Time { return now }

	stale, _ := s.Save(newWidget())
	fresh, _ := s.Save(newWidget())

	now = now.Add(45 * time.Second)
	if _, err := s.Get(fresh.ID); err != nil {
		t.Fatalf("get: %v", err)
	}

	now = now.Add(30 * time.Second)
	expired := s.Expired()
	if len(expired) != 1 || expired[0].ID != stale.ID {
		t.Fatalf("expected only the stale session to expire, got %+v", expired)
	}
	if s.Len() != 1 {
		t.Fatalf("expected 1 live session, got %d", s.Len())
	}
}

func TestDrain(t *testing.T) {
	s := NewMemoryStore(0, time.Hour)
	s.Save(newWidget())
	s.Save(newWidget())

	if got := len(s.Drain()); got != 2 {
		t.Fatalf("expected 2 drained sessions, got %d", got)
	}
	if s.Len() != 0 {
		t.Fatalf("expected an empty store, got %d", s.Len())
	}
}
