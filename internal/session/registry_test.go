package session

import (
	"errors"
	"testing"
	"time"

	"github.com/ad/script-agent-bot/internal/domain"
	"github.com/ad/script-agent-bot/internal/logger"
)

func newTestRegistry() *Registry {
	return NewRegistry(logger.New(logger.ERROR))
}

func TestCreateGetDestroy(t *testing.T) {
	r := newTestRegistry()

	if _, err := r.Get(1); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("Get on empty registry = %v, want ErrSessionNotFound", err)
	}

	sess := r.Create(1, 100, KindTemplate)
	if sess.UserID != 1 || sess.ChatID != 100 || sess.Kind != KindTemplate {
		t.Fatalf("created session = %+v", sess)
	}

	got, err := r.Get(1)
	if err != nil || got != sess {
		t.Fatalf("Get = (%p, %v), want the created session", got, err)
	}

	r.Destroy(1)
	if _, err := r.Get(1); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Get after Destroy = %v, want ErrSessionNotFound", err)
	}

	// Destroying again is harmless.
	r.Destroy(1)
}

func TestCreateReplacesActiveSession(t *testing.T) {
	r := newTestRegistry()

	first := r.Create(1, 100, KindTemplate)
	first.GameName = "old"

	second := r.Create(1, 100, KindUpload)
	got, err := r.Get(1)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != second || got.Kind != KindUpload || got.GameName != "" {
		t.Errorf("session after replace = %+v", got)
	}
}

func TestUpdate(t *testing.T) {
	r := newTestRegistry()
	r.Create(1, 100, KindRequest)

	err := r.Update(1, func(sess *Session) {
		sess.State = "awaiting_script"
		sess.AwaitingInput = true
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	sess, _ := r.Get(1)
	if sess.State != "awaiting_script" || !sess.AwaitingInput {
		t.Errorf("session = %+v", sess)
	}

	if err := r.Update(2, func(*Session) {}); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Update on missing session = %v", err)
	}
}

func TestStepTimerFiresOnce(t *testing.T) {
	r := newTestRegistry()
	sess := r.Create(1, 100, KindUpload)
	sess.State = "awaiting_game"

	fired := make(chan Kind, 1)
	r.ArmStepTimer(1, 10*time.Millisecond, func(s *Session) {
		fired <- s.Kind
	})

	select {
	case kind := <-fired:
		if kind != KindUpload {
			t.Errorf("expired session kind = %v", kind)
		}
	case <-time.After(time.Second):
		t.Fatal("step timer did not fire")
	}

	// Expiry destroyed the session.
	if _, err := r.Get(1); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("session survived step timeout: %v", err)
	}
}

func TestStepTimerCancelledByAdvance(t *testing.T) {
	r := newTestRegistry()
	sess := r.Create(1, 100, KindTemplate)
	sess.State = "step_one"

	fired := make(chan struct{}, 1)
	r.ArmStepTimer(1, 20*time.Millisecond, func(*Session) {
		fired <- struct{}{}
	})

	// Advancing the state before expiry makes a late fire a no-op even
	// if Stop loses the race.
	_ = r.Update(1, func(sess *Session) { sess.State = "step_two" })
	r.DisarmStepTimer(1)

	select {
	case <-fired:
		t.Fatal("timer fired after the step advanced")
	case <-time.After(60 * time.Millisecond):
	}

	if _, err := r.Get(1); err != nil {
		t.Errorf("session gone after cancelled timer: %v", err)
	}
}

func TestCleanupStale(t *testing.T) {
	r := newTestRegistry()
	r.Create(1, 100, KindTemplate)
	r.Create(2, 100, KindUpload)

	// Backdate one session past the idle TTL.
	_ = r.Update(1, func(*Session) {})
	r.mu.Lock()
	r.sessions[1].LastSeen = time.Now().Add(-domain.SessionIdleTTL - time.Minute)
	r.mu.Unlock()

	if removed := r.CleanupStale(time.Now()); removed != 1 {
		t.Errorf("CleanupStale removed %d, want 1", removed)
	}
	if _, err := r.Get(1); !errors.Is(err, ErrSessionNotFound) {
		t.Error("stale session survived cleanup")
	}
	if _, err := r.Get(2); err != nil {
		t.Errorf("fresh session removed: %v", err)
	}
	if r.Len() != 1 {
		t.Errorf("Len = %d, want 1", r.Len())
	}
}
