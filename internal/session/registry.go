package session

import (
	"errors"
	"sync"
	"time"

	"github.com/ad/script-agent-bot/internal/domain"
)

var (
	// ErrSessionNotFound is returned when a user has no active session
	ErrSessionNotFound = errors.New("session not found")
)

// Kind identifies which wizard owns a session.
type Kind string

const (
	KindTemplate Kind = "template"
	KindUpload   Kind = "upload"
	KindRequest  Kind = "request"
	KindReview   Kind = "review"
	KindTicket   Kind = "ticket"
)

// Session is one in-flight wizard for one user. All fields are guarded
// by the registry lock; handlers run one update at a time per user.
type Session struct {
	UserID   int64
	ChatID   int64
	Kind     Kind
	State    string
	LastSeen time.Time

	// Wizard working set. Scripts is the table being edited, Index the
	// entry the editor currently points at. Multi marks a template
	// session promoted to the multi-entry editor; promotion is one-way.
	GameName string
	GameID   string
	Scripts  []domain.ScriptEntry
	Index    int
	Field    string
	Multi    bool

	// AwaitingInput marks that the next plain text message from this
	// user belongs to the wizard, not the command dispatcher.
	AwaitingInput bool

	// MenuMessageID is the wizard's editable menu message, rewritten in
	// place as the user moves through steps. PromptMessageID is the
	// last text prompt, deleted once answered.
	MenuMessageID   int
	PromptMessageID int

	// ReviewMessageID and ReviewTargetID carry the admin review flow:
	// the review card being acted on and the uploader it concerns.
	ReviewMessageID int
	ReviewTargetID  int64

	timer *time.Timer
}

// Registry holds active wizard sessions in memory, one per user.
// Sessions are transient; a restart drops them all.
type Registry struct {
	mu       sync.Mutex
	sessions map[int64]*Session
	logger   domain.Logger
}

// NewRegistry creates an empty session registry.
func NewRegistry(log domain.Logger) *Registry {
	return &Registry{
		sessions: make(map[int64]*Session),
		logger:   log,
	}
}

// Get returns the user's active session.
func (r *Registry) Get(userID int64) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[userID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// Create starts a fresh session for the user. Any existing session is
// dropped first: starting a new wizard always abandons the old one.
func (r *Registry) Create(userID, chatID int64, kind Kind) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.sessions[userID]; ok {
		old.stopTimer()
		r.logger.Debug("replacing active session", "user_id", userID, "old_kind", old.Kind, "new_kind", kind)
	}

	sess := &Session{
		UserID:   userID,
		ChatID:   chatID,
		Kind:     kind,
		LastSeen: time.Now(),
	}
	r.sessions[userID] = sess
	return sess
}

// Destroy ends the user's session, cancelling any pending step timer.
// Destroying an absent session is a no-op.
func (r *Registry) Destroy(userID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[userID]
	if !ok {
		return
	}
	sess.stopTimer()
	delete(r.sessions, userID)
	r.logger.Debug("session destroyed", "user_id", userID, "kind", sess.Kind)
}

// Touch refreshes the session's idle clock.
func (r *Registry) Touch(userID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if sess, ok := r.sessions[userID]; ok {
		sess.LastSeen = time.Now()
	}
}

// Update runs fn with the session held under the registry lock and
// refreshes the idle clock. It reports ErrSessionNotFound when the
// session is gone, which a late callback or timer treats as "already
// finished".
func (r *Registry) Update(userID int64, fn func(sess *Session)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[userID]
	if !ok {
		return ErrSessionNotFound
	}
	fn(sess)
	sess.LastSeen = time.Now()
	return nil
}

// ArmStepTimer schedules onExpire after d, replacing any previous step
// timer. onExpire fires only if the session still exists and has not
// advanced past the state it was armed in.
func (r *Registry) ArmStepTimer(userID int64, d time.Duration, onExpire func(sess *Session)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[userID]
	if !ok {
		return
	}
	sess.stopTimer()

	armedState := sess.State
	sess.timer = time.AfterFunc(d, func() {
		r.mu.Lock()
		current, ok := r.sessions[userID]
		if !ok || current.State != armedState {
			r.mu.Unlock()
			return
		}
		delete(r.sessions, userID)
		r.mu.Unlock()

		r.logger.Info("wizard step timed out", "user_id", userID, "kind", current.Kind, "state", armedState)
		onExpire(current)
	})
}

// DisarmStepTimer cancels the pending step timer, if any.
func (r *Registry) DisarmStepTimer(userID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if sess, ok := r.sessions[userID]; ok {
		sess.stopTimer()
	}
}

// CleanupStale drops sessions idle longer than the session TTL and
// returns how many were removed.
func (r *Registry) CleanupStale(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for userID, sess := range r.sessions {
		if now.Sub(sess.LastSeen) > domain.SessionIdleTTL {
			sess.stopTimer()
			delete(r.sessions, userID)
			removed++
		}
	}
	if removed > 0 {
		r.logger.Info("cleaned up stale sessions", "count", removed)
	}
	return removed
}

// Len returns the number of active sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

func (s *Session) stopTimer() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}
