package domain

import (
	"encoding/json"
	"errors"
	"time"
)

// Validation and lifecycle errors
var (
	ErrNoRequest         = errors.New("no verification request found")
	ErrUsernameMismatch  = errors.New("username mismatch")
	ErrKeyAlreadyRevoked = errors.New("key already revoked")
	ErrNoSavedTemplate   = errors.New("no saved template")
	ErrUserNotFound      = errors.New("user not found")
)

// Policy constants carried over from the original deployment.
const (
	// WarningLimit is the number of discard warnings that costs an
	// uploader the Uploader role.
	WarningLimit = 5

	// PendingTTL bounds the lifetime of a website verification request.
	PendingTTL = 10 * time.Minute

	// SweepInterval is how often stale pending requests and idle wizard
	// sessions are purged.
	SweepInterval = 5 * time.Minute

	// SessionIdleTTL is how long an abandoned wizard session survives.
	SessionIdleTTL = 30 * time.Minute

	// TextStepTimeout and ButtonStepTimeout bound the wait at each
	// wizard step.
	TextStepTimeout   = 60 * time.Second
	ButtonStepTimeout = 30 * time.Second
)

// Role names granted on successful verification.
const (
	RoleVerified = "Verified"
	RoleUploader = "Uploader"
)

// ScriptEntry is one row of a script table. Load is stored in canonical
// single-quoted form (see SanitizeLoadstring).
type ScriptEntry struct {
	Name        string `json:"Name"`
	Icon        string `json:"Icon"`
	Description string `json:"Description"`
	Load        string `json:"Load"`
}

// DefaultScriptEntry returns the placeholder entry a fresh template
// wizard starts from.
func DefaultScriptEntry() ScriptEntry {
	return ScriptEntry{
		Name:        "example",
		Icon:        "http://",
		Description: "desc",
		Load:        "loadstring()",
	}
}

// UserRecord is the per-user slice of the data document. Extra captures
// fields this build does not know about so the document round-trips
// exactly.
type UserRecord struct {
	Key            string                   `json:"key,omitempty"`
	Username       string                   `json:"username,omitempty"`
	Verified       bool                     `json:"verified,omitempty"`
	RoleReward     string                   `json:"role_reward,omitempty"`
	VerifiedAt     string                   `json:"timestamp,omitempty"`
	Warnings       int                      `json:"warnings,omitempty"`
	SavedTemplates map[string][]ScriptEntry `json:"saved_template,omitempty"`
	LastSaveGame   string                   `json:"last_save_game,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

// userRecordAlias strips the custom codec off UserRecord so the known
// fields decode with plain struct tags.
type userRecordAlias UserRecord

var userRecordKnownKeys = []string{
	"key", "username", "verified", "role_reward",
	"timestamp", "warnings", "saved_template", "last_save_game",
}

func (r *UserRecord) UnmarshalJSON(data []byte) error {
	var known userRecordAlias
	if err := json.Unmarshal(data, &known); err != nil {
		return err
	}

	raw := make(map[string]json.RawMessage)
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for _, key := range userRecordKnownKeys {
		delete(raw, key)
	}
	if len(raw) > 0 {
		known.Extra = raw
	}

	*r = UserRecord(known)
	return nil
}

func (r UserRecord) MarshalJSON() ([]byte, error) {
	enc, err := json.Marshal(userRecordAlias(r))
	if err != nil {
		return nil, err
	}
	if len(r.Extra) == 0 {
		return enc, nil
	}

	raw := make(map[string]json.RawMessage, len(r.Extra)+len(userRecordKnownKeys))
	if err := json.Unmarshal(enc, &raw); err != nil {
		return nil, err
	}
	for key, val := range r.Extra {
		raw[key] = val
	}
	return json.Marshal(raw)
}

// RevokedKeyRecord is one line of the append-only revocation log.
type RevokedKeyRecord struct {
	User  string `json:"user"`
	Key   string `json:"key"`
	Admin string `json:"admin"`
	Time  string `json:"time"`
}

// LoaderConfig is the config block of the data document.
type LoaderConfig struct {
	Version string `json:"version"`
	Status  string `json:"status"`
}

// PendingVerification is one website-submitted handshake awaiting the
// chat-side Verify click.
type PendingVerification struct {
	Username  string `json:"username"`
	Timestamp string `json:"timestamp"`
}

// SubmittedAt parses the ISO-8601 timestamp; the zero time is returned
// for unparseable values so they count as stale.
func (p PendingVerification) SubmittedAt() time.Time {
	t, err := time.Parse(time.RFC3339, p.Timestamp)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Stale reports whether the request is older than PendingTTL at now.
func (p PendingVerification) Stale(now time.Time) bool {
	return now.Sub(p.SubmittedAt()) > PendingTTL
}

// Logger is the logging interface used across packages.
type Logger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
}
