package storage

import (
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ad/script-agent-bot/internal/domain"
)

// Document is the full data.json payload. Components read and write
// disjoint subsets of it, so unknown top-level keys are captured and
// written back untouched.
type Document struct {
	Users          map[string]*domain.UserRecord
	RevokedKeys    []domain.RevokedKeyRecord
	Config         domain.LoaderConfig
	VerifySiteData map[string]json.RawMessage

	extra map[string]json.RawMessage
}

// NewDocument returns the default empty document.
func NewDocument() *Document {
	return &Document{
		Users:          make(map[string]*domain.UserRecord),
		RevokedKeys:    []domain.RevokedKeyRecord{},
		Config:         domain.LoaderConfig{Version: "1.0.0", Status: "detected"},
		VerifySiteData: make(map[string]json.RawMessage),
	}
}

// User returns the record for id, creating it lazily.
func (d *Document) User(id string) *domain.UserRecord {
	if d.Users == nil {
		d.Users = make(map[string]*domain.UserRecord)
	}
	rec, ok := d.Users[id]
	if !ok {
		rec = &domain.UserRecord{}
		d.Users[id] = rec
	}
	return rec
}

func (d *Document) UnmarshalJSON(data []byte) error {
	raw := make(map[string]json.RawMessage)
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*d = *NewDocument()
	for key, val := range raw {
		switch key {
		case "users":
			if err := json.Unmarshal(val, &d.Users); err != nil {
				return err
			}
		case "revoked_keys":
			if err := json.Unmarshal(val, &d.RevokedKeys); err != nil {
				return err
			}
		case "config":
			if err := json.Unmarshal(val, &d.Config); err != nil {
				return err
			}
		case "verify_site_data":
			if err := json.Unmarshal(val, &d.VerifySiteData); err != nil {
				return err
			}
		default:
			if d.extra == nil {
				d.extra = make(map[string]json.RawMessage)
			}
			d.extra[key] = val
		}
	}
	return nil
}

func (d *Document) MarshalJSON() ([]byte, error) {
	raw := make(map[string]json.RawMessage, len(d.extra)+4)
	for key, val := range d.extra {
		raw[key] = val
	}

	for key, v := range map[string]interface{}{
		"users":            d.Users,
		"revoked_keys":     d.RevokedKeys,
		"config":           d.Config,
		"verify_site_data": d.VerifySiteData,
	} {
		enc, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		raw[key] = enc
	}
	return json.Marshal(raw)
}

// RecordStore is the typed access layer over the data document.
type RecordStore struct {
	mu     sync.Mutex
	store  DocumentStore
	logger domain.Logger
}

// NewRecordStore creates a record store over the given backend.
func NewRecordStore(store DocumentStore, log domain.Logger) *RecordStore {
	return &RecordStore{store: store, logger: log}
}

// load reads and decodes the document. A missing, empty or corrupted
// document is reset to defaults instead of failing: availability over
// durability, as the original deployment chose.
func (s *RecordStore) load() (*Document, error) {
	data, err := s.store.Load()
	if err != nil {
		return nil, err
	}

	if len(data) == 0 || strings.TrimSpace(string(data)) == "" {
		doc := NewDocument()
		if err := s.save(doc); err != nil {
			return nil, err
		}
		return doc, nil
	}

	doc := &Document{}
	if err := json.Unmarshal(data, doc); err != nil {
		s.logger.Warn("data document corrupted, resetting to defaults", "error", err)
		doc = NewDocument()
		if err := s.save(doc); err != nil {
			return nil, err
		}
	}
	return doc, nil
}

func (s *RecordStore) save(doc *Document) error {
	data, err := json.MarshalIndent(doc, "", "    ")
	if err != nil {
		return err
	}
	return s.store.Save(data)
}

// Mutate runs fn against the document and persists the result when fn
// succeeds. The whole document is rewritten.
func (s *RecordStore) Mutate(fn func(doc *Document) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return err
	}
	if err := fn(doc); err != nil {
		return err
	}
	return s.save(doc)
}

// View runs fn against a freshly loaded document without persisting.
func (s *RecordStore) View(fn func(doc *Document)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return err
	}
	fn(doc)
	return nil
}

// IssueKey generates and stores a fresh lifetime key for the user.
func (s *RecordStore) IssueKey(userID, username string) (string, error) {
	key := domain.GenerateKey()
	err := s.Mutate(func(doc *Document) error {
		rec := doc.User(userID)
		rec.Key = key
		rec.Username = username
		return nil
	})
	if err != nil {
		return "", err
	}
	return key, nil
}

// FindKeyHolder locates a user by username who currently holds a key.
func (s *RecordStore) FindKeyHolder(username string) (userID, key string, err error) {
	err = s.View(func(doc *Document) {
		for id, rec := range doc.Users {
			if rec.Username == username && rec.Key != "" {
				userID, key = id, rec.Key
				return
			}
		}
	})
	if err != nil {
		return "", "", err
	}
	if userID == "" {
		return "", "", domain.ErrUserNotFound
	}
	return userID, key, nil
}

// RevokeKey clears the user's key and appends exactly one revocation
// record. Revoking a user without a key reports ErrKeyAlreadyRevoked.
func (s *RecordStore) RevokeKey(userID, admin string) (string, error) {
	var revoked string
	err := s.Mutate(func(doc *Document) error {
		rec, ok := doc.Users[userID]
		if !ok || rec.Key == "" {
			return domain.ErrKeyAlreadyRevoked
		}
		revoked = rec.Key
		rec.Key = ""
		doc.RevokedKeys = append(doc.RevokedKeys, domain.RevokedKeyRecord{
			User:  rec.Username,
			Key:   revoked,
			Admin: admin,
			Time:  time.Now().UTC().Format(time.RFC3339),
		})
		return nil
	})
	if err != nil {
		return "", err
	}
	return revoked, nil
}

// AddWarning increments the user's warning counter and returns the new
// count.
func (s *RecordStore) AddWarning(userID string) (int, error) {
	var count int
	err := s.Mutate(func(doc *Document) error {
		rec := doc.User(userID)
		rec.Warnings++
		count = rec.Warnings
		return nil
	})
	return count, err
}

// SaveTemplate overwrites the user's template slot for game and marks
// it as the last touched save.
func (s *RecordStore) SaveTemplate(userID, game string, scripts []domain.ScriptEntry) error {
	return s.Mutate(func(doc *Document) error {
		rec := doc.User(userID)
		if rec.SavedTemplates == nil {
			rec.SavedTemplates = make(map[string][]domain.ScriptEntry)
		}
		rec.SavedTemplates[game] = scripts
		rec.LastSaveGame = game
		return nil
	})
}

// DeleteTemplate removes one saved slot, clearing the last-save pointer
// when it referenced the deleted slot.
func (s *RecordStore) DeleteTemplate(userID, game string) error {
	return s.Mutate(func(doc *Document) error {
		rec, ok := doc.Users[userID]
		if !ok || rec.SavedTemplates == nil {
			return domain.ErrNoSavedTemplate
		}
		if _, ok := rec.SavedTemplates[game]; !ok {
			return domain.ErrNoSavedTemplate
		}
		delete(rec.SavedTemplates, game)
		if rec.LastSaveGame == game {
			rec.LastSaveGame = ""
		}
		return nil
	})
}

// TouchLastSave records the slot the user most recently viewed.
func (s *RecordStore) TouchLastSave(userID, game string) error {
	return s.Mutate(func(doc *Document) error {
		doc.User(userID).LastSaveGame = game
		return nil
	})
}

// Templates returns the user's saved slots and last-save pointer.
func (s *RecordStore) Templates(userID string) (map[string][]domain.ScriptEntry, string, error) {
	var (
		saved    map[string][]domain.ScriptEntry
		lastSave string
	)
	err := s.View(func(doc *Document) {
		if rec, ok := doc.Users[userID]; ok {
			saved = rec.SavedTemplates
			lastSave = rec.LastSaveGame
		}
	})
	return saved, lastSave, err
}

// TemplateGames lists a user's saved game names in stable order.
func TemplateGames(saved map[string][]domain.ScriptEntry) []string {
	games := make([]string, 0, len(saved))
	for game := range saved {
		games = append(games, game)
	}
	sort.Strings(games)
	return games
}

// MarkVerified records a successful identity reconciliation.
func (s *RecordStore) MarkVerified(userID, username, roleReward string, at time.Time) error {
	return s.Mutate(func(doc *Document) error {
		rec := doc.User(userID)
		rec.Verified = true
		rec.Username = username
		rec.RoleReward = roleReward
		rec.VerifiedAt = at.UTC().Format(time.RFC3339)
		return nil
	})
}

// UploadEligible reports whether the user may submit uploads: verified
// and currently holding the Uploader role.
func (s *RecordStore) UploadEligible(userID string) (bool, error) {
	eligible := false
	err := s.View(func(doc *Document) {
		rec, ok := doc.Users[userID]
		if !ok || !rec.Verified {
			return
		}
		for _, role := range strings.Split(rec.RoleReward, ",") {
			if strings.TrimSpace(role) == domain.RoleUploader {
				eligible = true
				return
			}
		}
	})
	return eligible, err
}

// LoaderConfig returns the config block.
func (s *RecordStore) LoaderConfig() (domain.LoaderConfig, error) {
	var cfg domain.LoaderConfig
	err := s.View(func(doc *Document) { cfg = doc.Config })
	return cfg, err
}

// SetStatus updates the loader status string reported by /version.
func (s *RecordStore) SetStatus(status string) error {
	return s.Mutate(func(doc *Document) error {
		doc.Config.Status = status
		return nil
	})
}
