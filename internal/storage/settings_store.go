package storage

import (
	"encoding/json"
	"sync"

	"github.com/ad/script-agent-bot/internal/domain"
)

// ChatInfo is one chat the bot has seen, kept so operator console
// indexes stay stable between `list` calls.
type ChatInfo struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
}

type settingsDoc struct {
	DisabledChats []int64    `json:"disabled_chats"`
	KnownChats    []ChatInfo `json:"known_chats"`
	StatusText    string     `json:"status_text,omitempty"`
}

// SettingsStore persists operator-facing bot settings.
type SettingsStore struct {
	mu     sync.Mutex
	store  DocumentStore
	logger domain.Logger
}

// NewSettingsStore creates a settings store.
func NewSettingsStore(store DocumentStore, log domain.Logger) *SettingsStore {
	return &SettingsStore{store: store, logger: log}
}

func (s *SettingsStore) load() (*settingsDoc, error) {
	data, err := s.store.Load()
	if err != nil {
		return nil, err
	}
	doc := &settingsDoc{DisabledChats: []int64{}}
	if len(data) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(data, doc); err != nil {
		s.logger.Warn("settings document corrupted, resetting", "error", err)
		return &settingsDoc{DisabledChats: []int64{}}, nil
	}
	return doc, nil
}

func (s *SettingsStore) save(doc *settingsDoc) error {
	data, err := json.MarshalIndent(doc, "", "    ")
	if err != nil {
		return err
	}
	return s.store.Save(data)
}

// IsDisabled reports whether the bot ignores the chat.
func (s *SettingsStore) IsDisabled(chatID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		s.logger.Error("failed to load settings", "error", err)
		return false
	}
	for _, id := range doc.DisabledChats {
		if id == chatID {
			return true
		}
	}
	return false
}

// SetDisabled enables or disables the bot for a chat. It returns false
// when the chat was already in the requested state.
func (s *SettingsStore) SetDisabled(chatID int64, disabled bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return false, err
	}

	idx := -1
	for i, id := range doc.DisabledChats {
		if id == chatID {
			idx = i
			break
		}
	}

	if disabled {
		if idx >= 0 {
			return false, nil
		}
		doc.DisabledChats = append(doc.DisabledChats, chatID)
	} else {
		if idx < 0 {
			return false, nil
		}
		doc.DisabledChats = append(doc.DisabledChats[:idx], doc.DisabledChats[idx+1:]...)
	}
	return true, s.save(doc)
}

// RememberChat records a chat the bot has seen so the console can list
// it.
func (s *SettingsStore) RememberChat(chatID int64, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return err
	}
	for i, c := range doc.KnownChats {
		if c.ID == chatID {
			if c.Title != title {
				doc.KnownChats[i].Title = title
				return s.save(doc)
			}
			return nil
		}
	}
	doc.KnownChats = append(doc.KnownChats, ChatInfo{ID: chatID, Title: title})
	return s.save(doc)
}

// ForgetChat drops a chat from the known list ("leave" in the console).
func (s *SettingsStore) ForgetChat(chatID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return err
	}
	for i, c := range doc.KnownChats {
		if c.ID == chatID {
			doc.KnownChats = append(doc.KnownChats[:i], doc.KnownChats[i+1:]...)
			return s.save(doc)
		}
	}
	return nil
}

// KnownChats returns every chat the bot has seen, in recorded order.
func (s *SettingsStore) KnownChats() ([]ChatInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	return append([]ChatInfo(nil), doc.KnownChats...), nil
}

// SetStatusText stores the operator-set presence text.
func (s *SettingsStore) SetStatusText(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return err
	}
	doc.StatusText = text
	return s.save(doc)
}

// StatusText returns the operator-set presence text.
func (s *SettingsStore) StatusText() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return "", err
	}
	return doc.StatusText, nil
}
