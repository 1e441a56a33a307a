package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ad/script-agent-bot/internal/domain"
	"github.com/ad/script-agent-bot/internal/logger"

	_ "modernc.org/sqlite"
)

func newTestRecordStore(t *testing.T) *RecordStore {
	t.Helper()
	fs, err := NewFileDocumentStore(filepath.Join(t.TempDir(), "data.json"))
	if err != nil {
		t.Fatalf("NewFileDocumentStore: %v", err)
	}
	return NewRecordStore(fs, logger.New(logger.ERROR))
}

func TestIssueAndRevokeKey(t *testing.T) {
	s := newTestRecordStore(t)

	key, err := s.IssueKey("42", "alice")
	if err != nil {
		t.Fatalf("IssueKey: %v", err)
	}
	if !strings.HasSuffix(key, domain.KeySuffix) {
		t.Fatalf("issued key %q has wrong format", key)
	}

	id, foundKey, err := s.FindKeyHolder("alice")
	if err != nil {
		t.Fatalf("FindKeyHolder: %v", err)
	}
	if id != "42" || foundKey != key {
		t.Fatalf("FindKeyHolder = (%q, %q)", id, foundKey)
	}

	revoked, err := s.RevokeKey("42", "admin")
	if err != nil {
		t.Fatalf("RevokeKey: %v", err)
	}
	if revoked != key {
		t.Errorf("revoked %q, want %q", revoked, key)
	}

	// Exactly one revocation record, key cleared.
	_ = s.View(func(doc *Document) {
		if len(doc.RevokedKeys) != 1 {
			t.Errorf("revoked_keys length = %d, want 1", len(doc.RevokedKeys))
		} else {
			rk := doc.RevokedKeys[0]
			if rk.Key != key || rk.User != "alice" || rk.Admin != "admin" {
				t.Errorf("revocation record = %+v", rk)
			}
		}
		if doc.Users["42"].Key != "" {
			t.Error("user key not cleared")
		}
	})

	// Second revoke is a no-op reporting already revoked.
	if _, err := s.RevokeKey("42", "admin"); !errors.Is(err, domain.ErrKeyAlreadyRevoked) {
		t.Errorf("second revoke error = %v, want ErrKeyAlreadyRevoked", err)
	}
	_ = s.View(func(doc *Document) {
		if len(doc.RevokedKeys) != 1 {
			t.Errorf("second revoke appended a record, length = %d", len(doc.RevokedKeys))
		}
	})
}

func TestAddWarning(t *testing.T) {
	s := newTestRecordStore(t)

	for want := 1; want <= 6; want++ {
		got, err := s.AddWarning("7")
		if err != nil {
			t.Fatalf("AddWarning: %v", err)
		}
		if got != want {
			t.Fatalf("AddWarning = %d, want %d", got, want)
		}
	}
}

func TestTemplatesLifecycle(t *testing.T) {
	s := newTestRecordStore(t)
	scripts := []domain.ScriptEntry{{Name: "n", Icon: "i", Description: "d", Load: "'l'"}}

	if err := s.SaveTemplate("1", "GameA", scripts); err != nil {
		t.Fatalf("SaveTemplate: %v", err)
	}
	if err := s.SaveTemplate("1", "GameB", scripts); err != nil {
		t.Fatalf("SaveTemplate: %v", err)
	}

	saved, last, err := s.Templates("1")
	if err != nil {
		t.Fatalf("Templates: %v", err)
	}
	if last != "GameB" {
		t.Errorf("last save = %q, want GameB", last)
	}
	if games := TemplateGames(saved); len(games) != 2 || games[0] != "GameA" || games[1] != "GameB" {
		t.Errorf("TemplateGames = %v", games)
	}

	// Overwrite, never merge.
	replacement := []domain.ScriptEntry{{Name: "x"}, {Name: "y"}}
	if err := s.SaveTemplate("1", "GameA", replacement); err != nil {
		t.Fatalf("SaveTemplate overwrite: %v", err)
	}
	saved, last, _ = s.Templates("1")
	if len(saved["GameA"]) != 2 {
		t.Errorf("GameA slot = %v, want the replacement", saved["GameA"])
	}
	if last != "GameA" {
		t.Errorf("last save = %q, want GameA after overwrite", last)
	}

	// Deleting the last-save slot clears the pointer.
	if err := s.DeleteTemplate("1", "GameA"); err != nil {
		t.Fatalf("DeleteTemplate: %v", err)
	}
	_, last, _ = s.Templates("1")
	if last != "" {
		t.Errorf("last save = %q, want cleared", last)
	}

	if err := s.DeleteTemplate("1", "Missing"); !errors.Is(err, domain.ErrNoSavedTemplate) {
		t.Errorf("DeleteTemplate missing slot error = %v", err)
	}
}

func TestDocumentRoundTripsUnknownFields(t *testing.T) {
	raw := `{
		"users": {"1": {"username": "bob", "warnings": 2, "custom_flag": true}},
		"revoked_keys": [],
		"config": {"version": "2.0.0", "status": "ok"},
		"verify_site_data": {"1": {"script_pending": "x"}},
		"future_field": {"nested": [1, 2, 3]}
	}`

	doc := &Document{}
	if err := json.Unmarshal([]byte(raw), doc); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if doc.Users["1"].Username != "bob" || doc.Users["1"].Warnings != 2 {
		t.Fatalf("known fields lost: %+v", doc.Users["1"])
	}

	out, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	round := make(map[string]json.RawMessage)
	if err := json.Unmarshal(out, &round); err != nil {
		t.Fatalf("re-Unmarshal: %v", err)
	}
	if _, ok := round["future_field"]; !ok {
		t.Error("unknown top-level field dropped on round-trip")
	}
	if _, ok := round["verify_site_data"]; !ok {
		t.Error("verify_site_data dropped on round-trip")
	}

	// Unknown per-user fields survive too, even after a mutation.
	_ = doc.User("1")
	doc.User("1").Warnings = 3
	out, err = json.Marshal(doc)
	if err != nil {
		t.Fatalf("Marshal after mutation: %v", err)
	}
	if !strings.Contains(string(out), `"custom_flag":true`) {
		t.Errorf("per-user unknown field dropped on round-trip: %s", out)
	}
	if !strings.Contains(string(out), `"warnings":3`) {
		t.Errorf("mutated known field lost: %s", out)
	}
}

func TestCorruptedDocumentResets(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewFileDocumentStore(filepath.Join(dir, "data.json"))
	if err != nil {
		t.Fatalf("NewFileDocumentStore: %v", err)
	}
	if err := fs.Save([]byte("{not json")); err != nil {
		t.Fatalf("Save: %v", err)
	}

	s := NewRecordStore(fs, logger.New(logger.ERROR))
	cfg, err := s.LoaderConfig()
	if err != nil {
		t.Fatalf("LoaderConfig after corruption: %v", err)
	}
	if cfg.Version != "1.0.0" || cfg.Status != "detected" {
		t.Errorf("config after reset = %+v, want defaults", cfg)
	}
}

func TestMarkVerified(t *testing.T) {
	s := newTestRecordStore(t)
	at := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	if err := s.MarkVerified("9", "carol", "Verified, Uploader", at); err != nil {
		t.Fatalf("MarkVerified: %v", err)
	}
	_ = s.View(func(doc *Document) {
		rec := doc.Users["9"]
		if rec == nil || !rec.Verified {
			t.Fatal("user not marked verified")
		}
		if rec.RoleReward != "Verified, Uploader" || rec.Username != "carol" {
			t.Errorf("record = %+v", rec)
		}
		if rec.VerifiedAt != "2025-03-01T10:00:00Z" {
			t.Errorf("verifiedAt = %q", rec.VerifiedAt)
		}
	})
}

func TestUploadEligible(t *testing.T) {
	s := newTestRecordStore(t)
	at := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	// Unknown user.
	if ok, err := s.UploadEligible("9"); err != nil || ok {
		t.Fatalf("UploadEligible unknown = (%v, %v), want (false, nil)", ok, err)
	}

	// Verified without the uploader role.
	if err := s.MarkVerified("9", "carol", domain.RoleVerified, at); err != nil {
		t.Fatalf("MarkVerified: %v", err)
	}
	if ok, _ := s.UploadEligible("9"); ok {
		t.Error("eligible without the uploader role")
	}

	// Verified with both roles.
	reward := domain.RoleVerified + ", " + domain.RoleUploader
	if err := s.MarkVerified("9", "carol", reward, at); err != nil {
		t.Fatalf("MarkVerified: %v", err)
	}
	if ok, err := s.UploadEligible("9"); err != nil || !ok {
		t.Errorf("UploadEligible = (%v, %v), want (true, nil)", ok, err)
	}
}

func TestSQLiteDocumentBackend(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer db.Close()

	queue := NewDBQueue(db)
	defer queue.Close()

	if err := InitDocumentSchema(queue); err != nil {
		t.Fatalf("InitDocumentSchema: %v", err)
	}

	store := NewSQLiteDocumentStore(queue, "data")
	if data, err := store.Load(); err != nil || data != nil {
		t.Fatalf("Load empty = (%v, %v), want (nil, nil)", data, err)
	}

	s := NewRecordStore(store, logger.New(logger.ERROR))
	if _, err := s.IssueKey("5", "dan"); err != nil {
		t.Fatalf("IssueKey over sqlite: %v", err)
	}

	id, _, err := s.FindKeyHolder("dan")
	if err != nil || id != "5" {
		t.Fatalf("FindKeyHolder over sqlite = (%q, %v)", id, err)
	}
}
