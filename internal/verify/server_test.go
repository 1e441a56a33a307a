package verify

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ad/script-agent-bot/internal/logger"
	"github.com/ad/script-agent-bot/internal/storage"
)

func newTestServer(t *testing.T) (*Server, *storage.PendingStore) {
	t.Helper()
	fs, err := storage.NewFileDocumentStore(filepath.Join(t.TempDir(), "pending.json"))
	if err != nil {
		t.Fatalf("NewFileDocumentStore: %v", err)
	}
	pending := storage.NewPendingStore(fs, logger.New(logger.ERROR))
	return NewServer("127.0.0.1:0", pending, logger.New(logger.ERROR)), pending
}

func postJSON(t *testing.T, s *Server, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/verify", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.srv.Handler.ServeHTTP(w, req)
	return w
}

func TestSubmitStoresPendingRequest(t *testing.T) {
	s, pending := newTestServer(t)

	w := postJSON(t, s, `{"username": "alice", "user_id": "42"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"status":"SUCCESS"`) {
		t.Errorf("body = %s", w.Body.String())
	}

	req, ok, err := pending.Get("42", time.Now())
	if err != nil || !ok {
		t.Fatalf("pending.Get = (%v, %v)", ok, err)
	}
	if req.Username != "alice" {
		t.Errorf("stored username = %q", req.Username)
	}
}

func TestSubmitOverwritesPrevious(t *testing.T) {
	s, pending := newTestServer(t)

	postJSON(t, s, `{"username": "alice", "user_id": "42"}`)
	postJSON(t, s, `{"username": "alice_new", "user_id": "42"}`)

	req, ok, _ := pending.Get("42", time.Now())
	if !ok || req.Username != "alice_new" {
		t.Errorf("pending after resubmit = (%+v, %v)", req, ok)
	}
}

func TestSubmitRejectsBadInput(t *testing.T) {
	s, _ := newTestServer(t)

	for _, body := range []string{
		`not json`,
		`{}`,
		`{"username": "", "user_id": "42"}`,
		`{"username": "alice", "user_id": "  "}`,
	} {
		w := postJSON(t, s, body)
		if w.Code != http.StatusBadRequest {
			t.Errorf("body %q: status = %d, want 400", body, w.Code)
		}
	}
}

func TestHealthz(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	s.srv.Handler.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("healthz status = %d", w.Code)
	}
}
