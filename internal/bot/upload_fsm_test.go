package bot

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/ad/script-agent-bot/internal/config"
	"github.com/ad/script-agent-bot/internal/locale"
	"github.com/ad/script-agent-bot/internal/logger"
	"github.com/ad/script-agent-bot/internal/session"
	"github.com/ad/script-agent-bot/internal/storage"

	"github.com/go-telegram/bot/models"
)

// Chat layout shared by the wizard tests.
const (
	testUserChatID   = int64(10)
	testPublicChatID = int64(100)
	testAdminChatID  = int64(200)
	testTicketChatID = int64(300)
	testAdminUserID  = int64(99)
	testUploaderID   = int64(7)
)

type wizardEnv struct {
	fake     *fakeChat
	cfg      *config.Config
	sessions *session.Registry
	records  *storage.RecordStore
	roles    *RoleService
	tickets  *TicketService
	review   *ReviewService
	upload   *UploadFSM
	request  *RequestFSM
}

func newWizardEnv(t *testing.T) *wizardEnv {
	t.Helper()
	log := logger.New(logger.ERROR)
	l, err := locale.NewLocalizer(locale.NewLocale(locale.En))
	if err != nil {
		t.Fatalf("NewLocalizer: %v", err)
	}
	fs, err := storage.NewFileDocumentStore(filepath.Join(t.TempDir(), "data.json"))
	if err != nil {
		t.Fatalf("NewFileDocumentStore: %v", err)
	}

	fake := &fakeChat{}
	cfg := &config.Config{
		AdminUserIDs:       []int64{testAdminUserID},
		PublicReviewChatID: testPublicChatID,
		AdminReviewChatID:  testAdminChatID,
		TicketChatID:       testTicketChatID,
	}
	sessions := session.NewRegistry(log)
	records := storage.NewRecordStore(fs, log)
	roles := NewRoleService(fake, cfg, records, log)
	tickets := NewTicketService(fake, cfg, sessions, l, log)
	review := NewReviewService(fake, cfg, records, sessions, roles, tickets, l, log)

	return &wizardEnv{
		fake:     fake,
		cfg:      cfg,
		sessions: sessions,
		records:  records,
		roles:    roles,
		tickets:  tickets,
		review:   review,
		upload:   NewUploadFSM(fake, sessions, review, l, log),
		request:  NewRequestFSM(fake, sessions, tickets, l, log),
	}
}

func gateCallback(userID int64) *models.CallbackQuery {
	return &models.CallbackQuery{From: models.User{ID: userID}}
}

// walkUploadToGate answers the game and game-id steps so the session
// sits at the key-system gate.
func walkUploadToGate(t *testing.T, env *wizardEnv, userID int64) {
	t.Helper()
	ctx := context.Background()
	env.upload.Start(ctx, &models.User{ID: userID, Username: "tester"}, testUserChatID)

	sess, err := env.sessions.Get(userID)
	if err != nil {
		t.Fatalf("session after Start: %v", err)
	}
	env.upload.HandleText(ctx, sess, &models.Message{ID: 500, Text: "Arsenal"})

	sess, err = env.sessions.Get(userID)
	if err != nil {
		t.Fatalf("session after game step: %v", err)
	}
	env.upload.HandleText(ctx, sess, &models.Message{ID: 501, Text: "286090429"})

	sess, err = env.sessions.Get(userID)
	if err != nil {
		t.Fatalf("session after game-id step: %v", err)
	}
	if sess.State != StateUploadGate {
		t.Fatalf("state = %q, want %q", sess.State, StateUploadGate)
	}
}

func TestUploadHasKeyGateLeavesNoTrace(t *testing.T) {
	env := newWizardEnv(t)
	ctx := context.Background()
	walkUploadToGate(t, env, testUploaderID)

	env.upload.HandleCallback(ctx, gateCallback(testUploaderID), Action{NS: NSUpload, Verb: gateHasKey})

	if env.sessions.Len() != 0 {
		t.Error("session survived the has-key reject")
	}
	if got := env.fake.sentTo(testPublicChatID); len(got) != 0 {
		t.Errorf("public review chat got %v, want nothing", got)
	}
	if got := env.fake.sentTo(testAdminChatID); len(got) != 0 {
		t.Errorf("admin review chat got %v, want nothing", got)
	}
	if len(env.fake.topics) != 0 {
		t.Errorf("forum topics created: %d, want 0", len(env.fake.topics))
	}
	if !containsText(env.fake.sentTo(testUserChatID), "not accepted") {
		t.Error("user never saw the gate rejection")
	}

	users := -1
	_ = env.records.View(func(doc *storage.Document) { users = len(doc.Users) })
	if users != 0 {
		t.Errorf("user records written: %d, want 0", users)
	}
}

func TestUploadDenylistBlocksAfterGate(t *testing.T) {
	env := newWizardEnv(t)
	ctx := context.Background()
	walkUploadToGate(t, env, testUploaderID)

	env.upload.HandleCallback(ctx, gateCallback(testUploaderID), Action{NS: NSUpload, Verb: gateNoKey})

	sess, err := env.sessions.Get(testUploaderID)
	if err != nil {
		t.Fatalf("session after no-key answer: %v", err)
	}
	if sess.State != StateUploadAskScript {
		t.Fatalf("state = %q, want %q", sess.State, StateUploadAskScript)
	}

	// Matching is case-insensitive; a shouted term still blocks.
	env.upload.HandleText(ctx, sess, &models.Message{
		ID:   502,
		Text: "loadstring(game:HttpGet('https://LINKVERTISE.com/x'))()",
		From: &models.User{ID: testUploaderID, Username: "tester"},
	})

	if !containsText(env.fake.sentTo(testUserChatID), "blocked term") {
		t.Error("user never saw the denylist rejection")
	}
	if got := env.fake.sentTo(testPublicChatID); len(got) != 0 {
		t.Errorf("blocked upload reached the public chat: %v", got)
	}
	if got := env.fake.sentTo(testAdminChatID); len(got) != 0 {
		t.Errorf("blocked upload reached the admin chat: %v", got)
	}
	if env.sessions.Len() != 0 {
		t.Error("session survived the denylist reject")
	}
}

func TestUploadHappyPathReachesReview(t *testing.T) {
	env := newWizardEnv(t)
	ctx := context.Background()
	walkUploadToGate(t, env, testUploaderID)

	env.upload.HandleCallback(ctx, gateCallback(testUploaderID), Action{NS: NSUpload, Verb: gateNoKey})
	sess, err := env.sessions.Get(testUploaderID)
	if err != nil {
		t.Fatalf("session after no-key answer: %v", err)
	}
	// The body must dodge the whole denylist, "ad" included.
	env.upload.HandleText(ctx, sess, &models.Message{
		ID:   502,
		Text: "print('hello world')",
		From: &models.User{ID: testUploaderID, Username: "tester"},
	})

	if !containsText(env.fake.sentTo(testPublicChatID), "Pending review") {
		t.Error("no pending entry in the public chat")
	}
	if !containsText(env.fake.sentTo(testAdminChatID), "Arsenal") {
		t.Error("no review card in the admin chat")
	}
	if !containsText(env.fake.sentTo(testUserChatID), "Submitted for review") {
		t.Error("uploader never saw the confirmation")
	}
	if env.sessions.Len() != 0 {
		t.Error("session survived submission")
	}
}

func TestUploadCancelSentinel(t *testing.T) {
	env := newWizardEnv(t)
	ctx := context.Background()

	env.upload.Start(ctx, &models.User{ID: testUploaderID, Username: "tester"}, testUserChatID)
	sess, err := env.sessions.Get(testUploaderID)
	if err != nil {
		t.Fatalf("session after Start: %v", err)
	}
	env.upload.HandleText(ctx, sess, &models.Message{ID: 500, Text: " CANCEL "})

	if env.sessions.Len() != 0 {
		t.Error("cancel left the session alive")
	}
	if !containsText(env.fake.sentTo(testUserChatID), "Cancelled") {
		t.Error("user never saw the cancel notice")
	}
}
