package bot

import (
	"context"
	"fmt"
	"html"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ad/script-agent-bot/internal/config"
	"github.com/ad/script-agent-bot/internal/domain"
	"github.com/ad/script-agent-bot/internal/locale"
	"github.com/ad/script-agent-bot/internal/session"
	"github.com/ad/script-agent-bot/internal/storage"
	"github.com/ad/script-agent-bot/internal/verify"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

const (
	repoURL    = "https://github.com/ad/script-agent-bot"
	commitsURL = repoURL + "/commits/main"
)

// BotHandler handles all Telegram bot interactions
type BotHandler struct {
	bot         ChatAPI
	config      *config.Config
	logger      domain.Logger
	localizer   locale.Localizer
	records     *storage.RecordStore
	settings    *storage.SettingsStore
	sessions    *session.Registry
	cooldowns   *CooldownGate
	reconciler  *verify.Reconciler
	templateFSM *TemplateFSM
	uploadFSM   *UploadFSM
	requestFSM  *RequestFSM
	review      *ReviewService
	tickets     *TicketService

	// recent tracks message IDs per chat for /purge.
	recentMu sync.Mutex
	recent   map[int64][]int
}

// recentTrackLimit bounds the per-chat purge window.
const recentTrackLimit = 200

// NewBotHandler creates a new BotHandler with all dependencies
func NewBotHandler(
	b ChatAPI,
	cfg *config.Config,
	logger domain.Logger,
	localizer locale.Localizer,
	records *storage.RecordStore,
	settings *storage.SettingsStore,
	sessions *session.Registry,
	reconciler *verify.Reconciler,
	templateFSM *TemplateFSM,
	uploadFSM *UploadFSM,
	requestFSM *RequestFSM,
	review *ReviewService,
	tickets *TicketService,
) *BotHandler {
	return &BotHandler{
		bot:         b,
		config:      cfg,
		logger:      logger,
		localizer:   localizer,
		records:     records,
		settings:    settings,
		sessions:    sessions,
		cooldowns:   NewCooldownGate(),
		reconciler:  reconciler,
		templateFSM: templateFSM,
		uploadFSM:   uploadFSM,
		requestFSM:  requestFSM,
		review:      review,
		tickets:     tickets,
		recent:      make(map[int64][]int),
	}
}

// trackMessage remembers a seen message for /purge, keeping the newest
// recentTrackLimit per chat.
func (h *BotHandler) trackMessage(chatID int64, messageID int) {
	h.recentMu.Lock()
	defer h.recentMu.Unlock()

	ids := append(h.recent[chatID], messageID)
	if len(ids) > recentTrackLimit {
		ids = ids[len(ids)-recentTrackLimit:]
	}
	h.recent[chatID] = ids
}

// takeRecent removes and returns the newest n tracked messages.
func (h *BotHandler) takeRecent(chatID int64, n int) []int {
	h.recentMu.Lock()
	defer h.recentMu.Unlock()

	ids := h.recent[chatID]
	if n > len(ids) {
		n = len(ids)
	}
	taken := append([]int(nil), ids[len(ids)-n:]...)
	h.recent[chatID] = ids[:len(ids)-n]
	return taken
}

// gate runs the shared command preamble: chat tracking, wizard input
// priority, the disabled switch and the per-user cooldown. It reports
// false when the command must not run.
func (h *BotHandler) gate(ctx context.Context, update *models.Update) bool {
	if update.Message == nil || update.Message.From == nil {
		return false
	}
	userID := update.Message.From.ID
	chatID := update.Message.Chat.ID
	h.trackMessage(chatID, update.Message.ID)

	if update.Message.Chat.Type != "private" {
		title := update.Message.Chat.Title
		if err := h.settings.RememberChat(chatID, title); err != nil {
			h.logger.Warn("failed to remember chat", "chat_id", chatID, "error", err)
		}
	}

	// A wizard waiting for text owns every message from its user, even
	// ones that look like commands.
	if sess, err := h.sessions.Get(userID); err == nil && sess.AwaitingInput {
		h.dispatchWizard(ctx, sess, update.Message)
		return false
	}

	// A disabled chat is silent, except for admins.
	if h.settings.IsDisabled(chatID) && !h.config.IsAdmin(userID) {
		h.logger.Debug("command ignored in disabled chat", "chat_id", chatID, "user_id", userID)
		return false
	}

	if ok, wait := h.cooldowns.Allow(userID, time.Now()); !ok {
		secs := int(wait.Seconds()) + 1
		h.reply(ctx, chatID, h.localizer.MustLocalizeWithTemplate(locale.CooldownWait, strconv.Itoa(secs)))
		return false
	}
	return true
}

func (h *BotHandler) reply(ctx context.Context, chatID int64, text string) {
	_, err := h.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      text,
		ParseMode: models.ParseModeHTML,
	})
	if err != nil {
		h.logger.Error("failed to send message", "chat_id", chatID, "error", err)
	}
}

func displayName(user *models.User) string {
	if user.Username != "" {
		return "@" + user.Username
	}
	if user.FirstName != "" {
		return user.FirstName
	}
	return fmt.Sprintf("User id%d", user.ID)
}

// commandArg returns the text after the command itself.
func commandArg(text string) string {
	parts := strings.SplitN(text, " ", 2)
	if len(parts) < 2 {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// HandleKey issues the user's lifetime access key and delivers it by DM.
func (h *BotHandler) HandleKey(ctx context.Context, b *bot.Bot, update *models.Update) {
	if !h.gate(ctx, update) {
		return
	}
	user := update.Message.From
	chatID := update.Message.Chat.ID

	key, err := h.records.IssueKey(strconv.FormatInt(user.ID, 10), user.Username)
	if err != nil {
		h.logger.Error("failed to issue key", "user_id", user.ID, "error", err)
		return
	}

	// Keys only travel over DM. In a group the command message is
	// removed so the key request leaves no trace.
	_, err = b.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    user.ID,
		Text:      h.localizer.MustLocalizeWithTemplate(locale.KeyIssued, key),
		ParseMode: models.ParseModeHTML,
	})
	if err != nil {
		h.logger.Warn("key DM failed", "user_id", user.ID, "error", err)
		h.reply(ctx, chatID, h.localizer.MustLocalize(locale.KeyDMFailed))
		return
	}

	if update.Message.Chat.Type != "private" {
		deleteMessages(ctx, b, h.logger, chatID, update.Message.ID)
	}
	h.logger.Info("key issued", "user_id", user.ID, "username", user.Username)
}

// HandleHelp lists available commands for the asking user.
func (h *BotHandler) HandleHelp(ctx context.Context, b *bot.Bot, update *models.Update) {
	if !h.gate(ctx, update) {
		return
	}

	var sb strings.Builder
	sb.WriteString(h.localizer.MustLocalize(locale.HelpTitle))
	sb.WriteString("\n\n")
	sb.WriteString(h.localizer.MustLocalize(locale.HelpUserCommands))
	sb.WriteString("\n\n")
	sb.WriteString(h.localizer.MustLocalize(locale.HelpUploaderCommands))
	if h.config.IsAdmin(update.Message.From.ID) {
		sb.WriteString("\n\n")
		sb.WriteString(h.localizer.MustLocalize(locale.HelpAdminCommands))
	}
	h.reply(ctx, update.Message.Chat.ID, sb.String())
}

// HandleVersion reports the loader version and detection status.
func (h *BotHandler) HandleVersion(ctx context.Context, b *bot.Bot, update *models.Update) {
	if !h.gate(ctx, update) {
		return
	}
	cfg, err := h.records.LoaderConfig()
	if err != nil {
		h.logger.Error("failed to load loader config", "error", err)
		return
	}
	h.reply(ctx, update.Message.Chat.ID,
		h.localizer.MustLocalizeWithTemplate(locale.VersionInfo, cfg.Version, cfg.Status))
}

// HandleGithub links the source repository.
func (h *BotHandler) HandleGithub(ctx context.Context, b *bot.Bot, update *models.Update) {
	if !h.gate(ctx, update) {
		return
	}
	h.reply(ctx, update.Message.Chat.ID,
		h.localizer.MustLocalizeWithTemplate(locale.GithubLink, repoURL))
}

// HandleCommits links the recent change log.
func (h *BotHandler) HandleCommits(ctx context.Context, b *bot.Bot, update *models.Update) {
	if !h.gate(ctx, update) {
		return
	}
	h.reply(ctx, update.Message.Chat.ID,
		h.localizer.MustLocalizeWithTemplate(locale.CommitsLink, commitsURL))
}

// HandleVerify finishes the website verification handshake. The live
// username on the message is the proof of identity; nothing the user
// types is trusted.
func (h *BotHandler) HandleVerify(ctx context.Context, b *bot.Bot, update *models.Update) {
	if !h.gate(ctx, update) {
		return
	}
	user := update.Message.From
	chatID := update.Message.Chat.ID

	live := user.Username
	if live == "" {
		h.reply(ctx, chatID, h.localizer.MustLocalizeWithTemplate(locale.VerifyNeedUsername, h.config.VerifyServerURL))
		return
	}

	outcome, submitted, err := h.reconciler.Reconcile(ctx, user.ID, live)
	if err != nil {
		h.logger.Error("verification failed", "user_id", user.ID, "error", err)
		return
	}

	switch outcome {
	case verify.OutcomeNoRequest:
		h.reply(ctx, chatID, h.localizer.MustLocalizeWithTemplate(locale.VerifyNoRequest, h.config.VerifyServerURL))
	case verify.OutcomeMismatch:
		h.reply(ctx, chatID, h.localizer.MustLocalizeWithTemplate(locale.VerifyUsernameMismatch,
			html.EscapeString(live), html.EscapeString(submitted)))
	case verify.OutcomeRoleGrantFailed:
		h.reply(ctx, chatID, h.localizer.MustLocalize(locale.VerifyRoleGrantFailed))
	case verify.OutcomeSuccess:
		h.reply(ctx, chatID, h.localizer.MustLocalizeWithTemplate(locale.VerifySuccess, html.EscapeString(live)))
	}
}

// HandleSaves opens the saved-template browser panel.
func (h *BotHandler) HandleSaves(ctx context.Context, b *bot.Bot, update *models.Update) {
	if !h.gate(ctx, update) {
		return
	}
	h.showSaves(ctx, update.Message.From.ID, update.Message.Chat.ID, 0, 0)
}

// HandleClear deletes one saved template slot.
func (h *BotHandler) HandleClear(ctx context.Context, b *bot.Bot, update *models.Update) {
	if !h.gate(ctx, update) {
		return
	}
	userID := update.Message.From.ID
	chatID := update.Message.Chat.ID

	game := commandArg(update.Message.Text)
	if game == "" {
		h.reply(ctx, chatID, h.localizer.MustLocalize(locale.ClearUsage))
		return
	}

	err := h.records.DeleteTemplate(strconv.FormatInt(userID, 10), game)
	switch err {
	case nil:
		h.reply(ctx, chatID, h.localizer.MustLocalizeWithTemplate(locale.ClearDone, html.EscapeString(game)))
	case domain.ErrNoSavedTemplate:
		h.reply(ctx, chatID, h.localizer.MustLocalizeWithTemplate(locale.SavesNotFound, html.EscapeString(game)))
	default:
		h.logger.Error("failed to delete template", "user_id", userID, "game", game, "error", err)
	}
}

// HandleLoadSave reopens a saved template in the editor. The argument
// is a game name or a /saves list position; with no argument the last
// touched slot opens.
func (h *BotHandler) HandleLoadSave(ctx context.Context, b *bot.Bot, update *models.Update) {
	if !h.gate(ctx, update) {
		return
	}
	userID := update.Message.From.ID
	chatID := update.Message.Chat.ID
	id := strconv.FormatInt(userID, 10)

	saved, lastSave, err := h.records.Templates(id)
	if err != nil {
		h.logger.Error("failed to load templates", "user_id", userID, "error", err)
		return
	}
	if len(saved) == 0 {
		h.reply(ctx, chatID, h.localizer.MustLocalize(locale.SavesEmpty))
		return
	}

	game := commandArg(update.Message.Text)
	if game == "" {
		game = lastSave
	}
	if idx, err := strconv.Atoi(game); err == nil {
		games := storage.TemplateGames(saved)
		if idx >= 1 && idx <= len(games) {
			game = games[idx-1]
		}
	}

	scripts, ok := saved[game]
	if !ok {
		h.reply(ctx, chatID, h.localizer.MustLocalizeWithTemplate(locale.SavesNotFound, html.EscapeString(game)))
		return
	}

	if err := h.records.TouchLastSave(id, game); err != nil {
		h.logger.Warn("failed to touch last save", "user_id", userID, "error", err)
	}
	h.reply(ctx, chatID, h.localizer.MustLocalizeWithTemplate(locale.SavesLoaded, html.EscapeString(game)))
	h.templateFSM.Resume(ctx, userID, chatID, game, scripts)
}

// HandlePrint prints the last touched template as a Lua table.
func (h *BotHandler) HandlePrint(ctx context.Context, b *bot.Bot, update *models.Update) {
	if !h.gate(ctx, update) {
		return
	}
	userID := update.Message.From.ID
	chatID := update.Message.Chat.ID

	saved, lastSave, err := h.records.Templates(strconv.FormatInt(userID, 10))
	if err != nil {
		h.logger.Error("failed to load templates", "user_id", userID, "error", err)
		return
	}

	game := commandArg(update.Message.Text)
	if game == "" {
		game = lastSave
	}
	scripts, ok := saved[game]
	if !ok {
		h.reply(ctx, chatID, h.localizer.MustLocalize(locale.SavesEmpty))
		return
	}

	h.reply(ctx, chatID, "<pre>"+html.EscapeString(domain.FormatLua(game, scripts))+"</pre>")
}

// HandleRevokeKey revokes a user's key by username. Admin only.
func (h *BotHandler) HandleRevokeKey(ctx context.Context, b *bot.Bot, update *models.Update) {
	if !h.gate(ctx, update) {
		return
	}
	admin := update.Message.From
	chatID := update.Message.Chat.ID

	if !h.config.IsAdmin(admin.ID) {
		h.logger.Warn("unauthorized revoke attempt", "user_id", admin.ID)
		h.reply(ctx, chatID, h.localizer.MustLocalize(locale.AdminOnly))
		return
	}

	username := strings.TrimPrefix(commandArg(update.Message.Text), "@")
	if username == "" {
		h.reply(ctx, chatID, h.localizer.MustLocalize(locale.RevokeUsage))
		return
	}

	targetID, _, err := h.records.FindKeyHolder(username)
	if err == domain.ErrUserNotFound {
		h.reply(ctx, chatID, h.localizer.MustLocalizeWithTemplate(locale.RevokeNoUser, username))
		return
	}
	if err != nil {
		h.logger.Error("failed to find key holder", "username", username, "error", err)
		return
	}

	key, err := h.records.RevokeKey(targetID, admin.Username)
	switch err {
	case nil:
		h.logger.Info("key revoked", "admin", admin.Username, "target", username)
		h.reply(ctx, chatID, h.localizer.MustLocalizeWithTemplate(locale.RevokeDone, username, key))
	case domain.ErrKeyAlreadyRevoked:
		h.reply(ctx, chatID, h.localizer.MustLocalize(locale.RevokeNoKey))
	default:
		h.logger.Error("failed to revoke key", "target", username, "error", err)
	}
}

// HandleTemplate starts the script table builder. Admin only.
func (h *BotHandler) HandleTemplate(ctx context.Context, b *bot.Bot, update *models.Update) {
	if !h.gate(ctx, update) {
		return
	}
	userID := update.Message.From.ID
	chatID := update.Message.Chat.ID

	if !h.config.IsAdmin(userID) {
		h.logger.Warn("unauthorized template attempt", "user_id", userID)
		h.reply(ctx, chatID, h.localizer.MustLocalize(locale.AdminOnly))
		return
	}
	h.templateFSM.Start(ctx, userID, chatID)
}

// HandleUpload starts the script upload wizard. Verified uploaders
// only; admins bypass the check.
func (h *BotHandler) HandleUpload(ctx context.Context, b *bot.Bot, update *models.Update) {
	if !h.gate(ctx, update) {
		return
	}
	user := update.Message.From
	chatID := update.Message.Chat.ID

	if !h.config.IsAdmin(user.ID) {
		ok, err := h.records.UploadEligible(strconv.FormatInt(user.ID, 10))
		if err != nil {
			h.logger.Error("failed to check upload eligibility", "user_id", user.ID, "error", err)
			return
		}
		if !ok {
			h.reply(ctx, chatID, h.localizer.MustLocalize(locale.UploadNotAllowed))
			return
		}
	}
	h.uploadFSM.Start(ctx, user, chatID)
}

// HandlePurge deletes the last N tracked messages in the chat. Admin
// only.
func (h *BotHandler) HandlePurge(ctx context.Context, b *bot.Bot, update *models.Update) {
	if !h.gate(ctx, update) {
		return
	}
	userID := update.Message.From.ID
	chatID := update.Message.Chat.ID

	if !h.config.IsAdmin(userID) {
		h.logger.Warn("unauthorized purge attempt", "user_id", userID)
		h.reply(ctx, chatID, h.localizer.MustLocalize(locale.AdminOnly))
		return
	}

	n, err := strconv.Atoi(commandArg(update.Message.Text))
	if err != nil || n < 1 {
		h.reply(ctx, chatID, h.localizer.MustLocalize(locale.PurgeUsage))
		return
	}

	ids := h.takeRecent(chatID, n+1) // the /purge command itself counts too
	deleteMessages(ctx, b, h.logger, chatID, ids...)
	h.logger.Info("messages purged", "admin_id", userID, "chat_id", chatID, "count", len(ids))
	h.reply(ctx, chatID, h.localizer.MustLocalizeWithTemplate(locale.PurgeDone, strconv.Itoa(len(ids))))
}

// HandleRequest starts the script request wizard.
func (h *BotHandler) HandleRequest(ctx context.Context, b *bot.Bot, update *models.Update) {
	if !h.gate(ctx, update) {
		return
	}
	h.requestFSM.Start(ctx, update.Message.From.ID, update.Message.Chat.ID)
}

// HandleMessage routes free text to whichever wizard is waiting for it.
func (h *BotHandler) HandleMessage(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}
	h.trackMessage(update.Message.Chat.ID, update.Message.ID)

	sess, err := h.sessions.Get(update.Message.From.ID)
	if err != nil || !sess.AwaitingInput {
		return
	}
	h.dispatchWizard(ctx, sess, update.Message)
}

// dispatchWizard hands a text message to the wizard that owns the
// session.
func (h *BotHandler) dispatchWizard(ctx context.Context, sess *session.Session, msg *models.Message) {
	switch sess.Kind {
	case session.KindTemplate:
		h.templateFSM.HandleText(ctx, sess, msg)
	case session.KindUpload:
		h.uploadFSM.HandleText(ctx, sess, msg)
	case session.KindRequest:
		h.requestFSM.HandleText(ctx, sess, msg)
	case session.KindReview:
		h.review.HandleReason(ctx, sess, msg)
	case session.KindTicket:
		h.tickets.HandleReason(ctx, sess, msg)
	}
}

// HandleCallback routes button presses to their owning component.
func (h *BotHandler) HandleCallback(ctx context.Context, b *bot.Bot, update *models.Update) {
	callback := update.CallbackQuery
	if callback == nil {
		return
	}

	_, _ = b.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: callback.ID,
	})

	action, err := Decode(callback.Data)
	if err != nil {
		h.logger.Warn("malformed callback data", "data", callback.Data, "user_id", callback.From.ID)
		return
	}

	switch action.NS {
	case NSTemplate:
		h.templateFSM.HandleCallback(ctx, callback, action)
	case NSUpload:
		h.uploadFSM.HandleCallback(ctx, callback, action)
	case NSRequest:
		h.requestFSM.HandleCallback(ctx, callback, action)
	case NSReview:
		h.review.HandleAction(ctx, callback, action)
	case NSTicket:
		h.tickets.HandleCallback(ctx, callback, action)
	case NSSaves:
		h.handleSavesCallback(ctx, callback, action)
	default:
		h.logger.Debug("callback for unknown namespace", "ns", action.NS)
	}
}
