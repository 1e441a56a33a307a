package bot

import (
	"context"
	"strings"

	"github.com/ad/script-agent-bot/internal/domain"
	"github.com/ad/script-agent-bot/internal/locale"
	"github.com/ad/script-agent-bot/internal/session"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// Upload wizard states
const (
	StateUploadAskGame   = "upl_ask_game"
	StateUploadAskGameID = "upl_ask_gameid"
	StateUploadGate      = "upl_gate"
	StateUploadAskScript = "upl_ask_script"
)

// Gate verbs
const (
	gateHasKey = "haskey"
	gateNoKey  = "nokey"
)

// cancelSentinel aborts any text step with no side effects.
const cancelSentinel = "cancel"

// UploadFSM collects a script submission and hands it to review. The
// flow is linear: game name, game id, key-system gate, script body.
type UploadFSM struct {
	bot       ChatAPI
	sessions  *session.Registry
	review    *ReviewService
	localizer locale.Localizer
	logger    domain.Logger
}

// NewUploadFSM creates the upload wizard.
func NewUploadFSM(b ChatAPI, sessions *session.Registry, review *ReviewService, localizer locale.Localizer, log domain.Logger) *UploadFSM {
	return &UploadFSM{
		bot:       b,
		sessions:  sessions,
		review:    review,
		localizer: localizer,
		logger:    log,
	}
}

// Start opens an upload session, asking for the game first.
func (f *UploadFSM) Start(ctx context.Context, user *models.User, chatID int64) {
	sess := f.sessions.Create(user.ID, chatID, session.KindUpload)
	sess.State = StateUploadAskGame
	sess.AwaitingInput = true
	sess.Field = user.Username

	if !f.prompt(ctx, user.ID, chatID, locale.WizardAskGame) {
		return
	}
	f.sessions.ArmStepTimer(user.ID, domain.TextStepTimeout, f.expire)
	f.logger.Info("upload wizard started", "user_id", user.ID)
}

// prompt sends a step prompt and records it for later deletion. A send
// failure aborts the wizard.
func (f *UploadFSM) prompt(ctx context.Context, userID, chatID int64, key string) bool {
	msg, err := f.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: chatID,
		Text:   f.localizer.MustLocalize(key),
	})
	if err != nil {
		f.logger.Error("failed to send upload prompt", "user_id", userID, "error", err)
		f.sessions.Destroy(userID)
		return false
	}
	_ = f.sessions.Update(userID, func(sess *session.Session) {
		sess.PromptMessageID = msg.ID
	})
	return true
}

// HandleText consumes the user's answer to the current text step.
func (f *UploadFSM) HandleText(ctx context.Context, sess *session.Session, msg *models.Message) {
	userID := sess.UserID
	text := msg.Text

	if strings.EqualFold(strings.TrimSpace(text), cancelSentinel) {
		f.sessions.DisarmStepTimer(userID)
		deleteMessages(ctx, f.bot, f.logger, sess.ChatID, sess.PromptMessageID, msg.ID)
		f.sessions.Destroy(userID)
		_, _ = f.bot.SendMessage(ctx, &bot.SendMessageParams{
			ChatID: sess.ChatID,
			Text:   f.localizer.MustLocalize(locale.WizardCancelled),
		})
		f.logger.Info("upload cancelled", "user_id", userID)
		return
	}

	switch sess.State {
	case StateUploadAskGame:
		_ = f.sessions.Update(userID, func(sess *session.Session) {
			sess.GameName = text
			sess.State = StateUploadAskGameID
		})
		deleteMessages(ctx, f.bot, f.logger, sess.ChatID, sess.PromptMessageID, msg.ID)
		if !f.prompt(ctx, userID, sess.ChatID, locale.WizardAskGameID) {
			return
		}
		f.sessions.ArmStepTimer(userID, domain.TextStepTimeout, f.expire)

	case StateUploadAskGameID:
		_ = f.sessions.Update(userID, func(sess *session.Session) {
			sess.GameID = text
			sess.State = StateUploadGate
			sess.AwaitingInput = false
		})
		deleteMessages(ctx, f.bot, f.logger, sess.ChatID, sess.PromptMessageID, msg.ID)
		f.sendGate(ctx, userID, sess.ChatID)

	case StateUploadAskScript:
		f.sessions.DisarmStepTimer(userID)
		deleteMessages(ctx, f.bot, f.logger, sess.ChatID, sess.PromptMessageID, msg.ID)
		f.finalize(ctx, sess, text)
	}
}

// gateKeyboard builds the binary key-system choice for the wizard
// owning namespace ns.
func gateKeyboard(l locale.Localizer, ns string) *models.InlineKeyboardMarkup {
	return &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{{
			{
				Text:         l.MustLocalize(locale.ButtonGateHasKey),
				CallbackData: Encode(ns, gateHasKey),
			},
			{
				Text:         l.MustLocalize(locale.ButtonGateNoKey),
				CallbackData: Encode(ns, gateNoKey),
			},
		}},
	}
}

// sendGate asks the binary key-system question.
func (f *UploadFSM) sendGate(ctx context.Context, userID, chatID int64) {
	msg, err := f.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:      chatID,
		Text:        f.localizer.MustLocalize(locale.WizardGatePrompt),
		ReplyMarkup: gateKeyboard(f.localizer, NSUpload),
	})
	if err != nil {
		f.logger.Error("failed to send gate prompt", "user_id", userID, "error", err)
		f.sessions.Destroy(userID)
		return
	}
	_ = f.sessions.Update(userID, func(sess *session.Session) {
		sess.PromptMessageID = msg.ID
	})
	f.sessions.ArmStepTimer(userID, domain.ButtonStepTimeout, f.expire)
}

// HandleCallback consumes the key-system gate answer.
func (f *UploadFSM) HandleCallback(ctx context.Context, callback *models.CallbackQuery, action Action) {
	userID := callback.From.ID
	sess, err := f.sessions.Get(userID)
	if err != nil || sess.Kind != session.KindUpload || sess.State != StateUploadGate {
		return
	}

	f.sessions.DisarmStepTimer(userID)
	deleteMessages(ctx, f.bot, f.logger, sess.ChatID, sess.PromptMessageID)

	switch action.Verb {
	case gateHasKey:
		// Hard policy reject. Nothing was created yet and nothing
		// will be.
		f.sessions.Destroy(userID)
		_, _ = f.bot.SendMessage(ctx, &bot.SendMessageParams{
			ChatID: sess.ChatID,
			Text:   f.localizer.MustLocalize(locale.WizardGateRejected),
		})
		f.logger.Info("upload rejected at key gate", "user_id", userID)

	case gateNoKey:
		_ = f.sessions.Update(userID, func(sess *session.Session) {
			sess.State = StateUploadAskScript
			sess.AwaitingInput = true
		})
		if !f.prompt(ctx, userID, sess.ChatID, locale.UploadAskScript) {
			return
		}
		f.sessions.ArmStepTimer(userID, domain.TextStepTimeout, f.expire)

	default:
		f.logger.Debug("unknown upload verb", "verb", action.Verb, "user_id", userID)
	}
}

// finalize scans the script body and submits it for review. The
// denylist runs even after a no-key gate answer.
func (f *UploadFSM) finalize(ctx context.Context, sess *session.Session, text string) {
	userID := sess.UserID

	if term, blocked := domain.ContainsBlockedTerm(text); blocked {
		f.logger.Warn("upload blocked", "user_id", userID, "term", term)
		_, _ = f.bot.SendMessage(ctx, &bot.SendMessageParams{
			ChatID: sess.ChatID,
			Text:   f.localizer.MustLocalizeWithTemplate(locale.UploadBlocked, term),
		})
		f.sessions.Destroy(userID)
		return
	}

	item := &ReviewItem{
		UploaderID:   userID,
		Username:     sess.Field,
		Game:         sess.GameName,
		GameID:       sess.GameID,
		Script:       domain.SanitizeLoadstring(text),
		OriginChatID: sess.ChatID,
	}
	f.sessions.Destroy(userID)

	if err := f.review.Submit(ctx, item); err != nil {
		f.logger.Error("failed to submit upload for review", "user_id", userID, "error", err)
		return
	}
	_, _ = f.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: sess.ChatID,
		Text:   f.localizer.MustLocalize(locale.UploadSubmitted),
	})
	f.logger.Info("upload submitted", "user_id", userID, "game", item.Game)
}

func (f *UploadFSM) expire(sess *session.Session) {
	ctx := context.Background()
	if sess.PromptMessageID != 0 {
		deleteMessages(ctx, f.bot, f.logger, sess.ChatID, sess.PromptMessageID)
	}
	_, _ = f.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: sess.ChatID,
		Text:   f.localizer.MustLocalize(locale.WizardTimeout),
	})
}
