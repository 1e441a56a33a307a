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

// Request wizard states
const (
	StateRequestAskGame   = "req_ask_game"
	StateRequestAskGameID = "req_ask_gameid"
	StateRequestGate      = "req_gate"
	StateRequestAskText   = "req_ask_text"
)

// RequestFSM collects a script request and files it as a ticket. The
// flow mirrors the upload wizard: game name, game id, key-system gate,
// then the request description.
type RequestFSM struct {
	bot       ChatAPI
	sessions  *session.Registry
	tickets   *TicketService
	localizer locale.Localizer
	logger    domain.Logger
}

// NewRequestFSM creates the request wizard.
func NewRequestFSM(b ChatAPI, sessions *session.Registry, tickets *TicketService, localizer locale.Localizer, log domain.Logger) *RequestFSM {
	return &RequestFSM{
		bot:       b,
		sessions:  sessions,
		tickets:   tickets,
		localizer: localizer,
		logger:    log,
	}
}

// Start opens a request session, asking for the game first.
func (f *RequestFSM) Start(ctx context.Context, userID, chatID int64) {
	sess := f.sessions.Create(userID, chatID, session.KindRequest)
	sess.State = StateRequestAskGame
	sess.AwaitingInput = true

	if !f.prompt(ctx, userID, chatID, locale.WizardAskGame) {
		return
	}
	f.sessions.ArmStepTimer(userID, domain.TextStepTimeout, f.expire)
	f.logger.Info("request wizard started", "user_id", userID)
}

// prompt sends a step prompt and records it for later deletion. A send
// failure aborts the wizard.
func (f *RequestFSM) prompt(ctx context.Context, userID, chatID int64, key string) bool {
	msg, err := f.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: chatID,
		Text:   f.localizer.MustLocalize(key),
	})
	if err != nil {
		f.logger.Error("failed to send request prompt", "user_id", userID, "error", err)
		f.sessions.Destroy(userID)
		return false
	}
	_ = f.sessions.Update(userID, func(sess *session.Session) {
		sess.PromptMessageID = msg.ID
	})
	return true
}

// HandleText consumes the user's answer to the current text step.
func (f *RequestFSM) HandleText(ctx context.Context, sess *session.Session, msg *models.Message) {
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
		f.logger.Info("request cancelled", "user_id", userID)
		return
	}

	switch sess.State {
	case StateRequestAskGame:
		_ = f.sessions.Update(userID, func(sess *session.Session) {
			sess.GameName = text
			sess.State = StateRequestAskGameID
		})
		deleteMessages(ctx, f.bot, f.logger, sess.ChatID, sess.PromptMessageID, msg.ID)
		if !f.prompt(ctx, userID, sess.ChatID, locale.WizardAskGameID) {
			return
		}
		f.sessions.ArmStepTimer(userID, domain.TextStepTimeout, f.expire)

	case StateRequestAskGameID:
		_ = f.sessions.Update(userID, func(sess *session.Session) {
			sess.GameID = text
			sess.State = StateRequestGate
			sess.AwaitingInput = false
		})
		deleteMessages(ctx, f.bot, f.logger, sess.ChatID, sess.PromptMessageID, msg.ID)
		f.sendGate(ctx, userID, sess.ChatID)

	case StateRequestAskText:
		f.sessions.DisarmStepTimer(userID)
		deleteMessages(ctx, f.bot, f.logger, sess.ChatID, sess.PromptMessageID, msg.ID)
		f.finalize(ctx, sess, msg)
	}
}

// sendGate asks the binary key-system question.
func (f *RequestFSM) sendGate(ctx context.Context, userID, chatID int64) {
	msg, err := f.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:      chatID,
		Text:        f.localizer.MustLocalize(locale.WizardGatePrompt),
		ReplyMarkup: gateKeyboard(f.localizer, NSRequest),
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
func (f *RequestFSM) HandleCallback(ctx context.Context, callback *models.CallbackQuery, action Action) {
	userID := callback.From.ID
	sess, err := f.sessions.Get(userID)
	if err != nil || sess.Kind != session.KindRequest || sess.State != StateRequestGate {
		return
	}

	f.sessions.DisarmStepTimer(userID)
	deleteMessages(ctx, f.bot, f.logger, sess.ChatID, sess.PromptMessageID)

	switch action.Verb {
	case gateHasKey:
		// Hard policy reject. No ticket, no topic, nothing persisted.
		f.sessions.Destroy(userID)
		_, _ = f.bot.SendMessage(ctx, &bot.SendMessageParams{
			ChatID: sess.ChatID,
			Text:   f.localizer.MustLocalize(locale.WizardGateRejected),
		})
		f.logger.Info("request rejected at key gate", "user_id", userID)

	case gateNoKey:
		_ = f.sessions.Update(userID, func(sess *session.Session) {
			sess.State = StateRequestAskText
			sess.AwaitingInput = true
		})
		if !f.prompt(ctx, userID, sess.ChatID, locale.RequestPrompt) {
			return
		}
		f.sessions.ArmStepTimer(userID, domain.TextStepTimeout, f.expire)

	default:
		f.logger.Debug("unknown request verb", "verb", action.Verb, "user_id", userID)
	}
}

// finalize scans the description and files the ticket. The denylist
// runs even after a no-key gate answer.
func (f *RequestFSM) finalize(ctx context.Context, sess *session.Session, msg *models.Message) {
	userID := sess.UserID
	game := sess.GameName
	gameID := sess.GameID
	f.sessions.Destroy(userID)

	if term, blocked := domain.ContainsBlockedTerm(msg.Text); blocked {
		f.logger.Warn("request blocked", "user_id", userID, "term", term)
		_, _ = f.bot.SendMessage(ctx, &bot.SendMessageParams{
			ChatID: sess.ChatID,
			Text:   f.localizer.MustLocalizeWithTemplate(locale.RequestBlocked, term),
		})
		return
	}

	username := displayName(msg.From)
	if err := f.tickets.OpenRequest(ctx, username, game, gameID, msg.Text); err != nil {
		f.logger.Error("failed to open request ticket", "user_id", userID, "error", err)
		return
	}
	_, _ = f.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: sess.ChatID,
		Text:   f.localizer.MustLocalize(locale.RequestSent),
	})
	f.logger.Info("request filed", "user_id", userID, "game", game)
}

func (f *RequestFSM) expire(sess *session.Session) {
	ctx := context.Background()
	if sess.PromptMessageID != 0 {
		deleteMessages(ctx, f.bot, f.logger, sess.ChatID, sess.PromptMessageID)
	}
	_, _ = f.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: sess.ChatID,
		Text:   f.localizer.MustLocalize(locale.WizardTimeout),
	})
}
