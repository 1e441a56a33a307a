package bot

import (
	"context"
	"strconv"
	"time"

	"github.com/ad/script-agent-bot/internal/config"
	"github.com/ad/script-agent-bot/internal/domain"
	"github.com/ad/script-agent-bot/internal/locale"
	"github.com/ad/script-agent-bot/internal/session"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

const NSTicket = "tkt"

// Ticket verbs
const (
	ticketClose  = "close"
	ticketAccept = "accept"
	ticketReject = "reject"
)

// StateTicketAskReason is the admin-side rejection reason prompt state.
const StateTicketAskReason = "tkt_ask_reason"

// closeDelay gives chat clients a moment to show the closing notice
// before the topic locks.
const closeDelay = 1200 * time.Millisecond

// TicketService opens a forum topic per script request in the ticket
// chat and posts a matching review card to the admin chat. When the
// ticket chat has no topics enabled it degrades to plain messages.
type TicketService struct {
	bot       ChatAPI
	config    *config.Config
	sessions  *session.Registry
	localizer locale.Localizer
	logger    domain.Logger
}

// NewTicketService creates the ticket service.
func NewTicketService(b ChatAPI, cfg *config.Config, sessions *session.Registry, localizer locale.Localizer, log domain.Logger) *TicketService {
	return &TicketService{
		bot:       b,
		config:    cfg,
		sessions:  sessions,
		localizer: localizer,
		logger:    log,
	}
}

// Open creates a ticket topic carrying text and returns its thread id.
// Thread id 0 means the chat has no topics and the text was posted
// plain.
func (t *TicketService) Open(ctx context.Context, name, text string) (int, error) {
	topic, err := t.bot.CreateForumTopic(ctx, &bot.CreateForumTopicParams{
		ChatID: t.config.TicketChatID,
		Name:   name,
	})
	if err != nil {
		t.logger.Warn("forum topic creation failed, posting plain",
			"chat_id", t.config.TicketChatID, "error", err)
		_, err = t.bot.SendMessage(ctx, &bot.SendMessageParams{
			ChatID: t.config.TicketChatID,
			Text:   text,
		})
		return 0, err
	}

	_, err = t.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:          t.config.TicketChatID,
		MessageThreadID: topic.MessageThreadID,
		Text:            text,
		ReplyMarkup: &models.InlineKeyboardMarkup{
			InlineKeyboard: [][]models.InlineKeyboardButton{{
				{
					Text:         t.localizer.MustLocalize(locale.ButtonClosePanel),
					CallbackData: Encode(NSTicket, ticketClose, strconv.Itoa(topic.MessageThreadID)),
				},
			}},
		},
	})
	if err != nil {
		return 0, err
	}
	return topic.MessageThreadID, nil
}

// OpenRequest files a script request: a ticket for the requester plus
// an admin review card with accept and discard actions.
func (t *TicketService) OpenRequest(ctx context.Context, username, game, gameID, text string) error {
	card := t.localizer.MustLocalizeWithTemplate(locale.RequestCard, username, game, gameID, text)

	threadID, err := t.Open(ctx, "request: "+username, card)
	if err != nil {
		return err
	}

	arg := strconv.Itoa(threadID)
	_, err = t.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: t.config.AdminReviewChatID,
		Text:   card,
		ReplyMarkup: &models.InlineKeyboardMarkup{
			InlineKeyboard: [][]models.InlineKeyboardButton{{
				{
					Text:         t.localizer.MustLocalize(locale.ButtonAccept),
					CallbackData: Encode(NSTicket, ticketAccept, arg),
				},
				{
					Text:         t.localizer.MustLocalize(locale.ButtonDiscard),
					CallbackData: Encode(NSTicket, ticketReject, arg),
				},
			}},
		},
	})
	if err != nil {
		return err
	}

	t.logger.Info("request ticket opened", "username", username, "thread_id", threadID)
	return nil
}

// HandleCallback routes ticket button presses. All of them are admin
// actions.
func (t *TicketService) HandleCallback(ctx context.Context, callback *models.CallbackQuery, action Action) {
	adminID := callback.From.ID
	if !t.config.IsAdmin(adminID) {
		t.logger.Warn("non-admin pressed ticket button", "user_id", adminID, "verb", action.Verb)
		return
	}
	threadID, err := strconv.Atoi(action.Arg)
	if err != nil {
		t.logger.Warn("bad ticket thread id", "arg", action.Arg)
		return
	}

	switch action.Verb {
	case ticketClose:
		t.Close(threadID)

	case ticketAccept:
		t.sendToThread(ctx, threadID, t.localizer.MustLocalize(locale.RequestAccepted))
		if callback.Message.Message != nil {
			t.resolveCard(ctx, callback.Message.Message.ID, ticketAccept)
		}
		t.logger.Info("request accepted", "admin_id", adminID, "thread_id", threadID)

	case ticketReject:
		// The rejection reason arrives as the admin's next message.
		if callback.Message.Message == nil {
			return
		}
		sess := t.sessions.Create(adminID, callback.Message.Message.Chat.ID, session.KindTicket)
		sess.State = StateTicketAskReason
		sess.AwaitingInput = true
		sess.ReviewMessageID = callback.Message.Message.ID
		sess.ReviewTargetID = int64(threadID)

		msg, err := t.bot.SendMessage(ctx, &bot.SendMessageParams{
			ChatID: sess.ChatID,
			Text:   t.localizer.MustLocalize(locale.ReviewAskReason),
		})
		if err != nil {
			t.logger.Error("failed to prompt for reason", "admin_id", adminID, "error", err)
			t.sessions.Destroy(adminID)
			return
		}
		_ = t.sessions.Update(adminID, func(sess *session.Session) {
			sess.PromptMessageID = msg.ID
		})
		t.sessions.ArmStepTimer(adminID, domain.TextStepTimeout, func(sess *session.Session) {
			_, _ = t.bot.SendMessage(context.Background(), &bot.SendMessageParams{
				ChatID: sess.ChatID,
				Text:   t.localizer.MustLocalize(locale.WizardTimeout),
			})
		})

	default:
		t.logger.Debug("unknown ticket verb", "verb", action.Verb)
	}
}

// HandleReason consumes the admin's rejection reason and announces it
// in the ticket.
func (t *TicketService) HandleReason(ctx context.Context, sess *session.Session, msg *models.Message) {
	adminID := sess.UserID
	reason := msg.Text
	threadID := int(sess.ReviewTargetID)
	cardID := sess.ReviewMessageID
	promptID := sess.PromptMessageID
	t.sessions.Destroy(adminID)

	deleteMessages(ctx, t.bot, t.logger, sess.ChatID, promptID, msg.ID)

	t.sendToThread(ctx, threadID,
		t.localizer.MustLocalizeWithTemplate(locale.RequestRejected, reason))
	t.resolveCard(ctx, cardID, ticketReject)
	t.logger.Info("request rejected", "admin_id", adminID, "thread_id", threadID)
}

// SendCongrats posts a congratulatory ticket for a verified upload.
func (t *TicketService) SendCongrats(ctx context.Context, username, game string) {
	text := t.localizer.MustLocalizeWithTemplate(locale.TicketCongrats, game)
	if _, err := t.Open(ctx, "verified: "+username, text); err != nil {
		t.logger.Warn("failed to open congrats ticket", "username", username, "error", err)
	}
}

// SendRejection posts a rejection ticket carrying the discard reason.
func (t *TicketService) SendRejection(ctx context.Context, username, game, reason string) {
	text := t.localizer.MustLocalizeWithTemplate(locale.TicketRejected, game, reason)
	if _, err := t.Open(ctx, "rejected: "+username, text); err != nil {
		t.logger.Warn("failed to open rejection ticket", "username", username, "error", err)
	}
}

// SendDiscussion posts a discussion ticket for an unsure outcome.
func (t *TicketService) SendDiscussion(ctx context.Context, username, game string) {
	text := t.localizer.MustLocalizeWithTemplate(locale.TicketDiscussion, game)
	if _, err := t.Open(ctx, "unsure: "+username, text); err != nil {
		t.logger.Warn("failed to open discussion ticket", "username", username, "error", err)
	}
}

func (t *TicketService) sendToThread(ctx context.Context, threadID int, text string) {
	params := &bot.SendMessageParams{
		ChatID: t.config.TicketChatID,
		Text:   text,
	}
	if threadID != 0 {
		params.MessageThreadID = threadID
	}
	if _, err := t.bot.SendMessage(ctx, params); err != nil {
		t.logger.Warn("failed to post into ticket", "thread_id", threadID, "error", err)
	}
}

// resolveCard strips the buttons off a request card and stamps the
// outcome on it.
func (t *TicketService) resolveCard(ctx context.Context, cardID int, outcome string) {
	_, err := t.bot.EditMessageText(ctx, &bot.EditMessageTextParams{
		ChatID:    t.config.AdminReviewChatID,
		MessageID: cardID,
		Text:      t.localizer.MustLocalizeWithTemplate(locale.ReviewResolved, outcome),
	})
	if err != nil {
		t.logger.Debug("failed to resolve request card", "card_id", cardID, "error", err)
	}
}

// Close locks the ticket topic after a short delay, without blocking
// the caller.
func (t *TicketService) Close(threadID int) {
	time.AfterFunc(closeDelay, func() {
		_, err := t.bot.CloseForumTopic(context.Background(), &bot.CloseForumTopicParams{
			ChatID:          t.config.TicketChatID,
			MessageThreadID: threadID,
		})
		if err != nil {
			t.logger.Warn("failed to close ticket topic", "thread_id", threadID, "error", err)
			return
		}
		t.logger.Info("ticket closed", "thread_id", threadID)
	})
}
