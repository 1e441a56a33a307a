package bot

import (
	"context"
	"html"
	"strconv"
	"sync"

	"github.com/ad/script-agent-bot/internal/config"
	"github.com/ad/script-agent-bot/internal/domain"
	"github.com/ad/script-agent-bot/internal/locale"
	"github.com/ad/script-agent-bot/internal/session"
	"github.com/ad/script-agent-bot/internal/storage"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// Review outcome verbs, also used as callback verbs.
const (
	ReviewVerify  = "verify"
	ReviewUnsure  = "unsure"
	ReviewDiscard = "discard"
)

// StateReviewAskReason is the admin-side reason prompt state.
const StateReviewAskReason = "rev_ask_reason"

// ReviewItem is one submission waiting for an admin decision, keyed by
// its review card message. Items live in memory; a restart drops open
// reviews and the uploader resubmits.
type ReviewItem struct {
	UploaderID   int64
	Username     string
	Game         string
	GameID       string
	Script       string
	OriginChatID int64

	// PublicMessageID is the pending entry in the public review chat,
	// edited or deleted when the outcome lands.
	PublicMessageID int
}

// ReviewService posts upload review cards to the admin chat and applies
// the three decision outcomes.
type ReviewService struct {
	mu    sync.Mutex
	items map[int]*ReviewItem

	bot       ChatAPI
	config    *config.Config
	records   *storage.RecordStore
	sessions  *session.Registry
	roles     *RoleService
	tickets   *TicketService
	localizer locale.Localizer
	logger    domain.Logger
}

// NewReviewService creates the review service.
func NewReviewService(
	b ChatAPI,
	cfg *config.Config,
	records *storage.RecordStore,
	sessions *session.Registry,
	roles *RoleService,
	tickets *TicketService,
	localizer locale.Localizer,
	log domain.Logger,
) *ReviewService {
	return &ReviewService{
		items:     make(map[int]*ReviewItem),
		bot:       b,
		config:    cfg,
		records:   records,
		sessions:  sessions,
		roles:     roles,
		tickets:   tickets,
		localizer: localizer,
		logger:    log,
	}
}

// Submit posts a pending entry to the public review chat and a review
// card with the decision buttons to the admin chat.
func (s *ReviewService) Submit(ctx context.Context, item *ReviewItem) error {
	pub, err := s.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: s.config.PublicReviewChatID,
		Text: s.localizer.MustLocalizeWithTemplate(locale.UploadPendingPublic,
			html.EscapeString(item.Game), html.EscapeString(item.Username)),
		ParseMode: models.ParseModeHTML,
	})
	if err != nil {
		return err
	}
	item.PublicMessageID = pub.ID

	btn := func(key, verb string) models.InlineKeyboardButton {
		return models.InlineKeyboardButton{
			Text:         s.localizer.MustLocalize(key),
			CallbackData: Encode(NSReview, verb),
		}
	}

	msg, err := s.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: s.config.AdminReviewChatID,
		Text: s.localizer.MustLocalizeWithTemplate(locale.UploadReviewCard,
			html.EscapeString(item.Username), html.EscapeString(item.Game),
			html.EscapeString(item.GameID), html.EscapeString(item.Script)),
		ParseMode: models.ParseModeHTML,
		ReplyMarkup: &models.InlineKeyboardMarkup{
			InlineKeyboard: [][]models.InlineKeyboardButton{
				{btn(locale.ButtonVerify, ReviewVerify), btn(locale.ButtonUnsure, ReviewUnsure), btn(locale.ButtonDiscard, ReviewDiscard)},
			},
		},
	})
	if err != nil {
		deleteMessages(ctx, s.bot, s.logger, s.config.PublicReviewChatID, pub.ID)
		return err
	}

	s.mu.Lock()
	s.items[msg.ID] = item
	s.mu.Unlock()

	s.logger.Info("upload queued for review",
		"uploader_id", item.UploaderID, "game", item.Game, "card_id", msg.ID)
	return nil
}

// HandleAction handles a decision button press on a review card.
func (s *ReviewService) HandleAction(ctx context.Context, callback *models.CallbackQuery, action Action) {
	adminID := callback.From.ID
	if !s.config.IsAdmin(adminID) {
		s.logger.Warn("non-admin pressed review button", "user_id", adminID)
		return
	}
	if callback.Message.Message == nil {
		return
	}
	cardID := callback.Message.Message.ID
	chatID := callback.Message.Message.Chat.ID

	s.mu.Lock()
	item, ok := s.items[cardID]
	s.mu.Unlock()
	if !ok {
		s.logger.Warn("review action on unknown card", "card_id", cardID)
		s.resolveCard(ctx, chatID, cardID, "expired")
		return
	}

	switch action.Verb {
	case ReviewVerify:
		s.applyVerify(ctx, item)
		s.closeItem(ctx, chatID, cardID, ReviewVerify)

	case ReviewUnsure:
		// Unsure needs no reason and lands immediately.
		s.applyUnsure(ctx, item)
		s.closeItem(ctx, chatID, cardID, ReviewUnsure)

	case ReviewDiscard:
		// A discard needs a reason. The admin's next message in the
		// review chat supplies it.
		sess := s.sessions.Create(adminID, chatID, session.KindReview)
		sess.State = StateReviewAskReason
		sess.AwaitingInput = true
		sess.ReviewMessageID = cardID
		sess.ReviewTargetID = item.UploaderID

		msg, err := s.bot.SendMessage(ctx, &bot.SendMessageParams{
			ChatID: chatID,
			Text:   s.localizer.MustLocalize(locale.ReviewAskReason),
		})
		if err != nil {
			s.logger.Error("failed to prompt for reason", "admin_id", adminID, "error", err)
			s.sessions.Destroy(adminID)
			return
		}
		_ = s.sessions.Update(adminID, func(sess *session.Session) {
			sess.PromptMessageID = msg.ID
		})
		s.sessions.ArmStepTimer(adminID, domain.TextStepTimeout, func(sess *session.Session) {
			_, _ = s.bot.SendMessage(context.Background(), &bot.SendMessageParams{
				ChatID: sess.ChatID,
				Text:   s.localizer.MustLocalize(locale.WizardTimeout),
			})
		})

	default:
		s.logger.Debug("unknown review verb", "verb", action.Verb)
	}
}

// HandleReason consumes the admin's discard reason and applies the
// discard.
func (s *ReviewService) HandleReason(ctx context.Context, sess *session.Session, msg *models.Message) {
	adminID := sess.UserID
	reason := msg.Text
	cardID := sess.ReviewMessageID
	chatID := sess.ChatID
	promptID := sess.PromptMessageID
	s.sessions.Destroy(adminID)

	s.mu.Lock()
	item, ok := s.items[cardID]
	s.mu.Unlock()
	if !ok {
		return
	}

	deleteMessages(ctx, s.bot, s.logger, chatID, promptID, msg.ID)

	// A discarded upload disappears from the public chat.
	deleteMessages(ctx, s.bot, s.logger, s.config.PublicReviewChatID, item.PublicMessageID)
	s.tickets.SendRejection(ctx, item.Username, item.Game, reason)
	s.dmUploader(ctx, item.UploaderID,
		s.localizer.MustLocalizeWithTemplate(locale.UploadDiscarded, html.EscapeString(reason)))

	count, err := s.records.AddWarning(strconv.FormatInt(item.UploaderID, 10))
	if err != nil {
		s.logger.Error("failed to add warning", "uploader_id", item.UploaderID, "error", err)
	} else {
		s.dmUploader(ctx, item.UploaderID,
			s.localizer.MustLocalizeWithTemplate(locale.WarningIssued,
				strconv.Itoa(count), strconv.Itoa(domain.WarningLimit)))
		s.logger.Info("warning issued",
			"admin_id", adminID, "uploader_id", item.UploaderID, "count", count)

		// Crossing the limit costs the Uploader role, exactly once.
		if count == domain.WarningLimit {
			if err := s.roles.RevokeUploader(ctx, item.UploaderID); err != nil {
				s.logger.Error("failed to revoke uploader role", "uploader_id", item.UploaderID, "error", err)
			} else {
				s.dmUploader(ctx, item.UploaderID,
					s.localizer.MustLocalize(locale.UploaderRoleRevoked))
			}
		}
	}

	s.closeItem(ctx, chatID, cardID, ReviewDiscard)
}

// applyUnsure keeps the public entry, flagged as under investigation,
// and opens a discussion ticket.
func (s *ReviewService) applyUnsure(ctx context.Context, item *ReviewItem) {
	_, err := s.bot.EditMessageText(ctx, &bot.EditMessageTextParams{
		ChatID:    s.config.PublicReviewChatID,
		MessageID: item.PublicMessageID,
		Text: s.localizer.MustLocalizeWithTemplate(locale.UploadUnsurePublic,
			html.EscapeString(item.Game), html.EscapeString(item.Username)),
		ParseMode: models.ParseModeHTML,
	})
	if err != nil {
		s.logger.Warn("failed to flag public entry", "message_id", item.PublicMessageID, "error", err)
	}
	s.tickets.SendDiscussion(ctx, item.Username, item.Game)
	s.dmUploader(ctx, item.UploaderID,
		s.localizer.MustLocalizeWithTemplate(locale.UploadUnsure, html.EscapeString(item.Game)))
	s.logger.Info("upload marked unsure", "uploader_id", item.UploaderID, "game", item.Game)
}

// applyVerify publishes the script in place of the pending entry and
// rewards the uploader.
func (s *ReviewService) applyVerify(ctx context.Context, item *ReviewItem) {
	table := domain.FormatLua(item.Game, []domain.ScriptEntry{{
		Name:        item.Game,
		Description: "verified upload by " + item.Username,
		Load:        item.Script,
	}})

	_, err := s.bot.EditMessageText(ctx, &bot.EditMessageTextParams{
		ChatID:    s.config.PublicReviewChatID,
		MessageID: item.PublicMessageID,
		Text: s.localizer.MustLocalizeWithTemplate(locale.UploadVerifiedPublic,
			html.EscapeString(item.Game), html.EscapeString(item.Username), html.EscapeString(table)),
		ParseMode: models.ParseModeHTML,
	})
	if err != nil {
		s.logger.Error("failed to publish verified script", "game", item.Game, "error", err)
	}

	if err := s.roles.GrantUploader(ctx, item.UploaderID); err != nil {
		s.logger.Error("failed to grant uploader role", "uploader_id", item.UploaderID, "error", err)
	}

	s.tickets.SendCongrats(ctx, item.Username, item.Game)
	s.dmUploader(ctx, item.UploaderID,
		s.localizer.MustLocalizeWithTemplate(locale.UploadApproved, html.EscapeString(item.Game)))
	s.logger.Info("upload verified", "uploader_id", item.UploaderID, "game", item.Game)
}

func (s *ReviewService) closeItem(ctx context.Context, chatID int64, cardID int, outcome string) {
	s.mu.Lock()
	delete(s.items, cardID)
	s.mu.Unlock()
	s.resolveCard(ctx, chatID, cardID, outcome)
}

// resolveCard strips the buttons off a review card and stamps the
// outcome on it.
func (s *ReviewService) resolveCard(ctx context.Context, chatID int64, cardID int, outcome string) {
	_, err := s.bot.EditMessageText(ctx, &bot.EditMessageTextParams{
		ChatID:    chatID,
		MessageID: cardID,
		Text:      s.localizer.MustLocalizeWithTemplate(locale.ReviewResolved, outcome),
	})
	if err != nil {
		s.logger.Debug("failed to resolve review card", "card_id", cardID, "error", err)
	}
}

func (s *ReviewService) dmUploader(ctx context.Context, uploaderID int64, text string) {
	_, err := s.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    uploaderID,
		Text:      text,
		ParseMode: models.ParseModeHTML,
	})
	if err != nil {
		s.logger.Warn("failed to DM uploader", "uploader_id", uploaderID, "error", err)
	}
}
