package bot

import (
	"context"
	"html"
	"strconv"

	"github.com/ad/script-agent-bot/internal/domain"
	"github.com/ad/script-agent-bot/internal/locale"
	"github.com/ad/script-agent-bot/internal/session"
	"github.com/ad/script-agent-bot/internal/storage"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// Template builder states
const (
	StateTemplateAskGame   = "tpl_ask_game"
	StateTemplateMenu      = "tpl_menu"
	StateTemplateEditField = "tpl_edit_field"
)

// Editable entry fields
const (
	FieldName        = "name"
	FieldIcon        = "icon"
	FieldDescription = "desc"
	FieldLoad        = "load"
)

// TemplateFSM drives the interactive script table builder. One menu
// message is edited in place while the user walks entries and fields.
// The builder has no per-step timeouts; an abandoned session is
// reclaimed by the registry's idle sweep.
type TemplateFSM struct {
	bot       ChatAPI
	sessions  *session.Registry
	records   *storage.RecordStore
	localizer locale.Localizer
	logger    domain.Logger
}

// NewTemplateFSM creates the template builder.
func NewTemplateFSM(b ChatAPI, sessions *session.Registry, records *storage.RecordStore, localizer locale.Localizer, log domain.Logger) *TemplateFSM {
	return &TemplateFSM{
		bot:       b,
		sessions:  sessions,
		records:   records,
		localizer: localizer,
		logger:    log,
	}
}

// Start opens a fresh builder session, asking for the game first.
func (f *TemplateFSM) Start(ctx context.Context, userID, chatID int64) {
	sess := f.sessions.Create(userID, chatID, session.KindTemplate)
	sess.State = StateTemplateAskGame
	sess.AwaitingInput = true

	msg, err := f.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: chatID,
		Text:   f.localizer.MustLocalize(locale.TemplateAskGame),
	})
	if err != nil {
		f.logger.Error("failed to send game prompt", "user_id", userID, "error", err)
		f.sessions.Destroy(userID)
		return
	}
	_ = f.sessions.Update(userID, func(sess *session.Session) {
		sess.PromptMessageID = msg.ID
	})
	f.logger.Info("template builder started", "user_id", userID)
}

// Resume opens the builder over an existing saved table.
func (f *TemplateFSM) Resume(ctx context.Context, userID, chatID int64, game string, scripts []domain.ScriptEntry) {
	sess := f.sessions.Create(userID, chatID, session.KindTemplate)
	sess.State = StateTemplateMenu
	sess.GameName = game
	sess.Scripts = append([]domain.ScriptEntry(nil), scripts...)
	if len(sess.Scripts) == 0 {
		sess.Scripts = []domain.ScriptEntry{domain.DefaultScriptEntry()}
	}
	sess.Multi = len(sess.Scripts) > 1

	f.renderMenu(ctx, sess)
	f.logger.Info("template builder resumed", "user_id", userID, "game", game)
}

// HandleText consumes the user's answer to the current prompt.
func (f *TemplateFSM) HandleText(ctx context.Context, sess *session.Session, msg *models.Message) {
	userID := sess.UserID
	text := msg.Text

	switch sess.State {
	case StateTemplateAskGame:
		_ = f.sessions.Update(userID, func(sess *session.Session) {
			sess.GameName = text
			sess.Scripts = []domain.ScriptEntry{domain.DefaultScriptEntry()}
			sess.Index = 0
			sess.State = StateTemplateMenu
			sess.AwaitingInput = false
		})
	case StateTemplateEditField:
		_ = f.sessions.Update(userID, func(sess *session.Session) {
			entry := &sess.Scripts[sess.Index]
			switch sess.Field {
			case FieldName:
				entry.Name = text
			case FieldIcon:
				entry.Icon = text
			case FieldDescription:
				entry.Description = text
			case FieldLoad:
				entry.Load = domain.SanitizeLoadstring(text)
			}
			sess.Field = ""
			sess.State = StateTemplateMenu
			sess.AwaitingInput = false
		})
	default:
		return
	}

	deleteMessages(ctx, f.bot, f.logger, sess.ChatID, sess.PromptMessageID, msg.ID)
	_ = f.sessions.Update(userID, func(sess *session.Session) { sess.PromptMessageID = 0 })

	sess, err := f.sessions.Get(userID)
	if err != nil {
		return
	}
	f.autosave(sess)
	f.renderMenu(ctx, sess)
}

// autosave persists the whole working table after every field commit
// and navigation, so abandoning the wizard never loses work.
func (f *TemplateFSM) autosave(sess *session.Session) {
	if sess.GameName == "" || len(sess.Scripts) == 0 {
		return
	}
	id := strconv.FormatInt(sess.UserID, 10)
	if err := f.records.SaveTemplate(id, sess.GameName, sess.Scripts); err != nil {
		f.logger.Error("template autosave failed", "user_id", sess.UserID, "error", err)
	}
}

// HandleCallback consumes a menu button press.
func (f *TemplateFSM) HandleCallback(ctx context.Context, callback *models.CallbackQuery, action Action) {
	userID := callback.From.ID
	sess, err := f.sessions.Get(userID)
	if err != nil || sess.Kind != session.KindTemplate {
		return
	}

	switch action.Verb {
	case "cancel":
		f.finish(ctx, sess, f.localizer.MustLocalize(locale.WizardCancelled))
		return
	case "save":
		if err := f.records.SaveTemplate(strconv.FormatInt(userID, 10), sess.GameName, sess.Scripts); err != nil {
			f.logger.Error("failed to save template", "user_id", userID, "error", err)
			return
		}
		f.logger.Info("template finished", "user_id", userID, "game", sess.GameName, "entries", len(sess.Scripts))

		// Finishing replaces the panel with the rendered table.
		if sess.MenuMessageID != 0 {
			deleteMessages(ctx, f.bot, f.logger, sess.ChatID, sess.MenuMessageID)
		}
		_, err := f.bot.SendMessage(ctx, &bot.SendMessageParams{
			ChatID: sess.ChatID,
			Text: f.localizer.MustLocalizeWithTemplate(locale.TemplateSaved, html.EscapeString(sess.GameName)) +
				"\n<pre>" + html.EscapeString(domain.FormatLua(sess.GameName, sess.Scripts)) + "</pre>",
			ParseMode: models.ParseModeHTML,
		})
		if err != nil {
			f.logger.Error("failed to send finished table", "user_id", userID, "error", err)
		}
		f.sessions.Destroy(userID)
		return
	case "print":
		_, err := f.bot.SendMessage(ctx, &bot.SendMessageParams{
			ChatID:    sess.ChatID,
			Text:      "<pre>" + html.EscapeString(domain.FormatLua(sess.GameName, sess.Scripts)) + "</pre>",
			ParseMode: models.ParseModeHTML,
		})
		if err != nil {
			f.logger.Error("failed to print template", "user_id", userID, "error", err)
		}
		return
	case "multi":
		// Promotion is one-way; there is no demotion verb.
		_ = f.sessions.Update(userID, func(sess *session.Session) {
			sess.Multi = true
		})
	case "prev":
		_ = f.sessions.Update(userID, func(sess *session.Session) {
			if sess.Index > 0 {
				sess.Index--
			}
		})
	case "next":
		_ = f.sessions.Update(userID, func(sess *session.Session) {
			if sess.Index < len(sess.Scripts)-1 {
				sess.Index++
			}
		})
	case "add":
		_ = f.sessions.Update(userID, func(sess *session.Session) {
			sess.Scripts = append(sess.Scripts, domain.DefaultScriptEntry())
			sess.Index = len(sess.Scripts) - 1
		})
	case "del":
		var lastEntry bool
		_ = f.sessions.Update(userID, func(sess *session.Session) {
			if len(sess.Scripts) <= 1 {
				lastEntry = true
				return
			}
			sess.Scripts = append(sess.Scripts[:sess.Index], sess.Scripts[sess.Index+1:]...)
			if sess.Index >= len(sess.Scripts) {
				sess.Index = len(sess.Scripts) - 1
			}
		})
		if lastEntry {
			_, _ = f.bot.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
				CallbackQueryID: callback.ID,
				Text:            f.localizer.MustLocalize(locale.TemplateLastEntry),
			})
			return
		}
	case FieldName, FieldIcon, FieldDescription, FieldLoad:
		f.askField(ctx, sess, action.Verb)
		return
	default:
		f.logger.Debug("unknown template action", "verb", action.Verb, "user_id", userID)
		return
	}

	sess, err = f.sessions.Get(userID)
	if err != nil {
		return
	}
	f.autosave(sess)
	f.renderMenu(ctx, sess)
}

func (f *TemplateFSM) askField(ctx context.Context, sess *session.Session, field string) {
	prompts := map[string]string{
		FieldName:        locale.TemplateAskName,
		FieldIcon:        locale.TemplateAskIcon,
		FieldDescription: locale.TemplateAskDescription,
		FieldLoad:        locale.TemplateAskLoad,
	}

	msg, err := f.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: sess.ChatID,
		Text:   f.localizer.MustLocalize(prompts[field]),
	})
	if err != nil {
		f.logger.Error("failed to send field prompt", "user_id", sess.UserID, "error", err)
		return
	}

	_ = f.sessions.Update(sess.UserID, func(sess *session.Session) {
		sess.State = StateTemplateEditField
		sess.Field = field
		sess.AwaitingInput = true
		sess.PromptMessageID = msg.ID
	})
}

// renderMenu draws or redraws the menu message for the current entry.
func (f *TemplateFSM) renderMenu(ctx context.Context, sess *session.Session) {
	entry := sess.Scripts[sess.Index]
	text := f.localizer.MustLocalizeWithTemplate(locale.TemplateMenu,
		html.EscapeString(sess.GameName),
		strconv.Itoa(sess.Index+1),
		strconv.Itoa(len(sess.Scripts)),
		html.EscapeString(entry.Name),
		html.EscapeString(entry.Icon),
		html.EscapeString(entry.Description),
		html.EscapeString(entry.Load),
	)
	keyboard := f.menuKeyboard(sess.Multi)

	if sess.MenuMessageID == 0 {
		msg, err := f.bot.SendMessage(ctx, &bot.SendMessageParams{
			ChatID:      sess.ChatID,
			Text:        text,
			ParseMode:   models.ParseModeHTML,
			ReplyMarkup: keyboard,
		})
		if err != nil {
			f.logger.Error("failed to send menu", "user_id", sess.UserID, "error", err)
			return
		}
		_ = f.sessions.Update(sess.UserID, func(sess *session.Session) {
			sess.MenuMessageID = msg.ID
		})
		return
	}

	_, err := f.bot.EditMessageText(ctx, &bot.EditMessageTextParams{
		ChatID:      sess.ChatID,
		MessageID:   sess.MenuMessageID,
		Text:        text,
		ParseMode:   models.ParseModeHTML,
		ReplyMarkup: keyboard,
	})
	if err != nil {
		// "message is not modified" is normal when a button press
		// changes nothing visible.
		f.logger.Debug("menu edit skipped", "user_id", sess.UserID, "error", err)
	}
}

// menuKeyboard builds the panel controls. The single-entry editor
// offers a one-way promotion to the multi-entry editor; the multi
// editor swaps it for navigation and add/remove.
func (f *TemplateFSM) menuKeyboard(multi bool) *models.InlineKeyboardMarkup {
	btn := func(key, verb string) models.InlineKeyboardButton {
		return models.InlineKeyboardButton{
			Text:         f.localizer.MustLocalize(key),
			CallbackData: Encode(NSTemplate, verb),
		}
	}

	rows := [][]models.InlineKeyboardButton{
		{btn(locale.ButtonEditName, FieldName), btn(locale.ButtonEditIcon, FieldIcon)},
		{btn(locale.ButtonEditDescription, FieldDescription), btn(locale.ButtonEditLoad, FieldLoad)},
	}
	if multi {
		rows = append([][]models.InlineKeyboardButton{
			{btn(locale.ButtonPrevEntry, "prev"), btn(locale.ButtonNextEntry, "next")},
		}, rows...)
		rows = append(rows,
			[]models.InlineKeyboardButton{btn(locale.ButtonAddEntry, "add"), btn(locale.ButtonRemoveEntry, "del")})
	} else {
		rows = append(rows,
			[]models.InlineKeyboardButton{btn(locale.ButtonGoMulti, "multi")})
	}
	rows = append(rows,
		[]models.InlineKeyboardButton{btn(locale.ButtonPrint, "print"), btn(locale.ButtonSave, "save"), btn(locale.ButtonCancel, "cancel")})

	return &models.InlineKeyboardMarkup{InlineKeyboard: rows}
}

// finish closes the session, replacing the menu with a final notice.
func (f *TemplateFSM) finish(ctx context.Context, sess *session.Session, text string) {
	if sess.MenuMessageID != 0 {
		_, err := f.bot.EditMessageText(ctx, &bot.EditMessageTextParams{
			ChatID:    sess.ChatID,
			MessageID: sess.MenuMessageID,
			Text:      text,
			ParseMode: models.ParseModeHTML,
		})
		if err != nil {
			f.logger.Debug("final menu edit failed", "user_id", sess.UserID, "error", err)
		}
	} else {
		_, _ = f.bot.SendMessage(ctx, &bot.SendMessageParams{
			ChatID:    sess.ChatID,
			Text:      text,
			ParseMode: models.ParseModeHTML,
		})
	}
	f.sessions.Destroy(sess.UserID)
}
