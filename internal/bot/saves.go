package bot

import (
	"context"
	"html"
	"strconv"

	"github.com/ad/script-agent-bot/internal/locale"
	"github.com/ad/script-agent-bot/internal/storage"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

const NSSaves = "sav"

// showSaves renders the saved-template browser: one slot per page,
// addressed by its position in the sorted game list. editMessageID 0
// sends a fresh panel, otherwise the existing panel is edited in place.
// Viewing a slot marks it as the last touched save.
func (h *BotHandler) showSaves(ctx context.Context, userID, chatID int64, index, editMessageID int) {
	id := strconv.FormatInt(userID, 10)
	saved, _, err := h.records.Templates(id)
	if err != nil {
		h.logger.Error("failed to load templates", "user_id", userID, "error", err)
		return
	}
	if len(saved) == 0 {
		if editMessageID != 0 {
			deleteMessages(ctx, h.bot, h.logger, chatID, editMessageID)
		}
		h.reply(ctx, chatID, h.localizer.MustLocalize(locale.SavesEmpty))
		return
	}

	games := storage.TemplateGames(saved)
	if index < 0 {
		index = 0
	}
	if index >= len(games) {
		index = len(games) - 1
	}
	game := games[index]

	if err := h.records.TouchLastSave(id, game); err != nil {
		h.logger.Warn("failed to touch last save", "user_id", userID, "error", err)
	}

	text := h.localizer.MustLocalizeWithTemplate(locale.SavesPanel,
		strconv.Itoa(index+1),
		strconv.Itoa(len(games)),
		html.EscapeString(game),
		strconv.Itoa(len(saved[game])),
		"",
	)
	keyboard := h.savesKeyboard(index)

	if editMessageID == 0 {
		_, err = h.bot.SendMessage(ctx, &bot.SendMessageParams{
			ChatID:      chatID,
			Text:        text,
			ParseMode:   models.ParseModeHTML,
			ReplyMarkup: keyboard,
		})
	} else {
		_, err = h.bot.EditMessageText(ctx, &bot.EditMessageTextParams{
			ChatID:      chatID,
			MessageID:   editMessageID,
			Text:        text,
			ParseMode:   models.ParseModeHTML,
			ReplyMarkup: keyboard,
		})
	}
	if err != nil {
		h.logger.Debug("saves panel render skipped", "user_id", userID, "error", err)
	}
}

func (h *BotHandler) savesKeyboard(index int) *models.InlineKeyboardMarkup {
	btn := func(key, verb string) models.InlineKeyboardButton {
		return models.InlineKeyboardButton{
			Text:         h.localizer.MustLocalize(key),
			CallbackData: Encode(NSSaves, verb, strconv.Itoa(index)),
		}
	}
	return &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{
			{btn(locale.ButtonPrevEntry, "prev"), btn(locale.ButtonNextEntry, "next")},
			{btn(locale.ButtonLoadSave, "load"), btn(locale.ButtonDeleteSave, "del")},
			{btn(locale.ButtonClosePanel, "close")},
		},
	}
}

// handleSavesCallback routes browser button presses. The slot position
// travels in the callback payload, so the panel itself is stateless.
func (h *BotHandler) handleSavesCallback(ctx context.Context, callback *models.CallbackQuery, action Action) {
	if callback.Message.Message == nil {
		return
	}
	userID := callback.From.ID
	chatID := callback.Message.Message.Chat.ID
	panelID := callback.Message.Message.ID

	index, err := strconv.Atoi(action.Arg)
	if err != nil {
		h.logger.Warn("bad saves index", "arg", action.Arg)
		return
	}

	switch action.Verb {
	case "prev":
		h.showSaves(ctx, userID, chatID, index-1, panelID)
	case "next":
		h.showSaves(ctx, userID, chatID, index+1, panelID)

	case "load":
		id := strconv.FormatInt(userID, 10)
		saved, _, err := h.records.Templates(id)
		if err != nil {
			h.logger.Error("failed to load templates", "user_id", userID, "error", err)
			return
		}
		games := storage.TemplateGames(saved)
		if index < 0 || index >= len(games) {
			return
		}
		game := games[index]
		deleteMessages(ctx, h.bot, h.logger, chatID, panelID)
		h.reply(ctx, chatID, h.localizer.MustLocalizeWithTemplate(locale.SavesLoaded, html.EscapeString(game)))
		h.templateFSM.Resume(ctx, userID, chatID, game, saved[game])

	case "del":
		id := strconv.FormatInt(userID, 10)
		saved, _, err := h.records.Templates(id)
		if err != nil {
			h.logger.Error("failed to load templates", "user_id", userID, "error", err)
			return
		}
		games := storage.TemplateGames(saved)
		if index < 0 || index >= len(games) {
			return
		}
		if err := h.records.DeleteTemplate(id, games[index]); err != nil {
			h.logger.Error("failed to delete template", "user_id", userID, "game", games[index], "error", err)
			return
		}
		h.showSaves(ctx, userID, chatID, index, panelID)

	case "close":
		deleteMessages(ctx, h.bot, h.logger, chatID, panelID)

	default:
		h.logger.Debug("unknown saves verb", "verb", action.Verb)
	}
}
