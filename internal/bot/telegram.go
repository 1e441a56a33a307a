package bot

import (
	"context"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// ChatAPI is the slice of the Telegram client the bot services use.
// *bot.Bot satisfies it; tests substitute a recorder.
type ChatAPI interface {
	MessageDeleter
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
	EditMessageText(ctx context.Context, params *bot.EditMessageTextParams) (*models.Message, error)
	AnswerCallbackQuery(ctx context.Context, params *bot.AnswerCallbackQueryParams) (bool, error)
	CreateForumTopic(ctx context.Context, params *bot.CreateForumTopicParams) (*models.ForumTopic, error)
	CloseForumTopic(ctx context.Context, params *bot.CloseForumTopicParams) (bool, error)
}
