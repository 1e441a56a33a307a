package bot

import (
	"context"
	"strings"
	"time"

	"github.com/ad/script-agent-bot/internal/domain"

	"github.com/go-telegram/bot"
)

// MessageDeleter is an interface for deleting messages (for testing)
type MessageDeleter interface {
	DeleteMessage(ctx context.Context, params *bot.DeleteMessageParams) (bool, error)
}

// deleteMessages removes wizard prompts and user replies best-effort.
// Missing or too-old messages are logged and skipped; a rate limit gets
// one retry after a second. Deletion failures never interrupt a flow.
func deleteMessages(ctx context.Context, b MessageDeleter, logger domain.Logger, chatID int64, messageIDs ...int) {
	for _, messageID := range messageIDs {
		if err := deleteMessageWithRetry(ctx, b, chatID, messageID); err != nil {
			logger.Warn("message deletion failed",
				"chat_id", chatID,
				"message_id", messageID,
				"error", err.Error())
		} else {
			logger.Debug("message deleted",
				"chat_id", chatID,
				"message_id", messageID)
		}
	}
}

func deleteMessageWithRetry(ctx context.Context, b MessageDeleter, chatID int64, messageID int) error {
	_, err := b.DeleteMessage(ctx, &bot.DeleteMessageParams{
		ChatID:    chatID,
		MessageID: messageID,
	})
	if err == nil {
		return nil
	}

	if isRateLimitError(err) {
		time.Sleep(1 * time.Second)
		_, err = b.DeleteMessage(ctx, &bot.DeleteMessageParams{
			ChatID:    chatID,
			MessageID: messageID,
		})
	}
	return err
}

func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "Too Many Requests") || strings.Contains(s, "retry after")
}
