package bot

import (
	"context"
	"strings"
	"sync"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// fakeChat records every Telegram call so wizard tests can assert on
// the traffic. IDs are handed out sequentially like a real chat would.
type fakeChat struct {
	mu     sync.Mutex
	nextID int

	sent    []sentRecord
	edits   []*bot.EditMessageTextParams
	deleted []*bot.DeleteMessageParams
	topics  []*bot.CreateForumTopicParams
	closed  []*bot.CloseForumTopicParams
}

type sentRecord struct {
	params *bot.SendMessageParams
	id     int
}

func (c *fakeChat) SendMessage(_ context.Context, params *bot.SendMessageParams) (*models.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	c.sent = append(c.sent, sentRecord{params: params, id: c.nextID})
	return &models.Message{ID: c.nextID}, nil
}

func (c *fakeChat) EditMessageText(_ context.Context, params *bot.EditMessageTextParams) (*models.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.edits = append(c.edits, params)
	return &models.Message{ID: params.MessageID}, nil
}

func (c *fakeChat) DeleteMessage(_ context.Context, params *bot.DeleteMessageParams) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deleted = append(c.deleted, params)
	return true, nil
}

func (c *fakeChat) AnswerCallbackQuery(_ context.Context, _ *bot.AnswerCallbackQueryParams) (bool, error) {
	return true, nil
}

func (c *fakeChat) CreateForumTopic(_ context.Context, params *bot.CreateForumTopicParams) (*models.ForumTopic, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	c.topics = append(c.topics, params)
	return &models.ForumTopic{MessageThreadID: c.nextID}, nil
}

func (c *fakeChat) CloseForumTopic(_ context.Context, params *bot.CloseForumTopicParams) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = append(c.closed, params)
	return true, nil
}

// sentTo returns the texts sent to one chat, in order.
func (c *fakeChat) sentTo(chatID int64) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var texts []string
	for _, rec := range c.sent {
		if id, ok := rec.params.ChatID.(int64); ok && id == chatID {
			texts = append(texts, rec.params.Text)
		}
	}
	return texts
}

// lastSentID returns the message ID of the most recent send to chatID,
// or 0 when nothing was sent there.
func (c *fakeChat) lastSentID(chatID int64) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.sent) - 1; i >= 0; i-- {
		if id, ok := c.sent[i].params.ChatID.(int64); ok && id == chatID {
			return c.sent[i].id
		}
	}
	return 0
}

func containsText(texts []string, substr string) bool {
	for _, text := range texts {
		if strings.Contains(text, substr) {
			return true
		}
	}
	return false
}
