package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/ad/script-agent-bot/internal/domain"
	"github.com/ad/script-agent-bot/internal/session"
	"github.com/ad/script-agent-bot/internal/storage"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// ChatActions is the slice of the Telegram API the console needs.
type ChatActions interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
	LeaveChat(ctx context.Context, params *bot.LeaveChatParams) (bool, error)
}

// StopReason tells the main loop why the console ended.
type StopReason int

const (
	StopQuit StopReason = iota
	StopRestart
)

// Console is the operator terminal. It reads commands line by line and
// acts on the running bot. Chats are addressed by their index in the
// `list` output.
type Console struct {
	in       io.Reader
	out      io.Writer
	chat     ChatActions
	settings *storage.SettingsStore
	records  *storage.RecordStore
	sessions *session.Registry
	logger   domain.Logger
	started  time.Time
}

// New creates a console over the given input and output streams.
func New(
	in io.Reader,
	out io.Writer,
	chat ChatActions,
	settings *storage.SettingsStore,
	records *storage.RecordStore,
	sessions *session.Registry,
	log domain.Logger,
) *Console {
	return &Console{
		in:       in,
		out:      out,
		chat:     chat,
		settings: settings,
		records:  records,
		sessions: sessions,
		logger:   log,
		started:  time.Now(),
	}
}

// Run reads commands until quit, restart, EOF or context cancellation.
func (c *Console) Run(ctx context.Context) StopReason {
	fmt.Fprintln(c.out, "console ready, type 'help' for commands")

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(c.in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			return StopQuit
		case line, ok := <-lines:
			if !ok {
				return StopQuit
			}
			if reason, done := c.Dispatch(ctx, line); done {
				return reason
			}
		}
	}
}

// Dispatch executes one console line. It reports whether the console
// should stop and why.
func (c *Console) Dispatch(ctx context.Context, line string) (StopReason, bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return StopQuit, false
	}
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "help":
		c.printHelp()
	case "status":
		c.printStatus()
	case "setstatus":
		c.setStatus(strings.TrimSpace(strings.TrimPrefix(line, "setstatus")))
	case "list":
		c.listChats()
	case "leave":
		c.leaveChat(ctx, args)
	case "dm":
		c.directMessage(ctx, args)
	case "disable":
		c.setDisabled(args, true)
	case "enable":
		c.setDisabled(args, false)
	case "restart":
		fmt.Fprintln(c.out, "restarting")
		return StopRestart, true
	case "quit", "exit":
		fmt.Fprintln(c.out, "bye")
		return StopQuit, true
	default:
		fmt.Fprintf(c.out, "unknown command %q, type 'help'\n", cmd)
	}
	return StopQuit, false
}

func (c *Console) printHelp() {
	fmt.Fprint(c.out, `commands:
  status              uptime, chats, sessions, loader state
  setstatus <text>    set the bot status text
  list                list known chats with indexes
  leave <n>           leave chat n
  dm <n> <text>       send text to chat n
  disable <n>         silence the bot in chat n
  enable <n>          unsilence the bot in chat n
  restart             restart the bot process
  quit                stop the bot
`)
}

func (c *Console) printStatus() {
	chats, err := c.settings.KnownChats()
	if err != nil {
		fmt.Fprintf(c.out, "error: %v\n", err)
		return
	}
	cfg, err := c.records.LoaderConfig()
	if err != nil {
		fmt.Fprintf(c.out, "error: %v\n", err)
		return
	}
	statusText, _ := c.settings.StatusText()

	fmt.Fprintf(c.out, "uptime: %s\n", time.Since(c.started).Round(time.Second))
	fmt.Fprintf(c.out, "chats: %d\n", len(chats))
	fmt.Fprintf(c.out, "active sessions: %d\n", c.sessions.Len())
	fmt.Fprintf(c.out, "loader: %s (%s)\n", cfg.Version, cfg.Status)
	if statusText != "" {
		fmt.Fprintf(c.out, "status text: %s\n", statusText)
	}
}

func (c *Console) setStatus(text string) {
	if text == "" {
		fmt.Fprintln(c.out, "usage: setstatus <text>")
		return
	}
	if err := c.settings.SetStatusText(text); err != nil {
		fmt.Fprintf(c.out, "error: %v\n", err)
		return
	}
	c.logger.Info("status text changed", "text", text)
	fmt.Fprintln(c.out, "status updated")
}

func (c *Console) listChats() {
	chats, err := c.settings.KnownChats()
	if err != nil {
		fmt.Fprintf(c.out, "error: %v\n", err)
		return
	}
	if len(chats) == 0 {
		fmt.Fprintln(c.out, "no known chats")
		return
	}
	for i, chat := range chats {
		marker := ""
		if c.settings.IsDisabled(chat.ID) {
			marker = " [disabled]"
		}
		title := chat.Title
		if title == "" {
			title = "(untitled)"
		}
		fmt.Fprintf(c.out, "%d. %s (%d)%s\n", i+1, title, chat.ID, marker)
	}
}

// resolveChat maps a 1-based `list` index to a chat.
func (c *Console) resolveChat(arg string) (storage.ChatInfo, bool) {
	chats, err := c.settings.KnownChats()
	if err != nil {
		fmt.Fprintf(c.out, "error: %v\n", err)
		return storage.ChatInfo{}, false
	}
	idx, err := strconv.Atoi(arg)
	if err != nil || idx < 1 || idx > len(chats) {
		fmt.Fprintf(c.out, "no chat %q, see 'list'\n", arg)
		return storage.ChatInfo{}, false
	}
	return chats[idx-1], true
}

func (c *Console) leaveChat(ctx context.Context, args []string) {
	if len(args) != 1 {
		fmt.Fprintln(c.out, "usage: leave <n>")
		return
	}
	chat, ok := c.resolveChat(args[0])
	if !ok {
		return
	}
	if _, err := c.chat.LeaveChat(ctx, &bot.LeaveChatParams{ChatID: chat.ID}); err != nil {
		fmt.Fprintf(c.out, "error: %v\n", err)
		return
	}
	if err := c.settings.ForgetChat(chat.ID); err != nil {
		fmt.Fprintf(c.out, "error: %v\n", err)
		return
	}
	c.logger.Info("left chat", "chat_id", chat.ID)
	fmt.Fprintf(c.out, "left %s\n", chat.Title)
}

func (c *Console) directMessage(ctx context.Context, args []string) {
	if len(args) < 2 {
		fmt.Fprintln(c.out, "usage: dm <n> <text>")
		return
	}
	chat, ok := c.resolveChat(args[0])
	if !ok {
		return
	}
	text := strings.Join(args[1:], " ")
	if _, err := c.chat.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: chat.ID,
		Text:   text,
	}); err != nil {
		fmt.Fprintf(c.out, "error: %v\n", err)
		return
	}
	fmt.Fprintln(c.out, "sent")
}

func (c *Console) setDisabled(args []string, disabled bool) {
	verb := "enable"
	if disabled {
		verb = "disable"
	}
	if len(args) != 1 {
		fmt.Fprintf(c.out, "usage: %s <n>\n", verb)
		return
	}
	chat, ok := c.resolveChat(args[0])
	if !ok {
		return
	}
	changed, err := c.settings.SetDisabled(chat.ID, disabled)
	if err != nil {
		fmt.Fprintf(c.out, "error: %v\n", err)
		return
	}
	if !changed {
		fmt.Fprintf(c.out, "%s already %sd\n", chat.Title, verb)
		return
	}
	c.logger.Info("chat toggled", "chat_id", chat.ID, "disabled", disabled)
	fmt.Fprintf(c.out, "%sd %s\n", verb, chat.Title)
}
