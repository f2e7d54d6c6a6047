package tgbot

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/nerrad567/telegram-gateway/internal/infrastructure/config"
)

// Logger interface for logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// botAPI is the subset of *tgbotapi.BotAPI the adapter uses.
type botAPI interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TextMessage is an inbound chat message carrying text.
type TextMessage struct {
	ConversationID int64
	Text           string
	Sender         string
	MessageID      int
	SentAt         time.Time
}

// TextHandler receives inbound text messages. It is called from the
// receive loop goroutine, one message at a time.
type TextHandler func(msg TextMessage)

// Stats is a snapshot of adapter counters.
type Stats struct {
	Received   int64 `json:"received"`
	Ignored    int64 `json:"ignored"`
	Sent       int64 `json:"sent"`
	SendErrors int64 `json:"send_errors"`
}

// Adapter owns the Telegram client lifecycle.
//
// Thread Safety:
//   - Send may be called concurrently with the receive loop.
type Adapter struct {
	bot     botAPI
	cfg     config.TelegramConfig
	logger  Logger
	botName string

	handlerMu sync.RWMutex
	onText    TextHandler

	mu      sync.Mutex
	started bool
	running atomic.Bool

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once

	received   atomic.Int64
	ignored    atomic.Int64
	sent       atomic.Int64
	sendErrors atomic.Int64
}

// Connect verifies the bot token against the Bot API and returns an
// Adapter ready to Start.
//
// The library's internal logger is redirected to logger.
func Connect(cfg config.TelegramConfig, logger Logger) (*Adapter, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	//nolint:errcheck // only fails on a nil logger
	tgbotapi.SetLogger(botLogger{logger: logger, debug: cfg.Debug})

	endpoint := cfg.APIEndpoint
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}

	// Long polls hold the request open for up to poll_timeout.
	client := &http.Client{
		Timeout: time.Duration(cfg.PollTimeout+cfg.RequestTimeout) * time.Second,
	}

	bot, err := tgbotapi.NewBotAPIWithClient(cfg.Token, endpoint, client)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	bot.Debug = cfg.Debug

	a := newAdapter(bot, cfg, logger)
	a.botName = bot.Self.UserName
	logger.Info("telegram bot authorised", "bot", a.botName)

	return a, nil
}

func newAdapter(bot botAPI, cfg config.TelegramConfig, logger Logger) *Adapter {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Adapter{
		bot:    bot,
		cfg:    cfg,
		logger: logger,
	}
}

// OnTextMessageReceived registers the callback for inbound text messages.
// Register before Start.
func (a *Adapter) OnTextMessageReceived(handler TextHandler) {
	a.handlerMu.Lock()
	a.onText = handler
	a.handlerMu.Unlock()
}

// Start opens the long-poll receive loop. It returns once the loop is running.
// The loop ends when ctx is cancelled or Stop is called.
func (a *Adapter) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.started {
		return ErrAlreadyStarted
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	a.started = true

	a.ctx, a.cancel = context.WithCancel(ctx)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = a.cfg.PollTimeout
	updates := a.bot.GetUpdatesChan(u)

	a.running.Store(true)
	a.wg.Add(1)
	go a.receiveLoop(updates)

	a.logger.Info("telegram receive loop started", "poll_timeout", a.cfg.PollTimeout)
	return nil
}

func (a *Adapter) receiveLoop(updates tgbotapi.UpdatesChannel) {
	defer a.wg.Done()
	defer a.running.Store(false)

	for {
		select {
		case <-a.ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				a.logger.Warn("telegram update channel closed")
				return
			}
			a.handleUpdate(update)
		}
	}
}

// handleUpdate filters an update down to text messages and dispatches it.
func (a *Adapter) handleUpdate(update tgbotapi.Update) {
	msg := update.Message
	if msg == nil || msg.Chat == nil || msg.Text == "" {
		a.ignored.Add(1)
		a.logger.Debug("telegram update ignored", "update_id", update.UpdateID)
		return
	}

	a.handlerMu.RLock()
	handler := a.onText
	a.handlerMu.RUnlock()
	if handler == nil {
		a.ignored.Add(1)
		return
	}

	a.received.Add(1)

	tm := TextMessage{
		ConversationID: msg.Chat.ID,
		Text:           msg.Text,
		MessageID:      msg.MessageID,
		SentAt:         time.Unix(int64(msg.Date), 0).UTC(),
	}
	if msg.From != nil {
		tm.Sender = msg.From.String()
	}

	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("telegram handler panic recovered",
				"conversation_id", tm.ConversationID,
				"panic", r,
			)
		}
	}()
	handler(tm)
}

// Send delivers text to a conversation. Failures are returned, not retried.
// If ctx ends first, Send returns without waiting for the API call.
func (a *Adapter) Send(ctx context.Context, conversationID int64, text string) error {
	if text == "" {
		return ErrEmptyText
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrSendFailed, err)
	}

	errc := make(chan error, 1)
	go func() {
		_, err := a.bot.Send(tgbotapi.NewMessage(conversationID, text))
		errc <- err
	}()

	select {
	case err := <-errc:
		if err != nil {
			a.sendErrors.Add(1)
			return fmt.Errorf("%w: chat %d: %w", ErrSendFailed, conversationID, err)
		}
		a.sent.Add(1)
		return nil
	case <-ctx.Done():
		a.sendErrors.Add(1)
		return fmt.Errorf("%w: chat %d: %w", ErrSendFailed, conversationID, ctx.Err())
	}
}

// Stop ends the receive loop and waits for it to exit. Safe to call more than once.
func (a *Adapter) Stop() {
	a.stopOnce.Do(func() {
		a.mu.Lock()
		started := a.started
		cancel := a.cancel
		a.mu.Unlock()

		if !started {
			return
		}

		cancel()
		a.bot.StopReceivingUpdates()
		a.wg.Wait()
		a.logger.Info("telegram receive loop stopped")
	})
}

// IsRunning reports whether the receive loop is active.
func (a *Adapter) IsRunning() bool {
	return a.running.Load()
}

// HealthCheck reports whether the receive loop is active.
func (a *Adapter) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("telegram health check: %w", err)
	}
	if !a.IsRunning() {
		return ErrNotRunning
	}
	return nil
}

// BotName returns the bot's username as reported by the API.
func (a *Adapter) BotName() string {
	return a.botName
}

// Stats returns a snapshot of the adapter counters.
func (a *Adapter) Stats() Stats {
	return Stats{
		Received:   a.received.Load(),
		Ignored:    a.ignored.Load(),
		Sent:       a.sent.Load(),
		SendErrors: a.sendErrors.Load(),
	}
}

// botLogger routes the library's Println/Printf output into structured logs.
// Outside debug mode the library only logs polling errors, so records go
// out at warn; in debug mode they are request traces and go out at debug.
type botLogger struct {
	logger Logger
	debug  bool
}

func (l botLogger) Println(v ...interface{}) {
	l.log(strings.TrimSpace(fmt.Sprintln(v...)))
}

func (l botLogger) Printf(format string, v ...interface{}) {
	l.log(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l botLogger) log(msg string) {
	if l.debug {
		l.logger.Debug(msg, "component", "telegram-bot-api")
		return
	}
	l.logger.Warn(msg, "component", "telegram-bot-api")
}
