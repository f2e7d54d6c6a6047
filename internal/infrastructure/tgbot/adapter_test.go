package tgbot

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/nerrad567/telegram-gateway/internal/infrastructure/config"
)

// fakeBot implements botAPI.
type fakeBot struct {
	mu sync.Mutex

	updates    chan tgbotapi.Update
	gotConfig  tgbotapi.UpdateConfig
	sent       []tgbotapi.MessageConfig
	sendErr    error
	block      chan struct{}
	stopCalled int
}

func newFakeBot() *fakeBot {
	return &fakeBot{updates: make(chan tgbotapi.Update, 16)}
}

func (f *fakeBot) GetUpdatesChan(c tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	f.mu.Lock()
	f.gotConfig = c
	f.mu.Unlock()
	return f.updates
}

func (f *fakeBot) StopReceivingUpdates() {
	f.mu.Lock()
	f.stopCalled++
	f.mu.Unlock()
}

func (f *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	block := f.block
	f.mu.Unlock()
	if block != nil {
		<-block
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if mc, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent = append(f.sent, mc)
	}
	return tgbotapi.Message{}, f.sendErr
}

func textUpdate(id int, chatID int64, text string) tgbotapi.Update {
	return tgbotapi.Update{
		UpdateID: id,
		Message: &tgbotapi.Message{
			MessageID: id,
			Date:      1700000000,
			Chat:      &tgbotapi.Chat{ID: chatID, Type: "private"},
			From:      &tgbotapi.User{ID: chatID, UserName: "alice"},
			Text:      text,
		},
	}
}

func testTelegramConfig() config.TelegramConfig {
	return config.TelegramConfig{Token: "123:abc", PollTimeout: 30, RequestTimeout: 10}
}

func startAdapter(t *testing.T, bot *fakeBot) (*Adapter, <-chan TextMessage) {
	t.Helper()

	a := newAdapter(bot, testTelegramConfig(), nil)
	received := make(chan TextMessage, 16)
	a.OnTextMessageReceived(func(msg TextMessage) {
		received <- msg
	})
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(a.Stop)
	return a, received
}

func expectMessage(t *testing.T, ch <-chan TextMessage) TextMessage {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for text message")
		return TextMessage{}
	}
}

func TestStart_DispatchesTextMessages(t *testing.T) {
	bot := newFakeBot()
	a, received := startAdapter(t, bot)

	bot.updates <- textUpdate(1, 999, "hello")

	msg := expectMessage(t, received)
	if msg.ConversationID != 999 || msg.Text != "hello" {
		t.Errorf("message = %+v, want conversation 999 text hello", msg)
	}
	if msg.Sender != "alice" {
		t.Errorf("Sender = %q, want alice", msg.Sender)
	}
	if msg.SentAt.Unix() != 1700000000 {
		t.Errorf("SentAt = %v", msg.SentAt)
	}
	if !a.IsRunning() {
		t.Error("IsRunning() = false")
	}

	bot.mu.Lock()
	timeout := bot.gotConfig.Timeout
	bot.mu.Unlock()
	if timeout != 30 {
		t.Errorf("poll timeout = %d, want 30", timeout)
	}
}

func TestStart_IgnoresNonTextUpdates(t *testing.T) {
	bot := newFakeBot()
	a, received := startAdapter(t, bot)

	photo := textUpdate(2, 1, "")
	photo.Message.Photo = []tgbotapi.PhotoSize{{FileID: "f"}}
	noChat := textUpdate(3, 1, "orphan")
	noChat.Message.Chat = nil

	bot.updates <- tgbotapi.Update{UpdateID: 1} // callback query, edit, etc.
	bot.updates <- photo
	bot.updates <- noChat
	bot.updates <- textUpdate(4, 7, "last")

	// The loop is sequential, so everything before "last" has been handled.
	if msg := expectMessage(t, received); msg.Text != "last" {
		t.Fatalf("first dispatched message = %q, want last", msg.Text)
	}

	stats := a.Stats()
	if stats.Ignored != 3 || stats.Received != 1 {
		t.Errorf("Stats() = %+v, want 3 ignored 1 received", stats)
	}
}

func TestStart_HandlerPanicIsolated(t *testing.T) {
	bot := newFakeBot()
	a := newAdapter(bot, testTelegramConfig(), nil)

	received := make(chan TextMessage, 4)
	a.OnTextMessageReceived(func(msg TextMessage) {
		if msg.Text == "boom" {
			panic("handler exploded")
		}
		received <- msg
	})
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer a.Stop()

	bot.updates <- textUpdate(1, 1, "boom")
	bot.updates <- textUpdate(2, 1, "after")

	if msg := expectMessage(t, received); msg.Text != "after" {
		t.Errorf("got %q, want after", msg.Text)
	}
}

func TestStart_Twice(t *testing.T) {
	bot := newFakeBot()
	a, _ := startAdapter(t, bot)

	if err := a.Start(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second Start() error = %v, want ErrAlreadyStarted", err)
	}
}

func TestStart_CancelledContext(t *testing.T) {
	a := newAdapter(newFakeBot(), testTelegramConfig(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := a.Start(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Start() error = %v, want context.Canceled", err)
	}
}

func TestStop(t *testing.T) {
	bot := newFakeBot()
	a := newAdapter(bot, testTelegramConfig(), nil)
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	a.Stop()
	a.Stop()

	if a.IsRunning() {
		t.Error("IsRunning() = true after Stop")
	}
	bot.mu.Lock()
	calls := bot.stopCalled
	bot.mu.Unlock()
	if calls != 1 {
		t.Errorf("StopReceivingUpdates called %d times, want 1", calls)
	}
	if err := a.HealthCheck(context.Background()); !errors.Is(err, ErrNotRunning) {
		t.Errorf("HealthCheck() = %v, want ErrNotRunning", err)
	}
}

func TestStop_NotStarted(t *testing.T) {
	bot := newFakeBot()
	a := newAdapter(bot, testTelegramConfig(), nil)

	a.Stop()

	if bot.stopCalled != 0 {
		t.Error("StopReceivingUpdates called for an adapter that never started")
	}
}

func TestLoopEndsWhenChannelCloses(t *testing.T) {
	bot := newFakeBot()
	a, _ := startAdapter(t, bot)

	close(bot.updates)

	deadline := time.Now().Add(2 * time.Second)
	for a.IsRunning() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if a.IsRunning() {
		t.Error("loop still running after update channel closed")
	}
}

func TestSend(t *testing.T) {
	bot := newFakeBot()
	a := newAdapter(bot, testTelegramConfig(), nil)

	if err := a.Send(context.Background(), 12345, "Online"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	if len(bot.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(bot.sent))
	}
	if bot.sent[0].ChatID != 12345 || bot.sent[0].Text != "Online" {
		t.Errorf("sent %+v", bot.sent[0])
	}
	if a.Stats().Sent != 1 {
		t.Errorf("Stats().Sent = %d, want 1", a.Stats().Sent)
	}
}

func TestSend_Errors(t *testing.T) {
	t.Run("empty text", func(t *testing.T) {
		a := newAdapter(newFakeBot(), testTelegramConfig(), nil)
		if err := a.Send(context.Background(), 1, ""); !errors.Is(err, ErrEmptyText) {
			t.Errorf("Send() error = %v, want ErrEmptyText", err)
		}
	})

	t.Run("api error", func(t *testing.T) {
		bot := newFakeBot()
		bot.sendErr = &tgbotapi.Error{Code: 403, Message: "Forbidden: bot was blocked by the user"}
		a := newAdapter(bot, testTelegramConfig(), nil)

		err := a.Send(context.Background(), 1, "hi")
		if !errors.Is(err, ErrSendFailed) {
			t.Fatalf("Send() error = %v, want ErrSendFailed", err)
		}
		var apiErr *tgbotapi.Error
		if !errors.As(err, &apiErr) || apiErr.Code != 403 {
			t.Errorf("Send() error = %v, want wrapped API error 403", err)
		}
		if a.Stats().SendErrors != 1 {
			t.Errorf("Stats().SendErrors = %d, want 1", a.Stats().SendErrors)
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		bot := newFakeBot()
		a := newAdapter(bot, testTelegramConfig(), nil)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if err := a.Send(ctx, 1, "hi"); !errors.Is(err, context.Canceled) {
			t.Errorf("Send() error = %v, want context.Canceled", err)
		}
		if len(bot.sent) != 0 {
			t.Error("message sent despite cancelled context")
		}
	})

	t.Run("deadline while blocked", func(t *testing.T) {
		bot := newFakeBot()
		bot.block = make(chan struct{})
		defer close(bot.block)
		a := newAdapter(bot, testTelegramConfig(), nil)

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		if err := a.Send(ctx, 1, "hi"); !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("Send() error = %v, want context.DeadlineExceeded", err)
		}
	})
}

// fakeBotAPIServer serves the Bot API methods Connect and Send use.
func fakeBotAPIServer(t *testing.T, authorised bool) (*httptest.Server, *[]string) {
	t.Helper()

	var mu sync.Mutex
	var sent []string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case !authorised:
			w.Write([]byte(`{"ok":false,"error_code":401,"description":"Unauthorized"}`))
		case strings.HasSuffix(r.URL.Path, "/getMe"):
			w.Write([]byte(`{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"Gateway","username":"gateway_bot"}}`))
		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			if err := r.ParseForm(); err != nil {
				t.Errorf("ParseForm() error = %v", err)
			}
			mu.Lock()
			sent = append(sent, r.PostForm.Get("chat_id")+":"+r.PostForm.Get("text"))
			mu.Unlock()
			w.Write([]byte(`{"ok":true,"result":{"message_id":5,"date":0,"chat":{"id":42,"type":"private"}}}`))
		default:
			w.Write([]byte(`{"ok":true,"result":[]}`))
		}
	}))
	t.Cleanup(srv.Close)

	return srv, &sent
}

func TestConnect(t *testing.T) {
	srv, sent := fakeBotAPIServer(t, true)

	cfg := testTelegramConfig()
	cfg.APIEndpoint = srv.URL + "/bot%s/%s"

	a, err := Connect(cfg, nil)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if a.BotName() != "gateway_bot" {
		t.Errorf("BotName() = %q, want gateway_bot", a.BotName())
	}

	if err := a.Send(context.Background(), 42, "héllo ✓"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if len(*sent) != 1 || (*sent)[0] != "42:héllo ✓" {
		t.Errorf("server saw %v, want [42:héllo ✓]", *sent)
	}
}

func TestConnect_Unauthorised(t *testing.T) {
	srv, _ := fakeBotAPIServer(t, false)

	cfg := testTelegramConfig()
	cfg.APIEndpoint = srv.URL + "/bot%s/%s"

	if _, err := Connect(cfg, nil); !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestBotLogger(t *testing.T) {
	rec := &recordingLogger{}

	botLogger{logger: rec}.Println("Failed to get updates, retrying in 3 seconds...")
	botLogger{logger: rec, debug: true}.Printf("Endpoint: %s", "getMe")

	if len(rec.warns) != 1 || rec.warns[0] != "Failed to get updates, retrying in 3 seconds..." {
		t.Errorf("warns = %v", rec.warns)
	}
	if len(rec.debugs) != 1 || rec.debugs[0] != "Endpoint: getMe" {
		t.Errorf("debugs = %v", rec.debugs)
	}
}

type recordingLogger struct {
	debugs []string
	warns  []string
}

func (l *recordingLogger) Debug(msg string, _ ...any) { l.debugs = append(l.debugs, msg) }
func (l *recordingLogger) Info(string, ...any)        {}
func (l *recordingLogger) Warn(msg string, _ ...any)  { l.warns = append(l.warns, msg) }
func (l *recordingLogger) Error(string, ...any)       {}
