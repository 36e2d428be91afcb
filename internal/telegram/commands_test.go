package telegram

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/polydictions/polydictions/internal/polymarket"
	"github.com/polydictions/polydictions/internal/storage"
)

func newTestHandler(t *testing.T, gamma, grok http.HandlerFunc) (*Handler, *storage.Storage) {
	t.Helper()
	store, err := storage.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test storage: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	if gamma == nil {
		gamma = func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("[]")) }
	}
	if grok == nil {
		grok = func(w http.ResponseWriter, r *http.Request) { http.NotFound(w, r) }
	}
	gammaSrv := httptest.NewServer(gamma)
	t.Cleanup(gammaSrv.Close)
	grokSrv := httptest.NewServer(grok)
	t.Cleanup(grokSrv.Close)

	market := polymarket.NewClient(gammaSrv.URL, grokSrv.URL, 5*time.Second, 5*time.Second)
	return NewHandler(store, market, 3*time.Minute, 5*time.Minute), store
}

func cmdMsg(userID int64, text string) *tgbotapi.Message {
	cmdLen := len(text)
	if i := strings.Index(text, " "); i >= 0 {
		cmdLen = i
	}
	return &tgbotapi.Message{
		Text:     text,
		From:     &tgbotapi.User{ID: userID},
		Chat:     &tgbotapi.Chat{ID: userID},
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: cmdLen}},
	}
}

func handle(t *testing.T, h *Handler, userID int64, text string) []string {
	t.Helper()
	return h.Handle(context.Background(), cmdMsg(userID, text))
}

func TestHandle_Ping(t *testing.T) {
	h, _ := newTestHandler(t, nil, nil)
	replies := handle(t, h, 1, "/ping")
	if len(replies) != 1 || replies[0] != "Pong" {
		t.Errorf("got %v", replies)
	}
}

func TestHandle_StartCreatesUser(t *testing.T) {
	h, store := newTestHandler(t, nil, nil)

	replies := handle(t, h, 42, "/start")
	if len(replies) != 1 || !strings.Contains(replies[0], "now subscribed") {
		t.Errorf("first /start should welcome a new subscriber: %v", replies)
	}
	u, err := store.GetUser(42)
	if err != nil || u == nil {
		t.Fatalf("user not created: %v", err)
	}

	replies = handle(t, h, 42, "/start")
	if !strings.Contains(replies[0], "Welcome back") {
		t.Errorf("second /start should welcome back: %v", replies)
	}
}

func TestHandle_PauseResume(t *testing.T) {
	h, store := newTestHandler(t, nil, nil)
	handle(t, h, 1, "/start")

	replies := handle(t, h, 1, "/pause")
	if !strings.Contains(replies[0], "paused") {
		t.Errorf("pause reply: %v", replies)
	}
	if u, _ := store.GetUser(1); !u.IsPaused {
		t.Error("user not paused")
	}

	// Pausing twice is called out, not an error.
	replies = handle(t, h, 1, "/pause")
	if !strings.Contains(replies[0], "already paused") {
		t.Errorf("double pause reply: %v", replies)
	}

	replies = handle(t, h, 1, "/resume")
	if !strings.Contains(replies[0], "resumed") {
		t.Errorf("resume reply: %v", replies)
	}
	if u, _ := store.GetUser(1); u.IsPaused {
		t.Error("user still paused")
	}

	replies = handle(t, h, 99, "/pause")
	if !strings.Contains(replies[0], "not subscribed") {
		t.Errorf("unknown user pause reply: %v", replies)
	}
}

func TestHandle_Keywords(t *testing.T) {
	h, store := newTestHandler(t, nil, nil)

	replies := handle(t, h, 1, `/keywords BTC, eth, "united states"`)
	if !strings.Contains(replies[0], "Keywords saved") {
		t.Fatalf("set reply: %v", replies)
	}
	kws, _ := store.GetUserKeywords(1)
	if len(kws) != 3 {
		t.Errorf("stored keywords: %v", kws)
	}

	replies = handle(t, h, 1, "/keywords")
	if !strings.Contains(replies[0], "btc") {
		t.Errorf("list reply should show current keywords: %v", replies)
	}

	replies = handle(t, h, 1, "/keywords clear")
	if !strings.Contains(replies[0], "removed") {
		t.Errorf("clear reply: %v", replies)
	}
	kws, _ = store.GetUserKeywords(1)
	if len(kws) != 0 {
		t.Errorf("keywords not cleared: %v", kws)
	}

	replies = handle(t, h, 1, "/keywords x")
	if !strings.Contains(replies[0], "Invalid keywords") {
		t.Errorf("invalid keyword reply: %v", replies)
	}
}

func TestHandle_Category(t *testing.T) {
	h, store := newTestHandler(t, nil, nil)

	replies := handle(t, h, 1, "/category crypto sports")
	if !strings.Contains(replies[0], "Category filters set") {
		t.Fatalf("set reply: %v", replies)
	}
	cats, _ := store.GetUserCategories(1)
	if len(cats) != 2 {
		t.Errorf("stored categories: %v", cats)
	}

	replies = handle(t, h, 1, "/category gardening")
	if !strings.Contains(replies[0], "Invalid categories") {
		t.Errorf("unknown category reply: %v", replies)
	}

	replies = handle(t, h, 1, "/categories")
	if !strings.Contains(replies[0], "crypto") {
		t.Errorf("categories listing: %v", replies)
	}
}

func TestHandle_WatchUnwatch(t *testing.T) {
	commentary := strings.Repeat("Detailed market commentary with substance. ", 3)
	grok := func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(commentary))
	}
	h, store := newTestHandler(t, nil, grok)

	replies := handle(t, h, 1, "/watch https://polymarket.com/event/btc-price-2025")
	if len(replies) != 2 {
		t.Fatalf("watch should reply twice (ack + context): %v", replies)
	}
	if !strings.Contains(replies[0], "Added") {
		t.Errorf("ack reply: %v", replies[0])
	}
	if !strings.Contains(replies[1], "Market Context") {
		t.Errorf("context reply: %v", replies[1])
	}

	slugs, _ := store.GetUserWatchlist(1)
	if len(slugs) != 1 || slugs[0] != "btc-price-2025" {
		t.Errorf("watchlist: %v", slugs)
	}
	// The first fetch pre-caches the fingerprint.
	if cached, _ := store.GetNewsCache("btc-price-2025"); cached == nil {
		t.Error("context fingerprint not cached")
	}

	replies = handle(t, h, 1, "/watch btc-price-2025")
	if !strings.Contains(replies[0], "already in your watchlist") {
		t.Errorf("duplicate watch reply: %v", replies)
	}

	replies = handle(t, h, 1, "/watchlist")
	if !strings.Contains(replies[0], "btc-price-2025") {
		t.Errorf("watchlist reply: %v", replies)
	}

	replies = handle(t, h, 1, "/unwatch btc-price-2025")
	if !strings.Contains(replies[0], "Removed") {
		t.Errorf("unwatch reply: %v", replies)
	}
	replies = handle(t, h, 1, "/unwatch btc-price-2025")
	if !strings.Contains(replies[0], "not found") {
		t.Errorf("missing unwatch reply: %v", replies)
	}

	replies = handle(t, h, 1, "/watch !!!")
	if !strings.Contains(replies[0], "Invalid link") {
		t.Errorf("invalid link reply: %v", replies)
	}
}

func TestHandle_Interval(t *testing.T) {
	h, store := newTestHandler(t, nil, nil)

	replies := handle(t, h, 1, "/interval 10")
	if !strings.Contains(replies[0], "10 minutes") {
		t.Errorf("set reply: %v", replies)
	}
	if u, _ := store.GetUser(1); u.NewsInterval != 10*time.Minute {
		t.Errorf("interval: got %v", u.NewsInterval)
	}

	replies = handle(t, h, 1, "/interval 1")
	if !strings.Contains(replies[0], "Minimum interval is 3") {
		t.Errorf("below-minimum reply: %v", replies)
	}

	replies = handle(t, h, 1, "/interval abc")
	if !strings.Contains(replies[0], "valid number") {
		t.Errorf("non-numeric reply: %v", replies)
	}
}

func TestHandle_Alerts(t *testing.T) {
	h, store := newTestHandler(t, nil, nil)

	replies := handle(t, h, 1, "/alert btc-price-2025 > 70")
	if !strings.Contains(replies[0], "Alert set") {
		t.Fatalf("set reply: %v", replies)
	}
	alerts, _ := store.GetUserAlerts(1)
	if len(alerts) != 1 || alerts[0].Threshold != 70 {
		t.Errorf("stored alerts: %+v", alerts)
	}

	replies = handle(t, h, 1, "/alert btc-price-2025 > 70")
	if !strings.Contains(replies[0], "already exists") {
		t.Errorf("duplicate reply: %v", replies)
	}

	replies = handle(t, h, 1, "/alert btc-price-2025 >= 70")
	if !strings.Contains(replies[0], "Invalid input") {
		t.Errorf("bad condition reply: %v", replies)
	}

	replies = handle(t, h, 1, "/alerts")
	if !strings.Contains(replies[0], "btc-price-2025") {
		t.Errorf("list reply: %v", replies)
	}

	replies = handle(t, h, 1, "/rmalert 1")
	if !strings.Contains(replies[0], "Alert removed") {
		t.Errorf("remove reply: %v", replies)
	}
	replies = handle(t, h, 1, "/rmalert 1")
	if !strings.Contains(replies[0], "not found") {
		t.Errorf("missing remove reply: %v", replies)
	}
}

func TestHandle_Deal(t *testing.T) {
	gamma := func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("slug") != "btc-price-2025" {
			_, _ = w.Write([]byte("[]"))
			return
		}
		_, _ = w.Write([]byte(`[{
			"id": "1", "slug": "btc-price-2025", "title": "Will BTC reach $100k?",
			"volume": 5000,
			"markets": [{"question": "Will BTC reach $100k?",
				"outcomes": "[\"Yes\", \"No\"]", "outcomePrices": "[\"0.62\", \"0.38\"]"}]
		}]`))
	}
	commentary := strings.Repeat("Detailed market commentary with substance. ", 3)
	grok := func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(commentary))
	}
	h, _ := newTestHandler(t, gamma, grok)

	replies := handle(t, h, 1, "/deal https://polymarket.com/event/btc-price-2025")
	if len(replies) != 2 {
		t.Fatalf("deal should reply twice (event + context): %v", replies)
	}
	if !strings.Contains(replies[0], "Will BTC reach $100k?") {
		t.Errorf("event reply: %v", replies[0])
	}
	if !strings.Contains(replies[1], "Market Context") {
		t.Errorf("context reply: %v", replies[1])
	}

	replies = handle(t, h, 1, "/deal unknown-event")
	if !strings.Contains(replies[0], "Event not found") {
		t.Errorf("unknown event reply: %v", replies)
	}
}

func TestHandle_IgnoresNonCommands(t *testing.T) {
	h, _ := newTestHandler(t, nil, nil)

	msg := &tgbotapi.Message{Text: "hello", From: &tgbotapi.User{ID: 1}}
	if replies := h.Handle(context.Background(), msg); replies != nil {
		t.Errorf("plain text should be ignored, got %v", replies)
	}
	if replies := h.Handle(context.Background(), cmdMsg(1, "/unknowncmd")); replies != nil {
		t.Errorf("unknown command should be ignored, got %v", replies)
	}
}
