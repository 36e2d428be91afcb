package monitor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/polydictions/polydictions/internal/models"
	"github.com/polydictions/polydictions/internal/storage"
)

type fakeMarket struct {
	recent     []models.Event
	recentErr  error
	bySlug     map[string]*models.Event
	contexts   map[string]string
	contextErr error
}

func (f *fakeMarket) FetchRecentEvents(_ context.Context, limit int) ([]models.Event, error) {
	if f.recentErr != nil {
		return nil, f.recentErr
	}
	if len(f.recent) > limit {
		return f.recent[:limit], nil
	}
	return f.recent, nil
}

func (f *fakeMarket) FetchEventBySlug(_ context.Context, slug string) (*models.Event, error) {
	return f.bySlug[slug], nil
}

func (f *fakeMarket) FetchMarketContext(_ context.Context, slug string) (string, error) {
	if f.contextErr != nil {
		return "", f.contextErr
	}
	return f.contexts[slug], nil
}

type fakeNotifier struct {
	userMsgs    map[int64][]string
	channelMsgs []string
	hasChannel  bool
}

func newFakeNotifier(hasChannel bool) *fakeNotifier {
	return &fakeNotifier{userMsgs: make(map[int64][]string), hasChannel: hasChannel}
}

func (f *fakeNotifier) SendToUser(userID int64, text string) bool {
	f.userMsgs[userID] = append(f.userMsgs[userID], text)
	return true
}

func (f *fakeNotifier) SendToChannel(text string) bool {
	if !f.hasChannel {
		return false
	}
	f.channelMsgs = append(f.channelMsgs, text)
	return true
}

func newTestStorage(t *testing.T) *storage.Storage {
	t.Helper()
	s, err := storage.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test storage: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

var testNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func testEvent(id, slug string, age time.Duration, volume float64) models.Event {
	return models.Event{
		ID:        id,
		Slug:      slug,
		Title:     "Event " + id,
		CreatedAt: testNow.Add(-age).Format(time.RFC3339),
		Volume:    volume,
		Markets: []models.Market{{
			Question:      "Will it happen?",
			Outcomes:      `["Yes", "No"]`,
			OutcomePrices: `["0.50", "0.50"]`,
		}},
	}
}

func newTestEventMonitor(store *storage.Storage, market MarketData, notifier Notifier) *EventMonitor {
	return &EventMonitor{
		store:          store,
		market:         market,
		notifier:       notifier,
		fetchLimit:     20,
		bootstrapLimit: 100,
		maxAge:         48 * time.Hour,
		maxVolume:      50000,
		maxSeen:        1000,
		maxPosted:      50,
		sendThrottle:   newThrottle(0),
		now:            func() time.Time { return testNow },
	}
}

func TestEventMonitor_BootstrapDoesNotNotify(t *testing.T) {
	store := newTestStorage(t)
	market := &fakeMarket{recent: []models.Event{
		testEvent("e1", "slug-1", time.Hour, 100),
		testEvent("e2", "slug-2", time.Hour, 100),
	}}
	notifier := newFakeNotifier(true)
	if _, _, err := store.GetOrCreateUser(1); err != nil {
		t.Fatalf("GetOrCreateUser: %v", err)
	}

	m := newTestEventMonitor(store, market, notifier)
	m.runCycle(context.Background())

	if len(notifier.channelMsgs) != 0 || len(notifier.userMsgs) != 0 {
		t.Error("bootstrap cycle must not notify anyone")
	}
	for _, id := range []string{"e1", "e2"} {
		if seen, _ := store.IsEventSeen(id); !seen {
			t.Errorf("event %s not marked seen during bootstrap", id)
		}
	}
}

func TestEventMonitor_NotifiesOnceAndDeduplicates(t *testing.T) {
	store := newTestStorage(t)
	market := &fakeMarket{recent: []models.Event{testEvent("old", "old-slug", time.Hour, 100)}}
	notifier := newFakeNotifier(true)
	if _, _, err := store.GetOrCreateUser(7); err != nil {
		t.Fatalf("GetOrCreateUser: %v", err)
	}

	m := newTestEventMonitor(store, market, notifier)
	m.runCycle(context.Background()) // bootstrap

	market.recent = append([]models.Event{testEvent("fresh", "fresh-slug", time.Hour, 100)}, market.recent...)
	m.runCycle(context.Background())

	if len(notifier.userMsgs[7]) != 1 {
		t.Fatalf("user got %d messages, want 1", len(notifier.userMsgs[7]))
	}
	if !strings.Contains(notifier.userMsgs[7][0], "Event fresh") {
		t.Errorf("unexpected notification: %q", notifier.userMsgs[7][0])
	}
	if len(notifier.channelMsgs) != 1 {
		t.Fatalf("channel got %d messages, want 1", len(notifier.channelMsgs))
	}

	// Same feed again: no repeats.
	m.runCycle(context.Background())
	if len(notifier.userMsgs[7]) != 1 || len(notifier.channelMsgs) != 1 {
		t.Error("already-seen event was notified again")
	}

	posted, err := store.GetPostedEvents(10)
	if err != nil {
		t.Fatalf("GetPostedEvents: %v", err)
	}
	if len(posted) != 1 || posted[0].EventID != "fresh" {
		t.Errorf("posted log: got %+v", posted)
	}
}

func TestEventMonitor_SkipsOldAndHighVolume(t *testing.T) {
	store := newTestStorage(t)
	market := &fakeMarket{recent: []models.Event{testEvent("seed", "seed-slug", time.Hour, 100)}}
	notifier := newFakeNotifier(true)
	if _, _, err := store.GetOrCreateUser(7); err != nil {
		t.Fatalf("GetOrCreateUser: %v", err)
	}

	m := newTestEventMonitor(store, market, notifier)
	m.runCycle(context.Background()) // bootstrap

	market.recent = []models.Event{
		testEvent("too-old", "a", 72*time.Hour, 100),
		testEvent("too-big", "b", time.Hour, 200000),
		{ID: "no-date", Slug: "c", Title: "Event no-date"},
	}
	m.runCycle(context.Background())

	if len(notifier.userMsgs[7]) != 0 || len(notifier.channelMsgs) != 0 {
		t.Error("listing artifacts must not be notified")
	}
	for _, id := range []string{"too-old", "too-big", "no-date"} {
		if seen, _ := store.IsEventSeen(id); !seen {
			t.Errorf("event %s should be marked seen regardless", id)
		}
	}
}

func TestEventMonitor_AppliesUserFilters(t *testing.T) {
	store := newTestStorage(t)
	market := &fakeMarket{recent: []models.Event{testEvent("seed", "seed-slug", time.Hour, 100)}}
	notifier := newFakeNotifier(false)

	for _, id := range []int64{1, 2, 3} {
		if _, _, err := store.GetOrCreateUser(id); err != nil {
			t.Fatalf("GetOrCreateUser(%d): %v", id, err)
		}
	}
	if err := store.SetUserKeywords(1, []string{"bitcoin"}); err != nil {
		t.Fatalf("SetUserKeywords: %v", err)
	}
	if err := store.SetUserKeywords(2, []string{"election"}); err != nil {
		t.Fatalf("SetUserKeywords: %v", err)
	}
	if _, err := store.SetUserPaused(3, true); err != nil {
		t.Fatalf("SetUserPaused: %v", err)
	}

	m := newTestEventMonitor(store, market, notifier)
	m.runCycle(context.Background()) // bootstrap

	e := testEvent("btc-ev", "btc-100k", time.Hour, 100)
	e.Title = "Will Bitcoin reach $100k?"
	market.recent = []models.Event{e}
	m.runCycle(context.Background())

	if len(notifier.userMsgs[1]) != 1 {
		t.Errorf("keyword-matching user got %d messages, want 1", len(notifier.userMsgs[1]))
	}
	if len(notifier.userMsgs[2]) != 0 {
		t.Error("non-matching user must not be notified")
	}
	if len(notifier.userMsgs[3]) != 0 {
		t.Error("paused user must not be notified")
	}
}

func newTestAlertMonitor(store *storage.Storage, market MarketData, notifier Notifier) *AlertMonitor {
	return &AlertMonitor{
		store:         store,
		market:        market,
		notifier:      notifier,
		fetchThrottle: newThrottle(0),
	}
}

func snapshotWithPrices(slug, prices string) *models.Event {
	return &models.Event{
		ID:   "snap-" + slug,
		Slug: slug,
		Markets: []models.Market{{
			Outcomes:      `["Yes", "No"]`,
			OutcomePrices: prices,
		}},
	}
}

func TestAlertMonitor_FiresOnce(t *testing.T) {
	store := newTestStorage(t)
	market := &fakeMarket{bySlug: map[string]*models.Event{
		"btc-price-2025": snapshotWithPrices("btc-price-2025", `["0.75", "0.25"]`),
	}}
	notifier := newFakeNotifier(false)

	if _, _, err := store.GetOrCreateUser(9); err != nil {
		t.Fatalf("GetOrCreateUser: %v", err)
	}
	if _, err := store.AddAlert(9, models.PriceAlert{
		EventSlug: "btc-price-2025", Condition: ">", Threshold: 70,
	}); err != nil {
		t.Fatalf("AddAlert: %v", err)
	}

	m := newTestAlertMonitor(store, market, notifier)
	m.runCycle(context.Background())

	if len(notifier.userMsgs[9]) != 1 {
		t.Fatalf("got %d notifications, want 1", len(notifier.userMsgs[9]))
	}
	msg := notifier.userMsgs[9][0]
	if !strings.Contains(msg, "75.0%") {
		t.Errorf("notification should contain the current price: %q", msg)
	}
	if !strings.Contains(msg, "btc-price-2025") {
		t.Errorf("notification should contain the slug: %q", msg)
	}

	// Price drops back below the threshold: no re-fire, alert stays triggered.
	market.bySlug["btc-price-2025"] = snapshotWithPrices("btc-price-2025", `["0.60", "0.40"]`)
	m.runCycle(context.Background())
	market.bySlug["btc-price-2025"] = snapshotWithPrices("btc-price-2025", `["0.80", "0.20"]`)
	m.runCycle(context.Background())

	if len(notifier.userMsgs[9]) != 1 {
		t.Error("triggered alert fired again")
	}
	alerts, _ := store.GetUserAlerts(9)
	if !alerts[0].IsTriggered {
		t.Error("alert should remain triggered")
	}
}

func TestAlertMonitor_BelowCondition(t *testing.T) {
	store := newTestStorage(t)
	market := &fakeMarket{bySlug: map[string]*models.Event{
		"election": snapshotWithPrices("election", `["0.25", "0.75"]`),
	}}
	notifier := newFakeNotifier(false)

	if _, _, err := store.GetOrCreateUser(9); err != nil {
		t.Fatalf("GetOrCreateUser: %v", err)
	}
	if _, err := store.AddAlert(9, models.PriceAlert{
		EventSlug: "election", Condition: "<", Threshold: 30,
	}); err != nil {
		t.Fatalf("AddAlert: %v", err)
	}

	m := newTestAlertMonitor(store, market, notifier)
	m.runCycle(context.Background())

	if len(notifier.userMsgs[9]) != 1 {
		t.Fatalf("got %d notifications, want 1", len(notifier.userMsgs[9]))
	}
	if !strings.Contains(notifier.userMsgs[9][0], "25.0%") {
		t.Errorf("unexpected notification: %q", notifier.userMsgs[9][0])
	}
}

func TestAlertMonitor_SkipsMissingSnapshotAndBadIndex(t *testing.T) {
	store := newTestStorage(t)
	market := &fakeMarket{bySlug: map[string]*models.Event{
		"has-snapshot": snapshotWithPrices("has-snapshot", `["0.90", "0.10"]`),
	}}
	notifier := newFakeNotifier(false)

	if _, _, err := store.GetOrCreateUser(9); err != nil {
		t.Fatalf("GetOrCreateUser: %v", err)
	}
	for _, a := range []models.PriceAlert{
		{EventSlug: "no-snapshot", Condition: ">", Threshold: 10},
		{EventSlug: "has-snapshot", Condition: ">", Threshold: 10, OutcomeIndex: 5},
		{EventSlug: "has-snapshot", Condition: ">", Threshold: 10},
	} {
		if _, err := store.AddAlert(9, a); err != nil {
			t.Fatalf("AddAlert: %v", err)
		}
	}

	m := newTestAlertMonitor(store, market, notifier)
	m.runCycle(context.Background())

	// Only the well-formed alert on the available snapshot fires.
	if len(notifier.userMsgs[9]) != 1 {
		t.Fatalf("got %d notifications, want 1", len(notifier.userMsgs[9]))
	}

	active, _ := store.GetActiveAlerts()
	if len(active) != 2 {
		t.Errorf("skipped alerts should stay active, got %d", len(active))
	}
}

func newTestNewsMonitor(store *storage.Storage, market MarketData, notifier Notifier) *NewsMonitor {
	return &NewsMonitor{
		store:         store,
		market:        market,
		notifier:      notifier,
		minInterval:   3 * time.Minute,
		fetchThrottle: newThrottle(0),
		now:           func() time.Time { return testNow },
		lastCheck:     make(map[int64]time.Time),
	}
}

func TestNewsMonitor_FirstSightingIsSilentChange(t *testing.T) {
	store := newTestStorage(t)
	market := &fakeMarket{contexts: map[string]string{
		"watched-event": "Initial commentary about the market with plenty of substance.",
	}}
	notifier := newFakeNotifier(false)

	if _, _, err := store.GetOrCreateUser(5); err != nil {
		t.Fatalf("GetOrCreateUser: %v", err)
	}
	if _, err := store.AddToWatchlist(5, "watched-event"); err != nil {
		t.Fatalf("AddToWatchlist: %v", err)
	}

	m := newTestNewsMonitor(store, market, notifier)
	m.runCycle(context.Background())

	if len(notifier.userMsgs[5]) != 1 {
		t.Fatalf("got %d messages, want 1 status message", len(notifier.userMsgs[5]))
	}
	msg := notifier.userMsgs[5][0]
	if strings.Contains(msg, "context changed") {
		t.Errorf("first sighting must not report a change: %q", msg)
	}
	if !strings.Contains(msg, "No changes") {
		t.Errorf("status should list the slug as unchanged: %q", msg)
	}
}

func TestNewsMonitor_ReportsSubstantiveChange(t *testing.T) {
	store := newTestStorage(t)
	market := &fakeMarket{contexts: map[string]string{
		"watched-event": "Initial commentary about the market with plenty of substance.",
	}}
	notifier := newFakeNotifier(false)

	if _, _, err := store.GetOrCreateUser(5); err != nil {
		t.Fatalf("GetOrCreateUser: %v", err)
	}
	if _, err := store.AddToWatchlist(5, "watched-event"); err != nil {
		t.Fatalf("AddToWatchlist: %v", err)
	}

	m := newTestNewsMonitor(store, market, notifier)
	m.runCycle(context.Background()) // caches silently

	// Identical text on the next due check: still no change.
	m.lastCheck = make(map[int64]time.Time)
	m.runCycle(context.Background())
	if strings.Contains(notifier.userMsgs[5][1], "context changed") {
		t.Error("identical commentary reported as changed")
	}

	market.contexts["watched-event"] = "A court ruling has upended the market and odds collapsed overnight."
	m.lastCheck = make(map[int64]time.Time)
	m.runCycle(context.Background())

	msg := notifier.userMsgs[5][2]
	if !strings.Contains(msg, "context changed") {
		t.Errorf("substantive change not reported: %q", msg)
	}
	if !strings.Contains(msg, "court ruling") {
		t.Errorf("status should include the new preview: %q", msg)
	}
}

func TestNewsMonitor_RespectsUserInterval(t *testing.T) {
	store := newTestStorage(t)
	market := &fakeMarket{contexts: map[string]string{
		"watched-event": "Commentary text long enough to pass any length checks easily.",
	}}
	notifier := newFakeNotifier(false)

	if _, _, err := store.GetOrCreateUser(5); err != nil {
		t.Fatalf("GetOrCreateUser: %v", err)
	}
	if _, err := store.SetUserInterval(5, 10*time.Minute); err != nil {
		t.Fatalf("SetUserInterval: %v", err)
	}
	if _, err := store.AddToWatchlist(5, "watched-event"); err != nil {
		t.Fatalf("AddToWatchlist: %v", err)
	}

	m := newTestNewsMonitor(store, market, notifier)

	clock := testNow
	m.now = func() time.Time { return clock }

	m.runCycle(context.Background())
	if len(notifier.userMsgs[5]) != 1 {
		t.Fatalf("first cycle: got %d messages, want 1", len(notifier.userMsgs[5]))
	}

	// 5 minutes later: not yet due for a 10-minute interval.
	clock = testNow.Add(5 * time.Minute)
	m.runCycle(context.Background())
	if len(notifier.userMsgs[5]) != 1 {
		t.Error("user checked before their interval elapsed")
	}

	clock = testNow.Add(11 * time.Minute)
	m.runCycle(context.Background())
	if len(notifier.userMsgs[5]) != 2 {
		t.Errorf("due user not checked: got %d messages", len(notifier.userMsgs[5]))
	}
}

func TestNewsMonitor_FetchErrorIsUnchanged(t *testing.T) {
	store := newTestStorage(t)
	market := &fakeMarket{contextErr: errors.New("upstream timeout")}
	notifier := newFakeNotifier(false)

	if _, _, err := store.GetOrCreateUser(5); err != nil {
		t.Fatalf("GetOrCreateUser: %v", err)
	}
	if _, err := store.AddToWatchlist(5, "watched-event"); err != nil {
		t.Fatalf("AddToWatchlist: %v", err)
	}

	m := newTestNewsMonitor(store, market, notifier)
	m.runCycle(context.Background())

	if len(notifier.userMsgs[5]) != 1 {
		t.Fatalf("got %d messages, want 1", len(notifier.userMsgs[5]))
	}
	if strings.Contains(notifier.userMsgs[5][0], "context changed") {
		t.Error("fetch failure must be reported as unchanged")
	}
}

func TestNewsMonitor_TruncatesLongStatus(t *testing.T) {
	store := newTestStorage(t)
	market := &fakeMarket{contexts: map[string]string{}}
	notifier := newFakeNotifier(false)

	if _, _, err := store.GetOrCreateUser(5); err != nil {
		t.Fatalf("GetOrCreateUser: %v", err)
	}
	for i := 0; i < 8; i++ {
		slug := fmt.Sprintf("watched-event-%d", i)
		if _, err := store.AddToWatchlist(5, slug); err != nil {
			t.Fatalf("AddToWatchlist: %v", err)
		}
		market.contexts[slug] = fmt.Sprintf("Seed commentary %d with enough substance to cache.", i)
	}

	m := newTestNewsMonitor(store, market, notifier)
	m.runCycle(context.Background()) // cache everything

	for i := 0; i < 8; i++ {
		slug := fmt.Sprintf("watched-event-%d", i)
		market.contexts[slug] = fmt.Sprintf("Changed %d: %s", i, strings.Repeat("fresh analysis ", 80))
	}
	m.lastCheck = make(map[int64]time.Time)
	m.runCycle(context.Background())

	msg := notifier.userMsgs[5][1]
	if len(msg) > maxStatusLen {
		t.Errorf("status message length %d exceeds cap %d", len(msg), maxStatusLen)
	}
	if !strings.Contains(msg, "truncated") {
		t.Error("oversized status should carry a truncation marker")
	}
}
