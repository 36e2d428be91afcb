package monitor

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/polydictions/polydictions/internal/config"
	"github.com/polydictions/polydictions/internal/filter"
	"github.com/polydictions/polydictions/internal/logger"
	"github.com/polydictions/polydictions/internal/models"
	"github.com/polydictions/polydictions/internal/storage"
	"github.com/polydictions/polydictions/internal/telegram"
)

// EventMonitor discovers newly listed events and notifies matching users.
type EventMonitor struct {
	store    *storage.Storage
	market   MarketData
	notifier Notifier

	interval       time.Duration
	fetchLimit     int
	bootstrapLimit int
	maxAge         time.Duration
	maxVolume      float64
	maxSeen        int
	maxPosted      int

	sendThrottle *rate.Limiter
	now          func() time.Time
	done         chan struct{}
}

// NewEventMonitor creates the discovery scheduler.
func NewEventMonitor(store *storage.Storage, market MarketData, notifier Notifier, cfg *config.Config) *EventMonitor {
	return &EventMonitor{
		store:          store,
		market:         market,
		notifier:       notifier,
		interval:       cfg.Monitor.EventCheckInterval,
		fetchLimit:     cfg.Polymarket.FetchLimit,
		bootstrapLimit: cfg.Polymarket.BootstrapLimit,
		maxAge:         cfg.Monitor.NewEventMaxAge,
		maxVolume:      cfg.Monitor.HighVolumeThreshold,
		maxSeen:        cfg.Monitor.MaxSeenEvents,
		maxPosted:      cfg.Monitor.MaxPostedEvents,
		sendThrottle:   newThrottle(cfg.Monitor.SendDelay),
		now:            time.Now,
	}
}

// Start launches the scheduler loop. The loop stops when ctx is cancelled.
func (m *EventMonitor) Start(ctx context.Context) {
	m.done = make(chan struct{})
	go func() {
		defer close(m.done)
		logger.Info("Event monitor started (interval: %v)", m.interval)

		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		m.runCycle(ctx)
		for {
			select {
			case <-ctx.Done():
				logger.Info("Event monitor stopped")
				return
			case <-ticker.C:
				m.runCycle(ctx)
			}
		}
	}()
}

// Stop waits for the loop goroutine to exit. Cancel the Start context first.
func (m *EventMonitor) Stop() {
	if m.done != nil {
		<-m.done
	}
}

// runCycle executes one discovery pass. Errors are logged, never propagated:
// the loop always proceeds to the next tick.
func (m *EventMonitor) runCycle(ctx context.Context) {
	count, err := m.store.SeenEventCount()
	if err != nil {
		logger.Error("Failed to count seen events: %v", err)
		return
	}
	if count == 0 {
		m.bootstrap(ctx)
		return
	}

	events, err := m.market.FetchRecentEvents(ctx, m.fetchLimit)
	if err != nil {
		logger.Error("Failed to fetch recent events: %v", err)
		return
	}

	var seenIDs []string
	var batch []models.Event
	for i := range events {
		event := &events[i]
		if event.ID == "" {
			continue
		}
		seen, err := m.store.IsEventSeen(event.ID)
		if err != nil {
			logger.Error("Failed to check event %s: %v", event.ID, err)
			continue
		}
		if seen {
			continue
		}
		seenIDs = append(seenIDs, event.ID)
		if m.isActuallyNew(event) {
			batch = append(batch, *event)
		}
	}

	if len(seenIDs) > 0 {
		if err := m.store.MarkEventsSeen(seenIDs, m.maxSeen); err != nil {
			logger.Error("Failed to mark events seen: %v", err)
		}
	}

	if len(batch) == 0 {
		logger.Debug("No new events this cycle (%d examined)", len(seenIDs))
		return
	}
	logger.Info("Found %d new events", len(batch))

	m.broadcast(ctx, batch)
	m.notifyUsers(ctx, batch)
}

// bootstrap seeds the dedup set from the recent feed without notifying, so a
// fresh database does not flood users with historical listings.
func (m *EventMonitor) bootstrap(ctx context.Context) {
	events, err := m.market.FetchRecentEvents(ctx, m.bootstrapLimit)
	if err != nil {
		logger.Error("Failed to bootstrap seen events: %v", err)
		return
	}

	ids := make([]string, 0, len(events))
	for i := range events {
		if events[i].ID != "" {
			ids = append(ids, events[i].ID)
		}
	}
	if err := m.store.MarkEventsSeen(ids, m.maxSeen); err != nil {
		logger.Error("Failed to store bootstrap events: %v", err)
		return
	}
	logger.Info("Bootstrapped seen events with %d listings", len(ids))
}

// isActuallyNew filters listing artifacts: an event that first appears in the
// feed while already old or already heavily traded is not news.
func (m *EventMonitor) isActuallyNew(event *models.Event) bool {
	age, ok := event.Age(m.now())
	if !ok || age > m.maxAge {
		return false
	}
	return event.Volume <= m.maxVolume
}

func (m *EventMonitor) broadcast(ctx context.Context, batch []models.Event) {
	for i := range batch {
		event := &batch[i]
		if err := m.sendThrottle.Wait(ctx); err != nil {
			return
		}
		if !m.notifier.SendToChannel("<b>New Event</b>\n\n" + telegram.FormatEvent(event)) {
			continue
		}
		if err := m.store.AddPostedEvent(event, m.maxPosted); err != nil {
			logger.Error("Failed to record posted event %s: %v", event.Slug, err)
		}
	}
}

func (m *EventMonitor) notifyUsers(ctx context.Context, batch []models.Event) {
	users, err := m.store.GetActiveUsers()
	if err != nil {
		logger.Error("Failed to load active users: %v", err)
		return
	}

	for _, user := range users {
		keywords, err := m.store.GetUserKeywords(user.TelegramID)
		if err != nil {
			logger.Error("Failed to load keywords for %d: %v", user.TelegramID, err)
			continue
		}
		categories, err := m.store.GetUserCategories(user.TelegramID)
		if err != nil {
			logger.Error("Failed to load categories for %d: %v", user.TelegramID, err)
			continue
		}

		for i := range batch {
			event := &batch[i]
			if !filter.MatchesKeywords(event, keywords) || !filter.MatchesCategory(event, categories) {
				continue
			}
			if err := m.sendThrottle.Wait(ctx); err != nil {
				return
			}
			m.notifier.SendToUser(user.TelegramID, "<b>New Event</b>\n\n"+telegram.FormatEvent(event))
		}
	}
}
