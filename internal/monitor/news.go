package monitor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/polydictions/polydictions/internal/config"
	"github.com/polydictions/polydictions/internal/filter"
	"github.com/polydictions/polydictions/internal/logger"
	"github.com/polydictions/polydictions/internal/storage"
)

const (
	changedPreviewLen = 800
	maxStatusLen      = 4000
)

// NewsMonitor fingerprints watchlisted events' commentary on each user's
// interval and reports content changes.
type NewsMonitor struct {
	store    *storage.Storage
	market   MarketData
	notifier Notifier

	tick         time.Duration
	initialDelay time.Duration
	minInterval  time.Duration

	fetchThrottle *rate.Limiter
	now           func() time.Time

	// lastCheck is process memory only: a restart makes every user due
	// immediately.
	lastCheck map[int64]time.Time
	done      chan struct{}
}

// NewNewsMonitor creates the context-change scheduler.
func NewNewsMonitor(store *storage.Storage, market MarketData, notifier Notifier, cfg *config.Config) *NewsMonitor {
	return &NewsMonitor{
		store:         store,
		market:        market,
		notifier:      notifier,
		tick:          cfg.Monitor.NewsTick,
		initialDelay:  cfg.Monitor.NewsInitialDelay,
		minInterval:   cfg.Monitor.MinNewsInterval,
		fetchThrottle: newThrottle(cfg.Monitor.ContextFetchDelay),
		now:           time.Now,
		lastCheck:     make(map[int64]time.Time),
	}
}

// Start launches the scheduler loop. The loop stops when ctx is cancelled.
func (m *NewsMonitor) Start(ctx context.Context) {
	m.done = make(chan struct{})
	go func() {
		defer close(m.done)
		logger.Info("News monitor started (tick: %v)", m.tick)

		select {
		case <-ctx.Done():
			logger.Info("News monitor stopped")
			return
		case <-time.After(m.initialDelay):
		}

		ticker := time.NewTicker(m.tick)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				logger.Info("News monitor stopped")
				return
			case <-ticker.C:
				m.runCycle(ctx)
			}
		}
	}()
}

// Stop waits for the loop goroutine to exit. Cancel the Start context first.
func (m *NewsMonitor) Stop() {
	if m.done != nil {
		<-m.done
	}
}

// slugStatus is one watched slug's outcome within a user's check.
type slugStatus struct {
	slug    string
	changed bool
	preview string
}

// runCycle checks every due user's watchlist. A user is due when their
// configured interval (bounded below by the minimum) has elapsed since the
// last check.
func (m *NewsMonitor) runCycle(ctx context.Context) {
	users, err := m.store.GetActiveUsers()
	if err != nil {
		logger.Error("Failed to load active users: %v", err)
		return
	}
	if len(users) == 0 {
		return
	}

	watched, err := m.store.GetAllWatchedSlugs()
	if err != nil {
		logger.Error("Failed to load watchlists: %v", err)
		return
	}

	now := m.now()
	for _, user := range users {
		slugs := watched[user.TelegramID]
		if len(slugs) == 0 {
			continue
		}

		interval := user.NewsInterval
		if interval < m.minInterval {
			interval = m.minInterval
		}
		if last, ok := m.lastCheck[user.TelegramID]; ok && now.Sub(last) < interval {
			continue
		}
		m.lastCheck[user.TelegramID] = now

		statuses := m.checkSlugs(ctx, slugs)
		if len(statuses) == 0 {
			continue
		}
		m.notifier.SendToUser(user.TelegramID, m.formatStatus(statuses, interval))
	}
}

// checkSlugs fetches and fingerprints each watched slug. A fetch failure is
// reported as unchanged; it never blocks the remaining slugs.
func (m *NewsMonitor) checkSlugs(ctx context.Context, slugs []string) []slugStatus {
	var statuses []slugStatus
	for _, slug := range slugs {
		if err := m.fetchThrottle.Wait(ctx); err != nil {
			return statuses
		}

		text, err := m.market.FetchMarketContext(ctx, slug)
		if err != nil || text == "" {
			if err != nil {
				logger.Warn("Failed to fetch context for %s: %v", slug, err)
			}
			statuses = append(statuses, slugStatus{slug: slug})
			continue
		}

		changed, err := m.store.UpdateNewsCache(slug, filter.HashContext(text), text)
		if err != nil {
			logger.Error("Failed to update news cache for %s: %v", slug, err)
			statuses = append(statuses, slugStatus{slug: slug})
			continue
		}

		status := slugStatus{slug: slug, changed: changed}
		if changed {
			status.preview = text
			if len(status.preview) > changedPreviewLen {
				status.preview = status.preview[:changedPreviewLen] + "..."
			}
			logger.Info("Context changed for %s", slug)
		}
		statuses = append(statuses, status)
	}
	return statuses
}

// formatStatus builds one aggregated watchlist message: changed entries with
// previews, unchanged entries listed compactly.
func (m *NewsMonitor) formatStatus(statuses []slugStatus, interval time.Duration) string {
	var changed, unchanged []slugStatus
	for _, s := range statuses {
		if s.changed {
			changed = append(changed, s)
		} else {
			unchanged = append(unchanged, s)
		}
	}

	lines := []string{
		"<b>Watchlist Update</b>",
		fmt.Sprintf("<i>Next update in ~%d min</i>\n", int(interval/time.Minute)),
	}

	for _, s := range changed {
		lines = append(lines, fmt.Sprintf("<b>%s</b> - context changed:", s.slug))
		lines = append(lines, s.preview)
		lines = append(lines, fmt.Sprintf("https://polymarket.com/event/%s\n", s.slug))
	}

	if len(unchanged) > 0 {
		if len(unchanged) == 1 {
			lines = append(lines, fmt.Sprintf("No changes: %s", unchanged[0].slug))
		} else {
			names := make([]string, len(unchanged))
			for i, s := range unchanged {
				names[i] = s.slug
			}
			lines = append(lines, fmt.Sprintf("No changes (%d): %s", len(unchanged), strings.Join(names, ", ")))
		}
	}

	text := strings.Join(lines, "\n")
	if len(text) > maxStatusLen {
		text = text[:maxStatusLen-50] + "\n\n<i>...truncated</i>"
	}
	return text
}
