package monitor

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/polydictions/polydictions/internal/config"
	"github.com/polydictions/polydictions/internal/logger"
	"github.com/polydictions/polydictions/internal/storage"
)

// AlertMonitor evaluates active price alerts against live snapshots and
// fires each at most once.
type AlertMonitor struct {
	store    *storage.Storage
	market   MarketData
	notifier Notifier

	interval      time.Duration
	fetchThrottle *rate.Limiter
	done          chan struct{}
}

// NewAlertMonitor creates the alert evaluation scheduler.
func NewAlertMonitor(store *storage.Storage, market MarketData, notifier Notifier, cfg *config.Config) *AlertMonitor {
	return &AlertMonitor{
		store:         store,
		market:        market,
		notifier:      notifier,
		interval:      cfg.Monitor.AlertCheckInterval,
		fetchThrottle: newThrottle(cfg.Monitor.FetchDelay),
	}
}

// Start launches the scheduler loop. The loop stops when ctx is cancelled.
func (m *AlertMonitor) Start(ctx context.Context) {
	m.done = make(chan struct{})
	go func() {
		defer close(m.done)
		logger.Info("Alert monitor started (interval: %v)", m.interval)

		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				logger.Info("Alert monitor stopped")
				return
			case <-ticker.C:
				m.runCycle(ctx)
			}
		}
	}()
}

// Stop waits for the loop goroutine to exit. Cancel the Start context first.
func (m *AlertMonitor) Stop() {
	if m.done != nil {
		<-m.done
	}
}

// runCycle evaluates all active alerts, issuing one snapshot fetch per
// distinct slug. Errors on one slug never block the others.
func (m *AlertMonitor) runCycle(ctx context.Context) {
	alerts, err := m.store.GetActiveAlerts()
	if err != nil {
		logger.Error("Failed to load active alerts: %v", err)
		return
	}
	if len(alerts) == 0 {
		return
	}

	// Group by slug, preserving first-appearance order.
	bySlug := make(map[string][]storage.ActiveAlert)
	var slugs []string
	for _, a := range alerts {
		slug := a.Alert.EventSlug
		if _, ok := bySlug[slug]; !ok {
			slugs = append(slugs, slug)
		}
		bySlug[slug] = append(bySlug[slug], a)
	}

	for _, slug := range slugs {
		if err := m.fetchThrottle.Wait(ctx); err != nil {
			return
		}
		event, err := m.market.FetchEventBySlug(ctx, slug)
		if err != nil {
			logger.Error("Failed to fetch snapshot for %s: %v", slug, err)
			continue
		}
		if event == nil || len(event.Markets) == 0 {
			logger.Debug("No snapshot for %s, skipping %d alerts", slug, len(bySlug[slug]))
			continue
		}

		prices := event.Markets[0].ParsePrices()
		for _, a := range bySlug[slug] {
			m.evaluate(a, prices)
		}
	}
}

// evaluate fires one alert if its condition holds for the current prices.
func (m *AlertMonitor) evaluate(a storage.ActiveAlert, prices []float64) {
	idx := a.Alert.OutcomeIndex
	if idx < 0 || idx >= len(prices) {
		logger.Warn("Alert %d outcome index %d out of range for %s", a.Alert.ID, idx, a.Alert.EventSlug)
		return
	}

	current := pricePercent(prices[idx])

	var fired bool
	switch a.Alert.Condition {
	case ">":
		fired = current > a.Alert.Threshold
	case "<":
		fired = current < a.Alert.Threshold
	}
	if !fired {
		return
	}

	if err := m.store.MarkAlertTriggered(a.Alert.ID); err != nil {
		logger.Error("Failed to mark alert %d triggered: %v", a.Alert.ID, err)
		return
	}

	text := fmt.Sprintf("<b>Price Alert Triggered!</b>\n\n"+
		"Event: %s\n"+
		"Current price: <b>%.1f%%</b>\n"+
		"Condition: %s %.1f%%\n\n"+
		"https://polymarket.com/event/%s",
		a.Alert.EventSlug, current, a.Alert.Condition, a.Alert.Threshold, a.Alert.EventSlug)
	m.notifier.SendToUser(a.TelegramID, text)

	logger.Info("Alert %d fired for user %d: %s at %.1f%%",
		a.Alert.ID, a.TelegramID, a.Alert.EventSlug, current)
}
