package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/polydictions/polydictions/internal/filter"
	"github.com/polydictions/polydictions/internal/logger"
	"github.com/polydictions/polydictions/internal/models"
	"github.com/polydictions/polydictions/internal/polymarket"
	"github.com/polydictions/polydictions/internal/storage"
)

// Handler implements the bot commands: thin text parsing over the store and
// the market data gateway.
type Handler struct {
	store           *storage.Storage
	market          *polymarket.Client
	minInterval     time.Duration
	defaultInterval time.Duration
}

// NewHandler creates a command handler.
func NewHandler(store *storage.Storage, market *polymarket.Client, minInterval, defaultInterval time.Duration) *Handler {
	return &Handler{
		store:           store,
		market:          market,
		minInterval:     minInterval,
		defaultInterval: defaultInterval,
	}
}

// Handle dispatches one bot command and returns the replies to send, in
// order.
func (h *Handler) Handle(ctx context.Context, msg *tgbotapi.Message) []string {
	if msg.From == nil {
		return nil
	}
	userID := msg.From.ID
	args := strings.TrimSpace(msg.CommandArguments())

	switch msg.Command() {
	case "ping":
		return []string{"Pong"}
	case "start":
		return h.cmdStart(userID)
	case "help":
		return []string{helpText}
	case "pause":
		return h.cmdPause(userID)
	case "resume":
		return h.cmdResume(userID)
	case "keywords":
		return h.cmdKeywords(userID, args)
	case "category":
		return h.cmdCategory(userID, args)
	case "categories":
		return h.cmdCategories()
	case "watch":
		return h.cmdWatch(ctx, userID, args)
	case "unwatch":
		return h.cmdUnwatch(userID, args)
	case "watchlist":
		return h.cmdWatchlist(userID)
	case "interval":
		return h.cmdInterval(userID, args)
	case "alert":
		return h.cmdAlert(userID, args)
	case "alerts":
		return h.cmdAlerts(userID)
	case "rmalert":
		return h.cmdRemoveAlert(userID, args)
	case "deal":
		return h.cmdDeal(ctx, userID, args)
	}
	return nil
}

const helpText = "<b>Polydictions Bot</b>\n\n" +
	"<b>Main Commands:</b>\n" +
	"/deal &lt;link&gt; - Analyze event with Market Context\n" +
	"/start - Subscribe to notifications\n" +
	"/pause - Pause notifications\n" +
	"/resume - Resume notifications\n\n" +
	"<b>Filters:</b>\n" +
	"/keywords - Filter by keywords\n" +
	"/category - Filter by category (crypto, politics, sports)\n" +
	"/categories - Show all categories\n\n" +
	"<b>Watchlist:</b>\n" +
	"/watch &lt;slug&gt; - Add to watchlist\n" +
	"/watchlist - Show watchlist\n" +
	"/unwatch &lt;slug&gt; - Remove from watchlist\n" +
	"/interval &lt;min&gt; - Set update interval\n\n" +
	"<b>Price Alerts:</b>\n" +
	"/alert &lt;slug&gt; &gt; &lt;%&gt; - Set alert\n" +
	"/alerts - Show alerts\n" +
	"/rmalert &lt;#&gt; - Remove alert"

func (h *Handler) cmdStart(userID int64) []string {
	_, created, err := h.store.GetOrCreateUser(userID)
	if err != nil {
		logger.Error("Failed to create user %d: %v", userID, err)
		return []string{"Something went wrong, please try again."}
	}

	text := "<b>Welcome to Polydictions Bot</b>\n\n" +
		"Track and analyze Polymarket events.\n\n" + helpText + "\n\n"
	if created {
		text += "You're now subscribed to new events!"
		logger.Info("New user subscribed: %d", userID)
	} else {
		text += "Welcome back!"
	}
	return []string{text}
}

func (h *Handler) cmdPause(userID int64) []string {
	user, err := h.store.GetUser(userID)
	if err != nil {
		logger.Error("Failed to get user %d: %v", userID, err)
		return []string{"Something went wrong, please try again."}
	}
	if user == nil {
		return []string{"You're not subscribed. Use /start to subscribe."}
	}
	if user.IsPaused {
		return []string{"You're already paused. Use /resume to resume notifications."}
	}
	if _, err := h.store.SetUserPaused(userID, true); err != nil {
		logger.Error("Failed to pause user %d: %v", userID, err)
		return []string{"Something went wrong, please try again."}
	}
	logger.Info("User %d paused notifications", userID)
	return []string{"<b>Notifications paused</b>\n\n" +
		"You won't receive any new event notifications.\n\n" +
		"Use /resume when you want to resume notifications."}
}

func (h *Handler) cmdResume(userID int64) []string {
	user, err := h.store.GetUser(userID)
	if err != nil {
		logger.Error("Failed to get user %d: %v", userID, err)
		return []string{"Something went wrong, please try again."}
	}
	if user == nil {
		return []string{"You're not subscribed. Use /start to subscribe."}
	}
	if !user.IsPaused {
		return []string{"You're not paused. Notifications are already active!"}
	}
	if _, err := h.store.SetUserPaused(userID, false); err != nil {
		logger.Error("Failed to resume user %d: %v", userID, err)
		return []string{"Something went wrong, please try again."}
	}

	keywords, _ := h.store.GetUserKeywords(userID)
	info := ""
	if len(keywords) > 0 {
		info = "\n\nActive filters: " + strings.Join(keywords, ", ")
	}
	logger.Info("User %d resumed notifications", userID)
	return []string{"<b>Notifications resumed</b>\n\n" +
		"You'll receive new event notifications again!" + info}
}

func (h *Handler) cmdKeywords(userID int64, args string) []string {
	if args == "" {
		current, _ := h.store.GetUserKeywords(userID)
		var head string
		if len(current) > 0 {
			head = "<b>Your current keywords:</b>\n" + strings.Join(current, ", ") + "\n\n"
		} else {
			head = "<b>Keyword Filters</b>\n\nCurrently no filters set - you'll receive all events.\n\n"
		}
		return []string{head +
			"<b>How to use:</b>\n" +
			"/keywords btc, eth, election - Set keywords\n" +
			"/keywords clear - Remove all filters\n\n" +
			"<b>Filter options:</b>\n" +
			"• Simple words: btc, eth, sports\n" +
			"• Phrases: \"united states\", \"world cup\"\n" +
			"• OR logic: keywords separated by commas"}
	}

	if strings.EqualFold(args, "clear") {
		if err := h.store.ClearUserKeywords(userID); err != nil {
			logger.Error("Failed to clear keywords for %d: %v", userID, err)
			return []string{"Something went wrong, please try again."}
		}
		return []string{"All keyword filters removed. You'll receive all events."}
	}

	keywords := filter.ParseKeywords(args)
	if err := filter.ValidateKeywords(keywords); err != nil {
		return []string{"Invalid keywords: " + err.Error()}
	}
	if len(keywords) == 0 {
		return []string{"Please provide at least one valid keyword."}
	}

	if _, _, err := h.store.GetOrCreateUser(userID); err != nil {
		logger.Error("Failed to create user %d: %v", userID, err)
		return []string{"Something went wrong, please try again."}
	}
	if err := h.store.SetUserKeywords(userID, keywords); err != nil {
		logger.Error("Failed to set keywords for %d: %v", userID, err)
		return []string{"Something went wrong, please try again."}
	}

	var display []string
	for _, kw := range keywords {
		display = append(display, "  • "+kw)
	}
	logger.Info("User %d set %d keywords", userID, len(keywords))
	return []string{"<b>Keywords saved!</b>\n\n" +
		"You will only receive events matching:\n" + strings.Join(display, "\n") +
		"\n\nUse /keywords clear to remove filters."}
}

func (h *Handler) cmdCategory(userID int64, args string) []string {
	if args == "" {
		current, _ := h.store.GetUserCategories(userID)
		var head string
		if len(current) > 0 {
			head = "<b>Your categories:</b> " + strings.Join(current, ", ") + "\n\n"
		} else {
			head = "<b>No category filters set</b>\n\n"
		}
		return []string{head +
			"<b>Available categories:</b>\n" + strings.Join(filter.AvailableCategories(), ", ") + "\n\n" +
			"<b>Usage:</b>\n/category crypto politics\n/category clear - Remove filters"}
	}

	if strings.EqualFold(args, "clear") {
		if err := h.store.ClearUserCategories(userID); err != nil {
			logger.Error("Failed to clear categories for %d: %v", userID, err)
			return []string{"Something went wrong, please try again."}
		}
		logger.Info("User %d cleared category filters", userID)
		return []string{"Category filters cleared. You'll receive all events."}
	}

	categories := strings.Fields(strings.ToLower(args))
	if err := filter.ValidateCategories(categories); err != nil {
		return []string{"Invalid categories: " + err.Error()}
	}

	if _, _, err := h.store.GetOrCreateUser(userID); err != nil {
		logger.Error("Failed to create user %d: %v", userID, err)
		return []string{"Something went wrong, please try again."}
	}
	if err := h.store.SetUserCategories(userID, categories); err != nil {
		logger.Error("Failed to set categories for %d: %v", userID, err)
		return []string{"Something went wrong, please try again."}
	}

	logger.Info("User %d set categories: %v", userID, categories)
	return []string{"<b>Category filters set!</b>\n\n" +
		"You'll only receive events in:\n" + strings.Join(categories, ", ")}
}

func (h *Handler) cmdCategories() []string {
	var lines []string
	for _, cat := range filter.AvailableCategories() {
		lines = append(lines, "• "+cat)
	}
	return []string{"<b>Available Categories:</b>\n\n" + strings.Join(lines, "\n") +
		"\n\n<b>Usage:</b>\n/category crypto politics"}
}

func (h *Handler) cmdWatch(ctx context.Context, userID int64, args string) []string {
	if args == "" {
		return []string{"<b>Send me a Polymarket link to watch</b>\n\n" +
			"Example:\n/watch https://polymarket.com/event/btc-price-2025"}
	}

	slug := filter.ParseEventURL(args)
	if slug == "" {
		return []string{"Invalid link. Please send a valid Polymarket URL.\n\n" +
			"Example: https://polymarket.com/event/your-event-slug"}
	}

	if _, _, err := h.store.GetOrCreateUser(userID); err != nil {
		logger.Error("Failed to create user %d: %v", userID, err)
		return []string{"Something went wrong, please try again."}
	}

	added, err := h.store.AddToWatchlist(userID, slug)
	if err != nil {
		logger.Error("Failed to add %s to watchlist for %d: %v", slug, userID, err)
		return []string{"Something went wrong, please try again."}
	}
	if !added {
		return []string{fmt.Sprintf("<b>%s</b> is already in your watchlist.", slug)}
	}
	logger.Info("User %d added %s to watchlist", userID, slug)

	replies := []string{fmt.Sprintf("Added <b>%s</b> to your watchlist!\n\nFetching Market Context...", slug)}

	// Pre-cache the commentary so the first scheduled check compares
	// against a real fingerprint instead of reporting a bogus change.
	commentary, err := h.market.FetchMarketContext(ctx, slug)
	if err != nil || commentary == "" {
		if err != nil {
			logger.Error("Failed to fetch context for %s: %v", slug, err)
		}
		return append(replies, "Could not fetch Market Context for this event.")
	}

	if _, err := h.store.UpdateNewsCache(slug, filter.HashContext(commentary), commentary); err != nil {
		logger.Error("Failed to cache context for %s: %v", slug, err)
	}

	return append(replies, fmt.Sprintf("<b>Market Context for %s:</b>\n\n%s", slug, truncate(commentary, 2000)))
}

func (h *Handler) cmdUnwatch(userID int64, args string) []string {
	if args == "" {
		return []string{"Please provide an event slug.\n\nExample:\n/unwatch btc-price-2025"}
	}

	slug := strings.ToLower(strings.TrimSpace(args))
	removed, err := h.store.RemoveFromWatchlist(userID, slug)
	if err != nil {
		logger.Error("Failed to remove %s from watchlist for %d: %v", slug, userID, err)
		return []string{"Something went wrong, please try again."}
	}
	if !removed {
		return []string{"Event not found in your watchlist."}
	}
	logger.Info("User %d removed %s from watchlist", userID, slug)
	return []string{fmt.Sprintf("Removed <b>%s</b> from your watchlist.", slug)}
}

func (h *Handler) cmdWatchlist(userID int64) []string {
	watchlist, err := h.store.GetUserWatchlist(userID)
	if err != nil {
		logger.Error("Failed to get watchlist for %d: %v", userID, err)
		return []string{"Something went wrong, please try again."}
	}
	if len(watchlist) == 0 {
		return []string{"<b>Your Watchlist is empty</b>\n\nAdd events with:\n/watch &lt;event-slug&gt;"}
	}

	lines := []string{"<b>Your Watchlist:</b>\n"}
	for i, slug := range watchlist {
		lines = append(lines, fmt.Sprintf("%d. %s", i+1, slug))
		lines = append(lines, fmt.Sprintf("   https://polymarket.com/event/%s\n", slug))
	}
	lines = append(lines, fmt.Sprintf("\n<b>Total:</b> %d events", len(watchlist)))
	lines = append(lines, "\nUse /unwatch &lt;slug&gt; to remove")
	return []string{strings.Join(lines, "\n")}
}

func (h *Handler) cmdInterval(userID int64, args string) []string {
	minMinutes := int(h.minInterval / time.Minute)

	if args == "" {
		current := int(h.defaultInterval / time.Minute)
		if user, err := h.store.GetUser(userID); err == nil && user != nil {
			current = int(user.NewsInterval / time.Minute)
		}
		return []string{fmt.Sprintf("<b>Update Interval</b>\n\n"+
			"Current: <b>%d minutes</b>\n\n"+
			"<b>Usage:</b>\n/interval &lt;minutes&gt;\n\n"+
			"<b>Examples:</b>\n"+
			"/interval 3 - every 3 minutes\n"+
			"/interval 10 - every 10 minutes\n"+
			"/interval 30 - every 30 minutes\n\n"+
			"<i>Minimum: %d minutes</i>", current, minMinutes)}
	}

	minutes, err := strconv.Atoi(args)
	if err != nil {
		return []string{"Please provide a valid number of minutes."}
	}
	if minutes < minMinutes {
		return []string{fmt.Sprintf("Minimum interval is %d minutes.\n\nExample: /interval %d", minMinutes, minMinutes)}
	}

	if _, _, err := h.store.GetOrCreateUser(userID); err != nil {
		logger.Error("Failed to create user %d: %v", userID, err)
		return []string{"Something went wrong, please try again."}
	}
	if _, err := h.store.SetUserInterval(userID, time.Duration(minutes)*time.Minute); err != nil {
		logger.Error("Failed to set interval for %d: %v", userID, err)
		return []string{"Something went wrong, please try again."}
	}

	return []string{fmt.Sprintf("<b>Interval set to %d minutes!</b>\n\n"+
		"You'll receive watchlist updates every %d minutes.", minutes, minutes)}
}

func (h *Handler) cmdAlert(userID int64, args string) []string {
	parts := strings.Fields(args)
	if len(parts) < 3 {
		return []string{"Invalid format.\n\n" +
			"<b>Usage:</b>\n" +
			"/alert &lt;event-slug&gt; &gt; &lt;threshold&gt;\n" +
			"/alert &lt;event-slug&gt; &lt; &lt;threshold&gt;\n\n" +
			"<b>Examples:</b>\n" +
			"/alert btc-price-2025 &gt; 70\n" +
			"/alert election-winner &lt; 30"}
	}

	threshold, err := strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return []string{"Threshold must be a number between 0 and 100"}
	}

	alert := models.PriceAlert{
		EventSlug: strings.ToLower(parts[0]),
		Condition: parts[1],
		Threshold: threshold,
	}
	if len(parts) >= 4 {
		if idx, err := strconv.Atoi(parts[3]); err == nil {
			alert.OutcomeIndex = idx
		}
	}
	if err := alert.Validate(); err != nil {
		return []string{"Invalid input: " + err.Error()}
	}

	if _, _, err := h.store.GetOrCreateUser(userID); err != nil {
		logger.Error("Failed to create user %d: %v", userID, err)
		return []string{"Something went wrong, please try again."}
	}

	added, err := h.store.AddAlert(userID, alert)
	if err != nil {
		logger.Error("Failed to add alert for %d: %v", userID, err)
		return []string{"Something went wrong, please try again."}
	}
	if !added {
		return []string{"This alert already exists."}
	}

	logger.Info("User %d set alert: %s %s %.1f%%", userID, alert.EventSlug, alert.Condition, alert.Threshold)
	return []string{fmt.Sprintf("<b>Alert set!</b>\n\n"+
		"Event: %s\nCondition: %s %.1f%%\n\n"+
		"You'll be notified when the price crosses this threshold.",
		alert.EventSlug, alert.Condition, alert.Threshold)}
}

func (h *Handler) cmdAlerts(userID int64) []string {
	alerts, err := h.store.GetUserAlerts(userID)
	if err != nil {
		logger.Error("Failed to get alerts for %d: %v", userID, err)
		return []string{"Something went wrong, please try again."}
	}
	if len(alerts) == 0 {
		return []string{"<b>No alerts set</b>\n\n" +
			"Set alerts with:\n/alert &lt;event-slug&gt; &gt; &lt;threshold&gt;"}
	}

	lines := []string{"<b>Your Price Alerts:</b>\n"}
	for i, alert := range alerts {
		status := "Active"
		if alert.IsTriggered {
			status = "Triggered"
		}
		lines = append(lines, fmt.Sprintf("%d. %s", i+1, alert.EventSlug))
		lines = append(lines, fmt.Sprintf("   %s %.1f%% - %s\n", alert.Condition, alert.Threshold, status))
	}
	lines = append(lines, fmt.Sprintf("\n<b>Total:</b> %d alerts", len(alerts)))
	lines = append(lines, "\nUse /rmalert &lt;number&gt; to remove")
	return []string{strings.Join(lines, "\n")}
}

func (h *Handler) cmdRemoveAlert(userID int64, args string) []string {
	if args == "" {
		return []string{"Please provide alert number.\n\nExample:\n/rmalert 1"}
	}

	number, err := strconv.Atoi(args)
	if err != nil {
		return []string{"Invalid number"}
	}

	removed, err := h.store.RemoveAlert(userID, number-1)
	if err != nil {
		logger.Error("Failed to remove alert for %d: %v", userID, err)
		return []string{"Something went wrong, please try again."}
	}
	if !removed {
		return []string{"Alert not found."}
	}
	logger.Info("User %d removed alert %d", userID, number)
	return []string{"Alert removed!"}
}

func (h *Handler) cmdDeal(ctx context.Context, userID int64, args string) []string {
	if args == "" {
		return []string{"<b>Send me a Polymarket link to analyze</b>\n\n" +
			"Example:\n/deal https://polymarket.com/event/btc-price-2025"}
	}

	slug := filter.ParseEventURL(args)
	if slug == "" {
		return []string{"Invalid link. Please send a valid Polymarket URL."}
	}

	event, err := h.market.FetchEventBySlug(ctx, slug)
	if err != nil {
		logger.Error("Failed to fetch event %s: %v", slug, err)
		return []string{"Could not fetch event data, please try again later."}
	}
	if event == nil {
		return []string{fmt.Sprintf("Event not found: <b>%s</b>", slug)}
	}

	replies := []string{FormatEvent(event)}

	commentary, err := h.market.FetchMarketContext(ctx, slug)
	if err != nil || commentary == "" {
		if err != nil {
			logger.Error("Failed to fetch context for %s: %v", slug, err)
		}
		return append(replies, "Market Context is unavailable for this event.")
	}

	return append(replies, fmt.Sprintf("<b>Market Context:</b>\n\n%s", truncate(commentary, 2000)))
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
