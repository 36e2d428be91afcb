// Package polymarket provides access to the Polymarket Gamma API and the
// Grok market-commentary endpoint.
package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/polydictions/polydictions/internal/logger"
	"github.com/polydictions/polydictions/internal/models"
)

// minContextLength is the shortest commentary response considered usable.
// The Grok endpoint occasionally returns a truncated stub; those are retried.
const minContextLength = 50

// Client provides access to the Polymarket APIs.
type Client struct {
	gammaAPIURL   string
	grokAPIURL    string
	httpClient    *http.Client
	contextClient *http.Client
	retryDelay    time.Duration
}

// NewClient creates a new Polymarket client. The commentary endpoint is slow
// (the text is generated server-side) and gets its own longer timeout.
func NewClient(gammaAPIURL, grokAPIURL string, timeout, contextTimeout time.Duration) *Client {
	return &Client{
		gammaAPIURL: gammaAPIURL,
		grokAPIURL:  grokAPIURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		contextClient: &http.Client{
			Timeout: contextTimeout,
		},
		retryDelay: 2 * time.Second,
	}
}

// FetchRecentEvents retrieves the most recently created active events,
// newest first.
func (c *Client) FetchRecentEvents(ctx context.Context, limit int) ([]models.Event, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", "0")
	q.Set("active", "true")
	q.Set("closed", "false")
	q.Set("order", "createdAt")
	q.Set("ascending", "false")

	return c.fetchEvents(ctx, q)
}

// FetchHotEvents retrieves active events ordered by volume, highest first.
func (c *Client) FetchHotEvents(ctx context.Context, limit int) ([]models.Event, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("active", "true")
	q.Set("closed", "false")
	q.Set("order", "volume")
	q.Set("ascending", "false")

	return c.fetchEvents(ctx, q)
}

// FetchEventBySlug fetches a single event snapshot. Returns (nil, nil) when
// the slug is unknown.
func (c *Client) FetchEventBySlug(ctx context.Context, slug string) (*models.Event, error) {
	q := url.Values{}
	q.Set("slug", slug)

	events, err := c.fetchEvents(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, nil
	}
	return &events[0], nil
}

func (c *Client) fetchEvents(ctx context.Context, query url.Values) ([]models.Event, error) {
	u, err := url.Parse(c.gammaAPIURL + "/events")
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}
	u.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch events: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	// Response is an array directly, not wrapped
	var events []models.Event
	if err := json.NewDecoder(resp.Body).Decode(&events); err != nil {
		return nil, fmt.Errorf("failed to decode events: %w", err)
	}

	return events, nil
}

// FetchMarketContext fetches the AI-generated commentary for an event.
// Retries once, after a short delay, on timeout or an implausibly short
// response. Returns "" when no usable commentary is available.
func (c *Client) FetchMarketContext(ctx context.Context, slug string) (string, error) {
	if slug == "" {
		return "", fmt.Errorf("event slug is empty")
	}

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(c.retryDelay):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		text, err := c.fetchContextOnce(ctx, slug)
		if err != nil {
			lastErr = err
			logger.Warn("Market context fetch failed for %s (attempt %d/2): %v", slug, attempt+1, err)
			continue
		}
		if len(text) <= minContextLength {
			lastErr = fmt.Errorf("context too short (%d chars)", len(text))
			logger.Warn("Market context too short for %s (attempt %d/2)", slug, attempt+1)
			continue
		}
		return text, nil
	}

	return "", lastErr
}

func (c *Client) fetchContextOnce(ctx context.Context, slug string) (string, error) {
	u := c.grokAPIURL + "?prompt=" + url.QueryEscape(slug)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, nil)
	if err != nil {
		return "", err
	}

	resp, err := c.contextClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	text := string(body)
	// The endpoint appends a citation trailer the fingerprint must not see.
	if idx := strings.Index(text, "__SOURCES__"); idx >= 0 {
		text = strings.TrimSpace(text[:idx])
	}

	return text, nil
}
