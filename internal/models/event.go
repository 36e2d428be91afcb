package models

import (
	"encoding/json"
	"strconv"
	"time"
)

// Event represents an event from the Polymarket Gamma API.
type Event struct {
	ID        string   `json:"id"`
	Slug      string   `json:"slug"`
	Title     string   `json:"title"`
	CreatedAt string   `json:"createdAt"`
	StartDate string   `json:"startDate,omitempty"`
	EndDate   string   `json:"endDate,omitempty"`
	Volume    float64  `json:"volume"`
	Liquidity float64  `json:"liquidity"`
	Markets   []Market `json:"markets"`
}

// Market represents a single market inside a Gamma API event.
type Market struct {
	ID            string `json:"id"`
	Question      string `json:"question"`
	Outcomes      string `json:"outcomes"`      // JSON string: "[\"Yes\", \"No\"]"
	OutcomePrices string `json:"outcomePrices"` // JSON string: "[\"0.75\", \"0.25\"]"
	EndDate       string `json:"endDate,omitempty"`
}

// Age reports how long ago the event was created, parsed from createdAt with
// startDate as fallback. ok is false when neither field carries a parseable
// timestamp.
func (e *Event) Age(now time.Time) (time.Duration, bool) {
	for _, raw := range []string{e.CreatedAt, e.StartDate} {
		if raw == "" {
			continue
		}
		created, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			continue
		}
		return now.Sub(created), true
	}
	return 0, false
}

// ParseOutcomes decodes the JSON-encoded outcome name array.
func (m *Market) ParseOutcomes() []string {
	var outcomes []string
	if err := json.Unmarshal([]byte(m.Outcomes), &outcomes); err != nil {
		return nil
	}
	return outcomes
}

// ParsePrices decodes the JSON-encoded outcome price array. The API encodes
// prices as decimal strings.
func (m *Market) ParsePrices() []float64 {
	var raw []string
	if err := json.Unmarshal([]byte(m.OutcomePrices), &raw); err != nil {
		return nil
	}
	prices := make([]float64, 0, len(raw))
	for _, s := range raw {
		p, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil
		}
		prices = append(prices, p)
	}
	return prices
}
