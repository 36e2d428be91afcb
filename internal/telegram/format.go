package telegram

import (
	"fmt"
	"strings"
	"time"

	"github.com/polydictions/polydictions/internal/models"
)

// FormatMoney renders a dollar amount with thousands separators and no
// decimals.
func FormatMoney(value float64) string {
	neg := value < 0
	if neg {
		value = -value
	}
	s := fmt.Sprintf("%.0f", value)
	var b strings.Builder
	for i, digit := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(digit)
	}
	if neg {
		return "-$" + b.String()
	}
	return "$" + b.String()
}

// FormatDate renders an ISO timestamp as a readable UTC date, passing the
// raw string through when it does not parse.
func FormatDate(raw string) string {
	if raw == "" {
		return "N/A"
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return raw
	}
	return t.UTC().Format("January 2, 2006 at 15:04 UTC")
}

// pricePercent converts an outcome price to a 0-100 percentage. Values at or
// below 1 are fractions and get scaled; values above 1 are already
// percentages. Keep this rule in sync with alert evaluation.
func pricePercent(price float64) float64 {
	if price <= 1 {
		return price * 100
	}
	return price
}

// FormatEvent formats event data into an HTML message.
func FormatEvent(event *models.Event) string {
	if len(event.Markets) == 0 {
		return "No market data available"
	}

	endDate := event.EndDate
	if endDate == "" {
		endDate = event.Markets[0].EndDate
	}

	lines := []string{
		fmt.Sprintf("<b>%s</b>\n", event.Title),
		fmt.Sprintf("<b>Link:</b> https://polymarket.com/event/%s\n", event.Slug),
		"<b>Market stats:</b>",
		fmt.Sprintf("<b>Closes:</b> %s", FormatDate(endDate)),
		fmt.Sprintf("<b>Total Liquidity:</b> %s", FormatMoney(event.Liquidity)),
		fmt.Sprintf("<b>Total Volume:</b> %s\n", FormatMoney(event.Volume)),
	}

	if len(event.Markets) == 1 {
		lines = append(lines, formatSingleMarket(&event.Markets[0])...)
	} else {
		lines = append(lines, formatMultipleMarkets(event.Markets)...)
	}

	return strings.Join(lines, "\n")
}

func formatSingleMarket(market *models.Market) []string {
	outcomes := market.ParseOutcomes()
	prices := market.ParsePrices()

	var lines []string
	if len(outcomes) == 2 {
		lines = append(lines, "<b>Current Odds:</b>")
		for i, name := range outcomes {
			if i < len(prices) {
				lines = append(lines, fmt.Sprintf("  • %s: %.1f%%", name, pricePercent(prices[i])))
			}
		}
	} else {
		lines = append(lines, "<b>Options:</b>")
		for i, name := range outcomes {
			if i < len(prices) {
				lines = append(lines, fmt.Sprintf("  %d. %s: %.1f%%", i+1, name, pricePercent(prices[i])))
			}
		}
	}
	return lines
}

func formatMultipleMarkets(markets []models.Market) []string {
	var valid []*models.Market
	for i := range markets {
		if markets[i].ParseOutcomes() != nil && markets[i].ParsePrices() != nil {
			valid = append(valid, &markets[i])
		}
	}

	lines := []string{fmt.Sprintf("<b>Markets (%d):</b>", len(valid))}
	for i, market := range valid {
		question := market.Question
		if question == "" {
			question = fmt.Sprintf("Market %d", i+1)
		}
		lines = append(lines, fmt.Sprintf("  %d. %s", i+1, question))

		outcomes := market.ParseOutcomes()
		prices := market.ParsePrices()
		for j, name := range outcomes {
			if j >= 5 {
				break
			}
			if j < len(prices) {
				lines = append(lines, fmt.Sprintf("     • %s: %.1f%%", name, pricePercent(prices[j])))
			}
		}
	}
	return lines
}
