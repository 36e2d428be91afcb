// Package filter implements the user-facing event filters: keyword and
// category matching over event text, plus commentary fingerprinting.
package filter

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/polydictions/polydictions/internal/models"
)

// CategoryKeywords maps each category to the fixed keyword list used for
// category filtering.
var CategoryKeywords = map[string][]string{
	"crypto": {
		"btc", "bitcoin", "eth", "ethereum", "crypto", "solana", "xrp",
		"blockchain", "defi", "nft", "token", "coin", "doge", "bnb", "ada", "dot",
	},
	"politics": {
		"election", "president", "senate", "congress", "vote", "trump", "biden",
		"political", "government", "democrat", "republican", "governor",
	},
	"sports": {
		"nfl", "nba", "mlb", "nhl", "football", "basketball", "baseball",
		"hockey", "soccer", "vs.", "vs", "game", "match", "championship",
		"super bowl", "ufc", "boxing",
	},
	"finance": {
		"stock", "market", "fed", "rate", "inflation", "gdp", "economy",
		"treasury", "dollar", "recession", "s&p", "nasdaq", "dow",
	},
	"tech": {
		"ai", "apple", "google", "meta", "tesla", "microsoft", "amazon",
		"tech", "software", "app", "nvidia", "openai",
	},
	"entertainment": {
		"movie", "oscar", "grammy", "emmy", "celebrity", "actor", "music",
		"album", "box office",
	},
}

// AvailableCategories returns the category names in stable order.
func AvailableCategories() []string {
	cats := make([]string, 0, len(CategoryKeywords))
	for cat := range CategoryKeywords {
		cats = append(cats, cat)
	}
	sort.Strings(cats)
	return cats
}

// searchableText builds the lowercase haystack: event title plus every
// market question.
func searchableText(event *models.Event) string {
	var b strings.Builder
	b.WriteString(strings.ToLower(event.Title))
	for _, m := range event.Markets {
		b.WriteByte(' ')
		b.WriteString(strings.ToLower(m.Question))
	}
	return b.String()
}

// MatchesKeywords reports whether the event matches any of the user's
// keywords (OR logic). A keyword wrapped in quotes matches as an exact
// phrase; everything else is a case-insensitive substring match over the
// title and market questions. An empty keyword list matches everything.
func MatchesKeywords(event *models.Event, keywords []string) bool {
	if len(keywords) == 0 {
		return true
	}

	searchable := searchableText(event)

	for _, keyword := range keywords {
		keyword = strings.TrimSpace(keyword)
		if keyword == "" {
			continue
		}

		if isQuoted(keyword) {
			phrase := strings.ToLower(keyword[1 : len(keyword)-1])
			if phrase != "" && strings.Contains(searchable, phrase) {
				return true
			}
			continue
		}

		if strings.Contains(searchable, strings.ToLower(keyword)) {
			return true
		}
	}

	return false
}

func isQuoted(s string) bool {
	if len(s) < 2 {
		return false
	}
	return (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'')
}

// MatchesCategory reports whether the event matches any of the user's
// category filters via the fixed per-category keyword lists. An empty
// category list matches everything.
func MatchesCategory(event *models.Event, categories []string) bool {
	if len(categories) == 0 {
		return true
	}

	searchable := searchableText(event)

	for _, category := range categories {
		for _, keyword := range CategoryKeywords[strings.ToLower(category)] {
			if strings.Contains(searchable, keyword) {
				return true
			}
		}
	}

	return false
}

// ParseKeywords splits comma-separated user input into keywords, preserving
// quoted phrases and lowercasing everything.
func ParseKeywords(input string) []string {
	var keywords []string
	for _, part := range strings.Split(input, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part != "" {
			keywords = append(keywords, part)
		}
	}
	return keywords
}

const (
	maxKeywords      = 20
	maxKeywordLength = 50
)

var keywordPattern = regexp.MustCompile(`^[\p{L}\p{N}_\s\-"']+$`)

// ValidateKeywords checks keyword count, length and character constraints.
func ValidateKeywords(keywords []string) error {
	if len(keywords) > maxKeywords {
		return fmt.Errorf("too many keywords (max %d)", maxKeywords)
	}
	for _, kw := range keywords {
		if len(kw) < 2 {
			return errors.New("keyword too short (min 2 chars)")
		}
		if len(kw) > maxKeywordLength {
			return fmt.Errorf("keyword too long (max %d chars)", maxKeywordLength)
		}
		if !keywordPattern.MatchString(kw) {
			return errors.New("invalid characters in keyword")
		}
	}
	return nil
}

// ValidateCategories checks that every category is a known one.
func ValidateCategories(categories []string) error {
	for _, cat := range categories {
		if _, ok := CategoryKeywords[strings.ToLower(cat)]; !ok {
			return fmt.Errorf("unknown category %q (available: %s)",
				cat, strings.Join(AvailableCategories(), ", "))
		}
	}
	return nil
}

var eventURLPattern = regexp.MustCompile(`polymarket\.com/event/([a-zA-Z0-9-]+)`)

// ParseEventURL extracts the event slug from a Polymarket URL, or returns
// the input itself when it is already a bare slug.
func ParseEventURL(urlOrSlug string) string {
	if m := eventURLPattern.FindStringSubmatch(urlOrSlug); m != nil {
		return strings.ToLower(m[1])
	}
	slug := strings.ToLower(strings.TrimSpace(urlOrSlug))
	if models.ValidateSlug(slug) == nil {
		return slug
	}
	return ""
}
