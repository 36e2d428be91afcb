package filter

import (
	"crypto/md5"
	"encoding/hex"
	"regexp"
	"strings"
)

// Commentary is AI-generated and gets superficially rephrased between
// fetches. The fingerprint strips the parts that churn without meaning so
// only substantive edits change the hash.
var (
	timeRefPattern  = regexp.MustCompile(`\b(today|yesterday|this week|last week|recently|currently)\b`)
	stopwordPattern = regexp.MustCompile(`\b(the|a|an|is|are|was|were|has|have|had|been|being)\b`)
)

// fingerprintPrefixLen bounds the comparison to the leading content, where
// the substance of the commentary lives.
const fingerprintPrefixLen = 200

// HashContext computes the change-detection fingerprint of commentary text:
// lowercase, collapse whitespace, drop time references and filler words,
// truncate, then hash.
func HashContext(context string) string {
	normalized := strings.ToLower(context)
	normalized = strings.Join(strings.Fields(normalized), " ")
	normalized = timeRefPattern.ReplaceAllString(normalized, "")
	normalized = stopwordPattern.ReplaceAllString(normalized, "")

	if len(normalized) > fingerprintPrefixLen {
		normalized = normalized[:fingerprintPrefixLen]
	}

	sum := md5.Sum([]byte(normalized))
	return hex.EncodeToString(sum[:])
}
