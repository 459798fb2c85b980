// Package search ranks ticket lookup candidates against a free-text query. Scoring is
// pure and deterministic for a fixed clock.
package search

import (
	"math"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"

	"github.com/makors/vender/internal/models"
)

const (
	scoreEmailExact            = 1000
	scoreEmailPluslessExact    = 940
	scoreEmailPrefix           = 860
	scoreEmailPluslessPrefix   = 820
	scoreEmailSubstring        = 700
	scoreEmailPluslessContains = 660

	scoreLooseEmailPrefix    = 420
	scoreLooseEmailSubstring = 300

	scoreNameExact     = 120
	scoreNamePrefix    = 90
	scoreNameSubstring = 60
	fuzzyWeight        = 80
	fuzzyThreshold     = 0.7

	scoreIDExact     = 1000
	scoreIDPrefix    = 920
	scoreIDSubstring = 540

	scoreRecentWeek  = 20
	scoreRecentMonth = 10
	scannedPenalty   = 20
)

var hexFragment = regexp.MustCompile(`(?i)^[0-9a-f-]{4,}$`)

// NormalizeWhitespace trims s and collapses internal whitespace runs to single spaces.
func NormalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// StripPlusTag turns "local+tag@domain" into "local@domain". Anything without an '@' or a
// '+' in the local part is returned unchanged.
func StripPlusTag(email string) string {
	at := strings.Index(email, "@")
	if at == -1 {
		return email
	}
	plus := strings.Index(email[:at], "+")
	if plus == -1 {
		return email
	}
	return email[:plus] + email[at:]
}

// IsHexLikeFragment reports whether q could be part of a ticket id.
func IsHexLikeFragment(q string) bool {
	return hexFragment.MatchString(q)
}

// Score computes the relevance of c for query. Higher is better; non-positive scores
// are not matches.
func Score(c *models.LookupCandidate, query string, now time.Time) int {
	raw := strings.TrimSpace(query)
	q := strings.ToLower(NormalizeWhitespace(query))
	email := strings.ToLower(c.Email)
	if q == "" {
		return 0
	}
	name := strings.ToLower(NormalizeWhitespace(models.StringValue(c.StudentName, "")))

	score := emailScore(email, q)
	score += nameScore(name, q)

	if IsHexLikeFragment(raw) {
		id := strings.ToLower(c.TicketID)
		qid := strings.ToLower(raw)
		switch {
		case id == qid:
			score += scoreIDExact
		case strings.HasPrefix(id, qid):
			score += scoreIDPrefix
		case strings.Contains(id, qid):
			score += scoreIDSubstring
		}
	}

	if c.CreatedAt != nil {
		age := now.Sub(*c.CreatedAt)
		switch {
		case age < 7*24*time.Hour:
			score += scoreRecentWeek
		case age < 30*24*time.Hour:
			score += scoreRecentMonth
		}
	}

	if c.ScannedAt != nil {
		score -= scannedPenalty
	}
	return score
}

func emailScore(email, q string) int {
	score := 0
	if !strings.Contains(q, "@") {
		if strings.HasPrefix(email, q) {
			score += scoreLooseEmailPrefix
		}
		if strings.Contains(email, q) {
			score += scoreLooseEmailSubstring
		}
		return score
	}

	plusless := StripPlusTag(email)
	qPlusless := StripPlusTag(q)
	if email == q {
		score += scoreEmailExact
	}
	if plusless == qPlusless {
		score += scoreEmailPluslessExact
	}
	if strings.HasPrefix(email, q) {
		score += scoreEmailPrefix
	}
	if strings.HasPrefix(plusless, qPlusless) {
		score += scoreEmailPluslessPrefix
	}
	if strings.Contains(email, q) {
		score += scoreEmailSubstring
	}
	if strings.Contains(plusless, qPlusless) {
		score += scoreEmailPluslessContains
	}
	return score
}

// nameScore sums, over query tokens, the best match against any part of the name.
func nameScore(name, q string) int {
	if name == "" || q == "" {
		return 0
	}
	parts := strings.Fields(name)
	score := 0
	for _, token := range strings.Fields(q) {
		best := 0
		for _, part := range parts {
			var s int
			switch {
			case part == token:
				s = scoreNameExact
			case strings.HasPrefix(part, token):
				s = scoreNamePrefix
			case strings.Contains(part, token):
				s = scoreNameSubstring
			default:
				s = fuzzyScore(part, token)
			}
			if s > best {
				best = s
			}
		}
		score += best
	}
	return score
}

func fuzzyScore(part, token string) int {
	maxLen := utf8.RuneCountInString(part)
	if n := utf8.RuneCountInString(token); n > maxLen {
		maxLen = n
	}
	if maxLen == 0 {
		return 0
	}
	similarity := 1 - float64(levenshtein.ComputeDistance(part, token))/float64(maxLen)
	if similarity < fuzzyThreshold {
		return 0
	}
	return int(math.Round(similarity * fuzzyWeight))
}

// Rank scores candidates, drops non-matches and returns at most limit results ordered by
// descending score. Equal scores keep their input order.
func Rank(candidates []*models.LookupCandidate, query string, now time.Time, limit int) []*models.LookupCandidate {
	type scored struct {
		c     *models.LookupCandidate
		score int
	}

	ranked := make([]scored, 0, len(candidates))
	for _, c := range candidates {
		if s := Score(c, query, now); s > 0 {
			ranked = append(ranked, scored{c: c, score: s})
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].score > ranked[j].score
	})

	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	results := make([]*models.LookupCandidate, len(ranked))
	for i, r := range ranked {
		results[i] = r.c
	}
	return results
}

// Terms returns the strings the candidate query should match. Email-shaped queries are
// widened so that tagged and untagged forms of the same address find each other.
func Terms(query string) []string {
	q := strings.TrimSpace(query)
	if q == "" {
		return nil
	}
	terms := []string{q}

	at := strings.Index(q, "@")
	if at <= 0 {
		return terms
	}
	if stripped := StripPlusTag(q); stripped != q {
		terms = append(terms, stripped)
	} else {
		terms = append(terms, q[:at]+"+")
	}
	return terms
}
