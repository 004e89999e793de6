package corpus

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"categorizer/internal/domain"
)

// Load reads the question corpus: a JSON array of question objects.
func Load(path string) ([]domain.QuestionRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read corpus: %w", err)
	}
	var questions []domain.QuestionRecord
	if err := json.Unmarshal(data, &questions); err != nil {
		return nil, fmt.Errorf("parse corpus %s: %w", path, err)
	}
	if questions == nil {
		return nil, fmt.Errorf("parse corpus %s: expected a JSON array", path)
	}
	return questions, nil
}

// Sample draws up to n questions uniformly without replacement.
func Sample(questions []domain.QuestionRecord, n int, rng *rand.Rand) []domain.QuestionRecord {
	if n > len(questions) {
		n = len(questions)
	}
	if n <= 0 {
		return nil
	}
	perm := rng.Perm(len(questions))
	out := make([]domain.QuestionRecord, n)
	for i := 0; i < n; i++ {
		out[i] = questions[perm[i]]
	}
	return out
}

// Truncate returns at most max characters of s.
func Truncate(s string, max int) string {
	if max < 0 {
		return s
	}
	count := 0
	for i := range s {
		if count == max {
			return s[:i]
		}
		count++
	}
	return s
}

// htmlTag matches markup the scraper leaves behind. A bare '<' or '>' in
// math such as "P(X<Y) given Y>1/2" does not match.
var htmlTag = regexp.MustCompile(`(?i)</?(p|div|br|hr|span|b|i|u|em|strong|li|ul|ol|sup|sub|code|pre|table|thead|tbody|tr|td|th|h[1-6]|a|img|script|style)(\s+[a-z-]+\s*=\s*("[^"]*"|'[^']*'|[^\s>]+))*\s*/?>`)

// PlainText strips markup left over from scraping. Text without known tags
// is returned unchanged.
func PlainText(s string) string {
	tags := htmlTag.FindAllStringIndex(s, -1)
	if len(tags) == 0 {
		return s
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(escapeStrayLT(s, tags)))
	if err != nil {
		return s
	}
	doc.Find("script, style").Remove()
	text := strings.TrimSpace(doc.Text())
	if text == "" {
		return s
	}
	return text
}

// escapeStrayLT rewrites every '<' outside the matched tags as an entity so
// the parser keeps it as text.
func escapeStrayLT(s string, tags [][]int) string {
	var b strings.Builder
	b.Grow(len(s) + 8)
	last := 0
	for _, t := range tags {
		b.WriteString(strings.ReplaceAll(s[last:t[0]], "<", "&lt;"))
		b.WriteString(s[t[0]:t[1]])
		last = t[1]
	}
	b.WriteString(strings.ReplaceAll(s[last:], "<", "&lt;"))
	return b.String()
}
