package extract

import (
	"sort"
	"strings"
	"unicode"

	"github.com/clipperhouse/uax29/v2/words"

	"github.com/chatgraph/chatgraph/pkg/common"
)

const (
	busiestDayCount = 5
	topWordCount    = 20
)

// stopwords are high-frequency function words that carry no signal for the
// frequent-word ranking.
var stopwords = map[string]struct{}{
	"我": {}, "你": {}, "的": {}, "了": {}, "在": {}, "是": {}, "和": {},
	"也": {}, "有": {}, "就": {}, "不": {}, "都": {}, "吗": {}, "啊": {},
	"吧": {}, "哦": {}, "呢": {}, "着": {}, "很": {}, "还": {}, "但": {},
	"与": {}, "及": {}, "或": {}, "被": {}, "为": {}, "到": {}, "说": {},
	"要": {}, "会": {}, "去": {}, "他": {}, "她": {}, "它": {},
	"我们": {}, "他们": {}, "你们": {}, "自己": {},
}

// WordCount pairs a token with its occurrence count.
type WordCount struct {
	Word  string `json:"word"`
	Count int    `json:"count"`
}

// Stats holds the frequency statistics derived from one pair's message
// history. It lives for a single processor invocation.
type Stats struct {
	WordCounts  map[string]int
	DayCounts   map[string]int
	MonthCounts map[string]int
	DayMessages map[string][]common.ChatMessage
	BusiestDays []string
	TopWords    []WordCount
}

// ExtractStats derives word, day and month frequency statistics from an
// ordered message sequence and ranks the busiest days. Empty input yields
// empty stats.
func ExtractStats(messages []common.ChatMessage) Stats {
	stats := Stats{
		WordCounts:  make(map[string]int),
		DayCounts:   make(map[string]int),
		MonthCounts: make(map[string]int),
		DayMessages: make(map[string][]common.ChatMessage),
	}

	firstSeen := make(map[string]int)
	for _, msg := range messages {
		day := msg.Timestamp.Format("2006-01-02")
		stats.DayCounts[day]++
		stats.DayMessages[day] = append(stats.DayMessages[day], msg)

		tokens := words.FromString(msg.Body)
		for tokens.Next() {
			token := strings.TrimSpace(tokens.Value())
			if !isValidWord(token) {
				continue
			}
			if _, ok := firstSeen[token]; !ok {
				firstSeen[token] = len(firstSeen)
			}
			stats.WordCounts[token]++
		}
	}

	for day, count := range stats.DayCounts {
		stats.MonthCounts[day[:7]] += count
	}

	stats.BusiestDays = rankBusiestDays(stats.DayCounts)
	stats.TopWords = rankTopWords(stats.WordCounts, firstSeen)
	return stats
}

// isValidWord reports whether a token should count towards the word
// statistics: not a stopword and containing at least one letter or digit.
func isValidWord(token string) bool {
	if token == "" {
		return false
	}
	if _, ok := stopwords[token]; ok {
		return false
	}
	for _, r := range token {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

// rankBusiestDays returns the top days by message count. Ties are broken
// by ascending day key, so identical input always produces the same
// ranking regardless of map iteration order.
func rankBusiestDays(dayCounts map[string]int) []string {
	days := make([]string, 0, len(dayCounts))
	for day := range dayCounts {
		days = append(days, day)
	}
	sort.Slice(days, func(i, j int) bool {
		if dayCounts[days[i]] != dayCounts[days[j]] {
			return dayCounts[days[i]] > dayCounts[days[j]]
		}
		return days[i] < days[j]
	})

	if len(days) > busiestDayCount {
		days = days[:busiestDayCount]
	}
	return days
}

// rankTopWords returns the most frequent tokens. Ties are broken by
// first-occurrence order.
func rankTopWords(wordCounts map[string]int, firstSeen map[string]int) []WordCount {
	ranked := make([]WordCount, 0, len(wordCounts))
	for word, count := range wordCounts {
		ranked = append(ranked, WordCount{Word: word, Count: count})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Count != ranked[j].Count {
			return ranked[i].Count > ranked[j].Count
		}
		return firstSeen[ranked[i].Word] < firstSeen[ranked[j].Word]
	})

	if len(ranked) > topWordCount {
		ranked = ranked[:topWordCount]
	}
	return ranked
}
