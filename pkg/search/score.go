package search

import (
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/papercomputeco/engram/pkg/memory"
)

// Scoring weights. These values are the ranking contract; changing any of
// them reorders results for existing stores.
const (
	wordMatchWeight      = 2.0
	substringMatchWeight = 0.5
	topicMatchBonus      = 5.0
	topicFuzzyBonus      = 3.0

	positionPenalty  = 0.2
	coverageBonus    = 0.3
	topicFuzzyMinLen = 3
	topicFuzzyRatio  = 0.8

	lengthFullUpTo   = 500
	lengthSlopeRunes = 1500
	lengthFloor      = 0.8

	recencyBonus  = 0.05
	recencyWindow = 180 * 24 * time.Hour
)

// scoreMemory computes the relevance of mem for the normalized keywords.
// It returns 0 when the memory should be dropped: no keyword contributed
// anything, or the raw sum fell below the minimum threshold.
func scoreMemory(mem *memory.Memory, keywords []string, patterns map[string]*regexp.Regexp, now time.Time) float64 {
	content := strings.ToLower(mem.Content)
	contentLen := len(content)
	if contentLen == 0 {
		contentLen = 1
	}

	topics := make([]string, len(mem.Topics))
	for i, topic := range mem.Topics {
		topics[i] = strings.ToLower(topic)
	}

	score := 0.0
	matched := 0

	for _, keyword := range keywords {
		contribution := 0.0

		// Whole-word hits outrank raw substring hits; substring hits
		// count only when no whole-word hit exists for this keyword.
		wordHits := patterns[keyword].FindAllStringIndex(content, -1)
		for _, hit := range wordHits {
			contribution += wordMatchWeight * positionWeight(hit[0], contentLen)
		}
		if len(wordHits) == 0 {
			for _, pos := range substringPositions(content, keyword) {
				contribution += substringMatchWeight * positionWeight(pos, contentLen)
			}
		}

		for _, topic := range topics {
			switch {
			case strings.Contains(topic, keyword):
				contribution += topicMatchBonus
			case utf8.RuneCountInString(keyword) >= topicFuzzyMinLen &&
				consecutiveOverlap(keyword, topic) >= topicFuzzyRatio:
				contribution += topicFuzzyBonus
			}
		}

		if contribution > 0 {
			matched++
		}
		score += contribution
	}

	if score <= 0 || score < minScore {
		return 0
	}

	score *= 1.0 + coverageBonus*float64(matched)/float64(len(keywords))
	score *= lengthFactor(utf8.RuneCountInString(mem.Content))
	score *= recencyFactor(mem.Timestamp, now)

	return score
}

// positionWeight discounts occurrences later in the text, down to 80% at
// the very end.
func positionWeight(pos, contentLen int) float64 {
	return 1.0 - positionPenalty*float64(pos)/float64(contentLen)
}

// substringPositions returns the byte offsets of every occurrence of
// keyword in content, counting overlapping occurrences.
func substringPositions(content, keyword string) []int {
	if keyword == "" {
		return nil
	}
	var positions []int
	start := 0
	for {
		pos := strings.Index(content[start:], keyword)
		if pos == -1 {
			return positions
		}
		positions = append(positions, start+pos)
		start += pos + 1
	}
}

// consecutiveOverlap returns the length of the longest consecutive run of
// characters shared between keyword and topic, as a fraction of the
// keyword's length.
func consecutiveOverlap(keyword, topic string) float64 {
	kw, tp := []rune(keyword), []rune(topic)
	if len(kw) == 0 {
		return 0
	}

	longest := 0
	prev := make([]int, len(tp)+1)
	curr := make([]int, len(tp)+1)
	for i := 1; i <= len(kw); i++ {
		for j := 1; j <= len(tp); j++ {
			if kw[i-1] == tp[j-1] {
				curr[j] = prev[j-1] + 1
				if curr[j] > longest {
					longest = curr[j]
				}
			} else {
				curr[j] = 0
			}
		}
		prev, curr = curr, prev
	}

	return float64(longest) / float64(len(kw))
}

// lengthFactor normalizes away the advantage of sheer volume: no penalty up
// to 500 runes, then a linear slide that bottoms out at 0.8.
func lengthFactor(contentRunes int) float64 {
	if contentRunes <= lengthFullUpTo {
		return 1.0
	}
	factor := 1.0 - 0.1*float64(contentRunes-lengthFullUpTo)/lengthSlopeRunes
	if factor < lengthFloor {
		return lengthFloor
	}
	return factor
}

// recencyFactor boosts recent memories by up to 5%, decaying linearly to
// nothing over the recency window.
func recencyFactor(timestamp, now time.Time) float64 {
	if timestamp.IsZero() {
		return 1.0
	}
	age := now.Sub(timestamp)
	if age < 0 {
		age = 0
	}
	decay := 1.0 - float64(age)/float64(recencyWindow)
	if decay < 0 {
		decay = 0
	}
	return 1.0 + recencyBonus*decay
}

// matchingTopics filters topics to those containing any keyword, keeping
// the original casing.
func matchingTopics(topics, keywords []string) []string {
	matching := []string{}
	for _, topic := range topics {
		lowered := strings.ToLower(topic)
		for _, keyword := range keywords {
			if strings.Contains(lowered, keyword) {
				matching = append(matching, topic)
				break
			}
		}
	}
	return matching
}
