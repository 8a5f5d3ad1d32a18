// Package search ranks stored memories against keyword queries.
//
// Each call runs a pure compute pipeline: enumerate memory files, parse them
// through a shared expiring cache, build an inverted token index, select
// candidates per keyword (exact token hits plus restricted fuzzy near
// misses), score candidates across several factors, then truncate the
// ranked list in tiers so strong matches are never crowded out by marginal
// ones. The parse cache and the performance counters are the only state an
// Engine carries between calls.
package search

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/papercomputeco/engram/pkg/errkind"
	"github.com/papercomputeco/engram/pkg/memory"
)

const (
	// DefaultMaxResults caps a result list when Config leaves it unset.
	DefaultMaxResults = 25

	// minScore is the absolute score below which a candidate is dropped.
	minScore = 0.5

	// previewRunes is the length of a result row's content preview.
	previewRunes = 200
)

// Repository is the slice of the storage layer the engine reads through.
type Repository interface {
	List() ([]string, error)
	ParseFileSafe(path string) *memory.Memory
}

// Config holds search engine configuration.
type Config struct {
	// MaxResults bounds the ranked result list. Zero means
	// DefaultMaxResults.
	MaxResults int
}

// Engine ranks memories for keyword queries. Construct once and share; the
// parse cache and performance counters are process-global by design.
type Engine struct {
	repo   Repository
	config Config
	cache  *parseCache
	stats  *stats
	logger *zap.Logger
}

// Result is one ranked search hit.
type Result struct {
	MemoryID                  string   `json:"memory_id"`
	Agent                     string   `json:"agent"`
	User                      string   `json:"user"`
	MatchingTopics            []string `json:"matching_topics"`
	MemoryTopics              []string `json:"memory_topics"`
	ContentPreview            string   `json:"content_preview"`
	ContentPreviewIsTruncated bool     `json:"content_preview_is_truncated"`
	Timestamp                 string   `json:"timestamp"`
	RelevanceScore            float64  `json:"relevance_score"`
}

// New creates an Engine over repo.
func New(config Config, repo Repository, logger *zap.Logger) *Engine {
	if config.MaxResults <= 0 {
		config.MaxResults = DefaultMaxResults
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		repo:   repo,
		config: config,
		cache:  newParseCache(),
		stats:  newStats(),
		logger: logger,
	}
}

// Search returns ranked previews of the memories matching keywords. An
// empty or all-blank keyword list yields an empty result. The performance
// counters are updated whether or not the search succeeds.
func (e *Engine) Search(ctx context.Context, keywords []string) ([]Result, error) {
	start := time.Now()
	defer func() {
		e.stats.recordSearch(time.Since(start))
	}()

	normalized := normalizeKeywords(keywords)
	if len(normalized) == 0 {
		return []Result{}, nil
	}

	e.logger.Debug("starting search", zap.Strings("keywords", normalized))

	paths, err := e.repo.List()
	if err != nil {
		return nil, errkind.Memory(errkind.CodeMemoryGeneral,
			fmt.Sprintf("Search failed: %v", err),
		).WithContext(map[string]any{
			"operation":   "search_memories",
			"keywords":    normalized,
			"search_time": time.Since(start).Seconds(),
		})
	}
	if len(paths) == 0 {
		e.logger.Debug("no memory files found")
		return []Result{}, nil
	}

	docs := e.loadDocuments(paths)
	index := buildIndex(docs)
	candidates := selectCandidates(index, normalized)

	e.logger.Debug("scoring candidates",
		zap.Int("files", len(paths)),
		zap.Int("candidates", len(candidates)),
	)

	patterns := wordPatterns(normalized)
	now := time.Now()

	scored := make([]Result, 0, len(candidates))
	for _, i := range candidates {
		doc := docs[i]
		score := scoreMemory(doc.mem, normalized, patterns, now)
		if score <= 0 {
			continue
		}
		scored = append(scored, buildResult(doc.mem, normalized, score))
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].RelevanceScore > scored[j].RelevanceScore
	})

	results := tierTruncate(scored, e.config.MaxResults)

	e.logger.Info("search completed",
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("results", len(results)),
	)

	return results, nil
}

type document struct {
	path string
	mem  *memory.Memory
}

// loadDocuments parses every listed path, consulting the parse cache first.
// Files that fail to parse contribute nothing.
func (e *Engine) loadDocuments(paths []string) []document {
	docs := make([]document, 0, len(paths))
	for _, path := range paths {
		mem, ok := e.cache.get(path)
		if ok {
			e.stats.recordCacheHit()
		} else {
			mem = e.repo.ParseFileSafe(path)
			if mem == nil {
				continue
			}
			e.cache.add(path, mem)
			e.stats.recordCacheMiss()
		}
		docs = append(docs, document{path: path, mem: mem})
	}
	return docs
}

// buildIndex maps each word-boundary token (2+ runes, case-folded) from a
// memory's content and topics to the documents containing it.
func buildIndex(docs []document) map[string][]int {
	index := make(map[string][]int)

	addToken := func(token string, doc int) {
		entries := index[token]
		if n := len(entries); n > 0 && entries[n-1] == doc {
			return
		}
		index[token] = append(entries, doc)
	}

	for i, doc := range docs {
		for _, token := range tokenize(doc.mem.Content) {
			addToken(token, i)
		}
		for _, topic := range doc.mem.Topics {
			for _, token := range tokenize(topic) {
				addToken(token, i)
			}
		}
	}

	return index
}

// selectCandidates collects documents whose index contains each keyword
// exactly, plus restricted fuzzy near-misses for keywords of 4+ runes. The
// result is sorted for deterministic scoring order.
func selectCandidates(index map[string][]int, keywords []string) []int {
	set := make(map[int]struct{})

	for _, keyword := range keywords {
		for _, doc := range index[keyword] {
			set[doc] = struct{}{}
		}

		if utf8.RuneCountInString(keyword) < 4 {
			continue
		}
		for token, entries := range index {
			if token == keyword || !fuzzyCandidate(keyword, token) {
				continue
			}
			for _, doc := range entries {
				set[doc] = struct{}{}
			}
		}
	}

	candidates := make([]int, 0, len(set))
	for doc := range set {
		candidates = append(candidates, doc)
	}
	sort.Ints(candidates)
	return candidates
}

// fuzzyCandidate reports whether token is a near-miss for keyword:
// substring containment where the shorter is at least 70% the length of the
// longer, or a shared 4-rune prefix or suffix with a length difference of
// at most 3.
func fuzzyCandidate(keyword, token string) bool {
	kw, tk := []rune(keyword), []rune(token)

	shorter, longer := keyword, token
	if len(kw) > len(tk) {
		shorter, longer = token, keyword
	}
	shortLen, longLen := utf8.RuneCountInString(shorter), utf8.RuneCountInString(longer)
	if strings.Contains(longer, shorter) && 10*shortLen >= 7*longLen {
		return true
	}

	delta := len(kw) - len(tk)
	if delta < 0 {
		delta = -delta
	}
	if delta > 3 || len(kw) < 4 || len(tk) < 4 {
		return false
	}
	if string(kw[:4]) == string(tk[:4]) {
		return true
	}
	return string(kw[len(kw)-4:]) == string(tk[len(tk)-4:])
}

// tierTruncate bounds results to limit in three score tiers relative to the
// top score: tier one (>=70%) always fills first, tier two (40-70%) may take
// up to half the remaining slots, tier three takes whatever is left.
func tierTruncate(results []Result, limit int) []Result {
	if len(results) <= limit {
		return results
	}

	top := results[0].RelevanceScore
	var tier1, tier2, tier3 []Result
	for _, result := range results {
		switch {
		case result.RelevanceScore >= 0.7*top:
			tier1 = append(tier1, result)
		case result.RelevanceScore >= 0.4*top:
			tier2 = append(tier2, result)
		default:
			tier3 = append(tier3, result)
		}
	}

	out := make([]Result, 0, limit)
	out = append(out, tier1[:min(len(tier1), limit)]...)

	remaining := limit - len(out)
	if remaining > 0 {
		quota := (remaining + 1) / 2
		take := min(len(tier2), quota)
		out = append(out, tier2[:take]...)
		remaining -= take
	}
	if remaining > 0 {
		out = append(out, tier3[:min(len(tier3), remaining)]...)
	}

	return out
}

func buildResult(mem *memory.Memory, keywords []string, score float64) Result {
	preview := mem.Content
	truncated := false
	if runes := []rune(mem.Content); len(runes) > previewRunes {
		preview = string(runes[:previewRunes]) + "..."
		truncated = true
	}

	timestamp := ""
	if !mem.Timestamp.IsZero() {
		timestamp = mem.Timestamp.Format(time.RFC3339Nano)
	}

	return Result{
		MemoryID:                  mem.ID,
		Agent:                     mem.Agent,
		User:                      mem.User,
		MatchingTopics:            matchingTopics(mem.Topics, keywords),
		MemoryTopics:              mem.Topics,
		ContentPreview:            preview,
		ContentPreviewIsTruncated: truncated,
		Timestamp:                 timestamp,
		RelevanceScore:            score,
	}
}

// normalizeKeywords lower-cases, trims, and deduplicates keywords, dropping
// empties and preserving first-seen order.
func normalizeKeywords(keywords []string) []string {
	seen := make(map[string]struct{}, len(keywords))
	normalized := make([]string, 0, len(keywords))
	for _, keyword := range keywords {
		keyword = strings.ToLower(strings.TrimSpace(keyword))
		if keyword == "" {
			continue
		}
		if _, dup := seen[keyword]; dup {
			continue
		}
		seen[keyword] = struct{}{}
		normalized = append(normalized, keyword)
	}
	return normalized
}

// tokenize splits text into case-folded word tokens of 2+ runes.
func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})

	tokens := fields[:0]
	for _, field := range fields {
		if utf8.RuneCountInString(field) >= 2 {
			tokens = append(tokens, field)
		}
	}
	return tokens
}

func wordPatterns(keywords []string) map[string]*regexp.Regexp {
	patterns := make(map[string]*regexp.Regexp, len(keywords))
	for _, keyword := range keywords {
		patterns[keyword] = regexp.MustCompile(`\b` + regexp.QuoteMeta(keyword) + `\b`)
	}
	return patterns
}
