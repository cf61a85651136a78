package toolflow

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
	"unicode"
)

// Strategy selects the scoring algorithm used to rank tools against a
// task description. All strategies are fixed-weight heuristics; the
// constants below are tunable parameters, not learned values.
type Strategy string

const (
	StrategyKeyword    Strategy = "keyword"
	StrategyCapability Strategy = "capability"
	StrategyHistorical Strategy = "historical"
	StrategyHybrid     Strategy = "hybrid"
	StrategyAdaptive   Strategy = "adaptive"
)

// Scoring weights. Keyword and capability weights are per-match
// contributions capped at 1.0; the blend weights are fixed linear
// coefficients.
const (
	keywordNameWeight = 0.4
	keywordDescWeight = 0.15
	keywordTagWeight  = 0.2

	capabilityPhraseWeight = 0.5
	capabilityWordWeight   = 0.25

	historicalUsageWeight   = 0.3
	historicalLatencyWeight = 0.2
	historicalRecencyWeight = 0.2
	historicalKeywordWeight = 0.3

	hybridKeywordWeight    = 0.3
	hybridCapabilityWeight = 0.5
	hybridHistoricalWeight = 0.2

	adaptiveSuccessBonus    = 0.10
	adaptiveFailurePenalty  = 0.15
	adaptiveRelatedBonus    = 0.05
	adaptiveComplexityScale = 0.10
)

// TaskContext supplies the adaptive strategy with prior outcomes and
// task shape hints.
type TaskContext struct {
	// PriorSuccesses and PriorFailures name tools that previously
	// succeeded or failed on this task.
	PriorSuccesses []string
	PriorFailures  []string

	// RelatedTools counts associations between tools and tasks related
	// to this one.
	RelatedTools map[string]int

	// Complexity is an optional task complexity hint in [0,1], compared
	// against a tool's declared "complexity" metadata.
	Complexity *float64
}

// SelectOptions control a selection call.
type SelectOptions struct {
	// Strategy defaults to StrategyHybrid.
	Strategy Strategy

	// MinScore discards tools scoring below it (default: 0.1).
	MinScore float64

	// MaxTools truncates the ranked list (default: 5).
	MaxTools int

	// SkipCache forces recomputation.
	SkipCache bool

	// Context feeds the adaptive strategy. Ignored by the others.
	Context *TaskContext

	// Now provides the current time (for testing). If nil, uses time.Now.
	Now func() time.Time
}

// CacheInfo describes how the cache participated in a selection.
type CacheInfo struct {
	Hit      bool
	Key      string
	StoredAt time.Time
}

// Selection is the ranked outcome of a SelectTools call.
type Selection struct {
	SelectedTools []string
	Scores        map[string]float64
	Reasons       map[string]string
	Strategy      Strategy
	Cache         CacheInfo
}

// SelectorConfig configures a Selector.
type SelectorConfig struct {
	// CacheTTL bounds the age of reusable cache entries (default: 5m).
	CacheTTL time.Duration

	// CacheCapacity bounds the number of cache entries (default: 100).
	CacheCapacity int
}

// Selector ranks catalog tools against free-text task descriptions.
// Results are cached per (strategy, task hash) and reused only while the
// catalog's tool set is unchanged and the entry is within its TTL.
type Selector struct {
	catalog *Catalog
	cache   *selectionCache
}

// NewSelector creates a selector over the given catalog.
func NewSelector(catalog *Catalog, cfg SelectorConfig) *Selector {
	return &Selector{
		catalog: catalog,
		cache:   newSelectionCache(cfg.CacheTTL, cfg.CacheCapacity),
	}
}

// SelectTools scores every cataloged tool against the task text, discards
// scores below MinScore, and returns the top MaxTools names in descending
// score order with a per-tool justification.
func (s *Selector) SelectTools(ctx context.Context, task string, opts SelectOptions) (*Selection, error) {
	if strings.TrimSpace(task) == "" {
		return nil, ErrEmptyTask
	}
	if opts.Strategy == "" {
		opts.Strategy = StrategyHybrid
	}
	if opts.MinScore == 0 {
		opts.MinScore = 0.1
	}
	if opts.MaxTools <= 0 {
		opts.MaxTools = 5
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	names := s.catalog.Names()
	key := cacheKey(opts.Strategy, task)

	if !opts.SkipCache {
		if cached, ok := s.cache.get(key, names, now()); ok {
			return cached, nil
		}
	}

	metadata := s.catalog.AllMetadata()
	taskTokens := tokenize(task)
	taskLower := strings.ToLower(task)

	scores := make(map[string]float64, len(metadata))
	reasons := make(map[string]string, len(metadata))

	for i := range metadata {
		m := &metadata[i]
		score, reason := s.scoreTool(m, opts.Strategy, taskTokens, taskLower, opts.Context, now())
		scores[m.Name] = score
		reasons[m.Name] = reason
	}

	var ranked []string
	for name, score := range scores {
		if score >= opts.MinScore {
			ranked = append(ranked, name)
		}
	}
	sort.Slice(ranked, func(i, j int) bool {
		if scores[ranked[i]] == scores[ranked[j]] {
			return ranked[i] < ranked[j]
		}
		return scores[ranked[i]] > scores[ranked[j]]
	})
	if len(ranked) > opts.MaxTools {
		ranked = ranked[:opts.MaxTools]
	}

	sel := &Selection{
		SelectedTools: ranked,
		Scores:        scores,
		Reasons:       reasons,
		Strategy:      opts.Strategy,
		Cache:         CacheInfo{Key: key},
	}

	stored := s.cache.put(key, sel, names, now())
	sel.Cache.StoredAt = stored
	return sel, nil
}

// InvalidateCache drops all cached selections.
func (s *Selector) InvalidateCache() {
	s.cache.clear()
}

func (s *Selector) scoreTool(m *ToolMetadata, strategy Strategy, taskTokens map[string]struct{}, taskLower string, tc *TaskContext, now time.Time) (float64, string) {
	switch strategy {
	case StrategyKeyword:
		return keywordScore(m, taskTokens)
	case StrategyCapability:
		return capabilityScore(m, taskTokens, taskLower)
	case StrategyHistorical:
		return historicalScore(m, taskTokens, now)
	case StrategyAdaptive:
		return adaptiveScore(m, taskTokens, taskLower, tc, now)
	default:
		return hybridScore(m, taskTokens, taskLower, now)
	}
}

// keywordScore measures overlap of the task text with the tool's name
// tokens, description keywords, and tags.
func keywordScore(m *ToolMetadata, taskTokens map[string]struct{}) (float64, string) {
	var matched []string
	score := 0.0

	nameTokens := splitIdentifier(m.Name)
	nameHits := 0
	for _, tok := range nameTokens {
		if _, ok := taskTokens[tok]; ok {
			nameHits++
			matched = append(matched, "name:"+tok)
		}
	}
	if len(nameTokens) > 0 {
		score += keywordNameWeight * float64(nameHits) / float64(len(nameTokens))
	}

	for kw := range significantWords(m.Description) {
		if _, ok := taskTokens[kw]; ok {
			score += keywordDescWeight
			matched = append(matched, "desc:"+kw)
		}
	}

	for _, tag := range m.Tags {
		if _, ok := taskTokens[strings.ToLower(tag)]; ok {
			score += keywordTagWeight
			matched = append(matched, "tag:"+tag)
		}
	}

	score = math.Min(score, 1.0)
	if len(matched) == 0 {
		return 0, "no keyword overlap"
	}
	return score, fmt.Sprintf("keyword overlap: %s", strings.Join(matched, ", "))
}

// capabilityScore measures overlap of the task text with the declared
// capability tags, weighting whole-phrase matches above word matches.
func capabilityScore(m *ToolMetadata, taskTokens map[string]struct{}, taskLower string) (float64, string) {
	var matched []string
	score := 0.0

	for _, capability := range m.Capabilities {
		phrase := strings.ToLower(strings.NewReplacer("-", " ", "_", " ").Replace(capability))
		if phrase != "" && strings.Contains(taskLower, phrase) {
			score += capabilityPhraseWeight
			matched = append(matched, "phrase:"+capability)
			continue
		}
		for w := range significantWords(phrase) {
			if _, ok := taskTokens[w]; ok {
				score += capabilityWordWeight
				matched = append(matched, "word:"+w)
			}
		}
	}

	score = math.Min(score, 1.0)
	if len(matched) == 0 {
		return 0, "no capability overlap"
	}
	return score, fmt.Sprintf("capability overlap: %s", strings.Join(matched, ", "))
}

// historicalScore blends normalized use count, inverse average latency,
// and recency of last use, with the keyword score as a tie-break.
func historicalScore(m *ToolMetadata, taskTokens map[string]struct{}, now time.Time) (float64, string) {
	usage := float64(m.UseCount) / float64(m.UseCount+10)

	latency := 0.0
	if m.UseCount > 0 {
		latency = 1.0 / (1.0 + m.AvgDuration.Seconds())
	}

	recency := 0.0
	if !m.LastUsed.IsZero() {
		age := now.Sub(m.LastUsed)
		if age < 24*time.Hour {
			recency = 1.0 - age.Hours()/24.0
		}
	}

	kw, _ := keywordScore(m, taskTokens)

	score := historicalUsageWeight*usage +
		historicalLatencyWeight*latency +
		historicalRecencyWeight*recency +
		historicalKeywordWeight*kw
	score = math.Min(score, 1.0)

	reason := fmt.Sprintf("history: %d uses, avg %s, keyword %.2f", m.UseCount, m.AvgDuration.Round(time.Millisecond), kw)
	return score, reason
}

// hybridScore is the fixed linear blend of the other three strategies.
func hybridScore(m *ToolMetadata, taskTokens map[string]struct{}, taskLower string, now time.Time) (float64, string) {
	kw, _ := keywordScore(m, taskTokens)
	capScore, _ := capabilityScore(m, taskTokens, taskLower)
	hist, _ := historicalScore(m, taskTokens, now)

	score := hybridKeywordWeight*kw + hybridCapabilityWeight*capScore + hybridHistoricalWeight*hist
	reason := fmt.Sprintf("hybrid: keyword %.2f, capability %.2f, historical %.2f", kw, capScore, hist)
	return math.Min(score, 1.0), reason
}

// adaptiveScore adjusts the hybrid score with prior outcomes, related-task
// associations, and a complexity-match bonus.
func adaptiveScore(m *ToolMetadata, taskTokens map[string]struct{}, taskLower string, tc *TaskContext, now time.Time) (float64, string) {
	score, _ := hybridScore(m, taskTokens, taskLower, now)
	var adjustments []string

	if tc != nil {
		for _, name := range tc.PriorSuccesses {
			if name == m.Name {
				score += adaptiveSuccessBonus
				adjustments = append(adjustments, "prior success")
				break
			}
		}
		for _, name := range tc.PriorFailures {
			if name == m.Name {
				score -= adaptiveFailurePenalty
				adjustments = append(adjustments, "prior failure")
				break
			}
		}
		if n := tc.RelatedTools[m.Name]; n > 0 {
			score += adaptiveRelatedBonus * float64(n)
			adjustments = append(adjustments, fmt.Sprintf("%d related tasks", n))
		}
		if tc.Complexity != nil {
			if declared, ok := toolComplexity(m); ok {
				bonus := adaptiveComplexityScale * (1.0 - math.Abs(*tc.Complexity-declared))
				score += bonus
				adjustments = append(adjustments, fmt.Sprintf("complexity match %.2f", bonus))
			}
		}
	}

	score = math.Max(0, math.Min(score, 1.0))
	reason := "adaptive: hybrid base"
	if len(adjustments) > 0 {
		reason = fmt.Sprintf("adaptive: %s", strings.Join(adjustments, ", "))
	}
	return score, reason
}

// toolComplexity reads the declared complexity hint from tool metadata.
func toolComplexity(m *ToolMetadata) (float64, bool) {
	v, ok := m.Extra["complexity"]
	if !ok {
		return 0, false
	}
	switch c := v.(type) {
	case float64:
		return c, true
	case float32:
		return float64(c), true
	case int:
		return float64(c), true
	}
	return 0, false
}

// tokenize lowercases the text and splits it on non-alphanumeric runes.
func tokenize(text string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, tok := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		out[tok] = struct{}{}
	}
	return out
}

// significantWords returns lowercase words longer than three characters.
func significantWords(text string) map[string]struct{} {
	out := make(map[string]struct{})
	for tok := range tokenize(text) {
		if len(tok) > 3 {
			out[tok] = struct{}{}
		}
	}
	return out
}

// splitIdentifier breaks a tool name into lowercase tokens, splitting on
// separators and camelCase boundaries ("textSearch" -> "text", "search").
func splitIdentifier(name string) []string {
	var tokens []string
	var current []rune
	flush := func() {
		if len(current) > 0 {
			tokens = append(tokens, strings.ToLower(string(current)))
			current = current[:0]
		}
	}
	for _, r := range name {
		switch {
		case !unicode.IsLetter(r) && !unicode.IsDigit(r):
			flush()
		case unicode.IsUpper(r):
			flush()
			current = append(current, r)
		default:
			current = append(current, r)
		}
	}
	flush()
	return tokens
}
