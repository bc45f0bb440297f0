package retrieval

import (
	"crypto/md5"
	"sort"
	"strings"
	"unicode"
)

const (
	// DefaultMaxContextTokens caps the assembled context.
	DefaultMaxContextTokens = 8000
	// DefaultTargetTokensPerDoc bounds the relevance extract of one document.
	DefaultTargetTokensPerDoc = 1500
	// DedupSimilarityThreshold is the similarity ratio at which two documents
	// count as duplicates.
	DedupSimilarityThreshold = 0.8

	// dedupCompareRunes caps the prefix fed to the similarity ratio; the
	// ratio is quadratic and long documents settle well within this.
	dedupCompareRunes = 1000
)

// Doc is one retrieved document entering the context builder.
type Doc struct {
	OriginalID string  `json:"original_id"`
	DocType    string  `json:"doc_type"`
	Title      string  `json:"title,omitempty"`
	Content    string  `json:"content"`
	Score      float32 `json:"score"`
}

// ContextMeta reports what the builder did to the document set.
type ContextMeta struct {
	OriginalCount           int `json:"original_count"`
	AfterDeduplicationCount int `json:"after_deduplication_count"`
	FinalCount              int `json:"final_count"`
	TotalTokens             int `json:"total_tokens"`
}

// ContextBuilder turns scored documents into a bounded LLM context: ranks by
// quality, drops exact and near duplicates, extracts the query-relevant part
// of each document, and stops at the token cap.
type ContextBuilder struct {
	counter      *TokenCounter
	maxTokens    int
	targetPerDoc int
}

// NewContextBuilder creates a builder. Zero limits take the defaults.
func NewContextBuilder(counter *TokenCounter, maxTokens, targetPerDoc int) *ContextBuilder {
	if counter == nil {
		counter = NewTokenCounter()
	}
	if maxTokens <= 0 {
		maxTokens = DefaultMaxContextTokens
	}
	if targetPerDoc <= 0 {
		targetPerDoc = DefaultTargetTokensPerDoc
	}
	return &ContextBuilder{counter: counter, maxTokens: maxTokens, targetPerDoc: targetPerDoc}
}

// Build assembles the context string and returns the documents that made it
// in, in inclusion order, plus the metadata.
func (b *ContextBuilder) Build(query string, docs []Doc) (string, []Doc, ContextMeta) {
	meta := ContextMeta{OriginalCount: len(docs)}

	ranked := make([]Doc, len(docs))
	copy(ranked, docs)
	sort.SliceStable(ranked, func(i, j int) bool {
		return qualityScore(ranked[i]) > qualityScore(ranked[j])
	})

	kept := dedup(ranked)
	meta.AfterDeduplicationCount = len(kept)

	var sections []string
	var final []Doc
	used := 0
	for _, doc := range kept {
		extract := extractRelevant(b.counter, query, doc.Content, b.targetPerDoc)
		section := formatSection(doc, extract)
		cost := b.counter.Count(section)
		if used+cost > b.maxTokens {
			continue
		}
		used += cost
		sections = append(sections, section)
		final = append(final, doc)
	}

	meta.FinalCount = len(final)
	meta.TotalTokens = used
	return strings.Join(sections, "\n\n"), final, meta
}

// qualityScore blends the vector score with a content-size band: stubs rank
// below substantial documents at equal similarity.
func qualityScore(doc Doc) float64 {
	runes := len([]rune(doc.Content))
	var content float64
	switch {
	case runes < 50:
		content = 0.3
	case runes < 200:
		content = 0.7
	default:
		content = 1.0
	}
	return 0.7*float64(doc.Score) + 0.3*content
}

// dedup drops exact duplicates by content hash and near duplicates by
// similarity ratio against every already-kept document. Input order decides
// which copy survives, so callers rank first.
func dedup(docs []Doc) []Doc {
	seen := make(map[[16]byte]bool)
	var kept []Doc
	var keptNorm []string
	for _, doc := range docs {
		norm := normalizeContent(doc.Content)
		h := md5.Sum([]byte(norm))
		if seen[h] {
			continue
		}
		prefix := runePrefix(norm, dedupCompareRunes)
		dup := false
		for _, other := range keptNorm {
			if similarityRatio(prefix, other) >= DedupSimilarityThreshold {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		seen[h] = true
		kept = append(kept, doc)
		keptNorm = append(keptNorm, prefix)
	}
	return kept
}

func normalizeContent(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func runePrefix(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// extractRelevant trims content toward the per-document token target by
// keeping the sentences that overlap the query terms most, in their
// original order. With no query overlap at all it keeps the leading
// sentences instead.
func extractRelevant(counter *TokenCounter, query, content string, target int) string {
	if counter.Count(content) <= target {
		return content
	}

	sentences := splitSentences(content)
	terms := queryTerms(query)

	type scored struct {
		idx   int
		score float64
	}
	order := make([]scored, len(sentences))
	anyOverlap := false
	for i, s := range sentences {
		score := overlapScore(terms, s)
		if score > 0 {
			anyOverlap = true
		}
		order[i] = scored{idx: i, score: score}
	}
	if anyOverlap {
		sort.SliceStable(order, func(i, j int) bool { return order[i].score > order[j].score })
	}

	picked := make(map[int]bool)
	used := 0
	for _, c := range order {
		cost := counter.Count(sentences[c.idx])
		if used+cost > target {
			continue
		}
		used += cost
		picked[c.idx] = true
	}

	var out []string
	for i, s := range sentences {
		if picked[i] {
			out = append(out, s)
		}
	}
	if len(out) == 0 && len(sentences) > 0 {
		out = append(out, runePrefix(sentences[0], target))
	}
	return strings.Join(out, " ")
}

// splitSentences breaks text at sentence-final punctuation and newlines.
func splitSentences(text string) []string {
	var out []string
	var b strings.Builder
	flush := func() {
		if s := strings.TrimSpace(b.String()); s != "" {
			out = append(out, s)
		}
		b.Reset()
	}
	for _, r := range text {
		b.WriteRune(r)
		switch r {
		case '.', '!', '?', '\n':
			flush()
		}
	}
	flush()
	return out
}

func queryTerms(query string) map[string]bool {
	terms := make(map[string]bool)
	for _, f := range strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if len([]rune(f)) >= 2 {
			terms[f] = true
		}
	}
	return terms
}

func overlapScore(terms map[string]bool, sentence string) float64 {
	if len(terms) == 0 {
		return 0
	}
	hits := 0
	lower := strings.ToLower(sentence)
	for term := range terms {
		if strings.Contains(lower, term) {
			hits++
		}
	}
	return float64(hits) / float64(len(terms))
}

func formatSection(doc Doc, content string) string {
	var b strings.Builder
	b.WriteString("[")
	b.WriteString(doc.DocType)
	b.WriteString(" ")
	b.WriteString(doc.OriginalID)
	b.WriteString("]")
	if doc.Title != "" {
		b.WriteString(" ")
		b.WriteString(doc.Title)
	}
	b.WriteString("\n")
	b.WriteString(content)
	return b.String()
}
