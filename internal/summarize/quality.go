package summarize

import (
	"strings"
	"unicode"
)

// Quality gate defaults for batch mode.
const (
	DefaultOverallThreshold   = 0.90
	DefaultStructureThreshold = 0.95
	MaxQualityRetries         = 3
)

// Score weights.
const (
	weightStructure  = 0.30
	weightCompletion = 0.25
	weightFidelity   = 0.20
	weightLanguage   = 0.15
	weightLength     = 0.10
)

// QualityReport breaks a summary's score into its components.
type QualityReport struct {
	Structure  float64 `json:"structure"`
	Completion float64 `json:"completion"`
	Fidelity   float64 `json:"fidelity"`
	Language   float64 `json:"language"`
	Length     float64 `json:"length"`
	Overall    float64 `json:"overall"`
}

// Passes applies the batch-mode thresholds.
func (q QualityReport) Passes() bool {
	return q.Overall >= DefaultOverallThreshold && q.Structure >= DefaultStructureThreshold
}

// Assess scores a parsed summary against the source text it came from.
func Assess(sum *Summary, source string) QualityReport {
	r := QualityReport{
		Structure:  structureScore(sum),
		Completion: completionScore(sum),
		Fidelity:   fidelityScore(sum, source),
		Language:   languageScore(sum),
		Length:     lengthScore(sum, source),
	}
	r.Overall = weightStructure*r.Structure +
		weightCompletion*r.Completion +
		weightFidelity*r.Fidelity +
		weightLanguage*r.Language +
		weightLength*r.Length
	return r
}

// structureScore is the fraction of required sections that parsed non-empty.
func structureScore(sum *Summary) float64 {
	present := 0
	if sum.TicketSummary != "" {
		present++
	}
	if len(sum.KeyPoints) > 0 {
		present++
	}
	if sum.Sentiment != "" {
		present++
	}
	if sum.PriorityRecommendation != "" {
		present++
	}
	return float64(present) / 4.0
}

// completionWords signal that the summary captured outcome information.
var completionWords = []string{
	"해결", "완료", "처리", "안내", "진행", "대기", "예정",
	"resolved", "completed", "pending", "closed", "in progress", "waiting",
}

// completionScore checks the summary for resolution-state information.
func completionScore(sum *Summary) float64 {
	text := strings.ToLower(sum.TicketSummary + " " + strings.Join(sum.KeyPoints, " "))
	for _, w := range completionWords {
		if strings.Contains(text, w) {
			return 1.0
		}
	}
	if sum.TicketSummary == "" {
		return 0
	}
	return 0.5
}

// fidelityScore measures how many summary words actually occur in the
// source. Hallucinated content scores low.
func fidelityScore(sum *Summary, source string) float64 {
	sumWords := contentWords(sum.TicketSummary + " " + strings.Join(sum.KeyPoints, " "))
	if len(sumWords) == 0 {
		return 0
	}
	srcSet := make(map[string]bool)
	for _, w := range contentWords(source) {
		srcSet[w] = true
	}

	matched := 0
	for _, w := range sumWords {
		if srcSet[w] {
			matched++
		}
	}
	return float64(matched) / float64(len(sumWords))
}

// contentWords tokenizes on non-letter/digit boundaries and drops words
// shorter than 2 runes, which removes particles and punctuation noise.
func contentWords(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if len([]rune(f)) >= 2 {
			out = append(out, f)
		}
	}
	return out
}

// placeholderFragments are model filler that should never survive parsing.
var placeholderFragments = []string{
	"[", "]", "...", "n/a", "불명", "unknown", "해당 없음",
}

// languageScore penalizes placeholder fragments and one-word sections.
func languageScore(sum *Summary) float64 {
	score := 1.0
	lower := strings.ToLower(sum.TicketSummary)
	for _, frag := range placeholderFragments {
		if strings.Contains(lower, frag) {
			score -= 0.25
		}
	}
	if len([]rune(sum.TicketSummary)) < 10 {
		score -= 0.5
	}
	if score < 0 {
		return 0
	}
	return score
}

// lengthScore rewards summaries meaningfully shorter than the source but not
// degenerate. Target band: 2%..50% of the source length.
func lengthScore(sum *Summary, source string) float64 {
	srcLen := len([]rune(source))
	sumLen := len([]rune(sum.Raw))
	if sumLen == 0 || srcLen == 0 {
		return 0
	}
	ratio := float64(sumLen) / float64(srcLen)
	switch {
	case ratio > 1.0:
		return 0
	case ratio > 0.5:
		return 0.5
	case ratio < 0.02:
		return 0.3
	default:
		return 1.0
	}
}
