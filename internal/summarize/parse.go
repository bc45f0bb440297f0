package summarize

import "strings"

// Section markers. Korean is the default output language; English headers
// from providers that ignore the language instruction are accepted too.
var (
	summaryMarkers   = []string{"요약", "문제 상황", "summary", "problem"}
	keyPointMarkers  = []string{"핵심 포인트", "주요 포인트", "key points", "key decisions"}
	sentimentMarkers = []string{"감정 분석", "감정", "sentiment"}
	priorityMarkers  = []string{"우선순위", "긴급도", "priority", "urgency"}
)

type sectionKind int

const (
	sectionNone sectionKind = iota
	sectionSummary
	sectionKeyPoints
	sectionSentiment
	sectionPriority
)

// headerKind recognizes a section header line ("## 요약", "**요약:**",
// "요약:") and returns which section it opens.
func headerKind(line string) sectionKind {
	trimmed := strings.ToLower(strings.TrimSpace(line))
	trimmed = strings.Trim(trimmed, "#*: \t")
	if trimmed == "" {
		return sectionNone
	}
	match := func(markers []string) bool {
		for _, m := range markers {
			if strings.HasPrefix(trimmed, strings.ToLower(m)) {
				return true
			}
		}
		return false
	}
	switch {
	case match(keyPointMarkers):
		return sectionKeyPoints
	case match(sentimentMarkers):
		return sectionSentiment
	case match(priorityMarkers):
		return sectionPriority
	case match(summaryMarkers):
		return sectionSummary
	default:
		return sectionNone
	}
}

// Parse splits model output into the structured summary. Lines before the
// first recognized header fall into the ticket summary so un-templated
// output still yields something usable.
func Parse(text string) *Summary {
	sum := &Summary{}
	current := sectionSummary

	var summaryLines, sentimentLines, priorityLines []string
	for _, line := range strings.Split(text, "\n") {
		if kind := headerKind(line); kind != sectionNone {
			current = kind
			// Inline form: "감정 분석: 부정".
			if _, after, found := strings.Cut(line, ":"); found && strings.TrimSpace(after) != "" {
				appendLine(current, strings.TrimSpace(after), &summaryLines, &sum.KeyPoints, &sentimentLines, &priorityLines)
			}
			continue
		}

		content := strings.TrimSpace(line)
		if content == "" {
			continue
		}
		appendLine(current, content, &summaryLines, &sum.KeyPoints, &sentimentLines, &priorityLines)
	}

	sum.TicketSummary = strings.Join(summaryLines, " ")
	sum.Sentiment = strings.Join(sentimentLines, " ")
	parsePriority(strings.Join(priorityLines, " "), sum)
	return sum
}

func appendLine(kind sectionKind, content string, summary *[]string, keyPoints *[]string, sentiment, priority *[]string) {
	switch kind {
	case sectionKeyPoints:
		content = strings.TrimLeft(content, "-•* \t")
		if content != "" {
			*keyPoints = append(*keyPoints, content)
		}
	case sectionSentiment:
		*sentiment = append(*sentiment, content)
	case sectionPriority:
		*priority = append(*priority, content)
	default:
		*summary = append(*summary, content)
	}
}

// urgencyWords maps urgency phrasings to the canonical level, checked in
// order so mixed-language output resolves deterministically.
var urgencyWords = []struct{ word, level string }{
	{"높음", "high"},
	{"보통", "medium"},
	{"중간", "medium"},
	{"낮음", "low"},
}

// priorityWords are the recognized priority recommendations.
var priorityWords = []string{"urgent", "high", "medium", "low"}

// parsePriority extracts the priority recommendation and urgency level from
// the priority section's free text.
func parsePriority(text string, sum *Summary) {
	sum.PriorityRecommendation = strings.TrimSpace(text)
	lower := strings.ToLower(text)

	for _, p := range priorityWords {
		if strings.Contains(lower, p) {
			// Report the bare level, not the whole sentence, when found.
			sum.PriorityRecommendation = p
			break
		}
	}
	for _, u := range urgencyWords {
		if strings.Contains(lower, u.word) {
			sum.UrgencyLevel = u.level
			break
		}
	}
	if sum.UrgencyLevel == "" {
		switch sum.PriorityRecommendation {
		case "urgent", "high":
			sum.UrgencyLevel = "high"
		case "medium":
			sum.UrgencyLevel = "medium"
		case "low":
			sum.UrgencyLevel = "low"
		}
	}
}
