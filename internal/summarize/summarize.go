// Package summarize turns support records into structured summaries with a
// quality gate for batch runs.
package summarize

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/wedosoft/project-a/internal/llm"
	"github.com/wedosoft/project-a/internal/logging"
)

const (
	// ContextConversations is how many trailing conversations go into the
	// summary context.
	ContextConversations = 5
	// ConversationTrim caps each conversation snippet, in runes.
	ConversationTrim = 200
)

// Generator is the slice of the LLM router the summarizer needs.
type Generator interface {
	Generate(ctx context.Context, req llm.Request) (*llm.Response, error)
}

// Summary is the parsed structured output.
type Summary struct {
	TicketSummary          string   `json:"ticket_summary"`
	KeyPoints              []string `json:"key_points"`
	Sentiment              string   `json:"sentiment"`
	PriorityRecommendation string   `json:"priority_recommendation"`
	UrgencyLevel           string   `json:"urgency_level"`

	// Raw is the unparsed model output, kept for storage and caching.
	Raw string `json:"-"`
}

// Summarizer generates structured summaries through the LLM router.
type Summarizer struct {
	gen   Generator
	cache *llm.SummaryCache
	log   zerolog.Logger
}

// New creates a summarizer. cache may be nil.
func New(gen Generator, cache *llm.SummaryCache) *Summarizer {
	return &Summarizer{
		gen:   gen,
		cache: cache,
		log:   logging.WithComponent("summarize"),
	}
}

// Input is one record to summarize.
type Input struct {
	RecordID      string
	Subject       string
	Body          string
	Conversations []string
}

// BuildContext assembles the summarization context: subject, normalized
// body, and the last ContextConversations conversations trimmed to
// ConversationTrim runes each.
func BuildContext(in Input) string {
	var b strings.Builder
	b.WriteString("제목: ")
	b.WriteString(strings.TrimSpace(in.Subject))
	b.WriteString("\n\n본문:\n")
	b.WriteString(normalizeBody(in.Body))

	convs := in.Conversations
	if len(convs) > ContextConversations {
		convs = convs[len(convs)-ContextConversations:]
	}
	if len(convs) > 0 {
		b.WriteString("\n\n최근 대화:\n")
		for i, c := range convs {
			fmt.Fprintf(&b, "%d. %s\n", i+1, trimRunes(strings.TrimSpace(c), ConversationTrim))
		}
	}
	return b.String()
}

// normalizeBody collapses whitespace runs so HTML-stripped bodies don't blow
// up the token budget.
func normalizeBody(body string) string {
	return strings.Join(strings.Fields(body), " ")
}

func trimRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}

// Summarize produces a structured summary for one record, serving repeated
// identical content from the cache.
func (s *Summarizer) Summarize(ctx context.Context, in Input) (*Summary, error) {
	return s.generate(ctx, in, true)
}

// generate runs one summary call. Quality retries pass useCache=false so a
// below-threshold cached output is not just replayed.
func (s *Summarizer) generate(ctx context.Context, in Input, useCache bool) (*Summary, error) {
	contextText := BuildContext(in)

	if useCache && s.cache != nil {
		if raw, ok := s.cache.Get(in.RecordID, contextText); ok {
			sum := Parse(raw)
			sum.Raw = raw
			return sum, nil
		}
	}

	resp, err := s.gen.Generate(ctx, llm.Request{
		Prompt:       contextText,
		SystemPrompt: summarySystemPrompt,
		TaskType:     llm.TaskLight,
		Operation:    "ticket_summary",
	})
	if err != nil {
		return nil, fmt.Errorf("summarize %s: %w", in.RecordID, err)
	}

	if s.cache != nil {
		s.cache.Set(in.RecordID, contextText, resp.Text)
	}
	sum := Parse(resp.Text)
	sum.Raw = resp.Text
	return sum, nil
}

const summarySystemPrompt = `당신은 고객 지원 티켓을 분석하는 전문가입니다. 아래 티켓 내용을 읽고 정확히 다음 네 개 섹션으로 요약하세요.

## 요약
티켓의 문제 상황과 처리 결과를 2-3문장으로 정리합니다.

## 핵심 포인트
- 중요한 사실과 결정 사항을 항목별로 나열합니다.

## 감정 분석
고객의 감정 상태를 한 단어(긍정/중립/부정)와 근거로 설명합니다.

## 우선순위
권장 우선순위(low/medium/high/urgent)와 긴급도(낮음/보통/높음)를 제시합니다.

요약은 입력보다 짧아야 하며, 입력에 없는 내용을 추측하지 마세요.`
