package summarize

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/wedosoft/project-a/internal/llm"
)

const goodOutput = `## 요약
로그인 오류 문의가 접수되어 비밀번호 재설정 안내 후 해결 완료되었습니다.

## 핵심 포인트
- 로그인 오류는 만료된 비밀번호가 원인
- 비밀번호 재설정 링크 발송으로 처리

## 감정 분석
부정: 고객이 반복된 로그인 실패로 불편을 표현함

## 우선순위
권장 우선순위: medium, 긴급도: 보통`

// scriptedGen returns scripted texts in order; the last repeats.
type scriptedGen struct {
	mu    sync.Mutex
	texts []string
	calls int
}

func (g *scriptedGen) Generate(ctx context.Context, req llm.Request) (*llm.Response, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	i := g.calls
	if i >= len(g.texts) {
		i = len(g.texts) - 1
	}
	g.calls++
	return &llm.Response{Text: g.texts[i], Model: req.Model, Provider: "fake"}, nil
}

func TestParseKoreanSections(t *testing.T) {
	sum := Parse(goodOutput)

	if !strings.Contains(sum.TicketSummary, "로그인 오류") {
		t.Errorf("ticket_summary = %q", sum.TicketSummary)
	}
	if len(sum.KeyPoints) != 2 {
		t.Fatalf("key_points = %v, want 2 entries", sum.KeyPoints)
	}
	if !strings.HasPrefix(sum.KeyPoints[0], "로그인 오류는") {
		t.Errorf("key_points[0] = %q", sum.KeyPoints[0])
	}
	if !strings.Contains(sum.Sentiment, "부정") {
		t.Errorf("sentiment = %q", sum.Sentiment)
	}
	if sum.PriorityRecommendation != "medium" {
		t.Errorf("priority_recommendation = %q, want medium", sum.PriorityRecommendation)
	}
	if sum.UrgencyLevel != "medium" {
		t.Errorf("urgency_level = %q, want medium", sum.UrgencyLevel)
	}
}

func TestParseEnglishSections(t *testing.T) {
	out := `## Summary
Customer reported a billing discrepancy which was resolved with a refund.

## Key Points
- Invoice 1042 double-charged
- Refund issued

## Sentiment
negative

## Priority
high`

	sum := Parse(out)
	if !strings.Contains(sum.TicketSummary, "billing discrepancy") {
		t.Errorf("ticket_summary = %q", sum.TicketSummary)
	}
	if len(sum.KeyPoints) != 2 {
		t.Errorf("key_points = %v", sum.KeyPoints)
	}
	if sum.Sentiment != "negative" {
		t.Errorf("sentiment = %q", sum.Sentiment)
	}
	if sum.PriorityRecommendation != "high" || sum.UrgencyLevel != "high" {
		t.Errorf("priority=%q urgency=%q, want high/high", sum.PriorityRecommendation, sum.UrgencyLevel)
	}
}

func TestParseUntemplatedOutputFallsBackToSummary(t *testing.T) {
	sum := Parse("The customer asked about pricing and was answered.")
	if sum.TicketSummary == "" {
		t.Error("free text should land in ticket_summary")
	}
}

func TestBuildContextTrimsConversations(t *testing.T) {
	long := strings.Repeat("가", 500)
	in := Input{
		Subject:       "로그인 문제",
		Body:          "비밀번호가   틀렸다고\n\n나옵니다",
		Conversations: []string{"c1", "c2", "c3", "c4", "c5", "c6", long},
	}
	ctx := BuildContext(in)

	if strings.Contains(ctx, "c1") {
		t.Error("only the last 5 conversations should be included")
	}
	if !strings.Contains(ctx, "c3") {
		t.Error("c3 should be within the last 5")
	}
	if strings.Contains(ctx, strings.Repeat("가", 201)) {
		t.Error("conversation should be trimmed to 200 runes")
	}
	if strings.Contains(ctx, "틀렸다고\n\n나옵니다") {
		t.Error("body whitespace should be normalized")
	}
}

func TestAssessScoresCompleteSummaryHigh(t *testing.T) {
	source := BuildContext(Input{
		Subject: "로그인 오류",
		Body: "고객이 로그인 오류를 문의했습니다. 만료된 비밀번호가 원인이었고 " +
			"비밀번호 재설정 링크 발송으로 안내 후 해결 완료되었습니다. 고객이 불편을 표현했습니다. " +
			strings.Repeat("추가 상담 내용입니다. ", 30),
	})
	sum := Parse(goodOutput)
	sum.Raw = goodOutput

	q := Assess(sum, source)
	if q.Structure != 1.0 {
		t.Errorf("structure = %v, want 1.0", q.Structure)
	}
	if q.Completion != 1.0 {
		t.Errorf("completion = %v, want 1.0", q.Completion)
	}
	if !q.Passes() {
		t.Errorf("complete grounded summary should pass, got %+v", q)
	}
}

func TestAssessFailsDegenerateSummary(t *testing.T) {
	sum := Parse("짧음")
	sum.Raw = "짧음"
	q := Assess(sum, "고객이 로그인 오류를 문의했습니다.")
	if q.Passes() {
		t.Errorf("degenerate summary should fail, got %+v", q)
	}
	if q.Structure >= DefaultStructureThreshold {
		t.Errorf("structure = %v, want below threshold", q.Structure)
	}
}

func TestSummarizeUsesCache(t *testing.T) {
	gen := &scriptedGen{texts: []string{goodOutput}}
	s := New(gen, llm.NewSummaryCache(time.Hour))
	in := Input{RecordID: "42", Subject: "로그인 오류", Body: "본문"}
	ctx := context.Background()

	if _, err := s.Summarize(ctx, in); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Summarize(ctx, in); err != nil {
		t.Fatal(err)
	}
	if gen.calls != 1 {
		t.Errorf("generator called %d times, want 1", gen.calls)
	}

	// Changed content misses.
	in.Body = "다른 본문"
	if _, err := s.Summarize(ctx, in); err != nil {
		t.Fatal(err)
	}
	if gen.calls != 2 {
		t.Errorf("generator called %d times after content change, want 2", gen.calls)
	}
}

func TestBatchRetriesBelowThreshold(t *testing.T) {
	// First output is garbage, second passes.
	gen := &scriptedGen{texts: []string{"짧음", goodOutput}}
	s := New(gen, nil)

	body := "고객이 로그인 오류를 문의했습니다. 만료된 비밀번호가 원인이었고 " +
		"비밀번호 재설정 링크 발송으로 안내 후 해결 완료되었습니다. 고객이 불편을 표현했습니다. " +
		strings.Repeat("추가 상담 내용입니다. ", 30)
	inputs := []Input{{RecordID: "1", Subject: "로그인 오류", Body: body}}

	results, err := s.SummarizeBatch(context.Background(), inputs, 2, nil)
	if err != nil {
		t.Fatal(err)
	}
	if results[0].Err != nil {
		t.Fatalf("record error: %v", results[0].Err)
	}
	if results[0].Attempts != 2 {
		t.Errorf("attempts = %d, want 2", results[0].Attempts)
	}
	if !results[0].Quality.Passes() {
		t.Errorf("final quality should pass: %+v", results[0].Quality)
	}
}

func TestBatchReportsProgressAndBoundsConcurrency(t *testing.T) {
	var inFlight, peak int32
	gen := genFunc(func(ctx context.Context, req llm.Request) (*llm.Response, error) {
		cur := atomic.AddInt32(&inFlight, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if cur <= p || atomic.CompareAndSwapInt32(&peak, p, cur) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return &llm.Response{Text: goodOutput}, nil
	})
	s := New(gen, nil)

	inputs := make([]Input, 8)
	for i := range inputs {
		inputs[i] = Input{RecordID: string(rune('a' + i)), Subject: "s", Body: "로그인 오류 해결 완료 본문입니다"}
	}

	var progressCalls int32
	_, err := s.SummarizeBatch(context.Background(), inputs, 2, func(done, total int, r BatchResult) {
		atomic.AddInt32(&progressCalls, 1)
	})
	if err != nil {
		t.Fatal(err)
	}
	if got := atomic.LoadInt32(&progressCalls); got != 8 {
		t.Errorf("progress calls = %d, want 8", got)
	}
	if p := atomic.LoadInt32(&peak); p > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", p)
	}
}

// genFunc adapts a function to Generator.
type genFunc func(ctx context.Context, req llm.Request) (*llm.Response, error)

func (f genFunc) Generate(ctx context.Context, req llm.Request) (*llm.Response, error) {
	return f(ctx, req)
}
