package retrieval

import (
	"strings"
	"testing"
)

func TestSimilarityRatio(t *testing.T) {
	if r := similarityRatio("환불 처리 절차 안내", "환불 처리 절차 안내"); r != 1.0 {
		t.Errorf("identical ratio = %v", r)
	}
	if r := similarityRatio("abcd", "wxyz"); r != 0 {
		t.Errorf("disjoint ratio = %v", r)
	}
	a := "고객이 카드 결제 실패를 보고했고 재시도 후 해결되었습니다"
	b := "고객이 카드 결제 실패를 보고했고 재시도 후 해결됨"
	if r := similarityRatio(a, b); r < 0.8 {
		t.Errorf("near-duplicate ratio = %v, want >= 0.8", r)
	}
	if r := similarityRatio("", ""); r != 1.0 {
		t.Errorf("empty ratio = %v", r)
	}
}

func TestHeuristicTokens(t *testing.T) {
	// Construct without the encoder to force the fallback path.
	c := &TokenCounter{}

	korean := "결제오류"
	if n := c.Count(korean); n != 4 {
		t.Errorf("korean tokens = %d, want 4 (one per rune)", n)
	}
	if n := c.Count("abcdefgh"); n != 2 {
		t.Errorf("latin tokens = %d, want 2 (four chars per token)", n)
	}
	if n := c.Count(""); n != 0 {
		t.Errorf("empty tokens = %d", n)
	}
}

func TestContextBuilderDeduplicates(t *testing.T) {
	base := "고객이 로그인 실패를 보고했습니다. 비밀번호 재설정 메일이 전송되지 않았고, 메일 서버 로그에서 반송 기록이 확인되었습니다. SPF 설정을 수정한 뒤 정상 전송되었습니다."
	overlap := base + " 추가로 고객에게 안내 메일을 발송했습니다."

	docs := []Doc{
		{OriginalID: "1", DocType: "ticket", Content: base, Score: 0.9},
		{OriginalID: "2", DocType: "ticket", Content: base, Score: 0.8},
		{OriginalID: "3", DocType: "ticket", Content: overlap, Score: 0.7},
		{OriginalID: "4", DocType: "article", Content: "완전히 다른 주제의 결제 정책 문서입니다. 환불 절차와 기한을 설명합니다.", Score: 0.6},
	}

	builder := NewContextBuilder(nil, 0, 0)
	text, final, meta := builder.Build("로그인", docs)

	if meta.OriginalCount != 4 {
		t.Errorf("original count = %d", meta.OriginalCount)
	}
	if meta.AfterDeduplicationCount != 2 {
		t.Errorf("after dedup = %d, want 2", meta.AfterDeduplicationCount)
	}
	if meta.FinalCount != 2 || len(final) != 2 {
		t.Errorf("final count = %d", meta.FinalCount)
	}
	if meta.TotalTokens <= 0 || meta.TotalTokens > DefaultMaxContextTokens {
		t.Errorf("total tokens = %d", meta.TotalTokens)
	}
	if text == "" {
		t.Error("empty context")
	}

	// The survivors are one login doc and the unrelated payment doc.
	ids := map[string]bool{}
	for _, d := range final {
		ids[d.OriginalID] = true
	}
	if !ids["4"] {
		t.Errorf("unrelated doc dropped: %v", ids)
	}
}

func TestContextBuilderCapsTokens(t *testing.T) {
	long := strings.Repeat("서로 다른 내용의 문장입니다. ", 30)
	docs := []Doc{
		{OriginalID: "1", DocType: "ticket", Content: long + "첫번째 문서", Score: 0.9},
		{OriginalID: "2", DocType: "ticket", Content: "두번째 문서는 결제 환불 절차를 설명합니다", Score: 0.8},
	}

	builder := NewContextBuilder(nil, 80, 1000)
	_, final, meta := builder.Build("환불", docs)

	if meta.TotalTokens > 80 {
		t.Errorf("total tokens = %d, want <= 80", meta.TotalTokens)
	}
	// Only the short document fits; the long one is skipped, not truncated
	// past the cap.
	if meta.FinalCount != 1 || len(final) != 1 || final[0].OriginalID != "2" {
		t.Errorf("cap had no effect: meta = %+v, final = %+v", meta, final)
	}
}

func TestExtractRelevantKeepsQuerySentences(t *testing.T) {
	counter := NewTokenCounter()
	content := "배송은 보통 이틀 걸립니다. " +
		"환불은 영업일 기준 삼일 내에 계좌로 입금됩니다. " +
		strings.Repeat("관련 없는 부가 설명이 길게 이어집니다. ", 40)

	target := 100
	out := extractRelevant(counter, "환불 얼마나", content, target)

	if !strings.Contains(out, "환불은 영업일 기준") {
		t.Errorf("relevant sentence dropped: %q", out)
	}
	if n := counter.Count(out); n > target {
		t.Errorf("extract uses %d tokens, want <= %d", n, target)
	}
}

func TestQualityRankingPrefersSubstantialDocs(t *testing.T) {
	docs := []Doc{
		{OriginalID: "stub", DocType: "ticket", Content: "짧음", Score: 0.85},
		{OriginalID: "full", DocType: "ticket", Content: strings.Repeat("충분히 긴 본문 내용입니다. ", 30), Score: 0.80},
	}
	builder := NewContextBuilder(nil, 0, 0)
	_, final, _ := builder.Build("", docs)

	if len(final) != 2 {
		t.Fatalf("final = %d docs", len(final))
	}
	if final[0].OriginalID != "full" {
		t.Errorf("first doc = %s, want the substantial one", final[0].OriginalID)
	}
}
