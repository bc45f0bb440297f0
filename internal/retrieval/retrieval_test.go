package retrieval

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/wedosoft/project-a/internal/apperr"
	"github.com/wedosoft/project-a/internal/llm"
	"github.com/wedosoft/project-a/internal/platform"
	"github.com/wedosoft/project-a/internal/storage/sqlite"
	"github.com/wedosoft/project-a/internal/summarize"
	"github.com/wedosoft/project-a/internal/types"
	"github.com/wedosoft/project-a/internal/vectorstore"
	"github.com/wedosoft/project-a/internal/vectorstore/memory"
)

// fakeLLM scripts the router: canned generations keyed by operation, fixed
// embeddings.
type fakeLLM struct {
	mu       sync.Mutex
	requests []llm.Request
	embeds   int
}

func (f *fakeLLM) Generate(ctx context.Context, req llm.Request) (*llm.Response, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	text := "답변입니다. 문서 1001을 참고하세요."
	switch {
	case req.Operation == "ticket_summary":
		text = "## 요약\n로그인 오류가 보고되어 해결되었습니다.\n## 핵심 포인트\n- 비밀번호 재설정\n## 감정 분석\n중립\n## 우선순위\nmedium, 보통"
	case req.Operation == "similar_ticket_summary":
		text = "유사 티켓 요약"
	case req.Operation == "customer_reply":
		text = "안녕하세요, 문의하신 문제를 확인했습니다."
	}
	return &llm.Response{Text: text, Model: req.Model, Provider: "fake"}, nil
}

func (f *fakeLLM) Embed(ctx context.Context, model string, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.embeds++
	f.mu.Unlock()
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

func (f *fakeLLM) operations() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ops []string
	for _, r := range f.requests {
		ops = append(ops, r.Operation)
	}
	return ops
}

// fakeUpstream is the live provider side of the init flow.
type fakeUpstream struct {
	ticket *platform.Ticket
	err    error
}

func (f *fakeUpstream) Name() string { return "freshdesk" }
func (f *fakeUpstream) ListTicketsUpdatedSince(ctx context.Context, opts platform.ListOptions) ([]platform.Ticket, error) {
	return nil, nil
}
func (f *fakeUpstream) GetTicket(ctx context.Context, originalID string) (*platform.Ticket, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.ticket, nil
}
func (f *fakeUpstream) ListConversations(ctx context.Context, ticketID string) ([]platform.Conversation, error) {
	if f.ticket == nil {
		return nil, nil
	}
	return f.ticket.Conversations, nil
}
func (f *fakeUpstream) ListTicketAttachments(ctx context.Context, ticketID string) ([]platform.Attachment, error) {
	return nil, nil
}
func (f *fakeUpstream) ListArticles(ctx context.Context, opts platform.ListOptions) ([]platform.Article, error) {
	return nil, nil
}

const (
	testTenant   = "acme"
	testPlatform = "freshdesk"
)

func testScope() Scope {
	return Scope{TenantID: testTenant, Platform: testPlatform,
		Credentials: platform.Credentials{Domain: "acme", APIKey: "key"}}
}

// newTestOrchestrator assembles an orchestrator over a real sqlite store, an
// in-memory vector store, and scripted upstream/LLM fakes.
func newTestOrchestrator(t *testing.T, upstream platform.Provider) (*Orchestrator, *fakeLLM, *memory.Store) {
	t.Helper()

	store, err := sqlite.New(filepath.Join(t.TempDir(), "db"))
	if err != nil {
		t.Fatalf("sqlite.New: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	registry := platform.NewRegistry()
	registry.Register(testPlatform, func(creds platform.Credentials) (platform.Provider, error) {
		return upstream, nil
	})

	router := &fakeLLM{}
	vectors := memory.New()
	o := New(registry, store, vectors, router, summarize.New(router, nil), "text-embedding-3-small")
	return o, router, vectors
}

func seedTicket(t *testing.T, o *Orchestrator, originalID, subject, content string) {
	t.Helper()
	err := o.store.UpsertIntegratedObject(context.Background(), &types.IntegratedObject{
		TenantID:          testTenant,
		Platform:          testPlatform,
		ObjectType:        types.ObjectTypeTicket,
		OriginalID:        originalID,
		IntegratedContent: content,
		Metadata:          types.Metadata{Subject: subject, Status: "open", Priority: "medium"},
	})
	if err != nil {
		t.Fatalf("seed ticket %s: %v", originalID, err)
	}
}

func seedConversation(t *testing.T, o *Orchestrator, originalID, ticketID, body string) {
	t.Helper()
	err := o.store.UpsertIntegratedObject(context.Background(), &types.IntegratedObject{
		TenantID:          testTenant,
		Platform:          testPlatform,
		ObjectType:        types.ObjectTypeConversation,
		OriginalID:        originalID,
		IntegratedContent: body,
		Metadata:          types.Metadata{ParentType: "ticket", ParentOriginalID: ticketID},
	})
	if err != nil {
		t.Fatalf("seed conversation %s: %v", originalID, err)
	}
}

func seedPoint(t *testing.T, vectors *memory.Store, docType, originalID, subject, summary string, vec []float32) {
	t.Helper()
	point := vectorstore.NewPoint(vec, vectorstore.Payload{
		TenantID:       testTenant,
		Platform:       testPlatform,
		DocType:        docType,
		OriginalID:     originalID,
		Summary:        summary,
		TenantMetadata: map[string]any{"subject": subject},
	})
	if err := vectors.Upsert(context.Background(), []vectorstore.Point{point}); err != nil {
		t.Fatalf("seed point %s: %v", originalID, err)
	}
}

func TestInitFallsBackToStore(t *testing.T) {
	// Upstream does not know the ticket; the store does.
	o, _, vectors := newTestOrchestrator(t, &fakeUpstream{err: platform.ErrNotFound})
	seedTicket(t, o, "999999", "결제 오류 문의", "카드 결제가 실패합니다")
	seedConversation(t, o, "c1", "999999", "재시도해도 동일한 오류입니다")
	seedConversation(t, o, "c2", "888888", "다른 티켓의 대화")

	seedPoint(t, vectors, "ticket", "999999", "결제 오류 문의", "결제 실패 요약", []float32{1, 0, 0})
	seedPoint(t, vectors, "ticket", "1001", "환불 문의", "환불 처리 요약", []float32{0.9, 0.1, 0})
	seedPoint(t, vectors, "ticket", "1002", "배송 문의", "배송 지연 요약", []float32{0.5, 0.5, 0})
	seedPoint(t, vectors, "article", "2001", "결제 가이드", "결제 방법 안내", []float32{0.8, 0.2, 0})

	result, err := o.Init(context.Background(), testScope(), "999999", InitOptions{TopK: 3})
	if err != nil {
		t.Fatal(err)
	}

	if result.TicketData.Source != "store" {
		t.Errorf("source = %q, want store", result.TicketData.Source)
	}
	if result.TicketData.Subject != "결제 오류 문의" {
		t.Errorf("subject = %q", result.TicketData.Subject)
	}
	if len(result.TicketData.Conversations) != 1 {
		t.Errorf("conversations = %v, want only the ticket's own", result.TicketData.Conversations)
	}

	if len(result.SimilarTickets) == 0 {
		t.Fatal("no similar tickets")
	}
	for _, doc := range result.SimilarTickets {
		if doc.OriginalID == "999999" {
			t.Error("similar tickets include the viewed ticket")
		}
	}
	if len(result.KBDocuments) != 1 || result.KBDocuments[0].OriginalID != "2001" {
		t.Errorf("kb documents = %+v", result.KBDocuments)
	}
	if result.Summary == nil || result.Summary.TicketSummary == "" {
		t.Errorf("summary = %+v", result.Summary)
	}
	if result.ContextID == "" {
		t.Error("context id not set")
	}
}

func TestInitUsesLiveTicket(t *testing.T) {
	live := &platform.Ticket{
		OriginalID:  "42",
		Subject:     "로그인 불가",
		Description: "로그인 시 500 오류",
		Status:      "open",
		Priority:    "high",
		Conversations: []platform.Conversation{
			{OriginalID: "c1", TicketID: "42", Body: "브라우저 캐시를 삭제해 보세요"},
		},
		CreatedAt: time.Now(),
	}
	o, _, _ := newTestOrchestrator(t, &fakeUpstream{ticket: live})

	result, err := o.Init(context.Background(), testScope(), "42", InitOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if result.TicketData.Source != "live" {
		t.Errorf("source = %q, want live", result.TicketData.Source)
	}
	if result.TicketData.Subject != "로그인 불가" {
		t.Errorf("subject = %q", result.TicketData.Subject)
	}
	if len(result.TicketData.Conversations) != 1 {
		t.Errorf("conversations = %v", result.TicketData.Conversations)
	}
}

func TestInitUnknownTicket(t *testing.T) {
	o, _, _ := newTestOrchestrator(t, &fakeUpstream{err: platform.ErrNotFound})

	_, err := o.Init(context.Background(), testScope(), "404404", InitOptions{})
	if !errors.Is(err, ErrTicketNotFound) {
		t.Fatalf("err = %v, want ErrTicketNotFound", err)
	}
	if !apperr.IsKind(err, apperr.KindNotFound) {
		t.Errorf("kind = %v, want KindNotFound", apperr.KindOf(err))
	}
}

func TestInitStreamsProgress(t *testing.T) {
	o, _, _ := newTestOrchestrator(t, &fakeUpstream{ticket: &platform.Ticket{
		OriginalID: "7", Subject: "질문", Description: "내용",
	}})

	var mu sync.Mutex
	var events []ProgressEvent
	_, err := o.Init(context.Background(), testScope(), "7", InitOptions{
		OnEvent: func(e ProgressEvent) {
			mu.Lock()
			events = append(events, e)
			mu.Unlock()
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	if len(events) != 5 {
		t.Fatalf("got %d events: %+v", len(events), events)
	}
	if events[0].Stage != "ticket_fetch" {
		t.Errorf("first stage = %q", events[0].Stage)
	}
	last := events[len(events)-1]
	if last.Stage != "done" || last.ProgressPercent != 100 {
		t.Errorf("last event = %+v", last)
	}
	for i := 1; i < len(events); i++ {
		if events[i].ProgressPercent <= events[i-1].ProgressPercent {
			t.Errorf("progress not monotonic: %+v", events)
		}
	}
	seen := make(map[string]bool)
	for _, e := range events {
		seen[e.Stage] = true
	}
	for _, stage := range []string{"summary", "similar_tickets", "kb_documents"} {
		if !seen[stage] {
			t.Errorf("stage %s never emitted", stage)
		}
	}
}

func TestSelectConversationsFilters(t *testing.T) {
	long := strings.Repeat("문제 상황 설명 ", 100) // well over the rune cap
	var convs []string
	for i := 0; i < 20; i++ {
		convs = append(convs, long)
	}
	convs = append(convs, "감사합니다")

	selected := selectConversations(convs)
	if len(selected) != MaxInitConversations {
		t.Fatalf("selected %d conversations, want %d", len(selected), MaxInitConversations)
	}
	for i, c := range selected {
		if n := len([]rune(c)); n > InitConversationRunes {
			t.Errorf("conversation %d has %d runes", i, n)
		}
	}

	// Under the cap everything survives, trimmed and whitespace-normalized.
	few := selectConversations([]string{"  안녕  하세요  ", ""})
	if len(few) != 1 || few[0] != "안녕 하세요" {
		t.Errorf("few = %v", few)
	}
}

func TestQueryAnswersWithCitations(t *testing.T) {
	o, router, vectors := newTestOrchestrator(t, &fakeUpstream{err: platform.ErrNotFound})
	seedPoint(t, vectors, "ticket", "1001", "환불 문의", "환불은 영업일 기준 3일 내에 처리됩니다", []float32{1, 0, 0})
	seedPoint(t, vectors, "ticket", "1002", "배송 문의", "배송 조회는 마이페이지에서 가능합니다", []float32{0.3, 0.7, 0})
	seedPoint(t, vectors, "article", "2001", "환불 정책", "환불 정책 전문입니다. 자세한 절차를 설명합니다", []float32{0.9, 0.1, 0})

	result, err := o.Query(context.Background(), testScope(), QueryOptions{
		Query: "환불은 얼마나 걸리나요?",
		TopK:  4,
	})
	if err != nil {
		t.Fatal(err)
	}

	if result.Intent != IntentAnswer {
		t.Errorf("intent = %q, want answer", result.Intent)
	}
	if result.Answer == "" {
		t.Error("empty answer")
	}
	if len(result.Citations) == 0 {
		t.Fatal("no citations")
	}
	docTypes := make(map[string]bool)
	for _, c := range result.Citations {
		docTypes[c.DocType] = true
	}
	if !docTypes["ticket"] || !docTypes["article"] {
		t.Errorf("citations cover %v, want both content types", docTypes)
	}
	if result.Context.OriginalCount == 0 || result.Context.FinalCount == 0 {
		t.Errorf("context meta = %+v", result.Context)
	}

	// The generation went through the intent-shaped heavy path.
	var req llm.Request
	for _, r := range router.requests {
		if strings.HasPrefix(r.Operation, "query_") {
			req = r
		}
	}
	if req.Operation != "query_answer" || req.TaskType != llm.TaskHeavy {
		t.Errorf("request = %+v", req)
	}
	if req.SystemPrompt != answerPrompt {
		t.Error("wrong system prompt for answer intent")
	}
	if !strings.Contains(req.Prompt, "환불은 얼마나 걸리나요?") {
		t.Error("query missing from prompt")
	}
}

func TestQueryValidation(t *testing.T) {
	o, _, _ := newTestOrchestrator(t, &fakeUpstream{})

	if _, err := o.Query(context.Background(), testScope(), QueryOptions{Query: "  "}); !apperr.IsKind(err, apperr.KindValidation) {
		t.Errorf("empty query err = %v, want KindValidation", err)
	}
	if _, err := o.Query(context.Background(), Scope{}, QueryOptions{Query: "q"}); !apperr.IsKind(err, apperr.KindValidation) {
		t.Errorf("empty scope err = %v, want KindValidation", err)
	}
}

func TestNormalizeIntent(t *testing.T) {
	cases := map[string]Intent{
		"search":    IntentSearch,
		"Recommend": IntentRecommend,
		"SUMMARIZE": IntentSummarize,
		"answer":    IntentAnswer,
		"":          IntentAnswer,
		"banana":    IntentAnswer,
	}
	for in, want := range cases {
		if got := normalizeIntent(in); got != want {
			t.Errorf("normalizeIntent(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestReplyGroundedInInitContext(t *testing.T) {
	o, router, _ := newTestOrchestrator(t, &fakeUpstream{ticket: &platform.Ticket{
		OriginalID: "55", Subject: "비밀번호 재설정", Description: "재설정 메일이 오지 않습니다",
	}})

	init, err := o.Init(context.Background(), testScope(), "55", InitOptions{})
	if err != nil {
		t.Fatal(err)
	}

	reply, err := o.Reply(context.Background(), testScope(), ReplyOptions{
		ContextID:    init.ContextID,
		Instructions: "정중하게",
	})
	if err != nil {
		t.Fatal(err)
	}
	if reply.Reply == "" {
		t.Error("empty reply")
	}

	var req llm.Request
	for _, r := range router.requests {
		if r.Operation == "customer_reply" {
			req = r
		}
	}
	if !strings.Contains(req.Prompt, "비밀번호 재설정") {
		t.Error("reply prompt not grounded in the init content")
	}
	if !strings.Contains(req.Prompt, "정중하게") {
		t.Error("instructions missing from reply prompt")
	}

	// A different tenant cannot address the context.
	other := Scope{TenantID: "beta", Platform: testPlatform}
	if _, err := o.Reply(context.Background(), other, ReplyOptions{ContextID: init.ContextID}); !errors.Is(err, ErrContextNotFound) {
		t.Errorf("cross-tenant reply err = %v, want ErrContextNotFound", err)
	}
}

func TestReplyUnknownContext(t *testing.T) {
	o, _, _ := newTestOrchestrator(t, &fakeUpstream{})

	_, err := o.Reply(context.Background(), testScope(), ReplyOptions{ContextID: "nope"})
	if !errors.Is(err, ErrContextNotFound) {
		t.Fatalf("err = %v, want ErrContextNotFound", err)
	}
	if !apperr.IsKind(err, apperr.KindNotFound) {
		t.Errorf("kind = %v, want KindNotFound", apperr.KindOf(err))
	}
}
