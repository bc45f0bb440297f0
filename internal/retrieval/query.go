package retrieval

import (
	"context"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/wedosoft/project-a/internal/apperr"
	"github.com/wedosoft/project-a/internal/llm"
	"github.com/wedosoft/project-a/internal/types"
	"github.com/wedosoft/project-a/internal/vectorstore"
)

// Intent shapes the system prompt of the query flow.
type Intent string

const (
	IntentSearch    Intent = "search"
	IntentRecommend Intent = "recommend"
	IntentAnswer    Intent = "answer"
	IntentSummarize Intent = "summarize"
)

// normalizeIntent maps free-form input to a known intent, defaulting to
// answer.
func normalizeIntent(s string) Intent {
	switch Intent(strings.ToLower(strings.TrimSpace(s))) {
	case IntentSearch:
		return IntentSearch
	case IntentRecommend:
		return IntentRecommend
	case IntentSummarize:
		return IntentSummarize
	default:
		return IntentAnswer
	}
}

// QueryOptions tune the query flow. Zero limits take the defaults.
type QueryOptions struct {
	Query              string
	Intent             string
	TopK               int
	MaxTokens          int
	TargetTokensPerDoc int
}

// Citation points at one document the answer drew on.
type Citation struct {
	OriginalID string  `json:"original_id"`
	DocType    string  `json:"doc_type"`
	Title      string  `json:"title,omitempty"`
	Score      float32 `json:"score"`
}

// QueryResult is the answer plus its provenance.
type QueryResult struct {
	Answer    string      `json:"answer"`
	Intent    Intent      `json:"intent"`
	Citations []Citation  `json:"citations"`
	Context   ContextMeta `json:"context"`
	Model     string      `json:"model,omitempty"`
	Provider  string      `json:"provider,omitempty"`
}

// Query answers a free-form question over the tenant's corpus: embed, search
// tickets and KB separately, merge by score, build a bounded context, and
// ask the LLM with an intent-shaped system prompt.
func (o *Orchestrator) Query(ctx context.Context, scope Scope, opts QueryOptions) (*QueryResult, error) {
	if err := scope.validate(); err != nil {
		return nil, err
	}
	query := strings.TrimSpace(opts.Query)
	if query == "" {
		return nil, apperr.New(apperr.KindValidation, "retrieval", "query required")
	}
	topK := opts.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}

	vec, err := o.embedQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	// top_k split per content type; the odd slot goes to tickets.
	ticketK := (topK + 1) / 2
	kbK := topK - ticketK
	if kbK == 0 {
		kbK = 1
	}

	var ticketHits, kbHits []vectorstore.SearchResult
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		ticketHits, err = o.vectors.Search(gctx, vectorstore.SearchParams{
			Vector: vec, TopK: ticketK,
			TenantID: scope.TenantID, Platform: scope.Platform, DocType: "ticket",
		})
		return err
	})
	g.Go(func() error {
		var err error
		kbHits, err = o.vectors.Search(gctx, vectorstore.SearchParams{
			Vector: vec, TopK: kbK,
			TenantID: scope.TenantID, Platform: scope.Platform, DocType: "article",
		})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := append(ticketHits, kbHits...)
	sort.SliceStable(merged, func(i, j int) bool { return merged[i].Score > merged[j].Score })
	if len(merged) > topK {
		merged = merged[:topK]
	}

	docs := o.hydrateDocs(ctx, scope, merged)
	builder := o.builder
	if opts.MaxTokens > 0 || opts.TargetTokensPerDoc > 0 {
		builder = NewContextBuilder(o.builder.counter, opts.MaxTokens, opts.TargetTokensPerDoc)
	}
	contextText, finalDocs, meta := builder.Build(query, docs)

	intent := normalizeIntent(opts.Intent)
	resp, err := o.llm.Generate(ctx, llm.Request{
		Prompt:       buildQueryPrompt(query, contextText),
		SystemPrompt: systemPromptFor(intent),
		TaskType:     llm.TaskHeavy,
		Operation:    "query_" + string(intent),
	})
	if err != nil {
		return nil, err
	}

	citations := make([]Citation, len(finalDocs))
	for i, d := range finalDocs {
		citations[i] = Citation{OriginalID: d.OriginalID, DocType: d.DocType, Title: d.Title, Score: d.Score}
	}
	return &QueryResult{
		Answer:    strings.TrimSpace(resp.Text),
		Intent:    intent,
		Citations: citations,
		Context:   meta,
		Model:     resp.Model,
		Provider:  resp.Provider,
	}, nil
}

// hydrateDocs turns search hits into builder documents, preferring the
// payload summary and filling missing content from the store.
func (o *Orchestrator) hydrateDocs(ctx context.Context, scope Scope, hits []vectorstore.SearchResult) []Doc {
	docs := make([]Doc, 0, len(hits))
	for _, hit := range hits {
		docType := hit.Payload.DocType
		if docType == "" {
			docType = "ticket"
		}
		content := hit.Payload.Summary
		if content == "" {
			objType := types.ObjectTypeTicket
			if docType == "article" {
				objType = types.ObjectTypeArticle
			}
			if obj, err := o.store.GetObject(ctx, scope.TenantID, scope.Platform,
				objType, hit.Payload.OriginalID); err == nil {
				content = obj.IntegratedContent
			}
		}
		if content == "" {
			continue
		}
		docs = append(docs, Doc{
			OriginalID: hit.Payload.OriginalID,
			DocType:    docType,
			Title:      titleOf(hit.Payload),
			Content:    content,
			Score:      hit.Score,
		})
	}
	return docs
}

func buildQueryPrompt(query, contextText string) string {
	var b strings.Builder
	b.WriteString("참고 문서:\n")
	if contextText == "" {
		b.WriteString("(없음)\n")
	} else {
		b.WriteString(contextText)
		b.WriteString("\n")
	}
	b.WriteString("\n질문: ")
	b.WriteString(query)
	return b.String()
}
