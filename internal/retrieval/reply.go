package retrieval

import (
	"context"
	"strings"

	"github.com/wedosoft/project-a/internal/apperr"
	"github.com/wedosoft/project-a/internal/llm"
)

// ReplyOptions tune reply drafting.
type ReplyOptions struct {
	// ContextID is the id returned by a prior Init call.
	ContextID string
	// Instructions optionally steer the tone or content of the draft.
	Instructions string
}

// ReplyResult is a drafted customer reply.
type ReplyResult struct {
	Reply    string `json:"reply"`
	Model    string `json:"model,omitempty"`
	Provider string `json:"provider,omitempty"`
}

// Reply drafts a customer reply grounded in a cached init context. The
// caller's scope must match the scope the context was created under.
func (o *Orchestrator) Reply(ctx context.Context, scope Scope, opts ReplyOptions) (*ReplyResult, error) {
	if err := scope.validate(); err != nil {
		return nil, err
	}
	if opts.ContextID == "" {
		return nil, apperr.New(apperr.KindValidation, "retrieval", "context id required")
	}

	ic, ok := o.loadContext(opts.ContextID)
	if !ok || ic.Scope.TenantID != scope.TenantID || ic.Scope.Platform != scope.Platform {
		return nil, apperr.Wrap(apperr.KindNotFound, "retrieval", opts.ContextID, ErrContextNotFound)
	}

	var b strings.Builder
	b.WriteString("티켓 내용:\n")
	b.WriteString(ic.Content)
	if ic.Summary != "" {
		b.WriteString("\n\n요약:\n")
		b.WriteString(ic.Summary)
	}
	if inst := strings.TrimSpace(opts.Instructions); inst != "" {
		b.WriteString("\n\n추가 지침: ")
		b.WriteString(inst)
	}

	resp, err := o.llm.Generate(ctx, llm.Request{
		Prompt:       b.String(),
		SystemPrompt: replyPrompt,
		TaskType:     llm.TaskHeavy,
		Operation:    "customer_reply",
	})
	if err != nil {
		return nil, err
	}
	return &ReplyResult{
		Reply:    strings.TrimSpace(resp.Text),
		Model:    resp.Model,
		Provider: resp.Provider,
	}, nil
}
