package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/wedosoft/project-a/internal/apperr"
	"github.com/wedosoft/project-a/internal/retrieval"
	"github.com/wedosoft/project-a/internal/tenant"
)

// handleInit runs the init flow. stream=true switches to SSE with progress
// events followed by the final result.
func (s *Server) handleInit(w http.ResponseWriter, r *http.Request) {
	tc := tenant.FromContext(r.Context())
	ticketID := chi.URLParam(r, "ticket_id")
	stream, _ := strconv.ParseBool(r.URL.Query().Get("stream"))
	topK, _ := strconv.Atoi(r.URL.Query().Get("top_k"))

	if !stream {
		result, err := s.retriever.Init(r.Context(), scopeOf(tc), ticketID, retrieval.InitOptions{TopK: topK})
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, result)
		return
	}

	sse, ok := newSSEWriter(w)
	if !ok {
		s.writeError(w, r, fmt.Errorf("streaming unsupported by connection"))
		return
	}

	result, err := s.retriever.Init(r.Context(), scopeOf(tc), ticketID, retrieval.InitOptions{
		TopK: topK,
		OnEvent: func(e retrieval.ProgressEvent) {
			sse.send("progress", e)
		},
	})
	if err != nil {
		var body errorBody
		body.Error.Kind = apperr.KindOf(err).String()
		body.Error.Message = err.Error()
		sse.send("error", body)
		return
	}
	sse.send("result", result)
}

type queryRequest struct {
	Query              string `json:"query" validate:"required"`
	Intent             string `json:"intent,omitempty"`
	TopK               int    `json:"top_k,omitempty" validate:"omitempty,min=1,max=50"`
	MaxTokens          int    `json:"max_tokens,omitempty" validate:"omitempty,min=1"`
	TargetTokensPerDoc int    `json:"target_tokens_per_doc,omitempty" validate:"omitempty,min=1"`
	StreamResponse     bool   `json:"stream_response,omitempty"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	tc := tenant.FromContext(r.Context())

	var req queryRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	result, err := s.retriever.Query(r.Context(), scopeOf(tc), retrieval.QueryOptions{
		Query:              req.Query,
		Intent:             req.Intent,
		TopK:               req.TopK,
		MaxTokens:          req.MaxTokens,
		TargetTokensPerDoc: req.TargetTokensPerDoc,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if req.StreamResponse {
		if sse, ok := newSSEWriter(w); ok {
			sse.send("result", result)
			return
		}
	}
	s.writeJSON(w, http.StatusOK, result)
}

type replyRequest struct {
	ContextID    string `json:"context_id" validate:"required"`
	Instructions string `json:"instructions,omitempty"`
}

func (s *Server) handleReply(w http.ResponseWriter, r *http.Request) {
	tc := tenant.FromContext(r.Context())

	var req replyRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	result, err := s.retriever.Reply(r.Context(), scopeOf(tc), retrieval.ReplyOptions{
		ContextID:    req.ContextID,
		Instructions: req.Instructions,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

// sseWriter serializes server-sent events onto the response.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func newSSEWriter(w http.ResponseWriter) (*sseWriter, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, false
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	return &sseWriter{w: w, flusher: flusher}, true
}

func (s *sseWriter) send(event string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, data)
	s.flusher.Flush()
}
