// Package toolapi is the local HTTP ingress agents call to ask for human
// input. A submission blocks until the request terminates, so the HTTP
// response carries the final result.
package toolapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/iambrandonn/parley/internal/ledger"
	"github.com/iambrandonn/parley/internal/protocol"
)

// Engine is the mediation surface the API exposes
type Engine interface {
	Submit(ctx context.Context, req *protocol.Request) protocol.Result
	SetProcessing(on bool)
	SessionEntries() []ledger.Entry
	HistoryEntries() []ledger.Entry
}

// AskRequest is the body of POST /v1/ask
type AskRequest struct {
	Question string            `json:"question"`
	Context  string            `json:"context,omitempty"`
	Choices  []protocol.Choice `json:"choices,omitempty"`
}

// AskMultiRequest is the body of POST /v1/ask-multi
type AskMultiRequest struct {
	SubQuestions []protocol.SubQuestion `json:"sub_questions"`
	Context      string                 `json:"context,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Handler serves the tool API routes
type Handler struct {
	engine Engine
	logger *slog.Logger
}

// NewHandler creates a tool API handler
func NewHandler(engine Engine, logger *slog.Logger) *Handler {
	return &Handler{engine: engine, logger: logger}
}

// Router returns the API's route mux
func (h *Handler) Router() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/ask", h.handleAsk)
	mux.HandleFunc("POST /v1/ask-multi", h.handleAskMulti)
	mux.HandleFunc("POST /v1/processing", h.handleProcessing)
	mux.HandleFunc("GET /v1/session", h.handleSession)
	mux.HandleFunc("GET /v1/history", h.handleHistory)
	return mux
}

func (h *Handler) handleAsk(w http.ResponseWriter, r *http.Request) {
	var body AskRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if body.Question == "" {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "question is required"})
		return
	}

	// The caller's disconnect withdraws the request via the context
	res := h.engine.Submit(r.Context(), &protocol.Request{
		Kind:            protocol.KindSingleQuestion,
		Question:        body.Question,
		Context:         body.Context,
		ExplicitChoices: body.Choices,
	})
	h.writeJSON(w, http.StatusOK, res)
}

func (h *Handler) handleAskMulti(w http.ResponseWriter, r *http.Request) {
	var body AskMultiRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if len(body.SubQuestions) == 0 {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "sub_questions is required"})
		return
	}

	res := h.engine.Submit(r.Context(), &protocol.Request{
		Kind:         protocol.KindMultiQuestion,
		Context:      body.Context,
		SubQuestions: body.SubQuestions,
	})
	h.writeJSON(w, http.StatusOK, res)
}

// ProcessingRequest is the body of POST /v1/processing
type ProcessingRequest struct {
	Processing bool `json:"processing"`
}

func (h *Handler) handleProcessing(w http.ResponseWriter, r *http.Request) {
	var body ProcessingRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	h.engine.SetProcessing(body.Processing)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleSession(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.engine.SessionEntries())
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.engine.HistoryEntries())
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warn("failed to encode response", "error", err)
	}
}
