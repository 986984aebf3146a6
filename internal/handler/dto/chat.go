// Package dto defines request and response shapes for the HTTP API.
package dto

import (
	"time"

	"github.com/geniechat/genie/internal/model"
)

// ErrorResponse is the standard error body.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// ChatRequest is the body of POST /api/v1/chat.
type ChatRequest struct {
	Prompt string `json:"prompt"`
}

// SourceResponse is one citation attached to an answer.
type SourceResponse struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// ChatResponse is the body returned for a successful chat turn.
type ChatResponse struct {
	Response   string           `json:"response"`
	TokensLeft int              `json:"tokens_left"`
	Sources    []SourceResponse `json:"sources"`
}

// HistoryEntryResponse is one stored prompt.
// The createdAt key matches what the web client expects.
type HistoryEntryResponse struct {
	Prompt    string    `json:"prompt"`
	CreatedAt time.Time `json:"createdAt"`
}

// HistoryResponse is the body of GET /api/v1/chat/history.
type HistoryResponse struct {
	History []HistoryEntryResponse `json:"history"`
}

// ToChatResponse converts a turn result to the API shape.
func ToChatResponse(answer string, sources []model.Source, tokensLeft int) ChatResponse {
	out := ChatResponse{
		Response:   answer,
		TokensLeft: tokensLeft,
		Sources:    make([]SourceResponse, 0, len(sources)),
	}
	for _, s := range sources {
		out.Sources = append(out.Sources, SourceResponse{Title: s.Title, URL: s.URL})
	}
	return out
}

// ToHistoryResponse converts stored entries to the API shape.
func ToHistoryResponse(entries []*model.HistoryEntry) HistoryResponse {
	out := HistoryResponse{
		History: make([]HistoryEntryResponse, 0, len(entries)),
	}
	for _, e := range entries {
		out.History = append(out.History, HistoryEntryResponse{
			Prompt:    e.Prompt,
			CreatedAt: e.CreatedAt,
		})
	}
	return out
}
