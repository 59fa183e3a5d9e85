package http

import (
	"github.com/fyrsmithlabs/tiermem/internal/memory"
	"github.com/fyrsmithlabs/tiermem/internal/snapshot"
	"github.com/fyrsmithlabs/tiermem/internal/tiered"
)

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
	Agents int    `json:"agents"`
	Tick   int64  `json:"tick"`
}

// AgentsResponse is the response body for GET /api/v1/agents.
type AgentsResponse struct {
	Agents []string `json:"agents"`
}

// EntriesResponse wraps a list of memories.
type EntriesResponse struct {
	Entries []*memory.Entry `json:"entries"`
	Count   int             `json:"count"`
}

// RetrieveRequest is the body for POST .../retrieve. Text, when set and
// Keywords is empty, is split into query keywords.
type RetrieveRequest struct {
	memory.Query
	Text string `json:"text,omitempty"`
}

// SearchRequest is the body for POST .../search.
type SearchRequest struct {
	Text string `json:"text"`
	K    int    `json:"k,omitempty"`
}

// SearchResponse lists similarity hits.
type SearchResponse struct {
	Hits []snapshot.Hit `json:"hits"`
}

// ContextResponse is the response body for GET .../context.
type ContextResponse struct {
	AgentID string `json:"agent_id"`
	Context string `json:"context"`
}

// StatsResponse reports tier counts after a maintenance call.
type StatsResponse struct {
	AgentID string       `json:"agent_id"`
	Stats   tiered.Stats `json:"stats"`
}

// DecayResponse reports a decay pass.
type DecayResponse struct {
	AgentID string             `json:"agent_id"`
	Evicted memory.DecayResult `json:"evicted"`
	Stats   tiered.Stats       `json:"stats"`
}

// ConversationRequest is the body for POST /api/v1/conversations.
type ConversationRequest struct {
	Speaker  string `json:"speaker"`
	Listener string `json:"listener"`
	Content  string `json:"content"`
}

// ConversationResponse reports whether the line was new.
type ConversationResponse struct {
	Recorded bool `json:"recorded"`
}
