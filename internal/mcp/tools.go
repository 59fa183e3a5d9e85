package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/tiermem/internal/logging"
	"github.com/fyrsmithlabs/tiermem/internal/memory"
	"github.com/fyrsmithlabs/tiermem/internal/services"
	"github.com/fyrsmithlabs/tiermem/internal/snapshot"
	"github.com/fyrsmithlabs/tiermem/internal/tiered"
)

// toolFunc is a tool body: it returns the structured output and the text
// shown to the client.
type toolFunc[In, Out any] func(ctx context.Context, in In) (Out, string, error)

// addTool registers fn under tool with invocation metrics and logging.
func addTool[In, Out any](s *Server, tool *mcp.Tool, fn toolFunc[In, Out]) {
	name := tool.Name
	mcp.AddTool(s.mcp, tool, func(ctx context.Context, _ *mcp.CallToolRequest, in In) (*mcp.CallToolResult, Out, error) {
		done := s.metrics.track(ctx, name)
		out, text, err := fn(ctx, in)
		done(err)
		if err != nil {
			s.logger.Debug("tool failed", append(logging.ContextFields(ctx),
				zap.String("tool", name), zap.Error(err))...)
			var zero Out
			return nil, zero, err
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: text}},
		}, out, nil
	})
}

func (s *Server) registerTools() {
	addTool(s, &mcp.Tool{
		Name:        "memory_add",
		Description: "Record a new memory for an agent. It enters the agent's Active tier.",
	}, s.memoryAdd)
	addTool(s, &mcp.Tool{
		Name:        "memory_retrieve",
		Description: "Retrieve an agent's memories ranked by keyword relevance, importance and activity.",
	}, s.memoryRetrieve)
	addTool(s, &mcp.Tool{
		Name:        "memory_context",
		Description: "Render an agent's most relevant memories as prompt-ready lines.",
	}, s.memoryContext)
	addTool(s, &mcp.Tool{
		Name:        "memory_edit",
		Description: "Edit a memory's content or notes, or pin it against decay.",
	}, s.memoryEdit)
	addTool(s, &mcp.Tool{
		Name:        "memory_delete",
		Description: "Delete a memory by id.",
	}, s.memoryDelete)
	addTool(s, &mcp.Tool{
		Name:        "memory_summarize",
		Description: "Summarize an agent's Situational memories into its Event Log now.",
	}, s.memorySummarize)
	addTool(s, &mcp.Tool{
		Name:        "memory_search",
		Description: "Find an agent's memories by text similarity. Requires the chromem snapshot backend.",
	}, s.memorySearch)
	addTool(s, &mcp.Tool{
		Name:        "conversation_record",
		Description: "Record a conversation line in the memories of both speaker and listener.",
	}, s.conversationRecord)
}

type memoryAddInput struct {
	AgentID      string   `json:"agent_id" jsonschema:"agent that owns the memory"`
	Content      string   `json:"content" jsonschema:"what happened"`
	Type         string   `json:"type,omitempty" jsonschema:"conversation, action, observation, event, emotion or interaction (default observation)"`
	Importance   *float64 `json:"importance,omitempty" jsonschema:"importance in [0,1] (default 0.5)"`
	RelatedAgent string   `json:"related_agent,omitempty" jsonschema:"other agent involved"`
}

type entryOutput struct {
	Entry *memory.Entry `json:"entry"`
}

func (s *Server) memoryAdd(ctx context.Context, in memoryAddInput) (entryOutput, string, error) {
	e, err := s.memory.Add(logging.WithAgentID(ctx, in.AgentID), in.AgentID, services.AddRequest{
		Content:      in.Content,
		Type:         in.Type,
		Importance:   in.Importance,
		RelatedAgent: in.RelatedAgent,
	})
	if err != nil {
		return entryOutput{}, "", err
	}
	return entryOutput{Entry: e}, fmt.Sprintf("Memory recorded: %s (%s, importance %.2f)", e.ID, e.Type, e.Importance), nil
}

type memoryRetrieveInput struct {
	AgentID        string   `json:"agent_id" jsonschema:"agent to query"`
	Text           string   `json:"text,omitempty" jsonschema:"free text, split into keywords when keywords is empty"`
	Keywords       []string `json:"keywords,omitempty" jsonschema:"keywords to rank by"`
	Tags           []string `json:"tags,omitempty" jsonschema:"entries must carry every tag"`
	Type           string   `json:"type,omitempty" jsonschema:"only this memory type"`
	Layer          string   `json:"layer,omitempty" jsonschema:"only this tier: active, situational, event_log or archive"`
	RelatedAgent   string   `json:"related_agent,omitempty" jsonschema:"only memories involving this agent"`
	IncludeContext bool     `json:"include_context,omitempty" jsonschema:"also return recent Event Log entries"`
	MaxCount       int      `json:"max_count,omitempty" jsonschema:"maximum results (default 5)"`
}

type entriesOutput struct {
	Entries []*memory.Entry `json:"entries"`
	Count   int             `json:"count"`
}

func (s *Server) memoryRetrieve(ctx context.Context, in memoryRetrieveInput) (entriesOutput, string, error) {
	q := memory.Query{
		Type:           memory.Type(in.Type),
		Layer:          memory.Layer(in.Layer),
		RelatedAgent:   in.RelatedAgent,
		Tags:           in.Tags,
		Keywords:       in.Keywords,
		IncludeContext: in.IncludeContext,
		MaxCount:       in.MaxCount,
	}
	if len(q.Keywords) == 0 && in.Text != "" {
		q.Keywords = memory.ExtractKeywords(in.Text)
	}
	entries, err := s.memory.Retrieve(logging.WithAgentID(ctx, in.AgentID), in.AgentID, q)
	if err != nil {
		return entriesOutput{}, "", err
	}
	return entriesOutput{Entries: entries, Count: len(entries)}, fmt.Sprintf("Found %d memories", len(entries)), nil
}

type memoryContextInput struct {
	AgentID string `json:"agent_id" jsonschema:"agent to describe"`
	Count   int    `json:"count,omitempty" jsonschema:"number of memories (default 5)"`
}

type contextOutput struct {
	Context string `json:"context"`
}

func (s *Server) memoryContext(_ context.Context, in memoryContextInput) (contextOutput, string, error) {
	text, err := s.memory.Context(in.AgentID, in.Count)
	if err != nil {
		return contextOutput{}, "", err
	}
	shown := text
	if shown == "" {
		shown = "No memories."
	}
	return contextOutput{Context: text}, shown, nil
}

type memoryEditInput struct {
	AgentID string  `json:"agent_id" jsonschema:"agent that owns the memory"`
	ID      string  `json:"id" jsonschema:"memory id"`
	Content *string `json:"content,omitempty" jsonschema:"replacement content"`
	Notes   string  `json:"notes,omitempty" jsonschema:"notes to attach"`
	Pinned  *bool   `json:"pinned,omitempty" jsonschema:"pin or unpin the memory"`
}

func (s *Server) memoryEdit(ctx context.Context, in memoryEditInput) (entryOutput, string, error) {
	e, err := s.memory.Edit(logging.WithAgentID(ctx, in.AgentID), in.AgentID, in.ID, services.EditRequest{
		Content: in.Content,
		Notes:   in.Notes,
		Pinned:  in.Pinned,
	})
	if err != nil {
		return entryOutput{}, "", err
	}
	return entryOutput{Entry: e}, "Memory updated: " + e.ID, nil
}

type memoryDeleteInput struct {
	AgentID string `json:"agent_id" jsonschema:"agent that owns the memory"`
	ID      string `json:"id" jsonschema:"memory id"`
}

type deleteOutput struct {
	Deleted bool `json:"deleted"`
}

func (s *Server) memoryDelete(ctx context.Context, in memoryDeleteInput) (deleteOutput, string, error) {
	if err := s.memory.Delete(logging.WithAgentID(ctx, in.AgentID), in.AgentID, in.ID); err != nil {
		return deleteOutput{}, "", err
	}
	return deleteOutput{Deleted: true}, "Memory deleted: " + in.ID, nil
}

type agentInput struct {
	AgentID string `json:"agent_id" jsonschema:"agent to summarize"`
}

type statsOutput struct {
	Stats tiered.Stats `json:"stats"`
}

func (s *Server) memorySummarize(ctx context.Context, in agentInput) (statsOutput, string, error) {
	st, err := s.memory.Summarize(logging.WithAgentID(ctx, in.AgentID), in.AgentID)
	if err != nil {
		return statsOutput{}, "", err
	}
	return statsOutput{Stats: st}, fmt.Sprintf("Summarized: %d active, %d situational, %d event log, %d archive",
		st.Active, st.Situational, st.EventLog, st.Archive), nil
}

type memorySearchInput struct {
	AgentID string `json:"agent_id" jsonschema:"agent to search"`
	Text    string `json:"text" jsonschema:"text to match"`
	K       int    `json:"k,omitempty" jsonschema:"maximum results (default 5)"`
}

type searchOutput struct {
	Hits []snapshot.Hit `json:"hits"`
}

func (s *Server) memorySearch(ctx context.Context, in memorySearchInput) (searchOutput, string, error) {
	hits, err := s.memory.Search(logging.WithAgentID(ctx, in.AgentID), in.AgentID, in.Text, in.K)
	if err != nil {
		return searchOutput{}, "", err
	}
	return searchOutput{Hits: hits}, fmt.Sprintf("Found %d similar memories", len(hits)), nil
}

type conversationRecordInput struct {
	Speaker  string `json:"speaker" jsonschema:"agent who spoke"`
	Listener string `json:"listener,omitempty" jsonschema:"agent spoken to"`
	Content  string `json:"content" jsonschema:"what was said"`
}

type recordOutput struct {
	Recorded bool `json:"recorded"`
}

func (s *Server) conversationRecord(ctx context.Context, in conversationRecordInput) (recordOutput, string, error) {
	ok, err := s.memory.Record(ctx, in.Speaker, in.Listener, in.Content)
	if err != nil {
		return recordOutput{}, "", err
	}
	text := "Conversation recorded"
	if !ok {
		text = "Conversation already recorded this tick"
	}
	return recordOutput{Recorded: ok}, text, nil
}
