package http

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/tiermem/internal/integration"
	"github.com/fyrsmithlabs/tiermem/internal/memory"
	"github.com/fyrsmithlabs/tiermem/internal/services"
)

// agentParam returns the decoded :agent path segment.
func agentParam(c echo.Context) (string, error) {
	raw := c.Param("agent")
	if raw == "" {
		return "", integration.ErrInvalidAgentID
	}
	agent, err := url.PathUnescape(raw)
	if err != nil {
		return "", integration.ErrInvalidAgentID
	}
	return agent, nil
}

// toHTTPError maps service errors onto status codes.
func (s *Server) toHTTPError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, services.ErrInvalidRequest), errors.Is(err, integration.ErrInvalidAgentID):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, services.ErrEntryNotFound), errors.Is(err, integration.ErrAgentNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, services.ErrSearchUnavailable):
		return echo.NewHTTPError(http.StatusNotImplemented, err.Error())
	}
	s.logger.Error("request failed",
		zap.String("route", c.Path()),
		zap.Error(err),
	)
	return echo.NewHTTPError(http.StatusInternalServerError, "internal error").SetInternal(err)
}

func bindError(err error) error {
	return echo.NewHTTPError(http.StatusBadRequest, "invalid request body").SetInternal(err)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{
		Status: "ok",
		Agents: len(s.memory.Agents()),
		Tick:   s.memory.Now(),
	})
}

func (s *Server) handleListAgents(c echo.Context) error {
	return c.JSON(http.StatusOK, AgentsResponse{Agents: s.memory.Agents()})
}

func (s *Server) handleOverview(c echo.Context) error {
	agent, err := agentParam(c)
	if err != nil {
		return s.toHTTPError(c, err)
	}
	ov, err := s.memory.Overview(agent)
	if err != nil {
		return s.toHTTPError(c, err)
	}
	return c.JSON(http.StatusOK, ov)
}

func (s *Server) handleAddMemory(c echo.Context) error {
	agent, err := agentParam(c)
	if err != nil {
		return s.toHTTPError(c, err)
	}
	var req services.AddRequest
	if err := c.Bind(&req); err != nil {
		return bindError(err)
	}
	entry, err := s.memory.Add(c.Request().Context(), agent, req)
	if err != nil {
		return s.toHTTPError(c, err)
	}
	return c.JSON(http.StatusCreated, entry)
}

func (s *Server) handleListMemories(c echo.Context) error {
	agent, err := agentParam(c)
	if err != nil {
		return s.toHTTPError(c, err)
	}
	entries, err := s.memory.List(agent)
	if err != nil {
		return s.toHTTPError(c, err)
	}
	return c.JSON(http.StatusOK, EntriesResponse{Entries: entries, Count: len(entries)})
}

func (s *Server) handleGetMemory(c echo.Context) error {
	agent, err := agentParam(c)
	if err != nil {
		return s.toHTTPError(c, err)
	}
	entry, err := s.memory.Get(agent, c.Param("id"))
	if err != nil {
		return s.toHTTPError(c, err)
	}
	return c.JSON(http.StatusOK, entry)
}

func (s *Server) handleEditMemory(c echo.Context) error {
	agent, err := agentParam(c)
	if err != nil {
		return s.toHTTPError(c, err)
	}
	var req services.EditRequest
	if err := c.Bind(&req); err != nil {
		return bindError(err)
	}
	entry, err := s.memory.Edit(c.Request().Context(), agent, c.Param("id"), req)
	if err != nil {
		return s.toHTTPError(c, err)
	}
	return c.JSON(http.StatusOK, entry)
}

func (s *Server) handleDeleteMemory(c echo.Context) error {
	agent, err := agentParam(c)
	if err != nil {
		return s.toHTTPError(c, err)
	}
	if err := s.memory.Delete(c.Request().Context(), agent, c.Param("id")); err != nil {
		return s.toHTTPError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleRetrieve(c echo.Context) error {
	agent, err := agentParam(c)
	if err != nil {
		return s.toHTTPError(c, err)
	}
	var req RetrieveRequest
	if err := c.Bind(&req); err != nil {
		return bindError(err)
	}
	q := req.Query
	if len(q.Keywords) == 0 && req.Text != "" {
		q.Keywords = memory.ExtractKeywords(req.Text)
	}
	entries, err := s.memory.Retrieve(c.Request().Context(), agent, q)
	if err != nil {
		return s.toHTTPError(c, err)
	}
	return c.JSON(http.StatusOK, EntriesResponse{Entries: entries, Count: len(entries)})
}

func (s *Server) handleSearch(c echo.Context) error {
	agent, err := agentParam(c)
	if err != nil {
		return s.toHTTPError(c, err)
	}
	var req SearchRequest
	if err := c.Bind(&req); err != nil {
		return bindError(err)
	}
	hits, err := s.memory.Search(c.Request().Context(), agent, req.Text, req.K)
	if err != nil {
		return s.toHTTPError(c, err)
	}
	return c.JSON(http.StatusOK, SearchResponse{Hits: hits})
}

func (s *Server) handleContext(c echo.Context) error {
	agent, err := agentParam(c)
	if err != nil {
		return s.toHTTPError(c, err)
	}
	count := 0
	if v := c.QueryParam("count"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return echo.NewHTTPError(http.StatusBadRequest, "count must be a positive integer")
		}
		count = n
	}
	text, err := s.memory.Context(agent, count)
	if err != nil {
		return s.toHTTPError(c, err)
	}
	return c.JSON(http.StatusOK, ContextResponse{AgentID: agent, Context: text})
}

func (s *Server) handleSummarize(c echo.Context) error {
	agent, err := agentParam(c)
	if err != nil {
		return s.toHTTPError(c, err)
	}
	stats, err := s.memory.Summarize(c.Request().Context(), agent)
	if err != nil {
		return s.toHTTPError(c, err)
	}
	return c.JSON(http.StatusOK, StatsResponse{AgentID: agent, Stats: stats})
}

func (s *Server) handleDecay(c echo.Context) error {
	agent, err := agentParam(c)
	if err != nil {
		return s.toHTTPError(c, err)
	}
	res, err := s.memory.Decay(agent)
	if err != nil {
		return s.toHTTPError(c, err)
	}
	ov, err := s.memory.Overview(agent)
	if err != nil {
		return s.toHTTPError(c, err)
	}
	return c.JSON(http.StatusOK, DecayResponse{AgentID: agent, Evicted: res, Stats: ov.Stats})
}

func (s *Server) handleRecordConversation(c echo.Context) error {
	var req ConversationRequest
	if err := c.Bind(&req); err != nil {
		return bindError(err)
	}
	recorded, err := s.memory.Record(c.Request().Context(), req.Speaker, req.Listener, req.Content)
	if err != nil {
		return s.toHTTPError(c, err)
	}
	return c.JSON(http.StatusOK, ConversationResponse{Recorded: recorded})
}
