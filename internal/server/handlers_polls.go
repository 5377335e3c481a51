package server

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/livepoll/internal/domain"
	apperrors "github.com/pscheid92/livepoll/internal/errors"
)

type createPollRequest struct {
	ID       uint64   `json:"id"`
	Question string   `json:"question"`
	Options  []string `json:"options"`
	IsOpen   *bool    `json:"is_open"`
}

type addOptionRequest struct {
	ID    uint64 `json:"id"`
	Label string `json:"label"`
}

type setStatusRequest struct {
	IsOpen *bool `json:"is_open"`
}

func (s *Server) registerPollRoutes() {
	api := s.echo.Group("/api/polls")
	api.GET("", s.handleListPolls)
	api.POST("", s.handleCreatePoll)
	api.GET("/:id", s.handleGetPoll)
	api.POST("/:id/options", s.handleAddOption)
	api.PUT("/:id/status", s.handleSetPollStatus)
}

func (s *Server) handleListPolls(c echo.Context) error {
	polls := s.app.ListPolls(c.Request().Context())
	if err := c.JSON(http.StatusOK, polls); err != nil {
		return fmt.Errorf("failed to write polls response: %w", err)
	}
	return nil
}

func (s *Server) handleGetPoll(c echo.Context) error {
	id, err := pollIDParam(c)
	if err != nil {
		return err
	}

	snapshot, err := s.app.GetPoll(c.Request().Context(), id)
	if err != nil {
		return err
	}

	if err := c.JSON(http.StatusOK, snapshot); err != nil {
		return fmt.Errorf("failed to write poll response: %w", err)
	}
	return nil
}

func (s *Server) handleCreatePoll(c echo.Context) error {
	var req createPollRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}

	snapshot, err := s.app.CreatePoll(c.Request().Context(), domain.NewPoll{
		ID:       domain.PollID(req.ID),
		Question: req.Question,
		Options:  req.Options,
		IsOpen:   req.IsOpen,
	})
	if err != nil {
		return err
	}

	c.Response().Header().Set(echo.HeaderLocation, fmt.Sprintf("/api/polls/%d", snapshot.ID))
	if err := c.JSON(http.StatusCreated, snapshot); err != nil {
		return fmt.Errorf("failed to write poll response: %w", err)
	}
	return nil
}

func (s *Server) handleAddOption(c echo.Context) error {
	id, err := pollIDParam(c)
	if err != nil {
		return err
	}

	var req addOptionRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}

	option, err := s.app.AddOption(c.Request().Context(), id, domain.OptionID(req.ID), req.Label)
	if err != nil {
		return err
	}

	if err := c.JSON(http.StatusCreated, option); err != nil {
		return fmt.Errorf("failed to write option response: %w", err)
	}
	return nil
}

func (s *Server) handleSetPollStatus(c echo.Context) error {
	id, err := pollIDParam(c)
	if err != nil {
		return err
	}

	var req setStatusRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}
	if req.IsOpen == nil {
		return apperrors.ValidationError("is_open is required")
	}

	snapshot, err := s.app.SetPollOpen(c.Request().Context(), id, *req.IsOpen)
	if err != nil {
		return err
	}

	if err := c.JSON(http.StatusOK, snapshot); err != nil {
		return fmt.Errorf("failed to write poll response: %w", err)
	}
	return nil
}

func pollIDParam(c echo.Context) (domain.PollID, error) {
	raw := c.Param("id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, apperrors.ValidationError("invalid poll id").WithContext("id", raw)
	}
	return domain.PollID(id), nil
}
