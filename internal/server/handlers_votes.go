package server

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/livepoll/internal/domain"
	apperrors "github.com/pscheid92/livepoll/internal/errors"
)

type voteRequest struct {
	PollID   uint64 `json:"poll_id"`
	OptionID uint64 `json:"option_id"`
	VoterID  string `json:"voter_id"`
}

func (s *Server) registerVoteRoutes() {
	limit := newRateLimiter(s.config.VoteRateLimit, s.config.VoteRateBurst)
	s.echo.POST("/api/votes", s.handleVote, limit)
	s.echo.POST("/api/polls/:id/votes", s.handlePollVote, limit)
}

func (s *Server) handleVote(c echo.Context) error {
	var req voteRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}
	return s.castVote(c, req)
}

// handlePollVote takes the poll from the path; a poll_id in the body must agree with it.
func (s *Server) handlePollVote(c echo.Context) error {
	id, err := pollIDParam(c)
	if err != nil {
		return err
	}

	var req voteRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}
	if req.PollID != 0 && domain.PollID(req.PollID) != id {
		return apperrors.ValidationError("poll_id does not match path").
			WithContext("path_poll_id", uint64(id)).
			WithContext("body_poll_id", req.PollID)
	}
	req.PollID = uint64(id)

	return s.castVote(c, req)
}

func (s *Server) castVote(c echo.Context, req voteRequest) error {
	snapshot, err := s.app.CastVote(c.Request().Context(), domain.Vote{
		PollID:   domain.PollID(req.PollID),
		OptionID: domain.OptionID(req.OptionID),
		VoterID:  req.VoterID,
	})
	if err != nil {
		return err
	}

	if err := c.JSON(http.StatusOK, snapshot); err != nil {
		return fmt.Errorf("failed to write vote response: %w", err)
	}
	return nil
}
