package app

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/livepoll/internal/domain"
	"github.com/pscheid92/livepoll/internal/metrics"
)

const maxVoterIDLength = 256

// Service implements domain.PollService on top of a PollStore.
type Service struct {
	polls     domain.PollStore
	publisher domain.SnapshotPublisher
	metrics   *metrics.VoteMetrics
	clock     clockwork.Clock
}

// NewService creates the application layer service. m may be nil.
func NewService(polls domain.PollStore, publisher domain.SnapshotPublisher, m *metrics.VoteMetrics, clock clockwork.Clock) *Service {
	return &Service{
		polls:     polls,
		publisher: publisher,
		metrics:   m,
		clock:     clock,
	}
}

func (s *Service) ListPolls(_ context.Context) []domain.Snapshot {
	return s.polls.List()
}

func (s *Service) GetPoll(_ context.Context, id domain.PollID) (domain.Snapshot, error) {
	return s.polls.Get(id)
}

// CreatePoll validates and registers a new poll, then announces it to listeners.
func (s *Service) CreatePoll(ctx context.Context, p domain.NewPoll) (domain.Snapshot, error) {
	p.Question = strings.TrimSpace(p.Question)
	if p.Question == "" {
		return domain.Snapshot{}, fmt.Errorf("%w: question must not be empty", domain.ErrInvalidInput)
	}
	p.Options = slices.Clone(p.Options)
	for i, label := range p.Options {
		label = strings.TrimSpace(label)
		if label == "" {
			return domain.Snapshot{}, fmt.Errorf("%w: option %d has an empty label", domain.ErrInvalidInput, i+1)
		}
		p.Options[i] = label
	}

	snap, err := s.polls.Create(p)
	if err != nil {
		return domain.Snapshot{}, err
	}

	if s.metrics != nil {
		s.metrics.PollsCreated.Inc()
	}
	slog.InfoContext(ctx, "Poll created", "poll_id", snap.ID, "options", len(snap.Options), "open", snap.IsOpen)
	s.publisher.Publish(snap)
	return snap, nil
}

// AddOption appends an option to an existing poll. A zero optionID lets the poll pick the next number.
func (s *Service) AddOption(ctx context.Context, pollID domain.PollID, optionID domain.OptionID, label string) (domain.Option, error) {
	if pollID == 0 {
		return domain.Option{}, fmt.Errorf("%w: poll id is required", domain.ErrInvalidInput)
	}
	label = strings.TrimSpace(label)
	if label == "" {
		return domain.Option{}, fmt.Errorf("%w: label must not be empty", domain.ErrInvalidInput)
	}

	opt, snap, err := s.polls.AddOption(pollID, optionID, label)
	if err != nil {
		return domain.Option{}, err
	}

	if s.metrics != nil {
		s.metrics.OptionsAdded.Inc()
	}
	slog.InfoContext(ctx, "Option added", "poll_id", pollID, "option_id", opt.ID)
	s.publisher.Publish(snap)
	return opt, nil
}

// SetPollOpen opens or closes a poll. Listeners only hear about it when the state actually changed.
func (s *Service) SetPollOpen(ctx context.Context, pollID domain.PollID, open bool) (domain.Snapshot, error) {
	snap, changed, err := s.polls.SetOpen(pollID, open)
	if err != nil {
		return domain.Snapshot{}, err
	}

	if changed {
		slog.InfoContext(ctx, "Poll state changed", "poll_id", pollID, "open", open)
		s.publisher.Publish(snap)
	}
	return snap, nil
}

// CastVote runs the vote pipeline: validate, apply atomically, publish the new snapshot.
// Rejections are reported through the returned error; domain.VoteResultOf classifies them.
func (s *Service) CastVote(ctx context.Context, v domain.Vote) (domain.Snapshot, error) {
	start := s.clock.Now()

	snap, err := s.castVote(v)

	result := domain.VoteResultOf(err)
	if s.metrics != nil {
		s.metrics.VotesProcessed.WithLabelValues(result.String()).Inc()
		s.metrics.ProcessingDuration.Observe(s.clock.Since(start).Seconds())
	}

	if err != nil {
		slog.DebugContext(ctx, "Vote rejected", "poll_id", v.PollID, "option_id", v.OptionID, "result", result.String(), "error", err)
		return domain.Snapshot{}, err
	}

	slog.DebugContext(ctx, "Vote applied", "poll_id", v.PollID, "option_id", v.OptionID, "revision", snap.Revision)
	s.publisher.Publish(snap)
	return snap, nil
}

func (s *Service) castVote(v domain.Vote) (domain.Snapshot, error) {
	v.VoterID = strings.TrimSpace(v.VoterID)
	switch {
	case v.PollID == 0:
		return domain.Snapshot{}, fmt.Errorf("%w: poll id is required", domain.ErrInvalidInput)
	case v.OptionID == 0:
		return domain.Snapshot{}, fmt.Errorf("%w: option id is required", domain.ErrInvalidInput)
	case v.VoterID == "":
		return domain.Snapshot{}, fmt.Errorf("%w: voter id must not be empty", domain.ErrInvalidInput)
	case len(v.VoterID) > maxVoterIDLength:
		return domain.Snapshot{}, fmt.Errorf("%w: voter id exceeds %d bytes", domain.ErrInvalidInput, maxVoterIDLength)
	}

	return s.polls.ApplyVote(v)
}
