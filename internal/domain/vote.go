package domain

import "errors"

// Vote is a single vote request. It is not stored beyond the step that applies it.
type Vote struct {
	PollID   PollID   `json:"poll_id"`
	OptionID OptionID `json:"option_id"`
	VoterID  string   `json:"voter_id"`
}

// VoteResult describes why a vote was or wasn't applied.
type VoteResult int

const (
	VoteApplied       VoteResult = iota // Vote was committed
	VoteInvalid                         // Request failed validation before reaching the registry
	VotePollNotFound                    // Unknown poll
	VotePollClosed                      // Poll not accepting votes
	VoteAlreadyVoted                    // Voter already recorded in the poll
	VoteOptionMissing                   // Unknown option within the poll
)

func (r VoteResult) String() string {
	switch r {
	case VoteApplied:
		return "applied"
	case VoteInvalid:
		return "invalid"
	case VotePollNotFound:
		return "poll_not_found"
	case VotePollClosed:
		return "poll_closed"
	case VoteAlreadyVoted:
		return "already_voted"
	case VoteOptionMissing:
		return "option_not_found"
	default:
		return "unknown"
	}
}

// VoteResultOf classifies the error returned for a vote. A nil error means the vote was applied.
func VoteResultOf(err error) VoteResult {
	switch {
	case err == nil:
		return VoteApplied
	case errors.Is(err, ErrPollNotFound):
		return VotePollNotFound
	case errors.Is(err, ErrPollClosed):
		return VotePollClosed
	case errors.Is(err, ErrAlreadyVoted):
		return VoteAlreadyVoted
	case errors.Is(err, ErrOptionNotFound):
		return VoteOptionMissing
	default:
		return VoteInvalid
	}
}
