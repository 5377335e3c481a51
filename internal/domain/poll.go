package domain

import "context"

type (
	PollID   uint64
	OptionID uint64
)

type Option struct {
	ID    OptionID `json:"id"`
	Label string   `json:"label"`
	Votes uint64   `json:"votes"`
}

// Snapshot is a complete copy of a poll at one instant. Revision increases with every
// committed mutation of the poll, so two snapshots of the same poll can be ordered.
type Snapshot struct {
	ID       PollID   `json:"id"`
	Question string   `json:"question"`
	IsOpen   bool     `json:"is_open"`
	Options  []Option `json:"options"`
	Voters   []string `json:"voters"`
	Revision uint64   `json:"revision"`
}

// TotalVotes sums the option tallies.
func (s Snapshot) TotalVotes() uint64 {
	var total uint64
	for _, o := range s.Options {
		total += o.Votes
	}
	return total
}

// NewPoll describes a poll to create. A zero ID asks the registry to allocate one,
// a nil IsOpen defaults to open.
type NewPoll struct {
	ID       PollID
	Question string
	Options  []string
	IsOpen   *bool
}

// PollStore is the registry contract the application layer works against.
type PollStore interface {
	Get(id PollID) (Snapshot, error)
	List() []Snapshot
	Create(p NewPoll) (Snapshot, error)
	AddOption(pollID PollID, optionID OptionID, label string) (Option, Snapshot, error)
	SetOpen(pollID PollID, open bool) (Snapshot, bool, error)
	ApplyVote(v Vote) (Snapshot, error)
}

// PollReader is the read-only subset used by listener sessions for their initial state.
type PollReader interface {
	Get(id PollID) (Snapshot, error)
	List() []Snapshot
}

// PollService is the application layer contract - handlers route all operations through here.
type PollService interface {
	ListPolls(ctx context.Context) []Snapshot
	GetPoll(ctx context.Context, id PollID) (Snapshot, error)
	CreatePoll(ctx context.Context, p NewPoll) (Snapshot, error)
	AddOption(ctx context.Context, pollID PollID, optionID OptionID, label string) (Option, error)
	SetPollOpen(ctx context.Context, pollID PollID, open bool) (Snapshot, error)
	CastVote(ctx context.Context, v Vote) (Snapshot, error)
}
