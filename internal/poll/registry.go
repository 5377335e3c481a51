package poll

import (
	"fmt"
	"maps"
	"math"
	"slices"
	"sync"

	"github.com/pscheid92/livepoll/internal/domain"
)

type pollState struct {
	id       domain.PollID
	question string
	isOpen   bool
	options  []domain.Option
	voters   map[string]struct{}
	revision uint64
}

func (p *pollState) option(id domain.OptionID) (int, bool) {
	for i := range p.options {
		if p.options[i].ID == id {
			return i, true
		}
	}
	return 0, false
}

// nextOptionID returns max(existing)+1, or false when the largest id is already taken.
func (p *pollState) nextOptionID() (domain.OptionID, bool) {
	var maxID domain.OptionID
	for _, o := range p.options {
		maxID = max(maxID, o.ID)
	}
	if maxID == math.MaxUint64 {
		return 0, false
	}
	return maxID + 1, true
}

// snapshot must be called with the registry lock held (read or write).
func (p *pollState) snapshot() domain.Snapshot {
	return domain.Snapshot{
		ID:       p.id,
		Question: p.question,
		IsOpen:   p.isOpen,
		Options:  slices.Clone(p.options),
		Voters:   slices.Sorted(maps.Keys(p.voters)),
		Revision: p.revision,
	}
}

// Registry maps poll IDs to poll state.
type Registry struct {
	mu    sync.RWMutex
	polls map[domain.PollID]*pollState
	ids   *Allocator
}

func NewRegistry(ids *Allocator) *Registry {
	return &Registry{
		polls: make(map[domain.PollID]*pollState),
		ids:   ids,
	}
}

// Get returns a copy of one poll.
func (r *Registry) Get(id domain.PollID) (domain.Snapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.polls[id]
	if !ok {
		return domain.Snapshot{}, fmt.Errorf("poll %d: %w", id, domain.ErrPollNotFound)
	}
	return p.snapshot(), nil
}

// List returns copies of every poll ordered by ID.
func (r *Registry) List() []domain.Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Snapshot, 0, len(r.polls))
	for _, id := range slices.Sorted(maps.Keys(r.polls)) {
		out = append(out, r.polls[id].snapshot())
	}
	return out
}

// Len returns the number of polls.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.polls)
}

// Create adds a poll. Options are numbered 1..N in the order given.
func (r *Registry) Create(np domain.NewPoll) (domain.Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := np.ID
	if id != 0 {
		if _, exists := r.polls[id]; exists {
			return domain.Snapshot{}, fmt.Errorf("poll %d: %w", id, domain.ErrPollExists)
		}
		r.ids.Observe(id)
	} else {
		for id == 0 || r.polls[id] != nil {
			next, err := r.ids.Next()
			if err != nil {
				return domain.Snapshot{}, fmt.Errorf("allocate poll id: %w", err)
			}
			id = next
		}
	}

	isOpen := true
	if np.IsOpen != nil {
		isOpen = *np.IsOpen
	}

	p := &pollState{
		id:       id,
		question: np.Question,
		isOpen:   isOpen,
		options:  make([]domain.Option, 0, len(np.Options)),
		voters:   make(map[string]struct{}),
		revision: 1,
	}
	for i, label := range np.Options {
		p.options = append(p.options, domain.Option{ID: domain.OptionID(i + 1), Label: label})
	}
	r.polls[id] = p

	return p.snapshot(), nil
}

// AddOption appends an option to a poll. A zero optionID takes the next free number.
func (r *Registry) AddOption(pollID domain.PollID, optionID domain.OptionID, label string) (domain.Option, domain.Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.polls[pollID]
	if !ok {
		return domain.Option{}, domain.Snapshot{}, fmt.Errorf("poll %d: %w", pollID, domain.ErrPollNotFound)
	}

	if optionID == 0 {
		next, ok := p.nextOptionID()
		if !ok {
			return domain.Option{}, domain.Snapshot{}, fmt.Errorf("%w: poll %d has no option id left", domain.ErrInvalidInput, pollID)
		}
		optionID = next
	}
	if _, exists := p.option(optionID); exists {
		return domain.Option{}, domain.Snapshot{}, fmt.Errorf("poll %d option %d: %w", pollID, optionID, domain.ErrOptionExists)
	}

	opt := domain.Option{ID: optionID, Label: label}
	p.options = append(p.options, opt)
	p.revision++

	return opt, p.snapshot(), nil
}

// SetOpen opens or closes a poll for voting. changed reports whether the state flipped.
func (r *Registry) SetOpen(pollID domain.PollID, open bool) (snap domain.Snapshot, changed bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.polls[pollID]
	if !ok {
		return domain.Snapshot{}, false, fmt.Errorf("poll %d: %w", pollID, domain.ErrPollNotFound)
	}
	if p.isOpen != open {
		p.isOpen = open
		p.revision++
		changed = true
	}
	return p.snapshot(), changed, nil
}

// ApplyVote validates and commits one vote. Checks run in a fixed order: poll existence,
// open state, voter membership, option existence. Any failure leaves the poll untouched.
func (r *Registry) ApplyVote(v domain.Vote) (domain.Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.polls[v.PollID]
	if !ok {
		return domain.Snapshot{}, fmt.Errorf("poll %d: %w", v.PollID, domain.ErrPollNotFound)
	}
	if !p.isOpen {
		return domain.Snapshot{}, fmt.Errorf("poll %d: %w", v.PollID, domain.ErrPollClosed)
	}
	if _, voted := p.voters[v.VoterID]; voted {
		return domain.Snapshot{}, fmt.Errorf("poll %d: %w", v.PollID, domain.ErrAlreadyVoted)
	}
	idx, ok := p.option(v.OptionID)
	if !ok {
		return domain.Snapshot{}, fmt.Errorf("poll %d option %d: %w", v.PollID, v.OptionID, domain.ErrOptionNotFound)
	}

	p.options[idx].Votes++
	p.voters[v.VoterID] = struct{}{}
	p.revision++

	return p.snapshot(), nil
}
