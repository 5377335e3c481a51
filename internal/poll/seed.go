package poll

import (
	"fmt"

	"github.com/pscheid92/livepoll/internal/domain"
)

// DemoPollID is reserved for the demo poll loaded at startup.
const DemoPollID domain.PollID = 1

// SeedDemo loads the demo poll. Generated identifiers start above DemoPollID afterwards.
func SeedDemo(r *Registry) (domain.Snapshot, error) {
	snap, err := r.Create(domain.NewPoll{
		ID:       DemoPollID,
		Question: "Which option do you prefer?",
		Options:  []string{"Option A", "Option B", "Option C"},
	})
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("seed demo poll: %w", err)
	}
	return snap, nil
}
