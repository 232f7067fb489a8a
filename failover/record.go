package failover

import (
	"time"

	"github.com/google/uuid"
)

// Action describes what the manager did in response to a transition.
type Action string

// Actions recorded in the failover history.
const (
	// ActionFailover redirected traffic to a backup provider.
	ActionFailover Action = "failover"

	// ActionRecover restored traffic to a recovered provider.
	ActionRecover Action = "recover"

	// ActionRebalance signaled a load rebalance without failing over.
	ActionRebalance Action = "rebalance"

	// ActionNone recorded the event with nothing actionable, e.g. no
	// healthy backup was available.
	ActionNone Action = "none"
)

// Record is one immutable entry in the bounded failover history.
type Record struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Provider  string    `json:"provider"`
	Reason    string    `json:"reason"`
	Action    Action    `json:"action"`
	Backup    string    `json:"backup,omitempty"`
}

func newRecord(now time.Time, provider, reason string, action Action, backup string) Record {
	return Record{
		ID:        uuid.NewString(),
		Timestamp: now,
		Provider:  provider,
		Reason:    reason,
		Action:    action,
		Backup:    backup,
	}
}
