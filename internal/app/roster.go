package app

import (
	"sync"

	"github.com/dkeye/Meet/internal/domain"
)

// Tracker diffs roster snapshots from the relay. A snapshot that is
// value-identical as a set to the previous one is ignored entirely, so
// redundant user_list broadcasts cause no session churn.
type Tracker struct {
	self  domain.PeerID
	roles domain.RoleTable

	mu   sync.Mutex
	last map[domain.PeerID]struct{}
}

func NewTracker(self domain.PeerID, roles domain.RoleTable) *Tracker {
	return &Tracker{self: self, roles: roles, last: make(map[domain.PeerID]struct{})}
}

// Apply ingests a snapshot and reports the peers that joined and left
// since the previous one. Self never appears in either list. changed is
// false when the snapshot is identical to the last.
func (t *Tracker) Apply(users []domain.PeerID) (joined, left []domain.PeerID, changed bool) {
	next := make(map[domain.PeerID]struct{}, len(users))
	for _, u := range users {
		next[u] = struct{}{}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if len(next) == len(t.last) {
		same := true
		for u := range next {
			if _, ok := t.last[u]; !ok {
				same = false
				break
			}
		}
		if same {
			return nil, nil, false
		}
	}

	for u := range next {
		if u == t.self {
			continue
		}
		if _, ok := t.last[u]; !ok {
			joined = append(joined, u)
		}
	}
	for u := range t.last {
		if u == t.self {
			continue
		}
		if _, ok := next[u]; !ok {
			left = append(left, u)
		}
	}

	t.last = next
	return joined, left, true
}

// ShouldInitiate decides whether the local side offers to remote. The
// decision is the pure, symmetric role-table function: exactly one side
// of every pair initiates, and passive agents are always waited on.
func (t *Tracker) ShouldInitiate(remote domain.PeerID) bool {
	return t.roles.Initiates(t.self, remote)
}

// Reset clears the last-seen roster (disconnect path).
func (t *Tracker) Reset() {
	t.mu.Lock()
	t.last = make(map[domain.PeerID]struct{})
	t.mu.Unlock()
}
