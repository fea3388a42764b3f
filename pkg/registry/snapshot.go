package registry

import (
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/vango-dev/nsbus/pkg/protocol"
)

const snapshotVersion = 1

type snapshot struct {
	Version int             `msgpack:"v"`
	TakenAt time.Time       `msgpack:"taken_at"`
	Entries []snapshotEntry `msgpack:"entries"`
}

type snapshotEntry struct {
	ID       string    `msgpack:"id"`
	ClosedAt time.Time `msgpack:"closed_at"`
	Connects uint64    `msgpack:"connects"`
}

// Snapshot serializes the known connection ids so that a restarted server
// can treat returning clients as reconnects. Open entries are recorded as
// closed at the time of the snapshot.
func (r *Registry) Snapshot() ([]byte, error) {
	now := r.now()

	r.mu.RLock()
	snap := snapshot{
		Version: snapshotVersion,
		TakenAt: now,
		Entries: make([]snapshotEntry, 0, len(r.entries)),
	}
	for _, e := range r.entries {
		closedAt := e.closedAt
		if e.open || closedAt.IsZero() {
			closedAt = now
		}
		snap.Entries = append(snap.Entries, snapshotEntry{
			ID:       e.id,
			ClosedAt: closedAt,
			Connects: e.connects,
		})
	}
	r.mu.RUnlock()

	data, err := msgpack.Marshal(&snap)
	if err != nil {
		return nil, fmt.Errorf("registry: marshal snapshot: %w", err)
	}
	return data, nil
}

// Restore loads entries from a snapshot produced by Snapshot. Restored
// entries are closed with the default subscriptions. Ids already present in
// the registry are left untouched. Restore returns the number of entries
// added.
func (r *Registry) Restore(data []byte) (int, error) {
	if len(data) == 0 {
		return 0, nil
	}

	var snap snapshot
	if err := msgpack.Unmarshal(data, &snap); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
	}
	if snap.Version != snapshotVersion {
		return 0, fmt.Errorf("%w: unsupported version %d", ErrInvalidSnapshot, snap.Version)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	added := 0
	for _, se := range snap.Entries {
		if se.ID == "" {
			continue
		}
		if _, exists := r.entries[se.ID]; exists {
			continue
		}
		r.entries[se.ID] = &entry{
			id:            se.ID,
			subscriptions: protocol.DefaultSubscriptions(),
			closedAt:      se.ClosedAt,
			connects:      se.Connects,
		}
		added++
	}

	r.logger.Info("registry restored", "entries", added)
	return added, nil
}
