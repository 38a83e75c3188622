package session

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/ledgerline/finguard/internal/kv"
)

// Entry pairs a parsed record with the digest segment of its key.
type Entry struct {
	Digest string
	Record Record
}

// Stats is the global session aggregate.
//
// TotalActiveSessions counts keys and is authoritative; SessionsByUser counts
// only records that parsed. A key holding corrupt data is counted globally but
// excluded from the per-user breakdown.
type Stats struct {
	TotalActiveSessions int
	SessionsByUser      map[string]int
	OldestSession       time.Time
}

// Manager provides administrative operations over session records. All of its
// methods are O(n) scans intended for admin surfaces, not request hot paths.
type Manager struct {
	store *kv.Store
}

// NewManager creates a [Manager] over the shared store.
func NewManager(store *kv.Store) *Manager {
	return &Manager{store: store}
}

// UserSessions returns all live sessions for a user, most recently active
// first. Keys whose value is missing or unparseable are skipped; they are
// treated as already expired.
func (m *Manager) UserSessions(ctx context.Context, userID string) ([]Entry, error) {
	keys, err := m.store.ScanKeys(ctx, Key(userID, "*"))
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return []Entry{}, nil
	}

	values, found, err := m.store.GetMany(ctx, keys)
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(keys))
	for i, key := range keys {
		if !found[i] {
			continue
		}
		rec, decErr := Decode(values[i])
		if decErr != nil {
			continue
		}
		entries = append(entries, Entry{
			Digest: digestFromKey(key),
			Record: rec,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Record.LastActivity > entries[j].Record.LastActivity
	})
	return entries, nil
}

// InvalidateUserSessions bulk-deletes every session key for the user and
// returns the number of records actually removed, zero when none existed.
func (m *Manager) InvalidateUserSessions(ctx context.Context, userID string) (int, error) {
	keys, err := m.store.ScanKeys(ctx, Key(userID, "*"))
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}
	return m.store.DelCount(ctx, keys...)
}

// GlobalStats scans every session key and aggregates counts.
func (m *Manager) GlobalStats(ctx context.Context) (Stats, error) {
	stats := Stats{SessionsByUser: map[string]int{}}

	keys, err := m.store.ScanKeys(ctx, "session:*")
	if err != nil {
		return stats, err
	}
	stats.TotalActiveSessions = len(keys)
	if len(keys) == 0 {
		return stats, nil
	}

	values, found, err := m.store.GetMany(ctx, keys)
	if err != nil {
		// Key count was already observed; report it with an empty breakdown.
		return Stats{TotalActiveSessions: len(keys), SessionsByUser: map[string]int{}}, err
	}

	for i := range keys {
		if !found[i] {
			continue
		}
		rec, decErr := Decode(values[i])
		if decErr != nil {
			continue
		}
		stats.SessionsByUser[rec.UserID]++
		created := rec.CreatedTime()
		if stats.OldestSession.IsZero() || created.Before(stats.OldestSession) {
			stats.OldestSession = created
		}
	}
	return stats, nil
}

func digestFromKey(key string) string {
	parts := strings.SplitN(key, ":", 3)
	if len(parts) != 3 {
		return ""
	}
	return parts[2]
}
