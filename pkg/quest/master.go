package quest

import (
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/flecserr"
	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/id"
)

// Master schedules root quests and enforces shutdown-drain semantics
// (spec.md §4.1 QuestMaster). Exclusivity keys let callers declare that an
// operation on a given resource must not have two instances in flight
// simultaneously. Spawned quests join group, an errgroup.Group, so
// ShutdownWith can drain every in-flight quest with a single Wait instead of
// hand-rolling a WaitGroup; quests never cancel their siblings on failure,
// since each quest already tracks its own outcome independently.
type Master struct {
	mu           sync.Mutex
	quests       map[id.QuestID]*Quest
	exclusive    map[string]id.QuestID
	shuttingDown bool
	group        errgroup.Group
}

// NewMaster builds an empty Master.
func NewMaster() *Master {
	return &Master{
		quests:    make(map[id.QuestID]*Quest),
		exclusive: make(map[string]id.QuestID),
	}
}

// Lookup returns the root quest with the given id, if it is still tracked.
func (m *Master) Lookup(questID id.QuestID) (*Quest, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.quests[questID]
	return q, ok
}

// Schedule enqueues a root quest running f on a new goroutine and returns
// its id and handle immediately (the HTTP adapter's 202-with-job-id
// contract, spec.md §6). exclusiveKey, when non-empty, rejects a second
// concurrent schedule against the same key with a Conflict-kind "taken"
// error (spec.md §4.1).
func Schedule[T any](m *Master, description, exclusiveKey string, f func(*Quest) (T, error)) (id.QuestID, *Quest, error) {
	m.mu.Lock()
	if m.shuttingDown {
		m.mu.Unlock()
		return 0, nil, flecserr.New(flecserr.KindConflict, "quest master is shutting down, refusing new work")
	}
	if exclusiveKey != "" {
		if _, taken := m.exclusive[exclusiveKey]; taken {
			m.mu.Unlock()
			return 0, nil, flecserr.Newf(flecserr.KindConflict, "an operation is already in flight for resource %q", exclusiveKey)
		}
	}

	q := New(description)
	m.quests[q.id] = q
	if exclusiveKey != "" {
		m.exclusive[exclusiveKey] = q.id
	}
	m.mu.Unlock()

	m.group.Go(func() error {
		defer m.releaseExclusive(exclusiveKey)
		_, err := runBody(q, f)
		if err != nil {
			return flecserr.WrapStack(err)
		}
		return nil
	})

	return q.id, q, nil
}

func (m *Master) releaseExclusive(key string) {
	if key == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.exclusive, key)
}

// ShutdownWith refuses further Schedule calls, runs f synchronously as a
// final quest, then drains every in-flight root quest before returning.
func ShutdownWith[T any](m *Master, description string, f func(*Quest) (T, error)) (T, error) {
	m.mu.Lock()
	m.shuttingDown = true
	m.mu.Unlock()

	final := New(description)
	result, err := runBody(final, f)

	_ = m.group.Wait()
	return result, err
}
