// Package quest implements the hierarchical job engine from spec.md §4.1:
// first-class, possibly-nested units of long-running work with monotone
// state, progress, and cooperative or concurrent sub-quests. Grounded on
// original_source/flecs-core/src/quest/mod.rs.
package quest

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/id"
)

// State is a quest's position in its state machine (spec.md §4.1):
//
//	Pending -> Ongoing -> {Success, Failing -> Failed, Skipped}
type State int

const (
	Pending State = iota
	Ongoing
	Failing
	Failed
	Success
	Skipped
)

func (s State) String() string {
	switch s {
	case Pending:
		return "Pending"
	case Ongoing:
		return "Ongoing"
	case Failing:
		return "Failing"
	case Failed:
		return "Failed"
	case Success:
		return "Success"
	case Skipped:
		return "Skipped"
	default:
		return "Unknown"
	}
}

// IsTerminal reports whether s is one of the quest engine's terminal states.
func (s State) IsTerminal() bool {
	return s == Failed || s == Success || s == Skipped
}

// Progress is the optional (current, total) pair a quest reports.
type Progress struct {
	Current uint64
	Total   *uint64
}

var questIDCounter uint64

func nextQuestID() id.QuestID {
	return id.QuestID(atomic.AddUint64(&questIDCounter, 1))
}

// Quest is a single node in the job tree. All mutable fields are guarded by
// mu; callers must go through the accessor methods rather than touching
// fields directly, matching the original's tokio::sync::Mutex<Quest>.
type Quest struct {
	id          id.QuestID
	description string

	mu       sync.Mutex
	state    State
	detail   *string
	progress *Progress
	children []*Quest
}

// New creates a quest in state Pending with a fresh id.
func New(description string) *Quest {
	return &Quest{
		id:          nextQuestID(),
		description: description,
		state:       Pending,
	}
}

// ID returns the quest's id.
func (q *Quest) ID() id.QuestID { return q.id }

// Description returns the quest's human-readable name.
func (q *Quest) Description() string { return q.description }

// State returns the quest's current state.
func (q *Quest) State() State {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state
}

// Detail returns the quest's free-text detail string, if any.
func (q *Quest) Detail() *string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.detail
}

// SetDetail sets the free-text detail string surfaced alongside progress
// (spec.md §9, "Quest progress detail string").
func (q *Quest) SetDetail(detail string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.detail = &detail
}

// Progress returns a copy of the quest's own (current, total), if any has
// been recorded directly (as opposed to being derived from children).
func (q *Quest) Progress() *Progress {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.progress == nil {
		return nil
	}
	p := *q.progress
	return &p
}

// AddProgress increments the quest's own current-progress counter.
func (q *Quest) AddProgress(delta uint64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.progress == nil {
		q.progress = &Progress{Current: delta}
	} else {
		q.progress.Current += delta
	}
}

// FailWithError transitions the quest to Failed and records err's message as
// detail. Terminal transitions are idempotent: calling this on an
// already-terminal quest is a no-op (spec.md §4.1/Testable Property 6).
func (q *Quest) FailWithError(err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.state.IsTerminal() {
		return
	}
	q.state = Failed
	msg := err.Error()
	q.detail = &msg
}

// Succeed transitions the quest to Success, unless it is already terminal.
func (q *Quest) Succeed() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.state.IsTerminal() {
		return
	}
	q.state = Success
}

// Skip transitions the quest to Skipped, unless it is already terminal.
func (q *Quest) Skip() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.state.IsTerminal() {
		return
	}
	q.state = Skipped
}

// SetOngoing transitions a Pending quest to Ongoing. Calling it on a
// terminal quest is a no-op.
func (q *Quest) SetOngoing() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.state.IsTerminal() {
		return
	}
	q.state = Ongoing
}

// SetFailing marks the quest Failing while children still run; it has no
// effect once the quest is terminal.
func (q *Quest) SetFailing() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.state.IsTerminal() {
		return
	}
	q.state = Failing
}

func (q *Quest) addChild(child *Quest) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.children = append(q.children, child)
}

// Children returns a snapshot of the quest's sub-quests, in creation order.
func (q *Quest) Children() []*Quest {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*Quest, len(q.children))
	copy(out, q.children)
	return out
}

// SubQuestProgress reports the fraction of direct children that have
// reached a terminal state, matching the original's sub_quest_progress.
func (q *Quest) SubQuestProgress() Progress {
	children := q.Children()
	var current uint64
	for _, c := range children {
		if c.State().IsTerminal() {
			current++
		}
	}
	total := uint64(len(children))
	return Progress{Current: current, Total: &total}
}

// ReconcileFromChildren aggregates this quest's state from its children's
// terminal states (spec.md §4.1): Success only once every child is
// terminal, Failed if any child is Failed, otherwise left untouched (still
// Ongoing/Failing while siblings run).
func (q *Quest) ReconcileFromChildren() {
	children := q.Children()
	if len(children) == 0 {
		return
	}
	allTerminal := true
	anyFailed := false
	for _, c := range children {
		st := c.State()
		if !st.IsTerminal() {
			allTerminal = false
		}
		if st == Failed {
			anyFailed = true
		}
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.state.IsTerminal() {
		return
	}
	switch {
	case anyFailed && allTerminal:
		q.state = Failed
	case anyFailed:
		q.state = Failing
	case allTerminal:
		q.state = Success
	}
}

// runBody executes f against a newly Ongoing quest and finishes it,
// matching the original's process_sub_quest/finish_quest pair: a
// non-terminal success result becomes Success, an error becomes Failed with
// the error's message recorded as detail.
func runBody[T any](q *Quest, f func(*Quest) (T, error)) (T, error) {
	q.SetOngoing()
	result, err := f(q)
	if err != nil {
		q.FailWithError(err)
		return result, err
	}
	q.Succeed()
	return result, nil
}

// CreateSubQuest attaches a cooperative child quest to parent and returns
// its id, handle, and a thunk that runs f synchronously when called — the
// same "runs in the caller's scheduler slot" semantics as the original's
// create_sub_quest, where the returned future is driven by whoever awaits
// it.
func CreateSubQuest[T any](parent *Quest, description string, f func(*Quest) (T, error)) (id.QuestID, *Quest, func() (T, error)) {
	child := New(description)
	parent.addChild(child)
	run := func() (T, error) {
		return runBody(child, f)
	}
	return child.id, child, run
}

// SpawnSubQuest attaches a concurrent child quest to parent, starts running
// f on a new goroutine immediately, and returns a join function the caller
// must call to observe the result — concurrent children do not happen
// automatically before the parent's subsequent statements and must be
// joined explicitly (spec.md §5).
func SpawnSubQuest[T any](parent *Quest, description string, f func(*Quest) (T, error)) (id.QuestID, *Quest, func() (T, error)) {
	child := New(description)
	parent.addChild(child)

	resultCh := make(chan result[T], 1)
	go func() {
		v, err := runBody(child, f)
		resultCh <- result[T]{value: v, err: err}
	}()

	join := func() (T, error) {
		r := <-resultCh
		return r.value, r.err
	}
	return child.id, child, join
}

type result[T any] struct {
	value T
	err   error
}

// Render formats the quest tree as an indented, human-readable summary the
// way the original's Quest::fmt does, for logging and debugging.
func Render(q *Quest) string {
	var sb stringBuilder
	renderInto(&sb, q, 0)
	return sb.String()
}

type stringBuilder struct {
	buf []byte
}

func (b *stringBuilder) WriteString(s string) { b.buf = append(b.buf, s...) }
func (b *stringBuilder) String() string       { return string(b.buf) }

func renderInto(sb *stringBuilder, q *Quest, depth int) {
	indent := ""
	for i := 0; i < depth; i++ {
		indent += "  "
	}
	detail := ""
	if d := q.Detail(); d != nil {
		detail = fmt.Sprintf(" (%s)", *d)
	}
	children := q.Children()
	if len(children) > 0 {
		current := 0
		for _, c := range children {
			if c.State().IsTerminal() {
				current++
			}
		}
		sb.WriteString(fmt.Sprintf("%s%s: %s%s %d/%d\n", indent, q.Description(), q.State(), detail, current, len(children)))
		for _, c := range children {
			renderInto(sb, c, depth+1)
		}
		return
	}
	if p := q.Progress(); p != nil {
		if p.Total != nil {
			sb.WriteString(fmt.Sprintf("%s%s: %s%s %d/%d\n", indent, q.Description(), q.State(), detail, p.Current, *p.Total))
		} else {
			sb.WriteString(fmt.Sprintf("%s%s: %s%s %d\n", indent, q.Description(), q.State(), detail, p.Current))
		}
		return
	}
	sb.WriteString(fmt.Sprintf("%s%s: %s%s\n", indent, q.Description(), q.State(), detail))
}
