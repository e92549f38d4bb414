package queue

import (
	"math/rand/v2"
	"testing"

	"github.com/ibrahem-io/wathba-dga-v2-sub000/internal/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ids(tasks []*task.Task) []string {
	out := make([]string, len(tasks))
	for i, t := range tasks {
		out[i] = t.Input.(string)
	}
	return out
}

func TestQueue_PriorityOrder(t *testing.T) {
	q := New()
	q.Enqueue(task.New("a", "low", task.PriorityLow))
	q.Enqueue(task.New("a", "high", task.PriorityHigh))
	q.Enqueue(task.New("a", "normal", task.PriorityNormal))

	assert.Equal(t, []string{"high", "normal", "low"}, ids(q.Tasks()))
	assert.Equal(t, 3, q.Len())
}

func TestQueue_FIFOWithinPriority(t *testing.T) {
	q := New()
	q.Enqueue(task.New("a", "n1", 5))
	q.Enqueue(task.New("a", "h1", 1))
	q.Enqueue(task.New("a", "n2", 5))
	q.Enqueue(task.New("a", "h2", 1))
	q.Enqueue(task.New("a", "n3", 5))

	assert.Equal(t, []string{"h1", "h2", "n1", "n2", "n3"}, ids(q.Tasks()))
}

func TestQueue_ReenqueueKeepsArrivalOrder(t *testing.T) {
	q := New()
	first := task.New("a", "first", 5)
	q.Enqueue(first)
	q.Enqueue(task.New("a", "second", 5))

	got := q.DequeueNext(nil)
	require.Same(t, first, got)

	q.Enqueue(task.New("a", "third", 5))
	q.Enqueue(task.New("a", "urgent", 1))
	first.RetryCount++
	q.Enqueue(first)

	assert.Equal(t, []string{"urgent", "first", "second", "third"}, ids(q.Tasks()))
}

func TestQueue_ReenqueueStaysBehindEarlierArrivals(t *testing.T) {
	q := New()
	early := task.New("a", "early", 5)
	late := task.New("a", "late", 5)
	q.Enqueue(early)
	q.Enqueue(late)

	require.Same(t, early, q.DequeueNext(nil))
	require.Same(t, late, q.DequeueNext(nil))

	q.Enqueue(late)
	q.Enqueue(early)

	assert.Equal(t, []string{"early", "late"}, ids(q.Tasks()))
}

func TestQueue_SortedUnderRandomInserts(t *testing.T) {
	q := New()
	arrival := map[*task.Task]int{}
	for i := 0; i < 500; i++ {
		tsk := task.New("a", "x", rand.IntN(10))
		arrival[tsk] = i
		q.Enqueue(tsk)
	}

	tasks := q.Tasks()
	for i := 1; i < len(tasks); i++ {
		prev, cur := tasks[i-1], tasks[i]
		require.LessOrEqual(t, prev.Priority, cur.Priority)
		if prev.Priority == cur.Priority {
			require.Less(t, arrival[prev], arrival[cur])
		}
	}
}

func TestQueue_DequeueNextSkipsIneligible(t *testing.T) {
	q := New()
	q.Enqueue(task.New("extract", "e1", 1))
	q.Enqueue(task.New("parse", "p1", 2))
	q.Enqueue(task.New("extract", "e2", 3))
	q.Enqueue(task.New("parse", "p2", 4))

	onlyParse := func(t *task.Task) bool { return t.Category == "parse" }

	got := q.DequeueNext(onlyParse)
	require.NotNil(t, got)
	assert.Equal(t, "p1", got.Input)
	assert.Equal(t, []string{"e1", "e2", "p2"}, ids(q.Tasks()))

	got = q.DequeueNext(func(t *task.Task) bool { return t.Category == "score" })
	assert.Nil(t, got)
	assert.Equal(t, 3, q.Len())
}

func TestQueue_Empty(t *testing.T) {
	q := New()

	assert.Nil(t, q.DequeueNext(nil))
	assert.Zero(t, q.Len())
	assert.Empty(t, q.Drain())
}

func TestQueue_Drain(t *testing.T) {
	q := New()
	q.Enqueue(task.New("a", "b", 2))
	q.Enqueue(task.New("a", "a", 1))

	drained := q.Drain()
	assert.Equal(t, []string{"a", "b"}, ids(drained))
	assert.Zero(t, q.Len())
}
