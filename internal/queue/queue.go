package queue

import (
	"sort"

	"github.com/ibrahem-io/wathba-dga-v2-sub000/internal/task"
)

// Queue holds pending tasks ordered by ascending priority, then by arrival.
// It is not safe for concurrent use; the scheduler guards it.
type Queue struct {
	tasks []*task.Task
}

func New() *Queue {
	return &Queue{}
}

// Enqueue inserts t by priority, then by arrival. A requeued task keeps its
// original arrival and goes back ahead of equal-priority tasks submitted
// after it.
func (q *Queue) Enqueue(t *task.Task) {
	i := sort.Search(len(q.tasks), func(i int) bool {
		c := q.tasks[i]
		return c.Priority > t.Priority || (c.Priority == t.Priority && c.Seq > t.Seq)
	})

	q.tasks = append(q.tasks, nil)
	copy(q.tasks[i+1:], q.tasks[i:])
	q.tasks[i] = t
}

// DequeueNext removes and returns the first task accepted by eligible.
// Skipped tasks keep their positions. It returns nil when nothing is eligible.
func (q *Queue) DequeueNext(eligible func(*task.Task) bool) *task.Task {
	for i, t := range q.tasks {
		if eligible != nil && !eligible(t) {
			continue
		}
		copy(q.tasks[i:], q.tasks[i+1:])
		q.tasks[len(q.tasks)-1] = nil
		q.tasks = q.tasks[:len(q.tasks)-1]
		return t
	}
	return nil
}

func (q *Queue) Len() int {
	return len(q.tasks)
}

// Tasks returns the queued tasks in dispatch order.
func (q *Queue) Tasks() []*task.Task {
	out := make([]*task.Task, len(q.tasks))
	copy(out, q.tasks)
	return out
}

// Drain empties the queue and returns what it held, in dispatch order.
func (q *Queue) Drain() []*task.Task {
	out := q.Tasks()
	q.tasks = nil
	return out
}
