package campaign

import "strings"

// leadQueue partitions an agent's leads into pending, in-flight and
// completed. Every lead is in exactly one partition.
type leadQueue struct {
	pending   []string
	completed []string
	current   string
}

// dedupe trims ids, drops blanks and keeps the first occurrence of each.
func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func newLeadQueue(ids []string) *leadQueue {
	return &leadQueue{pending: dedupe(ids), completed: []string{}}
}

// pop moves the head of the queue in flight.
func (q *leadQueue) pop() (string, bool) {
	if q.current != "" || len(q.pending) == 0 {
		return "", false
	}
	q.current = q.pending[0]
	q.pending = q.pending[1:]
	return q.current, true
}

// settle moves the in-flight lead to completed.
func (q *leadQueue) settle() string {
	id := q.current
	if id != "" {
		q.completed = append(q.completed, id)
		q.current = ""
	}
	return id
}

// requeue puts the in-flight lead back at the head.
func (q *leadQueue) requeue() {
	if q.current == "" {
		return
	}
	q.pending = append([]string{q.current}, q.pending...)
	q.current = ""
}

func (q *leadQueue) empty() bool { return len(q.pending) == 0 }

// total is the number of leads assigned at spawn.
func (q *leadQueue) total() int {
	n := len(q.pending) + len(q.completed)
	if q.current != "" {
		n++
	}
	return n
}

func (q *leadQueue) pendingCopy() []string {
	return append([]string{}, q.pending...)
}

func (q *leadQueue) completedCopy() []string {
	return append([]string{}, q.completed...)
}
