package scheduler

import (
	"sync"
	"time"
)

// Lane priorities. Lower is dequeued first.
const (
	lanePremium = 0
	laneFree    = 1
)

// jobQueue is a thread-safe binary min-heap over queued jobs with two
// logical lanes and age-based anti-starvation.
//
// Ordering: effective lane first, then enqueue time. A free-tier job whose
// wait exceeds the starvation ceiling drops to the premium lane, where its
// older enqueue time puts it at the front. Premium never starves free
// forever; free never preempts fresh premium work before the ceiling.
//
// Aging means effective priorities drift while jobs sit in the heap, so Pop
// re-heapifies first. Queues here are tens of jobs, not millions; O(n)
// on dequeue is noise next to a multi-second render.
type jobQueue struct {
	mu sync.Mutex

	heap []*queueItem
	// pos tracks heap index by job id, for O(log n) removal on cancel
	pos map[string]int

	// starvationCeiling is how long a free job waits before promotion
	starvationCeiling time.Duration

	now func() time.Time // injectable clock for tests
}

type queueItem struct {
	job        *Job
	lane       int
	enqueuedAt time.Time
}

// newJobQueue creates an empty queue with the given anti-starvation ceiling.
func newJobQueue(starvationCeiling time.Duration) *jobQueue {
	return &jobQueue{
		pos:               make(map[string]int),
		starvationCeiling: starvationCeiling,
		now:               time.Now,
	}
}

// laneFor maps an account tier to its lane.
func laneFor(job *Job) int {
	if job.Request.ClientTier == "premium" {
		return lanePremium
	}
	return laneFree
}

// effectiveLane applies the anti-starvation promotion.
func (q *jobQueue) effectiveLane(it *queueItem) int {
	if it.lane == laneFree && q.starvationCeiling > 0 &&
		q.now().Sub(it.enqueuedAt) >= q.starvationCeiling {
		return lanePremium
	}
	return it.lane
}

// less orders the heap: effective lane, then enqueue time.
func (q *jobQueue) less(a, b *queueItem) bool {
	la, lb := q.effectiveLane(a), q.effectiveLane(b)
	if la != lb {
		return la < lb
	}
	return a.enqueuedAt.Before(b.enqueuedAt)
}

// Push adds a job to the queue. O(log n).
func (q *jobQueue) Push(job *Job) {
	q.mu.Lock()
	defer q.mu.Unlock()

	it := &queueItem{job: job, lane: laneFor(job), enqueuedAt: q.now()}
	q.heap = append(q.heap, it)
	q.pos[job.ID] = len(q.heap) - 1
	q.siftUp(len(q.heap) - 1)
}

// Pop removes and returns the front job, or nil when empty. Re-heapifies
// first so anti-starvation promotions that matured while jobs waited are
// reflected in the order.
func (q *jobQueue) Pop() *Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.heap) == 0 {
		return nil
	}

	q.heapify()

	top := q.heap[0]
	q.removeAt(0)
	return top.job
}

// Remove deletes a job by id, for free cancellation of queued jobs.
// Reports whether the job was present.
func (q *jobQueue) Remove(jobID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	i, ok := q.pos[jobID]
	if !ok {
		return false
	}
	q.removeAt(i)
	return true
}

// Len returns the current queue depth.
func (q *jobQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.heap)
}

// removeAt deletes index i, maintaining heap order. Caller holds the lock.
func (q *jobQueue) removeAt(i int) {
	last := len(q.heap) - 1
	delete(q.pos, q.heap[i].job.ID)
	if i != last {
		q.heap[i] = q.heap[last]
		q.pos[q.heap[i].job.ID] = i
	}
	q.heap = q.heap[:last]
	if i < len(q.heap) {
		q.siftDown(i)
		q.siftUp(i)
	}
}

// heapify restores order bottom-up. Caller holds the lock.
func (q *jobQueue) heapify() {
	for i := len(q.heap)/2 - 1; i >= 0; i-- {
		q.siftDown(i)
	}
}

func (q *jobQueue) siftUp(i int) {
	for i > 0 {
		parent := (i - 1) / 2
		if !q.less(q.heap[i], q.heap[parent]) {
			return
		}
		q.swap(i, parent)
		i = parent
	}
}

func (q *jobQueue) siftDown(i int) {
	n := len(q.heap)
	for {
		smallest := i
		if l := 2*i + 1; l < n && q.less(q.heap[l], q.heap[smallest]) {
			smallest = l
		}
		if r := 2*i + 2; r < n && q.less(q.heap[r], q.heap[smallest]) {
			smallest = r
		}
		if smallest == i {
			return
		}
		q.swap(i, smallest)
		i = smallest
	}
}

func (q *jobQueue) swap(i, j int) {
	q.heap[i], q.heap[j] = q.heap[j], q.heap[i]
	q.pos[q.heap[i].job.ID] = i
	q.pos[q.heap[j].job.ID] = j
}
