package engine

import "sync"

// queue holds jobs waiting for the engine. Live jobs are served first;
// within an origin, order is FIFO.
type queue struct {
	mu     sync.Mutex
	live   []*Future
	batch  []*Future
	err    error
	signal chan struct{}
}

func newQueue() *queue {
	return &queue{signal: make(chan struct{}, 1)}
}

// push enqueues f. It fails with the close error once the queue is closed.
func (q *queue) push(f *Future) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.err != nil {
		return q.err
	}
	if f.job.Origin == OriginLive {
		q.live = append(q.live, f)
	} else {
		q.batch = append(q.batch, f)
	}
	q.notify()
	return nil
}

// pop removes the next job, or returns nil.
func (q *queue) pop() *Future {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.live) > 0 {
		f := q.live[0]
		q.live[0] = nil
		q.live = q.live[1:]
		return f
	}
	if len(q.batch) > 0 {
		f := q.batch[0]
		q.batch[0] = nil
		q.batch = q.batch[1:]
		return f
	}
	return nil
}

// remove drops f if it is still queued.
func (q *queue) remove(f *Future) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	var ok bool
	q.live, ok = without(q.live, f)
	if ok {
		return true
	}
	q.batch, ok = without(q.batch, f)
	return ok
}

// removeSession drops all queued live jobs of a session.
func (q *queue) removeSession(sessionID string) []*Future {
	q.mu.Lock()
	defer q.mu.Unlock()

	var removed []*Future
	kept := q.live[:0]
	for _, f := range q.live {
		if f.job.SessionID == sessionID {
			removed = append(removed, f)
			continue
		}
		kept = append(kept, f)
	}
	for i := len(kept); i < len(q.live); i++ {
		q.live[i] = nil
	}
	q.live = kept
	return removed
}

// close rejects further pushes with err and returns the drained jobs.
func (q *queue) close(err error) []*Future {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.err = err
	drained := append(q.live, q.batch...)
	q.live, q.batch = nil, nil
	return drained
}

// reopen accepts pushes again after close.
func (q *queue) reopen() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.err = nil
}

func (q *queue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.live) + len(q.batch)
}

// ready is signalled after a push.
func (q *queue) ready() <-chan struct{} {
	return q.signal
}

func (q *queue) notify() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

func without(list []*Future, f *Future) ([]*Future, bool) {
	for i, item := range list {
		if item == f {
			copy(list[i:], list[i+1:])
			list[len(list)-1] = nil
			return list[:len(list)-1], true
		}
	}
	return list, false
}
