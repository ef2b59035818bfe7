package engine

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by Send/Get once a Queue has been closed.
var ErrClosed = errors.New("engine: message queue closed")

// Message is one entry of a thread's bounded guarded message queue (§4.7,
// §5's message-passing primitives). IndexKey, when non-nil, is the
// first-argument index term get_message's caller already computed for the
// message term -- carried alongside the opaque Payload so Get can prune a
// non-matching message without invoking the (comparatively expensive) full
// unification-based matcher.
type Message struct {
	Payload  interface{}
	IndexKey interface{}
}

// Queue is a bounded, mutex-and-condvar-guarded FIFO of Messages, the
// per-engine mailbox that thread_send_message/get_message are built on.
// Capacity <= 0 means unbounded.
type Queue struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond
	items    []Message
	cap      int
	closed   bool
}

// NewQueue builds a Queue with the given bounded capacity (<=0: unbounded).
func NewQueue(capacity int) *Queue {
	q := &Queue{cap: capacity}
	q.notEmpty = sync.NewCond(&q.mu)
	q.notFull = sync.NewCond(&q.mu)
	return q
}

// Send enqueues m, blocking while the queue is at capacity. It returns
// ctx.Err() if ctx is done before room is available, or ErrClosed if the
// queue is closed either before or while waiting.
func (q *Queue) Send(ctx context.Context, m Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.cap > 0 && len(q.items) >= q.cap && !q.closed {
		if !q.waitCtx(ctx, q.notFull) {
			return ctx.Err()
		}
	}
	if q.closed {
		return ErrClosed
	}
	q.items = append(q.items, m)
	q.notEmpty.Broadcast()
	return nil
}

// Get scans for the first queued message whose IndexKey either matches
// wantKey or carries no index key at all, then applies match to its
// Payload, removing and returning the first one that passes. It blocks
// until a candidate arrives, ctx is done, or the queue closes. Pass a nil
// wantKey to disable index-assisted pruning (e.g. a get_message/1 with an
// unbound argument) and a nil match to accept the first queued message
// unconditionally.
func (q *Queue) Get(ctx context.Context, wantKey interface{}, match func(interface{}) bool) (interface{}, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for {
		for i, m := range q.items {
			if wantKey != nil && m.IndexKey != nil && m.IndexKey != wantKey {
				continue
			}
			if match != nil && !match(m.Payload) {
				continue
			}
			q.items = append(q.items[:i:i], q.items[i+1:]...)
			q.notFull.Broadcast()
			return m.Payload, nil
		}
		if q.closed {
			return nil, ErrClosed
		}
		if !q.waitCtx(ctx, q.notEmpty) {
			return nil, ctx.Err()
		}
	}
}

// Len reports the number of currently queued messages.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close marks the queue closed, waking every blocked Send and Get so they
// return ErrClosed.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.notEmpty.Broadcast()
	q.notFull.Broadcast()
}

// waitCtx waits on cond until woken, returning false (without re-locking
// assumptions violated) if ctx is done first. sync.Cond has no native
// context support, so a watcher goroutine broadcasts once ctx is cancelled
// to unblock every waiter on cond, each of which then re-checks ctx.Err()
// for itself.
func (q *Queue) waitCtx(ctx context.Context, cond *sync.Cond) bool {
	if ctx.Done() == nil {
		cond.Wait()
		return true
	}
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		select {
		case <-ctx.Done():
			q.mu.Lock()
			cond.Broadcast()
			q.mu.Unlock()
		case <-stop:
		}
	}()
	cond.Wait()
	close(stop)
	<-done
	return ctx.Err() == nil
}
