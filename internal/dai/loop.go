package dai

import (
	"bytes"
	"context"
	"errors"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
)

// ErrLoopClosed is returned when work is submitted to a closed loop.
var ErrLoopClosed = errors.New("session loop closed")

// Loop is the single execution context of a stream session. Tasks run one at a time, in
// submission order, on a dedicated goroutine. Manager operations and delegate callbacks
// must only run inside loop tasks.
type Loop struct {
	tasks     chan func()
	done      chan struct{}
	closeOnce sync.Once
	// owner is the id of the goroutine that runs tasks.
	owner atomic.Uint64
}

// NewLoop starts a loop whose queue holds up to buffer pending tasks.
func NewLoop(buffer int) *Loop {
	if buffer <= 0 {
		buffer = 64
	}
	l := &Loop{
		tasks: make(chan func(), buffer),
		done:  make(chan struct{}),
	}
	go l.run()
	return l
}

func (l *Loop) run() {
	l.owner.Store(goroutineID())
	for {
		select {
		case <-l.done:
			return
		case fn := <-l.tasks:
			fn()
		}
	}
}

// Post queues fn without waiting for it to run. It returns false if the loop is closed.
func (l *Loop) Post(fn func()) bool {
	select {
	case <-l.done:
		return false
	default:
	}
	select {
	case <-l.done:
		return false
	case l.tasks <- fn:
		return true
	}
}

// Do runs fn on the loop and waits for it to finish.
// It must not be called from inside a loop task.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	task := func() {
		defer close(finished)
		fn()
	}
	select {
	case <-l.done:
		return ErrLoopClosed
	case <-ctx.Done():
		return ctx.Err()
	case l.tasks <- task:
	}
	select {
	case <-finished:
		return nil
	case <-l.done:
		return ErrLoopClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Executing reports whether the caller is running inside one of the loop's tasks.
// Other goroutines see false even while a task is running. It parses the goroutine
// stack header, so it is meant for debug checks only.
func (l *Loop) Executing() bool {
	owner := l.owner.Load()
	return owner != 0 && goroutineID() == owner
}

// Close stops the loop. Pending tasks are discarded. Close is idempotent.
func (l *Loop) Close() {
	l.closeOnce.Do(func() { close(l.done) })
}

func goroutineID() uint64 {
	var buf [64]byte
	b := buf[:runtime.Stack(buf[:], false)]
	b = bytes.TrimPrefix(b, []byte("goroutine "))
	if i := bytes.IndexByte(b, ' '); i >= 0 {
		b = b[:i]
	}
	id, _ := strconv.ParseUint(string(b), 10, 64)
	return id
}
