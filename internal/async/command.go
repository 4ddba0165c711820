package async

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrCommandQueueFull means the frame driver stopped draining. It is a
	// wiring bug, so Send panics with it.
	ErrCommandQueueFull = errors.New("async: schedule command queue full")
	// ErrDriverClosed means a routine outlived its frame driver.
	ErrDriverClosed = errors.New("async: frame driver closed")
)

// Command is a deferred installation request. It is sent once from routine
// context and installed once, on the frame goroutine, by the Driver.
type Command interface {
	Kind() string
	Install(d *Driver)
}

// CommandFunc adapts a function to Command.
type CommandFunc struct {
	Name string
	Fn   func(d *Driver)
}

func (c CommandFunc) Kind() string      { return c.Name }
func (c CommandFunc) Install(d *Driver) { c.Fn(d) }

// CommandQueue is the bounded channel between routines and the driver.
type CommandQueue struct {
	ch        chan Command
	closed    chan struct{}
	closeOnce sync.Once
}

func NewCommandQueue(size int) *CommandQueue {
	if size <= 0 {
		size = 1
	}
	return &CommandQueue{
		ch:     make(chan Command, size),
		closed: make(chan struct{}),
	}
}

// Send enqueues cmd without blocking. It panics with ErrDriverClosed or
// ErrCommandQueueFull.
func (q *CommandQueue) Send(cmd Command) {
	select {
	case <-q.closed:
		panic(fmt.Errorf("send %s: %w", cmd.Kind(), ErrDriverClosed))
	default:
	}
	select {
	case q.ch <- cmd:
	default:
		panic(fmt.Errorf("send %s (capacity %d): %w", cmd.Kind(), cap(q.ch), ErrCommandQueueFull))
	}
}

// Drain hands every queued command to fn without blocking and returns how
// many it handled. Commands sent while draining wait for the next call.
func (q *CommandQueue) Drain(fn func(Command)) int {
	n := len(q.ch)
	for i := 0; i < n; i++ {
		select {
		case cmd := <-q.ch:
			fn(cmd)
		default:
			return i
		}
	}
	return n
}

func (q *CommandQueue) Len() int { return len(q.ch) }

// Close makes later sends panic. Queued commands are discarded.
func (q *CommandQueue) Close() {
	q.closeOnce.Do(func() { close(q.closed) })
}
