package devicetest

import (
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Status is the state reported by a progress message.
type Status string

const (
	// StatusRunning marks an in-progress step.
	StatusRunning Status = "running"
	// StatusPass marks a passing verdict.
	StatusPass Status = "pass"
	// StatusFail marks a failing verdict.
	StatusFail Status = "fail"
)

// ErrObserverClosed is returned when delivering to a closed channel observer.
var ErrObserverClosed = errors.New("observer closed")

// Message is a transient progress notification emitted by a running test.
type Message struct {
	Status  Status
	Source  string
	Content string
	Fault   error
	Device  string
	Time    time.Time
}

// NewMessage creates a message stamped with the current time.
func NewMessage(status Status, source, content string) Message {
	return Message{
		Status:  status,
		Source:  source,
		Content: content,
		Time:    time.Now(),
	}
}

// Observer receives progress messages. Subjects only accept comparable
// implementations, usually pointer types, so they can be detached.
type Observer interface {
	OnMessage(msg Message) error
}

// FuncObserver adapts a function to the Observer interface.
type FuncObserver struct {
	fn func(Message) error
}

// NewFuncObserver wraps fn as an Observer.
func NewFuncObserver(fn func(Message) error) *FuncObserver {
	return &FuncObserver{fn: fn}
}

// OnMessage calls the wrapped function.
func (f *FuncObserver) OnMessage(msg Message) error {
	return f.fn(msg)
}

// ChannelObserver queues messages onto a channel so a presentation layer can
// consume them on its own goroutine. Sends block until the consumer reads or
// the observer is closed.
type ChannelObserver struct {
	mu       sync.RWMutex
	ch       chan Message
	done     chan struct{}
	inflight sync.WaitGroup
	closed   bool
}

// NewChannelObserver creates a channel observer with the given buffer size.
func NewChannelObserver(buffer int) *ChannelObserver {
	if buffer < 0 {
		buffer = 0
	}

	return &ChannelObserver{
		ch:   make(chan Message, buffer),
		done: make(chan struct{}),
	}
}

// Messages returns the receive side of the queue.
func (c *ChannelObserver) Messages() <-chan Message {
	return c.ch
}

// OnMessage enqueues msg. A send still blocked when Close is called returns
// ErrObserverClosed.
func (c *ChannelObserver) OnMessage(msg Message) error {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()

		return ErrObserverClosed
	}

	c.inflight.Add(1)
	c.mu.RUnlock()

	defer c.inflight.Done()

	select {
	case c.ch <- msg:
		return nil
	case <-c.done:
		return ErrObserverClosed
	}
}

// Close closes the queue. Blocked senders are released and further messages
// are rejected. Messages already queued can still be drained.
func (c *ChannelObserver) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()

		return
	}

	c.closed = true
	close(c.done)
	c.mu.Unlock()

	c.inflight.Wait()
	close(c.ch)
}

// Subject broadcasts messages to attached observers in attachment order.
// A failing or panicking observer is logged and skipped; it never reaches
// the emitter. The zero value is ready to use.
type Subject struct {
	mu        sync.RWMutex
	observers []Observer
	log       logrus.FieldLogger
}

// SetLogger sets the logger used to report observer failures.
func (s *Subject) SetLogger(log logrus.FieldLogger) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.log = log
}

// Attach registers an observer. Attaching twice duplicates notifications.
// Observers whose dynamic type is not comparable are rejected and logged.
func (s *Subject) Attach(o Observer) {
	if o == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !isComparable(o) {
		log := s.log
		if log == nil {
			log = logrus.StandardLogger()
		}

		log.WithField("type", fmt.Sprintf("%T", o)).Warn("rejecting observer with uncomparable type")

		return
	}

	s.observers = append(s.observers, o)
}

// Detach removes the first registration of o. It is a no-op if o is absent.
func (s *Subject) Detach(o Observer) {
	if o == nil || !isComparable(o) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i, existing := range s.observers {
		if existing == o {
			s.observers = append(s.observers[:i:i], s.observers[i+1:]...)
			return
		}
	}
}

// Notify delivers msg synchronously to every attached observer.
func (s *Subject) Notify(msg Message) {
	s.mu.RLock()
	observers := make([]Observer, len(s.observers))
	copy(observers, s.observers)
	log := s.log
	s.mu.RUnlock()

	if log == nil {
		log = logrus.StandardLogger()
	}

	for _, o := range observers {
		if err := deliver(o, msg); err != nil {
			log.WithError(err).WithFields(logrus.Fields{
				"source": msg.Source,
				"status": msg.Status,
			}).Warn("observer failed to handle message")
		}
	}
}

func isComparable(o Observer) bool {
	return reflect.TypeOf(o).Comparable()
}

// deliver calls the observer and converts a panic into an error.
func deliver(o Observer, msg Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("observer panic: %v", r) //nolint:err113 // panic value is only known at runtime
		}
	}()

	return o.OnMessage(msg)
}
