package hub

import (
	"errors"
	"sync"

	"github.com/google/uuid"
)

var (
	ErrClosed       = errors.New("connection closed")
	ErrSlowConsumer = errors.New("connection buffer full")
)

const DefaultBuffer = 16

// Conn is a buffered subscriber. Send never blocks; a transport goroutine
// drains Outbox and writes to the wire.
type Conn struct {
	id     string
	mu     sync.Mutex
	out    chan Message
	closed bool
}

func NewConn(buffer int) *Conn {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Conn{id: uuid.NewString(), out: make(chan Message, buffer)}
}

func (c *Conn) ID() string { return c.id }

func (c *Conn) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

func (c *Conn) Send(msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	select {
	case c.out <- msg:
		return nil
	default:
		return ErrSlowConsumer
	}
}

// Outbox is closed once Close is called.
func (c *Conn) Outbox() <-chan Message { return c.out }

func (c *Conn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.out)
}
