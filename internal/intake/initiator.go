package intake

import (
	"context"
	"sync"
)

// Initiator starts cryptographic pairing for one normalized pairing URI.
type Initiator interface {
	Pair(ctx context.Context, uri string) error
}

// InitiatorFunc adapts a function into an Initiator.
type InitiatorFunc func(ctx context.Context, uri string) error

func (f InitiatorFunc) Pair(ctx context.Context, uri string) error {
	return f(ctx, uri)
}

// InitiatorCell holds the pairing handle. It starts uninitialized and can be
// set exactly once.
type InitiatorCell struct {
	mu        sync.RWMutex
	initiator Initiator
	ready     chan struct{}
}

func NewInitiatorCell() *InitiatorCell {
	return &InitiatorCell{ready: make(chan struct{})}
}

func (c *InitiatorCell) Set(initiator Initiator) error {
	if initiator == nil {
		return ErrNilInitiator
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.initiator != nil {
		return ErrCellAlreadySet
	}
	c.initiator = initiator
	close(c.readyLocked())
	return nil
}

// Done is closed once the cell is set.
func (c *InitiatorCell) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readyLocked()
}

func (c *InitiatorCell) readyLocked() chan struct{} {
	if c.ready == nil {
		c.ready = make(chan struct{})
	}
	return c.ready
}

func (c *InitiatorCell) Get() (Initiator, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.initiator, c.initiator != nil
}

func (c *InitiatorCell) Ready() bool {
	_, ok := c.Get()
	return ok
}
