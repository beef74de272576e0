package ratelimit

import "context"

// Semaphore caps the number of simultaneously in-flight operations.
type Semaphore struct {
	slots chan struct{}
}

func NewSemaphore(n int) *Semaphore {
	if n <= 0 {
		n = 1
	}
	return &Semaphore{slots: make(chan struct{}, n)}
}

// Acquire blocks until a slot is free or ctx is done.
func (s *Semaphore) Acquire(ctx context.Context) error {
	select {
	case s.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Semaphore) Release() {
	<-s.slots
}

// InFlight returns the number of held slots.
func (s *Semaphore) InFlight() int {
	return len(s.slots)
}

func (s *Semaphore) Cap() int {
	return cap(s.slots)
}
