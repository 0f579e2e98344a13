package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

var (
	ErrCancelled      = errors.New("run cancelled")
	ErrHardCancel     = errors.New("workers did not stop within the cancel grace period")
	ErrVehicleTimeout = errors.New("vehicle exceeded its processing timeout")
)

// CancelFlag is the run-wide stop signal. Workers poll it once per vehicle-period.
type CancelFlag struct {
	raised atomic.Bool
	once   sync.Once
	done   chan struct{}

	mu     sync.Mutex
	reason string
}

func NewCancelFlag() *CancelFlag {
	return &CancelFlag{done: make(chan struct{})}
}

// Raise sets the flag. Only the first reason is kept.
func (f *CancelFlag) Raise(reason string) {
	f.once.Do(func() {
		f.mu.Lock()
		f.reason = reason
		f.mu.Unlock()
		f.raised.Store(true)
		close(f.done)
	})
}

func (f *CancelFlag) Raised() bool {
	return f.raised.Load()
}

// Done is closed when the flag is raised
func (f *CancelFlag) Done() <-chan struct{} {
	return f.done
}

func (f *CancelFlag) Reason() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reason
}

// checkpoint is the cooperative stop check between vehicle-periods
func checkpoint(ctx context.Context, flag *CancelFlag) error {
	if flag != nil && flag.Raised() {
		return ErrCancelled
	}
	if err := ctx.Err(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return ErrVehicleTimeout
		}
		return ErrCancelled
	}
	return nil
}
