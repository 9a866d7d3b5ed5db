package stress

import (
	"context"

	"golang.org/x/time/rate"
)

// Scheduler paces run starts and bounds the runs in flight.
type Scheduler struct {
	limiter *rate.Limiter
	sem     chan struct{}
}

func NewScheduler(config *Config) *Scheduler {
	maxConcurrent := config.MaxConcurrent
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Scheduler{
		limiter: rate.NewLimiter(rate.Limit(config.Rate), 1),
		sem:     make(chan struct{}, maxConcurrent),
	}
}

// Wait blocks until the next run may start.
func (s *Scheduler) Wait(ctx context.Context) error {
	return s.limiter.Wait(ctx)
}

// Acquire acquires a slot from the concurrency semaphore
func (s *Scheduler) Acquire(ctx context.Context) error {
	select {
	case s.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release releases a slot back to the semaphore
func (s *Scheduler) Release() {
	<-s.sem
}

// InFlight returns the number of slots held.
func (s *Scheduler) InFlight() int {
	return len(s.sem)
}
