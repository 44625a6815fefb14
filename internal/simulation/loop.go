package simulation

import (
	"context"
	"sync"
	"time"
)

// StepFunc advances the simulation by one tic. Returning false stops the loop.
type StepFunc func(tic uint64) bool

// Loop drives a fixed tic rate simulation. Late wakeups are caught up by
// running several tics back to back.
type Loop struct {
	step     time.Duration
	stepFunc StepFunc
	monitor  *TickMonitor

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewLoop configures a loop that runs ticRate tics per second.
func NewLoop(ticRate int, step StepFunc) *Loop {
	if ticRate <= 0 {
		ticRate = 35
	}
	if step == nil {
		step = func(uint64) bool { return true }
	}
	return &Loop{step: time.Second / time.Duration(ticRate), stepFunc: step}
}

// WithMonitor records the wall time of every tic into monitor.
func (l *Loop) WithMonitor(monitor *TickMonitor) *Loop {
	l.monitor = monitor
	return l
}

// Start begins ticking until the context is cancelled, Stop is invoked or
// the step function asks to stop.
func (l *Loop) Start(ctx context.Context) {
	if l == nil || l.stepFunc == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.done != nil {
		return
	}
	ctx, l.cancel = context.WithCancel(ctx)
	l.done = make(chan struct{})
	go l.run(ctx, l.done)
}

func (l *Loop) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(l.step)
	defer ticker.Stop()
	last := time.Now()
	accumulator := time.Duration(0)
	var tic uint64
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			//1.- Accumulate elapsed time and run fixed tics while catching up.
			accumulator += now.Sub(last)
			last = now
			for accumulator >= l.step {
				started := time.Now()
				keep := l.stepFunc(tic)
				l.monitor.Observe(time.Since(started), l.step)
				tic++
				accumulator -= l.step
				if !keep {
					return
				}
			}
		}
	}
}

// Stop cancels the loop and waits for the goroutine to exit.
func (l *Loop) Stop() {
	if l == nil {
		return
	}
	l.mu.Lock()
	cancel, done := l.cancel, l.done
	l.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// Done is closed once the loop goroutine exited. It is nil before Start.
func (l *Loop) Done() <-chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.done
}

// StepDuration exposes the configured tic length.
func (l *Loop) StepDuration() time.Duration {
	if l == nil {
		return 0
	}
	return l.step
}
