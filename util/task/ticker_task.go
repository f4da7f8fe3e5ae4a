package task

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang/glog"
)

type Runner interface {
	Run() error
}

// TickerTask runs a Runner on a fixed interval until it is stopped.
type TickerTask struct {
	name           string
	interval       time.Duration
	runner         Runner
	skipInitialRun bool
	clock          clock.Clock
	done           chan struct{}
	stopOnce       sync.Once
}

func NewTickerTask(name string, interval time.Duration, runner Runner) *TickerTask {
	return NewTickerTaskWithOptions(Options{
		Name:     name,
		Interval: interval,
		Runner:   runner,
	})
}

type Options struct {
	Name           string
	Interval       time.Duration
	Runner         Runner
	SkipInitialRun bool
	// Clock defaults to the wall clock.
	Clock clock.Clock
}

func NewTickerTaskWithOptions(opt Options) *TickerTask {
	if opt.Clock == nil {
		opt.Clock = clock.New()
	}
	return &TickerTask{
		name:           opt.Name,
		interval:       opt.Interval,
		runner:         opt.Runner,
		skipInitialRun: opt.SkipInitialRun,
		clock:          opt.Clock,
		done:           make(chan struct{}),
	}
}

// Start runs the task immediately and then schedules the task to run periodically
// if a positive interval has been specified.
func (t *TickerTask) Start() {
	if !t.skipInitialRun {
		t.run()
	}

	if t.interval > 0 {
		ticker := t.clock.Ticker(t.interval)
		go t.runRecurring(ticker)
	}
}

// Stop stops the periodic task. It is safe to call more than once.
func (t *TickerTask) Stop() {
	t.stopOnce.Do(func() {
		close(t.done)
	})
}

// Done exports readonly done channel
func (t *TickerTask) Done() <-chan struct{} {
	return t.done
}

func (t *TickerTask) run() {
	if err := t.runner.Run(); err != nil {
		glog.Warningf("Task %s failed: %v", t.name, err)
	}
}

func (t *TickerTask) runRecurring(ticker *clock.Ticker) {
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			t.run()
		case <-t.done:
			return
		}
	}
}
