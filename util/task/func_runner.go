package task

import "time"

type funcRunner struct {
	run func() error
}

func (r funcRunner) Run() error {
	return r.run()
}

func NewTickerTaskFromFunc(name string, interval time.Duration, runner func() error) *TickerTask {
	return NewTickerTask(name, interval, funcRunner{run: runner})
}
