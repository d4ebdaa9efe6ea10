package app

import (
	"sync"
	"time"
)

// Ticker is the repeating tick source behind the countdown.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// NewTickerFunc builds a Ticker firing every d.
type NewTickerFunc func(d time.Duration) Ticker

type realTicker struct{ t *time.Ticker }

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

// NewRealTicker is the production tick source.
func NewRealTicker(d time.Duration) Ticker {
	return realTicker{t: time.NewTicker(d)}
}

// countdown is the handle of one running timer. Its goroutine forwards ticks
// until stop is called; stop is idempotent and never waits on the goroutine,
// so it is safe to call with the session lock held.
type countdown struct {
	ticker Ticker
	done   chan struct{}
	once   sync.Once
}

func startCountdown(t Ticker, tick func(*countdown)) *countdown {
	c := &countdown{ticker: t, done: make(chan struct{})}
	go c.run(tick)
	return c
}

func (c *countdown) run(tick func(*countdown)) {
	for {
		select {
		case <-c.done:
			return
		case <-c.ticker.C():
			select {
			case <-c.done:
				return
			default:
			}
			tick(c)
		}
	}
}

func (c *countdown) stop() {
	c.once.Do(func() {
		c.ticker.Stop()
		close(c.done)
	})
}
