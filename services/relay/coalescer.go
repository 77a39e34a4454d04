package relay

import (
	"strings"
	"sync"
	"time"

	"github.com/mozaika228/hephaestus/services/providers"
)

// DefaultFlushInterval is how long deltas are batched before rendering
const DefaultFlushInterval = 60 * time.Millisecond

// Coalescer batches delta text for a renderer. Pending text is flushed when
// the interval timer fires, on Error, on Done and on Close. Callers must
// defer Close so the final flush happens on every exit path.
type Coalescer struct {
	mu       sync.Mutex
	interval time.Duration
	flush    func(text string)
	pending  strings.Builder
	timer    *time.Timer
	closed   bool
}

// NewCoalescer creates a coalescer. flush is called with the lock held and
// must not call back into the Coalescer.
func NewCoalescer(interval time.Duration, flush func(text string)) *Coalescer {
	if interval <= 0 {
		interval = DefaultFlushInterval
	}
	return &Coalescer{interval: interval, flush: flush}
}

// Send implements providers.Sink
func (c *Coalescer) Send(ev providers.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}

	switch ev.Type {
	case providers.EventDelta:
		c.pending.WriteString(ev.Text)
		if c.timer == nil {
			c.timer = time.AfterFunc(c.interval, c.onTimer)
		}
	default:
		c.flushLocked()
	}
	return nil
}

// Flush emits pending text now
func (c *Coalescer) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.flushLocked()
}

// Close stops the timer and flushes what is left. It is safe to call twice.
func (c *Coalescer) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.flushLocked()
	c.closed = true
}

func (c *Coalescer) onTimer() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.timer = nil
	if !c.closed {
		c.flushLocked()
	}
}

func (c *Coalescer) flushLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if c.pending.Len() == 0 {
		return
	}
	text := c.pending.String()
	c.pending.Reset()
	c.flush(text)
}
