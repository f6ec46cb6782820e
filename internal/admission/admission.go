// Package admission enforces per-tenant sliding-window request quotas in
// process memory. Admission control is advisory: a restart resets every
// tenant's window.
package admission

import (
	"sync"
	"time"
)

const (
	// DefaultWindow and DefaultMaxRequests apply when a tenant carries no
	// quota policy of its own.
	DefaultWindow      = 15 * time.Minute
	DefaultMaxRequests = 1000

	defaultSweepInterval = 5 * time.Minute
)

// Decision reports the outcome of one admission check.
type Decision struct {
	Allowed   bool
	Remaining int
	// RetryAfter is the full window duration on rejection, not the time
	// until the oldest entry expires. Deliberately conservative.
	RetryAfter time.Duration
}

// Controller owns every tenant's window state. Windows are created lazily on
// first admission and evicted by the sweep loop once they empty out, so idle
// tenants do not pin memory for the process lifetime.
type Controller struct {
	mu      sync.RWMutex
	tenants map[string]*window

	window time.Duration
	max    int

	now        func() time.Time
	sweepEvery time.Duration
	stopCh     chan struct{}
	once       sync.Once
}

type window struct {
	mu     sync.Mutex
	stamps []time.Time
	// span is the longest window duration any admission check has applied
	// to this tenant. The sweep must prune against it, not the controller
	// default, or a tenant with a longer policy loses quota state early.
	span    time.Duration
	evicted bool
}

// Option customizes a Controller.
type Option func(*Controller)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithSweepInterval overrides how often idle windows are evicted.
func WithSweepInterval(interval time.Duration) Option {
	return func(c *Controller) {
		if interval > 0 {
			c.sweepEvery = interval
		}
	}
}

// New constructs a Controller with the given default policy and starts its
// sweep loop. Close must be called to release it.
func New(windowDuration time.Duration, maxRequests int, opts ...Option) *Controller {
	if windowDuration <= 0 {
		windowDuration = DefaultWindow
	}
	if maxRequests <= 0 {
		maxRequests = DefaultMaxRequests
	}
	c := &Controller{
		tenants:    make(map[string]*window),
		window:     windowDuration,
		max:        maxRequests,
		now:        time.Now,
		stopCh:     make(chan struct{}),
		sweepEvery: defaultSweepInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	go c.sweepLoop()
	return c
}

// Admit checks the tenant against the controller's default policy.
func (c *Controller) Admit(tenantID string) Decision {
	return c.AdmitWithPolicy(tenantID, c.window, c.max)
}

// AdmitWithPolicy checks the tenant against an explicit quota policy. Zero
// values fall back to the controller defaults. The check runs in amortized
// constant time and never touches I/O.
func (c *Controller) AdmitWithPolicy(tenantID string, windowDuration time.Duration, maxRequests int) Decision {
	if windowDuration <= 0 {
		windowDuration = c.window
	}
	if maxRequests <= 0 {
		maxRequests = c.max
	}
	now := c.now()
	windowStart := now.Add(-windowDuration)

	w := c.acquire(tenantID)
	defer w.mu.Unlock()
	if windowDuration > w.span {
		w.span = windowDuration
	}

	// Lazy prune: drop entries at or before the window start.
	kept := w.stamps[:0]
	for _, stamp := range w.stamps {
		if stamp.After(windowStart) {
			kept = append(kept, stamp)
		}
	}
	w.stamps = kept

	if len(w.stamps) >= maxRequests {
		return Decision{Allowed: false, Remaining: 0, RetryAfter: windowDuration}
	}
	w.stamps = append(w.stamps, now)
	return Decision{Allowed: true, Remaining: maxRequests - len(w.stamps)}
}

// acquire returns the tenant's window with its lock held, creating it when
// absent and retrying if the sweep evicted it in between.
func (c *Controller) acquire(tenantID string) *window {
	for {
		c.mu.RLock()
		w := c.tenants[tenantID]
		c.mu.RUnlock()
		if w == nil {
			c.mu.Lock()
			w = c.tenants[tenantID]
			if w == nil {
				w = &window{}
				c.tenants[tenantID] = w
			}
			c.mu.Unlock()
		}
		w.mu.Lock()
		if !w.evicted {
			return w
		}
		w.mu.Unlock()
	}
}

// Tenants reports how many windows are currently held.
func (c *Controller) Tenants() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.tenants)
}

// Close stops the sweep loop.
func (c *Controller) Close() {
	c.once.Do(func() {
		close(c.stopCh)
	})
}

func (c *Controller) sweepLoop() {
	ticker := time.NewTicker(c.sweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.sweep(c.now())
		case <-c.stopCh:
			return
		}
	}
}

// sweep evicts tenants whose entries have all aged past their own window.
func (c *Controller) sweep(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for tenantID, w := range c.tenants {
		w.mu.Lock()
		span := w.span
		if span <= 0 {
			span = c.window
		}
		windowStart := now.Add(-span)
		kept := w.stamps[:0]
		for _, stamp := range w.stamps {
			if stamp.After(windowStart) {
				kept = append(kept, stamp)
			}
		}
		w.stamps = kept
		if len(w.stamps) == 0 {
			w.evicted = true
			delete(c.tenants, tenantID)
		}
		w.mu.Unlock()
	}
}
