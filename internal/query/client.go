// Package query is a keyed read cache for API responses.
//
// Reads are deduplicated so at most one fetch per key is in flight. Cached
// data stays fresh for the stale time; Invalidate marks entries stale so
// the next read refetches. Entries nobody reads for the GC time are
// dropped.
package query

import (
	"context"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

type FetchFunc func(ctx context.Context) (any, error)

// State is what a read observes.
type State struct {
	Data      any
	HasData   bool
	Err       error
	IsLoading bool
	// Idle is set when the read was disabled and nothing was fetched.
	Idle      bool
	UpdatedAt time.Time
}

type EventType int

const (
	EventUpdated EventType = iota
	EventInvalidated
)

type Event struct {
	Key  Key
	Type EventType
}

type Config struct {
	StaleTime    time.Duration
	GCTime       time.Duration
	FetchTimeout time.Duration
	Metrics      *Metrics
	// Now is overridable for tests.
	Now func() time.Time
}

type entry struct {
	key         Key
	data        any
	hasData     bool
	err         error
	updatedAt   time.Time
	lastRead    time.Time
	invalidated bool
	gen         uint64
	// dataGen is the generation the stored data was fetched under.
	dataGen  uint64
	fetching int
}

type subscription struct {
	key Key
	fns map[int]func(Event)
}

type Client struct {
	cfg   Config
	group singleflight.Group

	mu        sync.Mutex
	entries   map[string]*entry
	subs      map[string]*subscription
	nextSub   int
	lastSweep time.Time
	closed    bool
}

func New(cfg Config) *Client {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 30 * time.Second
	}
	return &Client{
		cfg:       cfg,
		entries:   make(map[string]*entry),
		subs:      make(map[string]*subscription),
		lastSweep: cfg.Now(),
	}
}

type options struct {
	enabled bool
}

type Option func(*options)

// Enabled gates a read on a precondition such as a path parameter being
// present. A disabled read returns an idle state and fetches nothing.
func Enabled(cond bool) Option {
	return func(o *options) { o.enabled = cond }
}

// Query returns the cached value for key when fresh, otherwise fetches it.
// If ctx ends before the fetch resolves, the returned state is loading
// (with any stale data) and the fetch completes in the background.
func (c *Client) Query(ctx context.Context, key Key, fetch FetchFunc, opts ...Option) State {
	o := options{enabled: true}
	for _, opt := range opts {
		opt(&o)
	}
	if !o.enabled {
		return State{Idle: true}
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return State{Idle: true}
	}
	now := c.cfg.Now()
	c.maybeSweepLocked(now)

	k := key.String()
	e, ok := c.entries[k]
	if !ok {
		e = &entry{key: append(Key(nil), key...)}
		c.entries[k] = e
	}
	e.lastRead = now
	if c.freshLocked(e, now) {
		st := stateOf(e)
		c.mu.Unlock()
		c.cfg.Metrics.hit(key)
		return st
	}
	gen := e.gen
	e.fetching++
	c.mu.Unlock()
	c.cfg.Metrics.miss(key)

	flight := k + "#" + strconv.FormatUint(gen, 10)
	ch := c.group.DoChan(flight, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.FetchTimeout)
		defer cancel()
		data, err := fetch(fctx)
		c.store(key, gen, data, err)
		return data, err
	})

	// Only the caller that bumped fetching decrements it, whichever way
	// it stops waiting.
	defer c.doneFetching(k)

	select {
	case <-ch:
		c.mu.Lock()
		defer c.mu.Unlock()
		if cur, ok := c.entries[k]; ok {
			return stateOf(cur)
		}
		return State{}
	case <-ctx.Done():
		c.mu.Lock()
		defer c.mu.Unlock()
		st := stateOf(e)
		st.IsLoading = true
		return st
	}
}

func (c *Client) doneFetching(k string) {
	c.mu.Lock()
	if e, ok := c.entries[k]; ok && e.fetching > 0 {
		e.fetching--
	}
	c.mu.Unlock()
}

func (c *Client) freshLocked(e *entry, now time.Time) bool {
	return e.hasData && e.err == nil && !e.invalidated && now.Sub(e.updatedAt) < c.cfg.StaleTime
}

func stateOf(e *entry) State {
	return State{
		Data:      e.data,
		HasData:   e.hasData,
		Err:       e.err,
		UpdatedAt: e.updatedAt,
	}
}

// store records a fetch result. A result fetched under an older
// generation than the stored data is dropped. One fetched under an older
// generation than the entry fills in data but leaves the entry stale.
func (c *Client) store(key Key, gen uint64, data any, err error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	k := key.String()
	e, ok := c.entries[k]
	if !ok {
		e = &entry{key: append(Key(nil), key...), lastRead: c.cfg.Now(), gen: gen, dataGen: gen}
		c.entries[k] = e
	}
	if e.hasData && gen < e.dataGen {
		c.mu.Unlock()
		if err != nil {
			c.cfg.Metrics.fetchError(key)
		}
		return
	}
	if err != nil {
		e.err = err
		c.mu.Unlock()
		c.cfg.Metrics.fetchError(key)
		return
	}
	e.data = data
	e.hasData = true
	e.err = nil
	e.dataGen = gen
	if e.gen != gen {
		c.mu.Unlock()
		return
	}
	e.updatedAt = c.cfg.Now()
	e.invalidated = false
	fns := c.subscribersLocked(func(sk Key) bool { return sk.Equal(key) })
	c.mu.Unlock()

	notify(fns, Event{Key: key, Type: EventUpdated})
}

// Get returns the cached value for key without fetching.
func (c *Client) Get(key Key) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key.String()]
	if !ok || !e.hasData {
		return nil, false
	}
	return e.data, true
}

// Set stores data for key as if it had just been fetched.
func (c *Client) Set(key Key, data any) {
	c.mu.Lock()
	gen := uint64(0)
	if e, ok := c.entries[key.String()]; ok {
		gen = e.gen
	}
	c.mu.Unlock()
	c.store(key, gen, data, nil)
}

// Invalidate marks every entry under prefix stale and returns how many
// entries it touched. Subscribers of matching keys are notified.
func (c *Client) Invalidate(prefix Key) int {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return 0
	}
	n := 0
	for _, e := range c.entries {
		if !e.key.HasPrefix(prefix) {
			continue
		}
		e.invalidated = true
		e.gen++
		n++
	}
	type pending struct {
		key Key
		fns []func(Event)
	}
	var toNotify []pending
	for _, s := range c.subs {
		if s.key.HasPrefix(prefix) {
			toNotify = append(toNotify, pending{key: s.key, fns: collect(s)})
		}
	}
	c.mu.Unlock()

	c.cfg.Metrics.invalidated(n)
	for _, p := range toNotify {
		notify(p.fns, Event{Key: p.key, Type: EventInvalidated})
	}
	return n
}

// Subscribe calls fn whenever key is updated or invalidated. The returned
// func removes the subscription.
func (c *Client) Subscribe(key Key, fn func(Event)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := key.String()
	s, ok := c.subs[k]
	if !ok {
		s = &subscription{key: append(Key(nil), key...), fns: make(map[int]func(Event))}
		c.subs[k] = s
	}
	id := c.nextSub
	c.nextSub++
	s.fns[id] = fn

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if s, ok := c.subs[k]; ok {
			delete(s.fns, id)
			if len(s.fns) == 0 {
				delete(c.subs, k)
			}
		}
	}
}

func (c *Client) subscribersLocked(match func(Key) bool) []func(Event) {
	var fns []func(Event)
	for _, s := range c.subs {
		if match(s.key) {
			fns = append(fns, collect(s)...)
		}
	}
	return fns
}

func collect(s *subscription) []func(Event) {
	fns := make([]func(Event), 0, len(s.fns))
	for _, fn := range s.fns {
		fns = append(fns, fn)
	}
	return fns
}

func notify(fns []func(Event), ev Event) {
	for _, fn := range fns {
		fn(ev)
	}
}

// Sweep evicts entries that have not been read for the GC time and have
// no fetch in flight.
func (c *Client) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sweepLocked(c.cfg.Now())
}

func (c *Client) maybeSweepLocked(now time.Time) {
	if c.cfg.GCTime <= 0 || now.Sub(c.lastSweep) < c.cfg.GCTime {
		return
	}
	c.sweepLocked(now)
}

func (c *Client) sweepLocked(now time.Time) int {
	c.lastSweep = now
	if c.cfg.GCTime <= 0 {
		return 0
	}
	n := 0
	for k, e := range c.entries {
		if e.fetching == 0 && now.Sub(e.lastRead) >= c.cfg.GCTime {
			delete(c.entries, k)
			n++
		}
	}
	c.cfg.Metrics.evicted(n)
	return n
}

// Len reports the number of cached entries.
func (c *Client) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Close drops all entries and subscriptions. Later reads are idle and
// late fetch results are discarded.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.entries = make(map[string]*entry)
	c.subs = make(map[string]*subscription)
}
