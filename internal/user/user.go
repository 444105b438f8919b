// Package user holds the profile of the logged-in user for one session.
package user

import (
	"context"
	"sync"

	"github.com/pliu/ponyexpress/internal/models"
	"github.com/pliu/ponyexpress/internal/query"
)

// MeKey is the cache key of the current user's profile.
var MeKey = query.K("users", "me")

type MeAPI interface {
	Me(ctx context.Context, token string) (*models.User, error)
}

// Context loads /users/me once and keeps it. Invalidating MeKey drops the
// loaded profile so the next Current refetches.
type Context struct {
	cache *query.Client
	api   MeAPI
	token string

	mu sync.Mutex
	me *models.User
	// epoch counts invalidations of MeKey.
	epoch uint64
	unsub func()
}

func NewContext(cache *query.Client, api MeAPI, token string) *Context {
	c := &Context{cache: cache, api: api, token: token}
	c.unsub = cache.Subscribe(MeKey, c.onEvent)
	return c
}

func (c *Context) onEvent(ev query.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ev.Type == query.EventInvalidated {
		c.me = nil
		c.epoch++
	}
}

// Current returns the profile, fetching it when not loaded yet. A nil user
// with a nil error means the fetch is still running.
func (c *Context) Current(ctx context.Context) (*models.User, error) {
	if me := c.Loaded(); me != nil {
		return me, nil
	}

	// A profile fetched across an invalidation is not kept; the second
	// attempt reads under the new generation.
	for attempt := 0; ; attempt++ {
		c.mu.Lock()
		epoch := c.epoch
		c.mu.Unlock()

		res := query.Fetch(ctx, c.cache, MeKey, func(ctx context.Context) (*models.User, error) {
			return c.api.Me(ctx, c.token)
		})
		if res.Err != nil {
			return nil, res.Err
		}
		if !res.HasData || res.IsLoading {
			return nil, nil
		}

		c.mu.Lock()
		if c.epoch != epoch && attempt == 0 {
			c.mu.Unlock()
			continue
		}
		if c.epoch == epoch {
			c.me = res.Data
		}
		c.mu.Unlock()
		return res.Data, nil
	}
}

// Loaded returns the profile without fetching.
func (c *Context) Loaded() *models.User {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.me
}

func (c *Context) Close() {
	c.unsub()
	c.mu.Lock()
	c.me = nil
	c.mu.Unlock()
}
