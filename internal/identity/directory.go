package identity

import (
	"context"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"eventsphere/internal/model"
)

const DefaultCacheTTL = 5 * time.Minute

// UserSource is the backing store for user display fields.
type UserSource interface {
	GetUsersByIDs(ctx context.Context, ids []string) ([]model.User, error)
}

// Directory resolves user ids to display fields, caching hits for ttl.
type Directory struct {
	source UserSource
	cache  *gocache.Cache
	ttl    time.Duration
}

func NewDirectory(source UserSource, ttl time.Duration) *Directory {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Directory{
		source: source,
		cache:  gocache.New(ttl, 2*ttl),
		ttl:    ttl,
	}
}

// Lookup returns the users it knows about keyed by id. Unknown ids are
// simply absent from the result.
func (d *Directory) Lookup(ctx context.Context, ids []string) (map[string]model.User, error) {
	found := make(map[string]model.User, len(ids))
	seen := make(map[string]struct{}, len(ids))
	var missing []string
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if v, ok := d.cache.Get(id); ok {
			if u, ok := v.(model.User); ok {
				found[id] = u
				continue
			}
		}
		missing = append(missing, id)
	}
	if len(missing) == 0 {
		return found, nil
	}

	users, err := d.source.GetUsersByIDs(ctx, missing)
	if err != nil {
		return nil, fmt.Errorf("lookup users: %w", err)
	}
	for _, u := range users {
		d.cache.Set(u.ID, u, d.ttl)
		found[u.ID] = u
	}
	return found, nil
}

func (d *Directory) Forget(ids ...string) {
	for _, id := range ids {
		d.cache.Delete(id)
	}
}
