package firehose

import (
	"context"
	"fmt"

	"vacunagates/bluesky"

	lru "github.com/hashicorp/golang-lru/v2"
)

const DefaultProfileCacheSize = 4096

// ProfileFetcher looks up an actor profile by DID or handle.
type ProfileFetcher interface {
	GetProfile(ctx context.Context, actor string) (*bluesky.Profile, error)
}

// ProfileCache memoizes profile lookups so busy authors are fetched once.
type ProfileCache struct {
	fetcher ProfileFetcher
	cache   *lru.Cache[string, *bluesky.Profile]
}

func NewProfileCache(fetcher ProfileFetcher, size int) (*ProfileCache, error) {
	if size <= 0 {
		size = DefaultProfileCacheSize
	}
	cache, err := lru.New[string, *bluesky.Profile](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create profile cache: %w", err)
	}
	return &ProfileCache{fetcher: fetcher, cache: cache}, nil
}

// Lookup returns the cached profile for did, fetching it on a miss. Failed
// lookups are not cached.
func (pc *ProfileCache) Lookup(ctx context.Context, did string) (*bluesky.Profile, error) {
	if p, ok := pc.cache.Get(did); ok {
		return p, nil
	}
	p, err := pc.fetcher.GetProfile(ctx, did)
	if err != nil {
		return nil, err
	}
	pc.cache.Add(did, p)
	return p, nil
}

func (pc *ProfileCache) Len() int {
	return pc.cache.Len()
}
