package schema

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// prefetchConcurrency bounds simultaneous remote fetches during Prefetch.
const prefetchConcurrency = 4

// PrefetchResult reports the outcome for one requested name.
type PrefetchResult struct {
	Name        string `json:"name"`
	Fingerprint string `json:"fingerprint,omitempty"`
	Err         error  `json:"-"`
}

// Prefetch downloads and caches several schemas for offline use.
//
// Every name is attempted; a failure for one name does not stop the others.
// Results follow the order of names. The returned error is non-nil only when
// ctx was cancelled before all fetches were started; names never started
// carry ctx.Err() in their result.
func (c *Cache) Prefetch(ctx context.Context, names []string) ([]PrefetchResult, error) {
	results := make([]PrefetchResult, len(names))
	for i, name := range names {
		results[i].Name = name
	}

	var g errgroup.Group
	g.SetLimit(prefetchConcurrency)
	var cancelled error
	for i, name := range names {
		if cancelled = ctx.Err(); cancelled != nil {
			for j := i; j < len(names); j++ {
				results[j].Err = cancelled
			}
			break
		}
		i, name := i, name
		g.Go(func() error {
			s, err := c.FetchAndCacheRemote(ctx, name)
			if err != nil {
				results[i].Err = err
				return nil
			}
			results[i].Fingerprint = s.Fingerprint()
			return nil
		})
	}
	_ = g.Wait()
	if cancelled != nil {
		return results, cancelled
	}

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	c.logger.Info("prefetch finished", "requested", len(names), "failed", failed)
	return results, nil
}
