// Package search polls the platform's search endpoint for configured terms.
package search

import (
	"context"
	"fmt"
	"time"

	"vacunagates/db"
	"vacunagates/engage"
	"vacunagates/models"
	"vacunagates/wait"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"
)

// DefaultRateLimitBackoff is how long to wait after the platform signals a
// rate limit before asking for the same page again.
const DefaultRateLimitBackoff = engage.DefaultRateLimitBackoff

var (
	postsSeen = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vacunagates_search_posts_total",
		Help: "Posts returned by search, by query",
	}, []string{"query"})

	rateLimitWaits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vacunagates_search_rate_limit_waits_total",
		Help: "Times the poller backed off after a rate limit",
	})
)

// Engager applies engagement to allow-listed posts. Engage returns an error
// only when the platform rate limited an action.
type Engager interface {
	Allowed(post models.Post) bool
	Engage(ctx context.Context, post models.Post) (models.Post, error)
}

// Store persists polled posts.
type Store interface {
	UpsertPost(ctx context.Context, collection string, post models.Post) error
	UpsertPosts(ctx context.Context, collection string, posts []models.Post) error
}

type Poller struct {
	Searcher Searcher
	Engager  Engager
	Store    Store
	Backoff  time.Duration
	// Sleep defaults to wait.Sleep.
	Sleep wait.Sleeper
	// Now is used to restrict the search to posts since today.
	Now func() time.Time
}

func (p *Poller) backoff() time.Duration {
	if p.Backoff <= 0 {
		return DefaultRateLimitBackoff
	}
	return p.Backoff
}

func (p *Poller) since() string {
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	return now().UTC().Format("2006-01-02")
}

// Poll searches for query, engages with allow-listed authors and stores every
// collected post. Posts are returned in the order they were encountered.
func (p *Poller) Poll(ctx context.Context, query string) ([]models.Post, error) {
	log.WithField("query", query).Info("Starting search")

	sleep := wait.Or(p.Sleep)

	pages := NewPages(p.Searcher, query, p.since())
	var posts []models.Post

loop:
	for {
		if err := ctx.Err(); err != nil {
			return posts, err
		}

		res := pages.Next(ctx)
		switch res.Kind {
		case KindPost:
			post := res.Post
			if p.Engager.Allowed(post) {
				engaged, err := engage.WithBackoff(ctx, p.Engager, post, p.backoff(), sleep)
				if err != nil {
					return posts, err
				}
				post = engaged
				if err := p.Store.UpsertPost(ctx, db.CollectionReposts, post); err != nil {
					return posts, fmt.Errorf("failed to save engaged post: %w", err)
				}
			}
			log.Infof("> %s - %s, %s", post.ID, post.AuthorHandle, post.Text)
			postsSeen.WithLabelValues(query).Inc()
			posts = append(posts, post)

		case KindRateLimited:
			rateLimitWaits.Inc()
			log.WithError(res.Err).WithField("backoff", p.backoff()).Error("Rate limited, waiting before resuming")
			if err := sleep(ctx, p.backoff()); err != nil {
				return posts, err
			}

		case KindError:
			log.WithError(res.Err).WithField("query", query).Error("Search failed")

		case KindExhausted:
			break loop
		}
	}

	log.WithFields(log.Fields{
		"query": query,
		"count": len(posts),
	}).Info("Saving search results into store")
	if err := p.Store.UpsertPosts(ctx, db.CollectionPosts, posts); err != nil {
		return posts, fmt.Errorf("failed to save search results: %w", err)
	}

	log.WithField("query", query).Info("Finished search")
	return posts, nil
}
