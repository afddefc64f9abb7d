// Package engage applies the bot's automatic engagement (like and repost)
// to posts from allow-listed authors.
package engage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"vacunagates/bluesky"
	"vacunagates/config"
	"vacunagates/models"
	"vacunagates/wait"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"
)

var engagements = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "vacunagates_engagements_total",
	Help: "Engagement actions attempted, by action and result",
}, []string{"action", "result"})

// DefaultRateLimitBackoff is how long to wait after the platform signals a
// rate limit before trying again.
const DefaultRateLimitBackoff = 15 * time.Minute

// ErrRateLimited is returned by Engage when the platform refused an action
// for rate limiting. Flags already earned are kept on the returned post.
var ErrRateLimited = errors.New("engagement rate limited")

// Platform is the subset of the platform client needed to engage with a post.
type Platform interface {
	Like(ctx context.Context, uri, cid string) error
	Repost(ctx context.Context, uri, cid string) error
}

type Engager struct {
	platform  Platform
	allowList *config.AllowList
}

func NewEngager(platform Platform, allowList *config.AllowList) *Engager {
	return &Engager{platform: platform, allowList: allowList}
}

// Allowed reports whether the post's author is allow-listed.
func (e *Engager) Allowed(post models.Post) bool {
	return e.allowList.Contains(post.AuthorHandle)
}

// Engage likes and reposts the post unless it already carries those flags.
// Each action is attempted on its own; a failure is logged and leaves the
// corresponding flag untouched but never stops the other action. A rate
// limited action stops engagement and returns ErrRateLimited, so the caller
// can wait and call Engage again with the returned post.
func (e *Engager) Engage(ctx context.Context, post models.Post) (models.Post, error) {
	fields := log.Fields{
		"id":     post.ID,
		"handle": post.AuthorHandle,
	}

	if !post.Favorited {
		if err := e.platform.Like(ctx, post.ID, post.CID); err != nil {
			if bluesky.IsRateLimited(err) {
				engagements.WithLabelValues("like", "rate_limited").Inc()
				return post, fmt.Errorf("%w: %w", ErrRateLimited, err)
			}
			engagements.WithLabelValues("like", "error").Inc()
			log.WithFields(fields).WithError(err).Error("Failed to like post")
		} else {
			engagements.WithLabelValues("like", "ok").Inc()
			post.Favorited = true
		}
	}

	if !post.Reposted {
		if err := e.platform.Repost(ctx, post.ID, post.CID); err != nil {
			if bluesky.IsRateLimited(err) {
				engagements.WithLabelValues("repost", "rate_limited").Inc()
				return post, fmt.Errorf("%w: %w", ErrRateLimited, err)
			}
			engagements.WithLabelValues("repost", "error").Inc()
			log.WithFields(fields).WithError(err).Error("Failed to repost post")
		} else {
			engagements.WithLabelValues("repost", "ok").Inc()
			post.Reposted = true
		}
	}

	return post, nil
}

// Action is anything that can engage with a post, reporting rate limits as
// ErrRateLimited.
type Action interface {
	Engage(ctx context.Context, post models.Post) (models.Post, error)
}

// WithBackoff engages with post, waiting backoff and trying again after each
// rate limit. It only fails when sleep does, i.e. when ctx is done.
func WithBackoff(ctx context.Context, action Action, post models.Post, backoff time.Duration, sleep wait.Sleeper) (models.Post, error) {
	if backoff <= 0 {
		backoff = DefaultRateLimitBackoff
	}
	sleep = wait.Or(sleep)

	for {
		engaged, err := action.Engage(ctx, post)
		if err == nil {
			return engaged, nil
		}
		post = engaged

		log.WithError(err).WithFields(log.Fields{
			"id":      post.ID,
			"backoff": backoff,
		}).Error("Engagement rate limited, waiting before retrying")
		if err := sleep(ctx, backoff); err != nil {
			return post, err
		}
	}
}
