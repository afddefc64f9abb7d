package engage_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"vacunagates/config"
	"vacunagates/engage"
	"vacunagates/models"

	"github.com/bluesky-social/indigo/xrpc"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePlatform struct {
	likes     []string
	reposts   []string
	likeErr   error
	repostErr error
}

func (f *fakePlatform) Like(_ context.Context, uri, _ string) error {
	f.likes = append(f.likes, uri)
	return f.likeErr
}

func (f *fakePlatform) Repost(_ context.Context, uri, _ string) error {
	f.reposts = append(f.reposts, uri)
	return f.repostErr
}

func TestEngage(t *testing.T) {
	tests := []struct {
		name          string
		post          models.Post
		likeErr       error
		repostErr     error
		wantLikes     int
		wantReposts   int
		wantFavorited bool
		wantReposted  bool
	}{
		{
			name:          "fresh post gets both actions",
			post:          models.Post{ID: "1"},
			wantLikes:     1,
			wantReposts:   1,
			wantFavorited: true,
			wantReposted:  true,
		},
		{
			name:          "already liked is only reposted",
			post:          models.Post{ID: "2", Favorited: true},
			wantReposts:   1,
			wantFavorited: true,
			wantReposted:  true,
		},
		{
			name:          "already engaged triggers nothing",
			post:          models.Post{ID: "3", Favorited: true, Reposted: true},
			wantFavorited: true,
			wantReposted:  true,
		},
		{
			name:         "like failure does not stop repost",
			post:         models.Post{ID: "4"},
			likeErr:      errors.New("boom"),
			wantLikes:    1,
			wantReposts:  1,
			wantReposted: true,
		},
		{
			name:          "repost failure keeps like",
			post:          models.Post{ID: "5"},
			repostErr:     errors.New("boom"),
			wantLikes:     1,
			wantReposts:   1,
			wantFavorited: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			platform := &fakePlatform{likeErr: tt.likeErr, repostErr: tt.repostErr}
			engager := engage.NewEngager(platform, config.NewAllowList(nil))

			got, err := engager.Engage(context.Background(), tt.post)
			require.NoError(t, err)

			assert.Len(t, platform.likes, tt.wantLikes)
			assert.Len(t, platform.reposts, tt.wantReposts)
			assert.Equal(t, tt.wantFavorited, got.Favorited)
			assert.Equal(t, tt.wantReposted, got.Reposted)
		})
	}
}

func TestEngageLogsFailuresAtError(t *testing.T) {
	hook := test.NewGlobal()
	defer hook.Reset()

	platform := &fakePlatform{likeErr: errors.New("boom"), repostErr: errors.New("bang")}
	engage.NewEngager(platform, nil).Engage(context.Background(), models.Post{ID: "1"})

	var errorsLogged int
	for _, entry := range hook.AllEntries() {
		if entry.Level == logrus.ErrorLevel {
			errorsLogged++
		}
	}
	assert.Equal(t, 2, errorsLogged)
}

func TestEngageStopsOnRateLimit(t *testing.T) {
	rateLimited := &xrpc.Error{StatusCode: http.StatusTooManyRequests}

	tests := []struct {
		name          string
		likeErr       error
		repostErr     error
		wantReposts   int
		wantFavorited bool
	}{
		{
			name:    "like rate limited skips repost",
			likeErr: rateLimited,
		},
		{
			name:          "repost rate limited keeps like",
			repostErr:     rateLimited,
			wantReposts:   1,
			wantFavorited: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			platform := &fakePlatform{likeErr: tt.likeErr, repostErr: tt.repostErr}
			engager := engage.NewEngager(platform, nil)

			got, err := engager.Engage(context.Background(), models.Post{ID: "1"})
			assert.ErrorIs(t, err, engage.ErrRateLimited)
			assert.Len(t, platform.likes, 1)
			assert.Len(t, platform.reposts, tt.wantReposts)
			assert.Equal(t, tt.wantFavorited, got.Favorited)
			assert.False(t, got.Reposted)
		})
	}
}

func TestWithBackoff(t *testing.T) {
	rateLimited := &xrpc.Error{StatusCode: http.StatusTooManyRequests}

	tests := []struct {
		name       string
		backoff    time.Duration
		wantSleeps []time.Duration
	}{
		{name: "configured backoff", backoff: time.Minute, wantSleeps: []time.Duration{time.Minute}},
		{name: "default backoff", wantSleeps: []time.Duration{engage.DefaultRateLimitBackoff}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			platform := &fakePlatform{repostErr: rateLimited}
			engager := engage.NewEngager(platform, nil)
			var sleeps []time.Duration
			sleep := func(_ context.Context, d time.Duration) error {
				sleeps = append(sleeps, d)
				platform.repostErr = nil
				return nil
			}

			got, err := engage.WithBackoff(context.Background(), engager, models.Post{ID: "1"}, tt.backoff, sleep)
			require.NoError(t, err)
			assert.Equal(t, tt.wantSleeps, sleeps)
			assert.Len(t, platform.likes, 1, "the like earned before the rate limit is not repeated")
			assert.Len(t, platform.reposts, 2)
			assert.True(t, got.Favorited)
			assert.True(t, got.Reposted)
		})
	}
}

func TestAllowed(t *testing.T) {
	engager := engage.NewEngager(&fakePlatform{}, config.NewAllowList([]string{"alice.bsky.social"}))

	assert.True(t, engager.Allowed(models.Post{AuthorHandle: "Alice.bsky.social"}))
	assert.False(t, engager.Allowed(models.Post{AuthorHandle: "bob.bsky.social"}))
}
