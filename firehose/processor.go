package firehose

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"vacunagates/bluesky"
	"vacunagates/config"
	"vacunagates/db"
	"vacunagates/engage"
	"vacunagates/models"
	"vacunagates/wait"

	"github.com/bluesky-social/indigo/api/bsky"
	jsmodels "github.com/bluesky-social/jetstream/pkg/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"
)

const PostCollection = "app.bsky.feed.post"

var postsMatched = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "vacunagates_listener_posts_total",
	Help: "Posts that matched a search term, by outcome",
}, []string{"outcome"})

// PersistPolicy decides which matching posts the listener stores.
type PersistPolicy string

const (
	// PersistAllowListed stores only posts the bot engaged with.
	PersistAllowListed PersistPolicy = "allow-listed"
	// PersistAll stores every matching post.
	PersistAll PersistPolicy = "all"
)

func ParsePersistPolicy(s string) (PersistPolicy, error) {
	switch PersistPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PersistAllowListed:
		return PersistAllowListed, nil
	case PersistAll:
		return PersistAll, nil
	default:
		return "", fmt.Errorf("unknown persist policy %q", s)
	}
}

type Engager interface {
	Engage(ctx context.Context, post models.Post) (models.Post, error)
}

type Store interface {
	UpsertPost(ctx context.Context, collection string, post models.Post) error
}

type ProfileLookup interface {
	Lookup(ctx context.Context, did string) (*bluesky.Profile, error)
}

type HandleResolver interface {
	ResolveHandle(ctx context.Context, handle string) (string, error)
}

// ResolveAllowList maps allow-listed handles to the DIDs that appear on the
// stream. Handles that fail to resolve are logged and left out.
func ResolveAllowList(ctx context.Context, resolver HandleResolver, allowList *config.AllowList) map[string]string {
	authors := make(map[string]string, allowList.Len())
	for _, handle := range allowList.Handles() {
		did, err := resolver.ResolveHandle(ctx, handle)
		if err != nil {
			log.WithError(err).WithField("handle", handle).Error("Failed to resolve allow-listed handle")
			continue
		}
		log.WithFields(log.Fields{
			"handle": handle,
			"did":    did,
		}).Info("Following allow-listed author")
		authors[did] = handle
	}
	return authors
}

// Processor turns stream events into engaged and stored posts.
type Processor struct {
	Terms []string
	// SelfDID is the bot's own account; its posts are ignored.
	SelfDID string
	// Authors maps allow-listed DIDs to their handles.
	Authors  map[string]string
	Engager  Engager
	Store    Store
	Profiles ProfileLookup
	Policy   PersistPolicy
	// Backoff is the wait after a rate limited engagement, defaulting to
	// engage.DefaultRateLimitBackoff.
	Backoff time.Duration
	Sleep   wait.Sleeper
}

func (p *Processor) Process(ctx context.Context, event *jsmodels.Event) error {
	// If it is not a create post commit operation we skip it
	if event == nil || event.Commit == nil ||
		event.Commit.Operation != jsmodels.CommitOperationCreate ||
		event.Commit.Collection != PostCollection {
		return nil
	}

	if p.SelfDID != "" && event.Did == p.SelfDID {
		return nil
	}

	var record bsky.FeedPost
	if err := json.Unmarshal(event.Commit.Record, &record); err != nil {
		return fmt.Errorf("failed to unmarshal post: %w", err)
	}

	if record.Reply != nil {
		return nil
	}

	if !MatchesTerms(record.Text, bluesky.PostTags(&record), p.Terms) {
		return nil
	}

	post := models.Post{
		ID:        fmt.Sprintf("at://%s/%s/%s", event.Did, PostCollection, event.Commit.RKey),
		CID:       event.Commit.CID,
		AuthorDID: event.Did,
		Text:      record.Text,
		CreatedAt: record.CreatedAt,
	}

	handle, allowed := p.Authors[event.Did]
	if !allowed && p.Policy != PersistAll {
		postsMatched.WithLabelValues("ignored").Inc()
		return nil
	}

	p.fillAuthor(ctx, &post, handle)

	log.WithFields(log.Fields{
		"id":     post.ID,
		"handle": post.AuthorHandle,
		"text":   post.Text,
	}).Info("Matched post")

	if allowed {
		engaged, err := engage.WithBackoff(ctx, p.Engager, post, p.Backoff, p.Sleep)
		if err != nil {
			return fmt.Errorf("failed to engage post %s: %w", post.ID, err)
		}
		post = engaged
		postsMatched.WithLabelValues("engaged").Inc()
	} else {
		postsMatched.WithLabelValues("stored").Inc()
	}

	if err := p.Store.UpsertPost(ctx, db.CollectionReposts, post); err != nil {
		return fmt.Errorf("failed to save post %s: %w", post.ID, err)
	}
	return nil
}

func (p *Processor) fillAuthor(ctx context.Context, post *models.Post, handle string) {
	post.AuthorHandle = handle
	if p.Profiles == nil {
		return
	}
	profile, err := p.Profiles.Lookup(ctx, post.AuthorDID)
	if err != nil {
		log.WithError(err).WithField("did", post.AuthorDID).Warn("Failed to look up author profile")
		return
	}
	if post.AuthorHandle == "" {
		post.AuthorHandle = profile.Handle
	}
	post.AuthorName = profile.DisplayName
}
