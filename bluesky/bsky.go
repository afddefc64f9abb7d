package bluesky

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bluesky-social/indigo/api/atproto"
	"github.com/bluesky-social/indigo/api/bsky"
	lexutil "github.com/bluesky-social/indigo/lex/util"
	"github.com/bluesky-social/indigo/xrpc"
	log "github.com/sirupsen/logrus"
)

const DefaultPDSHost = "https://bsky.social"

// MaxSearchPageSize is the largest page app.bsky.feed.searchPosts accepts.
const MaxSearchPageSize = 100

type Credentials struct {
	Identifier string
	Password   string
}

// Client calls the platform with the bot's session. An expired access token
// is refreshed with the session's refresh token and the call retried once.
type Client struct {
	xrpc atomic.Pointer[xrpc.Client]
	// mu serializes session refreshes.
	mu sync.Mutex
}

// NewClient wraps an already authenticated xrpc client.
func NewClient(x *xrpc.Client) *Client {
	c := &Client{}
	c.xrpc.Store(x)
	return c
}

func (c *Client) api() *xrpc.Client {
	return c.xrpc.Load()
}

// IsExpiredToken reports whether err is the platform refusing an expired
// access token.
func IsExpiredToken(err error) bool {
	var xerr *xrpc.XRPCError
	return errors.As(err, &xerr) && xerr.ErrStr == "ExpiredToken"
}

// do runs call against the current session, refreshing it and running call
// again when the access token has expired.
func (c *Client) do(ctx context.Context, call func(api *xrpc.Client) error) error {
	api := c.api()
	err := call(api)
	if !IsExpiredToken(err) {
		return err
	}
	if err := c.refresh(ctx, api); err != nil {
		return err
	}
	return call(c.api())
}

// refresh replaces the session that stale was using. When another caller
// already replaced it the new session is kept as is.
func (c *Client) refresh(ctx context.Context, stale *xrpc.Client) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.api() != stale {
		return nil
	}
	if stale.Auth == nil || stale.Auth.RefreshJwt == "" {
		return errors.New("failed to refresh session: no refresh token")
	}

	// refreshSession authenticates with the refresh token instead of the access token
	withRefresh := *stale
	withRefresh.Auth = &xrpc.AuthInfo{
		AccessJwt: stale.Auth.RefreshJwt,
		Handle:    stale.Auth.Handle,
		Did:       stale.Auth.Did,
	}
	out, err := atproto.ServerRefreshSession(ctx, &withRefresh)
	if err != nil {
		return fmt.Errorf("failed to refresh session: %w", err)
	}

	next := *stale
	next.Auth = &xrpc.AuthInfo{
		AccessJwt:  out.AccessJwt,
		RefreshJwt: out.RefreshJwt,
		Handle:     out.Handle,
		Did:        out.Did,
	}
	c.xrpc.Store(&next)

	log.WithFields(log.Fields{
		"handle": out.Handle,
		"did":    out.Did,
	}).Info("Refreshed Bluesky session")
	return nil
}

func ClientFromCredentials(ctx context.Context, host string, creds *Credentials) (*Client, error) {
	auth, err := atproto.ServerCreateSession(ctx, &xrpc.Client{Host: host}, &atproto.ServerCreateSession_Input{
		Identifier: creds.Identifier,
		Password:   creds.Password,
	})

	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	xrpcClient := &xrpc.Client{
		Host: host,
		Auth: &xrpc.AuthInfo{
			AccessJwt:  auth.AccessJwt,
			RefreshJwt: auth.RefreshJwt,
			Handle:     auth.Handle,
			Did:        auth.Did,
		},
		Client: http.DefaultClient,
	}

	log.WithFields(log.Fields{
		"handle": auth.Handle,
		"did":    auth.Did,
	}).Info("Authenticated with Bluesky")

	return NewClient(xrpcClient), nil
}

// Self returns the DID and handle of the authenticated account.
func (c *Client) Self() (did string, handle string) {
	api := c.api()
	if api.Auth == nil {
		return "", ""
	}
	return api.Auth.Did, api.Auth.Handle
}

// SearchPage is one page of search results.
type SearchPage struct {
	Posts  []*bsky.FeedDefs_PostView
	Cursor string
}

// SearchPosts fetches one page of posts matching query. An empty cursor
// starts from the first page; an empty returned cursor means there are no
// more pages.
func (c *Client) SearchPosts(ctx context.Context, query string, since string, cursor string) (*SearchPage, error) {
	var out *bsky.FeedSearchPosts_Output
	err := c.do(ctx, func(api *xrpc.Client) (err error) {
		out, err = bsky.FeedSearchPosts(ctx, api, "", cursor, "", "", MaxSearchPageSize, "", query, since, "latest", nil, "", "")
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search posts: %w", err)
	}

	page := &SearchPage{Posts: out.Posts}
	if out.Cursor != nil {
		page.Cursor = *out.Cursor
	}
	return page, nil
}

func strongRef(uri, cid string) *atproto.RepoStrongRef {
	return &atproto.RepoStrongRef{
		LexiconTypeID: "com.atproto.repo.strongRef",
		Uri:           uri,
		Cid:           cid,
	}
}

func (c *Client) createRecord(ctx context.Context, collection string, record lexutil.CBOR) (string, error) {
	did, _ := c.Self()
	var out *atproto.RepoCreateRecord_Output
	err := c.do(ctx, func(api *xrpc.Client) (err error) {
		out, err = atproto.RepoCreateRecord(ctx, api, &atproto.RepoCreateRecord_Input{
			Collection: collection,
			Repo:       did,
			Record:     &lexutil.LexiconTypeDecoder{Val: record},
		})
		return err
	})
	if err != nil {
		return "", err
	}
	return out.Uri, nil
}

// Like creates an app.bsky.feed.like record for the post.
func (c *Client) Like(ctx context.Context, uri, cid string) error {
	_, err := c.createRecord(ctx, "app.bsky.feed.like", &bsky.FeedLike{
		LexiconTypeID: "app.bsky.feed.like",
		CreatedAt:     FormatTime(time.Now().UTC()),
		Subject:       strongRef(uri, cid),
	})
	if err != nil {
		return fmt.Errorf("failed to like %s: %w", uri, err)
	}
	return nil
}

// Repost creates an app.bsky.feed.repost record for the post.
func (c *Client) Repost(ctx context.Context, uri, cid string) error {
	_, err := c.createRecord(ctx, "app.bsky.feed.repost", &bsky.FeedRepost{
		LexiconTypeID: "app.bsky.feed.repost",
		CreatedAt:     FormatTime(time.Now().UTC()),
		Subject:       strongRef(uri, cid),
	})
	if err != nil {
		return fmt.Errorf("failed to repost %s: %w", uri, err)
	}
	return nil
}

// CreatePost publishes a new status update from the authenticated account
// and returns its AT-URI.
func (c *Client) CreatePost(ctx context.Context, text string) (string, error) {
	uri, err := c.createRecord(ctx, "app.bsky.feed.post", &bsky.FeedPost{
		LexiconTypeID: "app.bsky.feed.post",
		Text:          text,
		CreatedAt:     FormatTime(time.Now().UTC()),
	})
	if err != nil {
		return "", fmt.Errorf("failed to create post: %w", err)
	}
	return uri, nil
}

// ResolveHandle returns the DID a handle currently points at.
func (c *Client) ResolveHandle(ctx context.Context, handle string) (string, error) {
	var out *atproto.IdentityResolveHandle_Output
	err := c.do(ctx, func(api *xrpc.Client) (err error) {
		out, err = atproto.IdentityResolveHandle(ctx, api, strings.TrimPrefix(handle, "@"))
		return err
	})
	if err != nil {
		return "", fmt.Errorf("failed to resolve handle %s: %w", handle, err)
	}
	return out.Did, nil
}

// Profile is the subset of an actor profile the bot stores with posts.
type Profile struct {
	DID         string
	Handle      string
	DisplayName string
}

func (c *Client) GetProfile(ctx context.Context, actor string) (*Profile, error) {
	var out *bsky.ActorDefs_ProfileViewDetailed
	err := c.do(ctx, func(api *xrpc.Client) (err error) {
		out, err = bsky.ActorGetProfile(ctx, api, actor)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get profile %s: %w", actor, err)
	}
	p := &Profile{DID: out.Did, Handle: out.Handle}
	if out.DisplayName != nil {
		p.DisplayName = *out.DisplayName
	}
	return p, nil
}

// IsRateLimited reports whether err carries the platform's rate limit status.
func IsRateLimited(err error) bool {
	var xerr *xrpc.Error
	if errors.As(err, &xerr) {
		return xerr.StatusCode == http.StatusTooManyRequests
	}
	return false
}

// FormatTime formats a time.Time into the format expected by AT Protocol
func FormatTime(t time.Time) string {
	return t.Format("2006-01-02T15:04:05.000Z")
}
