package search

import (
	"context"

	"vacunagates/bluesky"
	"vacunagates/models"
)

// Kind tags what a call to Pages.Next produced.
type Kind int

const (
	KindPost Kind = iota
	KindRateLimited
	KindExhausted
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindPost:
		return "post"
	case KindRateLimited:
		return "rate-limited"
	case KindExhausted:
		return "exhausted"
	case KindError:
		return "error"
	default:
		return "unknown"
	}
}

// Result is one step of a paginated search.
type Result struct {
	Kind Kind
	Post models.Post
	Err  error
}

// Searcher fetches one page of search results.
type Searcher interface {
	SearchPosts(ctx context.Context, query string, since string, cursor string) (*bluesky.SearchPage, error)
}

// Pages lazily walks the result pages of a single query. It is finite: it
// ends when the platform stops returning a cursor. A rate-limited fetch keeps
// the cursor, so calling Next again retries the same page.
type Pages struct {
	searcher Searcher
	query    string
	since    string

	cursor  string
	started bool
	done    bool
	buf     []models.Post
}

func NewPages(searcher Searcher, query, since string) *Pages {
	return &Pages{searcher: searcher, query: query, since: since}
}

func (p *Pages) Next(ctx context.Context) Result {
	for len(p.buf) == 0 {
		if p.done {
			return Result{Kind: KindExhausted}
		}

		page, err := p.searcher.SearchPosts(ctx, p.query, p.since, p.cursor)
		if err != nil {
			if bluesky.IsRateLimited(err) {
				return Result{Kind: KindRateLimited, Err: err}
			}
			// Without a page there is no cursor to continue from
			p.done = true
			return Result{Kind: KindError, Err: err}
		}

		for _, view := range page.Posts {
			if view == nil {
				continue
			}
			p.buf = append(p.buf, bluesky.PostFromView(view))
		}

		if page.Cursor == "" || (p.started && page.Cursor == p.cursor) {
			p.done = true
		}
		p.started = true
		p.cursor = page.Cursor
	}

	post := p.buf[0]
	p.buf = p.buf[1:]
	return Result{Kind: KindPost, Post: post}
}
