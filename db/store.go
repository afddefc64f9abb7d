package db

import (
	"context"
	"fmt"
	"time"

	"vacunagates/models"
)

// Collection names shared by every backend.
const (
	CollectionPersons = "persons"
	CollectionPosts   = "tweets"
	CollectionReposts = "retweets"
)

// Store persists posts and persons. Every write is an upsert keyed by the
// record's identity: the post id or the person's sequence number.
type Store interface {
	UpsertPost(ctx context.Context, collection string, post models.Post) error
	UpsertPosts(ctx context.Context, collection string, posts []models.Post) error
	UpsertPersons(ctx context.Context, persons []models.Person) error
	// Persons returns every stored person in the store's own order.
	Persons(ctx context.Context) ([]models.Person, error)
	// Tidy removes posts that were last written before the cutoff and
	// returns how many were removed.
	Tidy(ctx context.Context, before time.Time) (int64, error)
	Close(ctx context.Context) error
}

func checkPostCollection(collection string) error {
	switch collection {
	case CollectionPosts, CollectionReposts:
		return nil
	default:
		return fmt.Errorf("unknown post collection %q", collection)
	}
}
