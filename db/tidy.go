package db

import (
	"context"
	"fmt"
	"time"

	sb "github.com/huandu/go-sqlbuilder"
	log "github.com/sirupsen/logrus"
)

// Tidy removes posts from both post tables that have not been written since
// the cutoff. Persons are never tidied.
func (p *Postgres) Tidy(ctx context.Context, before time.Time) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var total int64
	for _, table := range []string{CollectionPosts, CollectionReposts} {
		deletePosts := sb.PostgreSQL.NewDeleteBuilder()
		query, args := deletePosts.DeleteFrom(table).Where(deletePosts.LessThan("indexed_at", before)).Build()

		log.WithFields(log.Fields{
			"sql":  query,
			"args": args,
		}).Info("Tidying database")

		res, err := p.db.ExecContext(ctx, query, args...)
		if err != nil {
			return total, fmt.Errorf("tidy %s: %w", table, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("tidy %s: %w", table, err)
		}
		total += n
	}

	return total, nil
}
