package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"vacunagates/models"

	sqlbuilder "github.com/huandu/go-sqlbuilder"
	_ "github.com/lib/pq"
	log "github.com/sirupsen/logrus"
)

const queryTimeout = 30 * time.Second

var postColumns = []string{
	"id", "cid", "user_did", "user_name", "user_screen_name", "user_location",
	"text", "created_at", "geo", "favorited", "retweeted", "is_reply",
}

var personColumns = []string{
	"n", "place", "last_name", "first_name", "age", "dni",
	"date_1", "date_2", "date_3", "observation", "project",
}

// PostgresConfig holds connection parameters for the Postgres store
type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
}

func (c PostgresConfig) sslMode() string {
	if c.SSLMode == "" {
		return "disable"
	}
	return c.SSLMode
}

// ConnString returns a lib/pq keyword/value connection string
func (c PostgresConfig) ConnString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.sslMode(),
	)
}

// URL returns the connection as a postgres:// URL, used by migrations
func (c PostgresConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.sslMode())
}

// Postgres handles all database operations with a shared connection pool
type Postgres struct {
	db *sql.DB
}

func NewPostgres(cfg PostgresConfig) (*Postgres, error) {
	db, err := sql.Open("postgres", cfg.ConnString())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// The bot is sequential, a small pool is plenty
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)
	db.SetConnMaxIdleTime(time.Hour)

	return NewPostgresFromDB(db), nil
}

// NewPostgresFromDB wraps an existing *sql.DB
func NewPostgresFromDB(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func upsertSuffix(key string, cols []string, extra ...string) string {
	sets := make([]string, 0, len(cols)+len(extra))
	for _, col := range cols {
		if col == key {
			continue
		}
		sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", col, col))
	}
	sets = append(sets, extra...)
	return fmt.Sprintf("ON CONFLICT (%s) DO UPDATE SET %s", key, strings.Join(sets, ", "))
}

func buildPostUpsert(collection string, post models.Post) (string, []interface{}) {
	ib := sqlbuilder.PostgreSQL.NewInsertBuilder()
	ib.InsertInto(collection).
		Cols(append(postColumns, "indexed_at")...).
		Values(
			post.ID, post.CID, post.AuthorDID, post.AuthorName, post.AuthorHandle, post.AuthorLocation,
			post.Text, post.CreatedAt, post.Geo, post.Favorited, post.Reposted, post.IsReply,
			sqlbuilder.Raw("now()"),
		).
		SQL(upsertSuffix("id", postColumns, "indexed_at = now()"))
	return ib.Build()
}

func buildPersonUpsert(person models.Person) (string, []interface{}) {
	ib := sqlbuilder.PostgreSQL.NewInsertBuilder()
	values := make([]interface{}, 0, len(personColumns)+1)
	for _, v := range person.Row() {
		values = append(values, v)
	}
	values = append(values, sqlbuilder.Raw("now()"))
	ib.InsertInto(CollectionPersons).
		Cols(append(personColumns, "imported_at")...).
		Values(values...).
		SQL(upsertSuffix("n", personColumns, "imported_at = now()"))
	return ib.Build()
}

// Write operations

func (p *Postgres) UpsertPost(ctx context.Context, collection string, post models.Post) error {
	if err := checkPostCollection(collection); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	log.WithFields(log.Fields{
		"collection": collection,
		"id":         post.ID,
		"handle":     post.AuthorHandle,
	}).Info("Upserting post")

	query, args := buildPostUpsert(collection, post)
	if _, err := p.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert post %s: %w", post.ID, err)
	}
	return nil
}

// UpsertPosts writes all posts in a single transaction, in order. A later
// post with the same id overwrites an earlier one.
func (p *Postgres) UpsertPosts(ctx context.Context, collection string, posts []models.Post) error {
	if err := checkPostCollection(collection); err != nil {
		return err
	}
	if len(posts) == 0 {
		return nil
	}

	return p.inTx(ctx, func(tx *sql.Tx) error {
		for _, post := range posts {
			query, args := buildPostUpsert(collection, post)
			if _, err := tx.ExecContext(ctx, query, args...); err != nil {
				return fmt.Errorf("upsert post %s: %w", post.ID, err)
			}
		}
		log.WithFields(log.Fields{
			"collection": collection,
			"count":      len(posts),
		}).Info("Bulk upserted posts")
		return nil
	})
}

func (p *Postgres) UpsertPersons(ctx context.Context, persons []models.Person) error {
	if len(persons) == 0 {
		return nil
	}

	return p.inTx(ctx, func(tx *sql.Tx) error {
		for _, person := range persons {
			query, args := buildPersonUpsert(person)
			if _, err := tx.ExecContext(ctx, query, args...); err != nil {
				return fmt.Errorf("upsert person %s: %w", person.N, err)
			}
		}
		log.WithField("count", len(persons)).Info("Bulk upserted persons")
		return nil
	})
}

func (p *Postgres) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			log.WithError(rbErr).Error("Failed to roll back transaction")
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Read operations

// Persons returns every person ordered by sequence number, numerically for
// purely numeric keys.
func (p *Postgres) Persons(ctx context.Context) ([]models.Person, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(personColumns...).From(CollectionPersons).OrderBy("length(n)", "n")
	query, args := sb.Build()

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query error: %w", err)
	}
	defer rows.Close()

	var persons []models.Person
	for rows.Next() {
		var person models.Person
		if err := rows.Scan(
			&person.N, &person.Place, &person.LastName, &person.FirstName, &person.Age, &person.DNI,
			&person.Date1, &person.Date2, &person.Date3, &person.Observation, &person.Project,
		); err != nil {
			return nil, fmt.Errorf("scan error: %w", err)
		}
		persons = append(persons, person)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return persons, nil
}

func (p *Postgres) Close(_ context.Context) error {
	return p.db.Close()
}
