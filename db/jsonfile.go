package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"vacunagates/models"

	log "github.com/sirupsen/logrus"
)

// JSONFile is a dry-run store that keeps every collection in an indented
// JSON file named after it (persons.json, tweets.json, retweets.json).
// Existing files are loaded on open so upserts stay idempotent across runs.
type JSONFile struct {
	mu      sync.Mutex
	dir     string
	persons *keyedList[models.Person]
	posts   map[string]*keyedList[models.Post]
}

type keyedList[T any] struct {
	items []T
	index map[string]int
	key   func(T) string
}

func newKeyedList[T any](key func(T) string) *keyedList[T] {
	return &keyedList[T]{index: map[string]int{}, key: key}
}

func (l *keyedList[T]) upsert(item T) {
	k := l.key(item)
	if i, ok := l.index[k]; ok {
		l.items[i] = item
		return
	}
	l.index[k] = len(l.items)
	l.items = append(l.items, item)
}

func NewJSONFile(dir string) (*JSONFile, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	s := &JSONFile{
		dir:     dir,
		persons: newKeyedList(func(p models.Person) string { return p.N }),
		posts: map[string]*keyedList[models.Post]{
			CollectionPosts:   newKeyedList(func(p models.Post) string { return p.ID }),
			CollectionReposts: newKeyedList(func(p models.Post) string { return p.ID }),
		},
	}

	if err := load(s.path(CollectionPersons), s.persons); err != nil {
		return nil, err
	}
	for collection, list := range s.posts {
		if err := load(s.path(collection), list); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *JSONFile) path(collection string) string {
	return filepath.Join(s.dir, collection+".json")
}

func load[T any](path string, list *keyedList[T]) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	var items []T
	if err := json.Unmarshal(data, &items); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	for _, item := range items {
		list.upsert(item)
	}
	return nil
}

func save[T any](path string, items []T) error {
	if items == nil {
		items = []T{}
	}
	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}

	// Write next to the target and rename so a crash never leaves half a file
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}

	log.WithFields(log.Fields{
		"path":  path,
		"count": len(items),
	}).Info("Wrote JSON file")
	return nil
}

func (s *JSONFile) UpsertPost(ctx context.Context, collection string, post models.Post) error {
	return s.UpsertPosts(ctx, collection, []models.Post{post})
}

func (s *JSONFile) UpsertPosts(_ context.Context, collection string, posts []models.Post) error {
	if err := checkPostCollection(collection); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.posts[collection]
	for _, post := range posts {
		list.upsert(post)
	}
	return save(s.path(collection), list.items)
}

func (s *JSONFile) UpsertPersons(_ context.Context, persons []models.Person) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, person := range persons {
		s.persons.upsert(person)
	}
	return save(s.path(CollectionPersons), s.persons.items)
}

func (s *JSONFile) Persons(_ context.Context) ([]models.Person, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Person(nil), s.persons.items...), nil
}

// Tidy is a no-op: JSON files carry no write timestamps.
func (s *JSONFile) Tidy(_ context.Context, _ time.Time) (int64, error) {
	return 0, nil
}

func (s *JSONFile) Close(_ context.Context) error {
	return nil
}
