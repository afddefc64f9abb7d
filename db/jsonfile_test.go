package db_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"vacunagates/db"
	"vacunagates/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONFileUpsertsByKey(t *testing.T) {
	dir := t.TempDir()
	store, err := db.NewJSONFile(dir)
	require.NoError(t, err)
	ctx := context.Background()

	first := samplePost("1")
	second := samplePost("2")
	require.NoError(t, store.UpsertPosts(ctx, db.CollectionPosts, []models.Post{first, second}))

	first.Text = "edited"
	require.NoError(t, store.UpsertPost(ctx, db.CollectionPosts, first))

	data, err := os.ReadFile(filepath.Join(dir, "tweets.json"))
	require.NoError(t, err)

	var posts []models.Post
	require.NoError(t, json.Unmarshal(data, &posts))
	require.Len(t, posts, 2)
	assert.Equal(t, "1", posts[0].ID)
	assert.Equal(t, "edited", posts[0].Text)
	assert.Equal(t, "2", posts[1].ID)
	assert.Contains(t, string(data), "\n  {", "output is indented")
}

func TestJSONFilePersonsSurviveReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store, err := db.NewJSONFile(dir)
	require.NoError(t, err)
	persons := []models.Person{{N: "1", FirstName: "Juan"}, {N: "2", FirstName: "Rosa"}}
	require.NoError(t, store.UpsertPersons(ctx, persons))

	reopened, err := db.NewJSONFile(dir)
	require.NoError(t, err)
	require.NoError(t, reopened.UpsertPersons(ctx, persons))

	got, err := reopened.Persons(ctx)
	require.NoError(t, err)
	assert.Equal(t, persons, got)
}

func TestJSONFileEmptyWriteProducesArray(t *testing.T) {
	dir := t.TempDir()
	store, err := db.NewJSONFile(dir)
	require.NoError(t, err)

	require.NoError(t, store.UpsertPosts(context.Background(), db.CollectionReposts, nil))
	data, err := os.ReadFile(filepath.Join(dir, "retweets.json"))
	require.NoError(t, err)
	assert.JSONEq(t, "[]", string(data))
}

func TestJSONFileRejectsCorruptFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "persons.json"), []byte("{"), 0o644))

	_, err := db.NewJSONFile(dir)
	assert.Error(t, err)
}
