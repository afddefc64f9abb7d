package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"vacunagates/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitList(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{name: "empty string", input: "", expected: []string{}},
		{name: "single value", input: "vacunagate", expected: []string{"vacunagate"}},
		{name: "trims blanks", input: " a , b,c ", expected: []string{"a", "b", "c"}},
		{name: "drops empty entries", input: "a,,b, ,", expected: []string{"a", "b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, config.SplitList(tt.input))
		})
	}
}

func TestSearchTerms(t *testing.T) {
	terms := config.SearchTerms([]string{"vacunagate", " #VacunaGate ", "", "vacunagate", "peru"})
	assert.Equal(t, []string{"#vacunagate", "#VacunaGate", "#peru"}, terms)
}

func TestAllowList(t *testing.T) {
	al := config.NewAllowList([]string{"@Alice.bsky.social", "bob.bsky.social", "", "alice.bsky.social"})

	assert.Equal(t, 2, al.Len())
	assert.Equal(t, []string{"alice.bsky.social", "bob.bsky.social"}, al.Handles())
	assert.True(t, al.Contains("alice.bsky.social"))
	assert.True(t, al.Contains("@BOB.bsky.social"))
	assert.False(t, al.Contains("mallory.bsky.social"))

	var nilList *config.AllowList
	assert.False(t, nilList.Contains("alice.bsky.social"))
	assert.Zero(t, nilList.Len())
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bot.toml")
	err := os.WriteFile(path, []byte(`
profiles = ["alice.bsky.social", "bob.bsky.social"]
hashtags = ["vacunagate"]

[announce]
template = "{{.FirstName}} {{.LastName}}"
delay = "10s"

[dataset]
url = "https://example.com/data.csv"
policy = "fail"
`), 0o600)
	require.NoError(t, err)

	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"alice.bsky.social", "bob.bsky.social"}, cfg.Profiles)
	assert.Equal(t, []string{"vacunagate"}, cfg.Hashtags)
	assert.Equal(t, "https://example.com/data.csv", cfg.Dataset.URL)
	assert.Equal(t, "fail", cfg.Dataset.Policy)

	delay, err := cfg.AnnounceDelay()
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, delay)
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := config.LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("profiles = ["), 0o600))
	_, err = config.LoadConfig(path)
	assert.Error(t, err)

	cfg := &config.TomlConfig{Announce: config.TomlAnnounce{Delay: "soon"}}
	_, err = cfg.AnnounceDelay()
	assert.Error(t, err)
}

func TestLoadEnv(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	require.NoError(t, os.WriteFile(".env", []byte("VACUNAGATES_TEST_VALUE=from-env\nVACUNAGATES_TEST_DEV=from-env\nVACUNAGATES_TEST_PROCESS=from-env\n"), 0o600))
	require.NoError(t, os.WriteFile(".env.dev", []byte("VACUNAGATES_TEST_DEV=from-dev\n"), 0o600))

	for _, key := range []string{"VACUNAGATES_TEST_VALUE", "VACUNAGATES_TEST_DEV"} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
	t.Setenv("VACUNAGATES_TEST_PROCESS", "from-process")

	loaded := config.LoadEnv()
	assert.Equal(t, []string{".env", ".env.dev"}, loaded)

	tests := []struct {
		key  string
		want string
	}{
		{key: "VACUNAGATES_TEST_VALUE", want: "from-env"},
		{key: "VACUNAGATES_TEST_DEV", want: "from-dev"},
		{key: "VACUNAGATES_TEST_PROCESS", want: "from-process"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			assert.Equal(t, tt.want, os.Getenv(tt.key))
		})
	}
}
