package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/samber/lo"
)

// TomlAnnounce holds announcer settings from TOML
type TomlAnnounce struct {
	Template string `toml:"template,omitempty"`
	Delay    string `toml:"delay,omitempty"`
}

// TomlDataset holds dataset importer settings from TOML
type TomlDataset struct {
	URL    string `toml:"url,omitempty"`
	Policy string `toml:"policy,omitempty"`
}

// TomlConfig represents the top-level configuration file
type TomlConfig struct {
	Profiles []string     `toml:"profiles"`
	Hashtags []string     `toml:"hashtags"`
	Announce TomlAnnounce `toml:"announce"`
	Dataset  TomlDataset  `toml:"dataset"`
}

func LoadConfig(path string) (*TomlConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config TomlConfig
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return &config, nil
}

// AnnounceDelay parses the configured delay, returning zero when unset.
func (c *TomlConfig) AnnounceDelay() (time.Duration, error) {
	if c.Announce.Delay == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Announce.Delay)
	if err != nil {
		return 0, fmt.Errorf("invalid announce delay %q: %w", c.Announce.Delay, err)
	}
	return d, nil
}

// SplitList splits a comma separated value, trimming blanks and dropping
// empty entries.
func SplitList(s string) []string {
	parts := lo.Map(strings.Split(s, ","), func(p string, _ int) string {
		return strings.TrimSpace(p)
	})
	return lo.Compact(parts)
}

// SearchTerms turns configured hashtags into query strings. Every term is
// prefixed with '#' unless it already carries one, duplicates are dropped
// and the configured order is kept.
func SearchTerms(hashtags []string) []string {
	terms := make([]string, 0, len(hashtags))
	for _, h := range hashtags {
		h = strings.TrimSpace(h)
		if h == "" {
			continue
		}
		if !strings.HasPrefix(h, "#") {
			h = "#" + h
		}
		terms = append(terms, h)
	}
	return lo.Uniq(terms)
}
