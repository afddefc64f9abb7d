package config

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

// EnvFiles are read in order; later files override earlier ones.
var EnvFiles = []string{".env", ".env.dev"}

// LoadEnv fills the process environment from local env files. Variables
// already set in the process win over every file, and missing files are
// skipped.
func LoadEnv() []string {
	loaded := make([]string, 0, len(EnvFiles))
	values := map[string]string{}
	for _, file := range EnvFiles {
		if _, err := os.Stat(file); err != nil {
			continue
		}
		env, err := godotenv.Read(file)
		if err != nil {
			log.WithError(err).Warnf("Failed to load %s", file)
			continue
		}
		for key, value := range env {
			values[key] = value
		}
		loaded = append(loaded, file)
	}

	for key, value := range values {
		if _, ok := os.LookupEnv(key); ok {
			continue
		}
		if err := os.Setenv(key, value); err != nil {
			log.WithError(err).Warnf("Failed to set %s", key)
		}
	}

	if len(loaded) == 0 {
		log.Debug("No local env files loaded; relying on process environment")
	} else {
		log.Debugf("Loaded env files: %s", strings.Join(loaded, ", "))
	}
	return loaded
}
