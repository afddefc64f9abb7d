package db

import (
	"context"
	"fmt"
)

// Backend names accepted by Open
const (
	BackendPostgres = "postgres"
	BackendMongo    = "mongo"
	BackendJSON     = "json"
)

type Options struct {
	Backend  string
	Postgres PostgresConfig
	Mongo    MongoConfig
	// JSONDir is where the json backend writes its files
	JSONDir string
}

// Open connects to the configured backend
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Backend {
	case BackendPostgres:
		return NewPostgres(opts.Postgres)
	case BackendMongo:
		return NewMongo(ctx, opts.Mongo)
	case BackendJSON:
		dir := opts.JSONDir
		if dir == "" {
			dir = "."
		}
		return NewJSONFile(dir)
	default:
		return nil, fmt.Errorf("unknown store backend %q", opts.Backend)
	}
}
