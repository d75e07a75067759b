package store

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/nimburion/listing/pkg/config"
	"github.com/nimburion/listing/pkg/observability/logger"
	"github.com/nimburion/listing/pkg/repository/document"
	"github.com/nimburion/listing/pkg/store/mongodb"
)

// NewDocumentStore selects and initializes the document backend from config.
// The memory backend is optionally seeded from database.seed_file, a JSON object
// mapping collection names to arrays of documents.
func NewDocumentStore(cfg config.DatabaseConfig, log logger.Logger) (*DocumentStore, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Type)) {
	case config.DatabaseTypeMongoDB:
		adapter, err := mongodb.NewAdapter(mongodb.Config{
			URL:              cfg.URL,
			Database:         cfg.DatabaseName,
			ConnectTimeout:   cfg.ConnectTimeout,
			OperationTimeout: cfg.QueryTimeout,
			MaxPoolSize:      cfg.MaxPoolSize,
		}, log)
		if err != nil {
			return nil, err
		}
		exec, err := document.NewMongoDBExecutor(adapter)
		if err != nil {
			_ = adapter.Close()
			return nil, err
		}
		return &DocumentStore{Aggregator: exec, Adapter: adapter, System: "mongodb"}, nil
	case config.DatabaseTypeMemory:
		exec := document.NewMemoryExecutor()
		if cfg.SeedFile != "" {
			if err := SeedFromFile(exec, cfg.SeedFile); err != nil {
				return nil, err
			}
			log.Info("memory store seeded", "file", cfg.SeedFile, "collections", exec.Collections())
		}
		return &DocumentStore{
			Aggregator: exec,
			Adapter:    nopCloser{health: exec.HealthCheck},
			System:     "memory",
		}, nil
	default:
		return nil, fmt.Errorf("unsupported database.type %q (supported: mongodb, memory)", cfg.Type)
	}
}

// SeedFromFile loads a JSON fixture of the form {"collection": [{...}, ...]} into exec.
func SeedFromFile(exec *document.MemoryExecutor, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read seed file %s: %w", path, err)
	}
	var fixture map[string][]document.Document
	if err := json.Unmarshal(raw, &fixture); err != nil {
		return fmt.Errorf("failed to parse seed file %s: %w", path, err)
	}
	names := make([]string, 0, len(fixture))
	for name := range fixture {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		exec.Insert(name, fixture[name]...)
	}
	return nil
}
