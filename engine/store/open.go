package store

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/WessleyAI/routewise/pkg/config"
)

// Stores bundles the chunk and run stores a process works with.
type Stores struct {
	Chunks ChunkStore
	Runs   RunStore
	// Durable is false when both stores live in process memory.
	Durable bool

	driver neo4j.DriverWithContext
}

// Open connects to Neo4j when cfg.URL is set and verifies connectivity.
// An empty URL returns fresh in-memory stores.
func Open(ctx context.Context, cfg config.Neo4j) (*Stores, error) {
	if cfg.URL == "" {
		return &Stores{Chunks: NewMemoryChunkStore(), Runs: NewMemoryRunStore()}, nil
	}
	driver, err := neo4j.NewDriverWithContext(cfg.URL, neo4j.BasicAuth(cfg.User, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("store: neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("store: neo4j verify: %w", err)
	}
	return &Stores{
		Chunks:  NewNeo4jChunkStore(driver, cfg.Database),
		Runs:    NewNeo4jRunStore(driver, cfg.Database),
		Durable: true,
		driver:  driver,
	}, nil
}

// Close releases the Neo4j driver, if any.
func (s *Stores) Close(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}
	return s.driver.Close(ctx)
}
