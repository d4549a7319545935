package store

import (
	"context"
	"time"

	"github.com/WessleyAI/routewise/engine/domain"
	"github.com/WessleyAI/routewise/pkg/natsutil"
)

// Subjects shared by the API, ingestion and the index watcher.
var (
	RunsCompleted = natsutil.NewSubject[domain.AgentRunRecord]("routewise.runs.completed")
	IndexChanged  = natsutil.NewSubject[IndexChange]("routewise.index.changed")
)

// IndexChange announces that the chunk store changed and retrievers should
// rebuild their snapshot.
type IndexChange struct {
	Slug   string    `json:"slug,omitempty"`
	Chunks int       `json:"chunks"`
	Reason string    `json:"reason"`
	At     time.Time `json:"at"`
}

// NATSRunPublisher announces completed runs on RunsCompleted.
type NATSRunPublisher struct {
	nc natsutil.Conn
}

func NewNATSRunPublisher(nc natsutil.Conn) *NATSRunPublisher {
	return &NATSRunPublisher{nc: nc}
}

func (p *NATSRunPublisher) Save(ctx context.Context, rec domain.AgentRunRecord) error {
	return RunsCompleted.Publish(ctx, p.nc, rec)
}
