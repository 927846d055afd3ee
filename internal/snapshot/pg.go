package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/nidhogg/engram/internal/execution"
	"github.com/nidhogg/engram/internal/memory"
)

// ErrNotFound is returned when no snapshot exists for an agent.
var ErrNotFound = errors.New("snapshot not found")

// Store keeps graph snapshots and execution traces in PostgreSQL. Snapshots
// are append-only JSONB blobs; LoadLatest picks the newest per agent.
type Store struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// NewStore creates a Store with a pgx connection pool.
func NewStore(dsn string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	pool, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	logger.Info("PostgreSQL connected")
	return &Store{db: pool, logger: logger}, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS memory_snapshots (
	id         uuid PRIMARY KEY DEFAULT gen_random_uuid(),
	agent_id   text NOT NULL,
	version    int NOT NULL,
	data       jsonb NOT NULL,
	saved_at   timestamptz NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS memory_snapshots_agent_idx
	ON memory_snapshots (agent_id, saved_at DESC);

CREATE TABLE IF NOT EXISTS execution_traces (
	id         uuid PRIMARY KEY,
	agent_id   text NOT NULL,
	data       jsonb NOT NULL,
	created_at timestamptz NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS execution_traces_agent_idx
	ON execution_traces (agent_id, created_at DESC);
`

// Migrate creates the schema if it does not exist yet.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	s.logger.Info("snapshot schema ready")
	return nil
}

// SaveSnapshot captures the graph and appends it for the agent.
func (s *Store) SaveSnapshot(ctx context.Context, agentID string, g *memory.Graph) error {
	snap := Capture(g)
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO memory_snapshots (agent_id, version, data)
		VALUES ($1, $2, $3)`,
		agentID, snap.Version, data,
	)
	if err != nil {
		return fmt.Errorf("save snapshot for %s: %w", agentID, err)
	}
	s.logger.Debug("snapshot stored",
		zap.String("agent_id", agentID),
		zap.Int("fragments", len(snap.Fragments)))
	return nil
}

// LoadLatest restores the most recent snapshot for the agent.
func (s *Store) LoadLatest(ctx context.Context, agentID string) (*memory.Graph, error) {
	var data []byte
	err := s.db.QueryRow(ctx, `
		SELECT data FROM memory_snapshots
		WHERE agent_id = $1
		ORDER BY saved_at DESC
		LIMIT 1`, agentID,
	).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot for %s: %w", agentID, err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("parse snapshot for %s: %w", agentID, err)
	}
	return Restore(&snap, s.logger), nil
}

// AppendTrace stores one execution trace for later pattern mining.
func (s *Store) AppendTrace(ctx context.Context, agentID string, trace *execution.Trace) error {
	data, err := json.Marshal(trace)
	if err != nil {
		return fmt.Errorf("marshal trace: %w", err)
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO execution_traces (id, agent_id, data)
		VALUES ($1, $2, $3)`,
		trace.ID, agentID, data,
	)
	if err != nil {
		return fmt.Errorf("append trace: %w", err)
	}
	return nil
}

// RecentTraces returns up to limit traces for the agent, oldest first.
func (s *Store) RecentTraces(ctx context.Context, agentID string, limit int) ([]*execution.Trace, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(ctx, `
		SELECT data FROM (
			SELECT data, created_at FROM execution_traces
			WHERE agent_id = $1
			ORDER BY created_at DESC
			LIMIT $2
		) recent
		ORDER BY created_at ASC`, agentID, limit)
	if err != nil {
		return nil, fmt.Errorf("query traces: %w", err)
	}
	defer rows.Close()

	var traces []*execution.Trace
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan trace: %w", err)
		}
		var t execution.Trace
		if err := json.Unmarshal(data, &t); err != nil {
			return nil, fmt.Errorf("parse trace: %w", err)
		}
		traces = append(traces, &t)
	}
	return traces, rows.Err()
}

// Close shuts down the connection pool.
func (s *Store) Close() {
	s.db.Close()
}
