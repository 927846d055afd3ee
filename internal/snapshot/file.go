package snapshot

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/nidhogg/engram/internal/memory"
)

// SaveFile writes the graph to path as JSON. The write goes through a
// temporary file in the same directory and a rename, so a crash mid-write
// never leaves a truncated snapshot behind.
func SaveFile(path string, g *memory.Graph, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	snap := Capture(g)

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".snapshot-*.json")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename snapshot: %w", err)
	}

	logger.Info("snapshot saved",
		zap.String("path", path),
		zap.Int("fragments", len(snap.Fragments)),
		zap.Int("edges", len(snap.Edges)))
	return nil
}

// LoadFile reads a snapshot file and rebuilds the graph.
func LoadFile(path string, logger *zap.Logger) (*memory.Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("parse snapshot: %w", err)
	}
	return Restore(&snap, logger), nil
}
