package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"swapScope/internal/storage/postgres"
)

// CheckpointStore persists the last fully processed block.
type CheckpointStore interface {
	Load(ctx context.Context) (uint64, bool, error)
	Save(ctx context.Context, lastProcessed uint64) error
}

// Checkpoint tracks the last processed block.
type Checkpoint struct {
	LastProcessedBlock uint64 `json:"last_processed_block"`
	UpdatedAt          string `json:"updated_at"`
}

// FileCheckpointStore keeps the checkpoint of one run in a JSON file next to its CSV output.
type FileCheckpointStore struct {
	path string
}

// NewFileCheckpointStore returns a store backed by path. The file is created on the first Save.
func NewFileCheckpointStore(path string) *FileCheckpointStore {
	return &FileCheckpointStore{path: path}
}

// Load reports the last processed block. A missing file means no checkpoint yet.
func (c *FileCheckpointStore) Load(_ context.Context) (uint64, bool, error) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("read checkpoint %s: %w", c.path, err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return 0, false, fmt.Errorf("parse checkpoint %s: %w", c.path, err)
	}
	return cp.LastProcessedBlock, true, nil
}

// Save replaces the checkpoint atomically through a temporary file.
func (c *FileCheckpointStore) Save(_ context.Context, lastProcessed uint64) error {
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return fmt.Errorf("create checkpoint dir: %w", err)
	}

	data, err := json.Marshal(Checkpoint{
		LastProcessedBlock: lastProcessed,
		UpdatedAt:          time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		return fmt.Errorf("replace checkpoint: %w", err)
	}
	return nil
}

// DBCheckpointStore stores checkpoints in the scanner_state table.
type DBCheckpointStore struct {
	Store *postgres.Store
	Name  string
}

// Load reads the run's row from scanner_state.
func (s *DBCheckpointStore) Load(ctx context.Context) (uint64, bool, error) {
	if s == nil || s.Store == nil {
		return 0, false, nil
	}
	return s.Store.LoadState(ctx, s.Name)
}

// Save upserts the run's row in scanner_state.
func (s *DBCheckpointStore) Save(ctx context.Context, lastProcessed uint64) error {
	if s == nil || s.Store == nil {
		return nil
	}
	return s.Store.SaveState(ctx, s.Name, lastProcessed)
}
