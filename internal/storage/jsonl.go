package storage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"swapScope/internal/model"
)

// SkipLog appends skip records to a JSONL file for later backfills.
type SkipLog struct {
	path string
	mu   sync.Mutex
}

func NewSkipLog(path string) *SkipLog {
	return &SkipLog{path: path}
}

// Path returns the skip log file path.
func (s *SkipLog) Path() string {
	return s.path
}

// Append writes a batch of skip records as JSON lines.
func (s *SkipLog) Append(records []model.SkipRecord) error {
	if len(records) == 0 {
		return nil
	}

	dir := filepath.Dir(s.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create skip log dir: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open skip log: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	for _, record := range records {
		line, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("marshal skip record: %w", err)
		}
		if _, err := writer.Write(line); err != nil {
			return fmt.Errorf("write skip record: %w", err)
		}
		if err := writer.WriteByte('\n'); err != nil {
			return fmt.Errorf("write newline: %w", err)
		}
	}

	if err := writer.Flush(); err != nil {
		return fmt.Errorf("flush skip log: %w", err)
	}

	return nil
}
