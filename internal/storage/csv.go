package storage

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"swapScope/internal/model"
)

// CSVSink appends swap records to a CSV file. Existing files are extended, never truncated.
type CSVSink struct {
	path string

	mu     sync.Mutex
	file   *os.File
	writer *csv.Writer
}

// OpenCSVSink opens path for appending and writes the header if the file is new or empty.
func OpenCSVSink(path string) (*CSVSink, error) {
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create output dir: %w", err)
		}
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open output file: %w", err)
	}

	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("stat output file: %w", err)
	}

	sink := &CSVSink{path: path, file: file, writer: csv.NewWriter(file)}
	if stat.Size() == 0 {
		if err := sink.writer.Write(model.SwapCSVHeader); err != nil {
			file.Close()
			return nil, fmt.Errorf("write header: %w", err)
		}
		sink.writer.Flush()
		if err := sink.writer.Error(); err != nil {
			file.Close()
			return nil, fmt.Errorf("flush header: %w", err)
		}
	}
	return sink, nil
}

// Path returns the output file path.
func (s *CSVSink) Path() string {
	return s.path
}

// WriteSwaps appends records and flushes them to disk.
func (s *CSVSink) WriteSwaps(_ context.Context, records []model.SwapRecord) error {
	if len(records) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return fmt.Errorf("csv sink is closed")
	}

	for _, record := range records {
		if err := s.writer.Write(record.CSVRow()); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	s.writer.Flush()
	if err := s.writer.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

// Close flushes pending rows and closes the file.
func (s *CSVSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return nil
	}
	s.writer.Flush()
	flushErr := s.writer.Error()
	closeErr := s.file.Close()
	s.file = nil
	if flushErr != nil {
		return fmt.Errorf("flush csv: %w", flushErr)
	}
	return closeErr
}
