package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"trustguard/internal/models"
)

// maxLineSize bounds one JSON line; rejections are a few hundred bytes.
const maxLineSize = 1 << 20

// JSONStorage appends rejections to a JSON Lines file, one object per line.
// Reads scan the whole file, so it suits modest volumes and easy shipping of
// the file to other tools.
type JSONStorage struct {
	filePath string

	mu     sync.Mutex
	file   *os.File
	closed bool
}

// NewJSONStorage opens (or creates) the file at config.Path for appending.
func NewJSONStorage(config Config) (*JSONStorage, error) {
	if config.Path == "" {
		return nil, fmt.Errorf("path is required for JSON storage")
	}

	if err := os.MkdirAll(filepath.Dir(config.Path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	f, err := os.OpenFile(config.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	return &JSONStorage{
		filePath: config.Path,
		file:     f,
	}, nil
}

func (j *JSONStorage) RecordRejection(ctx context.Context, r *models.Rejection) error {
	if err := r.Validate(); err != nil {
		return fmt.Errorf("invalid rejection: %w", err)
	}

	line, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal rejection: %w", err)
	}
	line = append(line, '\n')

	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return ErrClosed
	}
	if _, err := j.file.Write(line); err != nil {
		return fmt.Errorf("failed to append rejection: %w", err)
	}
	return nil
}

// Rejections scans the file and returns matching entries, newest first.
// Lines that fail to decode (for example a torn final write) are skipped.
func (j *JSONStorage) Rejections(ctx context.Context, filter models.RejectionFilter) ([]*models.Rejection, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	f, err := os.Open(j.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	var matched []*models.Rejection
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var r models.Rejection
		if err := json.Unmarshal(scanner.Bytes(), &r); err != nil {
			continue
		}
		if filter.Matches(&r) {
			matched = append(matched, &r)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	sort.SliceStable(matched, func(a, b int) bool {
		return matched[a].OccurredAt.After(matched[b].OccurredAt)
	})

	if limit := filter.EffectiveLimit(); len(matched) > limit {
		matched = matched[:limit]
	}
	if matched == nil {
		matched = []*models.Rejection{}
	}
	return matched, nil
}

func (j *JSONStorage) Ping(ctx context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return ErrClosed
	}
	if _, err := os.Stat(j.filePath); err != nil {
		return fmt.Errorf("failed to stat file: %w", err)
	}
	return nil
}

// Close flushes and closes the underlying file.
func (j *JSONStorage) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return nil
	}
	j.closed = true
	if err := j.file.Sync(); err != nil {
		j.file.Close()
		return fmt.Errorf("failed to sync file: %w", err)
	}
	return j.file.Close()
}
