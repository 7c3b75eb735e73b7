// Package fallback persists batches that could not be written to the
// primary store. A fallback file is the last line of defense against data
// loss: once records are fetched and validated they are either in the store
// or in exactly one file here.
package fallback

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/AliAzimiD/jobharvest/internal/models"
)

// File is the on-disk layout of one failed batch, with enough metadata for
// later reconciliation.
type File struct {
	BatchID   string              `json:"batch_id"`
	CreatedAt time.Time           `json:"created_at"`
	Reason    string              `json:"reason"`
	Records   []*models.JobRecord `json:"records"`
}

// Writer serializes failed batches to a directory. Writes are serialized
// through a mutex so concurrent batch flushes never interleave output.
type Writer struct {
	dir    string
	logger arbor.ILogger
	mu     sync.Mutex
}

// NewWriter creates a fallback writer rooted at dir
func NewWriter(dir string, logger arbor.ILogger) (*Writer, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create fallback directory: %w", err)
	}
	return &Writer{
		dir:    dir,
		logger: logger,
	}, nil
}

// Write persists one failed batch and returns the file path. The file is
// written to a temp name and renamed so readers never observe a partial
// batch.
func (w *Writer) Write(batchID, reason string, records []*models.JobRecord) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	file := File{
		BatchID:   batchID,
		CreatedAt: time.Now().UTC(),
		Reason:    reason,
		Records:   records,
	}

	data, err := json.MarshalIndent(&file, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to serialize fallback batch: %w", err)
	}

	name := fmt.Sprintf("batch_%s_%s.json", batchID, file.CreatedAt.Format("20060102_150405.000000000"))
	path := filepath.Join(w.dir, name)
	tmpPath := path + ".tmp"

	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write fallback file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return "", fmt.Errorf("failed to finalize fallback file: %w", err)
	}

	w.logger.Warn().
		Str("batch_id", batchID).
		Str("path", path).
		Int("records", len(records)).
		Str("reason", reason).
		Msg("Batch written to fallback file")

	return path, nil
}

// List returns the paths of all fallback files, oldest first
func (w *Writer) List() ([]string, error) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read fallback directory: %w", err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		paths = append(paths, filepath.Join(w.dir, entry.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

// Load reads one fallback file back for reconciliation
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fallback file %s: %w", path, err)
	}

	var file File
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse fallback file %s: %w", path, err)
	}
	return &file, nil
}
